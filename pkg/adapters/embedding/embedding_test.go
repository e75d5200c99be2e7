package embedding_test

import (
	"context"
	"testing"

	"github.com/fablecast/fablecast/pkg/adapters/embedding"
	fakeembed "github.com/fablecast/fablecast/pkg/adapters/embedding/fake"
)

func TestRegisterAndResolve(t *testing.T) {
	if err := embedding.Register("", nil); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if err := embedding.Register("test-embed", nil); err == nil {
		t.Fatalf("expected error for nil factory")
	}
	factory := func(ctx context.Context, cfg map[string]any) (embedding.Embedder, error) {
		return fakeembed.New(8), nil
	}
	if err := embedding.Register("test-embed", factory); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := embedding.Register("test-embed", factory); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if _, ok := embedding.Resolve("test-embed"); !ok {
		t.Fatalf("factory not resolvable")
	}
	if _, ok := embedding.Resolve("missing"); ok {
		t.Fatalf("unexpected factory for missing name")
	}
}

func TestFakeEmbedderDeterministic(t *testing.T) {
	e := fakeembed.New(16)
	ctx := context.Background()

	a, err := e.Embed(ctx, []string{"the captain boards the night train", "rain on the station roof"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, err := e.Embed(ctx, []string{"the captain boards the night train", "rain on the station roof"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("expected 2 vectors, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if len(a[i]) != 16 {
			t.Fatalf("vector %d has dim %d, want 16", i, len(a[i]))
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("vector %d not deterministic at %d", i, j)
			}
		}
	}
	// Distinct inputs must not collide.
	same := true
	for j := range a[0] {
		if a[0][j] != a[1][j] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("distinct inputs produced identical vectors")
	}
}
