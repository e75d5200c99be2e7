package memory

import (
	"context"
	"testing"

	"github.com/fablecast/fablecast/pkg/adapters/vectorstore"
)

func TestUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	s := New()

	items := []vectorstore.Item{
		{ID: "ch1", Namespace: "story-7", Vector: vectorstore.Vector{1, 0}, Text: "the keeper lights the lamp", Metadata: map[string]any{"chapter": 1}},
		{ID: "ch2", Namespace: "story-7", Vector: vectorstore.Vector{0.9, 0.1}, Text: "a ship appears in the fog", Metadata: map[string]any{"chapter": 2}},
		{ID: "ch1", Namespace: "story-8", Vector: vectorstore.Vector{0, 1}, Text: "another story entirely", Metadata: map[string]any{"chapter": 1}},
	}
	if err := s.Upsert(ctx, items); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	matches, err := s.Query(ctx, vectorstore.Vector{1, 0}, 1, vectorstore.Filter{Namespace: "story-7"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].Item.ID != "ch1" {
		t.Fatalf("top match=%s want ch1", matches[0].Item.ID)
	}
	if matches[0].Item.Text != "the keeper lights the lamp" {
		t.Fatalf("text not carried through: %q", matches[0].Item.Text)
	}
}

func TestQueryNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Upsert(ctx, []vectorstore.Item{
		{ID: "a", Namespace: "story-1", Vector: vectorstore.Vector{1, 0}},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	matches, err := s.Query(ctx, vectorstore.Vector{1, 0}, 10, vectorstore.Filter{Namespace: "story-2"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no cross-namespace matches, got %d", len(matches))
	}
}

func TestQueryMetadataFilter(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Upsert(ctx, []vectorstore.Item{
		{ID: "a", Namespace: "story-1", Vector: vectorstore.Vector{1, 0}, Metadata: map[string]any{"kind": "chapter"}},
		{ID: "b", Namespace: "story-1", Vector: vectorstore.Vector{1, 0}, Metadata: map[string]any{"kind": "summary"}},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	matches, err := s.Query(ctx, vectorstore.Vector{1, 0}, 10, vectorstore.Filter{
		Namespace: "story-1",
		Equals:    map[string]any{"kind": "summary"},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 1 || matches[0].Item.ID != "b" {
		t.Fatalf("filter failed: %+v", matches)
	}
}

func TestQueryRejectsZeroVector(t *testing.T) {
	s := New()
	if _, err := s.Query(context.Background(), vectorstore.Vector{0, 0}, 1, vectorstore.Filter{}); err == nil {
		t.Fatalf("expected error for zero-norm query")
	}
}

func TestUpsertValidation(t *testing.T) {
	s := New()
	if err := s.Upsert(context.Background(), []vectorstore.Item{{ID: "", Vector: vectorstore.Vector{1}}}); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if err := s.Upsert(context.Background(), []vectorstore.Item{{ID: "x"}}); err == nil {
		t.Fatalf("expected error for empty vector")
	}
}
