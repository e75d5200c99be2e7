package memory_test

import (
	"context"
	"testing"

	fakeembed "github.com/fablecast/fablecast/pkg/adapters/embedding/fake"
	vsmem "github.com/fablecast/fablecast/pkg/adapters/vectorstore/memory"
	"github.com/fablecast/fablecast/pkg/narrative"
	"github.com/fablecast/fablecast/pkg/narrative/assembler"
	"github.com/fablecast/fablecast/pkg/narrative/memory"
)

func seededState(outline ...string) narrative.State {
	return narrative.State{
		StoryKey: "story-1",
		Outline:  outline,
		Premise:  narrative.Premise{Chapters: len(outline)},
	}
}

func TestRememberAndRecall(t *testing.T) {
	ctx := context.Background()
	bank := memory.New(fakeembed.New(32), vsmem.New(), memory.WithTopK(2))

	if err := bank.Remember(ctx, "story-1", 1, "the keeper finds a stowaway in the lamp room"); err != nil {
		t.Fatalf("remember: %v", err)
	}
	if err := bank.Remember(ctx, "story-1", 2, "a storm cuts the island off from the mainland"); err != nil {
		t.Fatalf("remember: %v", err)
	}

	st := seededState("the stowaway", "the storm", "the stowaway's secret surfaces", "departure")
	sections := bank.Recall(ctx, st, 4)
	if len(sections) == 0 {
		t.Fatalf("no memories recalled")
	}
	for _, s := range sections {
		if s.Kind != assembler.KindMemory {
			t.Fatalf("section kind=%q want %q", s.Kind, assembler.KindMemory)
		}
		if s.Text == "" {
			t.Fatalf("recalled section has no text")
		}
		if s.ID == "chapter-0003" {
			t.Fatalf("previous chapter must not be recalled")
		}
	}
}

func TestRecallSkipsPreviousChapter(t *testing.T) {
	ctx := context.Background()
	bank := memory.New(fakeembed.New(32), vsmem.New())

	if err := bank.Remember(ctx, "story-1", 1, "only one chapter exists"); err != nil {
		t.Fatalf("remember: %v", err)
	}
	st := seededState("beat one", "beat two")
	if got := bank.Recall(ctx, st, 2); len(got) != 0 {
		t.Fatalf("chapter 1 is the previous chapter, expected no recall, got %d", len(got))
	}
}

func TestRecallOutOfRangeChapter(t *testing.T) {
	bank := memory.New(fakeembed.New(32), vsmem.New())
	st := seededState("beat one")
	if got := bank.Recall(context.Background(), st, 5); got != nil {
		t.Fatalf("expected nil for out-of-range chapter, got %v", got)
	}
}

func TestRememberEmptyChapterIsNoop(t *testing.T) {
	bank := memory.New(fakeembed.New(32), vsmem.New())
	if err := bank.Remember(context.Background(), "story-1", 1, ""); err != nil {
		t.Fatalf("empty chapter should be a no-op, got %v", err)
	}
}

func TestMachineHookFeedsBank(t *testing.T) {
	// Recall must see chapters stored through the machine's chapter hook.
	ctx := context.Background()
	bank := memory.New(fakeembed.New(32), vsmem.New())

	hook := narrative.ChapterHook(func(ctx context.Context, storyKey string, chapter int, text string) error {
		return bank.Remember(ctx, storyKey, chapter, text)
	})
	if err := hook(ctx, "story-1", 1, "the keeper lights the lamp"); err != nil {
		t.Fatalf("hook: %v", err)
	}

	st := seededState("the lamp", "the fog", "the return")
	if got := bank.Recall(ctx, st, 3); len(got) != 1 {
		t.Fatalf("expected 1 recalled chapter, got %d", len(got))
	}
}
