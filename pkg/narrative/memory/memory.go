// Package memory recalls passages from earlier chapters of a story.
// Finished chapters are embedded and stored per story key; when a later
// chapter is written, the passages most similar to its outline beat come
// back as extra context sections. The previous chapter is excluded since
// the machine already carries it in full.
package memory

import (
	"context"
	"fmt"

	"github.com/fablecast/fablecast/pkg/adapters/embedding"
	"github.com/fablecast/fablecast/pkg/adapters/vectorstore"
	"github.com/fablecast/fablecast/pkg/narrative"
	"github.com/fablecast/fablecast/pkg/narrative/assembler"
)

const defaultTopK = 3

// Bank stores and retrieves chapter memories.
type Bank struct {
	embedder embedding.Embedder
	store    vectorstore.VectorStore
	topK     int
}

// Option configures the Bank.
type Option func(*Bank)

// WithTopK sets how many passages Recall returns at most.
func WithTopK(k int) Option {
	return func(b *Bank) {
		if k > 0 {
			b.topK = k
		}
	}
}

// New creates a Bank over an embedder and a vector store.
func New(e embedding.Embedder, vs vectorstore.VectorStore, opts ...Option) *Bank {
	b := &Bank{embedder: e, store: vs, topK: defaultTopK}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Remember embeds a finished chapter and stores it under the story key.
func (b *Bank) Remember(ctx context.Context, storyKey string, chapter int, text string) error {
	if text == "" {
		return nil
	}
	vecs, err := b.embedder.Embed(ctx, []string{text})
	if err != nil {
		return err
	}
	if len(vecs) != 1 {
		return fmt.Errorf("memory: embedder returned %d vectors for 1 input", len(vecs))
	}
	return b.store.Upsert(ctx, []vectorstore.Item{{
		ID:        chapterID(chapter),
		Namespace: storyKey,
		Vector:    vectorstore.Vector(vecs[0]),
		Text:      text,
		Metadata:  map[string]any{"kind": "chapter"},
	}})
}

// Recall returns memory sections relevant to chapter n, queried by that
// chapter's outline beat. Retrieval is best effort: any failure returns
// nil and the chapter is written without recalled memories.
func (b *Bank) Recall(ctx context.Context, st narrative.State, n int) []assembler.Section {
	if n < 1 || n > len(st.Outline) {
		return nil
	}
	vecs, err := b.embedder.Embed(ctx, []string{st.Outline[n-1]})
	if err != nil || len(vecs) != 1 {
		return nil
	}
	matches, err := b.store.Query(ctx, vectorstore.Vector(vecs[0]), b.topK+1, vectorstore.Filter{Namespace: st.StoryKey})
	if err != nil {
		return nil
	}
	var out []assembler.Section
	for _, m := range matches {
		if m.Item.ID == chapterID(n-1) || m.Item.Text == "" {
			continue
		}
		out = append(out, assembler.Section{
			Kind: assembler.KindMemory,
			ID:   m.Item.ID,
			Text: m.Item.Text,
		})
		if len(out) == b.topK {
			break
		}
	}
	return out
}

func chapterID(n int) string { return fmt.Sprintf("chapter-%04d", n) }
