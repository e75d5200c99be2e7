package command

import (
	"context"

	"github.com/fablecast/fablecast/pkg/ident"
	"github.com/fablecast/fablecast/pkg/store"
)

// Summarizer compresses story text; the pipeline's summarize operation and
// the standalone command share one implementation.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// SummarizerFunc adapts a function to Summarizer.
type SummarizerFunc func(ctx context.Context, text string) (string, error)

func (f SummarizerFunc) Summarize(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// SummarizeCommand compresses one text.
type SummarizeCommand struct {
	S Summarizer
}

func (c SummarizeCommand) Describe() Descriptor {
	return Descriptor{
		Name:        "summarize_story",
		Description: "Compress story text into a compact summary.",
		Version:     1,
		InputSchema: []byte(`{
			"type": "object",
			"required": ["text"],
			"properties": {"text": {"type": "string", "minLength": 1}},
			"additionalProperties": false
		}`),
		OutputSchema: []byte(`{
			"type": "object",
			"required": ["summary"],
			"properties": {"summary": {"type": "string"}},
			"additionalProperties": false
		}`),
		Permissions: []Permission{{Name: "model:generate", Description: "calls the generation provider"}},
	}
}

func (c SummarizeCommand) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	text, _ := args["text"].(string)
	summary, err := c.S.Summarize(ctx, text)
	if err != nil {
		return nil, err
	}
	return map[string]any{"summary": summary}, nil
}

// SummarizeBatchCommand compresses several texts in order.
type SummarizeBatchCommand struct {
	S Summarizer
}

func (c SummarizeBatchCommand) Describe() Descriptor {
	return Descriptor{
		Name:        "summarize_batch",
		Description: "Compress several story texts, preserving order.",
		Version:     1,
		InputSchema: []byte(`{
			"type": "object",
			"required": ["texts"],
			"properties": {
				"texts": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}}
			},
			"additionalProperties": false
		}`),
		OutputSchema: []byte(`{
			"type": "object",
			"required": ["summaries"],
			"properties": {"summaries": {"type": "array", "items": {"type": "string"}}},
			"additionalProperties": false
		}`),
		Permissions: []Permission{{Name: "model:generate", Description: "calls the generation provider"}},
	}
}

func (c SummarizeBatchCommand) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	raw, _ := args["texts"].([]any)
	summaries := make([]any, 0, len(raw))
	for _, item := range raw {
		text, _ := item.(string)
		summary, err := c.S.Summarize(ctx, text)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return map[string]any{"summaries": summaries}, nil
}

// ResetThreadIDsCommand restarts the thread-id sequence.
type ResetThreadIDsCommand struct {
	Allocator *ident.Allocator
}

func (c ResetThreadIDsCommand) Describe() Descriptor {
	return Descriptor{
		Name:        "reset_thread_ids",
		Description: "Restart the thread-id sequence from 1.",
		Version:     1,
		InputSchema: []byte(`{"type": "object", "additionalProperties": false}`),
		OutputSchema: []byte(`{
			"type": "object",
			"required": ["ok"],
			"properties": {"ok": {"type": "boolean"}},
			"additionalProperties": false
		}`),
		Permissions: []Permission{{Name: "store:write", Description: "rewrites the persisted counter"}},
	}
}

func (c ResetThreadIDsCommand) Invoke(ctx context.Context, _ map[string]any) (map[string]any, error) {
	if err := c.Allocator.ResetThreadIDs(ctx); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

// GetMaxStoryIDCommand reports the highest assigned correlation id.
type GetMaxStoryIDCommand struct {
	Stories store.StoryStore
}

func (c GetMaxStoryIDCommand) Describe() Descriptor {
	return Descriptor{
		Name:        "get_max_story_id",
		Description: "Report the highest assigned story correlation id.",
		Version:     1,
		InputSchema: []byte(`{"type": "object", "additionalProperties": false}`),
		OutputSchema: []byte(`{
			"type": "object",
			"required": ["max_story_id"],
			"properties": {"max_story_id": {"type": "integer", "minimum": 0}},
			"additionalProperties": false
		}`),
		Permissions: []Permission{{Name: "store:read", Description: "reads the story table"}},
	}
}

func (c GetMaxStoryIDCommand) Invoke(ctx context.Context, _ map[string]any) (map[string]any, error) {
	max, err := c.Stories.MaxStoryID(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"max_story_id": max}, nil
}
