// Package store defines persistence interfaces for the generation pipeline:
// numerator counters, story correlation ids, durable narrative state,
// evaluation records, and the per-thread generation log. Implementations
// must provide identical semantics across backends.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// Counter keys for the numerator state.
const (
	CounterStoryID  = "story_id"
	CounterThreadID = "threadid"
)

// StoryRecord is the persisted representation of a story. CorrelationID is
// the externally visible story id; zero means not yet assigned.
type StoryRecord struct {
	StoryKey      string
	CorrelationID int64
	Title         string
	CreatedAt     time.Time
}

// NarrativeRecord is the durable narrative state for one story, stored as
// JSON so the machine can resume at any chapter boundary.
type NarrativeRecord struct {
	StoryKey  string
	State     json.RawMessage
	UpdatedAt time.Time
}

// EvaluationRecord is one evaluator verdict for a story.
type EvaluationRecord struct {
	EvalID      string
	StoryID     int64
	EvaluatorID string
	Model       string
	RawJSON     json.RawMessage
	CreatedAt   time.Time
}

// LogRecord is one row of the generation log, grouped by thread id.
type LogRecord struct {
	ID        int64
	ThreadID  int64
	StoryID   int64
	Category  string
	Role      string
	Model     string
	Step      int
	MaxStep   int
	Result    string
	Message   string
	CreatedAt time.Time
}

// CounterStore persists named numerator counters.
type CounterStore interface {
	// GetCounter returns the persisted value for key, or 0 when absent.
	GetCounter(ctx context.Context, key string) (int64, error)
	// SetCounter upserts the value for key.
	SetCounter(ctx context.Context, key string, value int64) error
}

// StoryStore persists stories and their write-once correlation ids.
type StoryStore interface {
	// EnsureStory inserts a story row for key if none exists.
	EnsureStory(ctx context.Context, storyKey string) error
	// CorrelationID returns the assigned id for the story, if any.
	CorrelationID(ctx context.Context, storyKey string) (int64, bool, error)
	// SetCorrelationIDIfAbsent assigns id to the story only when no id is
	// set yet, and returns the winning value either way.
	SetCorrelationIDIfAbsent(ctx context.Context, storyKey string, id int64) (int64, error)
	// MaxStoryID returns the highest correlation id present, 0 when none.
	MaxStoryID(ctx context.Context) (int64, error)
	// MaxThreadID returns the highest thread id present in the log, 0 when none.
	MaxThreadID(ctx context.Context) (int64, error)
}

// NarrativeStore persists resumable narrative state.
type NarrativeStore interface {
	SaveNarrative(ctx context.Context, rec NarrativeRecord) error
	LoadNarrative(ctx context.Context, storyKey string) (NarrativeRecord, bool, error)
}

// EvaluationStore persists scoring gate verdicts.
type EvaluationStore interface {
	AppendEvaluation(ctx context.Context, rec EvaluationRecord) (EvaluationRecord, error)
	ListEvaluations(ctx context.Context, storyID int64) ([]EvaluationRecord, error)
}

// LogStore persists the generation log.
type LogStore interface {
	AppendLog(ctx context.Context, rec LogRecord) (LogRecord, error)
	ListLogByThread(ctx context.Context, threadID int64, limit int) ([]LogRecord, error)
}

// Store aggregates all persistence concerns of the pipeline.
type Store interface {
	CounterStore
	StoryStore
	NarrativeStore
	EvaluationStore
	LogStore
}
