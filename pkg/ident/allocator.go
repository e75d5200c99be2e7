// Package ident allocates the pipeline's durable identifiers: story
// correlation ids and log-thread ids. Counters live in memory but advance
// together with their persisted mirror; values never decrease across
// restarts because initialization baselines from both the persisted counter
// and the maximum id already observed in storage.
package ident

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/fablecast/fablecast/pkg/errmodel"
	"github.com/fablecast/fablecast/pkg/store"
)

// threadIDCeiling is the first unrepresentable thread id. Allocation fails
// one step before it so the ceiling value itself is never issued.
const threadIDCeiling = math.MaxInt64

var (
	// ErrUninitialized is returned when an allocator operation runs before
	// Initialize. This is a startup-ordering defect, not a runtime condition.
	ErrUninitialized = errors.New("ident: allocator not initialized")
	// ErrThreadIDExhausted is returned when the thread counter reaches the
	// representable ceiling; an operator must reset thread ids.
	ErrThreadIDExhausted = errors.New("ident: thread id ceiling reached; reset required")
)

// Backend is the slice of the durable store the allocator needs.
type Backend interface {
	store.CounterStore
	store.StoryStore
}

// Allocator issues monotonic story and thread ids backed by a durable store.
type Allocator struct {
	mu          sync.Mutex
	backend     Backend
	storyID     int64
	threadID    int64
	initialized bool
}

// New creates an Allocator over the given backend. Initialize must be
// called before any allocation.
func New(backend Backend) *Allocator {
	return &Allocator{backend: backend}
}

// Initialize reads the persisted counters, independently reads the maximum
// id already present in storage for each sequence, takes the larger of the
// two as the new baseline, and persists it. Subsequent calls are no-ops.
func (a *Allocator) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}

	storyCounter, err := a.backend.GetCounter(ctx, store.CounterStoryID)
	if err != nil {
		return errmodel.System("counter_read", "read story counter", nil, err)
	}
	maxStory, err := a.backend.MaxStoryID(ctx)
	if err != nil {
		return errmodel.System("max_id_read", "read max story id", nil, err)
	}
	if maxStory > storyCounter {
		storyCounter = maxStory
	}

	threadCounter, err := a.backend.GetCounter(ctx, store.CounterThreadID)
	if err != nil {
		return errmodel.System("counter_read", "read thread counter", nil, err)
	}
	maxThread, err := a.backend.MaxThreadID(ctx)
	if err != nil {
		return errmodel.System("max_id_read", "read max thread id", nil, err)
	}
	if maxThread > threadCounter {
		threadCounter = maxThread
	}

	if err := a.backend.SetCounter(ctx, store.CounterStoryID, storyCounter); err != nil {
		return errmodel.System("counter_write", "persist story baseline", nil, err)
	}
	if err := a.backend.SetCounter(ctx, store.CounterThreadID, threadCounter); err != nil {
		return errmodel.System("counter_write", "persist thread baseline", nil, err)
	}

	a.storyID = storyCounter
	a.threadID = threadCounter
	a.initialized = true
	return nil
}

// NextStoryID atomically increments the story counter, persists it, and
// returns the new value.
func (a *Allocator) NextStoryID(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return 0, ErrUninitialized
	}
	next := a.storyID + 1
	if err := a.backend.SetCounter(ctx, store.CounterStoryID, next); err != nil {
		// The in-memory counter and its durable mirror advance together;
		// keep the old value so they cannot diverge.
		return 0, errmodel.System("counter_write", "persist story id", map[string]any{"id": next}, err)
	}
	a.storyID = next
	return next, nil
}

// NextThreadID atomically increments the thread counter, persists it, and
// returns the new value. A wrapped (non-positive) counter restarts at 1; a
// value that would reach the representable ceiling fails fatally.
func (a *Allocator) NextThreadID(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return 0, ErrUninitialized
	}
	next := a.threadID + 1
	if next <= 0 {
		next = 1
	}
	if next >= threadIDCeiling {
		return 0, ErrThreadIDExhausted
	}
	if err := a.backend.SetCounter(ctx, store.CounterThreadID, next); err != nil {
		return 0, errmodel.System("counter_write", "persist thread id", map[string]any{"id": next}, err)
	}
	a.threadID = next
	return next, nil
}

// EnsureStoryID returns the correlation id for storyKey, allocating and
// assigning one if the story has none. Assignment is write-once: losing a
// concurrent race is resolved by returning the winner's id.
func (a *Allocator) EnsureStoryID(ctx context.Context, storyKey string) (int64, error) {
	a.mu.Lock()
	initialized := a.initialized
	a.mu.Unlock()
	if !initialized {
		return 0, ErrUninitialized
	}

	if id, ok, err := a.backend.CorrelationID(ctx, storyKey); err != nil {
		return 0, errmodel.System("story_read", "read correlation id", map[string]any{"story_key": storyKey}, err)
	} else if ok {
		return id, nil
	}

	id, err := a.NextStoryID(ctx)
	if err != nil {
		return 0, err
	}
	win, err := a.backend.SetCorrelationIDIfAbsent(ctx, storyKey, id)
	if err != nil {
		return 0, errmodel.System("story_write", "assign correlation id", map[string]any{"story_key": storyKey}, err)
	}
	return win, nil
}

// ResetThreadIDs zeroes the thread counter and persists the zero. Story ids
// are unaffected. This is the operator action that recovers from
// ErrThreadIDExhausted.
func (a *Allocator) ResetThreadIDs(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return ErrUninitialized
	}
	if err := a.backend.SetCounter(ctx, store.CounterThreadID, 0); err != nil {
		return errmodel.System("counter_write", "persist thread reset", nil, err)
	}
	a.threadID = 0
	return nil
}
