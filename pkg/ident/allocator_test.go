package ident

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
)

// fakeBackend is an in-memory counter/story backend with optional write
// failure injection.
type fakeBackend struct {
	mu         sync.Mutex
	counters   map[string]int64
	stories    map[string]int64 // story_key -> correlation id (0 = unassigned)
	maxStory   int64
	maxThread  int64
	failWrites bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{counters: map[string]int64{}, stories: map[string]int64{}}
}

func (f *fakeBackend) GetCounter(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[key], nil
}

func (f *fakeBackend) SetCounter(_ context.Context, key string, v int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errors.New("disk full")
	}
	f.counters[key] = v
	return nil
}

func (f *fakeBackend) EnsureStory(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.stories[key]; !ok {
		f.stories[key] = 0
	}
	return nil
}

func (f *fakeBackend) CorrelationID(_ context.Context, key string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.stories[key]
	return id, id != 0, nil
}

func (f *fakeBackend) SetCorrelationIDIfAbsent(_ context.Context, key string, id int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur := f.stories[key]; cur != 0 {
		return cur, nil
	}
	f.stories[key] = id
	return id, nil
}

func (f *fakeBackend) MaxStoryID(_ context.Context) (int64, error)  { return f.maxStory, nil }
func (f *fakeBackend) MaxThreadID(_ context.Context) (int64, error) { return f.maxThread, nil }

func TestAllocateBeforeInitializeFails(t *testing.T) {
	a := New(newFakeBackend())
	if _, err := a.NextStoryID(context.Background()); !errors.Is(err, ErrUninitialized) {
		t.Fatalf("err=%v want ErrUninitialized", err)
	}
	if _, err := a.EnsureStoryID(context.Background(), "k"); !errors.Is(err, ErrUninitialized) {
		t.Fatalf("err=%v want ErrUninitialized", err)
	}
}

func TestInitializeBaselinesFromMaxObserved(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.counters["story_id"] = 10
	b.maxStory = 25 // storage already holds id 25; counter lagged behind
	b.maxThread = 3

	a := New(b)
	if err := a.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	id, err := a.NextStoryID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id != 26 {
		t.Fatalf("id=%d want 26", id)
	}
	tid, err := a.NextThreadID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tid != 4 {
		t.Fatalf("thread id=%d want 4", tid)
	}
}

func TestInitializeIdempotent(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	a := New(b)
	if err := a.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := a.NextStoryID(ctx); err != nil {
		t.Fatal(err)
	}
	before := b.counters["story_id"]
	if err := a.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if b.counters["story_id"] != before {
		t.Fatalf("second Initialize bumped counter: %d -> %d", before, b.counters["story_id"])
	}
	if id, _ := a.NextStoryID(ctx); id != before+1 {
		t.Fatalf("id=%d want %d", id, before+1)
	}
}

func TestIDsStrictlyIncreasingAndPersisted(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	a := New(b)
	if err := a.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	var last int64
	for i := 0; i < 50; i++ {
		id, err := a.NextStoryID(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if id <= last {
			t.Fatalf("id %d not strictly increasing after %d", id, last)
		}
		if b.counters["story_id"] != id {
			t.Fatalf("persisted=%d want %d", b.counters["story_id"], id)
		}
		last = id
	}
}

func TestPersistFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	a := New(b)
	if err := a.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := a.NextStoryID(ctx); err != nil {
		t.Fatal(err)
	}

	b.mu.Lock()
	b.failWrites = true
	b.mu.Unlock()
	if _, err := a.NextStoryID(ctx); err == nil {
		t.Fatal("expected persistence failure")
	}
	b.mu.Lock()
	b.failWrites = false
	b.mu.Unlock()

	// The failed allocation must not have advanced the in-memory counter.
	id, err := a.NextStoryID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id != 2 {
		t.Fatalf("id=%d want 2 after rollback", id)
	}
}

func TestEnsureStoryIDConvergesUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	a := New(b)
	if err := a.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	const callers = 16
	ids := make([]int64, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := a.EnsureStoryID(ctx, "same-story")
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()
	for i := 1; i < callers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("divergent ids: %v", ids)
		}
	}

	// Calling again returns the same id.
	id, err := a.EnsureStoryID(ctx, "same-story")
	if err != nil {
		t.Fatal(err)
	}
	if id != ids[0] {
		t.Fatalf("id=%d want %d", id, ids[0])
	}
}

func TestThreadIDWrapResetsToOne(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.counters["threadid"] = -5 // corrupted/wrapped persisted value
	a := New(b)
	if err := a.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	tid, err := a.NextThreadID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tid != 1 {
		t.Fatalf("tid=%d want 1 after wrap", tid)
	}
}

func TestThreadIDCeilingFailsOneStepBefore(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.maxThread = math.MaxInt64 - 2
	a := New(b)
	if err := a.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	// MaxInt64-1 is still representable and must be issued.
	tid, err := a.NextThreadID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tid != math.MaxInt64-1 {
		t.Fatalf("tid=%d want %d", tid, int64(math.MaxInt64-1))
	}

	// The next allocation would reach the ceiling and must fail fatally.
	if _, err := a.NextThreadID(ctx); !errors.Is(err, ErrThreadIDExhausted) {
		t.Fatalf("err=%v want ErrThreadIDExhausted", err)
	}

	// Operator reset recovers the sequence.
	if err := a.ResetThreadIDs(ctx); err != nil {
		t.Fatal(err)
	}
	tid, err = a.NextThreadID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tid != 1 {
		t.Fatalf("tid=%d want 1 after reset", tid)
	}
}
