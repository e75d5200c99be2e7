// Package memory is an in-process VectorStore used in tests and in
// single-node deployments that keep story memory for the run only.
package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/fablecast/fablecast/pkg/adapters/vectorstore"
)

// Store keeps items per namespace and ranks queries by cosine similarity.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string]vectorstore.Item // namespace -> id -> item
}

// New creates an empty store.
func New() *Store {
	return &Store{buckets: make(map[string]map[string]vectorstore.Item)}
}

// Upsert inserts or replaces items by ID.
func (s *Store) Upsert(_ context.Context, items []vectorstore.Item) error {
	if len(items) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if it.ID == "" {
			return errors.New("memory vectorstore: empty id")
		}
		if len(it.Vector) == 0 {
			return errors.New("memory vectorstore: empty vector")
		}
		ns := it.Namespace
		if ns == "" {
			ns = "default"
		}
		bucket, ok := s.buckets[ns]
		if !ok {
			bucket = make(map[string]vectorstore.Item)
			s.buckets[ns] = bucket
		}
		bucket[it.ID] = it
	}
	return nil
}

// Query ranks the namespace's items by cosine similarity to query, applies the
// metadata equality filter, and returns the top k.
func (s *Store) Query(_ context.Context, query vectorstore.Vector, k int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	qnorm := dot(query, query)
	if qnorm == 0 {
		return nil, errors.New("memory vectorstore: zero-norm query vector")
	}
	qnorm = math.Sqrt(qnorm)

	ns := filter.Namespace
	if ns == "" {
		ns = "default"
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.buckets[ns]
	if bucket == nil {
		return nil, nil
	}

	matches := make([]vectorstore.Match, 0, len(bucket))
	for _, it := range bucket {
		if !metaEquals(it.Metadata, filter.Equals) {
			continue
		}
		if len(it.Vector) != len(query) {
			continue
		}
		matches = append(matches, vectorstore.Match{Item: it, Score: cosine(query, it.Vector, qnorm)})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func metaEquals(have, want map[string]any) bool {
	if len(want) == 0 {
		return true
	}
	if have == nil {
		return false
	}
	for k, v := range want {
		if hv, ok := have[k]; !ok || hv != v {
			return false
		}
	}
	return true
}

func cosine(a, b vectorstore.Vector, qnorm float64) float32 {
	denom := qnorm * math.Sqrt(dot(b, b))
	if denom == 0 {
		return 0
	}
	return float32(dot(a, b) / denom)
}

func dot(a, b vectorstore.Vector) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
