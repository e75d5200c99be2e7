// Package vectorstore defines the similarity search contract behind story
// memory, plus a provider factory registry. Items are embedded passages
// keyed by story, so a chapter writer can recall earlier events verbatim.
package vectorstore

import (
	"context"
	"fmt"
	"sync"
)

// Vector is a single dense embedding vector.
type Vector []float32

// Item is one embedded passage. Namespace groups items by story key.
type Item struct {
	// ID uniquely identifies the passage within its namespace.
	ID string
	// Namespace groups passages, normally one namespace per story key.
	Namespace string
	// Vector is the dense embedding of Text.
	Vector Vector
	// Text is the original passage, returned on query so callers can
	// render recalled memories directly.
	Text string
	// Metadata carries attributes for filtering (e.g., chapter, kind).
	Metadata map[string]any
}

// Match is a search result with similarity score.
type Match struct {
	Item  Item
	Score float32 // higher is more similar
}

// VectorStore defines upsert and similarity query operations.
type VectorStore interface {
	// Upsert inserts or replaces items by ID within a namespace.
	Upsert(ctx context.Context, items []Item) error
	// Query returns the top-k items most similar to the query vector.
	Query(ctx context.Context, query Vector, k int, filter Filter) ([]Match, error)
}

// Filter constrains query results.
type Filter struct {
	Namespace string
	// Equals matches exact key/value pairs in metadata (AND across keys).
	Equals map[string]any
}

// Factory constructs a VectorStore from provider-specific config.
type Factory func(ctx context.Context, cfg map[string]any) (VectorStore, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a VectorStore factory.
func Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("vectorstore: empty provider name")
	}
	if f == nil {
		return fmt.Errorf("vectorstore: nil factory for %q", name)
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := factories[name]; exists {
		return fmt.Errorf("vectorstore: provider %q already registered", name)
	}
	factories[name] = f
	return nil
}

// Resolve gets a registered factory by name.
func Resolve(name string) (Factory, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Range iterates all registered factories.
func Range(fn func(name string, f Factory)) {
	regMu.RLock()
	defer regMu.RUnlock()
	for n, f := range factories {
		fn(n, f)
	}
}
