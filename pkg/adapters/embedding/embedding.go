// Package embedding defines the text embedding contract behind story
// memory retrieval, plus a provider factory registry.
package embedding

import (
	"context"
	"fmt"
	"sync"
)

// Vector is a single embedding vector.
type Vector []float32

// Embedder turns passages of story text into vectors. Implementations
// must honor ctx on all network calls and return one vector per input,
// in input order.
type Embedder interface {
	// Name returns a short provider name (e.g., "openai").
	Name() string
	// Embed returns one vector per input string.
	Embed(ctx context.Context, inputs []string) ([]Vector, error)
}

// Factory constructs an Embedder from provider-specific config.
type Factory func(ctx context.Context, cfg map[string]any) (Embedder, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers an Embedder factory under a provider name.
func Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("embedding: empty provider name")
	}
	if f == nil {
		return fmt.Errorf("embedding: nil factory for %q", name)
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := factories[name]; exists {
		return fmt.Errorf("embedding: provider %q already registered", name)
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
