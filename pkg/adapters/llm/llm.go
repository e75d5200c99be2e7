// Package llm defines the generation provider contract consumed by the
// validation-retry engine, plus a provider factory registry.
package llm

import (
	"context"
	"fmt"
	"sync"
)

// Message represents a chat message with a role and content.
type Message struct {
	Role    string
	Content string
}

// Request is one generation call: the pipeline role asking for it, the
// prompt/context bundle, and an optional model override. An empty Model
// uses the provider's default.
type Request struct {
	Role     string
	Messages []Message
	Model    string
	// Temperature overrides the provider default when non-nil.
	Temperature *float64
}

// Result contains the model's text output and token usage if available.
type Result struct {
	Text         string
	PromptTokens int
	OutputTokens int
	TotalTokens  int
	Model        string
}

// Provider defines a minimal text generation interface. Implementations
// must distinguish transient from permanent failures through errmodel
// (network/timeout errors retryable, request errors permanent).
type Provider interface {
	// Name returns provider name (e.g., "openai").
	Name() string
	// Generate creates a completion for the request.
	Generate(ctx context.Context, req Request) (Result, error)
}

// Factory constructs a Provider from provider-specific config.
type Factory func(ctx context.Context, cfg map[string]any) (Provider, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a Provider factory under a provider name.
func Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("llm: empty provider name")
	}
	if f == nil {
		return fmt.Errorf("llm: nil factory for %q", name)
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := factories[name]; exists {
		return fmt.Errorf("llm: provider %q already registered", name)
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
