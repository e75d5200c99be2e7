// Package fake provides a scripted generation provider for unit tests.
package fake

import (
	"context"
	"sync"

	"github.com/fablecast/fablecast/pkg/adapters/llm"
)

// Response is one scripted outcome.
type Response struct {
	Text string
	Err  error
}

// Provider replays scripted responses in order, optionally keyed by role.
// Once a script is exhausted its last entry repeats. Safe for concurrent use.
type Provider struct {
	mu      sync.Mutex
	byRole  map[string][]Response
	general []Response
	calls   []llm.Request
}

// New returns a fake provider with a general script.
func New(script ...Response) *Provider {
	return &Provider{general: script, byRole: map[string][]Response{}}
}

// Script appends scripted responses for a specific role.
func (p *Provider) Script(role string, rs ...Response) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byRole[role] = append(p.byRole[role], rs...)
	return p
}

func (p *Provider) Name() string { return "fake" }

func (p *Provider) Generate(ctx context.Context, req llm.Request) (llm.Result, error) {
	if err := ctx.Err(); err != nil {
		return llm.Result{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)

	script := p.byRole[req.Role]
	if len(script) > 0 {
		r := script[0]
		if len(script) > 1 {
			p.byRole[req.Role] = script[1:]
		}
		return llm.Result{Text: r.Text, Model: req.Model}, r.Err
	}
	if len(p.general) == 0 {
		return llm.Result{Text: "", Model: req.Model}, nil
	}
	r := p.general[0]
	if len(p.general) > 1 {
		p.general = p.general[1:]
	}
	return llm.Result{Text: r.Text, Model: req.Model}, r.Err
}

// Calls returns a copy of every request seen so far.
func (p *Provider) Calls() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.Request, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns the number of Generate invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// CallCountFor returns the number of invocations for one role.
func (p *Provider) CallCountFor(role string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c.Role == role {
			n++
		}
	}
	return n
}
