package command

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fablecast/fablecast/pkg/errmodel"
	"github.com/fablecast/fablecast/pkg/opkey"
)

// Registry keeps commands by canonical name. Lookups go through the
// operation key resolver, so any alias or scoped variant resolves.
type Registry struct {
	mu       sync.RWMutex
	cmds     map[string]Command
	resolver *opkey.Resolver
}

// NewRegistry constructs a Registry. A nil resolver gets the default alias
// table.
func NewRegistry(resolver *opkey.Resolver) *Registry {
	if resolver == nil {
		resolver = opkey.NewDefaultResolver()
	}
	return &Registry{cmds: map[string]Command{}, resolver: resolver}
}

// Register adds a command under its normalized descriptor name.
func (r *Registry) Register(c Command) error {
	if c == nil {
		return fmt.Errorf("command is nil")
	}
	d := c.Describe()
	if d.Name == "" {
		return fmt.Errorf("command name is empty")
	}
	key := r.resolver.Canonical(d.Name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cmds[key]; exists {
		return fmt.Errorf("command %q already registered", key)
	}
	r.cmds[key] = c
	return nil
}

// Resolve returns a command by any of its lookup keys.
func (r *Registry) Resolve(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.resolver.LookupKeys(name) {
		if c, ok := r.cmds[k]; ok {
			return c, true
		}
	}
	return nil, false
}

// List returns every descriptor in name order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, c.Describe())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SafeInvoke resolves name, checks permissions against the allowed set,
// validates input, invokes, and validates output.
func (r *Registry) SafeInvoke(ctx context.Context, name string, args map[string]any, allowed map[string]bool) (map[string]any, error) {
	c, ok := r.Resolve(name)
	if !ok {
		return nil, errmodel.Validation("not_found", "command not found", map[string]any{"command": name})
	}
	d := c.Describe()
	for _, p := range d.Permissions {
		if !allowed[p.Name] {
			return nil, errmodel.Policy("forbidden", "permission denied for command", map[string]any{"permission": p.Name, "command": d.Name})
		}
	}
	if err := ValidateJSON(d.InputSchema, args); err != nil {
		return nil, errmodel.Validation("invalid_input", "command input validation failed", map[string]any{"command": d.Name, "error": err.Error()})
	}
	out, err := c.Invoke(ctx, args)
	if err != nil {
		return nil, err
	}
	if err := ValidateJSON(d.OutputSchema, out); err != nil {
		return nil, errmodel.Validation("invalid_output", "command output validation failed", map[string]any{"command": d.Name, "error": err.Error()})
	}
	return out, nil
}
