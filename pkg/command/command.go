// Package command exposes named, schema-validated pipeline operations:
// summarize a story, reset the thread-id sequence, query the highest story
// id. Commands are resolved through the operation key resolver, so callers
// may use any alias or scoped spelling of a name.
package command

import (
	"context"
)

// Permission describes a capability a command requires.
// Example: store:write, model:generate.
type Permission struct {
	// Name is a stable, lower_snake identifier of the permission.
	Name string `json:"name"`
	// Description explains what the permission allows.
	Description string `json:"description,omitempty"`
}

// Descriptor declares the static interface of a command.
// InputSchema and OutputSchema are JSON Schemas (draft 2020-12) in UTF-8 bytes.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     int    `json:"version,omitempty"`
	// Deprecated names the replacement when the command is superseded;
	// empty means current.
	Deprecated string `json:"deprecated,omitempty"`
	InputSchema  []byte       `json:"input_schema"`
	OutputSchema []byte       `json:"output_schema"`
	Permissions  []Permission `json:"permissions,omitempty"`
}

// Command is a callable unit with schema-validated inputs and outputs.
type Command interface {
	// Describe returns the public descriptor (schemas, permissions).
	Describe() Descriptor
	// Invoke executes the command with validated args. The args MUST
	// conform to InputSchema; the returned map MUST conform to
	// OutputSchema.
	Invoke(ctx context.Context, args map[string]any) (map[string]any, error)
}
