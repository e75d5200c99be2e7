// Package mcpclient provides a minimal MCP client. The real transport is
// compiled in with the mcp build tag; the default build gets a stub.
package mcpclient

import "context"

// Client defines the MCP client capabilities the orchestrator needs.
type Client interface {
	Handshake(ctx context.Context) error
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error)
	ListResources(ctx context.Context) ([]ResourceDescriptor, error)
	Close() error
}

// ToolDescriptor is a subset of the MCP tool schema.
type ToolDescriptor struct {
	Name         string
	Description  string
	InputSchema  []byte
	OutputSchema []byte
}

// ResourceDescriptor describes an MCP resource.
type ResourceDescriptor struct {
	URI         string
	Description string
}

type Option func(*config)

type config struct{}
