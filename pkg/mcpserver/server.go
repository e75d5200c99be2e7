//go:build !mcp

// Package mcpserver exposes the command registry as MCP tools. Without the
// mcp build tag it compiles to a stub so the default build carries no SDK
// dependency surface.
package mcpserver

import (
	"context"
	"errors"

	"github.com/fablecast/fablecast/pkg/command"
)

// Server is a placeholder when the mcp build tag is not set.
type Server struct{}

type Option func(*Server)

// New creates a new MCP server (no-op without the mcp tag).
func New(_ context.Context, _ ...Option) (*Server, error) { return &Server{}, nil }

// RegisterCommands would export the registry's commands as MCP tools.
func (s *Server) RegisterCommands(_ *command.Registry, _ map[string]bool) error { return nil }

// Serve starts the MCP server (no-op without the mcp tag).
func (s *Server) Serve(_ context.Context, _ string) error {
	return errors.New("mcp server not enabled in this build")
}
