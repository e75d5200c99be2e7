//go:build mcp

package mcpserver

import (
	"context"
	"net"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fablecast/fablecast/pkg/command"
)

type Server struct {
	srv *mcp.Server
}

type Option func(*Server)

func New(ctx context.Context, _ ...Option) (*Server, error) {
	return &Server{srv: mcp.NewServer()}, nil
}

// RegisterCommands exports every registered command as an MCP tool. Calls
// route through SafeInvoke, so permission checks and schema validation stay
// in effect for remote callers.
func (s *Server) RegisterCommands(reg *command.Registry, allowed map[string]bool) error {
	for _, d := range reg.List() {
		name := d.Name
		if err := s.srv.RegisterTool(mcp.Tool{
			Name:         name,
			Description:  d.Description,
			InputSchema:  d.InputSchema,
			OutputSchema: d.OutputSchema,
			Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				return reg.SafeInvoke(ctx, name, args, allowed)
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

// Serve accepts connections on addr and serves each on its own goroutine.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go func() { _ = s.srv.Serve(ctx, conn) }()
	}
}

// ServeConn serves a single pre-established connection.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) error {
	return s.srv.Serve(ctx, conn)
}
