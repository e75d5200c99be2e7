//go:build !mcp

package mcpclient

import (
	"context"
	"errors"
)

// New returns a stub client which reports not supported unless built with the mcp tag.
func New(_ context.Context, _ string, _ ...Option) (Client, error) {
	return &noopClient{}, nil
}

type noopClient struct{}

func (noopClient) Handshake(context.Context) error {
	return errors.New("mcp not enabled in this build")
}
func (noopClient) ListTools(context.Context) ([]ToolDescriptor, error) {
	return nil, errors.New("mcp not enabled in this build")
}
func (noopClient) CallTool(context.Context, string, map[string]any) (map[string]any, error) {
	return nil, errors.New("mcp not enabled in this build")
}
func (noopClient) ListResources(context.Context) ([]ResourceDescriptor, error) {
	return nil, errors.New("mcp not enabled in this build")
}
func (noopClient) Close() error { return nil }
