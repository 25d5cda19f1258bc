package claude

import (
	"context"

	"github.com/tejas96/sdlc-agents-sub000/internal/orchestration/client"
)

func init() {
	client.RegisterClient(client.ClientClaude, func() client.HeadlessClient {
		return NewClient()
	})
}

// Client implements client.HeadlessClient for the Claude Code CLI.
type Client struct{}

// NewClient creates a new Client.
func NewClient() *Client {
	return &Client{}
}

// Type returns the client type identifier.
func (c *Client) Type() client.ClientType {
	return client.ClientClaude
}

// Spawn creates and starts a headless Claude process.
func (c *Client) Spawn(ctx context.Context, cfg client.Config) (client.HeadlessProcess, error) {
	return Spawn(ctx, cfg)
}

var _ client.HeadlessClient = (*Client)(nil)
