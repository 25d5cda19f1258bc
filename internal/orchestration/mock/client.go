package mock

import (
	"context"
	"sync"

	"github.com/tejas96/sdlc-agents-sub000/internal/orchestration/client"
)

// Script returns the events a spawned process replays, and the error it
// fails with once they are sent.
type Script func(cfg client.Config) ([]client.OutputEvent, error)

// Client is a mock implementation of client.HeadlessClient for testing.
type Client struct {
	// SpawnFunc, when set, handles Spawn entirely.
	SpawnFunc func(ctx context.Context, cfg client.Config) (client.HeadlessProcess, error)

	// Script, when set and SpawnFunc is nil, is replayed by each spawned process.
	Script Script

	mu          sync.Mutex
	configs     []client.Config
	resumeCount int
}

// NewClient creates a new mock client with default behavior.
// By default, Spawn returns a running Process the test drives by hand.
func NewClient() *Client {
	return &Client{}
}

// NewScriptedClient returns a client whose processes replay events and then
// complete, or fail with err.
func NewScriptedClient(events []client.OutputEvent, err error) *Client {
	return &Client{Script: func(client.Config) ([]client.OutputEvent, error) { return events, err }}
}

// Type returns the client type identifier.
func (c *Client) Type() client.ClientType {
	return client.ClientMock
}

// Spawn records cfg and returns a process.
func (c *Client) Spawn(ctx context.Context, cfg client.Config) (client.HeadlessProcess, error) {
	c.mu.Lock()
	c.configs = append(c.configs, cfg)
	if cfg.SessionID != "" {
		c.resumeCount++
	}
	c.mu.Unlock()

	if c.SpawnFunc != nil {
		return c.SpawnFunc(ctx, cfg)
	}
	proc := NewProcessWithConfig(cfg)
	if c.Script != nil {
		events, err := c.Script(cfg)
		proc.Replay(ctx, events, err)
	}
	return proc, nil
}

// SpawnCount returns how many times Spawn was called.
func (c *Client) SpawnCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.configs)
}

// ResumeCount returns how many times Spawn was called with a SessionID.
func (c *Client) ResumeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumeCount
}

// Configs returns every Config passed to Spawn, in order.
func (c *Client) Configs() []client.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]client.Config, len(c.configs))
	copy(out, c.configs)
	return out
}

// LastConfig returns the most recent Config passed to Spawn.
func (c *Client) LastConfig() client.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.configs) == 0 {
		return client.Config{}
	}
	return c.configs[len(c.configs)-1]
}

// Reset clears the recorded calls.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs = nil
	c.resumeCount = 0
}

func init() {
	client.RegisterClient(client.ClientMock, func() client.HeadlessClient {
		return NewClient()
	})
}
