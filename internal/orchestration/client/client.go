package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ClientType identifies the headless client provider.
type ClientType string

const (
	// ClientClaude is the Claude Code CLI client.
	ClientClaude ClientType = "claude"
	// ClientMock is a scripted in-memory client.
	ClientMock ClientType = "mock"
)

// HeadlessClient spawns headless runtime processes.
type HeadlessClient interface {
	Type() ClientType

	// Spawn creates and starts a process. A non-empty cfg.SessionID resumes
	// that session. Cancelling ctx terminates the process.
	Spawn(ctx context.Context, cfg Config) (HeadlessProcess, error)
}

// ErrUnknownClientType is returned when an unknown client type is requested.
var ErrUnknownClientType = errors.New("unknown client type")

var (
	registryMu     sync.RWMutex
	clientRegistry = make(map[ClientType]func() HeadlessClient)
)

// RegisterClient registers a client factory. Provider packages call it from init.
func RegisterClient(clientType ClientType, factory func() HeadlessClient) {
	registryMu.Lock()
	defer registryMu.Unlock()
	clientRegistry[clientType] = factory
}

// NewClient creates a HeadlessClient for the given type.
func NewClient(clientType ClientType) (HeadlessClient, error) {
	registryMu.RLock()
	factory, ok := clientRegistry[clientType]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClientType, clientType)
	}
	return factory(), nil
}

// RegisteredClients returns all registered client types, sorted.
func RegisteredClients() []ClientType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]ClientType, 0, len(clientRegistry))
	for t := range clientRegistry {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// IsRegistered returns true if the given client type has been registered.
func IsRegistered(clientType ClientType) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := clientRegistry[clientType]
	return ok
}
