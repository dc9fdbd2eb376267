package client

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ClientType identifies the agent provider.
type ClientType string

const (
	// ClientDevin is the remote Devin autonomous coding agent.
	ClientDevin ClientType = "devin"
	// ClientCodex is the OpenAI reasoning-model agent loop.
	ClientCodex ClientType = "codex"
	// ClientMock is a mock client for testing.
	ClientMock ClientType = "mock"
)

// AgentLoop is one logical client bound to a provider. A new Run
// supersedes whatever run came before it.
type AgentLoop interface {
	// Type returns the client type identifier.
	Type() ClientType

	// Run dispatches input to the agent. If previousResponseID is set the
	// conversation is continued, otherwise a new one is started.
	// Attachments are URLs of files already uploaded for this request.
	// Run reports failures through the item stream; it only returns an
	// error when the loop can no longer accept work.
	Run(ctx context.Context, input []InputItem, previousResponseID string, attachments []string) error

	// Cancel stops the current run. Safe to call repeatedly.
	Cancel()

	// Terminate permanently shuts the loop down. Later Runs fail.
	Terminate()
}

// RemoteSessions is implemented by adapters whose agent keeps session
// state on a remote service.
type RemoteSessions interface {
	// UploadFile uploads data under the base name of path. When
	// presentToAgent is true and a session is active, the upload is also
	// sent to that session.
	UploadFile(ctx context.Context, path string, data []byte, presentToAgent bool) (Attachment, error)

	// ListSessions fetches the sessions known to the remote service.
	ListSessions(ctx context.Context) ([]SessionInfo, error)

	// ActiveSessions returns a snapshot of the locally observed sessions.
	ActiveSessions() map[string]SessionInfo

	// CreateRecursiveSession starts a session on behalf of automation,
	// outside the main run flow. parentID may be empty.
	CreateRecursiveSession(ctx context.Context, prompt, parentID string) (string, error)
}

// ErrUnknownClientType is returned when an unknown client type is requested.
var ErrUnknownClientType = fmt.Errorf("unknown client type")

// Factory constructs an AgentLoop from params.
type Factory func(params Params) (AgentLoop, error)

var (
	registryMu     sync.RWMutex
	clientRegistry = make(map[ClientType]Factory)
)

// RegisterClient registers a client factory for the given type.
// This should be called in init() functions of provider packages.
func RegisterClient(clientType ClientType, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	clientRegistry[clientType] = factory
}

// unregisterClient removes a factory. Used by tests.
func unregisterClient(clientType ClientType) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(clientRegistry, clientType)
}

// NewClient creates an AgentLoop for the given type.
// Returns ErrUnknownClientType if the type is not registered.
func NewClient(clientType ClientType, params Params) (AgentLoop, error) {
	registryMu.RLock()
	factory, ok := clientRegistry[clientType]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClientType, clientType)
	}
	return factory(params)
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
