package database

import (
	"fmt"
	"sort"
	"sync"
)

// Backend opens the stores of one persistence technology.
type Backend interface {
	// Embeddings returns the embedding store scoped to model
	Embeddings(model string) (EmbeddingStore, error)
	// Ledger returns the session and record store
	Ledger() (LedgerStore, error)
	// Close releases backend resources
	Close() error
}

// BackendOptions carries the connection settings handed to a backend factory.
type BackendOptions struct {
	// DSN is a connection string for SQL backends or a directory for the file backend
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// BackendFactory creates a backend from its options.
type BackendFactory func(opts BackendOptions) (Backend, error)

var (
	backends   = make(map[string]BackendFactory)
	backendsMu sync.RWMutex
)

// RegisterBackend registers a backend constructor under name.
// This is called by the backend packages to avoid import cycles.
func RegisterBackend(name string, factory BackendFactory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = factory
}

// OpenBackend opens the backend registered under name.
func OpenBackend(name string, opts BackendOptions) (Backend, error) {
	backendsMu.RLock()
	factory, ok := backends[name]
	backendsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("storage backend %q not registered (available: %v)", name, RegisteredBackends())
	}
	return factory(opts)
}

// RegisteredBackends returns the sorted names of registered backends.
func RegisteredBackends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
