// Package filestore keeps embeddings and the attendance ledger in JSON documents
// under a data directory. Every mutation rewrites the document atomically
// (temp file + rename) before returning.
//
// Several processes may share a directory (a running server and CLI commands).
// Mutations hold an exclusive flock on the document's .lock file and re-read the
// document before changing it; reads re-load it whenever the file was replaced.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/kozaktomas/rollcall/internal/database"
)

// BackendName is the name the file backend is registered under.
const BackendName = "file"

// CurrentVersion is the document format version written by this package.
const CurrentVersion = 1

var modelNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

func init() {
	database.RegisterBackend(BackendName, func(opts database.BackendOptions) (database.Backend, error) {
		return New(opts.DSN)
	})
}

// Backend opens JSON stores inside one directory.
type Backend struct {
	dir        string
	mu         sync.Mutex
	embeddings map[string]*EmbeddingStore
	ledger     *Ledger
}

// New creates the data directory if needed and returns a backend rooted at it.
func New(dir string) (*Backend, error) {
	if dir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Backend{
		dir:        dir,
		embeddings: make(map[string]*EmbeddingStore),
	}, nil
}

// Embeddings returns the store for model, loading it on first use.
func (b *Backend) Embeddings(model string) (database.EmbeddingStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.embeddings[model]; ok {
		return s, nil
	}
	if !modelNameRe.MatchString(model) {
		return nil, fmt.Errorf("invalid model name %q", model)
	}

	s, err := NewEmbeddingStore(filepath.Join(b.dir, "embeddings-"+model+".json"), model)
	if err != nil {
		return nil, err
	}
	b.embeddings[model] = s
	return s, nil
}

// Ledger returns the session and record store.
func (b *Backend) Ledger() (database.LedgerStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ledger != nil {
		return b.ledger, nil
	}
	l, err := NewLedger(filepath.Join(b.dir, "ledger.json"))
	if err != nil {
		return nil, err
	}
	b.ledger = l
	return l, nil
}

// Close is a no-op; documents are flushed on every write.
func (b *Backend) Close() error {
	return nil
}

// writeJSON writes v to path through a temporary file and a rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
