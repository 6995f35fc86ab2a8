// Package kvstore provides the durable string-valued key/value slots the chat session is
// persisted into. Writes are full-value, last-writer-wins overwrites.
package kvstore

import (
	"path/filepath"

	"github.com/pkg/errors"
)

// Store is the persistence port used by the session store.
type Store interface {
	// Get returns the value of key and whether it was present.
	Get(key string) (string, bool, error)
	// Set overwrites key with value.
	Set(key string, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
	Close() error
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open creates the store for the given backend, rooted in dir.
func Open(backend string, dir string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(filepath.Join(dir, "state"))
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(dir, "state.db"))
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, errors.Errorf("unknown store backend %q (should be one of file, sqlite, memory)", backend)
	}
}
