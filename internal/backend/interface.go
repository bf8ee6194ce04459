package backend

import (
	"context"

	"receipts/internal/docstore"
	"receipts/internal/identity"
)

// CleanupFunc releases the resources behind a backend.
type CleanupFunc func() error

// PingFunc reports whether the backend is reachable.
type PingFunc func(ctx context.Context) error

// BackendResult bundles the document store, the account store sharing its
// database, and the hooks to check and release them.
type BackendResult struct {
	Docs    docstore.Store
	Users   identity.UserStore
	Ping    PingFunc
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Mongo specific
	MongoURI      string
	MongoDatabase string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	MongoBackend  BackendType = "mongo"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, MongoBackend:
		return true
	default:
		return false
	}
}
