package backend

import (
	"context"
	"fmt"
	"log/slog"

	"receipts/internal/docstore/memory"
	"receipts/internal/docstore/mongo"
	dsqlite "receipts/internal/docstore/sqlite"
	"receipts/internal/identity"
	"receipts/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case MongoBackend:
		return f.createMongoBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	docs := dsqlite.New(repo)
	return &BackendResult{
		Docs:    docs,
		Users:   identity.NewSQLiteUsers(repo),
		Ping:    repo.Ping,
		Cleanup: docs.Close,
	}, nil
}

func (f *DefaultFactory) createMongoBackend(ctx context.Context, config Config) (*BackendResult, error) {
	docs, err := mongo.Connect(ctx, config.MongoURI, config.MongoDatabase)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	users, err := identity.NewMongoUsers(ctx, docs.Database())
	if err != nil {
		docs.Close()
		return nil, fmt.Errorf("failed to initialize Mongo user store: %w", err)
	}

	f.logger.Info("Initialized MongoDB backend", "database", config.MongoDatabase)

	return &BackendResult{
		Docs:  docs,
		Users: users,
		Ping: func(ctx context.Context) error {
			return docs.Client().Ping(ctx, nil)
		},
		Cleanup: docs.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	f.logger.Info("Initialized memory backend")

	docs := memory.New()
	return &BackendResult{
		Docs:    docs,
		Users:   identity.NewMemoryUsers(),
		Ping:    func(context.Context) error { return nil },
		Cleanup: docs.Close,
	}, nil
}
