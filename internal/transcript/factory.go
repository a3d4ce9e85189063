package transcript

import (
	"context"
	"errors"
	"fmt"

	"zhenghe/config"
	"zhenghe/internal/storage"
)

// Result holds the transcript store and the storage it runs on.
// The caller must call Close during shutdown.
type Result struct {
	Store    Store
	Recorder *Recorder
	Storage  storage.Storage
}

// Close releases the store and its storage. Safe to call on a disabled
// Result and more than once.
func (r *Result) Close() error {
	var errs []error
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
		r.Store = nil
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
		r.Storage = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// Enabled reports whether transcripts are being recorded.
func (r *Result) Enabled() bool {
	return r.Recorder != nil
}

// New opens storage and the matching store when transcripts are enabled.
// When disabled it returns an empty Result.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	if !cfg.Transcript.Enabled {
		return &Result{}, nil
	}

	store, err := storage.New(ctx, buildStorageConfig(cfg.Storage))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	transcripts, err := createStore(ctx, store, cfg.Transcript.RetentionDays)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Result{
		Store:    transcripts,
		Recorder: NewRecorder(transcripts),
		Storage:  store,
	}, nil
}

func buildStorageConfig(cfg config.StorageConfig) storage.Config {
	storageCfg := storage.DefaultConfig()
	if cfg.Type != "" {
		storageCfg.Type = cfg.Type
	}
	if cfg.SQLite.Path != "" {
		storageCfg.SQLite.Path = cfg.SQLite.Path
	}
	storageCfg.PostgreSQL.URL = cfg.PostgreSQL.URL
	if cfg.PostgreSQL.MaxConns > 0 {
		storageCfg.PostgreSQL.MaxConns = cfg.PostgreSQL.MaxConns
	}
	storageCfg.MongoDB.URL = cfg.MongoDB.URL
	if cfg.MongoDB.Database != "" {
		storageCfg.MongoDB.Database = cfg.MongoDB.Database
	}
	return storageCfg
}

// createStore creates the Store for the given storage backend.
func createStore(ctx context.Context, store storage.Storage, retentionDays int) (Store, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(store.SQLiteDB(), retentionDays)
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(ctx, store.PostgreSQLPool(), retentionDays)
	case storage.TypeMongoDB:
		return NewMongoDBStore(store.MongoDatabase(), retentionDays)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}
