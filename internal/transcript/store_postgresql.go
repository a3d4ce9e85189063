package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLStore implements Store for PostgreSQL databases.
type PostgreSQLStore struct {
	pool          *pgxpool.Pool
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewPostgreSQLStore creates the transcripts table if needed and starts the
// cleanup loop when retention is configured.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool, retentionDays int) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, errors.New("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transcripts (
			id UUID PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			seq INTEGER NOT NULL DEFAULT 0,
			model TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcripts table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_transcripts_conversation ON transcripts(conversation_id, created_at, seq)",
		"CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts(created_at)",
	}
	for _, idx := range indexes {
		if _, err := pool.Exec(ctx, idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &PostgreSQLStore{
		pool:          pool,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}
	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, store.cleanup)
	}
	return store, nil
}

// Append inserts all entries in one batch round trip.
func (s *PostgreSQLStore) Append(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO transcripts (id, conversation_id, seq, model, role, content, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING
		`, e.ID, e.ConversationID, e.Seq, e.Model, e.Role, e.Content, e.CreatedAt.UTC())
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert transcripts: %w", err)
	}
	return nil
}

// Load returns the entries of one conversation in order.
func (s *PostgreSQLStore) Load(ctx context.Context, conversationID string) ([]*Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, conversation_id, seq, COALESCE(model, ''), role, content, created_at
		FROM transcripts WHERE conversation_id = $1
		ORDER BY created_at, seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.Seq, &e.Model, &e.Role, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcripts: %w", err)
	}
	return entries, nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *PostgreSQLStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

func (s *PostgreSQLStore) cleanup() {
	if s.retentionDays <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	result, err := s.pool.Exec(ctx, "DELETE FROM transcripts WHERE created_at < $1", cutoff)
	if err != nil {
		slog.Error("failed to cleanup old transcripts", "error", err)
		return
	}
	if n := result.RowsAffected(); n > 0 {
		slog.Info("cleaned up old transcripts", "deleted", n)
	}
}
