package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLite allows 999 bound parameters per statement.
const (
	maxSQLiteParams    = 999
	columnsPerEntry    = 7
	maxEntriesPerBatch = maxSQLiteParams / columnsPerEntry
)

// sqliteTimeFormat is fixed-width so that text order is time order.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store for SQLite databases.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewSQLiteStore creates the transcripts table if needed and starts the
// cleanup loop when retention is configured.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			seq INTEGER NOT NULL DEFAULT 0,
			model TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
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
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &SQLiteStore{
		db:            db,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}
	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, store.cleanup)
	}
	return store, nil
}

// Append inserts entries, chunked to stay within the parameter limit.
func (s *SQLiteStore) Append(ctx context.Context, entries []*Entry) error {
	for i := 0; i < len(entries); i += maxEntriesPerBatch {
		end := min(i+maxEntriesPerBatch, len(entries))
		chunk := entries[i:end]

		placeholders := make([]string, len(chunk))
		values := make([]interface{}, 0, len(chunk)*columnsPerEntry)
		for j, e := range chunk {
			placeholders[j] = "(?, ?, ?, ?, ?, ?, ?)"
			values = append(values,
				e.ID,
				e.ConversationID,
				e.Seq,
				e.Model,
				e.Role,
				e.Content,
				e.CreatedAt.UTC().Format(sqliteTimeFormat),
			)
		}

		query := `INSERT OR IGNORE INTO transcripts (id, conversation_id, seq, model, role, content, created_at) VALUES ` +
			strings.Join(placeholders, ",")
		if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("failed to insert transcript batch %d: %w", i/maxEntriesPerBatch, err)
		}
	}
	return nil
}

// Load returns the entries of one conversation in order.
func (s *SQLiteStore) Load(ctx context.Context, conversationID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, seq, model, role, content, created_at
		FROM transcripts WHERE conversation_id = ?
		ORDER BY created_at, seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		var (
			e         Entry
			model     sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.Seq, &model, &e.Role, &e.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		e.Model = model.String
		if e.CreatedAt, err = time.Parse(sqliteTimeFormat, createdAt); err != nil {
			slog.Warn("failed to parse transcript timestamp", "id", e.ID, "error", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcripts: %w", err)
	}
	return entries, nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

func (s *SQLiteStore) cleanup() {
	if s.retentionDays <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays).UTC().Format(sqliteTimeFormat)
	result, err := s.db.Exec("DELETE FROM transcripts WHERE created_at < ?", cutoff)
	if err != nil {
		slog.Error("failed to cleanup old transcripts", "error", err)
		return
	}
	if rowsAffected, err := result.RowsAffected(); err == nil && rowsAffected > 0 {
		slog.Info("cleaned up old transcripts", "deleted", rowsAffected)
	}
}
