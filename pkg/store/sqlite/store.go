package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/revox-audio/revox/pkg/store"
)

// Compile-time interface assertion.
var _ store.Store = (*Store)(nil)

// Store is the SQLite-backed slot store. All operations are safe for
// concurrent use; database/sql serializes access to the single connection
// the driver hands out per statement.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and bootstraps the
// schema. Use ":memory:" for an in-memory store in tests. Failures wrap
// [store.ErrUnavailable] so callers can degrade recovery features without
// special-casing driver errors.
func Open(ctx context.Context, path string) (*Store, error) {
	// busy_timeout covers the recovery reader and the async writer
	// touching the file from separate connections.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", store.ErrUnavailable, path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %q: %v", store.ErrUnavailable, path, err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return &Store{db: db}, nil
}

// PutChunk implements [store.Store]. The UPSERT replaces the slot's single
// row atomically — last write wins, never append.
func (s *Store) PutChunk(ctx context.Context, entry store.ChunkEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slots (id, data, chunk_index, timestamp, duration_ns)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			data = excluded.data,
			chunk_index = excluded.chunk_index,
			timestamp = excluded.timestamp,
			duration_ns = excluded.duration_ns`,
		store.SlotChunk, entry.Data, entry.Index,
		entry.Timestamp.UnixNano(), entry.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: put chunk: %w", err)
	}
	return nil
}

// PutRecording implements [store.Store].
func (s *Store) PutRecording(ctx context.Context, entry store.RecordingEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slots (id, data, session_id, content_type, timestamp, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			data = excluded.data,
			session_id = excluded.session_id,
			content_type = excluded.content_type,
			timestamp = excluded.timestamp,
			duration_ns = excluded.duration_ns`,
		store.SlotRecording, entry.Data, entry.SessionID, entry.ContentType,
		entry.Timestamp.UnixNano(), entry.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: put recording: %w", err)
	}
	return nil
}

// LatestChunk implements [store.Store]. Returns nil when the slot is empty.
func (s *Store) LatestChunk(ctx context.Context) (*store.ChunkEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT data, chunk_index, timestamp, duration_ns
		FROM slots WHERE id = ?`, store.SlotChunk)

	var entry store.ChunkEntry
	var ts, dur int64
	if err := row.Scan(&entry.Data, &entry.Index, &ts, &dur); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: latest chunk: %w", err)
	}
	entry.Timestamp = time.Unix(0, ts)
	entry.Duration = time.Duration(dur)
	return &entry, nil
}

// LatestRecording implements [store.Store]. Returns nil when the slot is empty.
func (s *Store) LatestRecording(ctx context.Context) (*store.RecordingEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT data, session_id, content_type, timestamp, duration_ns
		FROM slots WHERE id = ?`, store.SlotRecording)

	var entry store.RecordingEntry
	var ts, dur int64
	if err := row.Scan(&entry.Data, &entry.SessionID, &entry.ContentType, &ts, &dur); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: latest recording: %w", err)
	}
	entry.Timestamp = time.Unix(0, ts)
	entry.Duration = time.Duration(dur)
	return &entry, nil
}

// ClearAll implements [store.Store]. Empties both slots in one statement.
func (s *Store) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM slots`); err != nil {
		return fmt.Errorf("sqlite: clear all: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite: close: %w", err)
	}
	return nil
}
