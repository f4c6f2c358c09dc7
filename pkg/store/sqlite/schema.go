// Package sqlite provides a file-backed implementation of [store.Store]
// using modernc.org/sqlite (pure Go, no cgo).
//
// Both slots live in a single `slots` table keyed by slot id. A put is one
// UPSERT statement, which gives the clear-then-insert replace semantics of a
// slot in a single atomic step. The schema is created by [Migrate], an
// idempotent bootstrap that runs exactly once inside [Open] — write paths
// never re-check for missing structure.
//
// Usage:
//
//	st, err := sqlite.Open(ctx, "revox.db")
//	if err != nil { … }
//	defer st.Close()
//
//	_ = st.PutChunk(ctx, entry)
//	rec, _ := st.LatestRecording(ctx)
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const ddlSlots = `
CREATE TABLE IF NOT EXISTS slots (
    id           TEXT     PRIMARY KEY,
    data         BLOB     NOT NULL,
    chunk_index  INTEGER  NOT NULL DEFAULT 0,
    session_id   TEXT     NOT NULL DEFAULT '',
    content_type TEXT     NOT NULL DEFAULT '',
    timestamp    INTEGER  NOT NULL,
    duration_ns  INTEGER  NOT NULL DEFAULT 0
);
`

// Migrate creates the slot table if it does not exist. It is idempotent and
// safe to call on every open.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, ddlSlots); err != nil {
		return fmt.Errorf("sqlite migrate: %w", err)
	}
	return nil
}
