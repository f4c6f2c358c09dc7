// Package store defines the interface and entry types for the local durable
// slot store that backs crash recovery.
//
// The store holds exactly two overwritable slots — the most recent finalized
// chunk and the most recent full recording. Every write atomically replaces
// the prior value of its slot; there is no history and no append. The chunk
// assembler is the only writer, the recovery manager the only reader, so the
// replace semantics are all the coordination the two need.
//
// Backends are provided by adapter packages (store/sqlite for the real
// file-backed store, store/mock for tests).
package store

import (
	"context"
	"errors"
	"time"
)

// Slot identifiers. Each names a single-entry, overwrite-only persisted value.
const (
	SlotChunk     = "latest_chunk"
	SlotRecording = "latest_recording"
)

// ErrUnavailable indicates the durable store is missing or failed to open.
// It is never fatal to recording: callers degrade recovery features silently
// and continue.
var ErrUnavailable = errors.New("store: unavailable")

// ChunkEntry is the persisted form of the most recent finalized chunk.
type ChunkEntry struct {
	// Index is the chunk's position within its session, starting at 0.
	Index int

	// Data is the self-contained encoded chunk payload.
	Data []byte

	// Timestamp is when the chunk was finalized.
	Timestamp time.Time

	// Duration is the audible length of the chunk.
	Duration time.Duration
}

// RecordingEntry is the persisted form of the most recent full recording.
type RecordingEntry struct {
	// SessionID identifies the recording session that produced this entry.
	SessionID string

	// Data is the complete, self-describing recording payload.
	Data []byte

	// ContentType declares the MIME type of Data.
	ContentType string

	// Timestamp is when the recording was assembled.
	Timestamp time.Time

	// Duration is the total audible length.
	Duration time.Duration
}

// Store is the durable two-slot persistence area. Implementations must make
// every Put an atomic replace of the slot's single entry, and must be safe
// for concurrent use.
type Store interface {
	// PutChunk replaces the chunk slot with entry.
	PutChunk(ctx context.Context, entry ChunkEntry) error

	// PutRecording replaces the recording slot with entry.
	PutRecording(ctx context.Context, entry RecordingEntry) error

	// LatestChunk returns the chunk slot's entry, or nil when the slot is
	// empty.
	LatestChunk(ctx context.Context) (*ChunkEntry, error)

	// LatestRecording returns the recording slot's entry, or nil when the
	// slot is empty.
	LatestRecording(ctx context.Context) (*RecordingEntry, error)

	// ClearAll empties both slots.
	ClearAll(ctx context.Context) error

	// Close releases the underlying storage.
	Close() error
}
