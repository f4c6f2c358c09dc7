// Package recovery restores a previously persisted full recording after an
// ungraceful session end (crash, kill, power loss).
//
// The manager only ever reads the slot store. Every store failure — missing
// file, unsupported environment, driver error — degrades to "nothing to
// recover"; no error from the persistence layer escapes [Manager.Check].
// Recovering does not clear the slot: an explicit reset (ClearAll) is what
// removes it, so a crash during recovery handling loses nothing.
package recovery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/revox-audio/revox/pkg/store"
)

// ErrNoRecovery is returned by [Manager.Recover] when the recording slot is
// empty or unreadable.
var ErrNoRecovery = errors.New("recovery: no recording to recover")

// Candidate reports whether a recoverable full recording exists. It is
// derived from the recording slot, never stored.
type Candidate struct {
	HasRecovery bool
	Payload     []byte
	ContentType string
	Duration    time.Duration
}

// Snapshot is the full persisted state: the recording slot and the chunk
// slot. After an interruption the chunk entry shows how much of the
// unfinished session survived even when no full recording was assembled.
type Snapshot struct {
	Recording *store.RecordingEntry
	Chunk     *store.ChunkEntry
}

// Manager answers recovery queries against a slot store.
type Manager struct {
	st store.Store
}

// NewManager creates a Manager reading from st. A nil store is allowed and
// behaves as a store with empty slots.
func NewManager(st store.Store) *Manager {
	return &Manager{st: st}
}

// Check reads the recording slot and reports whether a recoverable full
// recording exists. HasRecovery is true iff an entry with a non-empty
// payload is present. Store failures are logged and reported as
// HasRecovery=false.
func (m *Manager) Check(ctx context.Context) Candidate {
	if m.st == nil {
		return Candidate{}
	}
	entry, err := m.st.LatestRecording(ctx)
	if err != nil {
		slog.Warn("recovery: store read failed, recovery disabled", "err", err)
		return Candidate{}
	}
	if entry == nil || len(entry.Data) == 0 {
		return Candidate{}
	}
	return Candidate{
		HasRecovery: true,
		Payload:     entry.Data,
		ContentType: entry.ContentType,
		Duration:    entry.Duration,
	}
}

// Recover re-reads the recording slot and returns its payload. The slot is
// not cleared; the caller clears its own "recovery available" flag after a
// successful recover and uses reset/ClearAll to drop the persisted entry.
func (m *Manager) Recover(ctx context.Context) ([]byte, error) {
	if m.st == nil {
		return nil, ErrNoRecovery
	}
	entry, err := m.st.LatestRecording(ctx)
	if err != nil {
		return nil, ErrNoRecovery
	}
	if entry == nil || len(entry.Data) == 0 {
		return nil, ErrNoRecovery
	}
	return entry.Data, nil
}

// SnapshotSlots reads both slots concurrently and returns whatever is
// present. Slots that fail to read come back nil.
func (m *Manager) SnapshotSlots(ctx context.Context) Snapshot {
	if m.st == nil {
		return Snapshot{}
	}

	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := m.st.LatestRecording(gctx)
		if err == nil {
			snap.Recording = rec
		}
		return nil
	})
	g.Go(func() error {
		ch, err := m.st.LatestChunk(gctx)
		if err == nil {
			snap.Chunk = ch
		}
		return nil
	})
	_ = g.Wait()
	return snap
}
