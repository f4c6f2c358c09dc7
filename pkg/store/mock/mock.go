// Package mock provides an in-memory mock implementation of [store.Store]
// for use in unit tests.
//
// The mock is safe for concurrent use. It records call counts, keeps the
// current slot contents inspectable, and can be switched into a failing mode
// via the FailAll field to simulate an unavailable store.
package mock

import (
	"context"
	"sync"

	"github.com/revox-audio/revox/pkg/store"
)

// Compile-time interface assertion.
var _ store.Store = (*Store)(nil)

// Store is a mock implementation of [store.Store] backed by two in-memory
// slots. Set FailAll before use to make every operation return
// [store.ErrUnavailable]; inspect the Call* fields and slot contents after.
type Store struct {
	mu sync.Mutex

	// FailAll makes every operation return [store.ErrUnavailable].
	FailAll bool

	// Chunk is the current chunk slot content (nil when empty).
	Chunk *store.ChunkEntry

	// Recording is the current recording slot content (nil when empty).
	Recording *store.RecordingEntry

	// CallCountPutChunk records how many times PutChunk was called.
	CallCountPutChunk int

	// CallCountPutRecording records how many times PutRecording was called.
	CallCountPutRecording int

	// CallCountClearAll records how many times ClearAll was called.
	CallCountClearAll int
}

// PutChunk implements [store.Store].
func (s *Store) PutChunk(_ context.Context, entry store.ChunkEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountPutChunk++
	if s.FailAll {
		return store.ErrUnavailable
	}
	s.Chunk = &entry
	return nil
}

// PutRecording implements [store.Store].
func (s *Store) PutRecording(_ context.Context, entry store.RecordingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountPutRecording++
	if s.FailAll {
		return store.ErrUnavailable
	}
	s.Recording = &entry
	return nil
}

// LatestChunk implements [store.Store].
func (s *Store) LatestChunk(context.Context) (*store.ChunkEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return nil, store.ErrUnavailable
	}
	if s.Chunk == nil {
		return nil, nil
	}
	cp := *s.Chunk
	return &cp, nil
}

// LatestRecording implements [store.Store].
func (s *Store) LatestRecording(context.Context) (*store.RecordingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return nil, store.ErrUnavailable
	}
	if s.Recording == nil {
		return nil, nil
	}
	cp := *s.Recording
	return &cp, nil
}

// ClearAll implements [store.Store].
func (s *Store) ClearAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClearAll++
	if s.FailAll {
		return store.ErrUnavailable
	}
	s.Chunk = nil
	s.Recording = nil
	return nil
}

// Close implements [store.Store].
func (s *Store) Close() error { return nil }

// Snapshot returns copies of both slot contents for assertions.
func (s *Store) Snapshot() (*store.ChunkEntry, *store.RecordingEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c *store.ChunkEntry
	var r *store.RecordingEntry
	if s.Chunk != nil {
		cp := *s.Chunk
		c = &cp
	}
	if s.Recording != nil {
		cp := *s.Recording
		r = &cp
	}
	return c, r
}
