// Package recorder owns the Idle/Recording/Paused/Stopped lifecycle of a
// recording session and wires the capture session, the chunk assembler and
// the persistence writer together.
//
// Exactly one session may be active at a time. Transitions attempted from a
// state that does not allow them are no-ops: they return
// [ErrInvalidState] and leave all state unchanged. Persistence faults never
// abort recording — a recorder built without a store (or with one that
// fails) records normally with recovery features disabled.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/revox-audio/revox/internal/observe"
	"github.com/revox-audio/revox/pkg/capture"
	"github.com/revox-audio/revox/pkg/chunker"
	"github.com/revox-audio/revox/pkg/store"
)

// State is the recorder lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StateStopped
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrInvalidState is returned by lifecycle operations invoked from a state
// that does not allow them. The operation is a no-op.
var ErrInvalidState = errors.New("recorder: operation not valid in current state")

// SessionInfo holds metadata about the active (or last) session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// StartedAt is when the session was started.
	StartedAt time.Time

	// ChunkDuration is the rotation cadence in effect.
	ChunkDuration time.Duration
}

// Config holds all dependencies for a [Recorder].
type Config struct {
	// Device is the capture primitive. Required.
	Device capture.Device

	// Store receives chunk and recording writes. Optional; nil disables
	// persistence (recording still works, recovery does not).
	Store store.Store

	// ChunkDuration is the rotation cadence. Default: 10s.
	ChunkDuration time.Duration

	// OnChunk is invoked for every finalized chunk. Optional.
	OnChunk func(chunker.Chunk)

	// OnLevel receives a normalized RMS level per fragment. Optional.
	OnLevel func(float64)

	// Metrics receives instrumentation. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Recorder is the recording state machine. All exported methods are safe for
// concurrent use.
type Recorder struct {
	cfg     Config
	metrics *observe.Metrics

	// gen is the session generation counter. Every persistence write is
	// tagged with the generation current at issue time; the writer
	// discards writes whose generation no longer matches, so work queued
	// before a reset can never repopulate a cleared slot.
	gen     atomic.Int64
	persist *persister

	mu      sync.Mutex
	state   State
	session *capture.Session
	asm     *chunker.Assembler
	info    SessionInfo
}

// New creates a Recorder with the given dependencies.
func New(cfg Config) (*Recorder, error) {
	if cfg.Device == nil {
		return nil, errors.New("recorder: device is required")
	}
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = 10 * time.Second
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	r := &Recorder{
		cfg:     cfg,
		metrics: cfg.Metrics,
	}
	r.persist = newPersister(cfg.Store, &r.gen, cfg.Metrics)
	return r, nil
}

// Start begins a new session: acquires the device, resets the chunk index
// by creating a fresh assembler, and arms the rotation timer.
//
// Valid from Idle or Stopped. Device-acquisition failures abort the start
// and leave the state unchanged; they wrap [capture.ErrDeviceUnavailable].
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle && r.state != StateStopped {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, r.state)
	}

	// The generation advances only on Reset. A new session must not
	// invalidate the previous session's still-queued writes — its
	// recording write is fire-and-forget and may be in flight here. The
	// FIFO queue already guarantees this session's writes land last.
	gen := r.gen.Load()

	var opts []capture.SessionOption
	if r.cfg.OnLevel != nil {
		opts = append(opts, capture.WithLevelHook(r.cfg.OnLevel))
	}
	sess := capture.NewSession(r.cfg.Device, opts...)
	if err := sess.Initialize(ctx); err != nil {
		return fmt.Errorf("recorder: start: %w", err)
	}

	sessionID := uuid.NewString()
	enc := capture.NewWAVEncoder(sess.Format())
	asm, err := chunker.New(chunker.Config{
		SessionID:     sessionID,
		ChunkDuration: r.cfg.ChunkDuration,
		Encoder:       enc,
		OnChunk:       r.chunkHandler(gen),
		Boundary:      sess.RequestBoundary,
		OnDrop: func(error) {
			r.metrics.ChunksDropped.Add(context.Background(), 1)
		},
	})
	if err != nil {
		_ = sess.Close()
		return fmt.Errorf("recorder: start: %w", err)
	}

	if err := sess.Start(asm.Append); err != nil {
		_ = sess.Close()
		return fmt.Errorf("recorder: start: %w", err)
	}
	asm.Arm()

	r.session = sess
	r.asm = asm
	r.state = StateRecording
	r.info = SessionInfo{
		SessionID:     sessionID,
		StartedAt:     time.Now().UTC(),
		ChunkDuration: r.cfg.ChunkDuration,
	}
	r.metrics.ActiveSessions.Add(ctx, 1)

	slog.Info("recording started",
		"session_id", sessionID,
		"chunk_duration", r.cfg.ChunkDuration,
		"persistence", r.cfg.Store != nil,
	)
	return nil
}

// Pause finalizes the in-flight chunk and halts the rotation timer without
// releasing the device. Valid from Recording.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording {
		return fmt.Errorf("%w: pause from %s", ErrInvalidState, r.state)
	}
	// End the capture leg first so its final fragments flush into the
	// assembler before the in-flight chunk is finalized.
	if err := r.session.Pause(); err != nil {
		slog.Warn("recorder: pause capture leg", "session_id", r.info.SessionID, "err", err)
	}
	r.asm.Pause()
	r.state = StatePaused

	slog.Info("recording paused", "session_id", r.info.SessionID, "chunks", r.asm.ChunkCount())
	return nil
}

// Resume begins a new capture leg and rearms the rotation timer. The chunk
// index counter continues where it left off. Valid from Paused.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidState, r.state)
	}
	if err := r.session.Resume(); err != nil {
		return fmt.Errorf("recorder: resume: %w", err)
	}
	r.asm.Arm()
	r.state = StateRecording

	slog.Info("recording resumed", "session_id", r.info.SessionID)
	return nil
}

// Stop finalizes the last in-flight chunk, assembles the full recording,
// persists it, and releases the device. Valid from Recording or Paused.
//
// The recording write is fire-and-forget: Stop returns without waiting for
// the store. Use [Recorder.Close] to drain pending writes on shutdown.
func (r *Recorder) Stop(ctx context.Context) (chunker.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording && r.state != StatePaused {
		return chunker.Recording{}, fmt.Errorf("%w: stop from %s", ErrInvalidState, r.state)
	}

	gen := r.gen.Load()

	if err := r.session.Stop(); err != nil {
		slog.Warn("recorder: stop capture leg", "session_id", r.info.SessionID, "err", err)
	}
	rec, err := r.asm.Stop()
	if cerr := r.session.Close(); cerr != nil {
		slog.Warn("recorder: release device", "session_id", r.info.SessionID, "err", cerr)
	}

	r.state = StateStopped
	r.metrics.ActiveSessions.Add(ctx, -1)

	if err != nil {
		return chunker.Recording{}, fmt.Errorf("recorder: stop: %w", err)
	}

	r.persist.enqueueRecording(gen, store.RecordingEntry{
		SessionID:   rec.SessionID,
		Data:        rec.Data,
		ContentType: rec.ContentType,
		Timestamp:   time.Now().UTC(),
		Duration:    rec.Duration,
	})

	slog.Info("recording stopped",
		"session_id", rec.SessionID,
		"chunks", rec.Chunks,
		"duration", rec.Duration,
		"bytes", len(rec.Data),
	)
	return rec, nil
}

// Reset discards all in-memory chunks, clears both persisted slots, and
// releases the device if held. Valid from any state; always transitions to
// Idle.
func (r *Recorder) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Bump the generation first: persistence writes already queued for
	// the old session become stale and are discarded by the writer, so
	// they cannot repopulate a slot after the clear below.
	r.gen.Add(1)

	if r.asm != nil {
		r.asm.Cancel()
		r.asm = nil
	}
	if r.session != nil {
		if err := r.session.Close(); err != nil {
			slog.Warn("recorder: reset release device", "session_id", r.info.SessionID, "err", err)
		}
		r.session = nil
	}
	if r.state == StateRecording || r.state == StatePaused {
		r.metrics.ActiveSessions.Add(ctx, -1)
	}

	r.persist.enqueueClear()

	sessionID := r.info.SessionID
	r.state = StateIdle
	r.info = SessionInfo{}

	slog.Info("recorder reset", "session_id", sessionID)
	return nil
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Info returns metadata about the active session. Zero value when Idle.
func (r *Recorder) Info() SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info
}

// Flush blocks until all persistence writes enqueued so far have completed.
// Intended for graceful shutdown and tests; normal operation never waits on
// the store.
func (r *Recorder) Flush() {
	r.persist.flush()
}

// Close releases the device if still held and shuts down the persistence
// writer after draining pending writes.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.session != nil {
		_ = r.session.Close()
		r.session = nil
	}
	if r.asm != nil {
		r.asm.Cancel()
		r.asm = nil
	}
	r.mu.Unlock()

	r.persist.close()
	return nil
}

// chunkHandler returns the completion callback for one session generation.
// Explicit method dispatch against the recorder plus a generation argument —
// no state is captured that could go stale across pause/resume/reset.
func (r *Recorder) chunkHandler(gen int64) func(chunker.Chunk) {
	return func(c chunker.Chunk) {
		r.metrics.RecordChunk(context.Background(), c.Duration.Seconds())
		if r.cfg.OnChunk != nil {
			r.cfg.OnChunk(c)
		}
		r.persist.enqueueChunk(gen, store.ChunkEntry{
			Index:     c.Index,
			Data:      c.Data,
			Timestamp: c.Timestamp,
			Duration:  c.Duration,
		})
	}
}
