// Package chunker accumulates raw capture fragments and produces finalized,
// independently decodable chunks at a caller-specified cadence, independent
// of the fragment cadence of the underlying capture primitive.
//
// A rotation timer is armed for the configured chunk duration whenever
// capture is active. On each fire the in-flight buffer is drained into a
// chunk at the next index (emission is skipped when the buffer is empty),
// the completion callback runs, a segment boundary is requested from the
// capture session so the primitive finalizes everything delivered so far,
// and the timer is rearmed. Chunk indices are strictly increasing from 0
// within a session, with no gaps and no repeats.
//
// On stop the assembler folds the final partial chunk in, then concatenates
// every completed chunk's audio, in index order, into one self-describing
// full recording buffer.
package chunker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/revox-audio/revox/pkg/capture"
)

// Chunk is one finalized segment of captured audio, produced at a rotation
// boundary or at pause/stop. Data is a self-contained encoded payload.
type Chunk struct {
	Index     int
	Data      []byte
	Timestamp time.Time
	Duration  time.Duration
}

// Recording is the ordered concatenation of all of a session's chunk audio,
// assembled at stop time into a single self-describing buffer.
type Recording struct {
	SessionID   string
	Data        []byte
	ContentType string
	Duration    time.Duration
	Chunks      int
}

// Config holds the dependencies and tuning for an [Assembler].
type Config struct {
	// SessionID tags the assembled recording.
	SessionID string

	// ChunkDuration is the rotation cadence. Must be positive. Smaller
	// values increase recovery granularity and persistence write
	// frequency; larger values reduce the number of segment boundaries.
	ChunkDuration time.Duration

	// Encoder wraps drained PCM into self-contained chunk payloads and
	// the final recording buffer. Required.
	Encoder capture.Encoder

	// OnChunk is invoked for every finalized chunk, in index order. It is
	// never invoked concurrently with itself. Optional.
	OnChunk func(Chunk)

	// Boundary requests a segment boundary from the capture session after
	// each rotation finalize. Failures are logged, not fatal. Optional.
	Boundary func() error

	// OnDrop is invoked when a chunk is dropped by a finalize failure.
	// Optional.
	OnDrop func(err error)
}

// Assembler owns the in-flight fragment buffer, the chunk index counter and
// the rotation timer for one recording session. It is not reusable across
// sessions; the recorder creates a fresh Assembler on every start.
//
// Assembler is safe for concurrent use.
type Assembler struct {
	cfg Config

	mu          sync.Mutex
	buf         []byte
	pcm         [][]byte // completed chunk audio, index order
	nextIndex   int
	total       time.Duration
	activeSince time.Time
	timer       *time.Timer
	armed       bool
	stopped     bool
	final       *Recording
}

// New creates an Assembler. The rotation timer is not armed until
// [Assembler.Arm] is called.
func New(cfg Config) (*Assembler, error) {
	if cfg.ChunkDuration <= 0 {
		return nil, errors.New("chunker: chunk duration must be positive")
	}
	if cfg.Encoder == nil {
		return nil, errors.New("chunker: encoder is required")
	}
	return &Assembler{cfg: cfg}, nil
}

// Append adds a raw fragment to the in-flight buffer. Fragments arriving
// after Stop or Cancel are discarded.
func (a *Assembler) Append(f capture.Fragment) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.buf = append(a.buf, f.Data...)
}

// Arm starts (or restarts, after Pause) the rotation timer.
func (a *Assembler) Arm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped || a.armed {
		return
	}
	a.armed = true
	a.activeSince = time.Now()
	a.timer = time.AfterFunc(a.cfg.ChunkDuration, a.rotate)
}

// Pause cancels the rotation timer and finalizes the in-flight chunk. No
// segment boundary is requested; the capture leg is already being ended by
// the caller. The index counter is preserved across pause/resume.
func (a *Assembler) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped || !a.armed {
		return
	}
	a.armed = false
	a.timer.Stop()
	a.finalizeLocked()
}

// Stop cancels the rotation timer, finalizes the last in-flight chunk, and
// builds the full recording from every completed chunk in index order.
// Calling Stop again returns the already-assembled recording without any
// further finalization.
func (a *Assembler) Stop() (Recording, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		if a.final == nil {
			return Recording{}, errors.New("chunker: assembler cancelled")
		}
		return *a.final, nil
	}
	if a.armed {
		a.armed = false
		a.timer.Stop()
	}
	a.finalizeLocked()
	a.stopped = true

	var size int
	for _, p := range a.pcm {
		size += len(p)
	}
	joined := make([]byte, 0, size)
	for _, p := range a.pcm {
		joined = append(joined, p...)
	}
	data, err := a.cfg.Encoder.Encode(joined)
	if err != nil {
		return Recording{}, fmt.Errorf("chunker: assemble recording: %w", err)
	}
	a.final = &Recording{
		SessionID:   a.cfg.SessionID,
		Data:        data,
		ContentType: a.cfg.Encoder.ContentType(),
		Duration:    a.total,
		Chunks:      len(a.pcm),
	}
	return *a.final, nil
}

// Cancel discards all buffered and completed audio and disarms the timer.
// Used on reset; the assembler is unusable afterwards.
func (a *Assembler) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.armed {
		a.armed = false
		a.timer.Stop()
	}
	a.stopped = true
	a.buf = nil
	a.pcm = nil
}

// ChunkCount returns the number of chunks finalized so far.
func (a *Assembler) ChunkCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nextIndex
}

// rotate is the timer callback: finalize, request a segment boundary, rearm.
// The boundary call happens outside the lock because it reaches back into
// the capture session, which may synchronously flush fragments to Append.
func (a *Assembler) rotate() {
	a.mu.Lock()
	if a.stopped || !a.armed {
		a.mu.Unlock()
		return
	}
	a.finalizeLocked()
	a.timer = time.AfterFunc(a.cfg.ChunkDuration, a.rotate)
	boundary := a.cfg.Boundary
	a.mu.Unlock()

	if boundary != nil {
		if err := boundary(); err != nil {
			slog.Warn("chunker: segment boundary request failed", "err", err)
		}
	}
}

// finalizeLocked drains the buffer into a chunk at the next index and
// invokes the completion callback. Emission is skipped when the buffer is
// empty. An encode failure drops the affected chunk — the error is logged
// and recording continues. Caller holds a.mu.
func (a *Assembler) finalizeLocked() {
	now := time.Now()
	dur := now.Sub(a.activeSince)
	a.activeSince = now

	if len(a.buf) == 0 {
		return
	}
	pcm := a.buf
	a.buf = nil

	data, err := a.cfg.Encoder.Encode(pcm)
	if err != nil {
		slog.Error("chunker: chunk finalize failed, dropping chunk",
			"index", a.nextIndex, "bytes", len(pcm), "err", err)
		if a.cfg.OnDrop != nil {
			a.cfg.OnDrop(err)
		}
		return
	}

	chunk := Chunk{
		Index:     a.nextIndex,
		Data:      data,
		Timestamp: now,
		Duration:  dur,
	}
	a.nextIndex++
	a.pcm = append(a.pcm, pcm)
	a.total += dur

	if a.cfg.OnChunk != nil {
		a.cfg.OnChunk(chunk)
	}
}
