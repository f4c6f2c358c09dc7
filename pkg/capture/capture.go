// Package capture defines the interfaces and types for acquiring raw audio
// from an input device and shaping it into the fragment stream consumed by
// the chunk assembler.
//
// The two primary abstractions are:
//
//   - [Device] — the platform capture primitive: it owns the OS-level input
//     handle and produces [Fragment] values for the duration of a capture leg.
//   - [Session] — a stateful wrapper around one Device that enforces the
//     initialize/start/pause/resume/stop contract and fans fragments out to
//     a single sink.
//
// Implementations of [Device] are provided by adapter packages (e.g.
// capture/portaudio for real microphones, capture/mock for tests). The
// interfaces are intentionally narrow so the recorder stays decoupled from
// the underlying audio backend.
package capture

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for device acquisition and session misuse.
var (
	// ErrDeviceUnavailable is returned when no input device exists or
	// permission to use it was denied. Fatal to Initialize/Start; the
	// session remains unusable until a later Initialize succeeds.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")

	// ErrNotInitialized is returned when an operation requires a prior
	// successful Initialize.
	ErrNotInitialized = errors.New("capture: session not initialized")
)

// Format describes the raw sample layout a [Device] produces. Fragments are
// little-endian signed PCM; BitDepth is currently always 16.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// BytesPerSecond returns the raw PCM data rate for the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitDepth / 8
}

// Fragment is one delivery of raw samples from a capture leg. Fragments
// arrive at whatever cadence the underlying primitive uses (commonly around
// one per second or faster); consumers must not assume a fixed size or a
// fixed interval.
type Fragment struct {
	// Data holds raw little-endian PCM samples.
	Data []byte

	// Timestamp marks when the fragment was captured, relative to the
	// start of the current capture leg.
	Timestamp time.Duration
}

// Device is the platform audio-capture primitive. A Device is opened once,
// then runs one capture leg at a time; each leg delivers fragments to the
// sink passed to StartLeg until StopLeg is called.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Open acquires the input device. It blocks until the device is
	// granted or the context is cancelled, and returns an error wrapping
	// [ErrDeviceUnavailable] when no device exists or access is denied.
	Open(ctx context.Context) error

	// StartLeg begins a capture leg. Fragments are delivered to sink from
	// an internal goroutine until StopLeg is called. Only one leg may be
	// active at a time.
	StartLeg(sink func(Fragment)) error

	// StopLeg ends the active leg, flushing any final buffered fragment
	// to the sink before returning. Calling StopLeg with no active leg is
	// a no-op.
	StopLeg() error

	// Close releases the device handle. The Device cannot be reused after
	// Close.
	Close() error

	// Format reports the sample layout of produced fragments.
	Format() Format
}

// SegmentFlusher is an optional capability of a [Device]: flushing the
// current segment in place, without ending the capture leg. Devices that
// keep no internal encoder state (raw PCM capture) can implement this as a
// cheap flush; [Session.RequestBoundary] prefers it over the stop/restart
// fallback because it produces no continuity gap.
type SegmentFlusher interface {
	FlushSegment() error
}
