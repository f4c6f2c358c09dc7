package capture

import (
	"context"
	"fmt"
	"sync"
)

// SessionOption configures a [Session].
type SessionOption func(*Session)

// WithLevelHook registers fn to receive a normalized RMS level in [0, 1] for
// every fragment that passes through the session. The hook is invoked on the
// device's delivery goroutine and must not block; it exists to feed live
// level meters and is never required for recording to work.
func WithLevelHook(fn func(float64)) SessionOption {
	return func(s *Session) { s.onLevel = fn }
}

// Session wraps a [Device] and enforces the capture lifecycle: Initialize
// acquires the device, Start begins fragment delivery, Pause/Resume end and
// restart capture legs without releasing the device, and Stop ends the
// active leg and flushes the final fragment.
//
// Session is safe for concurrent use. Lifecycle operations serialize on one
// mutex; fragment delivery reads state through a separate lock so a device
// that synchronously drains buffered fragments during StopLeg cannot
// deadlock against the operation that triggered the drain.
type Session struct {
	dev     Device
	onLevel func(float64)

	// opMu serializes lifecycle operations (Initialize/Start/Stop/…).
	// Device calls happen under opMu but never under stateMu.
	opMu sync.Mutex

	// stateMu guards the fields below; deliver takes only this lock.
	stateMu     sync.RWMutex
	initialized bool
	capturing   bool
	sink        func(Fragment)
}

// NewSession creates a Session around dev. The device is not acquired until
// [Session.Initialize] is called.
func NewSession(dev Device, opts ...SessionOption) *Session {
	s := &Session{dev: dev}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize acquires the input device. It is the only session operation
// that may block on an external grant (permission prompt); cancel ctx to
// abandon the attempt. Errors wrap [ErrDeviceUnavailable] when no usable
// input exists.
func (s *Session) Initialize(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.isInitialized() {
		return nil
	}
	if err := s.dev.Open(ctx); err != nil {
		return fmt.Errorf("capture: initialize: %w", err)
	}
	s.setState(true, false)
	return nil
}

// Start begins producing fragments, delivering each one to sink. It returns
// [ErrNotInitialized] if Initialize has not succeeded. Starting an already
// capturing session is a no-op.
func (s *Session) Start(sink func(Fragment)) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.isInitialized() {
		return ErrNotInitialized
	}
	if s.Capturing() {
		return nil
	}
	s.stateMu.Lock()
	s.sink = sink
	s.stateMu.Unlock()

	if err := s.dev.StartLeg(s.deliver); err != nil {
		return fmt.Errorf("capture: start leg: %w", err)
	}
	s.setState(true, true)
	return nil
}

// Stop ends the active capture leg, flushing its final fragment to the sink.
// The device stays acquired; call [Session.Close] to release it.
func (s *Session) Stop() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopLeg()
}

// Pause ends the active capture leg without releasing the device. Fragments
// stop flowing until Resume.
func (s *Session) Pause() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopLeg()
}

// Resume begins a new capture leg after Pause, delivering fragments to the
// sink registered by Start.
func (s *Session) Resume() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.isInitialized() {
		return ErrNotInitialized
	}
	if s.Capturing() {
		return nil
	}
	if err := s.dev.StartLeg(s.deliver); err != nil {
		return fmt.Errorf("capture: resume leg: %w", err)
	}
	s.setState(true, true)
	return nil
}

// RequestBoundary asks the device to finalize the current segment so that
// everything captured so far is flushed to the sink. When the device
// implements [SegmentFlusher] the segment is flushed in place with no loss.
// Otherwise the active leg is stopped and immediately restarted, which
// forces the primitive to finalize its internal encoding state at the cost
// of a short, bounded continuity gap at the boundary.
func (s *Session) RequestBoundary() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.Capturing() {
		return nil
	}
	if fl, ok := s.dev.(SegmentFlusher); ok {
		if err := fl.FlushSegment(); err != nil {
			return fmt.Errorf("capture: flush segment: %w", err)
		}
		return nil
	}
	if err := s.dev.StopLeg(); err != nil {
		return fmt.Errorf("capture: boundary stop leg: %w", err)
	}
	if err := s.dev.StartLeg(s.deliver); err != nil {
		s.setState(true, false)
		return fmt.Errorf("capture: boundary restart leg: %w", err)
	}
	return nil
}

// Close stops any active leg and releases the device. The session cannot be
// reused afterwards.
func (s *Session) Close() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.isInitialized() {
		return nil
	}
	_ = s.stopLeg()
	s.setState(false, false)
	if err := s.dev.Close(); err != nil {
		return fmt.Errorf("capture: close device: %w", err)
	}
	return nil
}

// Capturing reports whether a capture leg is currently active.
func (s *Session) Capturing() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.capturing
}

// Format reports the sample layout of the wrapped device.
func (s *Session) Format() Format {
	return s.dev.Format()
}

// stopLeg ends the active leg. Caller holds opMu.
func (s *Session) stopLeg() error {
	if !s.Capturing() {
		return nil
	}
	// Mark not-capturing before the device call; StopLeg may still drain
	// final fragments through deliver, which only needs the sink.
	s.setState(true, false)
	if err := s.dev.StopLeg(); err != nil {
		return fmt.Errorf("capture: stop leg: %w", err)
	}
	return nil
}

func (s *Session) isInitialized() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.initialized
}

func (s *Session) setState(initialized, capturing bool) {
	s.stateMu.Lock()
	s.initialized = initialized
	s.capturing = capturing
	s.stateMu.Unlock()
}

// deliver forwards a fragment to the registered sink and feeds the level
// hook. It runs on the device's delivery goroutine and takes only stateMu.
func (s *Session) deliver(f Fragment) {
	s.stateMu.RLock()
	sink := s.sink
	level := s.onLevel
	s.stateMu.RUnlock()

	if level != nil {
		level(rmsLevel(f.Data))
	}
	if sink != nil {
		sink(f)
	}
}
