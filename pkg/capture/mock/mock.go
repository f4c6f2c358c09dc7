// Package mock provides in-memory mock implementations of the
// [capture.Device] interface for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts, and they expose exported fields the
// test can set to control return values. Fragments are injected by the test
// via [Device.EmitFragment].
//
// Typical usage:
//
//	dev := &mock.Device{Format_: capture.Format{SampleRate: 16000, Channels: 1, BitDepth: 16}}
//	sess := capture.NewSession(dev)
//	_ = sess.Initialize(ctx)
//	_ = sess.Start(sink)
//	dev.EmitFragment([]byte{0x01, 0x00})
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/revox-audio/revox/pkg/capture"
)

// Compile-time interface assertions.
var (
	_ capture.Device         = (*Device)(nil)
	_ capture.Device         = (*FlushDevice)(nil)
	_ capture.SegmentFlusher = (*FlushDevice)(nil)
)

// Device is a mock implementation of [capture.Device] whose boundary path is
// the stop/restart fallback (it does not implement [capture.SegmentFlusher]).
// Set the exported error fields before use; inspect the Call* fields after.
type Device struct {
	mu sync.Mutex

	// Format_ is returned by [Device.Format].
	Format_ capture.Format

	// OpenError is returned by [Device.Open].
	OpenError error

	// StartLegError is returned by [Device.StartLeg].
	StartLegError error

	// StopLegError is returned by [Device.StopLeg].
	StopLegError error

	// CloseError is returned by [Device.Close].
	CloseError error

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// CallCountStartLeg records how many times StartLeg was called.
	CallCountStartLeg int

	// CallCountStopLeg records how many times StopLeg was called.
	CallCountStopLeg int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	sink      func(capture.Fragment)
	legActive bool
	legStart  time.Time
}

// Open implements [capture.Device]. Returns OpenError.
func (d *Device) Open(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountOpen++
	return d.OpenError
}

// StartLeg implements [capture.Device]. The sink is retained for
// [Device.EmitFragment]. Returns StartLegError.
func (d *Device) StartLeg(sink func(capture.Fragment)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStartLeg++
	if d.StartLegError != nil {
		return d.StartLegError
	}
	d.sink = sink
	d.legActive = true
	d.legStart = time.Now()
	return nil
}

// StopLeg implements [capture.Device]. Returns StopLegError.
func (d *Device) StopLeg() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStopLeg++
	d.legActive = false
	return d.StopLegError
}

// Close implements [capture.Device]. Returns CloseError.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	d.legActive = false
	return d.CloseError
}

// Format implements [capture.Device]. Returns Format_, defaulting to 16 kHz
// mono 16-bit when unset.
func (d *Device) Format() capture.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Format_ == (capture.Format{}) {
		return capture.Format{SampleRate: 16000, Channels: 1, BitDepth: 16}
	}
	return d.Format_
}

// LegActive reports whether a capture leg is currently running.
func (d *Device) LegActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.legActive
}

// EmitFragment delivers data to the sink registered by StartLeg, simulating
// the device's delivery goroutine. It is a no-op when no leg is active.
func (d *Device) EmitFragment(data []byte) {
	d.mu.Lock()
	sink := d.sink
	active := d.legActive
	ts := time.Since(d.legStart)
	d.mu.Unlock()

	if !active || sink == nil {
		return
	}
	sink(capture.Fragment{Data: data, Timestamp: ts})
}

// FlushDevice is a [Device] that additionally implements
// [capture.SegmentFlusher], exercising the gap-free boundary path.
type FlushDevice struct {
	Device

	// FlushError is returned by [FlushDevice.FlushSegment].
	FlushError error

	// CallCountFlush records how many times FlushSegment was called.
	CallCountFlush int

	flushMu sync.Mutex
}

// FlushSegment implements [capture.SegmentFlusher]. Returns FlushError.
func (d *FlushDevice) FlushSegment() error {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()
	d.CallCountFlush++
	return d.FlushError
}
