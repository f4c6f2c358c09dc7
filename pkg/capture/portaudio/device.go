// Package portaudio provides a [capture.Device] implementation backed by the
// PortAudio library via gordonklaus/portaudio. It captures 16-bit PCM from
// the default system input device.
//
// Because the device produces raw PCM (no container state accumulates inside
// the stream), it implements [capture.SegmentFlusher]: segment boundaries
// are free and recording has no continuity gaps at chunk rotations.
//
// The PortAudio C library must be installed on the host system; the binding
// uses cgo.
package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/revox-audio/revox/pkg/capture"
)

// Compile-time interface assertions.
var (
	_ capture.Device         = (*Device)(nil)
	_ capture.SegmentFlusher = (*Device)(nil)
)

// defaultFramesPerBuffer controls the callback cadence. 1024 frames at
// 44.1 kHz is roughly 23 ms per fragment.
const defaultFramesPerBuffer = 1024

// Config holds the stream parameters for a PortAudio [Device].
type Config struct {
	// SampleRate in Hz. Default: 44100.
	SampleRate int

	// Channels is the input channel count. Default: 1.
	Channels int

	// FramesPerBuffer is the PortAudio callback granularity.
	// Default: 1024.
	FramesPerBuffer int
}

// Device captures audio from the default system input via PortAudio.
// Device is safe for concurrent use.
type Device struct {
	cfg Config

	mu       sync.Mutex
	stream   *portaudio.Stream
	opened   bool
	sink     func(capture.Fragment)
	legStart time.Time
}

// New creates a PortAudio Device with the given config. The device is not
// acquired until [Device.Open].
func New(cfg Config) *Device {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = defaultFramesPerBuffer
	}
	return &Device{cfg: cfg}
}

// Open initialises PortAudio and opens the default input stream. Failures
// (no input device, host API error) wrap [capture.ErrDeviceUnavailable].
func (d *Device) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opened {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: initialize: %v", capture.ErrDeviceUnavailable, err)
	}
	stream, err := portaudio.OpenDefaultStream(
		d.cfg.Channels, 0, float64(d.cfg.SampleRate), d.cfg.FramesPerBuffer,
		d.onSamples,
	)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: open default stream: %v", capture.ErrDeviceUnavailable, err)
	}
	d.stream = stream
	d.opened = true
	return nil
}

// StartLeg begins a capture leg: samples flow to sink until StopLeg.
func (d *Device) StartLeg(sink func(capture.Fragment)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.opened {
		return capture.ErrNotInitialized
	}
	if d.sink != nil {
		return nil
	}
	d.sink = sink
	d.legStart = time.Now()
	if err := d.stream.Start(); err != nil {
		d.sink = nil
		return fmt.Errorf("portaudio: start stream: %w", err)
	}
	return nil
}

// StopLeg ends the active leg. PortAudio's Stop drains buffered samples
// through the callback before returning, which is the final-fragment flush.
func (d *Device) StopLeg() error {
	d.mu.Lock()
	if d.sink == nil {
		d.mu.Unlock()
		return nil
	}
	stream := d.stream
	d.mu.Unlock()

	// Stop outside the lock: the drain invokes onSamples, which locks.
	if err := stream.Stop(); err != nil {
		return fmt.Errorf("portaudio: stop stream: %w", err)
	}

	d.mu.Lock()
	d.sink = nil
	d.mu.Unlock()
	return nil
}

// FlushSegment implements [capture.SegmentFlusher]. Raw PCM capture holds no
// container state, so everything delivered so far already forms a complete
// segment and there is nothing to flush.
func (d *Device) FlushSegment() error {
	return nil
}

// Close releases the stream and the PortAudio host API.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.opened {
		return nil
	}
	d.opened = false
	d.sink = nil
	if err := d.stream.Close(); err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("portaudio: close stream: %w", err)
	}
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("portaudio: terminate: %w", err)
	}
	return nil
}

// Format implements [capture.Device].
func (d *Device) Format() capture.Format {
	return capture.Format{
		SampleRate: d.cfg.SampleRate,
		Channels:   d.cfg.Channels,
		BitDepth:   16,
	}
}

// onSamples is the PortAudio stream callback. It runs on the audio thread;
// it copies the buffer out and hands it to the sink as one fragment.
func (d *Device) onSamples(in []int16) {
	d.mu.Lock()
	sink := d.sink
	legStart := d.legStart
	d.mu.Unlock()

	if sink == nil {
		return
	}
	data := make([]byte, len(in)*2)
	for i, s := range in {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	sink(capture.Fragment{Data: data, Timestamp: time.Since(legStart)})
}
