package capture

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Encoder wraps a run of raw PCM samples into one self-contained,
// independently decodable byte buffer. Every chunk and the assembled full
// recording pass through an Encoder exactly once, so each persisted payload
// is directly playable by downstream consumers.
type Encoder interface {
	// ContentType declares the MIME type of encoded buffers.
	ContentType() string

	// Encode produces a self-describing buffer from raw little-endian PCM.
	Encode(pcm []byte) ([]byte, error)
}

// wavEncoder implements [Encoder] using the RIFF/WAVE container.
type wavEncoder struct {
	format Format
}

// NewWAVEncoder returns an [Encoder] that wraps 16-bit PCM in a WAV
// container matching the given format.
func NewWAVEncoder(format Format) Encoder {
	if format.BitDepth == 0 {
		format.BitDepth = 16
	}
	return &wavEncoder{format: format}
}

func (e *wavEncoder) ContentType() string { return "audio/wav" }

func (e *wavEncoder) Encode(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("capture: wav encode: odd pcm length %d", len(pcm))
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	ws := &memWriteSeeker{}
	enc := wav.NewEncoder(ws, e.format.SampleRate, e.format.BitDepth, e.format.Channels, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: e.format.Channels,
			SampleRate:  e.format.SampleRate,
		},
		Data:           samples,
		SourceBitDepth: e.format.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("capture: wav encode: write: %w", err)
	}
	// Close rewrites the RIFF header with final sizes.
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("capture: wav encode: finalize: %w", err)
	}
	return ws.buf, nil
}

// memWriteSeeker is an in-memory io.WriteSeeker. The wav encoder needs to
// seek back to patch header sizes on Close, which io.Writer alone cannot do.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if need := m.pos + len(p); need > len(m.buf) {
		grown := make([]byte, need)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("capture: seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("capture: seek: negative position %d", abs)
	}
	m.pos = int(abs)
	return abs, nil
}
