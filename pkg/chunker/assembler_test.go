package chunker_test

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/revox-audio/revox/pkg/capture"
	"github.com/revox-audio/revox/pkg/chunker"
)

// stubEncoder frames pcm between marker bytes so tests can verify what was
// encoded without decoding a real container. FailAfter > 0 makes the encoder
// fail once that many Encode calls have succeeded.
type stubEncoder struct {
	mu        sync.Mutex
	calls     int
	FailAfter int
}

func (e *stubEncoder) ContentType() string { return "audio/test" }

func (e *stubEncoder) Encode(pcm []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.FailAfter > 0 && e.calls > e.FailAfter {
		return nil, errors.New("stub encode failure")
	}
	out := make([]byte, 0, len(pcm)+2)
	out = append(out, '<')
	out = append(out, pcm...)
	out = append(out, '>')
	return out, nil
}

// chunkRecorder collects finalized chunks for assertions.
type chunkRecorder struct {
	mu     sync.Mutex
	chunks []chunker.Chunk
}

func (r *chunkRecorder) onChunk(c chunker.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, c)
}

func (r *chunkRecorder) all() []chunker.Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]chunker.Chunk, len(r.chunks))
	copy(out, r.chunks)
	return out
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := chunker.New(chunker.Config{Encoder: &stubEncoder{}}); err == nil {
		t.Error("New() without chunk duration should fail")
	}
	if _, err := chunker.New(chunker.Config{ChunkDuration: time.Second}); err == nil {
		t.Error("New() without encoder should fail")
	}
	if _, err := chunker.New(chunker.Config{ChunkDuration: time.Second, Encoder: &stubEncoder{}}); err != nil {
		t.Errorf("New() with valid config failed: %v", err)
	}
}

func TestAssembler_RotationEmitsIndexedChunks(t *testing.T) {
	t.Parallel()

	rec := &chunkRecorder{}
	var boundaries int
	var bmu sync.Mutex

	asm, err := chunker.New(chunker.Config{
		SessionID:     "s1",
		ChunkDuration: 30 * time.Millisecond,
		Encoder:       &stubEncoder{},
		OnChunk:       rec.onChunk,
		Boundary: func() error {
			bmu.Lock()
			defer bmu.Unlock()
			boundaries++
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer asm.Cancel()

	asm.Arm()
	asm.Append(capture.Fragment{Data: []byte("aa")})

	deadline := time.Now().Add(2 * time.Second)
	for asm.ChunkCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	asm.Append(capture.Fragment{Data: []byte("bb")})
	for asm.ChunkCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	chunks := rec.all()
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d, want %d", i, c.Index, i)
		}
		if len(c.Data) == 0 {
			t.Errorf("chunk %d has empty payload", i)
		}
	}
	bmu.Lock()
	defer bmu.Unlock()
	if boundaries == 0 {
		t.Error("no segment boundary was requested across rotations")
	}
}

func TestAssembler_EmptyRotationSkipsEmission(t *testing.T) {
	t.Parallel()

	rec := &chunkRecorder{}
	asm, err := chunker.New(chunker.Config{
		ChunkDuration: 20 * time.Millisecond,
		Encoder:       &stubEncoder{},
		OnChunk:       rec.onChunk,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer asm.Cancel()

	asm.Arm()
	// Several rotations with nothing buffered.
	time.Sleep(100 * time.Millisecond)

	if got := asm.ChunkCount(); got != 0 {
		t.Errorf("ChunkCount() = %d after silent rotations, want 0", got)
	}
	if got := len(rec.all()); got != 0 {
		t.Errorf("got %d chunk callbacks, want 0", got)
	}
}

func TestAssembler_PauseResumeKeepsIndexContinuity(t *testing.T) {
	t.Parallel()

	rec := &chunkRecorder{}
	asm, err := chunker.New(chunker.Config{
		SessionID:     "s2",
		ChunkDuration: time.Hour, // rotation never fires; chunks come from Pause/Stop
		Encoder:       &stubEncoder{},
		OnChunk:       rec.onChunk,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	asm.Arm()
	asm.Append(capture.Fragment{Data: []byte("one")})
	asm.Pause()

	asm.Arm()
	asm.Append(capture.Fragment{Data: []byte("two")})
	asm.Pause()

	chunks := rec.all()
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Index != 0 || chunks[1].Index != 1 {
		t.Errorf("chunk indices = %d, %d; want 0, 1", chunks[0].Index, chunks[1].Index)
	}
}

func TestAssembler_StopAssemblesRecordingInOrder(t *testing.T) {
	t.Parallel()

	asm, err := chunker.New(chunker.Config{
		SessionID:     "s3",
		ChunkDuration: time.Hour,
		Encoder:       &stubEncoder{},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	asm.Arm()
	asm.Append(capture.Fragment{Data: []byte("first")})
	asm.Pause()
	asm.Arm()
	asm.Append(capture.Fragment{Data: []byte("second")})

	got, err := asm.Stop()
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if got.SessionID != "s3" {
		t.Errorf("SessionID = %q, want %q", got.SessionID, "s3")
	}
	if got.ContentType != "audio/test" {
		t.Errorf("ContentType = %q, want %q", got.ContentType, "audio/test")
	}
	if got.Chunks != 2 {
		t.Errorf("Chunks = %d, want 2", got.Chunks)
	}
	// The recording wraps the in-order concatenation of all chunk audio.
	if want := []byte("<firstsecond>"); !bytes.Equal(got.Data, want) {
		t.Errorf("Data = %q, want %q", got.Data, want)
	}
}

func TestAssembler_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	asm, err := chunker.New(chunker.Config{
		ChunkDuration: time.Hour,
		Encoder:       &stubEncoder{},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	asm.Arm()
	asm.Append(capture.Fragment{Data: []byte("x")})

	first, err := asm.Stop()
	if err != nil {
		t.Fatalf("first Stop() error: %v", err)
	}
	second, err := asm.Stop()
	if err != nil {
		t.Fatalf("second Stop() error: %v", err)
	}
	if !bytes.Equal(first.Data, second.Data) || first.Chunks != second.Chunks {
		t.Error("second Stop() returned a different recording")
	}

	// Fragments after stop are discarded.
	asm.Append(capture.Fragment{Data: []byte("late")})
	third, err := asm.Stop()
	if err != nil {
		t.Fatalf("third Stop() error: %v", err)
	}
	if !bytes.Equal(first.Data, third.Data) {
		t.Error("fragment appended after Stop leaked into the recording")
	}
}

func TestAssembler_EncodeFailureDropsChunkKeepsIndex(t *testing.T) {
	t.Parallel()

	rec := &chunkRecorder{}
	enc := &stubEncoder{FailAfter: 1}
	var drops int
	asm, err := chunker.New(chunker.Config{
		ChunkDuration: time.Hour,
		Encoder:       enc,
		OnChunk:       rec.onChunk,
		OnDrop:        func(error) { drops++ },
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	asm.Arm()
	asm.Append(capture.Fragment{Data: []byte("ok")})
	asm.Pause()

	// Second finalize hits the failing encoder; the chunk is dropped.
	asm.Arm()
	asm.Append(capture.Fragment{Data: []byte("broken")})
	asm.Pause()

	chunks := rec.all()
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if got := asm.ChunkCount(); got != 1 {
		t.Errorf("ChunkCount() = %d, want 1 (dropped chunk must not consume an index)", got)
	}
	if drops != 1 {
		t.Errorf("OnDrop calls = %d, want 1", drops)
	}

	// Recovery: the next successful finalize reuses the freed index slot.
	enc.mu.Lock()
	enc.FailAfter = 0
	enc.mu.Unlock()
	asm.Arm()
	asm.Append(capture.Fragment{Data: []byte("again")})
	asm.Pause()

	chunks = rec.all()
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks after recovery, want 2", len(chunks))
	}
	if chunks[1].Index != 1 {
		t.Errorf("post-failure chunk index = %d, want 1", chunks[1].Index)
	}
}

func TestAssembler_CancelDiscardsEverything(t *testing.T) {
	t.Parallel()

	asm, err := chunker.New(chunker.Config{
		ChunkDuration: time.Hour,
		Encoder:       &stubEncoder{},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	asm.Arm()
	asm.Append(capture.Fragment{Data: []byte("gone")})
	asm.Cancel()

	if _, err := asm.Stop(); err == nil {
		t.Error("Stop() after Cancel should fail")
	}
}

func TestAssembler_RecordingDurationTracksRecordedTime(t *testing.T) {
	t.Parallel()

	rec := &chunkRecorder{}
	asm, err := chunker.New(chunker.Config{
		SessionID:     "duration",
		ChunkDuration: 30 * time.Millisecond,
		Encoder:       &stubEncoder{},
		OnChunk:       rec.onChunk,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	start := time.Now()
	asm.Arm()

	// Keep the buffer non-empty across every rotation so no interval is
	// skipped as an empty chunk.
	deadline := time.After(120 * time.Millisecond)
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
feed:
	for {
		select {
		case <-tick.C:
			asm.Append(capture.Fragment{Data: []byte{1, 0}})
		case <-deadline:
			break feed
		}
	}

	r, err := asm.Stop()
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	// ~120ms at a 30ms cadence: four rotations plus the tail, fewer when
	// timers lag.
	if r.Chunks < 2 || r.Chunks > 6 {
		t.Errorf("chunks = %d, want 2..6", r.Chunks)
	}

	var sum time.Duration
	for _, c := range rec.all() {
		sum += c.Duration
	}
	if r.Duration != sum {
		t.Errorf("recording duration = %v, want sum of chunk durations %v", r.Duration, sum)
	}
	if r.Duration <= 0 || r.Duration > elapsed {
		t.Errorf("recording duration = %v, want within (0, %v]", r.Duration, elapsed)
	}
	// Generous lower bound: duration tracks recorded time, not a fraction
	// of it, but CI schedulers can stall individual rotations.
	if r.Duration < elapsed/2 {
		t.Errorf("recording duration = %v, want at least half of elapsed %v", r.Duration, elapsed)
	}
}
