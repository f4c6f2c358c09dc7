package recovery_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/revox-audio/revox/pkg/recovery"
	"github.com/revox-audio/revox/pkg/store"
	"github.com/revox-audio/revox/pkg/store/mock"
)

func TestCheck_EmptyStore(t *testing.T) {
	t.Parallel()

	m := recovery.NewManager(&mock.Store{})
	cand := m.Check(context.Background())
	if cand.HasRecovery {
		t.Error("Check() reported a recovery on an empty store")
	}
}

func TestCheck_NilStore(t *testing.T) {
	t.Parallel()

	m := recovery.NewManager(nil)
	cand := m.Check(context.Background())
	if cand.HasRecovery {
		t.Error("Check() with nil store reported a recovery")
	}
}

func TestCheck_FindsPersistedRecording(t *testing.T) {
	t.Parallel()

	st := &mock.Store{Recording: &store.RecordingEntry{
		SessionID:   "s1",
		Data:        []byte("payload"),
		ContentType: "audio/wav",
		Timestamp:   time.Now(),
		Duration:    30 * time.Second,
	}}
	m := recovery.NewManager(st)

	cand := m.Check(context.Background())
	if !cand.HasRecovery {
		t.Fatal("Check() missed a persisted recording")
	}
	if !bytes.Equal(cand.Payload, []byte("payload")) {
		t.Errorf("Payload = %q, want %q", cand.Payload, "payload")
	}
	if cand.ContentType != "audio/wav" {
		t.Errorf("ContentType = %q, want %q", cand.ContentType, "audio/wav")
	}
	if cand.Duration != 30*time.Second {
		t.Errorf("Duration = %v, want %v", cand.Duration, 30*time.Second)
	}
}

func TestCheck_EmptyPayloadIsNotARecovery(t *testing.T) {
	t.Parallel()

	st := &mock.Store{Recording: &store.RecordingEntry{SessionID: "s1", Timestamp: time.Now()}}
	m := recovery.NewManager(st)

	if cand := m.Check(context.Background()); cand.HasRecovery {
		t.Error("Check() treated an empty payload as recoverable")
	}
}

func TestCheck_StoreFailureDegradesSilently(t *testing.T) {
	t.Parallel()

	st := &mock.Store{
		FailAll:   true,
		Recording: &store.RecordingEntry{Data: []byte("unreachable")},
	}
	m := recovery.NewManager(st)

	if cand := m.Check(context.Background()); cand.HasRecovery {
		t.Error("Check() reported a recovery from a failing store")
	}
}

func TestRecover_ReturnsPayloadWithoutClearing(t *testing.T) {
	t.Parallel()

	st := &mock.Store{Recording: &store.RecordingEntry{Data: []byte("keep me")}}
	m := recovery.NewManager(st)

	got, err := m.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover() error: %v", err)
	}
	if !bytes.Equal(got, []byte("keep me")) {
		t.Errorf("Recover() = %q, want %q", got, "keep me")
	}
	if st.CallCountClearAll != 0 {
		t.Error("Recover() must not clear the slots")
	}

	// Recovering again still works; only an explicit reset clears the slot.
	if _, err := m.Recover(context.Background()); err != nil {
		t.Errorf("second Recover() error: %v", err)
	}
}

func TestRecover_NoRecording(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		st   store.Store
	}{
		{name: "nil store", st: nil},
		{name: "empty store", st: &mock.Store{}},
		{name: "failing store", st: &mock.Store{FailAll: true}},
		{name: "empty payload", st: &mock.Store{Recording: &store.RecordingEntry{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := recovery.NewManager(tt.st)
			if _, err := m.Recover(context.Background()); !errors.Is(err, recovery.ErrNoRecovery) {
				t.Errorf("Recover() error = %v, want ErrNoRecovery", err)
			}
		})
	}
}

func TestSnapshotSlots(t *testing.T) {
	t.Parallel()

	st := &mock.Store{
		Chunk:     &store.ChunkEntry{Index: 5, Data: []byte("chunk")},
		Recording: &store.RecordingEntry{SessionID: "s9", Data: []byte("rec")},
	}
	m := recovery.NewManager(st)

	snap := m.SnapshotSlots(context.Background())
	if snap.Chunk == nil || snap.Chunk.Index != 5 {
		t.Errorf("Snapshot.Chunk = %+v, want index 5", snap.Chunk)
	}
	if snap.Recording == nil || snap.Recording.SessionID != "s9" {
		t.Errorf("Snapshot.Recording = %+v, want session s9", snap.Recording)
	}
}

func TestSnapshotSlots_FailingStore(t *testing.T) {
	t.Parallel()

	m := recovery.NewManager(&mock.Store{FailAll: true})
	snap := m.SnapshotSlots(context.Background())
	if snap.Chunk != nil || snap.Recording != nil {
		t.Errorf("Snapshot on failing store = %+v, want empty", snap)
	}
}
