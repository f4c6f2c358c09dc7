package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/revox-audio/revox/internal/observe"
	"github.com/revox-audio/revox/internal/resilience"
	"github.com/revox-audio/revox/pkg/store"
)

// persistTimeout bounds a single slot-store operation.
const persistTimeout = 5 * time.Second

// persistQueueDepth bounds the pending-write queue. When the store is so
// slow that the queue fills, chunk writes are dropped with a warning rather
// than stalling the rotation path — a lost latest-chunk write only reduces
// recovery granularity. Recording and clear writes block instead: they are
// the slot's sole recovery artifact and must not be lost to a slow store.
const persistQueueDepth = 16

// job is one queued store operation. gen < 0 means "always apply"
// (used by clears, which must run regardless of session generation).
// Critical jobs wait for queue space; non-critical jobs drop when full.
type job struct {
	gen      int64
	slot     string
	bytes    int
	critical bool
	apply    func(ctx context.Context) error
	done     chan struct{} // non-nil for flush sentinels
}

// persister serializes all store writes on one goroutine. The single FIFO
// queue preserves per-slot write ordering: a later write for a slot can
// never be overtaken by an earlier one. Writes are checked against the
// recorder's current session generation at completion time; stale writes
// are discarded.
type persister struct {
	st      store.Store
	current *atomic.Int64
	metrics *observe.Metrics
	breaker *resilience.Breaker

	mu     sync.Mutex
	closed bool
	jobs   chan job
	stop   chan struct{}
}

// newPersister creates a persister writing to st. A nil store yields a
// persister whose enqueues are no-ops — recording proceeds with persistence
// disabled.
func newPersister(st store.Store, current *atomic.Int64, m *observe.Metrics) *persister {
	p := &persister{
		st:      st,
		current: current,
		metrics: m,
		breaker: resilience.NewBreaker("slot-store", 3, 30*time.Second),
		jobs:    make(chan job, persistQueueDepth),
		stop:    make(chan struct{}),
	}
	if st != nil {
		go p.loop()
	}
	return p
}

func (p *persister) enqueueChunk(gen int64, entry store.ChunkEntry) {
	p.enqueue(job{
		gen:   gen,
		slot:  store.SlotChunk,
		bytes: len(entry.Data),
		apply: func(ctx context.Context) error { return p.st.PutChunk(ctx, entry) },
	})
}

func (p *persister) enqueueRecording(gen int64, entry store.RecordingEntry) {
	p.enqueue(job{
		gen:      gen,
		slot:     store.SlotRecording,
		bytes:    len(entry.Data),
		critical: true,
		apply:    func(ctx context.Context) error { return p.st.PutRecording(ctx, entry) },
	})
}

func (p *persister) enqueueClear() {
	p.enqueue(job{
		gen:      -1,
		slot:     "clear",
		critical: true,
		apply:    func(ctx context.Context) error { return p.st.ClearAll(ctx) },
	})
}

func (p *persister) enqueue(j job) {
	if p.st == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if j.critical {
		select {
		case p.jobs <- j:
		case <-p.stop:
		}
		return
	}
	select {
	case p.jobs <- j:
	default:
		slog.Warn("persist: queue full, dropping chunk write", "slot", j.slot, "bytes", j.bytes)
		p.metrics.RecordPersistError(context.Background(), j.slot)
	}
}

// flush blocks until every job enqueued before the call has completed.
func (p *persister) flush() {
	if p.st == nil {
		return
	}
	done := make(chan struct{})
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.jobs <- job{done: done}
	p.mu.Unlock()

	select {
	case <-done:
	case <-p.stop:
	}
}

// close drains pending writes and stops the writer goroutine.
func (p *persister) close() {
	if p.st == nil {
		return
	}
	p.flush()
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	<-p.stop
}

func (p *persister) loop() {
	defer close(p.stop)
	for j := range p.jobs {
		if j.done != nil {
			close(j.done)
			continue
		}
		if j.gen >= 0 && j.gen != p.current.Load() {
			p.metrics.StaleWritesDiscarded.Add(context.Background(), 1)
			slog.Debug("persist: discarding stale write", "slot", j.slot, "gen", j.gen)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		ctx, span := observe.StartSpan(ctx, "persist "+j.slot)
		start := time.Now()
		// The breaker fails the write fast while the store is known-bad,
		// so rotations keep up instead of queueing behind timeouts.
		err := p.breaker.Do(func() error { return j.apply(ctx) })
		span.End()
		cancel()

		if err != nil {
			p.metrics.RecordPersistError(context.Background(), j.slot)
			observe.Logger(ctx).Warn("persist: write failed", "slot", j.slot, "err", err)
			continue
		}
		p.metrics.RecordPersist(context.Background(), j.slot, j.bytes, time.Since(start).Seconds())
	}
}
