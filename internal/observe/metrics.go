// Package observe provides application-wide observability primitives for
// revox: OpenTelemetry metrics, tracing helpers, and structured-logging
// enrichment.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via a standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all revox metrics.
const meterName = "github.com/revox-audio/revox"

// Metrics holds all OpenTelemetry metric instruments for the recording
// subsystem. All fields are safe for concurrent use — the underlying OTel
// types handle their own synchronisation.
type Metrics struct {
	// --- Histograms ---

	// ChunkDuration tracks the audible length of finalized chunks.
	ChunkDuration metric.Float64Histogram

	// PersistDuration tracks slot-store write latency.
	PersistDuration metric.Float64Histogram

	// --- Counters ---

	// ChunksFinalized counts finalized chunks.
	ChunksFinalized metric.Int64Counter

	// ChunksDropped counts chunks dropped by finalize failures.
	ChunksDropped metric.Int64Counter

	// BytesPersisted counts payload bytes written to the store. Use with
	// attribute.String("slot", ...).
	BytesPersisted metric.Int64Counter

	// PersistErrors counts failed store writes. Use with
	// attribute.String("slot", ...).
	PersistErrors metric.Int64Counter

	// StaleWritesDiscarded counts persistence writes dropped because
	// their session generation no longer matched at completion time.
	StaleWritesDiscarded metric.Int64Counter

	// RecordingsRecovered counts successful recovery reads.
	RecordingsRecovered metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live recording sessions
	// (0 or 1 per recorder).
	ActiveSessions metric.Int64UpDownCounter
}

// persistBuckets defines histogram bucket boundaries (in seconds) sized for
// local slot-store writes.
var persistBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// chunkBuckets defines histogram bucket boundaries (in seconds) sized for
// typical chunk rotation cadences.
var chunkBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 15, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ChunkDuration, err = m.Float64Histogram("revox.chunk.duration",
		metric.WithDescription("Audible length of finalized chunks."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(chunkBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PersistDuration, err = m.Float64Histogram("revox.persist.duration",
		metric.WithDescription("Slot-store write latency by slot."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(persistBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ChunksFinalized, err = m.Int64Counter("revox.chunks.finalized",
		metric.WithDescription("Total chunks finalized at rotation, pause, or stop."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDropped, err = m.Int64Counter("revox.chunks.dropped",
		metric.WithDescription("Total chunks dropped by finalize failures."),
	); err != nil {
		return nil, err
	}
	if met.BytesPersisted, err = m.Int64Counter("revox.persist.bytes",
		metric.WithDescription("Total payload bytes written to the slot store, by slot."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.PersistErrors, err = m.Int64Counter("revox.persist.errors",
		metric.WithDescription("Total failed slot-store writes, by slot."),
	); err != nil {
		return nil, err
	}
	if met.StaleWritesDiscarded, err = m.Int64Counter("revox.persist.stale_discarded",
		metric.WithDescription("Total writes discarded for carrying a stale session generation."),
	); err != nil {
		return nil, err
	}
	if met.RecordingsRecovered, err = m.Int64Counter("revox.recovery.recovered",
		metric.WithDescription("Total successful recovery reads."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("revox.active_sessions",
		metric.WithDescription("Number of live recording sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordChunk records one finalized chunk: the finalized counter, the chunk
// duration histogram.
func (m *Metrics) RecordChunk(ctx context.Context, duration float64) {
	m.ChunksFinalized.Add(ctx, 1)
	m.ChunkDuration.Record(ctx, duration)
}

// RecordPersist records one completed store write with the standard slot
// attribute.
func (m *Metrics) RecordPersist(ctx context.Context, slot string, bytes int, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("slot", slot))
	m.BytesPersisted.Add(ctx, int64(bytes), attrs)
	m.PersistDuration.Record(ctx, seconds, attrs)
}

// RecordPersistError records one failed store write.
func (m *Metrics) RecordPersistError(ctx context.Context, slot string) {
	m.PersistErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("slot", slot)))
}
