// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics with a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all bot metrics.
const meterName = "github.com/Viker/Kokoro-TTS-Discord-Bot"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// SynthesisDuration tracks text-to-speech synthesis latency.
	SynthesisDuration metric.Float64Histogram

	// PlaybackDuration tracks voice-channel playback latency per clip.
	PlaybackDuration metric.Float64Histogram

	// --- Counters ---

	// MessagesProcessed counts text messages accepted for playback.
	MessagesProcessed metric.Int64Counter

	// CacheLookups counts audio cache lookups. Use with attribute:
	//   attribute.String("result", "hit"|"miss")
	CacheLookups metric.Int64Counter

	// SynthesisErrors counts failed synthesis attempts by provider.
	SynthesisErrors metric.Int64Counter

	// PlaybackErrors counts failed playback attempts.
	PlaybackErrors metric.Int64Counter

	// QueueDiscards counts requests dropped by queues. Use with attribute:
	//   attribute.String("reason", "full"|"expired"|"cleared")
	QueueDiscards metric.Int64Counter

	// --- Gauges ---

	// ActiveConnections tracks the number of live voice connections.
	ActiveConnections metric.Int64UpDownCounter

	// QueuedRequests tracks the number of requests waiting across all guilds.
	QueuedRequests metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// synthesis and playback latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SynthesisDuration, err = m.Float64Histogram("kokorobot.synthesis.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("kokorobot.playback.duration",
		metric.WithDescription("Latency of clip playback on a voice connection."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.MessagesProcessed, err = m.Int64Counter("kokorobot.messages.processed",
		metric.WithDescription("Total text messages accepted for playback."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("kokorobot.cache.lookups",
		metric.WithDescription("Total audio cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.SynthesisErrors, err = m.Int64Counter("kokorobot.synthesis.errors",
		metric.WithDescription("Total failed synthesis attempts by provider."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackErrors, err = m.Int64Counter("kokorobot.playback.errors",
		metric.WithDescription("Total failed playback attempts."),
	); err != nil {
		return nil, err
	}
	if met.QueueDiscards, err = m.Int64Counter("kokorobot.queue.discards",
		metric.WithDescription("Total queued requests dropped by reason."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveConnections, err = m.Int64UpDownCounter("kokorobot.active_connections",
		metric.WithDescription("Number of live voice connections."),
	); err != nil {
		return nil, err
	}
	if met.QueuedRequests, err = m.Int64UpDownCounter("kokorobot.queued_requests",
		metric.WithDescription("Number of requests waiting across all guild queues."),
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

// RecordCacheLookup records one cache lookup with its result ("hit" or
// "miss").
func (m *Metrics) RecordCacheLookup(ctx context.Context, result string) {
	m.CacheLookups.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)),
	)
}

// RecordSynthesisError records one failed synthesis attempt for provider.
func (m *Metrics) RecordSynthesisError(ctx context.Context, provider string) {
	m.SynthesisErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordQueueDiscard records one dropped request with the drop reason
// ("full", "expired" or "cleared").
func (m *Metrics) RecordQueueDiscard(ctx context.Context, reason string, n int64) {
	m.QueueDiscards.Add(ctx, n,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
