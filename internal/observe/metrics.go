// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics and the SDK provider setup.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all gateway metrics.
const meterName = "github.com/voicebridge/byova"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks time from a completed utterance to the reply
	// handed to the caller leg.
	TurnDuration metric.Float64Histogram

	// BackendDuration tracks backend recognize-call latency.
	BackendDuration metric.Float64Histogram

	// --- Counters ---

	// BackendRequests counts backend calls. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("status", ...)
	BackendRequests metric.Int64Counter

	// BackendErrors counts absorbed backend failures.
	BackendErrors metric.Int64Counter

	// Utterances counts completed utterance segments.
	Utterances metric.Int64Counter

	// DTMFInputs counts forwarded DTMF batches.
	DTMFInputs metric.Int64Counter

	// SessionsReaped counts sessions removed by the idle reaper.
	SessionsReaped metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live conversations.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-turn latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("byova.turn.duration",
		metric.WithDescription("Latency from completed utterance to caller reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BackendDuration, err = m.Float64Histogram("byova.backend.duration",
		metric.WithDescription("Latency of vendor backend recognize calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.BackendRequests, err = m.Int64Counter("byova.backend.requests",
		metric.WithDescription("Total backend requests by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("byova.backend.errors",
		metric.WithDescription("Total absorbed backend failures."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("byova.utterances",
		metric.WithDescription("Total completed utterance segments."),
	); err != nil {
		return nil, err
	}
	if met.DTMFInputs, err = m.Int64Counter("byova.dtmf.inputs",
		metric.WithDescription("Total DTMF batches forwarded to backends."),
	); err != nil {
		return nil, err
	}
	if met.SessionsReaped, err = m.Int64Counter("byova.sessions.reaped",
		metric.WithDescription("Total sessions removed by the idle reaper."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("byova.active_sessions",
		metric.WithDescription("Number of live conversations."),
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

// RecordBackendRequest records a backend request counter increment with the
// standard attribute set.
func (m *Metrics) RecordBackendRequest(ctx context.Context, kind, status string) {
	m.BackendRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordBackendError records an absorbed backend failure for the given
// call kind.
func (m *Metrics) RecordBackendError(ctx context.Context, kind string) {
	m.BackendErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
