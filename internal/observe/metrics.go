// Package observe provides observability primitives for the Synapse
// dialogue engine: OpenTelemetry metrics and tracing, and the HTTP
// middleware that records boundary latency and propagates trace context.
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

// meterName is the instrumentation scope name used for all Synapse metrics.
const meterName = "github.com/synapsebot/synapse"

// Metrics holds all OpenTelemetry metric instruments for the engine.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// TurnDuration tracks end-to-end dialogue turn latency.
	TurnDuration metric.Float64Histogram

	// Turns counts completed turns. Use with attributes:
	//   attribute.String("source", ...)  ("rule" or "default")
	Turns metric.Int64Counter

	// GraphQueries counts knowledge-graph queries. Use with attribute:
	//   attribute.String("status", ...)  ("ok", "empty", "error")
	GraphQueries metric.Int64Counter

	// Degradations counts recovered resolution degradations. Use with:
	//   attribute.String("kind", ...)  ("graph", "recursion", "variable")
	Degradations metric.Int64Counter

	// SessionContention counts turns rejected because the session slot was
	// busy.
	SessionContention metric.Int64Counter

	// ActiveSessions tracks the number of live sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks boundary request processing time. Use with:
	//   attribute.String("method", ...), attribute.String("path", ...),
	//   attribute.String("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// in-memory matching plus one bounded graph round-trip.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TurnDuration, err = m.Float64Histogram("synapse.turn.duration",
		metric.WithDescription("End-to-end latency of one dialogue turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("synapse.turns",
		metric.WithDescription("Completed dialogue turns by response source."),
	); err != nil {
		return nil, err
	}
	if met.GraphQueries, err = m.Int64Counter("synapse.graph.queries",
		metric.WithDescription("Knowledge-graph queries by status."),
	); err != nil {
		return nil, err
	}
	if met.Degradations, err = m.Int64Counter("synapse.resolution.degradations",
		metric.WithDescription("Recovered template-resolution degradations by kind."),
	); err != nil {
		return nil, err
	}
	if met.SessionContention, err = m.Int64Counter("synapse.session.contention",
		metric.WithDescription("Turns rejected because the session slot was held."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("synapse.active_sessions",
		metric.WithDescription("Number of live conversation sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("synapse.http.request.duration",
		metric.WithDescription("HTTP request processing time at the chat boundary."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance built from the
// global meter provider. Initialised lazily on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			// Instrument creation only fails on invalid names; fall back to
			// a metrics struct backed by the no-op provider.
			m = &Metrics{}
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTurn records one completed turn with its latency and source.
func (m *Metrics) RecordTurn(ctx context.Context, seconds float64, source string) {
	if m == nil || m.Turns == nil {
		return
	}
	m.TurnDuration.Record(ctx, seconds, metric.WithAttributes(Attr("source", source)))
	m.Turns.Add(ctx, 1, metric.WithAttributes(Attr("source", source)))
}

// RecordGraphQuery records one knowledge-graph query outcome.
func (m *Metrics) RecordGraphQuery(ctx context.Context, status string) {
	if m == nil || m.GraphQueries == nil {
		return
	}
	m.GraphQueries.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordDegradation records one recovered resolution degradation.
func (m *Metrics) RecordDegradation(ctx context.Context, kind string) {
	if m == nil || m.Degradations == nil {
		return
	}
	m.Degradations.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind)))
}

// AddActiveSessions adjusts the live-session gauge by delta (positive on
// session creation, negative on eviction).
func (m *Metrics) AddActiveSessions(ctx context.Context, delta int64) {
	if m == nil || m.ActiveSessions == nil {
		return
	}
	m.ActiveSessions.Add(ctx, delta)
}

// RecordContention records one busy-slot rejection.
func (m *Metrics) RecordContention(ctx context.Context) {
	if m == nil || m.SessionContention == nil {
		return
	}
	m.SessionContention.Add(ctx, 1)
}
