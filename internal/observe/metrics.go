// Package observe provides application-wide observability primitives for
// attune: OpenTelemetry metrics, distributed tracing, trace-aware logging and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all attune metrics.
const meterName = "github.com/MrWong99/attune"

// Turn outcome labels used with [Metrics.RecordTurn].
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusTimeout  = "timeout"
	StatusError    = "error"
	StatusAborted  = "aborted"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// TurnDuration tracks end-to-end latency of one pipeline turn. Use with
	// attribute.String("status", ...).
	TurnDuration metric.Float64Histogram

	// BranchDuration tracks the latency of a single modality branch. Use with
	// attribute.String("modality", ...).
	BranchDuration metric.Float64Histogram

	// Turns counts processed turns by status.
	Turns metric.Int64Counter

	// DegradedTurns counts turns that lost a modality. Use with
	// attribute.String("modality", ...) naming the lost branch.
	DegradedTurns metric.Int64Counter

	// CrisisTransitions counts committed crisis-level changes. Use with
	// attribute.String("from", ...), attribute.String("to", ...).
	CrisisTransitions metric.Int64Counter

	// ActiveSessions tracks the number of open sessions.
	ActiveSessions metric.Int64UpDownCounter

	// AlertDeliveries counts alert publish attempts. Use with
	// attribute.String("target", ...), attribute.String("status", ...).
	AlertDeliveries metric.Int64Counter

	// AlertQueueDepth tracks events waiting for delivery per target.
	AlertQueueDepth metric.Int64UpDownCounter

	// OperatorConnections tracks connected operator consoles.
	OperatorConnections metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attribute.String("method", ...), attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) tuned for a
// sub-second per-turn budget.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.3, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("attune.turn.duration",
		metric.WithDescription("End-to-end latency of one pipeline turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BranchDuration, err = m.Float64Histogram("attune.branch.duration",
		metric.WithDescription("Latency of a single modality branch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("attune.turns",
		metric.WithDescription("Total processed turns by status."),
	); err != nil {
		return nil, err
	}
	if met.DegradedTurns, err = m.Int64Counter("attune.turns.degraded",
		metric.WithDescription("Turns that lost a modality, by lost modality."),
	); err != nil {
		return nil, err
	}
	if met.CrisisTransitions, err = m.Int64Counter("attune.crisis.transitions",
		metric.WithDescription("Committed crisis-level transitions by from and to level."),
	); err != nil {
		return nil, err
	}
	if met.AlertDeliveries, err = m.Int64Counter("attune.alert.deliveries",
		metric.WithDescription("Alert publish attempts by target and status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("attune.active_sessions",
		metric.WithDescription("Number of open sessions."),
	); err != nil {
		return nil, err
	}
	if met.AlertQueueDepth, err = m.Int64UpDownCounter("attune.alert.queue_depth",
		metric.WithDescription("Events waiting for delivery, by target."),
	); err != nil {
		return nil, err
	}
	if met.OperatorConnections, err = m.Int64UpDownCounter("attune.operator.connections",
		metric.WithDescription("Number of connected operator consoles."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("attune.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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
// pointer. Panics if instrument creation fails.
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTurn records the duration and outcome of one pipeline turn.
func (m *Metrics) RecordTurn(ctx context.Context, status string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.TurnDuration.Record(ctx, d.Seconds(), attrs)
	m.Turns.Add(ctx, 1, attrs)
}

// RecordBranch records the latency of one modality branch.
func (m *Metrics) RecordBranch(ctx context.Context, modality string, d time.Duration) {
	m.BranchDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("modality", modality)),
	)
}

// RecordDegraded counts a turn that lost the given modality.
func (m *Metrics) RecordDegraded(ctx context.Context, modality string) {
	m.DegradedTurns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("modality", modality)),
	)
}

// RecordTransition counts a committed crisis transition.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.CrisisTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordAlertDelivery counts one publish attempt against target.
func (m *Metrics) RecordAlertDelivery(ctx context.Context, target, status string) {
	m.AlertDeliveries.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("target", target),
			attribute.String("status", status),
		),
	)
}
