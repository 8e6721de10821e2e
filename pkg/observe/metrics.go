// Package observe provides OpenTelemetry metric instruments for the
// provider gateway and realtime session, adapted from the teacher's
// internal/observe package (same OTel Metrics API usage, same package-level
// DefaultMetrics()/NewMetrics(mp) shape). pkg/resilience records the
// provider request/error, retry and circuit-breaker instruments. The
// realtime session instruments (RealtimeSessions, RealtimeReconnects) are
// created here, but no component records them.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/brightloom/aicore"

// Metrics holds every OpenTelemetry instrument this runtime emits. Safe for
// concurrent use — the underlying OTel instruments handle their own
// synchronisation.
type Metrics struct {
	// ProviderRequestDuration tracks per-request latency. Use with
	// attribute.String("kind", ...).
	ProviderRequestDuration metric.Float64Histogram

	// ProviderRequests counts gateway requests. Use with
	// attribute.String("kind", ...), attribute.String("status", ...).
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts classified gateway errors. Use with
	// attribute.String("kind", ...), attribute.String("error_kind", ...).
	ProviderErrors metric.Int64Counter

	// RetryAttempts counts retry attempts issued by the resilience executor.
	// Use with attribute.String("kind", ...).
	RetryAttempts metric.Int64Counter

	// CircuitRejections counts requests rejected by an open breaker. Use
	// with attribute.String("kind", ...).
	CircuitRejections metric.Int64Counter

	// RealtimeSessions tracks the number of live realtime sessions.
	RealtimeSessions metric.Int64UpDownCounter

	// RealtimeReconnects counts reconnection attempts.
	RealtimeReconnects metric.Int64Counter
}

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// NewMetrics creates a fully initialized Metrics using mp. Returns an error
// if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.ProviderRequestDuration, err = m.Float64Histogram("aicore.provider.request.duration",
		metric.WithDescription("Latency of a provider chat request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("aicore.provider.requests",
		metric.WithDescription("Total provider requests by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("aicore.provider.errors",
		metric.WithDescription("Total classified provider errors by kind and error_kind."),
	); err != nil {
		return nil, err
	}
	if met.RetryAttempts, err = m.Int64Counter("aicore.resilience.retries",
		metric.WithDescription("Total retry attempts issued by the resilience executor."),
	); err != nil {
		return nil, err
	}
	if met.CircuitRejections, err = m.Int64Counter("aicore.resilience.circuit_rejections",
		metric.WithDescription("Total requests rejected by an open circuit breaker."),
	); err != nil {
		return nil, err
	}
	if met.RealtimeSessions, err = m.Int64UpDownCounter("aicore.realtime.sessions",
		metric.WithDescription("Number of live realtime sessions."),
	); err != nil {
		return nil, err
	}
	if met.RealtimeReconnects, err = m.Int64Counter("aicore.realtime.reconnects",
		metric.WithDescription("Total realtime reconnection attempts."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics instance, creating it on
// first call using otel.GetMeterProvider. Panics if instrument creation
// fails, which should not happen against the global no-op provider.
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

// RecordProviderRequest increments ProviderRequests with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordProviderError increments ProviderErrors with the standard attribute
// set.
func (m *Metrics) RecordProviderError(ctx context.Context, kind, errorKind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("error_kind", errorKind),
	))
}

// RecordRetry increments RetryAttempts for kind.
func (m *Metrics) RecordRetry(ctx context.Context, kind string) {
	m.RetryAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordCircuitRejection increments CircuitRejections for kind.
func (m *Metrics) RecordCircuitRejection(ctx context.Context, kind string) {
	m.CircuitRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
