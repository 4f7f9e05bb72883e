package recorder

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/roach88/provenant/internal/recorder"

// SpanInvoke is the span started around every tracked call.
const SpanInvoke = "lmp.invoke"

// Span attribute keys.
const (
	AttrLMPName      = attribute.Key("lmp.name")
	AttrLMPID        = attribute.Key("lmp.id")
	AttrInvocationID = attribute.Key("lmp.invocation_id")
	AttrCached       = attribute.Key("lmp.cached")
)

// instruments holds the recorder's metrics.
type instruments struct {
	invocations      metric.Int64Counter
	versions         metric.Int64Counter
	trackingFailures metric.Int64Counter
	duration         metric.Float64Histogram
}

// newInstruments creates the recorder's metrics on mp. Any instrument that
// cannot be created falls back to a no-op.
func newInstruments(mp metric.MeterProvider) *instruments {
	meter := mp.Meter(instrumentationName)
	fallback := noop.NewMeterProvider().Meter(instrumentationName)

	inst := &instruments{}
	var err error

	if inst.invocations, err = meter.Int64Counter(
		"lmp_invocations_total",
		metric.WithDescription("Tracked calls by unit and outcome"),
	); err != nil {
		inst.invocations, _ = fallback.Int64Counter("lmp_invocations_total")
	}
	if inst.versions, err = meter.Int64Counter(
		"lmp_versions_total",
		metric.WithDescription("Versions registered by this process"),
	); err != nil {
		inst.versions, _ = fallback.Int64Counter("lmp_versions_total")
	}
	if inst.trackingFailures, err = meter.Int64Counter(
		"lmp_tracking_failures_total",
		metric.WithDescription("Failures to register a version or record a call"),
	); err != nil {
		inst.trackingFailures, _ = fallback.Int64Counter("lmp_tracking_failures_total")
	}
	if inst.duration, err = meter.Float64Histogram(
		"lmp_invocation_duration_seconds",
		metric.WithDescription("Latency of tracked unit bodies"),
		metric.WithUnit("s"),
	); err != nil {
		inst.duration, _ = fallback.Float64Histogram("lmp_invocation_duration_seconds")
	}
	return inst
}

func (i *instruments) recordCall(ctx context.Context, name string, latency time.Duration, failed, cached bool) {
	attrs := metric.WithAttributes(
		attribute.String("lmp_name", name),
		attribute.Bool("failed", failed),
		attribute.Bool("cached", cached),
	)
	i.invocations.Add(ctx, 1, attrs)
	if !cached {
		i.duration.Record(ctx, latency.Seconds(), metric.WithAttributes(attribute.String("lmp_name", name)))
	}
}

func (i *instruments) recordVersion(ctx context.Context, name string) {
	i.versions.Add(ctx, 1, metric.WithAttributes(attribute.String("lmp_name", name)))
}

func (i *instruments) recordTrackingFailure(ctx context.Context, name, op string) {
	i.trackingFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("lmp_name", name),
		attribute.String("op", op),
	))
}
