package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the OTEL scope of the engine.
const InstrumentationName = "github.com/fyrsmithlabs/resolvd/internal/engine"

// instruments are the OTEL counterparts of the Prometheus collectors,
// exported over OTLP when telemetry is enabled.
type instruments struct {
	plansGenerated   metric.Int64Counter
	outcomesRecorded metric.Int64Counter
	fallbacks        metric.Int64Counter
	advisorDuration  metric.Float64Histogram
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &instruments{}
	var err error

	m.plansGenerated, err = meter.Int64Counter(
		"resolvd.plans.generated",
		metric.WithDescription("Resolution plans generated"),
		metric.WithUnit("{plan}"),
	)
	if err != nil {
		return nil, err
	}

	m.outcomesRecorded, err = meter.Int64Counter(
		"resolvd.outcomes.recorded",
		metric.WithDescription("Executor outcomes applied to pattern statistics"),
		metric.WithUnit("{outcome}"),
	)
	if err != nil {
		return nil, err
	}

	m.fallbacks, err = meter.Int64Counter(
		"resolvd.actions.fallbacks",
		metric.WithDescription("Action generation failures that fell back one rung"),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		return nil, err
	}

	m.advisorDuration, err = meter.Float64Histogram(
		"resolvd.advisor.duration",
		metric.WithDescription("Time spent waiting for advisory text"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2, 5, 10, 20, 30),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *instruments) recordPlan(ctx context.Context, strategy, rule string) {
	m.plansGenerated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("rule", rule),
	))
}

func (m *instruments) recordOutcome(ctx context.Context, strategy, result string) {
	m.outcomesRecorded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("result", result),
	))
}

func (m *instruments) recordFallback(ctx context.Context, from, to string) {
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *instruments) recordAdvisor(ctx context.Context, d time.Duration, ok bool) {
	m.advisorDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("ok", ok)))
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
