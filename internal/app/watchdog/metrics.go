package watchdog

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// WatchdogMetrics defines metrics operations needed by the completion watchdog.
type WatchdogMetrics interface {
	IncConsumersEvaluated(ctx context.Context)
	IncConsumersTerminated(ctx context.Context, outcome Outcome)
	IncTerminationFailures(ctx context.Context)
	IncOffsetErrors(ctx context.Context)
	IncMovement(ctx context.Context, m Movement)
	ObserveCycleDuration(ctx context.Context, d time.Duration)
}

type watchdogMetrics struct {
	consumersEvaluated  metric.Int64Counter
	consumersTerminated metric.Int64Counter
	terminationFailures metric.Int64Counter
	offsetErrors        metric.Int64Counter
	movement            metric.Int64Counter
	cycleDuration       metric.Float64Histogram
}

const namespace = "watchdog"

// NewWatchdogMetrics creates the watchdog instruments on mp.
func NewWatchdogMetrics(mp metric.MeterProvider) (*watchdogMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	c := new(watchdogMetrics)
	var err error

	if c.consumersEvaluated, err = meter.Int64Counter(
		"consumers_evaluated_total",
		metric.WithDescription("Total number of running consumers evaluated"),
	); err != nil {
		return nil, err
	}

	if c.consumersTerminated, err = meter.Int64Counter(
		"consumers_terminated_total",
		metric.WithDescription("Total number of consumers terminated, by outcome"),
	); err != nil {
		return nil, err
	}

	if c.terminationFailures, err = meter.Int64Counter(
		"termination_failures_total",
		metric.WithDescription("Total number of consumers that could not be signalled and were left running"),
	); err != nil {
		return nil, err
	}

	if c.offsetErrors, err = meter.Int64Counter(
		"offset_errors_total",
		metric.WithDescription("Total number of consumer group offset lookups that failed"),
	); err != nil {
		return nil, err
	}

	if c.movement, err = meter.Int64Counter(
		"offset_movement_total",
		metric.WithDescription("Offset movement classifications, by state"),
	); err != nil {
		return nil, err
	}

	if c.cycleDuration, err = meter.Float64Histogram(
		"cycle_duration_seconds",
		metric.WithDescription("Time taken to evaluate every panel once"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *watchdogMetrics) IncConsumersEvaluated(ctx context.Context) {
	c.consumersEvaluated.Add(ctx, 1)
}

func (c *watchdogMetrics) IncConsumersTerminated(ctx context.Context, outcome Outcome) {
	c.consumersTerminated.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome.String())))
}

func (c *watchdogMetrics) IncTerminationFailures(ctx context.Context) {
	c.terminationFailures.Add(ctx, 1)
}

func (c *watchdogMetrics) IncOffsetErrors(ctx context.Context) { c.offsetErrors.Add(ctx, 1) }

func (c *watchdogMetrics) IncMovement(ctx context.Context, m Movement) {
	c.movement.Add(ctx, 1, metric.WithAttributes(attribute.String("state", m.String())))
}

func (c *watchdogMetrics) ObserveCycleDuration(ctx context.Context, d time.Duration) {
	c.cycleDuration.Record(ctx, d.Seconds())
}
