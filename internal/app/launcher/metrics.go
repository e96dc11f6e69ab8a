package launcher

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
)

// LauncherMetrics defines metrics operations needed by the worker launchers.
type LauncherMetrics interface {
	IncItemsDequeued(ctx context.Context, m migration.Method)
	IncMalformedItems(ctx context.Context, m migration.Method)
	IncProcessesLaunched(ctx context.Context, m migration.Method)
	IncRegistrationsMissed(ctx context.Context, m migration.Method)
	ObserveItemDuration(ctx context.Context, m migration.Method, d time.Duration)
	SetActive(ctx context.Context, m migration.Method, active bool)
}

type launcherMetrics struct {
	itemsDequeued       metric.Int64Counter
	malformedItems      metric.Int64Counter
	processesLaunched   metric.Int64Counter
	registrationsMissed metric.Int64Counter
	itemDuration        metric.Float64Histogram
	activeProcesses     metric.Int64UpDownCounter
}

const namespace = "launcher"

// NewLauncherMetrics creates the launcher instruments on mp.
func NewLauncherMetrics(mp metric.MeterProvider) (*launcherMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	c := new(launcherMetrics)
	var err error

	if c.itemsDequeued, err = meter.Int64Counter(
		"items_dequeued_total",
		metric.WithDescription("Total number of work descriptors popped from method queues"),
	); err != nil {
		return nil, err
	}

	if c.malformedItems, err = meter.Int64Counter(
		"items_malformed_total",
		metric.WithDescription("Total number of work descriptors skipped because they could not be decoded"),
	); err != nil {
		return nil, err
	}

	if c.processesLaunched, err = meter.Int64Counter(
		"processes_launched_total",
		metric.WithDescription("Total number of migration subprocesses started"),
	); err != nil {
		return nil, err
	}

	if c.registrationsMissed, err = meter.Int64Counter(
		"registrations_missed_total",
		metric.WithDescription("Total number of subprocesses that never wrote a status record"),
	); err != nil {
		return nil, err
	}

	if c.itemDuration, err = meter.Float64Histogram(
		"item_duration_seconds",
		metric.WithDescription("Time from dequeue until the subprocess exited"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if c.activeProcesses, err = meter.Int64UpDownCounter(
		"active_processes",
		metric.WithDescription("Number of migration subprocesses currently being waited on"),
	); err != nil {
		return nil, err
	}

	return c, nil
}

func methodAttr(m migration.Method) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("method", m.String()))
}

func (c *launcherMetrics) IncItemsDequeued(ctx context.Context, m migration.Method) {
	c.itemsDequeued.Add(ctx, 1, methodAttr(m))
}

func (c *launcherMetrics) IncMalformedItems(ctx context.Context, m migration.Method) {
	c.malformedItems.Add(ctx, 1, methodAttr(m))
}

func (c *launcherMetrics) IncProcessesLaunched(ctx context.Context, m migration.Method) {
	c.processesLaunched.Add(ctx, 1, methodAttr(m))
}

func (c *launcherMetrics) IncRegistrationsMissed(ctx context.Context, m migration.Method) {
	c.registrationsMissed.Add(ctx, 1, methodAttr(m))
}

func (c *launcherMetrics) ObserveItemDuration(ctx context.Context, m migration.Method, d time.Duration) {
	c.itemDuration.Record(ctx, d.Seconds(), methodAttr(m))
}

func (c *launcherMetrics) SetActive(ctx context.Context, m migration.Method, active bool) {
	delta := int64(-1)
	if active {
		delta = 1
	}
	c.activeProcesses.Add(ctx, delta, methodAttr(m))
}
