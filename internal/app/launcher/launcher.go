// Package launcher drains per-method work queues, running one migration
// subprocess at a time for each method and tracking its PID until it exits.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/pkg/common/logger"
	"github.com/ahrav/mongoremodel/pkg/common/timeutil"
)

// Timing controls the launcher's waits.
type Timing struct {
	// SettleDelay is slept after spawning, before looking for the status record.
	SettleDelay time.Duration
	// RegistrationRetries bounds the status lookups per item.
	RegistrationRetries  int
	RegistrationInterval time.Duration
	// ExitPollInterval is the process table polling cadence.
	ExitPollInterval time.Duration
	// Cooldown is slept after a subprocess exits.
	Cooldown time.Duration
}

// DefaultTiming matches the cadence the migration binaries were tuned for.
func DefaultTiming() Timing {
	return Timing{
		SettleDelay:          3 * time.Second,
		RegistrationRetries:  60,
		RegistrationInterval: time.Second,
		ExitPollInterval:     time.Second,
		Cooldown:             time.Second,
	}
}

// Deps bundles the collaborators shared by every launcher in a process.
type Deps struct {
	Queue    migration.QueueRepository
	Status   migration.StatusRepository
	Spawner  migration.Spawner
	Procs    migration.ProcessTable
	Registry *Registry
	Builder  CommandBuilder
	Clock    timeutil.Clock
	Timing   Timing
	Metrics  LauncherMetrics
	Tracer   trace.Tracer
	Logger   *logger.Logger
}

// Launcher services exactly one method's queue. Items are handled strictly
// one at a time, in queue order.
type Launcher struct {
	method migration.Method
	role   migration.Role
	Deps
	logger *logger.Logger
}

// New creates a launcher for m.
func New(m migration.Method, deps Deps) *Launcher {
	if deps.Clock == nil {
		deps.Clock = timeutil.Default()
	}
	return &Launcher{
		method: m,
		role:   m.Role(),
		Deps:   deps,
		logger: deps.Logger.With("component", "launcher", "role", m.Role(), "method", m),
	}
}

// Method returns the method this launcher services.
func (l *Launcher) Method() migration.Method { return l.method }

// Run drains the queue. It returns nil once the queue is empty, the context
// error on cancellation, and any other error when the coordination store can
// no longer be used.
func (l *Launcher) Run(ctx context.Context) error {
	queue := l.method.QueueName()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		desc, ok, err := l.Queue.Dequeue(ctx, queue)
		if err != nil {
			if errors.Is(err, migration.ErrMalformedDescriptor) {
				l.Metrics.IncMalformedItems(ctx, l.method)
				l.logger.Error(ctx, "Skipping malformed work descriptor", "queue", queue, "error", err)
				continue
			}
			return fmt.Errorf("dequeue from %s: %w", queue, err)
		}
		if !ok {
			l.logger.Info(ctx, "No more data in queue", "queue", queue)
			return nil
		}

		l.Metrics.IncItemsDequeued(ctx, l.method)
		if err := l.process(ctx, desc); err != nil {
			return err
		}
	}
}

// process runs one descriptor to completion. Only errors that make the
// launcher unable to continue are returned.
func (l *Launcher) process(ctx context.Context, desc migration.WorkDescriptor) error {
	start := l.Clock.Now()
	ctx, span := l.Tracer.Start(ctx, "launcher.process_item",
		trace.WithAttributes(
			attribute.String("method", l.method.String()),
			attribute.String("panel", desc.PanelName),
		))
	defer span.End()

	logCtx := logger.NewLoggerContext(l.logger)
	logCtx.Add("panel", desc.PanelName)

	argv := l.Builder.Build(l.method, desc)
	logCtx.Info(ctx, "Dequeued work descriptor", "start_uid", desc.StartUID, "end_uid", desc.EndUID)

	spawned, err := l.Spawner.Start(ctx, argv)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logCtx.Error(ctx, "Failed to start migration process", "command", argv, "error", err)
		return fmt.Errorf("starting %s for %s: %w", l.method, desc.PanelName, err)
	}
	l.Metrics.IncProcessesLaunched(ctx, l.method)
	logCtx.Add("spawned_pid", spawned)
	span.AddEvent("process_started", trace.WithAttributes(attribute.Int("spawned_pid", spawned)))

	if err := l.Clock.Sleep(ctx, l.Timing.SettleDelay); err != nil {
		return err
	}

	rec, found, err := l.awaitRegistration(ctx, logCtx, desc.PanelName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if !found {
		l.Metrics.IncRegistrationsMissed(ctx, l.method)
		span.SetStatus(codes.Error, "status registration not found")
		logCtx.Error(ctx, "Failed to get status registration, skipping item",
			"status_key", l.role.StatusKey(desc.PanelName),
			"retries", l.Timing.RegistrationRetries,
		)
		return nil
	}

	pid := rec.PID
	logCtx.Add("pid", pid)
	span.SetAttributes(attribute.Int("pid", pid))

	if prev, replaced := l.Registry.Set(l.method, pid); replaced {
		logCtx.Warn(ctx, "Replaced stale PID for method", "previous_pid", prev)
	}
	l.Metrics.SetActive(ctx, l.method, true)

	logCtx.Info(ctx, "Waiting for process to complete")
	waitErr := l.awaitExit(ctx, logCtx, pid)

	l.Metrics.SetActive(ctx, l.method, false)
	if waitErr != nil {
		// Leave the PID registered so the shutdown handler can still reach it.
		return waitErr
	}
	l.Registry.Clear(l.method)

	l.Metrics.ObserveItemDuration(ctx, l.method, l.Clock.Now().Sub(start))
	logCtx.Info(ctx, "Process completed")

	return l.Clock.Sleep(ctx, l.Timing.Cooldown)
}

// awaitRegistration polls the status registry until the subprocess has
// written its record or the retry budget runs out. Only a running record with
// a PID counts; a terminal record left by an earlier run is stale.
func (l *Launcher) awaitRegistration(
	ctx context.Context,
	logCtx *logger.LoggerContext,
	panel string,
) (migration.StatusRecord, bool, error) {
	for attempt := 1; attempt <= l.Timing.RegistrationRetries; attempt++ {
		rec, ok, err := l.Status.GetStatus(ctx, l.role, panel, l.method)
		switch {
		case errors.Is(err, migration.ErrMalformedStatus):
			logCtx.Warn(ctx, "Status record not yet readable", "retry", attempt, "error", err)
		case err != nil:
			return migration.StatusRecord{}, false, fmt.Errorf("reading status for %s: %w", panel, err)
		case ok && rec.Status == migration.StatusRunning && rec.PID > 0:
			return rec, true, nil
		case ok && rec.Status != migration.StatusRunning:
			logCtx.Debug(ctx, "Status record is not running yet", "retry", attempt, "status", rec.Status, "stale_pid", rec.PID)
		case ok:
			logCtx.Warn(ctx, "Status record has no pid", "retry", attempt, "status", rec.Status)
		default:
			logCtx.Debug(ctx, "No status record yet", "retry", attempt)
		}

		if attempt == l.Timing.RegistrationRetries {
			break
		}
		if err := l.Clock.Sleep(ctx, l.Timing.RegistrationInterval); err != nil {
			return migration.StatusRecord{}, false, err
		}
	}
	return migration.StatusRecord{}, false, nil
}

// awaitExit blocks until pid leaves the process table. Lookup errors are
// logged and retried.
func (l *Launcher) awaitExit(ctx context.Context, logCtx *logger.LoggerContext, pid int) error {
	for {
		alive, err := l.Procs.Exists(ctx, pid)
		if err != nil {
			logCtx.Warn(ctx, "Failed to check process", "error", err)
		} else if !alive {
			return nil
		}
		if err := l.Clock.Sleep(ctx, l.Timing.ExitPollInterval); err != nil {
			return err
		}
	}
}
