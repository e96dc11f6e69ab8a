// Package watchdog terminates consumer subprocesses once their producer has
// finished and their Kafka consumer group has drained.
package watchdog

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

// Config scopes and paces the watchdog.
type Config struct {
	// Panels limits evaluation to these panels. Empty means every panel with
	// a consumer status hash.
	Panels []string
	// Env, when set, skips consumers reporting a different env.
	Env      string
	Interval time.Duration
}

// Deps are the watchdog's collaborators.
type Deps struct {
	Status    migration.StatusRepository
	Offsets   migration.OffsetInspector
	Movement  *MovementTracker
	Terminate *Terminator
	Notifier  migration.Notifier
	Clock     timeutil.Clock
	Metrics   WatchdogMetrics
	Tracer    trace.Tracer
	Logger    *logger.Logger
}

// CycleReport summarizes one pass over the panel set.
type CycleReport struct {
	Evaluated  int
	Terminated int
	Skipped    int
}

// Watchdog runs evaluation cycles sequentially until stopped.
type Watchdog struct {
	cfg Config
	Deps
	logger *logger.Logger
}

// New creates a Watchdog.
func New(cfg Config, deps Deps) *Watchdog {
	if deps.Clock == nil {
		deps.Clock = timeutil.Default()
	}
	return &Watchdog{cfg: cfg, Deps: deps, logger: deps.Logger.With("component", "watchdog")}
}

// Run loops forever, sleeping Interval between cycles. It returns the context
// error when stopped and any coordination store error.
func (w *Watchdog) Run(ctx context.Context) error {
	w.logger.Info(ctx, "Watchdog started", "interval", w.cfg.Interval, "env", w.cfg.Env, "panels", len(w.cfg.Panels))
	for {
		report, err := w.RunCycle(ctx)
		if err != nil {
			return err
		}
		w.logger.Debug(ctx, "Watchdog cycle finished",
			"evaluated", report.Evaluated,
			"terminated", report.Terminated,
			"skipped", report.Skipped,
		)
		if err := w.Clock.Sleep(ctx, w.cfg.Interval); err != nil {
			return err
		}
	}
}

// RunCycle evaluates every running consumer in scope once.
func (w *Watchdog) RunCycle(ctx context.Context) (CycleReport, error) {
	start := w.Clock.Now()
	ctx, span := w.Tracer.Start(ctx, "watchdog.cycle")
	defer span.End()

	var report CycleReport
	panels, err := w.panels(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	for _, panel := range panels {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := w.evaluatePanel(ctx, panel, &report); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return report, err
		}
	}

	w.Metrics.ObserveCycleDuration(ctx, w.Clock.Now().Sub(start))
	span.SetAttributes(
		attribute.Int("panels", len(panels)),
		attribute.Int("evaluated", report.Evaluated),
		attribute.Int("terminated", report.Terminated),
	)
	return report, nil
}

func (w *Watchdog) panels(ctx context.Context) ([]string, error) {
	if len(w.cfg.Panels) > 0 {
		return w.cfg.Panels, nil
	}
	panels, err := w.Status.Panels(ctx, migration.RoleConsumer)
	if err != nil {
		return nil, fmt.Errorf("listing consumer panels: %w", err)
	}
	return panels, nil
}

func (w *Watchdog) evaluatePanel(ctx context.Context, panel string, report *CycleReport) error {
	fields, err := w.Status.Methods(ctx, migration.RoleConsumer, panel)
	if err != nil {
		return fmt.Errorf("listing methods for %s: %w", panel, err)
	}

	for _, field := range fields {
		m, err := migration.ParseMethod(field)
		if err != nil || m.Role() != migration.RoleConsumer {
			w.logger.Warn(ctx, "Ignoring unknown consumer method field", "panel", panel, "field", field)
			report.Skipped++
			continue
		}
		if err := w.evaluate(ctx, panel, m, report); err != nil {
			return err
		}
	}
	return nil
}

// evaluate handles one consumer. Only coordination store failures are
// returned; everything else skips the consumer until the next cycle.
func (w *Watchdog) evaluate(ctx context.Context, panel string, m migration.Method, report *CycleReport) error {
	logCtx := logger.NewLoggerContext(w.logger)
	logCtx.Add("panel", panel, "method", m)

	rec, ok, err := w.Status.GetStatus(ctx, migration.RoleConsumer, panel, m)
	switch {
	case errors.Is(err, migration.ErrMalformedStatus):
		logCtx.Warn(ctx, "Skipping unreadable consumer status", "error", err)
		report.Skipped++
		return nil
	case err != nil:
		return fmt.Errorf("reading consumer status for %s/%s: %w", panel, m, err)
	case !ok || rec.Status != migration.StatusRunning:
		return nil
	}
	if w.cfg.Env != "" && rec.Env != w.cfg.Env {
		return nil
	}

	ctx, span := w.Tracer.Start(ctx, "watchdog.evaluate",
		trace.WithAttributes(
			attribute.String("panel", panel),
			attribute.String("method", m.String()),
			attribute.Int("pid", rec.PID),
		))
	defer span.End()

	report.Evaluated++
	w.Metrics.IncConsumersEvaluated(ctx)

	ev, err := w.gather(ctx, logCtx, panel, m, rec)
	if err != nil {
		span.RecordError(err)
		return err
	}

	decision := Decide(ev)
	span.SetAttributes(
		attribute.String("action", decision.Action.String()),
		attribute.String("reason", decision.Reason),
	)
	if decision.Action != ActionTerminate {
		logCtx.Debug(ctx, "Consumer still running", "reason", decision.Reason)
		return nil
	}

	logCtx.Info(ctx, "Consumer finished, terminating",
		"reason", decision.Reason,
		"produced", decision.Produced,
		"consumed", decision.Consumed,
	)
	terminated, err := w.terminate(ctx, logCtx, panel, m, decision)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if terminated {
		report.Terminated++
	} else {
		report.Skipped++
	}
	return nil
}

// gather collects the upstream status and the consumer group offsets for one
// consumer. Offsets are read and movement recorded every cycle, whatever the
// producer is doing. Offset failures leave OffsetsKnown false.
func (w *Watchdog) gather(
	ctx context.Context,
	logCtx *logger.LoggerContext,
	panel string,
	m migration.Method,
	rec migration.StatusRecord,
) (Evidence, error) {
	var ev Evidence

	producer, err := m.Counterpart()
	if err != nil {
		return ev, err
	}
	ev.Upstream, ev.UpstreamFound, err = w.Status.GetStatus(ctx, migration.RoleProducer, panel, producer)
	switch {
	case errors.Is(err, migration.ErrMalformedStatus):
		logCtx.Warn(ctx, "Producer status unreadable", "producer_method", producer, "error", err)
		ev.UpstreamFound = false
	case err != nil:
		return ev, fmt.Errorf("reading producer status for %s/%s: %w", panel, producer, err)
	}

	group := rec.ConsumerGroup()
	if group == "" {
		logCtx.Warn(ctx, "Consumer status has no topic or group")
		return ev, nil
	}

	offsets, err := w.Offsets.GroupOffsets(ctx, group)
	if err != nil {
		w.Metrics.IncOffsetErrors(ctx)
		logCtx.Warn(ctx, "Could not read consumer group offsets, retrying next cycle", "group", group, "error", err)
		return ev, nil
	}
	ev.Offsets, ev.OffsetsKnown = offsets, true

	w.observeMovement(ctx, logCtx, rec, offsets)
	return ev, nil
}

// observeMovement classifies the consumer's own topic. A group spanning
// several topics without a topic on the status record is not classified.
func (w *Watchdog) observeMovement(
	ctx context.Context,
	logCtx *logger.LoggerContext,
	rec migration.StatusRecord,
	offsets migration.GroupOffsets,
) {
	if w.Movement == nil {
		return
	}
	topic := rec.TopicName
	if topic == "" {
		if names := offsets.TopicNames(); len(names) == 1 {
			topic = names[0]
		}
	}
	t, ok := offsets.Topics[topic]
	if topic == "" || !ok {
		logCtx.Debug(ctx, "No offsets for consumer topic", "topic", topic, "group_topics", offsets.TopicNames())
		return
	}

	mv, err := w.Movement.Observe(ctx, topic, t)
	if err != nil {
		logCtx.Warn(ctx, "Offset movement unavailable", "topic", topic, "error", err)
		return
	}
	w.Metrics.IncMovement(ctx, mv)
	consumed, produced := t.Current.Sum(), t.LogEnd.Sum()
	logCtx.Info(ctx, "Offset movement", "topic", topic, "movement", mv, "lag", produced-consumed)
}

// terminate stops the consumer and marks it completed. The record is re-read
// so fields the subprocess wrote meanwhile survive the rewrite. It reports
// false when the consumer was left running, for example because signalling
// failed; the status stays running so the next cycle tries again.
func (w *Watchdog) terminate(
	ctx context.Context,
	logCtx *logger.LoggerContext,
	panel string,
	m migration.Method,
	decision Decision,
) (bool, error) {
	rec, ok, err := w.Status.GetStatus(ctx, migration.RoleConsumer, panel, m)
	if err != nil && !errors.Is(err, migration.ErrMalformedStatus) {
		return false, fmt.Errorf("re-reading consumer status for %s/%s: %w", panel, m, err)
	}
	if !ok || err != nil {
		logCtx.Warn(ctx, "Consumer status vanished before termination")
		return false, nil
	}

	outcome := OutcomeNotRunning
	if rec.PID > 0 {
		outcome, err = w.Terminate.Terminate(ctx, rec.PID)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			w.Metrics.IncTerminationFailures(ctx)
			logCtx.Error(ctx, "Failed to terminate consumer, leaving status running", "pid", rec.PID, "error", err)
			return false, nil
		}
	} else {
		logCtx.Warn(ctx, "Consumer has no pid, marking completed without signalling")
	}
	w.Metrics.IncConsumersTerminated(ctx, outcome)

	if err := w.Status.SetStatus(ctx, migration.RoleConsumer, panel, m, rec.WithStatus(migration.StatusCompleted)); err != nil {
		return false, fmt.Errorf("marking %s/%s completed: %w", panel, m, err)
	}
	logCtx.Info(ctx, "Consumer marked completed", "pid", rec.PID, "outcome", outcome)

	if w.Notifier != nil {
		body := fmt.Sprintf("panel=%s method=%s pid=%d outcome=%s produced=%d consumed=%d",
			panel, m, rec.PID, outcome, decision.Produced, decision.Consumed)
		if err := w.Notifier.Notify(ctx, "Consumer terminated", body); err != nil {
			logCtx.Warn(ctx, "Failed to send notification", "error", err)
		}
	}
	return true, nil
}
