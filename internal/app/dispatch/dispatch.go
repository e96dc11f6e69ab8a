// Package dispatch enqueues panel work descriptors onto the method queues.
package dispatch

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/pkg/common/logger"
)

// Scope selects which side of the pipeline receives descriptors.
type Scope string

const (
	ScopeProducers Scope = "producers"
	ScopeConsumers Scope = "consumers"
	ScopeBoth      Scope = "both"
)

// ParseScope validates an operator supplied scope.
func ParseScope(s string) (Scope, error) {
	switch sc := Scope(s); sc {
	case ScopeProducers, ScopeConsumers, ScopeBoth:
		return sc, nil
	default:
		return "", fmt.Errorf("unknown dispatch scope %q (want producers, consumers or both)", s)
	}
}

// Methods returns every method the scope covers, producers first.
func (s Scope) Methods() []migration.Method {
	var out []migration.Method
	if s == ScopeProducers || s == ScopeBoth {
		out = append(out, migration.Methods(migration.RoleProducer)...)
	}
	if s == ScopeConsumers || s == ScopeBoth {
		out = append(out, migration.Methods(migration.RoleConsumer)...)
	}
	return out
}

// Report summarizes a dispatch run.
type Report struct {
	Panels   int
	Enqueued int
	// Unresolved lists panels skipped because no high-water mark was found.
	Unresolved []string
	// Invalid lists panels whose names cannot form a descriptor. They are
	// rejected before anything is enqueued.
	Invalid []string
}

// Dispatcher pushes one descriptor per (panel, method). Re-running appends
// duplicates; queues must be cleared first.
type Dispatcher struct {
	queue  migration.QueueRepository
	uids   migration.UIDSource
	tracer trace.Tracer
	logger *logger.Logger
}

// New creates a Dispatcher. uids may be nil, in which case descriptors carry
// no uid bounds.
func New(queue migration.QueueRepository, uids migration.UIDSource, tracer trace.Tracer, log *logger.Logger) *Dispatcher {
	return &Dispatcher{queue: queue, uids: uids, tracer: tracer, logger: log.With("component", "dispatcher")}
}

// Dispatch enqueues panels for every method in scope.
func (d *Dispatcher) Dispatch(ctx context.Context, panels []string, scope Scope) (Report, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.panels",
		trace.WithAttributes(
			attribute.String("scope", string(scope)),
			attribute.Int("panels", len(panels)),
		))
	defer span.End()

	methods := scope.Methods()
	report := Report{Panels: len(panels)}

	valid := make([]string, 0, len(panels))
	for _, panel := range panels {
		if err := migration.NewWorkDescriptor(panel).Validate(); err != nil {
			d.logger.Warn(ctx, "Invalid panel name, skipping", "panel", panel, "error", err)
			report.Invalid = append(report.Invalid, panel)
			continue
		}
		valid = append(valid, panel)
	}

	for _, panel := range valid {
		desc, ok, err := d.describe(ctx, panel)
		if err != nil {
			span.RecordError(err)
			return report, err
		}
		if !ok {
			d.logger.Warn(ctx, "No uid high-water mark for panel, skipping", "panel", panel)
			report.Unresolved = append(report.Unresolved, panel)
			continue
		}

		for _, m := range methods {
			if err := d.queue.Enqueue(ctx, m.QueueName(), desc); err != nil {
				span.RecordError(err)
				return report, fmt.Errorf("enqueue %s for %s: %w", m, panel, err)
			}
			report.Enqueued++
		}
		d.logger.Info(ctx, "Panel dispatched",
			"panel", panel,
			"methods", len(methods),
			"start_uid", desc.StartUID,
			"end_uid", desc.EndUID,
		)
	}

	span.SetAttributes(
		attribute.Int("enqueued", report.Enqueued),
		attribute.Int("invalid", len(report.Invalid)),
	)
	return report, nil
}

// describe builds the descriptor for panel. With a UID source the range is
// [1, max + max/10] so records inserted during the migration are covered.
func (d *Dispatcher) describe(ctx context.Context, panel string) (migration.WorkDescriptor, bool, error) {
	desc := migration.NewWorkDescriptor(panel)
	if d.uids == nil {
		return desc, true, nil
	}

	maxUID, ok, err := d.uids.MaxUID(ctx, panel)
	if err != nil {
		return desc, false, fmt.Errorf("looking up max uid for %s: %w", panel, err)
	}
	if !ok || maxUID < 1 {
		return desc, false, nil
	}
	return desc.WithRange(1, maxUID+maxUID/10), true, nil
}
