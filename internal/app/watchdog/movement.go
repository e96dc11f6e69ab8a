package watchdog

import (
	"context"
	"fmt"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
)

// Movement classifies how a topic's offsets changed since the last cycle.
type Movement int

const (
	MovementUnknown Movement = iota
	// MovementFirstSeen means no previous snapshot was cached.
	MovementFirstSeen
	// MovementMoving means log-end or consumer offsets advanced.
	MovementMoving
	// MovementCaughtUp means nothing moved and the consumer sits at log end;
	// the source has dried up.
	MovementCaughtUp
	// MovementStalled means nothing moved but lag remains; the consumer
	// itself is hanging.
	MovementStalled
)

func (m Movement) String() string {
	switch m {
	case MovementFirstSeen:
		return "first_seen"
	case MovementMoving:
		return "moving"
	case MovementCaughtUp:
		return "caught_up"
	case MovementStalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// MovementTracker compares each topic's offsets against the snapshot cached
// in the previous cycle and replaces the snapshot.
type MovementTracker struct {
	snapshots migration.SnapshotRepository
}

// NewMovementTracker creates a tracker over repo.
func NewMovementTracker(repo migration.SnapshotRepository) *MovementTracker {
	return &MovementTracker{snapshots: repo}
}

// Observe classifies the offsets of a single topic and caches them for the
// next call.
func (t *MovementTracker) Observe(ctx context.Context, topic string, offsets migration.TopicOffsets) (Movement, error) {
	cur := migration.SnapshotOf(offsets)

	prev, ok, err := t.snapshots.LoadSnapshot(ctx, topic)
	if err != nil {
		return MovementUnknown, fmt.Errorf("loading offset snapshot for %s: %w", topic, err)
	}
	if err := t.snapshots.SaveSnapshot(ctx, topic, cur); err != nil {
		return MovementUnknown, fmt.Errorf("saving offset snapshot for %s: %w", topic, err)
	}

	switch {
	case !ok:
		return MovementFirstSeen, nil
	case !prev.Equal(cur):
		return MovementMoving, nil
	case cur.CaughtUp():
		return MovementCaughtUp, nil
	default:
		return MovementStalled, nil
	}
}
