package migration

import "context"

// QueueRepository is the per-method FIFO of pending work descriptors.
type QueueRepository interface {
	// Enqueue appends d to the tail of queue.
	Enqueue(ctx context.Context, queue string, d WorkDescriptor) error
	// Dequeue pops the head of queue without blocking. ok is false when the
	// queue is empty. A payload that cannot be decoded is consumed and
	// reported with an error wrapping ErrMalformedDescriptor.
	Dequeue(ctx context.Context, queue string) (d WorkDescriptor, ok bool, err error)
	// Depth returns the number of pending descriptors.
	Depth(ctx context.Context, queue string) (int64, error)
}

// StatusRepository reads and writes the per-panel status hashes.
type StatusRepository interface {
	GetStatus(ctx context.Context, role Role, panel string, m Method) (rec StatusRecord, ok bool, err error)
	// SetStatus overwrites the field; it never merges.
	SetStatus(ctx context.Context, role Role, panel string, m Method, rec StatusRecord) error
	// Methods lists the method fields registered under a panel's hash.
	Methods(ctx context.Context, role Role, panel string) ([]string, error)
	// Panels lists every panel with a status hash for role.
	Panels(ctx context.Context, role Role) ([]string, error)
}

// SnapshotRepository caches the last observed offsets of a topic.
type SnapshotRepository interface {
	LoadSnapshot(ctx context.Context, topic string) (snap OffsetSnapshot, ok bool, err error)
	SaveSnapshot(ctx context.Context, topic string, snap OffsetSnapshot) error
}

// OffsetInspector reads a consumer group's committed and log-end offsets.
// Implementations return an error wrapping ErrNoOffsets when no partition
// reports numeric offsets.
type OffsetInspector interface {
	GroupOffsets(ctx context.Context, group string) (GroupOffsets, error)
}

// UIDSource reports the highest source-record uid stored for a panel.
type UIDSource interface {
	MaxUID(ctx context.Context, panel string) (uid int64, ok bool, err error)
}

// Notifier announces operator-relevant events (terminations, queue backlog).
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}
