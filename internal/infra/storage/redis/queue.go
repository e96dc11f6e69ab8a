package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/internal/infra/storage"
)

var _ migration.QueueRepository = (*QueueStore)(nil)

// QueueStore keeps one Redis list per method queue. Items are pushed on the
// right and popped from the left.
type QueueStore struct {
	client goredis.Cmdable
	tracer trace.Tracer
}

// NewQueueStore creates a Redis-backed queue repository with tracing.
func NewQueueStore(client goredis.Cmdable, tracer trace.Tracer) *QueueStore {
	return &QueueStore{client: client, tracer: tracer}
}

// Enqueue appends d to the tail of queue. Duplicates are not detected.
func (s *QueueStore) Enqueue(ctx context.Context, queue string, d migration.WorkDescriptor) error {
	attrs := append(defaultDBAttributes,
		attribute.String("queue", queue),
		attribute.String("panel", d.PanelName),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "redis.enqueue", attrs, func(ctx context.Context) error {
		payload, err := migration.EncodeDescriptor(d)
		if err != nil {
			return err
		}
		if err := s.client.RPush(ctx, queue, payload).Err(); err != nil {
			return fmt.Errorf("failed to push to %s: %w", queue, err)
		}
		return nil
	})
}

// Dequeue pops the head of queue. An empty queue yields ok=false and no error.
func (s *QueueStore) Dequeue(ctx context.Context, queue string) (migration.WorkDescriptor, bool, error) {
	var (
		desc migration.WorkDescriptor
		ok   bool
	)
	attrs := append(defaultDBAttributes, attribute.String("queue", queue))

	err := storage.ExecuteAndTrace(ctx, s.tracer, "redis.dequeue", attrs, func(ctx context.Context) error {
		raw, err := s.client.LPop(ctx, queue).Result()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to pop from %s: %w", queue, err)
		}

		desc, err = migration.DecodeDescriptor(raw)
		if err != nil {
			return fmt.Errorf("queue %s item %q: %w", queue, raw, err)
		}
		ok = true
		return nil
	})
	return desc, ok, err
}

// Depth returns the number of pending items in queue.
func (s *QueueStore) Depth(ctx context.Context, queue string) (int64, error) {
	var n int64
	attrs := append(defaultDBAttributes, attribute.String("queue", queue))

	err := storage.ExecuteAndTrace(ctx, s.tracer, "redis.depth", attrs, func(ctx context.Context) error {
		var err error
		if n, err = s.client.LLen(ctx, queue).Result(); err != nil {
			return fmt.Errorf("failed to read length of %s: %w", queue, err)
		}
		return nil
	})
	return n, err
}
