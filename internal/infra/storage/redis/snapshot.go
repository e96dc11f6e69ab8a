package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/internal/infra/storage"
)

var _ migration.SnapshotRepository = (*SnapshotStore)(nil)

// SnapshotKeyPrefix prefixes the cached offsets of each topic.
const SnapshotKeyPrefix = "kafka_offset_tracking:"

// SnapshotKey returns the key caching topic's last observed offsets.
func SnapshotKey(topic string) string { return SnapshotKeyPrefix + topic }

// SnapshotStore persists offset snapshots as JSON strings.
type SnapshotStore struct {
	client goredis.Cmdable
	tracer trace.Tracer
}

// NewSnapshotStore creates a Redis-backed snapshot repository with tracing.
func NewSnapshotStore(client goredis.Cmdable, tracer trace.Tracer) *SnapshotStore {
	return &SnapshotStore{client: client, tracer: tracer}
}

// LoadSnapshot returns the cached snapshot for topic; ok is false on first sight.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context, topic string) (migration.OffsetSnapshot, bool, error) {
	var (
		snap migration.OffsetSnapshot
		ok   bool
	)
	attrs := append(defaultDBAttributes, attribute.String("topic", topic))

	err := storage.ExecuteAndTrace(ctx, s.tracer, "redis.load_snapshot", attrs, func(ctx context.Context) error {
		raw, err := s.client.Get(ctx, SnapshotKey(topic)).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read snapshot for %s: %w", topic, err)
		}
		if err := json.Unmarshal(raw, &snap); err != nil {
			return fmt.Errorf("failed to decode snapshot for %s: %w", topic, err)
		}
		ok = true
		return nil
	})
	return snap, ok, err
}

// SaveSnapshot replaces the cached snapshot for topic.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, topic string, snap migration.OffsetSnapshot) error {
	attrs := append(defaultDBAttributes, attribute.String("topic", topic))

	return storage.ExecuteAndTrace(ctx, s.tracer, "redis.save_snapshot", attrs, func(ctx context.Context) error {
		payload, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		if err := s.client.Set(ctx, SnapshotKey(topic), payload, 0).Err(); err != nil {
			return fmt.Errorf("failed to write snapshot for %s: %w", topic, err)
		}
		return nil
	})
}
