package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/internal/infra/storage"
)

var _ migration.StatusRepository = (*StatusStore)(nil)

const scanBatch = 200

// StatusStore reads and writes the producer_<panel> and consumer_<panel>
// hashes. Each field is a method name holding a JSON status record.
type StatusStore struct {
	client goredis.Cmdable
	tracer trace.Tracer
}

// NewStatusStore creates a Redis-backed status repository with tracing.
func NewStatusStore(client goredis.Cmdable, tracer trace.Tracer) *StatusStore {
	return &StatusStore{client: client, tracer: tracer}
}

func statusAttrs(role migration.Role, panel string, m migration.Method) []attribute.KeyValue {
	return append(defaultDBAttributes,
		attribute.String("role", string(role)),
		attribute.String("panel", panel),
		attribute.String("method", m.String()),
	)
}

// GetStatus returns the record for (role, panel, method). ok is false when
// the field has not been written yet.
func (s *StatusStore) GetStatus(
	ctx context.Context,
	role migration.Role,
	panel string,
	m migration.Method,
) (migration.StatusRecord, bool, error) {
	var (
		rec migration.StatusRecord
		ok  bool
	)

	err := storage.ExecuteAndTrace(ctx, s.tracer, "redis.get_status", statusAttrs(role, panel, m), func(ctx context.Context) error {
		key := role.StatusKey(panel)
		raw, err := s.client.HGet(ctx, key, m.String()).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s.%s: %w", key, m, err)
		}

		if rec, err = migration.DecodeStatusRecord(raw); err != nil {
			return fmt.Errorf("%s.%s: %w", key, m, err)
		}
		ok = true
		return nil
	})
	return rec, ok, err
}

// SetStatus overwrites the field with rec.
func (s *StatusStore) SetStatus(
	ctx context.Context,
	role migration.Role,
	panel string,
	m migration.Method,
	rec migration.StatusRecord,
) error {
	return storage.ExecuteAndTrace(ctx, s.tracer, "redis.set_status", statusAttrs(role, panel, m), func(ctx context.Context) error {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode status: %w", err)
		}
		key := role.StatusKey(panel)
		if err := s.client.HSet(ctx, key, m.String(), payload).Err(); err != nil {
			return fmt.Errorf("failed to write %s.%s: %w", key, m, err)
		}
		return nil
	})
}

// Methods lists the fields of a panel's status hash, sorted.
func (s *StatusStore) Methods(ctx context.Context, role migration.Role, panel string) ([]string, error) {
	var fields []string
	attrs := append(defaultDBAttributes,
		attribute.String("role", string(role)),
		attribute.String("panel", panel),
	)

	err := storage.ExecuteAndTrace(ctx, s.tracer, "redis.status_methods", attrs, func(ctx context.Context) error {
		var err error
		key := role.StatusKey(panel)
		if fields, err = s.client.HKeys(ctx, key).Result(); err != nil {
			return fmt.Errorf("failed to list fields of %s: %w", key, err)
		}
		sort.Strings(fields)
		return nil
	})
	return fields, err
}

// Panels scans every status hash for role and returns the panel names, sorted.
func (s *StatusStore) Panels(ctx context.Context, role migration.Role) ([]string, error) {
	var panels []string
	attrs := append(defaultDBAttributes, attribute.String("role", string(role)))

	err := storage.ExecuteAndTrace(ctx, s.tracer, "redis.status_panels", attrs, func(ctx context.Context) error {
		keys, err := scanKeys(ctx, s.client, role.StatusKeyPattern())
		if err != nil {
			return err
		}
		for _, k := range keys {
			if p, ok := role.PanelFromStatusKey(k); ok {
				panels = append(panels, p)
			}
		}
		sort.Strings(panels)
		return nil
	})
	return panels, err
}

func scanKeys(ctx context.Context, client goredis.Cmdable, pattern string) ([]string, error) {
	seen := make(map[string]struct{})
	var keys []string

	iter := client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", pattern, err)
	}
	return keys, nil
}
