package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/internal/infra/storage"
)

// ResetScope selects which key families Reset removes.
type ResetScope struct {
	Queues    bool
	Statuses  bool
	Snapshots bool
}

// ResetAll selects every key family.
var ResetAll = ResetScope{Queues: true, Statuses: true, Snapshots: true}

// ResetReport counts the keys removed per family.
type ResetReport struct {
	Queues    int64
	Statuses  int64
	Snapshots int64
}

// Resetter clears orchestration state before a fresh migration run. Only keys
// owned by the orchestrator are touched.
type Resetter struct {
	client goredis.Cmdable
	tracer trace.Tracer
}

// NewResetter creates a Resetter.
func NewResetter(client goredis.Cmdable, tracer trace.Tracer) *Resetter {
	return &Resetter{client: client, tracer: tracer}
}

// Reset deletes the key families selected by scope.
func (r *Resetter) Reset(ctx context.Context, scope ResetScope) (ResetReport, error) {
	var report ResetReport

	err := storage.ExecuteAndTrace(ctx, r.tracer, "redis.reset", defaultDBAttributes, func(ctx context.Context) error {
		if scope.Queues {
			var queues []string
			for _, role := range migration.Roles() {
				for _, m := range migration.Methods(role) {
					queues = append(queues, m.QueueName())
				}
			}
			n, err := r.del(ctx, queues)
			if err != nil {
				return err
			}
			report.Queues = n
		}

		if scope.Statuses {
			for _, role := range migration.Roles() {
				keys, err := scanKeys(ctx, r.client, role.StatusKeyPattern())
				if err != nil {
					return err
				}
				n, err := r.del(ctx, keys)
				if err != nil {
					return err
				}
				report.Statuses += n
			}
		}

		if scope.Snapshots {
			keys, err := scanKeys(ctx, r.client, SnapshotKeyPrefix+"*")
			if err != nil {
				return err
			}
			n, err := r.del(ctx, keys)
			if err != nil {
				return err
			}
			report.Snapshots = n
		}
		return nil
	})
	return report, err
}

func (r *Resetter) del(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete %d keys: %w", len(keys), err)
	}
	return n, nil
}
