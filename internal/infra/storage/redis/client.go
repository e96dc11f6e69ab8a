// Package redis implements the coordination store (work queues, status
// hashes and offset snapshots) on top of Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ahrav/mongoremodel/pkg/common/logger"
)

// Config locates the Redis server.
type Config struct {
	Addr     string
	Password string
	DB       int
}

var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "redis"),
}

// Connect opens a client and pings it, retrying with exponential backoff for
// up to maxElapsed. A store that never answers is fatal to the caller.
func Connect(ctx context.Context, cfg Config, maxElapsed time.Duration, log *logger.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = maxElapsed
	expBackoff.InitialInterval = 500 * time.Millisecond

	operation := func() error {
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn(ctx, "Failed to reach redis, will retry", "addr", cfg.Addr, "error", err)
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s after retries: %w", cfg.Addr, err)
	}

	log.Info(ctx, "Connected to redis", "addr", cfg.Addr, "db", cfg.DB)
	return client, nil
}
