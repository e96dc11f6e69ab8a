// Package kafka reads consumer-group offsets, either through the Kafka admin
// protocol or by parsing the output of kafka-consumer-groups.sh.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"

	"github.com/ahrav/mongoremodel/pkg/common/logger"
)

// ClientConfig contains all configuration needed for Kafka client setup.
type ClientConfig struct {
	Brokers  []string
	ClientID string
}

// NewClient creates a Kafka client configured for offset inspection only.
func NewClient(cfg *ClientConfig) (sarama.Client, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID

	config.Admin.Timeout = 10 * time.Second
	config.Metadata.Retry.Max = 3
	config.Metadata.Retry.Backoff = 500 * time.Millisecond

	// Version should be consistent across all components
	config.Version = sarama.V3_6_0_0

	return sarama.NewClient(cfg.Brokers, config)
}

// ConnectWithRetry attempts to create a client with exponential backoff,
// giving up after maxElapsed.
func ConnectWithRetry(ctx context.Context, cfg *ClientConfig, maxElapsed time.Duration, log *logger.Logger) (sarama.Client, error) {
	var client sarama.Client

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = maxElapsed
	expBackoff.InitialInterval = time.Second

	operation := func() error {
		var err error
		client, err = NewClient(cfg)
		if err != nil {
			log.Warn(ctx, "Failed to connect to Kafka, will retry", "brokers", cfg.Brokers, "error", err)
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka after retries: %w", err)
	}

	return client, nil
}
