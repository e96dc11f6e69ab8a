package kafka

import (
	"context"
	"fmt"
	"sort"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
)

var _ migration.OffsetInspector = (*AdminInspector)(nil)

// offsetSource is the subset of sarama used to read offsets.
type offsetSource interface {
	ListConsumerGroupOffsets(group string, topicPartitions map[string][]int32) (*sarama.OffsetFetchResponse, error)
	GetOffset(topic string, partitionID int32, time int64) (int64, error)
}

type saramaSource struct {
	admin  sarama.ClusterAdmin
	client sarama.Client
}

func (s saramaSource) ListConsumerGroupOffsets(group string, tps map[string][]int32) (*sarama.OffsetFetchResponse, error) {
	return s.admin.ListConsumerGroupOffsets(group, tps)
}

func (s saramaSource) GetOffset(topic string, partition int32, t int64) (int64, error) {
	return s.client.GetOffset(topic, partition, t)
}

// AdminInspector reads committed offsets with the OffsetFetch admin call and
// log-end offsets from partition leaders.
type AdminInspector struct {
	src    offsetSource
	closer func() error
	tracer trace.Tracer
}

// NewAdminInspector wraps client. Closing the inspector closes client.
func NewAdminInspector(client sarama.Client, tracer trace.Tracer) (*AdminInspector, error) {
	admin, err := sarama.NewClusterAdminFromClient(client)
	if err != nil {
		return nil, fmt.Errorf("creating cluster admin: %w", err)
	}
	return &AdminInspector{
		src:    saramaSource{admin: admin, client: client},
		closer: admin.Close,
		tracer: tracer,
	}, nil
}

// GroupOffsets returns committed and log-end offsets for every partition the
// group has committed on. Partitions without a commit are skipped, matching
// the "-" rows of the describe tool.
func (a *AdminInspector) GroupOffsets(ctx context.Context, group string) (migration.GroupOffsets, error) {
	_, span := a.tracer.Start(ctx, "kafka.admin.group_offsets",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("group", group)),
	)
	defer span.End()

	out, err := a.groupOffsets(group)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return migration.GroupOffsets{}, err
	}
	consumed, produced := out.Totals()
	span.SetAttributes(
		attribute.Int64("consumed", consumed),
		attribute.Int64("produced", produced),
	)
	return out, nil
}

func (a *AdminInspector) groupOffsets(group string) (migration.GroupOffsets, error) {
	resp, err := a.src.ListConsumerGroupOffsets(group, nil)
	if err != nil {
		return migration.GroupOffsets{}, fmt.Errorf("listing offsets for group %s: %w", group, err)
	}
	if resp.Err != sarama.ErrNoError {
		return migration.GroupOffsets{}, fmt.Errorf("listing offsets for group %s: %w", group, resp.Err)
	}

	out := migration.GroupOffsets{Group: group}

	topics := make([]string, 0, len(resp.Blocks))
	for topic := range resp.Blocks {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	for _, topic := range topics {
		for partition, block := range resp.Blocks[topic] {
			if block == nil || block.Err != sarama.ErrNoError || block.Offset < 0 {
				continue
			}
			end, err := a.src.GetOffset(topic, partition, sarama.OffsetNewest)
			if err != nil {
				return migration.GroupOffsets{}, fmt.Errorf("log-end offset of %s/%d: %w", topic, partition, err)
			}
			if end < 0 {
				continue
			}
			out.Set(topic, partition, block.Offset, end)
		}
	}

	if out.Empty() {
		return migration.GroupOffsets{}, fmt.Errorf("group %s: %w", group, migration.ErrNoOffsets)
	}
	return out, nil
}

// Close releases the admin connection and its client.
func (a *AdminInspector) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer()
}
