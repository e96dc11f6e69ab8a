package redis

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/internal/infra/storage"
)

func setupRedis(t *testing.T) (*goredis.Client, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	client, cleanup := storage.SetupTestContainer(t)
	t.Cleanup(cleanup)
	return client, context.Background()
}

func TestQueueStore_FIFO(t *testing.T) {
	client, ctx := setupRedis(t)
	store := NewQueueStore(client, storage.NoOpTracer())
	queue := migration.WriteUserAttributes.QueueName()

	_, ok, err := store.Dequeue(ctx, queue)
	require.NoError(t, err)
	assert.False(t, ok, "empty queue must report empty")

	panels := []string{"acme", "globex", "initech"}
	for i, p := range panels {
		require.NoError(t, store.Enqueue(ctx, queue, migration.NewWorkDescriptor(p).WithRange(1, int64(i+10))))
	}

	depth, err := store.Depth(ctx, queue)
	require.NoError(t, err)
	assert.Equal(t, int64(3), depth)

	for _, want := range panels {
		got, ok, err := store.Dequeue(ctx, queue)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, got.PanelName)
	}

	_, ok, err = store.Dequeue(ctx, queue)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueueStore_LegacyAndMalformedItems(t *testing.T) {
	client, ctx := setupRedis(t)
	store := NewQueueStore(client, storage.NoOpTracer())
	queue := migration.ReadUserAttributes.QueueName()

	require.NoError(t, client.RPush(ctx, queue,
		"{'panel_name': 'acme', 'start_uid': 1, 'end_uid': 220}",
		"definitely not a descriptor",
		`{"panel_name":"globex"}`,
	).Err())

	got, ok, err := store.Dequeue(ctx, queue)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "acme", got.PanelName)
	require.NotNil(t, got.EndUID)
	assert.Equal(t, int64(220), *got.EndUID)

	_, ok, err = store.Dequeue(ctx, queue)
	assert.ErrorIs(t, err, migration.ErrMalformedDescriptor)
	assert.False(t, ok)

	got, ok, err = store.Dequeue(ctx, queue)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "globex", got.PanelName)
}

func TestStatusStore(t *testing.T) {
	client, ctx := setupRedis(t)
	store := NewStatusStore(client, storage.NoOpTracer())

	_, ok, err := store.GetStatus(ctx, migration.RoleConsumer, "acme", migration.WriteUserAttributes)
	require.NoError(t, err)
	assert.False(t, ok)

	// Producers write a one-element list, consumers a bare object.
	require.NoError(t, client.HSet(ctx, "producer_acme", "readUserAttributes",
		`[{"status":"completed","pid":11,"topic_name":"acme_UserAttributes"}]`).Err())
	require.NoError(t, client.HSet(ctx, "consumer_acme", "writeUserAttributes",
		`{"status":"running","pid":1234,"topic_name":"acme_UserAttributes","current_consumer_offset":5}`).Err())

	prod, ok, err := store.GetStatus(ctx, migration.RoleProducer, "acme", migration.ReadUserAttributes)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, migration.StatusCompleted, prod.Status)

	cons, ok, err := store.GetStatus(ctx, migration.RoleConsumer, "acme", migration.WriteUserAttributes)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1234, cons.PID)

	require.NoError(t, store.SetStatus(ctx, migration.RoleConsumer, "acme", migration.WriteUserAttributes,
		cons.WithStatus(migration.StatusCompleted)))

	cons, ok, err = store.GetStatus(ctx, migration.RoleConsumer, "acme", migration.WriteUserAttributes)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, migration.StatusCompleted, cons.Status)
	_, kept := cons.Extra("current_consumer_offset")
	assert.True(t, kept)

	methods, err := store.Methods(ctx, migration.RoleConsumer, "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"writeUserAttributes"}, methods)

	require.NoError(t, client.HSet(ctx, "consumer_globex", "writeUserAttributes", `{"status":"running","pid":9}`).Err())
	panels, err := store.Panels(ctx, migration.RoleConsumer)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, panels)
}

func TestSnapshotStore(t *testing.T) {
	client, ctx := setupRedis(t)
	store := NewSnapshotStore(client, storage.NoOpTracer())

	_, ok, err := store.LoadSnapshot(ctx, "acme_UserAttributes")
	require.NoError(t, err)
	assert.False(t, ok)

	snap := migration.OffsetSnapshot{
		End:      migration.PartitionOffsets{0: 10, 1: 12},
		Consumer: migration.PartitionOffsets{0: 9, 1: 12},
	}
	require.NoError(t, store.SaveSnapshot(ctx, "acme_UserAttributes", snap))

	got, ok, err := store.LoadSnapshot(ctx, "acme_UserAttributes")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, snap.Equal(got))
}

func TestResetter(t *testing.T) {
	client, ctx := setupRedis(t)

	require.NoError(t, client.RPush(ctx, "readUserAttributes_queue", `{"panel_name":"acme"}`).Err())
	require.NoError(t, client.HSet(ctx, "consumer_acme", "writeUserAttributes", `{"status":"running"}`).Err())
	require.NoError(t, client.HSet(ctx, "producer_acme", "readUserAttributes", `{"status":"running"}`).Err())
	require.NoError(t, client.Set(ctx, SnapshotKey("t1"), `{}`, 0).Err())
	require.NoError(t, client.Set(ctx, "unrelated", "keep", 0).Err())

	report, err := NewResetter(client, storage.NoOpTracer()).Reset(ctx, ResetAll)
	require.NoError(t, err)
	assert.Equal(t, ResetReport{Queues: 1, Statuses: 2, Snapshots: 1}, report)

	n, err := client.Exists(ctx, "unrelated").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
