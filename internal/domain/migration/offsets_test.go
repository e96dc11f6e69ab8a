package migration

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupOffsets_Totals(t *testing.T) {
	var g GroupOffsets
	g.Set("acme_user_attributes", 0, 40, 50)
	g.Set("acme_user_attributes", 1, 57, 50)

	consumed, produced := g.Totals()
	assert.Equal(t, int64(97), consumed)
	assert.Equal(t, int64(100), produced)
	assert.Equal(t, int64(3), g.Lag())
	assert.False(t, g.Empty())
	assert.True(t, GroupOffsets{}.Empty())
}

func TestGroupOffsets_TopicsKeptApart(t *testing.T) {
	var g GroupOffsets
	g.Set("events", 0, 10, 10)
	g.Set("events", 1, 5, 8)
	g.Set("attributes", 0, 7, 9)

	assert.Equal(t, []string{"attributes", "events"}, g.TopicNames())
	assert.Equal(t, PartitionOffsets{0: 10, 1: 5}, g.Topics["events"].Current)
	assert.Equal(t, PartitionOffsets{0: 9}, g.Topics["attributes"].LogEnd)

	consumed, produced := g.Totals()
	assert.Equal(t, int64(22), consumed)
	assert.Equal(t, int64(27), produced)
}

func TestOffsetSnapshot(t *testing.T) {
	var g GroupOffsets
	g.Set("t", 0, 10, 10)
	g.Set("t", 1, 20, 20)

	snap := SnapshotOf(g.Topics["t"])
	assert.True(t, snap.CaughtUp())

	g.Topics["t"].Current[1] = 19
	assert.True(t, snap.CaughtUp(), "snapshot must not alias the source maps")
	assert.False(t, snap.Equal(SnapshotOf(g.Topics["t"])))

	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	var back OffsetSnapshot
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, snap.Equal(back))
}
