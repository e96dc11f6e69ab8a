package migration

import (
	"maps"
	"sort"
)

// PartitionOffsets maps a partition to an offset.
type PartitionOffsets map[int32]int64

// Sum totals the offsets across partitions.
func (p PartitionOffsets) Sum() int64 {
	var total int64
	for _, o := range p {
		total += o
	}
	return total
}

// TopicOffsets holds one topic's committed and log-end offsets for every
// partition with a committed position.
type TopicOffsets struct {
	Current PartitionOffsets
	LogEnd  PartitionOffsets
}

// NewTopicOffsets returns empty offset maps.
func NewTopicOffsets() TopicOffsets {
	return TopicOffsets{Current: make(PartitionOffsets), LogEnd: make(PartitionOffsets)}
}

// GroupOffsets describes a consumer group's offsets, per topic it has
// committed on.
type GroupOffsets struct {
	Group  string
	Topics map[string]TopicOffsets
}

// Set records the offsets of one topic partition.
func (g *GroupOffsets) Set(topic string, partition int32, current, logEnd int64) {
	if g.Topics == nil {
		g.Topics = make(map[string]TopicOffsets)
	}
	t, ok := g.Topics[topic]
	if !ok {
		t = NewTopicOffsets()
		g.Topics[topic] = t
	}
	t.Current[partition] = current
	t.LogEnd[partition] = logEnd
}

// TopicNames returns the topics in name order.
func (g GroupOffsets) TopicNames() []string {
	names := make([]string, 0, len(g.Topics))
	for name := range g.Topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Totals returns the consumed (committed) and produced (log-end) offsets
// summed over every topic and partition.
func (g GroupOffsets) Totals() (consumed, produced int64) {
	for _, t := range g.Topics {
		consumed += t.Current.Sum()
		produced += t.LogEnd.Sum()
	}
	return consumed, produced
}

// Lag returns produced minus consumed.
func (g GroupOffsets) Lag() int64 {
	consumed, produced := g.Totals()
	return produced - consumed
}

// Empty reports whether no partition carried numeric offsets.
func (g GroupOffsets) Empty() bool {
	for _, t := range g.Topics {
		if len(t.Current) > 0 && len(t.LogEnd) > 0 {
			return false
		}
	}
	return true
}

// OffsetSnapshot is the cached view of a topic used to detect movement
// between watchdog cycles.
type OffsetSnapshot struct {
	End      PartitionOffsets `json:"end"`
	Consumer PartitionOffsets `json:"consumer"`
}

// SnapshotOf captures t for caching.
func SnapshotOf(t TopicOffsets) OffsetSnapshot {
	return OffsetSnapshot{End: maps.Clone(t.LogEnd), Consumer: maps.Clone(t.Current)}
}

// Equal reports whether both offset maps match.
func (s OffsetSnapshot) Equal(o OffsetSnapshot) bool {
	return maps.Equal(s.End, o.End) && maps.Equal(s.Consumer, o.Consumer)
}

// CaughtUp reports whether every partition's consumer offset equals its
// log-end offset.
func (s OffsetSnapshot) CaughtUp() bool { return maps.Equal(s.End, s.Consumer) }
