package watchdog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/pkg/common/logger"
	"github.com/ahrav/mongoremodel/pkg/common/timeutil"
)

type statusKey struct {
	role  migration.Role
	panel string
	m     migration.Method
}

type mockStatus struct {
	mu        sync.Mutex
	records   map[statusKey]migration.StatusRecord
	malformed map[statusKey]bool
	writes    []statusKey
	listErr   error
}

func newMockStatus() *mockStatus {
	return &mockStatus{
		records:   make(map[statusKey]migration.StatusRecord),
		malformed: make(map[statusKey]bool),
	}
}

func (s *mockStatus) put(role migration.Role, panel string, m migration.Method, rec migration.StatusRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[statusKey{role, panel, m}] = rec
}

func (s *mockStatus) get(role migration.Role, panel string, m migration.Method) migration.StatusRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[statusKey{role, panel, m}]
}

func (s *mockStatus) GetStatus(_ context.Context, role migration.Role, panel string, m migration.Method) (migration.StatusRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := statusKey{role, panel, m}
	if s.malformed[k] {
		return migration.StatusRecord{}, false, migration.ErrMalformedStatus
	}
	rec, ok := s.records[k]
	return rec, ok, nil
}

func (s *mockStatus) SetStatus(_ context.Context, role migration.Role, panel string, m migration.Method, rec migration.StatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := statusKey{role, panel, m}
	s.records[k] = rec
	s.writes = append(s.writes, k)
	return nil
}

func (s *mockStatus) Methods(_ context.Context, role migration.Role, panel string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.records {
		if k.role == role && k.panel == panel {
			out = append(out, k.m.String())
		}
	}
	for k := range s.malformed {
		if k.role == role && k.panel == panel {
			out = append(out, k.m.String())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *mockStatus) Panels(_ context.Context, role migration.Role) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	seen := make(map[string]struct{})
	var out []string
	for k := range s.records {
		if _, ok := seen[k.panel]; k.role == role && !ok {
			seen[k.panel] = struct{}{}
			out = append(out, k.panel)
		}
	}
	sort.Strings(out)
	return out, nil
}

type mockInspector struct {
	offsets map[string]migration.GroupOffsets
	err     error
	calls   []string
}

func (i *mockInspector) GroupOffsets(_ context.Context, group string) (migration.GroupOffsets, error) {
	i.calls = append(i.calls, group)
	if i.err != nil {
		return migration.GroupOffsets{}, i.err
	}
	g, ok := i.offsets[group]
	if !ok {
		return migration.GroupOffsets{}, migration.ErrNoOffsets
	}
	return g, nil
}

type mockSnapshots struct {
	snaps map[string]migration.OffsetSnapshot
}

func newMockSnapshots() *mockSnapshots {
	return &mockSnapshots{snaps: make(map[string]migration.OffsetSnapshot)}
}

func (s *mockSnapshots) LoadSnapshot(_ context.Context, topic string) (migration.OffsetSnapshot, bool, error) {
	snap, ok := s.snaps[topic]
	return snap, ok, nil
}

func (s *mockSnapshots) SaveSnapshot(_ context.Context, topic string, snap migration.OffsetSnapshot) error {
	s.snaps[topic] = snap
	return nil
}

// mockProcs keeps PIDs alive until they have received one of exitOn.
type mockProcs struct {
	mu      sync.Mutex
	alive   map[int]bool
	exitOn  syscall.Signal
	signals map[int][]syscall.Signal
	// signalErr fails every Signal call while set.
	signalErr error
}

func newMockProcs(exitOn syscall.Signal) *mockProcs {
	return &mockProcs{alive: make(map[int]bool), exitOn: exitOn, signals: make(map[int][]syscall.Signal)}
}

func (p *mockProcs) Exists(_ context.Context, pid int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive[pid], nil
}

func (p *mockProcs) Signal(_ context.Context, pid int, sig syscall.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signalErr != nil {
		return p.signalErr
	}
	p.signals[pid] = append(p.signals[pid], sig)
	if sig == p.exitOn || sig == syscall.SIGKILL {
		p.alive[pid] = false
	}
	return nil
}

type mockNotifier struct{ bodies []string }

func (n *mockNotifier) Notify(_ context.Context, _, body string) error {
	n.bodies = append(n.bodies, body)
	return nil
}

type watchdogHarness struct {
	status    *mockStatus
	inspector *mockInspector
	snapshots *mockSnapshots
	procs     *mockProcs
	notifier  *mockNotifier
	clock     *timeutil.FakeClock
}

func newWatchdogHarness() *watchdogHarness {
	return &watchdogHarness{
		status:    newMockStatus(),
		inspector: &mockInspector{offsets: make(map[string]migration.GroupOffsets)},
		snapshots: newMockSnapshots(),
		procs:     newMockProcs(syscall.SIGTERM),
		notifier:  &mockNotifier{},
		clock:     timeutil.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
}

func (h *watchdogHarness) watchdog(t *testing.T, cfg Config) *Watchdog {
	t.Helper()
	metrics, err := NewWatchdogMetrics(metricnoop.NewMeterProvider())
	require.NoError(t, err)
	if cfg.Interval == 0 {
		cfg.Interval = 2 * time.Second
	}
	return New(cfg, Deps{
		Status:    h.status,
		Offsets:   h.inspector,
		Movement:  NewMovementTracker(h.snapshots),
		Terminate: NewTerminator(h.procs, h.clock, 60*time.Second, 2*time.Second, logger.Noop()),
		Notifier:  h.notifier,
		Clock:     h.clock,
		Metrics:   metrics,
		Tracer:    noop.NewTracerProvider().Tracer("test"),
		Logger:    logger.Noop(),
	})
}

func offsets(group string, produced, consumed int64) migration.GroupOffsets {
	g := migration.GroupOffsets{Group: group}
	topic := strings.TrimSuffix(group, "_grp")
	g.Set(topic, 0, consumed-consumed/2, produced-produced/2)
	g.Set(topic, 1, consumed/2, produced/2)
	return g
}

// seedConsumer registers a running acme/writeUserAttributes consumer with pid
// 1234 and its producer in the given state.
func (h *watchdogHarness) seedConsumer(producer migration.Status, produced, consumed int64) {
	h.status.put(migration.RoleConsumer, "acme", migration.WriteUserAttributes, migration.StatusRecord{
		Status:    migration.StatusRunning,
		PID:       1234,
		TopicName: "acme_user_attributes",
		Env:       "prod",
	})
	h.status.put(migration.RoleProducer, "acme", migration.ReadUserAttributes, migration.StatusRecord{Status: producer, PID: 999})
	h.inspector.offsets["acme_user_attributes_grp"] = offsets("acme_user_attributes_grp", produced, consumed)
	h.procs.alive[1234] = true
}

func TestWatchdog_TerminationGate(t *testing.T) {
	tests := []struct {
		name          string
		producer      migration.Status
		produced      int64
		consumed      int64
		wantTerminate bool
	}{
		{name: "producer running, drained", producer: migration.StatusRunning, produced: 100, consumed: 100},
		{name: "producer completed, drained", producer: migration.StatusCompleted, produced: 100, consumed: 100, wantTerminate: true},
		{name: "producer killed, drained", producer: migration.StatusKilled, produced: 100, consumed: 100, wantTerminate: true},
		{name: "producer completed, lagging", producer: migration.StatusCompleted, produced: 100, consumed: 97},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newWatchdogHarness()
			h.seedConsumer(tt.producer, tt.produced, tt.consumed)

			report, err := h.watchdog(t, Config{}).RunCycle(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, report.Evaluated)

			rec := h.status.get(migration.RoleConsumer, "acme", migration.WriteUserAttributes)
			if tt.wantTerminate {
				assert.Equal(t, 1, report.Terminated)
				assert.Equal(t, migration.StatusCompleted, rec.Status)
				assert.Equal(t, "acme_user_attributes", rec.TopicName, "other fields survive the rewrite")
				assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, h.procs.signals[1234])
				require.Len(t, h.notifier.bodies, 1)
				assert.Contains(t, h.notifier.bodies[0], "panel=acme")
				return
			}
			assert.Zero(t, report.Terminated)
			assert.Equal(t, migration.StatusRunning, rec.Status)
			assert.Empty(t, h.procs.signals)
			assert.Empty(t, h.status.writes)
		})
	}
}

func TestWatchdog_LaggingIgnoresMovement(t *testing.T) {
	h := newWatchdogHarness()
	h.seedConsumer(migration.StatusCompleted, 100, 97)
	w := h.watchdog(t, Config{})

	// Two identical cycles classify the topic as stalled; still no kill.
	for range 2 {
		_, err := w.RunCycle(context.Background())
		require.NoError(t, err)
	}
	assert.Empty(t, h.procs.signals)
	assert.Contains(t, h.snapshots.snaps, "acme_user_attributes")
}

func TestWatchdog_OffsetErrorSkipsConsumer(t *testing.T) {
	h := newWatchdogHarness()
	h.seedConsumer(migration.StatusCompleted, 100, 100)
	h.inspector.err = errors.New("kafka: broker not available")

	report, err := h.watchdog(t, Config{}).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Terminated)
	assert.Empty(t, h.procs.signals)

	// Next cycle the offsets are back.
	h.inspector.err = nil
	report, err = h.watchdog(t, Config{}).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Terminated)
}

func TestWatchdog_TracksMovementWhileProducerRunning(t *testing.T) {
	h := newWatchdogHarness()
	h.seedConsumer(migration.StatusRunning, 100, 40)
	w := h.watchdog(t, Config{})

	_, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"acme_user_attributes_grp"}, h.inspector.calls)
	require.Contains(t, h.snapshots.snaps, "acme_user_attributes")
	assert.Equal(t, int64(40), h.snapshots.snaps["acme_user_attributes"].Consumer.Sum())

	// The snapshot keeps following the consumer while the producer runs.
	h.inspector.offsets["acme_user_attributes_grp"] = offsets("acme_user_attributes_grp", 120, 70)
	_, err = w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(120), h.snapshots.snaps["acme_user_attributes"].End.Sum())
	assert.Empty(t, h.procs.signals)
	assert.Empty(t, h.status.writes)
}

func TestWatchdog_MovementUsesConsumerTopicOnly(t *testing.T) {
	h := newWatchdogHarness()
	h.seedConsumer(migration.StatusRunning, 100, 40)
	g := h.inspector.offsets["acme_user_attributes_grp"]
	g.Set("acme_other", 0, 5, 5)
	h.inspector.offsets["acme_user_attributes_grp"] = g

	_, err := h.watchdog(t, Config{}).RunCycle(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, h.snapshots.snaps, "acme_other")
	snap := h.snapshots.snaps["acme_user_attributes"]
	assert.Equal(t, int64(100), snap.End.Sum())
	assert.Equal(t, int64(40), snap.Consumer.Sum())
}

func TestWatchdog_FailedSignalLeavesConsumerRunning(t *testing.T) {
	h := newWatchdogHarness()
	h.seedConsumer(migration.StatusCompleted, 100, 100)
	h.procs.signalErr = errors.New("operation not permitted")
	w := h.watchdog(t, Config{})

	report, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Terminated)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, migration.StatusRunning, h.status.get(migration.RoleConsumer, "acme", migration.WriteUserAttributes).Status)
	assert.Empty(t, h.status.writes)
	assert.Empty(t, h.notifier.bodies)

	// Once signalling works again the next cycle finishes the job.
	h.procs.signalErr = nil
	report, err = w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Terminated)
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, h.procs.signals[1234])
	assert.Equal(t, migration.StatusCompleted, h.status.get(migration.RoleConsumer, "acme", migration.WriteUserAttributes).Status)
}

func TestWatchdog_NoPIDStillMarkedCompleted(t *testing.T) {
	h := newWatchdogHarness()
	h.seedConsumer(migration.StatusCompleted, 50, 50)
	h.status.put(migration.RoleConsumer, "acme", migration.WriteUserAttributes, migration.StatusRecord{
		Status:    migration.StatusRunning,
		TopicName: "acme_user_attributes",
	})

	report, err := h.watchdog(t, Config{}).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Terminated)
	assert.Empty(t, h.procs.signals)
	assert.Equal(t, migration.StatusCompleted, h.status.get(migration.RoleConsumer, "acme", migration.WriteUserAttributes).Status)
}

func TestWatchdog_Scope(t *testing.T) {
	t.Run("env filter", func(t *testing.T) {
		h := newWatchdogHarness()
		h.seedConsumer(migration.StatusCompleted, 100, 100)

		report, err := h.watchdog(t, Config{Env: "staging"}).RunCycle(context.Background())
		require.NoError(t, err)
		assert.Zero(t, report.Evaluated)
		assert.Empty(t, h.procs.signals)
	})

	t.Run("explicit panel list", func(t *testing.T) {
		h := newWatchdogHarness()
		h.seedConsumer(migration.StatusCompleted, 100, 100)
		h.status.listErr = errors.New("scan must not be used")

		report, err := h.watchdog(t, Config{Panels: []string{"globex", "acme"}}).RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Terminated)
	})

	t.Run("malformed consumer status skipped", func(t *testing.T) {
		h := newWatchdogHarness()
		h.seedConsumer(migration.StatusCompleted, 100, 100)
		h.status.malformed[statusKey{migration.RoleConsumer, "acme", migration.WriteAnonUserAttributes}] = true

		report, err := h.watchdog(t, Config{}).RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Skipped)
		assert.Equal(t, 1, report.Terminated)
	})

	t.Run("store failure is fatal", func(t *testing.T) {
		h := newWatchdogHarness()
		h.status.listErr = errors.New("connection refused")

		_, err := h.watchdog(t, Config{}).RunCycle(context.Background())
		require.Error(t, err)
	})
}

func TestWatchdog_RunStopsOnCancel(t *testing.T) {
	h := newWatchdogHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.watchdog(t, Config{}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecide(t *testing.T) {
	done := migration.StatusRecord{Status: migration.StatusCompleted}
	tests := []struct {
		name string
		ev   Evidence
		want Action
	}{
		{name: "no producer", ev: Evidence{OffsetsKnown: true, Offsets: offsets("g", 10, 10)}, want: ActionWait},
		{name: "offsets unknown", ev: Evidence{Upstream: done, UpstreamFound: true}, want: ActionWait},
		{name: "empty offsets", ev: Evidence{Upstream: done, UpstreamFound: true, OffsetsKnown: true}, want: ActionWait},
		{name: "lag on a second topic", ev: Evidence{Upstream: done, UpstreamFound: true, OffsetsKnown: true, Offsets: twoTopics(10, 10, 8, 5)}, want: ActionWait},
		{name: "drained", ev: Evidence{Upstream: done, UpstreamFound: true, OffsetsKnown: true, Offsets: offsets("g", 10, 10)}, want: ActionTerminate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.ev).Action)
		})
	}
}

func twoTopics(produced1, consumed1, produced2, consumed2 int64) migration.GroupOffsets {
	g := migration.GroupOffsets{Group: "g"}
	g.Set("a", 0, consumed1, produced1)
	g.Set("b", 0, consumed2, produced2)
	return g
}
