package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/pkg/common/logger"
)

type mockQueue struct {
	items      map[string][]migration.WorkDescriptor
	enqueueErr error
}

func newMockQueue() *mockQueue { return &mockQueue{items: make(map[string][]migration.WorkDescriptor)} }

func (q *mockQueue) Enqueue(_ context.Context, queue string, d migration.WorkDescriptor) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.items[queue] = append(q.items[queue], d)
	return nil
}

func (q *mockQueue) Dequeue(context.Context, string) (migration.WorkDescriptor, bool, error) {
	return migration.WorkDescriptor{}, false, nil
}

func (q *mockQueue) Depth(_ context.Context, queue string) (int64, error) {
	return int64(len(q.items[queue])), nil
}

type mockUIDs struct {
	maxUID map[string]int64
	err    error
}

func (u mockUIDs) MaxUID(_ context.Context, panel string) (int64, bool, error) {
	if u.err != nil {
		return 0, false, u.err
	}
	v, ok := u.maxUID[panel]
	return v, ok, nil
}

func newDispatcher(q *mockQueue, uids migration.UIDSource) *Dispatcher {
	return New(q, uids, noop.NewTracerProvider().Tracer("test"), logger.Noop())
}

func TestDispatch_Scopes(t *testing.T) {
	tests := []struct {
		scope         Scope
		wantProducers bool
		wantConsumers bool
		wantPerPanel  int
	}{
		{scope: ScopeProducers, wantProducers: true, wantPerPanel: 9},
		{scope: ScopeConsumers, wantConsumers: true, wantPerPanel: 9},
		{scope: ScopeBoth, wantProducers: true, wantConsumers: true, wantPerPanel: 18},
	}

	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			q := newMockQueue()
			report, err := newDispatcher(q, nil).Dispatch(context.Background(), []string{"acme", "globex"}, tt.scope)
			require.NoError(t, err)
			assert.Equal(t, 2*tt.wantPerPanel, report.Enqueued)

			producerQueue := migration.ReadUserAttributes.QueueName()
			consumerQueue := migration.WriteUserAttributes.QueueName()
			if tt.wantProducers {
				assert.Equal(t, []migration.WorkDescriptor{
					migration.NewWorkDescriptor("acme"),
					migration.NewWorkDescriptor("globex"),
				}, q.items[producerQueue])
			} else {
				assert.Empty(t, q.items[producerQueue])
			}
			if tt.wantConsumers {
				assert.Len(t, q.items[consumerQueue], 2)
			} else {
				assert.Empty(t, q.items[consumerQueue])
			}
		})
	}
}

func TestDispatch_UIDBounds(t *testing.T) {
	q := newMockQueue()
	uids := mockUIDs{maxUID: map[string]int64{"acme": 1000, "tiny": 5}}

	report, err := newDispatcher(q, uids).Dispatch(context.Background(), []string{"acme", "ghost", "tiny"}, ScopeProducers)
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, report.Unresolved)

	got := q.items[migration.ReadUserAttributes.QueueName()]
	require.Len(t, got, 2)
	assert.Equal(t, migration.NewWorkDescriptor("acme").WithRange(1, 1100), got[0])
	assert.Equal(t, migration.NewWorkDescriptor("tiny").WithRange(1, 5), got[1])
}

func TestDispatch_Errors(t *testing.T) {
	t.Run("lookup failure", func(t *testing.T) {
		_, err := newDispatcher(newMockQueue(), mockUIDs{err: errors.New("mongo timeout")}).
			Dispatch(context.Background(), []string{"acme"}, ScopeProducers)
		assert.ErrorContains(t, err, "mongo timeout")
	})

	t.Run("enqueue failure", func(t *testing.T) {
		q := newMockQueue()
		q.enqueueErr = errors.New("connection refused")
		_, err := newDispatcher(q, nil).Dispatch(context.Background(), []string{"acme"}, ScopeBoth)
		assert.ErrorContains(t, err, "connection refused")
	})

}

func TestDispatch_InvalidPanelsRejectedUpFront(t *testing.T) {
	q := newMockQueue()
	report, err := newDispatcher(q, nil).Dispatch(context.Background(), []string{"acme", "acme corp", "globex"}, ScopeProducers)
	require.NoError(t, err)

	assert.Equal(t, []string{"acme corp"}, report.Invalid)
	assert.Equal(t, 18, report.Enqueued)
	assert.Equal(t, []migration.WorkDescriptor{
		migration.NewWorkDescriptor("acme"),
		migration.NewWorkDescriptor("globex"),
	}, q.items[migration.ReadUserAttributes.QueueName()])
}

func TestParseScope(t *testing.T) {
	for _, s := range []string{"producers", "consumers", "both"} {
		got, err := ParseScope(s)
		require.NoError(t, err)
		assert.Equal(t, Scope(s), got)
	}
	_, err := ParseScope("all")
	assert.Error(t, err)
}
