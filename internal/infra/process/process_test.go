package process

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/mongoremodel/pkg/common/logger"
)

func TestTable_ExistsSelf(t *testing.T) {
	ok, err := NewTable().Exists(context.Background(), os.Getpid())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewTable().Exists(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSpawnerAndTable_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a subprocess")
	}
	ctx := context.Background()
	table := NewTable()

	pid, err := NewExecSpawner(nil, nil, logger.Noop()).Start(ctx, []string{"sleep", "30"})
	require.NoError(t, err)
	require.Positive(t, pid)

	ok, err := table.Exists(ctx, pid)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, table.Signal(ctx, pid, syscall.SIGTERM))

	assert.Eventually(t, func() bool {
		ok, err := table.Exists(ctx, pid)
		return err == nil && !ok
	}, 5*time.Second, 50*time.Millisecond, "reaped child must disappear from the process table")
}

func TestSpawner_Errors(t *testing.T) {
	s := NewExecSpawner(nil, nil, logger.Noop())

	_, err := s.Start(context.Background(), nil)
	assert.Error(t, err)

	_, err = s.Start(context.Background(), []string{"/nonexistent/remodel-binary"})
	assert.Error(t, err)
}

func TestTable_SignalRejectsInvalidPID(t *testing.T) {
	assert.Error(t, NewTable().Signal(context.Background(), 0, syscall.SIGTERM))
}
