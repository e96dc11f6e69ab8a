package launcher

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/pkg/common/logger"
)

func TestRegistry_SetClear(t *testing.T) {
	r := NewRegistry()

	_, replaced := r.Set(migration.WriteUserAttributes, 10)
	assert.False(t, replaced)

	prev, replaced := r.Set(migration.WriteUserAttributes, 11)
	assert.True(t, replaced)
	assert.Equal(t, 10, prev)

	snap := r.Snapshot()
	snap[migration.WriteAnonUserAttributes] = 99
	assert.Equal(t, map[migration.Method]int{migration.WriteUserAttributes: 11}, r.Snapshot())

	r.Clear(migration.WriteUserAttributes)
	assert.Empty(t, r.Snapshot())
}

type failingSignals struct {
	*mockProcs
	failPID int
}

func (f failingSignals) Signal(ctx context.Context, pid int, sig syscall.Signal) error {
	if pid == f.failPID {
		return errors.New("operation not permitted")
	}
	return f.mockProcs.Signal(ctx, pid, sig)
}

func TestRegistry_Forward(t *testing.T) {
	r := NewRegistry()
	r.Set(migration.WriteUserAttributes, 100)
	r.Set(migration.WriteAnonUserAttributes, 200)
	r.Set(migration.WriteDisableUserAttributes, 300)

	procs := failingSignals{mockProcs: newMockProcs(), failPID: 200}
	sent := r.Forward(context.Background(), procs, syscall.SIGTERM, logger.Noop())

	assert.Equal(t, 2, sent)
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, procs.signals[100])
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, procs.signals[300])
	assert.Empty(t, procs.signals[200])
}
