package watchdog

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/pkg/common/logger"
	"github.com/ahrav/mongoremodel/pkg/common/timeutil"
)

// Outcome reports how a termination ended.
type Outcome int

const (
	// OutcomeNotRunning means the PID was already gone.
	OutcomeNotRunning Outcome = iota
	// OutcomeExited means the process exited within the grace period.
	OutcomeExited
	// OutcomeKilled means SIGKILL was sent after the grace period.
	OutcomeKilled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExited:
		return "exited"
	case OutcomeKilled:
		return "killed"
	default:
		return "not_running"
	}
}

// Terminator stops a process gracefully, escalating to SIGKILL once.
type Terminator struct {
	procs  migration.ProcessTable
	clock  timeutil.Clock
	grace  time.Duration
	poll   time.Duration
	logger *logger.Logger
}

// NewTerminator creates a Terminator that waits grace after SIGTERM, checking
// every poll.
func NewTerminator(
	procs migration.ProcessTable,
	clock timeutil.Clock,
	grace, poll time.Duration,
	log *logger.Logger,
) *Terminator {
	return &Terminator{procs: procs, clock: clock, grace: grace, poll: poll, logger: log}
}

// Terminate sends SIGTERM to pid and waits for it to exit. If it is still
// alive after the grace period SIGKILL is sent exactly once and Terminate
// returns without waiting further.
func (t *Terminator) Terminate(ctx context.Context, pid int) (Outcome, error) {
	alive, err := t.procs.Exists(ctx, pid)
	if err != nil {
		return OutcomeNotRunning, fmt.Errorf("checking pid %d: %w", pid, err)
	}
	if !alive {
		return OutcomeNotRunning, nil
	}

	if err := t.procs.Signal(ctx, pid, syscall.SIGTERM); err != nil {
		return OutcomeNotRunning, fmt.Errorf("sending SIGTERM to %d: %w", pid, err)
	}
	t.logger.Info(ctx, "Sent SIGTERM", "pid", pid)

	deadline := t.clock.Now().Add(t.grace)
	for {
		if err := t.clock.Sleep(ctx, t.poll); err != nil {
			return OutcomeNotRunning, err
		}

		alive, err := t.procs.Exists(ctx, pid)
		if err != nil {
			t.logger.Warn(ctx, "Failed to check process after SIGTERM", "pid", pid, "error", err)
		} else if !alive {
			t.logger.Info(ctx, "Process exited after SIGTERM", "pid", pid)
			return OutcomeExited, nil
		}

		if !t.clock.Now().Before(deadline) {
			t.logger.Error(ctx, "Process ignored SIGTERM, sending SIGKILL", "pid", pid, "grace", t.grace)
			if err := t.procs.Signal(ctx, pid, syscall.SIGKILL); err != nil {
				return OutcomeKilled, fmt.Errorf("sending SIGKILL to %d: %w", pid, err)
			}
			return OutcomeKilled, nil
		}
	}
}
