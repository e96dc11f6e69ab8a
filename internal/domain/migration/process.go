package migration

import (
	"context"
	"syscall"
)

// ProcessTable answers liveness questions about OS processes and delivers
// signals to them.
type ProcessTable interface {
	Exists(ctx context.Context, pid int) (bool, error)
	Signal(ctx context.Context, pid int, sig syscall.Signal) error
}

// Spawner starts a migration subprocess from an argument vector and returns
// its PID without waiting for it.
type Spawner interface {
	Start(ctx context.Context, argv []string) (pid int, err error)
}
