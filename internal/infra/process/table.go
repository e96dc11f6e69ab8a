// Package process inspects and signals OS processes and launches migration
// subprocesses.
package process

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
)

var _ migration.ProcessTable = (*Table)(nil)

// Table is the host process table as seen through gopsutil.
type Table struct{}

// NewTable returns a Table.
func NewTable() *Table { return &Table{} }

// Exists reports whether pid is alive. Zombies count as exited.
func (t *Table) Exists(ctx context.Context, pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	ok, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil {
		return false, fmt.Errorf("checking pid %d: %w", pid, err)
	}
	if !ok {
		return false, nil
	}

	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return false, nil
		}
		return false, fmt.Errorf("opening pid %d: %w", pid, err)
	}
	status, err := p.StatusWithContext(ctx)
	if err != nil {
		// The process may have gone between the two calls; the existence
		// check above is authoritative.
		return true, nil
	}
	return !slices.Contains(status, process.Zombie), nil
}

// Signal delivers sig to pid.
func (t *Table) Signal(ctx context.Context, pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("refusing to signal pid %d", pid)
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return fmt.Errorf("opening pid %d: %w", pid, err)
	}
	if err := p.SendSignalWithContext(ctx, sig); err != nil {
		return fmt.Errorf("sending %s to pid %d: %w", sig, pid, err)
	}
	return nil
}
