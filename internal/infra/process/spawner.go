package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/pkg/common/logger"
)

var _ migration.Spawner = (*ExecSpawner)(nil)

// ExecSpawner starts subprocesses directly from an argv, without a shell.
// Each child is reaped in the background so it never lingers as a zombie.
type ExecSpawner struct {
	stdout io.Writer
	stderr io.Writer
	log    *logger.Logger
}

// NewExecSpawner creates a spawner whose children write to the given
// streams. Nil streams default to the parent's stdout and stderr.
func NewExecSpawner(stdout, stderr io.Writer, log *logger.Logger) *ExecSpawner {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &ExecSpawner{stdout: stdout, stderr: stderr, log: log}
}

// Start launches argv and returns the child's PID. The child is not tied to
// ctx: cancelling the caller must not kill an in-flight migration.
func (s *ExecSpawner) Start(ctx context.Context, argv []string) (int, error) {
	if len(argv) == 0 {
		return 0, errors.New("empty command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", argv[0], err)
	}

	pid := cmd.Process.Pid
	s.log.Info(ctx, "Process started", "pid", pid, "command", argv)

	go func() {
		err := cmd.Wait()
		if err != nil {
			s.log.Warn(context.Background(), "Process exited with error", "pid", pid, "error", err)
			return
		}
		s.log.Debug(context.Background(), "Process exited", "pid", pid)
	}()

	return pid, nil
}
