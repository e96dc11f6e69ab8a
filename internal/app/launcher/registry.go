package launcher

import (
	"context"
	"maps"
	"sync"
	"syscall"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/pkg/common/logger"
)

// Registry tracks the PID of the subprocess each method is currently waiting
// on. It is shared by every launcher in a process and read by the shutdown
// handler.
type Registry struct {
	mu   sync.Mutex
	pids map[migration.Method]int
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{pids: make(map[migration.Method]int)}
}

// Set records pid as the active subprocess for m and returns the PID it
// replaced, if any.
func (r *Registry) Set(m migration.Method, pid int) (prev int, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, replaced = r.pids[m]
	r.pids[m] = pid
	return prev, replaced
}

// Clear forgets the active subprocess for m.
func (r *Registry) Clear(m migration.Method) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pids, m)
}

// Snapshot copies the current method to PID map.
func (r *Registry) Snapshot() map[migration.Method]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.pids)
}

// Forward sends sig to every tracked PID. Failures are logged and do not stop
// delivery to the remaining PIDs. Children not yet registered are unreachable.
func (r *Registry) Forward(ctx context.Context, procs migration.ProcessTable, sig syscall.Signal, log *logger.Logger) int {
	sent := 0
	for m, pid := range r.Snapshot() {
		if err := procs.Signal(ctx, pid, sig); err != nil {
			log.Error(ctx, "Failed to forward signal", "method", m, "pid", pid, "signal", sig, "error", err)
			continue
		}
		log.Info(ctx, "Forwarded signal", "method", m, "pid", pid, "signal", sig)
		sent++
	}
	return sent
}
