// Package report summarizes pending work across the method queues.
package report

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/pkg/common/logger"
)

// QueueDepth is the backlog of one method queue.
type QueueDepth struct {
	Method  migration.Method
	Queue   string
	Pending int64
}

// QueueStatus is a point-in-time view of every method queue.
type QueueStatus struct {
	Queues []QueueDepth
	Total  int64
}

// Reporter reads queue depths and announces backlog.
type Reporter struct {
	queue    migration.QueueRepository
	notifier migration.Notifier
	logger   *logger.Logger
}

// New creates a Reporter. notifier may be nil.
func New(queue migration.QueueRepository, notifier migration.Notifier, log *logger.Logger) *Reporter {
	return &Reporter{queue: queue, notifier: notifier, logger: log.With("component", "queue_status")}
}

// Collect reads the depth of each method's queue, in the order given.
func (r *Reporter) Collect(ctx context.Context, methods []migration.Method) (QueueStatus, error) {
	var st QueueStatus
	for _, m := range methods {
		n, err := r.queue.Depth(ctx, m.QueueName())
		if err != nil {
			return st, fmt.Errorf("reading depth of %s: %w", m.QueueName(), err)
		}
		st.Queues = append(st.Queues, QueueDepth{Method: m, Queue: m.QueueName(), Pending: n})
		st.Total += n
	}
	return st, nil
}

// Render writes st as an aligned table. When expected is positive each row
// shows "pending / expected".
func Render(w io.Writer, st QueueStatus, expected int64) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tQUEUE\tPENDING")
	for _, q := range st.Queues {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", q.Method.Role(), q.Queue, pending(q.Pending, expected))
	}
	fmt.Fprintf(tw, "\t%s\t%d\n", "TOTAL", st.Total)
	return tw.Flush()
}

func pending(n, expected int64) string {
	if expected > 0 {
		return fmt.Sprintf("%d / %d", n, expected)
	}
	return fmt.Sprintf("%d", n)
}

// Announce notifies when any queue still has pending work.
func (r *Reporter) Announce(ctx context.Context, st QueueStatus) error {
	if st.Total == 0 {
		r.logger.Info(ctx, "All queues drained")
		return nil
	}
	r.logger.Info(ctx, "Queues have pending work", "total", st.Total)
	if r.notifier == nil {
		return nil
	}

	body := fmt.Sprintf("%d work descriptors pending", st.Total)
	for _, q := range st.Queues {
		if q.Pending > 0 {
			body += fmt.Sprintf("\n%s: %d", q.Queue, q.Pending)
		}
	}
	return r.notifier.Notify(ctx, "Migration queue status", body)
}
