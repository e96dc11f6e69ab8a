package watchdog

import (
	"fmt"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
)

// Action is the outcome of evaluating one running consumer.
type Action int

const (
	// ActionWait leaves the consumer running.
	ActionWait Action = iota
	// ActionTerminate stops the consumer and marks it completed.
	ActionTerminate
)

func (a Action) String() string {
	if a == ActionTerminate {
		return "terminate"
	}
	return "wait"
}

// Evidence is what a single cycle knows about one consumer.
type Evidence struct {
	// Upstream is the producer record for the counterpart method, if any.
	Upstream      migration.StatusRecord
	UpstreamFound bool
	// Offsets is only meaningful when OffsetsKnown is true.
	Offsets      migration.GroupOffsets
	OffsetsKnown bool
}

// Decision pairs an action with the reason it was chosen.
type Decision struct {
	Action   Action
	Reason   string
	Produced int64
	Consumed int64
}

// Decide terminates a consumer only when its producer has finished and the
// consumer group has consumed everything produced, both observed in the same
// cycle. Anything inconclusive waits.
func Decide(ev Evidence) Decision {
	if !ev.UpstreamFound {
		return Decision{Action: ActionWait, Reason: "producer status not found"}
	}
	if !ev.Upstream.Status.Terminal() {
		return Decision{Action: ActionWait, Reason: fmt.Sprintf("producer is %s", ev.Upstream.Status)}
	}
	if !ev.OffsetsKnown || ev.Offsets.Empty() {
		return Decision{Action: ActionWait, Reason: "consumer group offsets unavailable"}
	}

	consumed, produced := ev.Offsets.Totals()
	d := Decision{Produced: produced, Consumed: consumed}
	if produced != consumed {
		d.Action = ActionWait
		d.Reason = fmt.Sprintf("produced %d != consumed %d", produced, consumed)
		return d
	}
	d.Action = ActionTerminate
	d.Reason = fmt.Sprintf("producer %s and all %d messages consumed", ev.Upstream.Status, consumed)
	return d
}
