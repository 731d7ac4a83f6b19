package events

import (
	"time"

	"github.com/kilianp07/eosbridge/core/model"
)

// DecisionEvent is published when a changed decision was applied.
type DecisionEvent struct {
	Decision model.ControlDecision
	Status   model.Status
}

// TickEvent reports the outcome of one reconciliation tick. Result is one of
// "applied", "unchanged", "skipped" or "error".
type TickEvent struct {
	Result string
	Err    error
	Time   time.Time
}

// OverrideEvent is published when an override is set or cleared.
type OverrideEvent struct {
	Action   string
	Override model.Override
	Time     time.Time
}
