package events

import (
	"time"

	"github.com/kilianp07/eosbridge/core/model"
)

// FetchEvent is published after every optimizer fetch cycle.
type FetchEvent struct {
	Source              model.PlanSource
	Success             bool
	Err                 error
	Attempts            int
	Duration            time.Duration
	Slots               int
	ConsecutiveFailures int
	// PlanAge is the age of the plan in force after the cycle.
	PlanAge time.Duration
	Time    time.Time
}
