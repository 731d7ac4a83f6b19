package metrics

import (
	"github.com/kilianp07/eosbridge/core/events"
)

// MetricsSink records applied control decisions.
type MetricsSink interface {
	RecordDecision(ev events.DecisionEvent) error
}

// FetchRecorder records optimizer fetch cycles.
type FetchRecorder interface {
	RecordFetch(ev events.FetchEvent) error
}

// TickRecorder records reconciliation tick outcomes.
type TickRecorder interface {
	RecordTick(ev events.TickEvent) error
}

// OverrideRecorder records override changes.
type OverrideRecorder interface {
	RecordOverride(ev events.OverrideEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDecision(events.DecisionEvent) error { return nil }
func (NopSink) RecordFetch(events.FetchEvent) error       { return nil }
func (NopSink) RecordTick(events.TickEvent) error         { return nil }
func (NopSink) RecordOverride(events.OverrideEvent) error { return nil }
