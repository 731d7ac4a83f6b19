package metrics

import (
	"errors"

	"github.com/kilianp07/eosbridge/core/events"
)

// MultiSink fans events out to multiple sinks. Every sink is called; the
// errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDecision forwards the decision to all sinks.
func (m *MultiSink) RecordDecision(ev events.DecisionEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordDecision(ev))
	}
	return errors.Join(errs...)
}

// RecordFetch forwards fetch events to sinks that support them.
func (m *MultiSink) RecordFetch(ev events.FetchEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(FetchRecorder); ok {
			errs = append(errs, rec.RecordFetch(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordTick forwards tick events to sinks that support them.
func (m *MultiSink) RecordTick(ev events.TickEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(TickRecorder); ok {
			errs = append(errs, rec.RecordTick(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordOverride forwards override events to sinks that support them.
func (m *MultiSink) RecordOverride(ev events.OverrideEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(OverrideRecorder); ok {
			errs = append(errs, rec.RecordOverride(ev))
		}
	}
	return errors.Join(errs...)
}
