package control

import (
	"context"
	"errors"

	"github.com/kilianp07/eosbridge/core/model"
)

// Sink applies decisions to hardware facing control points.
type Sink interface {
	Apply(ctx context.Context, d model.ControlDecision) error
	PublishStatus(ctx context.Context, s model.Status) error
}

// NopSink discards decisions.
type NopSink struct{}

func (NopSink) Apply(context.Context, model.ControlDecision) error { return nil }
func (NopSink) PublishStatus(context.Context, model.Status) error  { return nil }

// MultiSink fans out to several sinks. Every sink is called; the errors are
// joined so a failing sink makes the decision retry on the next tick.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) Apply(ctx context.Context, d model.ControlDecision) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.Apply(ctx, d))
	}
	return errors.Join(errs...)
}

func (m *MultiSink) PublishStatus(ctx context.Context, st model.Status) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.PublishStatus(ctx, st))
	}
	return errors.Join(errs...)
}
