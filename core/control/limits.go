package control

import (
	"sync/atomic"

	"github.com/kilianp07/eosbridge/core/model"
)

// Limits holds the SOC limits shared by the reconciler and the optimizer
// request builder.
type Limits struct {
	v atomic.Pointer[model.SOCLimits]
}

// NewLimits validates l and returns a holder.
func NewLimits(l model.SOCLimits) (*Limits, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	h := &Limits{}
	h.v.Store(&l)
	return h, nil
}

// Get returns the current limits.
func (l *Limits) Get() model.SOCLimits { return *l.v.Load() }

// Set replaces the limits after validating 0 <= min < max <= 100.
func (l *Limits) Set(min, max float64) error {
	v := model.SOCLimits{Min: min, Max: max}
	if err := v.Validate(); err != nil {
		return err
	}
	l.v.Store(&v)
	return nil
}
