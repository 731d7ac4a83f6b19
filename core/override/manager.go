// Package override holds the single time-bounded manual override.
package override

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/eosbridge/core/model"
)

// ErrInvalidOverride is returned for override requests that are rejected
// without any state change.
var ErrInvalidOverride = errors.New("invalid override request")

// Clock returns the current time.
type Clock func() time.Time

// Manager stores at most one override. The newest Set wins.
type Manager struct {
	mu      sync.Mutex
	current atomic.Pointer[model.Override]
	now     Clock
}

// NewManager returns an empty Manager. A nil clock defaults to time.Now.
func NewManager(now Clock) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{now: now}
}

// Set installs an override starting now. Mode AUTO is not an override; use
// Clear to return control to the plan.
func (m *Manager) Set(mode model.Mode, duration time.Duration, chargePowerW *float64) (model.Override, error) {
	if !mode.Valid() {
		return model.Override{}, fmt.Errorf("%w: unknown mode %d", ErrInvalidOverride, int(mode))
	}
	if mode == model.ModeAuto {
		return model.Override{}, fmt.Errorf("%w: mode auto cannot be used as override", ErrInvalidOverride)
	}
	if duration <= 0 {
		return model.Override{}, fmt.Errorf("%w: duration must be positive", ErrInvalidOverride)
	}
	if chargePowerW != nil && *chargePowerW < 0 {
		return model.Override{}, fmt.Errorf("%w: charge power must not be negative", ErrInvalidOverride)
	}
	o := model.Override{Mode: mode, Start: m.now(), Duration: duration}
	if chargePowerW != nil {
		p := *chargePowerW
		o.ChargePowerW = &p
	}
	m.mu.Lock()
	m.current.Store(&o)
	m.mu.Unlock()
	return o, nil
}

// Clear removes the override, expired or not.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.current.Store(nil)
	m.mu.Unlock()
}

// Current returns the override in force at now. Expiry is evaluated lazily.
func (m *Manager) Current(now time.Time) (model.Override, bool) {
	o := m.current.Load()
	if o == nil || !o.Active(now) {
		return model.Override{}, false
	}
	return *o, true
}
