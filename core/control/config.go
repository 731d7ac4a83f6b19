package control

import (
	"fmt"
	"time"

	"github.com/kilianp07/eosbridge/core/model"
)

// Config defines the reconciliation loop.
type Config struct {
	TickSeconds int `json:"tick_seconds"`
	// ManualModeMinutes is the override duration used by setMode.
	ManualModeMinutes int `json:"manual_mode_minutes"`
	// SOCLimits are the initial operating limits. They can be changed at
	// runtime with SetSOCLimits.
	SOCLimits model.SOCLimits `json:"soc_limits"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TickSeconds == 0 {
		c.TickSeconds = 30
	}
	if c.ManualModeMinutes == 0 {
		c.ManualModeMinutes = 60
	}
	if c.SOCLimits == (model.SOCLimits{}) {
		c.SOCLimits = model.SOCLimits{Min: 10, Max: 95}
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.TickSeconds <= 0 {
		return fmt.Errorf("tick_seconds must be positive")
	}
	if c.ManualModeMinutes <= 0 {
		return fmt.Errorf("manual_mode_minutes must be positive")
	}
	return c.SOCLimits.Validate()
}

func (c Config) Tick() time.Duration { return time.Duration(c.TickSeconds) * time.Second }

// ManualModeDuration is the override duration applied by setMode.
func (c Config) ManualModeDuration() time.Duration {
	return time.Duration(c.ManualModeMinutes) * time.Minute
}
