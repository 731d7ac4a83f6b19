package forecast

import (
	"fmt"
	"time"
)

// Config controls how provider data is normalized.
type Config struct {
	// IntervalSeconds is the slot length handed to the optimizer (900 or 3600).
	IntervalSeconds int `json:"interval_seconds"`
	HorizonHours    int `json:"horizon_hours"`
	// MaxGapSlots bounds forward filling of missing PV and price slots.
	MaxGapSlots      int     `json:"max_gap_slots"`
	DefaultLoadW     float64 `json:"default_load_w"`
	LoadLookbackDays int     `json:"load_lookback_days"`
	// FeedInEURPerKWh is the flat feed-in tariff.
	FeedInEURPerKWh float64 `json:"feed_in_eur_per_kwh"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.IntervalSeconds == 0 {
		c.IntervalSeconds = 3600
	}
	if c.HorizonHours == 0 {
		c.HorizonHours = 48
	}
	if c.MaxGapSlots == 0 {
		c.MaxGapSlots = 2
	}
	if c.DefaultLoadW == 0 {
		c.DefaultLoadW = 400
	}
	if c.LoadLookbackDays == 0 {
		c.LoadLookbackDays = 2
	}
	if c.FeedInEURPerKWh == 0 {
		c.FeedInEURPerKWh = 0.08
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.IntervalSeconds != 900 && c.IntervalSeconds != 3600 {
		return fmt.Errorf("interval_seconds must be 900 or 3600, got %d", c.IntervalSeconds)
	}
	if c.HorizonHours <= 0 {
		return fmt.Errorf("invalid horizon %dh", c.HorizonHours)
	}
	if c.MaxGapSlots < 0 {
		return fmt.Errorf("max_gap_slots must not be negative")
	}
	return nil
}

// Interval returns the slot length.
func (c Config) Interval() time.Duration { return time.Duration(c.IntervalSeconds) * time.Second }

// Slots returns the number of slots in the horizon.
func (c Config) Slots() int { return int(time.Duration(c.HorizonHours) * time.Hour / c.Interval()) }
