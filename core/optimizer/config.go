package optimizer

import (
	"fmt"
	"time"

	"github.com/kilianp07/eosbridge/core/model"
)

// RetryConfig bounds the exponential backoff between attempts of one cycle.
type RetryConfig struct {
	InitialSeconds int `json:"initial_seconds"`
	MaxSeconds     int `json:"max_seconds"`
	MaxRetries     int `json:"max_retries"`
}

// Config defines the plan fetcher and the optimizer endpoint.
type Config struct {
	// Source selects the backend: "eos_server" or "evopt".
	Source              string      `json:"source"`
	URL                 string      `json:"url"`
	IntervalSeconds     int         `json:"interval_seconds"`
	TimeoutSeconds      int         `json:"timeout_seconds"`
	MaxStalenessSeconds int         `json:"max_staleness_seconds"`
	Retry               RetryConfig `json:"retry"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Source == "" {
		c.Source = string(model.SourceEOSServer)
	}
	if c.URL == "" {
		if c.Source == string(model.SourceEVopt) {
			c.URL = "http://localhost:7050"
		} else {
			c.URL = "http://localhost:8503"
		}
	}
	if c.IntervalSeconds == 0 {
		c.IntervalSeconds = 900
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 120
	}
	if c.MaxStalenessSeconds == 0 {
		c.MaxStalenessSeconds = 7200
	}
	if c.Retry.InitialSeconds == 0 {
		c.Retry.InitialSeconds = 5
	}
	if c.Retry.MaxSeconds == 0 {
		c.Retry.MaxSeconds = 60
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 3
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch model.PlanSource(c.Source) {
	case model.SourceEOSServer, model.SourceEVopt:
	default:
		return fmt.Errorf("unknown optimizer source %q", c.Source)
	}
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if c.IntervalSeconds <= 0 || c.TimeoutSeconds <= 0 {
		return fmt.Errorf("interval_seconds and timeout_seconds must be positive")
	}
	if c.MaxStalenessSeconds < c.IntervalSeconds {
		return fmt.Errorf("max_staleness_seconds must be at least interval_seconds")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	return nil
}

func (c Config) Interval() time.Duration     { return time.Duration(c.IntervalSeconds) * time.Second }
func (c Config) Timeout() time.Duration      { return time.Duration(c.TimeoutSeconds) * time.Second }
func (c Config) MaxStaleness() time.Duration { return time.Duration(c.MaxStalenessSeconds) * time.Second }
