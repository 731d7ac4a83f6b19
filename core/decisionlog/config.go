package decisionlog

import "fmt"

// Config selects the decision log backend.
type Config struct {
	// Path of the JSONL file. Empty disables the log.
	Path       string `json:"path"`
	Rotate     bool   `json:"rotate"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 10
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 5
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = 30
	}
}

// Validate checks the rotation bounds.
func (c Config) Validate() error {
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("decision_log rotation limits must not be negative")
	}
	return nil
}

// Open returns the store described by cfg.
func Open(cfg Config) (Store, error) {
	switch {
	case cfg.Path == "":
		return NopStore{}, nil
	case cfg.Rotate:
		return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	default:
		return NewJSONLStore(cfg.Path)
	}
}
