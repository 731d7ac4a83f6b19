package homeassistant

import (
	"fmt"
	"strings"
	"time"
)

// DefaultEventType is fired with every status record.
const DefaultEventType = "eos_control_update"

// BatteryEntities are the sensors the battery state is read from.
type BatteryEntities struct {
	SOC         string `json:"soc"`
	Temperature string `json:"temperature"`
}

// ControlEntities are the control points a decision is written to. Empty
// entities are skipped.
type ControlEntities struct {
	// ModeSelect is a select entity whose options are the mode display names.
	ModeSelect      string `json:"mode_select"`
	ACChargePower   string `json:"ac_charge_power"`
	DCChargePower   string `json:"dc_charge_power"`
	DischargeLimit  string `json:"discharge_limit"`
	DischargeSwitch string `json:"discharge_switch"`
	MinSOC          string `json:"min_soc"`
	MaxSOC          string `json:"max_soc"`
}

// ServiceCall is one step of a per mode service sequence. String data values
// may contain the {{ power }} placeholder.
type ServiceCall struct {
	Service  string         `json:"service"`
	EntityID string         `json:"entity_id"`
	Data     map[string]any `json:"data"`
}

// Split returns the domain and service name.
func (s ServiceCall) Split() (string, string, error) {
	domain, service, ok := strings.Cut(s.Service, ".")
	if !ok || domain == "" || service == "" {
		return "", "", fmt.Errorf("invalid service %q", s.Service)
	}
	return domain, service, nil
}

// Config defines the Home Assistant connection and entity mapping.
type Config struct {
	URL            string          `json:"url"`
	Token          string          `json:"token"`
	TimeoutSeconds int             `json:"timeout_seconds"`
	EventType      string          `json:"event_type"`
	Battery        BatteryEntities `json:"battery"`
	Control        ControlEntities `json:"control"`
	// Sequences maps a mode key (charge_from_grid, avoid_discharge,
	// discharge_allowed, auto) to the service calls run when the mode is
	// applied.
	Sequences map[string][]ServiceCall `json:"sequences"`
}

// Enabled reports whether Home Assistant is configured.
func (c Config) Enabled() bool { return c.URL != "" }

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 10
	}
	if c.EventType == "" {
		c.EventType = DefaultEventType
	}
}

// Validate checks mandatory fields when the section is enabled.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Token == "" {
		return fmt.Errorf("token is required")
	}
	for mode, seq := range c.Sequences {
		for i, step := range seq {
			if _, _, err := step.Split(); err != nil {
				return fmt.Errorf("sequences.%s[%d]: %w", mode, i, err)
			}
		}
	}
	return nil
}

func (c Config) Timeout() time.Duration { return time.Duration(c.TimeoutSeconds) * time.Second }
