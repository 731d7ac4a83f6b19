package config

import (
	"fmt"

	"github.com/kilianp07/eosbridge/core/forecast"
)

// Input source types.
const (
	SourceHomeAssistant = "homeassistant"
	SourceFile          = "file"
	SourceFixed         = "fixed"
)

// SourceConfig selects where one optimizer input comes from.
type SourceConfig struct {
	Type string `json:"type"`
	// Entity is the Home Assistant entity for type homeassistant.
	Entity string `json:"entity"`
	// Path is the YAML or JSON series file for type file.
	Path string `json:"path"`
	// Value is the constant for type fixed.
	Value float64 `json:"value"`
	// Scale converts entity values to W or EUR/kWh.
	Scale float64 `json:"scale"`
}

func (s SourceConfig) validate(name string, required bool) error {
	switch s.Type {
	case "":
		if required {
			return fmt.Errorf("%s.type is required", name)
		}
	case SourceHomeAssistant:
		if s.Entity == "" {
			return fmt.Errorf("%s.entity is required", name)
		}
	case SourceFile:
		if s.Path == "" {
			return fmt.Errorf("%s.path is required", name)
		}
	case SourceFixed:
	default:
		return fmt.Errorf("%s: unknown type %q", name, s.Type)
	}
	return nil
}

// InputsConfig groups the optimizer input sources and their normalization.
type InputsConfig struct {
	Forecast forecast.Config `json:"forecast"`
	PV       SourceConfig    `json:"pv"`
	Price    SourceConfig    `json:"price"`
	// Load is optional; without it the flat default load is used.
	Load SourceConfig `json:"load"`
}

// SetDefaults applies sane defaults.
func (c *InputsConfig) SetDefaults() {
	c.Forecast.SetDefaults()
	if c.Price.Type == "" {
		c.Price = SourceConfig{Type: SourceFixed, Value: 0.30}
	}
	for _, s := range []*SourceConfig{&c.PV, &c.Price, &c.Load} {
		if s.Scale == 0 {
			s.Scale = 1
		}
	}
}

// Validate checks every source.
func (c InputsConfig) Validate() error {
	if err := c.Forecast.Validate(); err != nil {
		return err
	}
	if err := c.PV.validate("pv", true); err != nil {
		return err
	}
	if err := c.Price.validate("price", true); err != nil {
		return err
	}
	if c.Load.Type == SourceFixed {
		return fmt.Errorf("load: use forecast.default_load_w for a fixed load")
	}
	return c.Load.validate("load", false)
}
