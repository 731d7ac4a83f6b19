// Package config loads the eosbridge configuration from a YAML or JSON file
// with EOSB_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	apicontrol "github.com/kilianp07/eosbridge/api/control"
	"github.com/kilianp07/eosbridge/core/control"
	"github.com/kilianp07/eosbridge/core/decisionlog"
	"github.com/kilianp07/eosbridge/core/metrics"
	"github.com/kilianp07/eosbridge/core/optimizer"
	"github.com/kilianp07/eosbridge/core/safety"
	"github.com/kilianp07/eosbridge/infra/auth"
	"github.com/kilianp07/eosbridge/infra/evcc"
	"github.com/kilianp07/eosbridge/infra/homeassistant"
	"github.com/kilianp07/eosbridge/infra/logger"
	"github.com/kilianp07/eosbridge/infra/mqtt"
)

// EnvPrefix prefixes environment overrides. Nested keys are separated by a
// double underscore, e.g. EOSB_OPTIMIZER__URL.
const EnvPrefix = "EOSB_"

// ConfigurationError reports an invalid or missing setting. It is fatal at
// startup.
type ConfigurationError struct {
	Section string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Section, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

type Config struct {
	Optimizer     optimizer.Config     `json:"optimizer"`
	OptimizerAuth auth.Conf            `json:"optimizer_auth"`
	Battery       BatteryConfig        `json:"battery"`
	Control       control.Config       `json:"control"`
	Safety        safety.Config        `json:"safety"`
	Inputs        InputsConfig         `json:"inputs"`
	HomeAssistant homeassistant.Config `json:"homeassistant"`
	MQTT          mqtt.Config          `json:"mqtt"`
	EVCC          evcc.Config          `json:"evcc"`
	API           apicontrol.Config    `json:"api"`
	Metrics       metrics.Config       `json:"metrics"`
	DecisionLog   decisionlog.Config   `json:"decision_log"`
	Log           logger.Config        `json:"log"`
}

// Load reads path, applies environment overrides, fills defaults and
// validates every section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// SetDefaults fills defaults in every section. Safety power limits default to
// the battery limits.
func (c *Config) SetDefaults() {
	c.Optimizer.SetDefaults()
	c.Battery.SetDefaults()
	c.Control.SetDefaults()
	if c.Safety.MaxChargePowerW == 0 {
		c.Safety.MaxChargePowerW = c.Battery.MaxChargePowerW
	}
	if c.Safety.MaxDischargePowerW == 0 {
		c.Safety.MaxDischargePowerW = c.Battery.MaxDischargePowerW
	}
	c.Safety.SetDefaults()
	c.Inputs.SetDefaults()
	c.HomeAssistant.SetDefaults()
	if c.MQTT.Enabled() {
		c.MQTT.SetDefaults()
	}
	c.EVCC.SetDefaults()
	c.API.SetDefaults()
	c.DecisionLog.SetDefaults()
	c.Log.SetDefaults()
}

// Validate checks every section and the references between them.
func (c *Config) Validate() error {
	checks := []struct {
		section string
		fn      func() error
	}{
		{"optimizer", c.Optimizer.Validate},
		{"optimizer_auth", c.OptimizerAuth.Validate},
		{"battery", c.Battery.Validate},
		{"control", c.Control.Validate},
		{"safety", c.Safety.Validate},
		{"inputs", c.Inputs.Validate},
		{"homeassistant", c.HomeAssistant.Validate},
		{"mqtt", c.MQTT.Validate},
		{"evcc", c.EVCC.Validate},
		{"api", c.API.Validate},
		{"decision_log", c.DecisionLog.Validate},
		{"log", c.Log.Validate},
		{"battery.reader", c.validateReader},
		{"inputs", c.validateInputSources},
	}
	var errs []error
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			errs = append(errs, &ConfigurationError{Section: ch.section, Err: err})
		}
	}
	return errors.Join(errs...)
}

func (c *Config) validateReader() error {
	switch c.Battery.Reader {
	case ReaderHomeAssistant:
		if !c.HomeAssistant.Enabled() || c.HomeAssistant.Battery.SOC == "" {
			return fmt.Errorf("homeassistant.url and homeassistant.battery.soc are required")
		}
	case ReaderMQTT:
		if !c.MQTT.Enabled() {
			return fmt.Errorf("mqtt.broker is required")
		}
	}
	return nil
}

func (c *Config) validateInputSources() error {
	for name, s := range map[string]SourceConfig{"pv": c.Inputs.PV, "price": c.Inputs.Price, "load": c.Inputs.Load} {
		if s.Type == SourceHomeAssistant && !c.HomeAssistant.Enabled() {
			return fmt.Errorf("%s uses homeassistant but homeassistant.url is not set", name)
		}
	}
	return nil
}
