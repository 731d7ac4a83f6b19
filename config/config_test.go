package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `battery:
  capacity_wh: 10000
  max_charge_power_w: 5000
  max_discharge_power_w: 4000
  reader: homeassistant
homeassistant:
  url: "http://ha.local:8123"
  token: "secret"
  battery:
    soc: sensor.battery_soc
  control:
    mode_select: select.eos_mode
optimizer:
  source: eos_server
  url: "http://eos.local:8503"
  interval_seconds: 900
inputs:
  pv:
    type: homeassistant
    entity: sensor.solcast_forecast_today
  price:
    type: fixed
    value: 0.25
metrics:
  sinks:
    - type: nop
`

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", minimalYAML))
	require.NoError(t, err)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"capacity", cfg.Battery.CapacityWh, 10000.0},
		{"charge efficiency default", cfg.Battery.ChargeEfficiency, 0.88},
		{"grid charge rate default", cfg.Battery.MaxGridChargeRateW, 5000.0},
		{"safety charge from battery", cfg.Safety.MaxChargePowerW, 5000.0},
		{"safety discharge from battery", cfg.Safety.MaxDischargePowerW, 4000.0},
		{"ha url", cfg.HomeAssistant.URL, "http://ha.local:8123"},
		{"ha event type", cfg.HomeAssistant.EventType, "eos_control_update"},
		{"optimizer url", cfg.Optimizer.URL, "http://eos.local:8503"},
		{"optimizer staleness", cfg.Optimizer.MaxStalenessSeconds, 7200},
		{"pv entity", cfg.Inputs.PV.Entity, "sensor.solcast_forecast_today"},
		{"pv scale", cfg.Inputs.PV.Scale, 1.0},
		{"price value", cfg.Inputs.Price.Value, 0.25},
		{"forecast horizon", cfg.Inputs.Forecast.HorizonHours, 48},
		{"metrics sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"log level", cfg.Log.Level, "info"},
		{"mqtt disabled", cfg.MQTT.Enabled(), false},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.name)
	}
}

func TestLoadJSON(t *testing.T) {
	data := `{
  "battery": {"capacity_wh": 5000, "max_charge_power_w": 2000, "max_discharge_power_w": 2000, "reader": "mqtt"},
  "mqtt": {"broker": "tcp://localhost:1883", "telemetry": {"soc_topic": "battery/soc"}},
  "optimizer": {"source": "evopt", "url": "http://evopt.local:7050"},
  "inputs": {"pv": {"type": "fixed", "value": 0}}
}`
	cfg, err := Load(writeConfig(t, "config.json", data))
	require.NoError(t, err)
	assert.Equal(t, "evopt", cfg.Optimizer.Source)
	assert.Equal(t, "eosbridge/availability", cfg.MQTT.LWTTopic)
	assert.Equal(t, "battery/soc", cfg.MQTT.Telemetry.SOCTopic)
	assert.Equal(t, SourceFixed, cfg.Inputs.Price.Type)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("EOSB_OPTIMIZER__URL", "http://other:8503")
	t.Setenv("EOSB_LOG__LEVEL", "debug")
	cfg, err := Load(writeConfig(t, "config.yaml", minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "http://other:8503", cfg.Optimizer.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingBattery(t *testing.T) {
	data := `optimizer:
  source: eos_server
  url: "http://eos.local:8503"
inputs:
  pv:
    type: fixed
`
	_, err := Load(writeConfig(t, "config.yaml", data))
	require.Error(t, err)
	var cerr *ConfigurationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "battery", cerr.Section)
}

func TestLoadReaderRequiresBackend(t *testing.T) {
	data := `battery:
  capacity_wh: 10000
  max_charge_power_w: 5000
  max_discharge_power_w: 5000
  reader: mqtt
optimizer:
  url: "http://eos.local:8503"
inputs:
  pv:
    type: fixed
`
	_, err := Load(writeConfig(t, "config.yaml", data))
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "battery.reader", cerr.Section)
}

func TestLoadUnsupportedFormat(t *testing.T) {
	_, err := Load(writeConfig(t, "config.toml", "x = 1"))
	assert.Error(t, err)
}

func TestInputsValidate(t *testing.T) {
	cases := []struct {
		name string
		in   InputsConfig
		ok   bool
	}{
		{"fixed pv", InputsConfig{PV: SourceConfig{Type: SourceFixed}}, true},
		{"missing pv", InputsConfig{}, false},
		{"ha without entity", InputsConfig{PV: SourceConfig{Type: SourceHomeAssistant}}, false},
		{"file without path", InputsConfig{PV: SourceConfig{Type: SourceFile}}, false},
		{"fixed load", InputsConfig{PV: SourceConfig{Type: SourceFixed}, Load: SourceConfig{Type: SourceFixed}}, false},
		{"unknown type", InputsConfig{PV: SourceConfig{Type: "ftp"}}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			c.in.SetDefaults()
			err := c.in.Validate()
			if c.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
