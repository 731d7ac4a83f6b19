package config

import (
	"fmt"

	"github.com/kilianp07/eosbridge/core/optimizer"
)

// Battery readers.
const (
	ReaderHomeAssistant = "homeassistant"
	ReaderMQTT          = "mqtt"
)

// BatteryConfig describes the storage system.
type BatteryConfig struct {
	CapacityWh          float64 `json:"capacity_wh"`
	ChargeEfficiency    float64 `json:"charge_efficiency"`
	DischargeEfficiency float64 `json:"discharge_efficiency"`
	MaxChargePowerW     float64 `json:"max_charge_power_w"`
	MaxDischargePowerW  float64 `json:"max_discharge_power_w"`
	InverterMaxPowerW   float64 `json:"inverter_max_power_w"`
	// MaxGridChargeRateW is the AC charge power at an optimizer value of 1.
	MaxGridChargeRateW float64 `json:"max_grid_charge_rate_w"`
	// MaxPVChargeRateW is the DC charge power at an optimizer value of 1.
	MaxPVChargeRateW float64 `json:"max_pv_charge_rate_w"`
	// Reader selects where the live state is read: homeassistant or mqtt.
	Reader string `json:"reader"`
}

// SetDefaults applies sane defaults.
func (c *BatteryConfig) SetDefaults() {
	if c.ChargeEfficiency == 0 {
		c.ChargeEfficiency = 0.88
	}
	if c.DischargeEfficiency == 0 {
		c.DischargeEfficiency = 0.88
	}
	if c.MaxGridChargeRateW == 0 {
		c.MaxGridChargeRateW = c.MaxChargePowerW
	}
	if c.MaxPVChargeRateW == 0 {
		c.MaxPVChargeRateW = c.MaxChargePowerW
	}
	if c.Reader == "" {
		c.Reader = ReaderHomeAssistant
	}
}

// Validate checks mandatory fields.
func (c BatteryConfig) Validate() error {
	if c.CapacityWh <= 0 {
		return fmt.Errorf("capacity_wh is required")
	}
	if c.MaxChargePowerW <= 0 || c.MaxDischargePowerW <= 0 {
		return fmt.Errorf("max_charge_power_w and max_discharge_power_w are required")
	}
	if c.ChargeEfficiency <= 0 || c.ChargeEfficiency > 1 || c.DischargeEfficiency <= 0 || c.DischargeEfficiency > 1 {
		return fmt.Errorf("efficiencies must be within (0,1]")
	}
	if c.Reader != ReaderHomeAssistant && c.Reader != ReaderMQTT {
		return fmt.Errorf("unknown reader %q", c.Reader)
	}
	return nil
}

// Params returns the battery description handed to the optimizer.
func (c BatteryConfig) Params() optimizer.BatteryParams {
	return optimizer.BatteryParams{
		CapacityWh:          c.CapacityWh,
		ChargeEfficiency:    c.ChargeEfficiency,
		DischargeEfficiency: c.DischargeEfficiency,
		MaxChargePowerW:     c.MaxChargePowerW,
		InverterMaxPowerW:   c.InverterMaxPowerW,
		MaxGridChargeRateW:  c.MaxGridChargeRateW,
		MaxPVChargeRateW:    c.MaxPVChargeRateW,
	}
}
