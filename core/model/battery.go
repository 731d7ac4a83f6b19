package model

import (
	"fmt"
	"math"
	"time"
)

// BatteryState is a snapshot of live battery readings.
type BatteryState struct {
	SOCPercent       float64   `json:"soc_percent"`
	CapacityWh       float64   `json:"capacity_wh"`
	UsableEnergyWh   float64   `json:"usable_energy_wh"`
	TemperatureC     float64   `json:"temperature_c"`
	TemperatureValid bool      `json:"temperature_valid"`
	ReadAt           time.Time `json:"read_at"`
}

// Validate reports whether the SOC reading can be acted upon.
func (b BatteryState) Validate() error {
	if math.IsNaN(b.SOCPercent) || b.SOCPercent < 0 || b.SOCPercent > 100 {
		return fmt.Errorf("soc %.2f out of range", b.SOCPercent)
	}
	return nil
}

// UsableEnergy returns the energy above minSOC in Wh, never negative.
func UsableEnergy(capacityWh, socPercent, minSOC float64) float64 {
	if socPercent <= minSOC || capacityWh <= 0 {
		return 0
	}
	return capacityWh * (socPercent - minSOC) / 100
}

// SOCLimits bounds the operating window of the battery in percent.
type SOCLimits struct {
	Min float64 `json:"min_soc"`
	Max float64 `json:"max_soc"`
}

// Validate checks 0 <= min < max <= 100.
func (l SOCLimits) Validate() error {
	if l.Min < 0 || l.Max > 100 || l.Min >= l.Max {
		return fmt.Errorf("invalid soc limits min=%.1f max=%.1f", l.Min, l.Max)
	}
	return nil
}
