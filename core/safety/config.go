package safety

import "fmt"

// TemperatureCurve describes where a battery may operate at full power.
// Between the nominal bounds the derating factor is 1, it falls linearly to
// FloorFactor toward the safety thresholds and is 0 at or beyond them.
type TemperatureCurve struct {
	SafetyMinC  float64 `json:"safety_min_c"`
	NominalMinC float64 `json:"nominal_min_c"`
	NominalMaxC float64 `json:"nominal_max_c"`
	SafetyMaxC  float64 `json:"safety_max_c"`
	FloorFactor float64 `json:"floor_factor"`
}

func (c TemperatureCurve) isZero() bool { return c == TemperatureCurve{} }

// Validate checks ordering of the thresholds.
func (c TemperatureCurve) Validate() error {
	if !(c.SafetyMinC < c.NominalMinC && c.NominalMinC < c.NominalMaxC && c.NominalMaxC < c.SafetyMaxC) {
		return fmt.Errorf("temperature thresholds must satisfy safety_min < nominal_min < nominal_max < safety_max")
	}
	if c.FloorFactor < 0 || c.FloorFactor > 1 {
		return fmt.Errorf("floor_factor must be within [0,1]")
	}
	return nil
}

// Config holds the hard limits enforced on every decision.
type Config struct {
	MaxChargePowerW    float64          `json:"max_charge_power_w"`
	MaxDischargePowerW float64          `json:"max_discharge_power_w"`
	ChargeTemperature  TemperatureCurve `json:"charge_temperature"`
	DischargeTemp      TemperatureCurve `json:"discharge_temperature"`
	// ChargingCurve reduces charge power as the battery fills.
	ChargingCurve bool `json:"charging_curve"`
	// DisableTemperature turns temperature derating off entirely.
	DisableTemperature bool `json:"disable_temperature"`
}

// SetDefaults fills the temperature curves with typical lithium limits.
func (c *Config) SetDefaults() {
	if c.ChargeTemperature.isZero() {
		c.ChargeTemperature = TemperatureCurve{SafetyMinC: 0, NominalMinC: 10, NominalMaxC: 35, SafetyMaxC: 45, FloorFactor: 0.2}
	}
	if c.DischargeTemp.isZero() {
		c.DischargeTemp = TemperatureCurve{SafetyMinC: -10, NominalMinC: 5, NominalMaxC: 40, SafetyMaxC: 55, FloorFactor: 0.2}
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.MaxChargePowerW <= 0 {
		return fmt.Errorf("max_charge_power_w must be positive")
	}
	if c.MaxDischargePowerW <= 0 {
		return fmt.Errorf("max_discharge_power_w must be positive")
	}
	if c.DisableTemperature {
		return nil
	}
	if err := c.ChargeTemperature.Validate(); err != nil {
		return fmt.Errorf("charge_temperature: %w", err)
	}
	if err := c.DischargeTemp.Validate(); err != nil {
		return fmt.Errorf("discharge_temperature: %w", err)
	}
	return nil
}
