// Package safety enforces battery limits on candidate control decisions.
package safety

import (
	"math"

	"github.com/kilianp07/eosbridge/core/model"
)

// Names recorded in ControlDecision.Clamps.
const (
	RuleSOCMin               = "soc_min"
	RuleSOCMax               = "soc_max"
	RuleTemperatureCharge    = "temperature_charge"
	RuleTemperatureDischarge = "temperature_discharge"
	RuleChargingCurve        = "charging_curve"
	RuleMaxChargePower       = "max_charge_power"
	RuleMaxDischargePower    = "max_discharge_power"
)

// Clamper applies the safety rules. It is safe for concurrent use.
type Clamper struct {
	cfg       Config
	charge    *derater
	discharge *derater
}

// New validates cfg and prepares the derating curves.
func New(cfg Config) (*Clamper, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Clamper{cfg: cfg}
	if !cfg.DisableTemperature {
		var err error
		if c.charge, err = newDerater(cfg.ChargeTemperature); err != nil {
			return nil, err
		}
		if c.discharge, err = newDerater(cfg.DischargeTemp); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Clamp returns candidate adjusted to the battery state. Rules run in order:
// SOC floor, SOC ceiling, temperature derating, charging curve, power limits.
// The mode is then made consistent with the resulting flags. A charge that
// was cut to zero falls back to the mode its discharge flag implies.
func (c *Clamper) Clamp(candidate model.ControlDecision, battery model.BatteryState) model.ControlDecision {
	d := candidate
	d.Clamps = nil
	d.ACChargeDemandW = nonNegative(d.ACChargeDemandW)
	d.DCChargeDemandW = nonNegative(d.DCChargeDemandW)
	d.DischargeLimitW = nonNegative(d.DischargeLimitW)
	switch {
	case !d.DischargeAllowed:
		d.DischargeLimitW = 0
	case d.DischargeLimitW == 0:
		d.DischargeLimitW = c.cfg.MaxDischargePowerW
	}
	soc := battery.SOCPercent

	if soc <= d.MinSOC && d.DischargeAllowed {
		d.DischargeAllowed = false
		d.DischargeLimitW = 0
		note(&d, RuleSOCMin)
	}
	if soc >= d.MaxSOC && (d.ACChargeDemandW > 0 || d.DCChargeDemandW > 0) {
		d.ACChargeDemandW = 0
		d.DCChargeDemandW = 0
		note(&d, RuleSOCMax)
	}

	chargeCap := c.cfg.MaxChargePowerW
	dischargeCap := c.cfg.MaxDischargePowerW
	if c.charge != nil && battery.TemperatureValid && !math.IsNaN(battery.TemperatureC) {
		if f := c.charge.factor(battery.TemperatureC); f < 1 {
			chargeCap *= f
			if d.ACChargeDemandW > chargeCap || d.DCChargeDemandW > chargeCap {
				note(&d, RuleTemperatureCharge)
			}
		}
		if f := c.discharge.factor(battery.TemperatureC); f < 1 {
			dischargeCap *= f
			if d.DischargeAllowed && (f == 0 || d.DischargeLimitW > dischargeCap) {
				note(&d, RuleTemperatureDischarge)
			}
		}
	}
	if c.cfg.ChargingCurve {
		if f := chargingCurveFactor(soc); f < 1 {
			limit := c.cfg.MaxChargePowerW * f
			if limit < chargeCap {
				chargeCap = limit
				if d.ACChargeDemandW > chargeCap || d.DCChargeDemandW > chargeCap {
					note(&d, RuleChargingCurve)
				}
			}
		}
	}

	if d.ACChargeDemandW > chargeCap || d.DCChargeDemandW > chargeCap {
		if chargeCap == c.cfg.MaxChargePowerW {
			note(&d, RuleMaxChargePower)
		}
		d.ACChargeDemandW = math.Min(d.ACChargeDemandW, chargeCap)
		d.DCChargeDemandW = math.Min(d.DCChargeDemandW, chargeCap)
	}
	if d.DischargeAllowed {
		if d.DischargeLimitW > dischargeCap {
			if dischargeCap == c.cfg.MaxDischargePowerW {
				note(&d, RuleMaxDischargePower)
			}
			d.DischargeLimitW = dischargeCap
		}
		if d.DischargeLimitW <= 0 {
			d.DischargeAllowed = false
			d.DischargeLimitW = 0
		}
	}

	switch {
	case d.Mode == model.ModeChargeFromGrid && d.ACChargeDemandW <= 0:
		d.Mode = model.ModeForSlot(0, d.DischargeAllowed)
	case d.Mode == model.ModeDischargeAllowed && !d.DischargeAllowed:
		d.Mode = model.ModeAvoidDischarge
	}
	return d
}

// Config returns the active configuration.
func (c *Clamper) Config() Config { return c.cfg }

func note(d *model.ControlDecision, rule string) {
	for _, r := range d.Clamps {
		if r == rule {
			return
		}
	}
	d.Clamps = append(d.Clamps, rule)
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
