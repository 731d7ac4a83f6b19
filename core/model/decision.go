package model

import (
	"math"
	"time"
)

// DecisionSource records what produced a control decision.
type DecisionSource string

const (
	DecisionFromPlan     DecisionSource = "plan"
	DecisionFromOverride DecisionSource = "override"
	DecisionFromFallback DecisionSource = "fallback"
)

// ControlDecision is the concrete command set for one reconciliation tick.
type ControlDecision struct {
	Mode             Mode           `json:"mode"`
	ACChargeDemandW  float64        `json:"ac_charge_demand"`
	DCChargeDemandW  float64        `json:"dc_charge_demand"`
	DischargeAllowed bool           `json:"discharge_allowed"`
	DischargeLimitW  float64        `json:"discharge_limit_w"`
	MinSOC           float64        `json:"min_soc"`
	MaxSOC           float64        `json:"max_soc"`
	Source           DecisionSource `json:"source"`
	// Clamps lists the safety rules that altered the candidate.
	Clamps []string `json:"clamps,omitempty"`
}

const powerEpsilon = 1e-6

// Equal compares the fields sent to the hardware and the source.
func (d ControlDecision) Equal(o ControlDecision) bool {
	return d.Mode == o.Mode &&
		d.DischargeAllowed == o.DischargeAllowed &&
		d.Source == o.Source &&
		floatEq(d.ACChargeDemandW, o.ACChargeDemandW) &&
		floatEq(d.DCChargeDemandW, o.DCChargeDemandW) &&
		floatEq(d.DischargeLimitW, o.DischargeLimitW) &&
		floatEq(d.MinSOC, o.MinSOC) &&
		floatEq(d.MaxSOC, o.MaxSOC)
}

func floatEq(a, b float64) bool { return math.Abs(a-b) < powerEpsilon }

// Override is a time-bounded manual mode request.
type Override struct {
	Mode         Mode          `json:"mode"`
	ChargePowerW *float64      `json:"charge_power_w,omitempty"`
	Start        time.Time     `json:"start"`
	Duration     time.Duration `json:"duration"`
}

// End returns the expiry instant.
func (o Override) End() time.Time { return o.Start.Add(o.Duration) }

// Active reports whether the override is in force at now.
func (o Override) Active(now time.Time) bool { return now.Before(o.End()) }
