package model

import "time"

// Status is the record published after every reconciliation tick.
type Status struct {
	Mode             Mode           `json:"mode"`
	ModeValue        int            `json:"mode_value"`
	ModeName         string         `json:"mode_name"`
	ACChargeDemandW  float64        `json:"ac_charge_demand"`
	DCChargeDemandW  float64        `json:"dc_charge_demand"`
	DischargeAllowed bool           `json:"discharge_allowed"`
	DischargeLimitW  float64        `json:"discharge_limit_w"`
	Source           DecisionSource `json:"source"`
	MinSOC           float64        `json:"min_soc"`
	MaxSOC           float64        `json:"max_soc"`
	SOCPercent       *float64       `json:"soc_percent,omitempty"`
	OptimizationOK   bool           `json:"optimization_ok"`
	PlanStale        bool           `json:"plan_stale"`
	PlanAgeSeconds   float64        `json:"plan_age_seconds"`
	LastFetchError   string         `json:"last_fetch_error,omitempty"`
	OverrideActive   bool           `json:"override_active"`
	OverrideEnd      *time.Time     `json:"override_end,omitempty"`
	Clamps           []string       `json:"clamps,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

// NewStatus fills the decision related fields of a Status.
func NewStatus(d ControlDecision, now time.Time) Status {
	return Status{
		Mode:             d.Mode,
		ModeValue:        d.Mode.Value(),
		ModeName:         d.Mode.DisplayName(),
		ACChargeDemandW:  d.ACChargeDemandW,
		DCChargeDemandW:  d.DCChargeDemandW,
		DischargeAllowed: d.DischargeAllowed,
		DischargeLimitW:  d.DischargeLimitW,
		Source:           d.Source,
		MinSOC:           d.MinSOC,
		MaxSOC:           d.MaxSOC,
		Clamps:           d.Clamps,
		Timestamp:        now,
	}
}
