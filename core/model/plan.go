package model

import "time"

// PlanSource identifies the optimizer backend that produced a plan.
type PlanSource string

const (
	SourceEOSServer PlanSource = "eos_server"
	SourceEVopt     PlanSource = "evopt"
)

// Slot is one interval of an optimizer plan.
type Slot struct {
	Start            time.Time `json:"start"`
	ACChargeW        float64   `json:"ac_charge_w"`
	DCChargeW        float64   `json:"dc_charge_w"`
	DischargeAllowed bool      `json:"discharge_allowed"`
	SOCPercent       *float64  `json:"soc_percent,omitempty"`
	GridImportWh     *float64  `json:"grid_import_wh,omitempty"`
	GridExportWh     *float64  `json:"grid_export_wh,omitempty"`
	CostEUR          *float64  `json:"cost_eur,omitempty"`
	LoadWh           *float64  `json:"load_wh,omitempty"`
}

// Mode returns the mode implied by the slot.
func (s Slot) Mode() Mode { return ModeForSlot(s.ACChargeW, s.DischargeAllowed) }

// Plan is an immutable snapshot of an optimizer response.
type Plan struct {
	Source        PlanSource    `json:"source"`
	Start         time.Time     `json:"start"`
	Interval      time.Duration `json:"interval"`
	FetchedAt     time.Time     `json:"fetched_at"`
	Slots         []Slot        `json:"slots"`
	TotalCostEUR  *float64      `json:"total_cost_eur,omitempty"`
	TotalLossesWh *float64      `json:"total_losses_wh,omitempty"`
	// ApplianceStartHour is the suggested start hour for a shiftable appliance.
	ApplianceStartHour *int `json:"appliance_start_hour,omitempty"`
}

// SlotAt returns the slot whose interval contains t.
func (p *Plan) SlotAt(t time.Time) (Slot, bool) {
	if p == nil || p.Interval <= 0 || t.Before(p.Start) {
		return Slot{}, false
	}
	i := int(t.Sub(p.Start) / p.Interval)
	if i >= len(p.Slots) {
		return Slot{}, false
	}
	return p.Slots[i], true
}

// End returns the end of the last slot.
func (p *Plan) End() time.Time {
	if p == nil {
		return time.Time{}
	}
	return p.Start.Add(time.Duration(len(p.Slots)) * p.Interval)
}

// Age returns how long ago the plan was fetched.
func (p *Plan) Age(now time.Time) time.Duration {
	if p == nil {
		return 0
	}
	return now.Sub(p.FetchedAt)
}
