package optimizer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kilianp07/eosbridge/core/model"
)

// Result is the optional detail block of an optimizer response.
type Result struct {
	SOCPerSlot     Values   `json:"akku_soc_pro_stunde"`
	GridImportWh   Values   `json:"Netzbezug_Wh_pro_Stunde"`
	GridExportWh   Values   `json:"Netzeinspeisung_Wh_pro_Stunde"`
	CostPerSlotEUR Values   `json:"Kosten_Euro_pro_Stunde"`
	LoadWh         Values   `json:"Last_Wh_pro_Stunde"`
	TotalCostEUR   *float64 `json:"Gesamtkosten_Euro"`
	TotalLossesWh  *float64 `json:"Gesamt_Verluste"`
}

// Response is the optimizer response body. AC and DC charge values are
// fractions of the configured maximum charge rates.
type Response struct {
	ACCharge         Values  `json:"ac_charge"`
	DCCharge         Values  `json:"dc_charge"`
	DischargeAllowed Values  `json:"discharge_allowed"`
	Result           *Result `json:"result"`
	ApplianceStart   *int    `json:"washingstart"`
}

// ToPlan converts a response into a plan anchored at req.Start. Missing AC
// charge values default to 0, missing DC charge and discharge values to 1. A
// response without any control array is malformed. Arrays of different
// lengths are truncated to the shortest one present.
func (r Response) ToPlan(req Request, p BatteryParams, source model.PlanSource, fetchedAt time.Time) (*model.Plan, error) {
	if len(r.ACCharge) == 0 && len(r.DCCharge) == 0 && len(r.DischargeAllowed) == 0 {
		return nil, fmt.Errorf("%w: no control arrays", ErrMalformedResponse)
	}
	if req.Interval <= 0 {
		return nil, fmt.Errorf("%w: request has no interval", ErrMalformedResponse)
	}
	n := -1
	for _, arr := range []Values{r.ACCharge, r.DCCharge, r.DischargeAllowed} {
		if len(arr) > 0 && (n < 0 || len(arr) < n) {
			n = len(arr)
		}
	}
	plan := &model.Plan{
		Source:             source,
		Start:              req.Start,
		Interval:           req.Interval,
		FetchedAt:          fetchedAt,
		Slots:              make([]model.Slot, n),
		ApplianceStartHour: r.ApplianceStart,
	}
	for i := 0; i < n; i++ {
		ac := at(r.ACCharge, i, 0)
		dc := at(r.DCCharge, i, 1)
		dis := at(r.DischargeAllowed, i, 1)
		if ac < 0 || dc < 0 {
			return nil, fmt.Errorf("%w: negative charge fraction in slot %d", ErrMalformedResponse, i)
		}
		s := model.Slot{
			Start:            req.Start.Add(time.Duration(i) * req.Interval),
			ACChargeW:        ac * p.MaxGridChargeRateW,
			DCChargeW:        dc * p.MaxPVChargeRateW,
			DischargeAllowed: dis != 0,
		}
		if r.Result != nil {
			s.SOCPercent = ptrAt(r.Result.SOCPerSlot, i)
			s.GridImportWh = ptrAt(r.Result.GridImportWh, i)
			s.GridExportWh = ptrAt(r.Result.GridExportWh, i)
			s.CostEUR = ptrAt(r.Result.CostPerSlotEUR, i)
			s.LoadWh = ptrAt(r.Result.LoadWh, i)
		}
		plan.Slots[i] = s
	}
	if r.Result != nil {
		plan.TotalCostEUR = r.Result.TotalCostEUR
		plan.TotalLossesWh = r.Result.TotalLossesWh
	}
	return plan, nil
}

func at(arr Values, i int, def float64) float64 {
	if i < len(arr) {
		return arr[i]
	}
	return def
}

func ptrAt(arr Values, i int) *float64 {
	if i >= len(arr) {
		return nil
	}
	v := arr[i]
	return &v
}

// Values is a numeric array that also accepts booleans and nulls, as some
// optimizer versions encode discharge_allowed as true/false. Nulls decode as 0.
type Values []float64

// UnmarshalJSON implements json.Unmarshaler.
func (v *Values) UnmarshalJSON(b []byte) error {
	var raw []any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Values, len(raw))
	for i, x := range raw {
		switch t := x.(type) {
		case float64:
			out[i] = t
		case bool:
			if t {
				out[i] = 1
			}
		case nil:
		default:
			return fmt.Errorf("unexpected value %v at index %d", x, i)
		}
	}
	*v = out
	return nil
}
