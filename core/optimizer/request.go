package optimizer

import (
	"time"

	"github.com/kilianp07/eosbridge/core/forecast"
	"github.com/kilianp07/eosbridge/core/model"
)

const (
	batteryDeviceID  = "battery1"
	inverterDeviceID = "inverter1"
	defaultTimeFrame = 3600
)

// BatteryParams describes the storage system handed to the optimizer.
type BatteryParams struct {
	CapacityWh          float64
	ChargeEfficiency    float64
	DischargeEfficiency float64
	MaxChargePowerW     float64
	InverterMaxPowerW   float64
	// MaxGridChargeRateW scales the relative ac_charge values of a response.
	MaxGridChargeRateW float64
	// MaxPVChargeRateW scales the relative dc_charge values of a response.
	MaxPVChargeRateW float64
}

// EMS carries the energy management time series.
type EMS struct {
	PVForecastWh   []float64 `json:"pv_prognose_wh"`
	PriceEURPerWh  []float64 `json:"strompreis_euro_pro_wh"`
	FeedInEURPerWh []float64 `json:"einspeiseverguetung_euro_pro_wh"`
	TotalLoadWh    []float64 `json:"gesamtlast"`
}

// PVBattery is the battery section of an optimizer request.
type PVBattery struct {
	DeviceID            string  `json:"device_id"`
	CapacityWh          float64 `json:"capacity_wh"`
	ChargingEfficiency  float64 `json:"charging_efficiency"`
	DischargeEfficiency float64 `json:"discharging_efficiency"`
	MaxChargePowerW     float64 `json:"max_charge_power_w"`
	InitialSOC          float64 `json:"initial_soc_percentage"`
	MinSOC              float64 `json:"min_soc_percentage"`
	MaxSOC              float64 `json:"max_soc_percentage"`
}

// Inverter is the inverter section of an optimizer request.
type Inverter struct {
	DeviceID   string  `json:"device_id"`
	MaxPowerWh float64 `json:"max_power_wh"`
	BatteryID  string  `json:"battery_id"`
}

// Request is the optimizer request body shared by EOS and EVopt.
type Request struct {
	EMS       EMS       `json:"ems"`
	PVBattery PVBattery `json:"pv_akku"`
	Inverter  Inverter  `json:"inverter"`
	Timestamp string    `json:"timestamp"`
	TimeFrame int       `json:"time_frame,omitempty"`

	// Start and Interval are not sent; they anchor the response slots.
	Start    time.Time     `json:"-"`
	Interval time.Duration `json:"-"`
}

// BuildRequest assembles a request from normalized inputs and live state.
func BuildRequest(b forecast.Bundle, p BatteryParams, soc float64, limits model.SOCLimits, now time.Time) Request {
	feedIn := make([]float64, b.Slots())
	price := make([]float64, len(b.PriceEURPerKWh))
	for i := range feedIn {
		feedIn[i] = b.FeedInEURPerKWh / 1000
	}
	for i, v := range b.PriceEURPerKWh {
		price[i] = v / 1000
	}
	inverterMax := p.InverterMaxPowerW
	if inverterMax <= 0 {
		inverterMax = p.MaxChargePowerW
	}
	req := Request{
		EMS: EMS{
			PVForecastWh:   append([]float64(nil), b.PVWh...),
			PriceEURPerWh:  price,
			FeedInEURPerWh: feedIn,
			TotalLoadWh:    append([]float64(nil), b.LoadWh...),
		},
		PVBattery: PVBattery{
			DeviceID:            batteryDeviceID,
			CapacityWh:          p.CapacityWh,
			ChargingEfficiency:  p.ChargeEfficiency,
			DischargeEfficiency: p.DischargeEfficiency,
			MaxChargePowerW:     p.MaxChargePowerW,
			InitialSOC:          soc,
			MinSOC:              limits.Min,
			MaxSOC:              limits.Max,
		},
		Inverter: Inverter{
			DeviceID:   inverterDeviceID,
			MaxPowerWh: inverterMax,
			BatteryID:  batteryDeviceID,
		},
		Timestamp: now.Format(time.RFC3339),
		Start:     b.Start,
		Interval:  b.Interval,
	}
	if tf := int(b.Interval / time.Second); tf != defaultTimeFrame {
		req.TimeFrame = tf
	}
	return req
}
