// Package forecast normalizes PV, price and load inputs into the uniform
// series expected by the optimizer.
package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/eosbridge/core/logger"
	"github.com/kilianp07/eosbridge/core/model"
)

// Provider returns raw points between from and to. PV and load providers
// return power in W, price providers return EUR/kWh.
type Provider interface {
	Points(ctx context.Context, from, to time.Time) ([]model.Point, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, from, to time.Time) ([]model.Point, error)

// Points implements Provider.
func (f ProviderFunc) Points(ctx context.Context, from, to time.Time) ([]model.Point, error) {
	return f(ctx, from, to)
}

// Bundle holds the normalized optimizer inputs.
type Bundle struct {
	Start           time.Time
	Interval        time.Duration
	PVWh            []float64
	PriceEURPerKWh  []float64
	LoadWh          []float64
	FeedInEURPerKWh float64
}

// Slots returns the number of slots.
func (b Bundle) Slots() int { return len(b.PVWh) }

// Assembler collects and normalizes provider data.
type Assembler struct {
	cfg   Config
	pv    Provider
	price Provider
	load  Provider
	log   logger.Logger
}

// NewAssembler validates cfg and returns an Assembler. A nil load provider
// yields the flat default load.
func NewAssembler(cfg Config, pv, price, load Provider, log logger.Logger) (*Assembler, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pv == nil || price == nil {
		return nil, fmt.Errorf("pv and price providers are required")
	}
	return &Assembler{cfg: cfg, pv: pv, price: price, load: load, log: log}, nil
}

// Config returns the normalized configuration.
func (a *Assembler) Config() Config { return a.cfg }

// Assemble builds the optimizer inputs for the horizon starting at the slot
// containing now.
func (a *Assembler) Assemble(ctx context.Context, now time.Time) (Bundle, error) {
	interval := a.cfg.Interval()
	start := now.Truncate(interval)
	slots := a.cfg.Slots()
	end := start.Add(time.Duration(slots) * interval)
	opt := ResampleOptions{Start: start, Interval: interval, Slots: slots, MaxGap: a.cfg.MaxGapSlots}
	lead := time.Duration(a.cfg.MaxGapSlots+1) * interval

	pvPts, err := a.pv.Points(ctx, start.Add(-lead), end)
	if err != nil {
		return Bundle{}, fmt.Errorf("pv forecast: %w", err)
	}
	pv, err := Resample(pvPts, opt)
	if err != nil {
		return Bundle{}, fmt.Errorf("pv forecast: %w", err)
	}
	pricePts, err := a.price.Points(ctx, start.Add(-lead), end)
	if err != nil {
		return Bundle{}, fmt.Errorf("prices: %w", err)
	}
	price, err := Resample(pricePts, opt)
	if err != nil {
		return Bundle{}, fmt.Errorf("prices: %w", err)
	}

	var history []model.Point
	if a.load != nil {
		from := now.Add(-time.Duration(a.cfg.LoadLookbackDays) * 24 * time.Hour)
		history, err = a.load.Points(ctx, from, now)
		if err != nil {
			if a.log != nil {
				a.log.Warnf("load history unavailable, using default profile: %v", err)
			}
			history = nil
		}
	}
	load := LoadProfile(history, start, interval, slots, a.cfg.DefaultLoadW)

	for i, v := range pv.Values {
		if v < 0 {
			pv.Values[i] = 0
		}
	}
	b := Bundle{
		Start:           start,
		Interval:        interval,
		PVWh:            ToEnergy(pv).Values,
		PriceEURPerKWh:  price.Values,
		LoadWh:          ToEnergy(load).Values,
		FeedInEURPerKWh: a.cfg.FeedInEURPerKWh,
	}
	if a.log != nil {
		a.log.Debugw("inputs assembled", map[string]any{
			"start":       start,
			"slots":       slots,
			"pv_points":   len(pvPts),
			"price_point": len(pricePts),
			"load_points": len(history),
		})
	}
	return b, nil
}
