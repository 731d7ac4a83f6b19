package forecast

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/eosbridge/core/model"
)

// ErrIncomplete is returned when a series has gaps that cannot be filled.
var ErrIncomplete = errors.New("incomplete input series")

// ResampleOptions controls Resample.
type ResampleOptions struct {
	Start    time.Time
	Interval time.Duration
	Slots    int
	// MaxGap is the number of consecutive empty slots that may be forward
	// filled from the last known value.
	MaxGap int
}

// Resample averages points into fixed slots. Empty slots are forward filled
// for at most MaxGap slots; any longer gap returns ErrIncomplete.
func Resample(points []model.Point, opt ResampleOptions) (model.TimeSeries, error) {
	ts := model.TimeSeries{Start: opt.Start, Interval: opt.Interval, Values: make([]float64, opt.Slots)}
	if opt.Interval <= 0 || opt.Slots <= 0 {
		return ts, fmt.Errorf("invalid resample window")
	}
	buckets := make([][]float64, opt.Slots)
	var seed *model.Point
	for i := range points {
		p := points[i]
		if p.Time.Before(opt.Start) {
			if seed == nil || p.Time.After(seed.Time) {
				seed = &points[i]
			}
			continue
		}
		idx, ok := ts.Index(p.Time)
		if !ok {
			continue
		}
		buckets[idx] = append(buckets[idx], p.Value)
	}

	var last float64
	haveLast := false
	if seed != nil {
		last, haveLast = seed.Value, true
	}
	gap := 0
	for i, b := range buckets {
		if len(b) > 0 {
			ts.Values[i] = stat.Mean(b, nil)
			last, haveLast = ts.Values[i], true
			gap = 0
			continue
		}
		gap++
		if !haveLast || gap > opt.MaxGap {
			return ts, fmt.Errorf("%w: no data for slot %s", ErrIncomplete, ts.SlotTime(i).Format(time.RFC3339))
		}
		ts.Values[i] = last
	}
	return ts, nil
}

// ToEnergy converts a power series in W into energy per slot in Wh.
func ToEnergy(power model.TimeSeries) model.TimeSeries {
	h := power.Interval.Hours()
	out := model.TimeSeries{Start: power.Start, Interval: power.Interval, Values: make([]float64, len(power.Values))}
	for i, v := range power.Values {
		out.Values[i] = v * h
	}
	return out
}
