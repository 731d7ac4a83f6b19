package forecast

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/eosbridge/core/model"
)

// LoadProfile builds a load forecast in W by averaging history observed at
// the same time of day. Slots without any history use defaultW.
func LoadProfile(history []model.Point, start time.Time, interval time.Duration, slots int, defaultW float64) model.TimeSeries {
	ts := model.TimeSeries{Start: start, Interval: interval, Values: make([]float64, slots)}
	perDay := int(24 * time.Hour / interval)
	if perDay <= 0 {
		perDay = 1
	}
	byTimeOfDay := make([][]float64, perDay)
	for _, p := range history {
		if p.Value < 0 {
			continue
		}
		idx := timeOfDaySlot(p.Time, interval, perDay)
		byTimeOfDay[idx] = append(byTimeOfDay[idx], p.Value)
	}
	for i := range ts.Values {
		vals := byTimeOfDay[timeOfDaySlot(ts.SlotTime(i), interval, perDay)]
		if len(vals) == 0 {
			ts.Values[i] = defaultW
			continue
		}
		ts.Values[i] = stat.Mean(vals, nil)
	}
	return ts
}

func timeOfDaySlot(t time.Time, interval time.Duration, perDay int) int {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	idx := int(t.Sub(midnight) / interval)
	if idx < 0 {
		return 0
	}
	if idx >= perDay {
		return perDay - 1
	}
	return idx
}
