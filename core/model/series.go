package model

import (
	"fmt"
	"time"
)

// Point is a single raw observation or forecast value.
type Point struct {
	Time  time.Time `json:"time" yaml:"time"`
	Value float64   `json:"value" yaml:"value"`
}

// TimeSeries is a uniformly spaced series of values. Value i covers
// [Start+i*Interval, Start+(i+1)*Interval).
type TimeSeries struct {
	Start    time.Time     `json:"start"`
	Interval time.Duration `json:"interval"`
	Values   []float64     `json:"values"`
}

// Len returns the number of slots.
func (s TimeSeries) Len() int { return len(s.Values) }

// End returns the end of the last slot.
func (s TimeSeries) End() time.Time {
	return s.Start.Add(time.Duration(len(s.Values)) * s.Interval)
}

// SlotTime returns the start time of slot i.
func (s TimeSeries) SlotTime(i int) time.Time {
	return s.Start.Add(time.Duration(i) * s.Interval)
}

// Index returns the slot covering t or false if t is outside the series.
func (s TimeSeries) Index(t time.Time) (int, bool) {
	if s.Interval <= 0 || t.Before(s.Start) {
		return 0, false
	}
	i := int(t.Sub(s.Start) / s.Interval)
	if i >= len(s.Values) {
		return 0, false
	}
	return i, true
}

// Validate checks the series shape.
func (s TimeSeries) Validate() error {
	if s.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if s.Start.IsZero() {
		return fmt.Errorf("start time is required")
	}
	return nil
}
