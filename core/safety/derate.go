package safety

import (
	"math"

	"gonum.org/v1/gonum/interp"
)

// derater maps a temperature to a power factor in [0,1].
type derater struct {
	curve TemperatureCurve
	pl    interp.PiecewiseLinear
}

func newDerater(c TemperatureCurve) (*derater, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	d := &derater{curve: c}
	xs := []float64{c.SafetyMinC, c.NominalMinC, c.NominalMaxC, c.SafetyMaxC}
	ys := []float64{c.FloorFactor, 1, 1, c.FloorFactor}
	if err := d.pl.Fit(xs, ys); err != nil {
		return nil, err
	}
	return d, nil
}

// factor returns the derating factor for temp. Values at or beyond the safety
// thresholds are 0.
func (d *derater) factor(temp float64) float64 {
	if math.IsNaN(temp) {
		return 1
	}
	if temp <= d.curve.SafetyMinC || temp >= d.curve.SafetyMaxC {
		return 0
	}
	f := d.pl.Predict(temp)
	return math.Max(0, math.Min(1, f))
}

// chargingCurveFactor limits charge power as the state of charge rises.
func chargingCurveFactor(soc float64) float64 {
	switch {
	case soc < 80:
		return 1
	case soc < 90:
		return 0.7
	case soc < 95:
		return 0.5
	default:
		return 0.3
	}
}
