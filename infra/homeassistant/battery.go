package homeassistant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/eosbridge/core/battery"
	"github.com/kilianp07/eosbridge/core/model"
)

// BatteryReader reads the battery state from Home Assistant sensors.
type BatteryReader struct {
	client     *Client
	entities   BatteryEntities
	capacityWh float64
	limits     func() model.SOCLimits
}

// NewBatteryReader returns a reader for the configured entities. limits may
// be nil, in which case the usable energy is computed down to 0 %.
func NewBatteryReader(c *Client, e BatteryEntities, capacityWh float64, limits func() model.SOCLimits) (*BatteryReader, error) {
	if e.SOC == "" {
		return nil, fmt.Errorf("battery soc entity is required")
	}
	return &BatteryReader{client: c, entities: e, capacityWh: capacityWh, limits: limits}, nil
}

// ReadBattery implements battery.Reader.
func (r *BatteryReader) ReadBattery(ctx context.Context) (model.BatteryState, error) {
	st, err := r.client.State(ctx, r.entities.SOC)
	if err != nil {
		return model.BatteryState{}, fmt.Errorf("%s: %w: %w", r.entities.SOC, battery.ErrUnavailable, err)
	}
	soc, err := numericState(st)
	if err != nil {
		return model.BatteryState{}, fmt.Errorf("%s: %w", r.entities.SOC, err)
	}
	out := model.BatteryState{
		SOCPercent: soc,
		CapacityWh: r.capacityWh,
		ReadAt:     st.LastUpdated,
	}
	if out.ReadAt.IsZero() {
		out.ReadAt = time.Now()
	}
	var minSOC float64
	if r.limits != nil {
		minSOC = r.limits().Min
	}
	out.UsableEnergyWh = model.UsableEnergy(r.capacityWh, soc, minSOC)

	if r.entities.Temperature != "" {
		ts, err := r.client.State(ctx, r.entities.Temperature)
		if err == nil {
			if t, err := numericState(ts); err == nil {
				out.TemperatureC = t
				out.TemperatureValid = true
			}
		}
	}
	return out, nil
}

func numericState(st State) (float64, error) {
	if !st.Available() {
		return 0, fmt.Errorf("state %q: %w", st.State, battery.ErrUnavailable)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(st.State), 64)
	if err != nil {
		return 0, fmt.Errorf("state %q: %w", st.State, battery.ErrUnavailable)
	}
	return v, nil
}

// IsUnavailable reports whether err means the entity has no usable value.
func IsUnavailable(err error) bool { return errors.Is(err, battery.ErrUnavailable) }
