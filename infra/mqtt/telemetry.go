package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kilianp07/eosbridge/core/battery"
	"github.com/kilianp07/eosbridge/core/model"
)

type reading struct {
	value float64
	at    time.Time
}

// TelemetryReader keeps the latest battery readings received over MQTT.
type TelemetryReader struct {
	cfg        TelemetryConfig
	capacityWh float64
	limits     func() model.SOCLimits
	now        func() time.Time

	mu   sync.RWMutex
	soc  *reading
	temp *reading
}

// NewTelemetryReader subscribes to the telemetry topics of client.
func NewTelemetryReader(client *PahoClient, capacityWh float64, limits func() model.SOCLimits) (*TelemetryReader, error) {
	cfg := client.Config()
	tc := cfg.Telemetry
	if tc.SOCTopic == "" {
		tc.SOCTopic = "telemetry/soc"
	}
	r := &TelemetryReader{cfg: tc, capacityWh: capacityWh, limits: limits, now: time.Now}
	if err := client.Subscribe("telemetry", cfg.Topic(tc.SOCTopic), r.handle(&r.soc)); err != nil {
		return nil, err
	}
	if tc.TemperatureTopic != "" {
		if err := client.Subscribe("telemetry", cfg.Topic(tc.TemperatureTopic), r.handle(&r.temp)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *TelemetryReader) handle(dst **reading) Handler {
	return func(_ string, payload []byte) {
		v, err := parseValue(payload)
		if err != nil {
			return
		}
		r.mu.Lock()
		*dst = &reading{value: v, at: r.now()}
		r.mu.Unlock()
	}
}

// parseValue accepts a bare number or a JSON object with a value field.
func parseValue(payload []byte) (float64, error) {
	s := strings.TrimSpace(string(payload))
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	var doc struct {
		Value *float64 `json:"value"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil || doc.Value == nil {
		return 0, fmt.Errorf("unparsable telemetry %q", s)
	}
	return *doc.Value, nil
}

func (r *TelemetryReader) maxAge() time.Duration {
	return time.Duration(r.cfg.MaxAgeSeconds) * time.Second
}

// ReadBattery implements battery.Reader. Readings older than the maximum age
// are unavailable.
func (r *TelemetryReader) ReadBattery(context.Context) (model.BatteryState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.now()
	if r.soc == nil {
		return model.BatteryState{}, fmt.Errorf("no soc telemetry: %w", battery.ErrUnavailable)
	}
	if age := now.Sub(r.soc.at); r.maxAge() > 0 && age > r.maxAge() {
		return model.BatteryState{}, fmt.Errorf("soc telemetry %s old: %w", age.Round(time.Second), battery.ErrUnavailable)
	}
	st := model.BatteryState{
		SOCPercent: r.soc.value,
		CapacityWh: r.capacityWh,
		ReadAt:     r.soc.at,
	}
	var minSOC float64
	if r.limits != nil {
		minSOC = r.limits().Min
	}
	st.UsableEnergyWh = model.UsableEnergy(r.capacityWh, st.SOCPercent, minSOC)
	if r.temp != nil && (r.maxAge() == 0 || now.Sub(r.temp.at) <= r.maxAge()) {
		st.TemperatureC = r.temp.value
		st.TemperatureValid = true
	}
	return st, nil
}
