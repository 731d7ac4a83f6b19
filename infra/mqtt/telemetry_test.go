package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/eosbridge/core/battery"
	"github.com/kilianp07/eosbridge/core/model"
)

func TestTelemetryReader(t *testing.T) {
	mc := newMock()
	mc.install(t)
	cli, err := NewPahoClient(Config{
		Broker:    "tcp://localhost:1883",
		Telemetry: TelemetryConfig{SOCTopic: "/inverter/soc", TemperatureTopic: "telemetry/temp", MaxAgeSeconds: 60},
	})
	require.NoError(t, err)
	r, err := NewTelemetryReader(cli, 10000, func() model.SOCLimits { return model.SOCLimits{Min: 20, Max: 90} })
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	_, err = r.ReadBattery(context.Background())
	assert.ErrorIs(t, err, battery.ErrUnavailable)

	mc.deliver("inverter/soc", "55.5")
	mc.deliver("eosbridge/telemetry/temp", `{"value": 18}`)
	st, err := r.ReadBattery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 55.5, st.SOCPercent)
	assert.InDelta(t, 3550, st.UsableEnergyWh, 1e-9)
	assert.True(t, st.TemperatureValid)
	assert.Equal(t, 18.0, st.TemperatureC)

	mc.deliver("inverter/soc", "garbage")
	st, err = r.ReadBattery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 55.5, st.SOCPercent)

	now = now.Add(61 * time.Second)
	_, err = r.ReadBattery(context.Background())
	assert.ErrorIs(t, err, battery.ErrUnavailable)
}
