package homeassistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/eosbridge/core/battery"
	"github.com/kilianp07/eosbridge/core/model"
	"github.com/kilianp07/eosbridge/infra/logger"
)

type serviceCall struct {
	Path string
	Data map[string]any
}

type fakeHA struct {
	mu      sync.Mutex
	states  map[string]State
	history []State
	calls   []serviceCall
	events  []serviceCall
	failOn  string
}

func (f *fakeHA) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/states/"):
			st, ok := f.states[strings.TrimPrefix(r.URL.Path, "/api/states/")]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(st)
		case strings.HasPrefix(r.URL.Path, "/api/history/period/"):
			assert.Equal(t, "sensor.load", r.URL.Query().Get("filter_entity_id"))
			_ = json.NewEncoder(w).Encode([][]State{f.history})
		case strings.HasPrefix(r.URL.Path, "/api/services/"), strings.HasPrefix(r.URL.Path, "/api/events/"):
			var data map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&data))
			c := serviceCall{Path: r.URL.Path, Data: data}
			if strings.HasPrefix(r.URL.Path, "/api/events/") {
				f.events = append(f.events, c)
			} else {
				f.calls = append(f.calls, c)
			}
			if f.failOn != "" && r.URL.Path == f.failOn {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte("[]"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newFake(t *testing.T) (*fakeHA, *Client, Config) {
	t.Helper()
	f := &fakeHA{states: map[string]State{}}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	cfg := Config{URL: srv.URL + "/", Token: "secret"}
	cfg.SetDefaults()
	return f, NewClient(cfg, nil, logger.NopLogger{}), cfg
}

func TestBatteryReader(t *testing.T) {
	f, c, _ := newFake(t)
	f.states["sensor.soc"] = State{EntityID: "sensor.soc", State: "62.5"}
	f.states["sensor.temp"] = State{EntityID: "sensor.temp", State: "unavailable"}
	r, err := NewBatteryReader(c, BatteryEntities{SOC: "sensor.soc", Temperature: "sensor.temp"}, 10000,
		func() model.SOCLimits { return model.SOCLimits{Min: 10, Max: 95} })
	require.NoError(t, err)

	st, err := r.ReadBattery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 62.5, st.SOCPercent)
	assert.InDelta(t, 5250, st.UsableEnergyWh, 1e-9)
	assert.False(t, st.TemperatureValid)

	f.states["sensor.temp"] = State{State: "21.0"}
	st, err = r.ReadBattery(context.Background())
	require.NoError(t, err)
	assert.True(t, st.TemperatureValid)
	assert.Equal(t, 21.0, st.TemperatureC)
}

func TestBatteryReaderUnavailable(t *testing.T) {
	for _, state := range []string{"unknown", "unavailable", "n/a"} {
		f, c, _ := newFake(t)
		f.states["sensor.soc"] = State{State: state}
		r, err := NewBatteryReader(c, BatteryEntities{SOC: "sensor.soc"}, 10000, nil)
		require.NoError(t, err)
		_, err = r.ReadBattery(context.Background())
		if !IsUnavailable(err) {
			t.Fatalf("state %q: expected unavailable, got %v", state, err)
		}
	}

	_, c, _ := newFake(t)
	r, _ := NewBatteryReader(c, BatteryEntities{SOC: "sensor.missing"}, 10000, nil)
	_, err := r.ReadBattery(context.Background())
	assert.ErrorIs(t, err, battery.ErrUnavailable)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSinkApply(t *testing.T) {
	f, c, cfg := newFake(t)
	cfg.Control = ControlEntities{
		ModeSelect:      "select.mode",
		ACChargePower:   "number.ac",
		DischargeLimit:  "number.discharge",
		DischargeSwitch: "switch.discharge",
		MinSOC:          "number.min_soc",
	}
	cfg.Sequences = map[string][]ServiceCall{
		"charge_from_grid": {
			{Service: "number.set_value", EntityID: "number.grid_power", Data: map[string]any{"value": "{{ power }}"}},
			{Service: "notify.log", Data: map[string]any{"message": "charging at {{power}} W"}},
		},
	}
	s := NewSink(c, cfg, 4000, logger.NopLogger{})
	d := model.ControlDecision{Mode: model.ModeChargeFromGrid, ACChargeDemandW: 2999.6, MinSOC: 10, MaxSOC: 95}
	require.NoError(t, s.Apply(context.Background(), d))

	require.Len(t, f.calls, 7)
	assert.Equal(t, "/api/services/select/select_option", f.calls[0].Path)
	assert.Equal(t, "Charge from Grid", f.calls[0].Data["option"])
	assert.Equal(t, 3000.0, f.calls[1].Data["value"])
	assert.Equal(t, 0.0, f.calls[2].Data["value"])
	assert.Equal(t, "/api/services/switch/turn_off", f.calls[3].Path)
	assert.Equal(t, "number.min_soc", f.calls[4].Data["entity_id"])
	assert.Equal(t, "number.grid_power", f.calls[5].Data["entity_id"])
	assert.Equal(t, 3000.0, f.calls[5].Data["value"])
	assert.Equal(t, "charging at 3000 W", f.calls[6].Data["message"])
}

func TestSinkApplyDischargeAllowed(t *testing.T) {
	f, c, cfg := newFake(t)
	cfg.Control = ControlEntities{DischargeLimit: "number.discharge", DischargeSwitch: "switch.discharge"}
	s := NewSink(c, cfg, 4000, logger.NopLogger{})
	require.NoError(t, s.Apply(context.Background(), model.ControlDecision{Mode: model.ModeDischargeAllowed, DischargeAllowed: true}))
	require.Len(t, f.calls, 2)
	assert.Equal(t, 4000.0, f.calls[0].Data["value"])
	assert.Equal(t, "/api/services/switch/turn_on", f.calls[1].Path)
}

func TestSinkApplyContinuesAfterFailure(t *testing.T) {
	f, c, cfg := newFake(t)
	f.failOn = "/api/services/select/select_option"
	cfg.Control = ControlEntities{ModeSelect: "select.mode", ACChargePower: "number.ac"}
	s := NewSink(c, cfg, 4000, logger.NopLogger{})
	err := s.Apply(context.Background(), model.ControlDecision{Mode: model.ModeAvoidDischarge})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Len(t, f.calls, 2)
}

func TestSinkPublishStatus(t *testing.T) {
	f, c, cfg := newFake(t)
	s := NewSink(c, cfg, 4000, logger.NopLogger{})
	d := model.ControlDecision{Mode: model.ModeAvoidDischarge, Source: model.DecisionFromOverride}
	require.NoError(t, s.PublishStatus(context.Background(), model.NewStatus(d, time.Unix(0, 0).UTC())))
	require.Len(t, f.events, 1)
	ev := f.events[0]
	assert.Equal(t, "/api/events/eos_control_update", ev.Path)
	assert.Equal(t, "avoid_discharge", ev.Data["mode"])
	assert.Equal(t, "Avoid Discharge", ev.Data["mode_name"])
	assert.Equal(t, "override", ev.Data["source"])
	assert.Contains(t, ev.Data, "ac_charge_demand")
	assert.Contains(t, ev.Data, "timestamp")
}

func TestRenderData(t *testing.T) {
	out := RenderData(map[string]any{
		"value":  "{{ power }}",
		"text":   "p={{ power }}",
		"nested": map[string]any{"v": "{{power}}"},
		"list":   []any{"{{ power }}", 3.0},
		"keep":   true,
	}, -50)
	assert.Equal(t, 0.0, out["value"])
	assert.Equal(t, "p=0", out["text"])
	assert.Equal(t, 0.0, out["nested"].(map[string]any)["v"])
	assert.Equal(t, []any{0.0, 3.0}, out["list"])
	assert.Equal(t, true, out["keep"])
}

func TestConfigValidate(t *testing.T) {
	var c Config
	require.NoError(t, c.Validate())
	c.URL = "http://ha:8123"
	assert.Error(t, c.Validate())
	c.Token = "t"
	c.Sequences = map[string][]ServiceCall{"auto": {{Service: "invalid"}}}
	assert.Error(t, c.Validate())
	c.Sequences = nil
	require.NoError(t, c.Validate())
	c.SetDefaults()
	assert.Equal(t, DefaultEventType, c.EventType)
	assert.Equal(t, 10*time.Second, c.Timeout())
}
