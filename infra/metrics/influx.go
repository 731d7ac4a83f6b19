package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/eosbridge/core/events"
	"github.com/kilianp07/eosbridge/core/logger"
	coremetrics "github.com/kilianp07/eosbridge/core/metrics"
	infralogger "github.com/kilianp07/eosbridge/infra/logger"
)

// InfluxConfig locates the InfluxDB bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes control history to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      infralogger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordDecision writes the applied decision and the status around it.
func (s *InfluxSink) RecordDecision(ev events.DecisionEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d, st := ev.Decision, ev.Status
	p := write.NewPointWithMeasurement("control_decision").
		AddTag("source", string(d.Source)).
		AddTag("mode", d.Mode.String()).
		AddField("mode_value", d.Mode.Value()).
		AddField("ac_charge_w", round1(d.ACChargeDemandW)).
		AddField("dc_charge_w", round1(d.DCChargeDemandW)).
		AddField("discharge_allowed", d.DischargeAllowed).
		AddField("discharge_limit_w", round1(d.DischargeLimitW)).
		AddField("optimization_ok", st.OptimizationOK).
		AddField("plan_age_s", round1(st.PlanAgeSeconds))
	if st.SOCPercent != nil {
		p = p.AddField("soc", round1(*st.SOCPercent))
	}
	if len(d.Clamps) > 0 {
		p = p.AddField("clamps", strings.Join(d.Clamps, ","))
	}
	p = p.SetTime(st.Timestamp)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordFetch writes the outcome of an optimizer fetch cycle.
func (s *InfluxSink) RecordFetch(ev events.FetchEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("optimizer_fetch").
		AddTag("source", string(ev.Source)).
		AddField("success", ev.Success).
		AddField("attempts", ev.Attempts).
		AddField("duration_ms", round1(ev.Duration.Seconds()*1000)).
		AddField("slots", ev.Slots).
		AddField("consecutive_failures", ev.ConsecutiveFailures).
		AddField("plan_age_s", round1(ev.PlanAge.Seconds()))
	if ev.Err != nil {
		p = p.AddField("error", ev.Err.Error())
	}
	p = p.SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordOverride writes an override change.
func (s *InfluxSink) RecordOverride(ev events.OverrideEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("override_change").
		AddTag("action", ev.Action).
		AddTag("mode", ev.Override.Mode.String()).
		AddField("duration_s", int64(ev.Override.Duration.Seconds()))
	if ev.Override.ChargePowerW != nil {
		p = p.AddField("charge_power_w", round1(*ev.Override.ChargePowerW))
	}
	p = p.SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
