package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/eosbridge/core/events"
	coremetrics "github.com/kilianp07/eosbridge/core/metrics"
)

// PromSink records control activity in Prometheus metrics.
type PromSink struct {
	decisions *prometheus.CounterVec
	soc       prometheus.Gauge
	planStale prometheus.Gauge
	attempts  prometheus.Histogram
	overrides *prometheus.CounterVec
}

// NewPromSink registers metrics on the default Prometheus registerer. The
// HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eosbridge_decisions_total",
		Help: "Applied control decisions by source and mode",
	}, []string{"source", "mode", "clamped"})
	soc := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eosbridge_battery_soc_percent",
		Help: "Battery state of charge at the last applied decision",
	})
	stale := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eosbridge_plan_stale",
		Help: "1 when the last decision was made without a fresh plan",
	})
	attempts := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "eosbridge_fetch_attempts",
		Help:    "Optimizer attempts needed per fetch cycle",
		Buckets: []float64{1, 2, 3, 4, 5},
	})
	overrides := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eosbridge_override_changes_total",
		Help: "Manual override changes by action and mode",
	}, []string{"action", "mode"})

	var err error
	if decisions, err = register(reg, decisions); err != nil {
		return nil, err
	}
	if soc, err = register(reg, soc); err != nil {
		return nil, err
	}
	if stale, err = register(reg, stale); err != nil {
		return nil, err
	}
	if attempts, err = register(reg, attempts); err != nil {
		return nil, err
	}
	if overrides, err = register(reg, overrides); err != nil {
		return nil, err
	}
	return &PromSink{decisions: decisions, soc: soc, planStale: stale, attempts: attempts, overrides: overrides}, nil
}

// register returns the already registered collector when c was registered
// before, so several sinks can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordDecision counts the decision and updates the state gauges.
func (s *PromSink) RecordDecision(ev events.DecisionEvent) error {
	d := ev.Decision
	s.decisions.WithLabelValues(string(d.Source), d.Mode.String(), strconv.FormatBool(len(d.Clamps) > 0)).Inc()
	if ev.Status.SOCPercent != nil {
		s.soc.Set(*ev.Status.SOCPercent)
	}
	if ev.Status.PlanStale {
		s.planStale.Set(1)
	} else {
		s.planStale.Set(0)
	}
	return nil
}

// RecordFetch observes the number of attempts of a cycle.
func (s *PromSink) RecordFetch(ev events.FetchEvent) error {
	if ev.Attempts > 0 {
		s.attempts.Observe(float64(ev.Attempts))
	}
	return nil
}

// RecordOverride counts override changes.
func (s *PromSink) RecordOverride(ev events.OverrideEvent) error {
	s.overrides.WithLabelValues(ev.Action, ev.Override.Mode.String()).Inc()
	return nil
}
