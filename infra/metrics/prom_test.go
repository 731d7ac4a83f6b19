package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/eosbridge/core/events"
	coremetrics "github.com/kilianp07/eosbridge/core/metrics"
	"github.com/kilianp07/eosbridge/core/model"
	"github.com/kilianp07/eosbridge/infra/logger"
	"github.com/kilianp07/eosbridge/internal/eventbus"
)

func newPromSink(t *testing.T, reg prometheus.Registerer) *PromSink {
	t.Helper()
	sinkIf, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	sink, ok := sinkIf.(*PromSink)
	if !ok {
		t.Fatalf("expected PromSink")
	}
	return sink
}

func TestPromSink_RecordDecision(t *testing.T) {
	sink := newPromSink(t, prometheus.NewRegistry())
	soc := 42.0
	d := model.ControlDecision{Mode: model.ModeAvoidDischarge, Source: model.DecisionFromOverride}
	st := model.NewStatus(d, time.Now())
	st.SOCPercent = &soc
	st.PlanStale = true
	if err := sink.RecordDecision(events.DecisionEvent{Decision: d, Status: st}); err != nil {
		t.Fatalf("record error: %v", err)
	}
	expected := `
# HELP eosbridge_decisions_total Applied control decisions by source and mode
# TYPE eosbridge_decisions_total counter
eosbridge_decisions_total{clamped="false",mode="avoid_discharge",source="override"} 1
`
	if err := testutil.CollectAndCompare(sink.decisions, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	if v := testutil.ToFloat64(sink.soc); v != 42 {
		t.Errorf("expected soc 42, got %v", v)
	}
	if v := testutil.ToFloat64(sink.planStale); v != 1 {
		t.Errorf("expected plan stale gauge 1, got %v", v)
	}
}

func TestPromSink_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := newPromSink(t, reg)
	b := newPromSink(t, reg)
	_ = a.RecordOverride(events.OverrideEvent{Action: "clear"})
	_ = b.RecordOverride(events.OverrideEvent{Action: "clear"})
	if v := testutil.ToFloat64(a.overrides.WithLabelValues("clear", "auto")); v != 2 {
		t.Fatalf("expected shared counter at 2, got %v", v)
	}
}

type countingSink struct {
	coremetrics.NopSink
	decisions chan events.DecisionEvent
	fetches   chan events.FetchEvent
}

func (c *countingSink) RecordDecision(ev events.DecisionEvent) error {
	c.decisions <- ev
	return nil
}

func (c *countingSink) RecordFetch(ev events.FetchEvent) error {
	c.fetches <- ev
	return nil
}

func TestStartEventCollector(t *testing.T) {
	bus := eventbus.New()
	sink := &countingSink{decisions: make(chan events.DecisionEvent, 1), fetches: make(chan events.FetchEvent, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartEventCollector(ctx, bus, sink, logger.NopLogger{})
	// Subscribe happens synchronously, so events published now are seen.
	bus.Publish(events.FetchEvent{Success: true, Attempts: 1})
	bus.Publish(events.DecisionEvent{Decision: model.ControlDecision{Source: model.DecisionFromPlan}})
	select {
	case ev := <-sink.fetches:
		if !ev.Success {
			t.Fatalf("unexpected fetch event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("fetch event not recorded")
	}
	select {
	case ev := <-sink.decisions:
		if ev.Decision.Source != model.DecisionFromPlan {
			t.Fatalf("unexpected decision %+v", ev.Decision)
		}
	case <-time.After(time.Second):
		t.Fatal("decision event not recorded")
	}
}
