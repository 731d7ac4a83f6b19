package evcc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/kilianp07/eosbridge/core/model"
	"github.com/kilianp07/eosbridge/infra/logger"
)

func TestBatteryMode(t *testing.T) {
	tests := map[model.Mode]string{
		model.ModeAuto:             BatteryNormal,
		model.ModeChargeFromGrid:   BatteryCharge,
		model.ModeAvoidDischarge:   BatteryHold,
		model.ModeDischargeAllowed: BatteryNormal,
	}
	for m, want := range tests {
		if got := BatteryMode(m); got != want {
			t.Fatalf("%s: expected %s got %s", m, want, got)
		}
	}
}

func TestSinkApply(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		paths = append(paths, r.URL.Path)
		w.WriteHeader(status)
	}))
	defer srv.Close()
	requests := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), paths...)
	}

	s, err := NewSink(Config{URL: srv.URL + "/"}, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	ctx := context.Background()
	if err := s.Apply(ctx, model.ControlDecision{Mode: model.ModeChargeFromGrid}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Apply(ctx, model.ControlDecision{Mode: model.ModeChargeFromGrid, ACChargeDemandW: 100}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Apply(ctx, model.ControlDecision{Mode: model.ModeAuto}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if p := requests(); len(p) != 2 || p[0] != "/api/batterymode/charge" || p[1] != "/api/batterymode/normal" {
		t.Fatalf("unexpected requests %v", p)
	}

	mu.Lock()
	status = http.StatusBadRequest
	mu.Unlock()
	if err := s.Apply(ctx, model.ControlDecision{Mode: model.ModeAvoidDischarge}); err == nil {
		t.Fatalf("expected error on 400")
	}
	mu.Lock()
	status = http.StatusOK
	mu.Unlock()
	if err := s.Apply(ctx, model.ControlDecision{Mode: model.ModeAvoidDischarge}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if p := requests(); len(p) != 4 || p[3] != "/api/batterymode/hold" {
		t.Fatalf("failed mode not retried: %v", p)
	}
}

func TestConfigValidate(t *testing.T) {
	c := Config{URL: "http://evcc:7070", ModePath: "/api/mode"}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for template without placeholder")
	}
	c = Config{}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
