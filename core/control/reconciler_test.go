package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/eosbridge/core/battery"
	"github.com/kilianp07/eosbridge/core/decisionlog"
	"github.com/kilianp07/eosbridge/core/events"
	"github.com/kilianp07/eosbridge/core/model"
	"github.com/kilianp07/eosbridge/core/optimizer"
	"github.com/kilianp07/eosbridge/core/override"
	"github.com/kilianp07/eosbridge/core/safety"
	"github.com/kilianp07/eosbridge/infra/logger"
	"github.com/kilianp07/eosbridge/internal/eventbus"
)

var t1400 = time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)

type fakePlans struct {
	mu        sync.Mutex
	plan      *model.Plan
	freshness optimizer.Freshness
	status    optimizer.Status
}

func (f *fakePlans) Current(time.Time) (*model.Plan, optimizer.Freshness) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plan, f.freshness
}

func (f *fakePlans) Status() optimizer.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakePlans) set(p *model.Plan, fr optimizer.Freshness, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plan, f.freshness, f.status.OK = p, fr, ok
}

type recordingSink struct {
	mu       sync.Mutex
	applied  []model.ControlDecision
	statuses []model.Status
	fail     error
}

func (s *recordingSink) Apply(_ context.Context, d model.ControlDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.applied = append(s.applied, d)
	return nil
}

func (s *recordingSink) PublishStatus(_ context.Context, st model.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, st)
	return nil
}

func (s *recordingSink) appliedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.applied)
}

type batteryStub struct {
	mu    sync.Mutex
	state model.BatteryState
	err   error
}

func (b *batteryStub) ReadBattery(context.Context) (model.BatteryState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.err
}

func (b *batteryStub) set(soc, temp float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = model.BatteryState{SOCPercent: soc, TemperatureC: temp, TemperatureValid: true}
	b.err = nil
}

type harness struct {
	rec       *Reconciler
	plans     *fakePlans
	overrides *override.Manager
	sink      *recordingSink
	battery   *batteryStub
	bus       *eventbus.Bus
	store     *decisionlog.JSONLStore
	now       time.Time
}

// planAt1400 holds a single hourly slot at 14:00 charging 3000 W from the
// grid with discharge allowed.
func planAt1400() *model.Plan {
	return &model.Plan{
		Source:    model.SourceEOSServer,
		Start:     t1400,
		Interval:  time.Hour,
		FetchedAt: t1400.Add(-5 * time.Minute),
		Slots: []model.Slot{
			{Start: t1400, ACChargeW: 3000, DCChargeW: 0, DischargeAllowed: true},
			{Start: t1400.Add(time.Hour), ACChargeW: 0, DischargeAllowed: false},
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	h := &harness{
		plans:   &fakePlans{},
		sink:    &recordingSink{},
		battery: &batteryStub{},
		bus:     eventbus.New(),
		now:     t1400.Add(10 * time.Minute),
	}
	h.plans.set(planAt1400(), optimizer.Fresh, true)
	h.battery.set(50, 25)
	h.overrides = override.NewManager(func() time.Time { return h.now })
	clamp, err := safety.New(safety.Config{MaxChargePowerW: 5000, MaxDischargePowerW: 5000})
	require.NoError(t, err)
	store, err := decisionlog.NewJSONLStore(t.TempDir() + "/decisions.jsonl")
	require.NoError(t, err)
	h.store = store
	h.rec, err = NewReconciler(Config{SOCLimits: model.SOCLimits{Min: 10, Max: 95}}, Deps{
		Battery:   h.battery,
		Plans:     h.plans,
		Overrides: h.overrides,
		Clamper:   clamp,
		Sink:      h.sink,
		Store:     store,
		Bus:       h.bus,
		Log:       logger.NopLogger{},
	})
	require.NoError(t, err)
	return h
}

func (h *harness) tick(t *testing.T) TickResult {
	t.Helper()
	res, err := h.rec.Tick(context.Background(), h.now)
	require.NoError(t, err)
	return res
}

func TestTickFollowsPlanSlot(t *testing.T) {
	h := newHarness(t)
	res := h.tick(t)
	d := res.Decision
	assert.True(t, res.Applied)
	assert.Equal(t, 3000.0, d.ACChargeDemandW)
	assert.True(t, d.DischargeAllowed)
	assert.Equal(t, model.DecisionFromPlan, d.Source)
	assert.Equal(t, model.ModeChargeFromGrid, d.Mode)
	assert.Empty(t, d.Clamps)
	assert.True(t, res.Status.OptimizationOK)
	assert.Equal(t, 50.0, *res.Status.SOCPercent)
}

func TestTickStopsChargingAboveMaxSOC(t *testing.T) {
	h := newHarness(t)
	h.battery.set(96, 25)
	d := h.tick(t).Decision
	assert.Equal(t, 0.0, d.ACChargeDemandW)
	assert.Equal(t, 0.0, d.DCChargeDemandW)
	assert.True(t, d.DischargeAllowed)
	assert.Equal(t, model.ModeDischargeAllowed, d.Mode)
	assert.Contains(t, d.Clamps, safety.RuleSOCMax)
}

func TestClampBeatsOverride(t *testing.T) {
	h := newHarness(t)
	_, err := h.overrides.Set(model.ModeDischargeAllowed, 30*time.Minute, nil)
	require.NoError(t, err)
	h.battery.set(5, 25)
	d := h.tick(t).Decision
	assert.False(t, d.DischargeAllowed)
	assert.Equal(t, model.DecisionFromOverride, d.Source)
	assert.Contains(t, d.Clamps, safety.RuleSOCMin)
}

func TestOverrideBeatsPlan(t *testing.T) {
	h := newHarness(t)
	power := 1500.0
	_, err := h.overrides.Set(model.ModeChargeFromGrid, time.Hour, &power)
	require.NoError(t, err)
	res := h.tick(t)
	assert.Equal(t, model.DecisionFromOverride, res.Decision.Source)
	assert.Equal(t, 1500.0, res.Decision.ACChargeDemandW)
	assert.False(t, res.Decision.DischargeAllowed)
	assert.True(t, res.Status.OverrideActive)
	require.NotNil(t, res.Status.OverrideEnd)

	_, err = h.overrides.Set(model.ModeAvoidDischarge, time.Hour, nil)
	require.NoError(t, err)
	d := h.tick(t).Decision
	assert.Equal(t, model.ModeAvoidDischarge, d.Mode)
	assert.Equal(t, 0.0, d.ACChargeDemandW)
	assert.False(t, d.DischargeAllowed)
}

func TestChargeOverrideDefaultsToGridRate(t *testing.T) {
	h := newHarness(t)
	_, err := h.overrides.Set(model.ModeChargeFromGrid, time.Hour, nil)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, h.tick(t).Decision.ACChargeDemandW)
}

func TestExpiredOverrideFallsBackToPlan(t *testing.T) {
	h := newHarness(t)
	h.now = t1400
	_, err := h.overrides.Set(model.ModeChargeFromGrid, 60*time.Minute, nil)
	require.NoError(t, err)
	assert.Equal(t, model.DecisionFromOverride, h.tick(t).Decision.Source)

	h.now = t1400.Add(61 * time.Minute)
	d := h.tick(t).Decision
	assert.Equal(t, model.DecisionFromPlan, d.Source)
	// 15:01 is covered by the second slot.
	assert.Equal(t, model.ModeAvoidDischarge, d.Mode)
	assert.False(t, d.DischargeAllowed)
}

func TestTickIsIdempotent(t *testing.T) {
	h := newHarness(t)
	first := h.tick(t)
	second := h.tick(t)
	assert.True(t, first.Applied)
	assert.False(t, second.Applied)
	assert.True(t, first.Decision.Equal(second.Decision))
	assert.Equal(t, 1, h.sink.appliedCount())
	assert.Len(t, h.sink.statuses, 2)

	recs, err := h.store.Query(context.Background(), decisionlog.Query{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSensorUnavailableSkipsTick(t *testing.T) {
	h := newHarness(t)
	h.tick(t)
	h.battery.mu.Lock()
	h.battery.err = battery.ErrUnavailable
	h.battery.mu.Unlock()
	h.plans.set(nil, optimizer.Invalid, false)

	_, err := h.rec.Tick(context.Background(), h.now)
	assert.ErrorIs(t, err, ErrSensorUnavailable)
	assert.ErrorIs(t, err, battery.ErrUnavailable)
	assert.Equal(t, 1, h.sink.appliedCount())
	last, ok := h.rec.Last()
	require.True(t, ok)
	assert.Equal(t, model.DecisionFromPlan, last.Source)
}

func TestInvalidSOCSkipsTick(t *testing.T) {
	h := newHarness(t)
	h.battery.set(140, 25)
	_, err := h.rec.Tick(context.Background(), h.now)
	assert.ErrorIs(t, err, ErrSensorUnavailable)
	_, ok := h.rec.Last()
	assert.False(t, ok)
}

func TestApplyFailureRetriesNextTick(t *testing.T) {
	h := newHarness(t)
	h.sink.fail = errors.New("ha unreachable")
	_, err := h.rec.Tick(context.Background(), h.now)
	assert.ErrorIs(t, err, ErrApply)
	_, ok := h.rec.Last()
	assert.False(t, ok)

	h.sink.mu.Lock()
	h.sink.fail = nil
	h.sink.mu.Unlock()
	res := h.tick(t)
	assert.True(t, res.Applied)
	assert.Equal(t, 1, h.sink.appliedCount())
}

// Three failed fetch cycles leave a stale plan in force; beyond the
// staleness bound the fallback decision takes over.
func TestStalePlanThenFallback(t *testing.T) {
	h := newHarness(t)
	h.plans.set(planAt1400(), optimizer.Stale, false)
	h.plans.status.ConsecutiveFailures = 3
	h.plans.status.LastError = "optimizer fetch failed: timeout"
	res := h.tick(t)
	assert.Equal(t, model.DecisionFromPlan, res.Decision.Source)
	assert.Equal(t, 3000.0, res.Decision.ACChargeDemandW)
	assert.False(t, res.Status.OptimizationOK)
	assert.True(t, res.Status.PlanStale)
	assert.NotEmpty(t, res.Status.LastFetchError)

	h.plans.set(planAt1400(), optimizer.Invalid, false)
	res = h.tick(t)
	assert.True(t, res.Applied)
	assert.Equal(t, model.DecisionFromFallback, res.Decision.Source)
	assert.Equal(t, model.ModeAuto, res.Decision.Mode)
	assert.True(t, res.Decision.DischargeAllowed)
	assert.Equal(t, 0.0, res.Decision.ACChargeDemandW)
}

func TestNoCoveringSlotUsesFallback(t *testing.T) {
	h := newHarness(t)
	h.now = t1400.Add(3 * time.Hour)
	assert.Equal(t, model.DecisionFromFallback, h.tick(t).Decision.Source)
}

func TestSetSOCLimits(t *testing.T) {
	h := newHarness(t)
	h.tick(t)
	assert.Error(t, h.rec.SetSOCLimits(50, 40))
	assert.Error(t, h.rec.SetSOCLimits(-1, 90))
	require.NoError(t, h.rec.SetSOCLimits(60, 90))
	assert.Equal(t, model.SOCLimits{Min: 60, Max: 90}, h.rec.SOCLimits())

	res := h.tick(t)
	assert.True(t, res.Applied)
	assert.False(t, res.Decision.DischargeAllowed)
	assert.Equal(t, 60.0, res.Decision.MinSOC)
}

func TestDecisionEventsOnBus(t *testing.T) {
	h := newHarness(t)
	sub := h.bus.Subscribe()
	h.tick(t)
	var gotDecision, gotTick bool
	for i := 0; i < 2; i++ {
		switch ev := (<-sub).(type) {
		case events.DecisionEvent:
			gotDecision = true
			assert.Equal(t, "Charge from Grid", ev.Status.ModeName)
			assert.Equal(t, 0, ev.Status.ModeValue)
		case events.TickEvent:
			gotTick = true
			assert.Equal(t, ResultApplied, ev.Result)
		}
	}
	assert.True(t, gotDecision && gotTick)
}

func TestRunTicksUntilCancelled(t *testing.T) {
	h := newHarness(t)
	statuses := eventbus.NewTyped[model.Status]()
	h.rec.d.StatusBus = statuses
	sub := statuses.Subscribe()
	h.rec.SetClock(func() time.Time { return h.now })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.rec.Run(ctx)
		close(done)
	}()
	select {
	case st := <-sub:
		assert.Equal(t, model.DecisionFromPlan, st.Source)
	case <-time.After(time.Second):
		t.Fatal("no status published")
	}
	cancel()
	<-done
	assert.Equal(t, 1, h.sink.appliedCount())
}

func TestTriggerTicksImmediately(t *testing.T) {
	h := newHarness(t)
	h.rec.SetClock(func() time.Time { return h.now })
	sub := h.bus.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.rec.Run(ctx)

	waitTick := func() {
		t.Helper()
		deadline := time.After(time.Second)
		for {
			select {
			case ev := <-sub:
				if _, ok := ev.(events.TickEvent); ok {
					return
				}
			case <-deadline:
				t.Fatal("no tick")
			}
		}
	}
	waitTick()
	_, err := h.overrides.Set(model.ModeAvoidDischarge, time.Hour, nil)
	require.NoError(t, err)
	h.rec.Trigger()
	h.rec.Trigger()
	waitTick()
	last, ok := h.rec.Last()
	require.True(t, ok)
	assert.Equal(t, model.DecisionFromOverride, last.Source)
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	good := &recordingSink{}
	bad := &recordingSink{fail: errors.New("down")}
	m := NewMultiSink(bad, good)
	err := m.Apply(context.Background(), Fallback())
	assert.Error(t, err)
	assert.Equal(t, 1, good.appliedCount())
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	require.NoError(t, c.Validate())
	assert.Equal(t, 30*time.Second, c.Tick())
	assert.Equal(t, time.Hour, c.ManualModeDuration())
	c.SOCLimits = model.SOCLimits{Min: 90, Max: 20}
	assert.Error(t, c.Validate())
}

type tickKey struct{}

// ctxStore records the context each append ran under.
type ctxStore struct {
	decisionlog.NopStore
	mu   sync.Mutex
	ctxs []context.Context
}

func (s *ctxStore) Append(ctx context.Context, _ decisionlog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxs = append(s.ctxs, ctx)
	return nil
}

func TestAppliedDecisionLoggedWithTickContext(t *testing.T) {
	h := newHarness(t)
	store := &ctxStore{}
	h.rec.d.Store = store

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), tickKey{}, "tick-1"))
	defer cancel()
	res, err := h.rec.Tick(ctx, h.now)
	require.NoError(t, err)
	require.True(t, res.Applied)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.ctxs, 1)
	assert.Equal(t, "tick-1", store.ctxs[0].Value(tickKey{}))
	cancel()
	assert.ErrorIs(t, store.ctxs[0].Err(), context.Canceled)
}
