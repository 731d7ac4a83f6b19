// Package control runs the reconciliation loop that turns the plan in force,
// the manual override and the live battery state into control decisions.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/eosbridge/core/battery"
	"github.com/kilianp07/eosbridge/core/decisionlog"
	"github.com/kilianp07/eosbridge/core/events"
	"github.com/kilianp07/eosbridge/core/logger"
	"github.com/kilianp07/eosbridge/core/model"
	"github.com/kilianp07/eosbridge/core/optimizer"
	"github.com/kilianp07/eosbridge/core/safety"
	"github.com/kilianp07/eosbridge/internal/eventbus"
)

var (
	// ErrSensorUnavailable is returned when the battery state cannot be
	// read. The tick is skipped and the last decision stays in force.
	ErrSensorUnavailable = errors.New("battery sensor unavailable")
	// ErrApply wraps sink failures. The decision is retried next tick.
	ErrApply = errors.New("apply decision")
)

// Tick results reported in TickEvent and metrics.
const (
	ResultApplied   = "applied"
	ResultUnchanged = "unchanged"
	ResultSkipped   = "skipped"
	ResultError     = "error"
)

// PlanSource provides the plan in force.
type PlanSource interface {
	Current(now time.Time) (*model.Plan, optimizer.Freshness)
	Status() optimizer.Status
}

// OverrideSource provides the active override.
type OverrideSource interface {
	Current(now time.Time) (model.Override, bool)
}

// Deps groups the collaborators of a Reconciler. Store, Bus and StatusBus
// are optional.
type Deps struct {
	Battery   battery.Reader
	Plans     PlanSource
	Overrides OverrideSource
	Clamper   *safety.Clamper
	Limits    *Limits
	Sink      Sink
	Store     decisionlog.Store
	Bus       eventbus.EventBus
	StatusBus *eventbus.TypedBus[model.Status]
	Log       logger.Logger
	// GridChargeRateW is the AC charge demand of a CHARGE_FROM_GRID override
	// without explicit power.
	GridChargeRateW float64
	// PVChargeRateW is the DC charge demand of overrides.
	PVChargeRateW float64
}

// TickResult is the outcome of one tick.
type TickResult struct {
	Decision model.ControlDecision
	Status   model.Status
	// Applied is true when the decision changed and was sent to the sinks.
	Applied bool
}

// Reconciler is the single writer of control state.
type Reconciler struct {
	cfg  Config
	d    Deps
	now  func() time.Time
	wake chan struct{}

	mu     sync.Mutex
	last   *model.ControlDecision
	status *model.Status
}

// NewReconciler validates cfg and the mandatory dependencies.
func NewReconciler(cfg Config, d Deps) (*Reconciler, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d.Battery == nil || d.Plans == nil || d.Overrides == nil || d.Clamper == nil || d.Log == nil {
		return nil, fmt.Errorf("reconciler dependencies must not be nil")
	}
	if d.Limits == nil {
		l, err := NewLimits(cfg.SOCLimits)
		if err != nil {
			return nil, err
		}
		d.Limits = l
	}
	if d.Sink == nil {
		d.Sink = NopSink{}
	}
	if d.Store == nil {
		d.Store = decisionlog.NopStore{}
	}
	if d.GridChargeRateW <= 0 {
		d.GridChargeRateW = d.Clamper.Config().MaxChargePowerW
	}
	if d.PVChargeRateW <= 0 {
		d.PVChargeRateW = d.Clamper.Config().MaxChargePowerW
	}
	return &Reconciler{cfg: cfg, d: d, now: time.Now, wake: make(chan struct{}, 1)}, nil
}

// SetClock replaces the time source used by Run.
func (r *Reconciler) SetClock(now func() time.Time) { r.now = now }

// Run ticks immediately, then every tick interval and on Trigger until ctx is
// cancelled. Tick errors are logged and never stop the loop.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Tick())
	defer ticker.Stop()
	r.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runTick(ctx)
		case <-r.wake:
			r.runTick(ctx)
		}
	}
}

// Trigger requests an immediate tick, e.g. after an override change. Pending
// requests are coalesced.
func (r *Reconciler) Trigger() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Reconciler) runTick(ctx context.Context) {
	_, err := r.Tick(ctx, r.now())
	switch {
	case err == nil || ctx.Err() != nil:
	case errors.Is(err, ErrSensorUnavailable):
		r.d.Log.Warnf("tick skipped: %v", err)
	default:
		r.d.Log.Errorf("tick: %v", err)
	}
}

// Tick runs one reconciliation at now. Only one tick runs at a time.
func (r *Reconciler) Tick(ctx context.Context, now time.Time) (TickResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.d.Battery.ReadBattery(ctx)
	if err == nil {
		err = state.Validate()
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSensorUnavailable, err)
		r.finishTick(ResultSkipped, err, now)
		return TickResult{}, err
	}

	limits := r.d.Limits.Get()
	ov, overrideActive := r.d.Overrides.Current(now)
	plan, freshness := r.d.Plans.Current(now)

	var candidate model.ControlDecision
	if overrideActive {
		candidate = r.fromOverride(ov)
	} else {
		candidate = r.fromPlan(plan, freshness, now)
	}
	candidate.MinSOC = limits.Min
	candidate.MaxSOC = limits.Max
	decision := r.d.Clamper.Clamp(candidate, state)

	st := r.buildStatus(decision, state, plan, freshness, ov, overrideActive, now)
	res := TickResult{Decision: decision, Status: st}

	result := ResultUnchanged
	var tickErr error
	if r.last == nil || !r.last.Equal(decision) {
		if err := r.d.Sink.Apply(ctx, decision); err != nil {
			result = ResultError
			tickErr = fmt.Errorf("%w: %w", ErrApply, err)
		} else {
			result = ResultApplied
			res.Applied = true
			r.last = &decision
			r.applied(ctx, decision, st)
		}
	}

	if r.last != nil {
		r.observe(*r.last)
	}
	r.status = &st
	if err := r.d.Sink.PublishStatus(ctx, st); err != nil {
		r.d.Log.Warnf("publish status: %v", err)
	}
	if r.d.StatusBus != nil {
		r.d.StatusBus.Publish(st)
	}
	r.finishTick(result, tickErr, now)
	return res, tickErr
}

func (r *Reconciler) fromOverride(ov model.Override) model.ControlDecision {
	d := model.ControlDecision{
		Mode:            ov.Mode,
		DCChargeDemandW: r.d.PVChargeRateW,
		Source:          model.DecisionFromOverride,
	}
	switch ov.Mode {
	case model.ModeChargeFromGrid:
		d.ACChargeDemandW = r.d.GridChargeRateW
		if ov.ChargePowerW != nil {
			d.ACChargeDemandW = *ov.ChargePowerW
		}
	case model.ModeDischargeAllowed:
		d.DischargeAllowed = true
	}
	return d
}

func (r *Reconciler) fromPlan(plan *model.Plan, freshness optimizer.Freshness, now time.Time) model.ControlDecision {
	if freshness != optimizer.Invalid {
		if slot, ok := plan.SlotAt(now); ok {
			return model.ControlDecision{
				Mode:             slot.Mode(),
				ACChargeDemandW:  slot.ACChargeW,
				DCChargeDemandW:  slot.DCChargeW,
				DischargeAllowed: slot.DischargeAllowed,
				Source:           model.DecisionFromPlan,
			}
		}
	}
	return Fallback()
}

// Fallback is the conservative decision used without a usable plan: the
// inverter runs on its own, nothing is forced and discharging is allowed.
func Fallback() model.ControlDecision {
	return model.ControlDecision{
		Mode:             model.ModeAuto,
		DischargeAllowed: true,
		Source:           model.DecisionFromFallback,
	}
}

func (r *Reconciler) buildStatus(d model.ControlDecision, state model.BatteryState, plan *model.Plan, freshness optimizer.Freshness, ov model.Override, overrideActive bool, now time.Time) model.Status {
	st := model.NewStatus(d, now)
	soc := state.SOCPercent
	st.SOCPercent = &soc
	st.OptimizationOK = freshness == optimizer.Fresh
	st.PlanStale = freshness != optimizer.Fresh
	if plan != nil {
		st.PlanAgeSeconds = plan.Age(now).Seconds()
	}
	st.LastFetchError = r.d.Plans.Status().LastError
	if overrideActive {
		end := ov.End()
		st.OverrideActive = true
		st.OverrideEnd = &end
	}
	return st
}

func (r *Reconciler) applied(ctx context.Context, d model.ControlDecision, st model.Status) {
	decisionsTotal.WithLabelValues(string(d.Source)).Inc()
	r.d.Log.Infof("applied %s decision: mode=%s ac=%.0fW dc=%.0fW discharge=%t clamps=%v",
		d.Source, d.Mode, d.ACChargeDemandW, d.DCChargeDemandW, d.DischargeAllowed, d.Clamps)
	if err := r.d.Store.Append(ctx, decisionlog.NewRecord(st)); err != nil {
		r.d.Log.Warnf("decision log append: %v", err)
	}
	if r.d.Bus != nil {
		r.d.Bus.Publish(events.DecisionEvent{Decision: d, Status: st})
	}
}

func (r *Reconciler) observe(d model.ControlDecision) {
	acChargeDemand.Set(d.ACChargeDemandW)
	modeValue.Set(float64(d.Mode.Value()))
	if d.DischargeAllowed {
		dischargeAllowed.Set(1)
	} else {
		dischargeAllowed.Set(0)
	}
}

func (r *Reconciler) finishTick(result string, err error, now time.Time) {
	tickTotal.WithLabelValues(result).Inc()
	if r.d.Bus != nil {
		r.d.Bus.Publish(events.TickEvent{Result: result, Err: err, Time: now})
	}
}

// SetSOCLimits changes the operating limits. The next tick re-applies the
// decision with the new limits.
func (r *Reconciler) SetSOCLimits(min, max float64) error {
	if err := r.d.Limits.Set(min, max); err != nil {
		return err
	}
	r.d.Log.Infof("soc limits set to %.1f..%.1f", min, max)
	return nil
}

// SOCLimits returns the current operating limits.
func (r *Reconciler) SOCLimits() model.SOCLimits { return r.d.Limits.Get() }

// Last returns the decision in force, if any.
func (r *Reconciler) Last() (model.ControlDecision, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return model.ControlDecision{}, false
	}
	return *r.last, true
}

// Status returns the status of the last completed tick, if any.
func (r *Reconciler) Status() (model.Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == nil {
		return model.Status{}, false
	}
	return *r.status, true
}
