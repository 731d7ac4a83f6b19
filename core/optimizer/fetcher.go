// Package optimizer fetches dispatch plans from an external optimizer and
// keeps the last known good plan.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kilianp07/eosbridge/core/battery"
	"github.com/kilianp07/eosbridge/core/events"
	"github.com/kilianp07/eosbridge/core/forecast"
	"github.com/kilianp07/eosbridge/core/logger"
	"github.com/kilianp07/eosbridge/core/model"
	"github.com/kilianp07/eosbridge/internal/eventbus"
)

// Client calls an optimizer backend.
type Client interface {
	Optimize(ctx context.Context, req Request) (Response, error)
}

// Inputs assembles the optimizer inputs for a cycle.
type Inputs interface {
	Assemble(ctx context.Context, now time.Time) (forecast.Bundle, error)
}

// Freshness classifies the plan in force.
type Freshness int

const (
	Fresh Freshness = iota
	// Stale plans are still executed but flagged.
	Stale
	// Invalid means no plan or one older than the staleness bound.
	Invalid
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "invalid"
	}
}

// Status summarizes the fetch history.
type Status struct {
	OK                  bool      `json:"ok"`
	LastAttempt         time.Time `json:"last_attempt"`
	LastSuccess         time.Time `json:"last_success"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

var newBackOff = func(c RetryConfig) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(c.InitialSeconds) * time.Second
	b.MaxInterval = time.Duration(c.MaxSeconds) * time.Second
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(c.MaxRetries))
}

// Fetcher runs optimizer cycles and publishes the resulting plan.
type Fetcher struct {
	cfg     Config
	source  model.PlanSource
	client  Client
	inputs  Inputs
	battery battery.Reader
	params  BatteryParams
	limits  func() model.SOCLimits
	bus     eventbus.EventBus
	log     logger.Logger
	now     func() time.Time

	plan    atomic.Pointer[model.Plan]
	mu      sync.RWMutex
	status  Status
	cycle   sync.Mutex
	refresh chan struct{}
}

// NewFetcher validates cfg and returns a Fetcher. bus may be nil.
func NewFetcher(cfg Config, client Client, inputs Inputs, reader battery.Reader, params BatteryParams, limits func() model.SOCLimits, bus eventbus.EventBus, log logger.Logger) (*Fetcher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil || inputs == nil || reader == nil || limits == nil || log == nil {
		return nil, fmt.Errorf("fetcher dependencies must not be nil")
	}
	if params.MaxGridChargeRateW <= 0 {
		params.MaxGridChargeRateW = params.MaxChargePowerW
	}
	if params.MaxPVChargeRateW <= 0 {
		params.MaxPVChargeRateW = params.MaxChargePowerW
	}
	return &Fetcher{
		cfg:     cfg,
		source:  model.PlanSource(cfg.Source),
		client:  client,
		inputs:  inputs,
		battery: reader,
		params:  params,
		limits:  limits,
		bus:     bus,
		log:     log,
		now:     time.Now,
		refresh: make(chan struct{}, 1),
	}, nil
}

// SetClock replaces the time source.
func (f *Fetcher) SetClock(now func() time.Time) { f.now = now }

// Run fetches immediately and then on every interval or refresh request until
// ctx is cancelled.
func (f *Fetcher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.Interval())
	defer ticker.Stop()
	f.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.runCycle(ctx)
		case <-f.refresh:
			f.log.Infof("manual plan refresh")
			f.runCycle(ctx)
		}
	}
}

func (f *Fetcher) runCycle(ctx context.Context) {
	if err := f.Fetch(ctx); err != nil && ctx.Err() == nil {
		f.log.Errorf("plan fetch: %v", err)
	}
}

// Refresh requests an out-of-cadence fetch. Requests made while one is
// pending are coalesced.
func (f *Fetcher) Refresh() {
	select {
	case f.refresh <- struct{}{}:
	default:
	}
}

// Fetch runs one cycle. On failure the previous plan is retained.
func (f *Fetcher) Fetch(ctx context.Context) error {
	f.cycle.Lock()
	defer f.cycle.Unlock()
	started := time.Now()
	attemptAt := f.now()
	attempts := 0
	plan, err := f.fetch(ctx, &attempts)
	f.record(plan, err, attempts, attemptAt, time.Since(started))
	return err
}

func (f *Fetcher) fetch(ctx context.Context, attempts *int) (*model.Plan, error) {
	now := f.now()
	bundle, err := f.inputs.Assemble(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncompleteInputs, err)
	}
	state, err := f.battery.ReadBattery(ctx)
	if err == nil {
		err = state.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: battery: %w", ErrIncompleteInputs, err)
	}
	req := BuildRequest(bundle, f.params, state.SOCPercent, f.limits(), now)

	var plan *model.Plan
	op := func() error {
		*attempts++
		actx, cancel := context.WithTimeout(ctx, f.cfg.Timeout())
		defer cancel()
		resp, err := f.client.Optimize(actx, req)
		if err != nil {
			var se *StatusError
			if errors.Is(err, ErrMalformedResponse) || (errors.As(err, &se) && !se.Retryable()) {
				return backoff.Permanent(err)
			}
			return err
		}
		p, err := resp.ToPlan(req, f.params, f.source, f.now())
		if err != nil {
			return backoff.Permanent(err)
		}
		plan = p
		return nil
	}
	notify := func(err error, wait time.Duration) {
		f.log.Warnf("optimizer attempt %d failed, retrying in %s: %v", *attempts, wait, err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(newBackOff(f.cfg.Retry), ctx), notify); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return plan, nil
}

func (f *Fetcher) record(plan *model.Plan, err error, attempts int, at time.Time, dur time.Duration) {
	f.mu.Lock()
	f.status.LastAttempt = at
	if err == nil {
		f.plan.Store(plan)
		f.status.OK = true
		f.status.LastSuccess = plan.FetchedAt
		f.status.LastError = ""
		f.status.ConsecutiveFailures = 0
	} else {
		f.status.OK = false
		f.status.LastError = err.Error()
		f.status.ConsecutiveFailures++
	}
	st := f.status
	f.mu.Unlock()

	result := "success"
	if err != nil {
		result = "failure"
		if errors.Is(err, ErrIncompleteInputs) {
			result = "incomplete_inputs"
		}
	}
	var age time.Duration
	if p := f.plan.Load(); p != nil {
		age = p.Age(f.now())
	}
	fetchTotal.WithLabelValues(string(f.source), result).Inc()
	fetchDuration.Observe(dur.Seconds())
	planAge.Set(age.Seconds())
	consecutiveFailures.Set(float64(st.ConsecutiveFailures))

	if err == nil {
		f.log.Infof("plan fetched from %s: %d slots starting %s", f.source, len(plan.Slots), plan.Start.Format(time.RFC3339))
	} else if st.ConsecutiveFailures > 0 && f.plan.Load() != nil {
		f.log.Warnf("keeping plan from %s (age %s) after %d failed cycles", f.plan.Load().FetchedAt.Format(time.RFC3339), age.Round(time.Second), st.ConsecutiveFailures)
	}
	if f.bus != nil {
		ev := events.FetchEvent{
			Source:              f.source,
			Success:             err == nil,
			Err:                 err,
			Attempts:            attempts,
			Duration:            dur,
			ConsecutiveFailures: st.ConsecutiveFailures,
			PlanAge:             age,
			Time:                at,
		}
		if plan != nil {
			ev.Slots = len(plan.Slots)
		}
		f.bus.Publish(ev)
	}
}

// Current returns the plan in force and its freshness at now.
func (f *Fetcher) Current(now time.Time) (*model.Plan, Freshness) {
	p := f.plan.Load()
	if p == nil {
		return nil, Invalid
	}
	age := p.Age(now)
	if age > f.cfg.MaxStaleness() {
		return p, Invalid
	}
	if !f.Status().OK || age > 2*f.cfg.Interval() {
		return p, Stale
	}
	return p, Fresh
}

// Plan returns the last known good plan or nil.
func (f *Fetcher) Plan() *model.Plan { return f.plan.Load() }

// Status returns a snapshot of the fetch history.
func (f *Fetcher) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}
