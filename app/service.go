// Package app wires the configured collaborators into a running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	apicontrol "github.com/kilianp07/eosbridge/api/control"
	"github.com/kilianp07/eosbridge/config"
	"github.com/kilianp07/eosbridge/core/battery"
	"github.com/kilianp07/eosbridge/core/control"
	"github.com/kilianp07/eosbridge/core/decisionlog"
	"github.com/kilianp07/eosbridge/core/forecast"
	coremetrics "github.com/kilianp07/eosbridge/core/metrics"
	"github.com/kilianp07/eosbridge/core/model"
	"github.com/kilianp07/eosbridge/core/optimizer"
	"github.com/kilianp07/eosbridge/core/override"
	"github.com/kilianp07/eosbridge/core/safety"
	"github.com/kilianp07/eosbridge/infra/auth"
	"github.com/kilianp07/eosbridge/infra/eos"
	"github.com/kilianp07/eosbridge/infra/evcc"
	"github.com/kilianp07/eosbridge/infra/homeassistant"
	"github.com/kilianp07/eosbridge/infra/logger"
	"github.com/kilianp07/eosbridge/infra/metrics"
	"github.com/kilianp07/eosbridge/infra/mqtt"
	"github.com/kilianp07/eosbridge/internal/eventbus"
)

// Service orchestrates the plan fetcher, the reconciler and their surfaces.
type Service struct {
	cfg        *config.Config
	Fetcher    *optimizer.Fetcher
	Reconciler *control.Reconciler
	Overrides  *override.Manager
	API        *apicontrol.Server

	bus       *eventbus.Bus
	statusBus *eventbus.TypedBus[model.Status]
	store     decisionlog.Store
	sink      coremetrics.MetricsSink
	mqtt      *mqtt.PahoClient
	closeLog  func() error
	log       logger.Logger
}

// New builds the service described by cfg. Nothing runs until Run.
func New(cfg *config.Config) (*Service, error) {
	closeLog, err := logger.Configure(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	s := &Service{
		cfg:       cfg,
		bus:       eventbus.New(),
		statusBus: eventbus.NewTyped[model.Status](),
		closeLog:  closeLog,
		log:       logger.New("service"),
	}
	if err := s.build(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) build() error {
	cfg := s.cfg
	limits, err := control.NewLimits(cfg.Control.SOCLimits)
	if err != nil {
		return fmt.Errorf("soc limits: %w", err)
	}

	var ha *homeassistant.Client
	if cfg.HomeAssistant.Enabled() {
		ha = homeassistant.NewClient(cfg.HomeAssistant, nil, logger.New("homeassistant"))
	}
	if cfg.MQTT.Enabled() {
		if s.mqtt, err = mqtt.NewPahoClient(cfg.MQTT); err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
	}

	reader, err := s.batteryReader(ha, limits.Get)
	if err != nil {
		return fmt.Errorf("battery reader: %w", err)
	}

	assembler, err := s.assembler(ha)
	if err != nil {
		return fmt.Errorf("inputs: %w", err)
	}
	var httpClient *http.Client
	if cfg.OptimizerAuth.Enabled() {
		httpClient = auth.NewClientCred(cfg.OptimizerAuth).HTTPClient(cfg.Optimizer.Timeout())
	}
	client := eos.NewClient(cfg.Optimizer, httpClient, logger.New("optimizer_client"))
	s.Fetcher, err = optimizer.NewFetcher(cfg.Optimizer, client, assembler, reader, cfg.Battery.Params(), limits.Get, s.bus, logger.New("fetcher"))
	if err != nil {
		return fmt.Errorf("fetcher: %w", err)
	}

	clamper, err := safety.New(cfg.Safety)
	if err != nil {
		return fmt.Errorf("safety: %w", err)
	}
	s.Overrides = override.NewManager(nil)
	if s.store, err = decisionlog.Open(cfg.DecisionLog); err != nil {
		return fmt.Errorf("decision log: %w", err)
	}
	sink, err := s.controlSink(ha)
	if err != nil {
		return err
	}

	s.Reconciler, err = control.NewReconciler(cfg.Control, control.Deps{
		Battery:         reader,
		Plans:           s.Fetcher,
		Overrides:       s.Overrides,
		Clamper:         clamper,
		Limits:          limits,
		Sink:            sink,
		Store:           s.store,
		Bus:             s.bus,
		StatusBus:       s.statusBus,
		Log:             logger.New("reconciler"),
		GridChargeRateW: cfg.Battery.MaxGridChargeRateW,
		PVChargeRateW:   cfg.Battery.MaxPVChargeRateW,
	})
	if err != nil {
		return fmt.Errorf("reconciler: %w", err)
	}

	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return fmt.Errorf("metrics sink: %w", err)
	}

	if cfg.API.Enabled() {
		s.API, err = apicontrol.NewServer(cfg.API, apicontrol.Deps{
			Controller:         s.Reconciler,
			Overrides:          s.Overrides,
			Plans:              s.Fetcher,
			Store:              s.store,
			Bus:                s.bus,
			StatusBus:          s.statusBus,
			ManualModeDuration: cfg.Control.ManualModeDuration(),
			Log:                logger.New("api"),
		})
		if err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}
	return nil
}

func (s *Service) batteryReader(ha *homeassistant.Client, limits func() model.SOCLimits) (battery.Reader, error) {
	switch s.cfg.Battery.Reader {
	case config.ReaderMQTT:
		return mqtt.NewTelemetryReader(s.mqtt, s.cfg.Battery.CapacityWh, limits)
	default:
		return homeassistant.NewBatteryReader(ha, s.cfg.HomeAssistant.Battery, s.cfg.Battery.CapacityWh, limits)
	}
}

func (s *Service) assembler(ha *homeassistant.Client) (*forecast.Assembler, error) {
	in := s.cfg.Inputs
	pv, err := provider(ha, in.PV, func(c *homeassistant.Client, src config.SourceConfig) forecast.Provider {
		return homeassistant.NewPVProvider(c, src.Entity, src.Scale)
	})
	if err != nil {
		return nil, fmt.Errorf("pv: %w", err)
	}
	price, err := provider(ha, in.Price, func(c *homeassistant.Client, src config.SourceConfig) forecast.Provider {
		return homeassistant.NewPriceProvider(c, src.Entity, src.Scale)
	})
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	var load forecast.Provider
	if in.Load.Type != "" {
		if load, err = provider(ha, in.Load, func(c *homeassistant.Client, src config.SourceConfig) forecast.Provider {
			return homeassistant.NewLoadProvider(c, src.Entity)
		}); err != nil {
			return nil, fmt.Errorf("load: %w", err)
		}
	}
	return forecast.NewAssembler(in.Forecast, pv, price, load, logger.New("forecast"))
}

func provider(ha *homeassistant.Client, src config.SourceConfig, fromHA func(*homeassistant.Client, config.SourceConfig) forecast.Provider) (forecast.Provider, error) {
	switch src.Type {
	case config.SourceHomeAssistant:
		if ha == nil {
			return nil, errors.New("homeassistant is not configured")
		}
		return fromHA(ha, src), nil
	case config.SourceFile:
		return forecast.FileProvider{Path: src.Path}, nil
	case config.SourceFixed:
		return forecast.FixedProvider{Value: src.Value * src.Scale}, nil
	default:
		return nil, fmt.Errorf("unknown source type %q", src.Type)
	}
}

func (s *Service) controlSink(ha *homeassistant.Client) (control.Sink, error) {
	var sinks []control.Sink
	if ha != nil {
		sinks = append(sinks, homeassistant.NewSink(ha, s.cfg.HomeAssistant, s.cfg.Safety.MaxDischargePowerW, logger.New("homeassistant_sink")))
	}
	if s.mqtt != nil {
		sinks = append(sinks, mqtt.NewSink(s.mqtt))
	}
	if s.cfg.EVCC.Enabled() {
		sink, err := evcc.NewSink(s.cfg.EVCC, nil, logger.New("evcc"))
		if err != nil {
			return nil, fmt.Errorf("evcc: %w", err)
		}
		sinks = append(sinks, sink)
	}
	switch len(sinks) {
	case 0:
		s.log.Warnf("no control sink configured, decisions are only logged")
		return control.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return control.NewMultiSink(sinks...), nil
	}
}

// Run starts every loop and blocks until ctx is cancelled or a server fails.
// All loops have stopped when Run returns.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				s.log.Errorf("%s: %v", name, err)
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	metrics.StartEventCollector(ctx, s.bus, s.sink, logger.New("metrics"))
	run("fetcher", func(ctx context.Context) error {
		s.Fetcher.Run(ctx)
		return nil
	})
	run("reconciler", func(ctx context.Context) error {
		s.Reconciler.Run(ctx)
		return nil
	})
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		run("prometheus", func(ctx context.Context) error {
			return metrics.StartPromServer(ctx, addr, nil, logger.New("prometheus"))
		})
	}
	if s.API != nil {
		run("api", s.API.ListenAndServe)
	}
	s.log.Infof("eosbridge started: optimizer=%s interval=%s tick=%s",
		s.cfg.Optimizer.Source, s.cfg.Optimizer.Interval(), s.cfg.Control.Tick())

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	cancel()
	wg.Wait()
	return err
}

// Close releases the resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	s.bus.Close()
	s.statusBus.Close()
	if s.closeLog != nil {
		errs = append(errs, s.closeLog())
	}
	return errors.Join(errs...)
}
