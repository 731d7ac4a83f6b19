// Package evcc mirrors control decisions into the battery mode of an evcc
// instance so that its charge planner does not fight the inverter.
package evcc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kilianp07/eosbridge/core/logger"
	"github.com/kilianp07/eosbridge/core/model"
)

// Battery modes understood by evcc.
const (
	BatteryNormal = "normal"
	BatteryHold   = "hold"
	BatteryCharge = "charge"
)

// Config defines the evcc endpoint.
type Config struct {
	URL string `json:"url"`
	// ModePath is a format string receiving the battery mode.
	ModePath       string `json:"mode_path"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Enabled reports whether evcc is configured.
func (c Config) Enabled() bool { return c.URL != "" }

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ModePath == "" {
		c.ModePath = "/api/batterymode/%s"
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 5
	}
}

// Validate checks the mode path template.
func (c Config) Validate() error {
	if c.Enabled() && strings.Count(c.ModePath, "%s") != 1 {
		return fmt.Errorf("mode_path must contain exactly one %%s")
	}
	return nil
}

// BatteryMode maps an inverter mode to the evcc battery mode.
func BatteryMode(m model.Mode) string {
	switch m {
	case model.ModeChargeFromGrid:
		return BatteryCharge
	case model.ModeAvoidDischarge:
		return BatteryHold
	default:
		return BatteryNormal
	}
}

// Sink sets the evcc battery mode. Status records are not forwarded.
type Sink struct {
	cfg  Config
	http *http.Client
	log  logger.Logger

	mu   sync.Mutex
	last string
}

// NewSink returns a sink for cfg. A nil httpClient gets one with the
// configured timeout.
func NewSink(cfg Config, httpClient *http.Client, log logger.Logger) (*Sink, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}
	return &Sink{cfg: cfg, http: httpClient, log: log}, nil
}

// Apply implements control.Sink. The request is only sent when the evcc mode
// changes.
func (s *Sink) Apply(ctx context.Context, d model.ControlDecision) error {
	mode := BatteryMode(d.Mode)
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == s.last {
		return nil
	}
	url := strings.TrimSuffix(s.cfg.URL, "/") + fmt.Sprintf(s.cfg.ModePath, mode)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("evcc battery mode %s: %w", mode, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("evcc battery mode %s: status %d: %s", mode, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	s.last = mode
	s.log.Debugf("evcc battery mode set to %s", mode)
	return nil
}

// PublishStatus implements control.Sink.
func (s *Sink) PublishStatus(context.Context, model.Status) error { return nil }
