package homeassistant

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/kilianp07/eosbridge/core/logger"
	"github.com/kilianp07/eosbridge/core/model"
)

var powerPlaceholder = regexp.MustCompile(`\{\{\s*power\s*\}\}`)

// Sink writes control decisions to Home Assistant entities and fires the
// status event.
type Sink struct {
	client    *Client
	control   ControlEntities
	sequences map[string][]ServiceCall
	eventType string
	// maxDischargeW is written to the discharge limit entity when
	// discharging is allowed.
	maxDischargeW float64
	log           logger.Logger
}

// NewSink returns a sink for cfg.
func NewSink(c *Client, cfg Config, maxDischargeW float64, log logger.Logger) *Sink {
	cfg.SetDefaults()
	return &Sink{
		client:        c,
		control:       cfg.Control,
		sequences:     cfg.Sequences,
		eventType:     cfg.EventType,
		maxDischargeW: maxDischargeW,
		log:           log,
	}
}

// Apply implements control.Sink. Every configured control point is written
// even when an earlier one fails.
func (s *Sink) Apply(ctx context.Context, d model.ControlDecision) error {
	var errs []error
	call := func(domain, service, entity string, data map[string]any) {
		if entity == "" {
			return
		}
		if data == nil {
			data = map[string]any{}
		}
		data["entity_id"] = entity
		if err := s.client.CallService(ctx, domain, service, data); err != nil {
			errs = append(errs, fmt.Errorf("%s.%s %s: %w", domain, service, entity, err))
		}
	}

	call("select", "select_option", s.control.ModeSelect, map[string]any{"option": d.Mode.DisplayName()})
	call("number", "set_value", s.control.ACChargePower, map[string]any{"value": math.Round(d.ACChargeDemandW)})
	call("number", "set_value", s.control.DCChargePower, map[string]any{"value": math.Round(d.DCChargeDemandW)})
	limit := 0.0
	if d.DischargeAllowed {
		limit = s.maxDischargeW
		if d.DischargeLimitW > 0 {
			limit = d.DischargeLimitW
		}
	}
	call("number", "set_value", s.control.DischargeLimit, map[string]any{"value": math.Round(limit)})
	if d.DischargeAllowed {
		call("switch", "turn_on", s.control.DischargeSwitch, nil)
	} else {
		call("switch", "turn_off", s.control.DischargeSwitch, nil)
	}
	call("number", "set_value", s.control.MinSOC, map[string]any{"value": d.MinSOC})
	call("number", "set_value", s.control.MaxSOC, map[string]any{"value": d.MaxSOC})

	for _, step := range s.sequences[d.Mode.String()] {
		domain, service, err := step.Split()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		data := RenderData(step.Data, d.ACChargeDemandW)
		if step.EntityID != "" {
			data["entity_id"] = step.EntityID
		}
		if err := s.client.CallService(ctx, domain, service, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.Service, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.log.Debugf("decision written to home assistant: %s", d.Mode)
	return nil
}

// PublishStatus fires the status event.
func (s *Sink) PublishStatus(ctx context.Context, st model.Status) error {
	return s.client.FireEvent(ctx, s.eventType, st)
}

// RenderData copies data and substitutes the {{ power }} placeholder. A value
// consisting only of the placeholder becomes the number itself.
func RenderData(data map[string]any, powerW float64) map[string]any {
	out := make(map[string]any, len(data)+1)
	power := math.Round(math.Max(powerW, 0))
	for k, v := range data {
		out[k] = render(v, power)
	}
	return out
}

func render(v any, power float64) any {
	switch t := v.(type) {
	case string:
		if powerPlaceholder.MatchString(t) && strings.TrimSpace(powerPlaceholder.ReplaceAllString(t, "")) == "" {
			return power
		}
		return powerPlaceholder.ReplaceAllString(t, fmt.Sprintf("%.0f", power))
	case map[string]any:
		return RenderData(t, power)
	case []any:
		res := make([]any, len(t))
		for i, e := range t {
			res[i] = render(e, power)
		}
		return res
	default:
		return v
	}
}
