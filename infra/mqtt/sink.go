package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/eosbridge/core/model"
)

// Command is the JSON document published on <prefix>/control/command.
type Command struct {
	CommandID        string               `json:"command_id"`
	Mode             model.Mode           `json:"mode"`
	ModeValue        int                  `json:"mode_value"`
	ACChargeW        float64              `json:"ac_charge_w"`
	DCChargeW        float64              `json:"dc_charge_w"`
	DischargeAllowed bool                 `json:"discharge_allowed"`
	DischargeLimitW  float64              `json:"discharge_limit_w"`
	MinSOC           float64              `json:"min_soc"`
	MaxSOC           float64              `json:"max_soc"`
	Source           model.DecisionSource `json:"source"`
	Timestamp        int64                `json:"timestamp"`
}

// Sink publishes decisions as retained control topics plus a command
// document, and status records on <prefix>/status.
type Sink struct {
	client *PahoClient
	now    func() time.Time
}

// NewSink returns a sink publishing through client.
func NewSink(client *PahoClient) *Sink {
	return &Sink{client: client, now: time.Now}
}

func num(v float64) []byte { return []byte(strconv.FormatFloat(v, 'f', -1, 64)) }

// Apply implements control.Sink.
func (s *Sink) Apply(ctx context.Context, d model.ControlDecision) error {
	cfg := s.client.Config()
	values := []struct {
		topic   string
		payload []byte
	}{
		{"control/mode", []byte(d.Mode.String())},
		{"control/ac_charge_w", num(d.ACChargeDemandW)},
		{"control/dc_charge_w", num(d.DCChargeDemandW)},
		{"control/discharge_allowed", []byte(strconv.FormatBool(d.DischargeAllowed))},
		{"control/discharge_limit_w", num(d.DischargeLimitW)},
		{"control/min_soc", num(d.MinSOC)},
		{"control/max_soc", num(d.MaxSOC)},
	}
	var errs []error
	for _, v := range values {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.client.Publish("control", cfg.Topic(v.topic), v.payload, true); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	cmd := Command{
		CommandID:        uuid.NewString(),
		Mode:             d.Mode,
		ModeValue:        d.Mode.Value(),
		ACChargeW:        d.ACChargeDemandW,
		DCChargeW:        d.DCChargeDemandW,
		DischargeAllowed: d.DischargeAllowed,
		DischargeLimitW:  d.DischargeLimitW,
		MinSOC:           d.MinSOC,
		MaxSOC:           d.MaxSOC,
		Source:           d.Source,
		Timestamp:        s.now().UnixMilli(),
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	if cfg.AckTimeoutMS > 0 {
		s.client.ExpectAck(cmd.CommandID)
	}
	if err := s.client.Publish("command", cfg.Topic("control/command"), payload, false); err != nil {
		return err
	}
	if cfg.AckTimeoutMS > 0 {
		if _, err := s.client.WaitForAck(cmd.CommandID, time.Duration(cfg.AckTimeoutMS)*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

// PublishStatus implements control.Sink.
func (s *Sink) PublishStatus(_ context.Context, st model.Status) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.client.Publish("status", s.client.Config().Topic("status"), payload, true)
}
