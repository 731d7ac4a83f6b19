package control

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/eosbridge/core/decisionlog"
	"github.com/kilianp07/eosbridge/core/events"
	"github.com/kilianp07/eosbridge/core/model"
	"github.com/kilianp07/eosbridge/core/optimizer"
	"github.com/kilianp07/eosbridge/core/override"
	"github.com/kilianp07/eosbridge/pkg/export"
)

// Override actions reported in OverrideEvent.
const (
	ActionSet   = "set"
	ActionClear = "clear"
)

const maxBodyBytes = 1 << 16

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{Error: err.Error()})
}

// decode reads at most maxBodyBytes of JSON from the request body.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// modeField accepts a mode as key, display name or numeric value.
type modeField struct {
	model.Mode
	set bool
}

func (m *modeField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] != '"' {
		v, err := strconv.Atoi(string(b))
		if err != nil {
			return fmt.Errorf("invalid mode %s", b)
		}
		mode, err := model.ModeFromValue(v)
		if err != nil {
			return err
		}
		m.Mode, m.set = mode, true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	mode, err := model.ParseMode(s)
	if err != nil {
		return err
	}
	m.Mode, m.set = mode, true
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	st, ok := s.d.Controller.Status()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, errors.New("no control tick completed yet"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type planResponse struct {
	Plan  *model.Plan      `json:"plan"`
	Fetch optimizer.Status `json:"fetch"`
}

func (s *Server) plan(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p := s.d.Plans.Plan()
	if format == export.FormatCSV {
		if p == nil {
			writeError(w, http.StatusNotFound, errors.New("no plan fetched yet"))
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		if err := export.WriteCSV(w, p); err != nil {
			s.d.Log.Errorf("write plan csv: %v", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, planResponse{Plan: p, Fetch: s.d.Plans.Status()})
}

func (s *Server) refresh(w http.ResponseWriter, _ *http.Request) {
	s.d.Plans.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"})
}

func (s *Server) decisions(w http.ResponseWriter, r *http.Request) {
	q := decisionlog.Query{}
	v := r.URL.Query()
	for _, f := range []struct {
		key string
		dst *time.Time
	}{{"start", &q.Start}, {"end", &q.End}} {
		if raw := v.Get(f.key); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("%s: %w", f.key, err))
				return
			}
			*f.dst = t
		}
	}
	if src := v.Get("source"); src != "" {
		switch model.DecisionSource(src) {
		case model.DecisionFromPlan, model.DecisionFromOverride, model.DecisionFromFallback:
			q.Source = model.DecisionSource(src)
		default:
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown source %q", src))
			return
		}
	}
	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		q.Limit = n
	}
	recs, err := s.d.Store.Query(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if recs == nil {
		recs = []decisionlog.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

type modeRequest struct {
	Mode modeField `json:"mode"`
}

// setMode returns control to the plan for AUTO and installs an override for
// the manual mode duration otherwise.
func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !req.Mode.set {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: mode is required", override.ErrInvalidOverride))
		return
	}
	if req.Mode.Mode == model.ModeAuto {
		s.clear(w)
		return
	}
	s.install(w, req.Mode.Mode, s.d.ManualModeDuration, nil)
}

type overrideRequest struct {
	Mode            modeField `json:"mode"`
	DurationMinutes float64   `json:"duration_minutes"`
	ChargePowerW    *float64  `json:"charge_power_w"`
}

func (s *Server) setOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !req.Mode.set {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: mode is required", override.ErrInvalidOverride))
		return
	}
	d := time.Duration(req.DurationMinutes * float64(time.Minute))
	s.install(w, req.Mode.Mode, d, req.ChargePowerW)
}

func (s *Server) install(w http.ResponseWriter, mode model.Mode, d time.Duration, power *float64) {
	o, err := s.d.Overrides.Set(mode, d, power)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, override.ErrInvalidOverride) {
			code = http.StatusBadRequest
		}
		writeError(w, code, err)
		return
	}
	s.d.Log.Infof("override set: mode=%s until %s", o.Mode, o.End().Format(time.RFC3339))
	s.publish(ActionSet, o)
	s.d.Controller.Trigger()
	writeJSON(w, http.StatusOK, overrideView(o))
}

func (s *Server) clearOverride(w http.ResponseWriter, _ *http.Request) { s.clear(w) }

func (s *Server) clear(w http.ResponseWriter) {
	prev, active := s.d.Overrides.Current(s.now())
	s.d.Overrides.Clear()
	if active {
		s.d.Log.Infof("override cleared: mode=%s", prev.Mode)
		s.publish(ActionClear, prev)
	}
	s.d.Controller.Trigger()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getOverride(w http.ResponseWriter, _ *http.Request) {
	o, ok := s.d.Overrides.Current(s.now())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"active": false})
		return
	}
	writeJSON(w, http.StatusOK, overrideView(o))
}

type overrideBody struct {
	Active       bool       `json:"active"`
	Mode         model.Mode `json:"mode"`
	ChargePowerW *float64   `json:"charge_power_w,omitempty"`
	Start        time.Time  `json:"start"`
	End          time.Time  `json:"end"`
}

func overrideView(o model.Override) overrideBody {
	return overrideBody{Active: true, Mode: o.Mode, ChargePowerW: o.ChargePowerW, Start: o.Start, End: o.End()}
}

func (s *Server) publish(action string, o model.Override) {
	if s.d.Bus != nil {
		s.d.Bus.Publish(events.OverrideEvent{Action: action, Override: o, Time: s.now()})
	}
}

func (s *Server) getSOCLimits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.d.Controller.SOCLimits())
}

func (s *Server) setSOCLimits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Min *float64 `json:"min_soc"`
		Max *float64 `json:"max_soc"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cur := s.d.Controller.SOCLimits()
	if req.Min != nil {
		cur.Min = *req.Min
	}
	if req.Max != nil {
		cur.Max = *req.Max
	}
	if err := s.d.Controller.SetSOCLimits(cur.Min, cur.Max); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.d.Controller.Trigger()
	writeJSON(w, http.StatusOK, cur)
}
