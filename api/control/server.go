// Package control exposes the manual control surface over HTTP: mode and
// override changes, SOC limits, plan refresh and read access to the status,
// the plan in force and the decision log.
package control

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	corecontrol "github.com/kilianp07/eosbridge/core/control"
	"github.com/kilianp07/eosbridge/core/decisionlog"
	"github.com/kilianp07/eosbridge/core/logger"
	"github.com/kilianp07/eosbridge/core/model"
	"github.com/kilianp07/eosbridge/core/optimizer"
	"github.com/kilianp07/eosbridge/internal/eventbus"
)

// Controller is the reconciler as seen by the API.
type Controller interface {
	Status() (model.Status, bool)
	SOCLimits() model.SOCLimits
	SetSOCLimits(min, max float64) error
	Trigger()
}

// Overrides is the override manager as seen by the API.
type Overrides interface {
	Set(mode model.Mode, d time.Duration, chargePowerW *float64) (model.Override, error)
	Clear()
	Current(now time.Time) (model.Override, bool)
}

// Plans is the plan fetcher as seen by the API.
type Plans interface {
	Plan() *model.Plan
	Status() optimizer.Status
	Refresh()
}

var _ Controller = (*corecontrol.Reconciler)(nil)

// Deps groups the collaborators of the server. Store, Bus and StatusBus are
// optional.
type Deps struct {
	Controller Controller
	Overrides  Overrides
	Plans      Plans
	Store      decisionlog.Store
	Bus        eventbus.EventBus
	StatusBus  *eventbus.TypedBus[model.Status]
	// ManualModeDuration is the override duration used by POST /api/mode.
	ManualModeDuration time.Duration
	Log                logger.Logger
}

// Server serves the control API.
type Server struct {
	cfg Config
	d   Deps
	now func() time.Time
}

// NewServer returns a server. Missing optional dependencies get no-op
// implementations.
func NewServer(cfg Config, d Deps) (*Server, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d.Controller == nil || d.Overrides == nil || d.Plans == nil || d.Log == nil {
		return nil, errors.New("api dependencies must not be nil")
	}
	if d.Store == nil {
		d.Store = decisionlog.NopStore{}
	}
	if d.ManualModeDuration <= 0 {
		d.ManualModeDuration = time.Hour
	}
	return &Server{cfg: cfg, d: d, now: time.Now}, nil
}

// Router returns the bare route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.auth)
	api.HandleFunc("/status", s.status).Methods(http.MethodGet)
	api.HandleFunc("/status/stream", s.stream).Methods(http.MethodGet)
	api.HandleFunc("/plan", s.plan).Methods(http.MethodGet)
	api.HandleFunc("/plan/refresh", s.refresh).Methods(http.MethodPost)
	api.HandleFunc("/decisions", s.decisions).Methods(http.MethodGet)
	api.HandleFunc("/mode", s.setMode).Methods(http.MethodPost)
	api.HandleFunc("/override", s.getOverride).Methods(http.MethodGet)
	api.HandleFunc("/override", s.setOverride).Methods(http.MethodPost)
	api.HandleFunc("/override", s.clearOverride).Methods(http.MethodDelete)
	api.HandleFunc("/soc-limits", s.getSOCLimits).Methods(http.MethodGet)
	api.HandleFunc("/soc-limits", s.setSOCLimits).Methods(http.MethodPost)
	return r
}

// Handler returns the router wrapped with recovery, compression, CORS and
// optional access logging. The status stream bypasses compression.
func (s *Server) Handler() http.Handler {
	router := s.Router()
	gz := gziphandler.GzipHandler(router)
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/stream") {
			router.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
	if len(s.cfg.CORSOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}).Handler(h)
	}
	if s.cfg.AccessLog {
		h = handlers.LoggingHandler(logWriter{s.d.Log}, h)
	}
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.d.Log}))(h)
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.d.Log.Infof("control api listening on %s", s.cfg.Addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.cfg.Token {
			writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type logWriter struct{ log logger.Logger }

func (l logWriter) Write(p []byte) (int, error) {
	l.log.Infof("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

type recoveryLogger struct{ log logger.Logger }

func (l recoveryLogger) Println(v ...any) { l.log.Errorf("http handler panic: %v", v) }
