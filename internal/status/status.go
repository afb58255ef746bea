// Package status serves the gateway's health and diagnostics over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/Edgewaretech/edgeware-bluegate/internal/session"
	"github.com/Edgewaretech/edgeware-bluegate/scanner"
)

// Sources are the components the endpoints report on. Any of them may be nil.
type Sources struct {
	Session interface{ Status() session.Status }
	Relay   interface{ Stats() scanner.Stats }
	Broker  interface{ Connected() bool }
	Version string
}

// Health is the /health body.
type Health struct {
	Status   string `json:"status"`
	Radio    bool   `json:"radio"`
	Broker   bool   `json:"broker"`
	Firmware string `json:"firmware,omitempty"`
}

// Report is the /status body.
type Report struct {
	Version string          `json:"version,omitempty"`
	Uptime  string          `json:"uptime"`
	Session *session.Status `json:"session,omitempty"`
	Relay   *scanner.Stats  `json:"relay,omitempty"`
	Broker  bool            `json:"brokerConnected"`
}

// Server exposes Sources on /health and /status.
type Server struct {
	sources Sources
	logger  *logrus.Logger
	started time.Time
	router  chi.Router
}

// New builds the router.
func New(sources Sources, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{sources: sources, logger: logger, started: time.Now()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Get("/health", s.health)
	r.Get("/status", s.status)
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Status endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Warn("Status endpoint shutdown failed")
		}
		return nil
	}
}

// Check evaluates readiness: the radio has identified itself and the broker
// connection is up.
func (s *Server) Check() Health {
	h := Health{Status: "ok"}
	if s.sources.Session != nil {
		h.Firmware = s.sources.Session.Status().Firmware
		h.Radio = h.Firmware != ""
	}
	if s.sources.Broker != nil {
		h.Broker = s.sources.Broker.Connected()
	}
	if !h.Radio || !h.Broker {
		h.Status = "degraded"
	}
	return h
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	h := s.Check()
	code := http.StatusOK
	if h.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, h)
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	rep := Report{
		Version: s.sources.Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if s.sources.Session != nil {
		st := s.sources.Session.Status()
		rep.Session = &st
	}
	if s.sources.Relay != nil {
		stats := s.sources.Relay.Stats()
		rep.Relay = &stats
	}
	if s.sources.Broker != nil {
		rep.Broker = s.sources.Broker.Connected()
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Debug("Failed to write status response")
	}
}
