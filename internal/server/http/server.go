// Package http exposes the operator and occupant surface of the triage
// engine: the dismissal link embedded in warning notifications, a read-only
// incident listing, health and metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guardian-iov/guardian/internal/triage"
	"github.com/guardian-iov/guardian/pkg/log"
)

// Server serves the dismissal endpoint and the operator API.
type Server struct {
	srv     *http.Server
	machine *triage.StateMachine
	store   triage.IncidentStore
	metrics *triage.Metrics
	logger  log.Logger

	now func() time.Time
}

// New builds the server. registry backs the /metrics endpoint.
func New(addr string, machine *triage.StateMachine, store triage.IncidentStore, metrics *triage.Metrics, registry *prometheus.Registry, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	s := &Server{
		machine: machine,
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}

	r := mux.NewRouter()
	r.HandleFunc("/dismiss", s.handleDismiss).Methods(http.MethodGet)
	r.HandleFunc("/incidents", s.handleListIncidents).Methods(http.MethodGet)
	r.HandleFunc("/incidents/{vin}", s.handleGetIncident).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		s.logger.Info("HTTP server stopped")
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	}
}

const dismissPage = `<!DOCTYPE html>
<html>
<head><title>Guardian</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h1>%s</h1>
<p>%s</p>
</body>
</html>
`

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	vin := r.URL.Query().Get("vin")
	if vin == "" {
		s.countDismissal("bad_request")
		http.Error(w, "missing vin parameter", http.StatusBadRequest)
		return
	}

	tr, err := s.machine.Dismiss(r.Context(), vin, s.now())
	if err != nil {
		s.countDismissal("error")
		s.logger.Error(err, "Dismissal failed", "vin", vin)
		http.Error(w, "dismissal failed, please retry", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if tr.Applied {
		s.countDismissal("confirmed")
		s.logger.Info("Warning dismissed", "vin", vin)
		fmt.Fprintf(w, dismissPage,
			"Safe Status Confirmed",
			fmt.Sprintf("Thank you. Emergency escalation for vehicle %s has been canceled.", vin))
		return
	}

	// Nothing to dismiss: the warning already resolved, escalated or never
	// existed. The link stays safe to click twice.
	s.countDismissal("noop")
	fmt.Fprintf(w, dismissPage,
		"Already Handled",
		fmt.Sprintf("Vehicle %s has no active safety check waiting for a response.", vin))
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error(err, "Incident listing failed")
		http.Error(w, "incident listing failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	vin := mux.Vars(r)["vin"]

	rec, found, err := s.store.Get(r.Context(), vin)
	if err != nil {
		s.logger.Error(err, "Incident lookup failed", "vin", vin)
		http.Error(w, "incident lookup failed", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, fmt.Sprintf("no incident record for vin %s", vin), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	// The store is the only hard dependency of request handling.
	if _, err := s.store.List(r.Context()); err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) countDismissal(result string) {
	if s.metrics != nil {
		s.metrics.DismissalsTotal.WithLabelValues(result).Inc()
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
