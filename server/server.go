// Package server exposes the monitor's cached state over HTTP: a JSON status
// surface, Prometheus metrics and a refresh trigger. It is a read/trigger
// boundary only; all probing stays behind the monitor.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/avishj/quotamon/monitor"
	"github.com/avishj/quotamon/usage"
)

// Server serves the HTTP status surface until closed.
type Server struct {
	logger  zerolog.Logger
	monitor *monitor.Monitor
	scanner *usage.Scanner
	server  *http.Server
	ln      net.Listener
}

type statusResponse struct {
	Sources []sourceStatus `json:"sources"`
}

type sourceStatus struct {
	ID           string     `json:"id"`
	Driver       string     `json:"driver"`
	Disabled     bool       `json:"disabled"`
	Band         string     `json:"band"`
	Remaining    *int       `json:"remaining,omitempty"`
	Unit         string     `json:"unit,omitempty"`
	DisplayText  string     `json:"display_text,omitempty"`
	ShareURL     string     `json:"share_url,omitempty"`
	CapturedAt   *time.Time `json:"captured_at,omitempty"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	LastDuration float64    `json:"last_duration_ms"`
	LastError    string     `json:"last_error,omitempty"`
}

type usageResponse struct {
	Records   int               `json:"records"`
	TotalCost string            `json:"total_cost"`
	ByModel   map[string]string `json:"by_model"`
}

// New starts serving on the given address. The returned server is already
// accepting connections; call Close to stop it.
func New(listen string, mon *monitor.Monitor, scanner *usage.Scanner, logger zerolog.Logger) (*Server, error) {
	s := &Server{
		logger:  logger.With().Str("component", "server").Logger(),
		monitor: mon,
		scanner: scanner,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/refresh", s.handleRefresh)
	mux.HandleFunc("/usage", s.handleUsage)
	mux.Handle("/metrics", promhttp.Handler())

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: mux}
	s.server = srv
	s.ln = ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("status server stopped")
		}
	}()

	s.logger.Info().Str("listen", ln.Addr().String()).Msg("status server started")
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Close shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Close() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error().Err(err).Msg("status server shutdown")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	statuses := s.monitor.Status()
	response := statusResponse{Sources: make([]sourceStatus, 0, len(statuses))}
	for _, status := range statuses {
		response.Sources = append(response.Sources, toSourceStatus(status))
	}
	writeJSON(w, s.logger, response)
}

func toSourceStatus(status monitor.SourceStatus) sourceStatus {
	out := sourceStatus{
		ID:           status.ID,
		Driver:       status.Driver,
		Disabled:     status.Disabled,
		Band:         string(status.Band),
		DisplayText:  status.DisplayText,
		LastDuration: float64(status.LastDuration) / float64(time.Millisecond),
		LastError:    status.LastError,
	}
	if !status.LastRun.IsZero() {
		lastRun := status.LastRun
		out.LastRun = &lastRun
	}
	if !status.NextRun.IsZero() {
		nextRun := status.NextRun
		out.NextRun = &nextRun
	}
	if status.HasSnapshot {
		out.Unit = string(status.Snapshot.Unit())
		out.ShareURL = status.Snapshot.ShareURL()
		capturedAt := status.Snapshot.CapturedAt()
		out.CapturedAt = &capturedAt
		if remaining, ok := status.Snapshot.Remaining(); ok {
			out.Remaining = &remaining
		}
	}
	return out
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("source")
	if id == "" {
		go s.monitor.RefreshAll(context.Background())
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if err := s.monitor.Refresh(r.Context(), id); err != nil {
		if errors.Is(err, monitor.ErrSourceNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.scanner == nil {
		http.Error(w, "usage scanning not configured", http.StatusNotFound)
		return
	}
	summary, err := s.scanner.Summarize()
	if err != nil {
		s.logger.Error().Err(err).Msg("usage summary failed")
		http.Error(w, "usage summary failed", http.StatusInternalServerError)
		return
	}
	response := usageResponse{
		Records:   summary.Records,
		TotalCost: summary.TotalCost.StringFixed(4),
		ByModel:   make(map[string]string, len(summary.ByModel)),
	}
	for model, cost := range summary.ByModel {
		response.ByModel[model] = cost.StringFixed(4)
	}
	writeJSON(w, s.logger, response)
}

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error().Err(err).Msg("encode response")
	}
}
