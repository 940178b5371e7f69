package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jihwankim/mailprobe/pkg/probe"
	"github.com/jihwankim/mailprobe/pkg/reporting"
	"github.com/jihwankim/mailprobe/pkg/resource"
)

// StatusSource provides the read-only kernel snapshot
type StatusSource interface {
	Snapshot() []probe.Status
}

// ResourceSource provides the latest resource sample
type ResourceSource interface {
	Snapshot() resource.Sample
}

// HealthResponse is the /health JSON body
type HealthResponse struct {
	Status    string          `json:"status"`
	Probes    ProbeSummary    `json:"probes"`
	Resources resource.Sample `json:"resources"`
}

// ProbeSummary counts probes by breaker state
type ProbeSummary struct {
	Total     int `json:"total"`
	Healthy   int `json:"healthy"`
	Unhealthy int `json:"unhealthy"`
}

// Server exposes /metrics and /health on the configured port. It never
// blocks on probe workers: state is read through short-lived snapshots.
type Server struct {
	addr      string
	registry  *prometheus.Registry
	probes    StatusSource
	resources ResourceSource
	logger    *reporting.Logger
}

// New creates an exposition server
func New(port int, registry *prometheus.Registry, probes StatusSource, resources ResourceSource, logger *reporting.Logger) *Server {
	if logger == nil {
		logger = reporting.Nop()
	}

	return &Server{
		addr:      fmt.Sprintf(":%d", port),
		registry:  registry,
		probes:    probes,
		resources: resources,
		logger:    logger,
	}
}

// Handler builds the HTTP handler. Unknown paths return 404.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Run binds the listener and serves until the context is cancelled, then
// shuts down gracefully so an in-flight scrape is served fully. A bind
// failure is returned immediately and is fatal to the caller.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind metrics port: %w", err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	s.logger.Info("exposition server listening", "addr", listener.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("exposition server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("exposition server: %w", err)
		}
		return nil
	}
}

// handleHealth computes the composite health verdict. The agent is healthy
// iff strictly more than half of the probes have breakers that are not open
// and no resource warnings are active.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	statuses := s.probes.Snapshot()
	sample := s.resources.Snapshot()

	summary := ProbeSummary{Total: len(statuses)}
	for _, st := range statuses {
		if st.Healthy() {
			summary.Healthy++
		} else {
			summary.Unhealthy++
		}
	}

	healthy := summary.Healthy*2 > summary.Total && len(sample.Warnings) == 0

	resp := HealthResponse{
		Status:    "healthy",
		Probes:    summary,
		Resources: sample,
	}

	code := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode health response", "error", err.Error())
	}
}
