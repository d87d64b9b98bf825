package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/quotestream/internal/connection"
)

// Health is the /health response body.
type Health struct {
	Status        string  `json:"status"` // ok, degraded, down
	State         string  `json:"state"`
	HealthScore   float64 `json:"health_score"`
	SessionID     string  `json:"session_id"`
	Subscriptions int     `json:"subscriptions"`
}

// HealthFromStats maps manager stats to a health report.
func HealthFromStats(s connection.Stats) Health {
	status := "down"
	switch s.State {
	case connection.StateConnected:
		status = "ok"
	case connection.StateConnecting, connection.StateReconnecting, connection.StateSuspended:
		status = "degraded"
	}
	return Health{
		Status:        status,
		State:         s.State.String(),
		HealthScore:   s.HealthScore,
		SessionID:     s.SessionID,
		Subscriptions: s.Subscriptions,
	}
}

// NewRegistry returns a registry with the collector and Go runtime metrics.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Server serves metrics and health over HTTP.
type Server struct {
	addr     string
	path     string
	registry *prometheus.Registry
	source   StatsSource
	logger   *slog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a metrics server. Port 0 and an empty path take the
// defaults 9090 and /metrics.
func NewServer(port int, path string, registry *prometheus.Registry, source StatsSource, logger *slog.Logger) *Server {
	if port == 0 {
		port = 9090
	}
	if path == "" {
		path = "/metrics"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:     fmt.Sprintf(":%d", port),
		path:     path,
		registry: registry,
		source:   source,
		logger:   logger,
	}
}

// Handler returns the HTTP handler without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h := HealthFromStats(s.source.Stats())
	w.Header().Set("Content-Type", "application/json")
	if h.Status == "down" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(h)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errors.New("metrics server already running")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("metrics server listening", "addr", ln.Addr().String(), "path", s.path)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve metrics: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	<-errCh

	s.mu.Lock()
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	return nil
}

// Addr returns the bound listener address, or the configured address if
// the server is not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
