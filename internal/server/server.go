package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/therealutkarshpriyadarshi/logscope/internal/config"
	"github.com/therealutkarshpriyadarshi/logscope/internal/health"
	"github.com/therealutkarshpriyadarshi/logscope/internal/logging"
	"github.com/therealutkarshpriyadarshi/logscope/internal/metrics"
	"github.com/therealutkarshpriyadarshi/logscope/internal/profiling"
)

// Default endpoint paths
const (
	DefaultMetricsPath = "/metrics"
	HealthPath         = "/health"
	LivenessPath       = "/live"
	ReadinessPath      = "/ready"
)

// Server provides HTTP endpoints for metrics and health checks
type Server struct {
	metricsServer *http.Server
	healthServer  *http.Server
	metricsAddr   net.Addr
	healthAddr    net.Addr
	logger        *logging.Logger
}

// Config holds server configuration. A nil section or disabled section
// leaves that server off.
type Config struct {
	Metrics         *config.MetricsConfig
	Health          *config.HealthConfig
	MetricsRegistry *prometheus.Registry
	HealthChecker   *health.Checker
	Logger          *logging.Logger

	// Collector, when set, receives every health check result
	Collector *metrics.Collector
}

// New creates a new server
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.Global()
	}
	s := &Server{logger: cfg.Logger.WithComponent("server")}

	if m := cfg.Metrics; m != nil && m.Enabled && cfg.MetricsRegistry != nil {
		path := m.Path
		if path == "" {
			path = DefaultMetricsPath
		}

		mux := http.NewServeMux()
		mux.Handle(path, promhttp.HandlerFor(
			cfg.MetricsRegistry,
			promhttp.HandlerOpts{
				EnableOpenMetrics: true,
			},
		))
		if m.Pprof {
			profiling.RegisterHandlers(mux)
		}
		s.metricsServer = newHTTPServer(m.Address, mux)
	}

	if cfg.HealthChecker != nil && cfg.Collector != nil {
		collector := cfg.Collector
		cfg.HealthChecker.OnResult(func(name string, result health.ComponentHealth) {
			collector.SetHealth(name, result.Status.Value())
		})
	}

	if h := cfg.Health; h != nil && h.Enabled && cfg.HealthChecker != nil {
		mux := http.NewServeMux()
		mux.HandleFunc(HealthPath, cfg.HealthChecker.HTTPHandler())
		mux.HandleFunc(LivenessPath, cfg.HealthChecker.LivenessHandler())
		mux.HandleFunc(ReadinessPath, cfg.HealthChecker.ReadinessHandler())
		s.healthServer = newHTTPServer(h.Address, mux)
	}

	return s
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Start binds both listeners and serves in the background. Bind errors are
// returned directly.
func (s *Server) Start() error {
	if s.metricsServer != nil {
		addr, err := s.serve(s.metricsServer, "metrics")
		if err != nil {
			return err
		}
		s.metricsAddr = addr
	}

	if s.healthServer != nil {
		addr, err := s.serve(s.healthServer, "health")
		if err != nil {
			if s.metricsServer != nil {
				s.metricsServer.Close()
			}
			return err
		}
		s.healthAddr = addr
	}

	return nil
}

func (s *Server) serve(srv *http.Server, name string) (net.Addr, error) {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("%s server error: %w", name, err)
	}

	s.logger.Info().
		Str("address", ln.Addr().String()).
		Msgf("Starting %s server", name)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msgf("%s server stopped", name)
		}
	}()
	return ln.Addr(), nil
}

// MetricsAddr is the bound metrics address, nil before Start
func (s *Server) MetricsAddr() net.Addr { return s.metricsAddr }

// HealthAddr is the bound health address, nil before Start
func (s *Server) HealthAddr() net.Addr { return s.healthAddr }

// Name identifies the server to the shutdown manager
func (s *Server) Name() string { return "server" }

// Stop gracefully shuts down the servers
func (s *Server) Stop(ctx context.Context) error {
	var errs []error

	if s.metricsServer != nil {
		s.logger.Info().Msg("Shutting down metrics server")
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Error shutting down metrics server")
			errs = append(errs, err)
		}
	}

	if s.healthServer != nil {
		s.logger.Info().Msg("Shutting down health server")
		if err := s.healthServer.Shutdown(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Error shutting down health server")
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
