package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/internal/config"
	"github.com/therealutkarshpriyadarshi/logscope/internal/health"
	"github.com/therealutkarshpriyadarshi/logscope/internal/logging"
	"github.com/therealutkarshpriyadarshi/logscope/internal/metrics"
	"github.com/therealutkarshpriyadarshi/logscope/internal/shutdown"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestServer(t *testing.T) {
	collector := metrics.NewCollector()
	collector.CacheRequests.WithLabelValues("hit").Inc()

	checker := health.NewChecker(time.Second)
	checker.Register("geo", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusDegraded}
	})

	s := New(Config{
		Metrics:         &config.MetricsConfig{Enabled: true, Address: "127.0.0.1:0"},
		Health:          &config.HealthConfig{Enabled: true, Address: "127.0.0.1:0"},
		MetricsRegistry: collector.Registry(),
		HealthChecker:   checker,
		Logger:          logging.Nop(),
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop(context.Background())

	code, body := get(t, "http://"+s.MetricsAddr().String()+DefaultMetricsPath)
	if code != http.StatusOK {
		t.Errorf("metrics status = %d", code)
	}
	if !strings.Contains(body, "logscope_cache_requests_total") {
		t.Error("metrics output missing cache requests counter")
	}

	base := "http://" + s.HealthAddr().String()
	if code, body := get(t, base+HealthPath); code != http.StatusOK || !strings.Contains(body, `"degraded"`) {
		t.Errorf("health = %d %s", code, body)
	}
	if code, _ := get(t, base+LivenessPath); code != http.StatusOK {
		t.Errorf("live status = %d", code)
	}
	if code, _ := get(t, base+ReadinessPath); code != http.StatusOK {
		t.Errorf("ready status = %d", code)
	}
}

func TestServer_Pprof(t *testing.T) {
	collector := metrics.NewCollector()
	s := New(Config{
		Metrics:         &config.MetricsConfig{Enabled: true, Address: "127.0.0.1:0", Pprof: true},
		MetricsRegistry: collector.Registry(),
		Logger:          logging.Nop(),
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop(context.Background())

	code, body := get(t, "http://"+s.MetricsAddr().String()+"/debug/stats")
	if code != http.StatusOK || !strings.Contains(body, "goroutines") {
		t.Errorf("debug stats = %d %s", code, body)
	}
}

func TestServer_HealthStatusMetric(t *testing.T) {
	collector := metrics.NewCollector()
	checker := health.NewChecker(time.Second)
	checker.Register("geo", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusDegraded}
	})
	checker.Register("history", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusHealthy}
	})

	s := New(Config{
		Metrics:         &config.MetricsConfig{Enabled: true, Address: "127.0.0.1:0"},
		Health:          &config.HealthConfig{Enabled: true, Address: "127.0.0.1:0"},
		MetricsRegistry: collector.Registry(),
		HealthChecker:   checker,
		Collector:       collector,
		Logger:          logging.Nop(),
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop(context.Background())

	get(t, "http://"+s.HealthAddr().String()+HealthPath)

	_, body := get(t, "http://"+s.MetricsAddr().String()+DefaultMetricsPath)
	for _, want := range []string{
		`logscope_health_status{component="geo"} 0.5`,
		`logscope_health_status{component="history"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestServer_Disabled(t *testing.T) {
	s := New(Config{
		Metrics:         &config.MetricsConfig{Enabled: false, Address: "127.0.0.1:0"},
		MetricsRegistry: metrics.NewCollector().Registry(),
		Logger:          logging.Nop(),
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.MetricsAddr() != nil || s.HealthAddr() != nil {
		t.Error("disabled servers should not bind")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestServer_BindError(t *testing.T) {
	s := New(Config{
		Metrics:         &config.MetricsConfig{Enabled: true, Address: "256.0.0.1:99999"},
		MetricsRegistry: metrics.NewCollector().Registry(),
		Logger:          logging.Nop(),
	})
	if err := s.Start(); err == nil {
		s.Stop(context.Background())
		t.Error("expected bind error")
	}
}

func TestServer_ShutdownComponent(t *testing.T) {
	s := New(Config{
		Health:        &config.HealthConfig{Enabled: true, Address: "127.0.0.1:0"},
		HealthChecker: health.NewChecker(time.Second),
		Logger:        logging.Nop(),
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	manager := shutdown.New(shutdown.Config{Logger: logging.Nop(), Timeout: time.Second})
	manager.RegisterComponent(s)
	if err := manager.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	client := &http.Client{Timeout: time.Second}
	if _, err := client.Get("http://" + s.HealthAddr().String() + LivenessPath); err == nil {
		t.Error("server should refuse connections after shutdown")
	}
}
