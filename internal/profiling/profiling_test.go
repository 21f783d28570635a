package profiling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/therealutkarshpriyadarshi/logscope/internal/logging"
)

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Error("empty config should be disabled")
	}
	if !(Config{MemProfilePath: "mem.pprof"}).Enabled() {
		t.Error("a memory profile path should enable profiling")
	}
}

func TestStartStop(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		CPUProfilePath: filepath.Join(dir, "cpu.pprof"),
		MemProfilePath: filepath.Join(dir, "mem.pprof"),
	}

	p := New(cfg, logging.Nop())
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// some work to sample
	sum := 0
	for i := 0; i < 1000000; i++ {
		sum += i
	}
	_ = sum

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}

	for _, path := range []string{cfg.CPUProfilePath, cfg.MemProfilePath} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("profile %s missing: %v", path, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("profile %s is empty", path)
		}
	}
}

func TestStart_BadPath(t *testing.T) {
	p := New(Config{CPUProfilePath: filepath.Join(t.TempDir(), "missing", "cpu.pprof")}, logging.Nop())
	if err := p.Start(); err == nil {
		p.Stop()
		t.Error("expected error for unwritable path")
	}
}

func TestRegisterHandlers(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHandlers(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var stats RuntimeStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if stats.Goroutines <= 0 || stats.CPUs <= 0 {
		t.Errorf("stats = %+v", stats)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("pprof index status = %d", rec.Code)
	}
}
