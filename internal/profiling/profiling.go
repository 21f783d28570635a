// Package profiling captures CPU and heap profiles of an analysis and
// exposes the pprof endpoints on a server mux.
package profiling

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	runtimepprof "runtime/pprof"
	"sync"

	"github.com/therealutkarshpriyadarshi/logscope/internal/logging"
)

// Config names the profile output files. Empty paths disable that profile.
type Config struct {
	CPUProfilePath string
	MemProfilePath string
}

// Enabled reports whether any profile is requested
func (c Config) Enabled() bool {
	return c.CPUProfilePath != "" || c.MemProfilePath != ""
}

// Profiler writes profiles for the span between Start and Stop
type Profiler struct {
	config  Config
	logger  *logging.Logger
	mu      sync.Mutex
	cpuFile *os.File
	stopped bool
}

// New creates a new profiler
func New(config Config, logger *logging.Logger) *Profiler {
	if logger == nil {
		logger = logging.Global()
	}
	return &Profiler{config: config, logger: logger.WithComponent("profiling")}
}

// Start begins CPU profiling when a CPU profile path is set
func (p *Profiler) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.CPUProfilePath == "" {
		return nil
	}

	f, err := os.Create(p.config.CPUProfilePath)
	if err != nil {
		return fmt.Errorf("failed to create CPU profile: %w", err)
	}
	if err := runtimepprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to start CPU profiling: %w", err)
	}

	p.cpuFile = f
	p.logger.Debug().Str("path", p.config.CPUProfilePath).Msg("CPU profiling started")
	return nil
}

// Stop ends CPU profiling and writes the heap profile. Later calls are no-ops.
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true

	if p.cpuFile != nil {
		runtimepprof.StopCPUProfile()
		if err := p.cpuFile.Close(); err != nil {
			return fmt.Errorf("failed to close CPU profile: %w", err)
		}
		p.logger.Info().Str("path", p.config.CPUProfilePath).Msg("CPU profile saved")
	}

	if p.config.MemProfilePath != "" {
		if err := p.writeMemProfile(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Profiler) writeMemProfile() error {
	f, err := os.Create(p.config.MemProfilePath)
	if err != nil {
		return fmt.Errorf("failed to create memory profile: %w", err)
	}
	defer f.Close()

	// up-to-date statistics
	runtime.GC()

	if err := runtimepprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("failed to write memory profile: %w", err)
	}

	p.logger.Info().Str("path", p.config.MemProfilePath).Msg("Memory profile saved")
	return nil
}

// RegisterHandlers mounts the pprof endpoints and /debug/stats on mux
func RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/stats", statsHandler)
}

// RuntimeStats is the body of /debug/stats
type RuntimeStats struct {
	Goroutines   int    `json:"goroutines"`
	CPUs         int    `json:"cpus"`
	GOMAXPROCS   int    `json:"gomaxprocs"`
	HeapAlloc    uint64 `json:"heapAllocBytes"`
	HeapInuse    uint64 `json:"heapInuseBytes"`
	HeapObjects  uint64 `json:"heapObjects"`
	TotalAlloc   uint64 `json:"totalAllocBytes"`
	Sys          uint64 `json:"sysBytes"`
	NumGC        uint32 `json:"numGc"`
	PauseTotalNs uint64 `json:"pauseTotalNs"`
}

// ReadRuntimeStats samples the runtime
func ReadRuntimeStats() RuntimeStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return RuntimeStats{
		Goroutines:   runtime.NumGoroutine(),
		CPUs:         runtime.NumCPU(),
		GOMAXPROCS:   runtime.GOMAXPROCS(0),
		HeapAlloc:    m.HeapAlloc,
		HeapInuse:    m.HeapInuse,
		HeapObjects:  m.HeapObjects,
		TotalAlloc:   m.TotalAlloc,
		Sys:          m.Sys,
		NumGC:        m.NumGC,
		PauseTotalNs: m.PauseTotalNs,
	}
}

func statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ReadRuntimeStats())
}
