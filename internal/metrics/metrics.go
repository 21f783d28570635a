package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const namespace = "logscope"

// Collector provides a central place for all application metrics
type Collector struct {
	// Parser metrics
	ParserLines     *prometheus.CounterVec
	ParserMalformed *prometheus.CounterVec
	ParserBytesRead *prometheus.CounterVec
	ParserDuration  *prometheus.HistogramVec
	ParserRuns      *prometheus.CounterVec

	// Cache metrics
	CacheRequests    *prometheus.CounterVec
	CacheEvictions   prometheus.Counter
	CacheExpirations *prometheus.CounterVec
	CacheSize        prometheus.Gauge

	// Geolocation client metrics
	GeoRequests *prometheus.CounterVec
	GeoDuration prometheus.Histogram
	GeoIPs      prometheus.Counter

	// Export metrics
	ExportRecords  *prometheus.CounterVec
	ExportFailures *prometheus.CounterVec
	ExportBytes    *prometheus.CounterVec
	ExportDuration *prometheus.HistogramVec

	// Worker pool metrics
	WorkerPoolJobs    *prometheus.CounterVec
	WorkerJobDuration *prometheus.HistogramVec

	// Watcher metrics
	WatcherEvents *prometheus.CounterVec

	// System metrics
	SystemGoroutines prometheus.Gauge
	SystemMemAlloc   prometheus.Gauge
	SystemMemSys     prometheus.Gauge
	SystemGCPauses   prometheus.Histogram

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec

	// Health metrics
	HealthStatus *prometheus.GaugeVec

	registry *prometheus.Registry
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector on a private registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.initParserMetrics()
	c.initCacheMetrics()
	c.initGeoMetrics()
	c.initExportMetrics()
	c.initWorkerPoolMetrics()
	c.initWatcherMetrics()
	c.initSystemMetrics()
	c.initCircuitBreakerMetrics()
	c.initHealthMetrics()

	return c
}

func (c *Collector) initParserMetrics() {
	c.ParserLines = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "lines_total",
			Help:      "Total number of non-blank lines parsed, by outcome",
		},
		[]string{"mode", "outcome"},
	)

	c.ParserMalformed = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "malformed_total",
			Help:      "Total number of malformed lines, by category",
		},
		[]string{"category"},
	)

	c.ParserBytesRead = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "bytes_read_total",
			Help:      "Total bytes read from log sources",
		},
		[]string{"source_type"},
	)

	c.ParserDuration = promauto.With(c.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "duration_seconds",
			Help:      "Time taken to parse a whole source",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~30s
		},
		[]string{"mode"},
	)

	c.ParserRuns = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "runs_total",
			Help:      "Total number of parse runs, by result",
		},
		[]string{"mode", "result"},
	)
}

func (c *Collector) initCacheMetrics() {
	c.CacheRequests = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Total cache lookups, by result (hit or miss)",
		},
		[]string{"result"},
	)

	c.CacheEvictions = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries evicted because the store was at capacity",
		},
	)

	c.CacheExpirations = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "expirations_total",
			Help:      "Entries removed for being older than their expiry",
		},
		[]string{"path"}, // lookup or sweep
	)

	c.CacheSize = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of cache entries",
		},
	)
}

func (c *Collector) initGeoMetrics() {
	c.GeoRequests = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "geo",
			Name:      "requests_total",
			Help:      "Geolocation batch requests, by outcome",
		},
		[]string{"outcome"}, // ok, error, cached
	)

	c.GeoDuration = promauto.With(c.registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "geo",
			Name:      "request_duration_seconds",
			Help:      "Latency of geolocation batch requests",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
	)

	c.GeoIPs = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "geo",
			Name:      "ips_resolved_total",
			Help:      "IP addresses sent to the geolocation service",
		},
	)
}

func (c *Collector) initExportMetrics() {
	c.ExportRecords = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "records_sent_total",
			Help:      "Records successfully written to an export sink",
		},
		[]string{"sink", "kind"},
	)

	c.ExportFailures = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "failures_total",
			Help:      "Export attempts that failed",
		},
		[]string{"sink"},
	)

	c.ExportBytes = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "bytes_total",
			Help:      "Encoded bytes written to export sinks",
		},
		[]string{"sink"},
	)

	c.ExportDuration = promauto.With(c.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "duration_seconds",
			Help:      "Time taken to write an export",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"sink"},
	)
}

func (c *Collector) initWorkerPoolMetrics() {
	c.WorkerPoolJobs = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker_pool",
			Name:      "jobs_total",
			Help:      "Total number of jobs processed",
		},
		[]string{"pool_name", "status"},
	)

	c.WorkerJobDuration = promauto.With(c.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker_pool",
			Name:      "job_duration_seconds",
			Help:      "Time taken to process a job",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"pool_name"},
	)
}

func (c *Collector) initWatcherMetrics() {
	c.WatcherEvents = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "events_total",
			Help:      "Upload directory events, by operation",
		},
		[]string{"op"},
	)
}

func (c *Collector) initSystemMetrics() {
	c.SystemGoroutines = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "goroutines_total",
			Help:      "Current number of goroutines",
		},
	)

	c.SystemMemAlloc = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_allocated_bytes",
			Help:      "Bytes of allocated heap objects",
		},
	)

	c.SystemMemSys = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_system_bytes",
			Help:      "Total bytes of memory obtained from the OS",
		},
	)

	c.SystemGCPauses = promauto.With(c.registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "gc_pause_seconds",
			Help:      "GC pause duration",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 15), // 10µs to ~300ms
		},
	)
}

func (c *Collector) initCircuitBreakerMetrics() {
	c.CircuitBreakerState = promauto.With(c.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)
}

func (c *Collector) initHealthMetrics() {
	c.HealthStatus = promauto.With(c.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "status",
			Help:      "Health status of components (1=healthy, 0.5=degraded, 0=unhealthy)",
		},
		[]string{"component"},
	)
}

// SetHealth records a component's last health check result
func (c *Collector) SetHealth(component string, value float64) {
	c.HealthStatus.WithLabelValues(component).Set(value)
}

// ObserveJob records one worker pool job. It matches worker.PoolConfig.OnJobDone.
func (c *Collector) ObserveJob(poolName string) func(err error, elapsed time.Duration) {
	return func(err error, elapsed time.Duration) {
		status := "success"
		if err != nil {
			status = "failed"
		}
		c.WorkerPoolJobs.WithLabelValues(poolName, status).Inc()
		c.WorkerJobDuration.WithLabelValues(poolName).Observe(elapsed.Seconds())
	}
}

// Start begins collecting system metrics periodically
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopCh != nil {
		return
	}
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		c.collectSystemMetrics()
		for {
			select {
			case <-ticker.C:
				c.collectSystemMetrics()
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop stops the metrics collector
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
}

// collectSystemMetrics gathers runtime metrics
func (c *Collector) collectSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.SystemGoroutines.Set(float64(runtime.NumGoroutine()))
	c.SystemMemAlloc.Set(float64(m.Alloc))
	c.SystemMemSys.Set(float64(m.Sys))

	if m.NumGC > 0 {
		lastPause := m.PauseNs[(m.NumGC+255)%256]
		c.SystemGCPauses.Observe(float64(lastPause) / 1e9)
	}
}

// Registry returns the Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Global metrics collector
var (
	globalCollector *Collector
	once            sync.Once
)

// GetGlobalCollector returns the global metrics collector
func GetGlobalCollector() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
	})
	return globalCollector
}
