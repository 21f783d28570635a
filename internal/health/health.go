package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/internal/cache"
	"github.com/therealutkarshpriyadarshi/logscope/internal/reliability"
	"github.com/therealutkarshpriyadarshi/logscope/internal/worker"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Value maps a status onto a gauge value: 1 healthy, 0.5 degraded, 0 otherwise
func (s Status) Value() float64 {
	switch s {
	case StatusHealthy:
		return 1
	case StatusDegraded:
		return 0.5
	default:
		return 0
	}
}

// DefaultTimeout bounds each check when the checker is built with zero
const DefaultTimeout = 5 * time.Second

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status      Status                 `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// HealthCheck represents a health check function
type HealthCheck func(ctx context.Context) ComponentHealth

// Checker manages health checks for all components
type Checker struct {
	mu         sync.RWMutex
	components map[string]HealthCheck
	timeout    time.Duration
	onResult   func(name string, result ComponentHealth)
}

// NewChecker creates a new health checker
func NewChecker(timeout time.Duration) *Checker {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Checker{
		components: make(map[string]HealthCheck),
		timeout:    timeout,
	}
}

// Register registers a health check for a component
func (c *Checker) Register(name string, check HealthCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = check
}

// OnResult sets a hook called after every check run
func (c *Checker) OnResult(fn func(name string, result ComponentHealth)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResult = fn
}

// Check runs all health checks concurrently
func (c *Checker) Check(ctx context.Context) map[string]ComponentHealth {
	c.mu.RLock()
	components := make(map[string]HealthCheck, len(c.components))
	for k, v := range c.components {
		components[k] = v
	}
	c.mu.RUnlock()

	results := make(map[string]ComponentHealth, len(components))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	for name, check := range components {
		wg.Add(1)
		go func(n string, chk HealthCheck) {
			defer wg.Done()
			result := c.run(ctx, n, chk)

			resultsMu.Lock()
			results[n] = result
			resultsMu.Unlock()
		}(name, check)
	}

	wg.Wait()
	return results
}

func (c *Checker) run(ctx context.Context, name string, check HealthCheck) ComponentHealth {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result := check(checkCtx)
	result.LastChecked = time.Now()

	c.mu.RLock()
	onResult := c.onResult
	c.mu.RUnlock()

	if onResult != nil {
		onResult(name, result)
	}
	return result
}

// OverallStatus runs every check and folds the results
func (c *Checker) OverallStatus(ctx context.Context) Status {
	return Overall(c.Check(ctx))
}

// Overall is unhealthy if any component is, else degraded if any is
func Overall(results map[string]ComponentHealth) Status {
	overall := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// HealthResponse represents the HTTP response for health checks
type HealthResponse struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// HTTPHandler returns an HTTP handler for health checks. Degraded still
// answers 200.
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := c.Check(r.Context())
		overall := Overall(results)

		writeJSON(w, statusCode(overall), HealthResponse{
			Status:     overall,
			Components: results,
			Timestamp:  time.Now(),
		})
	}
}

// LivenessHandler returns a simple liveness probe handler
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadinessHandler returns a readiness probe handler
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.OverallStatus(r.Context())
		writeJSON(w, statusCode(status), map[string]interface{}{
			"status":    status,
			"timestamp": time.Now(),
		})
	}
}

func statusCode(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// Pinger is anything with a reachability probe: the history database or
// the Redis stats backend
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck is unhealthy when p cannot be reached
func PingCheck(p Pinger) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		start := time.Now()
		if err := p.Ping(ctx); err != nil {
			return ComponentHealth{Status: StatusUnhealthy, Message: err.Error()}
		}
		return ComponentHealth{
			Status:   StatusHealthy,
			Metadata: map[string]interface{}{"latency_ms": time.Since(start).Milliseconds()},
		}
	}
}

// BreakerCheck reports the state of a circuit breaker. An open breaker
// degrades the service rather than failing it; analysis still works
// without geolocation.
func BreakerCheck(state func() reliability.State) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		s := state()
		h := ComponentHealth{
			Status:   StatusHealthy,
			Metadata: map[string]interface{}{"circuit": s.String()},
		}
		switch s {
		case reliability.StateOpen:
			h.Status = StatusDegraded
			h.Message = "circuit breaker is open"
		case reliability.StateHalfOpen:
			h.Status = StatusDegraded
			h.Message = "circuit breaker is probing"
		}
		return h
	}
}

// CacheCheck reports cache occupancy and hit rate. It never fails.
func CacheCheck(store *cache.Store) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		stats := store.Stats()
		return ComponentHealth{
			Status: StatusHealthy,
			Metadata: map[string]interface{}{
				"size":           stats.Size,
				"hit_rate":       stats.HitRate,
				"total_requests": stats.TotalRequests,
			},
		}
	}
}

// PoolCheck reports worker pool load. A full queue or failing jobs degrade it.
func PoolCheck(metrics func() worker.PoolMetrics) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		m := metrics()
		h := ComponentHealth{
			Status: StatusHealthy,
			Metadata: map[string]interface{}{
				"workers":        m.NumWorkers,
				"active":         m.WorkersActive,
				"jobs_processed": m.JobsProcessed,
				"utilization":    m.Utilization(),
				"success_rate":   m.SuccessRate(),
			},
		}
		switch {
		case m.Utilization() >= 100:
			h.Status = StatusDegraded
			h.Message = "job queue is full"
		case m.SuccessRate() < 100:
			h.Status = StatusDegraded
			h.Message = "jobs are failing"
		}
		return h
	}
}
