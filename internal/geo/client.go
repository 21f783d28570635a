package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/therealutkarshpriyadarshi/logscope/internal/config"
	"github.com/therealutkarshpriyadarshi/logscope/internal/logging"
	"github.com/therealutkarshpriyadarshi/logscope/internal/metrics"
	"github.com/therealutkarshpriyadarshi/logscope/internal/reliability"
	"github.com/therealutkarshpriyadarshi/logscope/internal/tracing"
	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

// ErrServiceStatus is returned when the service answers with a non-2xx status
var ErrServiceStatus = errors.New("geolocation service returned an error status")

const batchPath = "/api/geo/batch"

// Locator resolves IP addresses to per-country counts
type Locator interface {
	Batch(ctx context.Context, ips []string) ([]types.CountryRecord, error)
}

// Client calls the geolocation batch service
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      reliability.RetryConfig
	breaker    *reliability.CircuitBreaker
	logger     *logging.Logger
	metrics    *metrics.Collector
}

// NewClient creates a client from cfg. httpClient may be nil.
func NewClient(cfg config.GeoConfig, httpClient *http.Client, logger *logging.Logger, collector *metrics.Collector) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = config.DefaultGeoTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = logging.Global()
	}

	c := &Client{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		httpClient: httpClient,
		logger:     logger.WithComponent("geo"),
		metrics:    collector,
	}

	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	if cfg.Retry != nil {
		c.retry = reliability.RetryConfig{
			MaxRetries:     cfg.Retry.MaxRetries,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
			Multiplier:     cfg.Retry.Multiplier,
			Jitter:         true,
		}
	}
	c.retry.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("Geolocation request failed, retrying")
	}

	if cb := cfg.CircuitBreaker; cb != nil && cb.Enabled {
		c.breaker = reliability.NewCircuitBreaker(reliability.CircuitBreakerConfig{
			Name:        "geo",
			MaxRequests: uint32(cb.MaxRequests),
			Timeout:     cb.Timeout,
			ReadyToTrip: reliability.ConsecutiveFailures(uint32(cb.FailureThreshold)),
			OnStateChange: func(name string, from, to reliability.State) {
				c.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
				if c.metrics != nil {
					c.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				}
			},
		})
	}

	return c
}

type batchRequest struct {
	IPs []string `json:"ips"`
}

// Batch resolves ips, which should already be deduplicated. The result is
// sorted by count, highest first.
func (c *Client) Batch(ctx context.Context, ips []string) ([]types.CountryRecord, error) {
	if len(ips) == 0 {
		return []types.CountryRecord{}, nil
	}

	ctx, span := tracing.TraceGeo(ctx, len(ips))
	defer span.End()

	start := time.Now()
	var records []types.CountryRecord

	err := reliability.Retry(ctx, c.retry, func(ctx context.Context) error {
		call := func() error {
			var err error
			records, err = c.do(ctx, ips)
			return err
		}
		if c.breaker != nil {
			return c.breaker.Execute(ctx, call)
		}
		return call()
	})

	if c.metrics != nil {
		c.metrics.GeoDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		tracing.RecordError(ctx, err)
		c.observe("error")
		c.logger.Error().Err(err).Int("ips", len(ips)).Msg("Geolocation lookup failed")
		return nil, err
	}

	c.observe("ok")
	if c.metrics != nil {
		c.metrics.GeoIPs.Add(float64(len(ips)))
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Count > records[j].Count
	})
	return records, nil
}

func (c *Client) do(ctx context.Context, ips []string) ([]types.CountryRecord, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(batchRequest{IPs: ips})
	if err != nil {
		return nil, reliability.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+batchPath, bytes.NewReader(body))
	if err != nil {
		return nil, reliability.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geolocation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%w: %d %s", ErrServiceStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
		// client errors will not fix themselves
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, reliability.Permanent(err)
		}
		return nil, err
	}

	var records []types.CountryRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode geolocation response: %w", err)
	}
	if records == nil {
		records = []types.CountryRecord{}
	}
	return records, nil
}

func (c *Client) observe(outcome string) {
	if c.metrics != nil {
		c.metrics.GeoRequests.WithLabelValues(outcome).Inc()
	}
}

// BreakerState reports the circuit breaker state, closed when none is configured
func (c *Client) BreakerState() reliability.State {
	if c.breaker == nil {
		return reliability.StateClosed
	}
	return c.breaker.State()
}
