package main

import (
	"context"
	"net/http"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/internal/analyzer"
	"github.com/therealutkarshpriyadarshi/logscope/internal/apperr"
	"github.com/therealutkarshpriyadarshi/logscope/internal/cache"
	"github.com/therealutkarshpriyadarshi/logscope/internal/config"
	"github.com/therealutkarshpriyadarshi/logscope/internal/export"
	"github.com/therealutkarshpriyadarshi/logscope/internal/geo"
	"github.com/therealutkarshpriyadarshi/logscope/internal/health"
	"github.com/therealutkarshpriyadarshi/logscope/internal/history"
	"github.com/therealutkarshpriyadarshi/logscope/internal/metrics"
	"github.com/therealutkarshpriyadarshi/logscope/internal/reliability"
	"github.com/therealutkarshpriyadarshi/logscope/internal/s3client"
	"github.com/therealutkarshpriyadarshi/logscope/internal/server"
	"github.com/therealutkarshpriyadarshi/logscope/internal/shutdown"
	"github.com/therealutkarshpriyadarshi/logscope/internal/stream"
	"github.com/therealutkarshpriyadarshi/logscope/internal/tracing"
)

const (
	exportBreakerTimeout  = 30 * time.Second
	exportBreakerFailures = 3
)

// appOptions selects which optional components are built
type appOptions struct {
	geo      bool
	export   bool
	history  bool
	workers  int
	progress stream.ProgressFunc
}

// app holds the wired components of one command invocation. Everything
// built is registered with the shutdown manager, which closes it in
// reverse order.
type app struct {
	metrics  *metrics.Collector
	cache    *cache.Store
	pool     *stream.ParallelParser
	stats    cache.StatsBackend
	geo      *geo.Client
	breakers *reliability.Breakers
	exporter *export.Exporter
	sinkName string
	history  *history.Store
	analyzer *analyzer.Analyzer
	shutdown *shutdown.Manager
}

func newApp(ctx context.Context, opts appOptions) (a *app, err error) {
	a = &app{
		metrics:  metrics.NewCollector(),
		shutdown: shutdown.New(shutdown.Config{Logger: logger}),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if t := cfg.Tracing; t != nil {
		provider, err := tracing.NewProvider(ctx, tracing.Config{
			Enabled:     t.Enabled,
			Endpoint:    t.Endpoint,
			SampleRate:  t.SampleRate,
			ServiceName: t.ServiceName,
		})
		if err != nil {
			return nil, apperr.Wrap(err, apperr.Server, "Could not start tracing")
		}
		a.shutdown.RegisterFunc("tracing", provider.Shutdown)
	}

	a.stats, err = cache.NewStatsBackend(cfg.Cache.Stats)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Validation, "Could not open cache statistics")
	}
	a.cache = cache.New(cache.Config{
		Capacity:        cfg.Cache.Capacity,
		DefaultExpiry:   cfg.Cache.DefaultExpiry,
		CleanupInterval: cfg.Cache.CleanupInterval,
	}, cache.WithBackend(a.stats), cache.WithLogger(logger), cache.WithMetrics(a.metrics))
	a.cache.Start()
	// Stop also closes the stats backend
	a.shutdown.RegisterCloser("cache", a.cache.Stop)

	deps := analyzer.Deps{
		Opener: newOpener(),
		Logger: logger,
	}

	workers := cfg.Parser.Workers
	if opts.workers > 0 {
		workers = opts.workers
	}
	if workers > 0 {
		p := stream.NewParallelParser(stream.ParallelConfig{
			Workers:    workers,
			ChunkLines: cfg.Parser.WorkerChunkLen,
		}, logger, a.metrics)
		a.shutdown.RegisterCloser("parser", p.Close)
		a.pool = p
		deps.Parser = p
	} else {
		streamOpts := []stream.Option{stream.WithLogger(logger), stream.WithMetrics(a.metrics)}
		if opts.progress != nil {
			streamOpts = append(streamOpts, stream.WithProgress(opts.progress))
		}
		deps.Parser = stream.New(stream.Config{
			ChunkSize: cfg.Parser.ChunkSize,
			BatchSize: cfg.Parser.BatchSize,
		}, streamOpts...)
	}

	if opts.geo {
		if cfg.Geo.Endpoint == "" {
			return nil, apperr.New(apperr.Validation, "Geolocation is not configured", "set geo.endpoint")
		}
		a.geo = geo.NewClient(cfg.Geo, nil, logger, a.metrics)
		deps.Locator = geo.NewCachedLocator(a.geo, a.cache, a.metrics)
	}

	if opts.export {
		var s3api s3client.API
		if cfg.Export.Sink == export.SinkS3 {
			client, err := s3client.New(ctx, cfg.Source.S3)
			if err != nil {
				return nil, apperr.Wrap(err, apperr.Network, "Could not create S3 client")
			}
			s3api = client
		}

		sink, err := export.NewSink(cfg.Export, s3api)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.Server, "Could not create export sink")
		}
		a.sinkName = sink.Name()
		a.breakers = reliability.NewBreakers(reliability.CircuitBreakerConfig{
			Timeout:     exportBreakerTimeout,
			ReadyToTrip: reliability.ConsecutiveFailures(exportBreakerFailures),
			OnStateChange: func(name string, from, to reliability.State) {
				logger.Warn().Str("sink", name).Str("from", from.String()).Str("to", to.String()).Msg("Export circuit breaker state changed")
				a.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			},
		})
		a.exporter = export.NewExporter(sink, a.breakers, logger, a.metrics)
		a.shutdown.RegisterCloser("export", a.exporter.Close)
		deps.Exporter = a.exporter
	}

	if opts.history {
		a.history, err = openHistory()
		if err != nil {
			return nil, err
		}
		a.shutdown.RegisterCloser("history", a.history.Close)
		deps.History = a.history
	}

	a.analyzer = analyzer.New(deps)
	return a, nil
}

func newOpener() *stream.Opener {
	timeout := cfg.Source.HTTP.Timeout
	if timeout <= 0 {
		timeout = config.DefaultGeoTimeout
	}
	return &stream.Opener{
		HTTPClient: &http.Client{Timeout: timeout},
		BaseURL:    cfg.Source.HTTP.BaseURL,
		NewS3Func: func(ctx context.Context) (s3client.API, error) {
			client, err := s3client.New(ctx, cfg.Source.S3)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
	}
}

func openHistory() (*history.Store, error) {
	store, err := history.Open(cfg.History.Path, logger)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.File, "Could not open run history")
	}
	return store, nil
}

// healthChecker registers a check for every component that was built
func (a *app) healthChecker() *health.Checker {
	timeout := health.DefaultTimeout
	if cfg.Health != nil && cfg.Health.Timeout > 0 {
		timeout = cfg.Health.Timeout
	}

	checker := health.NewChecker(timeout)
	checker.Register("cache", health.CacheCheck(a.cache))
	if a.pool != nil {
		checker.Register("parser", health.PoolCheck(a.pool.PoolMetrics))
	}
	if redis, ok := a.stats.(*cache.RedisBackend); ok {
		checker.Register("redis", health.PingCheck(redis))
	}
	if a.history != nil {
		checker.Register("history", health.PingCheck(a.history))
	}
	if a.geo != nil {
		checker.Register("geo", health.BreakerCheck(a.geo.BreakerState))
	}
	if a.exporter != nil {
		checker.Register("export", health.BreakerCheck(a.breakers.Get(a.sinkName).State))
	}
	return checker
}

// startServer starts the metrics and health endpoints configured in cfg.
// It returns nil when neither is enabled.
func (a *app) startServer() (*server.Server, error) {
	if (cfg.Metrics == nil || !cfg.Metrics.Enabled) && (cfg.Health == nil || !cfg.Health.Enabled) {
		return nil, nil
	}

	srv := server.New(server.Config{
		Metrics:         cfg.Metrics,
		Health:          cfg.Health,
		MetricsRegistry: a.metrics.Registry(),
		Collector:       a.metrics,
		HealthChecker:   a.healthChecker(),
		Logger:          logger,
	})
	if err := srv.Start(); err != nil {
		return nil, apperr.Wrap(err, apperr.Server, "Could not start server")
	}
	a.shutdown.RegisterComponent(srv)

	a.metrics.Start()
	a.shutdown.RegisterFunc("metrics", func(ctx context.Context) error {
		a.metrics.Stop()
		return nil
	})
	return srv, nil
}

// Close runs every registered shutdown step
func (a *app) Close() error {
	return a.shutdown.Shutdown()
}
