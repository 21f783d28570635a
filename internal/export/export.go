// Package export writes analysis results to files, object storage, Kafka
// or Elasticsearch.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/logscope/internal/config"
	"github.com/therealutkarshpriyadarshi/logscope/internal/logging"
	"github.com/therealutkarshpriyadarshi/logscope/internal/metrics"
	"github.com/therealutkarshpriyadarshi/logscope/internal/reliability"
	"github.com/therealutkarshpriyadarshi/logscope/internal/s3client"
	"github.com/therealutkarshpriyadarshi/logscope/internal/tracing"
	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

// Kinds of exported elements
const (
	KindRecord    = "record"
	KindMalformed = "malformed"
)

// Sink names
const (
	SinkFile          = "file"
	SinkS3            = "s3"
	SinkKafka         = "kafka"
	SinkElasticsearch = "elasticsearch"
)

// Sink is a destination for analysis results
type Sink interface {
	// Write delivers the whole payload. It reports how many encoded bytes
	// were sent, or 0 when the sink does not track it.
	Write(ctx context.Context, p *Payload) (int64, error)
	Name() string
	Close() error
}

// NewPayload wraps a parse result with a fresh run id
func NewPayload(source string, result *types.ParseResult) *Payload {
	return &Payload{
		RunID:     uuid.NewString(),
		Source:    source,
		CreatedAt: time.Now().UTC(),
		Records:   result.Records,
		Malformed: result.Malformed,
	}
}

// Exporter runs a sink behind a circuit breaker with metrics and tracing
type Exporter struct {
	sink     Sink
	breakers *reliability.Breakers
	logger   *logging.Logger
	metrics  *metrics.Collector
}

// NewExporter wraps sink. breakers and collector may be nil.
func NewExporter(sink Sink, breakers *reliability.Breakers, logger *logging.Logger, collector *metrics.Collector) *Exporter {
	if logger == nil {
		logger = logging.Global()
	}
	return &Exporter{
		sink:     sink,
		breakers: breakers,
		logger:   logger.WithComponent("export"),
		metrics:  collector,
	}
}

// Export writes p to the sink
func (e *Exporter) Export(ctx context.Context, p *Payload) error {
	name := e.sink.Name()
	total := len(p.Records) + len(p.Malformed)

	ctx, span := tracing.TraceExport(ctx, name, total)
	defer span.End()

	start := time.Now()
	var written int64
	write := func() error {
		n, err := e.sink.Write(ctx, p)
		written = n
		return err
	}

	var err error
	if e.breakers != nil {
		err = e.breakers.Execute(ctx, name, write)
	} else {
		err = write()
	}

	if e.metrics != nil {
		e.metrics.ExportDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		tracing.RecordError(ctx, err)
		if e.metrics != nil {
			e.metrics.ExportFailures.WithLabelValues(name).Inc()
		}
		e.logger.Error().
			Err(err).
			Str("sink", name).
			Str("run_id", p.RunID).
			Msg("Export failed")
		return fmt.Errorf("export to %s failed: %w", name, err)
	}

	if e.metrics != nil {
		e.metrics.ExportRecords.WithLabelValues(name, KindRecord).Add(float64(len(p.Records)))
		e.metrics.ExportRecords.WithLabelValues(name, KindMalformed).Add(float64(len(p.Malformed)))
		if written > 0 {
			e.metrics.ExportBytes.WithLabelValues(name).Add(float64(written))
		}
	}

	e.logger.Info().
		Str("sink", name).
		Str("run_id", p.RunID).
		Int("records", len(p.Records)).
		Int("malformed", len(p.Malformed)).
		Int64("bytes", written).
		Dur("duration", time.Since(start)).
		Msg("Export complete")
	return nil
}

// Close closes the underlying sink
func (e *Exporter) Close() error {
	return e.sink.Close()
}

// NewSink builds the sink named by cfg.Sink. s3 may be nil unless the s3
// sink is selected.
func NewSink(cfg config.ExportConfig, s3 s3client.API) (Sink, error) {
	switch cfg.Sink {
	case "", SinkFile:
		return NewFileSink(cfg)
	case SinkS3:
		if s3 == nil {
			return nil, fmt.Errorf("s3 sink requires an S3 client")
		}
		return NewS3Sink(cfg, s3)
	case SinkKafka:
		return NewKafkaSink(cfg)
	case SinkElasticsearch:
		return NewElasticsearchSink(cfg)
	default:
		return nil, fmt.Errorf("unsupported export sink: %s", cfg.Sink)
	}
}
