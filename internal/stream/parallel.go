package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/internal/logging"
	"github.com/therealutkarshpriyadarshi/logscope/internal/metrics"
	"github.com/therealutkarshpriyadarshi/logscope/internal/parser"
	"github.com/therealutkarshpriyadarshi/logscope/internal/tracing"
	"github.com/therealutkarshpriyadarshi/logscope/internal/worker"
	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

// ParallelConfig configures the worker-pool parser
type ParallelConfig struct {
	Workers int
	// ChunkLines is both the number of raw lines per job and the multiplier
	// used to number malformed lines
	ChunkLines int
}

// ParallelParser splits a source into fixed line-count chunks and parses
// them on a worker pool.
//
// Line numbers are approximate: within a chunk, blank lines are dropped
// before indexing, so a malformed entry is numbered
// index+1+chunkIndex*ChunkLines where index counts only non-blank lines.
// Sources with blank lines drift; use StreamParser for exact numbering.
type ParallelParser struct {
	cfg     ParallelConfig
	parser  parser.Parser
	pool    *worker.WorkerPool
	logger  *logging.Logger
	metrics *metrics.Collector
}

// NewParallelParser creates and starts a parallel parser. Call Close to stop its workers.
func NewParallelParser(cfg ParallelConfig, logger *logging.Logger, collector *metrics.Collector) *ParallelParser {
	if cfg.ChunkLines <= 0 {
		cfg.ChunkLines = DefaultBatchSize
	}

	poolCfg := worker.PoolConfig{
		Name:       "parse",
		NumWorkers: cfg.Workers,
		QueueSize:  cfg.Workers * 2,
		JobTimeout: 5 * time.Minute,
	}
	if collector != nil {
		poolCfg.OnJobDone = collector.ObserveJob("parse")
	}
	if logger == nil {
		logger = logging.Global()
	}

	p := &ParallelParser{
		cfg:     cfg,
		parser:  parser.NewCombinedParser(),
		pool:    worker.NewWorkerPool(poolCfg),
		logger:  logger.WithComponent("stream"),
		metrics: collector,
	}
	p.pool.Start()
	return p
}

// chunkResult is what one job produces
type chunkResult struct {
	records   []*types.LogRecord
	malformed []*types.MalformedEntry
}

// Parse reads src line by line, fans chunks out to the pool and merges the
// results back in chunk order
func (p *ParallelParser) Parse(ctx context.Context, src Source) (*types.ParseResult, error) {
	start := time.Now()
	ctx, span := tracing.TraceParse(ctx, src.Name(), src.Size())
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reader := bufio.NewReaderSize(io.NewSectionReader(src, 0, src.Size()), DefaultChunkSize)

	var (
		results []*chunkResult
		pending []<-chan error
		lines   = make([]string, 0, p.cfg.ChunkLines)
		total   int
	)

	dispatch := func() error {
		chunkIndex := len(results)
		res := &chunkResult{}
		results = append(results, res)
		chunk := lines
		lines = make([]string, 0, p.cfg.ChunkLines)

		done, err := p.pool.Go(ctx, func(ctx context.Context) error {
			p.parseChunk(chunk, chunkIndex, res)
			return nil
		})
		if err != nil {
			return err
		}
		pending = append(pending, done)
		return nil
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			tracing.RecordError(ctx, err)
			return nil, fmt.Errorf("%w from %s: %v", ErrRead, src.Name(), err)
		}
		if line != "" || err == nil {
			lines = append(lines, strings.TrimSuffix(line, "\n"))
			total++
		}
		if len(lines) == p.cfg.ChunkLines {
			if derr := dispatch(); derr != nil {
				return nil, derr
			}
		}
		if err != nil {
			break
		}
	}
	if len(lines) > 0 {
		if err := dispatch(); err != nil {
			return nil, err
		}
	}

	for _, done := range pending {
		if err := <-done; err != nil {
			return nil, err
		}
	}

	out := &types.ParseResult{Bytes: src.Size(), Lines: total}
	for _, res := range results {
		out.Records = append(out.Records, res.records...)
		out.Malformed = append(out.Malformed, res.malformed...)
	}

	if p.metrics != nil {
		p.metrics.ParserRuns.WithLabelValues("parallel", "success").Inc()
		p.metrics.ParserDuration.WithLabelValues("parallel").Observe(time.Since(start).Seconds())
		p.metrics.ParserBytesRead.WithLabelValues(src.Type()).Add(float64(out.Bytes))
		p.metrics.ParserLines.WithLabelValues("parallel", "valid").Add(float64(len(out.Records)))
		p.metrics.ParserLines.WithLabelValues("parallel", "malformed").Add(float64(len(out.Malformed)))
	}

	p.logger.Debug().
		Str("source", src.Name()).
		Int("chunks", len(results)).
		Int("valid", len(out.Records)).
		Int("malformed", len(out.Malformed)).
		Dur("duration", time.Since(start)).
		Msg("Parallel parse complete")

	return out, nil
}

func (p *ParallelParser) parseChunk(chunk []string, chunkIndex int, res *chunkResult) {
	index := 0
	for _, raw := range chunk {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		record, err := p.parser.Parse(line)
		if err != nil {
			lineNumber := index + 1 + chunkIndex*p.cfg.ChunkLines
			res.malformed = append(res.malformed, parser.Malformed(lineNumber, line, err))
		} else {
			res.records = append(res.records, record)
		}
		index++
	}
}

// PoolMetrics reports the worker pool's job counters and queue depth
func (p *ParallelParser) PoolMetrics() worker.PoolMetrics {
	return p.pool.Metrics()
}

// Close stops the worker pool
func (p *ParallelParser) Close() error {
	err := p.pool.Stop()

	m := p.pool.Metrics()
	p.logger.Debug().
		Uint64("jobs", m.JobsProcessed).
		Uint64("failed", m.JobsFailed).
		Uint64("timeouts", m.JobsTimeout).
		Float64("success_rate", m.SuccessRate()).
		Msg("Parse pool stopped")
	return err
}
