package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/internal/logging"
	"github.com/therealutkarshpriyadarshi/logscope/internal/metrics"
	"github.com/therealutkarshpriyadarshi/logscope/internal/parser"
	"github.com/therealutkarshpriyadarshi/logscope/internal/pool"
	"github.com/therealutkarshpriyadarshi/logscope/internal/tracing"
	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

// ErrRead wraps any failure reading a chunk from the source. A parse that
// returns it has no usable result.
var ErrRead = errors.New("failed to read log chunk")

const (
	DefaultChunkSize = 8 * 1024
	DefaultBatchSize = 1000
)

// Config holds streaming parser configuration
type Config struct {
	ChunkSize int
	BatchSize int
}

// FileParser parses a whole source. StreamParser and ParallelParser implement it.
type FileParser interface {
	Parse(ctx context.Context, src Source) (*types.ParseResult, error)
}

// ProgressFunc receives the percentage of source bytes consumed, clamped to 100
type ProgressFunc func(percent float64)

// Option configures a StreamParser
type Option func(*StreamParser)

// WithProgress registers a progress callback invoked after every chunk
func WithProgress(fn ProgressFunc) Option {
	return func(s *StreamParser) { s.onProgress = fn }
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(s *StreamParser) { s.logger = logger.WithComponent("stream") }
}

// WithMetrics records parse metrics on the collector
func WithMetrics(c *metrics.Collector) Option {
	return func(s *StreamParser) { s.metrics = c }
}

// WithParser replaces the line parser
func WithParser(p parser.Parser) Option {
	return func(s *StreamParser) { s.parser = p }
}

// StreamParser reads a source in fixed-size chunks and classifies every
// line. It holds no per-parse state, so one instance may serve many
// concurrent parses.
type StreamParser struct {
	chunkSize  int
	batchSize  int
	parser     parser.Parser
	chunks     *pool.ChunkPool
	onProgress ProgressFunc
	logger     *logging.Logger
	metrics    *metrics.Collector
}

// New creates a StreamParser
func New(cfg Config, opts ...Option) *StreamParser {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	s := &StreamParser{
		chunkSize: cfg.ChunkSize,
		batchSize: cfg.BatchSize,
		parser:    parser.NewCombinedParser(),
		chunks:    pool.ForSize(cfg.ChunkSize),
		logger:    logging.Global().WithComponent("stream"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// parseRun is the state owned by one Parse call
type parseRun struct {
	s         *StreamParser
	result    *types.ParseResult
	batch     []string
	lineCount int
}

// Parse reads src to the end. Records and malformed entries come back in
// file order; malformed line numbers are absolute within src.
func (s *StreamParser) Parse(ctx context.Context, src Source) (*types.ParseResult, error) {
	start := time.Now()
	ctx, span := tracing.TraceParse(ctx, src.Name(), src.Size())
	defer span.End()

	result, err := s.parse(ctx, src)

	if s.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failed"
		}
		s.metrics.ParserRuns.WithLabelValues("stream", outcome).Inc()
		s.metrics.ParserDuration.WithLabelValues("stream").Observe(time.Since(start).Seconds())
	}

	if err != nil {
		tracing.RecordError(ctx, err)
		s.logger.Error().Err(err).Str("source", src.Name()).Msg("Parse aborted")
		return nil, err
	}

	s.observe(src, result)
	s.logger.Debug().
		Str("source", src.Name()).
		Int("lines", result.Lines).
		Int("valid", len(result.Records)).
		Int("format_errors", result.FormatErrors()).
		Int("parsing_errors", result.ParsingErrors()).
		Dur("duration", time.Since(start)).
		Msg("Parse complete")

	return result, nil
}

func (s *StreamParser) parse(ctx context.Context, src Source) (*types.ParseResult, error) {
	run := &parseRun{
		s:      s,
		result: &types.ParseResult{},
		batch:  make([]string, 0, s.batchSize),
	}

	chunk := s.chunks.Get()
	defer s.chunks.Put(chunk)

	size := src.Size()
	var offset int64
	var buffer string

	for offset < size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := src.ReadAt(chunk, offset)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w at offset %d of %s: %v", ErrRead, offset, src.Name(), err)
		}
		if n == 0 {
			return nil, fmt.Errorf("%w at offset %d of %s: unexpected end of source", ErrRead, offset, src.Name())
		}

		lines := strings.Split(buffer+string(chunk[:n]), "\n")
		buffer = lines[len(lines)-1]

		for _, line := range lines[:len(lines)-1] {
			run.batch = append(run.batch, strings.TrimSpace(line))
			if len(run.batch) >= s.batchSize {
				run.processBatch()
				if err := yield(ctx); err != nil {
					return nil, err
				}
			}
		}

		offset += int64(n)
		run.result.Bytes = offset

		if s.onProgress != nil {
			s.onProgress(progress(offset, size))
		}
	}

	if len(run.batch) > 0 {
		run.processBatch()
	}
	if buffer != "" {
		run.batch = append(run.batch, strings.TrimSpace(buffer))
		run.processBatch()
	}

	run.result.Lines = run.lineCount
	return run.result, nil
}

// processBatch parses the pending batch and advances the line counter by
// the batch length, blank lines included, so numbering stays exact
func (r *parseRun) processBatch() {
	for i, line := range r.batch {
		if line == "" {
			continue
		}
		record, err := r.s.parser.Parse(line)
		if err != nil {
			r.result.Malformed = append(r.result.Malformed, parser.Malformed(r.lineCount+i+1, line, err))
			continue
		}
		r.result.Records = append(r.result.Records, record)
	}

	r.lineCount += len(r.batch)
	r.batch = r.batch[:0]
}

// yield hands the processor to other goroutines between batches
func yield(ctx context.Context) error {
	runtime.Gosched()
	return ctx.Err()
}

func progress(done, total int64) float64 {
	if total <= 0 {
		return 100
	}
	p := float64(done) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}

func (s *StreamParser) observe(src Source, result *types.ParseResult) {
	if s.metrics == nil {
		return
	}
	s.metrics.ParserBytesRead.WithLabelValues(src.Type()).Add(float64(result.Bytes))
	s.metrics.ParserLines.WithLabelValues("stream", "valid").Add(float64(len(result.Records)))
	s.metrics.ParserLines.WithLabelValues("stream", "malformed").Add(float64(len(result.Malformed)))
	s.metrics.ParserMalformed.WithLabelValues(string(types.FormatError)).Add(float64(result.FormatErrors()))
	s.metrics.ParserMalformed.WithLabelValues(string(types.ParsingError)).Add(float64(result.ParsingErrors()))
}
