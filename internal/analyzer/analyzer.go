// Package analyzer runs one log source through parsing, filtering,
// analytics, geolocation, export and run history.
package analyzer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/logscope/internal/analytics"
	"github.com/therealutkarshpriyadarshi/logscope/internal/apperr"
	"github.com/therealutkarshpriyadarshi/logscope/internal/export"
	"github.com/therealutkarshpriyadarshi/logscope/internal/geo"
	"github.com/therealutkarshpriyadarshi/logscope/internal/history"
	"github.com/therealutkarshpriyadarshi/logscope/internal/logging"
	"github.com/therealutkarshpriyadarshi/logscope/internal/parser"
	"github.com/therealutkarshpriyadarshi/logscope/internal/stream"
	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

// MalformedSampleSize caps the malformed entries carried in a Report
const MalformedSampleSize = 10

// Options selects the optional stages of a run
type Options struct {
	Filter  parser.Filter
	DDoS    analytics.DDoSConfig
	Geo     bool
	Export  bool
	History bool
}

// Report is the outcome of one analysis
type Report struct {
	history.Run
	SourceType      string                  `json:"sourceType"`
	Matched         int                     `json:"matched"`
	MalformedSample []*types.MalformedEntry `json:"malformedSample"`
	Summary         *analytics.Summary      `json:"summary"`
	DDoS            analytics.DDoSReport    `json:"ddos"`
	Countries       []types.CountryRecord   `json:"countries,omitempty"`
	GeoError        string                  `json:"geoError,omitempty"`
	Exported        bool                    `json:"exported"`
}

// Deps are the components an Analyzer drives. Only Parser is required;
// a nil stage is skipped even when Options asks for it.
type Deps struct {
	Opener   *stream.Opener
	Parser   stream.FileParser
	Locator  geo.Locator
	Exporter *export.Exporter
	History  *history.Store
	Logger   *logging.Logger
}

// Analyzer runs sources through the pipeline
type Analyzer struct {
	opener   *stream.Opener
	parser   stream.FileParser
	locator  geo.Locator
	exporter *export.Exporter
	history  *history.Store
	logger   *logging.Logger
	now      func() time.Time
}

// New creates an Analyzer
func New(d Deps) *Analyzer {
	if d.Opener == nil {
		d.Opener = &stream.Opener{}
	}
	if d.Logger == nil {
		d.Logger = logging.Global()
	}
	return &Analyzer{
		opener:   d.Opener,
		parser:   d.Parser,
		locator:  d.Locator,
		exporter: d.Exporter,
		history:  d.History,
		logger:   d.Logger.WithComponent("analyzer"),
		now:      time.Now,
	}
}

// Analyze opens location and analyzes it
func (a *Analyzer) Analyze(ctx context.Context, location string, opts Options) (*Report, error) {
	src, err := a.opener.Open(ctx, location)
	if err != nil {
		kind := apperr.File
		if isRemote(location) {
			kind = apperr.Network
		}
		return nil, apperr.Wrap(err, kind, "Could not open "+location)
	}
	defer src.Close()

	return a.AnalyzeSource(ctx, src, opts)
}

func isRemote(location string) bool {
	for _, prefix := range []string{"s3://", "http://", "https://"} {
		if strings.HasPrefix(location, prefix) {
			return true
		}
	}
	return false
}

// AnalyzeSource parses src and runs the selected stages. A geolocation
// failure degrades the report; an export failure is returned together with
// the report, after the run has been recorded.
func (a *Analyzer) AnalyzeSource(ctx context.Context, src stream.Source, opts Options) (*Report, error) {
	runID := uuid.NewString()
	logger := a.logger.WithRun(runID)
	started := a.now()

	result, err := a.parser.Parse(ctx, src)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, apperr.Wrap(err, apperr.Processing, "Failed to parse "+src.Name())
	}
	duration := a.now().Sub(started)

	run := history.FromResult(src.Name(), started, duration, result)
	run.ID = runID

	records := opts.Filter.Apply(result.Records)
	report := &Report{
		Run:             run,
		SourceType:      src.Type(),
		Matched:         len(records),
		MalformedSample: sample(result.Malformed),
		Summary:         analytics.Summarize(records),
		DDoS:            analytics.DetectDDoS(records, opts.DDoS),
	}

	if opts.Geo && a.locator != nil && len(records) > 0 {
		countries, err := a.locator.Batch(ctx, geo.IPs(records))
		if err != nil {
			logger.Warn().Err(err).Msg("Geolocation lookup failed, continuing without country data")
			report.GeoError = apperr.Format(apperr.Wrap(err, apperr.Network, "Geolocation lookup failed"), "")
		} else {
			report.Countries = countries
		}
	}

	var exportErr error
	if opts.Export && a.exporter != nil {
		payload := export.NewPayload(src.Name(), &types.ParseResult{
			Records:   records,
			Malformed: result.Malformed,
		})
		payload.RunID = runID
		if err := a.exporter.Export(ctx, payload); err != nil {
			exportErr = apperr.Wrap(err, apperr.Server, "Export failed")
		} else {
			report.Exported = true
		}
	}

	if opts.History && a.history != nil {
		if _, err := a.history.Record(ctx, run); err != nil {
			logger.Warn().Err(err).Msg("Failed to record run history")
		}
	}

	logger.Info().
		Str("source", src.Name()).
		Int("valid", run.Valid).
		Int("malformed", run.Malformed).
		Int("matched", report.Matched).
		Dur("duration", duration).
		Msg("Analysis complete")

	return report, exportErr
}

func sample(entries []*types.MalformedEntry) []*types.MalformedEntry {
	if len(entries) > MalformedSampleSize {
		return entries[:MalformedSampleSize]
	}
	return entries
}
