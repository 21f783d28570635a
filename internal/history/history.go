// Package history keeps a SQLite record of analysis runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/logscope/internal/logging"
	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no run has the requested id
var ErrNotFound = errors.New("run not found")

// DefaultListLimit caps List when the caller passes a non-positive limit
const DefaultListLimit = 50

// Run is one completed analysis
type Run struct {
	ID            string        `json:"id"`
	Source        string        `json:"source"`
	StartedAt     time.Time     `json:"startedAt"`
	Duration      time.Duration `json:"duration"`
	Bytes         int64         `json:"bytes"`
	Lines         int           `json:"lines"`
	Valid         int           `json:"valid"`
	Malformed     int           `json:"malformed"`
	FormatErrors  int           `json:"formatErrors"`
	ParsingErrors int           `json:"parsingErrors"`
}

// FromResult fills a run from a parse result
func FromResult(source string, started time.Time, duration time.Duration, result *types.ParseResult) Run {
	return Run{
		Source:        source,
		StartedAt:     started,
		Duration:      duration,
		Bytes:         result.Bytes,
		Lines:         result.Lines,
		Valid:         len(result.Records),
		Malformed:     len(result.Malformed),
		FormatErrors:  result.FormatErrors(),
		ParsingErrors: result.ParsingErrors(),
	}
}

// Store persists runs in SQLite
type Store struct {
	db     *sql.DB
	logger *logging.Logger
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Global()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every pooled connection would otherwise get its own empty database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, logger: logger.WithComponent("history")}
	if err := s.configure(path); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	s.logger.Debug().Str("path", path).Msg("History database opened")
	return s, nil
}

func (s *Store) configure(path string) error {
	if path != ":memory:" {
		if _, err := s.db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			return fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := s.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		started_at INTEGER NOT NULL, -- unix milliseconds
		duration_ms INTEGER NOT NULL,
		bytes INTEGER NOT NULL DEFAULT 0,
		lines INTEGER NOT NULL DEFAULT 0,
		valid INTEGER NOT NULL DEFAULT 0,
		malformed INTEGER NOT NULL DEFAULT 0,
		format_errors INTEGER NOT NULL DEFAULT 0,
		parsing_errors INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);`

	_, err := s.db.Exec(schema)
	return err
}

// Record stores run, assigning an id when it has none
func (s *Store) Record(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, source, started_at, duration_ms, bytes, lines, valid, malformed, format_errors, parsing_errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.StartedAt.UnixMilli(), run.Duration.Milliseconds(),
		run.Bytes, run.Lines, run.Valid, run.Malformed, run.FormatErrors, run.ParsingErrors,
	)
	if err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Str("source", run.Source).
		Int("valid", run.Valid).
		Int("malformed", run.Malformed).
		Msg("Run recorded")
	return run, nil
}

const selectRun = `SELECT id, source, started_at, duration_ms, bytes, lines, valid, malformed, format_errors, parsing_errors FROM runs`

// List returns up to limit runs, newest first
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, selectRun+` ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}

// Get returns the run with id
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

// Delete removes the run with id
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.logger.Info().Str("run_id", id).Msg("Run deleted")
	return nil
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run        Run
		startedMs  int64
		durationMs int64
	)
	err := sc.Scan(&run.ID, &run.Source, &startedMs, &durationMs,
		&run.Bytes, &run.Lines, &run.Valid, &run.Malformed, &run.FormatErrors, &run.ParsingErrors)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	run.StartedAt = time.UnixMilli(startedMs).UTC()
	run.Duration = time.Duration(durationMs) * time.Millisecond
	return run, nil
}
