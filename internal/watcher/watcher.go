// Package watcher reports log files appearing in an upload directory.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/therealutkarshpriyadarshi/logscope/internal/config"
	"github.com/therealutkarshpriyadarshi/logscope/internal/logging"
	"github.com/therealutkarshpriyadarshi/logscope/internal/metrics"
)

// Op is what happened to a file
type Op string

const (
	OpCreated Op = "created"
	OpWritten Op = "written"
	OpRemoved Op = "removed"
)

// Event is a settled change to one file
type Event struct {
	Path    string
	Op      Op
	Size    int64
	ModTime time.Time
	Time    time.Time
}

// Watcher watches one directory. Create and write notifications for the
// same file are coalesced until the file has been quiet for the debounce
// period, so an upload still in progress yields a single event.
type Watcher struct {
	dir       string
	extension string
	debounce  time.Duration
	logger    *logging.Logger
	metrics   *metrics.Collector
	watcher   *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*pendingFile
	closed  bool

	eventCh chan Event
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type pendingFile struct {
	timer   *time.Timer
	created bool
}

// New creates a watcher for cfg.Dir. collector may be nil.
func New(cfg config.WatcherConfig, logger *logging.Logger, collector *metrics.Collector) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("no directory specified")
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cfg.Dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if logger == nil {
		logger = logging.Global()
	}
	ext := cfg.Extension
	if ext == "" {
		ext = config.DefaultLogExtension
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = config.DefaultWatchDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		dir:       cfg.Dir,
		extension: ext,
		debounce:  debounce,
		logger:    logger.WithComponent("watcher"),
		metrics:   collector,
		watcher:   fw,
		pending:   make(map[string]*pendingFile),
		eventCh:   make(chan Event, 100),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start begins watching the directory
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.wg.Add(1)
	go w.watchLoop()

	w.logger.Info().
		Str("dir", w.dir).
		Str("extension", w.extension).
		Dur("debounce", w.debounce).
		Msg("Watching upload directory")
	return nil
}

// Stop stops watching and closes the events channel. Pending events are
// dropped.
func (w *Watcher) Stop() {
	w.cancel()
	w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	close(w.eventCh)
}

// Events returns the channel of settled file events
func (w *Watcher) Events() <-chan Event {
	return w.eventCh
}

// Matches reports whether path has the watched extension
func (w *Watcher) Matches(path string) bool {
	return strings.EqualFold(filepath.Ext(path), w.extension)
}

// Existing lists files already in the directory with the watched extension
func (w *Watcher) Existing() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if w.Matches(path) {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("File watcher error")

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	if !w.Matches(path) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		w.logger.Debug().Str("path", path).Msg("File created")
		w.schedule(path, true)

	case event.Has(fsnotify.Write):
		w.logger.Debug().Str("path", path).Msg("File write event")
		w.schedule(path, false)

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.logger.Info().Str("path", path).Msg("File removed")
		w.cancelPending(path)
		w.emit(Event{Path: path, Op: OpRemoved, Time: time.Now()})
	}
}

// schedule restarts the quiet-period timer for path
func (w *Watcher) schedule(path string, created bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if p, ok := w.pending[path]; ok {
		p.created = p.created || created
		p.timer.Reset(w.debounce)
		return
	}

	p := &pendingFile{created: created}
	p.timer = time.AfterFunc(w.debounce, func() { w.settle(path) })
	w.pending[path] = p
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) settle(path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	if ok {
		delete(w.pending, path)
	}
	w.mu.Unlock()
	if !ok {
		return
	}

	op := OpWritten
	if p.created {
		op = OpCreated
	}

	info, err := os.Stat(path)
	if err != nil {
		// removed before it settled
		return
	}

	w.emit(Event{Path: path, Op: op, Size: info.Size(), ModTime: info.ModTime(), Time: time.Now()})
}

func (w *Watcher) emit(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if w.metrics != nil {
		w.metrics.WatcherEvents.WithLabelValues(string(ev.Op)).Inc()
	}

	select {
	case w.eventCh <- ev:
	case <-w.ctx.Done():
	default:
		w.logger.Warn().Str("path", ev.Path).Msg("Event channel full, dropping event")
	}
}
