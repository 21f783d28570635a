// Package checkpoint remembers which uploads have been analyzed so a
// restarted watcher skips files it has already seen.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/internal/logging"
)

const stateFile = "uploads.json"

// Upload is the analyzed state of one file
type Upload struct {
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"modTime"`
	RunID      string    `json:"runId"`
	AnalyzedAt time.Time `json:"analyzedAt"`
}

// Manager manages checkpoint persistence
type Manager struct {
	mu       sync.RWMutex
	dir      string
	uploads  map[string]*Upload
	interval time.Duration
	logger   *logging.Logger
	stopCh   chan struct{}
	saveCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a manager that stores its state under dir
func NewManager(dir string, interval time.Duration, logger *logging.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	if logger == nil {
		logger = logging.Global()
	}

	return &Manager{
		dir:      dir,
		uploads:  make(map[string]*Upload),
		interval: interval,
		logger:   logger.WithComponent("checkpoint"),
		stopCh:   make(chan struct{}),
		saveCh:   make(chan struct{}, 1),
	}, nil
}

// Start starts the periodic checkpoint saving
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.saveLoop()
}

// Stop stops the save loop and writes the final state
func (m *Manager) Stop() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	return m.Save()
}

// MarkAnalyzed records that path was analyzed at the given size and
// modification time
func (m *Manager) MarkAnalyzed(path string, size int64, modTime time.Time, runID string) {
	m.mu.Lock()
	m.uploads[path] = &Upload{
		Path:       path,
		Size:       size,
		ModTime:    modTime,
		RunID:      runID,
		AnalyzedAt: time.Now(),
	}
	m.mu.Unlock()

	m.requestSave()
}

// Analyzed reports whether path was analyzed with exactly this size and
// modification time
func (m *Manager) Analyzed(path string, size int64, modTime time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.uploads[path]
	return ok && u.Size == size && u.ModTime.Equal(modTime)
}

// Get returns the stored state for path
func (m *Manager) Get(path string) (Upload, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.uploads[path]
	if !ok {
		return Upload{}, false
	}
	return *u, true
}

// Forget drops path, used when the upload is deleted
func (m *Manager) Forget(path string) {
	m.mu.Lock()
	_, ok := m.uploads[path]
	delete(m.uploads, path)
	m.mu.Unlock()

	if ok {
		m.requestSave()
	}
}

// Len is the number of tracked uploads
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.uploads)
}

func (m *Manager) requestSave() {
	select {
	case m.saveCh <- struct{}{}:
	default:
	}
}

// Load loads checkpoints from disk. A missing file is not an error.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(m.dir, stateFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	uploads := make(map[string]*Upload)
	if err := json.Unmarshal(data, &uploads); err != nil {
		return fmt.Errorf("failed to unmarshal checkpoint data: %w", err)
	}

	m.uploads = uploads
	return nil
}

// Save writes the state to disk through a temporary file and a rename
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.uploads, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint data: %w", err)
	}

	file := filepath.Join(m.dir, stateFile)
	tmp := file + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmp, file); err != nil {
		return fmt.Errorf("failed to rename checkpoint file: %w", err)
	}
	return nil
}

func (m *Manager) saveLoop() {
	defer m.wg.Done()

	interval := m.interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-m.saveCh:
		case <-m.stopCh:
			return
		}
		if err := m.Save(); err != nil {
			m.logger.Error().Err(err).Msg("Failed to save checkpoint")
		}
	}
}
