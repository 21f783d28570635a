package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/therealutkarshpriyadarshi/logscope/internal/config"
)

// Counters are the aggregate statistics that outlive the process.
// LastCleanup is Unix milliseconds.
type Counters struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	TotalRequests int64 `json:"totalRequests"`
	LastCleanup   int64 `json:"lastCleanup"`
}

// StatsBackend persists Counters. Load returns nil, nil when nothing has
// been saved yet.
type StatsBackend interface {
	Load(ctx context.Context) (*Counters, error)
	Save(ctx context.Context, c Counters) error
	Close() error
}

// NewStatsBackend builds the backend named in cfg
func NewStatsBackend(cfg config.StatsConfig) (StatsBackend, error) {
	key := cfg.Key
	if key == "" {
		key = config.DefaultStatsKey
	}

	switch cfg.Backend {
	case "", "memory":
		return NewMemoryBackend(), nil
	case "file":
		if cfg.Path == "" {
			return nil, errors.New("file stats backend requires a path")
		}
		return NewFileBackend(cfg.Path), nil
	case "redis":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		return NewRedisBackend(redis.NewClient(opt), key), nil
	default:
		return nil, fmt.Errorf("unknown stats backend: %s", cfg.Backend)
	}
}

// MemoryBackend keeps counters in process memory
type MemoryBackend struct {
	mu    sync.Mutex
	saved *Counters
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Load returns the last saved counters
func (m *MemoryBackend) Load(ctx context.Context) (*Counters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return nil, nil
	}
	c := *m.saved
	return &c, nil
}

// Save records c
func (m *MemoryBackend) Save(ctx context.Context, c Counters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = &c
	return nil
}

// Close is a no-op
func (m *MemoryBackend) Close() error { return nil }

// FileBackend stores counters as a JSON document on disk
type FileBackend struct {
	path string
}

// NewFileBackend creates a backend writing to path
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load reads the counters file. A missing file is not an error.
func (f *FileBackend) Load(ctx context.Context) (*Counters, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read stats file: %w", err)
	}

	var c Counters
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	return &c, nil
}

// Save writes to a temporary file and renames it over the old one
func (f *FileBackend) Save(ctx context.Context, c Counters) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create stats directory: %w", err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write stats file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to rename stats file: %w", err)
	}
	return nil
}

// Close is a no-op
func (f *FileBackend) Close() error { return nil }

// RedisBackend stores counters as a JSON string under one key, so several
// processes can share warm statistics
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend creates a backend on an existing client
func NewRedisBackend(client *redis.Client, key string) *RedisBackend {
	return &RedisBackend{client: client, key: key}
}

// Load fetches the counters
func (r *RedisBackend) Load(ctx context.Context) (*Counters, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read stats from redis: %w", err)
	}

	var c Counters
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	return &c, nil
}

// Save overwrites the counters
func (r *RedisBackend) Save(ctx context.Context, c Counters) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write stats to redis: %w", err)
	}
	return nil
}

// Ping checks the connection. Health checks use it.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
