package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/internal/logging"
	"github.com/therealutkarshpriyadarshi/logscope/internal/metrics"
)

const (
	DefaultCapacity = 100
	DefaultExpiry   = time.Hour

	persistTimeout = 2 * time.Second
)

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

// Config holds store configuration
type Config struct {
	Capacity        int
	DefaultExpiry   time.Duration
	CleanupInterval time.Duration
}

// entry is one cached value. created drives expiry, lastAccessed drives eviction.
type entry struct {
	value        interface{}
	created      time.Time
	expiry       time.Duration
	lastAccessed time.Time
	seq          uint64 // insertion order, kept across overwrites
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.created) > e.expiry
}

// Store is a bounded key/value cache with per-entry expiry.
//
// Two clocks apply to every entry: capacity eviction removes the entry with
// the oldest lastAccessed time, while expiry is measured from creation and is
// never extended by reads. Aggregate counters are written to the stats
// backend after every operation that changes them; entries are never persisted.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*entry
	counters Counters
	nextSeq  uint64

	capacity        int
	defaultExpiry   time.Duration
	cleanupInterval time.Duration

	now     Clock
	backend StatsBackend
	logger  *logging.Logger
	metrics *metrics.Collector

	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces time.Now
func WithClock(clock Clock) Option {
	return func(s *Store) { s.now = clock }
}

// WithBackend sets where counters are persisted
func WithBackend(b StatsBackend) Option {
	return func(s *Store) { s.backend = b }
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) { s.logger = logger.WithComponent("cache") }
}

// WithMetrics records cache metrics on the collector
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Store) { s.metrics = c }
}

// New creates a store and loads previously persisted counters from the
// backend. A backend that cannot be read leaves the counters at zero.
func New(cfg Config, opts ...Option) *Store {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.DefaultExpiry <= 0 {
		cfg.DefaultExpiry = DefaultExpiry
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = cfg.DefaultExpiry
	}

	s := &Store{
		entries:         make(map[string]*entry),
		capacity:        cfg.Capacity,
		defaultExpiry:   cfg.DefaultExpiry,
		cleanupInterval: cfg.CleanupInterval,
		now:             time.Now,
		backend:         NewMemoryBackend(),
		logger:          logging.Global().WithComponent("cache"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.counters.LastCleanup = s.now().UnixMilli()
	s.loadCounters()
	return s
}

// Set stores value under key. A zero expiry uses the default. When the store
// is full the least recently accessed entry is evicted first. Overwriting a
// key starts a fresh entry with a new creation time.
func (s *Store) Set(key string, value interface{}, expiry time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key, value, expiry)
}

func (s *Store) set(key string, value interface{}, expiry time.Duration) {
	if expiry <= 0 {
		expiry = s.defaultExpiry
	}

	if len(s.entries) >= s.capacity {
		s.evictOldest()
	}

	seq := s.nextSeq
	if old, ok := s.entries[key]; ok {
		seq = old.seq
	} else {
		s.nextSeq++
	}

	now := s.now()
	s.entries[key] = &entry{
		value:        value,
		created:      now,
		expiry:       expiry,
		lastAccessed: now,
		seq:          seq,
	}
	s.observeSize()
}

// Get returns the value stored under key. Missing and expired keys are
// misses; an expired entry is removed.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(key)
}

func (s *Store) get(key string) (interface{}, bool) {
	s.counters.TotalRequests++
	defer s.persist()

	e, ok := s.entries[key]
	if !ok {
		s.counters.Misses++
		s.observeRequest("miss")
		return nil, false
	}

	now := s.now()
	if e.expired(now) {
		delete(s.entries, key)
		s.counters.Misses++
		s.observeRequest("miss")
		if s.metrics != nil {
			s.metrics.CacheExpirations.WithLabelValues("lookup").Inc()
		}
		s.observeSize()
		return nil, false
	}

	e.lastAccessed = now
	s.counters.Hits++
	s.observeRequest("hit")
	return e.value, true
}

// Has reports whether key is present without touching counters or access
// time. An expired entry that has not been swept yet still counts.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Item is one element of a SetMany call
type Item struct {
	Key    string
	Value  interface{}
	Expiry time.Duration
}

// SetMany stores items in order, as repeated Set calls would
func (s *Store) SetMany(items []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.set(it.Key, it.Value, it.Expiry)
	}
}

// Lookup is one element of a GetMany result
type Lookup struct {
	Key   string
	Value interface{}
	Found bool
}

// GetMany looks up keys in order; every key counts as one request
func (s *Store) GetMany(keys []string) []Lookup {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Lookup, len(keys))
	for i, key := range keys {
		v, ok := s.get(key)
		out[i] = Lookup{Key: key, Value: v, Found: ok}
	}
	return out
}

// Cleanup removes every expired entry and returns how many were removed
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}

	s.counters.LastCleanup = now.UnixMilli()
	s.persist()

	if s.metrics != nil {
		s.metrics.CacheExpirations.WithLabelValues("sweep").Add(float64(removed))
	}
	s.observeSize()
	return removed
}

// Clear drops all entries and resets the counters
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*entry)
	s.counters = Counters{LastCleanup: s.now().UnixMilli()}
	s.persist()
	s.observeSize()
}

// Len returns the number of entries, expired or not
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// ItemStats describes one entry. Times are Unix milliseconds, Age is milliseconds.
type ItemStats struct {
	Key          string `json:"key"`
	Age          int64  `json:"age"`
	Expires      int64  `json:"expires"`
	LastAccessed int64  `json:"lastAccessed"`
}

// Stats is a point-in-time view of the store
type Stats struct {
	Counters
	Size    int         `json:"size"`
	HitRate string      `json:"hitRate"`
	Items   []ItemStats `json:"items"`
}

// Stats returns counters, size, hit rate and per-entry metadata
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st := Stats{
		Counters: s.counters,
		Size:     len(s.entries),
		HitRate:  hitRate(s.counters),
		Items:    make([]ItemStats, 0, len(s.entries)),
	}
	for key, e := range s.entries {
		st.Items = append(st.Items, ItemStats{
			Key:          key,
			Age:          now.Sub(e.created).Milliseconds(),
			Expires:      e.created.Add(e.expiry).UnixMilli(),
			LastAccessed: e.lastAccessed.UnixMilli(),
		})
	}
	return st
}

func hitRate(c Counters) string {
	if c.TotalRequests == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(c.Hits)/float64(c.TotalRequests)*100)
}

// Start runs Cleanup every cleanup interval until Stop is called. Later
// calls are no-ops.
func (s *Store) Start() {
	s.startOnce.Do(s.startCleanup)
}

func (s *Store) startCleanup() {
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	s.mu.Lock()
	s.stopCh, s.doneCh = stopCh, doneCh
	s.mu.Unlock()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if removed := s.Cleanup(); removed > 0 {
					s.logger.Info().Int("removed", removed).Msg("Cache cleanup removed expired items")
				}
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop ends the cleanup loop and closes the stats backend
func (s *Store) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		stopCh, doneCh := s.stopCh, s.doneCh
		s.mu.Unlock()

		if stopCh != nil {
			close(stopCh)
			<-doneCh
		}
	})
	return s.backend.Close()
}

// evictOldest removes the entry with the smallest lastAccessed time.
// Ties go to the earliest inserted entry.
func (s *Store) evictOldest() {
	var oldestKey string
	var oldest *entry

	for key, e := range s.entries {
		if oldest == nil || e.lastAccessed.Before(oldest.lastAccessed) ||
			(e.lastAccessed.Equal(oldest.lastAccessed) && e.seq < oldest.seq) {
			oldestKey, oldest = key, e
		}
	}

	if oldest != nil {
		delete(s.entries, oldestKey)
		if s.metrics != nil {
			s.metrics.CacheEvictions.Inc()
		}
	}
}

func (s *Store) loadCounters() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	saved, err := s.backend.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load cache stats")
		return
	}
	if saved != nil {
		s.counters = *saved
	}
}

// persist writes the counters. Failures are logged and otherwise ignored.
func (s *Store) persist() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.backend.Save(ctx, s.counters); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to save cache stats")
	}
}

func (s *Store) observeRequest(result string) {
	if s.metrics != nil {
		s.metrics.CacheRequests.WithLabelValues(result).Inc()
	}
}

func (s *Store) observeSize() {
	if s.metrics != nil {
		s.metrics.CacheSize.Set(float64(len(s.entries)))
	}
}
