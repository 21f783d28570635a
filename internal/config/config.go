package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration
type Config struct {
	Logging LoggingConfig  `yaml:"logging"`
	Parser  ParserConfig   `yaml:"parser"`
	Cache   CacheConfig    `yaml:"cache"`
	Geo     GeoConfig      `yaml:"geo"`
	Source  SourceConfig   `yaml:"source"`
	Export  ExportConfig   `yaml:"export"`
	History HistoryConfig  `yaml:"history"`
	Watcher WatcherConfig  `yaml:"watcher"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
	Health  *HealthConfig  `yaml:"health,omitempty"`
	Tracing *TracingConfig `yaml:"tracing,omitempty"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// ParserConfig controls the streaming parser
type ParserConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	BatchSize int `yaml:"batch_size"`
	// Workers > 0 switches to the parallel chunk parser
	Workers        int `yaml:"workers,omitempty"`
	WorkerChunkLen int `yaml:"worker_chunk_lines,omitempty"`
}

// CacheConfig controls the TTL cache store and where its statistics live
type CacheConfig struct {
	Capacity        int           `yaml:"capacity"`
	DefaultExpiry   time.Duration `yaml:"default_expiry"`
	CleanupInterval time.Duration `yaml:"cleanup_interval,omitempty"`
	Stats           StatsConfig   `yaml:"stats"`
}

// StatsConfig selects the statistics persistence backend
type StatsConfig struct {
	Backend  string `yaml:"backend"` // memory, file, redis
	Path     string `yaml:"path,omitempty"`
	RedisURL string `yaml:"redis_url,omitempty"`
	Key      string `yaml:"key,omitempty"`
}

// GeoConfig holds geolocation service client configuration
type GeoConfig struct {
	Enabled        bool                  `yaml:"enabled"`
	Endpoint       string                `yaml:"endpoint"`
	Timeout        time.Duration         `yaml:"timeout,omitempty"`
	RateLimit      float64               `yaml:"rate_limit,omitempty"` // requests per second, 0 = unlimited
	Retry          *RetryConfig          `yaml:"retry,omitempty"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker,omitempty"`
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier,omitempty"`
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRequests      int           `yaml:"max_requests,omitempty"`
}

// SourceConfig configures remote log sources
type SourceConfig struct {
	S3   S3SourceConfig   `yaml:"s3"`
	HTTP HTTPSourceConfig `yaml:"http"`
}

// S3SourceConfig holds S3 access settings shared by the source and the export sink
type S3SourceConfig struct {
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint,omitempty"`
	ForcePathStyle bool   `yaml:"force_path_style,omitempty"`
}

// HTTPSourceConfig points at the upload server
type HTTPSourceConfig struct {
	BaseURL string        `yaml:"base_url,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// ExportConfig defines where parsed results are written
type ExportConfig struct {
	Format      string `yaml:"format"`      // json, ndjson, csv
	Compression string `yaml:"compression"` // none, gzip, snappy
	Sink        string `yaml:"sink"`        // file, s3, kafka, elasticsearch
	Path        string `yaml:"path,omitempty"`

	S3            *S3ExportConfig            `yaml:"s3,omitempty"`
	Kafka         *KafkaExportConfig         `yaml:"kafka,omitempty"`
	Elasticsearch *ElasticsearchExportConfig `yaml:"elasticsearch,omitempty"`
}

// S3ExportConfig holds S3 sink configuration
type S3ExportConfig struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix,omitempty"`
	KeyFormat string `yaml:"key_format,omitempty"`
}

// KafkaExportConfig holds Kafka sink configuration
type KafkaExportConfig struct {
	Brokers          []string `yaml:"brokers"`
	Topic            string   `yaml:"topic"`
	MalformedTopic   string   `yaml:"malformed_topic,omitempty"`
	RequiredAcks     int16    `yaml:"required_acks,omitempty"`
	CompressionCodec string   `yaml:"compression_codec,omitempty"`
	ClientID         string   `yaml:"client_id,omitempty"`
	Version          string   `yaml:"version,omitempty"`
}

// ElasticsearchExportConfig holds Elasticsearch sink configuration
type ElasticsearchExportConfig struct {
	Addresses      []string `yaml:"addresses"`
	Username       string   `yaml:"username,omitempty"`
	Password       string   `yaml:"password,omitempty"`
	APIKey         string   `yaml:"api_key,omitempty"`
	Index          string   `yaml:"index"`
	MalformedIndex string   `yaml:"malformed_index,omitempty"`
	BulkSize       int      `yaml:"bulk_size,omitempty"`
}

// HistoryConfig points at the sqlite run history
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WatcherConfig configures the upload directory watcher
type WatcherConfig struct {
	Dir       string        `yaml:"dir"`
	Extension string        `yaml:"extension"`
	Debounce  time.Duration `yaml:"debounce,omitempty"`
	// StateDir holds the record of uploads already analyzed
	StateDir           string        `yaml:"state_dir,omitempty"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval,omitempty"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path,omitempty"`
	Pprof   bool   `yaml:"pprof,omitempty"`
}

// HealthConfig holds health check configuration
type HealthConfig struct {
	Enabled bool          `yaml:"enabled"`
	Address string        `yaml:"address"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint,omitempty"`
	SampleRate  float64 `yaml:"sample_rate,omitempty"`
	ServiceName string  `yaml:"service_name,omitempty"`
}

// Default values
const (
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	DefaultChunkSize     = 8 * 1024
	DefaultBatchSize     = 1000
	DefaultCacheCapacity = 100
	DefaultCacheExpiry   = time.Hour
	DefaultStatsKey      = "cache_statistics"
	DefaultGeoTimeout    = 10 * time.Second
	DefaultHistoryPath   = "logscope.db"
	DefaultLogExtension  = ".log"
	DefaultWatchDebounce = 500 * time.Millisecond
	DefaultStateDir      = ".logscope"
	DefaultCheckpointInt = 5 * time.Second
)

// Load loads configuration from a YAML file with environment variable overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(expandedData, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration
func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	if c.Parser.ChunkSize <= 0 {
		c.Parser.ChunkSize = DefaultChunkSize
	}
	if c.Parser.BatchSize <= 0 {
		c.Parser.BatchSize = DefaultBatchSize
	}
	if c.Parser.WorkerChunkLen <= 0 {
		c.Parser.WorkerChunkLen = DefaultBatchSize
	}

	if c.Cache.Capacity <= 0 {
		c.Cache.Capacity = DefaultCacheCapacity
	}
	if c.Cache.DefaultExpiry <= 0 {
		c.Cache.DefaultExpiry = DefaultCacheExpiry
	}
	if c.Cache.CleanupInterval <= 0 {
		c.Cache.CleanupInterval = c.Cache.DefaultExpiry
	}
	if c.Cache.Stats.Backend == "" {
		c.Cache.Stats.Backend = "memory"
	}
	if c.Cache.Stats.Key == "" {
		c.Cache.Stats.Key = DefaultStatsKey
	}

	if c.Geo.Timeout <= 0 {
		c.Geo.Timeout = DefaultGeoTimeout
	}

	if c.Export.Format == "" {
		c.Export.Format = "json"
	}
	if c.Export.Compression == "" {
		c.Export.Compression = "none"
	}
	if c.Export.Sink == "" {
		c.Export.Sink = "file"
	}

	if c.History.Path == "" {
		c.History.Path = DefaultHistoryPath
	}

	if c.Watcher.Extension == "" {
		c.Watcher.Extension = DefaultLogExtension
	}
	if c.Watcher.Debounce <= 0 {
		c.Watcher.Debounce = DefaultWatchDebounce
	}
	if c.Watcher.StateDir == "" {
		c.Watcher.StateDir = DefaultStateDir
	}
	if c.Watcher.CheckpointInterval <= 0 {
		c.Watcher.CheckpointInterval = DefaultCheckpointInt
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Parser.Workers < 0 {
		return fmt.Errorf("parser workers must not be negative: %d", c.Parser.Workers)
	}

	switch c.Cache.Stats.Backend {
	case "memory":
	case "file":
		if c.Cache.Stats.Path == "" {
			return fmt.Errorf("cache stats backend file requires a path")
		}
	case "redis":
		if c.Cache.Stats.RedisURL == "" {
			return fmt.Errorf("cache stats backend redis requires redis_url")
		}
	default:
		return fmt.Errorf("invalid cache stats backend: %s", c.Cache.Stats.Backend)
	}

	if c.Geo.Enabled && c.Geo.Endpoint == "" {
		return fmt.Errorf("geo is enabled but no endpoint is configured")
	}

	validFormats := map[string]bool{"json": true, "ndjson": true, "csv": true}
	if !validFormats[c.Export.Format] {
		return fmt.Errorf("invalid export format: %s", c.Export.Format)
	}
	validCompression := map[string]bool{"none": true, "gzip": true, "snappy": true}
	if !validCompression[c.Export.Compression] {
		return fmt.Errorf("invalid export compression: %s", c.Export.Compression)
	}

	switch c.Export.Sink {
	case "file":
	case "s3":
		if c.Export.S3 == nil || c.Export.S3.Bucket == "" {
			return fmt.Errorf("export sink s3 requires a bucket")
		}
	case "kafka":
		if c.Export.Kafka == nil || len(c.Export.Kafka.Brokers) == 0 || c.Export.Kafka.Topic == "" {
			return fmt.Errorf("export sink kafka requires brokers and a topic")
		}
	case "elasticsearch":
		if c.Export.Elasticsearch == nil || len(c.Export.Elasticsearch.Addresses) == 0 || c.Export.Elasticsearch.Index == "" {
			return fmt.Errorf("export sink elasticsearch requires addresses and an index")
		}
	default:
		return fmt.Errorf("invalid export sink: %s", c.Export.Sink)
	}

	return nil
}

// LoadOrDefault loads configuration from file or returns a default configuration
func LoadOrDefault(path string) *Config {
	if path == "" {
		return DefaultConfig()
	}
	cfg, err := Load(path)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
