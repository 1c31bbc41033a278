// Package config loads the cropbatch configuration and job manifest from a
// YAML file with CROPFLOW_ environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jzx17/cropflow/internal/logging"
	"github.com/jzx17/cropflow/pkg/pipeline"
	"github.com/jzx17/cropflow/pkg/retry"
	"github.com/jzx17/cropflow/pkg/source"
	"github.com/jzx17/cropflow/pkg/store"
	"github.com/jzx17/cropflow/pkg/transform"
	"github.com/jzx17/cropflow/pkg/types"
	"github.com/jzx17/cropflow/pkg/worker"
)

// EnvPrefix prefixes environment overrides, e.g. CROPFLOW_POOL_SIZE
const EnvPrefix = "CROPFLOW"

// Store kinds
const (
	StoreFS    = "fs"
	StoreS3    = "s3"
	StoreMinio = "minio"
)

// Config is the root configuration
type Config struct {
	Logging  LoggingConfig     `mapstructure:"logging"`
	Pool     PoolConfig        `mapstructure:"pool"`
	Pipeline PipelineConfig    `mapstructure:"pipeline"`
	Source   SourceConfig      `mapstructure:"source"`
	Store    StoreConfig       `mapstructure:"store"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
	Jobs     []pipeline.Job    `mapstructure:"jobs"`
	Sprites  []pipeline.Sprite `mapstructure:"sprites"`
}

// LoggingConfig mirrors logging.Options
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	AddSource bool   `mapstructure:"add_source"`
}

// PoolConfig configures the worker pool and its renderer
type PoolConfig struct {
	Size              int           `mapstructure:"size"`
	TaskTimeout       time.Duration `mapstructure:"task_timeout"`
	RejectOnTerminate bool          `mapstructure:"reject_on_terminate"`
	PinWorkers        bool          `mapstructure:"pin_workers"`
	Format            string        `mapstructure:"format"`
	JPEGQuality       int           `mapstructure:"jpeg_quality"`
	Quality           string        `mapstructure:"quality"`
	MaxOutputSide     int           `mapstructure:"max_output_side"`
	MaxOutputPixels   int           `mapstructure:"max_output_pixels"`
}

// RetryConfig configures exponential backoff for load and persist
type RetryConfig struct {
	// MaxAttempts of 1 or less disables retries
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	Jitter       float64       `mapstructure:"jitter"`
}

// PipelineConfig configures stage limits
type PipelineConfig struct {
	LoadLimit      int         `mapstructure:"load_limit"`
	TransformLimit int         `mapstructure:"transform_limit"`
	PersistLimit   int         `mapstructure:"persist_limit"`
	LoadRate       float64     `mapstructure:"load_rate"`
	Retry          RetryConfig `mapstructure:"retry"`
}

// HTTPConfig configures the HTTP loader
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxBytes  int64         `mapstructure:"max_bytes"`
	UserAgent string        `mapstructure:"user_agent"`
}

// SourceConfig configures the loader router
type SourceConfig struct {
	// Root resolves relative file sources
	Root string `mapstructure:"root"`

	HTTP HTTPConfig `mapstructure:"http"`

	// S3 enables s3:// sources when Enabled is set; only the client fields are used
	S3 SourceS3Config `mapstructure:"s3"`
}

// SourceS3Config configures the S3 loader client
type SourceS3Config struct {
	Enabled        bool   `mapstructure:"enabled"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// FSConfig configures the filesystem exporter
type FSConfig struct {
	Root    string `mapstructure:"root"`
	BaseURL string `mapstructure:"base_url"`
}

// StoreConfig selects and configures the persister
type StoreConfig struct {
	Kind  string            `mapstructure:"kind"`
	FS    FSConfig          `mapstructure:"fs"`
	S3    store.S3Config    `mapstructure:"s3"`
	Minio store.MinioConfig `mapstructure:"minio"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	// Addr serves /metrics when set, e.g. ":9090"
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
	// Linger keeps /metrics up after the batch; negative waits for a signal
	Linger time.Duration `mapstructure:"linger"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)

	v.SetDefault("pool.size", 0)
	v.SetDefault("pool.task_timeout", worker.DefaultTaskTimeout)
	v.SetDefault("pool.reject_on_terminate", true)
	v.SetDefault("pool.pin_workers", false)
	v.SetDefault("pool.format", string(transform.FormatPNG))
	v.SetDefault("pool.jpeg_quality", 90)
	v.SetDefault("pool.quality", string(transform.QualityHigh))
	v.SetDefault("pool.max_output_side", transform.DefaultMaxSide)
	v.SetDefault("pool.max_output_pixels", transform.DefaultMaxPixels)

	v.SetDefault("pipeline.load_limit", 8)
	v.SetDefault("pipeline.transform_limit", 0)
	v.SetDefault("pipeline.persist_limit", 4)
	v.SetDefault("pipeline.load_rate", 0)
	v.SetDefault("pipeline.retry.max_attempts", 3)
	v.SetDefault("pipeline.retry.initial_delay", 200*time.Millisecond)
	v.SetDefault("pipeline.retry.max_delay", 5*time.Second)
	v.SetDefault("pipeline.retry.multiplier", 2.0)
	v.SetDefault("pipeline.retry.jitter", 0.2)

	v.SetDefault("source.root", ".")
	v.SetDefault("source.http.timeout", 30*time.Second)
	v.SetDefault("source.http.max_bytes", source.DefaultMaxBytes)
	v.SetDefault("source.http.user_agent", "cropflow")
	v.SetDefault("source.s3.enabled", false)
	v.SetDefault("source.s3.region", "")
	v.SetDefault("source.s3.endpoint", "")
	v.SetDefault("source.s3.force_path_style", false)

	v.SetDefault("store.kind", StoreFS)
	v.SetDefault("store.fs.root", "out")
	v.SetDefault("store.fs.base_url", "")
	for _, key := range []string{"bucket", "prefix", "region", "endpoint", "public_url", "cache_control"} {
		v.SetDefault("store.s3."+key, "")
	}
	v.SetDefault("store.s3.force_path_style", false)
	for _, key := range []string{"endpoint", "access_key", "secret_key", "bucket", "prefix", "public_url"} {
		v.SetDefault("store.minio."+key, "")
	}
	v.SetDefault("store.minio.use_ssl", true)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.namespace", "cropflow")
	v.SetDefault("metrics.linger", time.Duration(0))
}

// Load reads path, applies environment overrides and validates the result.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and the store selection
func (c *Config) Validate() error {
	switch {
	case c.Pool.Size < 0 || c.Pool.Size > worker.MaxWorkers:
		return fmt.Errorf("%w: pool.size must be between 0 and %d", types.ErrInvalidInput, worker.MaxWorkers)
	case c.Pool.MaxOutputSide < 0 || c.Pool.MaxOutputPixels < 0:
		return fmt.Errorf("%w: pool output limits must not be negative", types.ErrInvalidInput)
	case c.Pool.TaskTimeout < 0:
		return fmt.Errorf("%w: pool.task_timeout must not be negative", types.ErrInvalidInput)
	case c.Pipeline.LoadLimit < 0 || c.Pipeline.TransformLimit < 0 || c.Pipeline.PersistLimit < 0:
		return fmt.Errorf("%w: pipeline limits must not be negative", types.ErrInvalidInput)
	case c.Pipeline.LoadRate < 0:
		return fmt.Errorf("%w: pipeline.load_rate must not be negative", types.ErrInvalidInput)
	}

	switch transform.Format(c.Pool.Format) {
	case transform.FormatPNG, transform.FormatJPEG:
	default:
		return fmt.Errorf("%w: unknown pool.format %q", types.ErrInvalidInput, c.Pool.Format)
	}

	switch c.Store.Kind {
	case StoreFS:
		if c.Store.FS.Root == "" {
			return fmt.Errorf("%w: store.fs.root is required", types.ErrInvalidInput)
		}
	case StoreS3:
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("%w: store.s3.bucket is required", types.ErrInvalidInput)
		}
	case StoreMinio:
		if c.Store.Minio.Endpoint == "" || c.Store.Minio.Bucket == "" {
			return fmt.Errorf("%w: store.minio.endpoint and store.minio.bucket are required", types.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown store.kind %q", types.ErrInvalidInput, c.Store.Kind)
	}

	seen := make(map[string]struct{}, len(c.Jobs))
	for i, job := range c.AllJobs() {
		if job.Source == "" {
			return fmt.Errorf("%w: job %d has no source", types.ErrInvalidInput, i)
		}
		if job.ID == "" {
			continue
		}
		if _, dup := seen[job.ID]; dup {
			return fmt.Errorf("%w: duplicate job id %q", types.ErrInvalidInput, job.ID)
		}
		seen[job.ID] = struct{}{}
	}
	return nil
}

// AllJobs returns the explicit jobs followed by the expanded sprite tiles
func (c *Config) AllJobs() []pipeline.Job {
	jobs := append([]pipeline.Job(nil), c.Jobs...)
	for _, s := range c.Sprites {
		jobs = append(jobs, pipeline.SpriteJobs(s)...)
	}
	return jobs
}

// LoggingOptions converts the logging section
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		AddSource: c.Logging.AddSource,
	}
}

// WorkerConfig converts the pool section
func (c *Config) WorkerConfig(logger *slog.Logger) *worker.Config {
	config := worker.DefaultConfig()
	config.Size = c.Pool.Size
	if c.Pool.TaskTimeout > 0 {
		config.TaskTimeout = c.Pool.TaskTimeout
	}
	config.RejectOnTerminate = c.Pool.RejectOnTerminate
	config.PinWorkers = c.Pool.PinWorkers
	config.Logger = logger
	config.Renderer = transform.NewRenderer(&transform.RendererConfig{
		Format:          transform.Format(c.Pool.Format),
		JPEGQuality:     c.Pool.JPEGQuality,
		Quality:         transform.Quality(c.Pool.Quality),
		MaxOutputSide:   c.Pool.MaxOutputSide,
		MaxOutputPixels: c.Pool.MaxOutputPixels,
	})
	return config
}

// PipelineConfig converts the pipeline section
func (c *Config) PipelineConfig(logger *slog.Logger) *pipeline.Config {
	config := pipeline.DefaultConfig()
	config.LoadLimit = c.Pipeline.LoadLimit
	config.TransformLimit = c.Pipeline.TransformLimit
	config.PersistLimit = c.Pipeline.PersistLimit
	config.LoadRate = c.Pipeline.LoadRate
	config.Logger = logger
	config.Retry = c.Pipeline.Retry.Policy()
	return config
}

// Policy builds the retry policy, or nil when retries are disabled
func (r RetryConfig) Policy() retry.RetryPolicy {
	if r.MaxAttempts <= 1 {
		return nil
	}
	opts := []retry.BackoffOption{
		retry.WithPolicyOptions(retry.WithJitter(r.Jitter > 0, r.Jitter)),
	}
	if r.MaxDelay > 0 {
		opts = append(opts, retry.WithMaxDelay(r.MaxDelay))
	}
	if r.Multiplier > 0 {
		opts = append(opts, retry.WithMultiplier(r.Multiplier))
	}
	return retry.NewExponentialBackoffRetry(r.MaxAttempts, r.InitialDelay, opts...)
}

// HTTPLoaderConfig converts the HTTP source section
func (c *Config) HTTPLoaderConfig() *source.HTTPLoaderConfig {
	config := source.DefaultHTTPLoaderConfig()
	if c.Source.HTTP.Timeout > 0 {
		config.Timeout = c.Source.HTTP.Timeout
	}
	if c.Source.HTTP.MaxBytes > 0 {
		config.MaxBytes = c.Source.HTTP.MaxBytes
	}
	if c.Source.HTTP.UserAgent != "" {
		config.UserAgent = c.Source.HTTP.UserAgent
	}
	return config
}

// SourceS3Client returns the client settings for the S3 loader
func (c *Config) SourceS3Client() store.S3Config {
	return store.S3Config{
		Region:         c.Source.S3.Region,
		Endpoint:       c.Source.S3.Endpoint,
		ForcePathStyle: c.Source.S3.ForcePathStyle,
	}
}
