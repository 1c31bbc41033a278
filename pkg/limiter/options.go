package limiter

import (
	"log/slog"

	"golang.org/x/time/rate"
)

// Option configures a RunBounded call
type Option func(*runConfig)

type runConfig struct {
	logger   *slog.Logger
	name     string
	limiter  *rate.Limiter
	onSettle func(index int, ok bool)
}

func newRunConfig(opts []Option) *runConfig {
	cfg := &runConfig{
		name: "batch",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return cfg
}

// WithLogger sets the logger failures are reported to
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *runConfig) {
		cfg.logger = logger
	}
}

// WithName labels log records with a stage name
func WithName(name string) Option {
	return func(cfg *runConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

// WithRateLimit throttles how fast new operations start.
// opsPerSecond and burst must both be positive, otherwise no limit is applied.
//
// Example:
//
//	WithRateLimit(10, 5) // at most 10 starts/sec with bursts of 5
func WithRateLimit(opsPerSecond float64, burst int) Option {
	return func(cfg *runConfig) {
		if opsPerSecond > 0 && burst > 0 {
			cfg.limiter = rate.NewLimiter(rate.Limit(opsPerSecond), burst)
		}
	}
}

// WithOnSettle registers a callback run after each operation settles.
// It may be called concurrently.
func WithOnSettle(fn func(index int, ok bool)) Option {
	return func(cfg *runConfig) {
		cfg.onSettle = fn
	}
}
