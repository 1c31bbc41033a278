package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/jzx17/cropflow/pkg/types"
)

// RetryPolicy defines the retry strategy interface
type RetryPolicy interface {
	// ShouldRetry determines whether to retry after the given attempt failed
	ShouldRetry(err error, attempt int) bool

	// NextDelay returns the delay before the attempt following attempt
	NextDelay(attempt int) time.Duration

	// MaxAttempts returns the maximum number of attempts
	MaxAttempts() int
}

// RetryCondition is a function that determines retry conditions
type RetryCondition func(error) bool

// BaseRetryPolicy provides common retry functionality
type BaseRetryPolicy struct {
	maxAttempts    int
	retryCondition RetryCondition
	jitter         bool
	jitterFactor   float64
}

// NewBaseRetryPolicy creates a base retry policy
func NewBaseRetryPolicy(maxAttempts int, opts ...PolicyOption) *BaseRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	policy := &BaseRetryPolicy{
		maxAttempts:    maxAttempts,
		retryCondition: DefaultRetryCondition,
		jitterFactor:   0.1,
	}

	for _, opt := range opts {
		opt(policy)
	}

	return policy
}

// ShouldRetry determines whether to retry
func (p *BaseRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.maxAttempts {
		return false
	}
	return p.retryCondition(err)
}

// MaxAttempts returns the maximum attempts
func (p *BaseRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// applyJitter spreads delay by ±jitterFactor
func (p *BaseRetryPolicy) applyJitter(delay time.Duration) time.Duration {
	if !p.jitter {
		return delay
	}

	jitterRange := float64(delay) * p.jitterFactor
	jitterAmount := (rand.Float64() - 0.5) * 2 * jitterRange

	result := delay + time.Duration(jitterAmount)
	if result < 0 {
		result = delay / 2
	}

	return result
}

// FixedDelayRetry waits the same delay before every retry
type FixedDelayRetry struct {
	*BaseRetryPolicy
	delay time.Duration
}

// NewFixedDelayRetry creates a fixed delay retry policy
func NewFixedDelayRetry(maxAttempts int, delay time.Duration, opts ...PolicyOption) *FixedDelayRetry {
	return &FixedDelayRetry{
		BaseRetryPolicy: NewBaseRetryPolicy(maxAttempts, opts...),
		delay:           delay,
	}
}

// NextDelay returns the delay for the next retry
func (p *FixedDelayRetry) NextDelay(attempt int) time.Duration {
	return p.applyJitter(p.delay)
}

// ExponentialBackoffRetry multiplies the delay after every failed attempt
type ExponentialBackoffRetry struct {
	*BaseRetryPolicy
	initialDelay time.Duration
	multiplier   float64
	maxDelay     time.Duration
}

// NewExponentialBackoffRetry creates an exponential backoff retry policy
func NewExponentialBackoffRetry(maxAttempts int, initialDelay time.Duration, opts ...BackoffOption) *ExponentialBackoffRetry {
	policy := &ExponentialBackoffRetry{
		BaseRetryPolicy: NewBaseRetryPolicy(maxAttempts),
		initialDelay:    initialDelay,
		multiplier:      2.0,
		maxDelay:        30 * time.Second,
	}

	for _, opt := range opts {
		opt(policy)
	}

	return policy
}

// NextDelay returns the delay for the next retry
func (p *ExponentialBackoffRetry) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(p.initialDelay) * math.Pow(p.multiplier, float64(attempt-1)))
	if delay > p.maxDelay || delay < 0 {
		delay = p.maxDelay
	}
	return p.applyJitter(delay)
}

// PolicyOption is a configuration option for retry policies
type PolicyOption func(*BaseRetryPolicy)

// WithRetryCondition sets the retry condition
func WithRetryCondition(condition RetryCondition) PolicyOption {
	return func(p *BaseRetryPolicy) {
		p.retryCondition = condition
	}
}

// WithJitter enables jitter
func WithJitter(enabled bool, factor float64) PolicyOption {
	return func(p *BaseRetryPolicy) {
		p.jitter = enabled
		if factor > 0 && factor <= 1.0 {
			p.jitterFactor = factor
		}
	}
}

// BackoffOption is a configuration option for exponential backoff
type BackoffOption func(*ExponentialBackoffRetry)

// WithMultiplier sets the growth factor; values <= 1 are ignored
func WithMultiplier(multiplier float64) BackoffOption {
	return func(p *ExponentialBackoffRetry) {
		if multiplier > 1 {
			p.multiplier = multiplier
		}
	}
}

// WithMaxDelay caps the delay
func WithMaxDelay(maxDelay time.Duration) BackoffOption {
	return func(p *ExponentialBackoffRetry) {
		if maxDelay > 0 {
			p.maxDelay = maxDelay
		}
	}
}

// WithPolicyOptions applies base policy options to a backoff policy
func WithPolicyOptions(opts ...PolicyOption) BackoffOption {
	return func(p *ExponentialBackoffRetry) {
		for _, opt := range opts {
			opt(p.BaseRetryPolicy)
		}
	}
}

// DefaultRetryCondition retries errors marked transient and network timeouts
func DefaultRetryCondition(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if types.IsRetryable(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Always retries every non-nil error except context cancellation
func Always(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
