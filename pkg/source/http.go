package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jzx17/cropflow/pkg/types"
)

// DefaultMaxBytes caps the size of a downloaded source
const DefaultMaxBytes = 32 << 20

// HTTPLoaderConfig defines configuration for HTTPLoader
type HTTPLoaderConfig struct {
	// Client defaults to a client with Timeout
	Client *http.Client

	// Timeout of the default client
	Timeout time.Duration

	// MaxBytes rejects larger bodies
	MaxBytes int64

	// UserAgent is sent with every request
	UserAgent string
}

// DefaultHTTPLoaderConfig returns default configuration
func DefaultHTTPLoaderConfig() *HTTPLoaderConfig {
	return &HTTPLoaderConfig{
		Timeout:   30 * time.Second,
		MaxBytes:  DefaultMaxBytes,
		UserAgent: "cropflow",
	}
}

// HTTPLoader downloads sources over HTTP(S). Server errors, 429 and transport
// failures are reported as transient so the pipeline can retry them.
type HTTPLoader struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// NewHTTPLoader creates an HTTPLoader; nil config uses defaults
func NewHTTPLoader(config *HTTPLoaderConfig) *HTTPLoader {
	if config == nil {
		config = DefaultHTTPLoaderConfig()
	}
	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	maxBytes := config.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &HTTPLoader{client: client, maxBytes: maxBytes, userAgent: config.UserAgent}
}

// Load implements Loader
func (l *HTTPLoader) Load(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidInput, err)
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.Transient(fmt.Errorf("get %s: %w", uri, err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &types.RetryableError{
			Err:        fmt.Errorf("get %s: %s", uri, resp.Status),
			Retryable:  true,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("get %s: %s", uri, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return nil, types.Transient(fmt.Errorf("read %s: %w", uri, err))
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", types.ErrInvalidInput, uri, l.maxBytes)
	}
	return data, nil
}

// retryAfter parses the delay-seconds form of Retry-After
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
