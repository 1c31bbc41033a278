// Package source provides pipeline loaders for local files, HTTP(S) URLs and
// S3 objects, plus a Router that picks one by URI scheme.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jzx17/cropflow/pkg/types"
)

// ErrNotFound indicates the source does not exist
var ErrNotFound = errors.New("source not found")

// Loader fetches encoded image bytes for a URI
type Loader interface {
	Load(ctx context.Context, uri string) ([]byte, error)
}

// Router dispatches to a Loader by URI scheme. URIs without a scheme use "file".
type Router struct {
	loaders map[string]Loader
}

// NewRouter creates an empty Router
func NewRouter() *Router {
	return &Router{loaders: make(map[string]Loader)}
}

// Handle registers loader for the given schemes
func (r *Router) Handle(loader Loader, schemes ...string) *Router {
	for _, s := range schemes {
		r.loaders[strings.ToLower(s)] = loader
	}
	return r
}

// Load implements Loader
func (r *Router) Load(ctx context.Context, uri string) ([]byte, error) {
	scheme := Scheme(uri)
	loader, ok := r.loaders[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: no loader for scheme %q", types.ErrInvalidInput, scheme)
	}
	return loader.Load(ctx, uri)
}

// Scheme returns the lower-cased scheme of uri, "file" when it has none
func Scheme(uri string) string {
	i := strings.Index(uri, "://")
	if i <= 0 {
		return "file"
	}
	return strings.ToLower(uri[:i])
}

// splitBucketKey parses s3://bucket/key
func splitBucketKey(uri string) (string, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", types.ErrInvalidInput, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("%w: expected s3://bucket/key, got %q", types.ErrInvalidInput, uri)
	}
	return u.Host, key, nil
}
