// Package logging configures the process-wide slog logger and carries batch
// identifiers through contexts so every record of a batch can be correlated.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Service is stamped on every record
const Service = "cropflow"

// Options configures Init
type Options struct {
	// Level is one of debug, info, warn, error; empty means info
	Level string

	// Format is json or text; empty means json
	Format string

	// Output defaults to os.Stdout
	Output io.Writer

	// AddSource adds a trimmed file:line attribute
	AddSource bool
}

// New builds a logger that writes to opts.Output and normalizes a few common
// fields ("ts", "severity", "file") to keep records easy to query.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	handlerOpts := &slog.HandlerOptions{
		Level:       ParseLevel(opts.Level),
		AddSource:   opts.AddSource,
		ReplaceAttr: replaceAttr,
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}
	return slog.New(&contextHandler{Handler: handler})
}

// Init installs New(opts) as the default logger and returns it
func Init(opts Options) *slog.Logger {
	logger := New(opts)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a level name to slog.Level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		a.Key = "ts"
	case slog.LevelKey:
		a.Key = "severity"
	case slog.SourceKey:
		src, ok := a.Value.Any().(*slog.Source)
		if !ok {
			return slog.Attr{}
		}
		for _, root := range []string{"/pkg/", "/internal/", "/cmd/"} {
			if i := strings.LastIndex(src.File, root); i >= 0 {
				rel := filepath.Join(strings.Trim(root, "/"), src.File[i+len(root):])
				return slog.String("file", fmt.Sprintf("%s:%d", rel, src.Line))
			}
		}
		return slog.Attr{}
	}
	return a
}

type contextHandler struct {
	slog.Handler
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := BatchID(ctx); id != "" {
		r.AddAttrs(slog.String("batch_id", id))
	}
	r.AddAttrs(slog.String("service", Service))

	return h.Handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name)}
}

type batchIDContextKey struct{}

// WithBatchID stores a batch identifier in the context
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchIDContextKey{}, id)
}

// BatchID returns the batch identifier stored in the context, or ""
func BatchID(ctx context.Context) string {
	id, _ := ctx.Value(batchIDContextKey{}).(string)
	return id
}
