package store

import (
	"context"
	"fmt"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/jzx17/cropflow/pkg/transform"
)

// FSExporter writes blobs into a billy filesystem
type FSExporter struct {
	fs      billy.Filesystem
	baseURL string
}

// NewFSExporter creates an exporter over fs. Returned URLs are baseURL+key,
// or the path inside the filesystem when baseURL is empty.
func NewFSExporter(fs billy.Filesystem, baseURL string) *FSExporter {
	return &FSExporter{fs: fs, baseURL: baseURL}
}

// NewOSExporter creates an exporter rooted at dir on the local disk
func NewOSExporter(dir, baseURL string) *FSExporter {
	return NewFSExporter(osfs.New(dir), baseURL)
}

// Persist implements pipeline.Persister
func (e *FSExporter) Persist(ctx context.Context, key string, blob transform.Blob) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key = joinKey("", key)
	if dir := path.Dir(key); dir != "." {
		if err := e.fs.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	if err := util.WriteFile(e.fs, key, blob.Data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	return publicURL(e.baseURL, key, "file://"+e.fs.Join(e.fs.Root(), key)), nil
}
