package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// FileLoader reads sources from a billy filesystem
type FileLoader struct {
	fs billy.Filesystem
}

// NewFileLoader creates a loader over fs
func NewFileLoader(fs billy.Filesystem) *FileLoader {
	return &FileLoader{fs: fs}
}

// NewOSFileLoader creates a loader rooted at dir on the local disk
func NewOSFileLoader(dir string) *FileLoader {
	return &FileLoader{fs: osfs.New(dir)}
}

// Load reads uri, with or without a file:// prefix, relative to the filesystem root
func (l *FileLoader) Load(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimPrefix(uri, "file://")
	data, err := util.ReadFile(l.fs, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}
