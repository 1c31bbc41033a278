// Package store persists rendered blobs to a local filesystem, Amazon S3 or a
// MinIO server. Every backend satisfies pipeline.Persister.
package store

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jzx17/cropflow/pkg/transform"
)

// contentType prefers the renderer's declared type and sniffs otherwise
func contentType(blob transform.Blob) string {
	if blob.ContentType != "" {
		return blob.ContentType
	}
	return mimetype.Detect(blob.Data).String()
}

// joinKey prefixes key, avoiding duplicate slashes
func joinKey(prefix, key string) string {
	key = strings.TrimPrefix(key, "/")
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + key
}

// publicURL returns base+key when base is set and fallback otherwise
func publicURL(base, key, fallback string) string {
	if base == "" {
		return fallback
	}
	return strings.TrimSuffix(base, "/") + "/" + key
}
