package store

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jzx17/cropflow/pkg/transform"
	"github.com/jzx17/cropflow/pkg/types"
)

// MinioPutter is the part of the MinIO client MinioUploader uses
type MinioPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64,
		opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinioConfig defines configuration for MinioUploader
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	PublicURL string `mapstructure:"public_url"`
}

// NewMinioClient connects to a MinIO server with static credentials
func NewMinioClient(cfg MinioConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return client, nil
}

// MinioUploader stores blobs as MinIO objects
type MinioUploader struct {
	client MinioPutter
	config MinioConfig
}

// NewMinioUploader creates a MinioUploader
func NewMinioUploader(client MinioPutter, cfg MinioConfig) (*MinioUploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: minio bucket is required", types.ErrInvalidInput)
	}
	return &MinioUploader{client: client, config: cfg}, nil
}

// Persist implements pipeline.Persister
func (u *MinioUploader) Persist(ctx context.Context, key string, blob transform.Blob) (string, error) {
	key = joinKey(u.config.Prefix, key)
	_, err := u.client.PutObject(ctx, u.config.Bucket, key, bytes.NewReader(blob.Data), int64(len(blob.Data)),
		minio.PutObjectOptions{ContentType: contentType(blob)})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if resp := minio.ToErrorResponse(err); resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", fmt.Errorf("put %s/%s: %w", u.config.Bucket, key, err)
		}
		return "", types.Transient(fmt.Errorf("put %s/%s: %w", u.config.Bucket, key, err))
	}

	fallback := fmt.Sprintf("http://%s/%s/%s", u.config.Endpoint, u.config.Bucket, key)
	if u.config.UseSSL {
		fallback = fmt.Sprintf("https://%s/%s/%s", u.config.Endpoint, u.config.Bucket, key)
	}
	return publicURL(u.config.PublicURL, key, fallback), nil
}
