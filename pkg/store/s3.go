package store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jzx17/cropflow/pkg/transform"
	"github.com/jzx17/cropflow/pkg/types"
)

// PutObjectAPI is the part of the S3 client S3Uploader uses
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config defines configuration for S3 clients and uploads
type S3Config struct {
	Bucket         string `mapstructure:"bucket"`
	Prefix         string `mapstructure:"prefix"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
	PublicURL      string `mapstructure:"public_url"`
	CacheControl   string `mapstructure:"cache_control"`
}

// NewS3Client builds an S3 client from the default credential chain
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}), nil
}

// S3Uploader stores blobs as S3 objects
type S3Uploader struct {
	client PutObjectAPI
	config S3Config
}

// NewS3Uploader creates an S3Uploader
func NewS3Uploader(client PutObjectAPI, cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", types.ErrInvalidInput)
	}
	return &S3Uploader{client: client, config: cfg}, nil
}

// Persist implements pipeline.Persister. Upload failures are transient.
func (u *S3Uploader) Persist(ctx context.Context, key string, blob transform.Blob) (string, error) {
	key = joinKey(u.config.Prefix, key)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(u.config.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(blob.Data),
		ContentType:   aws.String(contentType(blob)),
		ContentLength: aws.Int64(int64(len(blob.Data))),
	}
	if u.config.CacheControl != "" {
		input.CacheControl = aws.String(u.config.CacheControl)
	}

	if _, err := u.client.PutObject(ctx, input); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", types.Transient(fmt.Errorf("put s3://%s/%s: %w", u.config.Bucket, key, err))
	}
	return publicURL(u.config.PublicURL, key, fmt.Sprintf("s3://%s/%s", u.config.Bucket, key)), nil
}
