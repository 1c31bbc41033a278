package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jzx17/cropflow/pkg/types"
)

// GetObjectAPI is the part of the S3 client S3Loader uses
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Loader reads s3://bucket/key sources
type S3Loader struct {
	client   GetObjectAPI
	maxBytes int64
}

// NewS3Loader creates an S3Loader
func NewS3Loader(client GetObjectAPI) *S3Loader {
	return &S3Loader{client: client, maxBytes: DefaultMaxBytes}
}

// Load implements Loader
func (l *S3Loader) Load(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, err := splitBucketKey(uri)
	if err != nil {
		return nil, err
	}

	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		var noSuchBucket *s3types.NoSuchBucket
		if errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.Transient(fmt.Errorf("get %s: %w", uri, err))
	}
	defer func() {
		_ = out.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(out.Body, l.maxBytes+1))
	if err != nil {
		return nil, types.Transient(fmt.Errorf("read %s: %w", uri, err))
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", types.ErrInvalidInput, uri, l.maxBytes)
	}
	return data, nil
}
