package store

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/cropflow/internal/testutils"
	"github.com/jzx17/cropflow/pkg/transform"
	"github.com/jzx17/cropflow/pkg/types"
)

func pngBlob(t *testing.T) transform.Blob {
	return transform.Blob{Data: testutils.EncodePNG(t, testutils.Gradient(2, 2)), Width: 2, Height: 2}
}

func TestContentType(t *testing.T) {
	blob := pngBlob(t)
	assert.Equal(t, "image/png", contentType(blob))

	blob.ContentType = "image/jpeg"
	assert.Equal(t, "image/jpeg", contentType(blob))
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "a.png", joinKey("", "/a.png"))
	assert.Equal(t, "out/a.png", joinKey("out/", "a.png"))
	assert.Equal(t, "out/x/a.png", joinKey("out", "x/a.png"))
}

func TestFSExporter(t *testing.T) {
	fs := memfs.New()
	ctx := context.Background()

	url, err := NewFSExporter(fs, "").Persist(ctx, "avatars/u1.png", pngBlob(t))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file://"))
	assert.True(t, strings.HasSuffix(url, "avatars/u1.png"))

	data, err := util.ReadFile(fs, "avatars/u1.png")
	require.NoError(t, err)
	assert.Equal(t, pngBlob(t).Data, data)

	url, err = NewFSExporter(fs, "https://cdn.example.com/").Persist(ctx, "top.png", pngBlob(t))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/top.png", url)
}

type fakePutObject struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutObject) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{ETag: aws.String("etag")}, nil
}

func TestS3Uploader(t *testing.T) {
	_, err := NewS3Uploader(&fakePutObject{}, S3Config{})
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	client := &fakePutObject{}
	uploader, err := NewS3Uploader(client, S3Config{Bucket: "media", Prefix: "crops", CacheControl: "max-age=60"})
	require.NoError(t, err)

	url, err := uploader.Persist(context.Background(), "u1.png", pngBlob(t))
	require.NoError(t, err)
	assert.Equal(t, "s3://media/crops/u1.png", url)
	assert.Equal(t, "media", aws.ToString(client.input.Bucket))
	assert.Equal(t, "crops/u1.png", aws.ToString(client.input.Key))
	assert.Equal(t, "image/png", aws.ToString(client.input.ContentType))
	assert.Equal(t, "max-age=60", aws.ToString(client.input.CacheControl))
	assert.Equal(t, int64(len(client.body)), aws.ToInt64(client.input.ContentLength))

	public, err := NewS3Uploader(client, S3Config{Bucket: "media", PublicURL: "https://media.example.com"})
	require.NoError(t, err)
	url, err = public.Persist(context.Background(), "u2.png", pngBlob(t))
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.com/u2.png", url)

	client.err = errors.New("503 slow down")
	_, err = uploader.Persist(context.Background(), "u3.png", pngBlob(t))
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
}

type fakeMinio struct {
	bucket, object string
	size           int64
	opts           minio.PutObjectOptions
	err            error
}

func (f *fakeMinio) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64,
	opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	f.bucket, f.object, f.size, f.opts = bucketName, objectName, objectSize, opts
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: objectSize}, nil
}

func TestMinioUploader(t *testing.T) {
	_, err := NewMinioUploader(&fakeMinio{}, MinioConfig{})
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	client := &fakeMinio{}
	uploader, err := NewMinioUploader(client, MinioConfig{Endpoint: "minio:9000", Bucket: "crops", Prefix: "batch"})
	require.NoError(t, err)

	blob := pngBlob(t)
	url, err := uploader.Persist(context.Background(), "a.png", blob)
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/crops/batch/a.png", url)
	assert.Equal(t, "crops", client.bucket)
	assert.Equal(t, "batch/a.png", client.object)
	assert.Equal(t, int64(len(blob.Data)), client.size)
	assert.Equal(t, "image/png", client.opts.ContentType)

	client.err = minio.ErrorResponse{StatusCode: http.StatusForbidden, Code: "AccessDenied"}
	_, err = uploader.Persist(context.Background(), "b.png", blob)
	require.Error(t, err)
	assert.False(t, types.IsRetryable(err))

	client.err = minio.ErrorResponse{StatusCode: http.StatusServiceUnavailable, Code: "SlowDown"}
	_, err = uploader.Persist(context.Background(), "c.png", blob)
	assert.True(t, types.IsRetryable(err))
}

func TestNewMinioClient(t *testing.T) {
	client, err := NewMinioClient(MinioConfig{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", client.EndpointURL().Host)
}
