package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/cropflow/internal/config"
	"github.com/jzx17/cropflow/pkg/pipeline"
	"github.com/jzx17/cropflow/pkg/source"
	"github.com/jzx17/cropflow/pkg/store"
	"github.com/jzx17/cropflow/pkg/types"
)

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, pipeline.Report{
		BatchID:   "b-1",
		Attempted: 3,
		Loaded:    2,
		Succeeded: 1,
		Outputs:   []pipeline.Output{{JobID: "a", Key: "crops/a.png", Width: 4, Height: 4, Size: 120}},
		Failures: []pipeline.Failure{
			{JobID: "b", Stage: pipeline.StageTransform},
			{JobID: "c", Stage: pipeline.StageLoad},
		},
		Duration: 1500 * time.Millisecond,
	}, types.PoolStats{TimedOut: 1})

	out := buf.String()
	assert.Contains(t, out, "Batch b-1")
	assert.Contains(t, out, "crops/a.png")
	assert.Contains(t, out, "2 of 3 jobs failed")
	assert.Contains(t, out, "load: 1")
	assert.Contains(t, out, "transform: 1")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("load:")), bytes.Index(buf.Bytes(), []byte("transform:")))
}

func TestPrintReportAllSucceeded(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, pipeline.Report{BatchID: "b-2", Attempted: 1, Succeeded: 1}, types.PoolStats{})
	assert.Contains(t, buf.String(), "All jobs succeeded")
}

func TestBuildLoader(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	loader, err := buildLoader(context.Background(), cfg)
	require.NoError(t, err)

	_, err = loader.Load(context.Background(), "s3://bucket/key.png")
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = loader.Load(context.Background(), "file://definitely-missing.png")
	assert.ErrorIs(t, err, source.ErrNotFound)
}

func TestBuildPersister(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Store.FS.Root = t.TempDir()

	persister, err := buildPersister(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &store.FSExporter{}, persister)

	cfg.Store.Kind = config.StoreMinio
	cfg.Store.Minio = store.MinioConfig{Endpoint: "localhost:9000", Bucket: "crops", AccessKey: "k", SecretKey: "s"}
	persister, err = buildPersister(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &store.MinioUploader{}, persister)

	cfg.Store.Kind = "ftp"
	_, err = buildPersister(context.Background(), cfg)
	assert.Error(t, err)
}
