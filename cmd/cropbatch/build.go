package main

import (
	"context"
	"fmt"

	"github.com/jzx17/cropflow/internal/config"
	"github.com/jzx17/cropflow/pkg/pipeline"
	"github.com/jzx17/cropflow/pkg/source"
	"github.com/jzx17/cropflow/pkg/store"
)

// buildLoader routes file, http(s) and, when enabled, s3 sources
func buildLoader(ctx context.Context, cfg *config.Config) (pipeline.Loader, error) {
	router := source.NewRouter().
		Handle(source.NewOSFileLoader(cfg.Source.Root), "file").
		Handle(source.NewHTTPLoader(cfg.HTTPLoaderConfig()), "http", "https")

	if cfg.Source.S3.Enabled {
		client, err := store.NewS3Client(ctx, cfg.SourceS3Client())
		if err != nil {
			return nil, err
		}
		router.Handle(source.NewS3Loader(client), "s3")
	}
	return router, nil
}

// buildPersister returns the exporter selected by store.kind
func buildPersister(ctx context.Context, cfg *config.Config) (pipeline.Persister, error) {
	switch cfg.Store.Kind {
	case config.StoreFS:
		return store.NewOSExporter(cfg.Store.FS.Root, cfg.Store.FS.BaseURL), nil
	case config.StoreS3:
		client, err := store.NewS3Client(ctx, cfg.Store.S3)
		if err != nil {
			return nil, err
		}
		return store.NewS3Uploader(client, cfg.Store.S3)
	case config.StoreMinio:
		client, err := store.NewMinioClient(cfg.Store.Minio)
		if err != nil {
			return nil, err
		}
		return store.NewMinioUploader(client, cfg.Store.Minio)
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}
}
