package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/poiesic/voicevault/ai"
	"github.com/poiesic/voicevault/ai/openai"
	"github.com/poiesic/voicevault/blob"
	blobfs "github.com/poiesic/voicevault/blob/fs"
	"github.com/poiesic/voicevault/blob/s3"
	"github.com/poiesic/voicevault/config"
	"github.com/poiesic/voicevault/ingestion"
	"github.com/poiesic/voicevault/storage"
	"github.com/poiesic/voicevault/storage/badger"
	"github.com/poiesic/voicevault/storage/postgres"
)

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithLogger(slog.Default()))
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return store, nil
	default:
		store, err := badger.NewStore(cfg.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return store, nil
	}
}

func openBlobs(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobDriver {
	case config.BlobS3:
		store, err := s3.New(ctx, cfg.S3, s3.WithLogger(slog.Default()))
		if err != nil {
			return nil, fmt.Errorf("failed to open s3 blob store: %w", err)
		}
		return store, nil
	default:
		store, err := blobfs.New(cfg.BlobRoot, blobfs.WithLogger(slog.Default()))
		if err != nil {
			return nil, fmt.Errorf("failed to open blob store: %w", err)
		}
		return store, nil
	}
}

func newPipeline(store storage.Store, blobs blob.Store, provider ai.AIProvider, cfg *config.Config) (*ingestion.Pipeline, error) {
	opts := []ingestion.Option{
		ingestion.WithPoolSize(cfg.PoolSize),
		ingestion.WithMaxQueuedRuns(cfg.MaxQueuedRuns),
		ingestion.WithEmbedConcurrency(cfg.EmbedConcurrency),
		ingestion.WithLogger(slog.Default()),
	}
	if cfg.SkipTopics {
		opts = append(opts, ingestion.WithoutTopics())
	}
	pipeline, err := ingestion.NewPipeline(store, blobs, provider, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return pipeline, nil
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// runtime holds the stores and AI services shared by the commands.
type runtime struct {
	store    storage.Store
	blobs    blob.Store
	provider ai.AIProvider
}

func openRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	provider, err := openai.NewProvider(cfg.AI)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create AI provider: %w", err)
	}
	return &runtime{store: store, blobs: blobs, provider: provider}, nil
}

func (rt *runtime) Close() {
	if err := rt.provider.Close(); err != nil {
		slog.Warn("failed to close AI provider", "err", err)
	}
	if err := rt.store.Close(); err != nil {
		slog.Warn("failed to close store", "err", err)
	}
}
