package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/poiesic/voicevault"
	"github.com/poiesic/voicevault/api"
	"github.com/poiesic/voicevault/config"
	"github.com/poiesic/voicevault/queue"
	"github.com/poiesic/voicevault/search"
	"github.com/poiesic/voicevault/storage"
	"github.com/urfave/cli/v2"
)

func serveCommand(c *cli.Context) error {
	cfg := config.FromContext(c)
	if err := cfg.ValidateService(); err != nil {
		return err
	}
	if err := cfg.ValidateAuth(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	var dispatcher voicevault.Dispatcher
	switch cfg.Dispatch {
	case config.DispatchQueue:
		client := asynq.NewClient(redisOpt(cfg))
		defer client.Close()
		dispatcher, err = queue.NewDispatcher(client,
			queue.WithQueue(cfg.QueueName),
			queue.WithDispatcherLogger(slog.Default()))
		if err != nil {
			return err
		}
	default:
		pipeline, err := newPipeline(rt.store, rt.blobs, rt.provider, cfg)
		if err != nil {
			return err
		}
		defer pipeline.Release()
		dispatcher = voicevault.LocalDispatcher(pipeline)
	}

	archive, err := voicevault.New(rt.store, rt.blobs, dispatcher,
		voicevault.WithLogger(slog.Default()),
		voicevault.WithEmbedder(rt.provider.Embedder()),
		voicevault.WithMaxUploadBytes(cfg.MaxUploadBytes),
		voicevault.WithWholeFileLimit(cfg.AI.MaxRequestBytes),
		voicevault.WithSearchOptions(search.WithQueryCache(cfg.QueryCacheSize, cfg.QueryCacheTTL)),
	)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	auth, err := api.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return err
	}
	router := api.NewRouter(api.RouterConfig{
		Handler:       api.NewHandler(archive, cfg.MaxUploadBytes, slog.Default()),
		Authenticator: auth,
		Logger:        slog.Default(),
		Health:        storeHealth(rt.store),
	})

	slog.Info("starting voicevault",
		"addr", cfg.HTTPAddr,
		"storage", cfg.StorageDriver,
		"blob", cfg.BlobDriver,
		"dispatch", cfg.Dispatch)
	return api.NewServer(cfg.HTTPAddr, router, cfg.ShutdownTimeout, slog.Default()).Run(ctx)
}

// storeHealth reports the store unhealthy when a trivial read fails.
func storeHealth(store storage.PostRepository) api.HealthCheck {
	return func(r *http.Request) error {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		_, _, err := store.ListPostsByUser(ctx, 1, 0, 1)
		return err
	}
}
