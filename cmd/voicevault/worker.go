package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/poiesic/voicevault/config"
	"github.com/poiesic/voicevault/queue"
	"github.com/urfave/cli/v2"
)

func workerCommand(c *cli.Context) error {
	cfg := config.FromContext(c)
	if err := cfg.ValidateService(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	pipeline, err := newPipeline(rt.store, rt.blobs, rt.provider, cfg)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	worker, err := queue.NewWorker(pipeline, slog.Default())
	if err != nil {
		return err
	}
	mux := asynq.NewServeMux()
	worker.Register(mux)

	server := queue.NewServer(redisOpt(cfg), queue.ServerConfig{
		Concurrency: cfg.QueueConcurrency,
		Queue:       cfg.QueueName,
		Logger:      slog.Default(),
	})
	if err := server.Start(mux); err != nil {
		return err
	}
	slog.Info("worker started", "queue", cfg.QueueName, "concurrency", cfg.QueueConcurrency)

	<-ctx.Done()
	slog.Info("worker stopping")
	server.Shutdown()
	return nil
}
