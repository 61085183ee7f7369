package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/ingestion"
	"github.com/poiesic/voicevault/storage"
)

// Processor runs one post to completion. *ingestion.Pipeline implements it.
type Processor interface {
	Process(ctx context.Context, postID core.ID) (*core.Post, error)
}

var _ Processor = (*ingestion.Pipeline)(nil)

// Worker serves process-post tasks.
type Worker struct {
	processor Processor
	logger    *slog.Logger
}

// NewWorker creates a Worker that runs tasks through processor.
func NewWorker(processor Processor, logger *slog.Logger) (*Worker, error) {
	if processor == nil {
		return nil, ErrProcessorRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{processor: processor, logger: logger.With("component", "queue-worker")}, nil
}

// Register routes the worker's task types on mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeProcessPost, w.HandleProcessPost)
}

// HandleProcessPost runs the task's post. Failed runs and undecodable
// payloads are not retried; a post that is gone or no longer waiting is
// acknowledged.
func (w *Worker) HandleProcessPost(ctx context.Context, task *asynq.Task) error {
	payload, err := decodeProcessPost(task)
	if err != nil {
		tasksHandled.WithLabelValues(outcomeFailed).Inc()
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	logger := w.logger.With("post_id", payload.PostID)

	post, err := w.processor.Process(ctx, payload.PostID)
	switch {
	case err == nil:
		tasksHandled.WithLabelValues(outcomeDone).Inc()
		logger.Info("post processed", "status", post.Status)
		return nil
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrStatusConflict),
		errors.Is(err, ingestion.ErrRunDiscarded):
		tasksHandled.WithLabelValues(outcomeSkipped).Inc()
		logger.Info("task skipped", "reason", err)
		return nil
	case errors.Is(err, ingestion.ErrRunFailed):
		tasksHandled.WithLabelValues(outcomeFailed).Inc()
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		tasksHandled.WithLabelValues(outcomeRetry).Inc()
		logger.Warn("task will be retried", "error", err)
		return err
	}
}

// ServerConfig sizes a worker server.
type ServerConfig struct {
	Concurrency int
	Queue       string
	Logger      *slog.Logger
}

// NewServer creates an asynq server that consumes the pipeline queue.
func NewServer(redis asynq.RedisConnOpt, cfg ServerConfig) *asynq.Server {
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return asynq.NewServer(redis, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Queue: 1},
		Logger:      NewLogger(cfg.Logger),
		LogLevel:    asynq.InfoLevel,
	})
}
