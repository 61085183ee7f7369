package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/poiesic/voicevault/core"
)

// Enqueuer is the part of *asynq.Client a Dispatcher uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

var _ Enqueuer = (*asynq.Client)(nil)

// Dispatcher enqueues pipeline runs for worker processes.
type Dispatcher struct {
	client   Enqueuer
	queue    string
	maxRetry int
	timeout  time.Duration
	logger   *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher) error

// WithQueue sets the asynq queue name. Default is DefaultQueue.
func WithQueue(name string) DispatcherOption {
	return func(d *Dispatcher) error {
		if name == "" {
			return fmt.Errorf("queue name must not be empty")
		}
		d.queue = name
		return nil
	}
}

// WithMaxRetry sets how often asynq redelivers a task whose handler hit an
// infrastructure error. Failed runs are never redelivered. Default is 3.
func WithMaxRetry(n int) DispatcherOption {
	return func(d *Dispatcher) error {
		if n < 0 {
			return fmt.Errorf("max retry must be >= 0, got %d", n)
		}
		d.maxRetry = n
		return nil
	}
}

// WithTaskTimeout bounds a single run. Default is 30 minutes.
func WithTaskTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) error {
		if timeout <= 0 {
			return fmt.Errorf("task timeout must be positive, got %s", timeout)
		}
		d.timeout = timeout
		return nil
	}
}

// WithDispatcherLogger sets a custom logger.
// Default is slog.Default().
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		d.logger = logger
		return nil
	}
}

// NewDispatcher creates a Dispatcher that enqueues through client.
func NewDispatcher(client Enqueuer, opts ...DispatcherOption) (*Dispatcher, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	d := &Dispatcher{
		client:   client,
		queue:    DefaultQueue,
		maxRetry: 3,
		timeout:  30 * time.Minute,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	d.logger = d.logger.With("component", "queue-dispatcher")
	return d, nil
}

// Dispatch enqueues a run of postID. The post is moved to processing by
// the worker that picks the task up.
func (d *Dispatcher) Dispatch(ctx context.Context, postID core.ID) error {
	task, err := NewProcessPostTask(postID)
	if err != nil {
		return err
	}
	info, err := d.client.EnqueueContext(ctx, task,
		asynq.Queue(d.queue),
		asynq.MaxRetry(d.maxRetry),
		asynq.Timeout(d.timeout))
	if err != nil {
		return fmt.Errorf("enqueue post %d: %w", postID, err)
	}
	tasksEnqueued.Inc()
	d.logger.Debug("task enqueued", "post_id", postID, "task_id", info.ID, "queue", info.Queue)
	return nil
}
