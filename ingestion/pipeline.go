package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/voicevault/ai"
	"github.com/poiesic/voicevault/blob"
	"github.com/poiesic/voicevault/chunker"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/retry"
	"github.com/poiesic/voicevault/storage"
)

// Store is the part of the archive store the pipeline reads and commits to.
type Store interface {
	storage.PostRepository
	storage.FileRepository
	storage.RunRepository
}

// Pipeline orchestrates transcription, chunking, embedding and commit of
// uploaded posts. Independent runs execute concurrently on a worker pool.
type Pipeline struct {
	store          Store
	blobs          blob.Store
	runPool        *ants.Pool
	embedPool      *ants.Pool
	stages         []stage
	promptTemplate string
	inflight       sync.WaitGroup
	logger         *slog.Logger

	// settings applied by options before the pools and stages are built
	poolSize      int
	embedSize     int
	maxQueued     int
	chunkerConfig chunker.Config
	retryPolicy   retry.Policy
	topics        bool
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets how many runs may execute at once.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.poolSize = size
		return nil
	}
}

// WithMaxQueuedRuns caps how many submitted runs may wait for a free
// worker. A run submitted past the cap fails and can be reprocessed.
// Default is 1024.
func WithMaxQueuedRuns(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			n = 1
		}
		p.maxQueued = n
		return nil
	}
}

// WithEmbedConcurrency sets how many chunks are embedded at once across
// all runs. Default is 8.
func WithEmbedConcurrency(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.embedSize = size
		return nil
	}
}

// WithChunkerConfig overrides the chunk caps.
func WithChunkerConfig(cfg chunker.Config) Option {
	return func(p *Pipeline) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		p.chunkerConfig = cfg
		return nil
	}
}

// WithRetryPolicy sets how transient transcription failures are retried
// within a run. Default is retry.DefaultPolicy().
func WithRetryPolicy(policy retry.Policy) Option {
	return func(p *Pipeline) error {
		if policy.MaxAttempts <= 0 {
			return retry.ErrInvalidPolicy
		}
		p.retryPolicy = policy
		return nil
	}
}

// WithPromptTemplate sets the template recorded in each post's metadata.
// Default is core.DefaultPromptTemplate.
func WithPromptTemplate(template string) Option {
	return func(p *Pipeline) error {
		if template == "" {
			return fmt.Errorf("%w: prompt template is empty", core.ErrInvalidMetadata)
		}
		p.promptTemplate = template
		return nil
	}
}

// WithoutTopics skips topic extraction.
func WithoutTopics() Option {
	return func(p *Pipeline) error {
		p.topics = false
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a pipeline that reads uploads from blobs, runs them
// through provider's services and commits results to store.
func NewPipeline(store Store, blobs blob.Store, provider ai.AIProvider, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if blobs == nil {
		return nil, ErrBlobStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if provider.Transcriber() == nil {
		return nil, ErrTranscriberRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	p := &Pipeline{
		store:          store,
		blobs:          blobs,
		promptTemplate: core.DefaultPromptTemplate,
		logger:         slog.Default(),
		poolSize:       poolSize,
		embedSize:      8,
		maxQueued:      1024,
		chunkerConfig:  chunker.DefaultConfig(),
		retryPolicy:    retry.DefaultPolicy(),
		topics:         true,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "pipeline")

	ck, err := chunker.New(p.chunkerConfig)
	if err != nil {
		return nil, err
	}

	p.runPool, err = ants.NewPool(p.poolSize, ants.WithMaxBlockingTasks(p.maxQueued))
	if err != nil {
		return nil, err
	}
	p.embedPool, err = ants.NewPool(p.embedSize)
	if err != nil {
		p.runPool.Release()
		return nil, err
	}

	p.stages = []stage{
		&transcribeStage{
			files:       store,
			blobs:       blobs,
			transcriber: provider.Transcriber(),
			policy:      p.retryPolicy,
		},
		&chunkStage{chunker: ck},
		&embeddingStage{embedder: provider.Embedder(), pool: p.embedPool},
	}
	if p.topics {
		p.stages = append(p.stages, &topicStage{extractor: provider.TopicExtractor()})
	}

	return p, nil
}

// Submit moves an uploaded post to processing and runs it in the
// background. It does not wait for a free worker. Returns storage.ErrStatusConflict if the post is not
// uploaded.
func (p *Pipeline) Submit(ctx context.Context, postID core.ID) error {
	r, err := p.begin(ctx, postID, core.StatusUploaded)
	if err != nil {
		return err
	}
	return p.dispatch(r)
}

// Reprocess reruns a failed post in the background, replacing anything a
// previous run produced. Returns storage.ErrStatusConflict if the post is
// not failed.
func (p *Pipeline) Reprocess(ctx context.Context, postID core.ID) error {
	r, err := p.begin(ctx, postID, core.StatusFailed)
	if err != nil {
		return err
	}
	return p.dispatch(r)
}

// Process runs an uploaded or failed post to completion on the calling
// goroutine and returns the committed post. Returns ErrRunDiscarded if the
// post was deleted while the run was in flight.
func (p *Pipeline) Process(ctx context.Context, postID core.ID) (*core.Post, error) {
	post, err := p.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != core.StatusUploaded && post.Status != core.StatusFailed {
		return nil, fmt.Errorf("%w: post %d is %s", storage.ErrStatusConflict, postID, post.Status)
	}
	r, err := p.begin(ctx, postID, post.Status)
	if err != nil {
		return nil, err
	}

	p.inflight.Add(1)
	defer p.inflight.Done()
	return p.execute(ctx, r)
}

// Wait blocks until every submitted run has finished.
func (p *Pipeline) Wait() {
	p.inflight.Wait()
}

// Release waits for in-flight runs and releases the worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	p.Wait()
	if p.runPool != nil {
		p.runPool.Release()
	}
	if p.embedPool != nil {
		p.embedPool.Release()
	}
}

// begin persists from -> processing under a fresh run id.
func (p *Pipeline) begin(ctx context.Context, postID core.ID, from core.Status) (*run, error) {
	runID := newRunID()
	post, err := p.store.TransitionStatus(ctx, postID, from, core.StatusProcessing, func(post *core.Post) {
		post.LastRunID = runID
		post.FailureReason = ""
	})
	if err != nil {
		return nil, err
	}
	return newRun(runID, post, p.logger), nil
}

// dispatch hands r to the run pool without blocking the caller. A run the
// pool refuses is marked failed.
func (p *Pipeline) dispatch(r *run) error {
	p.inflight.Add(1)
	go func() {
		err := p.runPool.Submit(func() {
			defer p.inflight.Done()
			p.execute(context.Background(), r)
		})
		if err != nil {
			defer p.inflight.Done()
			p.fail(context.Background(), r, "dispatch", err)
		}
	}()
	return nil
}

// execute runs every stage and commits the result.
func (p *Pipeline) execute(ctx context.Context, r *run) (*core.Post, error) {
	r.logger.Info("run started", "title", r.post.Title)

	failedStage, err := runStages(ctx, r, p.stages)
	if err == nil {
		var post *core.Post
		post, err = p.commit(ctx, r)
		if err == nil {
			elapsed := time.Since(r.started)
			runsTotal.WithLabelValues(outcomeReady).Inc()
			runDuration.Observe(elapsed.Seconds())
			r.logger.Info("run complete",
				"segments", len(r.segments),
				"chunks", len(r.chunks),
				"embedded", r.embedded,
				"elapsed", elapsed)
			return post, nil
		}
		failedStage = "commit"
	}

	if errors.Is(err, ErrRunDiscarded) {
		runsTotal.WithLabelValues(outcomeDiscarded).Inc()
		r.logger.Info("run discarded", "reason", err)
		return nil, err
	}
	return nil, p.fail(ctx, r, failedStage, err)
}

// fail removes the run's blobs and marks the post failed.
func (p *Pipeline) fail(ctx context.Context, r *run, stageName string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	p.removeBlobs(ctx, r)

	reason := failureReason(cause)
	_, err := p.store.TransitionStatus(ctx, r.post.Id, core.StatusProcessing, core.StatusFailed, func(post *core.Post) {
		post.FailureReason = reason
	})
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrStatusConflict):
		r.logger.Debug("post no longer processing, failure not recorded", "error", err)
	default:
		r.logger.Error("failed to mark post failed", "error", err)
	}

	runsTotal.WithLabelValues(outcomeFailed).Inc()
	r.logger.Error("run failed", "stage", stageName, "retryable", core.IsRetryable(cause), "error", cause)
	return fmt.Errorf("%w: %s: %w", ErrRunFailed, stageName, cause)
}

func (p *Pipeline) removeBlobs(ctx context.Context, r *run) {
	for _, key := range r.written {
		if err := p.blobs.Delete(ctx, key); err != nil {
			r.logger.Error("failed to remove run blob", "key", key, "error", err)
		}
	}
	r.written = nil
}

// failureReason returns the owner-facing explanation for a failed run.
// Internal details stay in the logs.
func failureReason(err error) string {
	switch {
	case errors.Is(err, core.ErrTranscription):
		return "transcription failed"
	case errors.Is(err, core.ErrIntegrityMismatch):
		return "stored recording failed its integrity check"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "processing was interrupted"
	default:
		return "processing failed"
	}
}
