// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/voicevault/ai"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/retry"
	"github.com/poiesic/voicevault/storage"
)

// ProcessorType names the backfill checkpoint.
const ProcessorType = "embedding_backfill"

// Store is the part of the archive store the backfill uses.
type Store interface {
	storage.ChunkRepository
	storage.CheckpointRepository
}

// Config holds configuration for the backfill.
type Config struct {
	// BatchSize is the number of chunks to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// Retry bounds the retries of each embedding call
	Retry retry.Policy
}

// DefaultConfig returns a Config with sensible defaults.
// Every embedding failure is retried since a batch is all or nothing.
func DefaultConfig() *Config {
	policy := retry.DefaultPolicy()
	policy.BaseDelay = time.Second
	policy.ShouldRetry = retry.Always
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: DefaultBatchSize,
		Retry:          policy,
	}
}

// Reembedder attaches embeddings to every chunk stored without one.
type Reembedder struct {
	store     Store
	embedder  ai.Embedder
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *ChunkIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(store Store, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		store:     store,
		embedder:  embedder,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(store, embedder, config.Retry),
		iterator:  NewChunkIterator(store, config.BatchSize),
		logger:    slog.Default().With("component", "reembed"),
	}, nil
}

// Run executes one backfill pass and returns the number of chunks that
// received an embedding. A pass interrupted by an error or cancellation
// resumes from its checkpoint on the next Run. A completed pass resets the
// checkpoint, since chunk IDs are not assigned in commit order.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	after, err := r.resumePoint(ctx)
	if err != nil {
		return 0, err
	}

	total, err := r.iterator.Count(ctx, after)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks without embeddings\n")
		return 0, r.saveCheckpoint(ctx, 0)
	}

	fmt.Fprintf(r.progress, "Backfilling embeddings for %d chunks (batch size: %d, model: %s)\n",
		total, r.iterator.batchSize, r.embedder.Model())
	if after != 0 {
		r.logger.Info("resuming backfill", "after_chunk", after)
	}

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, after, func(chunks []*core.TranscriptChunk) error {
		attached, err := r.processor.Process(ctx, chunks)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		tracker.Add(len(chunks), attached)
		return r.saveCheckpoint(ctx, chunks[len(chunks)-1].Id)
	})
	if err != nil {
		r.logger.Error("backfill interrupted", "attached", tracker.Attached(), "err", err)
		return tracker.Attached(), err
	}

	tracker.Finish()
	if err := r.saveCheckpoint(ctx, 0); err != nil {
		return tracker.Attached(), err
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Backfill complete. Attached %d embeddings in %v\n",
		tracker.Attached(), elapsed.Round(time.Millisecond))
	return tracker.Attached(), nil
}

func (r *Reembedder) resumePoint(ctx context.Context) (core.ID, error) {
	checkpoint, err := r.store.LoadCheckpoint(ctx, ProcessorType)
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if checkpoint == nil {
		return 0, nil
	}
	return checkpoint.LastProcessedID, nil
}

func (r *Reembedder) saveCheckpoint(ctx context.Context, last core.ID) error {
	err := r.store.SaveCheckpoint(ctx, &storage.Checkpoint{
		ProcessorType:   ProcessorType,
		LastProcessedID: last,
		UpdatedAt:       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}
