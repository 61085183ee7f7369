package reembed

import (
	"context"
	"fmt"

	"github.com/poiesic/voicevault/ai"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/retry"
	"github.com/poiesic/voicevault/storage"
)

// BatchProcessor embeds batches of chunks and attaches the vectors.
type BatchProcessor struct {
	store    storage.ChunkRepository
	embedder ai.Embedder
	policy   retry.Policy
}

// NewBatchProcessor creates a new batch processor.
// policy bounds the retries of each embedding call.
func NewBatchProcessor(store storage.ChunkRepository, embedder ai.Embedder, policy retry.Policy) *BatchProcessor {
	return &BatchProcessor{
		store:    store,
		embedder: embedder,
		policy:   policy,
	}
}

// Process embeds the chunks' text and stores the normalized vectors.
// Returns the number of chunks that received an embedding; chunks that
// gained one concurrently or were deleted are skipped by the store.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []*core.TranscriptChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	var embeddings [][]float32
	err := retry.Do(ctx, bp.policy, func(ctx context.Context) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.policy.MaxAttempts, err)
	}

	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCount, len(chunks), len(embeddings))
	}

	model := bp.embedder.Model()
	updates := make([]*core.TranscriptChunk, 0, len(chunks))
	for i, chunk := range chunks {
		if len(embeddings[i]) == 0 {
			continue
		}
		update := *chunk
		update.Embedding = core.NewEmbedding(core.NormalizeVector(embeddings[i]), model)
		updates = append(updates, &update)
	}

	updated, err := bp.store.SetChunkEmbeddings(ctx, updates...)
	if err != nil {
		return 0, fmt.Errorf("failed to store embeddings: %w", err)
	}
	return updated, nil
}
