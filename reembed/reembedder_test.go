package reembed

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/poiesic/voicevault/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(batchSize, attempts int) *Config {
	return &Config{
		BatchSize:      batchSize,
		ReportInterval: batchSize,
		Retry:          testPolicy(attempts),
	}
}

func TestReembedder_Run(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	first := seedChunks(t, store, 6, 1)
	second := seedChunks(t, store, 4)

	var buf bytes.Buffer
	reembedder, err := NewReembedder(store, &mockEmbedder{}, testConfig(3, 3), &buf)
	require.NoError(t, err)

	attached, err := reembedder.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, attached)

	for _, post := range []*core.Post{first, second} {
		chunks, err := store.GetChunks(ctx, post.Id, 0)
		require.NoError(t, err)
		for _, c := range chunks {
			require.True(t, c.Embedding.Present(), "chunk %d should have an embedding", c.Index)
			var magnitude float32
			for _, v := range c.Embedding.Vector() {
				magnitude += v * v
			}
			assert.InDelta(t, 1.0, magnitude, 0.01, "vector should be normalized")
		}
	}

	// the pre-existing vector is left alone
	chunks, err := store.GetChunks(ctx, first.Id, 0)
	require.NoError(t, err)
	assert.Equal(t, "seed-model", chunks[1].Embedding.Model())

	output := buf.String()
	assert.Contains(t, output, "9/9", "should show completion")
	assert.Contains(t, output, "Backfill complete")

	checkpoint, err := store.LoadCheckpoint(ctx, ProcessorType)
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	assert.Zero(t, checkpoint.LastProcessedID, "a completed pass resets the checkpoint")
}

func TestReembedder_EmptyArchive(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	var buf bytes.Buffer
	reembedder, err := NewReembedder(store, &mockEmbedder{}, DefaultConfig(), &buf)
	require.NoError(t, err)

	attached, err := reembedder.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, attached)
	assert.Contains(t, buf.String(), "No chunks without embeddings")
}

func TestReembedder_ResumesFromCheckpoint(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedChunks(t, store, 7)

	calls := 0
	flaky := &mockEmbedder{
		embedTextsFunc: func(_ context.Context, texts []string) ([][]float32, error) {
			calls++
			if calls > 1 {
				return nil, errors.New("embedding service down")
			}
			result := make([][]float32, len(texts))
			for i := range result {
				result[i] = []float32{1, 0, 0}
			}
			return result, nil
		},
	}

	reembedder, err := NewReembedder(store, flaky, testConfig(3, 1), nil)
	require.NoError(t, err)
	attached, err := reembedder.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding service down")
	assert.Equal(t, 3, attached)

	checkpoint, err := store.LoadCheckpoint(ctx, ProcessorType)
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	assert.NotZero(t, checkpoint.LastProcessedID)

	remaining, err := store.ChunksMissingEmbedding(ctx, checkpoint.LastProcessedID, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 4)

	var seen int
	healthy := &mockEmbedder{
		embedTextsFunc: func(_ context.Context, texts []string) ([][]float32, error) {
			seen += len(texts)
			result := make([][]float32, len(texts))
			for i := range result {
				result[i] = []float32{0, 1, 0}
			}
			return result, nil
		},
	}
	reembedder, err = NewReembedder(store, healthy, testConfig(3, 1), nil)
	require.NoError(t, err)
	attached, err = reembedder.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, attached)
	assert.Equal(t, 4, seen, "resumed pass should only embed the remaining chunks")

	missing, err := store.ChunksMissingEmbedding(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestReembedder_ContextCancellation(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seedChunks(t, store, 10)

	callCount := 0
	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			callCount++
			if callCount == 2 {
				cancel()
			}
			result := make([][]float32, len(texts))
			for i := range result {
				result[i] = []float32{1.0, 0.0, 0.0}
			}
			return result, nil
		},
	}

	var buf bytes.Buffer
	reembedder, err := NewReembedder(store, embedder, testConfig(3, 3), &buf)
	require.NoError(t, err)

	_, err = reembedder.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewReembedder_Validation(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewReembedder(nil, &mockEmbedder{}, nil, nil)
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewReembedder(store, nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	r, err := NewReembedder(store, &mockEmbedder{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, r.iterator.batchSize)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Greater(t, config.BatchSize, 0, "batch size should be positive")
	assert.Greater(t, config.ReportInterval, 0, "report interval should be positive")
	assert.Greater(t, config.Retry.MaxAttempts, 0, "max attempts should be positive")
	assert.Greater(t, config.Retry.BaseDelay.Nanoseconds(), int64(0), "retry delay should be positive")
	assert.True(t, config.Retry.ShouldRetry(errors.New("any failure")))
}
