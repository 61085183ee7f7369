package postgres

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestStore starts a PostgreSQL container and applies migrations.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION is not set")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		tcpostgres.WithDatabase("voicevault_test"),
		tcpostgres.WithUsername("voicevault"),
		tcpostgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to stop container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store, err := Open(ctx, dsn, WithLogger(logger))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgresStore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	post, err := store.AddPost(ctx, &core.Post{UserID: 1, Title: "Harbour walk", Visibility: core.VisibilityPrivate})
	require.NoError(t, err)
	assert.Equal(t, core.StatusUploaded, post.Status)

	t.Run("transition conflict", func(t *testing.T) {
		_, err := store.TransitionStatus(ctx, post.Id, core.StatusProcessing, core.StatusReady, nil)
		assert.ErrorIs(t, err, storage.ErrStatusConflict)
	})

	t.Run("commit run", func(t *testing.T) {
		_, err := store.TransitionStatus(ctx, post.Id, core.StatusUploaded, core.StatusProcessing, func(p *core.Post) {
			p.LastRunID = "run-1"
		})
		require.NoError(t, err)

		chunks := []*core.TranscriptChunk{
			{StartSec: 0, EndSec: 10, Text: "the harbour at dawn", Embedding: core.NewEmbedding([]float32{1, 0}, "nomic")},
			{StartSec: 10, EndSec: 20, Text: "fishing boats return"},
		}
		committed, err := store.CommitRun(ctx, &storage.RunResult{
			PostID: post.Id,
			RunID:  "run-1",
			Chunks: chunks,
			Metadata: &core.ArchiveMetadata{
				SchemaVersion:  core.MetadataSchemaVersion,
				PostID:         post.Id,
				RunID:          "run-1",
				ChunkCount:     2,
				EmbeddedChunks: 1,
				PromptTemplate: core.DefaultPromptTemplate,
				GeneratedAt:    time.Now().UTC(),
			},
			Files: []*core.ArchiveFile{{
				PostID: post.Id, Role: core.RoleTranscriptText, Path: post.StoragePrefix + "transcript_txt",
				Size: 40, Digest: strings.Repeat("cd", 32),
			}},
		})
		require.NoError(t, err)
		assert.Equal(t, core.StatusReady, committed.Status)

		stored, err := store.GetChunks(ctx, post.Id, 0)
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.True(t, stored[0].Embedding.Present())
		assert.False(t, stored[1].Embedding.Present())

		meta, err := store.GetMetadata(ctx, post.Id)
		require.NoError(t, err)
		assert.Equal(t, 1, meta.EmbeddedChunks)

		files, err := store.ListFiles(ctx, post.Id)
		require.NoError(t, err)
		assert.Len(t, files, 1)
	})

	t.Run("backfill", func(t *testing.T) {
		missing, err := store.ChunksMissingEmbedding(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, missing, 1)

		missing[0].Embedding = core.NewEmbedding([]float32{0, 1}, "nomic")
		n, err := store.SetChunkEmbeddings(ctx, missing...)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = store.SetChunkEmbeddings(ctx, missing...)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("scoped chunks", func(t *testing.T) {
		scoped, err := store.ChunksForUser(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, scoped, 2)

		scoped, err = store.ChunksForUser(ctx, 2)
		require.NoError(t, err)
		assert.Empty(t, scoped)
	})

	t.Run("delete cascades", func(t *testing.T) {
		_, err := store.AppendAudit(ctx, &core.AuditEntry{Action: core.AuditUpload, UserID: 1, PostID: post.Id})
		require.NoError(t, err)

		require.NoError(t, store.DeletePost(ctx, post.Id))
		chunks, err := store.GetChunks(ctx, post.Id, 0)
		require.NoError(t, err)
		assert.Empty(t, chunks)

		entries, total, err := store.ListAudit(ctx, storage.AuditFilter{UserID: 1}, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Zero(t, entries[0].PostID)

		assert.ErrorIs(t, store.DeletePost(ctx, post.Id), storage.ErrNotFound)
	})

	t.Run("rollback", func(t *testing.T) {
		err := store.WithTransaction(ctx, func(ctx context.Context) error {
			if _, err := store.AddPost(ctx, &core.Post{UserID: 5, Title: "x", Visibility: core.VisibilityPublic}); err != nil {
				return err
			}
			return storage.ErrInvalidQuery
		})
		require.ErrorIs(t, err, storage.ErrInvalidQuery)

		_, total, err := store.ListPostsByUser(ctx, 5, 0, 0)
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("checkpoint", func(t *testing.T) {
		require.NoError(t, store.SaveCheckpoint(ctx, &storage.Checkpoint{ProcessorType: "reembed", LastProcessedID: core.ID(1 << 63)}))
		cp, err := store.LoadCheckpoint(ctx, "reembed")
		require.NoError(t, err)
		assert.Equal(t, core.ID(1<<63), cp.LastProcessedID)
	})
}

func TestCommitRun_ValidatesBeforeWriting(t *testing.T) {
	// validation runs before the pool is touched, so no database is needed
	store := &Store{}
	result := &storage.RunResult{
		PostID: 3,
		RunID:  "run-1",
		Chunks: []*core.TranscriptChunk{
			{StartSec: 0, EndSec: 5, Text: "the harbour at dawn"},
			{StartSec: 5, EndSec: 9, Text: " "},
		},
	}

	_, err := store.CommitRun(context.Background(), result)
	assert.ErrorIs(t, err, core.ErrInvalidChunk)
	assert.EqualError(t, err, storage.ValidateRunResult(result).Error())

	_, err = store.CommitRun(context.Background(), &storage.RunResult{PostID: 3})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}
