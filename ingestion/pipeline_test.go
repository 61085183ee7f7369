package ingestion

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/voicevault/ai"
	"github.com/poiesic/voicevault/ai/mock"
	"github.com/poiesic/voicevault/blob"
	blobfs "github.com/poiesic/voicevault/blob/fs"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/retry"
	"github.com/poiesic/voicevault/storage"
	"github.com/poiesic/voicevault/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harbourTalk = `The harbour opened at dawn.
Fishing boats lined the quay.
The council discussed the new breakwater.
Residents raised concerns about parking.
A vote was scheduled for next month.
The mayor thanked the volunteers.
Children sang at the closing ceremony.
Rain started in the afternoon.
Most stalls packed up early.
The festival ends on Sunday.`

type testEnv struct {
	store    *badger.Store
	blobs    *blobfs.Store
	provider *mock.MockProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	blobs, err := blobfs.New(t.TempDir())
	require.NoError(t, err)

	return &testEnv{
		store:    store,
		blobs:    blobs,
		provider: mock.NewMockProvider().(*mock.MockProvider),
	}
}

func (e *testEnv) pipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{
		WithPoolSize(2),
		WithRetryPolicy(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}),
	}, opts...)
	p, err := NewPipeline(e.store, e.blobs, e.provider, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

// seedPost stores an uploaded post whose "audio" is the given text; the
// mock transcriber turns each line into a five second segment.
func (e *testEnv) seedPost(t *testing.T, user core.UserID, text string) *core.Post {
	t.Helper()
	ctx := context.Background()

	post, err := e.store.AddPost(ctx, &core.Post{
		UserID:     user,
		Title:      "Harbour festival",
		Visibility: core.VisibilityPrivate,
		Language:   "en",
		SourceName: "festival.mp3",
	})
	require.NoError(t, err)

	key := blob.Key(post.StoragePrefix, core.RoleOriginalAudio)
	obj, err := e.blobs.Put(ctx, key, strings.NewReader(text), "audio/mpeg")
	require.NoError(t, err)

	require.NoError(t, e.store.PutFile(ctx, &core.ArchiveFile{
		PostID:      post.Id,
		Role:        core.RoleOriginalAudio,
		Path:        key,
		ContentType: "audio/mpeg",
		Size:        obj.Size,
		Digest:      obj.Digest,
		CreatedAt:   post.CreatedAt,
	}))
	return post
}

func (e *testEnv) blobExists(t *testing.T, post *core.Post, role core.FileRole) bool {
	t.Helper()
	rc, err := e.blobs.Open(context.Background(), blob.Key(post.StoragePrefix, role))
	if errors.Is(err, blob.ErrNotFound) {
		return false
	}
	require.NoError(t, err)
	rc.Close()
	return true
}

func TestNewPipeline_Validation(t *testing.T) {
	env := newTestEnv(t)

	_, err := NewPipeline(nil, env.blobs, env.provider)
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewPipeline(env.store, nil, env.provider)
	assert.ErrorIs(t, err, ErrBlobStoreRequired)

	_, err = NewPipeline(env.store, env.blobs, nil)
	assert.ErrorIs(t, err, ErrAIProviderRequired)

	_, err = NewPipeline(env.store, env.blobs, env.provider, WithRetryPolicy(retry.Policy{}))
	assert.ErrorIs(t, err, retry.ErrInvalidPolicy)

	_, err = NewPipeline(env.store, env.blobs, env.provider, WithPromptTemplate(""))
	assert.ErrorIs(t, err, core.ErrInvalidMetadata)
}

func TestProcess_CommitsRun(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(t)
	ctx := context.Background()
	post := env.seedPost(t, 1, harbourTalk)

	done, err := p.Process(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, done.Status)
	assert.NotEmpty(t, done.LastRunID)
	assert.Empty(t, done.FailureReason)

	chunks, err := env.store.GetChunks(ctx, post.Id, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 5, "ten 5s sentences pair up at the 10s floor")
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, float64(i*10), c.StartSec)
		assert.Equal(t, float64(i*10+10), c.EndSec)
		assert.True(t, c.Embedding.Present(), "chunk %d", i)
		assert.Equal(t, "mock-embedder", c.Embedding.Model())
	}
	assert.Equal(t, "The harbour opened at dawn. Fishing boats lined the quay.", chunks[0].Text)

	meta, err := env.store.GetMetadata(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, done.LastRunID, meta.RunID)
	assert.Equal(t, "festival.mp3", meta.SourceFileName)
	assert.Equal(t, 10, meta.SegmentCount)
	assert.Equal(t, 5, meta.ChunkCount)
	assert.Equal(t, 5, meta.EmbeddedChunks)
	assert.Equal(t, "mock-embedder", meta.EmbeddingModel)
	assert.Equal(t, 50.0, meta.DurationSec)
	assert.NotEmpty(t, meta.Topics)
	assert.Equal(t, core.DefaultPromptTemplate, meta.PromptTemplate)

	files, err := env.store.ListFiles(ctx, post.Id)
	require.NoError(t, err)
	var roles []core.FileRole
	for _, f := range files {
		roles = append(roles, f.Role)
		digest, err := blob.Digest(ctx, env.blobs, f.Path)
		require.NoError(t, err)
		assert.Equal(t, f.Digest, digest, "role %s", f.Role)
	}
	assert.Equal(t, []core.FileRole{
		core.RoleOriginalAudio,
		core.RoleTranscriptJSON,
		core.RoleTranscriptText,
		core.RoleMetadata,
	}, roles)
}

func TestProcess_EmbeddingOutageStillReady(t *testing.T) {
	env := newTestEnv(t)
	env.provider.GetMockEmbedder().EmbedTextFunc = func(context.Context, string) ([]float32, error) {
		return nil, core.ErrEmbeddingUnavailable
	}
	p := env.pipeline(t)
	ctx := context.Background()
	post := env.seedPost(t, 1, harbourTalk)

	done, err := p.Process(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, done.Status)

	chunks, err := env.store.GetChunks(ctx, post.Id, 0)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.False(t, c.Embedding.Present())
	}

	meta, err := env.store.GetMetadata(ctx, post.Id)
	require.NoError(t, err)
	assert.Zero(t, meta.EmbeddedChunks)
	assert.Empty(t, meta.EmbeddingModel)

	missing, err := env.store.ChunksMissingEmbedding(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, missing, len(chunks))
}

func TestProcess_PartialEmbedding(t *testing.T) {
	env := newTestEnv(t)
	env.provider.GetMockEmbedder().EmbedTextFunc = func(_ context.Context, text string) ([]float32, error) {
		if strings.Contains(text, "council") {
			return nil, core.ErrEmbeddingUnavailable
		}
		return []float32{3, 4}, nil
	}
	p := env.pipeline(t, WithEmbedConcurrency(3))
	ctx := context.Background()
	post := env.seedPost(t, 1, harbourTalk)

	_, err := p.Process(ctx, post.Id)
	require.NoError(t, err)

	chunks, err := env.store.GetChunks(ctx, post.Id, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 5)
	for _, c := range chunks {
		if strings.Contains(c.Text, "council") {
			assert.False(t, c.Embedding.Present())
			continue
		}
		require.True(t, c.Embedding.Present())
		assert.InDeltaSlice(t, []float32{0.6, 0.8}, c.Embedding.Vector(), 1e-6, "vectors are normalized")
	}

	meta, err := env.store.GetMetadata(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, 4, meta.EmbeddedChunks)
}

func TestProcess_TopicFailureIsNonFatal(t *testing.T) {
	env := newTestEnv(t)
	env.provider.GetMockExtractor().ExtractTopicsFunc = func(context.Context, string) ([]string, error) {
		return nil, errors.New("model overloaded")
	}
	p := env.pipeline(t)
	ctx := context.Background()
	post := env.seedPost(t, 1, harbourTalk)

	done, err := p.Process(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, done.Status)

	meta, err := env.store.GetMetadata(ctx, post.Id)
	require.NoError(t, err)
	assert.Empty(t, meta.Topics)
}

func TestProcess_WithoutTopics(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(t, WithoutTopics())
	post := env.seedPost(t, 1, harbourTalk)

	_, err := p.Process(context.Background(), post.Id)
	require.NoError(t, err)
	assert.Zero(t, env.provider.GetMockExtractor().CallCount())
}

func TestProcess_TerminalTranscriptionFailure(t *testing.T) {
	env := newTestEnv(t)
	transcriber := env.provider.GetMockTranscriber()
	transcriber.TranscribeFunc = func(context.Context, ai.TranscriptionRequest) ([]core.Segment, error) {
		return nil, core.ErrTranscription
	}
	p := env.pipeline(t)
	ctx := context.Background()
	post := env.seedPost(t, 1, harbourTalk)

	_, err := p.Process(ctx, post.Id)
	require.ErrorIs(t, err, core.ErrTranscription)
	assert.ErrorIs(t, err, ErrRunFailed)
	assert.Equal(t, 1, transcriber.CallCount(), "terminal errors are not retried")

	failed, err := env.store.GetPost(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, failed.Status)
	assert.Equal(t, "transcription failed", failed.FailureReason)

	chunks, err := env.store.GetChunks(ctx, post.Id, 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	files, err := env.store.ListFiles(ctx, post.Id)
	require.NoError(t, err)
	assert.Len(t, files, 1, "only the original audio is recorded")
	assert.False(t, env.blobExists(t, post, core.RoleTranscriptJSON))
}

func TestProcess_RetriesTransientTranscription(t *testing.T) {
	env := newTestEnv(t)
	transcriber := env.provider.GetMockTranscriber()
	var calls atomic.Int32
	transcriber.TranscribeFunc = func(context.Context, ai.TranscriptionRequest) ([]core.Segment, error) {
		if calls.Add(1) < 3 {
			return nil, core.Retryable(core.ErrTranscription)
		}
		return mock.SegmentsFromText(harbourTalk, 5), nil
	}
	p := env.pipeline(t)
	post := env.seedPost(t, 1, harbourTalk)

	done, err := p.Process(context.Background(), post.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, done.Status)
	assert.Equal(t, 3, transcriber.CallCount())
}

func TestProcess_RetriesExhausted(t *testing.T) {
	env := newTestEnv(t)
	transcriber := env.provider.GetMockTranscriber()
	transcriber.TranscribeFunc = func(context.Context, ai.TranscriptionRequest) ([]core.Segment, error) {
		return nil, core.Retryable(core.ErrTranscription)
	}
	p := env.pipeline(t)
	ctx := context.Background()
	post := env.seedPost(t, 1, harbourTalk)

	_, err := p.Process(ctx, post.Id)
	require.ErrorIs(t, err, core.ErrTranscription)
	assert.Equal(t, 3, transcriber.CallCount())

	failed, err := env.store.GetPost(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, failed.Status)
}

func TestProcess_IntegrityMismatch(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(t)
	ctx := context.Background()
	post := env.seedPost(t, 1, harbourTalk)

	key := blob.Key(post.StoragePrefix, core.RoleOriginalAudio)
	_, err := env.blobs.Put(ctx, key, strings.NewReader("tampered"), "audio/mpeg")
	require.NoError(t, err)

	_, err = p.Process(ctx, post.Id)
	require.ErrorIs(t, err, core.ErrIntegrityMismatch)

	failed, err := env.store.GetPost(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, failed.Status)
	assert.Equal(t, "stored recording failed its integrity check", failed.FailureReason)
}

// failingBlobs refuses to store one artifact role.
type failingBlobs struct {
	blob.Store
	role core.FileRole
}

func (f failingBlobs) Put(ctx context.Context, key string, r io.Reader, contentType string) (*blob.Object, error) {
	if strings.HasSuffix(key, string(f.role)) {
		return nil, errors.New("disk full")
	}
	return f.Store.Put(ctx, key, r, contentType)
}

// failingCommit accepts everything except the final run commit.
type failingCommit struct {
	*badger.Store
}

func (failingCommit) CommitRun(context.Context, *storage.RunResult) (*core.Post, error) {
	return nil, errors.New("connection reset")
}

func TestProcess_WriteFailureCommitsNothing(t *testing.T) {
	tests := []struct {
		name     string
		pipeline func(env *testEnv) (*Pipeline, error)
	}{
		{"artifact write", func(env *testEnv) (*Pipeline, error) {
			return NewPipeline(env.store, failingBlobs{Store: env.blobs, role: core.RoleTranscriptText}, env.provider)
		}},
		{"run commit", func(env *testEnv) (*Pipeline, error) {
			return NewPipeline(failingCommit{env.store}, env.blobs, env.provider)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			p, err := tt.pipeline(env)
			require.NoError(t, err)
			t.Cleanup(p.Release)
			ctx := context.Background()
			post := env.seedPost(t, 1, harbourTalk)

			_, err = p.Process(ctx, post.Id)
			require.ErrorIs(t, err, ErrRunFailed)
			assert.ErrorIs(t, err, core.ErrStorageWrite)
			assert.Equal(t, 1, env.provider.GetMockTranscriber().CallCount(), "transcription itself succeeded")

			failed, err := env.store.GetPost(ctx, post.Id)
			require.NoError(t, err)
			assert.Equal(t, core.StatusFailed, failed.Status)
			assert.Equal(t, "processing failed", failed.FailureReason)

			chunks, err := env.store.GetChunks(ctx, post.Id, 0)
			require.NoError(t, err)
			assert.Empty(t, chunks)

			_, err = env.store.GetMetadata(ctx, post.Id)
			assert.ErrorIs(t, err, storage.ErrNotFound)

			files, err := env.store.ListFiles(ctx, post.Id)
			require.NoError(t, err)
			assert.Len(t, files, 1, "only the original audio is recorded")

			for _, role := range []core.FileRole{core.RoleTranscriptJSON, core.RoleTranscriptText, core.RoleMetadata} {
				assert.False(t, env.blobExists(t, post, role), "%s left behind", role)
			}
			assert.True(t, env.blobExists(t, post, core.RoleOriginalAudio))
		})
	}
}

func TestProcess_PostDeletedDuringRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	post := env.seedPost(t, 1, harbourTalk)

	env.provider.GetMockTranscriber().TranscribeFunc = func(ctx context.Context, _ ai.TranscriptionRequest) ([]core.Segment, error) {
		if err := env.store.DeletePost(ctx, post.Id); err != nil {
			return nil, err
		}
		return mock.SegmentsFromText(harbourTalk, 5), nil
	}
	p := env.pipeline(t)

	_, err := p.Process(ctx, post.Id)
	require.ErrorIs(t, err, ErrRunDiscarded)

	_, err = env.store.GetPost(ctx, post.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, env.blobExists(t, post, core.RoleTranscriptJSON))
	assert.False(t, env.blobExists(t, post, core.RoleMetadata))
}

func TestProcess_RejectsBusyPost(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(t)
	ctx := context.Background()
	post := env.seedPost(t, 1, harbourTalk)

	_, err := p.Process(ctx, post.Id)
	require.NoError(t, err)

	_, err = p.Process(ctx, post.Id)
	assert.ErrorIs(t, err, storage.ErrStatusConflict)

	_, err = p.Process(ctx, 9999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSubmit_RunsInBackground(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(t)
	ctx := context.Background()
	post := env.seedPost(t, 1, harbourTalk)

	require.NoError(t, p.Submit(ctx, post.Id))

	started, err := env.store.GetPost(ctx, post.Id)
	require.NoError(t, err)
	assert.Contains(t, []core.Status{core.StatusProcessing, core.StatusReady}, started.Status)
	assert.NotEmpty(t, started.LastRunID)

	p.Wait()
	done, err := env.store.GetPost(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, done.Status)

	assert.ErrorIs(t, p.Submit(ctx, post.Id), storage.ErrStatusConflict)
}

func TestSubmit_DoesNotWaitForBusyPool(t *testing.T) {
	env := newTestEnv(t)
	entered := make(chan struct{}, 2)
	unblock := make(chan struct{})
	transcriber := env.provider.GetMockTranscriber()
	transcriber.TranscribeFunc = func(ctx context.Context, req ai.TranscriptionRequest) ([]core.Segment, error) {
		entered <- struct{}{}
		<-unblock
		data, err := io.ReadAll(req.Audio)
		if err != nil {
			return nil, err
		}
		return mock.SegmentsFromText(string(data), 5), nil
	}
	p := env.pipeline(t, WithPoolSize(1))
	var once sync.Once
	release := func() { once.Do(func() { close(unblock) }) }
	t.Cleanup(release)
	ctx := context.Background()
	first := env.seedPost(t, 1, harbourTalk)
	second := env.seedPost(t, 1, harbourTalk)

	require.NoError(t, p.Submit(ctx, first.Id))
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never started")
	}

	submitted := make(chan error, 1)
	go func() { submitted <- p.Submit(ctx, second.Id) }()
	select {
	case err := <-submitted:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		release()
		t.Fatal("Submit waited for the only worker")
	}

	queued, err := env.store.GetPost(ctx, second.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, queued.Status)

	release()
	p.Wait()
	for _, post := range []*core.Post{first, second} {
		done, err := env.store.GetPost(ctx, post.Id)
		require.NoError(t, err)
		assert.Equal(t, core.StatusReady, done.Status)
	}
}

func TestSubmit_QueueFullFailsRun(t *testing.T) {
	env := newTestEnv(t)
	unblock := make(chan struct{})
	transcriber := env.provider.GetMockTranscriber()
	transcriber.TranscribeFunc = func(ctx context.Context, req ai.TranscriptionRequest) ([]core.Segment, error) {
		<-unblock
		data, err := io.ReadAll(req.Audio)
		if err != nil {
			return nil, err
		}
		return mock.SegmentsFromText(string(data), 5), nil
	}
	p := env.pipeline(t, WithPoolSize(1), WithMaxQueuedRuns(1))
	var once sync.Once
	release := func() { once.Do(func() { close(unblock) }) }
	t.Cleanup(release)
	ctx := context.Background()

	posts := []*core.Post{
		env.seedPost(t, 1, harbourTalk),
		env.seedPost(t, 1, harbourTalk),
		env.seedPost(t, 1, harbourTalk),
	}
	for _, post := range posts {
		require.NoError(t, p.Submit(ctx, post.Id))
	}

	countStatus := func(status core.Status) int {
		n := 0
		for _, post := range posts {
			got, err := env.store.GetPost(ctx, post.Id)
			if err == nil && got.Status == status {
				n++
			}
		}
		return n
	}
	require.Eventually(t, func() bool { return countStatus(core.StatusFailed) == 1 },
		5*time.Second, 10*time.Millisecond, "one run overflows the queue")

	release()
	p.Wait()
	assert.Equal(t, 2, countStatus(core.StatusReady))
	assert.Equal(t, 1, countStatus(core.StatusFailed))
}

func TestReprocess(t *testing.T) {
	env := newTestEnv(t)
	transcriber := env.provider.GetMockTranscriber()
	transcriber.TranscribeFunc = func(context.Context, ai.TranscriptionRequest) ([]core.Segment, error) {
		return nil, core.ErrTranscription
	}
	p := env.pipeline(t)
	ctx := context.Background()
	post := env.seedPost(t, 1, harbourTalk)

	assert.ErrorIs(t, p.Reprocess(ctx, post.Id), storage.ErrStatusConflict, "only failed posts are reprocessed")

	require.NoError(t, p.Submit(ctx, post.Id))
	p.Wait()
	failed, err := env.store.GetPost(ctx, post.Id)
	require.NoError(t, err)
	require.Equal(t, core.StatusFailed, failed.Status)

	transcriber.TranscribeFunc = nil
	require.NoError(t, p.Reprocess(ctx, post.Id))
	p.Wait()

	done, err := env.store.GetPost(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, done.Status)
	assert.Empty(t, done.FailureReason)
	assert.NotEqual(t, failed.LastRunID, done.LastRunID)

	chunks, err := env.store.GetChunks(ctx, post.Id, 0)
	require.NoError(t, err)
	assert.Len(t, chunks, 5)
}

func TestSubmit_ConcurrentRunsIsolated(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(t)
	ctx := context.Background()

	harbour := env.seedPost(t, 1, harbourTalk)
	other := env.seedPost(t, 2, "Quarterly budget review.\nRevenue grew slightly.\nCosts stayed flat.")

	require.NoError(t, p.Submit(ctx, harbour.Id))
	require.NoError(t, p.Submit(ctx, other.Id))
	p.Wait()

	harbourChunks, err := env.store.GetChunks(ctx, harbour.Id, 0)
	require.NoError(t, err)
	otherChunks, err := env.store.GetChunks(ctx, other.Id, 0)
	require.NoError(t, err)
	require.NotEmpty(t, harbourChunks)
	require.NotEmpty(t, otherChunks)

	for _, c := range harbourChunks {
		assert.Equal(t, harbour.Id, c.PostID)
		assert.NotContains(t, c.Text, "budget")
	}
	for _, c := range otherChunks {
		assert.Equal(t, other.Id, c.PostID)
		assert.NotContains(t, c.Text, "harbour")
	}
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "00:00", formatTimestamp(0))
	assert.Equal(t, "01:05", formatTimestamp(65.9))
	assert.Equal(t, "1:00:01", formatTimestamp(3601))
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "transcription failed", failureReason(core.Retryable(core.ErrTranscription)))
	assert.Equal(t, "processing was interrupted", failureReason(context.Canceled))
	assert.Equal(t, "processing failed", failureReason(core.ErrStorageWrite))
	assert.NotContains(t, failureReason(errors.New("pq: secret dsn leaked")), "dsn")
}
