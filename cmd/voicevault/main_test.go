package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/poiesic/voicevault"
	"github.com/poiesic/voicevault/ai/mock"
	blobfs "github.com/poiesic/voicevault/blob/fs"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/ingestion"
	"github.com/poiesic/voicevault/media"
	"github.com/poiesic/voicevault/retry"
	"github.com/poiesic/voicevault/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not registered", name)
	return nil
}

func TestAppCommands(t *testing.T) {
	app := newApp()
	for _, name := range []string{"serve", "worker", "migrate", "reembed", "verify", "import", "search", "token"} {
		cmd := findCommand(t, app, name)
		assert.NotNil(t, cmd.Action, name)
	}
}

func TestReembedCommandFlags(t *testing.T) {
	cmd := findCommand(t, newApp(), "reembed")

	intDefault := func(name string) int {
		for _, flag := range cmd.Flags {
			if f, ok := flag.(*cli.IntFlag); ok && f.Name == name {
				return f.Value
			}
		}
		t.Fatalf("flag %q missing", name)
		return 0
	}

	t.Run("batch-size has default value of 100", func(t *testing.T) {
		assert.Equal(t, 100, intDefault("batch-size"))
	})
	t.Run("report-interval has default value of 100", func(t *testing.T) {
		assert.Equal(t, 100, intDefault("report-interval"))
	})
	t.Run("max-retries has default value of 3", func(t *testing.T) {
		assert.Equal(t, 3, intDefault("max-retries"))
	})
}

func TestReembedCommandValidation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"zero batch size", []string{"--batch-size", "0"}, "batch-size must be greater than 0"},
		{"zero report interval", []string{"--report-interval", "0"}, "report-interval must be greater than 0"},
		{"zero retries", []string{"--max-retries", "0"}, "max-retries must be greater than 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"voicevault", "--db", dbPath, "reembed"}, tt.args...)
			err := newApp().Run(args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReembedCommand_EmptyArchive(t *testing.T) {
	root := t.TempDir()
	err := newApp().Run([]string{"voicevault",
		"--db", filepath.Join(root, "db"),
		"--blob-root", filepath.Join(root, "blobs"),
		"reembed"})
	require.NoError(t, err)
}

func TestCommandValidation(t *testing.T) {
	t.Run("verify requires post", func(t *testing.T) {
		err := newApp().Run([]string{"voicevault", "verify"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "post")
	})

	t.Run("token requires a secret", func(t *testing.T) {
		t.Setenv("VOICEVAULT_JWT_SECRET", "")
		err := newApp().Run([]string{"voicevault", "token", "--user", "1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt-secret")
	})

	t.Run("migrate requires postgres", func(t *testing.T) {
		t.Setenv("VOICEVAULT_STORAGE", "")
		err := newApp().Run([]string{"voicevault", "migrate"})
		require.Error(t, err)
	})

	t.Run("search requires a query", func(t *testing.T) {
		err := newApp().Run([]string{"voicevault", "search", "--user", "1"})
		require.Error(t, err)
	})

	t.Run("import requires a directory", func(t *testing.T) {
		err := newApp().Run([]string{"voicevault", "import", "--user", "1"})
		require.Error(t, err)
	})

	t.Run("invalid log level", func(t *testing.T) {
		err := newApp().Run([]string{"voicevault", "--log-level", "loud", "token", "--user", "1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestParseLevel(t *testing.T) {
	level, err := parseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = parseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = parseLevel("trace")
	assert.Error(t, err)
}

func TestTitleFromFile(t *testing.T) {
	assert.Equal(t, "2024-05 harbour walk", titleFromFile("/rec/2024-05_harbour_walk.mp3"))
	assert.Equal(t, "interview", titleFromFile("interview.wav"))
	assert.Equal(t, "___.mp3", titleFromFile("___.mp3"))
}

func TestFilesUnder(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2024"), 0o755))
	for _, name := range []string{"b.mp3", "a.wav", "2024/c.mp3"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o600))
	}

	source, err := filesUnder(root)
	require.NoError(t, err)
	var got []string
	for path := range source {
		rel, err := filepath.Rel(root, path)
		require.NoError(t, err)
		got = append(got, filepath.ToSlash(rel))
	}
	assert.Equal(t, []string{"2024/c.mp3", "a.wav", "b.mp3"}, got)

	// early stop
	count := 0
	for range source {
		count++
		break
	}
	assert.Equal(t, 1, count)

	_, err = filesUnder(filepath.Join(root, "a.wav"))
	assert.Error(t, err)
}

func TestImportFiles(t *testing.T) {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	blobs, err := blobfs.New(t.TempDir())
	require.NoError(t, err)

	transcriber := mock.NewMockTranscriber()
	transcriber.Segments = mock.SegmentsFromText("The harbour opened at dawn.\nFishing boats lined the quay.", 5)
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), transcriber, mock.NewMockTopicExtractor())
	pipeline, err := ingestion.NewPipeline(store, blobs, provider,
		ingestion.WithRetryPolicy(retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}))
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	archive, err := voicevault.New(store, blobs, voicevault.LocalDispatcher(pipeline))
	require.NoError(t, err)

	dir := t.TempDir()
	mp3 := make([]byte, 1024)
	copy(mp3, "ID3\x03\x00\x00\x00\x00\x00\x00")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "harbour_walk.mp3"), mp3, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not audio"), 0o600))

	source, err := filesUnder(dir)
	require.NoError(t, err)
	posts, err := importFiles(context.Background(), archive, source, media.Upload{UserID: 4, Language: "en"})
	require.NoError(t, err)
	pipeline.Wait()

	require.Len(t, posts, 1)
	post, err := store.GetPost(context.Background(), posts[0].Id)
	require.NoError(t, err)
	assert.Equal(t, "harbour walk", post.Title)
	assert.Equal(t, core.UserID(4), post.UserID)
	assert.Equal(t, core.StatusReady, post.Status)

	titles := []string{}
	list, _, err := store.ListPostsByUser(context.Background(), 4, 0, 10)
	require.NoError(t, err)
	for _, p := range list {
		titles = append(titles, p.Title)
	}
	assert.False(t, slices.Contains(titles, "notes"))
}

func TestClock(t *testing.T) {
	assert.Equal(t, "0:00", clock(0))
	assert.Equal(t, "1:05", clock(65.4))
	assert.Equal(t, "12:00", clock(720))
}
