package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/voicevault/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	return s, root
}

func TestPutOpenDelete(t *testing.T) {
	s, root := newTestStore(t)
	ctx := context.Background()

	content := "RIFF fake audio payload"
	obj, err := s.Put(ctx, "7/original_audio", strings.NewReader(content), "audio/wav")
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(sum[:]), obj.Digest)
	assert.Equal(t, int64(len(content)), obj.Size)

	rc, err := s.Open(ctx, "7/original_audio")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	digest, err := blob.Digest(ctx, s, "7/original_audio")
	require.NoError(t, err)
	assert.Equal(t, obj.Digest, digest)

	entries, err := os.ReadDir(filepath.Join(root, "7"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")

	require.NoError(t, s.Delete(ctx, "7/original_audio"))
	require.NoError(t, s.Delete(ctx, "7/original_audio"))

	_, err = s.Open(ctx, "7/original_audio")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestPutReplaces(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "1/manifest", strings.NewReader("old"), "")
	require.NoError(t, err)
	_, err = s.Put(ctx, "1/manifest", strings.NewReader("new"), "")
	require.NoError(t, err)

	rc, err := s.Open(ctx, "1/manifest")
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "new", string(data))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestPutFailureLeavesNothing(t *testing.T) {
	s, root := newTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "3/original_audio", io.MultiReader(strings.NewReader("partial"), failingReader{}), "")
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	entries, err := os.ReadDir(filepath.Join(root, "3"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPutCanceled(t *testing.T) {
	s, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, "3/original_audio", strings.NewReader("x"), "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvalidKeys(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "../escape", strings.NewReader("x"), "")
	assert.ErrorIs(t, err, blob.ErrInvalidKey)
	_, err = s.Open(ctx, "/etc/passwd")
	assert.ErrorIs(t, err, blob.ErrInvalidKey)
}
