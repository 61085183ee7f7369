package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/poiesic/voicevault/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBucket keeps objects in memory. Multipart calls are left to the
// embedded nil interface; test payloads stay below one part.
type fakeBucket struct {
	manager.UploadAPIClient

	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (f *fakeBucket) PutObject(ctx context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.contentTypes[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeBucket) GetObject(ctx context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeBucket) DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	bucket := newFakeBucket()
	s := newStore(bucket, "archive")
	ctx := context.Background()

	content := strings.Repeat("frame", 100)
	obj, err := s.Put(ctx, "9/original_audio", strings.NewReader(content), "audio/mpeg")
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(sum[:]), obj.Digest)
	assert.Equal(t, int64(len(content)), obj.Size)
	assert.Equal(t, "audio/mpeg", bucket.contentTypes["9/original_audio"])

	digest, err := blob.Digest(ctx, s, "9/original_audio")
	require.NoError(t, err)
	assert.Equal(t, obj.Digest, digest)

	require.NoError(t, s.Delete(ctx, "9/original_audio"))
	_, err = s.Open(ctx, "9/original_audio")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestS3Store_InvalidKey(t *testing.T) {
	s := newStore(newFakeBucket(), "archive")
	_, err := s.Put(context.Background(), "../x", strings.NewReader("x"), "")
	assert.ErrorIs(t, err, blob.ErrInvalidKey)
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
