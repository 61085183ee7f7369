// Package blob defines the object store that holds archived media and
// derived artifacts. Implementations live in blob/fs and blob/s3.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"path"
	"strings"

	"github.com/poiesic/voicevault/core"
)

var (
	// ErrNotFound indicates no object is stored under the key.
	ErrNotFound = errors.New("blob not found")

	// ErrInvalidKey indicates a key that is empty or escapes its prefix.
	ErrInvalidKey = errors.New("invalid blob key")
)

// Object describes a stored blob.
type Object struct {
	Key    string
	Size   int64
	Digest string // hex-encoded SHA-256
}

// Store is a flat key/value object store.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put streams r to key, replacing any existing object, and returns the
	// stored size and SHA-256 digest. A failed Put leaves no object behind.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (*Object, error)

	// Open returns a reader for the object. Returns ErrNotFound if missing.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}

// Key returns the blob key of a post artifact: "{post_id}/{role}".
func Key(prefix string, role core.FileRole) string {
	return prefix + string(role)
}

// ValidateKey rejects keys that are empty, absolute or climb directories.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || path.Clean(key) != key {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// Digest recomputes the SHA-256 of a stored object.
func Digest(ctx context.Context, store Store, key string) (string, error) {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", fmt.Errorf("hash %s: %w", key, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashingReader counts and hashes bytes as they are read.
type HashingReader struct {
	r    io.Reader
	h    hash.Hash
	size int64
}

// NewHashingReader wraps r.
func NewHashingReader(r io.Reader) *HashingReader {
	return &HashingReader{r: r, h: sha256.New()}
}

func (hr *HashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		hr.h.Write(p[:n])
		hr.size += int64(n)
	}
	return n, err
}

// Size returns the number of bytes read so far.
func (hr *HashingReader) Size() int64 { return hr.size }

// Digest returns the hex SHA-256 of the bytes read so far.
func (hr *HashingReader) Digest() string { return hex.EncodeToString(hr.h.Sum(nil)) }
