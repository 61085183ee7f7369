package reembed

import "errors"

var (
	// ErrStoreRequired is returned when no store is configured
	ErrStoreRequired = errors.New("reembed requires a store")

	// ErrEmbedderRequired is returned when no embedder is configured
	ErrEmbedderRequired = errors.New("reembed requires an embedder")

	// ErrEmbeddingCount is returned when the embedder answers with the wrong number of vectors
	ErrEmbeddingCount = errors.New("embedding count mismatch")
)
