package ai

import (
	"context"
	"io"

	"github.com/poiesic/voicevault/core"
)

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Failures wrap core.ErrEmbeddingUnavailable.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Model names the embedding model, recorded alongside stored vectors.
	Model() string
}

// Transcriber converts recorded speech into timestamped segments.
// Implementations must be thread-safe for concurrent use.
type Transcriber interface {
	// Transcribe reads the request audio to completion and returns ordered,
	// non-overlapping segments. Failures wrap core.ErrTranscription; transient
	// ones are additionally marked with core.Retryable.
	Transcribe(ctx context.Context, req TranscriptionRequest) ([]core.Segment, error)
}

// TranscriptionRequest describes one audio stream to transcribe.
type TranscriptionRequest struct {
	// Audio is consumed sequentially and never buffered whole.
	Audio io.Reader

	// FileName is the original upload name, used for format hints.
	FileName string

	// Format is the lowercase container extension without the dot ("mp3", "wav").
	Format string

	// Language is an optional ISO 639-1 hint.
	Language string
}

// TopicExtractor derives a short list of topics from a transcript.
// Implementations must be thread-safe for concurrent use.
type TopicExtractor interface {
	// ExtractTopics returns at most the configured number of lowercase topics.
	// Returns an empty slice if nothing stands out.
	ExtractTopics(ctx context.Context, text string) ([]string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Transcriber returns the speech-to-text service.
	Transcriber() Transcriber

	// TopicExtractor returns the topic extraction service.
	TopicExtractor() TopicExtractor

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
