// Package mock provides test double implementations of AI service interfaces.
//
// The mocks let tests run without speech-to-text, embedding or chat
// servers while keeping behavior deterministic.
//
// # Usage in Tests
//
//	mockProvider := mock.NewMockProvider()
//
//	// Failure injection
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return nil, core.ErrEmbeddingUnavailable
//	}
//
//	// Check call counts
//	count := embedder.CallCount()
//
// # Default Behavior
//
//   - MockTranscriber: each line of the audio bytes becomes a 5s segment
//   - MockEmbedder: deterministic unit vectors derived from a text hash
//   - MockTopicExtractor: first few distinct long words
//   - MockProvider: aggregates the three
package mock
