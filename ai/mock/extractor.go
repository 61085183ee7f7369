package mock

import (
	"context"
	"strings"
	"sync/atomic"
)

// MockTopicExtractor is a test double for ai.TopicExtractor.
// It allows custom behavior injection via function fields.
type MockTopicExtractor struct {
	// ExtractTopicsFunc is called by ExtractTopics if set.
	// If nil, uses default simple word extraction.
	ExtractTopicsFunc func(ctx context.Context, text string) ([]string, error)

	callCount atomic.Int64
}

// NewMockTopicExtractor creates a mock topic extractor with default behavior.
// Note: Returns concrete type to allow test assertions via GetMockExtractor().
func NewMockTopicExtractor() *MockTopicExtractor {
	return &MockTopicExtractor{}
}

// ExtractTopics returns up to three distinct lowercase words longer than
// four letters, in order of first appearance.
func (m *MockTopicExtractor) ExtractTopics(ctx context.Context, text string) ([]string, error) {
	m.callCount.Add(1)

	if m.ExtractTopicsFunc != nil {
		return m.ExtractTopicsFunc(ctx, text)
	}

	topics := make([]string, 0, 3)
	seen := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]{}—–-")
		if len(word) <= 4 {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		topics = append(topics, word)
		if len(topics) == 3 {
			break
		}
	}
	return topics, nil
}

// CallCount returns the number of times ExtractTopics was called.
func (m *MockTopicExtractor) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom functions.
func (m *MockTopicExtractor) Reset() {
	m.callCount.Store(0)
	m.ExtractTopicsFunc = nil
}
