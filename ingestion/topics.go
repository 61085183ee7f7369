package ingestion

import (
	"context"

	"github.com/poiesic/voicevault/ai"
)

// topicStage asks the extractor for the transcript's main topics.
// Failures are logged and leave the topic list empty.
type topicStage struct {
	extractor ai.TopicExtractor
}

var _ stage = (*topicStage)(nil)

func (s *topicStage) name() string { return "topics" }

func (s *topicStage) process(ctx context.Context, r *run) error {
	if s.extractor == nil || len(r.chunks) == 0 {
		return nil
	}
	topics, err := s.extractor.ExtractTopics(ctx, r.transcript())
	if err != nil {
		r.logger.Warn("topic extraction failed", "error", err)
		return nil
	}
	r.topics = topics
	return nil
}
