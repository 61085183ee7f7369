// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openai

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/voicevault/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// maxTopicInputChars bounds the transcript excerpt sent to the model.
const maxTopicInputChars = 12000

// TopicExtractor implements ai.TopicExtractor using OpenAI-compatible chat APIs.
type TopicExtractor struct {
	client    llms.Model
	maxTopics int
	timeout   time.Duration
	logger    *slog.Logger
}

// topic is an internal type used for JSON unmarshaling.
type topic struct {
	Topic     string `json:"topic"`
	Relevance int    `json:"relevance"`
}

// analysis is the wrapper structure for the LLM's JSON response.
type analysis struct {
	Topics []topic `json:"topics"`
}

// newTopicExtractor is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newTopicExtractor(config *ai.Config) (*TopicExtractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ClassifierHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.ClassifierModel),
	)
	if err != nil {
		return nil, err
	}

	return &TopicExtractor{
		client:    client,
		maxTopics: config.MaxTopics,
		timeout:   config.RequestTimeout,
		logger:    slog.Default().With("component", "openai-extractor"),
	}, nil
}

// NewTopicExtractor creates a new topic extractor using the provided configuration.
//
// Returns ai.TopicExtractor interface to enforce abstraction.
func NewTopicExtractor(config *ai.Config) (ai.TopicExtractor, error) {
	return newTopicExtractor(config)
}

// ExtractTopics asks the model for the main subjects of a transcript and
// returns the most relevant ones, deduplicated and lowercased.
func (e *TopicExtractor) ExtractTopics(ctx context.Context, text string) ([]string, error) {
	text = scrubString(text)
	if text == "" {
		return []string{}, nil
	}
	if len(text) > maxTopicInputChars {
		text = truncateAtSpace(text, maxTopicInputChars)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(buildSystemPrompt(e.maxTopics))},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(text)},
		},
	}

	// Try up to 3 times in case of malformed JSON
	var result analysis
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		response, err := e.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			e.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, err
		}

		if len(response.Choices) < 1 {
			e.logger.Debug("no choices returned from model")
			return []string{}, nil
		}

		responseText := stripCodeFence(response.Choices[0].Content)
		responseText = repairJSON(responseText)

		if err := json.Unmarshal([]byte(responseText), &result); err != nil {
			lastErr = err
			e.logger.Warn("error parsing topic response",
				"attempt", attempt+1,
				"response", responseText,
				"err", err)
			continue
		}

		lastErr = nil
		break
	}

	if lastErr != nil {
		e.logger.Error("failed to parse topic response after retries", "err", lastErr)
		return nil, lastErr
	}

	topics := rankTopics(result.Topics, e.maxTopics)
	e.logger.Debug("extracted topics", "total", len(result.Topics), "kept", len(topics))
	return topics, nil
}

// rankTopics sorts by relevance (stable), normalizes names, drops
// duplicates and keeps at most limit entries.
func rankTopics(in []topic, limit int) []string {
	slices.SortStableFunc(in, func(a, b topic) int {
		return b.Relevance - a.Relevance
	})

	out := make([]string, 0, min(len(in), limit))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		name := strings.Join(strings.Fields(strings.ToLower(t.Topic)), " ")
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
		if len(out) == limit {
			break
		}
	}
	return out
}
