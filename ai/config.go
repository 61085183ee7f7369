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

package ai

import (
	"errors"
	"strings"
	"time"
)

// DefaultMaxRequestBytes keeps each transcription upload under the 25 MB
// limit enforced by hosted Whisper endpoints.
const DefaultMaxRequestBytes = 24 << 20

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// ClassifierHost is the base URL for the topic extraction service API.
	ClassifierHost string

	// TranscriptionHost is the base URL for the speech-to-text API.
	// Example: "http://localhost:8000/v1" for a local faster-whisper server
	TranscriptionHost string

	// APIKey is sent as the bearer token to every host.
	// Local servers usually accept any value.
	APIKey string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "nomic-embed-text", "text-embedding-3-small"
	EmbeddingModel string

	// ClassifierModel is the model identifier to use for topic extraction.
	// Example: "qwen2.5:3b", "gpt-4o-mini"
	ClassifierModel string

	// TranscriptionModel is the speech-to-text model identifier.
	// Example: "whisper-1", "Systran/faster-whisper-small"
	TranscriptionModel string

	// MaxTopics caps the number of topics kept per recording.
	// Default: 8
	MaxTopics int

	// RequestTimeout bounds each embedding and topic call.
	// Default: 30s
	RequestTimeout time.Duration

	// TranscriptionTimeout bounds each transcription request window.
	// Default: 10m
	TranscriptionTimeout time.Duration

	// MaxRequestBytes is the largest audio window sent in one transcription request.
	// Default: 24 MiB
	MaxRequestBytes int64
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithClassifierHost sets the classifier service host URL.
func WithClassifierHost(host string) ConfigOption {
	return func(c *Config) {
		c.ClassifierHost = host
	}
}

// WithTranscriptionHost sets the speech-to-text service host URL.
func WithTranscriptionHost(host string) ConfigOption {
	return func(c *Config) {
		c.TranscriptionHost = host
	}
}

// WithHost points every service at the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.ClassifierHost = host
		c.TranscriptionHost = host
	}
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithClassifierModel sets the classifier model identifier.
func WithClassifierModel(model string) ConfigOption {
	return func(c *Config) {
		c.ClassifierModel = model
	}
}

// WithTranscriptionModel sets the speech-to-text model identifier.
func WithTranscriptionModel(model string) ConfigOption {
	return func(c *Config) {
		c.TranscriptionModel = model
	}
}

// WithMaxTopics sets the topic cap.
func WithMaxTopics(n int) ConfigOption {
	return func(c *Config) {
		c.MaxTopics = n
	}
}

// WithRequestTimeout sets the per-call timeout for embeddings and topics.
func WithRequestTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

// WithTranscriptionTimeout sets the per-window transcription timeout.
func WithTranscriptionTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.TranscriptionTimeout = d
	}
}

// WithMaxRequestBytes sets the transcription window size.
func WithMaxRequestBytes(n int64) ConfigOption {
	return func(c *Config) {
		c.MaxRequestBytes = n
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
// By default, every service uses the same host.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingHost:        defaultHost,
		ClassifierHost:       defaultHost,
		TranscriptionHost:    defaultHost,
		APIKey:               "none",
		EmbeddingModel:       "nomic-embed-text",
		ClassifierModel:      "qwen2.5:3b",
		TranscriptionModel:   "whisper-1",
		MaxTopics:            8,
		RequestTimeout:       30 * time.Second,
		TranscriptionTimeout: 10 * time.Minute,
		MaxRequestBytes:      DefaultMaxRequestBytes,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithTranscriptionHost("http://localhost:8000/v1"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to hosts if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	c.ClassifierHost = normalizeHost(c.ClassifierHost)
	c.TranscriptionHost = normalizeHost(c.TranscriptionHost)
	if c.APIKey == "" {
		c.APIKey = "none"
	}
}

func normalizeHost(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.ClassifierHost == "" {
		return errors.New("ai config: ClassifierHost is required")
	}
	if c.TranscriptionHost == "" {
		return errors.New("ai config: TranscriptionHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.ClassifierModel == "" {
		return errors.New("ai config: ClassifierModel is required")
	}
	if c.TranscriptionModel == "" {
		return errors.New("ai config: TranscriptionModel is required")
	}
	if c.MaxTopics < 1 || c.MaxTopics > 20 {
		return errors.New("ai config: MaxTopics must be between 1 and 20")
	}
	if c.RequestTimeout <= 0 || c.TranscriptionTimeout <= 0 {
		return errors.New("ai config: timeouts must be positive")
	}
	if c.MaxRequestBytes < 1<<20 {
		return errors.New("ai config: MaxRequestBytes must be at least 1 MiB")
	}
	return nil
}
