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

// Package ai provides abstractions for the AI services used by VoiceVault.
//
// # Interfaces
//
//   - Transcriber: converts audio into timestamped segments
//   - Embedder: generates vector embeddings from text
//   - TopicExtractor: derives short topic labels from a transcript
//   - AIProvider: aggregates the services for initialization and shutdown
//
// # Implementation Packages
//
//   - ai/openai: production implementation using OpenAI-compatible APIs
//   - ai/mock: test doubles for unit testing without external services
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, openai.NewEmbedder, etc.) return
// INTERFACE types. Test utility constructors (mock.NewMockEmbedder,
// mock.NewMockTranscriber) return CONCRETE types so tests can inject
// behavior and assert on call counts.
//
//	provider, err := openai.NewProvider(config)  // returns ai.AIProvider
//	mockEmbed := mock.NewMockEmbedder()          // returns *mock.MockEmbedder
//
// # Error Contract
//
// Transcribers wrap failures in core.ErrTranscription and mark transient
// ones with core.Retryable. Embedders wrap failures in
// core.ErrEmbeddingUnavailable; callers store the chunk without a vector.
package ai
