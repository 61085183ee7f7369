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

// Package openai provides AI service implementations using OpenAI-compatible APIs.
//
// Embeddings and topic extraction go through langchaingo. Speech-to-text
// uses go-openai's audio endpoint with verbose_json segment timestamps,
// which works against OpenAI, faster-whisper-server, LocalAI and similar.
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"),          // /v1 added automatically
//	    ai.WithTranscriptionHost("http://localhost:8000"),
//	)
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	segments, err := provider.Transcriber().Transcribe(ctx, ai.TranscriptionRequest{
//	    Audio:    f,
//	    FileName: "interview.mp3",
//	})
//	vector, err := provider.Embedder().EmbedText(ctx, segments[0].Text)
package openai
