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

package ingestion

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/voicevault/ai"
	"github.com/poiesic/voicevault/core"
)

// embeddingStage embeds every chunk of a run. Chunks fan out over a
// shared pool and rejoin by index. A chunk whose embedding fails is kept
// without one, so an embedding outage never fails the run.
type embeddingStage struct {
	embedder ai.Embedder
	pool     *ants.Pool
}

var _ stage = (*embeddingStage)(nil)

func (s *embeddingStage) name() string { return "embed" }

func (s *embeddingStage) process(ctx context.Context, r *run) error {
	if s.embedder == nil || len(r.chunks) == 0 {
		return nil
	}

	vectors := make([][]float32, len(r.chunks))
	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)
	for i, c := range r.chunks {
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			vec, err := s.embedder.EmbedText(ctx, c.Text)
			if err != nil {
				failed.Add(1)
				r.logger.Debug("chunk embedding failed", "index", i, "error", err)
				return
			}
			vectors[i] = vec
		})
		if err != nil {
			wg.Done()
			failed.Add(1)
			r.logger.Debug("chunk embedding not scheduled", "index", i, "error", err)
		}
	}
	wg.Wait()

	model := s.embedder.Model()
	for i, vec := range vectors {
		if len(vec) == 0 {
			continue
		}
		r.chunks[i].Embedding = core.NewEmbedding(core.NormalizeVector(vec), model)
		r.embedded++
	}
	if r.embedded > 0 {
		r.model = model
	}

	chunksEmbedded.Add(float64(r.embedded))
	if n := failed.Load(); n > 0 {
		embeddingFailures.Add(float64(n))
		r.logger.Warn("chunks stored without embedding", "failed", n, "chunks", len(r.chunks))
	}
	return nil
}
