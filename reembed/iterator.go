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

package reembed

import (
	"context"
	"fmt"

	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/storage"
)

const (
	// DefaultBatchSize is the default number of chunks to fetch in each batch
	DefaultBatchSize = 100
)

// ChunkIterator walks chunks lacking an embedding in ID order.
type ChunkIterator struct {
	store     storage.ChunkRepository
	batchSize int
}

// NewChunkIterator creates a new chunk iterator.
// batchSize: number of chunks to fetch in each batch (defaults when <= 0)
func NewChunkIterator(store storage.ChunkRepository, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &ChunkIterator{
		store:     store,
		batchSize: batchSize,
	}
}

// ForEach calls fn for each batch of chunks whose ID is greater than after.
// Iteration stops on the first error from fn or when no chunks remain.
// Context cancellation is checked between batches.
func (it *ChunkIterator) ForEach(ctx context.Context, after core.ID, fn func([]*core.TranscriptChunk) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := it.store.ChunksMissingEmbedding(ctx, after, it.batchSize)
		if err != nil {
			return fmt.Errorf("failed to list chunks after %d: %w", after, err)
		}
		if len(batch) == 0 {
			return nil
		}

		if err := fn(batch); err != nil {
			return err
		}
		after = batch[len(batch)-1].Id

		if len(batch) < it.batchSize {
			return nil
		}
	}
}

// Count returns how many chunks after the given ID still lack an embedding.
func (it *ChunkIterator) Count(ctx context.Context, after core.ID) (int, error) {
	chunks, err := it.store.ChunksMissingEmbedding(ctx, after, 0)
	if err != nil {
		return 0, err
	}
	return len(chunks), nil
}
