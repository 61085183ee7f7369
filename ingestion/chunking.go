package ingestion

import (
	"context"
	"fmt"

	"github.com/poiesic/voicevault/chunker"
	"github.com/poiesic/voicevault/core"
)

// chunkStage partitions the run's segments into transcript chunks.
type chunkStage struct {
	chunker *chunker.Chunker
}

var _ stage = (*chunkStage)(nil)

func (s *chunkStage) name() string { return "chunk" }

func (s *chunkStage) process(ctx context.Context, r *run) error {
	chunks, err := s.chunker.Chunk(r.segments)
	if err != nil {
		// segments come straight from the transcriber
		return fmt.Errorf("%w: %w", core.ErrTranscription, err)
	}
	for i, c := range chunks {
		c.PostID = r.post.Id
		c.Index = i
		c.Id = core.ChunkID(r.post.Id, r.id, i)
	}
	r.chunks = chunks
	return nil
}
