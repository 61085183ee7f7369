package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/poiesic/voicevault/core"
)

const chunkColumns = `id, post_id, chunk_index, start_sec, end_sec, text, confidence,
	embedding, embedding_model, created_at`

func scanChunk(row pgx.Row, extra ...any) (*core.TranscriptChunk, error) {
	var (
		c      core.TranscriptChunk
		key    int64
		postID int64
		vector []byte
		model  *string
	)
	dest := append([]any{&key, &postID, &c.Index, &c.StartSec, &c.EndSec, &c.Text, &c.Confidence,
		&vector, &model, &c.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	c.Id = chunkIDFromKey(key)
	c.PostID = core.ID(postID)
	c.CreatedAt = c.CreatedAt.UTC()
	if vector != nil {
		v, err := core.DecodeVector(vector)
		if err != nil {
			return nil, err
		}
		name := ""
		if model != nil {
			name = *model
		}
		c.Embedding = core.NewEmbedding(v, name)
	}
	return &c, nil
}

func collectChunks(rows pgx.Rows) ([]*core.TranscriptChunk, error) {
	defer rows.Close()
	var chunks []*core.TranscriptChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, mapError(err)
		}
		chunks = append(chunks, c)
	}
	return chunks, mapError(rows.Err())
}

// embeddingArgs returns the bytea and model values for a chunk's embedding.
func embeddingArgs(e core.Embedding) ([]byte, *string) {
	if !e.Present() {
		return nil, nil
	}
	model := e.Model()
	return core.EncodeVector(e.Vector()), &model
}

// GetChunks returns a post's chunks ordered by start time.
func (s *Store) GetChunks(ctx context.Context, postID core.ID, limit int) ([]*core.TranscriptChunk, error) {
	rows, err := s.db(ctx).Query(ctx, `SELECT `+chunkColumns+` FROM transcript_chunks
		WHERE post_id = $1 ORDER BY start_sec, chunk_index LIMIT $2`,
		int64(postID), limitArg(limit))
	if err != nil {
		return nil, mapError(err)
	}
	return collectChunks(rows)
}

// ChunksForUser returns the chunks of every ready post the user owns.
func (s *Store) ChunksForUser(ctx context.Context, userID core.UserID) ([]*core.ScopedChunk, error) {
	rows, err := s.db(ctx).Query(ctx, `
		SELECT c.id, c.post_id, c.chunk_index, c.start_sec, c.end_sec, c.text, c.confidence,
			c.embedding, c.embedding_model, c.created_at, p.title, p.created_at
		FROM transcript_chunks c JOIN posts p ON p.id = c.post_id
		WHERE p.user_id = $1 AND p.status = $2
		ORDER BY p.created_at DESC, c.post_id, c.chunk_index`,
		int64(userID), string(core.StatusReady))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var results []*core.ScopedChunk
	for rows.Next() {
		sc := &core.ScopedChunk{}
		sc.Chunk, err = scanChunk(rows, &sc.PostTitle, &sc.PostCreatedAt)
		if err != nil {
			return nil, mapError(err)
		}
		sc.PostCreatedAt = sc.PostCreatedAt.UTC()
		results = append(results, sc)
	}
	return results, mapError(rows.Err())
}

// ChunksMissingEmbedding returns chunks without an embedding after afterID.
func (s *Store) ChunksMissingEmbedding(ctx context.Context, afterID core.ID, limit int) ([]*core.TranscriptChunk, error) {
	rows, err := s.db(ctx).Query(ctx, `SELECT `+chunkColumns+` FROM transcript_chunks
		WHERE embedding IS NULL AND id > $1 ORDER BY id LIMIT $2`,
		chunkKey(afterID), limitArg(limit))
	if err != nil {
		return nil, mapError(err)
	}
	return collectChunks(rows)
}

// SetChunkEmbeddings attaches embeddings to chunks that still lack one.
func (s *Store) SetChunkEmbeddings(ctx context.Context, chunks ...*core.TranscriptChunk) (int, error) {
	batch := &pgx.Batch{}
	for _, c := range chunks {
		if !c.Embedding.Present() {
			continue
		}
		vector, model := embeddingArgs(c.Embedding)
		batch.Queue(`UPDATE transcript_chunks SET embedding = $1, embedding_model = $2
			WHERE id = $3 AND post_id = $4 AND embedding IS NULL`,
			vector, model, chunkKey(c.Id), int64(c.PostID))
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	updated := 0
	err := s.inTx(ctx, func(db DBTX) error {
		results := db.SendBatch(ctx, batch)
		defer results.Close()
		for range batch.Len() {
			tag, err := results.Exec()
			if err != nil {
				return mapError(err)
			}
			updated += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}
