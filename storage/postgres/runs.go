package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/storage"
)

// CommitRun replaces a post's derived data with the results of one run.
func (s *Store) CommitRun(ctx context.Context, result *storage.RunResult) (*core.Post, error) {
	if err := storage.ValidateRunResult(result); err != nil {
		return nil, err
	}
	metadata, err := core.MarshalMetadata(result.Metadata)
	if err != nil {
		return nil, err
	}

	var committed *core.Post
	err = s.inTx(ctx, func(db DBTX) error {
		post, err := getPost(ctx, db, result.PostID, true)
		if err != nil {
			return err
		}
		if post.Status != core.StatusProcessing || post.LastRunID != result.RunID {
			return fmt.Errorf("%w: post %d is %s under run %q",
				storage.ErrStatusConflict, post.Id, post.Status, post.LastRunID)
		}

		ts := now()
		batch := &pgx.Batch{}
		batch.Queue(`DELETE FROM transcript_chunks WHERE post_id = $1`, int64(post.Id))
		for i, c := range result.Chunks {
			c.PostID = post.Id
			c.Index = i
			if c.Id == 0 {
				c.Id = core.ChunkID(post.Id, result.RunID, i)
			}
			if c.CreatedAt.IsZero() {
				c.CreatedAt = ts
			}
			vector, model := embeddingArgs(c.Embedding)
			batch.Queue(`INSERT INTO transcript_chunks (`+chunkColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				chunkKey(c.Id), int64(post.Id), c.Index, c.StartSec, c.EndSec, c.Text,
				c.Confidence, vector, model, c.CreatedAt)
		}
		batch.Queue(`INSERT INTO archive_metadata (post_id, data) VALUES ($1, $2)
			ON CONFLICT (post_id) DO UPDATE SET data = EXCLUDED.data`,
			int64(post.Id), metadata)
		for _, f := range result.Files {
			if f.CreatedAt.IsZero() {
				f.CreatedAt = ts
			}
			queuePutFile(batch, f)
		}
		if err := db.SendBatch(ctx, batch).Close(); err != nil {
			return mapError(err)
		}

		post.Status = core.StatusReady
		post.FailureReason = ""
		post.UpdatedAt = ts
		committed = post
		return savePost(ctx, db, post)
	})
	if err != nil {
		return nil, err
	}
	return committed, nil
}

// GetMetadata returns the metadata of a post.
func (s *Store) GetMetadata(ctx context.Context, postID core.ID) (*core.ArchiveMetadata, error) {
	var data []byte
	err := s.db(ctx).QueryRow(ctx, `SELECT data FROM archive_metadata WHERE post_id = $1`,
		int64(postID)).Scan(&data)
	if err != nil {
		return nil, mapError(err)
	}
	return core.UnmarshalMetadata(data)
}
