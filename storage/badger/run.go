package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/storage"
)

// RunRepository implements storage.RunRepository and
// storage.MetadataRepository for BadgerDB.
type RunRepository struct {
	base
}

var (
	_ storage.RunRepository      = (*RunRepository)(nil)
	_ storage.MetadataRepository = (*RunRepository)(nil)
)

// NewRunRepository creates a new RunRepository.
func NewRunRepository(backend *Backend) *RunRepository {
	return &RunRepository{base: base{backend: backend}}
}

// CommitRun replaces a post's derived data with the results of one run.
func (r *RunRepository) CommitRun(ctx context.Context, result *storage.RunResult) (*core.Post, error) {
	if err := storage.ValidateRunResult(result); err != nil {
		return nil, err
	}
	metadata, err := core.MarshalMetadata(result.Metadata)
	if err != nil {
		return nil, err
	}

	var committed *core.Post
	err = r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		post, err := readPost(tx, result.PostID)
		if err != nil {
			return err
		}
		if post == nil {
			return storage.ErrNotFound
		}
		if post.Status != core.StatusProcessing || post.LastRunID != result.RunID {
			return fmt.Errorf("%w: post %d is %s under run %q",
				storage.ErrStatusConflict, post.Id, post.Status, post.LastRunID)
		}

		if err := deleteChunks(tx, post.Id); err != nil {
			return err
		}
		now := time.Now().UTC()
		for i, c := range result.Chunks {
			prepareChunk(c, post.Id, result.RunID, i, now)
			if err := writeChunk(tx, c); err != nil {
				return err
			}
		}

		if err := tx.Set(makeMetadataKey(post.Id), metadata); err != nil {
			return err
		}
		for _, f := range result.Files {
			if err := putFile(tx, f); err != nil {
				return err
			}
		}

		post.Status = core.StatusReady
		post.FailureReason = ""
		post.UpdatedAt = now
		committed = post
		return writePost(tx, post)
	}, true)
	if err != nil {
		return nil, err
	}
	return committed, nil
}

// GetMetadata returns the metadata of a post.
func (r *RunRepository) GetMetadata(ctx context.Context, postID core.ID) (*core.ArchiveMetadata, error) {
	var result *core.ArchiveMetadata
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = readValue(tx, makeMetadataKey(postID), core.UnmarshalMetadata)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// prepareChunk assigns the identity fields a chunk gets on commit.
func prepareChunk(c *core.TranscriptChunk, postID core.ID, runID string, index int, now time.Time) {
	c.PostID = postID
	c.Index = index
	if c.Id == 0 {
		c.Id = core.ChunkID(postID, runID, index)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
}
