package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	base
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) *ChunkRepository {
	return &ChunkRepository{base: base{backend: backend}}
}

// GetChunks returns a post's chunks ordered by start time.
func (r *ChunkRepository) GetChunks(ctx context.Context, postID core.ID, limit int) ([]*core.TranscriptChunk, error) {
	var results []*core.TranscriptChunk
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		var err error
		results, err = readChunks(tx, postID, limit)
		return err
	}, false)
	return results, err
}

// ChunksForUser returns the chunks of every ready post the user owns.
func (r *ChunkRepository) ChunksForUser(ctx context.Context, userID core.UserID) ([]*core.ScopedChunk, error) {
	var results []*core.ScopedChunk
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		for _, key := range collectKeys(tx, makePostUserPrefix(userID)) {
			post, err := readPost(tx, core.ID(keyPart(key, postUserPrefix, 2)))
			if err != nil {
				return err
			}
			if post == nil || post.UserID != userID || post.Status != core.StatusReady {
				continue
			}

			chunks, err := readChunks(tx, post.Id, 0)
			if err != nil {
				return err
			}
			for _, c := range chunks {
				results = append(results, &core.ScopedChunk{
					Chunk:         c,
					PostTitle:     post.Title,
					PostCreatedAt: post.CreatedAt,
				})
			}
		}
		return nil
	}, false)
	return results, err
}

// ChunksMissingEmbedding returns chunks without an embedding after afterID.
func (r *ChunkRepository) ChunksMissingEmbedding(ctx context.Context, afterID core.ID, limit int) ([]*core.TranscriptChunk, error) {
	var results []*core.TranscriptChunk
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkMissPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makeKey(chunkMissPrefix, uint64(afterID)+1)); iter.Valid(); iter.Next() {
			if limit > 0 && len(results) >= limit {
				break
			}
			key := iter.Item().Key()
			chunkID := core.ID(keyPart(key, chunkMissPrefix, 0))
			if chunkID <= afterID {
				continue
			}
			postID := core.ID(keyPart(key, chunkMissPrefix, 1))
			index := int(keyPart(key, chunkMissPrefix, 2))

			chunk, err := readChunk(tx, postID, index)
			if err != nil {
				return err
			}
			if chunk != nil && chunk.Id == chunkID {
				results = append(results, chunk)
			}
		}
		return nil
	}, false)
	return results, err
}

// SetChunkEmbeddings attaches embeddings to chunks that still lack one.
func (r *ChunkRepository) SetChunkEmbeddings(ctx context.Context, chunks ...*core.TranscriptChunk) (int, error) {
	updated := 0
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		for _, c := range chunks {
			if !c.Embedding.Present() {
				continue
			}
			missKey := makeChunkMissingKey(c.Id, c.PostID, c.Index)
			if _, err := tx.Get(missKey); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}

			stored, err := readChunk(tx, c.PostID, c.Index)
			if err != nil {
				return err
			}
			if stored == nil || stored.Id != c.Id {
				continue
			}

			stored.Embedding = c.Embedding
			if err := writeChunk(tx, stored); err != nil {
				return err
			}
			updated++
		}
		return nil
	}, true)
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// readChunks loads up to limit chunks of a post in index order.
func readChunks(tx *badger.Txn, postID core.ID, limit int) ([]*core.TranscriptChunk, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makeChunkPrefix(postID)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var results []*core.TranscriptChunk
	for iter.Rewind(); iter.Valid(); iter.Next() {
		if limit > 0 && len(results) >= limit {
			break
		}
		var chunk *core.TranscriptChunk
		err := iter.Item().Value(func(val []byte) error {
			var err error
			chunk, err = decodeChunk(tx, val)
			return err
		})
		if err != nil {
			return nil, err
		}
		results = append(results, chunk)
	}
	return results, nil
}

func readChunk(tx *badger.Txn, postID core.ID, index int) (*core.TranscriptChunk, error) {
	return readValue(tx, makeChunkKey(postID, index), func(val []byte) (*core.TranscriptChunk, error) {
		return decodeChunk(tx, val)
	})
}

func decodeChunk(tx *badger.Txn, val []byte) (*core.TranscriptChunk, error) {
	return storage.UnmarshalChunk(val, func(c *core.TranscriptChunk) ([]float32, error) {
		item, err := tx.Get(makeChunkVectorKey(c.PostID, c.Index))
		if err != nil {
			return nil, err
		}
		var vector []float32
		err = item.Value(func(raw []byte) error {
			var decodeErr error
			vector, decodeErr = core.DecodeVector(raw)
			return decodeErr
		})
		return vector, err
	})
}

// writeChunk stores the chunk record and either its vector or a
// missing-embedding index entry.
func writeChunk(tx *badger.Txn, c *core.TranscriptChunk) error {
	value, err := storage.MarshalChunk(c)
	if err != nil {
		return err
	}
	if err := tx.Set(makeChunkKey(c.PostID, c.Index), value); err != nil {
		return err
	}

	missKey := makeChunkMissingKey(c.Id, c.PostID, c.Index)
	if c.Embedding.Present() {
		if err := tx.Set(makeChunkVectorKey(c.PostID, c.Index), core.EncodeVector(c.Embedding.Vector())); err != nil {
			return err
		}
		return tx.Delete(missKey)
	}
	return tx.Set(missKey, nil)
}

// deleteChunks removes every chunk of a post along with vectors and index entries.
func deleteChunks(tx *badger.Txn, postID core.ID) error {
	chunks, err := readChunks(tx, postID, 0)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		keys := [][]byte{
			makeChunkKey(postID, c.Index),
			makeChunkVectorKey(postID, c.Index),
			makeChunkMissingKey(c.Id, postID, c.Index),
		}
		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
	}
	return nil
}
