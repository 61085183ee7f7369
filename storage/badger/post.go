package badger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/storage"
)

// PostRepository implements storage.PostRepository for BadgerDB.
type PostRepository struct {
	base
	idSeq *badger.Sequence
}

var _ storage.PostRepository = (*PostRepository)(nil)

// NewPostRepository creates a new PostRepository.
func NewPostRepository(backend *Backend) (*PostRepository, error) {
	idSeq, err := backend.GetSequence(postIDSeq)
	if err != nil {
		return nil, err
	}

	return &PostRepository{
		base:  base{backend: backend},
		idSeq: idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *PostRepository) Close() error {
	return r.idSeq.Release()
}

// AddPost validates and inserts a new post.
func (r *PostRepository) AddPost(ctx context.Context, post *core.Post) (*core.Post, error) {
	post.Status = core.StatusUploaded
	if err := core.ValidatePost(post); err != nil {
		return nil, err
	}

	id, err := nextID(r.idSeq)
	if err != nil {
		return nil, err
	}
	post.Id = core.ID(id)
	post.StoragePrefix = strconv.FormatUint(id, 10) + "/"
	post.CreatedAt = time.Now().UTC()
	post.UpdatedAt = post.CreatedAt

	err = r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		if err := writePost(tx, post); err != nil {
			return err
		}
		return tx.Set(makePostUserKey(post.UserID, post.CreatedAt, post.Id), nil)
	}, true)
	if err != nil {
		return nil, err
	}
	return post, nil
}

// GetPost retrieves a post by ID.
func (r *PostRepository) GetPost(ctx context.Context, id core.ID) (*core.Post, error) {
	var result *core.Post
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = readPost(tx, id)
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

// ListPostsByUser returns a user's posts, newest first.
func (r *PostRepository) ListPostsByUser(ctx context.Context, userID core.UserID, offset, limit int) ([]*core.Post, int, error) {
	var results []*core.Post
	total := 0
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		prefix := makePostUserPrefix(userID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(prefixEnd(prefix)); iter.Valid(); iter.Next() {
			index := total
			total++
			if index < offset || (limit > 0 && index >= offset+limit) {
				continue
			}

			id := core.ID(keyPart(iter.Item().Key(), postUserPrefix, 2))
			post, err := readPost(tx, id)
			if err != nil {
				return err
			}
			if post != nil {
				results = append(results, post)
			}
		}
		return nil
	}, false)
	return results, total, err
}

// UpdatePost saves the editable fields of a post.
func (r *PostRepository) UpdatePost(ctx context.Context, post *core.Post) (*core.Post, error) {
	var result *core.Post
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		current, err := readPost(tx, post.Id)
		if err != nil {
			return err
		}
		if current == nil {
			return storage.ErrNotFound
		}

		current.Title = post.Title
		current.Description = post.Description
		current.Visibility = post.Visibility
		current.Language = post.Language
		if err := core.ValidatePost(current); err != nil {
			return err
		}
		current.UpdatedAt = time.Now().UTC()

		result = current
		return writePost(tx, current)
	}, true)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TransitionStatus performs a compare-and-set status change.
func (r *PostRepository) TransitionStatus(ctx context.Context, id core.ID, from, to core.Status, mutate func(*core.Post)) (*core.Post, error) {
	var result *core.Post
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		post, err := readPost(tx, id)
		if err != nil {
			return err
		}
		if post == nil {
			return storage.ErrNotFound
		}
		if post.Status != from {
			return fmt.Errorf("%w: post %d is %s, expected %s", storage.ErrStatusConflict, id, post.Status, from)
		}
		if err := core.ValidateTransition(from, to); err != nil {
			return err
		}

		if mutate != nil {
			mutate(post)
		}
		post.Status = to
		post.UpdatedAt = time.Now().UTC()

		result = post
		return writePost(tx, post)
	}, true)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeletePost removes a post and everything that belongs to it.
func (r *PostRepository) DeletePost(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		post, err := readPost(tx, id)
		if err != nil {
			return err
		}
		if post == nil {
			return storage.ErrNotFound
		}

		if err := deleteChunks(tx, id); err != nil {
			return err
		}
		for _, key := range collectKeys(tx, makeFilePrefix(id)) {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		if err := tx.Delete(makeMetadataKey(id)); err != nil {
			return err
		}
		if err := detachAudit(tx, id); err != nil {
			return err
		}
		if err := tx.Delete(makePostUserKey(post.UserID, post.CreatedAt, id)); err != nil {
			return err
		}
		return tx.Delete(makePostKey(id))
	}, true)
}

func readPost(tx *badger.Txn, id core.ID) (*core.Post, error) {
	return readValue(tx, makePostKey(id), storage.UnmarshalPost)
}

func writePost(tx *badger.Txn, post *core.Post) error {
	value, err := storage.MarshalPost(post)
	if err != nil {
		return err
	}
	return tx.Set(makePostKey(post.Id), value)
}
