package badger

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/storage"
)

// FileRepository implements storage.FileRepository for BadgerDB.
type FileRepository struct {
	base
}

var _ storage.FileRepository = (*FileRepository)(nil)

// NewFileRepository creates a new FileRepository.
func NewFileRepository(backend *Backend) *FileRepository {
	return &FileRepository{base: base{backend: backend}}
}

// PutFile inserts or replaces the ledger row for (PostID, Role).
func (r *FileRepository) PutFile(ctx context.Context, file *core.ArchiveFile) error {
	return r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		return putFile(tx, file)
	}, true)
}

// GetFile returns the ledger row for (postID, role).
func (r *FileRepository) GetFile(ctx context.Context, postID core.ID, role core.FileRole) (*core.ArchiveFile, error) {
	var result *core.ArchiveFile
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = readValue(tx, makeFileKey(postID, role), storage.UnmarshalArchiveFile)
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

// ListFiles returns every ledger row of a post in role order.
func (r *FileRepository) ListFiles(ctx context.Context, postID core.ID) ([]*core.ArchiveFile, error) {
	var results []*core.ArchiveFile
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeFilePrefix(postID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var file *core.ArchiveFile
			err := iter.Item().Value(func(val []byte) error {
				var err error
				file, err = storage.UnmarshalArchiveFile(val)
				return err
			})
			if err != nil {
				return err
			}
			results = append(results, file)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	order := core.FileRoles()
	slices.SortFunc(results, func(a, b *core.ArchiveFile) int {
		return slices.Index(order, a.Role) - slices.Index(order, b.Role)
	})
	return results, nil
}

func putFile(tx *badger.Txn, file *core.ArchiveFile) error {
	if err := core.ValidateArchiveFile(file); err != nil {
		return err
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}
	value, err := storage.MarshalArchiveFile(file)
	if err != nil {
		return err
	}
	return tx.Set(makeFileKey(file.PostID, file.Role), value)
}
