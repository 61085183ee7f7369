package badger

import (
	"context"
	"errors"

	"github.com/poiesic/voicevault/storage"
)

// Store bundles every BadgerDB repository over one backend.
type Store struct {
	*PostRepository
	*FileRepository
	*ChunkRepository
	*RunRepository
	*AuditRepository
	*CheckpointRepository

	backend *Backend
}

var _ storage.Store = (*Store)(nil)

// NewStore opens a BadgerDB store at path.
func NewStore(path string) (*Store, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return newStore(backend)
}

func newStore(backend *Backend) (*Store, error) {
	posts, err := NewPostRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	audit, err := NewAuditRepository(backend)
	if err != nil {
		posts.Close()
		backend.Close()
		return nil, err
	}

	return &Store{
		PostRepository:       posts,
		FileRepository:       NewFileRepository(backend),
		ChunkRepository:      NewChunkRepository(backend),
		RunRepository:        NewRunRepository(backend),
		AuditRepository:      audit,
		CheckpointRepository: NewCheckpointRepository(backend),
		backend:              backend,
	}, nil
}

// WithTransaction runs fn in one transaction shared by every repository.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.backend.WithTransaction(ctx, fn)
}

// Close releases the ID sequences and closes the database.
func (s *Store) Close() error {
	return errors.Join(
		s.PostRepository.Close(),
		s.AuditRepository.Close(),
		s.backend.Close(),
	)
}
