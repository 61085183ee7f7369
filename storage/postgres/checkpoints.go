package postgres

import (
	"context"
	"errors"

	"github.com/poiesic/voicevault/storage"
)

// SaveCheckpoint persists a checkpoint for a processor type.
func (s *Store) SaveCheckpoint(ctx context.Context, checkpoint *storage.Checkpoint) error {
	checkpoint.UpdatedAt = now()
	_, err := s.db(ctx).Exec(ctx, `INSERT INTO checkpoints (processor_type, last_processed_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (processor_type) DO UPDATE SET last_processed_id = EXCLUDED.last_processed_id,
			updated_at = EXCLUDED.updated_at`,
		checkpoint.ProcessorType, chunkKey(checkpoint.LastProcessedID), checkpoint.UpdatedAt)
	return mapError(err)
}

// LoadCheckpoint retrieves the checkpoint for a processor type.
// Returns nil, nil if no checkpoint exists.
func (s *Store) LoadCheckpoint(ctx context.Context, processorType string) (*storage.Checkpoint, error) {
	var key int64
	cp := &storage.Checkpoint{ProcessorType: processorType}
	err := s.db(ctx).QueryRow(ctx, `SELECT last_processed_id, updated_at FROM checkpoints
		WHERE processor_type = $1`, processorType).Scan(&key, &cp.UpdatedAt)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	cp.LastProcessedID = chunkIDFromKey(key)
	cp.UpdatedAt = cp.UpdatedAt.UTC()
	return cp, nil
}
