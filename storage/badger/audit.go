package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/storage"
)

// AuditRepository implements storage.AuditRepository for BadgerDB.
type AuditRepository struct {
	base
	idSeq *badger.Sequence
}

var _ storage.AuditRepository = (*AuditRepository)(nil)

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(backend *Backend) (*AuditRepository, error) {
	idSeq, err := backend.GetSequence(auditIDSeq)
	if err != nil {
		return nil, err
	}
	return &AuditRepository{
		base:  base{backend: backend},
		idSeq: idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *AuditRepository) Close() error {
	return r.idSeq.Release()
}

// AppendAudit stores a new entry.
func (r *AuditRepository) AppendAudit(ctx context.Context, entry *core.AuditEntry) (*core.AuditEntry, error) {
	id, err := nextID(r.idSeq)
	if err != nil {
		return nil, err
	}
	entry.Id = core.ID(id)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	err = r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		if err := writeAudit(tx, entry); err != nil {
			return err
		}
		if entry.PostID != 0 {
			return tx.Set(makeAuditPostKey(entry.PostID, entry.Id), nil)
		}
		return nil
	}, true)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListAudit returns matching entries newest first.
func (r *AuditRepository) ListAudit(ctx context.Context, filter storage.AuditFilter, offset, limit int) ([]*core.AuditEntry, int, error) {
	var results []*core.AuditEntry
	total := 0
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		prefix := []byte(auditPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(prefixEnd(prefix)); iter.Valid(); iter.Next() {
			var entry *core.AuditEntry
			err := iter.Item().Value(func(val []byte) error {
				var err error
				entry, err = storage.UnmarshalAuditEntry(val)
				return err
			})
			if err != nil {
				return err
			}
			if !matchesAudit(entry, filter) {
				continue
			}

			index := total
			total++
			if index >= offset && (limit <= 0 || index < offset+limit) {
				results = append(results, entry)
			}
		}
		return nil
	}, false)
	return results, total, err
}

func matchesAudit(e *core.AuditEntry, f storage.AuditFilter) bool {
	if f.UserID != 0 && e.UserID != f.UserID {
		return false
	}
	if f.PostID != 0 && e.PostID != f.PostID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	return true
}

func writeAudit(tx *badger.Txn, entry *core.AuditEntry) error {
	value, err := storage.MarshalAuditEntry(entry)
	if err != nil {
		return err
	}
	return tx.Set(makeAuditKey(entry.Id), value)
}

// detachAudit nulls the post reference of every audit entry pointing at postID.
func detachAudit(tx *badger.Txn, postID core.ID) error {
	prefix := makeAuditPostPrefix(postID)
	for _, key := range collectKeys(tx, prefix) {
		auditID := core.ID(keyPart(key, auditPostPrefix, 1))
		entry, err := readValue(tx, makeAuditKey(auditID), storage.UnmarshalAuditEntry)
		if err != nil {
			return err
		}
		if entry != nil {
			entry.PostID = 0
			if err := writeAudit(tx, entry); err != nil {
				return err
			}
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
