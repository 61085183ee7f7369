package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
)

// base carries the behavior every BadgerDB repository shares.
type base struct {
	backend *Backend
}

// WithTransaction delegates to the backend.
func (r *base) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// Close is a no-op; the backend is closed by its owner.
func (r *base) Close() error {
	return nil
}

// readValue decodes the value stored under key.
// Returns nil, nil if the key doesn't exist.
func readValue[T any](tx *badger.Txn, key []byte, decode func([]byte) (*T, error)) (*T, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var result *T
	err = item.Value(func(val []byte) error {
		var decodeErr error
		result, decodeErr = decode(val)
		return decodeErr
	})
	return result, err
}

// collectKeys returns copies of every key under prefix.
func collectKeys(tx *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var keys [][]byte
	for iter.Rewind(); iter.Valid(); iter.Next() {
		keys = append(keys, iter.Item().KeyCopy(nil))
	}
	return keys
}
