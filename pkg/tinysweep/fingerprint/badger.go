package fingerprint

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/types"
)

var sigPrefix = []byte("sig:")

func sigKey(path string) []byte {
	return append(append([]byte{}, sigPrefix...), path...)
}

// BadgerStore keeps signatures in a Badger database directory, one key per
// relative path.
type BadgerStore struct {
	db   *badger.DB
	path string
}

// OpenBadger opens or creates the database at dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening signature database: %w", err)
	}
	return &BadgerStore{db: db, path: dir}, nil
}

// Location returns the database directory.
func (s *BadgerStore) Location() string {
	return s.path
}

// Load reads every signature key.
func (s *BadgerStore) Load(ctx context.Context) (map[string]types.Fingerprint, error) {
	entries := make(map[string]types.Fingerprint)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(sigPrefix); it.ValidForPrefix(sigPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			path := string(item.Key()[len(sigPrefix):])
			err := item.Value(func(val []byte) error {
				entries[path] = types.Fingerprint(val)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading signature database: %w", err)
	}
	return entries, nil
}

// Save makes the stored key set equal to entries: stale paths are deleted
// and the rest written in one batch.
func (s *BadgerStore) Save(ctx context.Context, entries map[string]types.Fingerprint) error {
	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(sigPrefix); it.ValidForPrefix(sigPrefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if _, keep := entries[string(key[len(sigPrefix):])]; !keep {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning signature database: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("deleting stale signature: %w", err)
		}
	}
	for path, fp := range entries {
		if err := wb.Set(sigKey(path), []byte(fp)); err != nil {
			return fmt.Errorf("writing signature for %s: %w", path, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flushing signatures: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
