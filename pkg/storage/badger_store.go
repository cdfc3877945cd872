package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

// prefixSeed keys one row per seed: 0x01 + big-endian uint64(seed) -> JSON
// column map. Big-endian keys iterate in seed order for non-negative seeds.
const prefixSeed = byte(0x01)

// BadgerStore keeps the result table in a BadgerDB directory.
//
// Badger allows a single process per directory, so the database is opened
// for the duration of one operation and always under the results lock.
// Parallel runs queue on the lock exactly as with the CSV backend.
type BadgerStore struct {
	dir string
}

// NewBadgerStore returns a Badger store rooted at dir.
func NewBadgerStore(dir string) *BadgerStore {
	return &BadgerStore{dir: dir}
}

// Path returns the database directory.
func (s *BadgerStore) Path() string {
	return filepath.Join(s.dir, ResultsBadgerDir)
}

// Save merges values into the seed's record in one transaction.
func (s *BadgerStore) Save(ctx context.Context, seed int, values map[string]float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return withLock(s.dir, func() error {
		return s.withDB(func(db *badger.DB) error {
			return db.Update(func(txn *badger.Txn) error {
				row := make(map[string]float64, len(values))

				item, err := txn.Get(seedKey(seed))
				switch {
				case err == badger.ErrKeyNotFound:
				case err != nil:
					return err
				default:
					if err := item.Value(func(val []byte) error {
						return json.Unmarshal(val, &row)
					}); err != nil {
						return fmt.Errorf("failed to decode seed %d: %w", seed, err)
					}
				}

				for k, v := range values {
					row[k] = v
				}
				data, err := json.Marshal(row)
				if err != nil {
					return fmt.Errorf("failed to encode seed %d: %w", seed, err)
				}
				return txn.Set(seedKey(seed), data)
			})
		})
	})
}

// Load reads every record into a table.
func (s *BadgerStore) Load(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table := NewTable()
	err := withLock(s.dir, func() error {
		return s.withDB(func(db *badger.DB) error {
			return db.View(func(txn *badger.Txn) error {
				opts := badger.DefaultIteratorOptions
				opts.Prefix = []byte{prefixSeed}
				it := txn.NewIterator(opts)
				defer it.Close()

				for it.Rewind(); it.Valid(); it.Next() {
					item := it.Item()
					seed := seedFromKey(item.Key())
					var row map[string]float64
					if err := item.Value(func(val []byte) error {
						return json.Unmarshal(val, &row)
					}); err != nil {
						return fmt.Errorf("failed to decode seed %d: %w", seed, err)
					}
					table.Upsert(seed, row)
				}
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

func (s *BadgerStore) withDB(fn func(db *badger.DB) error) error {
	opts := badger.DefaultOptions(s.Path()).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open badger results: %w", err)
	}

	fnErr := fn(db)
	if err := db.Close(); err != nil && fnErr == nil {
		return fmt.Errorf("failed to close badger results: %w", err)
	}
	return fnErr
}

func seedKey(seed int) []byte {
	key := make([]byte, 9)
	key[0] = prefixSeed
	binary.BigEndian.PutUint64(key[1:], uint64(seed))
	return key
}

func seedFromKey(key []byte) int {
	return int(binary.BigEndian.Uint64(key[1:]))
}
