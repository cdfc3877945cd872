// Package storage persists link prediction results across runs.
//
// Every evaluation run contributes one row, keyed by its random seed, to a
// shared result table in a results directory. Runs for different seeds are
// typically launched in parallel, so each write is a read-merge-write under
// an exclusive advisory file lock:
//
//	lock → read table → upsert row → write table → unlock
//
// Two backends are available:
//   - csv: the table lives in test_results.csv and is rewritten atomically
//     (temp file + rename) on every save
//   - badger: one BadgerDB key per seed in test_results.badger, exported to
//     the same CSV layout on demand
//
// Example:
//
//	store, err := storage.NewResultStore(storage.BackendCSV, "./results")
//	if err != nil {
//		return err
//	}
//	err = store.Save(ctx, 0, map[string]float64{"mean_rank_lp": 3.2})
//
// ELI12 (Explain Like I'm 12):
//
// Picture a class scoreboard on the wall. Many students finish their tests
// at once and each wants to write a score. The lock is the single marker
// pen: whoever holds it updates their own line, then hands the pen over.
// Nobody erases anybody else's score.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Backend names a result store implementation.
type Backend string

const (
	// BackendCSV stores the table as a CSV file.
	BackendCSV Backend = "csv"
	// BackendBadger stores one BadgerDB record per seed.
	BackendBadger Backend = "badger"
)

// File names inside a results directory.
const (
	ResultsCSVFile    = "test_results.csv"
	ResultsBadgerDir  = "test_results.badger"
	ResultsLockFile   = "test_results.lock"
	resultsTempPrefix = "test_results-*.csv.tmp"
)

// ErrUnknownBackend is returned for a backend name other than csv or badger.
var ErrUnknownBackend = errors.New("unknown results backend")

// ResultStore accumulates per-seed metric rows.
type ResultStore interface {
	// Save merges values into the row for seed. Existing columns of other
	// seeds, and columns of this seed not in values, are preserved.
	Save(ctx context.Context, seed int, values map[string]float64) error

	// Load returns the full table. A missing table is empty, not an error.
	Load(ctx context.Context) (*Table, error)

	// Path returns where the table is stored.
	Path() string
}

// ParseBackend converts a name such as "csv" into a Backend.
func ParseBackend(name string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(name)))
	switch b {
	case BackendCSV, BackendBadger:
		return b, nil
	case "":
		return BackendCSV, nil
	}
	return "", fmt.Errorf("%w: %q (want csv or badger)", ErrUnknownBackend, name)
}

// NewResultStore returns the store for backend rooted at dir. The directory
// is created if it does not exist.
func NewResultStore(backend Backend, dir string) (ResultStore, error) {
	if dir == "" {
		return nil, errors.New("results directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	switch backend {
	case BackendCSV, "":
		return NewCSVStore(dir), nil
	case BackendBadger:
		return NewBadgerStore(dir), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, string(backend))
	}
}

// Touch creates path as an empty file if it does not exist. An existing
// file is left untouched.
func Touch(path string) error {
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f.Close()
}

// withLock runs fn while holding the lock file of dir.
func withLock(dir string, fn func() error) error {
	lockPath := filepath.Join(dir, ResultsLockFile)
	if err := Touch(lockPath); err != nil {
		return err
	}

	lock := NewFileLock(lockPath)
	if err := lock.Lock(); err != nil {
		return err
	}

	fnErr := fn()
	if err := lock.Unlock(); err != nil && fnErr == nil {
		return err
	}
	return fnErr
}
