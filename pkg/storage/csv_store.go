package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// CSVStore keeps the result table in <dir>/test_results.csv.
type CSVStore struct {
	dir string
}

// NewCSVStore returns a CSV store rooted at dir.
func NewCSVStore(dir string) *CSVStore {
	return &CSVStore{dir: dir}
}

// Path returns the CSV file path.
func (s *CSVStore) Path() string {
	return filepath.Join(s.dir, ResultsCSVFile)
}

// Save merges values into the row for seed under the results lock. The
// new table replaces the old one by rename, so readers never see a partial
// file.
func (s *CSVStore) Save(ctx context.Context, seed int, values map[string]float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return withLock(s.dir, func() error {
		table, err := s.read()
		if err != nil {
			return err
		}
		table.Upsert(seed, values)
		return s.write(table)
	})
}

// Load reads the table. Rename-on-write makes lock-free reads safe.
func (s *CSVStore) Load(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.read()
}

func (s *CSVStore) read() (*Table, error) {
	f, err := os.Open(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return NewTable(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open results: %w", err)
	}
	defer f.Close()

	table, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path(), err)
	}
	return table, nil
}

func (s *CSVStore) write(table *Table) error {
	tmp, err := os.CreateTemp(s.dir, resultsTempPrefix)
	if err != nil {
		return fmt.Errorf("failed to create temp results file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := table.WriteCSV(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write results: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close results: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to chmod results: %w", err)
	}

	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("failed to replace results: %w", err)
	}
	return nil
}
