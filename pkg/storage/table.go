package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformedTable is returned when a result table cannot be parsed.
var ErrMalformedTable = errors.New("malformed result table")

// Table is the accumulated result table: one row per seed, one column per
// metric name. A cell may be missing when a seed was evaluated by runs that
// wrote different metrics.
//
// On disk the table is CSV with the seed as an unnamed index column:
//
//	,ap_lp,mean_rank_lp,roc_lp
//	0,0.91,3.2,0.95
//	1,0.89,,0.94
//
// Columns are kept in lexicographic order and rows by ascending seed, so
// the file is identical no matter which process wrote which seed first.
type Table struct {
	rows    map[int]map[string]float64
	columns map[string]struct{}
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		rows:    make(map[int]map[string]float64),
		columns: make(map[string]struct{}),
	}
}

// Upsert merges values into the row for seed. Columns present in values
// overwrite existing cells; other cells of the row are kept.
func (t *Table) Upsert(seed int, values map[string]float64) {
	row, ok := t.rows[seed]
	if !ok {
		row = make(map[string]float64, len(values))
		t.rows[seed] = row
	}
	for col, v := range values {
		row[col] = v
		t.columns[col] = struct{}{}
	}
}

// Get returns the cell at (seed, column) and whether it is present.
func (t *Table) Get(seed int, column string) (float64, bool) {
	row, ok := t.rows[seed]
	if !ok {
		return 0, false
	}
	v, ok := row[column]
	return v, ok
}

// Row returns a copy of the row for seed, or nil if absent.
func (t *Table) Row(seed int) map[string]float64 {
	row, ok := t.rows[seed]
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// Seeds returns the row seeds in ascending order.
func (t *Table) Seeds() []int {
	seeds := make([]int, 0, len(t.rows))
	for s := range t.rows {
		seeds = append(seeds, s)
	}
	sort.Ints(seeds)
	return seeds
}

// Columns returns the column names in lexicographic order.
func (t *Table) Columns() []string {
	cols := make([]string, 0, len(t.columns))
	for c := range t.columns {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Merge upserts every row of other into t.
func (t *Table) Merge(other *Table) {
	for seed, row := range other.rows {
		t.Upsert(seed, row)
	}
}

// ReadTable parses a CSV result table. An empty input is an empty table.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	t := NewTable()

	header, err := cr.Read()
	if err == io.EOF {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedTable, err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("%w: header has no index column", ErrMalformedTable)
	}
	columns := header[1:]

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTable, err)
		}
		line, _ := cr.FieldPos(0)
		if len(record) != len(header) {
			return nil, fmt.Errorf("%w: line %d has %d fields, header has %d",
				ErrMalformedTable, line, len(record), len(header))
		}

		seed, err := parseSeed(record[0])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedTable, line, err)
		}

		values := make(map[string]float64, len(columns))
		for i, cell := range record[1:] {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d, column %q: %v",
					ErrMalformedTable, line, columns[i], err)
			}
			values[columns[i]] = v
		}
		// A row with every cell empty still exists.
		t.Upsert(seed, values)
		for _, c := range columns {
			t.columns[c] = struct{}{}
		}
	}
	return t, nil
}

// WriteCSV writes the table in its on-disk CSV form.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	columns := t.Columns()

	header := append([]string{""}, columns...)
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for _, seed := range t.Seeds() {
		row := t.rows[seed]
		record[0] = strconv.Itoa(seed)
		for i, c := range columns {
			if v, ok := row[c]; ok {
				record[i+1] = formatCell(v)
			} else {
				record[i+1] = ""
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func parseSeed(s string) (int, error) {
	s = strings.TrimSpace(s)
	if seed, err := strconv.Atoi(s); err == nil {
		return seed, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid seed %q", s)
	}
	return int(f), nil
}

// formatCell renders floats the shortest way that round-trips, keeping a
// decimal point on integral values so the column still reads as float.
func formatCell(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return s
	}
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
