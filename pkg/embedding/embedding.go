// Package embedding loads per-node coordinate tables produced by an
// embedding trainer.
//
// Two layouts are supported:
//
//	FormatCSV   - comma separated, one header row, first column is the node id
//	              (hyperbolic trainers: Poincaré and hyperboloid coordinates)
//
//	              ,0,1,2
//	              1,0.12,-0.40,1.09
//	              0,0.01,0.33,1.05
//
//	FormatSpace - whitespace separated, no header, first column is the node id
//	              (Euclidean trainers such as node2vec or LINE)
//
//	              1 0.12 -0.40
//	              0 0.01 0.33
//
// Rows are re-sorted by node id, so row i of the loaded matrix is node i.
// Ids must be exactly 0..N-1 after sorting: edge lists address embedding
// rows by id, and a gap would silently shift every later node.
package embedding

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/orneryd/lpeval/pkg/math/distance"
	"github.com/orneryd/lpeval/pkg/math/vector"
)

// Format identifies an embedding file layout.
type Format int

const (
	// FormatCSV is comma separated with a header row and an index column.
	FormatCSV Format = iota
	// FormatSpace is whitespace separated with an index column and no header.
	FormatSpace
)

// String implements fmt.Stringer.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatSpace:
		return "space"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// FormatFor returns the layout trainers use for metric m.
func FormatFor(m distance.Metric) Format {
	if m == distance.Euclidean {
		return FormatSpace
	}
	return FormatCSV
}

var (
	// ErrEmpty is returned when a file has no embedding rows.
	ErrEmpty = errors.New("embedding has no rows")
	// ErrRaggedRows is returned when rows have different widths.
	ErrRaggedRows = errors.New("embedding rows have different dimensions")
	// ErrNonContiguousIDs is returned when sorted ids are not 0..N-1.
	ErrNonContiguousIDs = errors.New("embedding node ids are not contiguous from 0")
	// ErrNonFinite is returned for NaN or infinite coordinates.
	ErrNonFinite = errors.New("embedding coordinate is not finite")
)

// Embedding is a node-id-sorted coordinate matrix.
type Embedding struct {
	// IDs holds the node id of each row, ascending.
	IDs []int
	// Vectors is the N×D coordinate matrix.
	Vectors *mat.Dense
}

// Dims returns the number of nodes and the number of coordinates.
func (e *Embedding) Dims() (nodes, dims int) {
	return e.Vectors.Dims()
}

// Load reads an embedding file in format f.
func Load(path string, f Format) (*Embedding, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding: %w", err)
	}
	defer file.Close()

	emb, err := Read(file, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return emb, nil
}

// Read parses an embedding table from r in format f.
func Read(r io.Reader, f Format) (*Embedding, error) {
	var (
		rows []row
		err  error
	)
	switch f {
	case FormatCSV:
		rows, err = readCSV(r)
	case FormatSpace:
		rows, err = readSpace(r)
	default:
		return nil, fmt.Errorf("unsupported embedding format %s", f)
	}
	if err != nil {
		return nil, err
	}
	return build(rows)
}

type row struct {
	id     int
	line   int
	values []float64
}

func readCSV(r io.Reader) ([]row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	// Header row names the columns; only its presence matters.
	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var rows []row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read embedding: %w", err)
		}
		line, _ := cr.FieldPos(0)
		parsed, err := parseRow(record, line)
		if err != nil {
			return nil, err
		}
		rows = append(rows, parsed)
	}
	return rows, nil
}

func readSpace(r io.Reader) ([]row, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var rows []row
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		parsed, err := parseRow(fields, lineNo)
		if err != nil {
			return nil, err
		}
		rows = append(rows, parsed)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read embedding: %w", err)
	}

	return dropCountHeader(rows), nil
}

// dropCountHeader removes a word2vec-style "<count> <dims>" first line.
func dropCountHeader(rows []row) []row {
	if len(rows) < 2 || len(rows[0].values) != 1 || len(rows[1].values) == 1 {
		return rows
	}
	count, dims := float64(rows[0].id), rows[0].values[0]
	if dims != math.Trunc(dims) || int(dims) != len(rows[1].values) || int(count) != len(rows)-1 {
		return rows
	}
	return rows[1:]
}

func parseRow(fields []string, line int) (row, error) {
	if len(fields) < 2 {
		return row{}, fmt.Errorf("line %d: expected an id and at least one coordinate", line)
	}

	id, err := parseID(fields[0])
	if err != nil {
		return row{}, fmt.Errorf("line %d: invalid node id %q", line, fields[0])
	}

	values := make([]float64, len(fields)-1)
	for i, field := range fields[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return row{}, fmt.Errorf("line %d, column %d: %w", line, i+1, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return row{}, fmt.Errorf("line %d, column %d: %w: %q", line, i+1, ErrNonFinite, field)
		}
		values[i] = v
	}
	return row{id: id, line: line, values: values}, nil
}

// parseID accepts "12" and integral floats such as "12.0".
func parseID(s string) (int, error) {
	s = strings.TrimSpace(s)
	if id, err := strconv.Atoi(s); err == nil {
		return id, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

func build(rows []row) (*Embedding, error) {
	if len(rows) == 0 {
		return nil, ErrEmpty
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	dims := len(rows[0].values)
	ids := make([]int, len(rows))
	data := make([]float64, 0, len(rows)*dims)
	for i, r := range rows {
		if len(r.values) != dims {
			return nil, fmt.Errorf("%w: line %d has %d coordinates, expected %d",
				ErrRaggedRows, r.line, len(r.values), dims)
		}
		if r.id != i {
			return nil, fmt.Errorf("%w: row %d has id %d", ErrNonContiguousIDs, i, r.id)
		}
		ids[i] = r.id
		data = append(data, r.values...)
	}

	return &Embedding{
		IDs:     ids,
		Vectors: mat.NewDense(len(rows), dims, data),
	}, nil
}

// manifoldTolerance bounds |-<x, x> - 1| for a hyperboloid row to count as
// on the manifold, relative to max(1, t²) where t is the time coordinate.
// -<x, x> is a difference of squares of size t², so an absolute bound
// flags well-trained points far from the origin.
const manifoldTolerance = 1e-6

// CheckManifold counts the rows that violate the geometry's constraint:
// norm < 1 for the Poincaré ball, <x, x> = -1 with a positive time
// coordinate for the hyperboloid. Euclidean embeddings never violate.
//
// Distances clamp such rows anyway; the count is a diagnostic.
func (e *Embedding) CheckManifold(m distance.Metric) int {
	n, _ := e.Vectors.Dims()
	bad := 0
	for i := 0; i < n; i++ {
		x := e.Vectors.RawRowView(i)
		switch m {
		case distance.Poincare:
			if vector.Norm(x) >= 1 {
				bad++
			}
		case distance.Hyperboloid:
			if !onHyperboloid(x) {
				bad++
			}
		}
	}
	return bad
}

func onHyperboloid(x []float64) bool {
	if len(x) < 2 {
		return false
	}
	t := x[len(x)-1]
	if t <= 0 {
		return false
	}
	return math.Abs(-vector.MinkowskiDot(x, x)-1) <= manifoldTolerance*math.Max(1, t*t)
}
