// Package linkpredict holds the held-out edge sets used to score link
// prediction.
//
// A link prediction experiment removes a sample of edges from a graph before
// the embedding is trained, and samples an equal-sized set of node pairs
// that were never connected. After training, a good embedding places the
// removed edges' endpoints closer together than the non-edges' endpoints.
//
// On disk, both sets live under the experiment's output directory:
//
//	<output>/seed=000/removed_edges/test_edges.tsv
//	<output>/seed=000/removed_edges/test_non_edges.tsv
//
// Each file holds one tab-separated pair of integer node ids per line:
//
//	0	1
//	4	17
//
// Usage Example:
//
//	dir := linkpredict.RemovedEdgesDir("./experiments/cora", 0)
//	edges, err := linkpredict.ReadEdgeList(linkpredict.TestEdgesPath(dir))
//	if err != nil {
//		return err
//	}
//	if err := edges.Validate(numNodes); err != nil {
//		return err
//	}
//
// ELI12 (Explain Like I'm 12):
//
// Imagine hiding some friendships from a friend-guessing robot, then asking
// it to guess. The hidden friendships are the "edges"; pairs of kids who
// were never friends are the "non-edges". The robot does well if it thinks
// the hidden friends are closer than the strangers.
package linkpredict

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// TestEdgesFile is the file name of the held-out true edges.
	TestEdgesFile = "test_edges.tsv"
	// TestNonEdgesFile is the file name of the held-out non-edges.
	TestNonEdgesFile = "test_non_edges.tsv"
)

// ErrNodeOutOfRange is returned when an edge references a node id that has
// no embedding row.
var ErrNodeOutOfRange = errors.New("edge references node outside embedding")

// Edge is an ordered (source, target) pair of node indices.
type Edge struct {
	Source int `json:"source"`
	Target int `json:"target"`
}

// String returns "source\ttarget".
func (e Edge) String() string {
	return strconv.Itoa(e.Source) + "\t" + strconv.Itoa(e.Target)
}

// EdgeList is an ordered sequence of edges.
type EdgeList []Edge

// Validate checks that every endpoint indexes a row of an n-node embedding.
func (l EdgeList) Validate(n int) error {
	for i, e := range l {
		if e.Source < 0 || e.Source >= n || e.Target < 0 || e.Target >= n {
			return fmt.Errorf("%w: pair %d (%d, %d) with %d nodes",
				ErrNodeOutOfRange, i, e.Source, e.Target, n)
		}
	}
	return nil
}

// RemovedEdgesDir returns <outputDir>/seed=<seed:03d>/removed_edges.
func RemovedEdgesDir(outputDir string, seed int) string {
	return filepath.Join(outputDir, fmt.Sprintf("seed=%03d", seed), "removed_edges")
}

// TestEdgesPath returns the path of the held-out edge file in dir.
func TestEdgesPath(dir string) string {
	return filepath.Join(dir, TestEdgesFile)
}

// TestNonEdgesPath returns the path of the held-out non-edge file in dir.
func TestNonEdgesPath(dir string) string {
	return filepath.Join(dir, TestNonEdgesFile)
}

// ReadEdgeList reads a tab-separated edge list file.
func ReadEdgeList(path string) (EdgeList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open edge list: %w", err)
	}
	defer f.Close()

	edges, err := ParseEdgeList(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return edges, nil
}

// ParseEdgeList parses "source\ttarget" lines from r.
//
// Trailing whitespace is ignored and blank lines are skipped. Any other
// line that is not exactly two integers separated by a tab is an error.
func ParseEdgeList(r io.Reader) (EdgeList, error) {
	var edges EdgeList

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected 2 tab-separated fields, got %d", lineNo, len(fields))
		}
		src, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid source: %w", lineNo, err)
		}
		dst, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid target: %w", lineNo, err)
		}
		edges = append(edges, Edge{Source: src, Target: dst})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read edge list: %w", err)
	}

	return edges, nil
}

// WriteEdgeList writes edges in the format ReadEdgeList accepts.
func WriteEdgeList(w io.Writer, edges EdgeList) error {
	bw := bufio.NewWriter(w)
	for _, e := range edges {
		if _, err := fmt.Fprintln(bw, e.String()); err != nil {
			return err
		}
	}
	return bw.Flush()
}
