// Package distance computes pairwise distance matrices between node
// embeddings under one of three geometries.
//
// Geometries:
//   - Euclidean: flat space, no constraint on coordinates
//   - Poincaré ball: hyperbolic space as the open unit ball
//   - Hyperboloid: hyperbolic space as one sheet of x·x = -1 under the
//     Minkowski bilinear form, last coordinate time-like
//
// Every function is pure and deterministic: it reads its input matrices and
// returns a freshly allocated *mat.Dense. Rows that drifted off the manifold
// through floating-point error are clamped back into the valid domain of
// arccosh instead of producing NaN.
//
// Example:
//
//	x := mat.NewDense(3, 2, []float64{
//		0.0, 0.0,
//		0.5, 0.0,
//		0.0, 0.9,
//	})
//	d, err := distance.Pairwise(distance.Poincare, x)
//	if err != nil {
//		return err
//	}
//	fmt.Printf("d(0,1) = %.4f\n", d.At(0, 1))  // 1.0986
package distance

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/orneryd/lpeval/pkg/math/vector"
)

// Metric selects the geometry used to compare embeddings.
type Metric string

const (
	// Euclidean is the standard L2 distance.
	Euclidean Metric = "euclidean"
	// Poincare is the hyperbolic distance in the Poincaré ball.
	Poincare Metric = "poincare"
	// Hyperboloid is the hyperbolic distance in the hyperboloid model.
	Hyperboloid Metric = "hyperboloid"
)

// MinkowskiFloor is the smallest value -<u, v> may take before arccosh.
const MinkowskiFloor = 1 + 1e-15

var (
	// ErrUnknownMetric is returned for a metric name outside Metrics().
	ErrUnknownMetric = errors.New("unknown distance metric")
	// ErrEmptyMatrix is returned when an input matrix has no rows or columns.
	ErrEmptyMatrix = errors.New("empty embedding matrix")
	// ErrDimensionMismatch is returned when two inputs disagree on columns.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Metrics returns all supported metrics in CLI order.
func Metrics() []Metric {
	return []Metric{Poincare, Hyperboloid, Euclidean}
}

// ParseMetric converts a name such as "poincare" into a Metric.
// Matching is case-insensitive.
func ParseMetric(name string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(name)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q (want one of %s)", ErrUnknownMetric, name, metricList())
	}
	return m, nil
}

// Valid reports whether m is one of the supported metrics.
func (m Metric) Valid() bool {
	switch m {
	case Euclidean, Poincare, Hyperboloid:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (m Metric) String() string {
	return string(m)
}

func metricList() string {
	names := make([]string, 0, 3)
	for _, m := range Metrics() {
		names = append(names, string(m))
	}
	return strings.Join(names, ", ")
}

// Pairwise returns the N×N distance matrix of the rows of x under metric m.
//
// The hyperboloid metric compares x with itself.
func Pairwise(m Metric, x mat.Matrix) (*mat.Dense, error) {
	switch m {
	case Euclidean:
		return EuclideanDistances(x)
	case Poincare:
		return PoincareDistances(x)
	case Hyperboloid:
		return HyperboloidDistances(x, x)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, string(m))
	}
}

// EuclideanDistances returns the pairwise Euclidean distances between the
// rows of x. The diagonal is exactly zero.
func EuclideanDistances(x mat.Matrix) (*mat.Dense, error) {
	rows, err := denseRows(x)
	if err != nil {
		return nil, err
	}

	n := len(rows)
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := vector.Euclidean(rows[i], rows[j])
			out.Set(i, j, d)
			out.Set(j, i, d)
		}
	}
	return out, nil
}

// PoincareDistances returns the pairwise hyperbolic distances between the
// rows of x, read as points of the Poincaré ball:
//
//	d(u, v) = arccosh(1 + 2*|u-v|² / ((1-|u|²)(1-|v|²)))
//
// Norms are clamped to the largest float64 below 1, so rows on or outside
// the boundary give large finite distances.
func PoincareDistances(x mat.Matrix) (*mat.Dense, error) {
	rows, err := denseRows(x)
	if err != nil {
		return nil, err
	}

	n := len(rows)
	conformal := make([]float64, n)
	for i, row := range rows {
		norm := vector.ClampBelowOne(vector.Norm(row))
		conformal[i] = 1 - norm*norm
	}

	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			uu := vector.SquaredEuclidean(rows[i], rows[j])
			dd := conformal[i] * conformal[j]
			d := math.Acosh(1 + 2*uu/dd)
			out.Set(i, j, d)
			out.Set(j, i, d)
		}
	}
	return out, nil
}

// HyperboloidDistances returns the hyperbolic distances between every row
// of u and every row of v, read as points of the hyperboloid model:
//
//	d(a, b) = arccosh(max(-<a, b>, 1 + 1e-15))
//
// where <·,·> is the Minkowski bilinear form with the last column as the
// time-like coordinate. The result is len(u)×len(v). The floor keeps
// arccosh defined when rounding pushes -<a, b> just under 1.
func HyperboloidDistances(u, v mat.Matrix) (*mat.Dense, error) {
	ur, uc := u.Dims()
	vr, vc := v.Dims()
	if ur == 0 || uc == 0 || vr == 0 || vc == 0 {
		return nil, ErrEmptyMatrix
	}
	if uc != vc {
		return nil, fmt.Errorf("%w: %d vs %d columns", ErrDimensionMismatch, uc, vc)
	}
	if uc < 2 {
		return nil, fmt.Errorf("%w: hyperboloid points need at least 2 coordinates, got %d",
			ErrDimensionMismatch, uc)
	}

	rank := uc - 1

	// Spatial part: u[:, :rank] · v[:, :rank]ᵀ
	var mink mat.Dense
	mink.Mul(sliceCols(u, 0, rank), sliceCols(v, 0, rank).T())

	// Time-like part is subtracted.
	var timeOuter mat.Dense
	timeOuter.Mul(sliceCols(u, rank, uc), sliceCols(v, rank, vc).T())
	mink.Sub(&mink, &timeOuter)

	mink.Apply(func(_, _ int, dp float64) float64 {
		return math.Acosh(math.Max(-dp, MinkowskiFloor))
	}, &mink)

	return &mink, nil
}

// denseRows validates x and returns one slice per row.
func denseRows(x mat.Matrix) ([][]float64, error) {
	r, c := x.Dims()
	if r == 0 || c == 0 {
		return nil, ErrEmptyMatrix
	}
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, x)
	}
	return rows, nil
}

// sliceCols returns columns [from, to) of m as a matrix view when possible.
func sliceCols(m mat.Matrix, from, to int) mat.Matrix {
	r, _ := m.Dims()
	if s, ok := m.(interface {
		Slice(i, k, j, l int) mat.Matrix
	}); ok {
		return s.Slice(0, r, from, to)
	}
	out := mat.NewDense(r, to-from, nil)
	for i := 0; i < r; i++ {
		for j := from; j < to; j++ {
			out.Set(i, j-from, m.At(i, j))
		}
	}
	return out
}
