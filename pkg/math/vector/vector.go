// Package vector provides the float64 vector primitives used by the
// distance engine.
//
// This package consolidates the per-row operations that the pairwise
// distance functions are built from, so the Euclidean, Poincaré and
// hyperboloid geometries all agree on how a dot product or a norm is
// computed.
//
// Main Functions:
//   - Dot: Euclidean inner product
//   - Norm: Euclidean (L2) norm
//   - SquaredEuclidean / Euclidean: distance between two points
//   - MinkowskiDot: Minkowski bilinear form, last coordinate time-like
//
// All functions return 0 when the inputs have mismatched lengths; callers
// validate shapes before reaching this package.
package vector

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Dot returns the Euclidean inner product of a and b.
//
// Example:
//
//	a := []float64{1.0, 2.0, 3.0}
//	b := []float64{4.0, 5.0, 6.0}
//	dot := Dot(a, b)  // Returns 32.0
func Dot(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	return floats.Dot(a, b)
}

// Norm returns the Euclidean norm of v.
func Norm(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, 2)
}

// SquaredEuclidean returns the squared Euclidean distance between a and b.
//
// Computed from coordinate differences rather than from norms so that
// identical rows give exactly 0.
func SquaredEuclidean(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

// Euclidean returns the Euclidean distance between a and b.
func Euclidean(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return floats.Distance(a, b, 2)
}

// MinkowskiDot returns the Minkowski bilinear form of u and v.
//
// The last coordinate is the time-like one and its product is subtracted:
//
//	<u, v> = u[0]*v[0] + ... + u[r-1]*v[r-1] - u[r]*v[r],  r = len(u)-1
//
// For points on the hyperboloid, <x, x> = -1 and -<u, v> >= 1.
//
// Example:
//
//	origin := []float64{0, 0, 1}
//	MinkowskiDot(origin, origin)  // Returns -1.0
func MinkowskiDot(u, v []float64) float64 {
	if len(u) != len(v) || len(u) == 0 {
		return 0
	}
	rank := len(u) - 1
	return floats.Dot(u[:rank], v[:rank]) - u[rank]*v[rank]
}

// ClampBelowOne returns x if it is strictly below 1, otherwise the largest
// float64 below 1.
func ClampBelowOne(x float64) float64 {
	return math.Min(x, math.Nextafter(1, 0))
}
