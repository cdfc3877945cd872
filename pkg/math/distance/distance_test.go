package distance

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// =============================================================================
// Metric parsing
// =============================================================================

func TestParseMetric(t *testing.T) {
	t.Run("known_names", func(t *testing.T) {
		for _, name := range []string{"euclidean", "poincare", "hyperboloid"} {
			m, err := ParseMetric(name)
			require.NoError(t, err)
			assert.Equal(t, name, m.String())
			assert.True(t, m.Valid())
		}
	})

	t.Run("case_insensitive", func(t *testing.T) {
		m, err := ParseMetric(" Poincare ")
		require.NoError(t, err)
		assert.Equal(t, Poincare, m)
	})

	t.Run("unknown_name", func(t *testing.T) {
		_, err := ParseMetric("cosine")
		assert.ErrorIs(t, err, ErrUnknownMetric)
	})

	t.Run("pairwise_rejects_unknown", func(t *testing.T) {
		_, err := Pairwise(Metric("manhattan"), mat.NewDense(1, 1, []float64{0}))
		assert.ErrorIs(t, err, ErrUnknownMetric)
	})
}

// =============================================================================
// Shape and sign properties, all metrics
// =============================================================================

func randomBallPoints(rng *rand.Rand, n, dim int, maxNorm float64) *mat.Dense {
	x := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		var sq float64
		for j := 0; j < dim; j++ {
			v := rng.NormFloat64()
			x.Set(i, j, v)
			sq += v * v
		}
		scale := maxNorm * rng.Float64() / math.Sqrt(sq)
		for j := 0; j < dim; j++ {
			x.Set(i, j, x.At(i, j)*scale)
		}
	}
	return x
}

// hyperboloidPoints lifts points of R^dim onto the hyperboloid by solving
// for the time-like coordinate.
func hyperboloidPoints(rng *rand.Rand, n, dim int) *mat.Dense {
	x := mat.NewDense(n, dim+1, nil)
	for i := 0; i < n; i++ {
		var sq float64
		for j := 0; j < dim; j++ {
			v := rng.NormFloat64()
			x.Set(i, j, v)
			sq += v * v
		}
		x.Set(i, dim, math.Sqrt(1+sq))
	}
	return x
}

func TestPairwiseShapeAndSign(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	inputs := map[Metric]*mat.Dense{
		Euclidean:   randomBallPoints(rng, 12, 4, 10),
		Poincare:    randomBallPoints(rng, 12, 4, 1),
		Hyperboloid: hyperboloidPoints(rng, 12, 4),
	}

	for metric, x := range inputs {
		t.Run(metric.String(), func(t *testing.T) {
			d, err := Pairwise(metric, x)
			require.NoError(t, err)

			r, c := d.Dims()
			assert.Equal(t, 12, r)
			assert.Equal(t, 12, c)

			for i := 0; i < r; i++ {
				for j := 0; j < c; j++ {
					v := d.At(i, j)
					assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "d(%d,%d) not finite: %v", i, j, v)
					assert.GreaterOrEqual(t, v, 0.0)
					assert.InDelta(t, d.At(j, i), v, 1e-9, "symmetry at (%d,%d)", i, j)
				}
				assert.InDelta(t, 0.0, d.At(i, i), 1e-6)
			}
		})
	}
}

func TestPairwiseEmpty(t *testing.T) {
	for _, m := range Metrics() {
		_, err := Pairwise(m, &mat.Dense{})
		assert.ErrorIs(t, err, ErrEmptyMatrix, m.String())
	}
}

// =============================================================================
// Euclidean
// =============================================================================

func TestEuclideanPointsOnALine(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{0, 1, 2, 3})

	d, err := EuclideanDistances(x)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			assert.InDelta(t, math.Abs(float64(i-j)), d.At(i, j), 1e-12)
		}
	}
}

// =============================================================================
// Poincaré
// =============================================================================

func TestPoincareKnownValue(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{
		0.0, 0.0,
		0.5, 0.0,
	})

	d, err := PoincareDistances(x)
	require.NoError(t, err)

	// From the origin, d = 2*artanh(r) = ln((1+r)/(1-r)) = ln(3).
	assert.InDelta(t, math.Log(3), d.At(0, 1), 1e-12)
}

func TestPoincareSelfDistanceIsZero(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{
		0.1, 0.2,
		0.1, 0.2,
		-0.7, 0.3,
	})

	d, err := PoincareDistances(x)
	require.NoError(t, err)

	assert.InDelta(t, 0.0, d.At(0, 1), 1e-12)
	assert.InDelta(t, 0.0, d.At(2, 2), 1e-12)
}

func TestPoincareIncreasesTowardBoundary(t *testing.T) {
	norms := []float64{0.0, 0.3, 0.6, 0.9, 0.99, 0.999, 0.999999}
	data := []float64{-0.2, 0.1}
	for _, r := range norms {
		data = append(data, r, 0)
	}
	x := mat.NewDense(len(norms)+1, 2, data)

	d, err := PoincareDistances(x)
	require.NoError(t, err)

	prev := -1.0
	for i := range norms {
		cur := d.At(0, i+1)
		assert.Greater(t, cur, prev, "distance should grow as norm approaches 1 (norm=%v)", norms[i])
		prev = cur
	}
}

func TestPoincareBoundaryIsClamped(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{
		0.0, 0.0,
		1.0, 0.0, // on the boundary
		0.0, 1.5, // outside the ball
	})

	d, err := PoincareDistances(x)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := d.At(i, j)
			assert.False(t, math.IsNaN(v), "d(%d,%d) is NaN", i, j)
			assert.False(t, math.IsInf(v, 0), "d(%d,%d) is Inf", i, j)
		}
	}
	assert.Greater(t, d.At(0, 1), 30.0)
}

// =============================================================================
// Hyperboloid
// =============================================================================

func TestHyperboloidKnownValue(t *testing.T) {
	dist := 1.25
	x := mat.NewDense(2, 3, []float64{
		0, 0, 1,
		math.Sinh(dist), 0, math.Cosh(dist),
	})

	d, err := HyperboloidDistances(x, x)
	require.NoError(t, err)

	assert.InDelta(t, dist, d.At(0, 1), 1e-9)
	assert.InDelta(t, dist, d.At(1, 0), 1e-9)
}

func TestHyperboloidClampsBelowOne(t *testing.T) {
	// -<u, v> = 1 - 1e-12 for u = v = (0, 0, sqrt(1 - 1e-12)):
	// slightly off the manifold, which would make arccosh NaN unclamped.
	time := math.Sqrt(1 - 1e-12)
	x := mat.NewDense(1, 3, []float64{0, 0, time})

	d, err := HyperboloidDistances(x, x)
	require.NoError(t, err)

	v := d.At(0, 0)
	assert.False(t, math.IsNaN(v))
	assert.InDelta(t, 0.0, v, 1e-6)
	assert.Equal(t, math.Acosh(MinkowskiFloor), v)
}

func TestHyperboloidCrossShape(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	u := hyperboloidPoints(rng, 5, 2)
	v := hyperboloidPoints(rng, 3, 2)

	d, err := HyperboloidDistances(u, v)
	require.NoError(t, err)

	r, c := d.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 3, c)

	// Cross-check one entry against the direct formula.
	a := mat.Row(nil, 4, u)
	b := mat.Row(nil, 2, v)
	want := math.Acosh(-(a[0]*b[0] + a[1]*b[1] - a[2]*b[2]))
	assert.InDelta(t, want, d.At(4, 2), 1e-9)
}

func TestHyperboloidDimensionErrors(t *testing.T) {
	t.Run("mismatched_columns", func(t *testing.T) {
		u := mat.NewDense(1, 3, []float64{0, 0, 1})
		v := mat.NewDense(1, 2, []float64{0, 1})
		_, err := HyperboloidDistances(u, v)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("single_column", func(t *testing.T) {
		u := mat.NewDense(2, 1, []float64{1, 2})
		_, err := HyperboloidDistances(u, u)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}
