package geometry

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func cubeCorners() []r3.Vector {
	return []r3.Vector{
		{X: 0, Y: 0, Z: 0}, {X: 10, Y: 0, Z: 0}, {X: 0, Y: 10, Z: 0}, {X: 10, Y: 10, Z: 0},
		{X: 0, Y: 0, Z: 10}, {X: 10, Y: 0, Z: 10}, {X: 0, Y: 10, Z: 10}, {X: 10, Y: 10, Z: 10},
	}
}

// TestCentroid verifies the mean point of a symmetric set
func TestCentroid(t *testing.T) {
	c := Centroid(cubeCorners())
	assert.InDelta(t, 5.0, c.X, 1e-12)
	assert.InDelta(t, 5.0, c.Y, 1e-12)
	assert.InDelta(t, 5.0, c.Z, 1e-12)

	assert.Equal(t, r3.Vector{}, Centroid(nil))
}

// TestCentered verifies the centered matrix has zero column sums
func TestCentered(t *testing.T) {
	m, c := Centered(cubeCorners())
	assert.Equal(t, r3.Vector{X: 5, Y: 5, Z: 5}, c)

	r, cols := m.Dims()
	require.Equal(t, 8, r)
	require.Equal(t, 3, cols)
	for j := 0; j < 3; j++ {
		assert.InDelta(t, 0.0, mat.Sum(m.ColView(j)), 1e-12)
	}
}

// TestHomogeneousApplyInvert verifies matrix assembly, application and inversion
func TestHomogeneousApplyInvert(t *testing.T) {
	linear := mat.NewDense(3, 3, []float64{
		0, -2, 0,
		2, 0, 0,
		0, 0, 2,
	})
	m := Homogeneous(linear, r3.Vector{X: 1, Y: 2, Z: 3})

	p := r3.Vector{X: 1, Y: 1, Z: 1}
	q := Apply(m, p)
	assert.True(t, q.ApproxEqual(r3.Vector{X: -1, Y: 4, Z: 5}), "got %v", q)

	assert.True(t, mat.Equal(linear, LinearBlock(m)))
	assert.Equal(t, r3.Vector{X: 1, Y: 2, Z: 3}, Translation(m))

	inv, ok := Invert(m)
	require.True(t, ok)
	back := Apply(inv, q)
	assert.InDelta(t, 0.0, back.Distance(p), 1e-12)
}

// TestInvertSingular verifies that a rank-deficient matrix is reported
func TestInvertSingular(t *testing.T) {
	m := Homogeneous(mat.NewDense(3, 3, nil), r3.Vector{})
	_, ok := Invert(m)
	assert.False(t, ok)
}

// TestIndexNearest verifies nearest-neighbour lookups against brute force
func TestIndexNearest(t *testing.T) {
	points := cubeCorners()
	ix := NewIndex(points)
	require.Equal(t, len(points), ix.Len())

	queries := []r3.Vector{{X: 1, Y: 1, Z: 1}, {X: 9, Y: 2, Z: 8}, {X: 4, Y: 9, Z: 6}}
	for _, q := range queries {
		pos, d := ix.Nearest(q)

		best, bestD := -1, math.Inf(1)
		for i, p := range points {
			if dd := p.Distance(q); dd < bestD {
				best, bestD = i, dd
			}
		}
		assert.Equal(t, best, pos)
		assert.InDelta(t, bestD, d, 1e-12)
	}

	// The input order is preserved even though the tree partitions its copy.
	assert.Equal(t, cubeCorners(), points)
}

// TestIndexEmpty verifies queries on an empty index
func TestIndexEmpty(t *testing.T) {
	ix := NewIndex(nil)
	pos, d := ix.Nearest(r3.Vector{})
	assert.Equal(t, -1, pos)
	assert.True(t, math.IsInf(d, 1))
	assert.Empty(t, ix.Within(r3.Vector{}, 10))
	assert.Empty(t, ix.Duplicates(1))
}

// TestIndexWithinAndDuplicates verifies radius queries and duplicate detection
func TestIndexWithinAndDuplicates(t *testing.T) {
	points := append(cubeCorners(), r3.Vector{X: 10, Y: 10, Z: 10 + 1e-9})
	ix := NewIndex(points)

	assert.Equal(t, []int{0, 1, 2, 4}, ix.Within(r3.Vector{}, 10.5))
	assert.Equal(t, [][2]int{{7, 8}}, ix.Duplicates(1e-6))
}
