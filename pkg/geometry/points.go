// Package geometry provides the point-list and homogeneous-matrix helpers
// shared by the transform solvers.
package geometry

import (
	"errors"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Centroid returns the arithmetic mean of the points.
// An empty list has its centroid at the origin.
func Centroid(points []r3.Vector) r3.Vector {
	if len(points) == 0 {
		return r3.Vector{}
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	zs := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i], zs[i] = p.X, p.Y, p.Z
	}

	return r3.Vector{
		X: stat.Mean(xs, nil),
		Y: stat.Mean(ys, nil),
		Z: stat.Mean(zs, nil),
	}
}

// Centered returns the points as an n x 3 matrix with the centroid removed,
// together with the centroid itself.
func Centered(points []r3.Vector) (*mat.Dense, r3.Vector) {
	c := Centroid(points)
	m := mat.NewDense(len(points), 3, nil)
	for i, p := range points {
		d := p.Sub(c)
		m.SetRow(i, []float64{d.X, d.Y, d.Z})
	}
	return m, c
}

// Identity returns a 4x4 identity matrix.
func Identity() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// Homogeneous assembles a 4x4 matrix from a 3x3 linear block and a
// translation column.
func Homogeneous(linear mat.Matrix, t r3.Vector) *mat.Dense {
	m := Identity()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, linear.At(i, j))
		}
	}
	m.Set(0, 3, t.X)
	m.Set(1, 3, t.Y)
	m.Set(2, 3, t.Z)
	return m
}

// LinearBlock copies the upper-left 3x3 block of a homogeneous matrix.
func LinearBlock(m mat.Matrix) *mat.Dense {
	l := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			l.Set(i, j, m.At(i, j))
		}
	}
	return l
}

// Translation returns the translation column of a homogeneous matrix.
func Translation(m mat.Matrix) r3.Vector {
	return r3.Vector{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)}
}

// Apply maps p through a 4x4 homogeneous matrix. The bottom row is assumed
// to be (0, 0, 0, 1).
func Apply(m mat.Matrix, p r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*p.X + m.At(0, 1)*p.Y + m.At(0, 2)*p.Z + m.At(0, 3),
		Y: m.At(1, 0)*p.X + m.At(1, 1)*p.Y + m.At(1, 2)*p.Z + m.At(1, 3),
		Z: m.At(2, 0)*p.X + m.At(2, 1)*p.Y + m.At(2, 2)*p.Z + m.At(2, 3),
	}
}

// Invert returns the inverse of a homogeneous matrix. ok is false when the
// matrix is singular and no finite inverse exists.
func Invert(m mat.Matrix) (inv *mat.Dense, ok bool) {
	inv = mat.NewDense(4, 4, nil)
	if err := inv.Inverse(m); err != nil {
		// Ill-conditioned matrices still produce a usable inverse; exact
		// singularity reports an infinite condition number.
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) || !finite(inv) {
			return nil, false
		}
	}
	return inv, true
}

func finite(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
