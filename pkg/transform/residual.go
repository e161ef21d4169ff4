package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"tagalign/pkg/geometry"
)

// Parameter layout shared by the refined families:
//
//	[tx ty tz  rx ry rz  scale...  shearXY]
//
// Rigid stops after the angles, Similarity has one broadcast scale,
// NineParam three scales and TenParam three scales plus the shear.
const (
	paramTranslation = 0
	paramRotation    = 3
	paramScale       = 6
	paramShear       = 9
)

// model maps a parameter vector to the per-coordinate residuals
// (M*B_i)_d - A_i_d. The minimizer only needs inputs, values and evaluate.
type model struct {
	family Family
	target []r3.Vector
	source []r3.Vector
}

func (m model) inputs() int { return m.family.NumParams() }

func (m model) values() int { return 3 * len(m.source) }

func (m model) evaluate(dst, params []float64) {
	xfm := buildMatrix(m.family, params)
	for i, b := range m.source {
		d := geometry.Apply(xfm, b).Sub(m.target[i])
		dst[3*i] = d.X
		dst[3*i+1] = d.Y
		dst[3*i+2] = d.Z
	}
}

// scales returns the per-axis scale factors encoded in params.
func scales(f Family, params []float64) r3.Vector {
	switch f {
	case Similarity:
		s := params[paramScale]
		return r3.Vector{X: s, Y: s, Z: s}
	case NineParam, TenParam:
		return r3.Vector{X: params[paramScale], Y: params[paramScale+1], Z: params[paramScale+2]}
	default:
		return r3.Vector{X: 1, Y: 1, Z: 1}
	}
}

// buildMatrix assembles Shear * Rz*Ry*Rx * Scale plus translation.
func buildMatrix(f Family, params []float64) *mat.Dense {
	rot := eulerRotation(params[paramRotation], params[paramRotation+1], params[paramRotation+2])

	s := scales(f, params)
	scale := mat.NewDiagDense(3, []float64{s.X, s.Y, s.Z})

	var linear mat.Dense
	linear.Mul(rot, scale)

	t := r3.Vector{X: params[paramTranslation], Y: params[paramTranslation+1], Z: params[paramTranslation+2]}
	if f != TenParam {
		return geometry.Homogeneous(&linear, t)
	}

	shear := mat.NewDense(3, 3, []float64{
		1, params[paramShear], 0,
		0, 1, 0,
		0, 0, 1,
	})
	var sheared mat.Dense
	sheared.Mul(shear, &linear)
	return geometry.Homogeneous(&sheared, t)
}

// eulerRotation returns Rz(rz) * Ry(ry) * Rx(rx).
func eulerRotation(rx, ry, rz float64) *mat.Dense {
	sx, cx := math.Sincos(rx)
	sy, cy := math.Sincos(ry)
	sz, cz := math.Sincos(rz)
	return mat.NewDense(3, 3, []float64{
		cz * cy, cz*sy*sx - sz*cx, cz*sy*cx + sz*sx,
		sz * cy, sz*sy*sx + cz*cx, sz*sy*cx - cz*sx,
		-sy, cy * sx, cy * cx,
	})
}

// gimbalTolerance is the |cos(ry)| below which the X and Z rotations can
// no longer be told apart.
const gimbalTolerance = 1e-9

// eulerAngles inverts eulerRotation for a proper rotation matrix. At
// gimbal lock rz is set to zero and the remaining rotation is carried by rx.
func eulerAngles(r mat.Matrix) (rx, ry, rz float64) {
	sy := -r.At(2, 0)
	sy = math.Max(-1, math.Min(1, sy))
	ry = math.Asin(sy)

	if math.Abs(math.Cos(ry)) > gimbalTolerance {
		rx = math.Atan2(r.At(2, 1), r.At(2, 2))
		rz = math.Atan2(r.At(1, 0), r.At(0, 0))
		return rx, ry, rz
	}

	// With rz = 0 the matrix is Ry*Rx, whose middle row is (0, cos rx, -sin rx).
	rx = math.Atan2(-r.At(1, 2), r.At(1, 1))
	return rx, ry, 0
}
