package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"tagalign/pkg/geometry"
)

// refine fits a Rigid, Similarity, NineParam or TenParam transform: a
// closed-form initial guess followed by Levenberg-Marquardt on the
// per-coordinate residuals.
func refine(target, source []r3.Vector, f Family, s Settings) *mat.Dense {
	x0 := initialGuess(target, source, f)

	res := levenbergMarquardt(model{family: f, target: target, source: source}, x0, s)
	log().Debug("levenberg-marquardt finished",
		"family", f.String(),
		"iterations", res.iterations,
		"evaluations", res.evaluations,
		"converged", res.converged,
		"rms", math.Sqrt(2*res.cost/float64(len(source))))

	return buildMatrix(f, res.x)
}

// initialGuess returns a starting parameter vector for f.
//
// Rigid and Similarity start from the Procrustes solution, which is already
// optimal. The scaled families have no closed form under Shear*R*Scale, so
// they start from a decomposition of the exact 12-parameter fit.
func initialGuess(target, source []r3.Vector, f Family) []float64 {
	params := make([]float64, f.NumParams())

	var (
		xfm   *mat.Dense
		rot   *mat.Dense
		scale r3.Vector
		shear float64
	)

	switch f {
	case Rigid, Similarity:
		xfm = Procrustes(target, source, f == Similarity)
		linear := geometry.LinearBlock(xfm)
		s := 1.0
		if f == Similarity {
			s = math.Cbrt(mat.Det(linear))
			if s == 0 {
				s = 1
			}
			linear.Scale(1/s, linear)
		}
		rot = orthonormalize(linear)
		scale = r3.Vector{X: s, Y: s, Z: s}
	default:
		xfm = SolveAffine(target, source)
		rot, scale, shear = decomposeLinear(geometry.LinearBlock(xfm))
	}

	t := geometry.Translation(xfm)
	params[paramTranslation] = t.X
	params[paramTranslation+1] = t.Y
	params[paramTranslation+2] = t.Z

	rx, ry, rz := eulerAngles(rot)
	params[paramRotation] = rx
	params[paramRotation+1] = ry
	params[paramRotation+2] = rz

	switch f {
	case Similarity:
		params[paramScale] = scale.X
	case NineParam, TenParam:
		params[paramScale] = scale.X
		params[paramScale+1] = scale.Y
		params[paramScale+2] = scale.Z
	}
	if f == TenParam {
		params[paramShear] = shear
	}
	return params
}

// decomposeLinear splits a 3x3 linear block into a rotation, per-axis
// scales and an X/Y shear estimate. The rotation is the polar factor
// U*V^T of the SVD; scales are the diagonal of R^T*M and the shear is the
// remaining (0,1) entry relative to the Y scale. Negative scales are folded
// into the rotation in pairs so that it stays proper.
func decomposeLinear(m *mat.Dense) (*mat.Dense, r3.Vector, float64) {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		log().Warn("affine decomposition: SVD did not converge, using identity")
		return geometry.LinearBlock(geometry.Identity()), r3.Vector{X: 1, Y: 1, Z: 1}, 0
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var rot mat.Dense
	rot.Mul(&u, v.T())
	if mat.Det(&rot) < 0 {
		for i := 0; i < 3; i++ {
			v.Set(i, 2, -v.At(i, 2))
		}
		rot.Mul(&u, v.T())
	}

	var s mat.Dense
	s.Mul(rot.T(), m)
	sc := []float64{s.At(0, 0), s.At(1, 1), s.At(2, 2)}

	var negative []int
	for d, val := range sc {
		if val < 0 {
			negative = append(negative, d)
		}
	}
	// Flipping one column turns the rotation into a reflection, so negative
	// scales are absorbed two at a time.
	for k := 0; k+1 < len(negative); k += 2 {
		for _, d := range negative[k : k+2] {
			flipColumn(&rot, d)
			sc[d] = -sc[d]
		}
	}

	s.Mul(rot.T(), m)
	shear := 0.0
	if math.Abs(s.At(1, 1)) > 1e-12 {
		shear = s.At(0, 1) / s.At(1, 1)
	}

	return &rot, r3.Vector{X: sc[0], Y: sc[1], Z: sc[2]}, shear
}

func flipColumn(m *mat.Dense, j int) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		m.Set(i, j, -m.At(i, j))
	}
}
