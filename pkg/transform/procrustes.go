package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"tagalign/pkg/geometry"
)

// minScaleDenominator keeps the similarity scale finite when every source
// point coincides with the source centroid.
const minScaleDenominator = 1e-12

// Procrustes returns the rotation (and, when allowScale is set, uniform
// scale) plus translation that best maps source onto target in the least
// squares sense, as a 4x4 matrix. The two lists must have equal length.
//
// Degenerate inputs (collinear or coplanar points) still yield a matrix;
// the SVD resolves the rank deficiency arbitrarily but consistently.
func Procrustes(target, source []r3.Vector, allowScale bool) *mat.Dense {
	ac, centroidA := geometry.Centered(target)
	bc, centroidB := geometry.Centered(source)

	var cov mat.Dense
	cov.Mul(bc.T(), ac)

	r := rotationFromCovariance(&cov)

	scale := 1.0
	if allowScale {
		var rb mat.Dense
		rb.Mul(bc, r.T()) // row i is R*Bc_i
		num := 0.0
		den := 0.0
		n, _ := bc.Dims()
		for i := 0; i < n; i++ {
			num += mat.Dot(rb.RowView(i), ac.RowView(i))
			den += mat.Dot(bc.RowView(i), bc.RowView(i))
		}
		scale = num / math.Max(den, minScaleDenominator)
	}

	var linear mat.Dense
	linear.Scale(scale, r)

	rotated := geometry.Apply(geometry.Homogeneous(&linear, r3.Vector{}), centroidB)
	return geometry.Homogeneous(&linear, centroidA.Sub(rotated))
}

// rotationFromCovariance returns the proper rotation V*U^T for the SVD
// cov = U W V^T, flipping the column of V that belongs to the smallest
// singular value when the product would be a reflection.
func rotationFromCovariance(cov mat.Matrix) *mat.Dense {
	var svd mat.SVD
	if !svd.Factorize(cov, mat.SVDFull) {
		log().Warn("procrustes: SVD did not converge, using identity rotation")
		return geometry.LinearBlock(geometry.Identity())
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&v, u.T())
	if mat.Det(&r) < 0 {
		// Singular values are sorted in descending order, so the last
		// column pairs with the smallest one.
		for i := 0; i < 3; i++ {
			v.Set(i, 2, -v.At(i, 2))
		}
		r.Mul(&v, u.T())
	}
	return &r
}

// orthonormalize returns the rotation nearest to m, U*V^T for m = U S V^T,
// corrected to a proper rotation.
func orthonormalize(m mat.Matrix) *mat.Dense {
	var mt mat.Dense
	mt.CloneFrom(m.T())
	// rotationFromCovariance(X) yields V*U^T for X = U S V^T; with X = M^T
	// that is the U*V^T factor of M itself.
	return rotationFromCovariance(&mt)
}
