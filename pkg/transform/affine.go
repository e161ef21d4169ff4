package transform

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// rankTolerance is the relative singular value cut-off of the minimum-norm
// fallback solves.
const rankTolerance = 1e-12

// SolveAffine fits the unconstrained 12-parameter map from source to target
// by linear regression: for each output axis the coefficients
// [a0 a1 a2 a3] of a0 + a1*x + a2*y + a3*z are solved independently over
// all pairs. Any exact affine relation between the lists is reproduced.
func SolveAffine(target, source []r3.Vector) *mat.Dense {
	n := len(source)
	design := mat.NewDense(n, 4, nil)
	rhs := mat.NewDense(n, 3, nil)
	for i := range source {
		b, a := source[i], target[i]
		design.SetRow(i, []float64{1, b.X, b.Y, b.Z})
		rhs.SetRow(i, []float64{a.X, a.Y, a.Z})
	}

	// Each column of rhs is an independent axis.
	coef := leastSquares(design, rhs)

	m := mat.NewDense(4, 4, nil)
	for d := 0; d < 3; d++ {
		m.Set(d, 0, coef.At(1, d))
		m.Set(d, 1, coef.At(2, d))
		m.Set(d, 2, coef.At(3, d))
		m.Set(d, 3, coef.At(0, d))
	}
	m.Set(3, 3, 1)
	return m
}

// leastSquares solves a*x = b in the least squares sense with a QR
// factorization. Rank-deficient systems fall back to the minimum-norm
// solution from the SVD.
func leastSquares(a, b *mat.Dense) *mat.Dense {
	var qr mat.QR
	qr.Factorize(a)

	var x mat.Dense
	if err := qr.SolveTo(&x, false, b); err == nil {
		return &x
	}
	return minNormSolve(a, b)
}

// minNormSolve returns the minimum-norm least squares solution of a*x = b.
func minNormSolve(a, b *mat.Dense) *mat.Dense {
	var svd mat.SVD
	_, cols := a.Dims()
	_, bc := b.Dims()
	if !svd.Factorize(a, mat.SVDThin) {
		log().Warn("least squares: SVD did not converge, returning zero solution")
		return mat.NewDense(cols, bc, nil)
	}

	rank := svd.Rank(rankTolerance)
	if rank == 0 {
		return mat.NewDense(cols, bc, nil)
	}

	var x mat.Dense
	svd.SolveTo(&x, b, rank)
	return &x
}
