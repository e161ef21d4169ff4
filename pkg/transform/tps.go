package transform

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"tagalign/pkg/geometry"
)

// duplicateTolerance is the distance below which two kernel centres are
// reported as coincident.
const duplicateTolerance = 1e-6

// kernel is the 3-D thin-plate radial basis U(r) = r.
func kernel(r float64) float64 { return r }

// SolveTPS fits the thin-plate spline that carries every source point
// exactly onto its target. It returns the kernel centres (the source
// points), the n+4 weight rows, and the affine part of the warp as a 4x4
// matrix.
//
// A singular system, as produced by coincident source points, is solved
// in the minimum-norm least squares sense instead.
func SolveTPS(target, source []r3.Vector) ([]r3.Vector, []r3.Vector, *mat.Dense) {
	n := len(source)

	if dups := geometry.NewIndex(source).Duplicates(duplicateTolerance); len(dups) > 0 {
		log().Warn("thin-plate spline: coincident source points", "pairs", dups)
	}

	l := mat.NewDense(n+4, n+4, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			u := kernel(source[i].Distance(source[j]))
			l.Set(i, j, u)
			l.Set(j, i, u)
		}
		b := source[i]
		for k, v := range []float64{1, b.X, b.Y, b.Z} {
			l.Set(i, n+k, v)
			l.Set(n+k, i, v)
		}
	}

	y := mat.NewDense(n+4, 3, nil)
	for i, a := range target {
		y.SetRow(i, []float64{a.X, a.Y, a.Z})
	}

	w := new(mat.Dense)
	if err := w.Solve(l, y); err != nil {
		log().Warn("thin-plate spline: system is singular, using least squares", "error", err)
		w = minNormSolve(l, y)
	}

	weights := make([]r3.Vector, n+4)
	for i := range weights {
		weights[i] = r3.Vector{X: w.At(i, 0), Y: w.At(i, 1), Z: w.At(i, 2)}
	}

	return append([]r3.Vector(nil), source...), weights, tpsAffine(weights, n)
}

// tpsAffine returns rows n..n+3 of the weights as a homogeneous matrix.
func tpsAffine(weights []r3.Vector, n int) *mat.Dense {
	c, wx, wy, wz := weights[n], weights[n+1], weights[n+2], weights[n+3]
	linear := mat.NewDense(3, 3, []float64{
		wx.X, wy.X, wz.X,
		wx.Y, wy.Y, wz.Y,
		wx.Z, wy.Z, wz.Z,
	})
	return geometry.Homogeneous(linear, c)
}

// tpsForward evaluates the spline at p.
func tpsForward(points, weights []r3.Vector, p r3.Vector) r3.Vector {
	n := len(points)
	var q r3.Vector
	for i, c := range points {
		q = q.Add(weights[i].Mul(kernel(p.Distance(c))))
	}
	q = q.Add(weights[n])
	q = q.Add(weights[n+1].Mul(p.X))
	q = q.Add(weights[n+2].Mul(p.Y))
	q = q.Add(weights[n+3].Mul(p.Z))
	return q
}
