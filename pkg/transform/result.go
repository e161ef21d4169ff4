package transform

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Result is the outcome of one transform computation. It is a value: the
// accessors hand out copies, so a Result never changes after Compute
// returns it and may be shared freely between goroutines.
//
// When Valid reports false only Type carries meaning.
type Result struct {
	valid     bool
	family    Family
	linear    *mat.Dense
	residuals []float64
	rms       float64

	// Thin-plate spline only. weights has len(points)+4 rows: one kernel
	// weight per centre, then the constant term, then the x, y and z
	// coefficients. Each row holds one component per output axis.
	points  []r3.Vector
	weights []r3.Vector
}

func invalid(f Family) Result {
	return Result{family: f}
}

// Valid reports whether the computation succeeded.
func (r Result) Valid() bool { return r.valid }

// Type returns the requested family.
func (r Result) Type() Family { return r.family }

// Matrix returns a copy of the 4x4 source-to-target matrix. For a
// thin-plate spline it holds only the affine component of the warp. It
// returns nil for an invalid result.
func (r Result) Matrix() *mat.Dense {
	if r.linear == nil {
		return nil
	}
	return mat.DenseCopyOf(r.linear)
}

// Residuals returns the distance between each transformed source point and
// its paired target point, in input order.
func (r Result) Residuals() []float64 {
	return append([]float64(nil), r.residuals...)
}

// RMS returns the root-mean-square of Residuals.
func (r Result) RMS() float64 { return r.rms }

// WorstPair returns the index and residual of the worst-fitting pair, or
// -1 when the result holds no residuals.
func (r Result) WorstPair() (int, float64) {
	if len(r.residuals) == 0 {
		return -1, 0
	}
	i := floats.MaxIdx(r.residuals)
	return i, r.residuals[i]
}

// TPSPoints returns the source-space kernel centres of a thin-plate spline.
func (r Result) TPSPoints() []r3.Vector {
	return append([]r3.Vector(nil), r.points...)
}

// TPSWeights returns the n+4 weight rows of a thin-plate spline.
func (r Result) TPSWeights() []r3.Vector {
	return append([]r3.Vector(nil), r.weights...)
}

// FromMatrix wraps a 4x4 source-to-target matrix, typically one loaded
// from disk, as a valid FullAffine result. It carries no residuals since
// no tag pairs were involved.
func FromMatrix(m mat.Matrix) Result {
	return Result{
		valid:  true,
		family: FullAffine,
		linear: mat.DenseCopyOf(m),
	}
}
