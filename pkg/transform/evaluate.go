package transform

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"tagalign/pkg/geometry"
)

// InverseOptions controls the Newton-Raphson inversion of a thin-plate
// spline. Linear transforms ignore it.
type InverseOptions struct {
	// Tolerance is the residual distance at which iteration stops. The
	// test is made on the squared norm against Tolerance squared.
	Tolerance float64
	// MaxIterations bounds the number of Newton steps.
	MaxIterations int
	// JacobianStep is the central-difference step of the 3x3 Jacobian.
	JacobianStep float64
}

// DefaultInverseOptions returns a tolerance of 1e-6, 20 iterations and a
// Jacobian step of 1e-6.
func DefaultInverseOptions() InverseOptions {
	return InverseOptions{
		Tolerance:     1e-6,
		MaxIterations: 20,
		JacobianStep:  1e-6,
	}
}

// Forward maps a source-space point into target space. An invalid result
// returns p unchanged.
func (r Result) Forward(p r3.Vector) r3.Vector {
	switch {
	case !r.valid:
		return p
	case r.family == ThinPlateSpline:
		return tpsForward(r.points, r.weights, p)
	default:
		return geometry.Apply(r.linear, p)
	}
}

// Inverse maps a target-space point back into source space.
//
// Linear families invert the matrix exactly. The thin-plate spline has no
// closed-form inverse and is inverted by Newton-Raphson with the default
// options; the last iterate is returned whether or not it converged, and
// strongly folded warps can make the iteration diverge. Use
// InverseWithStatus to learn whether the tolerance was met.
func (r Result) Inverse(p r3.Vector) r3.Vector {
	q, _ := r.InverseWithStatus(p, DefaultInverseOptions())
	return q
}

// InverseWithStatus is Inverse with explicit options. converged reports
// whether the returned point maps to within opts.Tolerance of p; it is
// false for an invalid result or a singular linear matrix, in which case p
// is returned unchanged.
func (r Result) InverseWithStatus(p r3.Vector, opts InverseOptions) (q r3.Vector, converged bool) {
	if !r.valid {
		return p, false
	}
	if r.family != ThinPlateSpline {
		inv, ok := geometry.Invert(r.linear)
		if !ok {
			return p, false
		}
		return geometry.Apply(inv, p), true
	}
	return r.tpsInverse(p, opts)
}

func (r Result) tpsInverse(p r3.Vector, opts InverseOptions) (r3.Vector, bool) {
	// Seed with the inverse of the affine part: A^-1 (p - b).
	q := p
	if inv, ok := geometry.Invert(r.linear); ok {
		q = geometry.Apply(inv, p)
	}

	tol2 := opts.Tolerance * opts.Tolerance
	f := func(y, x []float64) {
		v := tpsForward(r.points, r.weights, r3.Vector{X: x[0], Y: x[1], Z: x[2]})
		y[0], y[1], y[2] = v.X, v.Y, v.Z
	}
	jac := mat.NewDense(3, 3, nil)
	settings := &fd.JacobianSettings{Formula: fd.Central, Step: opts.JacobianStep}

	for i := 0; i < opts.MaxIterations; i++ {
		res := tpsForward(r.points, r.weights, q).Sub(p)
		if res.Norm2() < tol2 {
			return q, true
		}

		fd.Jacobian(jac, f, []float64{q.X, q.Y, q.Z}, settings)

		var step mat.VecDense
		err := step.SolveVec(jac, mat.NewVecDense(3, []float64{res.X, res.Y, res.Z}))
		h := step.RawVector().Data
		if err != nil && (len(h) != 3 || !allFinite(h)) {
			break
		}
		q = q.Sub(r3.Vector{X: h[0], Y: h[1], Z: h[2]})
	}

	return q, tpsForward(r.points, r.weights, q).Sub(p).Norm2() < tol2
}

// Evaluator maps points through a Result, caching the inverse matrix of a
// linear transform. It is safe for concurrent use.
type Evaluator struct {
	result  Result
	inverse *mat.Dense
	opts    InverseOptions
}

// NewEvaluator prepares r for repeated evaluation.
func NewEvaluator(r Result, opts InverseOptions) *Evaluator {
	e := &Evaluator{result: r, opts: opts}
	if r.valid && r.family.IsLinear() {
		if inv, ok := geometry.Invert(r.linear); ok {
			e.inverse = inv
		}
	}
	return e
}

// Result returns the evaluated transform.
func (e *Evaluator) Result() Result { return e.result }

// Forward maps a source-space point into target space.
func (e *Evaluator) Forward(p r3.Vector) r3.Vector {
	return e.result.Forward(p)
}

// Inverse maps a target-space point into source space. See
// Result.InverseWithStatus for the meaning of converged.
func (e *Evaluator) Inverse(p r3.Vector) (r3.Vector, bool) {
	if e.inverse != nil {
		return geometry.Apply(e.inverse, p), true
	}
	return e.result.InverseWithStatus(p, e.opts)
}
