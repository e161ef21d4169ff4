package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"
)

// Settings tunes the Levenberg-Marquardt refinement used by the Rigid,
// Similarity, NineParam and TenParam families.
type Settings struct {
	// FunctionTolerance stops when an accepted step reduces the cost by
	// less than this fraction.
	FunctionTolerance float64
	// ParameterTolerance stops when the step is this small relative to
	// the parameter vector.
	ParameterTolerance float64
	// GradientTolerance stops when the largest gradient component falls
	// below it.
	GradientTolerance float64
	// MaxEvaluations bounds the number of residual evaluations, including
	// those spent estimating the Jacobian.
	MaxEvaluations int
}

// DefaultSettings returns tolerances of 1e-12 and a budget of 2000
// evaluations.
func DefaultSettings() Settings {
	return Settings{
		FunctionTolerance:  1e-12,
		ParameterTolerance: 1e-12,
		GradientTolerance:  1e-12,
		MaxEvaluations:     2000,
	}
}

// Compute fits a transform of family f mapping source onto target with the
// default settings. See ComputeWithSettings.
func Compute(target, source []r3.Vector, f Family) Result {
	return ComputeWithSettings(target, source, f, DefaultSettings())
}

// ComputeWithSettings fits a transform of family f mapping each source[i]
// onto target[i].
//
// The result is invalid, and nothing is computed, when the lists differ
// in length, hold fewer pairs than f.MinPairs, or f is unknown. Numerical
// degeneracy never fails a computation: it is absorbed by least squares
// fallbacks and shows up in the residuals instead.
func ComputeWithSettings(target, source []r3.Vector, f Family, s Settings) Result {
	switch {
	case !f.valid():
		log().Warn("unknown transform family", "family", int(f))
		return invalid(f)
	case len(target) != len(source):
		log().Warn("tag lists differ in length", "family", f.String(), "target", len(target), "source", len(source))
		return invalid(f)
	case len(target) < f.MinPairs():
		log().Warn("not enough tag pairs", "family", f.String(), "pairs", len(target), "required", f.MinPairs())
		return invalid(f)
	}

	res := Result{valid: true, family: f}
	switch f {
	case FullAffine:
		res.linear = SolveAffine(target, source)
	case ThinPlateSpline:
		res.points, res.weights, res.linear = SolveTPS(target, source)
	default:
		res.linear = refine(target, source, f, s)
	}

	res.residuals, res.rms = residuals(res, target, source)
	log().Debug("transform computed", "family", f.String(), "pairs", len(target), "rms", res.rms)
	return res
}

// residuals returns |f(B_i) - A_i| for every pair and their root mean square.
func residuals(r Result, target, source []r3.Vector) ([]float64, float64) {
	d := make([]float64, len(source))
	for i, b := range source {
		d[i] = r.Forward(b).Distance(target[i])
	}
	if len(d) == 0 {
		return d, 0
	}
	return d, math.Sqrt(floats.Dot(d, d) / float64(len(d)))
}
