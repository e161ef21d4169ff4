package transform

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// lmResult is the best iterate found by levenbergMarquardt.
type lmResult struct {
	x           []float64
	cost        float64 // half the residual sum of squares
	evaluations int
	iterations  int
	converged   bool
}

// levenbergMarquardt minimizes the sum of squares of m.evaluate starting
// from x0, with a central-difference Jacobian and Nielsen's damping update.
// It stops on the function, parameter or gradient tolerance of s, or when
// the evaluation budget is spent, and always returns its best iterate.
func levenbergMarquardt(m model, x0 []float64, s Settings) lmResult {
	n, nv := m.inputs(), m.values()

	x := append([]float64(nil), x0...)
	r := make([]float64, nv)
	m.evaluate(r, x)
	res := lmResult{evaluations: 1}
	cost := 0.5 * floats.Dot(r, r)

	jac := mat.NewDense(nv, n, nil)
	var g mat.VecDense
	var jtj mat.Dense

	xNew := make([]float64, n)
	rNew := make([]float64, nv)
	negG := make([]float64, n)

	mu, nu := -1.0, 2.0

outer:
	for res.evaluations < s.MaxEvaluations {
		if cost == 0 {
			res.converged = true
			break
		}

		fd.Jacobian(jac, m.evaluate, x, &fd.JacobianSettings{Formula: fd.Central})
		res.evaluations += 2 * n
		res.iterations++

		g.MulVec(jac.T(), mat.NewVecDense(nv, r))
		if floats.Norm(g.RawVector().Data, math.Inf(1)) <= s.GradientTolerance {
			res.converged = true
			break
		}
		jtj.Mul(jac.T(), jac)

		if mu < 0 {
			maxDiag := 0.0
			for i := 0; i < n; i++ {
				maxDiag = math.Max(maxDiag, jtj.At(i, i))
			}
			mu = 1e-3 * maxDiag
			if mu == 0 {
				mu = 1e-3
			}
		}

		for i := range negG {
			negG[i] = -g.AtVec(i)
		}

		for res.evaluations < s.MaxEvaluations {
			damped := mat.DenseCopyOf(&jtj)
			for i := 0; i < n; i++ {
				damped.Set(i, i, damped.At(i, i)+mu)
			}

			var step mat.VecDense
			err := step.SolveVec(damped, mat.NewVecDense(n, negG))
			h := step.RawVector().Data
			if err != nil && (len(h) != n || !allFinite(h)) {
				mu *= nu
				nu *= 2
				if math.IsInf(mu, 1) {
					break outer
				}
				continue
			}

			if floats.Norm(h, 2) <= s.ParameterTolerance*(floats.Norm(x, 2)+s.ParameterTolerance) {
				res.converged = true
				break outer
			}

			floats.AddTo(xNew, x, h)
			m.evaluate(rNew, xNew)
			res.evaluations++
			costNew := 0.5 * floats.Dot(rNew, rNew)

			// Predicted reduction of the local quadratic model.
			pred := 0.5 * (mu*floats.Dot(h, h) + floats.Dot(h, negG))
			rho := (cost - costNew) / pred
			if pred > 0 && rho > 0 {
				reduction := cost - costNew
				copy(x, xNew)
				copy(r, rNew)
				prev := cost
				cost = costNew

				mu *= math.Max(1.0/3.0, 1-math.Pow(2*rho-1, 3))
				nu = 2

				if reduction <= s.FunctionTolerance*prev {
					res.converged = true
					break outer
				}
				continue outer
			}

			mu *= nu
			nu *= 2
		}
	}

	res.x = x
	res.cost = cost
	return res
}

func allFinite(v []float64) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
