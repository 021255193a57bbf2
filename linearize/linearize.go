// Package linearize provides the default linearization capability used by
// the filtering, smoothing and sampling drivers: finite-difference
// Jacobians of model functions. Callers with analytic Jacobians can supply
// their own ssm.Jacobian instead.
package linearize

import (
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	ssm "github.com/milosgajdos/go-ssm"
)

// Jacobian returns a Jacobian function for fn backed by central finite
// differences. fn must be safe for concurrent evaluation: the finite
// difference probes are evaluated concurrently.
func Jacobian(fn ssm.Function) ssm.Jacobian {
	return func(x, u mat.Vector) mat.Matrix {
		eval := func(y, xRaw []float64) {
			xv := mat.NewVecDense(len(xRaw), xRaw)
			out := fn(xv, u)

			for i := 0; i < len(y); i++ {
				y[i] = out.AtVec(i)
			}
		}

		// output dimension of fn at the linearization point
		ny := fn(x, u).Len()

		jac := mat.NewDense(ny, x.Len(), nil)
		fd.Jacobian(jac, eval, mat.Col(nil, 0, x), &fd.JacobianSettings{
			Formula:    fd.Central,
			Concurrent: true,
		})

		return jac
	}
}
