package estimate

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Gaussian is a Gaussian state estimate: a mean vector together with its
// covariance matrix. It makes defensive copies on both construction and
// access so posterior sequences stay immutable once returned.
type Gaussian struct {
	// mean is the estimate mean
	mean *mat.VecDense
	// cov is the estimate covariance
	cov *mat.SymDense
}

// NewGaussian creates new Gaussian estimate from mean and cov and returns it.
// It returns error if the dimensions of mean and cov do not agree.
func NewGaussian(mean mat.Vector, cov mat.Symmetric) (*Gaussian, error) {
	if mean == nil || cov == nil {
		return nil, fmt.Errorf("invalid estimate: mean %v, cov %v", mean, cov)
	}

	if mean.Len() != cov.SymmetricDim() {
		return nil, fmt.Errorf("invalid estimate dimensions: mean %d, cov %d x %d",
			mean.Len(), cov.SymmetricDim(), cov.SymmetricDim())
	}

	m := &mat.VecDense{}
	m.CloneFromVec(mean)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &Gaussian{
		mean: m,
		cov:  c,
	}, nil
}

// Mean returns the estimate mean.
func (g *Gaussian) Mean() mat.Vector {
	m := &mat.VecDense{}
	m.CloneFromVec(g.mean)

	return m
}

// Cov returns the estimate covariance.
func (g *Gaussian) Cov() mat.Symmetric {
	c := mat.NewSymDense(g.cov.SymmetricDim(), nil)
	c.CopySym(g.cov)

	return c
}

// Dim returns the dimension of the estimated state.
func (g *Gaussian) Dim() int {
	return g.mean.Len()
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%v\n}",
		mat.Formatted(g.mean, mat.Prefix("     "), mat.Squeeze()),
		mat.Formatted(g.cov, mat.Prefix("    "), mat.Squeeze()))
}
