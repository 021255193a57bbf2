package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Cov is a noise covariance schedule: either a single matrix broadcast to
// every timestep or an explicit sequence with one matrix per timestep.
// The two cases are tagged by construction, so resolving the covariance at
// a timestep never inspects matrix shapes.
type Cov struct {
	// constant is the broadcast covariance; nil when the schedule varies
	constant *mat.SymDense
	// varying holds one covariance per timestep; nil when constant
	varying []*mat.SymDense
}

// NewCov creates a constant covariance schedule which resolves to cov at
// every timestep. It returns error if cov is nil or has zero dimension.
func NewCov(cov mat.Symmetric) (*Cov, error) {
	if cov == nil || cov.SymmetricDim() <= 0 {
		return nil, fmt.Errorf("invalid covariance matrix: %v", cov)
	}

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &Cov{constant: c}, nil
}

// NewTimeVaryingCov creates a covariance schedule with one matrix per
// timestep. It returns error if covs is empty or its matrices do not all
// have the same dimension.
func NewTimeVaryingCov(covs []mat.Symmetric) (*Cov, error) {
	if len(covs) == 0 {
		return nil, fmt.Errorf("empty covariance sequence")
	}

	varying := make([]*mat.SymDense, len(covs))
	for i, cov := range covs {
		if cov == nil || cov.SymmetricDim() <= 0 {
			return nil, fmt.Errorf("invalid covariance matrix at step %d: %v", i, cov)
		}

		if cov.SymmetricDim() != covs[0].SymmetricDim() {
			return nil, fmt.Errorf("covariance dimension mismatch at step %d: %d != %d",
				i, cov.SymmetricDim(), covs[0].SymmetricDim())
		}

		c := mat.NewSymDense(cov.SymmetricDim(), nil)
		c.CopySym(cov)
		varying[i] = c
	}

	return &Cov{varying: varying}, nil
}

// At resolves the covariance at timestep t. Constant schedules resolve to
// the same matrix for every t. The returned matrix must not be modified.
func (c *Cov) At(t int) mat.Symmetric {
	if c.constant != nil {
		return c.constant
	}

	return c.varying[t]
}

// Dim returns the dimension of the scheduled covariance matrices.
func (c *Cov) Dim() int {
	if c.constant != nil {
		return c.constant.SymmetricDim()
	}

	return c.varying[0].SymmetricDim()
}

// Steps returns the number of timesteps the schedule is defined for.
// It returns 0 for constant schedules, which cover any horizon.
func (c *Cov) Steps() int {
	return len(c.varying)
}
