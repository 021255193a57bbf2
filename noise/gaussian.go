// Package noise provides the Gaussian distribution capability used across
// the inference drivers: log-density evaluation for the marginal
// likelihood and exact sampling for simulation.
package noise

import (
	"fmt"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Gaussian is a multivariate Gaussian distribution.
type Gaussian struct {
	// dist is a multivariate normal distribution
	dist *distmv.Normal
	// mean is Gaussian mean
	mean []float64
	// cov is Gaussian covariance
	cov mat.Symmetric
}

// NewGaussian creates new Gaussian distribution with given mean and
// covariance. Samples are drawn from src; src may be nil in which case
// sampling is not reproducible. It returns error if cov is not positive
// definite or if the dimensions of mean and cov disagree.
func NewGaussian(mean []float64, cov mat.Symmetric, src rand.Source) (*Gaussian, error) {
	if len(mean) != cov.SymmetricDim() {
		return nil, fmt.Errorf("invalid distribution dimensions: mean %d, cov %d x %d",
			len(mean), cov.SymmetricDim(), cov.SymmetricDim())
	}

	dist, ok := distmv.NewNormal(mean, cov, src)
	if !ok {
		return nil, fmt.Errorf("covariance matrix is not positive definite")
	}

	return &Gaussian{
		dist: dist,
		mean: mean,
		cov:  cov,
	}, nil
}

// Sample draws a sample from the Gaussian distribution and returns it.
func (g *Gaussian) Sample() mat.Vector {
	r := g.dist.Rand(nil)
	return mat.NewVecDense(len(r), r)
}

// LogProb returns the natural logarithm of the density of the
// distribution at x.
func (g *Gaussian) LogProb(x mat.Vector) float64 {
	return g.dist.LogProb(mat.Col(nil, 0, x))
}

// Cov returns covariance matrix of the Gaussian distribution.
func (g *Gaussian) Cov() mat.Symmetric {
	return g.cov
}

// Mean returns the Gaussian mean.
func (g *Gaussian) Mean() []float64 {
	return g.mean
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%v\n}",
		g.mean, mat.Formatted(g.cov, mat.Prefix("    "), mat.Squeeze()))
}
