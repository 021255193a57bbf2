package estimate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNewGaussian(t *testing.T) {
	assert := assert.New(t)

	mean := mat.NewVecDense(2, []float64{1.0, 3.0})
	cov := mat.NewSymDense(2, []float64{0.25, 0, 0, 0.25})

	g, err := NewGaussian(mean, cov)
	assert.NotNil(g)
	assert.NoError(err)
	assert.Equal(2, g.Dim())

	// nil mean and covariance
	g, err = NewGaussian(nil, cov)
	assert.Nil(g)
	assert.Error(err)

	g, err = NewGaussian(mean, nil)
	assert.Nil(g)
	assert.Error(err)

	// mismatched dimensions
	g, err = NewGaussian(mat.NewVecDense(3, nil), cov)
	assert.Nil(g)
	assert.Error(err)
}

func TestGaussianMeanCov(t *testing.T) {
	assert := assert.New(t)

	mean := mat.NewVecDense(2, []float64{1.0, 3.0})
	cov := mat.NewSymDense(2, []float64{0.25, 0.1, 0.1, 0.25})

	g, err := NewGaussian(mean, cov)
	assert.NotNil(g)
	assert.NoError(err)

	gMean := g.Mean()
	assert.True(mat.EqualApprox(mean, gMean, 0))

	gCov := g.Cov()
	assert.True(mat.EqualApprox(cov, gCov, 0))

	// returned values are copies: mutating them must not leak into the estimate
	gMean.(*mat.VecDense).SetVec(0, 100.0)
	gCov.(*mat.SymDense).SetSym(0, 0, 100.0)

	assert.True(mat.EqualApprox(mean, g.Mean(), 0))
	assert.True(mat.EqualApprox(cov, g.Cov(), 0))

	// construction copies too
	mean.SetVec(1, -100.0)
	assert.Equal(3.0, g.Mean().AtVec(1))
}
