// Package rnd provides splittable randomness for the sampling driver:
// independent per-timestep random sources derived deterministically from a
// single seed, and Gaussian sampling that stays stable for (almost)
// singular covariance matrices.
package rnd

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
)

// Split derives n independent random sources from seed.
// The derivation is deterministic: the same seed and n always yield the
// same sources, so a consumer drawing a fixed number of variates from each
// source is fully reproducible.
func Split(seed uint64, n int) []rand.Source {
	root := rand.New(rand.NewSource(seed))

	srcs := make([]rand.Source, n)
	for i := range srcs {
		srcs[i] = rand.NewSource(root.Uint64())
	}

	return srcs
}

// WithCov draws one random sample from a zero-mean Normal (aka Gaussian)
// distribution with covariance cov using the random source src.
// It fails with error if the SVD factorization of cov fails.
func WithCov(cov mat.Symmetric, src rand.Source) (mat.Vector, error) {
	if src == nil {
		return nil, fmt.Errorf("invalid random source: %v", src)
	}

	// Use SVD instead of Cholesky as Cholesky can be numerically unstable
	// if cov is (almost) singular
	var svd mat.SVD
	ok := svd.Factorize(cov, mat.SVDFull)
	if !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	U := new(mat.Dense)
	svd.UTo(U)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	diag := mat.NewDiagDense(len(vals), vals)
	U.Mul(U, diag)

	rnd := rand.New(src)
	rows, _ := cov.Dims()
	data := make([]float64, rows)
	for i := range data {
		data[i] = rnd.NormFloat64()
	}

	sample := mat.NewVecDense(rows, nil)
	sample.MulVec(U, mat.NewVecDense(rows, data))

	return sample, nil
}
