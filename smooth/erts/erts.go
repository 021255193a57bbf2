// Package erts implements the extended Rauch-Tung-Striebel smoother: a
// backward recursion over the filtered posterior which refines every
// estimate with information from future observations.
package erts

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-ssm/ekf"
	"github.com/milosgajdos/go-ssm/estimate"
	"github.com/milosgajdos/go-ssm/gauss"
	"github.com/milosgajdos/go-ssm/model"
)

// Posterior is the smoothed posterior over a state trajectory: the
// filtered posterior plus the smoothed estimates.
type Posterior struct {
	// Filtered is the filtered posterior the smoother ran on
	*ekf.Filtered
	// Smoothed[t] estimates the state at t given all observations.
	// At the final timestep the smoothed estimate equals the filtered
	// one: that is the boundary condition of the backward recursion.
	Smoothed []*estimate.Gaussian
}

// ERTS is an extended Rauch-Tung-Striebel smoother.
type ERTS struct {
	// p holds the model parameters
	p *model.Params
}

// New creates new ERTS smoother for the model parameters p and returns it.
// It returns error if p is nil.
func New(p *model.Params) (*ERTS, error) {
	if p == nil {
		return nil, fmt.Errorf("invalid model parameters: %v", p)
	}

	return &ERTS{p: p}, nil
}

// Smooth runs the backward smoothing recursion over the observations zs
// with optional control inputs us and returns the smoothed posterior.
// filtered may be nil, in which case the filtered posterior is computed
// first with a single measurement update relinearization; a supplied
// filtered posterior must retain its filtered states.
// It returns error if the sequences are inconsistent with the model or if
// a prediction covariance turns numerically singular at some timestep.
func (s *ERTS) Smooth(zs, us []mat.Vector, filtered *ekf.Filtered) (*Posterior, error) {
	steps := len(zs)
	if steps == 0 {
		return nil, fmt.Errorf("empty observation sequence")
	}

	if us != nil && len(us) != steps {
		return nil, fmt.Errorf("invalid input sequence length: %d != %d", len(us), steps)
	}

	if n := s.p.DynamicsCov().Steps(); n != 0 && n != steps {
		return nil, fmt.Errorf("time-varying dynamics covariance length mismatch: %d != %d", n, steps)
	}

	if filtered == nil {
		k, err := ekf.New(s.p)
		if err != nil {
			return nil, err
		}

		if filtered, err = k.Filter(zs, us); err != nil {
			return nil, err
		}
	}

	if len(filtered.Filtered) != steps {
		return nil, fmt.Errorf("invalid filtered posterior length: %d != %d", len(filtered.Filtered), steps)
	}

	sx := make([]*estimate.Gaussian, steps)
	// boundary condition: the last smoothed estimate is the last
	// filtered estimate, same values with no recomputation
	sx[steps-1] = filtered.Filtered[steps-1]

	smMean := sx[steps-1].Mean()
	smCov := sx[steps-1].Cov()

	var u mat.Vector
	for t := steps - 2; t >= 0; t-- {
		if us != nil {
			u = us[t]
		}
		fMean := filtered.Filtered[t].Mean()
		fCov := filtered.Filtered[t].Cov()
		q := s.p.DynamicsCov().At(t)

		nx := fMean.Len()
		f := s.p.DynJacFn(fMean, u)
		if fr, fc := f.Dims(); fr != nx || fc != nx {
			return nil, fmt.Errorf("invalid dynamics jacobian dimensions: [%d x %d]", fr, fc)
		}

		// one-step prediction: m_pred = f(m), S_pred = Q + F*P*F'
		mPred := s.p.Dynamics()(fMean, u)

		fp := &mat.Dense{}
		fp.Mul(f, fCov)
		sPred := &mat.Dense{}
		sPred.Mul(fp, f.T())
		sPred.Add(sPred, q)
		sPredSym := gauss.Symmetrize(sPred)

		// smoother gain G = (S_pred^-1 * F * P)', via a symmetric solve
		// rather than an explicit inverse
		var chol mat.Cholesky
		if ok := chol.Factorize(sPredSym); !ok {
			return nil, fmt.Errorf("prediction covariance not positive definite at step %d", t)
		}

		gT := &mat.Dense{}
		if err := chol.SolveTo(gT, fp); err != nil {
			return nil, fmt.Errorf("smoother gain solve failed at step %d: %v", t, err)
		}
		g := gT.T()

		// smoothed mean: m + G*(m_next - m_pred)
		dm := &mat.VecDense{}
		dm.SubVec(smMean, mPred)
		corr := &mat.VecDense{}
		corr.MulVec(g, dm)
		mean := &mat.VecDense{}
		mean.AddVec(fMean, corr)

		// smoothed covariance: P + G*(P_next - S_pred)*G'
		dc := &mat.Dense{}
		dc.Sub(smCov, sPredSym)
		gd := &mat.Dense{}
		gd.Mul(g, dc)
		gdg := &mat.Dense{}
		gdg.Mul(gd, gT)
		cov := &mat.Dense{}
		cov.Add(fCov, gdg)
		covSym := gauss.Symmetrize(cov)

		e, err := estimate.NewGaussian(mean, covSym)
		if err != nil {
			return nil, err
		}
		sx[t] = e

		smMean, smCov = mean, covSym
	}

	return &Posterior{
		Filtered: filtered,
		Smoothed: sx,
	}, nil
}
