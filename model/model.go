// Package model provides the parameter container for nonlinear Gaussian
// state-space models:
//
//	x_{t+1} = f(x_t, u_t) + q_t,  q_t ~ N(0, Q_t)
//	y_t     = h(x_t, u_t) + r_t,  r_t ~ N(0, R_t)
//	x_0     ~ N(m0, S0)
//
// Parameters are validated on construction and are immutable for the
// duration of any filter, smooth or sample call.
package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	ssm "github.com/milosgajdos/go-ssm"
	"github.com/milosgajdos/go-ssm/linearize"
)

// Params holds the parameters of a nonlinear Gaussian state-space model.
type Params struct {
	// DynJacFn evaluates the Jacobian of the dynamics function.
	// New sets it to a finite-difference default; callers with an
	// analytic Jacobian may override it before running a driver.
	DynJacFn ssm.Jacobian
	// ObsJacFn evaluates the Jacobian of the emission function.
	// Defaulted and overridable the same way as DynJacFn.
	ObsJacFn ssm.Jacobian

	// dyn is the dynamics a.k.a. state propagation function
	dyn ssm.Function
	// obs is the emission a.k.a. observation function
	obs ssm.Function
	// q is the dynamics noise covariance schedule
	q *Cov
	// r is the emission noise covariance schedule
	r *Cov
	// initMean is the initial state mean
	initMean *mat.VecDense
	// initCov is the initial state covariance
	initCov *mat.SymDense
}

// New creates new model Params and returns it.
// It accepts the following parameters:
//   - dyn:      dynamics function f(x, u)
//   - obs:      emission function h(x, u)
//   - q:        dynamics noise covariance schedule
//   - r:        emission noise covariance schedule
//   - initMean: initial state mean m0
//   - initCov:  initial state covariance S0
//
// It returns error if any parameter is missing or if the state dimensions
// of q, initMean and initCov disagree.
func New(dyn, obs ssm.Function, q, r *Cov, initMean mat.Vector, initCov mat.Symmetric) (*Params, error) {
	if dyn == nil || obs == nil {
		return nil, fmt.Errorf("missing model function: dynamics %v, emission %v", dyn, obs)
	}

	if q == nil || r == nil {
		return nil, fmt.Errorf("invalid noise covariance schedule: %v, %v", q, r)
	}

	if initMean == nil || initCov == nil {
		return nil, fmt.Errorf("invalid initial condition: mean %v, cov %v", initMean, initCov)
	}

	nx := initMean.Len()
	if initCov.SymmetricDim() != nx {
		return nil, fmt.Errorf("invalid initial covariance dimension: %d != %d",
			initCov.SymmetricDim(), nx)
	}

	if q.Dim() != nx {
		return nil, fmt.Errorf("invalid dynamics covariance dimension: %d != %d", q.Dim(), nx)
	}

	m := &mat.VecDense{}
	m.CloneFromVec(initMean)

	c := mat.NewSymDense(initCov.SymmetricDim(), nil)
	c.CopySym(initCov)

	return &Params{
		DynJacFn: linearize.Jacobian(dyn),
		ObsJacFn: linearize.Jacobian(obs),
		dyn:      dyn,
		obs:      obs,
		q:        q,
		r:        r,
		initMean: m,
		initCov:  c,
	}, nil
}

// Dynamics returns the dynamics function.
func (p *Params) Dynamics() ssm.Function {
	return p.dyn
}

// Emission returns the emission function.
func (p *Params) Emission() ssm.Function {
	return p.obs
}

// DynamicsCov returns the dynamics noise covariance schedule.
func (p *Params) DynamicsCov() *Cov {
	return p.q
}

// EmissionCov returns the emission noise covariance schedule.
func (p *Params) EmissionCov() *Cov {
	return p.r
}

// InitMean returns the initial state mean.
func (p *Params) InitMean() mat.Vector {
	m := &mat.VecDense{}
	m.CloneFromVec(p.initMean)

	return m
}

// InitCov returns the initial state covariance.
func (p *Params) InitCov() mat.Symmetric {
	c := mat.NewSymDense(p.initCov.SymmetricDim(), nil)
	c.CopySym(p.initCov)

	return c
}

// SystemDims returns the state and observation dimensions of the model.
func (p *Params) SystemDims() (nx, ny int) {
	return p.initMean.Len(), p.r.Dim()
}
