// Package sim simulates trajectories of nonlinear Gaussian state-space
// models: noisy state and observation sequences generated from model
// parameters, handy for building test scenarios and demos.
package sim

import (
	"fmt"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-ssm/model"
	"github.com/milosgajdos/go-ssm/noise"
)

// Trajectory simulates steps timesteps of the model p driven by the
// optional control inputs us, drawing all noise from src. It returns the
// simulated state sequence and the observation sequence.
// It returns error if steps is not positive, us has the wrong length or
// a noise covariance is not positive definite.
func Trajectory(p *model.Params, us []mat.Vector, steps int, src rand.Source) (states, obs []mat.Vector, err error) {
	if steps <= 0 {
		return nil, nil, fmt.Errorf("invalid number of steps: %d", steps)
	}

	if us != nil && len(us) != steps {
		return nil, nil, fmt.Errorf("invalid input sequence length: %d != %d", len(us), steps)
	}

	if n := p.DynamicsCov().Steps(); n != 0 && n != steps {
		return nil, nil, fmt.Errorf("time-varying dynamics covariance length mismatch: %d != %d", n, steps)
	}

	if n := p.EmissionCov().Steps(); n != 0 && n != steps {
		return nil, nil, fmt.Errorf("time-varying emission covariance length mismatch: %d != %d", n, steps)
	}

	states = make([]mat.Vector, steps)
	obs = make([]mat.Vector, steps)

	nx, ny := p.SystemDims()

	// initial state: x_0 ~ N(m0, S0)
	init, err := noise.NewGaussian(make([]float64, nx), p.InitCov(), src)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create initial state noise: %v", err)
	}

	x := &mat.VecDense{}
	x.AddVec(p.InitMean(), init.Sample())

	var u mat.Vector
	for t := 0; t < steps; t++ {
		if us != nil {
			u = us[t]
		}

		r, err := noise.NewGaussian(make([]float64, ny), p.EmissionCov().At(t), src)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create emission noise at step %d: %v", t, err)
		}

		// y_t = h(x_t, u_t) + r_t
		y := &mat.VecDense{}
		y.AddVec(p.Emission()(x, u), r.Sample())

		states[t] = x
		obs[t] = y

		if t == steps-1 {
			break
		}

		q, err := noise.NewGaussian(make([]float64, nx), p.DynamicsCov().At(t), src)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create dynamics noise at step %d: %v", t, err)
		}

		// x_{t+1} = f(x_t, u_t) + q_t
		xNext := &mat.VecDense{}
		xNext.AddVec(p.Dynamics()(x, u), q.Sample())
		x = xNext
	}

	return states, obs, nil
}
