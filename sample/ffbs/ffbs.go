// Package ffbs implements forward-filter backward-sampling: drawing exact
// trajectory samples from the joint smoothing posterior of a nonlinear
// Gaussian state-space model. The last state is drawn from the filtered
// marginal and every earlier state is drawn after conditioning the
// filtered estimate on the already sampled next state through the
// dynamics, reusing the same Gaussian conditioning as the filter
// measurement update.
package ffbs

import (
	"fmt"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-ssm/ekf"
	"github.com/milosgajdos/go-ssm/gauss"
	"github.com/milosgajdos/go-ssm/model"
	"github.com/milosgajdos/go-ssm/rnd"
)

// FFBS is a forward-filter backward-sampler.
type FFBS struct {
	// p holds the model parameters
	p *model.Params
	// cfg configures the backward conditioning update
	cfg gauss.Config
}

// Option configures an FFBS.
type Option func(*FFBS)

// WithJitter sets the innovation covariance regularization used by the
// backward conditioning update.
func WithJitter(jitter float64) Option {
	return func(f *FFBS) {
		f.cfg.Jitter = jitter
	}
}

// New creates new FFBS sampler for the model parameters p and returns it.
// It returns error if p is nil.
func New(p *model.Params, opts ...Option) (*FFBS, error) {
	if p == nil {
		return nil, fmt.Errorf("invalid model parameters: %v", p)
	}

	f := &FFBS{
		p:   p,
		cfg: gauss.DefaultConfig(),
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.cfg.Jitter < 0 {
		return nil, fmt.Errorf("invalid innovation jitter: %f", f.cfg.Jitter)
	}

	return f, nil
}

// Sample draws one trajectory from the joint smoothing posterior given
// the observations zs and optional control inputs us, and returns it in
// forward time order. Randomness is derived from seed with one
// independent source per timestep, so a draw is reproducible given the
// seed and the number of timesteps. filtered may be nil, in which case
// the filtered posterior is computed first; a supplied filtered posterior
// must retain its filtered states.
// It returns error if the sequences are inconsistent with the model or if
// sampling fails at some timestep.
func (f *FFBS) Sample(seed uint64, zs, us []mat.Vector, filtered *ekf.Filtered) ([]mat.Vector, error) {
	steps := len(zs)
	if steps == 0 {
		return nil, fmt.Errorf("empty observation sequence")
	}

	if us != nil && len(us) != steps {
		return nil, fmt.Errorf("invalid input sequence length: %d != %d", len(us), steps)
	}

	if n := f.p.DynamicsCov().Steps(); n != 0 && n != steps {
		return nil, fmt.Errorf("time-varying dynamics covariance length mismatch: %d != %d", n, steps)
	}

	if filtered == nil {
		k, err := ekf.New(f.p)
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

	// one independent source per timestep: a changed draw at one step
	// can not shift the randomness consumed by any other step
	srcs := rnd.Split(seed, steps)

	states := make([]mat.Vector, steps)

	// initialize the backward pass from the filtered marginal at the
	// last timestep
	last := filtered.Filtered[steps-1]
	x, err := draw(last.Mean(), last.Cov(), srcs[steps-1])
	if err != nil {
		return nil, fmt.Errorf("sampling failed at step %d: %v", steps-1, err)
	}
	states[steps-1] = x

	var u mat.Vector
	for t := steps - 2; t >= 0; t-- {
		if us != nil {
			u = us[t]
		}
		q := f.p.DynamicsCov().At(t)
		fl := filtered.Filtered[t]

		// condition the filtered estimate on the sampled next state
		// observed through the dynamics
		mean, cov, err := gauss.Condition(fl.Mean(), fl.Cov(), f.p.Dynamics(), f.p.DynJacFn, q, u, states[t+1], f.cfg)
		if err != nil {
			return nil, fmt.Errorf("backward conditioning failed at step %d: %v", t, err)
		}

		if states[t], err = draw(mean, cov, srcs[t]); err != nil {
			return nil, fmt.Errorf("sampling failed at step %d: %v", t, err)
		}
	}

	return states, nil
}

// draw samples from N(mean, cov) using src.
func draw(mean mat.Vector, cov mat.Symmetric, src rand.Source) (mat.Vector, error) {
	eps, err := rnd.WithCov(cov, src)
	if err != nil {
		return nil, err
	}

	x := &mat.VecDense{}
	x.AddVec(mean, eps)

	return x, nil
}
