// Package ekf implements the (iterated) extended Kalman filter: a forward
// scan over an observation sequence producing the filtered posterior and
// the marginal log-likelihood of the observations.
package ekf

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-ssm/estimate"
	"github.com/milosgajdos/go-ssm/gauss"
	"github.com/milosgajdos/go-ssm/model"
	"github.com/milosgajdos/go-ssm/noise"
)

// Fields selects which per-timestep sequences the filter retains in its
// output. All fields are computed regardless of the selection since every
// timestep depends on the previous one; the selection only controls
// retention.
type Fields uint

const (
	// FilteredStates retains filtered means and covariances
	FilteredStates Fields = 1 << iota
	// PredictedStates retains one-step-ahead predicted means and covariances
	PredictedStates
	// StepLogLiks retains per-timestep predictive log-densities
	StepLogLiks
)

// DefaultFields is the retention selection used unless configured otherwise.
const DefaultFields = FilteredStates | PredictedStates

// Filtered is the filtered posterior over a state trajectory.
type Filtered struct {
	// LogLik is the marginal log-likelihood of the observation sequence
	LogLik float64
	// Filtered[t] estimates the state at t given observations up to and
	// including t. Nil unless FilteredStates was retained.
	Filtered []*estimate.Gaussian
	// Predicted[t] is the one-step-ahead estimate of the state at t+1
	// given observations up to and including t. Nil unless
	// PredictedStates was retained.
	Predicted []*estimate.Gaussian
	// StepLogLiks[t] is the predictive log-density of observation t;
	// the step values sum to LogLik. Nil unless StepLogLiks was retained.
	StepLogLiks []float64
}

// EKF is an extended Kalman filter over a nonlinear Gaussian state-space
// model.
type EKF struct {
	// p holds the model parameters
	p *model.Params
	// cfg configures the measurement update
	cfg gauss.Config
	// fields selects output retention
	fields Fields
}

// Option configures an EKF.
type Option func(*EKF)

// WithIter sets the number of measurement update relinearizations.
// 1 is the standard EKF; more rounds give the iterated EKF.
func WithIter(n int) Option {
	return func(k *EKF) {
		k.cfg.Iter = n
	}
}

// WithJitter sets the innovation covariance regularization used by the
// measurement update.
func WithJitter(jitter float64) Option {
	return func(k *EKF) {
		k.cfg.Jitter = jitter
	}
}

// WithFields sets the output retention selection.
func WithFields(fields Fields) Option {
	return func(k *EKF) {
		k.fields = fields
	}
}

// New creates new EKF for the model parameters p and returns it.
// It returns error if p is nil or the configured number of
// relinearizations is not positive.
func New(p *model.Params, opts ...Option) (*EKF, error) {
	if p == nil {
		return nil, fmt.Errorf("invalid model parameters: %v", p)
	}

	k := &EKF{
		p:      p,
		cfg:    gauss.DefaultConfig(),
		fields: DefaultFields,
	}

	for _, opt := range opts {
		opt(k)
	}

	if k.cfg.Iter < 1 {
		return nil, fmt.Errorf("invalid number of relinearizations: %d", k.cfg.Iter)
	}

	if k.cfg.Jitter < 0 {
		return nil, fmt.Errorf("invalid innovation jitter: %f", k.cfg.Jitter)
	}

	return k, nil
}

// Filter runs the forward filtering scan over the observations zs with
// optional control inputs us and returns the filtered posterior.
// us must either be nil or have the same length as zs.
// It returns error if the sequence dimensions are inconsistent with the
// model or if a covariance matrix turns numerically singular at some
// timestep.
func (k *EKF) Filter(zs, us []mat.Vector) (*Filtered, error) {
	if err := checkSequences(k.p, zs, us); err != nil {
		return nil, err
	}

	steps := len(zs)

	out := &Filtered{}
	if k.fields&FilteredStates != 0 {
		out.Filtered = make([]*estimate.Gaussian, steps)
	}
	if k.fields&PredictedStates != 0 {
		out.Predicted = make([]*estimate.Gaussian, steps)
	}
	if k.fields&StepLogLiks != 0 {
		out.StepLogLiks = make([]float64, steps)
	}

	// carry: accumulated log-likelihood and the one-step-ahead
	// prediction, seeded with the initial condition
	ll := 0.0
	predMean := k.p.InitMean()
	var predCov mat.Symmetric = k.p.InitCov()

	var u mat.Vector
	for t := 0; t < steps; t++ {
		q := k.p.DynamicsCov().At(t)
		r := k.p.EmissionCov().At(t)
		if us != nil {
			u = us[t]
		}
		z := zs[t]

		// predictive log-density of z: N(z; h(m), H*P*H' + R) with the
		// predicted covariance, before conditioning on z
		stepLL, err := logProb(k.p, predMean, predCov, r, u, z)
		if err != nil {
			return nil, fmt.Errorf("likelihood update failed at step %d: %v", t, err)
		}
		ll += stepLL

		// condition on the emission
		fMean, fCov, err := gauss.Condition(predMean, predCov, k.p.Emission(), k.p.ObsJacFn, r, u, z, k.cfg)
		if err != nil {
			return nil, fmt.Errorf("measurement update failed at step %d: %v", t, err)
		}

		// predict the next state
		predMean, predCov, err = gauss.Predict(fMean, fCov, k.p.Dynamics(), k.p.DynJacFn, q, u)
		if err != nil {
			return nil, fmt.Errorf("state prediction failed at step %d: %v", t, err)
		}

		if out.Filtered != nil {
			e, err := estimate.NewGaussian(fMean, fCov)
			if err != nil {
				return nil, err
			}
			out.Filtered[t] = e
		}

		if out.Predicted != nil {
			e, err := estimate.NewGaussian(predMean, predCov)
			if err != nil {
				return nil, err
			}
			out.Predicted[t] = e
		}

		if out.StepLogLiks != nil {
			out.StepLogLiks[t] = stepLL
		}
	}

	out.LogLik = ll

	return out, nil
}

// Model returns the model parameters the filter operates on.
func (k *EKF) Model() *model.Params {
	return k.p
}

// logProb evaluates the predictive log-density of observation z under the
// predicted state distribution N(mean, cov).
func logProb(p *model.Params, mean mat.Vector, cov, obsCov mat.Symmetric, u, z mat.Vector) (float64, error) {
	h := p.ObsJacFn(mean, u)

	// S = H*P*H' + R
	ph := &mat.Dense{}
	ph.Mul(cov, h.T())
	s := &mat.Dense{}
	s.Mul(h, ph)
	s.Add(s, obsCov)

	yHat := p.Emission()(mean, u)

	dist, err := noise.NewGaussian(mat.Col(nil, 0, yHat), gauss.Symmetrize(s), nil)
	if err != nil {
		return 0, err
	}

	return dist.LogProb(z), nil
}

// checkSequences validates observation and input sequence dimensions
// against the model parameters before any recursion starts.
func checkSequences(p *model.Params, zs, us []mat.Vector) error {
	steps := len(zs)
	if steps == 0 {
		return fmt.Errorf("empty observation sequence")
	}

	if us != nil && len(us) != steps {
		return fmt.Errorf("invalid input sequence length: %d != %d", len(us), steps)
	}

	_, ny := p.SystemDims()
	for t, z := range zs {
		if z == nil || z.Len() != ny {
			return fmt.Errorf("invalid observation dimension at step %d: %v", t, z)
		}
	}

	if n := p.DynamicsCov().Steps(); n != 0 && n != steps {
		return fmt.Errorf("time-varying dynamics covariance length mismatch: %d != %d", n, steps)
	}

	if n := p.EmissionCov().Steps(); n != 0 && n != steps {
		return fmt.Errorf("time-varying emission covariance length mismatch: %d != %d", n, steps)
	}

	return nil
}
