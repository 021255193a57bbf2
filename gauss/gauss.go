// Package gauss provides the two Gaussian primitives every inference
// driver in this module reduces to: conditioning a Gaussian prior on an
// observation through a locally linearized map, and propagating a Gaussian
// through a linearized dynamics function. The filter conditions on
// emissions, the sampler conditions on the next sampled state through the
// dynamics, and both share the exact same Condition routine.
package gauss

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	ssm "github.com/milosgajdos/go-ssm"
)

// DefaultJitter is the default regularization added to the diagonal of
// the innovation covariance before inverting it. It is a deliberate
// conditioning safeguard, not a statistical parameter: it keeps the
// inversion well posed for nearly singular covariances without materially
// changing the update. Set Config.Jitter to 0 for a pure EKF update.
const DefaultJitter = 1e-3

// Config configures the Gaussian conditioning update.
type Config struct {
	// Iter is the number of relinearization rounds of the update.
	// 1 gives the standard EKF update; more rounds relinearize around
	// the running posterior mean, approximating a Gauss-Newton
	// refinement for strongly nonlinear observation maps.
	Iter int
	// Jitter is added to the innovation covariance diagonal.
	Jitter float64
}

// DefaultConfig returns the Config used by the drivers unless configured
// otherwise: a single linearization round with DefaultJitter.
func DefaultConfig() Config {
	return Config{Iter: 1, Jitter: DefaultJitter}
}

// Condition conditions the Gaussian prior N(mean, cov) on observing z
// through the map fn with observation noise covariance obsCov:
//
//	p(x | z) ~ N(x | mean, cov) * N(z | fn(x, u), obsCov)
//
// fn is linearized with jac around the running posterior mean, cfg.Iter
// times, keeping the prior fixed across rounds. The covariance comes from
// the final linearization in the Joseph stabilized form and is returned
// exactly symmetric.
// It returns error if the config is invalid, the dimensions of z and
// obsCov disagree, or the innovation covariance cannot be inverted.
func Condition(mean mat.Vector, cov mat.Symmetric, fn ssm.Function, jac ssm.Jacobian, obsCov mat.Symmetric, u, z mat.Vector, cfg Config) (mat.Vector, mat.Symmetric, error) {
	if cfg.Iter < 1 {
		return nil, nil, fmt.Errorf("invalid number of relinearizations: %d", cfg.Iter)
	}

	if cfg.Jitter < 0 {
		return nil, nil, fmt.Errorf("invalid innovation jitter: %f", cfg.Jitter)
	}

	nx := mean.Len()
	nz := z.Len()

	if obsCov.SymmetricDim() != nz {
		return nil, nil, fmt.Errorf("invalid observation covariance dimension: %d != %d",
			obsCov.SymmetricDim(), nz)
	}

	// the prior stays fixed across rounds; only the linearization point
	// moves, so for linear maps every round is a fixed point and any
	// number of rounds reproduces the single linear update
	m := mat.VecDenseCopyOf(mean)
	p := mat.DenseCopyOf(cov)

	gain := &mat.Dense{}
	h := &mat.Dense{}

	for i := 0; i < cfg.Iter; i++ {
		hx := jac(m, u)
		if hr, hc := hx.Dims(); hr != nz || hc != nx {
			return nil, nil, fmt.Errorf("invalid observation jacobian dimensions: [%d x %d]", hr, hc)
		}
		h.CloneFrom(hx)

		// S = obsCov + H*P*H' + jitter*I
		ph := &mat.Dense{}
		ph.Mul(p, h.T())
		s := &mat.Dense{}
		s.Mul(h, ph)
		s.Add(s, obsCov)
		for j := 0; j < nz; j++ {
			s.Set(j, j, s.At(j, j)+cfg.Jitter)
		}

		// K = P*H'*S^-1
		sInv := &mat.Dense{}
		if err := sInv.Inverse(s); err != nil {
			return nil, nil, fmt.Errorf("failed to invert innovation covariance: %v", err)
		}
		gain.Mul(ph, sInv)

		// Gauss-Newton iterate relinearized around m:
		// m = mean + K*(z - fn(m, u) - H*(mean - m))
		inn := &mat.VecDense{}
		inn.SubVec(z, fn(m, u))

		dm := &mat.VecDense{}
		dm.SubVec(mean, m)
		hdm := &mat.VecDense{}
		hdm.MulVec(h, dm)
		inn.SubVec(inn, hdm)

		corr := &mat.VecDense{}
		corr.MulVec(gain, inn)
		m.AddVec(mean, corr)
	}

	// Joseph form update with the final linearization:
	// (I - K*H)*P*(I - K*H)' + K*obsCov*K'
	a := &mat.Dense{}
	a.Mul(gain, h)
	a.Sub(eye(nx), a)

	ap := &mat.Dense{}
	ap.Mul(a, p)
	apa := &mat.Dense{}
	apa.Mul(ap, a.T())

	kr := &mat.Dense{}
	kr.Mul(gain, obsCov)
	krk := &mat.Dense{}
	krk.Mul(kr, gain.T())

	cond := &mat.Dense{}
	cond.Add(apa, krk)

	return m, Symmetrize(cond), nil
}

// Predict propagates the Gaussian N(mean, cov) one step through the
// dynamics function fn with noise covariance dynCov:
//
//	predMean = fn(mean, u)
//	predCov  = F*cov*F' + dynCov
//
// where F is the Jacobian of fn at (mean, u). Unlike Condition the
// linearization is not iterated. The returned covariance is exactly
// symmetric.
func Predict(mean mat.Vector, cov mat.Symmetric, fn ssm.Function, jac ssm.Jacobian, dynCov mat.Symmetric, u mat.Vector) (mat.Vector, mat.Symmetric, error) {
	nx := mean.Len()

	if dynCov.SymmetricDim() != nx {
		return nil, nil, fmt.Errorf("invalid dynamics covariance dimension: %d != %d",
			dynCov.SymmetricDim(), nx)
	}

	f := jac(mean, u)
	if fr, fc := f.Dims(); fr != nx || fc != nx {
		return nil, nil, fmt.Errorf("invalid dynamics jacobian dimensions: [%d x %d]", fr, fc)
	}

	predMean := mat.VecDenseCopyOf(fn(mean, u))

	// F*P*F' + Q
	fp := &mat.Dense{}
	fp.Mul(f, cov)
	predCov := &mat.Dense{}
	predCov.Mul(fp, f.T())
	predCov.Add(predCov, dynCov)

	return predMean, Symmetrize(predCov), nil
}

// eye returns the identity matrix of dimension n.
func eye(n int) *mat.DiagDense {
	d := mat.NewDiagDense(n, nil)
	for i := 0; i < n; i++ {
		d.SetDiag(i, 1.0)
	}

	return d
}

// Symmetrize cancels floating point asymmetry by averaging a with its
// transpose.
func Symmetrize(a mat.Matrix) *mat.SymDense {
	n, _ := a.Dims()

	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}

	return s
}
