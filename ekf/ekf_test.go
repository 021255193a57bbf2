package ekf

import (
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-ssm/model"
)

var (
	p  *model.Params
	zs []mat.Vector
)

// scalar linear-Gaussian model: f(x) = 0.9x, h(x) = x,
// Q = 0.1, R = 1.0, m0 = 0, S0 = 1.0
func setup() {
	dyn := func(x, _ mat.Vector) mat.Vector {
		out := mat.NewVecDense(1, nil)
		out.ScaleVec(0.9, x)
		return out
	}
	obs := func(x, _ mat.Vector) mat.Vector {
		return mat.NewVecDense(1, []float64{x.AtVec(0)})
	}

	q, _ := model.NewCov(mat.NewSymDense(1, []float64{0.1}))
	r, _ := model.NewCov(mat.NewSymDense(1, []float64{1.0}))

	p, _ = model.New(dyn, obs, q, r,
		mat.NewVecDense(1, []float64{0}),
		mat.NewSymDense(1, []float64{1.0}))

	zs = []mat.Vector{
		mat.NewVecDense(1, []float64{0.5}),
		mat.NewVecDense(1, []float64{-0.2}),
		mat.NewVecDense(1, []float64{0.8}),
	}
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

// closed-form scalar Kalman filter for the setup model
func scalarKF(zs []mat.Vector) (fm, fc, pm, pc, stepLL []float64) {
	a, q, r := 0.9, 0.1, 1.0
	m, pp := 0.0, 1.0

	for _, zv := range zs {
		z := zv.AtVec(0)

		s := pp + r
		stepLL = append(stepLL, -0.5*(math.Log(2*math.Pi*s)+(z-m)*(z-m)/s))

		k := pp / s
		fMean := m + k*(z-m)
		fCov := (1-k)*(1-k)*pp + k*k*r
		fm = append(fm, fMean)
		fc = append(fc, fCov)

		m = a * fMean
		pp = a*a*fCov + q
		pm = append(pm, m)
		pc = append(pc, pp)
	}

	return fm, fc, pm, pc, stepLL
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	k, err := New(p)
	assert.NotNil(k)
	assert.NoError(err)
	assert.Equal(p, k.Model())

	// nil model parameters
	k, err = New(nil)
	assert.Nil(k)
	assert.Error(err)

	// invalid relinearization count
	k, err = New(p, WithIter(0))
	assert.Nil(k)
	assert.Error(err)

	// negative jitter
	k, err = New(p, WithJitter(-0.1))
	assert.Nil(k)
	assert.Error(err)
}

func TestFilterLinearScenario(t *testing.T) {
	assert := assert.New(t)

	// no jitter: the EKF must reduce exactly to the linear Kalman filter
	k, err := New(p, WithJitter(0), WithFields(FilteredStates|PredictedStates|StepLogLiks))
	assert.NotNil(k)
	assert.NoError(err)

	out, err := k.Filter(zs, nil)
	assert.NotNil(out)
	assert.NoError(err)

	fm, fc, pm, pc, stepLL := scalarKF(zs)

	for t2 := range zs {
		assert.InDelta(fm[t2], out.Filtered[t2].Mean().AtVec(0), 1e-9)
		assert.InDelta(fc[t2], out.Filtered[t2].Cov().At(0, 0), 1e-9)
		assert.InDelta(pm[t2], out.Predicted[t2].Mean().AtVec(0), 1e-9)
		assert.InDelta(pc[t2], out.Predicted[t2].Cov().At(0, 0), 1e-9)
		assert.InDelta(stepLL[t2], out.StepLogLiks[t2], 1e-9)
	}

	// hand-computed first update: S = 2, K = 0.5
	assert.InDelta(0.25, out.Filtered[0].Mean().AtVec(0), 1e-6)
	assert.InDelta(0.5, out.Filtered[0].Cov().At(0, 0), 1e-6)

	// likelihood additivity: the retained step values sum to the total
	sum := 0.0
	for _, v := range out.StepLogLiks {
		sum += v
	}
	assert.InDelta(out.LogLik, sum, 1e-12)
}

func TestFilterIterIdempotentLinear(t *testing.T) {
	assert := assert.New(t)

	k1, err := New(p)
	assert.NoError(err)
	out1, err := k1.Filter(zs, nil)
	assert.NoError(err)

	// constant Jacobians: more relinearization rounds change nothing
	k5, err := New(p, WithIter(5))
	assert.NoError(err)
	out5, err := k5.Filter(zs, nil)
	assert.NoError(err)

	assert.InDelta(out1.LogLik, out5.LogLik, 1e-12)
	for t2 := range zs {
		assert.True(mat.EqualApprox(out1.Filtered[t2].Mean(), out5.Filtered[t2].Mean(), 1e-12))
		assert.True(mat.EqualApprox(out1.Filtered[t2].Cov(), out5.Filtered[t2].Cov(), 1e-12))
	}
}

func TestFilterNonlinearInvariants(t *testing.T) {
	assert := assert.New(t)

	// nonlinear emission with finite-difference Jacobians
	dyn := func(x, _ mat.Vector) mat.Vector {
		return mat.NewVecDense(2, []float64{
			x.AtVec(0) + 0.1*x.AtVec(1),
			0.95 * x.AtVec(1),
		})
	}
	obs := func(x, _ mat.Vector) mat.Vector {
		return mat.NewVecDense(1, []float64{math.Sin(x.AtVec(0))})
	}

	q, _ := model.NewCov(mat.NewSymDense(2, []float64{0.01, 0, 0, 0.01}))
	r, _ := model.NewCov(mat.NewSymDense(1, []float64{0.5}))

	np, err := model.New(dyn, obs, q, r,
		mat.NewVecDense(2, []float64{0.5, 0}),
		mat.NewSymDense(2, []float64{0.1, 0, 0, 0.1}))
	assert.NoError(err)

	k, err := New(np, WithIter(3))
	assert.NoError(err)

	nzs := []mat.Vector{
		mat.NewVecDense(1, []float64{0.4}),
		mat.NewVecDense(1, []float64{0.6}),
		mat.NewVecDense(1, []float64{0.3}),
		mat.NewVecDense(1, []float64{0.5}),
	}

	out, err := k.Filter(nzs, nil)
	assert.NotNil(out)
	assert.NoError(err)

	// every produced covariance is symmetric positive semi-definite
	check := func(cov mat.Symmetric) {
		var eig mat.EigenSym
		ok := eig.Factorize(cov, false)
		assert.True(ok)
		for _, v := range eig.Values(nil) {
			assert.True(v > -1e-12)
		}
	}
	for t2 := range nzs {
		check(out.Filtered[t2].Cov())
		check(out.Predicted[t2].Cov())
	}
}

func TestFilterFieldRetention(t *testing.T) {
	assert := assert.New(t)

	k, err := New(p, WithFields(FilteredStates))
	assert.NoError(err)

	out, err := k.Filter(zs, nil)
	assert.NotNil(out)
	assert.NoError(err)

	assert.NotNil(out.Filtered)
	assert.Nil(out.Predicted)
	assert.Nil(out.StepLogLiks)

	// the log-likelihood is always computed
	full, err := New(p)
	assert.NoError(err)
	outFull, err := full.Filter(zs, nil)
	assert.NoError(err)
	assert.InDelta(outFull.LogLik, out.LogLik, 1e-12)
}

func TestFilterErrors(t *testing.T) {
	assert := assert.New(t)

	k, err := New(p)
	assert.NoError(err)

	// empty observation sequence
	out, err := k.Filter(nil, nil)
	assert.Nil(out)
	assert.Error(err)

	// input sequence length mismatch
	out, err = k.Filter(zs, []mat.Vector{mat.NewVecDense(1, nil)})
	assert.Nil(out)
	assert.Error(err)

	// observation dimension mismatch
	out, err = k.Filter([]mat.Vector{mat.NewVecDense(2, nil)}, nil)
	assert.Nil(out)
	assert.Error(err)
}

func TestFilterTimeVaryingCov(t *testing.T) {
	assert := assert.New(t)

	dyn := p.Dynamics()
	obs := p.Emission()

	q, _ := model.NewCov(mat.NewSymDense(1, []float64{0.1}))

	// per-timestep emission covariance of the wrong length fails fast
	r2, err := model.NewTimeVaryingCov([]mat.Symmetric{
		mat.NewSymDense(1, []float64{1.0}),
		mat.NewSymDense(1, []float64{2.0}),
	})
	assert.NoError(err)

	p2, err := model.New(dyn, obs, q, r2,
		mat.NewVecDense(1, []float64{0}),
		mat.NewSymDense(1, []float64{1.0}))
	assert.NoError(err)

	k, err := New(p2)
	assert.NoError(err)

	out, err := k.Filter(zs, nil)
	assert.Nil(out)
	assert.Error(err)

	// matching length runs fine
	out, err = k.Filter(zs[:2], nil)
	assert.NotNil(out)
	assert.NoError(err)
}
