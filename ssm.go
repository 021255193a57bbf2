// Package ssm provides sequential Bayesian inference for nonlinear,
// discrete-time Gaussian state-space models: extended Kalman filtering
// (optionally iterated), extended Rauch-Tung-Striebel smoothing and
// forward-filter backward-sampling of exact posterior trajectories.
package ssm

import "gonum.org/v1/gonum/mat"

// Function is a differentiable vector valued function of the system state
// and control input. When the model has no control input, u is nil and must
// be ignored. A Function must not modify or retain x and u.
type Function func(x, u mat.Vector) mat.Vector

// Jacobian evaluates the Jacobian matrix of a Function at (x, u).
// The returned matrix has one row per output of the function and one
// column per state dimension.
type Jacobian func(x, u mat.Vector) mat.Matrix
