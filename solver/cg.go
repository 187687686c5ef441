// Package solver solves the sparse symmetric positive definite systems built
// by the gap filler and the Poisson blender.
package solver

import (
	"context"
	"errors"
	"math"
	"time"
)

// Operator computes out = A x for a symmetric positive definite A.
type Operator interface {
	Apply(x, out []float64)
	Len() int
}

type Status int

const (
	Converged Status = iota
	IterationCap
	DeadlineExceeded
	Diverged
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case IterationCap:
		return "iteration cap"
	case DeadlineExceeded:
		return "deadline exceeded"
	case Diverged:
		return "diverged"
	}
	return "unknown"
}

type Options struct {
	Tolerance     float64
	MaxIterations int
	// Deadline bounds the wall clock time of one solve when non zero.
	Deadline time.Duration
	// Diagonal of A for Jacobi preconditioning, optional.
	Diagonal []float64
}

type Stats struct {
	Status     Status
	Iterations int
	Residual   float64
}

var ErrDimension = errors.New("solver: operator, right hand side and initial guess lengths differ")

const deadlineCheckInterval = 16

// ConjugateGradient solves A x = b in place, starting from the content of x.
// Convergence is declared when ||b - A x|| <= tol * ||b||. Running out of
// the Deadline is a DeadlineExceeded status; cancellation of ctx itself is
// returned as its error.
func ConjugateGradient(ctx context.Context, a Operator, b, x []float64, opts Options) (Stats, error) {
	n := a.Len()
	if len(b) != n || len(x) != n || (opts.Diagonal != nil && len(opts.Diagonal) != n) {
		return Stats{}, ErrDimension
	}
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	parent := ctx
	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	bNorm := norm(b)
	if bNorm == 0 {
		for i := range x {
			x[i] = 0
		}
		return Stats{Status: Converged}, nil
	}
	target := opts.Tolerance * bNorm

	r := make([]float64, n)
	a.Apply(x, r)
	for i := range r {
		r[i] = b[i] - r[i]
	}
	res := norm(r)
	if res <= target {
		return Stats{Status: Converged, Residual: res / bNorm}, nil
	}

	z := make([]float64, n)
	precondition(opts.Diagonal, r, z)
	p := make([]float64, n)
	copy(p, z)
	ap := make([]float64, n)
	rz := dot(r, z)

	for it := 1; it <= opts.MaxIterations; it++ {
		if it%deadlineCheckInterval == 0 && ctx.Err() != nil {
			stats := Stats{Status: DeadlineExceeded, Iterations: it - 1, Residual: res / bNorm}
			if err := parent.Err(); err != nil {
				return stats, err
			}
			return stats, nil
		}

		a.Apply(p, ap)
		pAp := dot(p, ap)
		if pAp <= 0 || math.IsNaN(pAp) {
			return Stats{Status: Diverged, Iterations: it, Residual: res / bNorm}, nil
		}
		alpha := rz / pAp
		for i := range x {
			x[i] += alpha * p[i]
			r[i] -= alpha * ap[i]
		}

		res = norm(r)
		if math.IsNaN(res) || math.IsInf(res, 0) {
			return Stats{Status: Diverged, Iterations: it, Residual: res}, nil
		}
		if res <= target {
			return Stats{Status: Converged, Iterations: it, Residual: res / bNorm}, nil
		}

		precondition(opts.Diagonal, r, z)
		rzNext := dot(r, z)
		beta := rzNext / rz
		rz = rzNext
		for i := range p {
			p[i] = z[i] + beta*p[i]
		}
	}
	return Stats{Status: IterationCap, Iterations: opts.MaxIterations, Residual: res / bNorm}, nil
}

func precondition(diag, r, z []float64) {
	if diag == nil {
		copy(z, r)
		return
	}
	for i := range r {
		if diag[i] != 0 {
			z[i] = r[i] / diag[i]
		} else {
			z[i] = r[i]
		}
	}
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm(a []float64) float64 {
	return math.Sqrt(dot(a, a))
}
