// Package solver finds entity parameters that satisfy a sketch's
// constraints using damped least squares (Levenberg–Marquardt), and
// classifies the result by the rank of the constraint Jacobian.
package solver

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/chazu/tenon/pkg/caderr"
	"github.com/chazu/tenon/pkg/sketch"
)

// Status is the outcome of a solve.
type Status int

const (
	StatusSolved Status = iota
	StatusUnderconstrained
	StatusRedundant
	StatusConflicting
	StatusCancelled
	// StatusInvalid means the sketch could not be solved at all: an entity
	// is out of range or a constraint cannot be compiled.
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusSolved:
		return "solved"
	case StatusUnderconstrained:
		return "underconstrained"
	case StatusRedundant:
		return "redundant"
	case StatusConflicting:
		return "conflicting"
	case StatusCancelled:
		return "cancelled"
	case StatusInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Options tunes the solver. The zero value is replaced field by field with
// DefaultOptions.
type Options struct {
	// Tolerance is the largest absolute residual accepted as satisfied.
	Tolerance float64
	// MaxIterations bounds the outer Levenberg–Marquardt loop.
	MaxIterations int
	// Timeout, when positive, bounds wall-clock time. Expiry reports
	// StatusCancelled.
	Timeout time.Duration
	// OnIteration is called at the end of every iteration with the
	// iteration number (from 1) and the current max residual.
	OnIteration func(iter int, maxResidual float64)
}

const (
	DefaultTolerance     = 1e-7
	DefaultMaxIterations = 200

	// rankTolerance is the relative norm below which a Jacobian row is
	// treated as a combination of earlier rows.
	rankTolerance = 1e-6

	lambdaInit = 1e-3
	lambdaMin  = 1e-9
	lambdaMax  = 1e12
)

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{Tolerance: DefaultTolerance, MaxIterations: DefaultMaxIterations}
}

func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	return o
}

// Result reports what the solver did.
type Result struct {
	Status      Status
	Iterations  int
	MaxResidual float64
	// DOF is the rank-based count of free parameters remaining:
	// parameter count minus the rank of the constraint Jacobian.
	DOF int
	// Redundant lists constraints whose equations are linear combinations
	// of earlier constraints' equations at the solution.
	Redundant []sketch.ConstraintID
	// Conflicting lists the constraints implicated in a failed solve.
	Conflicting []sketch.ConstraintID
}

// Underconstrained reports whether free parameters remain.
func (r Result) Underconstrained() bool { return r.DOF > 0 }

// Solver is reusable and safe for sequential use. Each Solve call works on
// its own copy of the parameter vector.
type Solver struct {
	opts   Options
	logger *zap.Logger
}

// New creates a solver. A nil logger is replaced with a no-op.
func New(opts Options, logger *zap.Logger) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{opts: opts.withDefaults(), logger: logger}
}

// Solve adjusts the sketch's parameters until every constraint residual is
// within tolerance. Parameters are written back only when the status is
// Solved, Underconstrained, or Redundant. On Conflicting the returned error
// has kind ConstraintConflict and names the implicated constraints; on
// Cancelled it has kind Cancelled. In both cases the sketch is untouched.
func (s *Solver) Solve(ctx context.Context, sk *sketch.Sketch) (Result, error) {
	const op = "solver.Solve"

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	if err := sk.Validate(); err != nil {
		return Result{Status: StatusInvalid}, err
	}

	l := newLayout(sk)
	eqs, err := compile(sk, l)
	if err != nil {
		return Result{Status: StatusInvalid}, caderr.Wrap(caderr.KindUnsupportedConstraint, op, err)
	}
	p := newProblem(eqs, sk.ParamCount())

	x := sk.Parameters()
	res, iters, cancelErr := s.iterate(ctx, p, x)
	result := Result{Iterations: iters, MaxResidual: maxAbs(res)}

	if cancelErr != nil {
		result.Status = StatusCancelled
		s.logger.Info("solve cancelled",
			zap.String("sketch", sk.Name),
			zap.Int("iterations", iters),
			zap.Error(cancelErr))
		return result, caderr.Wrap(caderr.KindCancelled, op, cancelErr)
	}

	rank, dependent := p.rank(x)
	result.DOF = p.nparams - rank
	result.Redundant = dependent

	converged := result.MaxResidual <= s.opts.Tolerance
	var degenerate []sketch.EntityID
	if converged {
		trial := sk.Clone()
		if err := trial.SetParameters(x); err != nil {
			return result, err
		}
		degenerate = trial.InvalidEntities()
	}

	if !converged || len(degenerate) > 0 {
		result.Status = StatusConflicting
		result.Conflicting = implicated(sk, p, res, s.opts.Tolerance, dependent, degenerate)
		refs := make([]string, len(result.Conflicting))
		for i, id := range result.Conflicting {
			refs[i] = string(id)
		}
		msg := fmt.Sprintf("residual %.3g after %d iterations", result.MaxResidual, iters)
		if len(degenerate) > 0 {
			msg = fmt.Sprintf("solution collapses entity %s", degenerate[0])
		}
		s.logger.Info("solve failed",
			zap.String("sketch", sk.Name),
			zap.Strings("conflicting", refs),
			zap.Float64("max_residual", result.MaxResidual))
		return result, caderr.New(caderr.KindConstraintConflict, op, "%s", msg).WithRefs(refs...)
	}

	switch {
	case len(dependent) > 0:
		result.Status = StatusRedundant
	case result.DOF > 0:
		result.Status = StatusUnderconstrained
	default:
		result.Status = StatusSolved
	}
	if err := sk.SetParameters(x); err != nil {
		return result, err
	}
	s.logger.Debug("solve finished",
		zap.String("sketch", sk.Name),
		zap.Stringer("status", result.Status),
		zap.Int("iterations", iters),
		zap.Int("dof", result.DOF),
		zap.Float64("max_residual", result.MaxResidual))
	return result, nil
}

// Solve is shorthand for New(opts, logger).Solve(ctx, sk).
func Solve(ctx context.Context, sk *sketch.Sketch, opts Options, logger *zap.Logger) (Result, error) {
	return New(opts, logger).Solve(ctx, sk)
}

// iterate runs Levenberg–Marquardt in place on x and returns the final
// residual vector. The context is checked at every iteration boundary.
func (s *Solver) iterate(ctx context.Context, p *problem, x []float64) ([]float64, int, error) {
	res := p.residuals(x)
	cost := sumSquares(res)
	lambda := lambdaInit
	n := p.nparams

	for iter := 0; ; iter++ {
		if err := ctx.Err(); err != nil {
			return res, iter, err
		}
		if maxAbs(res) <= s.opts.Tolerance || iter >= s.opts.MaxIterations || n == 0 {
			return res, iter, nil
		}

		jac := p.jacobian(x)
		a, g := normalEquations(jac, res, p.m, n)

		improved := false
		for !improved {
			m := make([]float64, len(a))
			copy(m, a)
			for i := 0; i < n; i++ {
				m[i*n+i] += lambda
			}
			rhs := make([]float64, n)
			for i := range g {
				rhs[i] = -g[i]
			}
			delta, ok := solveSPD(m, rhs, n)
			if ok {
				trial := make([]float64, n)
				for i := range x {
					trial[i] = x[i] + delta[i]
				}
				tres := p.residuals(trial)
				if tc := sumSquares(tres); tc < cost {
					copy(x, trial)
					res, cost = tres, tc
					lambda = math.Max(lambda/10, lambdaMin)
					improved = true
					continue
				}
			}
			lambda *= 10
			if lambda > lambdaMax {
				break
			}
		}

		if s.opts.OnIteration != nil {
			s.opts.OnIteration(iter+1, maxAbs(res))
		}
		s.logger.Debug("solver iteration",
			zap.Int("iteration", iter+1),
			zap.Float64("max_residual", maxAbs(res)),
			zap.Float64("lambda", lambda))

		if !improved {
			// Stalled at a least-squares minimum that is not a solution.
			if err := ctx.Err(); err != nil {
				return res, iter + 1, err
			}
			return res, iter + 1, nil
		}
	}
}

// implicated names the constraints behind a failed solve: those still
// violated, those whose equations are dependent, those on entities the
// solution collapsed, and both halves of every contradictory pair. Order
// follows the sketch's constraint order.
func implicated(sk *sketch.Sketch, p *problem, res []float64, tol float64, dependent []sketch.ConstraintID, degenerate []sketch.EntityID) []sketch.ConstraintID {
	mark := make(map[sketch.ConstraintID]bool)
	row := 0
	for _, eq := range p.eqs {
		for k := 0; k < eq.n; k++ {
			if math.Abs(res[row+k]) > tol {
				mark[eq.id] = true
			}
		}
		row += eq.n
	}
	for _, id := range dependent {
		mark[id] = true
	}
	for _, e := range degenerate {
		for _, id := range sk.ConstraintsOn(e) {
			mark[id] = true
		}
	}
	for _, id := range contradictions(sk) {
		mark[id] = true
	}
	var out []sketch.ConstraintID
	for _, eq := range p.eqs {
		if mark[eq.id] {
			out = append(out, eq.id)
			delete(mark, eq.id)
		}
	}
	return out
}

// contradictions returns constraints that cannot hold together on a
// non-degenerate sketch whatever else constrains it: Horizontal with
// Vertical on one line, Parallel with Perpendicular on one pair of lines.
// A least-squares minimum can satisfy one half of such a pair exactly, so
// residuals alone do not name it.
func contradictions(sk *sketch.Sketch) []sketch.ConstraintID {
	type pair struct{ a, b sketch.EntityID }
	key := func(a, b sketch.EntityID) pair {
		if b < a {
			a, b = b, a
		}
		return pair{a, b}
	}
	horizontal := map[sketch.EntityID][]sketch.ConstraintID{}
	vertical := map[sketch.EntityID][]sketch.ConstraintID{}
	parallel := map[pair][]sketch.ConstraintID{}
	perpendicular := map[pair][]sketch.ConstraintID{}
	for _, r := range sk.Constraints() {
		switch c := r.Constraint.(type) {
		case sketch.Horizontal:
			horizontal[c.Line] = append(horizontal[c.Line], r.ID)
		case sketch.Vertical:
			vertical[c.Line] = append(vertical[c.Line], r.ID)
		case sketch.Parallel:
			k := key(c.A, c.B)
			parallel[k] = append(parallel[k], r.ID)
		case sketch.Perpendicular:
			k := key(c.A, c.B)
			perpendicular[k] = append(perpendicular[k], r.ID)
		}
	}
	var out []sketch.ConstraintID
	for line, hs := range horizontal {
		if vs := vertical[line]; len(vs) > 0 {
			out = append(out, hs...)
			out = append(out, vs...)
		}
	}
	for k, ps := range parallel {
		if qs := perpendicular[k]; len(qs) > 0 {
			out = append(out, ps...)
			out = append(out, qs...)
		}
	}
	return out
}
