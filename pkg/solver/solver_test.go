package solver

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/tenon/pkg/caderr"
	"github.com/chazu/tenon/pkg/geom"
	"github.com/chazu/tenon/pkg/sketch"
)

const eps = 1e-6

func constrain(t *testing.T, s *sketch.Sketch, c sketch.Constraint) sketch.ConstraintID {
	t.Helper()
	id, err := s.AddConstraint(c)
	require.NoError(t, err)
	return id
}

// rectangleSketch is a 3x2 rectangle at (1,1) with its bottom and right
// sides sized and its origin pinned: fully constrained.
func rectangleSketch(t *testing.T) *sketch.Sketch {
	t.Helper()
	s := sketch.New("plate")
	ids, err := s.AddRectangle(sketch.Rectangle{ID: "r", Origin: geom.Pt(1, 1), Width: 3, Height: 2})
	require.NoError(t, err)
	constrain(t, s, sketch.Distance{Line: ids[0], Value: 10})
	constrain(t, s, sketch.Distance{Line: ids[1], Value: 5})
	constrain(t, s, sketch.Fixed{Point: sketch.At(ids[0], sketch.RoleStart), At: geom.Pt(0, 0)})
	return s
}

func TestSolveFullyConstrainedRectangle(t *testing.T) {
	s := rectangleSketch(t)
	require.Equal(t, 0, s.DegreesOfFreedom())

	res, err := Solve(context.Background(), s, DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSolved, res.Status)
	assert.Equal(t, 0, res.DOF)
	assert.Empty(t, res.Redundant)
	assert.LessOrEqual(t, res.MaxResidual, DefaultTolerance)

	top, err := s.Point(sketch.At(sketch.SideID("r", "top"), sketch.RoleStart))
	require.NoError(t, err)
	assert.InDelta(t, 10, top.X, eps)
	assert.InDelta(t, 5, top.Y, eps)

	end, err := s.Point(sketch.At(sketch.SideID("r", "top"), sketch.RoleEnd))
	require.NoError(t, err)
	assert.InDelta(t, 0, end.X, eps)
	assert.InDelta(t, 5, end.Y, eps)
}

func TestSolveIsDeterministic(t *testing.T) {
	a := rectangleSketch(t)
	b := a.Clone()

	_, err := Solve(context.Background(), a, DefaultOptions(), nil)
	require.NoError(t, err)
	_, err = Solve(context.Background(), b, DefaultOptions(), nil)
	require.NoError(t, err)

	if diff := cmp.Diff(a.Parameters(), b.Parameters()); diff != "" {
		t.Errorf("solutions differ (-a +b):\n%s", diff)
	}
}

func TestSolveUnderconstrained(t *testing.T) {
	s := sketch.New("")
	_, err := s.AddEntity(&sketch.Line{ID: "l1", From: geom.Pt(0, 0), To: geom.Pt(4, 1)})
	require.NoError(t, err)
	constrain(t, s, sketch.Horizontal{Line: "l1"})

	res, err := Solve(context.Background(), s, DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusUnderconstrained, res.Status)
	assert.Equal(t, 3, res.DOF)
	assert.True(t, res.Underconstrained())

	l, _ := s.Entity("l1")
	line := l.(*sketch.Line)
	assert.InDelta(t, line.From.Y, line.To.Y, eps)
	assert.Greater(t, line.Length(), 1.0)
}

func TestSolveFlagsRedundantConstraint(t *testing.T) {
	s := sketch.New("")
	_, err := s.AddEntity(&sketch.Line{ID: "l1", From: geom.Pt(0, 0), To: geom.Pt(4, 0)})
	require.NoError(t, err)
	constrain(t, s, sketch.Horizontal{Line: "l1"})
	second := constrain(t, s, sketch.Horizontal{Line: "l1"})

	res, err := Solve(context.Background(), s, DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusRedundant, res.Status)
	assert.Equal(t, []sketch.ConstraintID{second}, res.Redundant)
	assert.Equal(t, 3, res.DOF)
}

func TestSolveHorizontalAndVerticalConflict(t *testing.T) {
	s := sketch.New("")
	_, err := s.AddEntity(&sketch.Line{ID: "l1", From: geom.Pt(0, 0), To: geom.Pt(10, 3)})
	require.NoError(t, err)
	h := constrain(t, s, sketch.Horizontal{Line: "l1"})
	v := constrain(t, s, sketch.Vertical{Line: "l1"})
	before := s.Parameters()

	res, err := Solve(context.Background(), s, DefaultOptions(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, caderr.ErrConstraintConflict))
	assert.Equal(t, StatusConflicting, res.Status)
	assert.ElementsMatch(t, []sketch.ConstraintID{h, v}, res.Conflicting)
	assert.ElementsMatch(t, []string{string(h), string(v)}, caderr.RefsOf(err))
	assert.Equal(t, before, s.Parameters(), "parameters must not change on conflict")
}

func TestSolveHorizontalAndVerticalOnSizedLine(t *testing.T) {
	s := sketch.New("")
	_, err := s.AddEntity(&sketch.Line{ID: "l1", From: geom.Pt(0, 0), To: geom.Pt(10, 0)})
	require.NoError(t, err)
	fixed := constrain(t, s, sketch.Fixed{Point: sketch.At("l1", sketch.RoleStart), At: geom.Pt(0, 0)})
	length := constrain(t, s, sketch.Distance{Line: "l1", Value: 10})
	h := constrain(t, s, sketch.Horizontal{Line: "l1"})
	v := constrain(t, s, sketch.Vertical{Line: "l1"})
	before := s.Parameters()

	res, err := Solve(context.Background(), s, DefaultOptions(), nil)
	require.Error(t, err)
	assert.Equal(t, caderr.KindConstraintConflict, caderr.KindOf(err))
	assert.Equal(t, StatusConflicting, res.Status)
	assert.Contains(t, res.Conflicting, h)
	assert.Contains(t, res.Conflicting, v)
	assert.Subset(t, caderr.RefsOf(err), []string{string(h), string(v)})
	assert.Subset(t, []sketch.ConstraintID{fixed, length, h, v}, res.Conflicting)
	assert.Equal(t, before, s.Parameters())
}

func TestSolveVerticalOnRectangleSide(t *testing.T) {
	s := rectangleSketch(t)
	v := constrain(t, s, sketch.Vertical{Line: sketch.SideID("r", "bottom")})

	res, err := Solve(context.Background(), s, DefaultOptions(), nil)
	require.Error(t, err)
	assert.Equal(t, StatusConflicting, res.Status)
	assert.Contains(t, res.Conflicting, sketch.ConstraintID("r/horizontal-bottom"))
	assert.Contains(t, res.Conflicting, v)
}

func TestSolveParallelAndPerpendicular(t *testing.T) {
	s := sketch.New("")
	_, err := s.AddEntity(&sketch.Line{ID: "a", From: geom.Pt(0, 0), To: geom.Pt(10, 0)})
	require.NoError(t, err)
	_, err = s.AddEntity(&sketch.Line{ID: "b", From: geom.Pt(0, 5), To: geom.Pt(10, 6)})
	require.NoError(t, err)
	constrain(t, s, sketch.Fixed{Point: sketch.At("a", sketch.RoleStart), At: geom.Pt(0, 0)})
	constrain(t, s, sketch.Horizontal{Line: "a"})
	constrain(t, s, sketch.Distance{Line: "a", Value: 10})
	constrain(t, s, sketch.Distance{Line: "b", Value: 10})
	par := constrain(t, s, sketch.Parallel{A: "a", B: "b"})
	perp := constrain(t, s, sketch.Perpendicular{A: "b", B: "a"})

	res, err := Solve(context.Background(), s, DefaultOptions(), nil)
	require.Error(t, err)
	assert.Equal(t, StatusConflicting, res.Status)
	assert.Contains(t, res.Conflicting, par)
	assert.Contains(t, res.Conflicting, perp)
}

func TestSolveInvalidSketch(t *testing.T) {
	s := sketch.New("")
	_, err := s.AddEntity(&sketch.Circle{ID: "c", Center: geom.Pt(0, 0), Radius: 1})
	require.NoError(t, err)
	require.NoError(t, s.SetParameters([]float64{0, 0, -1}))

	res, err := Solve(context.Background(), s, DefaultOptions(), nil)
	require.Error(t, err)
	assert.Equal(t, StatusInvalid, res.Status)
	assert.Equal(t, caderr.KindDegenerateGeometry, caderr.KindOf(err))
}

func TestSolveContradictoryDistances(t *testing.T) {
	s := sketch.New("")
	_, err := s.AddEntity(&sketch.Line{ID: "l1", From: geom.Pt(0, 0), To: geom.Pt(6, 0)})
	require.NoError(t, err)
	a := constrain(t, s, sketch.Distance{Line: "l1", Value: 5})
	b := constrain(t, s, sketch.Distance{Line: "l1", Value: 10})
	before := s.Parameters()

	res, err := Solve(context.Background(), s, DefaultOptions(), nil)
	require.Error(t, err)
	assert.Equal(t, caderr.KindConstraintConflict, caderr.KindOf(err))
	assert.Equal(t, StatusConflicting, res.Status)
	assert.ElementsMatch(t, []sketch.ConstraintID{a, b}, res.Conflicting)
	assert.Equal(t, before, s.Parameters())
}

func TestSolveCancelled(t *testing.T) {
	s := rectangleSketch(t)
	before := s.Parameters()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Solve(ctx, s, DefaultOptions(), nil)
	require.Error(t, err)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.True(t, errors.Is(err, caderr.ErrCancelled))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, before, s.Parameters())
}

func TestSolveCancelledMidway(t *testing.T) {
	s := rectangleSketch(t)
	before := s.Parameters()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	opts := DefaultOptions()
	opts.OnIteration = func(iter int, _ float64) {
		if iter == 1 {
			cancel()
		}
	}

	res, err := New(opts, nil).Solve(ctx, s)
	require.Error(t, err)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, before, s.Parameters())
}

func TestSolveTimeout(t *testing.T) {
	s := rectangleSketch(t)
	opts := DefaultOptions()
	opts.Timeout = time.Nanosecond
	opts.OnIteration = func(int, float64) { time.Sleep(time.Millisecond) }

	res, err := New(opts, nil).Solve(context.Background(), s)
	require.Error(t, err)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSolveNonlinearConstraints(t *testing.T) {
	s := sketch.New("")
	_, err := s.AddEntity(&sketch.Line{ID: "a", From: geom.Pt(0, 0), To: geom.Pt(5, 0.5)})
	require.NoError(t, err)
	_, err = s.AddEntity(&sketch.Line{ID: "b", From: geom.Pt(5, 0.5), To: geom.Pt(5.5, 4)})
	require.NoError(t, err)
	_, err = s.AddEntity(&sketch.Circle{ID: "c", Center: geom.Pt(2, 3), Radius: 1})
	require.NoError(t, err)

	constrain(t, s, sketch.Fixed{Point: sketch.At("a", sketch.RoleStart), At: geom.Pt(0, 0)})
	constrain(t, s, sketch.Horizontal{Line: "a"})
	constrain(t, s, sketch.Coincident{A: sketch.At("a", sketch.RoleEnd), B: sketch.At("b", sketch.RoleStart)})
	constrain(t, s, sketch.Perpendicular{A: "a", B: "b"})
	constrain(t, s, sketch.Equal{A: "a", B: "b"})
	constrain(t, s, sketch.Distance{Line: "a", Value: 6})
	constrain(t, s, sketch.Radius{Curve: "c", Value: 1.5})
	constrain(t, s, sketch.Tangent{Line: "a", Curve: "c"})

	res, err := Solve(context.Background(), s, DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusUnderconstrained, res.Status)
	assert.Equal(t, 1, res.DOF, "circle may still slide along line a")

	e, _ := s.Entity("b")
	b := e.(*sketch.Line)
	assert.InDelta(t, 6, b.Length(), eps)
	assert.InDelta(t, 6, b.From.X, eps)
	assert.InDelta(t, 6, b.To.X, eps)

	e, _ = s.Entity("c")
	c := e.(*sketch.Circle)
	assert.InDelta(t, 1.5, c.Radius, eps)
	assert.InDelta(t, 1.5, math.Abs(c.Center.Y), eps)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "solved", StatusSolved.String())
	assert.Equal(t, "cancelled", StatusCancelled.String())
	assert.Equal(t, "invalid", StatusInvalid.String())
	assert.Equal(t, "Status(42)", Status(42).String())
}
