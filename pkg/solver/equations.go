package solver

import (
	"fmt"
	"math"

	"github.com/chazu/tenon/pkg/geom"
	"github.com/chazu/tenon/pkg/sketch"
)

// equation is a compiled constraint: a residual function over the full
// parameter vector plus the parameter indices it depends on.
type equation struct {
	id     sketch.ConstraintID
	n      int
	params []int
	eval   func(x []float64, out []float64)
}

// layout maps entity ids to their kind and parameter offset.
type layout struct {
	kinds   map[sketch.EntityID]sketch.EntityKind
	offsets map[sketch.EntityID]int
	dofs    map[sketch.EntityID]int
}

func newLayout(sk *sketch.Sketch) *layout {
	l := &layout{
		kinds:   make(map[sketch.EntityID]sketch.EntityKind),
		offsets: make(map[sketch.EntityID]int),
		dofs:    make(map[sketch.EntityID]int),
	}
	for _, e := range sk.Entities() {
		id := e.EntityID()
		off, _ := sk.Offset(id)
		l.kinds[id] = e.Kind()
		l.offsets[id] = off
		l.dofs[id] = e.DOF()
	}
	return l
}

func (l *layout) point(r sketch.PointRef) func(x []float64) geom.Point2D {
	kind := l.kinds[r.Entity]
	off := l.offsets[r.Entity]
	role := r.Role
	if role == "" {
		role = sketch.RolePoint
	}
	return func(x []float64) geom.Point2D {
		p, _ := sketch.PointAt(kind, role, x[off:])
		return p
	}
}

// dir returns the direction vector To-From of a line.
func (l *layout) dir(id sketch.EntityID) func(x []float64) geom.Point2D {
	off := l.offsets[id]
	return func(x []float64) geom.Point2D {
		return geom.Pt(x[off+2]-x[off], x[off+3]-x[off+1])
	}
}

func (l *layout) from(id sketch.EntityID) func(x []float64) geom.Point2D {
	off := l.offsets[id]
	return func(x []float64) geom.Point2D { return geom.Pt(x[off], x[off+1]) }
}

func (l *layout) radius(id sketch.EntityID) func(x []float64) float64 {
	off := l.offsets[id]
	return func(x []float64) float64 { return x[off+2] }
}

func (l *layout) center(id sketch.EntityID) func(x []float64) geom.Point2D {
	off := l.offsets[id]
	return func(x []float64) geom.Point2D { return geom.Pt(x[off], x[off+1]) }
}

func (l *layout) paramsOf(ids ...sketch.EntityID) []int {
	seen := make(map[int]bool)
	var out []int
	for _, id := range ids {
		off := l.offsets[id]
		for k := 0; k < l.dofs[id]; k++ {
			if !seen[off+k] {
				seen[off+k] = true
				out = append(out, off+k)
			}
		}
	}
	return out
}

// normalizedCross returns sin of the angle between a and b, falling back to
// the raw cross product when either is too short to normalize.
func normalizedCross(a, b geom.Point2D) float64 {
	den := a.Len() * b.Len()
	if den < sketch.Epsilon {
		return a.Cross(b)
	}
	return a.Cross(b) / den
}

func normalizedDot(a, b geom.Point2D) float64 {
	den := a.Len() * b.Len()
	if den < sketch.Epsilon {
		return a.Dot(b)
	}
	return a.Dot(b) / den
}

// compile turns every constraint record into an equation.
func compile(sk *sketch.Sketch, l *layout) ([]equation, error) {
	recs := sk.Constraints()
	eqs := make([]equation, 0, len(recs))
	for _, rec := range recs {
		eq := equation{
			id:     rec.ID,
			n:      rec.Constraint.Equations(),
			params: l.paramsOf(rec.Constraint.Entities()...),
		}
		switch c := rec.Constraint.(type) {
		case sketch.Coincident:
			a, b := l.point(c.A), l.point(c.B)
			eq.eval = func(x, out []float64) {
				pa, pb := a(x), b(x)
				out[0] = pa.X - pb.X
				out[1] = pa.Y - pb.Y
			}
		case sketch.Horizontal:
			d := l.dir(c.Line)
			eq.eval = func(x, out []float64) { out[0] = d(x).Y }
		case sketch.Vertical:
			d := l.dir(c.Line)
			eq.eval = func(x, out []float64) { out[0] = d(x).X }
		case sketch.Parallel:
			a, b := l.dir(c.A), l.dir(c.B)
			eq.eval = func(x, out []float64) { out[0] = normalizedCross(a(x), b(x)) }
		case sketch.Perpendicular:
			a, b := l.dir(c.A), l.dir(c.B)
			eq.eval = func(x, out []float64) { out[0] = normalizedDot(a(x), b(x)) }
		case sketch.Distance:
			v := c.Value
			if c.Line != "" {
				d := l.dir(c.Line)
				eq.eval = func(x, out []float64) { out[0] = d(x).Len() - v }
			} else {
				a, b := l.point(c.A), l.point(c.B)
				eq.eval = func(x, out []float64) { out[0] = a(x).Dist(b(x)) - v }
			}
		case sketch.Radius:
			r := l.radius(c.Curve)
			v := c.Value
			eq.eval = func(x, out []float64) { out[0] = r(x) - v }
		case sketch.Fixed:
			p := l.point(c.Point)
			at := c.At
			eq.eval = func(x, out []float64) {
				q := p(x)
				out[0] = q.X - at.X
				out[1] = q.Y - at.Y
			}
		case sketch.Equal:
			if l.kinds[c.A] == sketch.KindLine {
				a, b := l.dir(c.A), l.dir(c.B)
				eq.eval = func(x, out []float64) { out[0] = a(x).Len() - b(x).Len() }
			} else {
				a, b := l.radius(c.A), l.radius(c.B)
				eq.eval = func(x, out []float64) { out[0] = a(x) - b(x) }
			}
		case sketch.Tangent:
			d, p0 := l.dir(c.Line), l.from(c.Line)
			ctr, r := l.center(c.Curve), l.radius(c.Curve)
			eq.eval = func(x, out []float64) {
				dv := d(x)
				dist := math.Abs(dv.Cross(ctr(x).Sub(p0(x))))
				if n := dv.Len(); n > sketch.Epsilon {
					dist /= n
				}
				out[0] = dist - r(x)
			}
		default:
			return nil, fmt.Errorf("solver: no equation for constraint %T", c)
		}
		eqs = append(eqs, eq)
	}
	return eqs, nil
}
