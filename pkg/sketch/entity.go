package sketch

import (
	"math"

	"github.com/chazu/tenon/pkg/caderr"
	"github.com/chazu/tenon/pkg/geom"
)

// EntityID is the stable identifier of a sketch entity.
type EntityID string

// EntityKind distinguishes the entity variants.
type EntityKind int

const (
	KindPoint EntityKind = iota
	KindLine
	KindCircle
	KindArc
)

func (k EntityKind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindLine:
		return "line"
	case KindCircle:
		return "circle"
	case KindArc:
		return "arc"
	default:
		return "unknown"
	}
}

// Entity is a sketch primitive. The set of implementations is closed:
// *Point, *Line, *Circle and *Arc.
type Entity interface {
	EntityID() EntityID
	Kind() EntityKind
	// DOF is the number of free parameters the entity contributes.
	DOF() int
	// Params returns the parameter values in canonical order.
	Params() []float64
	IsConstruction() bool

	setID(EntityID)
	setParams([]float64)
	clone() Entity
	validate() error
}

// ---------------------------------------------------------------------------
// Point
// ---------------------------------------------------------------------------

// Point is a free point. Params: x, y.
type Point struct {
	ID           EntityID
	At           geom.Point2D
	Construction bool
}

func (p *Point) EntityID() EntityID    { return p.ID }
func (p *Point) Kind() EntityKind      { return KindPoint }
func (p *Point) DOF() int              { return 2 }
func (p *Point) Params() []float64     { return []float64{p.At.X, p.At.Y} }
func (p *Point) IsConstruction() bool  { return p.Construction }
func (p *Point) setID(id EntityID)     { p.ID = id }
func (p *Point) setParams(v []float64) { p.At = geom.Pt(v[0], v[1]) }
func (p *Point) clone() Entity         { c := *p; return &c }

func (p *Point) validate() error {
	if !geom.Finite(p.At.X, p.At.Y) {
		return caderr.New(caderr.KindInvalidParameter, "", "point %q has non-finite coordinates", p.ID)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Line
// ---------------------------------------------------------------------------

// Line is a segment from From to To. Params: x1, y1, x2, y2.
type Line struct {
	ID           EntityID
	From, To     geom.Point2D
	Construction bool
}

func (l *Line) EntityID() EntityID   { return l.ID }
func (l *Line) Kind() EntityKind     { return KindLine }
func (l *Line) DOF() int             { return 4 }
func (l *Line) Params() []float64    { return []float64{l.From.X, l.From.Y, l.To.X, l.To.Y} }
func (l *Line) IsConstruction() bool { return l.Construction }
func (l *Line) setID(id EntityID)    { l.ID = id }
func (l *Line) clone() Entity        { c := *l; return &c }

func (l *Line) setParams(v []float64) {
	l.From = geom.Pt(v[0], v[1])
	l.To = geom.Pt(v[2], v[3])
}

// Length returns the segment length.
func (l *Line) Length() float64 {
	return l.From.Dist(l.To)
}

func (l *Line) validate() error {
	if !geom.Finite(l.Params()...) {
		return caderr.New(caderr.KindInvalidParameter, "", "line %q has non-finite endpoints", l.ID)
	}
	if l.Length() <= Epsilon {
		return caderr.New(caderr.KindDegenerateGeometry, "", "line %q has coincident endpoints", l.ID).WithRefs(string(l.ID))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Circle
// ---------------------------------------------------------------------------

// Circle is a full circle. Params: cx, cy, r.
type Circle struct {
	ID           EntityID
	Center       geom.Point2D
	Radius       float64
	Construction bool
}

func (c *Circle) EntityID() EntityID   { return c.ID }
func (c *Circle) Kind() EntityKind     { return KindCircle }
func (c *Circle) DOF() int             { return 3 }
func (c *Circle) Params() []float64    { return []float64{c.Center.X, c.Center.Y, c.Radius} }
func (c *Circle) IsConstruction() bool { return c.Construction }
func (c *Circle) setID(id EntityID)    { c.ID = id }
func (c *Circle) clone() Entity        { cc := *c; return &cc }

func (c *Circle) setParams(v []float64) {
	c.Center = geom.Pt(v[0], v[1])
	c.Radius = v[2]
}

func (c *Circle) validate() error {
	if !geom.Finite(c.Params()...) {
		return caderr.New(caderr.KindInvalidParameter, "", "circle %q has non-finite parameters", c.ID)
	}
	if c.Radius <= Epsilon {
		return caderr.New(caderr.KindDegenerateGeometry, "", "circle %q has radius %g, must be positive", c.ID, c.Radius).WithRefs(string(c.ID))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Arc
// ---------------------------------------------------------------------------

// Arc is a circular arc swept from StartAngle to EndAngle (radians). The
// sign of EndAngle-StartAngle is the sweep direction: positive is
// counter-clockwise. Params: cx, cy, r, a0, a1.
type Arc struct {
	ID                   EntityID
	Center               geom.Point2D
	Radius               float64
	StartAngle, EndAngle float64
	Construction         bool
}

func (a *Arc) EntityID() EntityID   { return a.ID }
func (a *Arc) Kind() EntityKind     { return KindArc }
func (a *Arc) DOF() int             { return 5 }
func (a *Arc) IsConstruction() bool { return a.Construction }
func (a *Arc) setID(id EntityID)    { a.ID = id }
func (a *Arc) clone() Entity        { c := *a; return &c }

func (a *Arc) Params() []float64 {
	return []float64{a.Center.X, a.Center.Y, a.Radius, a.StartAngle, a.EndAngle}
}

func (a *Arc) setParams(v []float64) {
	a.Center = geom.Pt(v[0], v[1])
	a.Radius = v[2]
	a.StartAngle = v[3]
	a.EndAngle = v[4]
}

// Sweep is the signed swept angle.
func (a *Arc) Sweep() float64 { return a.EndAngle - a.StartAngle }

// StartPoint is the point at StartAngle.
func (a *Arc) StartPoint() geom.Point2D { return geom.Polar(a.Center, a.Radius, a.StartAngle) }

// EndPoint is the point at EndAngle.
func (a *Arc) EndPoint() geom.Point2D { return geom.Polar(a.Center, a.Radius, a.EndAngle) }

func (a *Arc) validate() error {
	if !geom.Finite(a.Params()...) {
		return caderr.New(caderr.KindInvalidParameter, "", "arc %q has non-finite parameters", a.ID)
	}
	if a.Radius <= Epsilon {
		return caderr.New(caderr.KindDegenerateGeometry, "", "arc %q has radius %g, must be positive", a.ID, a.Radius).WithRefs(string(a.ID))
	}
	sweep := math.Abs(a.Sweep())
	if sweep <= Epsilon {
		return caderr.New(caderr.KindDegenerateGeometry, "", "arc %q has zero sweep", a.ID).WithRefs(string(a.ID))
	}
	if sweep > 2*math.Pi+Epsilon {
		return caderr.New(caderr.KindInvalidParameter, "", "arc %q sweeps %g rad, more than a full turn", a.ID, sweep)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Rectangle
// ---------------------------------------------------------------------------

// Rectangle is a macro entity. AddRectangle expands it into four lines
// (bottom, right, top, left, counter-clockwise from Origin) plus the
// implicit constraints that keep them a rectangle.
type Rectangle struct {
	ID            EntityID
	Origin        geom.Point2D
	Width, Height float64
	Construction  bool
}

// Side names, in counter-clockwise order from the origin corner.
var RectangleSides = [4]string{"bottom", "right", "top", "left"}

// SideID returns the entity id of a rectangle side.
func SideID(rect EntityID, side string) EntityID {
	return EntityID(string(rect) + "." + side)
}

func (r Rectangle) lines() [4]*Line {
	o := r.Origin
	c1 := geom.Pt(o.X+r.Width, o.Y)
	c2 := geom.Pt(o.X+r.Width, o.Y+r.Height)
	c3 := geom.Pt(o.X, o.Y+r.Height)
	corners := [5]geom.Point2D{o, c1, c2, c3, o}
	var out [4]*Line
	for i := range out {
		out[i] = &Line{
			ID:           SideID(r.ID, RectangleSides[i]),
			From:         corners[i],
			To:           corners[i+1],
			Construction: r.Construction,
		}
	}
	return out
}

func (r Rectangle) validate() error {
	if !geom.Finite(r.Origin.X, r.Origin.Y, r.Width, r.Height) {
		return caderr.New(caderr.KindInvalidParameter, "", "rectangle %q has non-finite parameters", r.ID)
	}
	if r.Width < 0 || r.Height < 0 {
		return caderr.New(caderr.KindInvalidParameter, "", "rectangle %q has negative size %gx%g", r.ID, r.Width, r.Height)
	}
	if r.Width <= Epsilon || r.Height <= Epsilon {
		return caderr.New(caderr.KindDegenerateGeometry, "", "rectangle %q has zero size %gx%g", r.ID, r.Width, r.Height).WithRefs(string(r.ID))
	}
	return nil
}
