package profile

import (
	"fmt"
	"math"

	"github.com/chazu/tenon/pkg/geom"
	"github.com/chazu/tenon/pkg/sketch"
)

// SegmentKind distinguishes the curve types a profile can contain.
type SegmentKind int

const (
	SegmentLine SegmentKind = iota
	SegmentArc
	SegmentCircle
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentLine:
		return "line"
	case SegmentArc:
		return "arc"
	case SegmentCircle:
		return "circle"
	default:
		return fmt.Sprintf("SegmentKind(%d)", int(k))
	}
}

// Segment is one resolved curve of a profile. Arcs carry a signed sweep:
// positive is counter-clockwise. A circle is a full-period segment whose
// start and end coincide at angle StartAngle.
type Segment struct {
	Kind   SegmentKind
	Source sketch.EntityID

	Start, End geom.Point2D

	Center     geom.Point2D
	Radius     float64
	StartAngle float64
	Sweep      float64
}

func lineSegment(l *sketch.Line) Segment {
	return Segment{Kind: SegmentLine, Source: l.ID, Start: l.From, End: l.To}
}

func arcSegment(a *sketch.Arc) Segment {
	return Segment{
		Kind:       SegmentArc,
		Source:     a.ID,
		Start:      a.StartPoint(),
		End:        a.EndPoint(),
		Center:     a.Center,
		Radius:     a.Radius,
		StartAngle: a.StartAngle,
		Sweep:      a.Sweep(),
	}
}

func circleSegment(c *sketch.Circle) Segment {
	p := geom.Polar(c.Center, c.Radius, 0)
	return Segment{
		Kind:   SegmentCircle,
		Source: c.ID,
		Start:  p,
		End:    p,
		Center: c.Center,
		Radius: c.Radius,
		Sweep:  2 * math.Pi,
	}
}

// Reversed returns the same curve traversed the other way.
func (s Segment) Reversed() Segment {
	r := s
	r.Start, r.End = s.End, s.Start
	if s.Kind != SegmentLine {
		r.StartAngle = s.StartAngle + s.Sweep
		r.Sweep = -s.Sweep
	}
	return r
}

// EndAngle is StartAngle + Sweep.
func (s Segment) EndAngle() float64 { return s.StartAngle + s.Sweep }

// Length returns the curve length.
func (s Segment) Length() float64 {
	if s.Kind == SegmentLine {
		return s.Start.Dist(s.End)
	}
	return s.Radius * math.Abs(s.Sweep)
}

// signedArea is this segment's contribution to the shoelace integral
// ½∮(x dy − y dx).
func (s Segment) signedArea() float64 {
	if s.Kind == SegmentLine {
		return s.Start.Cross(s.End) / 2
	}
	t0, t1 := s.StartAngle, s.EndAngle()
	r, c := s.Radius, s.Center
	return (r*r*s.Sweep + c.X*r*(math.Sin(t1)-math.Sin(t0)) - c.Y*r*(math.Cos(t1)-math.Cos(t0))) / 2
}

// Points flattens the segment into a polyline whose chords deviate from the
// curve by at most tol. The first point is Start and the last is End.
func (s Segment) Points(tol float64) []geom.Point2D {
	if s.Kind == SegmentLine {
		return []geom.Point2D{s.Start, s.End}
	}
	n := arcDivisions(s.Radius, s.Sweep, tol)
	pts := make([]geom.Point2D, n+1)
	for i := 0; i <= n; i++ {
		pts[i] = geom.Polar(s.Center, s.Radius, s.StartAngle+s.Sweep*float64(i)/float64(n))
	}
	pts[0], pts[n] = s.Start, s.End
	return pts
}

const (
	minArcDivisions = 4
	maxArcDivisions = 512
)

// arcDivisions is the number of chords needed for sagitta <= tol.
func arcDivisions(r, sweep, tol float64) int {
	if tol <= 0 || tol >= r {
		return minArcDivisions
	}
	step := 2 * math.Acos(1-tol/r)
	n := int(math.Ceil(math.Abs(sweep) / step))
	if n < minArcDivisions {
		n = minArcDivisions
	}
	if n > maxArcDivisions {
		n = maxArcDivisions
	}
	return n
}
