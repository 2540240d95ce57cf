// Package profile chains solved sketch curves into an ordered wire that
// sweep operations can consume.
package profile

import (
	"math"

	"github.com/chazu/tenon/pkg/caderr"
	"github.com/chazu/tenon/pkg/geom"
	"github.com/chazu/tenon/pkg/sketch"
)

// DefaultTolerance is the endpoint matching distance used when
// Options.Tolerance is zero.
const DefaultTolerance = 1e-6

// Options controls Build.
type Options struct {
	// Tolerance is the maximum gap between endpoints that still chain.
	Tolerance float64
	// RequireClosed makes an open chain an OpenProfile error.
	RequireClosed bool
	// Entities restricts the profile to these entities. Empty means every
	// non-construction curve in the sketch.
	Entities []sketch.EntityID
}

// Profile is an ordered curve sequence. Consecutive segments share
// endpoints; when Closed, the last segment ends where the first starts.
type Profile struct {
	Segments []Segment
	Closed   bool
}

// Build converts a solved sketch into a Profile. Entities are re-validated
// because solving can move parameters into degenerate territory.
func Build(sk *sketch.Sketch, opts Options) (Profile, error) {
	const op = "profile.Build"
	tol := opts.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	entities, err := selectEntities(sk, opts.Entities)
	if err != nil {
		return Profile{}, err
	}
	invalid := make(map[sketch.EntityID]bool)
	for _, id := range sk.InvalidEntities() {
		invalid[id] = true
	}

	var segs []Segment
	for _, e := range entities {
		if invalid[e.EntityID()] {
			return Profile{}, caderr.New(caderr.KindDegenerateGeometry, op, "entity %s is degenerate after solving", e.EntityID()).
				WithRefs(string(e.EntityID()))
		}
		switch v := e.(type) {
		case *sketch.Line:
			segs = append(segs, lineSegment(v))
		case *sketch.Arc:
			segs = append(segs, arcSegment(v))
		case *sketch.Circle:
			segs = append(segs, circleSegment(v))
		case *sketch.Point:
			if len(opts.Entities) > 0 {
				return Profile{}, caderr.New(caderr.KindInvalidParameter, op, "point %s cannot be part of a profile", v.ID).
					WithRefs(string(v.ID))
			}
		}
	}
	if len(segs) == 0 {
		return Profile{}, caderr.New(caderr.KindDegenerateGeometry, op, "no curves to build a profile from")
	}

	for _, s := range segs {
		if s.Kind == SegmentCircle {
			if len(segs) > 1 {
				return Profile{}, caderr.New(caderr.KindOpenProfile, op, "circle %s is disconnected from the other curves", s.Source).
					WithRefs(sources(segs)...)
			}
			return Profile{Segments: segs, Closed: true}, nil
		}
	}

	if err := checkBranches(segs, tol); err != nil {
		return Profile{}, err
	}

	chain, rest := chainSegments(segs, tol)
	if len(rest) > 0 {
		return Profile{}, caderr.New(caderr.KindOpenProfile, op, "%d curves are disconnected from the profile", len(rest)).
			WithRefs(sources(rest)...)
	}
	p := Profile{
		Segments: chain,
		Closed:   chain[len(chain)-1].End.Near(chain[0].Start, tol),
	}
	if !p.Closed && opts.RequireClosed {
		return Profile{}, caderr.New(caderr.KindOpenProfile, op, "chain does not close: gap of %g between %s and %s",
			chain[len(chain)-1].End.Dist(chain[0].Start), chain[len(chain)-1].Source, chain[0].Source).
			WithRefs(string(chain[0].Source), string(chain[len(chain)-1].Source))
	}
	return p, nil
}

func selectEntities(sk *sketch.Sketch, ids []sketch.EntityID) ([]sketch.Entity, error) {
	if len(ids) == 0 {
		var out []sketch.Entity
		for _, e := range sk.Entities() {
			if !e.IsConstruction() {
				out = append(out, e)
			}
		}
		return out, nil
	}
	out := make([]sketch.Entity, 0, len(ids))
	for _, id := range ids {
		e, ok := sk.Entity(id)
		if !ok {
			return nil, caderr.New(caderr.KindUnknownEntity, "profile.Build", "no entity %q", id).WithRefs(string(id))
		}
		out = append(out, e)
	}
	return out, nil
}

// checkBranches rejects endpoints shared by more than two curve ends.
func checkBranches(segs []Segment, tol float64) error {
	var ends []geom.Point2D
	var owners []sketch.EntityID
	for _, s := range segs {
		ends = append(ends, s.Start, s.End)
		owners = append(owners, s.Source, s.Source)
	}
	for i, p := range ends {
		n := 0
		var refs []string
		for j, q := range ends {
			if p.Near(q, tol) {
				n++
				refs = append(refs, string(owners[j]))
			}
		}
		if n > 2 {
			return caderr.New(caderr.KindDegenerateGeometry, "profile.Build", "%d curve ends meet at %s", n, ends[i]).
				WithRefs(refs...)
		}
	}
	return nil
}

// chainSegments orders and orients segments into one wire. The first
// segment keeps its authored direction; the chain grows forward from its
// end, then backward from its start. Segments that never join are
// returned as rest.
func chainSegments(segs []Segment, tol float64) (chain, rest []Segment) {
	used := make([]bool, len(segs))
	used[0] = true
	chain = []Segment{segs[0]}

	closed := func() bool {
		return len(chain) > 1 && chain[len(chain)-1].End.Near(chain[0].Start, tol)
	}

	for !closed() {
		i, s, ok := nextAt(segs, used, chain[len(chain)-1].End, tol)
		if !ok {
			break
		}
		used[i] = true
		chain = append(chain, s)
	}
	for !closed() {
		i, s, ok := nextAt(segs, used, chain[0].Start, tol)
		if !ok {
			break
		}
		used[i] = true
		chain = append([]Segment{s.Reversed()}, chain...)
	}

	for i, s := range segs {
		if !used[i] {
			rest = append(rest, s)
		}
	}
	return chain, rest
}

// nextAt finds an unused segment with an end at p, oriented to start at p.
func nextAt(segs []Segment, used []bool, p geom.Point2D, tol float64) (int, Segment, bool) {
	for i, s := range segs {
		if used[i] {
			continue
		}
		if s.Start.Near(p, tol) {
			return i, s, true
		}
		if s.End.Near(p, tol) {
			return i, s.Reversed(), true
		}
	}
	return 0, Segment{}, false
}

func sources(segs []Segment) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = string(s.Source)
	}
	return out
}

// SignedArea is positive for counter-clockwise closed profiles. It is
// meaningless for open profiles and returns 0 for them.
func (p Profile) SignedArea() float64 {
	if !p.Closed {
		return 0
	}
	a := 0.0
	for _, s := range p.Segments {
		a += s.signedArea()
	}
	return a
}

// Area is the enclosed area of a closed profile.
func (p Profile) Area() float64 { return math.Abs(p.SignedArea()) }

// Length is the total curve length.
func (p Profile) Length() float64 {
	l := 0.0
	for _, s := range p.Segments {
		l += s.Length()
	}
	return l
}

// Sources lists the source entity of each segment, in profile order.
func (p Profile) Sources() []sketch.EntityID {
	out := make([]sketch.EntityID, len(p.Segments))
	for i, s := range p.Segments {
		out[i] = s.Source
	}
	return out
}

// Reversed returns the profile traversed in the opposite direction.
func (p Profile) Reversed() Profile {
	out := Profile{Closed: p.Closed, Segments: make([]Segment, len(p.Segments))}
	for i, s := range p.Segments {
		out.Segments[len(p.Segments)-1-i] = s.Reversed()
	}
	return out
}

// Points flattens the profile to a polyline. For closed profiles the
// closing point is not repeated.
func (p Profile) Points(tol float64) []geom.Point2D {
	var out []geom.Point2D
	for i, s := range p.Segments {
		pts := s.Points(tol)
		if i > 0 {
			pts = pts[1:]
		}
		out = append(out, pts...)
	}
	if p.Closed && len(out) > 1 {
		out = out[:len(out)-1]
	}
	return out
}

// CounterClockwise returns p, reversed if needed so that its signed area is
// positive. Open profiles are returned unchanged.
func (p Profile) CounterClockwise() Profile {
	if p.Closed && p.SignedArea() < 0 {
		return p.Reversed()
	}
	return p
}
