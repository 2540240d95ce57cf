package sdfx

import (
	"fmt"
	"math"
	"sort"

	"github.com/deadsy/sdfx/sdf"

	"github.com/chazu/tenon/pkg/geom"
	"github.com/chazu/tenon/pkg/kernel"
)

type vertexID int

type edgeRec struct {
	faces  [2]kernel.Handle
	verts  [2]vertexID
	length float64
	// radius is set for circular edges.
	radius float64
	closed bool
	// angle is the interior angle between the two faces.
	angle float64
	// corner is the outline index of the profile vertex a prism lateral
	// edge was swept from, or -1.
	corner int
}

type faceRec struct {
	area float64
}

// solid is the kernel.Shape of this kernel: B-rep bookkeeping plus the SDF
// that renders it.
type solid struct {
	edges map[kernel.Handle]*edgeRec
	faces map[kernel.Handle]*faceRec
	nextV vertexID
	geo   recipe
	sdf   sdf.SDF3
}

func (s *solid) BoundingBox() (min, max geom.Vec3) {
	return boundsOf(s.sdf)
}

func (s *solid) vertex() vertexID {
	s.nextV++
	return s.nextV
}

// builder accumulates new topology and its history.
type builder struct {
	k    *SdfxKernel
	s    *solid
	hist kernel.History
}

func newBuilder(k *SdfxKernel) *builder {
	return &builder{
		k: k,
		s: &solid{
			edges: make(map[kernel.Handle]*edgeRec),
			faces: make(map[kernel.Handle]*faceRec),
		},
		hist: kernel.History{Modified: make(map[kernel.Handle]kernel.Handle)},
	}
}

func (b *builder) face(role string, area float64, tags []string, sources ...kernel.Handle) kernel.Handle {
	h := b.k.mint()
	b.s.faces[h] = &faceRec{area: area}
	b.hist.Generated = append(b.hist.Generated, kernel.Generated{
		Handle: h, Kind: kernel.TopoFace, Role: role, Tags: tags, Sources: sources,
	})
	return h
}

func (b *builder) edge(role string, rec edgeRec, tags []string, sources ...kernel.Handle) kernel.Handle {
	h := b.k.mint()
	r := rec
	b.s.edges[h] = &r
	b.hist.Generated = append(b.hist.Generated, kernel.Generated{
		Handle: h, Kind: kernel.TopoEdge, Role: role, Tags: tags, Sources: sources,
	})
	return h
}

func (b *builder) finish(geo recipe) (kernel.Shape, kernel.History, error) {
	s3, err := geo.build()
	if err != nil {
		return nil, kernel.History{}, fmt.Errorf("%w: %v", kernel.ErrInvalidGeometry, err)
	}
	b.s.geo = geo
	b.s.sdf = s3
	return b.s, b.hist, nil
}

func tag(c kernel.Curve) []string { return []string{c.Tag} }

func tags(a, b kernel.Curve) []string { return []string{a.Tag, b.Tag} }

// ---------------------------------------------------------------------------
// Sweeps
// ---------------------------------------------------------------------------

// Prism sweeps a face along vec. For a wire of n edges the result has n
// lateral faces ("side"), two caps ("cap-start", "cap-end"), n edges on each
// cap ("start-edge", "end-edge") and n lateral edges ("side-edge"). A
// circle yields one lateral face, two cap edges and one "seam".
func (k *SdfxKernel) Prism(f kernel.Face, vec geom.Vec3) (kernel.Shape, kernel.History, error) {
	w, err := unwrapFace(f)
	if err != nil {
		return nil, kernel.History{}, err
	}
	if !geom.Finite(vec.X, vec.Y, vec.Z) || vec.IsZero() {
		return nil, kernel.History{}, fmt.Errorf("%w: sweep vector %s", kernel.ErrInvalidGeometry, vec)
	}
	if math.Abs(vec.Z) <= pointTolerance {
		return nil, kernel.History{}, fmt.Errorf("%w: sweep vector %s is parallel to the sketch plane", kernel.ErrInvalidGeometry, vec)
	}

	o := outline(w)
	capArea := math.Abs(shoelace(o.points))
	height := vec.Len()
	b := newBuilder(k)
	curves := make([]kernel.Curve, len(w.edges))
	for i, e := range w.edges {
		curves[i] = e.Curve()
	}

	if o.circle != nil {
		c := *o.circle
		side := b.face("side", 2*math.Pi*c.Radius*height, tag(c))
		capS := b.face("cap-start", math.Pi*c.Radius*c.Radius, nil)
		capE := b.face("cap-end", math.Pi*c.Radius*c.Radius, nil)
		v0, v1 := b.s.vertex(), b.s.vertex()
		circ := 2 * math.Pi * c.Radius
		b.edge("start-edge", edgeRec{faces: [2]kernel.Handle{side, capS}, verts: [2]vertexID{v0, v0}, length: circ, radius: c.Radius, closed: true, angle: math.Pi / 2, corner: -1}, tag(c))
		b.edge("end-edge", edgeRec{faces: [2]kernel.Handle{side, capE}, verts: [2]vertexID{v1, v1}, length: circ, radius: c.Radius, closed: true, angle: math.Pi / 2, corner: -1}, tag(c))
		b.edge("seam", edgeRec{faces: [2]kernel.Handle{side, side}, verts: [2]vertexID{v0, v1}, length: height, angle: math.Pi, corner: -1}, tag(c))
		return b.finish(&prismGeo{outline: o, vec: vec})
	}

	n := len(curves)
	sides := make([]kernel.Handle, n)
	for i, c := range curves {
		sides[i] = b.face("side", curveLength(c)*height, tag(c))
	}
	capS := b.face("cap-start", capArea, nil)
	capE := b.face("cap-end", capArea, nil)

	bottom := make([]vertexID, n)
	top := make([]vertexID, n)
	for i := range curves {
		bottom[i], top[i] = b.s.vertex(), b.s.vertex()
	}
	for i, c := range curves {
		j := (i + 1) % n
		b.edge("start-edge", edgeRec{faces: [2]kernel.Handle{sides[i], capS}, verts: [2]vertexID{bottom[i], bottom[j]}, length: curveLength(c), radius: curveRadius(c), angle: math.Pi / 2, corner: -1}, tag(c))
	}
	for i, c := range curves {
		j := (i + 1) % n
		b.edge("end-edge", edgeRec{faces: [2]kernel.Handle{sides[i], capE}, verts: [2]vertexID{top[i], top[j]}, length: curveLength(c), radius: curveRadius(c), angle: math.Pi / 2, corner: -1}, tag(c))
	}
	for i, c := range curves {
		p := (i + n - 1) % n
		b.edge("side-edge", edgeRec{
			faces:  [2]kernel.Handle{sides[p], sides[i]},
			verts:  [2]vertexID{bottom[i], top[i]},
			length: height,
			angle:  interiorAngle(o.points, o.corners[i]),
			corner: o.corners[i],
		}, tags(curves[p], c))
	}
	return b.finish(&prismGeo{outline: o, vec: vec})
}

// Revolve turns a face about an in-plane axis. Profile edges lying on the
// axis sweep nothing; vertices on the axis become poles. A full turn has
// one lateral face and one "seam" per profile edge and a circular
// "side-edge" per off-axis vertex. A partial turn adds caps, cap edges and
// an "axis-edge" per on-axis profile edge.
func (k *SdfxKernel) Revolve(f kernel.Face, axis geom.Axis, angle float64) (kernel.Shape, kernel.History, error) {
	w, err := unwrapFace(f)
	if err != nil {
		return nil, kernel.History{}, err
	}
	if axis.Direction.IsZero() || !axis.InPlane(1e-9) {
		return nil, kernel.History{}, fmt.Errorf("%w: axis must lie in the sketch plane", kernel.ErrInvalidGeometry)
	}
	if !(angle > 0 && angle <= 2*math.Pi+1e-9) {
		return nil, kernel.History{}, fmt.Errorf("%w: revolve angle %g", kernel.ErrInvalidGeometry, angle)
	}
	full := angle >= 2*math.Pi-1e-9

	o := outline(w)
	minD, maxD := math.Inf(1), math.Inf(-1)
	for _, p := range o.points {
		d := axis.SignedDistance2D(p)
		minD, maxD = math.Min(minD, d), math.Max(maxD, d)
	}
	if minD < -pointTolerance && maxD > pointTolerance {
		return nil, kernel.History{}, fmt.Errorf("%w: profile crosses the axis", kernel.ErrSelfIntersection)
	}
	if maxD-minD <= pointTolerance && math.Abs(maxD) <= pointTolerance {
		return nil, kernel.History{}, fmt.Errorf("%w: profile lies on the axis", kernel.ErrInvalidGeometry)
	}
	left := maxD > pointTolerance

	dir := axis.Direction.XY()
	dir = dir.Scale(1 / dir.Len())
	origin := axis.Origin.XY()
	radial := func(p geom.Point2D) float64 { return math.Abs(axis.SignedDistance2D(p)) }
	local := make([]geom.Point2D, len(o.points))
	for i, p := range o.points {
		local[i] = geom.Pt(radial(p), p.Sub(origin).Dot(dir))
	}
	geo := &revolveGeo{points: local, axis: axis, angle: angle, left: left}

	b := newBuilder(k)
	var curves []kernel.Curve
	for _, e := range w.edges {
		curves = append(curves, e.Curve())
	}
	n := len(curves)
	if o.circle != nil {
		// A circle off the axis sweeps a torus.
		c := *o.circle
		rho := radial(c.Center)
		side := b.face("side", curveLength(c)*rho*angle, tag(c))
		v := b.s.vertex()
		if full {
			b.edge("seam", edgeRec{faces: [2]kernel.Handle{side, side}, verts: [2]vertexID{v, v}, length: curveLength(c), radius: c.Radius, closed: true, angle: math.Pi, corner: -1}, tag(c))
			return b.finish(geo)
		}
		capS := b.face("cap-start", math.Pi*c.Radius*c.Radius, nil)
		capE := b.face("cap-end", math.Pi*c.Radius*c.Radius, nil)
		v1 := b.s.vertex()
		b.edge("start-edge", edgeRec{faces: [2]kernel.Handle{side, capS}, verts: [2]vertexID{v, v}, length: curveLength(c), radius: c.Radius, closed: true, angle: math.Pi / 2, corner: -1}, tag(c))
		b.edge("end-edge", edgeRec{faces: [2]kernel.Handle{side, capE}, verts: [2]vertexID{v1, v1}, length: curveLength(c), radius: c.Radius, closed: true, angle: math.Pi / 2, corner: -1}, tag(c))
		return b.finish(geo)
	}

	onAxis := make([]bool, n)
	pole := make([]bool, n)
	rho := make([]float64, n)
	for i, c := range curves {
		rho[i] = radial(c.Start)
		pole[i] = rho[i] <= pointTolerance
	}
	for i, c := range curves {
		onAxis[i] = c.Kind == kernel.CurveLine && pole[i] && pole[(i+1)%n]
	}

	sides := make([]kernel.Handle, n)
	for i, c := range curves {
		if onAxis[i] {
			continue
		}
		mean := (rho[i] + rho[(i+1)%n]) / 2
		sides[i] = b.face("side", curveLength(c)*mean*angle, tag(c))
	}
	area := math.Abs(shoelace(o.points))
	var capS, capE kernel.Handle
	if !full {
		capS = b.face("cap-start", area, nil)
		capE = b.face("cap-end", area, nil)
	}

	// Vertices on the start plane and, for partial turns, the end plane.
	// Poles are shared.
	vs := make([]vertexID, n)
	ve := make([]vertexID, n)
	for i := range curves {
		vs[i] = b.s.vertex()
		ve[i] = vs[i]
		if !full && !pole[i] {
			ve[i] = b.s.vertex()
		}
	}

	for i, c := range curves {
		j := (i + 1) % n
		switch {
		case onAxis[i] && !full:
			b.edge("axis-edge", edgeRec{faces: [2]kernel.Handle{capS, capE}, verts: [2]vertexID{vs[i], vs[j]}, length: curveLength(c), angle: angle, corner: -1}, tag(c))
		case onAxis[i]:
		case full:
			b.edge("seam", edgeRec{faces: [2]kernel.Handle{sides[i], sides[i]}, verts: [2]vertexID{vs[i], vs[j]}, length: curveLength(c), radius: curveRadius(c), angle: math.Pi, corner: -1}, tag(c))
		default:
			b.edge("start-edge", edgeRec{faces: [2]kernel.Handle{sides[i], capS}, verts: [2]vertexID{vs[i], vs[j]}, length: curveLength(c), radius: curveRadius(c), angle: math.Pi / 2, corner: -1}, tag(c))
			b.edge("end-edge", edgeRec{faces: [2]kernel.Handle{sides[i], capE}, verts: [2]vertexID{ve[i], ve[j]}, length: curveLength(c), radius: curveRadius(c), angle: math.Pi / 2, corner: -1}, tag(c))
		}
	}
	for i, c := range curves {
		if pole[i] {
			continue
		}
		p := (i + n - 1) % n
		fa, fb := sides[p], sides[i]
		if onAxis[p] {
			fa = capS
		}
		if onAxis[i] {
			fb = capE
		}
		b.edge("side-edge", edgeRec{
			faces:  [2]kernel.Handle{fa, fb},
			verts:  [2]vertexID{vs[i], ve[i]},
			length: rho[i] * angle,
			radius: rho[i],
			closed: full,
			angle:  interiorAngle(o.points, o.corners[i]),
			corner: -1,
		}, tags(curves[p], c))
	}
	return b.finish(geo)
}

func curveLength(c kernel.Curve) float64 {
	if c.Kind == kernel.CurveLine {
		return c.Start.Dist(c.End)
	}
	return c.Radius * math.Abs(c.Sweep)
}

func curveRadius(c kernel.Curve) float64 {
	if c.Kind == kernel.CurveLine {
		return 0
	}
	return c.Radius
}

// ---------------------------------------------------------------------------
// Edge treatments
// ---------------------------------------------------------------------------

// Fillet rounds edges with a constant radius. Each filleted edge is
// deleted and replaced by a "fillet" face, two "fillet-edge" tangent edges
// and, at each end vertex, a "fillet-end" edge on the face meeting there.
// Edges that share a vertex cannot be treated in one call.
func (k *SdfxKernel) Fillet(s kernel.Shape, radius float64, edges []kernel.Handle) (kernel.Shape, kernel.History, error) {
	return k.treat(s, radius, edges, true)
}

// Chamfer bevels edges with a constant setback; topology is as for Fillet
// with roles "chamfer", "chamfer-edge" and "chamfer-end".
func (k *SdfxKernel) Chamfer(s kernel.Shape, size float64, edges []kernel.Handle) (kernel.Shape, kernel.History, error) {
	return k.treat(s, size, edges, false)
}

// endPlan describes one end vertex of a treated edge: the edges meeting
// there on each side and the third face they close against.
type endPlan struct {
	v      vertexID
	onA    []kernel.Handle
	onB    []kernel.Handle
	across kernel.Handle
}

type treatPlan struct {
	e    kernel.Handle
	a, b kernel.Handle
	ends []endPlan
	// setback is how far the treatment eats into each neighbouring edge.
	setback float64
}

func (k *SdfxKernel) treat(s kernel.Shape, size float64, edges []kernel.Handle, round bool) (kernel.Shape, kernel.History, error) {
	op := "chamfer"
	if round {
		op = "fillet"
	}
	in, err := unwrapShape(s)
	if err != nil {
		return nil, kernel.History{}, err
	}
	if !(size > 0) || math.IsInf(size, 0) {
		return nil, kernel.History{}, fmt.Errorf("%w: %s size %g", kernel.ErrInvalidGeometry, op, size)
	}
	if len(edges) == 0 {
		return nil, kernel.History{}, fmt.Errorf("%w: %s needs at least one edge", kernel.ErrInvalidGeometry, op)
	}

	plans, err := in.plan(edges)
	if err != nil {
		return nil, kernel.History{}, fmt.Errorf("%s: %w", op, err)
	}

	// Setbacks on the edges meeting each treated edge must leave them
	// some length.
	setback := make(map[kernel.Handle]float64)
	for i := range plans {
		p := &plans[i]
		e := in.edges[p.e]
		if e.radius > 0 && size >= e.radius {
			return nil, kernel.History{}, fmt.Errorf("%w: %s size %g is not smaller than the edge radius %g", kernel.ErrInvalidGeometry, op, size, e.radius)
		}
		if math.Abs(e.angle-math.Pi) < angleTolerance {
			return nil, kernel.History{}, fmt.Errorf("%w: %s of a tangent-continuous edge", kernel.ErrInvalidGeometry, op)
		}
		d := size
		if round {
			t := math.Abs(math.Tan(e.angle / 2))
			if t < angleTolerance {
				return nil, kernel.History{}, fmt.Errorf("%w: %s of a knife edge", kernel.ErrInvalidGeometry, op)
			}
			d = size / t
		}
		p.setback = d
		for _, end := range p.ends {
			for _, h := range end.onA {
				setback[h] += d
			}
			for _, h := range end.onB {
				setback[h] += d
			}
		}
	}
	for h, d := range setback {
		if e := in.edges[h]; d >= e.length-pointTolerance {
			return nil, kernel.History{}, fmt.Errorf("%w: %s size %g leaves no length on an adjacent edge of length %g", kernel.ErrInvalidGeometry, op, size, e.length)
		}
	}

	b := newBuilder(k)
	remap := in.copyInto(b)
	corners := make(map[int]corner)

	crossLen := size * math.Sqrt2
	faceWidth := size * math.Sqrt2
	if round {
		crossLen = size * math.Pi / 2
		faceWidth = crossLen
	}

	for _, p := range plans {
		rec := *in.edges[p.e]
		delete(b.s.edges, remap[p.e])
		delete(b.hist.Modified, p.e)
		b.hist.Deleted = append(b.hist.Deleted, p.e)

		f := b.face(op, rec.length*faceWidth, nil, p.e)
		var a0, a1, b0, b1 vertexID
		a0, b0 = b.s.vertex(), b.s.vertex()
		a1, b1 = a0, b0
		if !rec.closed {
			a1, b1 = b.s.vertex(), b.s.vertex()
		}
		// Fillet boundaries are tangent; a chamfer face meets each
		// neighbour halfway between the old dihedral and flat.
		boundary := math.Pi
		if !round {
			boundary = (math.Pi + rec.angle) / 2
		}
		tangent := edgeRec{length: rec.length, radius: rec.radius, closed: rec.closed, angle: boundary, corner: -1}
		ta, tb := tangent, tangent
		ta.faces, ta.verts = [2]kernel.Handle{remap[p.a], f}, [2]vertexID{a0, a1}
		tb.faces, tb.verts = [2]kernel.Handle{remap[p.b], f}, [2]vertexID{b0, b1}
		b.edge(op+"-edge", ta, nil, p.e, p.a)
		b.edge(op+"-edge", tb, nil, p.e, p.b)

		for i, end := range p.ends {
			va, vb := a0, b0
			if i == 1 {
				va, vb = a1, b1
			}
			if end.across != 0 {
				b.edge(op+"-end", edgeRec{
					faces:  [2]kernel.Handle{remap[end.across], f},
					verts:  [2]vertexID{va, vb},
					length: crossLen,
					angle:  math.Pi / 2,
					corner: -1,
				}, nil, p.e, end.across)
			}
			move := func(hs []kernel.Handle, to vertexID) {
				for _, h := range hs {
					e := b.s.edges[remap[h]]
					for j := range e.verts {
						if e.verts[j] == end.v {
							e.verts[j] = to
						}
					}
					e.length -= p.setback
				}
			}
			move(end.onA, va)
			move(end.onB, vb)
		}
		if rec.corner >= 0 {
			corners[rec.corner] = corner{round: round, size: size}
		}
	}

	geo := in.geo
	if pg, ok := geo.(*prismGeo); ok && len(corners) > 0 {
		geo = pg.withCorners(corners)
	}
	return b.finish(geo)
}

// plan validates the selection and finds, for each end of each edge, the
// neighbouring edges and the face across the end.
func (s *solid) plan(edges []kernel.Handle) ([]treatPlan, error) {
	seen := make(map[kernel.Handle]bool)
	usedVertex := make(map[vertexID]kernel.Handle)
	var plans []treatPlan
	for _, h := range edges {
		if seen[h] {
			continue
		}
		seen[h] = true
		e, ok := s.edges[h]
		if !ok {
			return nil, fmt.Errorf("%w: no edge %d", kernel.ErrInvalidGeometry, h)
		}
		if e.faces[0] == e.faces[1] {
			return nil, fmt.Errorf("%w: edge %d is a seam", kernel.ErrUnsupported, h)
		}
		ends := []vertexID{e.verts[0]}
		if !e.closed {
			ends = append(ends, e.verts[1])
		}
		p := treatPlan{e: h, a: e.faces[0], b: e.faces[1]}
		for _, v := range ends {
			if other, ok := usedVertex[v]; ok {
				return nil, fmt.Errorf("%w: edges %d and %d meet at a vertex", kernel.ErrUnsupported, other, h)
			}
			usedVertex[v] = h
			end, err := s.planEnd(h, e, v)
			if err != nil {
				return nil, err
			}
			p.ends = append(p.ends, end)
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func (s *solid) planEnd(h kernel.Handle, e *edgeRec, v vertexID) (endPlan, error) {
	a, b := e.faces[0], e.faces[1]
	end := endPlan{v: v}
	var others []kernel.Handle
	for oh, o := range s.edges {
		if oh != h && (o.verts[0] == v || o.verts[1] == v) {
			others = append(others, oh)
		}
	}
	sortScrambled(others)
	for _, oh := range others {
		o := s.edges[oh]
		switch {
		case o.faces[0] == a || o.faces[1] == a:
			end.onA = append(end.onA, oh)
		case o.faces[0] == b || o.faces[1] == b:
			end.onB = append(end.onB, oh)
		default:
			return endPlan{}, fmt.Errorf("%w: vertex of edge %d has an unrelated edge %d", kernel.ErrUnsupported, h, oh)
		}
	}
	if e.closed {
		return end, nil
	}
	if len(end.onA) != 1 || len(end.onB) != 1 {
		return endPlan{}, fmt.Errorf("%w: vertex of edge %d joins %d edges", kernel.ErrUnsupported, h, len(others)+1)
	}
	ca := otherFace(s.edges[end.onA[0]], a)
	cb := otherFace(s.edges[end.onB[0]], b)
	if ca != cb {
		return endPlan{}, fmt.Errorf("%w: vertex of edge %d is not a three-face corner", kernel.ErrUnsupported, h)
	}
	end.across = ca
	return end, nil
}

func otherFace(e *edgeRec, f kernel.Handle) kernel.Handle {
	if e.faces[0] == f {
		return e.faces[1]
	}
	return e.faces[0]
}

// copyInto re-mints every handle of s into b and records the mapping as
// modifications.
func (s *solid) copyInto(b *builder) map[kernel.Handle]kernel.Handle {
	remap := make(map[kernel.Handle]kernel.Handle, len(s.edges)+len(s.faces))
	for _, h := range sortedKeys(s.faces) {
		nh := b.k.mint()
		ff := *s.faces[h]
		b.s.faces[nh] = &ff
		remap[h] = nh
	}
	for _, h := range sortedKeys(s.edges) {
		nh := b.k.mint()
		e := s.edges[h]
		ee := *e
		ee.faces = [2]kernel.Handle{remap[e.faces[0]], remap[e.faces[1]]}
		b.s.edges[nh] = &ee
		remap[h] = nh
	}
	for h, nh := range remap {
		b.hist.Modified[h] = nh
	}
	b.s.nextV = s.nextV
	return remap
}

func sortedKeys[V any](m map[kernel.Handle]V) []kernel.Handle {
	hs := make([]kernel.Handle, 0, len(m))
	for h := range m {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	return hs
}
