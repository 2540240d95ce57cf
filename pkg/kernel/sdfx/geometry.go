package sdfx

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/tenon/pkg/geom"
	"github.com/chazu/tenon/pkg/kernel"
)

// flatOutline is a wire flattened to a polygon. corners[i] is the index in
// points of the start of wire edge i.
type flatOutline struct {
	points  []geom.Point2D
	corners []int
	circle  *kernel.Curve
}

// arcStep is the angular step used to flatten arcs.
const arcStep = math.Pi / 32

func outline(w *wireObj) flatOutline {
	var o flatOutline
	for _, e := range w.edges {
		c := e.Curve()
		o.corners = append(o.corners, len(o.points))
		o.points = append(o.points, flattenCurve(c)...)
		if c.Kind == kernel.CurveCircle {
			cc := c
			o.circle = &cc
		}
	}
	return o
}

// flattenCurve returns points along c from its start, excluding its end.
func flattenCurve(c kernel.Curve) []geom.Point2D {
	if c.Kind == kernel.CurveLine {
		return []geom.Point2D{c.Start}
	}
	n := int(math.Ceil(math.Abs(c.Sweep) / arcStep))
	if n < 8 {
		n = 8
	}
	pts := make([]geom.Point2D, n)
	for i := 0; i < n; i++ {
		pts[i] = geom.Polar(c.Center, c.Radius, c.StartAngle+c.Sweep*float64(i)/float64(n))
	}
	pts[0] = c.Start
	return pts
}

func shoelace(pts []geom.Point2D) float64 {
	a := 0.0
	for i, p := range pts {
		a += p.Cross(pts[(i+1)%len(pts)])
	}
	return a / 2
}

// interiorAngle is the polygon's interior angle at pts[i], in (0, 2π).
func interiorAngle(pts []geom.Point2D, i int) float64 {
	n := len(pts)
	p := pts[i]
	u := pts[(i+n-1)%n].Sub(p)
	v := pts[(i+1)%n].Sub(p)
	cross := v.Cross(u)
	if shoelace(pts) < 0 {
		cross = -cross
	}
	a := math.Atan2(cross, v.Dot(u))
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a
}

// corner is an edge treatment applied to a profile vertex of a prism.
type corner struct {
	round bool
	size  float64
}

// recipe rebuilds a shape's SDF.
type recipe interface {
	build() (sdf.SDF3, error)
}

// prismGeo is a profile swept along vec. Corners hold fillets and chamfers
// on lateral edges, keyed by outline point index.
type prismGeo struct {
	outline flatOutline
	vec     geom.Vec3
	corners map[int]corner
}

func (g *prismGeo) withCorners(add map[int]corner) *prismGeo {
	c := make(map[int]corner, len(g.corners)+len(add))
	for i, v := range g.corners {
		c[i] = v
	}
	for i, v := range add {
		c[i] = v
	}
	return &prismGeo{outline: g.outline, vec: g.vec, corners: c}
}

func (g *prismGeo) profile() (sdf.SDF2, error) {
	if c := g.outline.circle; c != nil {
		s, err := sdf.Circle2D(c.Radius)
		if err != nil {
			return nil, err
		}
		return sdf.Transform2D(s, sdf.Translate2d(v2.Vec{X: c.Center.X, Y: c.Center.Y})), nil
	}
	p := sdf.NewPolygon()
	for i, pt := range g.outline.points {
		v := p.Add(pt.X, pt.Y)
		if c, ok := g.corners[i]; ok {
			if c.round {
				v.Smooth(c.size, smoothFacets)
			} else {
				v.Chamfer(c.size)
			}
		}
	}
	p.Close()
	return sdf.Polygon2D(p.Vertices())
}

func (g *prismGeo) build() (sdf.SDF3, error) {
	s2, err := g.profile()
	if err != nil {
		return nil, err
	}
	if g.vec.X == 0 && g.vec.Y == 0 {
		// Extrude3D is centred on z = 0.
		s3 := sdf.Extrude3D(s2, math.Abs(g.vec.Z))
		return sdf.Transform3D(s3, sdf.Translate3d(v3.Vec{Z: g.vec.Z / 2})), nil
	}
	return &obliquePrism{profile: s2, vec: g.vec}, nil
}

// obliquePrism sweeps a 2D profile along a vector with non-zero z.
// Evaluate shears the query point back onto the sketch plane; the result
// is a distance bound rather than an exact distance, which is all marching
// cubes needs.
type obliquePrism struct {
	profile sdf.SDF2
	vec     geom.Vec3
}

func (o *obliquePrism) Evaluate(p v3.Vec) float64 {
	t := p.Z / o.vec.Z
	q := v2.Vec{X: p.X - o.vec.X*t, Y: p.Y - o.vec.Y*t}
	d := o.profile.Evaluate(q)
	lo, hi := math.Min(0, o.vec.Z), math.Max(0, o.vec.Z)
	dz := math.Max(lo-p.Z, p.Z-hi)
	if d < 0 && dz < 0 {
		return math.Max(d, dz)
	}
	return math.Hypot(math.Max(d, 0), math.Max(dz, 0))
}

func (o *obliquePrism) BoundingBox() sdf.Box3 {
	bb := o.profile.BoundingBox()
	return sdf.Box3{
		Min: v3.Vec{
			X: bb.Min.X + math.Min(0, o.vec.X),
			Y: bb.Min.Y + math.Min(0, o.vec.Y),
			Z: math.Min(0, o.vec.Z),
		},
		Max: v3.Vec{
			X: bb.Max.X + math.Max(0, o.vec.X),
			Y: bb.Max.Y + math.Max(0, o.vec.Y),
			Z: math.Max(0, o.vec.Z),
		},
	}
}

// revolveGeo is a profile turned about an in-plane axis. Points are in
// (radius, along-axis) coordinates.
type revolveGeo struct {
	points []geom.Point2D
	axis   geom.Axis
	angle  float64
	// left is true when the profile lies left of the axis direction.
	left bool
}

func (g *revolveGeo) build() (sdf.SDF3, error) {
	vs := make([]v2.Vec, len(g.points))
	for i, p := range g.points {
		vs[i] = v2.Vec{X: p.X, Y: p.Y}
	}
	s2, err := sdf.Polygon2D(vs)
	if err != nil {
		return nil, err
	}
	var s3 sdf.SDF3
	if g.angle >= 2*math.Pi-1e-9 {
		s3, err = sdf.Revolve3D(s2)
	} else {
		s3, err = sdf.RevolveTheta3D(s2, g.angle)
	}
	if err != nil {
		return nil, err
	}
	// sdfx revolves about local Z with the profile starting on local +X.
	// Map local Z onto the axis and local +X onto the profile's side of
	// the sketch plane.
	d := g.axis.Direction.XY()
	phi := math.Atan2(d.Y, d.X)
	start := math.Pi / 2
	if !g.left {
		start = -start
	}
	m := sdf.Translate3d(v3.Vec{X: g.axis.Origin.X, Y: g.axis.Origin.Y}).
		Mul(sdf.RotateZ(phi)).
		Mul(sdf.RotateY(math.Pi / 2)).
		Mul(sdf.RotateZ(start))
	return sdf.Transform3D(s3, m), nil
}

func boundsOf(s sdf.SDF3) (min, max geom.Vec3) {
	bb := s.BoundingBox()
	return geom.V3(bb.Min.X, bb.Min.Y, bb.Min.Z), geom.V3(bb.Max.X, bb.Max.Y, bb.Max.Z)
}
