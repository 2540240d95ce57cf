// Package sdfx implements the kernel.Kernel interface on top of the
// github.com/deadsy/sdfx SDF-based CAD library.
//
// sdfx has no boundary representation, so this kernel keeps its own exact
// B-rep bookkeeping (faces, edges, vertices, adjacency) next to an SDF
// recipe that renders the geometry. Every operation re-mints all handles
// and enumeration order follows a hash of the handle, so callers that
// select topology by position or by remembered handle break on the next
// operation, as they would against a production kernel.
package sdfx

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/chazu/tenon/pkg/geom"
	"github.com/chazu/tenon/pkg/kernel"
)

// Compile-time interface checks.
var (
	_ kernel.Kernel   = (*SdfxKernel)(nil)
	_ kernel.Exporter = (*SdfxKernel)(nil)
)

const (
	// defaultMeshCells controls marching cubes tessellation resolution
	// when no tolerance is given.
	defaultMeshCells = 200
	minMeshCells     = 16
	maxMeshCells     = 400

	// pointTolerance is the distance under which wire endpoints join.
	pointTolerance = 1e-6

	// angleTolerance bounds how close a dihedral angle may come to flat
	// (tangent-continuous) or to zero (knife edge) before a fillet or
	// chamfer is refused.
	angleTolerance = 1e-9

	// smoothFacets is the number of facets used when rounding a profile
	// corner.
	smoothFacets = 8
)

// SdfxKernel implements kernel.Kernel using sdfx. It is safe for
// concurrent use; shapes are immutable once returned.
type SdfxKernel struct {
	lastHandle atomic.Uint64
}

// New returns a new SdfxKernel.
func New() *SdfxKernel {
	return &SdfxKernel{}
}

func (k *SdfxKernel) mint() kernel.Handle {
	return kernel.Handle(k.lastHandle.Add(1))
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

type edgeObj struct{ c kernel.Curve }

func (e *edgeObj) Curve() kernel.Curve { return e.c }

type wireObj struct {
	edges  []kernel.Edge
	closed bool
}

func (w *wireObj) Edges() []kernel.Edge { return w.edges }
func (w *wireObj) Closed() bool         { return w.closed }

type faceObj struct{ w *wireObj }

func (f *faceObj) Wire() kernel.Wire { return f.w }

// MakeEdge validates a curve and wraps it as an edge.
func (k *SdfxKernel) MakeEdge(c kernel.Curve) (kernel.Edge, error) {
	if !geom.Finite(c.Start.X, c.Start.Y, c.End.X, c.End.Y, c.Center.X, c.Center.Y, c.Radius, c.StartAngle, c.Sweep) {
		return nil, fmt.Errorf("%w: curve %q has non-finite parameters", kernel.ErrInvalidGeometry, c.Tag)
	}
	switch c.Kind {
	case kernel.CurveLine:
		if c.Start.Near(c.End, pointTolerance) {
			return nil, fmt.Errorf("%w: line %q has zero length", kernel.ErrInvalidGeometry, c.Tag)
		}
	case kernel.CurveArc, kernel.CurveCircle:
		if c.Radius <= pointTolerance {
			return nil, fmt.Errorf("%w: curve %q has radius %g", kernel.ErrInvalidGeometry, c.Tag, c.Radius)
		}
		if math.Abs(c.Sweep) <= 1e-12 || math.Abs(c.Sweep) > 2*math.Pi+1e-9 {
			return nil, fmt.Errorf("%w: curve %q has sweep %g", kernel.ErrInvalidGeometry, c.Tag, c.Sweep)
		}
	default:
		return nil, fmt.Errorf("%w: curve kind %d", kernel.ErrUnsupported, c.Kind)
	}
	return &edgeObj{c: c}, nil
}

// MakeWire joins edges end to start, in order.
func (k *SdfxKernel) MakeWire(edges []kernel.Edge) (kernel.Wire, error) {
	if len(edges) == 0 {
		return nil, fmt.Errorf("%w: empty wire", kernel.ErrInvalidGeometry)
	}
	for i, e := range edges {
		if _, ok := e.(*edgeObj); !ok {
			return nil, fmt.Errorf("%w: foreign edge %T", kernel.ErrInvalidGeometry, e)
		}
		c := e.Curve()
		if c.Kind == kernel.CurveCircle && len(edges) > 1 {
			return nil, fmt.Errorf("%w: circle %q must be the only edge of its wire", kernel.ErrInvalidGeometry, c.Tag)
		}
		if i > 0 {
			prev := edges[i-1].Curve()
			if !prev.End.Near(c.Start, pointTolerance) {
				return nil, fmt.Errorf("%w: gap between %q and %q", kernel.ErrInvalidGeometry, prev.Tag, c.Tag)
			}
		}
	}
	first, last := edges[0].Curve(), edges[len(edges)-1].Curve()
	return &wireObj{
		edges:  append([]kernel.Edge(nil), edges...),
		closed: last.End.Near(first.Start, pointTolerance),
	}, nil
}

// MakeFace builds a planar face bounded by a closed wire.
func (k *SdfxKernel) MakeFace(w kernel.Wire) (kernel.Face, error) {
	wo, ok := w.(*wireObj)
	if !ok {
		return nil, fmt.Errorf("%w: foreign wire %T", kernel.ErrInvalidGeometry, w)
	}
	if !wo.closed {
		return nil, fmt.Errorf("%w: face needs a closed wire", kernel.ErrInvalidGeometry)
	}
	if math.Abs(shoelace(outline(wo).points)) <= pointTolerance*pointTolerance {
		return nil, fmt.Errorf("%w: wire encloses no area", kernel.ErrInvalidGeometry)
	}
	return &faceObj{w: wo}, nil
}

func unwrapFace(f kernel.Face) (*wireObj, error) {
	fo, ok := f.(*faceObj)
	if !ok {
		return nil, fmt.Errorf("%w: foreign face %T", kernel.ErrInvalidGeometry, f)
	}
	return fo.w, nil
}

func unwrapShape(s kernel.Shape) (*solid, error) {
	so, ok := s.(*solid)
	if !ok {
		return nil, fmt.Errorf("%w: foreign shape %T", kernel.ErrInvalidGeometry, s)
	}
	return so, nil
}

// ---------------------------------------------------------------------------
// Enumeration
// ---------------------------------------------------------------------------

// scramble orders handles by a multiplicative hash so enumeration order
// carries no creation order.
func scramble(h kernel.Handle) uint64 {
	x := uint64(h) * 0x9E3779B97F4A7C15
	return x ^ (x >> 29)
}

func sortScrambled(hs []kernel.Handle) {
	sort.Slice(hs, func(i, j int) bool { return scramble(hs[i]) < scramble(hs[j]) })
}

// Edges lists the shape's edges with their adjacent faces.
func (k *SdfxKernel) Edges(s kernel.Shape) []kernel.Element {
	so, err := unwrapShape(s)
	if err != nil {
		return nil
	}
	hs := make([]kernel.Handle, 0, len(so.edges))
	for h := range so.edges {
		hs = append(hs, h)
	}
	sortScrambled(hs)
	out := make([]kernel.Element, len(hs))
	for i, h := range hs {
		e := so.edges[h]
		adj := []kernel.Handle{e.faces[0]}
		if e.faces[1] != e.faces[0] {
			adj = append(adj, e.faces[1])
		}
		out[i] = kernel.Element{Handle: h, Kind: kernel.TopoEdge, Adjacent: adj, Size: e.length}
	}
	return out
}

// Faces lists the shape's faces with their bounding edges.
func (k *SdfxKernel) Faces(s kernel.Shape) []kernel.Element {
	so, err := unwrapShape(s)
	if err != nil {
		return nil
	}
	bounding := make(map[kernel.Handle][]kernel.Handle, len(so.faces))
	for h, e := range so.edges {
		bounding[e.faces[0]] = append(bounding[e.faces[0]], h)
		if e.faces[1] != e.faces[0] {
			bounding[e.faces[1]] = append(bounding[e.faces[1]], h)
		}
	}
	hs := make([]kernel.Handle, 0, len(so.faces))
	for h := range so.faces {
		hs = append(hs, h)
	}
	sortScrambled(hs)
	out := make([]kernel.Element, len(hs))
	for i, h := range hs {
		adj := bounding[h]
		sortScrambled(adj)
		out[i] = kernel.Element{Handle: h, Kind: kernel.TopoFace, Adjacent: adj, Size: so.faces[h].area}
	}
	return out
}
