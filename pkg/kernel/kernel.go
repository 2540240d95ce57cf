// Package kernel defines the boundary to the geometric kernel.
// Implementations own curve/surface mathematics and B-rep topology; the
// rest of the system only builds profiles, calls sweeps and edge
// treatments, and reads back enumeration plus per-operation history.
package kernel

import (
	"errors"
	"fmt"

	"github.com/chazu/tenon/pkg/geom"
)

// Handle identifies a live edge or face within one shape. Handles are
// minted by the kernel and carry no meaning across shapes: any operation
// may renumber everything.
type Handle uint64

// TopoKind distinguishes edges from faces.
type TopoKind int

const (
	TopoEdge TopoKind = iota
	TopoFace
)

func (k TopoKind) String() string {
	switch k {
	case TopoEdge:
		return "edge"
	case TopoFace:
		return "face"
	default:
		return fmt.Sprintf("TopoKind(%d)", int(k))
	}
}

// CurveKind is the type of a planar curve handed to MakeEdge.
type CurveKind int

const (
	CurveLine CurveKind = iota
	CurveArc
	CurveCircle
)

// Curve is a planar curve in the sketch plane (world z = 0). Arcs carry a
// signed sweep; circles are full periodic curves starting at StartAngle.
type Curve struct {
	Kind       CurveKind
	Start, End geom.Point2D
	Center     geom.Point2D
	Radius     float64
	StartAngle float64
	Sweep      float64
	// Tag is the caller's name for the curve. Sweeps report it back in
	// History.Generated so callers can name derived topology.
	Tag string
}

// Edge, Wire and Face are kernel-owned construction objects.
type Edge interface {
	Curve() Curve
}

type Wire interface {
	Edges() []Edge
	Closed() bool
}

type Face interface {
	Wire() Wire
}

// Shape is an opaque handle to a kernel solid.
type Shape interface {
	BoundingBox() (min, max geom.Vec3)
}

// Element is one enumerated edge or face of a shape.
type Element struct {
	Handle Handle
	Kind   TopoKind
	// Adjacent lists the faces bounding an edge, or the edges bounding a
	// face.
	Adjacent []Handle
	// Size is the edge length or the face's nominal area.
	Size float64
}

// Generated describes a piece of topology an operation created.
type Generated struct {
	Handle Handle
	Kind   TopoKind
	// Role is the kernel's name for how the element arose, for example
	// "side" for a lateral face or "fillet" for a rounding face.
	Role string
	// Tags are the Curve tags the element was swept from.
	Tags []string
	// Sources are input handles the element was derived from.
	Sources []Handle
}

// History is the provenance of one operation. Every handle of the input
// shape appears either in Modified (mapped to its handle in the output) or
// in Deleted.
type History struct {
	Modified  map[Handle]Handle
	Deleted   []Handle
	Generated []Generated
}

// Kernel is the geometric kernel boundary.
type Kernel interface {
	// Construction
	MakeEdge(c Curve) (Edge, error)
	MakeWire(edges []Edge) (Wire, error)
	MakeFace(w Wire) (Face, error)

	// Sweeps. Prism sweeps along vec (direction times distance). Revolve
	// turns the face about an in-plane axis by angle radians.
	Prism(f Face, vec geom.Vec3) (Shape, History, error)
	Revolve(f Face, axis geom.Axis, angle float64) (Shape, History, error)

	// Edge treatments
	Fillet(s Shape, radius float64, edges []Handle) (Shape, History, error)
	Chamfer(s Shape, size float64, edges []Handle) (Shape, History, error)

	// Enumeration. Order is unspecified and may change between shapes.
	Edges(s Shape) []Element
	Faces(s Shape) []Element

	// Mesh output; tolerance is the maximum chordal deviation.
	ToMesh(s Shape, tolerance float64) (*Mesh, error)
}

// Format is an export file format.
type Format string

const (
	FormatSTL  Format = "stl"
	FormatSTEP Format = "step"
)

// Exporter writes finished shapes to files.
type Exporter interface {
	Export(s Shape, format Format, path string, tolerance float64) error
}

var (
	// ErrSelfIntersection reports a sweep whose result would intersect
	// itself.
	ErrSelfIntersection = errors.New("kernel: self-intersecting sweep")
	// ErrUnsupported reports an operation or format the kernel lacks.
	ErrUnsupported = errors.New("kernel: unsupported")
	// ErrInvalidGeometry reports input geometry the kernel rejects.
	ErrInvalidGeometry = errors.New("kernel: invalid geometry")
)
