// Package feature applies modelling operations (extrude, revolve, fillet,
// chamfer and the box and cylinder primitives) to produce immutable solids
// with an append-only feature history.
//
// Edges and faces are always selected by topo.StableRef. Every operation
// carries the solid's reference table through the kernel's history, so a
// ref keeps naming the same geometry after the kernel renumbers everything,
// and a ref to consumed topology reports "not found" instead of landing on
// whatever now sits in its old position.
package feature

import (
	"fmt"

	"github.com/chazu/tenon/pkg/geom"
	"github.com/chazu/tenon/pkg/kernel"
	"github.com/chazu/tenon/pkg/sketch"
	"github.com/chazu/tenon/pkg/topo"
)

// Kind identifies a feature operation.
type Kind int

const (
	KindExtrude Kind = iota
	KindRevolve
	KindFillet
	KindChamfer
	KindBox
	KindCylinder
)

func (k Kind) String() string {
	switch k {
	case KindExtrude:
		return "extrude"
	case KindRevolve:
		return "revolve"
	case KindFillet:
		return "fillet"
	case KindChamfer:
		return "chamfer"
	case KindBox:
		return "box"
	case KindCylinder:
		return "cylinder"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Params holds the arguments a feature was applied with. The set of
// implementations is closed.
type Params interface {
	Kind() Kind
	params()
}

// ExtrudeParams records an extrude. Direction is the unit sweep direction.
type ExtrudeParams struct {
	Direction geom.Vec3
	Distance  float64
	Profile   []sketch.EntityID
}

// RevolveParams records a revolve; Angle is in radians.
type RevolveParams struct {
	Axis    geom.Axis
	Angle   float64
	Profile []sketch.EntityID
}

// FilletParams records a fillet with the refs as requested.
type FilletParams struct {
	Radius float64
	Edges  []topo.StableRef
	Strict bool
}

// ChamferParams records a chamfer with the refs as requested.
type ChamferParams struct {
	Size   float64
	Edges  []topo.StableRef
	Strict bool
}

// BoxParams records a box primitive.
type BoxParams struct{ X, Y, Z float64 }

// CylinderParams records a cylinder primitive.
type CylinderParams struct{ Radius, Height float64 }

func (ExtrudeParams) Kind() Kind  { return KindExtrude }
func (RevolveParams) Kind() Kind  { return KindRevolve }
func (FilletParams) Kind() Kind   { return KindFillet }
func (ChamferParams) Kind() Kind  { return KindChamfer }
func (BoxParams) Kind() Kind      { return KindBox }
func (CylinderParams) Kind() Kind { return KindCylinder }

func (ExtrudeParams) params()  {}
func (RevolveParams) params()  {}
func (FilletParams) params()   {}
func (ChamferParams) params()  {}
func (BoxParams) params()      {}
func (CylinderParams) params() {}

// Entry is one record of a solid's feature history.
type Entry struct {
	Index  int
	Kind   Kind
	Params Params
	// Created lists refs minted for the topology this feature produced.
	Created []topo.StableRef
	// Consumed lists refs whose topology this feature removed.
	Consumed []topo.StableRef
	// Skipped lists requested refs that no longer resolved (non-strict
	// fillet and chamfer only).
	Skipped []topo.StableRef
}

func (e Entry) String() string {
	return fmt.Sprintf("#%d %s (+%d -%d, %d skipped)", e.Index, e.Kind, len(e.Created), len(e.Consumed), len(e.Skipped))
}

// Solid is an immutable modelling result: a kernel shape, the solid it was
// derived from, its feature history and its reference table.
type Solid struct {
	shape   kernel.Shape
	parent  *Solid
	history []Entry
	refs    *topo.Table
}

// Shape returns the kernel shape.
func (s *Solid) Shape() kernel.Shape { return s.shape }

// Parent returns the solid this one was derived from, or nil for a base
// feature.
func (s *Solid) Parent() *Solid { return s.parent }

// History returns a copy of the feature history, oldest first.
func (s *Solid) History() []Entry {
	return append([]Entry(nil), s.history...)
}

// Last returns the most recent history entry.
func (s *Solid) Last() Entry { return s.history[len(s.history)-1] }

// Refs returns the solid's reference table.
func (s *Solid) Refs() *topo.Table { return s.refs }

// Resolve maps a ref to the shape's current handle.
func (s *Solid) Resolve(r topo.StableRef) (kernel.Handle, bool) {
	return s.refs.Resolve(r)
}

// Lookup reports whether r is live, consumed or unknown on this solid.
func (s *Solid) Lookup(r topo.StableRef) topo.State {
	return s.refs.Lookup(r)
}

// Edges lists the live edge refs in creation order.
func (s *Solid) Edges() []topo.StableRef { return s.refs.Refs(kernel.TopoEdge) }

// Faces lists the live face refs in creation order.
func (s *Solid) Faces() []topo.StableRef { return s.refs.Refs(kernel.TopoFace) }

// EdgesWithRole lists live edges of one role, for example the "side-edge"
// lateral edges of an extrude.
func (s *Solid) EdgesWithRole(role string) []topo.StableRef {
	return s.refs.WithRole(kernel.TopoEdge, role)
}

// FacesWithRole lists live faces of one role.
func (s *Solid) FacesWithRole(role string) []topo.StableRef {
	return s.refs.WithRole(kernel.TopoFace, role)
}

// Result is what a feature operation returns.
type Result struct {
	Solid    *Solid
	Created  []topo.StableRef
	Consumed []topo.StableRef
	Skipped  []topo.StableRef
}

// Options controls fillet and chamfer.
type Options struct {
	// Strict makes any unresolvable ref fatal. Otherwise such refs are
	// skipped and reported in Result.Skipped.
	Strict bool
}
