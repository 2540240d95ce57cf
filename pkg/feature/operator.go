package feature

import (
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/chazu/tenon/pkg/caderr"
	"github.com/chazu/tenon/pkg/geom"
	"github.com/chazu/tenon/pkg/kernel"
	"github.com/chazu/tenon/pkg/profile"
	"github.com/chazu/tenon/pkg/sketch"
	"github.com/chazu/tenon/pkg/topo"
)

// Operator applies features through a kernel. It holds no modelling state
// and is safe for concurrent use when the kernel is.
type Operator struct {
	k   kernel.Kernel
	log *zap.Logger
}

// NewOperator returns an Operator. A nil logger discards output.
func NewOperator(k kernel.Kernel, logger *zap.Logger) *Operator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Operator{k: k, log: logger}
}

// Kernel returns the kernel the operator drives.
func (o *Operator) Kernel() kernel.Kernel { return o.k }

// ---------------------------------------------------------------------------
// Base features
// ---------------------------------------------------------------------------

// Extrude sweeps a closed profile along dir by distance. A negative distance
// sweeps against dir. dir must not lie in the sketch plane.
func (o *Operator) Extrude(p profile.Profile, dir geom.Vec3, distance float64) (*Result, error) {
	const op = "feature.Extrude"
	if !geom.Finite(distance) || distance == 0 {
		return nil, caderr.New(caderr.KindInvalidParameter, op, "distance must be non-zero and finite, got %g", distance)
	}
	if !geom.Finite(dir.X, dir.Y, dir.Z) || dir.IsZero() {
		return nil, caderr.New(caderr.KindInvalidParameter, op, "direction %s must be non-zero and finite", dir)
	}
	unit := dir.Unit()
	if math.Abs(unit.Z) < 1e-9 {
		return nil, caderr.New(caderr.KindInvalidParameter, op, "direction %s is parallel to the sketch plane", dir)
	}
	params := ExtrudeParams{Direction: unit, Distance: distance, Profile: p.Sources()}
	return o.sweep(op, p, params, func(f kernel.Face) (kernel.Shape, kernel.History, error) {
		return o.k.Prism(f, unit.Scale(distance))
	})
}

// Revolve turns a closed profile about an axis in the sketch plane by
// angle radians, 0 < angle <= 2π.
func (o *Operator) Revolve(p profile.Profile, axis geom.Axis, angle float64) (*Result, error) {
	const op = "feature.Revolve"
	if !geom.Finite(angle) || angle <= 0 || angle > 2*math.Pi+1e-12 {
		return nil, caderr.New(caderr.KindInvalidParameter, op, "angle must be in (0, 2π], got %g", angle)
	}
	d := axis.Direction
	if !geom.Finite(axis.Origin.X, axis.Origin.Y, axis.Origin.Z, d.X, d.Y, d.Z) || d.IsZero() {
		return nil, caderr.New(caderr.KindInvalidParameter, op, "axis direction %s must be non-zero and finite", d)
	}
	if !axis.InPlane(1e-9) {
		return nil, caderr.New(caderr.KindInvalidParameter, op, "axis must lie in the sketch plane")
	}
	params := RevolveParams{Axis: axis, Angle: math.Min(angle, 2*math.Pi), Profile: p.Sources()}
	return o.sweep(op, p, params, func(f kernel.Face) (kernel.Shape, kernel.History, error) {
		return o.k.Revolve(f, axis, params.Angle)
	})
}

// Box builds an x by y rectangle at the origin and extrudes it by z. Its
// topology is named like any extrude of a rectangle with id "box".
func (o *Operator) Box(x, y, z float64) (*Result, error) {
	const op = "feature.Box"
	if !geom.Finite(x, y, z) || x <= 0 || y <= 0 || z <= 0 {
		return nil, caderr.New(caderr.KindInvalidParameter, op, "box dimensions must be positive, got %g x %g x %g", x, y, z)
	}
	sk := sketch.New("box")
	if _, err := sk.AddRectangle(sketch.Rectangle{ID: "box", Width: x, Height: y}); err != nil {
		return nil, err
	}
	p, err := profile.Build(sk, profile.Options{RequireClosed: true})
	if err != nil {
		return nil, err
	}
	up := geom.V3(0, 0, 1)
	return o.sweep(op, p, BoxParams{X: x, Y: y, Z: z}, func(f kernel.Face) (kernel.Shape, kernel.History, error) {
		return o.k.Prism(f, up.Scale(z))
	})
}

// Cylinder builds a circle of radius r at the origin, with id "cylinder",
// and extrudes it by height.
func (o *Operator) Cylinder(r, height float64) (*Result, error) {
	const op = "feature.Cylinder"
	if !geom.Finite(r, height) || r <= 0 || height <= 0 {
		return nil, caderr.New(caderr.KindInvalidParameter, op, "cylinder radius and height must be positive, got %g, %g", r, height)
	}
	sk := sketch.New("cylinder")
	if _, err := sk.AddEntity(&sketch.Circle{ID: "cylinder", Radius: r}); err != nil {
		return nil, err
	}
	p, err := profile.Build(sk, profile.Options{RequireClosed: true})
	if err != nil {
		return nil, err
	}
	return o.sweep(op, p, CylinderParams{Radius: r, Height: height}, func(f kernel.Face) (kernel.Shape, kernel.History, error) {
		return o.k.Prism(f, geom.V3(0, 0, height))
	})
}

type sweepFunc func(kernel.Face) (kernel.Shape, kernel.History, error)

func (o *Operator) sweep(op string, p profile.Profile, params Params, run sweepFunc) (*Result, error) {
	if !p.Closed || len(p.Segments) == 0 {
		return nil, caderr.New(caderr.KindOpenProfile, op, "profile is not closed").WithRefs(idStrings(p.Sources())...)
	}
	face, err := o.makeFace(p)
	if err != nil {
		return nil, caderr.Wrap(caderr.KindKernelOperationFailed, op, err).WithRefs(idStrings(p.Sources())...)
	}
	shape, hist, err := run(face)
	if err != nil {
		o.log.Info("sweep failed", zap.String("op", op), zap.Error(err))
		return nil, kernelError(op, err)
	}
	return o.commit(op, nil, shape, hist, params, nil, nil)
}

// makeFace hands the profile to the kernel. Each curve is tagged with its
// sketch entity id, which is what names the swept topology.
func (o *Operator) makeFace(p profile.Profile) (kernel.Face, error) {
	edges := make([]kernel.Edge, 0, len(p.Segments))
	for _, s := range p.Segments {
		c := kernel.Curve{
			Start:      s.Start,
			End:        s.End,
			Center:     s.Center,
			Radius:     s.Radius,
			StartAngle: s.StartAngle,
			Sweep:      s.Sweep,
			Tag:        string(s.Source),
		}
		switch s.Kind {
		case profile.SegmentLine:
			c.Kind = kernel.CurveLine
		case profile.SegmentArc:
			c.Kind = kernel.CurveArc
		case profile.SegmentCircle:
			c.Kind = kernel.CurveCircle
		}
		e, err := o.k.MakeEdge(c)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	w, err := o.k.MakeWire(edges)
	if err != nil {
		return nil, err
	}
	return o.k.MakeFace(w)
}

// ---------------------------------------------------------------------------
// Edge treatments
// ---------------------------------------------------------------------------

// Fillet rounds the referenced edges of s with radius r.
func (o *Operator) Fillet(s *Solid, r float64, edges []topo.StableRef, opts Options) (*Result, error) {
	params := FilletParams{Radius: r, Edges: append([]topo.StableRef(nil), edges...), Strict: opts.Strict}
	return o.treat("feature.Fillet", s, r, params, edges, opts, o.k.Fillet)
}

// Chamfer bevels the referenced edges of s with setback size.
func (o *Operator) Chamfer(s *Solid, size float64, edges []topo.StableRef, opts Options) (*Result, error) {
	params := ChamferParams{Size: size, Edges: append([]topo.StableRef(nil), edges...), Strict: opts.Strict}
	return o.treat("feature.Chamfer", s, size, params, edges, opts, o.k.Chamfer)
}

type treatFunc func(kernel.Shape, float64, []kernel.Handle) (kernel.Shape, kernel.History, error)

func (o *Operator) treat(op string, s *Solid, size float64, params Params, refs []topo.StableRef, opts Options, run treatFunc) (*Result, error) {
	if s == nil {
		return nil, caderr.New(caderr.KindInvalidParameter, op, "nil solid")
	}
	if !geom.Finite(size) || size <= 0 {
		return nil, caderr.New(caderr.KindInvalidParameter, op, "size must be positive, got %g", size)
	}
	if len(refs) == 0 {
		return nil, caderr.New(caderr.KindInvalidParameter, op, "no edges selected")
	}

	var handles []kernel.Handle
	var targets, skipped []topo.StableRef
	seen := make(map[topo.StableRef]bool, len(refs))
	for _, r := range refs {
		if seen[r] {
			continue
		}
		seen[r] = true
		if r.Kind != kernel.TopoEdge {
			return nil, caderr.New(caderr.KindInvalidParameter, op, "%s is not an edge", r).WithRefs(r.String())
		}
		h, ok := s.refs.Resolve(r)
		if !ok {
			skipped = append(skipped, r)
			continue
		}
		handles = append(handles, h)
		targets = append(targets, r)
	}

	if len(skipped) > 0 {
		if opts.Strict {
			return nil, caderr.New(caderr.KindStaleReference, op, "%d refs no longer resolve", len(skipped)).
				WithRefs(topo.Strings(skipped)...)
		}
		o.log.Warn("skipping stale refs", zap.String("op", op), zap.Strings("refs", topo.Strings(skipped)))
	}
	if len(handles) == 0 {
		return nil, caderr.New(caderr.KindStaleReference, op, "none of the selected refs resolve").
			WithRefs(topo.Strings(skipped)...)
	}

	shape, hist, err := run(s.shape, size, handles)
	if err != nil {
		o.log.Info("edge treatment failed", zap.String("op", op), zap.Float64("size", size), zap.Error(err))
		return nil, kernelError(op, err).WithRefs(topo.Strings(refs)...)
	}
	return o.commit(op, s, shape, hist, params, targets, skipped)
}

// ---------------------------------------------------------------------------
// Commit
// ---------------------------------------------------------------------------

// commit invalidates the refs the operation consumed, carries the rest of
// the parent's table through the kernel history and builds the new solid.
// Deletions the history reports beyond targets are tombstoned by Apply.
// Nothing is shared with the parent that the parent could observe changing.
func (o *Operator) commit(op string, parent *Solid, shape kernel.Shape, hist kernel.History, params Params, targets, skipped []topo.StableRef) (*Result, error) {
	table := topo.NewTable()
	var history []Entry
	if parent != nil {
		table = parent.refs
		history = parent.history
	}
	index := len(history)

	next, ch, err := table.Invalidate(index, targets...).Apply(index, hist)
	if err != nil {
		return nil, caderr.Wrap(caderr.KindKernelOperationFailed, op, err)
	}
	ch.Consumed = append(append([]topo.StableRef(nil), targets...), ch.Consumed...)
	if err := next.Reconcile(o.k, shape); err != nil {
		return nil, caderr.Wrap(caderr.KindKernelOperationFailed, op, err)
	}

	entry := Entry{
		Index:    index,
		Kind:     params.Kind(),
		Params:   params,
		Created:  ch.Created,
		Consumed: ch.Consumed,
		Skipped:  skipped,
	}
	solid := &Solid{
		shape:   shape,
		parent:  parent,
		history: append(append(make([]Entry, 0, index+1), history...), entry),
		refs:    next,
	}
	o.log.Debug("feature applied",
		zap.String("op", op),
		zap.Int("index", index),
		zap.Int("created", len(ch.Created)),
		zap.Int("consumed", len(ch.Consumed)),
		zap.Int("skipped", len(skipped)))
	return &Result{Solid: solid, Created: ch.Created, Consumed: ch.Consumed, Skipped: skipped}, nil
}

func kernelError(op string, err error) *caderr.Error {
	if errors.Is(err, kernel.ErrSelfIntersection) {
		return caderr.Wrap(caderr.KindSelfIntersection, op, err)
	}
	return caderr.Wrap(caderr.KindKernelOperationFailed, op, err)
}

func idStrings(ids []sketch.EntityID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
