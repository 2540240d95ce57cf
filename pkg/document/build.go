package document

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/tenon/pkg/caderr"
	"github.com/chazu/tenon/pkg/geom"
	"github.com/chazu/tenon/pkg/sketch"
	"github.com/chazu/tenon/pkg/topo"
)

// Entity and constraint type names.
const (
	TypeLine      = "line"
	TypeCircle    = "circle"
	TypeArc       = "arc"
	TypeRectangle = "rectangle"
	TypePoint     = "point"
)

// Feature type names.
const (
	FeatureExtrude  = "extrude"
	FeatureRevolve  = "revolve"
	FeatureFillet   = "fillet"
	FeatureChamfer  = "chamfer"
	FeatureBox      = "box"
	FeatureCylinder = "cylinder"
)

func invalid(op string, format string, args ...any) *caderr.Error {
	return caderr.New(caderr.KindInvalidSketchDocument, op, format, args...)
}

// Validate checks the document's structure: known types and the fields
// each type needs. It does no geometry.
func (d *Document) Validate() error {
	const op = "document.Validate"
	if len(d.Entities) == 0 && !primitiveOnly(d.Features) {
		return invalid(op, "document has no entities")
	}
	for i, e := range d.Entities {
		if err := e.validate(); err != nil {
			return invalid(op, "entity %d (%s): %v", i, e.ID, err).WithRefs(e.ID)
		}
	}
	for i, c := range d.Constraints {
		if err := c.validate(); err != nil {
			return invalid(op, "constraint %d (%s): %v", i, c.Type, err).WithRefs(c.ID)
		}
	}
	for i, f := range d.Features {
		if err := f.validate(i == 0); err != nil {
			return invalid(op, "feature %d (%s): %v", i, f.Type, err)
		}
	}
	return nil
}

func primitiveOnly(fs []Feature) bool {
	return len(fs) > 0 && (fs[0].Type == FeatureBox || fs[0].Type == FeatureCylinder)
}

func missing(fields ...string) error {
	return fmt.Errorf("missing %v", fields)
}

func (e Entity) validate() error {
	switch e.Type {
	case TypeLine:
		if e.From == nil || e.To == nil {
			return missing("from", "to")
		}
	case TypeCircle:
		if e.Center == nil || e.Radius == nil {
			return missing("center", "radius")
		}
	case TypeArc:
		if e.Center == nil || e.Radius == nil || e.StartAngle == nil || e.EndAngle == nil {
			return missing("center", "radius", "start_angle", "end_angle")
		}
	case TypeRectangle:
		if e.Origin == nil || e.Width == nil || e.Height == nil {
			return missing("origin", "width", "height")
		}
		if e.ID == "" {
			return errors.New("rectangles need an id to name their sides")
		}
	case TypePoint:
		if e.At == nil {
			return missing("at")
		}
	case "":
		return errors.New("missing type")
	default:
		return fmt.Errorf("unknown entity type %q", e.Type)
	}
	return nil
}

func (c Constraint) validate() error {
	n := len(c.Refs)
	switch c.Type {
	case "horizontal", "vertical":
		if n != 1 {
			return fmt.Errorf("want 1 ref, got %d", n)
		}
	case "coincident", "parallel", "perpendicular", "equal", "tangent":
		if n != 2 {
			return fmt.Errorf("want 2 refs, got %d", n)
		}
	case "distance":
		if n != 1 && n != 2 {
			return fmt.Errorf("want 1 or 2 refs, got %d", n)
		}
		if c.Value == nil {
			return missing("value")
		}
	case "radius":
		if n != 1 {
			return fmt.Errorf("want 1 ref, got %d", n)
		}
		if c.Value == nil {
			return missing("value")
		}
	case "fixed":
		if n != 1 {
			return fmt.Errorf("want 1 ref, got %d", n)
		}
		if c.X == nil || c.Y == nil {
			return missing("x", "y")
		}
	case "":
		return errors.New("missing type")
	default:
		return fmt.Errorf("unknown constraint type %q", c.Type)
	}
	return nil
}

func (f Feature) validate(first bool) error {
	base := f.Type == FeatureExtrude || f.Type == FeatureRevolve || f.Type == FeatureBox || f.Type == FeatureCylinder
	if first && !base && f.Type != "" {
		return fmt.Errorf("%s needs a solid; the first feature must create one", f.Type)
	}
	if !first && base {
		return fmt.Errorf("%s creates a new solid and can only come first", f.Type)
	}
	switch f.Type {
	case FeatureExtrude:
		if f.Distance == nil {
			return missing("distance")
		}
	case FeatureRevolve:
		if f.Axis == nil {
			return missing("axis")
		}
	case FeatureFillet, FeatureChamfer:
		if f.Type == FeatureFillet && f.Radius == nil {
			return missing("radius")
		}
		if f.Type == FeatureChamfer && f.Size == nil {
			return missing("size")
		}
		if len(f.Edges)+len(f.Roles) == 0 {
			return missing("edges", "roles")
		}
		for _, e := range f.Edges {
			if _, err := topo.ParseRef(e); err != nil {
				return err
			}
		}
	case FeatureBox:
		if f.X == nil || f.Y == nil || f.Z == nil {
			return missing("x", "y", "z")
		}
	case FeatureCylinder:
		if f.Radius == nil || f.Height == nil {
			return missing("radius", "height")
		}
	case "":
		return errors.New("missing type")
	default:
		return fmt.Errorf("unknown feature type %q", f.Type)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Sketch construction
// ---------------------------------------------------------------------------

// Sketch builds a sketch from the document's entities and constraints.
// Out-of-range entity and constraint values are InvalidSketchDocument
// errors; reference errors keep the sketch's kinds (UnknownEntity,
// UnsupportedConstraint).
func (d *Document) Sketch() (*sketch.Sketch, error) {
	const op = "document.Sketch"
	if err := d.Validate(); err != nil {
		return nil, err
	}
	sk := sketch.New(d.Name)
	for _, e := range d.Entities {
		if err := addEntity(sk, e); err != nil {
			return nil, &caderr.Error{
				Kind: caderr.KindInvalidSketchDocument,
				Op:   op,
				Msg:  fmt.Sprintf("entity %q", e.ID),
				Refs: []string{e.ID},
				Err:  err,
			}
		}
	}
	for _, c := range d.Constraints {
		con, err := c.constraint()
		if err != nil {
			return nil, invalid(op, "constraint %q: %v", c.ID, err).WithRefs(c.ID)
		}
		if _, err := sk.AddConstraintWithID(sketch.ConstraintID(c.ID), con); err != nil {
			if caderr.KindOf(err) == caderr.KindInvalidParameter {
				return nil, &caderr.Error{
					Kind: caderr.KindInvalidSketchDocument,
					Op:   op,
					Msg:  fmt.Sprintf("constraint %q (%s)", c.ID, c.Type),
					Refs: caderr.RefsOf(err),
					Err:  err,
				}
			}
			return nil, err
		}
	}
	return sk, nil
}

func pt(v *Vec2) geom.Point2D { return geom.Pt(v.X, v.Y) }

func addEntity(sk *sketch.Sketch, e Entity) error {
	id := sketch.EntityID(e.ID)
	var err error
	switch e.Type {
	case TypeLine:
		_, err = sk.AddEntity(&sketch.Line{ID: id, From: pt(e.From), To: pt(e.To), Construction: e.Construction})
	case TypeCircle:
		_, err = sk.AddEntity(&sketch.Circle{ID: id, Center: pt(e.Center), Radius: *e.Radius, Construction: e.Construction})
	case TypeArc:
		_, err = sk.AddEntity(&sketch.Arc{
			ID:           id,
			Center:       pt(e.Center),
			Radius:       *e.Radius,
			StartAngle:   *e.StartAngle,
			EndAngle:     *e.EndAngle,
			Construction: e.Construction,
		})
	case TypeRectangle:
		_, err = sk.AddRectangle(sketch.Rectangle{
			ID:           id,
			Origin:       pt(e.Origin),
			Width:        *e.Width,
			Height:       *e.Height,
			Construction: e.Construction,
		})
	case TypePoint:
		_, err = sk.AddEntity(&sketch.Point{ID: id, At: pt(e.At), Construction: e.Construction})
	}
	return err
}

func (c Constraint) value() float64 {
	if c.Value == nil {
		return math.NaN()
	}
	return *c.Value
}

func (c Constraint) constraint() (sketch.Constraint, error) {
	ref := func(i int) sketch.PointRef { return sketch.ParsePointRef(c.Refs[i]) }
	id := func(i int) sketch.EntityID { return sketch.EntityID(c.Refs[i]) }
	switch c.Type {
	case "coincident":
		return sketch.Coincident{A: ref(0), B: ref(1)}, nil
	case "horizontal":
		return sketch.Horizontal{Line: id(0)}, nil
	case "vertical":
		return sketch.Vertical{Line: id(0)}, nil
	case "parallel":
		return sketch.Parallel{A: id(0), B: id(1)}, nil
	case "perpendicular":
		return sketch.Perpendicular{A: id(0), B: id(1)}, nil
	case "equal":
		return sketch.Equal{A: id(0), B: id(1)}, nil
	case "tangent":
		return sketch.Tangent{Line: id(0), Curve: id(1)}, nil
	case "distance":
		if len(c.Refs) == 1 {
			return sketch.Distance{Line: id(0), Value: c.value()}, nil
		}
		return sketch.Distance{A: ref(0), B: ref(1), Value: c.value()}, nil
	case "radius":
		return sketch.Radius{Curve: id(0), Value: c.value()}, nil
	case "fixed":
		return sketch.Fixed{Point: ref(0), At: geom.Pt(*c.X, *c.Y)}, nil
	}
	return nil, fmt.Errorf("unknown constraint type %q", c.Type)
}

// EntityIDs converts document ids to sketch ids.
func EntityIDs(ids []string) []sketch.EntityID {
	out := make([]sketch.EntityID, len(ids))
	for i, id := range ids {
		out[i] = sketch.EntityID(id)
	}
	return out
}

// Refs parses the feature's edge refs.
func (f Feature) Refs() ([]topo.StableRef, error) {
	out := make([]topo.StableRef, 0, len(f.Edges))
	for _, e := range f.Edges {
		r, err := topo.ParseRef(e)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// AngleRadians is the revolve angle in radians, a full turn by default.
func (f Feature) AngleRadians() float64 {
	if f.Angle == nil {
		return 2 * math.Pi
	}
	return *f.Angle * math.Pi / 180
}

// DirectionVec is the extrude direction, +Z by default.
func (f Feature) DirectionVec() geom.Vec3 {
	if f.Direction == nil {
		return geom.V3(0, 0, 1)
	}
	return geom.V3(f.Direction.X, f.Direction.Y, f.Direction.Z)
}

// GeomAxis converts the revolve axis.
func (f Feature) GeomAxis() geom.Axis {
	if f.Axis == nil {
		return geom.Axis{}
	}
	return geom.Axis{
		Origin:    geom.V3(f.Axis.Origin.X, f.Axis.Origin.Y, f.Axis.Origin.Z),
		Direction: geom.V3(f.Axis.Direction.X, f.Axis.Direction.Y, f.Axis.Direction.Z),
	}
}
