package sketch

import (
	"fmt"
	"strings"

	"github.com/chazu/tenon/pkg/geom"
)

// ConstraintID is the identifier of a constraint within a sketch.
type ConstraintID string

// ConstraintKind distinguishes the constraint variants.
type ConstraintKind int

const (
	ConstraintCoincident ConstraintKind = iota
	ConstraintHorizontal
	ConstraintVertical
	ConstraintParallel
	ConstraintPerpendicular
	ConstraintDistance
	ConstraintRadius
	ConstraintFixed
	ConstraintEqual
	ConstraintTangent
)

func (k ConstraintKind) String() string {
	switch k {
	case ConstraintCoincident:
		return "coincident"
	case ConstraintHorizontal:
		return "horizontal"
	case ConstraintVertical:
		return "vertical"
	case ConstraintParallel:
		return "parallel"
	case ConstraintPerpendicular:
		return "perpendicular"
	case ConstraintDistance:
		return "distance"
	case ConstraintRadius:
		return "radius"
	case ConstraintFixed:
		return "fixed"
	case ConstraintEqual:
		return "equal"
	case ConstraintTangent:
		return "tangent"
	default:
		return "unknown"
	}
}

// PointRole selects a point on an entity.
type PointRole string

const (
	RolePoint  PointRole = "point"  // a Point entity itself
	RoleStart  PointRole = "start"  // line From, arc start
	RoleEnd    PointRole = "end"    // line To, arc end
	RoleCenter PointRole = "center" // circle or arc center
)

// PointRef names a point on an entity.
type PointRef struct {
	Entity EntityID
	Role   PointRole
}

// At is shorthand for PointRef{id, role}.
func At(id EntityID, role PointRole) PointRef {
	return PointRef{Entity: id, Role: role}
}

func (r PointRef) String() string {
	if r.Role == "" || r.Role == RolePoint {
		return string(r.Entity)
	}
	return string(r.Entity) + "." + string(r.Role)
}

// ParsePointRef parses "id" or "id.role". Only the last dot separates the
// role, so rectangle side ids ("r1.bottom.start") parse as expected.
func ParsePointRef(s string) PointRef {
	if i := strings.LastIndex(s, "."); i > 0 {
		switch role := PointRole(s[i+1:]); role {
		case RoleStart, RoleEnd, RoleCenter, RolePoint:
			return PointRef{Entity: EntityID(s[:i]), Role: role}
		}
	}
	return PointRef{Entity: EntityID(s), Role: RolePoint}
}

// Constraint is a geometric relation between entities. The set of
// implementations is closed; the solver switches over it exhaustively.
type Constraint interface {
	Kind() ConstraintKind
	// Entities lists every referenced entity id.
	Entities() []EntityID
	// Equations is the number of scalar equations contributed.
	Equations() int
	constraint()
}

// Coincident makes two points equal.
type Coincident struct{ A, B PointRef }

// Horizontal keeps a line parallel to the X axis.
type Horizontal struct{ Line EntityID }

// Vertical keeps a line parallel to the Y axis.
type Vertical struct{ Line EntityID }

// Parallel keeps two lines parallel.
type Parallel struct{ A, B EntityID }

// Perpendicular keeps two lines at right angles.
type Perpendicular struct{ A, B EntityID }

// Distance fixes a line's length (Line set) or the distance between two
// points (A and B set).
type Distance struct {
	Line  EntityID
	A, B  PointRef
	Value float64
}

// Radius fixes the radius of a circle or arc.
type Radius struct {
	Curve EntityID
	Value float64
}

// Fixed pins a point at a location.
type Fixed struct {
	Point PointRef
	At    geom.Point2D
}

// Equal makes two lines equally long, or two circles/arcs equal in radius.
type Equal struct{ A, B EntityID }

// Tangent keeps a line tangent to a circle or arc.
type Tangent struct{ Line, Curve EntityID }

func (Coincident) Kind() ConstraintKind    { return ConstraintCoincident }
func (Horizontal) Kind() ConstraintKind    { return ConstraintHorizontal }
func (Vertical) Kind() ConstraintKind      { return ConstraintVertical }
func (Parallel) Kind() ConstraintKind      { return ConstraintParallel }
func (Perpendicular) Kind() ConstraintKind { return ConstraintPerpendicular }
func (Distance) Kind() ConstraintKind      { return ConstraintDistance }
func (Radius) Kind() ConstraintKind        { return ConstraintRadius }
func (Fixed) Kind() ConstraintKind         { return ConstraintFixed }
func (Equal) Kind() ConstraintKind         { return ConstraintEqual }
func (Tangent) Kind() ConstraintKind       { return ConstraintTangent }

func (Coincident) Equations() int    { return 2 }
func (Horizontal) Equations() int    { return 1 }
func (Vertical) Equations() int      { return 1 }
func (Parallel) Equations() int      { return 1 }
func (Perpendicular) Equations() int { return 1 }
func (Distance) Equations() int      { return 1 }
func (Radius) Equations() int        { return 1 }
func (Fixed) Equations() int         { return 2 }
func (Equal) Equations() int         { return 1 }
func (Tangent) Equations() int       { return 1 }

func (c Coincident) Entities() []EntityID    { return []EntityID{c.A.Entity, c.B.Entity} }
func (c Horizontal) Entities() []EntityID    { return []EntityID{c.Line} }
func (c Vertical) Entities() []EntityID      { return []EntityID{c.Line} }
func (c Parallel) Entities() []EntityID      { return []EntityID{c.A, c.B} }
func (c Perpendicular) Entities() []EntityID { return []EntityID{c.A, c.B} }
func (c Radius) Entities() []EntityID        { return []EntityID{c.Curve} }
func (c Fixed) Entities() []EntityID         { return []EntityID{c.Point.Entity} }
func (c Equal) Entities() []EntityID         { return []EntityID{c.A, c.B} }
func (c Tangent) Entities() []EntityID       { return []EntityID{c.Line, c.Curve} }

func (c Distance) Entities() []EntityID {
	if c.Line != "" {
		return []EntityID{c.Line}
	}
	return []EntityID{c.A.Entity, c.B.Entity}
}

func (Coincident) constraint()    {}
func (Horizontal) constraint()    {}
func (Vertical) constraint()      {}
func (Parallel) constraint()      {}
func (Perpendicular) constraint() {}
func (Distance) constraint()      {}
func (Radius) constraint()        {}
func (Fixed) constraint()         {}
func (Equal) constraint()         {}
func (Tangent) constraint()       {}

// Record is a constraint stored in a sketch.
type Record struct {
	ID         ConstraintID
	Constraint Constraint
	// Owner is set for implicit constraints generated by a macro entity.
	Owner EntityID
}

func (r Record) String() string {
	return fmt.Sprintf("%s(%s)", r.Constraint.Kind(), r.ID)
}
