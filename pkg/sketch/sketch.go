package sketch

import (
	"errors"
	"fmt"

	"github.com/chazu/tenon/pkg/caderr"
	"github.com/chazu/tenon/pkg/geom"
	"github.com/google/uuid"
)

// Epsilon is the length below which geometry counts as degenerate.
const Epsilon = 1e-9

// Sketch owns a set of entities and the constraints between them.
// A Sketch is not safe for concurrent mutation; it is owned by the caller
// driving the edit/solve cycle.
type Sketch struct {
	Name string

	entities []Entity
	index    map[EntityID]int
	offsets  []int // parameter offset of each entity
	nparams  int

	constraints []Record
	cindex      map[ConstraintID]int
	nextID      int
}

// New creates an empty sketch.
func New(name string) *Sketch {
	return &Sketch{
		Name:   name,
		index:  make(map[EntityID]int),
		cindex: make(map[ConstraintID]int),
	}
}

// ---------------------------------------------------------------------------
// Entities
// ---------------------------------------------------------------------------

// AddEntity validates and stores an entity. An empty id is replaced with a
// freshly minted UUID. The stored entity is a copy; later mutation of e has
// no effect on the sketch.
func (s *Sketch) AddEntity(e Entity) (EntityID, error) {
	const op = "sketch.AddEntity"
	if e == nil {
		return "", caderr.New(caderr.KindInvalidParameter, op, "nil entity")
	}
	e = e.clone()
	if e.EntityID() == "" {
		e.setID(EntityID(uuid.NewString()))
	}
	if _, dup := s.index[e.EntityID()]; dup {
		return "", caderr.New(caderr.KindInvalidParameter, op, "duplicate entity id %q", e.EntityID())
	}
	if err := e.validate(); err != nil {
		return "", withOp(err, op)
	}
	s.insert(e)
	return e.EntityID(), nil
}

func (s *Sketch) insert(e Entity) {
	s.index[e.EntityID()] = len(s.entities)
	s.entities = append(s.entities, e)
	s.offsets = append(s.offsets, s.nparams)
	s.nparams += e.DOF()
}

// AddRectangle expands a rectangle into four lines and eight implicit
// constraints (corner coincidences, horizontal bottom/top, vertical
// right/left). It returns the side ids in bottom, right, top, left order.
func (s *Sketch) AddRectangle(r Rectangle) ([4]EntityID, error) {
	const op = "sketch.AddRectangle"
	var ids [4]EntityID
	if r.ID == "" {
		r.ID = EntityID(uuid.NewString())
	}
	if err := r.validate(); err != nil {
		return ids, withOp(err, op)
	}
	lines := r.lines()
	for i, l := range lines {
		if _, dup := s.index[l.ID]; dup {
			return ids, caderr.New(caderr.KindInvalidParameter, op, "duplicate entity id %q", l.ID)
		}
		ids[i] = l.ID
	}
	for _, l := range lines {
		s.insert(l)
	}

	for i, l := range lines {
		next := lines[(i+1)%4]
		corner := ConstraintID(fmt.Sprintf("%s/corner-%s-%s", r.ID, RectangleSides[i], RectangleSides[(i+1)%4]))
		s.store(corner, Coincident{A: At(l.ID, RoleEnd), B: At(next.ID, RoleStart)}, r.ID)
	}
	s.store(ConstraintID(string(r.ID)+"/horizontal-bottom"), Horizontal{Line: lines[0].ID}, r.ID)
	s.store(ConstraintID(string(r.ID)+"/vertical-right"), Vertical{Line: lines[1].ID}, r.ID)
	s.store(ConstraintID(string(r.ID)+"/horizontal-top"), Horizontal{Line: lines[2].ID}, r.ID)
	s.store(ConstraintID(string(r.ID)+"/vertical-left"), Vertical{Line: lines[3].ID}, r.ID)
	return ids, nil
}

// Entity returns a copy of the entity with the given id.
func (s *Sketch) Entity(id EntityID) (Entity, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.entities[i].clone(), true
}

// Entities returns copies of all entities in insertion order.
func (s *Sketch) Entities() []Entity {
	out := make([]Entity, len(s.entities))
	for i, e := range s.entities {
		out[i] = e.clone()
	}
	return out
}

// EntityCount returns the number of stored entities.
func (s *Sketch) EntityCount() int {
	return len(s.entities)
}

// ---------------------------------------------------------------------------
// Constraints
// ---------------------------------------------------------------------------

// AddConstraint validates and stores a constraint under a generated id.
func (s *Sketch) AddConstraint(c Constraint) (ConstraintID, error) {
	return s.AddConstraintWithID("", c)
}

// AddConstraintWithID validates and stores a constraint. An empty id is
// replaced with the next free "c<N>" id.
func (s *Sketch) AddConstraintWithID(id ConstraintID, c Constraint) (ConstraintID, error) {
	const op = "sketch.AddConstraint"
	if c == nil {
		return "", caderr.New(caderr.KindInvalidParameter, op, "nil constraint")
	}
	if id != "" {
		if _, dup := s.cindex[id]; dup {
			return "", caderr.New(caderr.KindInvalidParameter, op, "duplicate constraint id %q", id)
		}
	}
	if err := s.checkConstraint(c); err != nil {
		return "", withOp(err, op)
	}
	if id == "" {
		id = s.freshID()
	}
	s.store(id, c, "")
	return id, nil
}

func (s *Sketch) store(id ConstraintID, c Constraint, owner EntityID) {
	s.cindex[id] = len(s.constraints)
	s.constraints = append(s.constraints, Record{ID: id, Constraint: c, Owner: owner})
}

func (s *Sketch) freshID() ConstraintID {
	for {
		s.nextID++
		id := ConstraintID(fmt.Sprintf("c%d", s.nextID))
		if _, taken := s.cindex[id]; !taken {
			return id
		}
	}
}

// Constraints returns all constraint records in insertion order.
func (s *Sketch) Constraints() []Record {
	out := make([]Record, len(s.constraints))
	copy(out, s.constraints)
	return out
}

// Constraint returns the record with the given id.
func (s *Sketch) Constraint(id ConstraintID) (Record, bool) {
	i, ok := s.cindex[id]
	if !ok {
		return Record{}, false
	}
	return s.constraints[i], true
}

// ConstraintsOn returns the ids of constraints referencing the entity.
func (s *Sketch) ConstraintsOn(id EntityID) []ConstraintID {
	var out []ConstraintID
	for _, r := range s.constraints {
		for _, e := range r.Constraint.Entities() {
			if e == id {
				out = append(out, r.ID)
				break
			}
		}
	}
	return out
}

// checkConstraint enforces reference existence and type/entity compatibility.
func (s *Sketch) checkConstraint(c Constraint) error {
	var missing []string
	for _, id := range c.Entities() {
		if _, ok := s.index[id]; !ok {
			missing = append(missing, string(id))
		}
	}
	if len(missing) > 0 {
		return caderr.New(caderr.KindUnknownEntity, "", "%s constraint references unknown entities", c.Kind()).WithRefs(missing...)
	}

	unsupported := func(format string, args ...any) error {
		ids := make([]string, 0, 2)
		for _, id := range c.Entities() {
			ids = append(ids, string(id))
		}
		return caderr.New(caderr.KindUnsupportedConstraint, "", format, args...).WithRefs(ids...)
	}

	switch c := c.(type) {
	case Coincident:
		if err := s.checkPointRef(c.A); err != nil {
			return err
		}
		if err := s.checkPointRef(c.B); err != nil {
			return err
		}
		if normalize(c.A) == normalize(c.B) {
			return unsupported("coincident constraint between a point and itself")
		}
	case Horizontal:
		if !s.isKind(c.Line, KindLine) {
			return unsupported("horizontal constraint requires a line, got %s", s.kindOf(c.Line))
		}
	case Vertical:
		if !s.isKind(c.Line, KindLine) {
			return unsupported("vertical constraint requires a line, got %s", s.kindOf(c.Line))
		}
	case Parallel:
		if !s.isKind(c.A, KindLine) || !s.isKind(c.B, KindLine) || c.A == c.B {
			return unsupported("parallel constraint requires two distinct lines")
		}
	case Perpendicular:
		if !s.isKind(c.A, KindLine) || !s.isKind(c.B, KindLine) || c.A == c.B {
			return unsupported("perpendicular constraint requires two distinct lines")
		}
	case Distance:
		if !geom.Finite(c.Value) || c.Value <= 0 {
			return caderr.New(caderr.KindInvalidParameter, "", "distance %g must be positive", c.Value)
		}
		if c.Line != "" {
			if !s.isKind(c.Line, KindLine) {
				return unsupported("distance constraint on a single entity requires a line, got %s", s.kindOf(c.Line))
			}
			return nil
		}
		if err := s.checkPointRef(c.A); err != nil {
			return err
		}
		if err := s.checkPointRef(c.B); err != nil {
			return err
		}
		if normalize(c.A) == normalize(c.B) {
			return unsupported("distance constraint between a point and itself")
		}
	case Radius:
		if !geom.Finite(c.Value) || c.Value <= 0 {
			return caderr.New(caderr.KindInvalidParameter, "", "radius %g must be positive", c.Value)
		}
		if !s.isKind(c.Curve, KindCircle) && !s.isKind(c.Curve, KindArc) {
			return unsupported("radius constraint requires a circle or arc, got %s", s.kindOf(c.Curve))
		}
	case Fixed:
		if !geom.Finite(c.At.X, c.At.Y) {
			return caderr.New(caderr.KindInvalidParameter, "", "fixed location is not finite")
		}
		return s.checkPointRef(c.Point)
	case Equal:
		if c.A == c.B {
			return unsupported("equal constraint requires two distinct entities")
		}
		lines := s.isKind(c.A, KindLine) && s.isKind(c.B, KindLine)
		curves := s.isCurve(c.A) && s.isCurve(c.B)
		if !lines && !curves {
			return unsupported("equal constraint requires two lines or two circles/arcs")
		}
	case Tangent:
		if !s.isKind(c.Line, KindLine) || !s.isCurve(c.Curve) {
			return unsupported("tangent constraint requires a line and a circle or arc")
		}
	default:
		return caderr.New(caderr.KindUnsupportedConstraint, "", "unknown constraint type %T", c)
	}
	return nil
}

func (s *Sketch) checkPointRef(r PointRef) error {
	kind := s.kindOf(r.Entity)
	role := normalize(r).Role
	ok := false
	switch kind {
	case KindPoint:
		ok = role == RolePoint
	case KindLine:
		ok = role == RoleStart || role == RoleEnd
	case KindCircle:
		ok = role == RoleCenter
	case KindArc:
		ok = role == RoleCenter || role == RoleStart || role == RoleEnd
	}
	if !ok {
		return caderr.New(caderr.KindUnsupportedConstraint, "", "%s has no %q point", kind, role).WithRefs(string(r.Entity))
	}
	return nil
}

func normalize(r PointRef) PointRef {
	if r.Role == "" {
		r.Role = RolePoint
	}
	return r
}

func (s *Sketch) kindOf(id EntityID) EntityKind {
	return s.entities[s.index[id]].Kind()
}

func (s *Sketch) isKind(id EntityID, k EntityKind) bool {
	i, ok := s.index[id]
	return ok && s.entities[i].Kind() == k
}

func (s *Sketch) isCurve(id EntityID) bool {
	return s.isKind(id, KindCircle) || s.isKind(id, KindArc)
}

// ---------------------------------------------------------------------------
// Degrees of freedom and parameters
// ---------------------------------------------------------------------------

// DegreesOfFreedom returns the sum of entity parameters minus the sum of
// constraint equations. The count is advisory: redundant constraints make
// the true rank lower. The solver reports the rank-based figure.
func (s *Sketch) DegreesOfFreedom() int {
	eqs := 0
	for _, r := range s.constraints {
		eqs += r.Constraint.Equations()
	}
	return s.nparams - eqs
}

// ParamCount returns the total number of entity parameters.
func (s *Sketch) ParamCount() int {
	return s.nparams
}

// Offset returns the index of the entity's first parameter in the vector
// returned by Parameters.
func (s *Sketch) Offset(id EntityID) (int, bool) {
	i, ok := s.index[id]
	if !ok {
		return 0, false
	}
	return s.offsets[i], true
}

// Parameters returns every entity parameter, concatenated in entity order.
func (s *Sketch) Parameters() []float64 {
	out := make([]float64, 0, s.nparams)
	for _, e := range s.entities {
		out = append(out, e.Params()...)
	}
	return out
}

// SetParameters overwrites every entity parameter. It does not validate the
// resulting geometry; the solver checks degeneracy before writing back.
func (s *Sketch) SetParameters(p []float64) error {
	if len(p) != s.nparams {
		return caderr.New(caderr.KindInvalidParameter, "sketch.SetParameters", "got %d parameters, want %d", len(p), s.nparams)
	}
	for i, e := range s.entities {
		off := s.offsets[i]
		e.setParams(p[off : off+e.DOF()])
	}
	return nil
}

// Point resolves a point reference against the current parameters.
func (s *Sketch) Point(r PointRef) (geom.Point2D, error) {
	i, ok := s.index[r.Entity]
	if !ok {
		return geom.Point2D{}, caderr.New(caderr.KindUnknownEntity, "sketch.Point", "no entity %q", r.Entity).WithRefs(string(r.Entity))
	}
	off := s.offsets[i]
	return PointAt(s.entities[i].Kind(), normalize(r).Role, s.Parameters()[off:])
}

// PointAt evaluates a role on an entity of the given kind whose parameters
// start at p[0].
func PointAt(kind EntityKind, role PointRole, p []float64) (geom.Point2D, error) {
	switch {
	case kind == KindPoint && role == RolePoint:
		return geom.Pt(p[0], p[1]), nil
	case kind == KindLine && role == RoleStart:
		return geom.Pt(p[0], p[1]), nil
	case kind == KindLine && role == RoleEnd:
		return geom.Pt(p[2], p[3]), nil
	case (kind == KindCircle || kind == KindArc) && role == RoleCenter:
		return geom.Pt(p[0], p[1]), nil
	case kind == KindArc && role == RoleStart:
		return geom.Polar(geom.Pt(p[0], p[1]), p[2], p[3]), nil
	case kind == KindArc && role == RoleEnd:
		return geom.Polar(geom.Pt(p[0], p[1]), p[2], p[4]), nil
	}
	return geom.Point2D{}, caderr.New(caderr.KindUnsupportedConstraint, "sketch.PointAt", "%s has no %q point", kind, role)
}

// Validate re-checks every entity. Solving can move parameters into
// degenerate territory, so callers re-validate before building profiles.
func (s *Sketch) Validate() error {
	var errs []error
	for _, e := range s.entities {
		if err := e.validate(); err != nil {
			errs = append(errs, withOp(err, "sketch.Validate"))
		}
	}
	return errors.Join(errs...)
}

// InvalidEntities returns the ids of entities whose current parameters fail
// validation, in insertion order.
func (s *Sketch) InvalidEntities() []EntityID {
	var out []EntityID
	for _, e := range s.entities {
		if e.validate() != nil {
			out = append(out, e.EntityID())
		}
	}
	return out
}

// Clone returns a deep copy.
func (s *Sketch) Clone() *Sketch {
	c := New(s.Name)
	for _, e := range s.entities {
		c.insert(e.clone())
	}
	for _, r := range s.constraints {
		c.store(r.ID, r.Constraint, r.Owner)
	}
	c.nextID = s.nextID
	return c
}

func withOp(err error, op string) error {
	var ce *caderr.Error
	if errors.As(err, &ce) && ce.Op == "" {
		ce.Op = op
	}
	return err
}
