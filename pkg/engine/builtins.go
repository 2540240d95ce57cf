package engine

import (
	"fmt"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/tenon/pkg/document"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms tenon Lisp source code before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: side-edge -> side_edge
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpPoint is a sketch-plane point built by (pt x y).
type sexpPoint struct {
	v document.Vec2
}

func (p *sexpPoint) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(pt %g %g)", p.v.X, p.v.Y)
}
func (p *sexpPoint) Type() *zygo.RegisteredType { return nil }

// sexpVec3 is built by (vec3 x y z).
type sexpVec3 struct {
	v document.Vec3
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.v.X, v.v.Y, v.v.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpAxis is built by (axis origin direction).
type sexpAxis struct {
	a document.Axis
}

func (a *sexpAxis) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(axis (vec3 %g %g %g) (vec3 %g %g %g))",
		a.a.Origin.X, a.a.Origin.Y, a.a.Origin.Z, a.a.Direction.X, a.a.Direction.Y, a.a.Direction.Z)
}
func (a *sexpAxis) Type() *zygo.RegisteredType { return nil }

// sexpEntity wraps a sketch entity record until defpart collects it.
type sexpEntity struct {
	e document.Entity
}

func (e *sexpEntity) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s %q)", e.e.Type, e.e.ID)
}
func (e *sexpEntity) Type() *zygo.RegisteredType { return nil }

// sexpConstraint wraps a constraint record.
type sexpConstraint struct {
	c document.Constraint
}

func (c *sexpConstraint) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s %s)", c.c.Type, strings.Join(c.c.Refs, " "))
}
func (c *sexpConstraint) Type() *zygo.RegisteredType { return nil }

// sexpFeature wraps a feature record.
type sexpFeature struct {
	f document.Feature
}

func (f *sexpFeature) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s ...)", f.f.Type)
}
func (f *sexpFeature) Type() *zygo.RegisteredType { return nil }

// sexpPart is returned by defpart.
type sexpPart struct {
	doc *document.Document
}

func (p *sexpPart) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(part %q)", p.doc.Name)
}
func (p *sexpPart) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			// Trailing keyword: a flag.
			result.kw[name] = &zygo.SexpBool{Val: true}
		}
	}
	return result
}

// float reads an optional numeric keyword argument.
func (a kwArgs) float(name string) (*float64, error) {
	v, ok := a.kw[name]
	if !ok {
		return nil, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &f, nil
}

func (a kwArgs) point(name string) (*document.Vec2, error) {
	v, ok := a.kw[name]
	if !ok {
		return nil, nil
	}
	p, ok := v.(*sexpPoint)
	if !ok {
		return nil, fmt.Errorf("%s: expected (pt x y), got %s", name, v.SexpString(nil))
	}
	pv := p.v
	return &pv, nil
}

func (a kwArgs) flag(name string) (bool, error) {
	v, ok := a.kw[name]
	if !ok {
		return false, nil
	}
	b, ok := v.(*zygo.SexpBool)
	if !ok {
		return false, fmt.Errorf("%s: expected true or false, got %s", name, v.SexpString(nil))
	}
	return b.Val, nil
}

func (a kwArgs) strings(name string) ([]string, error) {
	v, ok := a.kw[name]
	if !ok {
		return nil, nil
	}
	items, err := sexpListToSlice(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, err := toString(it)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok && !strings.HasPrefix(str.S, kwPrefix) {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

func toVec3(s zygo.Sexp) (document.Vec3, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.v, nil
	}
	return document.Vec3{}, fmt.Errorf("expected (vec3 x y z), got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// idArg returns the leading positional string, the entity id.
func idArg(pa kwArgs) string {
	if len(pa.positional) == 0 {
		return ""
	}
	id, _ := toString(pa.positional[0])
	return id
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

type builtin = func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error)

// entityForms maps entity builtins onto document entity types.
var entityForms = map[string]string{
	"line":   document.TypeLine,
	"circle": document.TypeCircle,
	"arc":    document.TypeArc,
	"rect":   document.TypeRectangle,
	"point":  document.TypePoint,
}

// constraintForms are the constraint builtins. Positional strings are refs,
// a positional number is the value and a positional (pt x y) is the
// location of a fixed constraint.
var constraintForms = []string{
	"coincident", "horizontal", "vertical", "parallel", "perpendicular",
	"distance", "radius", "fixed", "equal", "tangent",
}

// registerBuiltins installs the tenon DSL into a zygomys environment.
// Every defpart form appends its document to parts.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, parts *[]*document.Document) {

	// -----------------------------------------------------------------------
	// (pt 1 2) (vec3 0 0 1) (axis (vec3 0 0 0) (vec3 0 1 0))
	// -----------------------------------------------------------------------
	env.AddFunction("pt", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		vals, err := numbers(name, args, 2)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpPoint{v: document.Vec2{X: vals[0], Y: vals[1]}}, nil
	})
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		vals, err := numbers(name, args, 3)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpVec3{v: document.Vec3{X: vals[0], Y: vals[1], Z: vals[2]}}, nil
	})
	env.AddFunction("axis", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("axis requires an origin and a direction")
		}
		origin, err := toVec3(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("axis: origin: %w", err)
		}
		dir, err := toVec3(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("axis: direction: %w", err)
		}
		return &sexpAxis{a: document.Axis{Origin: origin, Direction: dir}}, nil
	})

	// -----------------------------------------------------------------------
	// (line "l1" :from (pt 0 0) :to (pt 10 0))
	// (circle "c" :center (pt 0 0) :radius 3 :construction true)
	// (arc "a" :center (pt 0 0) :radius 2 :start-angle 0 :end-angle 1.57)
	// (rect "r" :origin (pt 0 0) :width 10 :height 5)
	// (point "p" :at (pt 1 1))
	// -----------------------------------------------------------------------
	for form, typ := range entityForms {
		env.AddFunction(form, entityBuiltin(typ))
	}

	// -----------------------------------------------------------------------
	// (distance "r.bottom" 40) (fixed "r.bottom.start" (pt 0 0) :id "pin")
	// -----------------------------------------------------------------------
	for _, form := range constraintForms {
		env.AddFunction(form, constraintBuiltin(form))
	}

	// -----------------------------------------------------------------------
	// (extrude 5 :direction (vec3 0 0 1) :profile (list "a" "b"))
	// -----------------------------------------------------------------------
	env.AddFunction("extrude", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("extrude requires a distance")
		}
		d, err := toFloat64(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("extrude: distance: %w", err)
		}
		f := document.Feature{Type: document.FeatureExtrude, Distance: &d}
		if v, ok := pa.kw["direction"]; ok {
			dir, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("extrude: direction: %w", err)
			}
			f.Direction = &dir
		}
		if f.Profile, err = pa.strings("profile"); err != nil {
			return zygo.SexpNull, fmt.Errorf("extrude: %w", err)
		}
		return &sexpFeature{f: f}, nil
	})

	// -----------------------------------------------------------------------
	// (revolve :axis (axis ...) :angle 180)   ; degrees, full turn default
	// -----------------------------------------------------------------------
	env.AddFunction("revolve", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		v, ok := pa.kw["axis"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("revolve requires :axis")
		}
		ax, ok := v.(*sexpAxis)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("revolve: axis: expected (axis origin direction), got %s", v.SexpString(nil))
		}
		f := document.Feature{Type: document.FeatureRevolve, Axis: &ax.a}
		var err error
		if f.Angle, err = pa.float("angle"); err != nil {
			return zygo.SexpNull, fmt.Errorf("revolve: %w", err)
		}
		if f.Profile, err = pa.strings("profile"); err != nil {
			return zygo.SexpNull, fmt.Errorf("revolve: %w", err)
		}
		return &sexpFeature{f: f}, nil
	})

	// -----------------------------------------------------------------------
	// (fillet 2 :roles (list "side-edge") :strict true)
	// (chamfer 0.5 :edges (list "f0/edge/end-edge/r.top"))
	// -----------------------------------------------------------------------
	env.AddFunction("fillet", treatmentBuiltin(document.FeatureFillet))
	env.AddFunction("chamfer", treatmentBuiltin(document.FeatureChamfer))

	// -----------------------------------------------------------------------
	// (box 10 10 5) (cylinder 2 5)
	// -----------------------------------------------------------------------
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		vals, err := numbers(name, args, 3)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpFeature{f: document.Feature{Type: document.FeatureBox, X: &vals[0], Y: &vals[1], Z: &vals[2]}}, nil
	})
	env.AddFunction("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		vals, err := numbers(name, args, 2)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpFeature{f: document.Feature{Type: document.FeatureCylinder, Radius: &vals[0], Height: &vals[1]}}, nil
	})

	// -----------------------------------------------------------------------
	// (defpart "bracket" (rect ...) (distance ...) (extrude 5) ...)
	//
	// Items may also be lists of items, so forms built in loops can be
	// passed directly.
	// -----------------------------------------------------------------------
	env.AddFunction("defpart", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 2 {
			return zygo.SexpNull, fmt.Errorf("defpart requires a name and at least one item")
		}
		partName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defpart: name: %w", err)
		}
		for _, p := range *parts {
			if p.Name == partName {
				return zygo.SexpNull, fmt.Errorf("defpart: part %q is already defined", partName)
			}
		}

		doc := &document.Document{Name: partName}
		if err := collect(doc, args[1:]); err != nil {
			return zygo.SexpNull, fmt.Errorf("defpart %q: %w", partName, err)
		}
		if err := doc.Validate(); err != nil {
			return zygo.SexpNull, fmt.Errorf("defpart %q: %w", partName, err)
		}
		*parts = append(*parts, doc)
		return &sexpPart{doc: doc}, nil
	})
}

func numbers(form string, args []zygo.Sexp, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("%s requires exactly %d arguments, got %d", form, n, len(args))
	}
	vals := make([]float64, n)
	for i, a := range args {
		f, err := toFloat64(a)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", form, i+1, err)
		}
		vals[i] = f
	}
	return vals, nil
}

func entityBuiltin(typ string) builtin {
	return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		e := document.Entity{ID: idArg(pa), Type: typ}
		var err error
		points := []struct {
			kw  string
			dst **document.Vec2
		}{{"from", &e.From}, {"to", &e.To}, {"center", &e.Center}, {"origin", &e.Origin}, {"at", &e.At}}
		for _, p := range points {
			if *p.dst, err = pa.point(p.kw); err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", name, err)
			}
		}
		nums := []struct {
			kw  string
			dst **float64
		}{{"radius", &e.Radius}, {"start-angle", &e.StartAngle}, {"end-angle", &e.EndAngle}, {"width", &e.Width}, {"height", &e.Height}}
		for _, n := range nums {
			if *n.dst, err = pa.float(n.kw); err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", name, err)
			}
		}
		if e.Construction, err = pa.flag("construction"); err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", name, err)
		}
		return &sexpEntity{e: e}, nil
	}
}

func constraintBuiltin(typ string) builtin {
	return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		c := document.Constraint{Type: typ}
		if v, ok := pa.kw["id"]; ok {
			id, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: id: %w", name, err)
			}
			c.ID = id
		}
		for i, a := range pa.positional {
			switch v := a.(type) {
			case *zygo.SexpStr:
				c.Refs = append(c.Refs, v.S)
			case *zygo.SexpInt, *zygo.SexpFloat:
				f, _ := toFloat64(v)
				c.Value = &f
			case *sexpPoint:
				x, y := v.v.X, v.v.Y
				c.X, c.Y = &x, &y
			default:
				return zygo.SexpNull, fmt.Errorf("%s: argument %d: unexpected %s", name, i+1, a.SexpString(nil))
			}
		}
		return &sexpConstraint{c: c}, nil
	}
}

func treatmentBuiltin(typ string) builtin {
	return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("%s requires a size", name)
		}
		size, err := toFloat64(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: size: %w", name, err)
		}
		f := document.Feature{Type: typ}
		if typ == document.FeatureFillet {
			f.Radius = &size
		} else {
			f.Size = &size
		}
		if f.Edges, err = pa.strings("edges"); err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", name, err)
		}
		if f.Roles, err = pa.strings("roles"); err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", name, err)
		}
		if f.Strict, err = pa.flag("strict"); err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", name, err)
		}
		return &sexpFeature{f: f}, nil
	}
}

// collect sorts defpart items into the document.
func collect(doc *document.Document, items []zygo.Sexp) error {
	for i, it := range items {
		switch v := it.(type) {
		case *sexpEntity:
			doc.Entities = append(doc.Entities, v.e)
		case *sexpConstraint:
			doc.Constraints = append(doc.Constraints, v.c)
		case *sexpFeature:
			doc.Features = append(doc.Features, v.f)
		case *zygo.SexpPair, *zygo.SexpArray:
			nested, err := sexpListToSlice(v)
			if err != nil {
				return err
			}
			if err := collect(doc, nested); err != nil {
				return err
			}
		default:
			if it == zygo.SexpNull {
				continue
			}
			return fmt.Errorf("item %d: expected an entity, constraint or feature, got %s", i+1, it.SexpString(nil))
		}
	}
	return nil
}
