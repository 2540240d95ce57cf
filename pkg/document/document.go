// Package document reads and writes part documents: a sketch (entities and
// constraints) plus an optional ordered list of features. Documents are
// YAML; JSON is accepted as the YAML subset it is.
//
//	name: bracket
//	entities:
//	  - {id: plate, type: rectangle, origin: [0, 0], width: 40, height: 20}
//	constraints:
//	  - {type: distance, refs: [plate.bottom], value: 40}
//	features:
//	  - {type: extrude, distance: 5}
//	  - {type: fillet, radius: 2, roles: [side-edge]}
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chazu/tenon/pkg/caderr"
)

// Document is one part: a sketch and the features applied to its profile.
type Document struct {
	Name        string       `yaml:"name,omitempty"`
	Entities    []Entity     `yaml:"entities"`
	Constraints []Constraint `yaml:"constraints,omitempty"`
	Features    []Feature    `yaml:"features,omitempty"`
}

// Entity is a sketch entity record. Which fields apply depends on Type.
type Entity struct {
	ID   string `yaml:"id,omitempty"`
	Type string `yaml:"type"`

	From   *Vec2 `yaml:"from,omitempty"`
	To     *Vec2 `yaml:"to,omitempty"`
	Center *Vec2 `yaml:"center,omitempty"`
	Origin *Vec2 `yaml:"origin,omitempty"`
	At     *Vec2 `yaml:"at,omitempty"`

	Radius     *float64 `yaml:"radius,omitempty"`
	StartAngle *float64 `yaml:"start_angle,omitempty"`
	EndAngle   *float64 `yaml:"end_angle,omitempty"`
	Width      *float64 `yaml:"width,omitempty"`
	Height     *float64 `yaml:"height,omitempty"`

	Construction bool `yaml:"construction,omitempty"`
}

// Constraint is a constraint record. Refs name entities ("l1") or points
// on them ("l1.start").
type Constraint struct {
	ID    string   `yaml:"id,omitempty"`
	Type  string   `yaml:"type"`
	Refs  []string `yaml:"refs"`
	Value *float64 `yaml:"value,omitempty"`
	X     *float64 `yaml:"x,omitempty"`
	Y     *float64 `yaml:"y,omitempty"`
}

// Feature is a feature record. The first feature must create a solid
// (extrude, revolve, box, cylinder); later ones treat its edges.
type Feature struct {
	Type string `yaml:"type"`

	// extrude
	Distance  *float64 `yaml:"distance,omitempty"`
	Direction *Vec3    `yaml:"direction,omitempty"`
	// revolve; Angle is in degrees and defaults to a full turn.
	Axis  *Axis    `yaml:"axis,omitempty"`
	Angle *float64 `yaml:"angle,omitempty"`
	// Profile restricts extrude and revolve to these entities.
	Profile []string `yaml:"profile,omitempty"`

	// fillet, chamfer
	Radius *float64 `yaml:"radius,omitempty"`
	Size   *float64 `yaml:"size,omitempty"`
	// Edges are StableRef strings; Roles select every live edge with one
	// of the given roles at the time the feature is applied.
	Edges  []string `yaml:"edges,omitempty"`
	Roles  []string `yaml:"roles,omitempty"`
	Strict bool     `yaml:"strict,omitempty"`

	// box, cylinder
	X      *float64 `yaml:"x,omitempty"`
	Y      *float64 `yaml:"y,omitempty"`
	Z      *float64 `yaml:"z,omitempty"`
	Height *float64 `yaml:"height,omitempty"`
}

// Axis is a revolve axis in document form.
type Axis struct {
	Origin    Vec3 `yaml:"origin"`
	Direction Vec3 `yaml:"direction"`
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Parse decodes a document and checks its structure. Unknown fields,
// unknown types and missing fields are InvalidSketchDocument errors.
func Parse(data []byte) (*Document, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads one document from r.
func Decode(r io.Reader) (*Document, error) {
	const op = "document.Parse"
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var d Document
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, caderr.New(caderr.KindInvalidSketchDocument, op, "empty document")
		}
		return nil, caderr.Wrap(caderr.KindInvalidSketchDocument, op, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// ParseFile reads and parses the document at path.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", path, err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Marshal encodes d as YAML.
func Marshal(d *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}

// ---------------------------------------------------------------------------
// Vectors
// ---------------------------------------------------------------------------

// Vec2 is written as [x, y] or {x: .., y: ..}.
type Vec2 struct{ X, Y float64 }

// Vec3 is written as [x, y, z] or {x: .., y: .., z: ..}.
type Vec3 struct{ X, Y, Z float64 }

func (v *Vec2) UnmarshalYAML(n *yaml.Node) error {
	vals, err := decodeVec(n, 2)
	if err != nil {
		return err
	}
	v.X, v.Y = vals[0], vals[1]
	return nil
}

func (v Vec2) MarshalYAML() (any, error) {
	return flowSeq(v.X, v.Y), nil
}

func (v *Vec3) UnmarshalYAML(n *yaml.Node) error {
	vals, err := decodeVec(n, 3)
	if err != nil {
		return err
	}
	v.X, v.Y, v.Z = vals[0], vals[1], vals[2]
	return nil
}

func (v Vec3) MarshalYAML() (any, error) {
	return flowSeq(v.X, v.Y, v.Z), nil
}

var axisNames = []string{"x", "y", "z"}

func decodeVec(n *yaml.Node, dim int) ([]float64, error) {
	switch n.Kind {
	case yaml.SequenceNode:
		var vals []float64
		if err := n.Decode(&vals); err != nil {
			return nil, err
		}
		if len(vals) != dim {
			return nil, fmt.Errorf("line %d: want %d coordinates, got %d", n.Line, dim, len(vals))
		}
		return vals, nil
	case yaml.MappingNode:
		var m map[string]float64
		if err := n.Decode(&m); err != nil {
			return nil, err
		}
		vals := make([]float64, dim)
		for i, name := range axisNames[:dim] {
			v, ok := m[name]
			if !ok {
				return nil, fmt.Errorf("line %d: missing coordinate %q", n.Line, name)
			}
			vals[i] = v
		}
		if len(m) != dim {
			return nil, fmt.Errorf("line %d: unexpected coordinates in %v", n.Line, m)
		}
		return vals, nil
	default:
		return nil, fmt.Errorf("line %d: expected a coordinate list", n.Line)
	}
}

func flowSeq(vals ...float64) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range vals {
		var c yaml.Node
		_ = c.Encode(v)
		n.Content = append(n.Content, &c)
	}
	return n
}
