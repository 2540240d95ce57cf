package document

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/tenon/pkg/caderr"
	"github.com/chazu/tenon/pkg/geom"
	"github.com/chazu/tenon/pkg/sketch"
)

const plate = `
name: plate
entities:
  - {id: r, type: rectangle, origin: [0, 0], width: 8, height: 3}
  - {id: hole, type: circle, center: {x: 4, y: 1.5}, radius: 0.5, construction: true}
  - {id: a, type: arc, center: [0, 0], radius: 2, start_angle: 0, end_angle: 1.5}
  - {id: p, type: point, at: [1, 1]}
  - {id: l, type: line, from: [0, 5], to: [3, 5]}
constraints:
  - {id: width, type: distance, refs: [r.bottom], value: 10}
  - {type: distance, refs: [r.right], value: 4}
  - {type: fixed, refs: [r.bottom.start], x: 0, y: 0}
  - {type: coincident, refs: [p, r.top.end]}
  - {type: radius, refs: [hole], value: 1}
features:
  - {type: extrude, distance: 5, profile: [r.bottom, r.right, r.top, r.left]}
  - {type: fillet, radius: 1, roles: [side-edge]}
  - {type: chamfer, size: 0.5, edges: ["f0/edge/end-edge/r.top"], strict: true}
`

func TestParse(t *testing.T) {
	d, err := Parse([]byte(plate))
	require.NoError(t, err)
	assert.Equal(t, "plate", d.Name)
	require.Len(t, d.Entities, 5)
	assert.Equal(t, &Vec2{X: 4, Y: 1.5}, d.Entities[1].Center)
	assert.True(t, d.Entities[1].Construction)
	require.Len(t, d.Features, 3)
	assert.Equal(t, geom.V3(0, 0, 1), d.Features[0].DirectionVec())
	refs, err := d.Features[2].Refs()
	require.NoError(t, err)
	assert.Equal(t, "f0/edge/end-edge/r.top", refs[0].String())
}

func TestSketchFromDocument(t *testing.T) {
	d, err := Parse([]byte(plate))
	require.NoError(t, err)
	sk, err := d.Sketch()
	require.NoError(t, err)

	// Rectangle sides plus circle, arc, point and line.
	assert.Equal(t, 8, sk.EntityCount())
	_, ok := sk.Entity(sketch.SideID("r", "top"))
	assert.True(t, ok)

	rec, ok := sk.Constraint("width")
	require.True(t, ok)
	assert.Equal(t, sketch.Distance{Line: "r.bottom", Value: 10}, rec.Constraint)

	var kinds []sketch.ConstraintKind
	for _, r := range sk.Constraints() {
		if r.Owner == "" {
			kinds = append(kinds, r.Constraint.Kind())
		}
	}
	want := []sketch.ConstraintKind{
		sketch.ConstraintDistance, sketch.ConstraintDistance, sketch.ConstraintFixed,
		sketch.ConstraintCoincident, sketch.ConstraintRadius,
	}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("constraint kinds (-want +got):\n%s", diff)
	}
}

func TestMalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", "entities: [unterminated"},
		{"empty", ""},
		{"no entities", "name: x"},
		{"unknown field", "entities: [{id: l, type: line, from: [0,0], to: [1,0], colour: red}]"},
		{"unknown entity type", "entities: [{id: s, type: spline}]"},
		{"missing type", "entities: [{id: s}]"},
		{"missing fields", "entities: [{id: c, type: circle, center: [0, 0]}]"},
		{"short vector", "entities: [{id: l, type: line, from: [0], to: [1, 0]}]"},
		{"bad vector key", "entities: [{id: p, type: point, at: {x: 1, w: 2}}]"},
		{"rectangle without id", "entities: [{type: rectangle, origin: [0,0], width: 1, height: 1}]"},
		{"unknown constraint", "entities: [{id: p, type: point, at: [0,0]}]\nconstraints: [{type: symmetric, refs: [p]}]"},
		{"distance without value", "entities: [{id: l, type: line, from: [0,0], to: [1,0]}]\nconstraints: [{type: distance, refs: [l]}]"},
		{"wrong ref count", "entities: [{id: l, type: line, from: [0,0], to: [1,0]}]\nconstraints: [{type: horizontal, refs: [l, l]}]"},
		{"fillet first", "entities: [{id: p, type: point, at: [0,0]}]\nfeatures: [{type: fillet, radius: 1, roles: [side-edge]}]"},
		{"second base", "features: [{type: box, x: 1, y: 1, z: 1}, {type: cylinder, radius: 1, height: 1}]"},
		{"bad edge ref", "features: [{type: box, x: 1, y: 1, z: 1}, {type: fillet, radius: 1, edges: [nonsense]}]"},
		{"fillet without edges", "features: [{type: box, x: 1, y: 1, z: 1}, {type: fillet, radius: 1}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, caderr.ErrInvalidSketchDocument), "err = %v", err)
		})
	}
}

func TestOutOfRangeValues(t *testing.T) {
	for _, doc := range []string{
		"entities: [{id: c, type: circle, center: [0, 0], radius: -1}]",
		"entities: [{id: l, type: line, from: [1, 1], to: [1, 1]}]",
		"entities: [{id: a, type: arc, center: [0, 0], radius: 1, start_angle: 0, end_angle: 0}]",
		"entities: [{id: r, type: rectangle, origin: [0, 0], width: 0, height: 1}]",
		"entities: [{id: l, type: line, from: [0, 0], to: [1, 0]}]\nconstraints: [{type: distance, refs: [l], value: -5}]",
		"entities: [{id: l, type: line, from: [0, 0], to: [1, 0]}]\nconstraints: [{type: distance, refs: [l.start, l.end], value: 0}]",
		"entities: [{id: c, type: circle, center: [0, 0], radius: 1}]\nconstraints: [{type: radius, refs: [c], value: 0}]",
		"entities: [{id: p, type: point, at: [0, 0]}]\nconstraints: [{type: fixed, refs: [p], x: .inf, y: 0}]",
	} {
		d, err := Parse([]byte(doc))
		require.NoError(t, err, doc)
		_, err = d.Sketch()
		assert.True(t, errors.Is(err, caderr.ErrInvalidSketchDocument), "%s: %v", doc, err)
	}
}

func TestConstraintErrorsKeepTheirKind(t *testing.T) {
	d, err := Parse([]byte("entities: [{id: l, type: line, from: [0,0], to: [1,0]}]\nconstraints: [{type: horizontal, refs: [ghost]}]"))
	require.NoError(t, err)
	_, err = d.Sketch()
	assert.True(t, errors.Is(err, caderr.ErrUnknownEntity), "err = %v", err)

	d, err = Parse([]byte("entities: [{id: p, type: point, at: [0,0]}]\nconstraints: [{type: radius, refs: [p], value: 1}]"))
	require.NoError(t, err)
	_, err = d.Sketch()
	assert.True(t, errors.Is(err, caderr.ErrUnsupportedConstraint), "err = %v", err)
}

func TestJSONInput(t *testing.T) {
	d, err := Parse([]byte(`{"entities": [{"id": "c", "type": "circle", "center": [1, 2], "radius": 3}],
		"features": [{"type": "revolve", "axis": {"origin": [5, 0, 0], "direction": [0, 1, 0]}, "angle": 90}]}`))
	require.NoError(t, err)
	f := d.Features[0]
	assert.InDelta(t, math.Pi/2, f.AngleRadians(), 1e-12)
	assert.Equal(t, geom.Axis{Origin: geom.V3(5, 0, 0), Direction: geom.V3(0, 1, 0)}, f.GeomAxis())
}

func TestMarshalRoundTrip(t *testing.T) {
	d, err := Parse([]byte(plate))
	require.NoError(t, err)
	out, err := Marshal(d)
	require.NoError(t, err)
	back, err := Parse(out)
	require.NoError(t, err, string(out))
	if diff := cmp.Diff(d, back); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(plate), 0o644))
	d, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "plate", d.Name)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
