package kernel

import (
	"testing"

	"github.com/chazu/tenon/pkg/geom"
)

// --- Mesh helper method tests ---

func TestMeshCounts(t *testing.T) {
	tests := []struct {
		name      string
		vertices  []float32
		indices   []uint32
		wantVerts int
		wantTris  int
	}{
		{"empty", nil, nil, 0, 0},
		{"one triangle", []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}, []uint32{0, 1, 2}, 3, 1},
		{"quad", []float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0}, []uint32{0, 1, 2, 2, 3, 0}, 4, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Mesh{Vertices: tt.vertices, Indices: tt.indices}
			if got := m.VertexCount(); got != tt.wantVerts {
				t.Errorf("VertexCount() = %d, want %d", got, tt.wantVerts)
			}
			if got := m.TriangleCount(); got != tt.wantTris {
				t.Errorf("TriangleCount() = %d, want %d", got, tt.wantTris)
			}
			if got := m.IsEmpty(); got != (tt.wantVerts == 0) {
				t.Errorf("IsEmpty() = %v", got)
			}
		})
	}
}

func TestMeshBounds(t *testing.T) {
	m := &Mesh{Vertices: []float32{1, -2, 3, -4, 5, 0, 2, 2, 9}}
	min, max := m.Bounds()
	if min != [3]float32{-4, -2, 0} {
		t.Errorf("min = %v", min)
	}
	if max != [3]float32{2, 5, 9} {
		t.Errorf("max = %v", max)
	}

	min, max = (&Mesh{}).Bounds()
	if min != ([3]float32{}) || max != ([3]float32{}) {
		t.Errorf("empty mesh bounds = %v %v", min, max)
	}
}

func TestTopoKindString(t *testing.T) {
	if TopoEdge.String() != "edge" || TopoFace.String() != "face" {
		t.Errorf("got %q %q", TopoEdge, TopoFace)
	}
	if got := TopoKind(9).String(); got != "TopoKind(9)" {
		t.Errorf("got %q", got)
	}
}

// --- Compile-time interface check with a stub kernel ---

type stubEdge struct{ c Curve }

func (e stubEdge) Curve() Curve { return e.c }

type stubWire struct{ edges []Edge }

func (w stubWire) Edges() []Edge { return w.edges }
func (w stubWire) Closed() bool  { return len(w.edges) > 0 }

type stubFace struct{ w Wire }

func (f stubFace) Wire() Wire { return f.w }

type stubShape struct{ max geom.Vec3 }

func (s stubShape) BoundingBox() (min, max geom.Vec3) { return geom.Vec3{}, s.max }

// stubKernel proves the interface is satisfiable. Every sweep produces
// one face and no history.
type stubKernel struct{}

func (stubKernel) MakeEdge(c Curve) (Edge, error)      { return stubEdge{c}, nil }
func (stubKernel) MakeWire(edges []Edge) (Wire, error) { return stubWire{edges}, nil }
func (stubKernel) MakeFace(w Wire) (Face, error)       { return stubFace{w}, nil }

func (stubKernel) Prism(_ Face, vec geom.Vec3) (Shape, History, error) {
	return stubShape{max: vec}, History{}, nil
}

func (stubKernel) Revolve(Face, geom.Axis, float64) (Shape, History, error) {
	return stubShape{}, History{}, nil
}

func (stubKernel) Fillet(s Shape, _ float64, _ []Handle) (Shape, History, error) {
	return s, History{}, nil
}

func (stubKernel) Chamfer(s Shape, _ float64, _ []Handle) (Shape, History, error) {
	return s, History{}, nil
}

func (stubKernel) Edges(Shape) []Element { return nil }
func (stubKernel) Faces(Shape) []Element { return nil }

func (stubKernel) ToMesh(Shape, float64) (*Mesh, error) { return &Mesh{}, nil }

var _ Kernel = stubKernel{}

func TestStubKernelPrism(t *testing.T) {
	var k Kernel = stubKernel{}
	e, err := k.MakeEdge(Curve{Kind: CurveLine, Start: geom.Pt(0, 0), End: geom.Pt(1, 0), Tag: "l1"})
	if err != nil {
		t.Fatalf("MakeEdge() error = %v", err)
	}
	w, _ := k.MakeWire([]Edge{e})
	f, _ := k.MakeFace(w)
	s, _, err := k.Prism(f, geom.V3(0, 0, 5))
	if err != nil {
		t.Fatalf("Prism() error = %v", err)
	}
	_, max := s.BoundingBox()
	if max != geom.V3(0, 0, 5) {
		t.Errorf("max = %v", max)
	}
	if got := f.Wire().Edges()[0].Curve().Tag; got != "l1" {
		t.Errorf("tag = %q", got)
	}
}
