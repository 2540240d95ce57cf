package sdfx

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/chazu/tenon/pkg/geom"
	"github.com/chazu/tenon/pkg/kernel"
)

func polygonFace(t *testing.T, k *SdfxKernel, pts ...geom.Point2D) kernel.Face {
	t.Helper()
	var edges []kernel.Edge
	for i, p := range pts {
		q := pts[(i+1)%len(pts)]
		e, err := k.MakeEdge(kernel.Curve{Kind: kernel.CurveLine, Start: p, End: q, Tag: string(rune('a' + i))})
		if err != nil {
			t.Fatalf("MakeEdge: %v", err)
		}
		edges = append(edges, e)
	}
	w, err := k.MakeWire(edges)
	if err != nil {
		t.Fatalf("MakeWire: %v", err)
	}
	f, err := k.MakeFace(w)
	if err != nil {
		t.Fatalf("MakeFace: %v", err)
	}
	return f
}

func square(t *testing.T, k *SdfxKernel, side float64) kernel.Face {
	return polygonFace(t, k, geom.Pt(0, 0), geom.Pt(side, 0), geom.Pt(side, side), geom.Pt(0, side))
}

func circleFace(t *testing.T, k *SdfxKernel, r float64) kernel.Face {
	t.Helper()
	e, err := k.MakeEdge(kernel.Curve{Kind: kernel.CurveCircle, Start: geom.Pt(r, 0), End: geom.Pt(r, 0), Radius: r, Sweep: 2 * math.Pi, Tag: "c"})
	if err != nil {
		t.Fatalf("MakeEdge: %v", err)
	}
	w, err := k.MakeWire([]kernel.Edge{e})
	if err != nil {
		t.Fatalf("MakeWire: %v", err)
	}
	f, err := k.MakeFace(w)
	if err != nil {
		t.Fatalf("MakeFace: %v", err)
	}
	return f
}

func generatedByRole(h kernel.History, role string) []kernel.Handle {
	var out []kernel.Handle
	for _, g := range h.Generated {
		if g.Role == role {
			out = append(out, g.Handle)
		}
	}
	return out
}

func countTopology(t *testing.T, k *SdfxKernel, s kernel.Shape, wantFaces, wantEdges int) {
	t.Helper()
	if got := len(k.Faces(s)); got != wantFaces {
		t.Errorf("faces = %d, want %d", got, wantFaces)
	}
	if got := len(k.Edges(s)); got != wantEdges {
		t.Errorf("edges = %d, want %d", got, wantEdges)
	}
}

func TestPrismBoxTopology(t *testing.T) {
	k := New()
	s, h, err := k.Prism(square(t, k, 10), geom.V3(0, 0, 5))
	if err != nil {
		t.Fatalf("Prism: %v", err)
	}
	countTopology(t, k, s, 6, 12)

	roles := map[string]int{}
	for _, g := range h.Generated {
		roles[g.Role]++
	}
	want := map[string]int{"side": 4, "cap-start": 1, "cap-end": 1, "start-edge": 4, "end-edge": 4, "side-edge": 4}
	for role, n := range want {
		if roles[role] != n {
			t.Errorf("role %q generated %d times, want %d", role, roles[role], n)
		}
	}
	if len(h.Modified) != 0 || len(h.Deleted) != 0 {
		t.Errorf("sweep should only generate, got %d modified %d deleted", len(h.Modified), len(h.Deleted))
	}

	for _, e := range k.Edges(s) {
		if len(e.Adjacent) != 2 {
			t.Errorf("edge %d has %d faces", e.Handle, len(e.Adjacent))
		}
	}
	for _, f := range k.Faces(s) {
		if len(f.Adjacent) != 4 {
			t.Errorf("face %d has %d edges", f.Handle, len(f.Adjacent))
		}
	}

	min, max := s.BoundingBox()
	if min.Z > 0.01 || max.Z < 4.99 || max.X < 9.99 {
		t.Errorf("bounding box %v %v", min, max)
	}
}

func TestPrismSideEdgeTags(t *testing.T) {
	k := New()
	_, h, err := k.Prism(square(t, k, 10), geom.V3(0, 0, 5))
	if err != nil {
		t.Fatalf("Prism: %v", err)
	}
	for _, g := range h.Generated {
		if g.Role == "side-edge" && len(g.Tags) != 2 {
			t.Errorf("side edge tags = %v", g.Tags)
		}
		if g.Role == "side" && len(g.Tags) != 1 {
			t.Errorf("side face tags = %v", g.Tags)
		}
	}
}

func TestPrismCylinderTopology(t *testing.T) {
	k := New()
	s, _, err := k.Prism(circleFace(t, k, 3), geom.V3(0, 0, -8))
	if err != nil {
		t.Fatalf("Prism: %v", err)
	}
	countTopology(t, k, s, 3, 3)
	min, _ := s.BoundingBox()
	if min.Z > -7.99 {
		t.Errorf("downward prism min z = %g", min.Z)
	}
}

func TestPrismRejectsInPlaneVector(t *testing.T) {
	k := New()
	_, _, err := k.Prism(square(t, k, 1), geom.V3(1, 0, 0))
	if !errors.Is(err, kernel.ErrInvalidGeometry) {
		t.Fatalf("err = %v, want ErrInvalidGeometry", err)
	}
}

func TestObliquePrism(t *testing.T) {
	k := New()
	s, _, err := k.Prism(square(t, k, 2), geom.V3(3, 0, 4))
	if err != nil {
		t.Fatalf("Prism: %v", err)
	}
	countTopology(t, k, s, 6, 12)
	_, max := s.BoundingBox()
	if max.X < 4.99 {
		t.Errorf("oblique prism max x = %g", max.X)
	}
}

func TestRoundedBox(t *testing.T) {
	k := New()
	box, h, err := k.Prism(square(t, k, 10), geom.V3(0, 0, 6))
	if err != nil {
		t.Fatalf("Prism: %v", err)
	}
	vertical := generatedByRole(h, "side-edge")

	rounded, fh, err := k.Fillet(box, 2, vertical)
	if err != nil {
		t.Fatalf("Fillet: %v", err)
	}
	countTopology(t, k, rounded, 10, 24)
	if len(fh.Deleted) != 4 {
		t.Errorf("deleted = %d, want 4", len(fh.Deleted))
	}
	if len(fh.Modified) != 6+12-4 {
		t.Errorf("modified = %d, want 14", len(fh.Modified))
	}
	if n := len(generatedByRole(fh, "fillet")); n != 4 {
		t.Errorf("fillet faces = %d", n)
	}
	if n := len(generatedByRole(fh, "fillet-end")); n != 8 {
		t.Errorf("fillet end edges = %d", n)
	}

	// Input is untouched.
	countTopology(t, k, box, 6, 12)
}

func TestTreatTangentEdge(t *testing.T) {
	k := New()
	box, h, err := k.Prism(square(t, k, 10), geom.V3(0, 0, 20))
	if err != nil {
		t.Fatalf("Prism: %v", err)
	}
	rounded, fh, err := k.Fillet(box, 2, generatedByRole(h, "side-edge"))
	if err != nil {
		t.Fatalf("Fillet: %v", err)
	}
	tangent := generatedByRole(fh, "fillet-edge")
	if len(tangent) != 8 {
		t.Fatalf("fillet edges = %d, want 8", len(tangent))
	}
	if _, _, err := k.Fillet(rounded, 1, tangent[:1]); !errors.Is(err, kernel.ErrInvalidGeometry) {
		t.Errorf("fillet of a tangent edge err = %v, want ErrInvalidGeometry", err)
	}
	if _, _, err := k.Chamfer(rounded, 1, tangent[:1]); !errors.Is(err, kernel.ErrInvalidGeometry) {
		t.Errorf("chamfer of a tangent edge err = %v, want ErrInvalidGeometry", err)
	}
	countTopology(t, k, rounded, 10, 24)
}

func TestFilletTooLarge(t *testing.T) {
	k := New()
	box, h, err := k.Prism(square(t, k, 10), geom.V3(0, 0, 30))
	if err != nil {
		t.Fatalf("Prism: %v", err)
	}
	for _, r := range []float64{5, 7} {
		if _, _, err := k.Fillet(box, r, generatedByRole(h, "side-edge")); !errors.Is(err, kernel.ErrInvalidGeometry) {
			t.Errorf("Fillet(r=%g) err = %v, want ErrInvalidGeometry", r, err)
		}
	}
	// A single edge only eats into each adjacent edge from one end.
	if _, _, err := k.Fillet(box, 7, generatedByRole(h, "side-edge")[:1]); err != nil {
		t.Errorf("single edge fillet: %v", err)
	}
}

func TestHandlesAreReminted(t *testing.T) {
	k := New()
	box, h, err := k.Prism(square(t, k, 10), geom.V3(0, 0, 6))
	if err != nil {
		t.Fatalf("Prism: %v", err)
	}
	out, fh, err := k.Chamfer(box, 1, generatedByRole(h, "side-edge")[:1])
	if err != nil {
		t.Fatalf("Chamfer: %v", err)
	}
	old := map[kernel.Handle]bool{}
	for _, e := range k.Edges(box) {
		old[e.Handle] = true
	}
	for _, f := range k.Faces(box) {
		old[f.Handle] = true
	}
	for _, e := range k.Edges(out) {
		if old[e.Handle] {
			t.Errorf("edge handle %d survived", e.Handle)
		}
	}
	for from, to := range fh.Modified {
		if !old[from] || old[to] {
			t.Errorf("bad modification %d -> %d", from, to)
		}
	}
}

func TestFilletRejectsEdgesSharingVertex(t *testing.T) {
	k := New()
	box, h, err := k.Prism(square(t, k, 10), geom.V3(0, 0, 6))
	if err != nil {
		t.Fatalf("Prism: %v", err)
	}
	sel := append(generatedByRole(h, "side-edge"), generatedByRole(h, "start-edge")...)
	if _, _, err := k.Fillet(box, 1, sel); !errors.Is(err, kernel.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

func TestFilletCylinderRim(t *testing.T) {
	k := New()
	cyl, h, err := k.Prism(circleFace(t, k, 3), geom.V3(0, 0, 8))
	if err != nil {
		t.Fatalf("Prism: %v", err)
	}
	rims := append(generatedByRole(h, "start-edge"), generatedByRole(h, "end-edge")...)
	out, _, err := k.Fillet(cyl, 1, rims)
	if err != nil {
		t.Fatalf("Fillet: %v", err)
	}
	// Two fillet faces, four tangent circles replacing two rims.
	countTopology(t, k, out, 5, 5)

	if _, _, err := k.Fillet(cyl, 3, rims[:1]); !errors.Is(err, kernel.ErrInvalidGeometry) {
		t.Errorf("rim fillet at full radius err = %v", err)
	}

	short, sh, err := k.Prism(circleFace(t, k, 3), geom.V3(0, 0, 1.5))
	if err != nil {
		t.Fatalf("Prism: %v", err)
	}
	rims = append(generatedByRole(sh, "start-edge"), generatedByRole(sh, "end-edge")...)
	if _, _, err := k.Fillet(short, 1, rims); !errors.Is(err, kernel.ErrInvalidGeometry) {
		t.Errorf("rim fillets using up the seam err = %v", err)
	}
}

func TestRevolveTopology(t *testing.T) {
	k := New()
	axis := geom.Axis{Direction: geom.V3(0, 1, 0)}
	ring := polygonFace(t, k, geom.Pt(2, 0), geom.Pt(4, 0), geom.Pt(4, 1), geom.Pt(2, 1))

	full, _, err := k.Revolve(ring, axis, 2*math.Pi)
	if err != nil {
		t.Fatalf("Revolve: %v", err)
	}
	countTopology(t, k, full, 4, 8)

	part, _, err := k.Revolve(ring, axis, math.Pi/2)
	if err != nil {
		t.Fatalf("Revolve: %v", err)
	}
	countTopology(t, k, part, 6, 12)
}

func TestRevolveOnAxisProfile(t *testing.T) {
	k := New()
	axis := geom.Axis{Direction: geom.V3(0, 1, 0)}
	// A rectangle with its left side on the axis sweeps a plain cylinder.
	rect := polygonFace(t, k, geom.Pt(0, 0), geom.Pt(2, 0), geom.Pt(2, 3), geom.Pt(0, 3))
	s, _, err := k.Revolve(rect, axis, 2*math.Pi)
	if err != nil {
		t.Fatalf("Revolve: %v", err)
	}
	// Bottom disc, outer wall, top disc; two rim circles and three seams.
	countTopology(t, k, s, 3, 5)
}

func TestRevolveCrossingAxis(t *testing.T) {
	k := New()
	axis := geom.Axis{Direction: geom.V3(0, 1, 0)}
	f := polygonFace(t, k, geom.Pt(-1, 0), geom.Pt(1, 0), geom.Pt(1, 1), geom.Pt(-1, 1))
	if _, _, err := k.Revolve(f, axis, math.Pi); !errors.Is(err, kernel.ErrSelfIntersection) {
		t.Fatalf("err = %v, want ErrSelfIntersection", err)
	}
	if _, _, err := k.Revolve(f, geom.Axis{Direction: geom.V3(0, 0, 1)}, math.Pi); !errors.Is(err, kernel.ErrInvalidGeometry) {
		t.Fatalf("out-of-plane axis err = %v", err)
	}
}

func TestMakeWireRejectsGap(t *testing.T) {
	k := New()
	a, _ := k.MakeEdge(kernel.Curve{Kind: kernel.CurveLine, Start: geom.Pt(0, 0), End: geom.Pt(1, 0)})
	b, _ := k.MakeEdge(kernel.Curve{Kind: kernel.CurveLine, Start: geom.Pt(2, 0), End: geom.Pt(2, 1)})
	if _, err := k.MakeWire([]kernel.Edge{a, b}); !errors.Is(err, kernel.ErrInvalidGeometry) {
		t.Fatalf("err = %v", err)
	}
	if _, err := k.MakeEdge(kernel.Curve{Kind: kernel.CurveLine, Start: geom.Pt(1, 1), End: geom.Pt(1, 1)}); err == nil {
		t.Fatal("zero-length line accepted")
	}
	w, _ := k.MakeWire([]kernel.Edge{a})
	if _, err := k.MakeFace(w); err == nil {
		t.Fatal("open wire accepted as face")
	}
}

func TestToMesh(t *testing.T) {
	k := New()
	box, h, err := k.Prism(square(t, k, 10), geom.V3(0, 0, 5))
	if err != nil {
		t.Fatalf("Prism: %v", err)
	}
	mesh, err := k.ToMesh(box, 0.5)
	if err != nil {
		t.Fatalf("ToMesh: %v", err)
	}
	if mesh.IsEmpty() {
		t.Fatal("mesh is empty")
	}
	if len(mesh.Vertices) != len(mesh.Normals) {
		t.Fatalf("vertices length %d != normals length %d", len(mesh.Vertices), len(mesh.Normals))
	}
	if len(mesh.Indices) != mesh.TriangleCount()*3 {
		t.Fatalf("indices length %d != triCount*3", len(mesh.Indices))
	}

	rounded, _, err := k.Fillet(box, 2, generatedByRole(h, "side-edge"))
	if err != nil {
		t.Fatalf("Fillet: %v", err)
	}
	rmesh, err := k.ToMesh(rounded, 0.5)
	if err != nil {
		t.Fatalf("ToMesh(rounded): %v", err)
	}
	if rmesh.IsEmpty() {
		t.Fatal("rounded mesh is empty")
	}
}

func TestMeshCells(t *testing.T) {
	k := New()
	box, _, err := k.Prism(square(t, k, 10), geom.V3(0, 0, 5))
	if err != nil {
		t.Fatalf("Prism: %v", err)
	}
	sdf3 := box.(*solid).sdf
	tests := []struct {
		tol  float64
		want int
	}{
		{0, defaultMeshCells},
		{100, minMeshCells},
		{1e-6, maxMeshCells},
	}
	for _, tt := range tests {
		if got := meshCells(sdf3, tt.tol); got != tt.want {
			t.Errorf("meshCells(%g) = %d, want %d", tt.tol, got, tt.want)
		}
	}
}

func TestExport(t *testing.T) {
	k := New()
	box, _, err := k.Prism(square(t, k, 4), geom.V3(0, 0, 2))
	if err != nil {
		t.Fatalf("Prism: %v", err)
	}
	dir := t.TempDir()
	if err := k.Export(box, kernel.FormatSTEP, filepath.Join(dir, "box.step"), 0.5); !errors.Is(err, kernel.ErrUnsupported) {
		t.Errorf("STEP export err = %v, want ErrUnsupported", err)
	}
	if err := k.Export(box, kernel.FormatSTL, filepath.Join(dir, "box.stl"), 0.5); err != nil {
		t.Errorf("STL export: %v", err)
	}
}
