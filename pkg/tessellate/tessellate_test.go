package tessellate_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/goleak"

	"github.com/chazu/tenon/pkg/feature"
	"github.com/chazu/tenon/pkg/kernel"
	"github.com/chazu/tenon/pkg/kernel/sdfx"
	"github.com/chazu/tenon/pkg/pipeline"
	"github.com/chazu/tenon/pkg/tessellate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// coarse keeps marching cubes fast.
var coarse = tessellate.Options{Tolerance: 0.5}

// box builds a box solid for testing.
func box(t *testing.T, k kernel.Kernel, x, y, z float64) *feature.Solid {
	t.Helper()
	res, err := feature.NewOperator(k, nil).Box(x, y, z)
	if err != nil {
		t.Fatalf("Box failed: %v", err)
	}
	return res.Solid
}

func TestSingleBox(t *testing.T) {
	k := sdfx.New()
	items := []tessellate.Item{{Name: "shelf", Shape: box(t, k, 6, 3, 2).Shape()}}

	meshes, err := tessellate.Tessellate(context.Background(), k, items, coarse)
	if err != nil {
		t.Fatalf("Tessellate failed: %v", err)
	}
	if len(meshes) != 1 {
		t.Fatalf("expected 1 mesh, got %d", len(meshes))
	}

	m := meshes[0]
	if m.IsEmpty() {
		t.Fatal("mesh should not be empty")
	}
	if m.PartName != "shelf" {
		t.Errorf("expected PartName %q, got %q", "shelf", m.PartName)
	}
	if m.TriangleCount() == 0 {
		t.Error("mesh should have triangles")
	}

	lo, hi := m.Bounds()
	want := [3]float32{6, 3, 2}
	for i := 0; i < 3; i++ {
		if math.Abs(float64(lo[i])) > 0.5 || math.Abs(float64(hi[i]-want[i])) > 0.5 {
			t.Errorf("axis %d: bounds [%g, %g], want about [0, %g]", i, lo[i], hi[i], want[i])
		}
	}
}

func TestPartsKeepOrder(t *testing.T) {
	k := sdfx.New()
	items := []tessellate.Item{
		{Name: "side-panel", Shape: box(t, k, 4, 3, 1).Shape()},
		{Name: "top-panel", Shape: box(t, k, 6, 3, 1).Shape()},
		{Shape: box(t, k, 1, 1, 1).Shape()},
	}

	for _, workers := range []int{0, 1} {
		opts := coarse
		opts.Workers = workers
		meshes, err := tessellate.Tessellate(context.Background(), k, items, opts)
		if err != nil {
			t.Fatalf("Tessellate failed: %v", err)
		}
		if len(meshes) != 3 {
			t.Fatalf("expected 3 meshes, got %d", len(meshes))
		}
		for i, want := range []string{"side-panel", "top-panel", "part-2"} {
			if meshes[i].PartName != want {
				t.Errorf("mesh %d: PartName %q, want %q", i, meshes[i].PartName, want)
			}
			if meshes[i].IsEmpty() {
				t.Errorf("mesh %d should not be empty", i)
			}
		}
	}
}

func TestEmptyInput(t *testing.T) {
	meshes, err := tessellate.Tessellate(context.Background(), sdfx.New(), nil, coarse)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(meshes) != 0 {
		t.Errorf("expected no meshes, got %d", len(meshes))
	}
}

func TestMissingShape(t *testing.T) {
	_, err := tessellate.Tessellate(context.Background(), sdfx.New(), []tessellate.Item{{Name: "ghost"}}, coarse)
	if err == nil {
		t.Fatal("expected an error for an item without a shape")
	}
}

func TestCancelled(t *testing.T) {
	k := sdfx.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tessellate.Tessellate(ctx, k, []tessellate.Item{{Name: "b", Shape: box(t, k, 1, 1, 1).Shape()}}, coarse)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFromPartsSkipsSketchOnlyParts(t *testing.T) {
	k := sdfx.New()
	parts := []*pipeline.Part{
		{Name: "sketch"},
		{Name: "block", Solid: box(t, k, 1, 2, 3)},
		nil,
	}
	items := tessellate.FromParts(parts)
	if len(items) != 1 || items[0].Name != "block" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestExport(t *testing.T) {
	k := sdfx.New()
	dir := t.TempDir()
	items := []tessellate.Item{
		{Name: "a/b", Shape: box(t, k, 2, 2, 2).Shape()},
		{Name: "c", Shape: box(t, k, 1, 1, 1).Shape()},
	}

	paths, err := tessellate.Export(context.Background(), k, items, kernel.FormatSTL, dir, coarse)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	want := []string{filepath.Join(dir, "a_b.stl"), filepath.Join(dir, "c.stl")}
	for i, p := range paths {
		if p != want[i] {
			t.Errorf("path %d = %q, want %q", i, p, want[i])
		}
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", p)
		}
	}

	_, err = tessellate.Export(context.Background(), k, items[:1], kernel.FormatSTEP, dir, coarse)
	if !errors.Is(err, kernel.ErrUnsupported) {
		t.Errorf("STEP export: expected ErrUnsupported, got %v", err)
	}
}
