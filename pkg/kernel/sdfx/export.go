package sdfx

import (
	"fmt"
	"math"
	"os"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"

	"github.com/chazu/tenon/pkg/kernel"
)

// meshCells picks a marching cubes resolution whose cell size is roughly
// the requested tolerance.
func meshCells(s sdf.SDF3, tolerance float64) int {
	if tolerance <= 0 {
		return defaultMeshCells
	}
	bb := s.BoundingBox()
	size := bb.Max.Sub(bb.Min)
	extent := math.Max(size.X, math.Max(size.Y, size.Z))
	cells := int(math.Ceil(extent / tolerance))
	if cells < minMeshCells {
		return minMeshCells
	}
	if cells > maxMeshCells {
		return maxMeshCells
	}
	return cells
}

// ToMesh converts a shape to a triangle mesh using marching cubes.
func (k *SdfxKernel) ToMesh(s kernel.Shape, tolerance float64) (*kernel.Mesh, error) {
	so, err := unwrapShape(s)
	if err != nil {
		return nil, err
	}

	renderer := render.NewMarchingCubesUniform(meshCells(so.sdf, tolerance))
	triangles := render.ToTriangles(so.sdf, renderer)

	numTri := len(triangles)
	numVerts := numTri * 3

	vertices := make([]float32, 0, numVerts*3)
	normals := make([]float32, 0, numVerts*3)
	indices := make([]uint32, 0, numVerts)

	for i, tri := range triangles {
		n := tri.Normal()
		nx, ny, nz := float32(n.X), float32(n.Y), float32(n.Z)
		for j := 0; j < 3; j++ {
			v := tri[j]
			vertices = append(vertices, float32(v.X), float32(v.Y), float32(v.Z))
			normals = append(normals, nx, ny, nz)
			indices = append(indices, uint32(i*3+j))
		}
	}

	return &kernel.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Indices:  indices,
	}, nil
}

// Export writes a shape to path. Only STL is supported; an SDF has no
// exact surfaces to write as STEP.
func (k *SdfxKernel) Export(s kernel.Shape, format kernel.Format, path string, tolerance float64) error {
	so, err := unwrapShape(s)
	if err != nil {
		return err
	}
	if format != kernel.FormatSTL {
		return fmt.Errorf("%w: export format %q", kernel.ErrUnsupported, format)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("export %s: %w", path, err)
	}
	render.ToSTL(so.sdf, path, render.NewMarchingCubesUniform(meshCells(so.sdf, tolerance)))
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("export %s: empty file", path)
	}
	return nil
}
