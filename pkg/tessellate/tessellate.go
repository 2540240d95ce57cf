// Package tessellate turns built parts into triangle meshes and export files
// using a geometry kernel. One mesh is produced per part; parts are meshed in
// parallel.
package tessellate

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/tenon/pkg/kernel"
	"github.com/chazu/tenon/pkg/pipeline"
)

// DefaultTolerance is the chordal deviation used when Options.Tolerance is
// zero.
const DefaultTolerance = 0.1

// Item is one named shape to mesh.
type Item struct {
	Name  string
	Shape kernel.Shape
}

// Options controls meshing.
type Options struct {
	Tolerance float64
	// Workers bounds parallelism. Zero means one worker per item.
	Workers int
}

func (o Options) tolerance() float64 {
	if o.Tolerance <= 0 {
		return DefaultTolerance
	}
	return o.Tolerance
}

// FromParts lists the parts that have a solid. Sketch-only parts are
// skipped.
func FromParts(parts []*pipeline.Part) []Item {
	var items []Item
	for _, p := range parts {
		if p == nil || p.Solid == nil {
			continue
		}
		items = append(items, Item{Name: p.Name, Shape: p.Solid.Shape()})
	}
	return items
}

// Tessellate meshes every item with k and returns the meshes in item order.
// The tessellator is read-only and never mutates the shapes.
func Tessellate(ctx context.Context, k kernel.Kernel, items []Item, opts Options) ([]*kernel.Mesh, error) {
	meshes := make([]*kernel.Mesh, len(items))
	err := each(ctx, items, opts, func(i int, it Item) error {
		mesh, err := k.ToMesh(it.Shape, opts.tolerance())
		if err != nil {
			return fmt.Errorf("tessellate: ToMesh failed for part %s: %w", partName(i, it), err)
		}
		mesh.PartName = partName(i, it)
		meshes[i] = mesh
		return nil
	})
	if err != nil {
		return nil, err
	}
	return meshes, nil
}

// Export writes each item to dir as <name>.<format> and returns the paths
// in item order.
func Export(ctx context.Context, exp kernel.Exporter, items []Item, format kernel.Format, dir string, opts Options) ([]string, error) {
	paths := make([]string, len(items))
	err := each(ctx, items, opts, func(i int, it Item) error {
		path := filepath.Join(dir, fileName(partName(i, it))+"."+string(format))
		if err := exp.Export(it.Shape, format, path, opts.tolerance()); err != nil {
			return fmt.Errorf("tessellate: export part %s: %w", partName(i, it), err)
		}
		paths[i] = path
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func each(ctx context.Context, items []Item, opts Options, fn func(int, Item) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if opts.Workers > 0 {
		g.SetLimit(opts.Workers)
	}
	for i, it := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if it.Shape == nil {
				return fmt.Errorf("tessellate: part %s has no shape", partName(i, it))
			}
			return fn(i, it)
		})
	}
	return g.Wait()
}

// partName prefers the item's name and falls back to its position.
func partName(i int, it Item) string {
	if it.Name != "" {
		return it.Name
	}
	return fmt.Sprintf("part-%d", i)
}

// fileName keeps a part name from escaping the export directory.
func fileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, name)
}
