package main

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/chazu/tenon/pkg/caderr"
	"github.com/chazu/tenon/pkg/config"
	"github.com/chazu/tenon/pkg/document"
	"github.com/chazu/tenon/pkg/engine"
	"github.com/chazu/tenon/pkg/kernel"
	"github.com/chazu/tenon/pkg/kernel/sdfx"
	"github.com/chazu/tenon/pkg/pipeline"
	"github.com/chazu/tenon/pkg/tessellate"
	"github.com/chazu/tenon/pkg/topo"
)

// colorPalette is a default palette used to assign distinct colors to parts.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// App runs sources and documents through the full build: evaluate, solve,
// apply features, mesh.
type App struct {
	engine  *engine.Engine
	kernel  *sdfx.SdfxKernel
	builder *pipeline.Builder
	mesh    tessellate.Options
	log     *zap.Logger
}

// MeshData is the JSON-serializable mesh format.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	PartName string    `json:"partName"`
	Color    string    `json:"color"`
}

// PartData summarizes one built part.
type PartData struct {
	Name    string   `json:"name"`
	Sketch  string   `json:"sketch,omitempty"`
	DOF     int      `json:"dof"`
	History []string `json:"history,omitempty"`
	Faces   int      `json:"faces"`
	Edges   int      `json:"edges"`
	Skipped []string `json:"skipped,omitempty"`
}

// EvalErrorData is a JSON-serializable error. Kind and Refs are set for
// modelling errors.
type EvalErrorData struct {
	Line    int      `json:"line"`
	Col     int      `json:"col"`
	Message string   `json:"message"`
	Kind    string   `json:"kind,omitempty"`
	Refs    []string `json:"refs,omitempty"`
}

// EvalResult is the full result of a run.
type EvalResult struct {
	Parts    []PartData      `json:"parts"`
	Meshes   []MeshData      `json:"meshes"`
	Errors   []EvalErrorData `json:"errors"`
	Warnings []EvalErrorData `json:"warnings"`

	built []*pipeline.Part
}

// NewApp creates an App on the sdfx kernel.
func NewApp(cfg *config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	k := sdfx.New()
	return &App{
		engine:  engine.NewEngine(cfg.EngineOptions(logger.Named("engine"))...),
		kernel:  k,
		builder: pipeline.New(k, cfg.PipelineOptions(), logger.Named("pipeline")),
		mesh:    cfg.MeshOptions(),
		log:     logger,
	}
}

func newResult() EvalResult {
	return EvalResult{
		Parts:    []PartData{},
		Meshes:   []MeshData{},
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}
}

// Evaluate takes Lisp source and builds every part it defines. When
// withMeshes is set the parts are also tessellated.
func (a *App) Evaluate(ctx context.Context, source string, withMeshes bool) EvalResult {
	result := newResult()

	// Step 1: Evaluate the Lisp source into part documents.
	checked, err := a.engine.Check(source)
	if err != nil {
		// Fatal error (panic, timeout, etc.)
		a.log.Error("evaluate fatal error", zap.Error(err))
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	for _, w := range checked.Warnings {
		result.Warnings = append(result.Warnings, EvalErrorData{Message: w.String()})
	}

	// Step 2: Convert eval errors to the output format.
	if len(checked.Errors) > 0 {
		for _, e := range checked.Errors {
			result.Errors = append(result.Errors, EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message})
		}
		return result
	}

	return a.build(ctx, checked.Parts, withMeshes, result)
}

// Build builds already parsed documents.
func (a *App) Build(ctx context.Context, docs []*document.Document, withMeshes bool) EvalResult {
	return a.build(ctx, docs, withMeshes, newResult())
}

func (a *App) build(ctx context.Context, docs []*document.Document, withMeshes bool, result EvalResult) EvalResult {
	// Step 3: Solve sketches and apply features.
	parts, err := a.builder.BuildAll(ctx, docs)
	if err != nil {
		result.Errors = append(result.Errors, modelError(err))
		return result
	}
	result.built = parts
	for _, p := range parts {
		result.Parts = append(result.Parts, summarize(p))
		if p.Sketch != nil && p.Solve.DOF > 0 {
			result.Warnings = append(result.Warnings, EvalErrorData{
				Message: p.Name + ": sketch is underconstrained",
				Kind:    p.Solve.Status.String(),
			})
		}
	}
	if !withMeshes {
		return result
	}

	// Step 4: Tessellate the solids into triangle meshes.
	meshes, err := tessellate.Tessellate(ctx, a.kernel, tessellate.FromParts(parts), a.mesh)
	if err != nil {
		a.log.Error("tessellate error", zap.Error(err))
		result.Errors = append(result.Errors, EvalErrorData{Message: "tessellation failed: " + err.Error()})
		return result
	}
	for i, m := range meshes {
		result.Meshes = append(result.Meshes, MeshData{
			Vertices: m.Vertices,
			Normals:  m.Normals,
			Indices:  m.Indices,
			PartName: m.PartName,
			Color:    colorPalette[i%len(colorPalette)],
		})
	}
	return result
}

// Export writes the parts of a successful result as STL files under dir.
func (a *App) Export(ctx context.Context, result EvalResult, dir string) ([]string, error) {
	if len(result.Errors) > 0 {
		return nil, errors.New("cannot export a failed build")
	}
	return tessellate.Export(ctx, a.kernel, tessellate.FromParts(result.built), kernel.FormatSTL, dir, a.mesh)
}

func summarize(p *pipeline.Part) PartData {
	d := PartData{Name: p.Name, Skipped: topo.Strings(p.Skipped)}
	if p.Sketch != nil {
		d.Sketch = p.Solve.Status.String()
		d.DOF = p.Solve.DOF
	}
	if p.Solid != nil {
		for _, e := range p.Solid.History() {
			d.History = append(d.History, e.String())
		}
		d.Faces = len(p.Solid.Faces())
		d.Edges = len(p.Solid.Edges())
	}
	return d
}

func modelError(err error) EvalErrorData {
	d := EvalErrorData{Message: err.Error(), Refs: caderr.RefsOf(err)}
	if k := caderr.KindOf(err); k != caderr.KindUnknown {
		d.Kind = k.String()
	}
	return d
}
