// Package pipeline builds solids from part documents: it solves the
// document's sketch, turns it into a profile and replays the feature list
// through a feature.Operator.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/tenon/pkg/caderr"
	"github.com/chazu/tenon/pkg/document"
	"github.com/chazu/tenon/pkg/feature"
	"github.com/chazu/tenon/pkg/kernel"
	"github.com/chazu/tenon/pkg/profile"
	"github.com/chazu/tenon/pkg/sketch"
	"github.com/chazu/tenon/pkg/solver"
	"github.com/chazu/tenon/pkg/topo"
)

// Options configures a Builder.
type Options struct {
	Solver solver.Options
	// ProfileTolerance is the endpoint matching distance for profiles.
	ProfileTolerance float64
	// Workers bounds BuildAll's parallelism. Zero means one worker per part.
	Workers int
}

// Part is a built document.
type Part struct {
	Name string
	// Sketch and Solve are nil and zero for primitive-only parts.
	Sketch *sketch.Sketch
	Solve  solver.Result
	// Solid is nil for sketch-only parts.
	Solid *feature.Solid
	// Skipped collects refs the document's non-strict treatments dropped.
	Skipped []topo.StableRef
}

// Builder turns documents into parts. It is safe for concurrent use when
// its kernel is.
type Builder struct {
	op     *feature.Operator
	solver *solver.Solver
	opts   Options
	log    *zap.Logger
}

// New creates a builder on kernel k. A nil logger is replaced with a no-op.
func New(k kernel.Kernel, opts Options, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		op:     feature.NewOperator(k, logger.Named("feature")),
		solver: solver.New(opts.Solver, logger.Named("solver")),
		opts:   opts,
		log:    logger,
	}
}

// Operator returns the feature operator parts are built with.
func (b *Builder) Operator() *feature.Operator { return b.op }

// Build solves doc's sketch and applies its features in order. Errors keep
// their caderr kind and are prefixed with the part name.
func (b *Builder) Build(ctx context.Context, doc *document.Document) (*Part, error) {
	start := time.Now()
	part, err := b.build(ctx, doc)
	if err != nil {
		b.log.Info("build failed", zap.String("part", doc.Name), zap.Error(err))
		return nil, fmt.Errorf("part %q: %w", doc.Name, err)
	}
	fields := []zap.Field{zap.String("part", doc.Name), zap.Duration("took", time.Since(start))}
	if part.Solid != nil {
		fields = append(fields,
			zap.Int("features", len(part.Solid.History())),
			zap.Int("edges", len(part.Solid.Edges())),
			zap.Int("faces", len(part.Solid.Faces())))
	}
	b.log.Debug("built part", fields...)
	return part, nil
}

func (b *Builder) build(ctx context.Context, doc *document.Document) (*Part, error) {
	const op = "pipeline.Build"
	if doc == nil {
		return nil, caderr.New(caderr.KindInvalidParameter, op, "nil document")
	}
	part := &Part{Name: doc.Name}

	if len(doc.Entities) > 0 {
		sk, err := doc.Sketch()
		if err != nil {
			return nil, err
		}
		res, err := b.solver.Solve(ctx, sk)
		if err != nil {
			return nil, err
		}
		if res.Status == solver.StatusRedundant {
			b.log.Warn("redundant constraints", zap.String("part", doc.Name),
				zap.Strings("constraints", constraintStrings(res.Redundant)))
		}
		part.Sketch, part.Solve = sk, res
	}

	for i, f := range doc.Features {
		if err := ctx.Err(); err != nil {
			return nil, caderr.Wrap(caderr.KindCancelled, op, err)
		}
		res, err := b.apply(part, f)
		if err != nil {
			return nil, fmt.Errorf("feature %d (%s): %w", i, f.Type, err)
		}
		part.Solid = res.Solid
		part.Skipped = append(part.Skipped, res.Skipped...)
	}
	return part, nil
}

func (b *Builder) apply(part *Part, f document.Feature) (*feature.Result, error) {
	switch f.Type {
	case document.FeatureExtrude:
		p, err := b.profile(part, f)
		if err != nil {
			return nil, err
		}
		return b.op.Extrude(p, f.DirectionVec(), *f.Distance)
	case document.FeatureRevolve:
		p, err := b.profile(part, f)
		if err != nil {
			return nil, err
		}
		return b.op.Revolve(p, f.GeomAxis(), f.AngleRadians())
	case document.FeatureBox:
		return b.op.Box(*f.X, *f.Y, *f.Z)
	case document.FeatureCylinder:
		return b.op.Cylinder(*f.Radius, *f.Height)
	case document.FeatureFillet, document.FeatureChamfer:
		refs, err := selectEdges(part.Solid, f)
		if err != nil {
			return nil, err
		}
		opts := feature.Options{Strict: f.Strict}
		if f.Type == document.FeatureFillet {
			return b.op.Fillet(part.Solid, *f.Radius, refs, opts)
		}
		return b.op.Chamfer(part.Solid, *f.Size, refs, opts)
	}
	return nil, caderr.New(caderr.KindInvalidSketchDocument, "pipeline.Build", "unknown feature type %q", f.Type)
}

func (b *Builder) profile(part *Part, f document.Feature) (profile.Profile, error) {
	if part.Sketch == nil {
		return profile.Profile{}, caderr.New(caderr.KindInvalidSketchDocument, "pipeline.Build", "%s needs sketch entities", f.Type)
	}
	return profile.Build(part.Sketch, profile.Options{
		Tolerance:     b.opts.ProfileTolerance,
		RequireClosed: true,
		Entities:      document.EntityIDs(f.Profile),
	})
}

// selectEdges resolves a treatment's explicit refs and role selectors
// against the solid as it is now. Explicit refs come first.
func selectEdges(s *feature.Solid, f document.Feature) ([]topo.StableRef, error) {
	refs, err := f.Refs()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return refs, nil
	}
	for _, role := range f.Roles {
		refs = append(refs, s.EdgesWithRole(role)...)
	}
	return refs, nil
}

func constraintStrings(ids []sketch.ConstraintID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// BuildAll builds independent documents in parallel. Parts come back in
// document order. The first failure cancels the remaining builds.
func (b *Builder) BuildAll(ctx context.Context, docs []*document.Document) ([]*Part, error) {
	parts := make([]*Part, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	if b.opts.Workers > 0 {
		g.SetLimit(b.opts.Workers)
	}
	for i, doc := range docs {
		g.Go(func() error {
			p, err := b.Build(gctx, doc)
			if err != nil {
				return err
			}
			parts[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	b.log.Info("built parts", zap.Int("parts", len(parts)))
	return parts, nil
}
