// Command tenon builds parts from a Lisp source file or a YAML/JSON part
// document and reports the result, optionally writing STL files.
//
//	tenon [--config tenon.yaml] [--json] [--meshes] [--out dir] part.tenon|part.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chazu/tenon/pkg/config"
	"github.com/chazu/tenon/pkg/document"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitCode carries a non-zero exit status out of RunE. Anything else cobra
// returns is a usage error.
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var code exitCode
	if errors.As(err, &code) {
		return int(code)
	}
	fmt.Fprintf(stderr, "%v\nRun '%s --help' for usage.\n", err, cmd.Name())
	return 2
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		asJSON  bool
		meshes  bool
		out     string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "tenon FILE",
		Short: "Build parametric parts from sketches and features",
		Long: `Build parts from a Lisp source file (.tenon) or a YAML/JSON part document.

Each part's sketch is solved, its profile built and its features applied in
order. The report lists every feature with the refs it created and consumed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
			fail := func(err error) error {
				fmt.Fprintln(stderr, err)
				return exitCode(1)
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fail(err)
			}
			if verbose {
				cfg.Log.Level = "debug"
			}
			logger, _, err := config.NewLogger(cfg.Log)
			if err != nil {
				return fail(err)
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			app := NewApp(cfg, logger)
			result, err := load(ctx, app, args[0], meshes && asJSON)
			if err != nil {
				return fail(err)
			}

			if asJSON {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return fail(err)
				}
			} else {
				report(stdout, result)
			}
			if len(result.Errors) > 0 {
				return exitCode(1)
			}

			if out != "" {
				if err := os.MkdirAll(out, 0o755); err != nil {
					return fail(err)
				}
				paths, err := app.Export(ctx, result, out)
				if err != nil {
					logger.Error("export failed", zap.Error(err))
					return exitCode(1)
				}
				for _, p := range paths {
					fmt.Fprintln(stderr, "wrote", p)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "optional YAML config file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&meshes, "meshes", false, "tessellate parts (included in --json output)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write one STL file per part into this directory")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	return cmd
}

// load picks the front end by file extension: YAML and JSON are part
// documents, anything else is Lisp source.
func load(ctx context.Context, app *App, path string, withMeshes bool) (EvalResult, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		doc, err := document.ParseFile(path)
		if err != nil {
			return EvalResult{}, err
		}
		if doc.Name == "" {
			doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		return app.Build(ctx, []*document.Document{doc}, withMeshes), nil
	default:
		src, err := os.ReadFile(path)
		if err != nil {
			return EvalResult{}, fmt.Errorf("read source: %w", err)
		}
		return app.Evaluate(ctx, string(src), withMeshes), nil
	}
}

func report(w io.Writer, r EvalResult) {
	for _, p := range r.Parts {
		fmt.Fprintf(w, "%s\n", p.Name)
		if p.Sketch != "" {
			fmt.Fprintf(w, "  sketch: %s, %d DOF\n", p.Sketch, p.DOF)
		}
		for _, h := range p.History {
			fmt.Fprintf(w, "  %s\n", h)
		}
		if len(p.History) > 0 {
			fmt.Fprintf(w, "  %d faces, %d edges\n", p.Faces, p.Edges)
		}
		for _, s := range p.Skipped {
			fmt.Fprintf(w, "  skipped %s\n", s)
		}
	}
	for _, e := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", e.Message)
	}
	for _, e := range r.Errors {
		if e.Line > 0 {
			fmt.Fprintf(w, "error: line %d: %s\n", e.Line, e.Message)
		} else {
			fmt.Fprintf(w, "error: %s\n", e.Message)
		}
	}
}
