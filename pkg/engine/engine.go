// Package engine evaluates tenon Lisp source into part documents.
// It wraps zygomys in a sandboxed environment; every (defpart ...) form in
// the source produces one document.Document.
package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"
	"go.uber.org/zap"

	"github.com/chazu/tenon/pkg/document"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning is advisory output about an otherwise valid program.
type EvalWarning struct {
	Part    string
	Message string
}

func (w EvalWarning) String() string {
	if w.Part != "" {
		return fmt.Sprintf("part %q: %s", w.Part, w.Message)
	}
	return w.Message
}

// EvalResult bundles the full output of an evaluation.
type EvalResult struct {
	Parts    []*document.Document
	Errors   []EvalError
	Warnings []EvalWarning
}

// Engine wraps the zygomys interpreter. It is safe for concurrent use; each
// call to Evaluate creates a fresh sandboxed environment for determinism.
type Engine struct {
	mu         sync.Mutex
	generation uint64

	timeout time.Duration
	log     *zap.Logger
}

// EvalTimeout is the default hard limit for a single evaluation.
const EvalTimeout = 5 * time.Second

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout overrides EvalTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine creates a new Engine instance.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{timeout: EvalTimeout, log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate takes Lisp source code and produces the documents it defines,
// in definition order.
//
// Return semantics:
//   - On success: returns documents + nil errors + nil error
//   - On parse/eval failure: returns nil documents + eval errors + nil error
//   - On fatal failure (timeout, panic, superseded): returns nil + nil + error
func (e *Engine) Evaluate(source string) ([]*document.Document, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		parts, evalErrs, err := e.evaluate(source)
		ch <- evalResult{parts: parts, errors: evalErrs, err: err}
	}()

	parts, evalErrs, err := e.await(ch, gen)
	switch {
	case err != nil:
		e.log.Warn("evaluation failed", zap.Uint64("generation", gen), zap.Error(err))
	case len(evalErrs) > 0:
		e.log.Debug("evaluation errors", zap.Uint64("generation", gen), zap.Int("errors", len(evalErrs)))
	default:
		e.log.Debug("evaluated", zap.Uint64("generation", gen), zap.Int("parts", len(parts)))
	}
	return parts, evalErrs, err
}

// Check evaluates source and adds warnings for parts that would build
// nothing.
func (e *Engine) Check(source string) (EvalResult, error) {
	parts, evalErrs, err := e.Evaluate(source)
	if err != nil {
		return EvalResult{}, err
	}
	res := EvalResult{Parts: parts, Errors: evalErrs}
	for _, p := range parts {
		if len(p.Features) == 0 {
			res.Warnings = append(res.Warnings, EvalWarning{Part: p.Name, Message: "no features; the part is a sketch only"})
		}
		if len(p.Constraints) > 0 && !hasFixed(p) {
			res.Warnings = append(res.Warnings, EvalWarning{Part: p.Name, Message: "no fixed constraint; the sketch can translate freely"})
		}
	}
	return res, nil
}

func hasFixed(d *document.Document) bool {
	for _, c := range d.Constraints {
		if c.Type == "fixed" {
			return true
		}
	}
	return false
}

type evalResult struct {
	parts  []*document.Document
	errors []EvalError
	err    error
}

// await returns the result of generation gen, or an error once timeout
// passes or a newer Evaluate has started. A timed-out goroutine keeps
// running; its result is dropped because its generation is stale.
func (e *Engine) await(ch <-chan evalResult, gen uint64) ([]*document.Document, []EvalError, error) {
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		e.mu.Lock()
		stale := gen != e.generation
		e.mu.Unlock()
		if stale {
			return nil, nil, errors.New("evaluation superseded by newer request")
		}
		return res.parts, res.errors, res.err
	case <-timer.C:
		return nil, nil, fmt.Errorf("evaluation timed out after %s", e.timeout)
	}
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) ([]*document.Document, []EvalError, error) {
	// Empty source is a valid program that defines nothing.
	if strings.TrimSpace(source) == "" {
		return []*document.Document{}, nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or
	// syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	var parts []*document.Document
	registerBuiltins(env, &parts)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if parts == nil {
		parts = []*document.Document{}
	}
	return parts, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n".
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
