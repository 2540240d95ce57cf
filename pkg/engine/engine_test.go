package engine

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestEvaluateEmptyString(t *testing.T) {
	eng := NewEngine()

	for _, src := range []string{"", "   \n\t  \n  "} {
		parts, evalErrs, err := eng.Evaluate(src)
		if err != nil {
			t.Fatalf("unexpected fatal error: %v", err)
		}
		if len(evalErrs) > 0 {
			t.Fatalf("unexpected eval errors: %v", evalErrs)
		}
		if parts == nil {
			t.Fatal("expected non-nil part list")
		}
		if len(parts) != 0 {
			t.Errorf("expected no parts, got %d", len(parts))
		}
	}
}

func TestEvaluatePlainExpressions(t *testing.T) {
	eng := NewEngine(WithLogger(zaptest.NewLogger(t)))

	source := `
(def x 10)
(def y 20)
(+ x y)
`
	parts, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}
	if parts == nil || len(parts) != 0 {
		t.Errorf("expected an empty part list, got %v", parts)
	}
}

func TestEvaluateSyntaxError(t *testing.T) {
	eng := NewEngine()

	// Unmatched paren is a parse error.
	parts, evalErrs, err := eng.Evaluate("(+ 1 2)\n(+ 3")
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if parts != nil {
		t.Fatal("expected nil parts on syntax error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error for syntax error")
	}
	if evalErrs[0].Message == "" {
		t.Error("eval error message should not be empty")
	}
}

func TestEvaluateUndefinedSymbol(t *testing.T) {
	eng := NewEngine()

	parts, evalErrs, err := eng.Evaluate("(+ 1 undefined-symbol)")
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if parts != nil {
		t.Fatal("expected nil parts on eval error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error for undefined symbol")
	}
}

func TestEvalErrorImplementsError(t *testing.T) {
	e := EvalError{Line: 5, Message: "something went wrong"}
	s := e.Error()
	if !strings.Contains(s, "line 5") || !strings.Contains(s, "something went wrong") {
		t.Errorf("Error() = %q", s)
	}

	e2 := EvalError{Message: "no location"}
	if strings.Contains(e2.Error(), "line") {
		t.Errorf("Error() with no line should not contain 'line', got: %s", e2.Error())
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	eng := NewEngine()

	src := `(defpart "plate" (rect "r" :origin (pt 0 0) :width 4 :height 2) (extrude 1))`
	var first string
	for i := 0; i < 5; i++ {
		parts, evalErrs, err := eng.Evaluate(src)
		if err != nil {
			t.Fatalf("iteration %d: unexpected fatal error: %v", i, err)
		}
		if len(evalErrs) > 0 {
			t.Fatalf("iteration %d: unexpected eval errors: %v", i, evalErrs)
		}
		if len(parts) != 1 {
			t.Fatalf("iteration %d: expected 1 part, got %d", i, len(parts))
		}
		got := parts[0].Name + "/" + parts[0].Entities[0].ID
		if i == 0 {
			first = got
		} else if got != first {
			t.Errorf("iteration %d: got %q, want %q", i, got, first)
		}
	}
}

func TestCheckWarnings(t *testing.T) {
	eng := NewEngine()

	res, err := eng.Check(`
(defpart "sketch-only" (line "l" :from (pt 0 0) :to (pt 1 0)) (horizontal "l"))
(defpart "pinned" (line "l" :from (pt 0 0) :to (pt 1 0)) (fixed "l.start" (pt 0 0)) (extrude 1 :direction (vec3 0 0 1)))
`)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(res.Errors) > 0 {
		t.Fatalf("unexpected eval errors: %v", res.Errors)
	}
	if len(res.Parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(res.Parts))
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", res.Warnings)
	}
	for _, w := range res.Warnings {
		if w.Part != "sketch-only" {
			t.Errorf("unexpected warning for %q: %s", w.Part, w)
		}
	}
}

func TestAwaitTimeout(t *testing.T) {
	e := NewEngine(WithTimeout(50 * time.Millisecond))
	e.generation = 1
	ch := make(chan evalResult) // never sends

	start := time.Now()
	_, _, err := e.await(ch, 1)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error message, got: %v", err)
	}
	if time.Since(start) > EvalTimeout {
		t.Errorf("waited %s, longer than the default timeout", time.Since(start))
	}
}

func TestAwaitDiscardsStaleGeneration(t *testing.T) {
	e := NewEngine()
	e.generation = 2
	ch := make(chan evalResult, 1)
	ch <- evalResult{}

	_, _, err := e.await(ch, 1)
	if err == nil {
		t.Fatal("expected error for stale generation")
	}
	if !strings.Contains(err.Error(), "superseded") {
		t.Errorf("expected superseded error, got: %v", err)
	}
}

func TestParseZygomysError(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		wantLine int
		wantMsg  string
	}{
		{
			name:     "error on line format",
			msg:      "Error on line 5: unexpected token\n",
			wantLine: 5,
			wantMsg:  "unexpected token",
		},
		{
			name:     "no line info",
			msg:      "some generic error",
			wantLine: 0,
			wantMsg:  "some generic error",
		},
		{
			name:     "line format lowercase",
			msg:      "error on line 12: missing paren",
			wantLine: 12,
			wantMsg:  "missing paren",
		},
		{
			name:     "short line format",
			msg:      "line 3: defpart requires a name",
			wantLine: 3,
			wantMsg:  "defpart requires a name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := parseZygomysError(errString(tt.msg))
			if len(errs) == 0 {
				t.Fatal("expected at least one error")
			}
			e := errs[0]
			if e.Line != tt.wantLine {
				t.Errorf("line = %d, want %d", e.Line, tt.wantLine)
			}
			if !strings.Contains(e.Message, tt.wantMsg) {
				t.Errorf("message = %q, want containing %q", e.Message, tt.wantMsg)
			}
		})
	}
}

// errString is a simple error type for testing.
type errString string

func (e errString) Error() string { return string(e) }
