// Package caderr defines the structured failure kinds returned by every
// public tenon operation.
//
// Callers match on kind with errors.Is against the exported sentinels:
//
//	if errors.Is(err, caderr.ErrConstraintConflict) { ... }
//
// and recover the details (implicated ids, operation) with errors.As.
package caderr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidSketchDocument
	KindUnknownEntity
	KindUnsupportedConstraint
	KindDegenerateGeometry
	KindConstraintConflict
	KindOpenProfile
	KindSelfIntersection
	KindInvalidParameter
	KindStaleReference
	KindKernelOperationFailed
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindInvalidSketchDocument:
		return "InvalidSketchDocument"
	case KindUnknownEntity:
		return "UnknownEntity"
	case KindUnsupportedConstraint:
		return "UnsupportedConstraint"
	case KindDegenerateGeometry:
		return "DegenerateGeometry"
	case KindConstraintConflict:
		return "ConstraintConflict"
	case KindOpenProfile:
		return "OpenProfile"
	case KindSelfIntersection:
		return "SelfIntersection"
	case KindInvalidParameter:
		return "InvalidParameter"
	case KindStaleReference:
		return "StaleReference"
	case KindKernelOperationFailed:
		return "KernelOperationFailed"
	case KindCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinels for errors.Is matching. They carry no detail.
var (
	ErrInvalidSketchDocument = &Error{Kind: KindInvalidSketchDocument}
	ErrUnknownEntity         = &Error{Kind: KindUnknownEntity}
	ErrUnsupportedConstraint = &Error{Kind: KindUnsupportedConstraint}
	ErrDegenerateGeometry    = &Error{Kind: KindDegenerateGeometry}
	ErrConstraintConflict    = &Error{Kind: KindConstraintConflict}
	ErrOpenProfile           = &Error{Kind: KindOpenProfile}
	ErrSelfIntersection      = &Error{Kind: KindSelfIntersection}
	ErrInvalidParameter      = &Error{Kind: KindInvalidParameter}
	ErrStaleReference        = &Error{Kind: KindStaleReference}
	ErrKernelOperationFailed = &Error{Kind: KindKernelOperationFailed}
	ErrCancelled             = &Error{Kind: KindCancelled}
)

// Error is a structured failure.
type Error struct {
	Kind Kind
	Op   string   // operation that failed, e.g. "sketch.AddConstraint"
	Msg  string   // human-readable detail
	Refs []string // implicated entity, constraint or topology ids
	Err  error    // underlying cause, if any
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if len(e.Refs) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Refs, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels compare by kind only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an Error with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around an underlying cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithRefs returns e with refs attached.
func (e *Error) WithRefs(refs ...string) *Error {
	e.Refs = append(e.Refs, refs...)
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// RefsOf returns the implicated ids of the first *Error in err's chain.
func RefsOf(err error) []string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Refs
	}
	return nil
}
