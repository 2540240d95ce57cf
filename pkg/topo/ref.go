// Package topo maps edit-stable names for edges and faces onto the handles
// a kernel currently uses for them.
//
// A StableRef is minted when a feature creates topology and is derived from
// what the topology is (the feature that made it, the kernel's role for it,
// and the sketch curves or earlier refs it came from), never from where it
// happens to sit in the kernel's enumeration. After every operation the
// table is carried forward through the kernel's own history: modified
// handles are followed, deleted handles turn their refs into tombstones.
package topo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/tenon/pkg/caderr"
	"github.com/chazu/tenon/pkg/kernel"
)

// StableRef names one edge or face of a solid across edits.
type StableRef struct {
	// Feature is the history index of the feature that created the
	// topology.
	Feature int
	Kind    kernel.TopoKind
	// Role is the kernel's name for how the topology arose ("side",
	// "cap-end", "fillet-edge", ...).
	Role string
	// Local distinguishes refs of one role within a feature: the sketch
	// curves the topology was swept from, or the refs it was derived from.
	Local string
}

// String renders the ref as f<feature>/<kind>/<role>/<local>.
func (r StableRef) String() string {
	return fmt.Sprintf("f%d/%s/%s/%s", r.Feature, r.Kind, r.Role, r.Local)
}

// IsZero reports whether r is the zero ref.
func (r StableRef) IsZero() bool { return r == StableRef{} }

// ParseRef parses the form produced by String. The local part may itself
// contain slashes.
func ParseRef(s string) (StableRef, error) {
	parts := strings.SplitN(s, "/", 4)
	if len(parts) != 4 || !strings.HasPrefix(parts[0], "f") {
		return StableRef{}, caderr.New(caderr.KindInvalidParameter, "topo.ParseRef", "malformed ref %q", s)
	}
	n, err := strconv.Atoi(parts[0][1:])
	if err != nil || n < 0 {
		return StableRef{}, caderr.New(caderr.KindInvalidParameter, "topo.ParseRef", "bad feature index in %q", s)
	}
	var kind kernel.TopoKind
	switch parts[1] {
	case "edge":
		kind = kernel.TopoEdge
	case "face":
		kind = kernel.TopoFace
	default:
		return StableRef{}, caderr.New(caderr.KindInvalidParameter, "topo.ParseRef", "bad kind %q in %q", parts[1], s)
	}
	if parts[2] == "" {
		return StableRef{}, caderr.New(caderr.KindInvalidParameter, "topo.ParseRef", "empty role in %q", s)
	}
	return StableRef{Feature: n, Kind: kind, Role: parts[2], Local: parts[3]}, nil
}

// MustParseRef is ParseRef for refs known to be well formed.
func MustParseRef(s string) StableRef {
	r, err := ParseRef(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Strings renders refs with String.
func Strings(refs []StableRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.String()
	}
	return out
}

// State is what a table knows about a ref.
type State int

const (
	// StateUnknown means the ref was never minted in this table's lineage.
	StateUnknown State = iota
	// StateLive means the ref resolves to a current handle.
	StateLive
	// StateInvalidated means the topology existed and has been consumed.
	StateInvalidated
)

func (s State) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}
