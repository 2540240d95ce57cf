package topo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/tenon/pkg/caderr"
	"github.com/chazu/tenon/pkg/kernel"
)

// Table binds live StableRefs to kernel handles of one shape and remembers
// refs that have been consumed. Tables are immutable; Apply and Invalidate
// return new tables, so a Solid's table is never changed by later features.
type Table struct {
	live       map[StableRef]kernel.Handle
	byHandle   map[kernel.Handle]StableRef
	tombstones map[StableRef]int // ref -> feature that consumed it
	// retired holds the last handle of refs invalidated since the last
	// Apply, so elements generated from them can still be named.
	retired map[kernel.Handle]StableRef
	// order is every ref ever minted, in minting order.
	order []StableRef
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		live:       make(map[StableRef]kernel.Handle),
		byHandle:   make(map[kernel.Handle]StableRef),
		tombstones: make(map[StableRef]int),
	}
}

func (t *Table) clone() *Table {
	n := &Table{
		live:       make(map[StableRef]kernel.Handle, len(t.live)),
		byHandle:   make(map[kernel.Handle]StableRef, len(t.byHandle)),
		tombstones: make(map[StableRef]int, len(t.tombstones)),
		retired:    make(map[kernel.Handle]StableRef, len(t.retired)),
		order:      append([]StableRef(nil), t.order...),
	}
	for r, h := range t.live {
		n.live[r] = h
		n.byHandle[h] = r
	}
	for r, f := range t.tombstones {
		n.tombstones[r] = f
	}
	for h, r := range t.retired {
		n.retired[h] = r
	}
	return n
}

// Change lists what one Apply did to the table.
type Change struct {
	Created  []StableRef
	Consumed []StableRef
}

// Apply carries the table through one kernel operation performed by
// feature. Live refs follow History.Modified; refs whose handle was deleted
// become tombstones; every generated element gets a new ref.
//
// A history that neither modifies nor deletes a live handle is rejected:
// the ref would silently point at nothing.
func (t *Table) Apply(feature int, h kernel.History) (*Table, Change, error) {
	const op = "topo.Apply"
	n := &Table{
		live:       make(map[StableRef]kernel.Handle, len(t.live)+len(h.Generated)),
		byHandle:   make(map[kernel.Handle]StableRef, len(t.live)+len(h.Generated)),
		tombstones: make(map[StableRef]int, len(t.tombstones)),
		order:      append([]StableRef(nil), t.order...),
	}
	for r, f := range t.tombstones {
		n.tombstones[r] = f
	}

	deleted := make(map[kernel.Handle]bool, len(h.Deleted))
	for _, d := range h.Deleted {
		deleted[d] = true
	}

	var ch Change
	for _, r := range t.order {
		old, ok := t.live[r]
		if !ok {
			continue
		}
		if nh, ok := h.Modified[old]; ok {
			if prev, taken := n.byHandle[nh]; taken {
				return nil, Change{}, caderr.New(caderr.KindKernelOperationFailed, op,
					"refs %s and %s both map to handle %d", prev, r, nh)
			}
			n.live[r] = nh
			n.byHandle[nh] = r
			continue
		}
		if deleted[old] {
			n.tombstones[r] = feature
			ch.Consumed = append(ch.Consumed, r)
			continue
		}
		return nil, Change{}, caderr.New(caderr.KindKernelOperationFailed, op,
			"history does not account for handle %d", old).WithRefs(r.String())
	}

	type minted struct {
		ref StableRef
		h   kernel.Handle
	}
	gen := make([]minted, 0, len(h.Generated))
	for _, g := range h.Generated {
		local, err := t.localName(g)
		if err != nil {
			return nil, Change{}, caderr.Wrap(caderr.KindKernelOperationFailed, op, err)
		}
		gen = append(gen, minted{
			ref: StableRef{Feature: feature, Kind: g.Kind, Role: g.Role, Local: local},
			h:   g.Handle,
		})
	}
	// Mint in name order. Only elements with identical names fall back to
	// the order the kernel reported them in.
	sort.SliceStable(gen, func(i, j int) bool { return less(gen[i].ref, gen[j].ref) })

	for _, m := range gen {
		if _, taken := n.byHandle[m.h]; taken {
			return nil, Change{}, caderr.New(caderr.KindKernelOperationFailed, op,
				"generated handle %d is already bound", m.h)
		}
		r := n.unique(m.ref)
		n.live[r] = m.h
		n.byHandle[m.h] = r
		n.order = append(n.order, r)
		ch.Created = append(ch.Created, r)
	}
	return n, ch, nil
}

// localName derives the local part of a generated element's ref.
func (t *Table) localName(g kernel.Generated) (string, error) {
	if len(g.Tags) > 0 {
		return strings.Join(g.Tags, "|"), nil
	}
	if len(g.Sources) == 0 {
		return "", nil
	}
	names := make([]string, len(g.Sources))
	for i, s := range g.Sources {
		r, ok := t.byHandle[s]
		if !ok {
			r, ok = t.retired[s]
		}
		if !ok {
			return "", fmt.Errorf("generated %s %q derives from unbound handle %d", g.Kind, g.Role, s)
		}
		names[i] = r.String()
	}
	return strings.Join(names, "+"), nil
}

func (t *Table) unique(r StableRef) StableRef {
	base := r.Local
	for i := 2; t.exists(r); i++ {
		r.Local = fmt.Sprintf("%s#%d", base, i)
	}
	return r
}

func (t *Table) exists(r StableRef) bool {
	if _, ok := t.live[r]; ok {
		return true
	}
	_, ok := t.tombstones[r]
	return ok
}

func less(a, b StableRef) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if a.Role != b.Role {
		return a.Role < b.Role
	}
	return a.Local < b.Local
}

// Resolve returns the current handle for r. It reports false for refs that
// were consumed by a later feature as well as for refs never minted.
func (t *Table) Resolve(r StableRef) (kernel.Handle, bool) {
	h, ok := t.live[r]
	return h, ok
}

// Lookup tells a consumed ref apart from one that never existed.
func (t *Table) Lookup(r StableRef) State {
	if _, ok := t.live[r]; ok {
		return StateLive
	}
	if _, ok := t.tombstones[r]; ok {
		return StateInvalidated
	}
	return StateUnknown
}

// ConsumedBy returns the feature that consumed r.
func (t *Table) ConsumedBy(r StableRef) (int, bool) {
	f, ok := t.tombstones[r]
	return f, ok
}

// RefOf returns the ref bound to a live handle.
func (t *Table) RefOf(h kernel.Handle) (StableRef, bool) {
	r, ok := t.byHandle[h]
	return r, ok
}

// Refs lists live refs in minting order, optionally only those of the
// given kinds.
func (t *Table) Refs(kinds ...kernel.TopoKind) []StableRef {
	var out []StableRef
	for _, r := range t.order {
		if _, ok := t.live[r]; !ok {
			continue
		}
		if len(kinds) > 0 && !hasKind(kinds, r.Kind) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// WithRole lists live refs of one kind and role in minting order.
func (t *Table) WithRole(kind kernel.TopoKind, role string) []StableRef {
	var out []StableRef
	for _, r := range t.Refs(kind) {
		if r.Role == role {
			out = append(out, r)
		}
	}
	return out
}

func hasKind(kinds []kernel.TopoKind, k kernel.TopoKind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

// Len is the number of live refs.
func (t *Table) Len() int { return len(t.live) }

// Invalidate returns a table in which refs are tombstoned by feature.
// Refs that are not live are ignored. The feature operator invalidates the
// refs an operation consumes before applying its history; their handles
// stay usable as sources for that one Apply.
func (t *Table) Invalidate(feature int, refs ...StableRef) *Table {
	n := t.clone()
	for _, r := range refs {
		h, ok := n.live[r]
		if !ok {
			continue
		}
		delete(n.live, r)
		delete(n.byHandle, h)
		n.retired[h] = r
		n.tombstones[r] = feature
	}
	return n
}

// Reconcile checks the table against the kernel's enumeration of s: every
// live ref must name an element of the right kind, and every element must
// be named.
func (t *Table) Reconcile(k kernel.Kernel, s kernel.Shape) error {
	const op = "topo.Reconcile"
	present := make(map[kernel.Handle]kernel.TopoKind)
	for _, e := range k.Edges(s) {
		present[e.Handle] = kernel.TopoEdge
	}
	for _, f := range k.Faces(s) {
		present[f.Handle] = kernel.TopoFace
	}

	var stale []string
	for _, r := range t.order {
		h, ok := t.live[r]
		if !ok {
			continue
		}
		if kind, ok := present[h]; !ok || kind != r.Kind {
			stale = append(stale, r.String())
		}
	}
	if len(stale) > 0 {
		return caderr.New(caderr.KindStaleReference, op, "%d refs do not match the shape", len(stale)).WithRefs(stale...)
	}

	var unnamed []kernel.Handle
	for h := range present {
		if _, ok := t.byHandle[h]; !ok {
			unnamed = append(unnamed, h)
		}
	}
	if len(unnamed) > 0 {
		sort.Slice(unnamed, func(i, j int) bool { return unnamed[i] < unnamed[j] })
		return caderr.New(caderr.KindKernelOperationFailed, op, "shape has unnamed topology %v", unnamed)
	}
	return nil
}
