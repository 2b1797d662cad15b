// Package worklist implements the two-stream work list of the solver.
package worklist

import (
	"github.com/715d/pointsto/internal/callgraph"
	"github.com/715d/pointsto/internal/cs"
	"github.com/715d/pointsto/internal/queue"
)

// CallEdge is a context-sensitive call edge.
type CallEdge = callgraph.Edge[cs.CSCallSite, cs.CSMethod]

// Entry is a unit of pending work: a *PointerEntry or a *CallEdgeEntry.
type Entry interface {
	entry()
}

// PointerEntry asks for PointsTo to be propagated to Pointer.
type PointerEntry struct {
	Pointer  cs.Pointer
	PointsTo *cs.Set
}

// CallEdgeEntry asks for Edge to be added to the call graph.
type CallEdgeEntry struct {
	Edge CallEdge
}

func (*PointerEntry) entry()  {}
func (*CallEdgeEntry) entry() {}

// WorkList holds pointer entries, coalesced per pointer, and call edges.
// The zero value is not usable; call New.
type WorkList struct {
	pointers  queue.Queue[cs.Pointer]
	pending   map[cs.Pointer]*cs.Set
	callEdges queue.Queue[CallEdge]
}

// New returns an empty work list.
func New() *WorkList {
	return &WorkList{pending: make(map[cs.Pointer]*cs.Set)}
}

// AddPointerEntry schedules the objects of set for propagation to p. If p is
// already queued, set is merged into the queued entry, which keeps its place.
func (w *WorkList) AddPointerEntry(p cs.Pointer, set *cs.Set) {
	if queued, ok := w.pending[p]; ok {
		queued.AddAll(set)
		return
	}
	w.pending[p] = set.Copy()
	w.pointers.Push(p)
}

// AddCallEdge schedules e.
func (w *WorkList) AddCallEdge(e CallEdge) {
	w.callEdges.Push(e)
}

// Poll removes and returns the next entry, or nil if the work list is
// empty. Pointer entries are returned before any call edge, so pending
// pointers are drained again after every single call edge rather than after
// the whole call-edge stream.
func (w *WorkList) Poll() Entry {
	if !w.pointers.Empty() {
		p := w.pointers.Pop()
		set := w.pending[p]
		delete(w.pending, p)
		return &PointerEntry{Pointer: p, PointsTo: set}
	}
	if !w.callEdges.Empty() {
		return &CallEdgeEntry{Edge: w.callEdges.Pop()}
	}
	return nil
}

// IsEmpty reports whether both streams are empty.
func (w *WorkList) IsEmpty() bool {
	return w.pointers.Empty() && w.callEdges.Empty()
}

// Len returns the number of queued entries.
func (w *WorkList) Len() int {
	return w.pointers.Len() + w.callEdges.Len()
}
