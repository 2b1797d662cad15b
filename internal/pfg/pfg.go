// Package pfg implements the pointer flow graph: directed edges between
// pointers along which points-to sets propagate.
package pfg

import (
	"fmt"
	"iter"
	"slices"

	"github.com/715d/pointsto/internal/cs"
)

// Kind classifies flow edges by the statement or call edge that created them.
type Kind uint8

const (
	LocalAssign Kind = iota
	Cast
	InstanceLoad
	InstanceStore
	ArrayLoad
	ArrayStore
	StaticLoad
	StaticStore
	ParameterPassing
	Return
	// Other marks edges added by analysis models.
	Other
)

var kindNames = [...]string{
	LocalAssign:      "local-assign",
	Cast:             "cast",
	InstanceLoad:     "instance-load",
	InstanceStore:    "instance-store",
	ArrayLoad:        "array-load",
	ArrayStore:       "array-store",
	StaticLoad:       "static-load",
	StaticStore:      "static-store",
	ParameterPassing: "parameter-passing",
	Return:           "return",
	Other:            "other",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Transfer computes the objects an edge passes on from a delta of its
// source. Implementations must be comparable; equal transfers are applied
// to an edge only once.
type Transfer interface {
	Apply(e *Edge, in *cs.Set) *cs.Set
}

// Identity passes every object on unchanged.
type Identity struct{}

func (Identity) Apply(_ *Edge, in *cs.Set) *cs.Set {
	return in
}

// Edge is a flow edge from Source to Target.
type Edge struct {
	Source cs.Pointer
	Target cs.Pointer
	Kind   Kind

	transfers []Transfer
}

// AddTransfer attaches t to e and reports whether it was not attached yet.
func (e *Edge) AddTransfer(t Transfer) bool {
	if slices.Contains(e.transfers, t) {
		return false
	}
	e.transfers = append(e.transfers, t)
	return true
}

// Transfers returns the transfers of e in attachment order.
func (e *Edge) Transfers() []Transfer {
	return e.transfers
}

type edgeKey struct {
	src, dst cs.Pointer
	kind     Kind
}

// Graph is a pointer flow graph. Only out edges are indexed.
type Graph struct {
	edges map[edgeKey]*Edge
	out   map[cs.Pointer][]*Edge
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		edges: make(map[edgeKey]*Edge),
		out:   make(map[cs.Pointer][]*Edge),
	}
}

// AddEdge returns the edge (src, dst, kind), creating it if needed. The
// boolean reports whether the edge is new.
func (g *Graph) AddEdge(src, dst cs.Pointer, kind Kind) (*Edge, bool) {
	key := edgeKey{src, dst, kind}
	if e, ok := g.edges[key]; ok {
		return e, false
	}
	e := &Edge{Source: src, Target: dst, Kind: kind}
	g.edges[key] = e
	g.out[src] = append(g.out[src], e)
	return e, true
}

// OutEdgesOf returns the edges leaving p.
func (g *Graph) OutEdgesOf(p cs.Pointer) []*Edge {
	return g.out[p]
}

// NumEdges returns the number of edges.
func (g *Graph) NumEdges() int {
	return len(g.edges)
}

// Edges iterates over all edges grouped by source pointer.
func (g *Graph) Edges() iter.Seq[*Edge] {
	return func(yield func(*Edge) bool) {
		srcs := make([]cs.Pointer, 0, len(g.out))
		for p := range g.out {
			srcs = append(srcs, p)
		}
		slices.Sort(srcs)
		for _, p := range srcs {
			for _, e := range g.out[p] {
				if !yield(e) {
					return
				}
			}
		}
	}
}
