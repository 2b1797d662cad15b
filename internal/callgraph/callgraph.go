// Package callgraph implements an incrementally built call graph, generic
// over its call site and method representations so that one implementation
// serves both the context-sensitive graph and its context-collapsed
// projection.
package callgraph

import (
	"slices"

	"github.com/715d/pointsto/pkg/ir"
)

// Edge is a call edge from CallSite to Callee.
type Edge[S, M comparable] struct {
	Kind     ir.CallKind
	CallSite S
	Callee   M
}

// Graph is a call graph over call sites S and methods M. Edges and methods
// are only ever added.
type Graph[S, M comparable] struct {
	entries   []M
	reachable []M
	isReach   map[M]bool

	edges    []Edge[S, M]
	hasEdge  map[Edge[S, M]]bool
	outEdges map[S][]Edge[S, M]
	inEdges  map[M][]Edge[S, M]

	container map[S]M
	sitesIn   map[M][]S
}

// New returns an empty call graph.
func New[S, M comparable]() *Graph[S, M] {
	return &Graph[S, M]{
		isReach:   make(map[M]bool),
		hasEdge:   make(map[Edge[S, M]]bool),
		outEdges:  make(map[S][]Edge[S, M]),
		inEdges:   make(map[M][]Edge[S, M]),
		container: make(map[S]M),
		sitesIn:   make(map[M][]S),
	}
}

// AddEntryMethod records m as an entry method. Entry methods are not made
// reachable implicitly.
func (g *Graph[S, M]) AddEntryMethod(m M) {
	if !slices.Contains(g.entries, m) {
		g.entries = append(g.entries, m)
	}
}

// EntryMethods returns the entry methods in insertion order.
func (g *Graph[S, M]) EntryMethods() []M {
	return g.entries
}

// AddReachableMethod marks m reachable and reports whether it was not yet.
func (g *Graph[S, M]) AddReachableMethod(m M) bool {
	if g.isReach[m] {
		return false
	}
	g.isReach[m] = true
	g.reachable = append(g.reachable, m)
	return true
}

// ReachableMethods returns the reachable methods in the order they became
// reachable.
func (g *Graph[S, M]) ReachableMethods() []M {
	return g.reachable
}

// Contains reports whether m is reachable.
func (g *Graph[S, M]) Contains(m M) bool {
	return g.isReach[m]
}

// AddEdge adds e and reports whether it is new.
func (g *Graph[S, M]) AddEdge(e Edge[S, M]) bool {
	if g.hasEdge[e] {
		return false
	}
	g.hasEdge[e] = true
	g.edges = append(g.edges, e)
	g.outEdges[e.CallSite] = append(g.outEdges[e.CallSite], e)
	g.inEdges[e.Callee] = append(g.inEdges[e.Callee], e)
	return true
}

// HasEdge reports whether e has been added.
func (g *Graph[S, M]) HasEdge(e Edge[S, M]) bool {
	return g.hasEdge[e]
}

// SetContainer records the method containing site. Only the first call has
// an effect; it reports whether the container was recorded.
func (g *Graph[S, M]) SetContainer(site S, m M) bool {
	if _, ok := g.container[site]; ok {
		return false
	}
	g.container[site] = m
	g.sitesIn[m] = append(g.sitesIn[m], site)
	return true
}

// ContainerOf returns the method containing site.
func (g *Graph[S, M]) ContainerOf(site S) (M, bool) {
	m, ok := g.container[site]
	return m, ok
}

// CallSitesIn returns the call sites recorded in m.
func (g *Graph[S, M]) CallSitesIn(m M) []S {
	return g.sitesIn[m]
}

// CalleesOf returns the distinct callees of site.
func (g *Graph[S, M]) CalleesOf(site S) []M {
	var callees []M
	for _, e := range g.outEdges[site] {
		if !slices.Contains(callees, e.Callee) {
			callees = append(callees, e.Callee)
		}
	}
	return callees
}

// CallersOf returns the distinct call sites calling m.
func (g *Graph[S, M]) CallersOf(m M) []S {
	var sites []S
	for _, e := range g.inEdges[m] {
		if !slices.Contains(sites, e.CallSite) {
			sites = append(sites, e.CallSite)
		}
	}
	return sites
}

// EdgesOutOf returns the edges leaving site.
func (g *Graph[S, M]) EdgesOutOf(site S) []Edge[S, M] {
	return g.outEdges[site]
}

// EdgesInto returns the edges entering m.
func (g *Graph[S, M]) EdgesInto(m M) []Edge[S, M] {
	return g.inEdges[m]
}

// Edges returns all edges in insertion order.
func (g *Graph[S, M]) Edges() []Edge[S, M] {
	return g.edges
}

// NumEdges returns the number of edges.
func (g *Graph[S, M]) NumEdges() int {
	return len(g.edges)
}

// NumReachableMethods returns the number of reachable methods.
func (g *Graph[S, M]) NumReachableMethods() int {
	return len(g.reachable)
}
