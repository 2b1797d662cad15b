// Package rta implements Rapid Type Analysis over the program IR: a fast,
// context-insensitive call graph construction that resolves virtual calls
// against the set of types ever instantiated in reachable code.
//
// The result over-approximates the call graph of the pointer analysis with
// the same entry points, which makes it a cheap baseline to compare
// selectors against.
package rta

import (
	"github.com/715d/pointsto/internal/callgraph"
	"github.com/715d/pointsto/pkg/ir"
)

// Options configures the analysis.
type Options struct {
	// ImplicitEntries also starts from the program's implicit entries.
	ImplicitEntries bool

	// ClassInit makes class initializers reachable on first active use of
	// their class.
	ClassInit bool
}

// Result holds the results of Rapid Type Analysis.
type Result struct {
	// CallGraph is the discovered call graph. Edges from virtual and
	// interface call sites go to every dispatch target of a runtime type
	// compatible with the receiver's declared class.
	CallGraph *callgraph.Graph[*ir.Invoke, *ir.Method]

	// RuntimeTypes contains the types instantiated by reachable code, in
	// discovery order.
	RuntimeTypes []ir.Type
}

// Working state of the RTA algorithm.
type rta struct {
	result *Result
	prog   *ir.Program
	opts   Options

	worklist []*ir.Method // list of methods to visit

	// runtimeTypes is the set of RuntimeTypes.
	runtimeTypes map[ir.Type]bool

	// dynCallSites contains all virtual and interface call sites of
	// reachable methods, in discovery order.
	dynCallSites []*ir.Invoke

	initialized map[*ir.Class]bool
}

// addReachable marks a method as potentially callable at run-time,
// and ensures that it gets processed.
func (r *rta) addReachable(m *ir.Method) {
	if r.result.CallGraph.AddReachableMethod(m) {
		r.worklist = append(r.worklist, m)
	}
}

// addEdge adds a call edge and marks the callee as reachable.
func (r *rta) addEdge(site *ir.Invoke, callee *ir.Method) {
	r.result.CallGraph.AddEdge(callgraph.Edge[*ir.Invoke, *ir.Method]{
		Kind:     site.Kind,
		CallSite: site,
		Callee:   callee,
	})
	r.addReachable(callee)
}

// ---------- runtime types × dynamic call sites ----------

// visitRuntimeType is called each time we encounter an instantiated type t.
func (r *rta) visitRuntimeType(t ir.Type) {
	if t == nil || t == ir.Null || !t.IsReference() || r.runtimeTypes[t] {
		return
	}
	r.runtimeTypes[t] = true
	r.result.RuntimeTypes = append(r.result.RuntimeTypes, t)

	// Add an edge from every known site that t may be the receiver of.
	for _, site := range r.dynCallSites {
		r.addInvokeEdge(site, t)
	}
}

// visitDynCall is called each time we encounter a virtual or interface call.
func (r *rta) visitDynCall(site *ir.Invoke) {
	r.dynCallSites = append(r.dynCallSites, site)

	for _, t := range r.result.RuntimeTypes {
		r.addInvokeEdge(site, t)
	}
}

// addInvokeEdge is called for each new pair (site, t) in the matrix.
func (r *rta) addInvokeEdge(site *ir.Invoke, t ir.Type) {
	if !r.prog.IsSubtype(t, site.Ref.Class) {
		return
	}
	if callee := r.prog.Dispatch(t, site.Ref); callee != nil {
		r.addEdge(site, callee)
	}
}

// ---------- class initialization ----------

// initialize makes the class initializers of c and its superclasses
// reachable.
func (r *rta) initialize(c *ir.Class) {
	if !r.opts.ClassInit || c == nil || r.initialized[c] {
		return
	}
	r.initialized[c] = true
	r.initialize(c.Super)
	if clinit := c.Clinit(); clinit != nil {
		r.addReachable(clinit)
	}
}

// initializeType initializes the class of t, or of its innermost element
// type for arrays.
func (r *rta) initializeType(t ir.Type) {
	switch t := t.(type) {
	case *ir.Class:
		r.initialize(t)
	case *ir.ArrayType:
		r.initializeType(t.Elem)
	}
}

// ---------- main algorithm ----------

// visitMethod processes method m.
func (r *rta) visitMethod(m *ir.Method) {
	if m.Static {
		r.initialize(m.Class)
	}
	for _, stmt := range m.Stmts() {
		switch stmt := stmt.(type) {
		case *ir.New:
			r.visitRuntimeType(stmt.Type)
			r.initializeType(stmt.Type)

		case *ir.AssignLiteral:
			r.visitRuntimeType(stmt.Literal.Type())
			r.initializeType(stmt.Literal.Type())
			if lit, ok := stmt.Literal.(*ir.ClassLiteral); ok {
				r.initializeType(lit.Value)
			}

		case *ir.LoadField:
			if stmt.IsStatic() {
				r.initialize(stmt.Field.Class)
			}

		case *ir.StoreField:
			if stmt.IsStatic() {
				r.initialize(stmt.Field.Class)
			}

		case *ir.Invoke:
			r.result.CallGraph.SetContainer(stmt, m)
			switch stmt.Kind {
			case ir.CallVirtual, ir.CallInterface:
				r.visitDynCall(stmt)
			case ir.CallStatic, ir.CallSpecial:
				callee := r.prog.Resolve(stmt.Ref)
				if callee == nil || callee.Abstract {
					continue
				}
				if stmt.IsStatic() {
					r.initialize(callee.Class)
				}
				r.addEdge(stmt, callee)
			}
		}
	}
}

// visitEntry makes the entry method m reachable. The arguments array of a
// static main method and its elements are instantiated by the runtime.
func (r *rta) visitEntry(m *ir.Method) {
	r.result.CallGraph.AddEntryMethod(m)
	r.addReachable(m)
	if m.Name != "main" || !m.Static || len(m.Params) == 0 {
		return
	}
	if at, ok := m.Params[0].Type.(*ir.ArrayType); ok {
		r.visitRuntimeType(at)
		r.visitRuntimeType(at.Elem)
	}
}

// Analyze performs Rapid Type Analysis of prog, starting at its entry
// methods.
func Analyze(prog *ir.Program, opts Options) *Result {
	r := &rta{
		result: &Result{
			CallGraph: callgraph.New[*ir.Invoke, *ir.Method](),
		},
		prog:         prog,
		opts:         opts,
		runtimeTypes: make(map[ir.Type]bool),
		initialized:  make(map[*ir.Class]bool),
	}

	const initialWorklistCap = 256
	r.worklist = make([]*ir.Method, 0, initialWorklistCap)

	for _, m := range prog.Entries() {
		r.visitEntry(m)
	}
	if opts.ImplicitEntries {
		for _, m := range prog.ImplicitEntries() {
			r.visitEntry(m)
		}
	}

	// Visit methods, processing their statements, and adding new methods
	// to the worklist, until a fixed point is reached. The shadow buffer
	// is swapped with the worklist to reuse its allocation.
	shadow := make([]*ir.Method, 0, initialWorklistCap)
	for len(r.worklist) > 0 {
		shadow, r.worklist = r.worklist, shadow[:0]
		for _, m := range shadow {
			r.visitMethod(m)
		}
	}
	return r.result
}
