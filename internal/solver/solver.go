// Package solver implements an on-the-fly, context-sensitive inclusion-based
// pointer analysis.
//
// The solver keeps a pointer flow graph (PFG) whose nodes are pointers and
// whose edges propagate points-to sets, and a call graph that grows as
// receiver objects are discovered. Newly reachable methods are translated
// into PFG edges and points-to facts; the work list holds points-to deltas
// and call edges until both are exhausted.
package solver

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/715d/pointsto/internal/callgraph"
	"github.com/715d/pointsto/internal/cs"
	"github.com/715d/pointsto/internal/heap"
	"github.com/715d/pointsto/internal/pfg"
	"github.com/715d/pointsto/internal/selector"
	"github.com/715d/pointsto/internal/worklist"
	"github.com/715d/pointsto/pkg/ir"
)

// CallEdge is a context-sensitive call edge.
type CallEdge = worklist.CallEdge

// CallGraph is the context-sensitive call graph.
type CallGraph = callgraph.Graph[cs.CSCallSite, cs.CSMethod]

// HeapModel maps allocation sites, constants and mock descriptors to
// abstract objects.
type HeapModel interface {
	Obj(site *ir.New) *heap.Obj
	ConstantObj(lit ir.Literal) *heap.Obj
	MockObj(desc string, alloc any, t ir.Type, container *ir.Method) *heap.Obj
}

// Options configures a Solver.
type Options struct {
	// OnlyApp skips the statements of library methods.
	OnlyApp bool

	// Plugins receive solver events in order.
	Plugins []Plugin
}

const (
	finalizeSubsig = "finalize()"
	finalizerClass = "Finalizer"
	registerSubsig = "register(Object)"
	multiArrayDesc = "MultiArrayObj"
)

// Solver computes points-to sets and the call graph of a program. A Solver
// runs once and is confined to one goroutine.
type Solver struct {
	hierarchy ir.Hierarchy
	heap      HeapModel
	mgr       *cs.Manager
	sel       selector.Selector
	plugin    *CompositePlugin
	onlyApp   bool

	pfg      *pfg.Graph
	cg       *CallGraph
	wl       *worklist.WorkList
	methods  map[*ir.Method]bool
	initDone map[*ir.Class]bool

	// Finalizer modelling; nil when the program lacks either method.
	finalize *ir.Method
	register *ir.Method

	multiArrays map[*ir.New][]*heap.Obj
	registers   map[*ir.New]*ir.Invoke

	solved bool
	result *Result
}

// New creates a solver. The manager must be the one sel was created with.
func New(h ir.Hierarchy, hm HeapModel, mgr *cs.Manager, sel selector.Selector, opts Options) *Solver {
	s := &Solver{
		hierarchy:   h,
		heap:        hm,
		mgr:         mgr,
		sel:         sel,
		plugin:      NewCompositePlugin(opts.Plugins...),
		onlyApp:     opts.OnlyApp,
		pfg:         pfg.New(),
		cg:          callgraph.New[cs.CSCallSite, cs.CSMethod](),
		wl:          worklist.New(),
		methods:     make(map[*ir.Method]bool),
		initDone:    make(map[*ir.Class]bool),
		multiArrays: make(map[*ir.New][]*heap.Obj),
		registers:   make(map[*ir.New]*ir.Invoke),
	}
	if obj := h.Class(ir.ObjectClass); obj != nil {
		s.finalize = obj.Method(finalizeSubsig)
	}
	if fin := h.Class(finalizerClass); fin != nil {
		s.register = fin.Method(registerSubsig)
	}
	if s.finalize == nil || s.register == nil {
		s.finalize, s.register = nil, nil
	}
	s.plugin.SetSolver(s)
	return s
}

// Solve runs the analysis to its fixpoint and returns the result. It panics
// if called twice.
func (s *Solver) Solve() *Result {
	if s.solved {
		panic("solver: Solve called twice")
	}
	s.solved = true

	start := time.Now()
	slog.Debug("pointer analysis started", "selector", s.sel.Name(), "only_app", s.onlyApp)
	s.plugin.OnStart()
	s.analyze()
	s.result = newResult(s)
	slog.Debug("pointer analysis finished",
		"selector", s.sel.Name(),
		"reachable", s.cg.NumReachableMethods(),
		"call_edges", s.cg.NumEdges(),
		"pointers", s.mgr.NumPointers(),
		"objects", s.mgr.NumObjects(),
		"pfg_edges", s.pfg.NumEdges(),
		"dur", time.Since(start))
	s.plugin.OnFinish()
	return s.result
}

// ---------- main algorithm ----------

// analyze drains the work list. Poll returns pointer entries first, so all
// pending propagation completes before the next call edge is processed.
func (s *Solver) analyze() {
	for e := s.wl.Poll(); e != nil; e = s.wl.Poll() {
		switch e := e.(type) {
		case *worklist.PointerEntry:
			diff := s.propagate(e.Pointer, e.PointsTo)
			if diff.IsEmpty() {
				continue
			}
			info := s.mgr.Info(e.Pointer)
			if info.Kind != cs.VarPtr {
				continue
			}
			if s.onlyApp && !info.Var.Method.IsApplication() {
				continue
			}
			s.processInstanceStore(info, diff)
			s.processInstanceLoad(info, diff)
			s.processArrayStore(info, diff)
			s.processArrayLoad(info, diff)
			s.processCall(info, diff)
			s.plugin.OnNewPointsToSet(e.Pointer, diff)
		case *worklist.CallEdgeEntry:
			s.processCallEdge(e.Edge)
		default:
			panic(fmt.Sprintf("unexpected work list entry %T", e))
		}
	}
}

// propagate adds set to pt(p), passes the newly added objects along the
// out edges of p and returns them.
func (s *Solver) propagate(p cs.Pointer, set *cs.Set) *cs.Set {
	diff := s.mgr.PointsTo(p).AddAllDiff(set)
	if diff.IsEmpty() {
		return diff
	}
	for _, e := range s.pfg.OutEdgesOf(p) {
		for _, t := range e.Transfers() {
			if out := t.Apply(e, diff); !out.IsEmpty() {
				s.wl.AddPointerEntry(e.Target, out)
			}
		}
	}
	return diff
}

// assignable returns the objects of set whose type is a subtype of t.
func (s *Solver) assignable(set *cs.Set, t ir.Type) *cs.Set {
	out := &cs.Set{}
	for o := range set.Objects() {
		if s.hierarchy.IsSubtype(s.mgr.Obj(o).Type, t) {
			out.AddObject(o)
		}
	}
	return out
}

func (s *Solver) processInstanceStore(base cs.PointerInfo, diff *cs.Set) {
	for _, store := range base.Var.StoreFields() {
		if !isConcerned(store.RValue) {
			continue
		}
		from := s.mgr.CSVar(base.Context, store.RValue)
		for o := range diff.Objects() {
			s.AddPFGEdge(from, s.mgr.InstanceField(o, store.Field), pfg.InstanceStore)
		}
	}
}

func (s *Solver) processInstanceLoad(base cs.PointerInfo, diff *cs.Set) {
	for _, load := range base.Var.LoadFields() {
		if !isConcerned(load.LValue) {
			continue
		}
		to := s.mgr.CSVar(base.Context, load.LValue)
		for o := range diff.Objects() {
			s.AddPFGEdge(s.mgr.InstanceField(o, load.Field), to, pfg.InstanceLoad)
		}
	}
}

func (s *Solver) processArrayStore(base cs.PointerInfo, diff *cs.Set) {
	for _, store := range base.Var.StoreArrays() {
		if !isConcerned(store.RValue) {
			continue
		}
		from := s.mgr.CSVar(base.Context, store.RValue)
		for o := range diff.Objects() {
			if !isArray(s.mgr.Obj(o)) {
				continue
			}
			index := s.mgr.ArrayIndex(o)
			// Array stores are always filtered by the element type.
			s.AddPFGEdge(from, index, pfg.ArrayStore, WithFilter(s.mgr.PointerType(index)))
		}
	}
}

func (s *Solver) processArrayLoad(base cs.PointerInfo, diff *cs.Set) {
	for _, load := range base.Var.LoadArrays() {
		if !isConcerned(load.LValue) {
			continue
		}
		to := s.mgr.CSVar(base.Context, load.LValue)
		for o := range diff.Objects() {
			if !isArray(s.mgr.Obj(o)) {
				continue
			}
			s.AddPFGEdge(s.mgr.ArrayIndex(o), to, pfg.ArrayLoad)
		}
	}
}

func isArray(o *heap.Obj) bool {
	_, ok := o.Type.(*ir.ArrayType)
	return ok
}

// processCall resolves the instance calls on a receiver variable for its
// newly pointed objects.
func (s *Solver) processCall(recv cs.PointerInfo, diff *cs.Set) {
	for _, inv := range recv.Var.Invokes() {
		site := s.mgr.CSCallSite(recv.Context, inv)
		for o := range diff.Objects() {
			callee := s.resolveCallee(o, inv)
			if callee == nil {
				s.plugin.OnUnresolvedCall(o, recv.Context, inv)
				continue
			}
			ctx := s.sel.SelectContext(site, o, callee)
			s.wl.AddCallEdge(CallEdge{Kind: inv.Kind, CallSite: site, Callee: s.mgr.CSMethod(ctx, callee)})
			// this is bound directly: the receiver is fixed per call edge.
			s.AddVarPointsTo(ctx, callee.This, o)
		}
	}
}

// resolveCallee dispatches inv on the type of recv. Special calls resolve
// statically. Abstract targets count as unresolved.
func (s *Solver) resolveCallee(recv cs.CSObj, inv *ir.Invoke) *ir.Method {
	var callee *ir.Method
	switch inv.Kind {
	case ir.CallSpecial:
		callee = s.hierarchy.Resolve(inv.Ref)
	case ir.CallVirtual, ir.CallInterface:
		callee = s.hierarchy.Dispatch(s.mgr.Obj(recv).Type, inv.Ref)
	default:
		panic(fmt.Sprintf("%s: %s call with receiver", inv.Site(), inv.Kind))
	}
	if callee == nil || callee.Abstract || callee.Static {
		return nil
	}
	return callee
}

// processCallEdge adds e to the call graph and, the first time, makes the
// callee reachable and wires arguments and return values.
func (s *Solver) processCallEdge(e CallEdge) {
	if !s.cg.AddEdge(e) {
		return
	}
	inv := s.mgr.CallSite(e.CallSite)
	callerCtx := s.mgr.SiteContext(e.CallSite)
	if _, ok := s.cg.ContainerOf(e.CallSite); !ok {
		s.cg.SetContainer(e.CallSite, s.mgr.CSMethod(callerCtx, inv.Method()))
	}
	s.processNewCSMethod(e.Callee)

	if e.Kind != ir.CallOther {
		callee := s.mgr.Method(e.Callee)
		calleeCtx := s.mgr.MethodContext(e.Callee)
		if len(inv.Args) != len(callee.Params) {
			panic(fmt.Sprintf("%s: %d arguments for %s", inv.Site(), len(inv.Args), callee))
		}
		for i, arg := range inv.Args {
			if isConcerned(arg) {
				s.AddPFGEdge(s.mgr.CSVar(callerCtx, arg), s.mgr.CSVar(calleeCtx, callee.Params[i]), pfg.ParameterPassing)
			}
		}
		if inv.Result != nil && isConcerned(inv.Result) {
			lhs := s.mgr.CSVar(callerCtx, inv.Result)
			for _, ret := range callee.ReturnVars {
				if isConcerned(ret) {
					s.AddPFGEdge(s.mgr.CSVar(calleeCtx, ret), lhs, pfg.Return)
				}
			}
		}
	}
	s.plugin.OnNewCallEdge(e)
}

// processNewCSMethod makes m reachable and translates its statements the
// first time it is seen.
func (s *Solver) processNewCSMethod(m cs.CSMethod) {
	if !s.cg.AddReachableMethod(m) {
		return
	}
	method := s.mgr.Method(m)
	if s.onlyApp && !method.IsApplication() {
		return
	}
	if !s.methods[method] {
		s.methods[method] = true
		s.plugin.OnNewMethod(method)
	}
	s.translate(m)
	s.plugin.OnNewCSMethod(m)
}

// isConcerned reports whether v may hold references.
func isConcerned(v *ir.Var) bool {
	return v.Type.IsReference() && v.Type != ir.Null
}
