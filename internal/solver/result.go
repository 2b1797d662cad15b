package solver

import (
	"slices"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/715d/pointsto/internal/callgraph"
	"github.com/715d/pointsto/internal/cs"
	"github.com/715d/pointsto/internal/heap"
	"github.com/715d/pointsto/pkg/ir"
)

// MethodCallGraph is a call graph over call sites and methods without
// contexts.
type MethodCallGraph = callgraph.Graph[*ir.Invoke, *ir.Method]

// Result is the outcome of a finished analysis. It is read-only, and safe
// for concurrent use.
type Result struct {
	mgr      *cs.Manager
	cg       *CallGraph
	selector string

	vars      []*ir.Var
	objects   []*heap.Obj
	reachable []*ir.Method

	varPts    *xsync.Map[*ir.Var, []*heap.Obj]
	fieldPts  *xsync.Map[fieldKey, []*heap.Obj]
	objPts    *xsync.Map[objFieldKey, []*heap.Obj]
	callGraph func() *MethodCallGraph
}

type fieldKey struct {
	base  *ir.Var
	field *ir.Field
}

type objFieldKey struct {
	obj   *heap.Obj
	field *ir.Field
}

func newResult(s *Solver) *Result {
	r := &Result{
		mgr:      s.mgr,
		cg:       s.cg,
		selector: s.sel.Name(),
		varPts:   xsync.NewMap[*ir.Var, []*heap.Obj](),
		fieldPts: xsync.NewMap[fieldKey, []*heap.Obj](),
		objPts:   xsync.NewMap[objFieldKey, []*heap.Obj](),
	}

	seenVars := make(map[*ir.Var]bool)
	for p := range s.mgr.Pointers() {
		info := s.mgr.Info(p)
		if info.Kind == cs.VarPtr && !seenVars[info.Var] {
			seenVars[info.Var] = true
			r.vars = append(r.vars, info.Var)
		}
	}
	seenObjs := make(map[*heap.Obj]bool)
	for o := range s.mgr.Objects() {
		if obj := s.mgr.Obj(o); !seenObjs[obj] {
			seenObjs[obj] = true
			r.objects = append(r.objects, obj)
		}
	}
	slices.SortFunc(r.objects, compareObjs)
	seenMethods := make(map[*ir.Method]bool)
	for _, m := range s.cg.ReachableMethods() {
		if method := s.mgr.Method(m); !seenMethods[method] {
			seenMethods[method] = true
			r.reachable = append(r.reachable, method)
		}
	}
	r.callGraph = sync.OnceValue(r.collapseCallGraph)
	return r
}

func compareObjs(a, b *heap.Obj) int {
	return a.ID - b.ID
}

// Selector returns the name of the context selector the result was
// computed with.
func (r *Result) Selector() string {
	return r.selector
}

// NumPointers returns the number of context-sensitive pointers.
func (r *Result) NumPointers() int {
	return r.mgr.NumPointers()
}

// NumCSObjects returns the number of context-sensitive objects.
func (r *Result) NumCSObjects() int {
	return r.mgr.NumObjects()
}

// NumContexts returns the number of distinct contexts.
func (r *Result) NumContexts() int {
	return r.mgr.NumContexts()
}

// Vars returns the variables the analysis created pointers for.
func (r *Result) Vars() []*ir.Var {
	return r.vars
}

// Objects returns the abstract objects that exist in some heap context,
// ordered by ID.
func (r *Result) Objects() []*heap.Obj {
	return r.objects
}

// ReachableMethods returns the methods reachable in some context, in the
// order they first became reachable.
func (r *Result) ReachableMethods() []*ir.Method {
	return r.reachable
}

// CSPointsTo returns the points-to set of v under ctx, or nil if v has no
// pointer in ctx.
func (r *Result) CSPointsTo(ctx cs.Context, v *ir.Var) []cs.CSObj {
	p, ok := r.mgr.Lookup(cs.PointerInfo{Kind: cs.VarPtr, Context: ctx, Var: v, Base: cs.NoObj})
	if !ok {
		return nil
	}
	return r.mgr.PointsTo(p).Slice()
}

// PointsTo returns the objects v may point to in any context.
func (r *Result) PointsTo(v *ir.Var) []*heap.Obj {
	if objs, ok := r.varPts.Load(v); ok {
		return objs
	}
	objs := r.collapse(r.mgr.CSVarsOf(v))
	r.varPts.Store(v, objs)
	return objs
}

// FieldPointsTo returns the objects the expression base.f may point to.
func (r *Result) FieldPointsTo(base *ir.Var, f *ir.Field) []*heap.Obj {
	key := fieldKey{base, f}
	if objs, ok := r.fieldPts.Load(key); ok {
		return objs
	}
	var ptrs []cs.Pointer
	for _, bp := range r.mgr.CSVarsOf(base) {
		for o := range r.mgr.PointsTo(bp).Objects() {
			if p, ok := r.mgr.Lookup(cs.PointerInfo{Kind: cs.InstanceFieldPtr, Base: o, Field: f}); ok {
				ptrs = append(ptrs, p)
			}
		}
	}
	objs := r.collapse(ptrs)
	r.fieldPts.Store(key, objs)
	return objs
}

// ObjectFieldPointsTo returns the objects field f of obj may point to in any
// heap context.
func (r *Result) ObjectFieldPointsTo(obj *heap.Obj, f *ir.Field) []*heap.Obj {
	key := objFieldKey{obj, f}
	if objs, ok := r.objPts.Load(key); ok {
		return objs
	}
	var ptrs []cs.Pointer
	for _, o := range r.mgr.CSObjsOf(obj) {
		if p, ok := r.mgr.Lookup(cs.PointerInfo{Kind: cs.InstanceFieldPtr, Base: o, Field: f}); ok {
			ptrs = append(ptrs, p)
		}
	}
	objs := r.collapse(ptrs)
	r.objPts.Store(key, objs)
	return objs
}

// ArrayPointsTo returns the objects the elements of array may point to.
func (r *Result) ArrayPointsTo(array *heap.Obj) []*heap.Obj {
	var ptrs []cs.Pointer
	for _, o := range r.mgr.CSObjsOf(array) {
		if p, ok := r.mgr.Lookup(cs.PointerInfo{Kind: cs.ArrayIndexPtr, Base: o}); ok {
			ptrs = append(ptrs, p)
		}
	}
	return r.collapse(ptrs)
}

// StaticFieldPointsTo returns the objects static field f may point to.
func (r *Result) StaticFieldPointsTo(f *ir.Field) []*heap.Obj {
	p, ok := r.mgr.Lookup(cs.PointerInfo{Kind: cs.StaticFieldPtr, Base: cs.NoObj, Field: f})
	if !ok {
		return nil
	}
	return r.collapse([]cs.Pointer{p})
}

// MayAlias reports whether a and b may point to a common object.
func (r *Result) MayAlias(a, b *ir.Var) bool {
	objs := r.PointsTo(b)
	for _, o := range r.PointsTo(a) {
		if _, found := slices.BinarySearchFunc(objs, o, compareObjs); found {
			return true
		}
	}
	return false
}

// collapse unions the points-to sets of ptrs, dropping contexts. The
// objects are ordered by ID.
func (r *Result) collapse(ptrs []cs.Pointer) []*heap.Obj {
	seen := make(map[*heap.Obj]bool)
	var objs []*heap.Obj
	for _, p := range ptrs {
		for o := range r.mgr.PointsTo(p).Objects() {
			if obj := r.mgr.Obj(o); !seen[obj] {
				seen[obj] = true
				objs = append(objs, obj)
			}
		}
	}
	slices.SortFunc(objs, compareObjs)
	return objs
}

// CSCallGraph returns the context-sensitive call graph.
func (r *Result) CSCallGraph() *CallGraph {
	return r.cg
}

// CallGraph returns the call graph with contexts removed.
func (r *Result) CallGraph() *MethodCallGraph {
	return r.callGraph()
}

func (r *Result) collapseCallGraph() *MethodCallGraph {
	g := callgraph.New[*ir.Invoke, *ir.Method]()
	for _, m := range r.cg.EntryMethods() {
		g.AddEntryMethod(r.mgr.Method(m))
	}
	for _, m := range r.cg.ReachableMethods() {
		method := r.mgr.Method(m)
		g.AddReachableMethod(method)
		for _, site := range r.cg.CallSitesIn(m) {
			g.SetContainer(r.mgr.CallSite(site), method)
		}
	}
	for _, e := range r.cg.Edges() {
		g.AddEdge(callgraph.Edge[*ir.Invoke, *ir.Method]{
			Kind:     e.Kind,
			CallSite: r.mgr.CallSite(e.CallSite),
			Callee:   r.mgr.Method(e.Callee),
		})
	}
	return g
}
