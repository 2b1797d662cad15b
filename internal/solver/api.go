package solver

import (
	"fmt"

	"github.com/715d/pointsto/internal/cs"
	"github.com/715d/pointsto/internal/pfg"
	"github.com/715d/pointsto/internal/pts"
	"github.com/715d/pointsto/internal/selector"
	"github.com/715d/pointsto/pkg/ir"
)

// AddPointsTo schedules the objects of set for propagation to p.
func (s *Solver) AddPointsTo(p cs.Pointer, set *cs.Set) {
	if !set.IsEmpty() {
		s.wl.AddPointerEntry(p, set)
	}
}

// AddVarPointsTo schedules objs for propagation to v under ctx.
func (s *Solver) AddVarPointsTo(ctx cs.Context, v *ir.Var, objs ...cs.CSObj) {
	s.AddPointsTo(s.mgr.CSVar(ctx, v), pts.New(objs...))
}

// AddArrayPointsTo schedules objs for propagation to the elements of array.
func (s *Solver) AddArrayPointsTo(array cs.CSObj, objs ...cs.CSObj) {
	s.AddPointsTo(s.mgr.ArrayIndex(array), pts.New(objs...))
}

// AddInstanceFieldPointsTo schedules objs for propagation to field f of base.
func (s *Solver) AddInstanceFieldPointsTo(base cs.CSObj, f *ir.Field, objs ...cs.CSObj) {
	s.AddPointsTo(s.mgr.InstanceField(base, f), pts.New(objs...))
}

// AddStaticFieldPointsTo schedules objs for propagation to static field f.
func (s *Solver) AddStaticFieldPointsTo(f *ir.Field, objs ...cs.CSObj) {
	s.AddPointsTo(s.mgr.StaticField(f), pts.New(objs...))
}

type edgeConfig struct {
	filter   ir.Type
	transfer pfg.Transfer
}

// EdgeOption configures AddPFGEdge.
type EdgeOption func(*edgeConfig)

// WithFilter lets only objects whose type is a subtype of t pass the edge.
func WithFilter(t ir.Type) EdgeOption {
	return func(c *edgeConfig) {
		c.filter = t
	}
}

// WithTransfer makes the edge pass the objects computed by t instead. It
// takes precedence over WithFilter.
func WithTransfer(t pfg.Transfer) EdgeOption {
	return func(c *edgeConfig) {
		c.transfer = t
	}
}

// typeFilter passes the objects assignable to t.
type typeFilter struct {
	t ir.Type
	s *Solver
}

func (f typeFilter) Apply(_ *pfg.Edge, in *cs.Set) *cs.Set {
	return f.s.assignable(in, f.t)
}

// AddPFGEdge adds the flow edge (src, dst, kind) with the transfer selected
// by opts. When the transfer is new to the edge, the current points-to set
// of src is passed through it once; later deltas follow automatically.
func (s *Solver) AddPFGEdge(src, dst cs.Pointer, kind pfg.Kind, opts ...EdgeOption) {
	var cfg edgeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	var t pfg.Transfer = pfg.Identity{}
	switch {
	case cfg.transfer != nil:
		t = cfg.transfer
	case cfg.filter != nil:
		t = typeFilter{t: cfg.filter, s: s}
	}

	e, _ := s.pfg.AddEdge(src, dst, kind)
	if !e.AddTransfer(t) {
		return
	}
	if set := s.mgr.PointsTo(src); !set.IsEmpty() {
		s.AddPointsTo(dst, t.Apply(e, set))
	}
}

// AddCallEdge schedules e. Edges of kind ir.CallOther carry no argument or
// return flow; their creator wires what it needs with AddPFGEdge.
func (s *Solver) AddCallEdge(e CallEdge) {
	s.wl.AddCallEdge(e)
}

// AddCSMethod makes m reachable.
func (s *Solver) AddCSMethod(m cs.CSMethod) {
	s.processNewCSMethod(m)
}

// AddEntryPoint makes m reachable in the empty context as an entry method.
func (s *Solver) AddEntryPoint(m *ir.Method) cs.CSMethod {
	cm := s.mgr.CSMethod(s.sel.EmptyContext(), m)
	s.cg.AddEntryMethod(cm)
	s.processNewCSMethod(cm)
	return cm
}

// InitializeClass runs the static initialization of c: c is marked, then
// its superclass is initialized, then its <clinit> becomes reachable in the
// empty context. Each class is initialized at most once.
func (s *Solver) InitializeClass(c *ir.Class) {
	if c == nil || s.initDone[c] {
		return
	}
	// Marked before recursing: static initializers may depend on each
	// other circularly.
	s.initDone[c] = true
	s.plugin.OnClassInitialized(c)
	s.InitializeClass(c.Super)
	if clinit := c.Clinit(); clinit != nil {
		s.AddCSMethod(s.mgr.CSMethod(s.sel.EmptyContext(), clinit))
	}
}

// PointsToOf returns the current points-to set of p. It must not be modified.
func (s *Solver) PointsToOf(p cs.Pointer) *cs.Set {
	return s.mgr.PointsTo(p)
}

// Manager returns the context-sensitive element manager.
func (s *Solver) Manager() *cs.Manager {
	return s.mgr
}

// Hierarchy returns the class hierarchy.
func (s *Solver) Hierarchy() ir.Hierarchy {
	return s.hierarchy
}

// Heap returns the heap model.
func (s *Solver) Heap() HeapModel {
	return s.heap
}

// Selector returns the context selector.
func (s *Solver) Selector() selector.Selector {
	return s.sel
}

// CallGraph returns the context-sensitive call graph built so far.
func (s *Solver) CallGraph() *CallGraph {
	return s.cg
}

// PFG returns the pointer flow graph built so far.
func (s *Solver) PFG() *pfg.Graph {
	return s.pfg
}

// Plugins returns the registered plugins in broadcast order.
func (s *Solver) Plugins() []Plugin {
	return s.plugin.Plugins()
}

// Result returns the result of Solve. It panics before Solve returns.
func (s *Solver) Result() *Result {
	if s.result == nil {
		panic(fmt.Sprintf("solver: result requested before the fixpoint (%d entries pending)", s.wl.Len()))
	}
	return s.result
}
