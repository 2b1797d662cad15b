package plugin

import (
	"fmt"

	"github.com/715d/pointsto/internal/cs"
	"github.com/715d/pointsto/internal/pfg"
	"github.com/715d/pointsto/internal/solver"
	"github.com/715d/pointsto/pkg/ir"
)

const (
	systemClass     = "System"
	arraycopySubsig = "arraycopy(Object,int,Object,int,int)"
)

// ArrayCopy models the native System.arraycopy(src, srcPos, dest, destPos,
// length). Each call gets a temporary variable: elements of every src array
// flow into it, and from it into the elements of every dest array whose
// element type admits them.
type ArrayCopy struct {
	solver.BasePlugin

	arraycopy *ir.Method
	temps     map[*ir.Invoke]*ir.Var
	srcs      map[*ir.Var][]*ir.Var
	dests     map[*ir.Var][]*ir.Var
}

// NewArrayCopy creates an ArrayCopy plugin. It does nothing for programs
// that do not declare System.arraycopy.
func NewArrayCopy() *ArrayCopy {
	return &ArrayCopy{
		temps: make(map[*ir.Invoke]*ir.Var),
		srcs:  make(map[*ir.Var][]*ir.Var),
		dests: make(map[*ir.Var][]*ir.Var),
	}
}

// SetSolver looks up System.arraycopy.
func (p *ArrayCopy) SetSolver(s *solver.Solver) {
	p.BasePlugin.SetSolver(s)
	if c := s.Hierarchy().Class(systemClass); c != nil {
		if m := c.Method(arraycopySubsig); m != nil && m.Static {
			p.arraycopy = m
		}
	}
}

// OnNewMethod registers the calls to System.arraycopy in m.
func (p *ArrayCopy) OnNewMethod(m *ir.Method) {
	if p.arraycopy == nil {
		return
	}
	for _, stmt := range m.Stmts() {
		inv, ok := stmt.(*ir.Invoke)
		if !ok || !inv.IsStatic() || p.Solver.Hierarchy().Resolve(inv.Ref) != p.arraycopy {
			continue
		}
		temp := ir.NewTempVar(m, fmt.Sprintf("%%arraycopy-temp%d", len(p.temps)), p.arraycopy.ParamTypes[0])
		p.temps[inv] = temp
		src, dest := inv.Args[0], inv.Args[2]
		p.srcs[src] = append(p.srcs[src], temp)
		p.dests[dest] = append(p.dests[dest], temp)
	}
}

// OnNewPointsToSet connects the elements of new src and dest arrays to the
// temporaries of their calls.
func (p *ArrayCopy) OnNewPointsToSet(v cs.Pointer, diff *cs.Set) {
	mgr := p.Solver.Manager()
	info := mgr.Info(v)
	for _, temp := range p.srcs[info.Var] {
		to := mgr.CSVar(info.Context, temp)
		for o := range diff.Objects() {
			if isArray(mgr, o) {
				p.Solver.AddPFGEdge(mgr.ArrayIndex(o), to, pfg.ArrayLoad)
			}
		}
	}
	for _, temp := range p.dests[info.Var] {
		from := mgr.CSVar(info.Context, temp)
		for o := range diff.Objects() {
			if !isArray(mgr, o) {
				continue
			}
			index := mgr.ArrayIndex(o)
			p.Solver.AddPFGEdge(from, index, pfg.ArrayStore, solver.WithFilter(mgr.PointerType(index)))
		}
	}
}

func isArray(mgr *cs.Manager, o cs.CSObj) bool {
	_, ok := mgr.Obj(o).Type.(*ir.ArrayType)
	return ok
}
