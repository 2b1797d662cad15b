package plugin

import (
	"github.com/715d/pointsto/internal/cs"
	"github.com/715d/pointsto/internal/pts"
	"github.com/715d/pointsto/internal/solver"
	"github.com/715d/pointsto/pkg/ir"
)

// Members of the thread class the plugin models.
const (
	threadClass         = "Thread"
	threadStartSubsig   = "start()"
	threadRunSubsig     = "run()"
	currentThreadSubsig = "currentThread()"
)

// ThreadStart models Thread.start(): every thread object reaching the
// receiver of start() has its run() method called from a synthetic call
// site in start(). Started threads are returned by Thread.currentThread().
type ThreadStart struct {
	solver.BasePlugin

	start   *ir.Method
	run     *ir.MethodRef
	current *ir.Method

	// runSite is the synthetic call of run() in start().
	runSite *ir.Invoke

	running     *cs.Set
	currentCtxs []cs.Context
}

// NewThreadStart creates a ThreadStart plugin. It does nothing for programs
// without Thread.start() and Thread.run().
func NewThreadStart() *ThreadStart {
	return &ThreadStart{running: pts.New[cs.CSObj]()}
}

// SetSolver looks up the modeled methods.
func (p *ThreadStart) SetSolver(s *solver.Solver) {
	p.BasePlugin.SetSolver(s)
	thread := s.Hierarchy().Class(threadClass)
	if thread == nil {
		return
	}
	p.start = thread.Method(threadStartSubsig)
	run := thread.Method(threadRunSubsig)
	if p.start == nil || p.start.Static || run == nil {
		p.start = nil
		return
	}
	p.run = run.Ref()
	p.runSite = ir.NewSyntheticInvoke(p.start, ir.CallOther, p.run, p.start.This, nil, nil)
	if m := thread.Method(currentThreadSubsig); m != nil && m.Static {
		p.current = m
	}
}

// OnNewPointsToSet dispatches run() on new receivers of start().
func (p *ThreadStart) OnNewPointsToSet(v cs.Pointer, diff *cs.Set) {
	if p.start == nil {
		return
	}
	mgr := p.Solver.Manager()
	info := mgr.Info(v)
	if info.Var != p.start.This {
		return
	}
	site := mgr.CSCallSite(info.Context, p.runSite)
	for o := range diff.Objects() {
		callee := p.Solver.Hierarchy().Dispatch(mgr.Obj(o).Type, p.run)
		if callee == nil || callee.Abstract || callee.Static {
			continue
		}
		ctx := p.Solver.Selector().SelectContext(site, o, callee)
		p.Solver.AddCallEdge(solver.CallEdge{Kind: ir.CallOther, CallSite: site, Callee: mgr.CSMethod(ctx, callee)})
		p.Solver.AddVarPointsTo(ctx, callee.This, o)
	}

	if newThreads := p.running.AddAllDiff(diff); !newThreads.IsEmpty() {
		for _, ctx := range p.currentCtxs {
			p.returnRunning(ctx, newThreads)
		}
	}
}

// OnNewCSMethod returns all started threads from each reachable
// Thread.currentThread().
func (p *ThreadStart) OnNewCSMethod(m cs.CSMethod) {
	mgr := p.Solver.Manager()
	if p.current == nil || mgr.Method(m) != p.current {
		return
	}
	ctx := mgr.MethodContext(m)
	p.currentCtxs = append(p.currentCtxs, ctx)
	p.returnRunning(ctx, p.running)
}

func (p *ThreadStart) returnRunning(ctx cs.Context, threads *cs.Set) {
	for _, ret := range p.current.ReturnVars {
		p.Solver.AddPointsTo(p.Solver.Manager().CSVar(ctx, ret), threads)
	}
}
