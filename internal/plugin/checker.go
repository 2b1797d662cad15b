package plugin

import (
	"fmt"
	"log/slog"

	"github.com/715d/pointsto/internal/cs"
	"github.com/715d/pointsto/internal/solver"
	"github.com/715d/pointsto/pkg/ir"
)

// ConstraintChecker reports events that arrive for a method before the
// method itself was announced: a context-sensitive method before its
// OnNewMethod, or a points-to delta on a variable before its method or
// context-sensitive method. Receiver variables are exempt.
type ConstraintChecker struct {
	solver.BasePlugin

	reached    map[*ir.Method]bool
	reachedCS  map[cs.CSMethod]bool
	violations []string
}

// NewConstraintChecker creates a ConstraintChecker.
func NewConstraintChecker() *ConstraintChecker {
	return &ConstraintChecker{
		reached:   make(map[*ir.Method]bool),
		reachedCS: make(map[cs.CSMethod]bool),
	}
}

// Violations returns the reported violations in order.
func (p *ConstraintChecker) Violations() []string {
	return p.violations
}

func (p *ConstraintChecker) OnNewMethod(m *ir.Method) {
	p.reached[m] = true
}

func (p *ConstraintChecker) OnNewCSMethod(m cs.CSMethod) {
	mgr := p.Solver.Manager()
	if method := mgr.Method(m); !p.reached[method] {
		p.report(mgr.MethodString(m), method.String())
	}
	p.reachedCS[m] = true
}

func (p *ConstraintChecker) OnNewPointsToSet(v cs.Pointer, _ *cs.Set) {
	mgr := p.Solver.Manager()
	info := mgr.Info(v)
	method := info.Var.Method
	if info.Var == method.This {
		// Receivers are bound together with their call edge.
		return
	}
	if !p.reached[method] {
		p.report(varString(info.Var), method.String())
	}
	if m, ok := mgr.LookupCSMethod(info.Context, method); !ok || !p.reachedCS[m] {
		p.report(mgr.PointerString(v), mgr.ContextString(info.Context)+":"+method.String())
	}
}

func (p *ConstraintChecker) report(hit, before string) {
	p.violations = append(p.violations, fmt.Sprintf("hit %s before processing %s", hit, before))
	slog.Warn("constraint order violated", "hit", hit, "before", before)
}
