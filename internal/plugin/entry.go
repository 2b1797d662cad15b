package plugin

import (
	"log/slog"

	"github.com/715d/pointsto/internal/solver"
	"github.com/715d/pointsto/pkg/ir"
)

// Descriptors of the mock objects passed to main.
const (
	MainArgsDesc     = "MainArgs"
	MainArgsElemDesc = "MainArgsElem"
)

// EntryPoints makes the program's entry methods reachable when the analysis
// starts.
type EntryPoints struct {
	solver.BasePlugin

	prog     *ir.Program
	implicit bool
}

// NewEntryPoints creates an EntryPoints plugin for prog. With implicit set,
// the program's implicit entries are added after its explicit ones.
func NewEntryPoints(prog *ir.Program, implicit bool) *EntryPoints {
	return &EntryPoints{prog: prog, implicit: implicit}
}

// OnStart adds the entry methods in the empty context and sets up the
// arguments of main.
func (p *EntryPoints) OnStart() {
	entries := p.prog.Entries()
	if p.implicit {
		entries = append(entries[:len(entries):len(entries)], p.prog.ImplicitEntries()...)
	}
	if len(entries) == 0 {
		slog.Warn("program has no entry methods")
	}
	for _, m := range entries {
		p.Solver.AddEntryPoint(m)
	}
	for _, m := range p.prog.Entries() {
		if m.Name == "main" && m.Static {
			p.setUpMainArgs(m)
		}
	}
}

// setUpMainArgs lets the first parameter of main point to a mock array
// whose elements point to a mock element object.
func (p *EntryPoints) setUpMainArgs(main *ir.Method) {
	if len(main.Params) == 0 {
		return
	}
	param := main.Params[0]
	at, ok := param.Type.(*ir.ArrayType)
	if !ok {
		return
	}
	mgr := p.Solver.Manager()
	ctx := p.Solver.Selector().EmptyContext()
	args := mgr.CSObj(ctx, p.Solver.Heap().MockObj(MainArgsDesc, nil, at, main))
	if at.Elem.IsReference() {
		elem := mgr.CSObj(ctx, p.Solver.Heap().MockObj(MainArgsElemDesc, nil, at.Elem, main))
		p.Solver.AddArrayPointsTo(args, elem)
	}
	p.Solver.AddVarPointsTo(ctx, param, args)
}
