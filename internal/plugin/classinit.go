// Package plugin contains solver plugins that model language and runtime
// behavior outside the core constraint rules: static initialization, entry
// points, threads and native methods. It also has two diagnostics plugins.
package plugin

import (
	"github.com/715d/pointsto/internal/solver"
	"github.com/715d/pointsto/pkg/ir"
)

// ClassInitializer triggers static initialization on first active use of a
// class: a call to one of its static methods, an allocation, a static field
// access, a static call or a class literal.
type ClassInitializer struct {
	solver.BasePlugin
}

// NewClassInitializer creates a ClassInitializer.
func NewClassInitializer() *ClassInitializer {
	return &ClassInitializer{}
}

// OnNewMethod initializes the classes m uses.
func (p *ClassInitializer) OnNewMethod(m *ir.Method) {
	if m.Static {
		p.Solver.InitializeClass(m.Class)
	}
	for _, stmt := range m.Stmts() {
		switch stmt := stmt.(type) {
		case *ir.New:
			p.initialize(stmt.Type)
		case *ir.AssignLiteral:
			p.initialize(stmt.Literal.Type())
			if lit, ok := stmt.Literal.(*ir.ClassLiteral); ok {
				p.initialize(lit.Value)
			}
		case *ir.LoadField:
			if stmt.IsStatic() {
				p.Solver.InitializeClass(stmt.Field.Class)
			}
		case *ir.StoreField:
			if stmt.IsStatic() {
				p.Solver.InitializeClass(stmt.Field.Class)
			}
		case *ir.Invoke:
			if !stmt.IsStatic() {
				continue
			}
			if callee := p.Solver.Hierarchy().Resolve(stmt.Ref); callee != nil {
				p.Solver.InitializeClass(callee.Class)
			}
		}
	}
}

// initialize initializes the class of t, or of its innermost element type
// for arrays. Primitive types have no class.
func (p *ClassInitializer) initialize(t ir.Type) {
	switch t := t.(type) {
	case *ir.Class:
		p.Solver.InitializeClass(t)
	case *ir.ArrayType:
		p.initialize(t.Elem)
	}
}
