package solver

import (
	"fmt"

	"github.com/715d/pointsto/internal/cs"
	"github.com/715d/pointsto/internal/pfg"
	"github.com/715d/pointsto/pkg/ir"
)

// translate generates the constraints of the statements of m. Instance
// field accesses, array accesses and instance calls are handled when the
// points-to set of their base variable grows.
func (s *Solver) translate(m cs.CSMethod) {
	ctx := s.mgr.MethodContext(m)
	for _, stmt := range s.mgr.Method(m).Stmts() {
		switch stmt := stmt.(type) {
		case *ir.New:
			s.translateNew(m, ctx, stmt)
		case *ir.AssignLiteral:
			s.translateLiteral(m, ctx, stmt)
		case *ir.Copy:
			if isConcerned(stmt.RValue) {
				s.AddPFGEdge(s.mgr.CSVar(ctx, stmt.RValue), s.mgr.CSVar(ctx, stmt.LValue), pfg.LocalAssign)
			}
		case *ir.Cast:
			if isConcerned(stmt.RValue) {
				s.AddPFGEdge(s.mgr.CSVar(ctx, stmt.RValue), s.mgr.CSVar(ctx, stmt.LValue), pfg.Cast,
					WithFilter(stmt.Type))
			}
		case *ir.LoadField:
			if stmt.IsStatic() && isConcerned(stmt.LValue) {
				s.AddPFGEdge(s.mgr.StaticField(stmt.Field), s.mgr.CSVar(ctx, stmt.LValue), pfg.StaticLoad)
			}
		case *ir.StoreField:
			if stmt.IsStatic() && isConcerned(stmt.RValue) {
				s.AddPFGEdge(s.mgr.CSVar(ctx, stmt.RValue), s.mgr.StaticField(stmt.Field), pfg.StaticStore)
			}
		case *ir.Invoke:
			s.cg.SetContainer(s.mgr.CSCallSite(ctx, stmt), m)
			if stmt.IsStatic() {
				s.processInvokeStatic(ctx, stmt)
			}
		case *ir.LoadArray, *ir.StoreArray, *ir.Return:
		default:
			panic(fmt.Sprintf("unexpected statement %T", stmt))
		}
	}
}

func (s *Solver) translateNew(m cs.CSMethod, ctx cs.Context, stmt *ir.New) {
	obj := s.heap.Obj(stmt)
	heapCtx := s.sel.SelectHeapContext(m, obj)
	array := s.mgr.CSObj(heapCtx, obj)
	s.AddVarPointsTo(ctx, stmt.LValue, array)
	if stmt.Dims > 1 {
		s.translateMultiArray(m, stmt, array)
	}
	if s.hasOverriddenFinalize(stmt.Type) {
		s.translateFinalizer(m, ctx, stmt)
	}
}

// translateMultiArray chains one mock array object per inner dimension of a
// multi-dimensional allocation through array index facts.
func (s *Solver) translateMultiArray(m cs.CSMethod, stmt *ir.New, array cs.CSObj) {
	inner, ok := s.multiArrays[stmt]
	if !ok {
		outer := s.mgr.Obj(array)
		t := stmt.Type.(*ir.ArrayType)
		for range stmt.Dims - 1 {
			t = t.Elem.(*ir.ArrayType)
			inner = append(inner, s.heap.MockObj(multiArrayDesc, outer, t, stmt.Method()))
		}
		s.multiArrays[stmt] = inner
	}
	for _, obj := range inner {
		elem := s.mgr.CSObj(s.sel.SelectHeapContext(m, obj), obj)
		s.AddArrayPointsTo(array, elem)
		array = elem
	}
}

// hasOverriddenFinalize reports whether objects of type t have a finalizer
// other than the root class's.
func (s *Solver) hasOverriddenFinalize(t ir.Type) bool {
	if s.finalize == nil {
		return false
	}
	c, ok := t.(*ir.Class)
	if !ok {
		return false
	}
	return s.hierarchy.Dispatch(c, s.finalize.Ref()) != s.finalize
}

// translateFinalizer models the registration of an object with a finalizer
// by a static call Finalizer.register(obj) at its allocation site.
func (s *Solver) translateFinalizer(m cs.CSMethod, ctx cs.Context, stmt *ir.New) {
	inv, ok := s.registers[stmt]
	if !ok {
		inv = ir.NewSyntheticInvoke(stmt.Method(), ir.CallStatic, s.register.Ref(), nil, []*ir.Var{stmt.LValue}, nil)
		s.registers[stmt] = inv
	}
	s.cg.SetContainer(s.mgr.CSCallSite(ctx, inv), m)
	s.processInvokeStatic(ctx, inv)
}

func (s *Solver) translateLiteral(m cs.CSMethod, ctx cs.Context, stmt *ir.AssignLiteral) {
	switch stmt.Literal.(type) {
	case *ir.StringLiteral, *ir.ClassLiteral:
		obj := s.heap.ConstantObj(stmt.Literal)
		s.AddVarPointsTo(ctx, stmt.LValue, s.mgr.CSObj(s.sel.SelectHeapContext(m, obj), obj))
	case ir.NullLiteral, ir.IntLiteral:
	default:
		panic(fmt.Sprintf("unexpected literal %T", stmt.Literal))
	}
}

func (s *Solver) processInvokeStatic(ctx cs.Context, inv *ir.Invoke) {
	callee := s.hierarchy.Resolve(inv.Ref)
	if callee == nil || callee.Abstract || !callee.Static {
		s.plugin.OnUnresolvedCall(cs.NoObj, ctx, inv)
		return
	}
	site := s.mgr.CSCallSite(ctx, inv)
	calleeCtx := s.sel.SelectStaticContext(site, callee)
	s.wl.AddCallEdge(CallEdge{Kind: ir.CallStatic, CallSite: site, Callee: s.mgr.CSMethod(calleeCtx, callee)})
}
