package cs

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/pointsto/internal/heap"
	"github.com/715d/pointsto/pkg/ir"
)

func TestManager_Contexts(t *testing.T) {
	m := NewManager()
	empty := m.EmptyContext()
	assert.Equal(t, 0, m.ContextLen(empty))
	assert.Equal(t, "[]", m.ContextString(empty))

	ab := m.MakeContext("a", "b")
	assert.Equal(t, ab, m.MakeContext("a", "b"), "contexts are interned")
	assert.NotEqual(t, ab, m.MakeContext("b", "a"))
	assert.Equal(t, []any{"a", "b"}, m.ContextElems(ab))
	assert.Equal(t, "[a, b]", m.ContextString(ab))

	tests := []struct {
		name string
		got  Context
		want Context
	}{
		{name: "append below limit", got: m.Append(m.MakeContext("a"), "b", 2), want: ab},
		{name: "append at limit", got: m.Append(ab, "c", 2), want: m.MakeContext("b", "c")},
		{name: "append k=1", got: m.Append(ab, "c", 1), want: m.MakeContext("c")},
		{name: "append k=0", got: m.Append(ab, "c", 0), want: empty},
		{name: "last k longer", got: m.LastK(ab, 3), want: ab},
		{name: "last k shorter", got: m.LastK(ab, 1), want: m.MakeContext("b")},
		{name: "last zero", got: m.LastK(ab, 0), want: empty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, m.ContextString(tt.want), m.ContextString(tt.got))
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestManager_Elements(t *testing.T) {
	prog := ir.NewProgram()
	a := prog.AddClass("A", nil)
	f := a.AddField("f", prog.ObjectClass(), false)
	s := a.AddField("s", prog.ObjectClass(), true)
	main := a.AddMethod("main", nil, ir.Void, true)
	x := main.NewVar("x", a)
	arr := main.NewVar("arr", prog.ArrayOf(a))
	newA := &ir.New{LValue: x, Type: a, Dims: 1}
	newArr := &ir.New{LValue: arr, Type: prog.ArrayOf(a), Dims: 1}
	main.AddStmt(newA)
	main.AddStmt(newArr)

	h := heap.NewModel(prog, heap.Options{})
	m := NewManager()
	c1 := m.MakeContext("c1")

	o := m.CSObj(c1, h.Obj(newA))
	require.Equal(t, o, m.CSObj(c1, h.Obj(newA)))
	require.NotEqual(t, o, m.CSObj(m.EmptyContext(), h.Obj(newA)))
	assert.Same(t, h.Obj(newA), m.Obj(o))
	assert.Equal(t, c1, m.ObjContext(o))
	assert.Len(t, m.CSObjsOf(h.Obj(newA)), 2)
	assert.Equal(t, "[c1]:A.main()/new A/0", m.ObjString(o))

	_, ok := m.LookupCSMethod(c1, main)
	assert.False(t, ok)
	cm := m.CSMethod(c1, main)
	found, ok := m.LookupCSMethod(c1, main)
	require.True(t, ok)
	assert.Equal(t, cm, found)

	xp := m.CSVar(c1, x)
	require.Equal(t, xp, m.CSVar(c1, x))
	assert.Equal(t, "[c1]:A.main()/x", m.PointerString(xp))
	assert.Equal(t, ir.Type(a), m.PointerType(xp))

	fp := m.InstanceField(o, f)
	assert.Equal(t, "[c1]:A.main()/new A/0.f", m.PointerString(fp))
	assert.Equal(t, ir.Type(prog.ObjectClass()), m.PointerType(fp))

	sp := m.StaticField(s)
	assert.Equal(t, "A.s", m.PointerString(sp))

	ao := m.CSObj(m.EmptyContext(), h.Obj(newArr))
	ap := m.ArrayIndex(ao)
	assert.Equal(t, "[]:A.main()/new A[]/1[*]", m.PointerString(ap))
	assert.Equal(t, ir.Type(a), m.PointerType(ap))

	assert.Panics(t, func() { m.ArrayIndex(o) })
	assert.Panics(t, func() { m.InstanceField(o, s) })
	assert.Panics(t, func() { m.StaticField(f) })

	got, ok := m.Lookup(PointerInfo{Kind: InstanceFieldPtr, Base: o, Field: f})
	require.True(t, ok)
	assert.Equal(t, fp, got)
	_, ok = m.Lookup(PointerInfo{Kind: VarPtr, Context: m.EmptyContext(), Var: x, Base: NoObj})
	assert.False(t, ok)

	assert.Equal(t, []Pointer{xp}, m.CSVarsOf(x))
	assert.Equal(t, []Pointer{xp, fp, sp, ap}, slices.Collect(m.Pointers()))

	m.PointsTo(xp).AddObject(o)
	assert.True(t, m.PointsTo(xp).Has(o))
	assert.True(t, m.PointsTo(fp).IsEmpty())

	cm = m.CSMethod(c1, main)
	assert.Equal(t, cm, m.CSMethod(c1, main))
	assert.Same(t, main, m.Method(cm))
	assert.Equal(t, "[c1]:A.main()", m.MethodString(cm))

	inv := ir.NewSyntheticInvoke(main, ir.CallStatic, main.Ref(), nil, nil, nil)
	site := m.CSCallSite(c1, inv)
	assert.Equal(t, site, m.CSCallSite(c1, inv))
	assert.Same(t, inv, m.CallSite(site))
	assert.Equal(t, c1, m.SiteContext(site))
	assert.Equal(t, "[c1]:A.main()[main]", m.CallSiteString(site))
}
