// Package cs interns the context-sensitive elements of a pointer analysis:
// contexts, context-sensitive objects, pointers, methods and call sites.
//
// Every element is identified by a small integer handle into an arena owned
// by a Manager. Equal keys always produce the same handle, so handles can be
// compared with == and used as map keys or set elements.
package cs

import (
	"fmt"
	"iter"
	"strings"

	"github.com/715d/pointsto/internal/heap"
	"github.com/715d/pointsto/internal/pts"
	"github.com/715d/pointsto/pkg/ir"
)

type (
	// Context is an interned sequence of context elements.
	Context int32

	// CSObj is a heap context paired with an abstract object.
	CSObj int32

	// Pointer is a node of the pointer flow graph.
	Pointer int32

	// CSMethod is a method paired with its context.
	CSMethod int32

	// CSCallSite is a call site paired with the context of its caller.
	CSCallSite int32
)

// NoObj is passed where an object is expected but none exists, such as the
// receiver of a static call.
const NoObj CSObj = -1

// Set is a points-to set of context-sensitive objects.
type Set = pts.Set[CSObj]

type ctxKey struct {
	parent Context
	elem   any
}

type ctxNode struct {
	ctxKey
	depth int
}

type objKey struct {
	ctx Context
	obj *heap.Obj
}

type methodKey struct {
	ctx    Context
	method *ir.Method
}

type siteKey struct {
	ctx  Context
	site *ir.Invoke
}

// PointerKind classifies pointers.
type PointerKind uint8

const (
	VarPtr PointerKind = iota
	InstanceFieldPtr
	ArrayIndexPtr
	StaticFieldPtr
)

var pointerKindNames = [...]string{
	VarPtr:           "var",
	InstanceFieldPtr: "instance-field",
	ArrayIndexPtr:    "array-index",
	StaticFieldPtr:   "static-field",
}

func (k PointerKind) String() string {
	if int(k) < len(pointerKindNames) {
		return pointerKindNames[k]
	}
	return fmt.Sprintf("PointerKind(%d)", k)
}

// PointerInfo describes the location a Pointer stands for. Only the fields
// relevant to Kind are set; Base is NoObj unless Kind is InstanceFieldPtr or
// ArrayIndexPtr.
type PointerInfo struct {
	Kind    PointerKind
	Context Context
	Var     *ir.Var
	Base    CSObj
	Field   *ir.Field
}

type pointerData struct {
	info PointerInfo
	pts  *Set
}

// Manager owns the arena of context-sensitive elements of one analysis.
// It is not safe for concurrent mutation; once an analysis is finished,
// its read-only methods may be called concurrently.
type Manager struct {
	ctxs     []ctxNode
	ctxIndex map[ctxKey]Context

	objs     []objKey
	objIndex map[objKey]CSObj
	objsOf   map[*heap.Obj][]CSObj

	ptrs     []pointerData
	ptrIndex map[PointerInfo]Pointer
	varPtrs  map[*ir.Var][]Pointer

	methods     []methodKey
	methodIndex map[methodKey]CSMethod

	sites     []siteKey
	siteIndex map[siteKey]CSCallSite
}

// NewManager returns a manager holding only the empty context.
func NewManager() *Manager {
	return &Manager{
		ctxs:        []ctxNode{{ctxKey: ctxKey{parent: -1}}},
		ctxIndex:    make(map[ctxKey]Context),
		objIndex:    make(map[objKey]CSObj),
		objsOf:      make(map[*heap.Obj][]CSObj),
		ptrIndex:    make(map[PointerInfo]Pointer),
		varPtrs:     make(map[*ir.Var][]Pointer),
		methodIndex: make(map[methodKey]CSMethod),
		siteIndex:   make(map[siteKey]CSCallSite),
	}
}

// EmptyContext returns the context with no elements.
func (m *Manager) EmptyContext() Context {
	return 0
}

// MakeContext returns the context made of elems, oldest first. Elements must
// be comparable.
func (m *Manager) MakeContext(elems ...any) Context {
	ctx := m.EmptyContext()
	for _, e := range elems {
		ctx = m.child(ctx, e)
	}
	return ctx
}

func (m *Manager) child(parent Context, elem any) Context {
	key := ctxKey{parent, elem}
	if c, ok := m.ctxIndex[key]; ok {
		return c
	}
	c := Context(len(m.ctxs))
	m.ctxs = append(m.ctxs, ctxNode{ctxKey: key, depth: m.ctxs[parent].depth + 1})
	m.ctxIndex[key] = c
	return c
}

// Append returns the context formed by adding elem to ctx and keeping the
// last k elements.
func (m *Manager) Append(ctx Context, elem any, k int) Context {
	if k <= 0 {
		return m.EmptyContext()
	}
	if m.ctxs[ctx].depth < k {
		return m.child(ctx, elem)
	}
	elems := m.ContextElems(ctx)
	return m.MakeContext(append(elems[len(elems)-k+1:], elem)...)
}

// LastK returns the context made of the last k elements of ctx.
func (m *Manager) LastK(ctx Context, k int) Context {
	if k <= 0 {
		return m.EmptyContext()
	}
	if m.ctxs[ctx].depth <= k {
		return ctx
	}
	elems := m.ContextElems(ctx)
	return m.MakeContext(elems[len(elems)-k:]...)
}

// ContextLen returns the number of elements of ctx.
func (m *Manager) ContextLen(ctx Context) int {
	return m.ctxs[ctx].depth
}

// ContextElems returns the elements of ctx, oldest first.
func (m *Manager) ContextElems(ctx Context) []any {
	elems := make([]any, m.ctxs[ctx].depth)
	for c := ctx; c > 0; c = m.ctxs[c].parent {
		elems[m.ctxs[c].depth-1] = m.ctxs[c].elem
	}
	return elems
}

// ContextString formats ctx as "[e1, e2]".
func (m *Manager) ContextString(ctx Context) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, e := range m.ContextElems(ctx) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(elemString(e))
	}
	b.WriteByte(']')
	return b.String()
}

func elemString(e any) string {
	switch e := e.(type) {
	case *ir.Invoke:
		return e.Site()
	case ir.Type:
		return e.Name()
	default:
		return fmt.Sprint(e)
	}
}

// NumContexts returns the number of distinct contexts created.
func (m *Manager) NumContexts() int {
	return len(m.ctxs)
}

// CSObj returns the object obj under heap context ctx.
func (m *Manager) CSObj(ctx Context, obj *heap.Obj) CSObj {
	key := objKey{ctx, obj}
	if o, ok := m.objIndex[key]; ok {
		return o
	}
	o := CSObj(len(m.objs))
	m.objs = append(m.objs, key)
	m.objIndex[key] = o
	m.objsOf[obj] = append(m.objsOf[obj], o)
	return o
}

// Obj returns the abstract object of o.
func (m *Manager) Obj(o CSObj) *heap.Obj {
	return m.objs[o].obj
}

// ObjContext returns the heap context of o.
func (m *Manager) ObjContext(o CSObj) Context {
	return m.objs[o].ctx
}

// CSObjsOf returns every context-sensitive variant of obj created so far.
func (m *Manager) CSObjsOf(obj *heap.Obj) []CSObj {
	return m.objsOf[obj]
}

// Objects iterates over all context-sensitive objects in creation order.
func (m *Manager) Objects() iter.Seq[CSObj] {
	return func(yield func(CSObj) bool) {
		for i := range m.objs {
			if !yield(CSObj(i)) {
				return
			}
		}
	}
}

// NumObjects returns the number of context-sensitive objects.
func (m *Manager) NumObjects() int {
	return len(m.objs)
}

// ObjString formats o as "[ctx]:label".
func (m *Manager) ObjString(o CSObj) string {
	if o == NoObj {
		return "<none>"
	}
	return m.ContextString(m.objs[o].ctx) + ":" + m.objs[o].obj.String()
}

func (m *Manager) pointer(info PointerInfo) Pointer {
	if p, ok := m.ptrIndex[info]; ok {
		return p
	}
	p := Pointer(len(m.ptrs))
	m.ptrs = append(m.ptrs, pointerData{info: info, pts: &Set{}})
	m.ptrIndex[info] = p
	if info.Kind == VarPtr {
		m.varPtrs[info.Var] = append(m.varPtrs[info.Var], p)
	}
	return p
}

// CSVar returns the pointer of variable v under context ctx.
func (m *Manager) CSVar(ctx Context, v *ir.Var) Pointer {
	return m.pointer(PointerInfo{Kind: VarPtr, Context: ctx, Var: v, Base: NoObj})
}

// InstanceField returns the pointer of field f of base.
func (m *Manager) InstanceField(base CSObj, f *ir.Field) Pointer {
	if f.Static {
		panic(fmt.Sprintf("instance field pointer for static field %s", f))
	}
	return m.pointer(PointerInfo{Kind: InstanceFieldPtr, Base: base, Field: f})
}

// ArrayIndex returns the pointer standing for all elements of array.
func (m *Manager) ArrayIndex(array CSObj) Pointer {
	if _, ok := m.Obj(array).Type.(*ir.ArrayType); !ok {
		panic(fmt.Sprintf("array index of non-array object %s", m.ObjString(array)))
	}
	return m.pointer(PointerInfo{Kind: ArrayIndexPtr, Base: array})
}

// StaticField returns the context-insensitive pointer of static field f.
func (m *Manager) StaticField(f *ir.Field) Pointer {
	if !f.Static {
		panic(fmt.Sprintf("static field pointer for instance field %s", f))
	}
	return m.pointer(PointerInfo{Kind: StaticFieldPtr, Base: NoObj, Field: f})
}

// Lookup returns the pointer described by info without creating it.
// Base must be NoObj for variable and static field pointers.
func (m *Manager) Lookup(info PointerInfo) (Pointer, bool) {
	p, ok := m.ptrIndex[info]
	return p, ok
}

// CSVarsOf returns every context-sensitive pointer of v created so far.
func (m *Manager) CSVarsOf(v *ir.Var) []Pointer {
	return m.varPtrs[v]
}

// Info describes p.
func (m *Manager) Info(p Pointer) PointerInfo {
	return m.ptrs[p].info
}

// PointsTo returns the points-to set owned by p.
func (m *Manager) PointsTo(p Pointer) *Set {
	return m.ptrs[p].pts
}

// PointerType returns the declared type of the location p stands for.
func (m *Manager) PointerType(p Pointer) ir.Type {
	info := m.ptrs[p].info
	switch info.Kind {
	case VarPtr:
		return info.Var.Type
	case InstanceFieldPtr, StaticFieldPtr:
		return info.Field.Type
	case ArrayIndexPtr:
		return m.Obj(info.Base).Type.(*ir.ArrayType).Elem
	default:
		panic(fmt.Sprintf("unexpected pointer kind %v", info.Kind))
	}
}

// Pointers iterates over all pointers in creation order.
func (m *Manager) Pointers() iter.Seq[Pointer] {
	return func(yield func(Pointer) bool) {
		for i := range m.ptrs {
			if !yield(Pointer(i)) {
				return
			}
		}
	}
}

// NumPointers returns the number of pointers.
func (m *Manager) NumPointers() int {
	return len(m.ptrs)
}

// PointerString formats p, e.g. "[]:A.main()/a" or "[]:A.main()/new B/0.f".
func (m *Manager) PointerString(p Pointer) string {
	info := m.ptrs[p].info
	switch info.Kind {
	case VarPtr:
		return m.ContextString(info.Context) + ":" + info.Var.String()
	case InstanceFieldPtr:
		return m.ObjString(info.Base) + "." + info.Field.Name
	case ArrayIndexPtr:
		return m.ObjString(info.Base) + "[*]"
	default:
		return info.Field.String()
	}
}

// CSMethod returns method under context ctx.
func (m *Manager) CSMethod(ctx Context, method *ir.Method) CSMethod {
	key := methodKey{ctx, method}
	if cm, ok := m.methodIndex[key]; ok {
		return cm
	}
	cm := CSMethod(len(m.methods))
	m.methods = append(m.methods, key)
	m.methodIndex[key] = cm
	return cm
}

// LookupCSMethod returns method under ctx without creating it.
func (m *Manager) LookupCSMethod(ctx Context, method *ir.Method) (CSMethod, bool) {
	cm, ok := m.methodIndex[methodKey{ctx, method}]
	return cm, ok
}

// Method returns the method of cm.
func (m *Manager) Method(cm CSMethod) *ir.Method {
	return m.methods[cm].method
}

// MethodContext returns the context of cm.
func (m *Manager) MethodContext(cm CSMethod) Context {
	return m.methods[cm].ctx
}

// MethodString formats cm as "[ctx]:A.foo()".
func (m *Manager) MethodString(cm CSMethod) string {
	return m.ContextString(m.methods[cm].ctx) + ":" + m.methods[cm].method.String()
}

// CSCallSite returns site under the caller context ctx.
func (m *Manager) CSCallSite(ctx Context, site *ir.Invoke) CSCallSite {
	key := siteKey{ctx, site}
	if s, ok := m.siteIndex[key]; ok {
		return s
	}
	s := CSCallSite(len(m.sites))
	m.sites = append(m.sites, key)
	m.siteIndex[key] = s
	return s
}

// CallSite returns the call site of s.
func (m *Manager) CallSite(s CSCallSite) *ir.Invoke {
	return m.sites[s].site
}

// SiteContext returns the caller context of s.
func (m *Manager) SiteContext(s CSCallSite) Context {
	return m.sites[s].ctx
}

// CallSiteString formats s as "[ctx]:A.main()[3]".
func (m *Manager) CallSiteString(s CSCallSite) string {
	return m.ContextString(m.sites[s].ctx) + ":" + m.sites[s].site.Site()
}
