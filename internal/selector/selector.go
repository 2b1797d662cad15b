// Package selector implements context-sensitivity policies.
package selector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/715d/pointsto/internal/cs"
	"github.com/715d/pointsto/internal/heap"
	"github.com/715d/pointsto/pkg/ir"
)

// Selector chooses the contexts of callees and of allocated objects.
type Selector interface {
	// EmptyContext returns the context of entry methods.
	EmptyContext() cs.Context

	// SelectContext returns the callee context of an instance call on recv.
	SelectContext(site cs.CSCallSite, recv cs.CSObj, callee *ir.Method) cs.Context

	// SelectStaticContext returns the callee context of a call without a
	// receiver.
	SelectStaticContext(site cs.CSCallSite, callee *ir.Method) cs.Context

	// SelectHeapContext returns the heap context of obj allocated in m.
	SelectHeapContext(m cs.CSMethod, obj *heap.Obj) cs.Context

	// Name returns the selector name accepted by New.
	Name() string
}

var ErrUnknownSelector = errors.New("unknown context selector")

// New returns the selector named name: "ci" for context insensitivity, or
// "<k>-call", "<k>-obj" and "<k>-type" for k-limited call-site, object and
// type sensitivity.
func New(mgr *cs.Manager, name string) (Selector, error) {
	if name == "ci" {
		return Insensitive{mgr: mgr}, nil
	}
	ks, kind, ok := strings.Cut(name, "-")
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSelector, name)
	}
	k, err := strconv.Atoi(ks)
	if err != nil || k < 1 {
		return nil, fmt.Errorf("%w %q: limit must be a positive integer", ErrUnknownSelector, name)
	}
	switch kind {
	case "call", "cfa":
		return &KCall{mgr: mgr, k: k}, nil
	case "obj":
		return &KObj{mgr: mgr, k: k}, nil
	case "type":
		return &KType{mgr: mgr, k: k}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownSelector, name)
	}
}

// Insensitive puts every method and object in the empty context.
type Insensitive struct {
	mgr *cs.Manager
}

func (s Insensitive) EmptyContext() cs.Context {
	return s.mgr.EmptyContext()
}

func (s Insensitive) SelectContext(cs.CSCallSite, cs.CSObj, *ir.Method) cs.Context {
	return s.mgr.EmptyContext()
}

func (s Insensitive) SelectStaticContext(cs.CSCallSite, *ir.Method) cs.Context {
	return s.mgr.EmptyContext()
}

func (s Insensitive) SelectHeapContext(cs.CSMethod, *heap.Obj) cs.Context {
	return s.mgr.EmptyContext()
}

func (Insensitive) Name() string {
	return "ci"
}

// KCall is k-limited call-site sensitivity (k-CFA).
type KCall struct {
	mgr *cs.Manager
	k   int
}

func (s *KCall) EmptyContext() cs.Context {
	return s.mgr.EmptyContext()
}

func (s *KCall) SelectContext(site cs.CSCallSite, _ cs.CSObj, callee *ir.Method) cs.Context {
	return s.SelectStaticContext(site, callee)
}

func (s *KCall) SelectStaticContext(site cs.CSCallSite, _ *ir.Method) cs.Context {
	return s.mgr.Append(s.mgr.SiteContext(site), s.mgr.CallSite(site), s.k)
}

func (s *KCall) SelectHeapContext(m cs.CSMethod, _ *heap.Obj) cs.Context {
	return s.mgr.LastK(s.mgr.MethodContext(m), s.k-1)
}

func (s *KCall) Name() string {
	return strconv.Itoa(s.k) + "-call"
}

// KObj is k-limited object sensitivity: the callee context is the receiver
// object appended to its heap context.
type KObj struct {
	mgr *cs.Manager
	k   int
}

func (s *KObj) EmptyContext() cs.Context {
	return s.mgr.EmptyContext()
}

func (s *KObj) SelectContext(_ cs.CSCallSite, recv cs.CSObj, _ *ir.Method) cs.Context {
	return s.mgr.Append(s.mgr.ObjContext(recv), s.mgr.Obj(recv), s.k)
}

// SelectStaticContext reuses the caller context.
func (s *KObj) SelectStaticContext(site cs.CSCallSite, _ *ir.Method) cs.Context {
	return s.mgr.SiteContext(site)
}

func (s *KObj) SelectHeapContext(m cs.CSMethod, _ *heap.Obj) cs.Context {
	return s.mgr.LastK(s.mgr.MethodContext(m), s.k-1)
}

func (s *KObj) Name() string {
	return strconv.Itoa(s.k) + "-obj"
}

// KType is k-limited type sensitivity: like KObj, but contexts hold the class
// containing the receiver's allocation site instead of the receiver.
type KType struct {
	mgr *cs.Manager
	k   int
}

func (s *KType) EmptyContext() cs.Context {
	return s.mgr.EmptyContext()
}

func (s *KType) SelectContext(_ cs.CSCallSite, recv cs.CSObj, _ *ir.Method) cs.Context {
	return s.mgr.Append(s.mgr.ObjContext(recv), s.mgr.Obj(recv).ContainerType(), s.k)
}

func (s *KType) SelectStaticContext(site cs.CSCallSite, _ *ir.Method) cs.Context {
	return s.mgr.SiteContext(site)
}

func (s *KType) SelectHeapContext(m cs.CSMethod, _ *heap.Obj) cs.Context {
	return s.mgr.LastK(s.mgr.MethodContext(m), s.k-1)
}

func (s *KType) Name() string {
	return strconv.Itoa(s.k) + "-type"
}
