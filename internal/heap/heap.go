// Package heap implements the allocation-site heap abstraction: every
// allocation site, constant and mock descriptor maps to one abstract object.
package heap

import (
	"fmt"
	"strconv"

	"github.com/715d/pointsto/pkg/ir"
)

// Kind classifies abstract objects.
type Kind uint8

const (
	// Alloc objects stand for the objects created at one allocation site.
	Alloc Kind = iota
	// Constant objects stand for a string or class constant.
	Constant
	// Mock objects are created by analysis models rather than the program.
	Mock
	// Merged objects stand for every object of a type whose sites are merged.
	Merged
)

func (k Kind) String() string {
	switch k {
	case Alloc:
		return "alloc"
	case Constant:
		return "constant"
	case Mock:
		return "mock"
	case Merged:
		return "merged"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Obj is an abstract heap object.
type Obj struct {
	// ID is unique per Model and assigned in creation order.
	ID   int
	Kind Kind
	Type ir.Type

	// Site is the allocation statement of Alloc objects.
	Site *ir.New

	// Literal is the constant of Constant objects.
	Literal ir.Literal

	// Desc and Alloc identify Mock objects.
	Desc  string
	Alloc any

	// Container is the method the object is allocated in, if any.
	Container *ir.Method

	label string
}

// ContainerType returns the class containing the allocation, falling back to
// the object's own type for objects without a container.
func (o *Obj) ContainerType() ir.Type {
	if o.Container != nil {
		return o.Container.Class
	}
	return o.Type
}

func (o *Obj) String() string {
	return o.label
}

// Options configures object merging.
type Options struct {
	// MergeStringConstants maps all string constants to one object.
	MergeStringConstants bool `yaml:"merge_string_constants"`

	// MergeStringObjects maps all "new String" sites to one object.
	MergeStringObjects bool `yaml:"merge_string_objects"`
}

type constKey struct {
	str   string
	class ir.Type
}

type mockKey struct {
	desc  string
	alloc any
	typ   ir.Type
}

// Model is an allocation-site heap model. It is not safe for concurrent use;
// each analysis owns its own Model.
type Model struct {
	prog *ir.Program
	opts Options

	objs      []*Obj
	allocs    map[*ir.New]*Obj
	constants map[constKey]*Obj
	mocks     map[mockKey]*Obj

	mergedStrings   *Obj
	mergedConstants *Obj
}

// NewModel creates an empty heap model for prog.
func NewModel(prog *ir.Program, opts Options) *Model {
	return &Model{
		prog:      prog,
		opts:      opts,
		allocs:    make(map[*ir.New]*Obj),
		constants: make(map[constKey]*Obj),
		mocks:     make(map[mockKey]*Obj),
	}
}

// Obj returns the object allocated by site.
func (h *Model) Obj(site *ir.New) *Obj {
	if o, ok := h.allocs[site]; ok {
		return o
	}
	var o *Obj
	if h.opts.MergeStringObjects && site.Type == ir.Type(h.prog.StringClass()) {
		if h.mergedStrings == nil {
			h.mergedStrings = h.add(&Obj{Kind: Merged, Type: site.Type, label: "<merged String objects>"})
		}
		o = h.mergedStrings
	} else {
		o = h.add(&Obj{
			Kind:      Alloc,
			Type:      site.Type,
			Site:      site,
			Container: site.Method(),
			label:     allocLabel(site),
		})
	}
	h.allocs[site] = o
	return o
}

// allocLabel names a site by its method, type and ordinal among the method's
// allocation sites, e.g. "A.main()/new B/0".
func allocLabel(site *ir.New) string {
	m := site.Method()
	ordinal := 0
	for _, s := range m.Stmts()[:site.Index()] {
		if _, ok := s.(*ir.New); ok {
			ordinal++
		}
	}
	return m.String() + "/new " + site.Type.Name() + "/" + strconv.Itoa(ordinal)
}

// ConstantObj returns the object for a string or class literal. It panics
// for other literals, which denote no object.
func (h *Model) ConstantObj(lit ir.Literal) *Obj {
	var key constKey
	switch lit := lit.(type) {
	case *ir.StringLiteral:
		if h.opts.MergeStringConstants {
			if h.mergedConstants == nil {
				h.mergedConstants = h.add(&Obj{Kind: Merged, Type: lit.Type(), Literal: lit, label: "<merged string constants>"})
			}
			return h.mergedConstants
		}
		key.str = lit.Value
	case *ir.ClassLiteral:
		key.class = lit.Value
	default:
		panic(fmt.Sprintf("no constant object for literal %v", lit))
	}
	if o, ok := h.constants[key]; ok {
		return o
	}
	o := h.add(&Obj{Kind: Constant, Type: lit.Type(), Literal: lit, label: lit.String()})
	h.constants[key] = o
	return o
}

// MockObj returns the object identified by (desc, alloc, t), creating it on
// first use. alloc must be comparable.
func (h *Model) MockObj(desc string, alloc any, t ir.Type, container *ir.Method) *Obj {
	key := mockKey{desc, alloc, t}
	if o, ok := h.mocks[key]; ok {
		return o
	}
	label := desc + ":" + t.Name()
	if alloc != nil {
		label = fmt.Sprintf("%s[%v]:%s", desc, alloc, t.Name())
	}
	o := h.add(&Obj{Kind: Mock, Type: t, Desc: desc, Alloc: alloc, Container: container, label: label})
	h.mocks[key] = o
	return o
}

// Objects returns all objects created so far, in creation order.
func (h *Model) Objects() []*Obj {
	return h.objs
}

func (h *Model) add(o *Obj) *Obj {
	o.ID = len(h.objs)
	h.objs = append(h.objs, o)
	return o
}
