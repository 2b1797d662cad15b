package ir

import (
	"fmt"
	"slices"

	"github.com/puzpuzpuz/xsync/v4"
)

// Hierarchy answers the type system and method resolution queries the
// pointer analysis depends on.
type Hierarchy interface {
	// Class returns the class with the given name, or nil.
	Class(name string) *Class

	// IsSubtype reports whether a value of type sub is assignable to super.
	IsSubtype(sub, super Type) bool

	// Dispatch resolves ref against the runtime type recv, returning nil if
	// no concrete method matches.
	Dispatch(recv Type, ref *MethodRef) *Method

	// Resolve resolves ref without a receiver (static and special calls).
	Resolve(ref *MethodRef) *Method
}

// Program is a closed world of classes with its entry methods. After
// loading, a Program is read-only and may be shared by concurrent analyses;
// its query caches are safe for concurrent use.
type Program struct {
	classes map[string]*Class
	order   []*Class

	objectClass *Class
	stringClass *Class
	classClass  *Class

	entries  []*Method
	implicit []*Method

	arrays     *xsync.Map[Type, *ArrayType]
	subtypes   *xsync.Map[typePair, bool]
	dispatches *xsync.Map[dispatchKey, *Method]
}

type typePair struct {
	sub, super Type
}

type dispatchKey struct {
	recv   Type
	subsig string
}

var _ Hierarchy = (*Program)(nil)

// NewProgram creates a program containing the predefined library classes
// Object, String and Class.
func NewProgram() *Program {
	p := &Program{
		classes:    make(map[string]*Class),
		arrays:     xsync.NewMap[Type, *ArrayType](),
		subtypes:   xsync.NewMap[typePair, bool](),
		dispatches: xsync.NewMap[dispatchKey, *Method](),
	}
	p.objectClass = p.AddClass(ObjectClass, nil)
	p.stringClass = p.AddClass(StringClass, p.objectClass)
	p.classClass = p.AddClass(ClassClass, p.objectClass)
	for _, c := range p.order {
		c.builtin = true
		c.Application = false
	}
	return p
}

// AddClass declares a new application class. A nil super defaults to Object
// for every class except Object itself. It panics on duplicate names.
func (p *Program) AddClass(name string, super *Class) *Class {
	if _, ok := p.classes[name]; ok {
		panic(fmt.Sprintf("class %s declared twice", name))
	}
	if super == nil && p.objectClass != nil {
		super = p.objectClass
	}
	c := &Class{
		Super:       super,
		Application: true,
		name:        name,
		fields:      make(map[string]*Field),
		methods:     make(map[string]*Method),
	}
	p.classes[name] = c
	p.order = append(p.order, c)
	return c
}

// Class implements Hierarchy.
func (p *Program) Class(name string) *Class {
	return p.classes[name]
}

// Classes returns all classes in declaration order, predefined classes first.
func (p *Program) Classes() []*Class {
	return p.order
}

// ObjectClass returns the root class.
func (p *Program) ObjectClass() *Class {
	return p.objectClass
}

// StringClass returns the predefined String class.
func (p *Program) StringClass() *Class {
	return p.stringClass
}

// ClassClass returns the predefined Class class.
func (p *Program) ClassClass() *Class {
	return p.classClass
}

// AddEntry registers an entry method such as main.
func (p *Program) AddEntry(m *Method) {
	p.entries = append(p.entries, m)
}

// Entries returns the registered entry methods.
func (p *Program) Entries() []*Method {
	return p.entries
}

// AddImplicitEntry registers a method the runtime calls without an explicit
// call site, e.g. a startup hook.
func (p *Program) AddImplicitEntry(m *Method) {
	p.implicit = append(p.implicit, m)
}

// ImplicitEntries returns the registered implicit entry methods.
func (p *Program) ImplicitEntries() []*Method {
	return p.implicit
}

// ArrayOf returns the interned array type with element type elem.
func (p *Program) ArrayOf(elem Type) *ArrayType {
	if at, ok := p.arrays.Load(elem); ok {
		return at
	}
	at, _ := p.arrays.LoadOrStore(elem, &ArrayType{Elem: elem, name: elem.Name() + "[]"})
	return at
}

// LookupType resolves a type name such as "int", "A" or "A[][]".
// It returns nil for unknown class names.
func (p *Program) LookupType(name string) Type {
	base, dims := splitArrayName(name)
	var t Type
	if prim, ok := primitives[base]; ok {
		t = prim
	} else if c := p.classes[base]; c != nil {
		t = c
	} else {
		return nil
	}
	for range dims {
		t = p.ArrayOf(t)
	}
	return t
}

// LookupMethod returns the method of class className with the given
// subsignature, or nil.
func (p *Program) LookupMethod(className, subsig string) *Method {
	c := p.classes[className]
	if c == nil {
		return nil
	}
	return c.Method(subsig)
}

// IsSubtype implements Hierarchy.
func (p *Program) IsSubtype(sub, super Type) bool {
	if sub == super {
		return true
	}
	if sub == Null {
		return super.IsReference()
	}
	if !sub.IsReference() || !super.IsReference() {
		return false
	}
	key := typePair{sub, super}
	if ok, found := p.subtypes.Load(key); found {
		return ok
	}
	ok := p.isSubtype(sub, super)
	p.subtypes.Store(key, ok)
	return ok
}

func (p *Program) isSubtype(sub, super Type) bool {
	if super == p.objectClass {
		return true
	}
	switch sub := sub.(type) {
	case *Class:
		sc, ok := super.(*Class)
		return ok && isSubclass(sub, sc)
	case *ArrayType:
		sa, ok := super.(*ArrayType)
		if !ok {
			sc, ok := super.(*Class)
			return ok && isArrayInterface(sc)
		}
		if !sub.Elem.IsReference() || !sa.Elem.IsReference() {
			return sub.Elem == sa.Elem
		}
		return p.IsSubtype(sub.Elem, sa.Elem)
	default:
		return false
	}
}

// isArrayInterface reports whether c is one of the interfaces implemented
// by every array type.
func isArrayInterface(c *Class) bool {
	return c.Interface && (c.name == CloneableInterface || c.name == SerializableInterface)
}

func isSubclass(sub, super *Class) bool {
	if sub == super {
		return true
	}
	if sub.Super != nil && isSubclass(sub.Super, super) {
		return true
	}
	return slices.ContainsFunc(sub.Interfaces, func(i *Class) bool {
		return isSubclass(i, super)
	})
}

// Dispatch implements Hierarchy. Array receivers dispatch on Object.
func (p *Program) Dispatch(recv Type, ref *MethodRef) *Method {
	key := dispatchKey{recv, ref.Subsignature}
	if m, ok := p.dispatches.Load(key); ok {
		return m
	}
	var c *Class
	switch t := recv.(type) {
	case *Class:
		c = t
	case *ArrayType:
		c = p.objectClass
	default:
		return nil
	}
	m := dispatch(c, ref.Subsignature)
	p.dispatches.Store(key, m)
	return m
}

func dispatch(c *Class, subsig string) *Method {
	for k := c; k != nil; k = k.Super {
		if m := k.methods[subsig]; m != nil && !m.Abstract {
			return m
		}
	}
	// Default methods declared in interfaces.
	for k := c; k != nil; k = k.Super {
		for _, i := range k.Interfaces {
			if m := dispatch(i, subsig); m != nil {
				return m
			}
		}
	}
	return nil
}

// Resolve implements Hierarchy. The method is searched in the referenced
// class, its superclasses and then its interfaces; abstract methods are
// returned as found.
func (p *Program) Resolve(ref *MethodRef) *Method {
	return resolve(ref.Class, ref.Subsignature)
}

func resolve(c *Class, subsig string) *Method {
	for k := c; k != nil; k = k.Super {
		if m := k.methods[subsig]; m != nil {
			return m
		}
	}
	for k := c; k != nil; k = k.Super {
		for _, i := range k.Interfaces {
			if m := resolve(i, subsig); m != nil {
				return m
			}
		}
	}
	return nil
}
