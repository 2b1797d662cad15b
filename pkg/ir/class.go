package ir

import (
	"fmt"
	"strings"
)

// Names of the predefined classes every Program starts with.
const (
	ObjectClass = "Object"
	StringClass = "String"
	ClassClass  = "Class"
)

// Names of the interfaces every array type implements when a program
// declares them.
const (
	CloneableInterface    = "Cloneable"
	SerializableInterface = "Serializable"
)

// Subsignature of the class initializer.
const ClinitSubsignature = "<clinit>()"

// Class is a class or interface. A *Class is also the Type of its instances.
type Class struct {
	// Super is the superclass, nil only for the root class.
	Super *Class

	// Interfaces are the directly implemented (or extended) interfaces.
	Interfaces []*Class

	// Interface marks interface types.
	Interface bool

	// Abstract marks abstract classes.
	Abstract bool

	// Application is false for library classes.
	Application bool

	name    string
	fields  map[string]*Field
	methods map[string]*Method
	order   []*Method
	builtin bool
}

// Name returns the unique class name.
func (c *Class) Name() string {
	return c.name
}

// IsReference implements Type.
func (c *Class) IsReference() bool {
	return true
}

func (c *Class) String() string {
	return c.name
}

// Field returns the field declared in c with the given name, or nil.
func (c *Class) Field(name string) *Field {
	return c.fields[name]
}

// LookupField finds a field by name in c or its superclasses.
func (c *Class) LookupField(name string) *Field {
	for k := c; k != nil; k = k.Super {
		if f := k.fields[name]; f != nil {
			return f
		}
	}
	return nil
}

// Method returns the method declared in c with the given subsignature, or nil.
func (c *Class) Method(subsig string) *Method {
	return c.methods[subsig]
}

// Methods returns the declared methods in declaration order.
func (c *Class) Methods() []*Method {
	return c.order
}

// Clinit returns the static initializer of c, or nil.
func (c *Class) Clinit() *Method {
	return c.methods[ClinitSubsignature]
}

// AddField declares a field in c. It panics if the name is already declared.
func (c *Class) AddField(name string, t Type, static bool) *Field {
	if _, ok := c.fields[name]; ok {
		panic(fmt.Sprintf("field %s.%s declared twice", c.Name(), name))
	}
	f := &Field{Class: c, Name: name, Type: t, Static: static}
	c.fields[name] = f
	return f
}

// AddMethod declares a method in c. For instance methods the "this" variable
// is created with c as its type. It panics if the subsignature is already declared.
func (c *Class) AddMethod(name string, params []Type, ret Type, static bool) *Method {
	m := &Method{
		Class:      c,
		Name:       name,
		ParamTypes: params,
		ReturnType: ret,
		Static:     static,
	}
	m.subsig = subsignature(name, params)
	if _, ok := c.methods[m.subsig]; ok {
		panic(fmt.Sprintf("method %s.%s declared twice", c.Name(), m.subsig))
	}
	if !static {
		m.This = m.NewVar("this", c)
	}
	c.methods[m.subsig] = m
	c.order = append(c.order, m)
	return m
}

func subsignature(name string, params []Type) string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name()
	}
	return name + "(" + strings.Join(names, ",") + ")"
}

// Field is an instance or static field.
type Field struct {
	Class  *Class
	Name   string
	Type   Type
	Static bool
}

func (f *Field) String() string {
	return f.Class.Name() + "." + f.Name
}

// MethodRef is a symbolic reference to a method, as written at a call site.
type MethodRef struct {
	// Class is the class the reference is resolved against.
	Class *Class

	// Subsignature is the method name with its parameter types, e.g. "foo(A,int)".
	Subsignature string
}

// Name returns the method name part of the subsignature.
func (r *MethodRef) Name() string {
	name, _, _ := strings.Cut(r.Subsignature, "(")
	return name
}

func (r *MethodRef) String() string {
	return r.Class.Name() + "." + r.Subsignature
}

// Method is a method with its variables and statements.
type Method struct {
	Class      *Class
	Name       string
	ParamTypes []Type
	ReturnType Type
	Static     bool
	Abstract   bool
	Native     bool

	// This is the receiver variable; nil for static methods.
	This *Var

	// Params are the parameter variables in declaration order.
	Params []*Var

	// ReturnVars are the variables returned by the method's return statements.
	ReturnVars []*Var

	subsig string
	vars   []*Var
	stmts  []Stmt
}

// Subsignature returns the name and parameter types, e.g. "foo(A,int)".
func (m *Method) Subsignature() string {
	return m.subsig
}

// Ref returns a reference to m resolved against its declaring class.
func (m *Method) Ref() *MethodRef {
	return &MethodRef{Class: m.Class, Subsignature: m.subsig}
}

// IsApplication reports whether m belongs to an application class.
func (m *Method) IsApplication() bool {
	return m.Class.Application
}

// Vars returns all variables of the method, including this and parameters.
func (m *Method) Vars() []*Var {
	return m.vars
}

// Var returns the variable with the given name, or nil.
func (m *Method) Var(name string) *Var {
	for _, v := range m.vars {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// Stmts returns the statements in order.
func (m *Method) Stmts() []Stmt {
	return m.stmts
}

func (m *Method) String() string {
	return m.Class.Name() + "." + m.subsig
}

// NewVar declares a local variable in m.
func (m *Method) NewVar(name string, t Type) *Var {
	v := &Var{Method: m, Name: name, Type: t, Index: len(m.vars)}
	m.vars = append(m.vars, v)
	return v
}

// AddParam declares the next parameter variable. Its type is taken from ParamTypes.
func (m *Method) AddParam(name string) *Var {
	i := len(m.Params)
	if i >= len(m.ParamTypes) {
		panic(fmt.Sprintf("%s: too many parameters", m))
	}
	v := m.NewVar(name, m.ParamTypes[i])
	m.Params = append(m.Params, v)
	return v
}

// AddStmt appends s to the body of m and indexes it on the variables it uses.
func (m *Method) AddStmt(s Stmt) {
	s.setPosition(m, len(m.stmts))
	m.stmts = append(m.stmts, s)
	switch s := s.(type) {
	case *LoadField:
		if s.Base != nil {
			s.Base.loadFields = append(s.Base.loadFields, s)
		}
	case *StoreField:
		if s.Base != nil {
			s.Base.storeFields = append(s.Base.storeFields, s)
		}
	case *LoadArray:
		s.Base.loadArrays = append(s.Base.loadArrays, s)
	case *StoreArray:
		s.Base.storeArrays = append(s.Base.storeArrays, s)
	case *Invoke:
		if s.Receiver != nil {
			s.Receiver.invokes = append(s.Receiver.invokes, s)
		}
	case *Return:
		if s.Value != nil {
			m.ReturnVars = append(m.ReturnVars, s.Value)
		}
	case *New, *AssignLiteral, *Copy, *Cast:
	default:
		panic(fmt.Sprintf("unexpected statement %T", s))
	}
}

// Var is a local variable, parameter or receiver of a method.
type Var struct {
	Method *Method
	Name   string
	Type   Type

	// Index is the position of the variable in Method.Vars; -1 for
	// temporaries created outside the method body.
	Index int

	storeFields []*StoreField
	loadFields  []*LoadField
	storeArrays []*StoreArray
	loadArrays  []*LoadArray
	invokes     []*Invoke
}

// NewTempVar creates a variable owned by m that is not part of its body.
// Temporaries let analysis models introduce synthetic flow without mutating
// the program, which may be shared by concurrent analyses.
func NewTempVar(m *Method, name string, t Type) *Var {
	return &Var{Method: m, Name: name, Type: t, Index: -1}
}

// StoreFields returns the statements "v.f = x" with v as base.
func (v *Var) StoreFields() []*StoreField { return v.storeFields }

// LoadFields returns the statements "x = v.f" with v as base.
func (v *Var) LoadFields() []*LoadField { return v.loadFields }

// StoreArrays returns the statements "v[*] = x".
func (v *Var) StoreArrays() []*StoreArray { return v.storeArrays }

// LoadArrays returns the statements "x = v[*]".
func (v *Var) LoadArrays() []*LoadArray { return v.loadArrays }

// Invokes returns the instance invocations with v as receiver.
func (v *Var) Invokes() []*Invoke { return v.invokes }

func (v *Var) String() string {
	return v.Method.String() + "/" + v.Name
}
