package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Stmt is a statement of a method body. The set of statement kinds is closed:
// New, AssignLiteral, Copy, Cast, LoadField, StoreField, LoadArray,
// StoreArray, Invoke and Return.
type Stmt interface {
	// Index is the position of the statement in its method; -1 for
	// synthetic statements.
	Index() int

	// Method is the method containing the statement.
	Method() *Method

	String() string

	setPosition(m *Method, index int)
}

type position struct {
	method *Method
	index  int
}

func (p *position) Index() int {
	return p.index
}

func (p *position) Method() *Method {
	return p.method
}

func (p *position) setPosition(m *Method, index int) {
	p.method, p.index = m, index
}

// New allocates an object or array: LValue = new Type.
type New struct {
	position
	LValue *Var
	Type   Type

	// Dims is the number of dimensions allocated at once by a
	// multi-dimensional array allocation such as new A[2][3]; 1 otherwise.
	Dims int
}

func (s *New) String() string {
	if at, ok := s.Type.(*ArrayType); ok && s.Dims > 1 {
		base, dims := splitArrayName(at.Name())
		return fmt.Sprintf("%s = new %s%s%s", s.LValue.Name, base,
			strings.Repeat("[n]", s.Dims), strings.Repeat("[]", dims-s.Dims))
	}
	return fmt.Sprintf("%s = new %s", s.LValue.Name, s.Type.Name())
}

// AssignLiteral assigns a constant: LValue = Literal.
type AssignLiteral struct {
	position
	LValue  *Var
	Literal Literal
}

func (s *AssignLiteral) String() string {
	return s.LValue.Name + " = " + s.Literal.String()
}

// Copy is a local assignment: LValue = RValue.
type Copy struct {
	position
	LValue *Var
	RValue *Var
}

func (s *Copy) String() string {
	return s.LValue.Name + " = " + s.RValue.Name
}

// Cast is a checked conversion: LValue = (Type) RValue.
type Cast struct {
	position
	LValue *Var
	RValue *Var
	Type   Type
}

func (s *Cast) String() string {
	return fmt.Sprintf("%s = (%s) %s", s.LValue.Name, s.Type.Name(), s.RValue.Name)
}

// LoadField reads a field: LValue = Base.Field, or LValue = C.Field when
// Base is nil and the field is static.
type LoadField struct {
	position
	LValue *Var
	Base   *Var
	Field  *Field
}

// IsStatic reports whether the statement reads a static field.
func (s *LoadField) IsStatic() bool {
	return s.Base == nil
}

func (s *LoadField) String() string {
	return s.LValue.Name + " = " + fieldAccess(s.Base, s.Field)
}

// StoreField writes a field: Base.Field = RValue, or C.Field = RValue when
// Base is nil and the field is static.
type StoreField struct {
	position
	Base   *Var
	Field  *Field
	RValue *Var
}

// IsStatic reports whether the statement writes a static field.
func (s *StoreField) IsStatic() bool {
	return s.Base == nil
}

func (s *StoreField) String() string {
	return fieldAccess(s.Base, s.Field) + " = " + s.RValue.Name
}

func fieldAccess(base *Var, f *Field) string {
	if base == nil {
		return f.Class.Name() + "." + f.Name
	}
	return base.Name + "." + f.Name
}

// LoadArray reads an array element: LValue = Base[*]. Indexes are not modelled.
type LoadArray struct {
	position
	LValue *Var
	Base   *Var
}

func (s *LoadArray) String() string {
	return s.LValue.Name + " = " + s.Base.Name + "[*]"
}

// StoreArray writes an array element: Base[*] = RValue.
type StoreArray struct {
	position
	Base   *Var
	RValue *Var
}

func (s *StoreArray) String() string {
	return s.Base.Name + "[*] = " + s.RValue.Name
}

// CallKind classifies invocations.
type CallKind uint8

const (
	CallVirtual CallKind = iota
	CallInterface
	CallSpecial
	CallStatic
	// CallOther marks call edges injected by analysis models. Such edges
	// carry no default argument or return flow.
	CallOther
)

var callKindNames = [...]string{
	CallVirtual:   "virtual",
	CallInterface: "interface",
	CallSpecial:   "special",
	CallStatic:    "static",
	CallOther:     "other",
}

func (k CallKind) String() string {
	if int(k) < len(callKindNames) {
		return callKindNames[k]
	}
	return "CallKind(" + strconv.Itoa(int(k)) + ")"
}

// Invoke is a call site: [Result =] Receiver.Ref(Args), or Ref(Args) for
// static calls.
type Invoke struct {
	position
	Kind     CallKind
	Ref      *MethodRef
	Receiver *Var
	Args     []*Var
	Result   *Var
}

// NewSyntheticInvoke creates a call site owned by m that is not part of its
// body. Its Index is -1.
func NewSyntheticInvoke(m *Method, kind CallKind, ref *MethodRef, recv *Var, args []*Var, result *Var) *Invoke {
	inv := &Invoke{Kind: kind, Ref: ref, Receiver: recv, Args: args, Result: result}
	inv.setPosition(m, -1)
	return inv
}

// IsStatic reports whether the call has no receiver.
func (s *Invoke) IsStatic() bool {
	return s.Kind == CallStatic
}

func (s *Invoke) String() string {
	var b strings.Builder
	if s.Result != nil {
		b.WriteString(s.Result.Name)
		b.WriteString(" = ")
	}
	b.WriteString(s.Kind.String())
	b.WriteByte(' ')
	if s.Receiver != nil {
		b.WriteString(s.Receiver.Name)
		b.WriteByte('.')
	}
	b.WriteString(s.Ref.String())
	b.WriteByte('(')
	for i, a := range s.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.Name)
	}
	b.WriteByte(')')
	return b.String()
}

// Site returns a short label identifying the call site, e.g. "A.main()[3]".
func (s *Invoke) Site() string {
	if s.index < 0 {
		return s.method.String() + "[" + s.Ref.Name() + "]"
	}
	return s.method.String() + "[" + strconv.Itoa(s.index) + "]"
}

// Return ends the method, optionally returning Value.
type Return struct {
	position
	Value *Var
}

func (s *Return) String() string {
	if s.Value == nil {
		return "return"
	}
	return "return " + s.Value.Name
}

// Literal is a constant operand of AssignLiteral.
type Literal interface {
	Type() Type
	String() string
	literal()
}

// StringLiteral is a string constant; its type is the String class.
type StringLiteral struct {
	Value string
	typ   *Class
}

// NewStringLiteral returns a string literal typed with the program's String class.
func (p *Program) NewStringLiteral(v string) *StringLiteral {
	return &StringLiteral{Value: v, typ: p.stringClass}
}

func (l *StringLiteral) Type() Type     { return l.typ }
func (l *StringLiteral) String() string { return strconv.Quote(l.Value) }
func (*StringLiteral) literal()         {}

// ClassLiteral is a class constant such as A.class; its type is the Class class.
type ClassLiteral struct {
	Value Type
	typ   *Class
}

// NewClassLiteral returns a class literal typed with the program's Class class.
func (p *Program) NewClassLiteral(t Type) *ClassLiteral {
	return &ClassLiteral{Value: t, typ: p.classClass}
}

func (l *ClassLiteral) Type() Type     { return l.typ }
func (l *ClassLiteral) String() string { return l.Value.Name() + ".class" }
func (*ClassLiteral) literal()         {}

// NullLiteral is the null constant.
type NullLiteral struct{}

func (NullLiteral) Type() Type     { return Null }
func (NullLiteral) String() string { return "null" }
func (NullLiteral) literal()       {}

// IntLiteral is an integer constant.
type IntLiteral struct {
	Value int64
}

func (IntLiteral) Type() Type       { return Int }
func (l IntLiteral) String() string { return strconv.FormatInt(l.Value, 10) }
func (IntLiteral) literal()         {}
