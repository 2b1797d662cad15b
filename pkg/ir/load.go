package ir

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// programFile is the YAML form of a Program.
type programFile struct {
	Classes         []classDecl `yaml:"classes"`
	Entries         []string    `yaml:"entries"`
	ImplicitEntries []string    `yaml:"implicit_entries"`
}

type classDecl struct {
	Name       string       `yaml:"name"`
	Extends    string       `yaml:"extends"`
	Implements []string     `yaml:"implements"`
	Interface  bool         `yaml:"interface"`
	Abstract   bool         `yaml:"abstract"`
	Library    bool         `yaml:"library"`
	Fields     []string     `yaml:"fields"`
	Methods    []methodDecl `yaml:"methods"`
}

type methodDecl struct {
	Sig    string   `yaml:"sig"`
	Locals []string `yaml:"locals"`
	Body   []string `yaml:"body"`
}

// Declaration patterns.
var (
	// sigPattern matches "[static|abstract|native]* RetType name(Type p, ...)"
	sigPattern = regexp.MustCompile(`^((?:(?:static|abstract|native)\s+)*)([\w$\[\]]+)\s+([\w$<>]+)\s*\(([^()]*)\)$`)

	// fieldPattern matches "[static] Type name"
	fieldPattern = regexp.MustCompile(`^(static\s+)?([\w$\[\]]+)\s+([\w$]+)$`)

	// varPattern matches "Type name"
	varPattern = regexp.MustCompile(`^([\w$\[\]]+)\s+([\w$]+)$`)
)

// Statement patterns, tried in order.
var (
	returnPattern      = regexp.MustCompile(`^return(?:\s+(\w+))?$`)
	invokePattern      = regexp.MustCompile(`^(?:(\w+)\s*=\s*)?(?:(virtual|interface|special|static)\s+)?([\w$]+)\.(?:([\w$]+)::)?([\w$<>]+)\(([^()]*)\)$`)
	newPattern         = regexp.MustCompile(`^(\w+)\s*=\s*new\s+([\w$]+)((?:\[\w*\])*)$`)
	stringPattern      = regexp.MustCompile(`^(\w+)\s*=\s*("(?:[^"\\]|\\.)*")$`)
	classLitPattern    = regexp.MustCompile(`^(\w+)\s*=\s*([\w$\[\]]+)\.class$`)
	nullPattern        = regexp.MustCompile(`^(\w+)\s*=\s*null$`)
	intPattern         = regexp.MustCompile(`^(\w+)\s*=\s*(-?\d+)$`)
	castPattern        = regexp.MustCompile(`^(\w+)\s*=\s*\(([\w$\[\]]+)\)\s*(\w+)$`)
	loadArrayPattern   = regexp.MustCompile(`^(\w+)\s*=\s*(\w+)\[[^\]]*\]$`)
	storeArrayPattern  = regexp.MustCompile(`^(\w+)\[[^\]]*\]\s*=\s*(\w+)$`)
	loadFieldPattern   = regexp.MustCompile(`^(\w+)\s*=\s*([\w$]+)\.([\w$]+)$`)
	storeFieldPattern  = regexp.MustCompile(`^([\w$]+)\.([\w$]+)\s*=\s*(\w+)$`)
	copyPattern        = regexp.MustCompile(`^(\w+)\s*=\s*(\w+)$`)
	bracketPattern     = regexp.MustCompile(`\[(\w*)\]`)
)

var (
	errUnknownStmt     = errors.New("unrecognized statement")
	errUnknownVariable = errors.New("unknown variable")
)

// Load reads a YAML program from path.
func Load(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading program: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse builds a Program from its YAML form.
//
// Classes are declared first so that supertypes, field types and call
// targets may refer to classes declared later in the file. Method bodies are
// one statement per line:
//
//	a = new A            x = a.f          a.f = x          x = S.f
//	m = new A[2][3]      x = a[*]         a[*] = x         S.f = x
//	b = a                c = (B) a        s = "text"       k = A.class
//	r = a.foo(x, y)      r = A.bar(x)     special this.B::<init>()
//	return r
func Parse(data []byte) (*Program, error) {
	var file programFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	p := NewProgram()
	l := &loader{prog: p}

	// Pass 1: class names.
	for _, cd := range file.Classes {
		if err := l.declareClass(cd); err != nil {
			return nil, err
		}
	}
	// Pass 2: supertypes.
	for _, cd := range file.Classes {
		if err := l.linkClass(cd); err != nil {
			return nil, err
		}
	}
	// Pass 3: fields and method signatures.
	bodies := make(map[*Method]methodDecl)
	for _, cd := range file.Classes {
		if err := l.declareMembers(cd, bodies); err != nil {
			return nil, err
		}
	}
	// Pass 4: method bodies, in declaration order for stable output.
	for _, c := range p.order {
		for _, m := range c.order {
			md, ok := bodies[m]
			if !ok {
				continue
			}
			if err := l.buildBody(m, md); err != nil {
				return nil, err
			}
		}
	}

	for _, e := range file.Entries {
		m, err := l.lookupEntry(e)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", e, err)
		}
		p.AddEntry(m)
	}
	for _, e := range file.ImplicitEntries {
		m, err := l.lookupEntry(e)
		if err != nil {
			return nil, fmt.Errorf("implicit entry %q: %w", e, err)
		}
		p.AddImplicitEntry(m)
	}
	return p, nil
}

type loader struct {
	prog *Program
}

func (l *loader) declareClass(cd classDecl) error {
	if cd.Name == "" {
		return fmt.Errorf("class with empty name")
	}
	c := l.prog.Class(cd.Name)
	switch {
	case c == nil:
		c = l.prog.AddClass(cd.Name, nil)
	case c.builtin:
		// Predefined classes may be extended with members.
		c.builtin = false
	default:
		return fmt.Errorf("class %s declared twice", cd.Name)
	}
	c.Interface = cd.Interface
	c.Abstract = cd.Abstract || cd.Interface
	c.Application = !cd.Library && c != l.prog.objectClass &&
		c != l.prog.stringClass && c != l.prog.classClass
	return nil
}

func (l *loader) linkClass(cd classDecl) error {
	c := l.prog.Class(cd.Name)
	if cd.Extends != "" {
		super := l.prog.Class(cd.Extends)
		if super == nil {
			return fmt.Errorf("class %s: unknown superclass %s", cd.Name, cd.Extends)
		}
		if c == l.prog.objectClass {
			return fmt.Errorf("class %s cannot have a superclass", cd.Name)
		}
		c.Super = super
	}
	for _, name := range cd.Implements {
		i := l.prog.Class(name)
		if i == nil {
			return fmt.Errorf("class %s: unknown interface %s", cd.Name, name)
		}
		c.Interfaces = append(c.Interfaces, i)
	}
	for k := c.Super; k != nil; k = k.Super {
		if k == c {
			return fmt.Errorf("class %s: cyclic inheritance", cd.Name)
		}
	}
	return nil
}

func (l *loader) declareMembers(cd classDecl, bodies map[*Method]methodDecl) error {
	c := l.prog.Class(cd.Name)
	for _, fd := range cd.Fields {
		m := fieldPattern.FindStringSubmatch(strings.TrimSpace(fd))
		if m == nil {
			return fmt.Errorf("class %s: malformed field %q", cd.Name, fd)
		}
		t, err := l.lookupType(m[2])
		if err != nil {
			return fmt.Errorf("class %s: field %s: %w", cd.Name, m[3], err)
		}
		if c.Field(m[3]) != nil {
			return fmt.Errorf("class %s: field %s declared twice", cd.Name, m[3])
		}
		c.AddField(m[3], t, m[1] != "")
	}

	for _, md := range cd.Methods {
		sig := sigPattern.FindStringSubmatch(strings.TrimSpace(md.Sig))
		if sig == nil {
			return fmt.Errorf("class %s: malformed method signature %q", cd.Name, md.Sig)
		}
		mods := strings.Fields(sig[1])
		ret, err := l.lookupType(sig[2])
		if err != nil {
			return fmt.Errorf("class %s: method %s: return type: %w", cd.Name, sig[3], err)
		}
		var paramTypes []Type
		var paramNames []string
		if params := strings.TrimSpace(sig[4]); params != "" {
			for _, pd := range strings.Split(params, ",") {
				pm := varPattern.FindStringSubmatch(strings.TrimSpace(pd))
				if pm == nil {
					return fmt.Errorf("class %s: method %s: malformed parameter %q", cd.Name, sig[3], pd)
				}
				pt, err := l.lookupType(pm[1])
				if err != nil {
					return fmt.Errorf("class %s: method %s: parameter %s: %w", cd.Name, sig[3], pm[2], err)
				}
				paramTypes = append(paramTypes, pt)
				paramNames = append(paramNames, pm[2])
			}
		}
		if c.Method(subsignature(sig[3], paramTypes)) != nil {
			return fmt.Errorf("class %s: method %s declared twice", cd.Name, subsignature(sig[3], paramTypes))
		}
		m := c.AddMethod(sig[3], paramTypes, ret, slices.Contains(mods, "static"))
		m.Abstract = slices.Contains(mods, "abstract") || (c.Interface && len(md.Body) == 0)
		m.Native = slices.Contains(mods, "native")
		for _, name := range paramNames {
			m.AddParam(name)
		}
		bodies[m] = md
	}
	return nil
}

func (l *loader) buildBody(m *Method, md methodDecl) error {
	for _, ld := range md.Locals {
		vm := varPattern.FindStringSubmatch(strings.TrimSpace(ld))
		if vm == nil {
			return fmt.Errorf("%s: malformed local %q", m, ld)
		}
		t, err := l.lookupType(vm[1])
		if err != nil {
			return fmt.Errorf("%s: local %s: %w", m, vm[2], err)
		}
		if m.Var(vm[2]) != nil {
			return fmt.Errorf("%s: variable %s declared twice", m, vm[2])
		}
		m.NewVar(vm[2], t)
	}
	if (m.Abstract || m.Native) && len(md.Body) > 0 {
		return fmt.Errorf("%s: abstract or native method with a body", m)
	}
	for i, text := range md.Body {
		text = strings.TrimSpace(text)
		s, err := l.parseStmt(m, text)
		if err != nil {
			return fmt.Errorf("%s: statement %d %q: %w", m, i, text, err)
		}
		m.AddStmt(s)
	}
	return nil
}

func (l *loader) parseStmt(m *Method, text string) (Stmt, error) {
	if g := returnPattern.FindStringSubmatch(text); g != nil {
		if g[1] == "" {
			return &Return{}, nil
		}
		v, err := l.lookupVar(m, g[1])
		if err != nil {
			return nil, err
		}
		return &Return{Value: v}, nil
	}
	if g := invokePattern.FindStringSubmatch(text); g != nil {
		return l.parseInvoke(m, g)
	}
	if g := newPattern.FindStringSubmatch(text); g != nil {
		return l.parseNew(m, g)
	}
	if g := stringPattern.FindStringSubmatch(text); g != nil {
		lv, err := l.lookupVar(m, g[1])
		if err != nil {
			return nil, err
		}
		value, err := strconv.Unquote(g[2])
		if err != nil {
			return nil, fmt.Errorf("string literal: %w", err)
		}
		return &AssignLiteral{LValue: lv, Literal: l.prog.NewStringLiteral(value)}, nil
	}
	if g := classLitPattern.FindStringSubmatch(text); g != nil {
		lv, err := l.lookupVar(m, g[1])
		if err != nil {
			return nil, err
		}
		t, err := l.lookupType(g[2])
		if err != nil {
			return nil, err
		}
		return &AssignLiteral{LValue: lv, Literal: l.prog.NewClassLiteral(t)}, nil
	}
	if g := nullPattern.FindStringSubmatch(text); g != nil {
		lv, err := l.lookupVar(m, g[1])
		if err != nil {
			return nil, err
		}
		return &AssignLiteral{LValue: lv, Literal: NullLiteral{}}, nil
	}
	if g := intPattern.FindStringSubmatch(text); g != nil {
		lv, err := l.lookupVar(m, g[1])
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(g[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("int literal: %w", err)
		}
		return &AssignLiteral{LValue: lv, Literal: IntLiteral{Value: n}}, nil
	}
	if g := castPattern.FindStringSubmatch(text); g != nil {
		vars, err := l.lookupVars(m, g[1], g[3])
		if err != nil {
			return nil, err
		}
		t, err := l.lookupType(g[2])
		if err != nil {
			return nil, err
		}
		return &Cast{LValue: vars[0], RValue: vars[1], Type: t}, nil
	}
	if g := loadArrayPattern.FindStringSubmatch(text); g != nil {
		vars, err := l.lookupVars(m, g[1], g[2])
		if err != nil {
			return nil, err
		}
		if _, ok := vars[1].Type.(*ArrayType); !ok {
			return nil, fmt.Errorf("%s is not an array", vars[1].Name)
		}
		return &LoadArray{LValue: vars[0], Base: vars[1]}, nil
	}
	if g := storeArrayPattern.FindStringSubmatch(text); g != nil {
		vars, err := l.lookupVars(m, g[1], g[2])
		if err != nil {
			return nil, err
		}
		if _, ok := vars[0].Type.(*ArrayType); !ok {
			return nil, fmt.Errorf("%s is not an array", vars[0].Name)
		}
		return &StoreArray{Base: vars[0], RValue: vars[1]}, nil
	}
	if g := loadFieldPattern.FindStringSubmatch(text); g != nil {
		lv, err := l.lookupVar(m, g[1])
		if err != nil {
			return nil, err
		}
		base, f, err := l.lookupFieldAccess(m, g[2], g[3])
		if err != nil {
			return nil, err
		}
		return &LoadField{LValue: lv, Base: base, Field: f}, nil
	}
	if g := storeFieldPattern.FindStringSubmatch(text); g != nil {
		base, f, err := l.lookupFieldAccess(m, g[1], g[2])
		if err != nil {
			return nil, err
		}
		rv, err := l.lookupVar(m, g[3])
		if err != nil {
			return nil, err
		}
		return &StoreField{Base: base, Field: f, RValue: rv}, nil
	}
	if g := copyPattern.FindStringSubmatch(text); g != nil {
		vars, err := l.lookupVars(m, g[1], g[2])
		if err != nil {
			return nil, err
		}
		return &Copy{LValue: vars[0], RValue: vars[1]}, nil
	}
	return nil, errUnknownStmt
}

func (l *loader) parseNew(m *Method, g []string) (Stmt, error) {
	lv, err := l.lookupVar(m, g[1])
	if err != nil {
		return nil, err
	}
	brackets := bracketPattern.FindAllStringSubmatch(g[3], -1)
	t, err := l.lookupType(g[2] + strings.Repeat("[]", len(brackets)))
	if err != nil {
		return nil, err
	}
	dims := 0
	for _, b := range brackets {
		if b[1] != "" {
			dims++
		}
	}
	if dims == 0 {
		dims = 1
	}
	if c, ok := t.(*Class); ok && (c.Interface || c.Abstract) {
		return nil, fmt.Errorf("cannot instantiate %s", c.Name())
	}
	return &New{LValue: lv, Type: t, Dims: dims}, nil
}

func (l *loader) parseInvoke(m *Method, g []string) (Stmt, error) {
	inv := &Invoke{}
	if g[1] != "" {
		lv, err := l.lookupVar(m, g[1])
		if err != nil {
			return nil, err
		}
		inv.Result = lv
	}

	target, qualifier, name := g[3], g[4], g[5]
	var refClass *Class
	if recv := m.Var(target); recv != nil {
		inv.Receiver = recv
		switch t := recv.Type.(type) {
		case *Class:
			refClass = t
		case *ArrayType:
			refClass = l.prog.objectClass
		default:
			return nil, fmt.Errorf("receiver %s has non-reference type %s", recv.Name, recv.Type.Name())
		}
	} else {
		refClass = l.prog.Class(target)
		if refClass == nil {
			return nil, fmt.Errorf("%w %s", errUnknownVariable, target)
		}
	}
	if qualifier != "" {
		refClass = l.prog.Class(qualifier)
		if refClass == nil {
			return nil, fmt.Errorf("unknown class %s", qualifier)
		}
	}

	if args := strings.TrimSpace(g[6]); args != "" {
		for _, a := range strings.Split(args, ",") {
			v, err := l.lookupVar(m, strings.TrimSpace(a))
			if err != nil {
				return nil, err
			}
			inv.Args = append(inv.Args, v)
		}
	}

	callee := findMethod(refClass, name, len(inv.Args))
	if callee == nil {
		return nil, fmt.Errorf("no method %s with %d arguments in %s", name, len(inv.Args), refClass.Name())
	}
	inv.Ref = &MethodRef{Class: refClass, Subsignature: callee.Subsignature()}

	switch g[2] {
	case "virtual":
		inv.Kind = CallVirtual
	case "interface":
		inv.Kind = CallInterface
	case "special":
		inv.Kind = CallSpecial
	case "static":
		inv.Kind = CallStatic
	default:
		switch {
		case inv.Receiver == nil:
			inv.Kind = CallStatic
		case name == "<init>" || qualifier != "":
			inv.Kind = CallSpecial
		case refClass.Interface:
			inv.Kind = CallInterface
		default:
			inv.Kind = CallVirtual
		}
	}
	if inv.Kind == CallStatic && inv.Receiver != nil {
		return nil, fmt.Errorf("static call with receiver %s", inv.Receiver.Name)
	}
	if inv.Kind != CallStatic && inv.Receiver == nil {
		return nil, fmt.Errorf("%s call without receiver", inv.Kind)
	}
	if (inv.Kind == CallStatic) != callee.Static {
		return nil, fmt.Errorf("%s call to %s", inv.Kind, callee)
	}
	return inv, nil
}

// findMethod looks up a method by name and arity in c, its superclasses and
// its interfaces.
func findMethod(c *Class, name string, arity int) *Method {
	for k := c; k != nil; k = k.Super {
		for _, m := range k.order {
			if m.Name == name && len(m.ParamTypes) == arity {
				return m
			}
		}
	}
	for k := c; k != nil; k = k.Super {
		for _, i := range k.Interfaces {
			if m := findMethod(i, name, arity); m != nil {
				return m
			}
		}
	}
	return nil
}

func (l *loader) lookupFieldAccess(m *Method, target, name string) (*Var, *Field, error) {
	if base := m.Var(target); base != nil {
		c, ok := base.Type.(*Class)
		if !ok {
			return nil, nil, fmt.Errorf("%s has no fields", base.Name)
		}
		f := c.LookupField(name)
		if f == nil {
			return nil, nil, fmt.Errorf("no field %s in %s", name, c.Name())
		}
		if f.Static {
			return nil, f, nil
		}
		return base, f, nil
	}
	c := l.prog.Class(target)
	if c == nil {
		return nil, nil, fmt.Errorf("%w %s", errUnknownVariable, target)
	}
	f := c.LookupField(name)
	if f == nil {
		return nil, nil, fmt.Errorf("no field %s in %s", name, c.Name())
	}
	if !f.Static {
		return nil, nil, fmt.Errorf("field %s is not static", f)
	}
	return nil, f, nil
}

func (l *loader) lookupType(name string) (Type, error) {
	t := l.prog.LookupType(name)
	if t == nil {
		return nil, fmt.Errorf("unknown type %s", name)
	}
	return t, nil
}

func (l *loader) lookupVar(m *Method, name string) (*Var, error) {
	v := m.Var(name)
	if v == nil {
		return nil, fmt.Errorf("%w %s", errUnknownVariable, name)
	}
	return v, nil
}

func (l *loader) lookupVars(m *Method, names ...string) ([]*Var, error) {
	vars := make([]*Var, len(names))
	for i, name := range names {
		v, err := l.lookupVar(m, name)
		if err != nil {
			return nil, err
		}
		vars[i] = v
	}
	return vars, nil
}

// lookupEntry resolves "Class.name" or "Class.name(T1,T2)".
func (l *loader) lookupEntry(ref string) (*Method, error) {
	className, member, ok := strings.Cut(ref, ".")
	if !ok {
		return nil, fmt.Errorf("expected Class.method")
	}
	c := l.prog.Class(className)
	if c == nil {
		return nil, fmt.Errorf("unknown class %s", className)
	}
	if strings.Contains(member, "(") {
		if m := c.Method(member); m != nil {
			return m, nil
		}
		return nil, fmt.Errorf("no method %s in %s", member, className)
	}
	var found *Method
	for _, m := range c.order {
		if m.Name != member {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("method %s is overloaded in %s; use a subsignature", member, className)
		}
		found = m
	}
	if found == nil {
		return nil, fmt.Errorf("no method %s in %s", member, className)
	}
	return found, nil
}
