// Package ir defines the object-oriented intermediate representation analyzed
// by the pointer analysis: types, classes, methods, variables and statements,
// plus a Program that answers class hierarchy queries over them.
package ir

import "strings"

// Type is the static type of a variable, field or abstract object.
type Type interface {
	// Name returns the source-level spelling of the type, e.g. "A" or "int[]".
	Name() string

	// IsReference reports whether values of the type are heap references.
	IsReference() bool
}

// PrimitiveType is a non-reference value type.
type PrimitiveType string

const (
	Int     PrimitiveType = "int"
	Long    PrimitiveType = "long"
	Boolean PrimitiveType = "boolean"
	Byte    PrimitiveType = "byte"
	Char    PrimitiveType = "char"
	Short   PrimitiveType = "short"
	Float   PrimitiveType = "float"
	Double  PrimitiveType = "double"
	Void    PrimitiveType = "void"
)

var primitives = map[string]PrimitiveType{
	"int":     Int,
	"long":    Long,
	"boolean": Boolean,
	"byte":    Byte,
	"char":    Char,
	"short":   Short,
	"float":   Float,
	"double":  Double,
	"void":    Void,
}

func (t PrimitiveType) Name() string {
	return string(t)
}

func (t PrimitiveType) IsReference() bool {
	return false
}

func (t PrimitiveType) String() string {
	return string(t)
}

type nullType struct{}

// Null is the type of the null literal. It is assignable to every reference type.
var Null Type = nullType{}

func (nullType) Name() string {
	return "null"
}

func (nullType) IsReference() bool {
	return true
}

func (nullType) String() string {
	return "null"
}

// ArrayType is an array of Elem. Array types are interned by Program.ArrayOf,
// so two array types with the same element type are the same pointer.
type ArrayType struct {
	Elem Type
	name string
}

func (t *ArrayType) Name() string {
	return t.name
}

func (t *ArrayType) IsReference() bool {
	return true
}

func (t *ArrayType) String() string {
	return t.name
}

// Dimensions returns the number of array dimensions, e.g. 2 for A[][].
func (t *ArrayType) Dimensions() int {
	n := 1
	for e, ok := t.Elem.(*ArrayType); ok; e, ok = e.Elem.(*ArrayType) {
		n++
	}
	return n
}

// BaseType returns the innermost non-array element type.
func (t *ArrayType) BaseType() Type {
	var base Type = t
	for {
		at, ok := base.(*ArrayType)
		if !ok {
			return base
		}
		base = at.Elem
	}
}

// splitArrayName splits "A[][]" into ("A", 2).
func splitArrayName(name string) (string, int) {
	dims := 0
	for strings.HasSuffix(name, "[]") {
		name = strings.TrimSuffix(name, "[]")
		dims++
	}
	return name, dims
}
