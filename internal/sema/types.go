package sema

import (
	"fmt"
	"strings"
)

// Type is a C type. IsSameType implements C type compatibility for the
// receiver's own kind; use SameType to compare arbitrary types.
type Type interface {
	IsSameType(other Type) bool
	String() string
}

// NamedKind identifies the category of a named type.
type NamedKind uint8

const (
	NamedStruct NamedKind = iota + 1
	NamedUnion
	NamedEnum
	NamedTypedef
)

func (k NamedKind) String() string {
	switch k {
	case NamedStruct:
		return "struct"
	case NamedUnion:
		return "union"
	case NamedEnum:
		return "enum"
	case NamedTypedef:
		return "typedef"
	default:
		return "unknown"
	}
}

// NamedType is a type declared with a name: struct, union, enum or typedef.
// Persisted bindings implement it so they can appear inside types.
type NamedType interface {
	Type
	Name() string
	NamedKind() NamedKind
}

// Aliased is implemented by typedefs.
type Aliased interface {
	Target() Type
}

// Container is implemented by types wrapping a single element type.
type Container interface {
	ElementType() Type
}

// CompositeKey distinguishes structs from unions.
type CompositeKey uint8

const (
	KeyStruct CompositeKey = 1
	KeyUnion  CompositeKey = 2
)

func (k CompositeKey) String() string {
	if k == KeyUnion {
		return "union"
	}
	return "struct"
}

// NamedKind maps the key to the matching named type category.
func (k CompositeKey) NamedKind() NamedKind {
	if k == KeyUnion {
		return NamedUnion
	}
	return NamedStruct
}

// maxUnderlying bounds typedef unwrapping.
const maxUnderlying = 50

// Underlying strips typedefs from t.
func Underlying(t Type) Type {
	for i := 0; i < maxUnderlying && t != nil; i++ {
		a, ok := t.(Aliased)
		if !ok {
			return t
		}
		target := a.Target()
		if target == nil {
			return t
		}
		t = target
	}
	return t
}

// SameType reports whether a and b denote the same type after typedefs are
// removed. Two nil types are the same.
func SameType(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	a, b = Underlying(a), Underlying(b)
	return a.IsSameType(b) || b.IsSameType(a)
}

func sameNamed(a NamedType, other Type) bool {
	o, ok := Underlying(other).(NamedType)
	if !ok {
		return false
	}
	return a.NamedKind() == o.NamedKind() && a.Name() == o.Name()
}

// --- basic ---

// BasicKind is the base specifier of a basic type.
type BasicKind uint8

const (
	Unspecified BasicKind = iota
	Void
	Char
	Int
	Float
	Double
	Bool
)

func (k BasicKind) String() string {
	switch k {
	case Void:
		return "void"
	case Char:
		return "char"
	case Int:
		return "int"
	case Float:
		return "float"
	case Double:
		return "double"
	case Bool:
		return "_Bool"
	default:
		return ""
	}
}

// BasicFlags are the modifiers of a basic type.
type BasicFlags uint16

const (
	Signed BasicFlags = 1 << iota
	Unsigned
	Short
	Long
	LongLong
	Complex
	Imaginary
)

// BasicType is a builtin arithmetic type or void.
type BasicType struct {
	Kind  BasicKind
	Flags BasicFlags
}

// IsVoid reports whether t is plain void.
func (t *BasicType) IsVoid() bool { return t.Kind == Void && t.Flags == 0 }

func (t *BasicType) IsSameType(other Type) bool {
	o, ok := Underlying(other).(*BasicType)
	if !ok {
		return false
	}
	return t.normalKind() == o.normalKind() && t.Flags&^Signed == o.Flags&^Signed &&
		t.explicitSign() == o.explicitSign()
}

// normalKind treats "unsigned" and "long" alone as int.
func (t *BasicType) normalKind() BasicKind {
	if t.Kind == Unspecified {
		return Int
	}
	return t.Kind
}

// explicitSign is significant only for char, where plain, signed and unsigned
// are three distinct types.
func (t *BasicType) explicitSign() bool {
	return t.normalKind() == Char && t.Flags&Signed != 0
}

func (t *BasicType) String() string {
	var parts []string
	if t.Flags&Signed != 0 {
		parts = append(parts, "signed")
	}
	if t.Flags&Unsigned != 0 {
		parts = append(parts, "unsigned")
	}
	if t.Flags&Short != 0 {
		parts = append(parts, "short")
	}
	if t.Flags&Long != 0 {
		parts = append(parts, "long")
	}
	if t.Flags&LongLong != 0 {
		parts = append(parts, "long long")
	}
	if t.Flags&Complex != 0 {
		parts = append(parts, "_Complex")
	}
	if t.Flags&Imaginary != 0 {
		parts = append(parts, "_Imaginary")
	}
	if s := t.Kind.String(); s != "" {
		parts = append(parts, s)
	} else if len(parts) == 0 {
		parts = append(parts, "int")
	}
	return strings.Join(parts, " ")
}

// --- derived ---

// PointerType is a pointer to Elem with optional pointer qualifiers.
type PointerType struct {
	Elem     Type
	Const    bool
	Volatile bool
	Restrict bool
}

func (t *PointerType) ElementType() Type { return t.Elem }

func (t *PointerType) IsSameType(other Type) bool {
	o, ok := Underlying(other).(*PointerType)
	if !ok {
		return false
	}
	return t.Const == o.Const && t.Volatile == o.Volatile && t.Restrict == o.Restrict &&
		SameType(t.Elem, o.Elem)
}

func (t *PointerType) String() string {
	s := typeString(t.Elem) + "*"
	if t.Const {
		s += " const"
	}
	if t.Volatile {
		s += " volatile"
	}
	if t.Restrict {
		s += " restrict"
	}
	return s
}

// ArrayType is an array of Elem. Size is -1 when unspecified.
type ArrayType struct {
	Elem Type
	Size int64
}

func (t *ArrayType) ElementType() Type { return t.Elem }

func (t *ArrayType) IsSameType(other Type) bool {
	o, ok := Underlying(other).(*ArrayType)
	if !ok {
		return false
	}
	if t.Size >= 0 && o.Size >= 0 && t.Size != o.Size {
		return false
	}
	return SameType(t.Elem, o.Elem)
}

func (t *ArrayType) String() string {
	if t.Size < 0 {
		return typeString(t.Elem) + "[]"
	}
	return fmt.Sprintf("%s[%d]", typeString(t.Elem), t.Size)
}

// QualifierType is a const and/or volatile qualified type.
type QualifierType struct {
	Elem     Type
	Const    bool
	Volatile bool
}

func (t *QualifierType) ElementType() Type { return t.Elem }

func (t *QualifierType) IsSameType(other Type) bool {
	o, ok := Underlying(other).(*QualifierType)
	if !ok {
		return false
	}
	return t.Const == o.Const && t.Volatile == o.Volatile && SameType(t.Elem, o.Elem)
}

func (t *QualifierType) String() string {
	var b strings.Builder
	if t.Const {
		b.WriteString("const ")
	}
	if t.Volatile {
		b.WriteString("volatile ")
	}
	b.WriteString(typeString(t.Elem))
	return b.String()
}

// FunctionType is the type of a function.
type FunctionType struct {
	Return  Type
	Params  []Type
	Varargs bool
}

// TakesVoid reports whether the parameter list is the single type void.
func (t *FunctionType) TakesVoid() bool {
	if len(t.Params) != 1 {
		return false
	}
	b, ok := Underlying(t.Params[0]).(*BasicType)
	return ok && b.IsVoid()
}

// EffectiveParams returns the parameter types with "(void)" treated as empty.
func (t *FunctionType) EffectiveParams() []Type {
	if t.TakesVoid() {
		return nil
	}
	return t.Params
}

func (t *FunctionType) IsSameType(other Type) bool {
	o, ok := Underlying(other).(*FunctionType)
	if !ok {
		return false
	}
	if !SameType(t.Return, o.Return) || t.Varargs != o.Varargs {
		return false
	}
	p1, p2 := t.EffectiveParams(), o.EffectiveParams()
	if len(p1) != len(p2) {
		return false
	}
	for i := range p1 {
		if !SameType(p1[i], p2[i]) {
			return false
		}
	}
	return true
}

func (t *FunctionType) String() string {
	return typeString(t.Return) + " " + t.ParamString()
}

// ParamString renders the parameter list as "(int,char*)".
func (t *FunctionType) ParamString() string {
	parts := make([]string, 0, len(t.Params)+1)
	for _, p := range t.EffectiveParams() {
		parts = append(parts, typeString(p))
	}
	if t.Varargs {
		parts = append(parts, "...")
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// ProblemType stands in for a type that could not be resolved or decoded.
type ProblemType struct {
	Reason string
}

func (t *ProblemType) IsSameType(Type) bool { return false }

func (t *ProblemType) String() string { return "?" + t.Reason }

func typeString(t Type) string {
	if t == nil {
		return "<null>"
	}
	return t.String()
}
