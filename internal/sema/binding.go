package sema

import "fmt"

// Role classifies an occurrence of a binding in source.
type Role int

const (
	RoleDeclaration Role = iota
	RoleDefinition
	RoleReference
)

func (r Role) String() string {
	switch r {
	case RoleDeclaration:
		return "declaration"
	case RoleDefinition:
		return "definition"
	case RoleReference:
		return "reference"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Location is a 1-based source position.
type Location struct {
	File string
	Line int
	Col  int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Col)
}

// Name is one occurrence of a binding: the event the front-end emits.
type Name struct {
	Binding Binding
	Role    Role
	Loc     Location
}

// IsDefinition reports whether the occurrence defines the binding.
func (n Name) IsDefinition() bool { return n.Role == RoleDefinition }

// IsReference reports whether the occurrence only refers to the binding.
func (n Name) IsReference() bool { return n.Role == RoleReference }

// Binding is a named, owned program entity. Owner is nil for bindings at
// global scope. Name is empty for anonymous aggregates.
type Binding interface {
	Name() string
	Owner() Binding
	Location() Location
}

// Problem is a binding the front-end could not resolve.
type Problem interface {
	Binding
	Problem() string
}

// Annotations are the storage-class and function flags of a binding.
type Annotations struct {
	Static   bool
	Extern   bool
	Auto     bool
	Register bool
	Inline   bool
	Varargs  bool
	NoReturn bool
}

// Variable is a global or local object.
type Variable interface {
	Binding
	Type() Type
	Annotations() Annotations
	// Value returns the integer initializer, if one is known.
	Value() (int64, bool)
}

// Field is a member of a struct or union. Every Field is also a Variable.
type Field interface {
	Variable
	Composite() Composite
}

// Function is a function declaration or definition.
type Function interface {
	Binding
	Type() *FunctionType
	Parameters() []Parameter
	Annotations() Annotations
}

// Parameter is a function parameter. Its owner is the function.
type Parameter interface {
	Binding
	Type() Type
	Annotations() Annotations
}

// Composite is a struct or union.
type Composite interface {
	Binding
	NamedType
	Key() CompositeKey
	IsAnonymous() bool
}

// Enumeration is an enum type.
type Enumeration interface {
	Binding
	NamedType
}

// Enumerator is a constant of an enumeration. Its owner is the scope that
// encloses the enumeration, not the enumeration itself.
type Enumerator interface {
	Binding
	Value() int64
	Enumeration() Enumeration
}

// Typedef names another type.
type Typedef interface {
	Binding
	NamedType
	Target() Type
}

// IsFunctionScoped reports whether b or any owner of b is a function.
func IsFunctionScoped(b Binding) bool {
	for o := b.Owner(); o != nil; o = o.Owner() {
		if _, ok := o.(Function); ok {
			return true
		}
	}
	return false
}
