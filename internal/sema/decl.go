package sema

import "fmt"

// Decl carries the attributes common to every declared binding.
type Decl struct {
	Ident  string
	Parent Binding
	Loc    Location
}

func (d *Decl) Name() string       { return d.Ident }
func (d *Decl) Owner() Binding     { return d.Parent }
func (d *Decl) Location() Location { return d.Loc }

// VarDecl is a declared variable.
type VarDecl struct {
	Decl
	Typ   Type
	Annot Annotations
	Init  *int64
}

func (v *VarDecl) Type() Type               { return v.Typ }
func (v *VarDecl) Annotations() Annotations { return v.Annot }

func (v *VarDecl) Value() (int64, bool) {
	if v.Init == nil {
		return 0, false
	}
	return *v.Init, true
}

// FieldDecl is a declared struct or union member. Parent must be the
// enclosing *CompositeDecl.
type FieldDecl struct {
	VarDecl
}

func (f *FieldDecl) Composite() Composite {
	c, _ := f.Parent.(Composite)
	return c
}

// ParamDecl is a declared function parameter.
type ParamDecl struct {
	Decl
	Typ   Type
	Annot Annotations
}

func (p *ParamDecl) Type() Type               { return p.Typ }
func (p *ParamDecl) Annotations() Annotations { return p.Annot }

// FuncDecl is a declared function.
type FuncDecl struct {
	Decl
	Typ    *FunctionType
	Params []*ParamDecl
	Annot  Annotations
}

func (f *FuncDecl) Type() *FunctionType      { return f.Typ }
func (f *FuncDecl) Annotations() Annotations { return f.Annot }

func (f *FuncDecl) Parameters() []Parameter {
	out := make([]Parameter, len(f.Params))
	for i, p := range f.Params {
		out[i] = p
	}
	return out
}

// CompositeDecl is a declared struct or union.
type CompositeDecl struct {
	Decl
	Kind CompositeKey
	Anon bool
}

func (c *CompositeDecl) Key() CompositeKey    { return c.Kind }
func (c *CompositeDecl) IsAnonymous() bool    { return c.Anon }
func (c *CompositeDecl) NamedKind() NamedKind { return c.Kind.NamedKind() }

func (c *CompositeDecl) IsSameType(other Type) bool {
	if c.Anon {
		o, ok := Underlying(other).(*CompositeDecl)
		return ok && o == c
	}
	return sameNamed(c, other)
}

func (c *CompositeDecl) String() string {
	if c.Anon {
		return fmt.Sprintf("%s {anonymous}", c.Kind)
	}
	return c.Kind.String() + " " + c.Ident
}

// EnumDecl is a declared enumeration.
type EnumDecl struct {
	Decl
}

func (e *EnumDecl) NamedKind() NamedKind       { return NamedEnum }
func (e *EnumDecl) IsSameType(other Type) bool { return sameNamed(e, other) }
func (e *EnumDecl) String() string             { return "enum " + e.Ident }

// EnumeratorDecl is a declared enumeration constant.
type EnumeratorDecl struct {
	Decl
	Val  int64
	Enum *EnumDecl
}

func (e *EnumeratorDecl) Value() int64 { return e.Val }

func (e *EnumeratorDecl) Enumeration() Enumeration {
	if e.Enum == nil {
		return nil
	}
	return e.Enum
}

// TypedefDecl is a declared typedef.
type TypedefDecl struct {
	Decl
	Typ Type
}

func (t *TypedefDecl) Target() Type               { return t.Typ }
func (t *TypedefDecl) NamedKind() NamedKind       { return NamedTypedef }
func (t *TypedefDecl) IsSameType(other Type) bool { return SameType(t.Typ, other) }
func (t *TypedefDecl) String() string             { return t.Ident }

// ProblemBinding is an unresolved name.
type ProblemBinding struct {
	Decl
	Reason string
}

func (p *ProblemBinding) Problem() string { return p.Reason }
