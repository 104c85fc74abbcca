package sema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	intType  = &BasicType{Kind: Int}
	charType = &BasicType{Kind: Char}
	voidType = &BasicType{Kind: Void}
)

func TestFunctionType_VoidParameterEquivalence(t *testing.T) {
	t.Parallel()
	withVoid := &FunctionType{Return: intType, Params: []Type{voidType}}
	empty := &FunctionType{Return: intType}

	assert.True(t, withVoid.IsSameType(empty))
	assert.True(t, empty.IsSameType(withVoid))
	assert.True(t, SameType(withVoid, empty))
	assert.Equal(t, "int ()", withVoid.String())

	oneInt := &FunctionType{Return: intType, Params: []Type{intType}}
	assert.False(t, oneInt.IsSameType(empty))
	assert.False(t, empty.IsSameType(oneInt))

	voidPtr := &FunctionType{Return: intType, Params: []Type{&PointerType{Elem: voidType}}}
	assert.False(t, voidPtr.IsSameType(empty), "void* is a real parameter")
}

func TestFunctionType_ParameterwiseEquality(t *testing.T) {
	t.Parallel()
	a := &FunctionType{Return: voidType, Params: []Type{intType, &PointerType{Elem: charType}}}
	b := &FunctionType{Return: voidType, Params: []Type{intType, &PointerType{Elem: charType}}}
	c := &FunctionType{Return: intType, Params: []Type{intType, &PointerType{Elem: charType}}}
	d := &FunctionType{Return: voidType, Params: []Type{intType, &PointerType{Elem: charType}}, Varargs: true}

	assert.True(t, a.IsSameType(b))
	assert.False(t, a.IsSameType(c), "return types differ")
	assert.False(t, a.IsSameType(d), "varargs differ")
	assert.Equal(t, "(int,char*)", a.ParamString())
	assert.Equal(t, "(int,char*,...)", d.ParamString())
}

func TestBasicType_Equivalence(t *testing.T) {
	t.Parallel()
	assert.True(t, SameType(&BasicType{Kind: Int, Flags: Signed}, intType))
	assert.True(t, SameType(&BasicType{Flags: Unsigned}, &BasicType{Kind: Int, Flags: Unsigned}))
	assert.False(t, SameType(&BasicType{Kind: Char, Flags: Signed}, charType))
	assert.False(t, SameType(&BasicType{Kind: Int, Flags: Long}, intType))
	assert.Equal(t, "unsigned long int", (&BasicType{Kind: Int, Flags: Unsigned | Long}).String())
	assert.Equal(t, "unsigned", (&BasicType{Flags: Unsigned}).String())
}

func TestTypedef_IsTransparent(t *testing.T) {
	t.Parallel()
	size := &TypedefDecl{Decl: Decl{Ident: "size_t"}, Typ: &BasicType{Kind: Int, Flags: Unsigned | Long}}
	alias := &TypedefDecl{Decl: Decl{Ident: "sz"}, Typ: size}

	assert.True(t, SameType(alias, &BasicType{Kind: Int, Flags: Unsigned | Long}))
	assert.True(t, SameType(&PointerType{Elem: alias}, &PointerType{Elem: size}))
	assert.False(t, SameType(alias, intType))
}

func TestComposite_Identity(t *testing.T) {
	t.Parallel()
	s1 := &CompositeDecl{Decl: Decl{Ident: "S"}, Kind: KeyStruct}
	s2 := &CompositeDecl{Decl: Decl{Ident: "S"}, Kind: KeyStruct}
	u := &CompositeDecl{Decl: Decl{Ident: "S"}, Kind: KeyUnion}
	anon1 := &CompositeDecl{Kind: KeyStruct, Anon: true}
	anon2 := &CompositeDecl{Kind: KeyStruct, Anon: true}

	assert.True(t, SameType(s1, s2))
	assert.False(t, SameType(s1, u))
	assert.True(t, SameType(anon1, anon1))
	assert.False(t, SameType(anon1, anon2))
	assert.Equal(t, "struct S", s1.String())
	assert.Equal(t, "struct S*", (&PointerType{Elem: s1}).String())
}

func TestDerivedTypes(t *testing.T) {
	t.Parallel()
	assert.True(t, SameType(&ArrayType{Elem: intType, Size: 4}, &ArrayType{Elem: intType, Size: -1}))
	assert.False(t, SameType(&ArrayType{Elem: intType, Size: 4}, &ArrayType{Elem: intType, Size: 5}))
	assert.False(t, SameType(&QualifierType{Elem: intType, Const: true}, intType))
	assert.False(t, SameType(&PointerType{Elem: intType, Const: true}, &PointerType{Elem: intType}))
	assert.False(t, SameType(&ProblemType{Reason: "x"}, &ProblemType{Reason: "x"}))
	assert.True(t, SameType(nil, nil))
	assert.False(t, SameType(nil, intType))

	assert.Equal(t, "const char*", (&PointerType{Elem: &QualifierType{Elem: charType, Const: true}}).String())
	assert.Equal(t, "int[4]", (&ArrayType{Elem: intType, Size: 4}).String())
}

func TestFieldIsVariable(t *testing.T) {
	t.Parallel()
	s := &CompositeDecl{Decl: Decl{Ident: "S"}, Kind: KeyStruct}
	var b Binding = &FieldDecl{VarDecl: VarDecl{Decl: Decl{Ident: "a", Parent: s}, Typ: intType}}

	_, isVar := b.(Variable)
	f, isField := b.(Field)
	assert.True(t, isVar)
	assert.True(t, isField)
	assert.Equal(t, s, f.Composite())
}

func TestIsFunctionScoped(t *testing.T) {
	t.Parallel()
	fn := &FuncDecl{Decl: Decl{Ident: "main"}}
	local := &CompositeDecl{Decl: Decl{Ident: "L", Parent: fn}, Kind: KeyStruct}
	member := &FieldDecl{VarDecl: VarDecl{Decl: Decl{Ident: "x", Parent: local}}}
	global := &VarDecl{Decl: Decl{Ident: "g"}}

	assert.True(t, IsFunctionScoped(local))
	assert.True(t, IsFunctionScoped(member))
	assert.False(t, IsFunctionScoped(global))
	assert.False(t, IsFunctionScoped(fn))
}
