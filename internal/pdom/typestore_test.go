package pdom

import (
	"fmt"
	"testing"

	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/sema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typedefType(t *testing.T, l *CLinkage, name string) sema.Type {
	t.Helper()
	pb, err := l.FindBinding(name, 0, CTypedef)
	require.NoError(t, err)
	require.NotNil(t, pb, "typedef %s", name)
	typ, err := pb.(*Typedef).Type()
	require.NoError(t, err)
	return typ
}

func TestFunctionType_StoredVoidParameterEquivalence(t *testing.T) {
	t.Parallel()
	p := newTestPDOM(t)
	withVoid := function("a", intType, 1, param("", voidType))
	empty := function("b", intType, 2)
	addAll(t, p, declName(withVoid), declName(empty))

	require.NoError(t, p.View(func(l *CLinkage) error {
		var stored [2]*sema.FunctionType
		for i, name := range []string{"a", "b"} {
			pb, err := l.FindBinding(name, 0, CFunction)
			require.NoError(t, err)
			stored[i], err = pb.(*Function).Type()
			require.NoError(t, err)
		}
		assert.Len(t, stored[0].Params, 1)
		assert.Empty(t, stored[1].Params)
		assert.True(t, stored[0].IsSameType(stored[1]))
		assert.True(t, stored[1].IsSameType(stored[0]))
		assert.Equal(t, "()", stored[0].ParamString())
		return nil
	}))
}

func TestTypedef_DirectSelfReferenceRejected(t *testing.T) {
	t.Parallel()
	p := newTestPDOM(t)

	// typedef S *S;
	td := typedef("S", nil, 1)
	td.Typ = &sema.PointerType{Elem: td}
	addAll(t, p, defName(td))

	require.NoError(t, p.View(func(l *CLinkage) error {
		assert.Nil(t, typedefType(t, l, "S"))
		return nil
	}))
}

// typedef struct S { S* self; } S;
func TestTypedef_StructSelfReferenceTerminates(t *testing.T) {
	t.Parallel()
	p := newTestPDOM(t)
	s := structDecl("S", nil, 1)
	td := typedef("S", s, 1)
	self := field(s, "self", &sema.PointerType{Elem: td}, 1)
	addAll(t, p, defName(s), defName(self), defName(td))

	require.NoError(t, p.View(func(l *CLinkage) error {
		target := typedefType(t, l, "S")
		ref, ok := target.(*TypeRef)
		require.True(t, ok, "got %T", target)
		assert.Equal(t, sema.NamedStruct, ref.Kind)

		st := findStruct(t, l, "S")
		f, err := st.FindField("self")
		require.NoError(t, err)
		require.NotNil(t, f)
		typ, err := f.Type()
		require.NoError(t, err)
		assert.Equal(t, "S*", typ.String())
		ptr := typ.(*sema.PointerType)
		assert.True(t, sema.SameType(ptr.Elem, ref), "typedef S is struct S")
		return nil
	}))
}

func TestTypedef_DeepChainAccepted(t *testing.T) {
	t.Parallel()
	p := newTestPDOM(t)

	// T0 -> T1 -> ... -> T48 -> int: 49 typedefs.
	const depth = 49
	chain := make([]*sema.TypedefDecl, depth)
	for i := depth - 1; i >= 0; i-- {
		var target sema.Type = intType
		if i+1 < depth {
			target = chain[i+1]
		}
		chain[i] = typedef(fmt.Sprintf("T%d", i), target, i+1)
	}
	addAll(t, p, defName(chain[0]))

	require.NoError(t, p.View(func(l *CLinkage) error {
		for i := 0; i < depth; i++ {
			assert.NotNil(t, typedefType(t, l, fmt.Sprintf("T%d", i)), "T%d", i)
		}
		head, err := l.FindBinding("T0", 0, CTypedef)
		require.NoError(t, err)
		assert.Equal(t, intType, sema.Underlying(l.TypeForRecord(head.Record())))
		return nil
	}))
}

func TestTypedef_CycleLongerThanBudgetAccepted(t *testing.T) {
	t.Parallel()
	p := newTestPDOM(t)

	const n = 60
	cycle := make([]*sema.TypedefDecl, n)
	for i := range cycle {
		cycle[i] = typedef(fmt.Sprintf("A%d", i), nil, i+1)
	}
	for i := range cycle {
		cycle[i].Typ = cycle[(i+1)%n]
	}
	addAll(t, p, defName(cycle[0]))

	require.NoError(t, p.View(func(l *CLinkage) error {
		for i := 0; i < n; i++ {
			target := typedefType(t, l, fmt.Sprintf("A%d", i))
			require.NotNil(t, target, "A%d", i)
			assert.Equal(t, fmt.Sprintf("A%d", (i+1)%n), target.(*TypeRef).Ident)
		}
		return nil
	}))
}

func TestTypedef_ShortCycleRejected(t *testing.T) {
	t.Parallel()
	p := newTestPDOM(t)
	a := typedef("A", nil, 1)
	b := typedef("B", a, 2)
	a.Typ = b
	addAll(t, p, defName(a))

	require.NoError(t, p.View(func(l *CLinkage) error {
		assert.Nil(t, typedefType(t, l, "A"))
		return nil
	}))
}

func TestAddType_MarshalledTypesRoundTrip(t *testing.T) {
	t.Parallel()
	p := newTestPDOM(t)
	s := structDecl("node", nil, 1)
	addAll(t, p, defName(s))

	types := []sema.Type{
		&sema.ArrayType{Elem: charType, Size: 16},
		&sema.ArrayType{Elem: &sema.PointerType{Elem: intType}, Size: -1},
		&sema.QualifierType{Elem: longType, Const: true, Volatile: true},
		&sema.PointerType{Elem: &sema.PointerType{Elem: charType, Restrict: true}, Const: true},
		&sema.PointerType{Elem: &sema.FunctionType{Return: voidType, Params: []sema.Type{intType}, Varargs: true}},
		&sema.ProblemType{Reason: "unresolved"},
	}
	require.NoError(t, p.Update(func(l *CLinkage) error {
		for _, typ := range types {
			rec, err := l.AddType(l.Record(), typ)
			require.NoError(t, err)
			nt, err := readNodeType(l.db, rec)
			require.NoError(t, err)
			assert.Equal(t, CMarshalledType, nt)

			got, err := l.ReadType(rec)
			require.NoError(t, err)
			assert.Equal(t, typ, got)

			same, err := l.sameStoredType(rec, typ)
			require.NoError(t, err)
			assert.True(t, same, "%s", typ)
			require.NoError(t, l.DeleteType(rec))
		}

		rec, err := l.AddType(l.Record(), &sema.PointerType{Elem: s})
		require.NoError(t, err)
		got, err := l.ReadType(rec)
		require.NoError(t, err)
		assert.Equal(t, "struct node*", got.String())
		return nil
	}))
}

func TestAddType_BindingsAreNotOwned(t *testing.T) {
	t.Parallel()
	p := newTestPDOM(t)
	s := structDecl("owned", nil, 1)
	addAll(t, p, defName(s))

	require.NoError(t, p.Update(func(l *CLinkage) error {
		rec, err := l.AddType(l.Record(), s)
		require.NoError(t, err)
		st := findStruct(t, l, "owned")
		assert.Equal(t, st.Record(), rec)

		require.NoError(t, l.DeleteType(rec))
		nt, err := readNodeType(l.db, rec)
		require.NoError(t, err)
		assert.Equal(t, CStructure, nt, "DeleteType leaves bindings alone")

		zero, err := l.AddType(l.Record(), nil)
		require.NoError(t, err)
		assert.Zero(t, zero)
		typ, err := l.ReadType(0)
		require.NoError(t, err)
		assert.Nil(t, typ)
		return nil
	}))
}

func TestReadType_NonTypeRecordIsProblem(t *testing.T) {
	t.Parallel()
	p := newTestPDOM(t)
	out := addAll(t, p, defName(variable("v", intType, 1)))

	require.NoError(t, p.View(func(l *CLinkage) error {
		typ, err := l.ReadType(out[0].Record())
		require.NoError(t, err)
		assert.IsType(t, &sema.ProblemType{}, typ)

		assert.IsType(t, &sema.ProblemType{}, l.TypeForRecord(l.Record()))
		return nil
	}))
}

func TestReplaceType_ReleasesOldType(t *testing.T) {
	t.Parallel()
	p := newTestPDOM(t)
	addAll(t, p, defName(variable("buf", &sema.ArrayType{Elem: charType, Size: 8}, 1)))
	size := p.Size()

	// Alternate between two types: the freed blocks are reused.
	for i := 0; i < 10; i++ {
		typ := sema.Type(&sema.ArrayType{Elem: charType, Size: 8})
		if i%2 == 0 {
			typ = &sema.ArrayType{Elem: charType, Size: 16}
		}
		addAll(t, p, defName(variable("buf", typ, 1)))
	}
	require.NoError(t, p.View(func(l *CLinkage) error {
		pb, err := l.FindBinding("buf", 0, CVariable)
		require.NoError(t, err)
		typ, err := pb.(*Variable).Type()
		require.NoError(t, err)
		assert.Equal(t, &sema.ArrayType{Elem: charType, Size: 8}, typ)
		return nil
	}))
	assert.LessOrEqual(t, p.Size(), size+int64(4*database.MaxMallocSize))
}
