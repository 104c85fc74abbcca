package frontend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jward/pdom/internal/sema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *Unit {
	t.Helper()
	u, err := New().Parse(context.Background(), "unit.c", []byte(src))
	require.NoError(t, err)
	return u
}

// defs returns the named definitions of u by identifier; later definitions
// win.
func defs(u *Unit) map[string]sema.Binding {
	out := make(map[string]sema.Binding)
	for _, n := range u.Names {
		if n.Role == sema.RoleDefinition && n.Binding.Name() != "" {
			out[n.Binding.Name()] = n.Binding
		}
	}
	return out
}

func refs(u *Unit) []string {
	var out []string
	for _, n := range u.Names {
		if n.Role == sema.RoleReference {
			out = append(out, n.Binding.Name())
		}
	}
	return out
}

func rolesOf(u *Unit, name string) []sema.Role {
	var out []sema.Role
	for _, n := range u.Names {
		if n.Binding.Name() == name {
			out = append(out, n.Role)
		}
	}
	return out
}

func TestIsSource(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path string
		want bool
	}{
		{"main.c", true},
		{"include/list.h", true},
		{"UPPER.C", true},
		{"main.go", false},
		{"Makefile", false},
		{"lib.cpp", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSource(tt.path))
		})
	}
}

// =============================================================================
// Aggregates
// =============================================================================

func TestParse_StructMembers(t *testing.T) {
	t.Parallel()
	u := parse(t, `struct S {
	int a;
	struct { int b; int c; };
	union U { int d; } u;
};
`)
	assert.Empty(t, u.Diagnostics)

	var anon *sema.CompositeDecl
	var order []string
	for _, n := range u.Names {
		require.Equal(t, sema.RoleDefinition, n.Role)
		if cd, ok := n.Binding.(*sema.CompositeDecl); ok && cd.Anon {
			anon = cd
			order = append(order, "{anon}")
			continue
		}
		order = append(order, n.Binding.Name())
	}
	assert.Equal(t, []string{"S", "a", "{anon}", "b", "c", "U", "d", "u"}, order)

	d := defs(u)
	s := d["S"].(*sema.CompositeDecl)
	assert.Equal(t, sema.KeyStruct, s.Kind)
	assert.Equal(t, sema.Location{File: "unit.c", Line: 1, Col: 8}, s.Loc)

	require.NotNil(t, anon)
	assert.Same(t, s, anon.Parent)
	assert.Equal(t, 3, anon.Loc.Line)
	assert.Same(t, anon, d["b"].Owner())

	un := d["U"].(*sema.CompositeDecl)
	assert.Equal(t, sema.KeyUnion, un.Kind)
	assert.Same(t, s, un.Parent)
	assert.Same(t, un, d["d"].Owner())

	uf := d["u"].(*sema.FieldDecl)
	assert.Same(t, s, uf.Parent)
	assert.Same(t, un, uf.Typ)
}

func TestParse_ForwardDeclaredStruct(t *testing.T) {
	t.Parallel()
	u := parse(t, `struct node;
struct node { struct node *next; };
`)
	assert.Equal(t, []sema.Role{sema.RoleDeclaration, sema.RoleDefinition, sema.RoleReference}, rolesOf(u, "node"))

	next := defs(u)["next"].(*sema.FieldDecl)
	ptr, ok := next.Typ.(*sema.PointerType)
	require.True(t, ok, "got %T", next.Typ)
	assert.Same(t, defs(u)["node"], ptr.Elem)
}

func TestParse_UndeclaredTagUse(t *testing.T) {
	t.Parallel()
	u := parse(t, "struct opaque *handle;\n")
	assert.Equal(t, []sema.Role{sema.RoleReference}, rolesOf(u, "opaque"))
	h := defs(u)["handle"].(*sema.VarDecl)
	assert.Equal(t, "struct opaque*", h.Typ.String())
}

func TestParse_EnumValues(t *testing.T) {
	t.Parallel()
	u := parse(t, "enum color { RED, GREEN = 5, BLUE, DARK = GREEN - 10, MASK = (1 << 4) | 'A' };\n")
	assert.Empty(t, u.Diagnostics)

	d := defs(u)
	ed := d["color"].(*sema.EnumDecl)
	want := map[string]int64{"RED": 0, "GREEN": 5, "BLUE": 6, "DARK": -5, "MASK": 16 | 65}
	for name, v := range want {
		e, ok := d[name].(*sema.EnumeratorDecl)
		require.True(t, ok, name)
		assert.Equal(t, v, e.Val, name)
		assert.Same(t, ed, e.Enum, name)
		assert.Nil(t, e.Parent, "enumerators belong to the enclosing scope")
	}
	assert.Equal(t, []string{"GREEN"}, refs(u))
}

func TestParse_EnumValueNotConstant(t *testing.T) {
	t.Parallel()
	u := parse(t, "int limit;\nenum { A = limit, B };\n")
	require.Len(t, u.Diagnostics, 1)
	assert.Contains(t, u.Diagnostics[0].Message, "not an integer constant")
	assert.Equal(t, 2, u.Diagnostics[0].Loc.Line)

	d := defs(u)
	assert.Equal(t, int64(0), d["A"].(*sema.EnumeratorDecl).Val)
	assert.Equal(t, int64(1), d["B"].(*sema.EnumeratorDecl).Val)
	assert.Equal(t, []string{"limit"}, refs(u))
}

// =============================================================================
// Declarations
// =============================================================================

func TestParse_TypedefReference(t *testing.T) {
	t.Parallel()
	u := parse(t, "typedef unsigned long word;\nword n;\n")

	d := defs(u)
	td := d["word"].(*sema.TypedefDecl)
	assert.Equal(t, &sema.BasicType{Kind: sema.Int, Flags: sema.Unsigned | sema.Long}, td.Typ)
	assert.Equal(t, sema.Location{File: "unit.c", Line: 1, Col: 23}, td.Loc)

	n := d["n"].(*sema.VarDecl)
	assert.Same(t, td, n.Typ)
	assert.Equal(t, []sema.Role{sema.RoleDefinition, sema.RoleReference}, rolesOf(u, "word"))
}

func TestParse_UnknownTypeName(t *testing.T) {
	t.Parallel()
	u := parse(t, "mystery_t v;\n")
	require.NotEmpty(t, u.Diagnostics)
	assert.Contains(t, u.Diagnostics[0].String(), "unit.c:1:1: unknown type name mystery_t")
	v := defs(u)["v"].(*sema.VarDecl)
	assert.IsType(t, &sema.ProblemType{}, v.Typ)
}

func TestParse_PrototypeAndDefinition(t *testing.T) {
	t.Parallel()
	u := parse(t, `int count(void);
int count(void) { return 0; }
int print(const char *fmt, ...);
`)
	assert.Equal(t, []sema.Role{sema.RoleDeclaration, sema.RoleDefinition}, rolesOf(u, "count"))

	count := defs(u)["count"].(*sema.FuncDecl)
	assert.True(t, count.Typ.TakesVoid())
	assert.Empty(t, count.Params)
	assert.Equal(t, "int ()", count.Typ.String())

	var print *sema.FuncDecl
	for _, n := range u.Names {
		if fn, ok := n.Binding.(*sema.FuncDecl); ok && fn.Ident == "print" {
			print = fn
		}
	}
	require.NotNil(t, print)
	assert.True(t, print.Typ.Varargs)
	assert.True(t, print.Annot.Varargs)
	require.Len(t, print.Params, 1)
	assert.Equal(t, "fmt", print.Params[0].Ident)
	assert.Same(t, print, print.Params[0].Parent)

	ptr := print.Params[0].Typ.(*sema.PointerType)
	q := ptr.Elem.(*sema.QualifierType)
	assert.True(t, q.Const)
	assert.Equal(t, &sema.BasicType{Kind: sema.Char}, q.Elem)
	assert.Equal(t, []sema.Role{sema.RoleDeclaration}, rolesOf(u, "fmt"))
}

func TestParse_OldStyleDefinition(t *testing.T) {
	t.Parallel()
	u := parse(t, `int old(a, b, c)
int a;
char *b;
{
	return a + *b + c;
}
`)
	assert.Empty(t, u.Diagnostics)
	old := defs(u)["old"].(*sema.FuncDecl)
	intT := &sema.BasicType{Kind: sema.Int}
	charT := &sema.BasicType{Kind: sema.Char}
	assert.Equal(t, []sema.Type{intT, &sema.PointerType{Elem: charT}, intT}, old.Typ.Params)
	assert.Equal(t, "int (int,char*,int)", old.Typ.String())

	require.Len(t, old.Params, 3)
	for i, name := range []string{"a", "b", "c"} {
		assert.Equal(t, name, old.Params[i].Ident)
		assert.Same(t, old, old.Params[i].Parent)
	}
	assert.Equal(t, 2, old.Params[0].Loc.Line, "typed parameters are located at their declaration")
	assert.Equal(t, 1, old.Params[2].Loc.Line, "implicit int parameters stay in the identifier list")
	assert.Subset(t, refs(u), []string{"a", "b", "c"})
}

func TestParse_Annotations(t *testing.T) {
	t.Parallel()
	u := parse(t, `static inline int helper(int x) { return x; }
__attribute__((noreturn)) void die(void);
extern int shared;
register int fast = 3;
`)
	var die *sema.FuncDecl
	for _, n := range u.Names {
		if fn, ok := n.Binding.(*sema.FuncDecl); ok && fn.Ident == "die" {
			die = fn
		}
	}
	require.NotNil(t, die)
	assert.True(t, die.Annot.NoReturn)

	d := defs(u)
	helper := d["helper"].(*sema.FuncDecl)
	assert.True(t, helper.Annot.Static)
	assert.True(t, helper.Annot.Inline)
	assert.False(t, helper.Annot.Extern)

	assert.Equal(t, []sema.Role{sema.RoleDeclaration}, rolesOf(u, "shared"))

	fast := d["fast"].(*sema.VarDecl)
	assert.True(t, fast.Annot.Register)
	require.NotNil(t, fast.Init)
	assert.Equal(t, int64(3), *fast.Init)
}

func TestParse_DerivedTypes(t *testing.T) {
	t.Parallel()
	u := parse(t, `char *names[4];
int (*handler)(int, char);
int grid[2][3];
void take(int arr[], void (*cb)(void));
const char *volatile cursor;
`)
	assert.Empty(t, u.Diagnostics)
	d := defs(u)
	intT := &sema.BasicType{Kind: sema.Int}
	charT := &sema.BasicType{Kind: sema.Char}
	voidT := &sema.BasicType{Kind: sema.Void}

	assert.Equal(t, &sema.ArrayType{Elem: &sema.PointerType{Elem: charT}, Size: 4}, d["names"].(*sema.VarDecl).Typ)
	assert.Equal(t, &sema.PointerType{Elem: &sema.FunctionType{Return: intT, Params: []sema.Type{intT, charT}}},
		d["handler"].(*sema.VarDecl).Typ)
	assert.Equal(t, &sema.ArrayType{Elem: &sema.ArrayType{Elem: intT, Size: 3}, Size: 2}, d["grid"].(*sema.VarDecl).Typ)
	assert.Equal(t, &sema.PointerType{Elem: &sema.QualifierType{Elem: charT, Const: true}, Volatile: true},
		d["cursor"].(*sema.VarDecl).Typ)

	var take *sema.FuncDecl
	for _, n := range u.Names {
		if fn, ok := n.Binding.(*sema.FuncDecl); ok && fn.Ident == "take" {
			take = fn
		}
	}
	require.NotNil(t, take)
	cbType := &sema.PointerType{Elem: &sema.FunctionType{Return: voidT, Params: []sema.Type{voidT}}}
	assert.Equal(t, []sema.Type{&sema.PointerType{Elem: intT}, cbType}, take.Typ.Params)
	require.Len(t, take.Params, 2)
	assert.Equal(t, "arr", take.Params[0].Ident)
	assert.Equal(t, "cb", take.Params[1].Ident)
}

func TestParse_ConditionalSectionsReadBothBranches(t *testing.T) {
	t.Parallel()
	u := parse(t, `#ifdef FAST
int mode = 1;
#else
int mode = 2;
#endif
`)
	var inits []int64
	for _, n := range u.Names {
		if v, ok := n.Binding.(*sema.VarDecl); ok && v.Ident == "mode" {
			require.NotNil(t, v.Init)
			inits = append(inits, *v.Init)
		}
	}
	assert.Equal(t, []int64{1, 2}, inits)
}

// =============================================================================
// Function bodies
// =============================================================================

func TestParse_BodyReferences(t *testing.T) {
	t.Parallel()
	u := parse(t, `int total;
struct point { int x; int y; };
int sum(struct point *p, int n) {
	int acc = total;
	for (int i = 0; i < n; i++) {
		acc += p->x + i;
	}
	return acc + sizeof(struct point);
}
`)
	assert.Empty(t, u.Diagnostics)
	assert.Equal(t, []string{"point", "total", "i", "n", "i", "acc", "p", "i", "acc", "point"}, refs(u))

	sum := defs(u)["sum"].(*sema.FuncDecl)
	for _, n := range u.Names {
		switch b := n.Binding.(type) {
		case *sema.VarDecl:
			if b.Ident == "acc" || b.Ident == "i" {
				assert.Same(t, sum, b.Parent, b.Ident)
				assert.True(t, sema.IsFunctionScoped(b), b.Ident)
			}
		case *sema.ParamDecl:
			assert.Same(t, sum, b.Parent)
		}
	}
}

func TestParse_ShadowedLocal(t *testing.T) {
	t.Parallel()
	u := parse(t, `int v;
void f(void) {
	v = 1;
	{
		int v;
		v = 2;
	}
}
`)
	var targets []sema.Binding
	for _, n := range u.Names {
		if n.Role == sema.RoleReference && n.Binding.Name() == "v" {
			targets = append(targets, n.Binding)
		}
	}
	require.Len(t, targets, 2)
	assert.Nil(t, targets[0].Owner())
	assert.NotNil(t, targets[1].Owner())
}

func TestParse_UnresolvedIdentifierIsProblem(t *testing.T) {
	t.Parallel()
	u := parse(t, "void f(void) { undefined_call(); }\n")
	var problems []*sema.ProblemBinding
	for _, n := range u.Names {
		if p, ok := n.Binding.(*sema.ProblemBinding); ok {
			problems = append(problems, p)
		}
	}
	require.Len(t, problems, 1)
	assert.Equal(t, "undefined_call", problems[0].Ident)
	assert.Equal(t, sema.Location{File: "unit.c", Line: 1, Col: 16}, problems[0].Loc)
}

// =============================================================================
// Errors and files
// =============================================================================

func TestParse_SyntaxErrorsAreDiagnostics(t *testing.T) {
	t.Parallel()
	u := parse(t, "int ok;\nint broken = ;\n")
	assert.NotEmpty(t, u.Diagnostics)
	assert.LessOrEqual(t, len(u.Diagnostics), maxSyntaxErrors)
	assert.Contains(t, defs(u), "ok")
}

func TestParseFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "lib.c")
	require.NoError(t, os.WriteFile(path, []byte("int answer = 42;\n"), 0o644))

	u, err := New().ParseFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, u.Path)
	require.Len(t, u.Names, 1)
	assert.Equal(t, path, u.Names[0].Loc.File)

	_, err = New().ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing.c"))
	assert.Error(t, err)
}

func TestParseIntLiteral(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"42", 42, true},
		{"0x1F", 31, true},
		{"0xE", 14, true},
		{"017", 15, true},
		{"0", 0, true},
		{"10UL", 10, true},
		{"0b101", 5, true},
		{"1'000", 1000, true},
		{"0xFFFFFFFFFFFFFFFF", -1, true},
		{"1.5", 0, false},
		{"1e3", 0, false},
		{"09", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseIntLiteral(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCharLiteral(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]int64{`'a'`: 97, `'\n'`: 10, `'\0'`: 0, `L'x'`: 120, `'\x41'`: 65, `'\101'`: 65} {
		got, ok := parseCharLiteral(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := parseCharLiteral(`'ab'`)
	assert.False(t, ok)
}
