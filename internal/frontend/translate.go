package frontend

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/pdom/internal/sema"
)

// maxSyntaxErrors caps the diagnostics reported for one unit's parse errors.
const maxSyntaxErrors = 10

// translator walks one syntax tree and collects names.
type translator struct {
	path  string
	src   []byte
	scope *scope
	names []sema.Name
	diags []Diagnostic
}

func newTranslator(path string, src []byte) *translator {
	return &translator{path: path, src: src, scope: newScope(nil, nil)}
}

func (t *translator) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(t.src)
}

func (t *translator) loc(n *sitter.Node) sema.Location {
	p := n.StartPoint()
	return sema.Location{File: t.path, Line: int(p.Row) + 1, Col: int(p.Column) + 1}
}

func (t *translator) emit(b sema.Binding, role sema.Role, n *sitter.Node) {
	t.names = append(t.names, sema.Name{Binding: b, Role: role, Loc: t.loc(n)})
}

func (t *translator) reference(b sema.Binding, n *sitter.Node) {
	t.emit(b, sema.RoleReference, n)
}

func (t *translator) diag(n *sitter.Node, msg string) {
	t.diags = append(t.diags, Diagnostic{Loc: t.loc(n), Message: msg})
}

func (t *translator) syntaxErrors(root *sitter.Node) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if len(t.diags) >= maxSyntaxErrors {
			return
		}
		switch {
		case n.IsMissing():
			t.diag(n, "missing "+n.Type())
			return
		case n.IsError():
			t.diag(n, "syntax error")
			return
		case !n.HasError():
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
}

// owner is the binding enclosing new declarations: the current function,
// or nil at file scope.
func (t *translator) owner() sema.Binding { return t.scope.owner }

func (t *translator) atFileScope() bool { return t.scope.parent == nil }

// translationUnit handles the top-level items of a file or of a
// conditional preprocessor section.
func (t *translator) translationUnit(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		item := n.NamedChild(i)
		switch item.Type() {
		case "declaration":
			t.declaration(item)
		case "function_definition":
			t.functionDefinition(item)
		case "type_definition":
			t.typeDefinition(item)
		case "struct_specifier", "union_specifier", "enum_specifier":
			t.tagDeclaration(item)
		case "preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif", "preproc_elifdef":
			t.translationUnit(item)
		}
	}
}

// declaration handles a declaration at file or block scope.
func (t *translator) declaration(n *sitter.Node) {
	decls := declarators(n)
	if len(decls) == 0 && t.forwardDeclaration(n.ChildByFieldName("type")) {
		return
	}
	spec := t.specifiers(n)
	for _, d := range decls {
		info := t.declarator(d, spec.typ)
		if info.nameNode == nil {
			continue
		}
		if ft, ok := info.typ.(*sema.FunctionType); ok {
			t.functionDeclaration(info, ft, spec, sema.RoleDeclaration)
			continue
		}
		t.variable(info, spec)
	}
}

// tagDeclaration handles a specifier standing alone, as in
// "struct S { int a; };" or "struct S;".
func (t *translator) tagDeclaration(n *sitter.Node) {
	if !t.forwardDeclaration(n) {
		t.typeSpecifier(n, nil)
	}
}

// forwardDeclaration handles "struct S;", which declares the tag in the
// current scope even when an outer S exists.
func (t *translator) forwardDeclaration(typ *sitter.Node) bool {
	if typ == nil || typ.ChildByFieldName("body") != nil {
		return false
	}
	if typ.Type() != "struct_specifier" && typ.Type() != "union_specifier" {
		return false
	}
	name := typ.ChildByFieldName("name")
	if name == nil {
		return false
	}
	if prev, ok := t.scope.tags[t.text(name)]; ok {
		t.emit(prev, sema.RoleDeclaration, name)
		return true
	}
	cd := &sema.CompositeDecl{
		Decl: sema.Decl{Ident: t.text(name), Parent: t.owner(), Loc: t.loc(name)},
		Kind: compositeKey(typ),
	}
	t.scope.tags[cd.Ident] = cd
	t.emit(cd, sema.RoleDeclaration, name)
	return true
}

func (t *translator) variable(info declInfo, spec specifiers) {
	v := &sema.VarDecl{
		Decl:  sema.Decl{Ident: t.text(info.nameNode), Parent: t.owner(), Loc: t.loc(info.nameNode)},
		Typ:   info.typ,
		Annot: spec.annotations(),
	}
	if info.value != nil {
		if x, ok := t.evalConst(info.value); ok {
			v.Init = &x
		}
		t.walk(info.value)
	}
	role := sema.RoleDefinition
	if spec.extern && info.value == nil {
		role = sema.RoleDeclaration
	}
	t.scope.ordinary[v.Ident] = v
	t.emit(v, role, info.nameNode)
}

// functionDeclaration records a prototype (or, with RoleDefinition, the
// head of a definition) and returns the function.
func (t *translator) functionDeclaration(info declInfo, ft *sema.FunctionType, spec specifiers, role sema.Role) *sema.FuncDecl {
	// Block-scope function declarations still name the global function.
	fn := &sema.FuncDecl{
		Decl:  sema.Decl{Ident: t.text(info.nameNode), Loc: t.loc(info.nameNode)},
		Typ:   ft,
		Annot: spec.annotations(),
	}
	fn.Annot.Varargs = ft.Varargs
	for _, p := range info.params {
		pd := &sema.ParamDecl{Typ: p.typ, Annot: p.spec.annotations()}
		pd.Parent = fn
		if p.nameNode != nil {
			pd.Ident = t.text(p.nameNode)
			pd.Loc = t.loc(p.nameNode)
		}
		fn.Params = append(fn.Params, pd)
	}

	t.scope.ordinary[fn.Ident] = fn
	t.scope.file().ordinary[fn.Ident] = fn
	t.emit(fn, role, info.nameNode)
	for i, pd := range fn.Params {
		if node := info.params[i].nameNode; node != nil {
			t.emit(pd, role, node)
		}
	}
	return fn
}

func (t *translator) functionDefinition(n *sitter.Node) {
	spec := t.specifiers(n)
	d := n.ChildByFieldName("declarator")
	if d == nil {
		return
	}
	info := t.declarator(d, spec.typ)
	ft, ok := info.typ.(*sema.FunctionType)
	if info.nameNode == nil || !ok {
		t.diag(n, "function definition without a function declarator")
		return
	}
	t.oldStyleParams(n, &info, ft)
	fn := t.functionDeclaration(info, ft, spec, sema.RoleDefinition)

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	t.scope = newScope(t.scope, fn)
	for _, pd := range fn.Params {
		if pd.Ident != "" {
			t.scope.ordinary[pd.Ident] = pd
		}
	}
	t.block(body)
	t.scope = t.scope.parent
}

func (t *translator) typeDefinition(n *sitter.Node) {
	spec := t.specifiers(n)
	for _, d := range declarators(n) {
		info := t.declarator(d, spec.typ)
		if info.nameNode == nil {
			continue
		}
		td := &sema.TypedefDecl{
			Decl: sema.Decl{Ident: t.text(info.nameNode), Parent: t.owner(), Loc: t.loc(info.nameNode)},
			Typ:  info.typ,
		}
		t.scope.ordinary[td.Ident] = td
		t.emit(td, sema.RoleDefinition, info.nameNode)
	}
}
