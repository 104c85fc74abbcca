package frontend

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/pdom/internal/sema"
)

// specifiers are the declaration specifiers shared by every declarator of
// one declaration.
type specifiers struct {
	typ      sema.Type
	static   bool
	extern   bool
	auto     bool
	register bool
	inline   bool
	noreturn bool
}

func (s specifiers) annotations() sema.Annotations {
	return sema.Annotations{
		Static:   s.static,
		Extern:   s.extern,
		Auto:     s.auto,
		Register: s.register,
		Inline:   s.inline,
		NoReturn: s.noreturn,
	}
}

func (t *translator) specifiers(n *sitter.Node) specifiers {
	return t.specifiersIn(n, nil)
}

// specifiersIn reads the specifiers of n. Aggregates defined by them are
// owned by parent, or by the current scope's owner when parent is nil.
func (t *translator) specifiersIn(n *sitter.Node, parent sema.Binding) specifiers {
	var s specifiers
	var isConst, isVolatile bool
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "storage_class_specifier":
			switch t.text(c) {
			case "static":
				s.static = true
			case "extern":
				s.extern = true
			case "auto":
				s.auto = true
			case "register":
				s.register = true
			case "inline", "__inline", "__inline__":
				s.inline = true
			}
		case "type_qualifier":
			switch t.text(c) {
			case "const":
				isConst = true
			case "volatile":
				isVolatile = true
			case "_Noreturn", "noreturn":
				s.noreturn = true
			}
		case "attribute_specifier", "attribute_declaration":
			if strings.Contains(t.text(c), "noreturn") {
				s.noreturn = true
			}
		}
	}
	s.typ = t.typeSpecifier(n.ChildByFieldName("type"), parent)
	if isConst || isVolatile {
		s.typ = &sema.QualifierType{Elem: s.typ, Const: isConst, Volatile: isVolatile}
	}
	return s
}

func (t *translator) typeSpecifier(n *sitter.Node, parent sema.Binding) sema.Type {
	if n == nil {
		// Implicit int.
		return &sema.BasicType{Kind: sema.Int}
	}
	switch n.Type() {
	case "primitive_type":
		if bt := primitiveType(t.text(n)); bt != nil {
			return bt
		}
		return &sema.ProblemType{Reason: "unknown type " + t.text(n)}
	case "sized_type_specifier":
		return t.sizedType(n)
	case "type_identifier":
		name := t.text(n)
		if td, ok := t.scope.lookup(name).(*sema.TypedefDecl); ok {
			t.reference(td, n)
			return td
		}
		t.diag(n, "unknown type name "+name)
		return &sema.ProblemType{Reason: "unknown type " + name}
	case "struct_specifier", "union_specifier":
		return t.composite(n, parent)
	case "enum_specifier":
		return t.enumeration(n, parent)
	}
	return &sema.ProblemType{Reason: "unsupported type specifier " + n.Type()}
}

func compositeKey(n *sitter.Node) sema.CompositeKey {
	if n.Type() == "union_specifier" {
		return sema.KeyUnion
	}
	return sema.KeyStruct
}

// composite handles a struct or union specifier: a definition when it has
// a body, otherwise a use of the tag.
func (t *translator) composite(n *sitter.Node, parent sema.Binding) sema.Type {
	name := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	key := compositeKey(n)

	if body == nil {
		if name == nil {
			return &sema.ProblemType{Reason: "anonymous " + key.String() + " without body"}
		}
		if cd, ok := t.scope.lookupTag(t.text(name)).(*sema.CompositeDecl); ok && cd.Kind == key {
			t.reference(cd, name)
			return cd
		}
		// First use of an undeclared tag declares it.
		cd := &sema.CompositeDecl{
			Decl: sema.Decl{Ident: t.text(name), Parent: t.owner(), Loc: t.loc(name)},
			Kind: key,
		}
		t.scope.tags[cd.Ident] = cd
		t.reference(cd, name)
		return cd
	}

	if parent == nil {
		parent = t.owner()
	}
	cd := &sema.CompositeDecl{Decl: sema.Decl{Parent: parent}, Kind: key}
	at := n
	if name != nil {
		cd.Ident = t.text(name)
		t.scope.tags[cd.Ident] = cd
		at = name
	} else {
		cd.Anon = true
	}
	cd.Loc = t.loc(at)
	t.emit(cd, sema.RoleDefinition, at)
	t.fieldList(body, cd)
	return cd
}

func (t *translator) fieldList(n *sitter.Node, cd *sema.CompositeDecl) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "field_declaration":
			t.field(c, cd)
		case "preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif", "preproc_elifdef":
			t.fieldList(c, cd)
		}
	}
}

func (t *translator) field(n *sitter.Node, cd *sema.CompositeDecl) {
	spec := t.specifiersIn(n, cd)
	for _, d := range declarators(n) {
		info := t.declarator(d, spec.typ)
		if info.nameNode == nil {
			continue
		}
		f := &sema.FieldDecl{VarDecl: sema.VarDecl{
			Decl: sema.Decl{Ident: t.text(info.nameNode), Parent: cd, Loc: t.loc(info.nameNode)},
			Typ:  info.typ,
		}}
		t.emit(f, sema.RoleDefinition, info.nameNode)
	}
}

// enumeration handles an enum specifier. Enumerators belong to the
// enclosing scope, not to the enum.
func (t *translator) enumeration(n *sitter.Node, parent sema.Binding) sema.Type {
	name := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")

	if body == nil {
		if name == nil {
			return &sema.ProblemType{Reason: "anonymous enum without body"}
		}
		if ed, ok := t.scope.lookupTag(t.text(name)).(*sema.EnumDecl); ok {
			t.reference(ed, name)
			return ed
		}
		ed := &sema.EnumDecl{Decl: sema.Decl{Ident: t.text(name), Parent: t.owner(), Loc: t.loc(name)}}
		t.scope.tags[ed.Ident] = ed
		t.reference(ed, name)
		return ed
	}

	if parent == nil {
		parent = t.owner()
	}
	ed := &sema.EnumDecl{Decl: sema.Decl{Parent: parent}}
	at := n
	if name != nil {
		ed.Ident = t.text(name)
		t.scope.tags[ed.Ident] = ed
		at = name
	}
	ed.Loc = t.loc(at)
	t.emit(ed, sema.RoleDefinition, at)

	var next int64
	for i := 0; i < int(body.NamedChildCount()); i++ {
		c := body.NamedChild(i)
		if c.Type() != "enumerator" {
			continue
		}
		en := c.ChildByFieldName("name")
		if en == nil {
			continue
		}
		v := next
		if val := c.ChildByFieldName("value"); val != nil {
			if x, ok := t.evalConst(val); ok {
				v = x
			} else {
				t.diag(val, "enumerator value is not an integer constant")
			}
			t.walk(val)
		}
		e := &sema.EnumeratorDecl{
			Decl: sema.Decl{Ident: t.text(en), Parent: t.owner(), Loc: t.loc(en)},
			Val:  v,
			Enum: ed,
		}
		t.scope.ordinary[e.Ident] = e
		t.emit(e, sema.RoleDefinition, en)
		next = v + 1
	}
	return ed
}

func (t *translator) sizedType(n *sitter.Node) sema.Type {
	bt := &sema.BasicType{Kind: sema.Int}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "signed":
			bt.Flags |= sema.Signed
		case "unsigned":
			bt.Flags |= sema.Unsigned
		case "short":
			bt.Flags |= sema.Short
		case "long":
			if bt.Flags&sema.Long != 0 {
				bt.Flags = bt.Flags&^sema.Long | sema.LongLong
			} else {
				bt.Flags |= sema.Long
			}
		case "primitive_type":
			if p := primitiveType(t.text(c)); p != nil {
				bt.Kind = p.Kind
				bt.Flags |= p.Flags
			}
		}
	}
	return bt
}

// primitiveType maps the builtin type names the grammar knows, including
// the common fixed-width typedefs it treats as primitive.
func primitiveType(name string) *sema.BasicType {
	switch name {
	case "void":
		return &sema.BasicType{Kind: sema.Void}
	case "char":
		return &sema.BasicType{Kind: sema.Char}
	case "int":
		return &sema.BasicType{Kind: sema.Int}
	case "float":
		return &sema.BasicType{Kind: sema.Float}
	case "double":
		return &sema.BasicType{Kind: sema.Double}
	case "bool", "_Bool":
		return &sema.BasicType{Kind: sema.Bool}
	case "int8_t":
		return &sema.BasicType{Kind: sema.Char, Flags: sema.Signed}
	case "uint8_t":
		return &sema.BasicType{Kind: sema.Char, Flags: sema.Unsigned}
	case "int16_t":
		return &sema.BasicType{Kind: sema.Int, Flags: sema.Short}
	case "uint16_t", "char16_t":
		return &sema.BasicType{Kind: sema.Int, Flags: sema.Unsigned | sema.Short}
	case "int32_t":
		return &sema.BasicType{Kind: sema.Int}
	case "uint32_t", "char32_t":
		return &sema.BasicType{Kind: sema.Int, Flags: sema.Unsigned}
	case "int64_t", "ssize_t", "ptrdiff_t", "intptr_t":
		return &sema.BasicType{Kind: sema.Int, Flags: sema.Long}
	case "uint64_t", "size_t", "uintptr_t":
		return &sema.BasicType{Kind: sema.Int, Flags: sema.Unsigned | sema.Long}
	}
	return nil
}
