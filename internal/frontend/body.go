package frontend

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/pdom/internal/sema"
)

// block walks the items of a compound statement in the current scope.
func (t *translator) block(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		t.walk(n.NamedChild(i))
	}
}

// walk records the references made by a statement or expression and the
// declarations it introduces.
func (t *translator) walk(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "declaration":
		t.declaration(n)
	case "type_definition":
		t.typeDefinition(n)
	case "struct_specifier", "union_specifier", "enum_specifier":
		t.tagDeclaration(n)
	case "compound_statement", "for_statement":
		t.scope = newScope(t.scope, t.owner())
		t.block(n)
		t.scope = t.scope.parent
	case "identifier":
		name := t.text(n)
		if b := t.scope.lookup(name); b != nil {
			t.reference(b, n)
			return
		}
		t.reference(&sema.ProblemBinding{
			Decl:   sema.Decl{Ident: name, Loc: t.loc(n)},
			Reason: "unresolved",
		}, n)
	case "field_expression":
		// Members are resolved by type, which needs more than the scope.
		t.walk(n.ChildByFieldName("argument"))
	case "type_descriptor":
		spec := t.specifiers(n)
		if d := n.ChildByFieldName("declarator"); d != nil {
			t.declarator(d, spec.typ)
		}
	case "comment", "string_literal", "concatenated_string", "number_literal",
		"char_literal", "statement_identifier", "field_identifier", "true", "false", "null":
	default:
		for i := 0; i < int(n.NamedChildCount()); i++ {
			t.walk(n.NamedChild(i))
		}
	}
}
