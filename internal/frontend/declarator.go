package frontend

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/pdom/internal/sema"
)

// declInfo is the result of reading one declarator against a base type.
type declInfo struct {
	nameNode *sitter.Node
	typ      sema.Type
	value    *sitter.Node
	params   []paramInfo
}

type paramInfo struct {
	nameNode *sitter.Node
	typ      sema.Type
	spec     specifiers
	oldStyle bool // named in an identifier list, typed by later declarations
}

var declaratorKinds = map[string]bool{
	"identifier":               true,
	"field_identifier":         true,
	"type_identifier":          true,
	"init_declarator":          true,
	"pointer_declarator":       true,
	"function_declarator":      true,
	"array_declarator":         true,
	"parenthesized_declarator": true,
	"attributed_declarator":    true,
}

// declarators returns the declarators of a declaration-like node: the
// declarator-kind children that follow its type specifier.
func declarators(n *sitter.Node) []*sitter.Node {
	var after uint32
	if typ := n.ChildByFieldName("type"); typ != nil {
		after = typ.EndByte()
	}
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.StartByte() >= after && declaratorKinds[c.Type()] {
			out = append(out, c)
		}
	}
	return out
}

// declarator applies the derivations of n to base, outermost first, and
// returns the declared name and type.
func (t *translator) declarator(n *sitter.Node, base sema.Type) declInfo {
	info := declInfo{typ: base}
	typ := base
	for n != nil {
		switch n.Type() {
		case "identifier", "field_identifier", "type_identifier":
			info.nameNode = n
			info.typ = typ
			return info
		case "init_declarator":
			info.value = n.ChildByFieldName("value")
			n = n.ChildByFieldName("declarator")
		case "pointer_declarator", "abstract_pointer_declarator":
			typ = t.pointerTo(n, typ)
			n = n.ChildByFieldName("declarator")
		case "array_declarator", "abstract_array_declarator":
			typ = &sema.ArrayType{Elem: typ, Size: t.arraySize(n.ChildByFieldName("size"))}
			n = n.ChildByFieldName("declarator")
		case "function_declarator", "abstract_function_declarator":
			ft, params := t.parameters(n.ChildByFieldName("parameters"), typ)
			inner := n.ChildByFieldName("declarator")
			if isName(inner) {
				info.params = params
			}
			typ = ft
			n = inner
		case "parenthesized_declarator", "abstract_parenthesized_declarator", "attributed_declarator":
			n = firstDeclarator(n)
		default:
			n = nil
		}
	}
	info.typ = typ
	return info
}

// isName reports whether n, once parentheses are stripped, is a plain
// identifier.
func isName(n *sitter.Node) bool {
	for n != nil && n.Type() == "parenthesized_declarator" {
		n = firstDeclarator(n)
	}
	return n != nil && n.Type() == "identifier"
}

func firstDeclarator(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "attribute_specifier", "attribute", "comment", "ms_call_modifier":
			continue
		}
		return c
	}
	return nil
}

func firstNamed(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() != "comment" {
			return c
		}
	}
	return nil
}

func (t *translator) pointerTo(n *sitter.Node, elem sema.Type) *sema.PointerType {
	p := &sema.PointerType{Elem: elem}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() != "type_qualifier" {
			continue
		}
		switch t.text(c) {
		case "const":
			p.Const = true
		case "volatile":
			p.Volatile = true
		case "restrict", "__restrict", "__restrict__":
			p.Restrict = true
		}
	}
	return p
}

// arraySize returns the constant size of an array declarator, -1 when it
// is absent or not constant.
func (t *translator) arraySize(n *sitter.Node) int64 {
	if n == nil {
		return -1
	}
	v, ok := t.evalConst(n)
	t.walk(n)
	if !ok || v < 0 {
		return -1
	}
	return v
}

// parameters reads a parameter list into a function type returning ret. A
// lone unnamed void parameter stays in the type and yields no parameters.
func (t *translator) parameters(list *sitter.Node, ret sema.Type) (*sema.FunctionType, []paramInfo) {
	ft := &sema.FunctionType{Return: ret}
	if list == nil {
		return ft, nil
	}
	var params []paramInfo
	for i := 0; i < int(list.NamedChildCount()); i++ {
		c := list.NamedChild(i)
		switch c.Type() {
		case "parameter_declaration":
			spec := t.specifiers(c)
			p := paramInfo{typ: spec.typ, spec: spec}
			if d := c.ChildByFieldName("declarator"); d != nil {
				info := t.declarator(d, spec.typ)
				p.nameNode, p.typ = info.nameNode, info.typ
			}
			p.typ = adjustParam(p.typ)
			ft.Params = append(ft.Params, p.typ)
			params = append(params, p)
		case "identifier":
			p := paramInfo{nameNode: c, typ: &sema.BasicType{Kind: sema.Int}, oldStyle: true}
			ft.Params = append(ft.Params, p.typ)
			params = append(params, p)
		case "variadic_parameter":
			ft.Varargs = true
		}
	}
	if ft.TakesVoid() && params[0].nameNode == nil {
		params = nil
	}
	return ft, params
}

// adjustParam applies the C parameter adjustments: arrays and functions
// decay to pointers.
func adjustParam(t sema.Type) sema.Type {
	switch t := t.(type) {
	case *sema.ArrayType:
		return &sema.PointerType{Elem: t.Elem}
	case *sema.FunctionType:
		return &sema.PointerType{Elem: t}
	}
	return t
}

// oldStyleParams types the identifier-list parameters of a K&R definition
// from the declarations between its declarator and body. Parameters left
// undeclared keep the implicit int.
func (t *translator) oldStyleParams(def *sitter.Node, info *declInfo, ft *sema.FunctionType) {
	if len(info.params) == 0 || !info.params[0].oldStyle {
		return
	}
	byName := make(map[string]int, len(info.params))
	for i, p := range info.params {
		byName[t.text(p.nameNode)] = i
	}
	for i := 0; i < int(def.NamedChildCount()); i++ {
		c := def.NamedChild(i)
		if c.Type() != "declaration" {
			continue
		}
		spec := t.specifiers(c)
		for _, d := range declarators(c) {
			decl := t.declarator(d, spec.typ)
			if decl.nameNode == nil {
				continue
			}
			idx, ok := byName[t.text(decl.nameNode)]
			if !ok {
				t.diag(decl.nameNode, "declaration of "+t.text(decl.nameNode)+" names no parameter")
				continue
			}
			typ := adjustParam(decl.typ)
			info.params[idx] = paramInfo{nameNode: decl.nameNode, typ: typ, spec: spec, oldStyle: true}
			ft.Params[idx] = typ
		}
	}
}
