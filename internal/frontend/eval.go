package frontend

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/pdom/internal/sema"
)

// evalConst folds an integer constant expression. Identifiers resolve to
// enumerators already in scope. ok is false for anything else. It records
// no names; callers walk the expression for references.
func (t *translator) evalConst(n *sitter.Node) (v int64, ok bool) {
	if n == nil {
		return 0, false
	}
	switch n.Type() {
	case "number_literal":
		return parseIntLiteral(t.text(n))
	case "char_literal":
		return parseCharLiteral(t.text(n))
	case "parenthesized_expression":
		return t.evalConst(firstNamed(n))
	case "identifier":
		if e, isEnum := t.scope.lookup(t.text(n)).(*sema.EnumeratorDecl); isEnum {
			return e.Val, true
		}
		return 0, false
	case "unary_expression":
		x, ok := t.evalConst(n.ChildByFieldName("argument"))
		if !ok {
			return 0, false
		}
		switch t.text(n.ChildByFieldName("operator")) {
		case "-":
			return -x, true
		case "+":
			return x, true
		case "~":
			return ^x, true
		case "!":
			if x == 0 {
				return 1, true
			}
			return 0, true
		}
	case "binary_expression":
		l, ok := t.evalConst(n.ChildByFieldName("left"))
		if !ok {
			return 0, false
		}
		r, ok := t.evalConst(n.ChildByFieldName("right"))
		if !ok {
			return 0, false
		}
		return binaryOp(t.text(n.ChildByFieldName("operator")), l, r)
	case "cast_expression":
		return t.evalConst(n.ChildByFieldName("value"))
	}
	return 0, false
}

func binaryOp(op string, l, r int64) (int64, bool) {
	switch op {
	case "+":
		return l + r, true
	case "-":
		return l - r, true
	case "*":
		return l * r, true
	case "/":
		if r == 0 {
			return 0, false
		}
		return l / r, true
	case "%":
		if r == 0 {
			return 0, false
		}
		return l % r, true
	case "<<":
		if r < 0 || r > 63 {
			return 0, false
		}
		return l << uint(r), true
	case ">>":
		if r < 0 || r > 63 {
			return 0, false
		}
		return l >> uint(r), true
	case "&":
		return l & r, true
	case "|":
		return l | r, true
	case "^":
		return l ^ r, true
	case "&&":
		return boolInt(l != 0 && r != 0), true
	case "||":
		return boolInt(l != 0 || r != 0), true
	case "==":
		return boolInt(l == r), true
	case "!=":
		return boolInt(l != r), true
	case "<":
		return boolInt(l < r), true
	case "<=":
		return boolInt(l <= r), true
	case ">":
		return boolInt(l > r), true
	case ">=":
		return boolInt(l >= r), true
	}
	return 0, false
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// parseIntLiteral parses decimal, octal, hex and binary literals with any
// integer suffix.
func parseIntLiteral(s string) (int64, bool) {
	s = strings.ReplaceAll(s, "'", "")
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "0x") && strings.ContainsAny(lower, ".e") {
		return 0, false
	}
	s = strings.TrimRight(s, "uUlL")
	if len(s) > 1 && s[0] == '0' && s[1] >= '0' && s[1] <= '9' {
		s = "0o" + s[1:]
	}
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, true
	}
	u, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, false
	}
	return int64(u), true
}

// parseCharLiteral handles plain and simple-escape character constants.
func parseCharLiteral(s string) (int64, bool) {
	s = strings.TrimLeft(s, "LuU8")
	if len(s) < 3 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return 0, false
	}
	body := s[1 : len(s)-1]
	if len(body) >= 2 && len(body) <= 4 && body[0] == '\\' && isOctal(body[1:]) {
		v, err := strconv.ParseInt(body[1:], 8, 64)
		return v, err == nil
	}
	r, _, tail, err := strconv.UnquoteChar(body, '\'')
	if err != nil || tail != "" {
		return 0, false
	}
	return int64(r), true
}

func isOctal(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '7' {
			return false
		}
	}
	return true
}
