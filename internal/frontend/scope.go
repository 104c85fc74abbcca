package frontend

import "github.com/jward/pdom/internal/sema"

// scope holds the two C name spaces that matter here: ordinary identifiers
// (objects, functions, typedefs, enumerators) and tags.
type scope struct {
	parent   *scope
	owner    sema.Binding // enclosing function, nil at file scope
	ordinary map[string]sema.Binding
	tags     map[string]sema.Binding
}

func newScope(parent *scope, owner sema.Binding) *scope {
	return &scope{
		parent:   parent,
		owner:    owner,
		ordinary: make(map[string]sema.Binding),
		tags:     make(map[string]sema.Binding),
	}
}

func (s *scope) lookup(name string) sema.Binding {
	for sc := s; sc != nil; sc = sc.parent {
		if b, ok := sc.ordinary[name]; ok {
			return b
		}
	}
	return nil
}

func (s *scope) lookupTag(name string) sema.Binding {
	for sc := s; sc != nil; sc = sc.parent {
		if b, ok := sc.tags[name]; ok {
			return b
		}
	}
	return nil
}

func (s *scope) file() *scope {
	sc := s
	for sc.parent != nil {
		sc = sc.parent
	}
	return sc
}
