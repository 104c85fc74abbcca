package pdom

import (
	"errors"

	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/sema"
)

// Structure record.
const (
	offStructureKey       = bindingRecordSize
	offStructureAnonymous = offStructureKey + 1
	offStructureMembers   = bindingRecordSize + database.PtrSize
	structureRecordSize   = offStructureMembers + database.PtrSize
)

// maxTreeDepth bounds descent into nested aggregates.
const maxTreeDepth = 64

// Structure is a persisted struct or union. Members keep declaration order.
type Structure struct {
	bindingBase
}

func newStructure(l *CLinkage, parent database.Ptr, name string, sc sema.Composite) (*Structure, error) {
	rec, err := allocateNode(l.db, CStructure, parent, structureRecordSize)
	if err != nil {
		return nil, err
	}
	s := &Structure{bindingBase{namedNode{node{linkage: l, record: rec}}}}
	if err := s.setName(name); err != nil {
		s.free()
		return nil, err
	}
	if err := s.update(sc); err != nil {
		s.Delete()
		return nil, err
	}
	return s, nil
}

func (s *Structure) NodeType() NodeType { return CStructure }

// Key reports whether the structure is a struct or a union.
func (s *Structure) Key() (sema.CompositeKey, error) {
	b, err := s.db().GetByte(s.record + offStructureKey)
	return sema.CompositeKey(b), err
}

// IsAnonymous reports whether the structure was declared without a name.
func (s *Structure) IsAnonymous() (bool, error) {
	b, err := s.db().GetByte(s.record + offStructureAnonymous)
	return b != 0, err
}

func (s *Structure) update(sc sema.Composite) error {
	if err := s.db().PutByte(s.record+offStructureKey, byte(sc.Key())); err != nil {
		return err
	}
	var anon byte
	if sc.IsAnonymous() || sc.Name() == "" {
		anon = 1
	}
	return s.db().PutByte(s.record+offStructureAnonymous, anon)
}

func (s *Structure) members() *NodeLinkedList {
	return newNodeLinkedList(s.db(), s.record+offStructureMembers)
}

// addChild appends a member and drops cached field lookups of s.
func (s *Structure) addChild(member Node) error {
	if err := s.members().AddMember(member.Record()); err != nil {
		return err
	}
	s.linkage.pdom.invalidateFields(s.record)
	return nil
}

// removeChild unlinks a member and drops cached field lookups of s.
func (s *Structure) removeChild(rec database.Ptr) (bool, error) {
	ok, err := s.members().RemoveMember(rec)
	if ok {
		s.linkage.pdom.invalidateFields(s.record)
	}
	return ok, err
}

// Members returns the direct members in declaration order: fields, nested
// aggregates and fields linked up from anonymous nested aggregates.
func (s *Structure) Members() ([]Node, error) {
	recs, err := s.members().Items()
	if err != nil {
		return nil, err
	}
	out := make([]Node, 0, len(recs))
	for _, rec := range recs {
		n, err := s.linkage.GetNode(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Accept walks the members of s. Nested structures are descended into when
// v.Visit returns true.
func (s *Structure) Accept(v Visitor) error {
	err := s.accept(v, 0)
	if errors.Is(err, errStopVisit) {
		return nil
	}
	return err
}

func (s *Structure) accept(v Visitor, depth int) error {
	if depth > maxTreeDepth {
		return corrupt("structure accept", s.record)
	}
	return s.members().Accept(func(rec database.Ptr) (bool, error) {
		n, err := s.linkage.GetNode(rec)
		if err != nil {
			return false, err
		}
		descend, err := v.Visit(n)
		if err != nil {
			return false, err
		}
		if nested, ok := n.(*Structure); ok && descend {
			if err := nested.accept(v, depth+1); err != nil {
				return false, err
			}
		}
		if err := v.Leave(n); err != nil {
			return false, err
		}
		return true, nil
	})
}

// fieldCollector gathers fields, descending only into anonymous aggregates.
// Members linked both into an anonymous aggregate and its named owner are
// reported once.
type fieldCollector struct {
	name   string
	single bool

	seen   map[database.Ptr]bool
	fields []*Field
}

func (c *fieldCollector) Visit(n Node) (bool, error) {
	switch n := n.(type) {
	case *Field:
		if c.seen[n.record] {
			return false, nil
		}
		if c.name != "" {
			name, err := n.Name()
			if err != nil {
				return false, err
			}
			if name != c.name {
				return false, nil
			}
		}
		c.seen[n.record] = true
		c.fields = append(c.fields, n)
		if c.single {
			return false, errStopVisit
		}
	case *Structure:
		return n.IsAnonymous()
	}
	return false, nil
}

func (c *fieldCollector) Leave(Node) error { return nil }

// FindField returns the field named name, looking through anonymous nested
// aggregates but not named ones, or nil.
func (s *Structure) FindField(name string) (*Field, error) {
	key := cacheKey{kind: cacheFieldByName, rec: s.record, name: name}
	if v, ok := s.linkage.pdom.cachedResult(key); ok {
		n, err := s.linkage.GetNode(v.(database.Ptr))
		if err != nil {
			return nil, err
		}
		if f, ok := n.(*Field); ok {
			return f, nil
		}
	}

	c := &fieldCollector{name: name, single: true, seen: map[database.Ptr]bool{}}
	if err := s.Accept(c); err != nil {
		return nil, err
	}
	if len(c.fields) == 0 {
		return nil, nil
	}
	s.linkage.pdom.putCachedResult(key, c.fields[0].record)
	return c.fields[0], nil
}

// Fields returns every field reachable without naming a nested aggregate,
// in declaration order.
func (s *Structure) Fields() ([]*Field, error) {
	c := &fieldCollector{seen: map[database.Ptr]bool{}}
	if err := s.Accept(c); err != nil {
		return nil, err
	}
	return c.fields, nil
}

// Delete releases the member list cells, the name and the record. Members
// are not deleted.
func (s *Structure) Delete() error {
	if err := s.members().DeleteListItems(); err != nil {
		return err
	}
	return s.deleteBinding()
}
