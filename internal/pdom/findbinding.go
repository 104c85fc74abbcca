package pdom

import (
	"slices"
	"strings"

	"github.com/jward/pdom/internal/database"
)

// bindingComparator orders index records by name (case-insensitive with a
// case-sensitive tie-break), then node type, then local-to-file record.
type bindingComparator struct {
	db *database.Database
}

func (c bindingComparator) Compare(r1, r2 database.Ptr) (int, error) {
	n1, err := readNodeName(c.db, r1)
	if err != nil {
		return 0, err
	}
	n2, err := readNodeName(c.db, r2)
	if err != nil {
		return 0, err
	}
	if cmp := database.CompareCompatible(n1, n2); cmp != 0 {
		return cmp, nil
	}
	t1, err := readNodeType(c.db, r1)
	if err != nil {
		return 0, err
	}
	t2, err := readNodeType(c.db, r2)
	if err != nil {
		return 0, err
	}
	if t1 != t2 {
		if t1 < t2 {
			return -1, nil
		}
		return 1, nil
	}
	l1, err := c.db.GetRecPtr(r1 + offLocalToFile)
	if err != nil {
		return 0, err
	}
	l2, err := c.db.GetRecPtr(r2 + offLocalToFile)
	if err != nil {
		return 0, err
	}
	switch {
	case l1 < l2:
		return -1, nil
	case l1 > l2:
		return 1, nil
	}
	return 0, nil
}

// bindingFinder is the B-tree visitor behind FindBinding. The scanned range
// is every record with the exact name; Visit filters tag and locality.
type bindingFinder struct {
	db          *database.Database
	name        string
	nodeTypes   []NodeType
	localToFile database.Ptr
	anyLocality bool

	found []database.Ptr
	first bool
}

func (f *bindingFinder) Compare(rec database.Ptr) (int, error) {
	name, err := readNodeName(f.db, rec)
	if err != nil {
		return 0, err
	}
	return database.CompareCompatible(name, f.name), nil
}

func (f *bindingFinder) Visit(rec database.Ptr) (bool, error) {
	ok, err := f.matches(rec)
	if err != nil || !ok {
		return err == nil, err
	}
	f.found = append(f.found, rec)
	return !f.first, nil
}

func (f *bindingFinder) matches(rec database.Ptr) (bool, error) {
	nt, err := readNodeType(f.db, rec)
	if err != nil {
		return false, err
	}
	if len(f.nodeTypes) > 0 && !slices.Contains(f.nodeTypes, nt) {
		return false, nil
	}
	if f.anyLocality {
		return true, nil
	}
	ltf, err := f.db.GetRecPtr(rec + offLocalToFile)
	if err != nil {
		return false, err
	}
	return ltf == f.localToFile, nil
}

// FindBinding returns the record in index named name with one of nodeTypes
// and the given locality (0 selects the globally visible binding), or 0.
func FindBinding(index *database.BTree, db *database.Database, name string, nodeTypes []NodeType, localToFile database.Ptr) (database.Ptr, error) {
	f := &bindingFinder{db: db, name: name, nodeTypes: nodeTypes, localToFile: localToFile, first: true}
	if err := index.Accept(f); err != nil {
		return 0, err
	}
	if len(f.found) == 0 {
		return 0, nil
	}
	return f.found[0], nil
}

// FindBindings returns every record named name with one of nodeTypes, of
// any locality.
func FindBindings(index *database.BTree, db *database.Database, name string, nodeTypes []NodeType) ([]database.Ptr, error) {
	f := &bindingFinder{db: db, name: name, nodeTypes: nodeTypes, anyLocality: true}
	if err := index.Accept(f); err != nil {
		return nil, err
	}
	return f.found, nil
}

// prefixFinder collects every record whose name starts with prefix.
type prefixFinder struct {
	db            *database.Database
	prefix        string
	caseSensitive bool
	limit         int

	found []database.Ptr
}

func (f *prefixFinder) Compare(rec database.Ptr) (int, error) {
	name, err := readNodeName(f.db, rec)
	if err != nil {
		return 0, err
	}
	return database.ComparePrefix(name, f.prefix), nil
}

func (f *prefixFinder) Visit(rec database.Ptr) (bool, error) {
	if f.caseSensitive {
		name, err := readNodeName(f.db, rec)
		if err != nil {
			return false, err
		}
		if !strings.HasPrefix(name, f.prefix) {
			return true, nil
		}
	}
	f.found = append(f.found, rec)
	return f.limit <= 0 || len(f.found) < f.limit, nil
}

// FindBindingsByPrefix returns up to limit records (all when limit <= 0)
// whose name starts with prefix, in index order.
func FindBindingsByPrefix(index *database.BTree, db *database.Database, prefix string, caseSensitive bool, limit int) ([]database.Ptr, error) {
	f := &prefixFinder{db: db, prefix: prefix, caseSensitive: caseSensitive, limit: limit}
	if err := index.Accept(f); err != nil {
		return nil, err
	}
	return f.found, nil
}

// FindInList returns the first element of list named name with one of
// nodeTypes, or 0.
func FindInList(list *NodeLinkedList, db *database.Database, name string, nodeTypes []NodeType) (database.Ptr, error) {
	var found database.Ptr
	err := list.Accept(func(elem database.Ptr) (bool, error) {
		nt, err := readNodeType(db, elem)
		if err != nil {
			return false, err
		}
		if len(nodeTypes) > 0 && !slices.Contains(nodeTypes, nt) {
			return true, nil
		}
		n, err := readNodeName(db, elem)
		if err != nil {
			return false, err
		}
		if n == name {
			found = elem
			return false, nil
		}
		return true, nil
	})
	return found, err
}

// memberFinder collects members named name from structure trees. Fields
// match only when asked for by kind; everything else defaults in.
type memberFinder struct {
	name  string
	kinds []NodeType

	seen  map[database.Ptr]bool
	found []Binding
}

func (f *memberFinder) matches(nt NodeType) bool {
	if len(f.kinds) == 0 {
		return nt != CField
	}
	return slices.Contains(f.kinds, nt)
}

func (f *memberFinder) Visit(n Node) (bool, error) {
	if f.seen[n.Record()] {
		return false, nil
	}
	f.seen[n.Record()] = true
	if b, ok := n.(Binding); ok && f.matches(n.NodeType()) {
		name, err := b.Name()
		if err != nil {
			return false, err
		}
		if name == f.name {
			f.found = append(f.found, b)
		}
	}
	_, nested := n.(*Structure)
	return nested, nil
}

func (f *memberFinder) Leave(Node) error { return nil }
