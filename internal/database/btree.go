package database

import "fmt"

// DefaultDegree is the minimum degree of index B-trees.
const DefaultDegree = 8

// maxTreeDepth bounds traversal so a corrupt child pointer cannot loop forever.
const maxTreeDepth = 64

// Comparator orders two records stored in a B-tree. It must be a total order
// that does not change while the records are in the tree.
type Comparator interface {
	Compare(r1, r2 Ptr) (int, error)
}

// ComparatorFunc adapts a function to Comparator.
type ComparatorFunc func(r1, r2 Ptr) (int, error)

func (f ComparatorFunc) Compare(r1, r2 Ptr) (int, error) { return f(r1, r2) }

// Visitor drives a bounded in-order scan. Compare reports where a record lies
// relative to the searched range: negative before it, 0 inside, positive after.
// Visit is called for every record inside the range and returns false to stop.
type Visitor interface {
	Compare(r Ptr) (int, error)
	Visit(r Ptr) (bool, error)
}

// BTree is an on-disk B-tree of record pointers. The tree does not own the
// records; it stores their addresses ordered by a Comparator.
//
// Node layout: 2*degree-1 key slots followed by 2*degree child slots. Keys are
// packed from slot 0; the first null key ends the node. A node whose first
// child is null is a leaf.
type BTree struct {
	db          *Database
	rootPointer Ptr
	cmp         Comparator

	degree      int
	maxRecords  int
	maxChildren int
	offChildren int
}

// NewBTree returns a tree whose root node address is stored at rootPointer.
func NewBTree(db *Database, rootPointer Ptr, cmp Comparator) *BTree {
	return NewBTreeDegree(db, rootPointer, DefaultDegree, cmp)
}

// NewBTreeDegree is NewBTree with an explicit minimum degree (at least 2).
func NewBTreeDegree(db *Database, rootPointer Ptr, degree int, cmp Comparator) *BTree {
	if degree < 2 {
		degree = 2
	}
	maxRecords := 2*degree - 1
	return &BTree{
		db:          db,
		rootPointer: rootPointer,
		cmp:         cmp,
		degree:      degree,
		maxRecords:  maxRecords,
		maxChildren: 2 * degree,
		offChildren: maxRecords * PtrSize,
	}
}

func (t *BTree) nodeSize() int {
	return (t.maxRecords + t.maxChildren) * PtrSize
}

func (t *BTree) allocateNode() (Ptr, error) {
	node, err := t.db.Malloc(t.nodeSize())
	if err != nil {
		return 0, err
	}
	if err := t.db.Clear(node, t.nodeSize()); err != nil {
		return 0, err
	}
	return node, nil
}

func (t *BTree) key(node Ptr, i int) (Ptr, error) {
	return t.db.GetRecPtr(node + Ptr(i*PtrSize))
}

func (t *BTree) putKey(node Ptr, i int, rec Ptr) error {
	return t.db.PutRecPtr(node+Ptr(i*PtrSize), rec)
}

func (t *BTree) child(node Ptr, i int) (Ptr, error) {
	return t.db.GetRecPtr(node + Ptr(t.offChildren+i*PtrSize))
}

func (t *BTree) putChild(node Ptr, i int, rec Ptr) error {
	return t.db.PutRecPtr(node+Ptr(t.offChildren+i*PtrSize), rec)
}

func (t *BTree) keyCount(node Ptr) (int, error) {
	for i := 0; i < t.maxRecords; i++ {
		k, err := t.key(node, i)
		if err != nil {
			return 0, err
		}
		if k == 0 {
			return i, nil
		}
	}
	return t.maxRecords, nil
}

// Root returns the current root node, or 0 for an empty tree.
func (t *BTree) Root() (Ptr, error) {
	return t.db.GetRecPtr(t.rootPointer)
}

// Insert adds record to the tree. If a record comparing equal is already
// present, that record is returned and the tree is unchanged.
func (t *BTree) Insert(record Ptr) (Ptr, error) {
	if record == 0 {
		return 0, storageErr("btree insert", 0, ErrCorruptOffset)
	}
	root, err := t.Root()
	if err != nil {
		return 0, err
	}
	if root == 0 {
		node, err := t.allocateNode()
		if err != nil {
			return 0, err
		}
		if err := t.putKey(node, 0, record); err != nil {
			return 0, err
		}
		if err := t.db.PutRecPtr(t.rootPointer, node); err != nil {
			return 0, err
		}
		return record, nil
	}

	n, err := t.keyCount(root)
	if err != nil {
		return 0, err
	}
	if n == t.maxRecords {
		newRoot, err := t.allocateNode()
		if err != nil {
			return 0, err
		}
		if err := t.putChild(newRoot, 0, root); err != nil {
			return 0, err
		}
		if err := t.split(newRoot, 0, root); err != nil {
			return 0, err
		}
		if err := t.db.PutRecPtr(t.rootPointer, newRoot); err != nil {
			return 0, err
		}
		root = newRoot
	}

	node := root
	for depth := 0; depth < maxTreeDepth; depth++ {
		count, err := t.keyCount(node)
		if err != nil {
			return 0, err
		}
		lo, hi := 0, count
		for lo < hi {
			mid := (lo + hi) / 2
			k, err := t.key(node, mid)
			if err != nil {
				return 0, err
			}
			c, err := t.cmp.Compare(k, record)
			if err != nil {
				return 0, err
			}
			if c == 0 {
				return k, nil
			}
			if c < 0 {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		i := lo

		child, err := t.child(node, i)
		if err != nil {
			return 0, err
		}
		if child == 0 {
			for j := count; j > i; j-- {
				k, err := t.key(node, j-1)
				if err != nil {
					return 0, err
				}
				if err := t.putKey(node, j, k); err != nil {
					return 0, err
				}
			}
			if err := t.putKey(node, i, record); err != nil {
				return 0, err
			}
			return record, nil
		}

		cc, err := t.keyCount(child)
		if err != nil {
			return 0, err
		}
		if cc == t.maxRecords {
			if err := t.split(node, i, child); err != nil {
				return 0, err
			}
			median, err := t.key(node, i)
			if err != nil {
				return 0, err
			}
			c, err := t.cmp.Compare(median, record)
			if err != nil {
				return 0, err
			}
			if c == 0 {
				return median, nil
			}
			if c < 0 {
				i++
			}
			if child, err = t.child(node, i); err != nil {
				return 0, err
			}
		}
		node = child
	}
	return 0, storageErr("btree insert", node, fmt.Errorf("%w: tree deeper than %d", ErrCorruptOffset, maxTreeDepth))
}

// split moves the upper half of the full node child (the i-th child of
// parent) into a new right sibling and lifts the median into parent.
func (t *BTree) split(parent Ptr, i int, child Ptr) error {
	right, err := t.allocateNode()
	if err != nil {
		return err
	}
	d := t.degree
	for j := 0; j < d-1; j++ {
		k, err := t.key(child, j+d)
		if err != nil {
			return err
		}
		if err := t.putKey(right, j, k); err != nil {
			return err
		}
		if err := t.putKey(child, j+d, 0); err != nil {
			return err
		}
	}
	for j := 0; j < d; j++ {
		c, err := t.child(child, j+d)
		if err != nil {
			return err
		}
		if err := t.putChild(right, j, c); err != nil {
			return err
		}
		if err := t.putChild(child, j+d, 0); err != nil {
			return err
		}
	}
	median, err := t.key(child, d-1)
	if err != nil {
		return err
	}
	if err := t.putKey(child, d-1, 0); err != nil {
		return err
	}

	pc, err := t.keyCount(parent)
	if err != nil {
		return err
	}
	for j := pc; j > i; j-- {
		k, err := t.key(parent, j-1)
		if err != nil {
			return err
		}
		if err := t.putKey(parent, j, k); err != nil {
			return err
		}
	}
	for j := pc + 1; j > i+1; j-- {
		c, err := t.child(parent, j-1)
		if err != nil {
			return err
		}
		if err := t.putChild(parent, j, c); err != nil {
			return err
		}
	}
	if err := t.putKey(parent, i, median); err != nil {
		return err
	}
	return t.putChild(parent, i+1, right)
}

// Accept visits, in order, every record for which v.Compare returns 0.
func (t *BTree) Accept(v Visitor) error {
	root, err := t.Root()
	if err != nil {
		return err
	}
	_, err = t.accept(root, v, 0)
	return err
}

func (t *BTree) accept(node Ptr, v Visitor, depth int) (bool, error) {
	if node == 0 {
		return true, nil
	}
	if depth > maxTreeDepth {
		return false, storageErr("btree accept", node, ErrCorruptOffset)
	}
	count, err := t.keyCount(node)
	if err != nil {
		return false, err
	}

	// First key that is not before the range.
	lo, hi := 0, count
	for lo < hi {
		mid := (lo + hi) / 2
		k, err := t.key(node, mid)
		if err != nil {
			return false, err
		}
		c, err := v.Compare(k)
		if err != nil {
			return false, err
		}
		if c >= 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}

	for i := lo; i < count; i++ {
		child, err := t.child(node, i)
		if err != nil {
			return false, err
		}
		if ok, err := t.accept(child, v, depth+1); err != nil || !ok {
			return false, err
		}
		k, err := t.key(node, i)
		if err != nil {
			return false, err
		}
		c, err := v.Compare(k)
		if err != nil {
			return false, err
		}
		if c > 0 {
			return true, nil
		}
		if c == 0 {
			ok, err := v.Visit(k)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	last, err := t.child(node, count)
	if err != nil {
		return false, err
	}
	return t.accept(last, v, depth+1)
}

// Count returns the number of records in the tree.
func (t *BTree) Count() (int, error) {
	n := 0
	err := t.Accept(allVisitor(func(Ptr) (bool, error) {
		n++
		return true, nil
	}))
	return n, err
}

// Walk calls fn for every record in order until fn returns false.
func (t *BTree) Walk(fn func(rec Ptr) (bool, error)) error {
	return t.Accept(allVisitor(fn))
}

type allVisitor func(Ptr) (bool, error)

func (allVisitor) Compare(Ptr) (int, error)    { return 0, nil }
func (f allVisitor) Visit(r Ptr) (bool, error) { return f(r) }
