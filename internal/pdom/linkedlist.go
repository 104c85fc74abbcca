package pdom

import (
	"errors"

	"github.com/jward/pdom/internal/database"
)

// List cell layout.
const (
	offCellElement = 0
	offCellNext    = offCellElement + database.PtrSize
	cellRecordSize = offCellNext + database.PtrSize
)

// maxListLength bounds traversal of a corrupt (cyclic) list.
const maxListLength = 1 << 24

func corrupt(op string, rec database.Ptr) error {
	return &database.StorageError{Op: op, Record: rec, Err: database.ErrCorruptOffset}
}

// errStopVisit ends a traversal early without reporting an error.
var errStopVisit = errors.New("stop visit")

// NodeLinkedList is an on-disk singly linked list of record pointers. The
// list head lives at a fixed offset inside its owner record. Elements keep
// append order; null elements are allowed and skipped by traversal.
type NodeLinkedList struct {
	db   *database.Database
	head database.Ptr
}

// newNodeLinkedList returns the list whose head pointer is stored at head.
func newNodeLinkedList(db *database.Database, head database.Ptr) *NodeLinkedList {
	return &NodeLinkedList{db: db, head: head}
}

// AddMember appends elem at the tail.
func (l *NodeLinkedList) AddMember(elem database.Ptr) error {
	cell, err := l.db.Malloc(cellRecordSize)
	if err != nil {
		return err
	}
	if err := l.db.Clear(cell, cellRecordSize); err != nil {
		return err
	}
	if err := l.db.PutRecPtr(cell+offCellElement, elem); err != nil {
		return err
	}

	link := l.head
	for i := 0; ; i++ {
		if i > maxListLength {
			return corrupt("list append", l.head)
		}
		next, err := l.db.GetRecPtr(link)
		if err != nil {
			return err
		}
		if next == 0 {
			break
		}
		link = next + offCellNext
	}
	return l.db.PutRecPtr(link, cell)
}

// RemoveMember nulls the first cell holding elem and reports whether one
// was found. The cell stays linked, so later elements keep their positions.
func (l *NodeLinkedList) RemoveMember(elem database.Ptr) (bool, error) {
	cell, err := l.db.GetRecPtr(l.head)
	if err != nil {
		return false, err
	}
	for i := 0; cell != 0; i++ {
		if i > maxListLength {
			return false, corrupt("list remove", l.head)
		}
		got, err := l.db.GetRecPtr(cell + offCellElement)
		if err != nil {
			return false, err
		}
		if got == elem {
			return true, l.db.PutRecPtr(cell+offCellElement, 0)
		}
		if cell, err = l.db.GetRecPtr(cell + offCellNext); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Accept calls fn for every non-null element in order until fn returns
// false.
func (l *NodeLinkedList) Accept(fn func(elem database.Ptr) (bool, error)) error {
	cell, err := l.db.GetRecPtr(l.head)
	if err != nil {
		return err
	}
	for i := 0; cell != 0; i++ {
		if i > maxListLength {
			return corrupt("list accept", l.head)
		}
		elem, err := l.db.GetRecPtr(cell + offCellElement)
		if err != nil {
			return err
		}
		if elem != 0 {
			ok, err := fn(elem)
			if err != nil || !ok {
				return err
			}
		}
		if cell, err = l.db.GetRecPtr(cell + offCellNext); err != nil {
			return err
		}
	}
	return nil
}

// Items returns the non-null elements in order.
func (l *NodeLinkedList) Items() ([]database.Ptr, error) {
	var items []database.Ptr
	err := l.Accept(func(elem database.Ptr) (bool, error) {
		items = append(items, elem)
		return true, nil
	})
	return items, err
}

// Elements returns every element in order, nulls included. Positional
// lists such as function parameter types use it.
func (l *NodeLinkedList) Elements() ([]database.Ptr, error) {
	var elems []database.Ptr
	cell, err := l.db.GetRecPtr(l.head)
	if err != nil {
		return nil, err
	}
	for i := 0; cell != 0; i++ {
		if i > maxListLength {
			return nil, corrupt("list elements", l.head)
		}
		elem, err := l.db.GetRecPtr(cell + offCellElement)
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
		if cell, err = l.db.GetRecPtr(cell + offCellNext); err != nil {
			return nil, err
		}
	}
	return elems, nil
}

// Len counts the non-null elements.
func (l *NodeLinkedList) Len() (int, error) {
	n := 0
	err := l.Accept(func(database.Ptr) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

// DeleteListItems frees the list cells, not the referenced elements, and
// empties the list.
func (l *NodeLinkedList) DeleteListItems() error {
	cell, err := l.db.GetRecPtr(l.head)
	if err != nil {
		return err
	}
	for i := 0; cell != 0; i++ {
		if i > maxListLength {
			return corrupt("list delete", l.head)
		}
		next, err := l.db.GetRecPtr(cell + offCellNext)
		if err != nil {
			return err
		}
		if err := l.db.Free(cell); err != nil {
			return err
		}
		cell = next
	}
	return l.db.PutRecPtr(l.head, 0)
}

// Visitor walks a member tree. Visit returns whether to descend into the
// children of n; Leave is called after the children, whether or not they
// were visited. Return errStopVisit to end the walk early.
type Visitor interface {
	Visit(n Node) (bool, error)
	Leave(n Node) error
}
