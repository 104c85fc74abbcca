package pdom

import (
	"slices"

	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/sema"
)

// Enumeration record.
const (
	offEnumerationEnumerators = bindingRecordSize
	offEnumerationMin         = offEnumerationEnumerators + database.PtrSize
	offEnumerationMax         = offEnumerationMin + 8
	enumerationRecordSize     = offEnumerationMax + 8
)

// Enumerator record.
const (
	offEnumeratorValue       = bindingRecordSize
	offEnumeratorEnumeration = offEnumeratorValue + 8
	enumeratorRecordSize     = offEnumeratorEnumeration + database.PtrSize
)

// Enumeration is a persisted enum. It keeps the bounds of its enumerator
// values so range queries need not scan the list.
type Enumeration struct {
	bindingBase
}

func newEnumeration(l *CLinkage, parent database.Ptr, name string) (*Enumeration, error) {
	rec, err := allocateNode(l.db, CEnumeration, parent, enumerationRecordSize)
	if err != nil {
		return nil, err
	}
	e := &Enumeration{bindingBase{namedNode{node{linkage: l, record: rec}}}}
	if err := e.setName(name); err != nil {
		e.free()
		return nil, err
	}
	return e, nil
}

func (e *Enumeration) NodeType() NodeType { return CEnumeration }

func (e *Enumeration) list() *NodeLinkedList {
	return newNodeLinkedList(e.db(), e.record+offEnumerationEnumerators)
}

// MinValue returns the smallest enumerator value (0 without enumerators).
func (e *Enumeration) MinValue() (int64, error) {
	return e.db().GetLong(e.record + offEnumerationMin)
}

// MaxValue returns the largest enumerator value (0 without enumerators).
func (e *Enumeration) MaxValue() (int64, error) {
	return e.db().GetLong(e.record + offEnumerationMax)
}

// Enumerators returns the enumerators in declaration order.
func (e *Enumeration) Enumerators() ([]*Enumerator, error) {
	key := cacheKey{kind: cacheEnumerators, rec: e.record}
	var recs []database.Ptr
	if v, ok := e.linkage.pdom.cachedResult(key); ok {
		recs = v.([]database.Ptr)
	} else {
		var err error
		if recs, err = e.list().Items(); err != nil {
			return nil, err
		}
		e.linkage.pdom.putCachedResult(key, recs)
	}

	out := make([]*Enumerator, 0, len(recs))
	for _, rec := range recs {
		out = append(out, &Enumerator{bindingBase{namedNode{node{linkage: e.linkage, record: rec}}}})
	}
	return out, nil
}

// addChild appends an enumerator, widens the bounds and extends a cached
// enumerator list in place.
func (e *Enumeration) addChild(en *Enumerator) error {
	head, err := e.db().GetRecPtr(e.record + offEnumerationEnumerators)
	if err != nil {
		return err
	}
	if err := e.list().AddMember(en.record); err != nil {
		return err
	}
	v, err := en.Value()
	if err != nil {
		return err
	}
	if err := e.widen(v, head == 0); err != nil {
		return err
	}

	key := cacheKey{kind: cacheEnumerators, rec: e.record}
	if cached, ok := e.linkage.pdom.cachedResult(key); ok {
		recs := slices.Clone(cached.([]database.Ptr))
		e.linkage.pdom.putCachedResult(key, append(recs, en.record))
	}
	return nil
}

// removeChild unlinks an enumerator and recomputes the bounds.
func (e *Enumeration) removeChild(rec database.Ptr) (bool, error) {
	ok, err := e.list().RemoveMember(rec)
	if err != nil || !ok {
		return ok, err
	}
	e.linkage.pdom.removeCachedResult(cacheKey{kind: cacheEnumerators, rec: e.record})
	return true, e.recomputeBounds()
}

func (e *Enumeration) widen(v int64, first bool) error {
	lo, err := e.MinValue()
	if err != nil {
		return err
	}
	hi, err := e.MaxValue()
	if err != nil {
		return err
	}
	if first {
		lo, hi = v, v
	}
	return e.setBounds(min(lo, v), max(hi, v))
}

func (e *Enumeration) setBounds(lo, hi int64) error {
	if err := e.db().PutLong(e.record+offEnumerationMin, lo); err != nil {
		return err
	}
	return e.db().PutLong(e.record+offEnumerationMax, hi)
}

// recomputeBounds rescans the enumerators after a value changed.
func (e *Enumeration) recomputeBounds() error {
	var lo, hi int64
	first := true
	err := e.list().Accept(func(rec database.Ptr) (bool, error) {
		v, err := e.db().GetLong(rec + offEnumeratorValue)
		if err != nil {
			return false, err
		}
		if first {
			lo, hi, first = v, v, false
		}
		lo, hi = min(lo, v), max(hi, v)
		return true, nil
	})
	if err != nil {
		return err
	}
	return e.setBounds(lo, hi)
}

// Type returns the enumeration as a type.
func (e *Enumeration) Type() sema.Type {
	return e.linkage.TypeForRecord(e.record)
}

// Delete releases the list cells, the name and the record.
func (e *Enumeration) Delete() error {
	e.linkage.pdom.removeCachedResult(cacheKey{kind: cacheEnumerators, rec: e.record})
	if err := e.list().DeleteListItems(); err != nil {
		return err
	}
	return e.deleteBinding()
}

// Enumerator is a persisted enumeration constant.
type Enumerator struct {
	bindingBase
}

func newEnumerator(l *CLinkage, parent database.Ptr, name string, value int64, enumeration database.Ptr) (*Enumerator, error) {
	rec, err := allocateNode(l.db, CEnumerator, parent, enumeratorRecordSize)
	if err != nil {
		return nil, err
	}
	e := &Enumerator{bindingBase{namedNode{node{linkage: l, record: rec}}}}
	if err := e.setName(name); err != nil {
		e.free()
		return nil, err
	}
	if err := l.db.PutLong(rec+offEnumeratorValue, value); err != nil {
		return nil, err
	}
	if err := l.db.PutRecPtr(rec+offEnumeratorEnumeration, enumeration); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Enumerator) NodeType() NodeType { return CEnumerator }

// Value returns the constant value.
func (e *Enumerator) Value() (int64, error) {
	return e.db().GetLong(e.record + offEnumeratorValue)
}

// Enumeration returns the owning enumeration, or nil.
func (e *Enumerator) Enumeration() (*Enumeration, error) {
	rec, err := e.db().GetRecPtr(e.record + offEnumeratorEnumeration)
	if err != nil || rec == 0 {
		return nil, err
	}
	n, err := e.linkage.GetNode(rec)
	if err != nil {
		return nil, err
	}
	en, _ := n.(*Enumeration)
	return en, nil
}

// Type returns the owning enumeration: C enumerators are typed as their
// enum.
func (e *Enumerator) Type() (sema.Type, error) {
	rec, err := e.db().GetRecPtr(e.record + offEnumeratorEnumeration)
	if err != nil || rec == 0 {
		return nil, err
	}
	return e.linkage.TypeForRecord(rec), nil
}

func (e *Enumerator) update(se sema.Enumerator) error {
	old, err := e.Value()
	if err != nil {
		return err
	}
	if old == se.Value() {
		return nil
	}
	if err := e.db().PutLong(e.record+offEnumeratorValue, se.Value()); err != nil {
		return err
	}
	en, err := e.Enumeration()
	if err != nil || en == nil {
		return err
	}
	return en.recomputeBounds()
}

// Delete releases the name and the record.
func (e *Enumerator) Delete() error {
	return e.deleteBinding()
}
