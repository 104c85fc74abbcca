package pdom

import (
	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/sema"
)

// Typedef record.
const (
	offTypedefType    = bindingRecordSize
	typedefRecordSize = offTypedefType + database.PtrSize
)

// maxTypedefHops bounds the self-reference check of typedef targets.
const maxTypedefHops = 50

// Typedef is a persisted typedef.
type Typedef struct {
	bindingBase
}

func newTypedef(l *CLinkage, parent database.Ptr, name string) (*Typedef, error) {
	rec, err := allocateNode(l.db, CTypedef, parent, typedefRecordSize)
	if err != nil {
		return nil, err
	}
	t := &Typedef{bindingBase{namedNode{node{linkage: l, record: rec}}}}
	if err := t.setName(name); err != nil {
		t.free()
		return nil, err
	}
	return t, nil
}

func (t *Typedef) NodeType() NodeType { return CTypedef }

// TypeRecord returns the record of the target type.
func (t *Typedef) TypeRecord() (database.Ptr, error) {
	return t.db().GetRecPtr(t.record + offTypedefType)
}

// Type returns the target type, nil when unknown or rejected.
func (t *Typedef) Type() (sema.Type, error) {
	rec, err := t.TypeRecord()
	if err != nil {
		return nil, err
	}
	return t.linkage.ReadType(rec)
}

func (t *Typedef) update(st sema.Typedef) error {
	name, err := t.Name()
	if err != nil {
		return err
	}
	target := st.Target()
	if refersToTypedef(name, t.record, target) {
		t.linkage.logger.Debug("typedef refers to itself, target dropped", "name", name)
		target = nil
	}
	return t.linkage.replaceType(t.record, t.record+offTypedefType, target)
}

// Delete releases the owned target type, the name and the record.
func (t *Typedef) Delete() error {
	rec, err := t.TypeRecord()
	if err != nil {
		return err
	}
	if err := t.linkage.DeleteType(rec); err != nil {
		return err
	}
	return t.deleteBinding()
}

// refersToTypedef reports whether target reaches the typedef named name (or
// stored at rec) within maxTypedefHops steps through typedef chains, element
// types and function types. When the budget runs out the target is accepted:
// longer cycles are not detected.
func refersToTypedef(name string, rec database.Ptr, target sema.Type) bool {
	hops := maxTypedefHops
	var walk func(t sema.Type) bool
	walk = func(t sema.Type) bool {
		for t != nil {
			if hops <= 0 {
				return false
			}
			hops--
			switch x := t.(type) {
			case *sema.FunctionType:
				if walk(x.Return) {
					return true
				}
				for _, p := range x.Params {
					if walk(p) {
						return true
					}
				}
				return false
			case sema.NamedType:
				if x.NamedKind() != sema.NamedTypedef {
					return false
				}
				if x.Name() == name {
					return true
				}
				if ref, ok := x.(*TypeRef); ok && ref.Rec == rec {
					return true
				}
				a, ok := x.(sema.Aliased)
				if !ok {
					return false
				}
				t = a.Target()
			case sema.Container:
				t = x.ElementType()
			default:
				return false
			}
		}
		return false
	}
	return walk(target)
}
