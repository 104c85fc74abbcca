package pdom

import (
	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/sema"
)

// Variable and field record.
const (
	offVariableType        = bindingRecordSize
	offVariableValue       = offVariableType + database.PtrSize
	offVariableValueKind   = offVariableValue + 8
	offVariableAnnotations = offVariableValueKind + 1
	variableRecordSize     = offVariableAnnotations + 1
)

const (
	valueNone    byte = 0
	valueInteger byte = 1
)

// Variable is a persisted global variable.
type Variable struct {
	bindingBase
}

func newVariable(l *CLinkage, parent database.Ptr, name string) (*Variable, error) {
	return allocVariable(l, CVariable, parent, name)
}

func allocVariable(l *CLinkage, nt NodeType, parent database.Ptr, name string) (*Variable, error) {
	rec, err := allocateNode(l.db, nt, parent, variableRecordSize)
	if err != nil {
		return nil, err
	}
	v := &Variable{bindingBase{namedNode{node{linkage: l, record: rec}}}}
	if err := v.setName(name); err != nil {
		v.free()
		return nil, err
	}
	return v, nil
}

func (v *Variable) NodeType() NodeType { return CVariable }

// TypeRecord returns the record of the stored type.
func (v *Variable) TypeRecord() (database.Ptr, error) {
	return v.db().GetRecPtr(v.record + offVariableType)
}

// Type returns the stored type, nil when unknown.
func (v *Variable) Type() (sema.Type, error) {
	rec, err := v.TypeRecord()
	if err != nil {
		return nil, err
	}
	return v.linkage.ReadType(rec)
}

// Value returns the integer initializer, if one was recorded.
func (v *Variable) Value() (int64, bool, error) {
	kind, err := v.db().GetByte(v.record + offVariableValueKind)
	if err != nil || kind != valueInteger {
		return 0, false, err
	}
	val, err := v.db().GetLong(v.record + offVariableValue)
	return val, err == nil, err
}

// Annotations returns the storage-class flags.
func (v *Variable) Annotations() (sema.Annotations, error) {
	b, err := v.db().GetByte(v.record + offVariableAnnotations)
	if err != nil {
		return sema.Annotations{}, err
	}
	return v.linkage.annotations.Decode(b), nil
}

func (v *Variable) update(sv sema.Variable) error {
	if err := v.setType(sv.Type()); err != nil {
		return err
	}
	if err := v.setValue(sv.Value()); err != nil {
		return err
	}
	return v.setAnnotations(sv.Annotations())
}

func (v *Variable) setType(t sema.Type) error {
	return v.linkage.replaceType(v.record, v.record+offVariableType, t)
}

func (v *Variable) setValue(val int64, ok bool) error {
	kind := valueNone
	if ok {
		kind = valueInteger
	} else {
		val = 0
	}
	if err := v.db().PutLong(v.record+offVariableValue, val); err != nil {
		return err
	}
	return v.db().PutByte(v.record+offVariableValueKind, kind)
}

func (v *Variable) setAnnotations(a sema.Annotations) error {
	return v.db().PutByte(v.record+offVariableAnnotations, v.linkage.annotations.Encode(a))
}

// Delete releases the owned type, the name and the record.
func (v *Variable) Delete() error {
	rec, err := v.TypeRecord()
	if err != nil {
		return err
	}
	if err := v.linkage.DeleteType(rec); err != nil {
		return err
	}
	return v.deleteBinding()
}

// Field is a persisted struct or union member. It shares the variable
// layout; storage classes never apply to members.
type Field struct {
	Variable
}

func newField(l *CLinkage, parent database.Ptr, name string) (*Field, error) {
	v, err := allocVariable(l, CField, parent, name)
	if err != nil {
		return nil, err
	}
	return &Field{*v}, nil
}

func (f *Field) NodeType() NodeType { return CField }

// Annotations returns the member flags with static, extern, auto and
// register always false.
func (f *Field) Annotations() (sema.Annotations, error) {
	a, err := f.Variable.Annotations()
	return memberAnnotations(a), err
}

func (f *Field) update(sf sema.Field) error {
	if err := f.setType(sf.Type()); err != nil {
		return err
	}
	if err := f.setValue(sf.Value()); err != nil {
		return err
	}
	return f.setAnnotations(memberAnnotations(sf.Annotations()))
}

// Owner returns the structure that declares the field.
func (f *Field) Owner() (*Structure, error) {
	parent, err := f.ParentRecord()
	if err != nil {
		return nil, err
	}
	return f.linkage.getStructure(parent)
}

func memberAnnotations(a sema.Annotations) sema.Annotations {
	a.Static, a.Extern, a.Auto, a.Register = false, false, false, false
	return a
}
