package pdom

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/sema"
)

// Basic type record.
const (
	offBasicKind        = nodeRecordSize
	offBasicFlags       = offBasicKind + 2
	basicTypeRecordSize = offBasicFlags + 2
)

// Function type record. Parameter types are a positional list: unknown
// parameter types are stored as null elements.
const (
	offFunctionTypeReturn  = nodeRecordSize
	offFunctionTypeParams  = offFunctionTypeReturn + database.PtrSize
	offFunctionTypeFlags   = offFunctionTypeParams + database.PtrSize
	functionTypeRecordSize = offFunctionTypeFlags + 1
)

// Marshalled type record: the encoded bytes live in a separate block.
const (
	offMarshalledLength      = nodeRecordSize
	offMarshalledData        = offMarshalledLength + database.PtrSize
	marshalledTypeRecordSize = offMarshalledData + database.PtrSize
)

// BasicType is a stored basic type.
type BasicType struct{ node }

func (t *BasicType) NodeType() NodeType { return CBasicType }

// Delete frees the record.
func (t *BasicType) Delete() error { return t.free() }

func (t *BasicType) read() (*sema.BasicType, error) {
	k, err := t.db().GetByte(t.record + offBasicKind)
	if err != nil {
		return nil, err
	}
	f, err := t.db().GetChar(t.record + offBasicFlags)
	if err != nil {
		return nil, err
	}
	return &sema.BasicType{Kind: sema.BasicKind(k), Flags: sema.BasicFlags(f)}, nil
}

// FunctionType is a stored function type.
type FunctionType struct{ node }

func (t *FunctionType) NodeType() NodeType { return CFunctionType }

func (t *FunctionType) params() *NodeLinkedList {
	return newNodeLinkedList(t.db(), t.record+offFunctionTypeParams)
}

func (t *FunctionType) read() (*sema.FunctionType, error) {
	l := t.linkage
	retRec, err := l.db.GetRecPtr(t.record + offFunctionTypeReturn)
	if err != nil {
		return nil, err
	}
	ret, err := l.ReadType(retRec)
	if err != nil {
		return nil, err
	}
	flags, err := l.db.GetByte(t.record + offFunctionTypeFlags)
	if err != nil {
		return nil, err
	}
	elems, err := t.params().Elements()
	if err != nil {
		return nil, err
	}
	ft := &sema.FunctionType{Return: ret, Varargs: flags&flagVarargs != 0}
	for _, rec := range elems {
		p, err := l.ReadType(rec)
		if err != nil {
			return nil, err
		}
		ft.Params = append(ft.Params, p)
	}
	return ft, nil
}

// Delete releases the owned return and parameter types, the list cells and
// the record.
func (t *FunctionType) Delete() error {
	l := t.linkage
	retRec, err := l.db.GetRecPtr(t.record + offFunctionTypeReturn)
	if err != nil {
		return err
	}
	if err := l.DeleteType(retRec); err != nil {
		return err
	}
	elems, err := t.params().Elements()
	if err != nil {
		return err
	}
	for _, rec := range elems {
		if err := l.DeleteType(rec); err != nil {
			return err
		}
	}
	if err := t.params().DeleteListItems(); err != nil {
		return err
	}
	return t.free()
}

// MarshalledType is a stored structural type in marshalled form.
type MarshalledType struct{ node }

func (t *MarshalledType) NodeType() NodeType { return CMarshalledType }

func (t *MarshalledType) data() ([]byte, error) {
	n, err := t.db().GetLong(t.record + offMarshalledLength)
	if err != nil {
		return nil, err
	}
	rec, err := t.db().GetRecPtr(t.record + offMarshalledData)
	if err != nil || rec == 0 {
		return nil, err
	}
	return t.db().GetBytes(rec, int(n))
}

// Delete frees the data block and the record.
func (t *MarshalledType) Delete() error {
	rec, err := t.db().GetRecPtr(t.record + offMarshalledData)
	if err != nil {
		return err
	}
	if rec != 0 {
		if err := t.db().Free(rec); err != nil {
			return err
		}
	}
	return t.free()
}

// --- storing ---

// AddType stores t on behalf of parent and returns the record to reference
// from the owner. Named types resolve to their binding record, which the
// owner does not own. Nil stores as 0.
func (l *CLinkage) AddType(parent database.Ptr, t sema.Type) (database.Ptr, error) {
	switch t := t.(type) {
	case nil:
		return 0, nil
	case *sema.BasicType:
		return l.addBasicType(parent, t)
	case *sema.FunctionType:
		return l.addFunctionType(parent, t)
	case sema.NamedType:
		return l.RecordForType(t)
	}
	return l.addMarshalledType(parent, t)
}

func (l *CLinkage) addBasicType(parent database.Ptr, t *sema.BasicType) (database.Ptr, error) {
	rec, err := allocateNode(l.db, CBasicType, parent, basicTypeRecordSize)
	if err != nil {
		return 0, err
	}
	if err := l.db.PutByte(rec+offBasicKind, byte(t.Kind)); err != nil {
		return 0, err
	}
	return rec, l.db.PutChar(rec+offBasicFlags, uint16(t.Flags))
}

func (l *CLinkage) addFunctionType(parent database.Ptr, t *sema.FunctionType) (database.Ptr, error) {
	rec, err := allocateNode(l.db, CFunctionType, parent, functionTypeRecordSize)
	if err != nil {
		return 0, err
	}
	ft := &FunctionType{node{linkage: l, record: rec}}
	ret, err := l.AddType(rec, t.Return)
	if err != nil {
		ft.Delete()
		return 0, err
	}
	if err := l.db.PutRecPtr(rec+offFunctionTypeReturn, ret); err != nil {
		return 0, err
	}
	var flags byte
	if t.Varargs {
		flags |= flagVarargs
	}
	if err := l.db.PutByte(rec+offFunctionTypeFlags, flags); err != nil {
		return 0, err
	}
	for _, p := range t.Params {
		prec, err := l.AddType(rec, p)
		if err != nil {
			ft.Delete()
			return 0, err
		}
		if err := ft.params().AddMember(prec); err != nil {
			return 0, err
		}
	}
	return rec, nil
}

func (l *CLinkage) addMarshalledType(parent database.Ptr, t sema.Type) (database.Ptr, error) {
	buf := NewTypeMarshalBuffer(l, nil)
	if err := buf.MarshalType(t); err != nil {
		return 0, err
	}
	data := buf.Bytes()
	if len(data) > database.MaxMallocSize {
		l.logger.Warn("type too large to store", "type", t.String(), "bytes", len(data))
		buf = NewTypeMarshalBuffer(l, nil)
		buf.marshalProblem("type too large")
		data = buf.Bytes()
	}

	rec, err := allocateNode(l.db, CMarshalledType, parent, marshalledTypeRecordSize)
	if err != nil {
		return 0, err
	}
	block, err := l.db.Malloc(len(data))
	if err != nil {
		l.db.Free(rec)
		return 0, err
	}
	if err := l.db.PutBytes(block, data); err != nil {
		return 0, err
	}
	if err := l.db.PutLong(rec+offMarshalledLength, int64(len(data))); err != nil {
		return 0, err
	}
	return rec, l.db.PutRecPtr(rec+offMarshalledData, block)
}

// ReadType decodes the type stored at rec. Binding records read as *TypeRef.
// Records of any other kind read as a problem type.
func (l *CLinkage) ReadType(rec database.Ptr) (sema.Type, error) {
	if rec == 0 {
		return nil, nil
	}
	nt, err := readNodeType(l.db, rec)
	if err != nil {
		return nil, err
	}
	n := node{linkage: l, record: rec}
	switch nt {
	case CBasicType:
		return (&BasicType{n}).read()
	case CFunctionType:
		return (&FunctionType{n}).read()
	case CMarshalledType:
		data, err := (&MarshalledType{n}).data()
		if err != nil {
			return nil, err
		}
		return NewTypeMarshalBuffer(l, data).UnmarshalType()
	case CStructure, CEnumeration, CTypedef:
		return l.TypeForRecord(rec), nil
	}
	return &sema.ProblemType{Reason: fmt.Sprintf("%s is not a type", nt)}, nil
}

// DeleteType releases the type stored at rec if it is owned by its
// referrer. Binding records are left alone.
func (l *CLinkage) DeleteType(rec database.Ptr) error {
	if rec == 0 {
		return nil
	}
	nt, err := readNodeType(l.db, rec)
	if err != nil {
		return err
	}
	n := node{linkage: l, record: rec}
	switch nt {
	case CBasicType:
		return (&BasicType{n}).Delete()
	case CFunctionType:
		return (&FunctionType{n}).Delete()
	case CMarshalledType:
		return (&MarshalledType{n}).Delete()
	}
	return nil
}

// replaceType stores t in the pointer field at slot of owner. An equal
// stored type is kept so re-indexing does not churn records.
func (l *CLinkage) replaceType(owner, slot database.Ptr, t sema.Type) error {
	old, err := l.db.GetRecPtr(slot)
	if err != nil {
		return err
	}
	same, err := l.sameStoredType(old, t)
	if err != nil || same {
		return err
	}
	rec, err := l.AddType(owner, t)
	if err != nil {
		return err
	}
	if err := l.db.PutRecPtr(slot, rec); err != nil {
		return err
	}
	return l.DeleteType(old)
}

// sameStoredType reports whether the type at rec encodes exactly like t.
// Named types compare by binding record; a named type without a record is
// never the same.
func (l *CLinkage) sameStoredType(rec database.Ptr, t sema.Type) (bool, error) {
	stored, err := l.ReadType(rec)
	if err != nil {
		return false, err
	}
	a, err := typeKey(l, stored)
	if err != nil {
		return false, err
	}
	b, err := typeKey(l, t)
	if errors.Is(err, errNotAdapted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return bytes.Equal(a, b), nil
}

var errNotAdapted = errors.New("named type has no record")

// lookupResolver resolves named types without creating bindings.
type lookupResolver struct{ l *CLinkage }

func (r lookupResolver) RecordForType(t sema.NamedType) (database.Ptr, error) {
	switch t := t.(type) {
	case *TypeRef:
		return t.Rec, nil
	case sema.Binding:
		pb, err := r.l.AdaptBinding(t, true)
		if err != nil {
			return 0, err
		}
		if pb == nil {
			return 0, errNotAdapted
		}
		return pb.Record(), nil
	}
	return 0, errNotAdapted
}

func (r lookupResolver) TypeForRecord(rec database.Ptr) sema.Type {
	return r.l.TypeForRecord(rec)
}

// typeKey is the canonical encoding of t used for equality of stored types.
func typeKey(l *CLinkage, t sema.Type) ([]byte, error) {
	buf := NewTypeMarshalBuffer(lookupResolver{l}, nil)
	if err := buf.MarshalType(t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RecordForType returns the binding record of a named type, adapting the
// front-end binding (and creating its record) when needed.
func (l *CLinkage) RecordForType(t sema.NamedType) (database.Ptr, error) {
	switch t := t.(type) {
	case *TypeRef:
		return t.Rec, nil
	case sema.Binding:
		pb, err := l.addBinding(t, nil)
		if err != nil || pb == nil {
			return 0, err
		}
		return pb.Record(), nil
	}
	return 0, nil
}

// TypeForRecord returns the named type stored at rec. Unreadable records
// yield a problem type.
func (l *CLinkage) TypeForRecord(rec database.Ptr) sema.Type {
	ref, err := l.typeRef(rec)
	if err != nil {
		return &sema.ProblemType{Reason: err.Error()}
	}
	return ref
}

func (l *CLinkage) typeRef(rec database.Ptr) (*TypeRef, error) {
	nt, err := readNodeType(l.db, rec)
	if err != nil {
		return nil, err
	}
	ref := &TypeRef{linkage: l, Rec: rec}
	switch nt {
	case CStructure:
		s := &Structure{bindingBase{namedNode{node{linkage: l, record: rec}}}}
		key, err := s.Key()
		if err != nil {
			return nil, err
		}
		if ref.Anonymous, err = s.IsAnonymous(); err != nil {
			return nil, err
		}
		ref.Kind = key.NamedKind()
	case CEnumeration:
		ref.Kind = sema.NamedEnum
	case CTypedef:
		ref.Kind = sema.NamedTypedef
	default:
		return nil, fmt.Errorf("record %d is a %s, not a named type", rec, nt)
	}
	if ref.Ident, err = readNodeName(l.db, rec); err != nil {
		return nil, err
	}
	return ref, nil
}

// TypeRef is a named type read back from the store. Typedef targets are
// read lazily, so a cyclic chain costs nothing until it is walked.
type TypeRef struct {
	linkage *CLinkage

	Rec       database.Ptr
	Kind      sema.NamedKind
	Ident     string
	Anonymous bool
}

func (r *TypeRef) Name() string              { return r.Ident }
func (r *TypeRef) NamedKind() sema.NamedKind { return r.Kind }

// Target returns the typedef target, nil for other kinds.
func (r *TypeRef) Target() sema.Type {
	if r.Kind != sema.NamedTypedef {
		return nil
	}
	t, err := (&Typedef{bindingBase{namedNode{node{linkage: r.linkage, record: r.Rec}}}}).Type()
	if err != nil {
		return &sema.ProblemType{Reason: err.Error()}
	}
	return t
}

func (r *TypeRef) IsSameType(other sema.Type) bool {
	if r.Kind == sema.NamedTypedef {
		return sema.SameType(r.Target(), other)
	}
	o, ok := sema.Underlying(other).(sema.NamedType)
	if !ok {
		return false
	}
	if ref, ok := o.(*TypeRef); ok && ref.Rec == r.Rec {
		return true
	}
	if r.Anonymous {
		return false
	}
	return o.NamedKind() == r.Kind && o.Name() == r.Ident
}

func (r *TypeRef) String() string {
	switch {
	case r.Kind == sema.NamedTypedef:
		return r.Ident
	case r.Anonymous:
		return r.Kind.String() + " {anonymous}"
	}
	return r.Kind.String() + " " + r.Ident
}
