package pdom

import (
	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/sema"
)

// Parameter record: a named node, not a binding.
const (
	offParameterType    = namedNodeRecordSize
	offParameterNext    = offParameterType + database.PtrSize
	offParameterFlags   = offParameterNext + database.PtrSize
	parameterRecordSize = offParameterFlags + 1
)

// Parameter is one link of a function's parameter chain.
type Parameter struct {
	namedNode
}

func newParameter(l *CLinkage, function database.Ptr, sp sema.Parameter, next database.Ptr) (*Parameter, error) {
	rec, err := allocateNode(l.db, CParameter, function, parameterRecordSize)
	if err != nil {
		return nil, err
	}
	p := &Parameter{namedNode{node{linkage: l, record: rec}}}
	if err := p.setName(sp.Name()); err != nil {
		p.free()
		return nil, err
	}
	typeRec, err := l.AddType(rec, sp.Type())
	if err != nil {
		p.Delete()
		return nil, err
	}
	if err := l.db.PutRecPtr(rec+offParameterType, typeRec); err != nil {
		return nil, err
	}
	if err := l.db.PutRecPtr(rec+offParameterNext, next); err != nil {
		return nil, err
	}
	flags := l.annotations.Encode(paramAnnotations(sp.Annotations()))
	if err := l.db.PutByte(rec+offParameterFlags, flags); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parameter) NodeType() NodeType { return CParameter }

// TypeRecord returns the record of the parameter type.
func (p *Parameter) TypeRecord() (database.Ptr, error) {
	return p.db().GetRecPtr(p.record + offParameterType)
}

// Type returns the parameter type, nil when unknown.
func (p *Parameter) Type() (sema.Type, error) {
	rec, err := p.TypeRecord()
	if err != nil {
		return nil, err
	}
	return p.linkage.ReadType(rec)
}

// Annotations returns the parameter flags. Only register can be set.
func (p *Parameter) Annotations() (sema.Annotations, error) {
	b, err := p.db().GetByte(p.record + offParameterFlags)
	if err != nil {
		return sema.Annotations{}, err
	}
	return paramAnnotations(p.linkage.annotations.Decode(b)), nil
}

func (p *Parameter) nextRecord() (database.Ptr, error) {
	return p.db().GetRecPtr(p.record + offParameterNext)
}

// Delete releases the parameter type, the name and the record. The chain
// link is not repaired.
func (p *Parameter) Delete() error {
	rec, err := p.TypeRecord()
	if err != nil {
		return err
	}
	if err := p.linkage.DeleteType(rec); err != nil {
		return err
	}
	if err := p.deleteName(); err != nil {
		return err
	}
	return p.free()
}

func paramAnnotations(a sema.Annotations) sema.Annotations {
	return sema.Annotations{Register: a.Register}
}
