package pdom

import (
	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/sema"
)

// Function record.
const (
	offFunctionType        = bindingRecordSize
	offFunctionFirstParam  = offFunctionType + database.PtrSize
	offFunctionNumParams   = offFunctionFirstParam + database.PtrSize
	offFunctionAnnotations = offFunctionNumParams + 4
	functionRecordSize     = offFunctionAnnotations + 1
)

// Function is a persisted function. Its parameters form an explicit chain
// in declaration order.
type Function struct {
	bindingBase
}

func newFunction(l *CLinkage, parent database.Ptr, name string) (*Function, error) {
	rec, err := allocateNode(l.db, CFunction, parent, functionRecordSize)
	if err != nil {
		return nil, err
	}
	f := &Function{bindingBase{namedNode{node{linkage: l, record: rec}}}}
	if err := f.setName(name); err != nil {
		f.free()
		return nil, err
	}
	return f, nil
}

func (f *Function) NodeType() NodeType { return CFunction }

// Type returns the function type, nil when unknown.
func (f *Function) Type() (*sema.FunctionType, error) {
	rec, err := f.db().GetRecPtr(f.record + offFunctionType)
	if err != nil {
		return nil, err
	}
	t, err := f.linkage.ReadType(rec)
	if err != nil {
		return nil, err
	}
	ft, _ := t.(*sema.FunctionType)
	return ft, nil
}

// NumParameters returns the stored parameter count.
func (f *Function) NumParameters() (int, error) {
	n, err := f.db().GetInt(f.record + offFunctionNumParams)
	return int(n), err
}

// Parameters returns the parameter chain in declaration order.
func (f *Function) Parameters() ([]*Parameter, error) {
	rec, err := f.db().GetRecPtr(f.record + offFunctionFirstParam)
	if err != nil {
		return nil, err
	}
	var params []*Parameter
	for i := 0; rec != 0; i++ {
		if i > maxListLength {
			return nil, corrupt("function parameters", f.record)
		}
		p := &Parameter{namedNode{node{linkage: f.linkage, record: rec}}}
		params = append(params, p)
		if rec, err = p.nextRecord(); err != nil {
			return nil, err
		}
	}
	return params, nil
}

// Annotations returns the function flags.
func (f *Function) Annotations() (sema.Annotations, error) {
	b, err := f.db().GetByte(f.record + offFunctionAnnotations)
	if err != nil {
		return sema.Annotations{}, err
	}
	return f.linkage.annotations.Decode(b), nil
}

func (f *Function) update(sf sema.Function) error {
	var t sema.Type
	if ft := sf.Type(); ft != nil {
		t = ft
	}
	if err := f.linkage.replaceType(f.record, f.record+offFunctionType, t); err != nil {
		return err
	}
	if err := f.setParameters(sf.Parameters()); err != nil {
		return err
	}
	return f.db().PutByte(f.record+offFunctionAnnotations, f.linkage.annotations.Encode(sf.Annotations()))
}

// setParameters replaces the parameter chain. Parameters have no identity of
// their own, so a changed list is rebuilt from scratch; an identical list is
// left alone.
func (f *Function) setParameters(params []sema.Parameter) error {
	existing, err := f.Parameters()
	if err != nil {
		return err
	}
	same, err := f.sameParameters(existing, params)
	if err != nil || same {
		return err
	}
	if err := f.deleteParameters(existing); err != nil {
		return err
	}

	var next database.Ptr
	for i := len(params) - 1; i >= 0; i-- {
		p, err := newParameter(f.linkage, f.record, params[i], next)
		if err != nil {
			return err
		}
		next = p.record
		// Keep the chain reachable after every step.
		if err := f.db().PutRecPtr(f.record+offFunctionFirstParam, next); err != nil {
			return err
		}
	}
	return f.db().PutInt(f.record+offFunctionNumParams, int32(len(params)))
}

func (f *Function) sameParameters(existing []*Parameter, params []sema.Parameter) (bool, error) {
	if len(existing) != len(params) {
		return false, nil
	}
	for i, p := range existing {
		name, err := p.Name()
		if err != nil {
			return false, err
		}
		if name != params[i].Name() {
			return false, nil
		}
		a, err := p.Annotations()
		if err != nil {
			return false, err
		}
		if a != paramAnnotations(params[i].Annotations()) {
			return false, nil
		}
		typeRec, err := p.TypeRecord()
		if err != nil {
			return false, err
		}
		same, err := f.linkage.sameStoredType(typeRec, params[i].Type())
		if err != nil || !same {
			return false, err
		}
	}
	return true, nil
}

func (f *Function) deleteParameters(params []*Parameter) error {
	for _, p := range params {
		if err := p.Delete(); err != nil {
			return err
		}
	}
	if err := f.db().PutRecPtr(f.record+offFunctionFirstParam, 0); err != nil {
		return err
	}
	return f.db().PutInt(f.record+offFunctionNumParams, 0)
}

// Delete releases the parameter chain, the function type, the name and the
// record.
func (f *Function) Delete() error {
	params, err := f.Parameters()
	if err != nil {
		return err
	}
	if err := f.deleteParameters(params); err != nil {
		return err
	}
	rec, err := f.db().GetRecPtr(f.record + offFunctionType)
	if err != nil {
		return err
	}
	if err := f.linkage.DeleteType(rec); err != nil {
		return err
	}
	return f.deleteBinding()
}

// Signature returns the parameter type list, e.g. "(int,struct S*)".
func (f *Function) Signature() (string, error) {
	ft, err := f.Type()
	if err != nil || ft == nil {
		return "()", err
	}
	return ft.ParamString(), nil
}
