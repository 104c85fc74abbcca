package pdom

import (
	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/sema"
)

// BindingIdentity is what makes two bindings the same persistent entity.
// Signature is set for functions only.
type BindingIdentity struct {
	Name        string       `json:"name"`
	NodeType    NodeType     `json:"node_type"`
	LocalToFile database.Ptr `json:"local_to_file,omitempty"`
	Signature   string       `json:"signature,omitempty"`
}

// Equal reports whether both identities denote the same entity.
func (id BindingIdentity) Equal(other BindingIdentity) bool {
	return id == other
}

// Identity returns the identity of a persisted binding.
func (l *CLinkage) Identity(b Binding) (BindingIdentity, error) {
	name, err := b.Name()
	if err != nil {
		return BindingIdentity{}, err
	}
	ltf, err := b.LocalToFile()
	if err != nil {
		return BindingIdentity{}, err
	}
	id := BindingIdentity{Name: name, NodeType: b.NodeType(), LocalToFile: ltf}
	if f, ok := b.(*Function); ok {
		if id.Signature, err = f.Signature(); err != nil {
			return BindingIdentity{}, err
		}
	}
	return id, nil
}

// IdentityOf returns the identity a front-end binding would be stored
// under. ok is false for bindings the store does not represent. File-local
// bindings whose file is not yet known report ok false as well.
func (l *CLinkage) IdentityOf(b sema.Binding) (id BindingIdentity, ok bool, err error) {
	if l.cannotAdapt(b) {
		return id, false, nil
	}
	name, ok := bindingName(b)
	if !ok {
		return id, false, nil
	}
	if sema.IsFunctionScoped(b) {
		return id, false, nil
	}
	var ltf database.Ptr
	if b.Owner() == nil {
		var found bool
		ltf, found, err = l.localToFile(b, l.record, false)
		if err != nil || !found {
			return id, false, err
		}
	}
	id = BindingIdentity{Name: name, NodeType: bindingNodeType(b), LocalToFile: ltf}
	if f, ok := b.(sema.Function); ok {
		id.Signature = "()"
		if ft := f.Type(); ft != nil {
			id.Signature = ft.ParamString()
		}
	}
	return id, true, nil
}
