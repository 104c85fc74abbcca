package pdom

import (
	"fmt"

	"github.com/jward/pdom/internal/database"
	symdb "github.com/jward/pdom/internal/pdom"
	"github.com/jward/pdom/internal/sema"
	"github.com/jward/pdom/internal/store"
)

// QueryBuilder answers questions about indexed bindings. Every call takes
// the PDOM read lock for its duration.
type QueryBuilder struct {
	pdom  *symdb.PDOM
	store *store.Store
}

// NewQueryBuilder creates a QueryBuilder over an open PDOM and registry.
func NewQueryBuilder(p *symdb.PDOM, s *store.Store) *QueryBuilder {
	return &QueryBuilder{pdom: p, store: s}
}

// BindingInfo is the summary of one persisted binding.
type BindingInfo struct {
	Record    int64  `json:"record"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Type      string `json:"type,omitempty"`
	Owner     string `json:"owner,omitempty"`
	FileLocal string `json:"file_local,omitempty"`
	Defined   bool   `json:"defined"`
}

// FindBinding returns every indexed binding named name with one of kinds
// (any kind when none are given), global ones and file-local ones alike.
// Without an indexed match, aggregates nested inside structures are
// searched.
func (q *QueryBuilder) FindBinding(name string, kinds ...Kind) ([]BindingInfo, error) {
	var out []BindingInfo
	err := q.pdom.View(func(l *symdb.CLinkage) error {
		bs, err := l.LookupBindings(name, kinds...)
		if err != nil {
			return err
		}
		out, err = infos(l, bs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find binding %s: %w", name, err)
	}
	return out, nil
}

// Definitions returns the definition sites of the bindings named name.
func (q *QueryBuilder) Definitions(name string, kinds ...Kind) ([]Occurrence, error) {
	return q.occurrences("definitions", name, kinds, sema.RoleDefinition)
}

// Declarations returns the declaration sites of the bindings named name.
func (q *QueryBuilder) Declarations(name string, kinds ...Kind) ([]Occurrence, error) {
	return q.occurrences("declarations", name, kinds, sema.RoleDeclaration)
}

// References returns the reference sites of the bindings named name.
func (q *QueryBuilder) References(name string, kinds ...Kind) ([]Occurrence, error) {
	return q.occurrences("references", name, kinds, sema.RoleReference)
}

func (q *QueryBuilder) occurrences(op, name string, kinds []Kind, role sema.Role) ([]Occurrence, error) {
	var out []Occurrence
	err := q.pdom.View(func(l *symdb.CLinkage) error {
		bs, err := l.LookupBindings(name, kinds...)
		if err != nil {
			return err
		}
		for _, b := range bs {
			occ, err := b.Occurrences(role)
			if err != nil {
				return err
			}
			out = append(out, occ...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, name, err)
	}
	return out, nil
}

// FilesForBinding returns the registered units whose last indexing touched
// a binding named name.
func (q *QueryBuilder) FilesForBinding(name string, kinds ...Kind) ([]*File, error) {
	var recs []database.Ptr
	err := q.pdom.View(func(l *symdb.CLinkage) error {
		bs, err := l.LookupBindings(name, kinds...)
		for _, b := range bs {
			recs = append(recs, b.Record())
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("files for binding %s: %w", name, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	files, err := q.store.FilesContainingAny(bindingSet(recs))
	if err != nil {
		return nil, fmt.Errorf("files for binding %s: %w", name, err)
	}
	out, err := q.store.FilesByIDs(files)
	if err != nil {
		return nil, fmt.Errorf("files for binding %s: %w", name, err)
	}
	return out, nil
}

func infos(l *symdb.CLinkage, bs []symdb.Binding) ([]BindingInfo, error) {
	out := make([]BindingInfo, 0, len(bs))
	for _, b := range bs {
		info, err := bindingInfo(l, b)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

func bindingInfo(l *symdb.CLinkage, b symdb.Binding) (BindingInfo, error) {
	info := BindingInfo{Record: int64(b.Record()), Kind: b.NodeType().String()}
	var err error
	if info.Name, err = b.Name(); err != nil {
		return info, err
	}
	typ, err := bindingType(b)
	if err != nil {
		return info, err
	}
	if typ != nil {
		info.Type = typ.String()
	}
	if info.Owner, err = ownerName(l, b); err != nil {
		return info, err
	}
	if info.FileLocal, err = localFile(l, b); err != nil {
		return info, err
	}
	if info.Defined, err = b.HasDefinition(); err != nil {
		return info, err
	}
	return info, nil
}

// bindingType returns the declared type of b, or the type b names for
// structures and enumerations.
func bindingType(b symdb.Binding) (sema.Type, error) {
	switch b := b.(type) {
	case *symdb.Field:
		return b.Type()
	case *symdb.Variable:
		return b.Type()
	case *symdb.Function:
		ft, err := b.Type()
		if err != nil || ft == nil {
			return nil, err
		}
		return ft, nil
	case *symdb.Typedef:
		return b.Type()
	case *symdb.Enumerator:
		return b.Type()
	case *symdb.Enumeration:
		return b.Type(), nil
	}
	return nil, nil
}

func ownerName(l *symdb.CLinkage, b symdb.Binding) (string, error) {
	parent, err := b.ParentRecord()
	if err != nil || parent == 0 || parent == l.Record() {
		return "", err
	}
	n, err := l.GetNode(parent)
	if err != nil {
		return "", err
	}
	owner, ok := n.(symdb.Binding)
	if !ok {
		return "", nil
	}
	return owner.Name()
}

func localFile(l *symdb.CLinkage, b symdb.Binding) (string, error) {
	rec, err := b.LocalToFile()
	if err != nil || rec == 0 {
		return "", err
	}
	n, err := l.GetNode(rec)
	if err != nil {
		return "", err
	}
	f, ok := n.(*symdb.File)
	if !ok {
		return "", nil
	}
	return f.Path()
}
