package pdom

import (
	"errors"
	"fmt"

	symdb "github.com/jward/pdom/internal/pdom"
	"github.com/jward/pdom/internal/sema"
)

// Member is a named, typed part of a binding: a field or a parameter.
type Member struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// EnumeratorValue is one enumerator of an enumeration.
type EnumeratorValue struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// Detail bundles a binding with everything its kind records. One call
// replaces the separate Fields, Enumerators, Parameters and occurrence
// lookups.
type Detail struct {
	BindingInfo
	Annotations *sema.Annotations `json:"annotations,omitempty"`
	Value       *int64            `json:"value,omitempty"`       // variables with a constant initializer, enumerators
	Signature   string            `json:"signature,omitempty"`   // functions
	Key         string            `json:"key,omitempty"`         // structures: struct or union
	Anonymous   bool              `json:"anonymous,omitempty"`   // structures
	Fields      []Member          `json:"fields,omitempty"`      // structures
	Parameters  []Member          `json:"parameters,omitempty"`  // functions
	Enumerators []EnumeratorValue `json:"enumerators,omitempty"` // enumerations
	Min         *int64            `json:"min,omitempty"`         // enumerations
	Max         *int64            `json:"max,omitempty"`         // enumerations
	Occurrences []Occurrence      `json:"occurrences,omitempty"`
}

// Describe returns the detail of every binding named name with one of
// kinds (any kind when none are given).
func (q *QueryBuilder) Describe(name string, kinds ...Kind) ([]*Detail, error) {
	var out []*Detail
	err := q.pdom.View(func(l *symdb.CLinkage) error {
		bs, err := l.LookupBindings(name, kinds...)
		if err != nil {
			return err
		}
		for _, b := range bs {
			d, err := describe(l, b)
			if err != nil {
				return err
			}
			out = append(out, d)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", name, err)
	}
	return out, nil
}

func describe(l *symdb.CLinkage, b symdb.Binding) (*Detail, error) {
	info, err := bindingInfo(l, b)
	if err != nil {
		return nil, err
	}
	d := &Detail{BindingInfo: info}
	if d.Occurrences, err = b.Occurrences(); err != nil {
		return nil, err
	}

	switch b := b.(type) {
	case *symdb.Field:
		err = d.annotate(b.Annotations())
	case *symdb.Variable:
		if err = d.annotate(b.Annotations()); err != nil {
			return nil, err
		}
		v, ok, verr := b.Value()
		if verr != nil {
			return nil, verr
		}
		if ok {
			d.Value = &v
		}
	case *symdb.Function:
		if err = d.annotate(b.Annotations()); err != nil {
			return nil, err
		}
		if d.Signature, err = b.Signature(); err != nil {
			return nil, err
		}
		d.Parameters, err = parameters(b)
	case *symdb.Structure:
		key, kerr := b.Key()
		if kerr != nil {
			return nil, kerr
		}
		d.Key = key.String()
		if d.Anonymous, err = b.IsAnonymous(); err != nil {
			return nil, err
		}
		d.Fields, err = fields(b)
	case *symdb.Enumeration:
		if d.Enumerators, err = enumerators(b); err != nil {
			return nil, err
		}
		lo, lerr := b.MinValue()
		hi, herr := b.MaxValue()
		if lerr != nil || herr != nil {
			return nil, fmt.Errorf("enumeration bounds: %w", errors.Join(lerr, herr))
		}
		d.Min, d.Max = &lo, &hi
	case *symdb.Enumerator:
		v, verr := b.Value()
		if verr != nil {
			return nil, verr
		}
		d.Value = &v
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Detail) annotate(a sema.Annotations, err error) error {
	if err != nil {
		return err
	}
	if a != (sema.Annotations{}) {
		d.Annotations = &a
	}
	return nil
}

// Fields returns the fields of the structure or union named name, anonymous
// members flattened in, or nil when there is none. A global structure is
// preferred over file-local ones.
func (q *QueryBuilder) Fields(name string) ([]Member, error) {
	var out []Member
	err := q.pdom.View(func(l *symdb.CLinkage) error {
		b, err := preferGlobal(l, name, KindStructure)
		if err != nil || b == nil {
			return err
		}
		out, err = fields(b.(*symdb.Structure))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fields %s: %w", name, err)
	}
	return out, nil
}

// Enumerators returns the enumerators of the enumeration named name in
// declaration order, or nil when there is none.
func (q *QueryBuilder) Enumerators(name string) ([]EnumeratorValue, error) {
	var out []EnumeratorValue
	err := q.pdom.View(func(l *symdb.CLinkage) error {
		b, err := preferGlobal(l, name, KindEnumeration)
		if err != nil || b == nil {
			return err
		}
		out, err = enumerators(b.(*symdb.Enumeration))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("enumerators %s: %w", name, err)
	}
	return out, nil
}

// Parameters returns the parameters of the function named name, or nil
// when there is none.
func (q *QueryBuilder) Parameters(name string) ([]Member, error) {
	var out []Member
	err := q.pdom.View(func(l *symdb.CLinkage) error {
		b, err := preferGlobal(l, name, KindFunction)
		if err != nil || b == nil {
			return err
		}
		out, err = parameters(b.(*symdb.Function))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("parameters %s: %w", name, err)
	}
	return out, nil
}

func preferGlobal(l *symdb.CLinkage, name string, kind Kind) (symdb.Binding, error) {
	b, err := l.FindBinding(name, 0, kind)
	if err != nil || b != nil {
		return b, err
	}
	bs, err := l.LookupBindings(name, kind)
	if err != nil || len(bs) == 0 {
		return nil, err
	}
	return bs[0], nil
}

func fields(s *symdb.Structure) ([]Member, error) {
	fs, err := s.Fields()
	if err != nil {
		return nil, err
	}
	out := make([]Member, 0, len(fs))
	for _, f := range fs {
		name, err := f.Name()
		if err != nil {
			return nil, err
		}
		typ, err := f.Type()
		if err != nil {
			return nil, err
		}
		out = append(out, Member{Name: name, Type: typeString(typ)})
	}
	return out, nil
}

func parameters(f *symdb.Function) ([]Member, error) {
	ps, err := f.Parameters()
	if err != nil {
		return nil, err
	}
	out := make([]Member, 0, len(ps))
	for _, p := range ps {
		name, err := p.Name()
		if err != nil {
			return nil, err
		}
		typ, err := p.Type()
		if err != nil {
			return nil, err
		}
		out = append(out, Member{Name: name, Type: typeString(typ)})
	}
	return out, nil
}

func enumerators(e *symdb.Enumeration) ([]EnumeratorValue, error) {
	es, err := e.Enumerators()
	if err != nil {
		return nil, err
	}
	out := make([]EnumeratorValue, 0, len(es))
	for _, en := range es {
		name, err := en.Name()
		if err != nil {
			return nil, err
		}
		v, err := en.Value()
		if err != nil {
			return nil, err
		}
		out = append(out, EnumeratorValue{Name: name, Value: v})
	}
	return out, nil
}

func typeString(t sema.Type) string {
	if t == nil {
		return ""
	}
	return t.String()
}
