package pdom

import (
	"fmt"
	"log/slog"

	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/sema"
)

// LinkageC is the name of the C linkage record.
const LinkageC = "C"

// Linkage record: a named node followed by the index root and the next
// linkage in the store's linkage list.
const (
	offLinkageIndex   = namedNodeRecordSize
	offLinkageNext    = offLinkageIndex + database.PtrSize
	linkageRecordSize = offLinkageNext + database.PtrSize
)

// CLinkage maps C front-end bindings to persistent records. Its methods do
// not lock; callers go through PDOM.View or PDOM.Update.
type CLinkage struct {
	pdom        *PDOM
	db          *database.Database
	record      database.Ptr
	index       *database.BTree
	annotations AnnotationCodec
	logger      *slog.Logger
}

// findOrCreateLinkage looks up the named linkage in the linkage list rooted
// at head, creating it when create is set.
func findOrCreateLinkage(db *database.Database, head database.Ptr, name string, create bool) (database.Ptr, error) {
	rec, err := db.GetRecPtr(head)
	if err != nil {
		return 0, err
	}
	for i := 0; rec != 0; i++ {
		if i > maxListLength {
			return 0, corrupt("find linkage", head)
		}
		n, err := readNodeName(db, rec)
		if err != nil {
			return 0, err
		}
		if n == name {
			return rec, nil
		}
		if rec, err = db.GetRecPtr(rec + offLinkageNext); err != nil {
			return 0, err
		}
	}
	if !create {
		return 0, nil
	}

	rec, err = allocateNode(db, NodeLinkage, 0, linkageRecordSize)
	if err != nil {
		return 0, err
	}
	s, err := database.NewString(db, name)
	if err != nil {
		return 0, err
	}
	if err := db.PutRecPtr(rec+offName, s.Record()); err != nil {
		return 0, err
	}
	first, err := db.GetRecPtr(head)
	if err != nil {
		return 0, err
	}
	if err := db.PutRecPtr(rec+offLinkageNext, first); err != nil {
		return 0, err
	}
	return rec, db.PutRecPtr(head, rec)
}

func newCLinkage(p *PDOM, rec database.Ptr, codec AnnotationCodec) *CLinkage {
	return &CLinkage{
		pdom:        p,
		db:          p.db,
		record:      rec,
		index:       database.NewBTree(p.db, rec+offLinkageIndex, bindingComparator{db: p.db}),
		annotations: codec,
		logger:      p.logger,
	}
}

// Record returns the linkage record, the parent of every global binding.
func (l *CLinkage) Record() database.Ptr { return l.record }

// Index returns the B-tree over global and file-local bindings.
func (l *CLinkage) Index() *database.BTree { return l.index }

// Annotations returns the codec for the store's format version.
func (l *CLinkage) Annotations() AnnotationCodec { return l.annotations }

// --- adaptation ---

// AddBinding adapts the binding of name into a record, creating it the first
// time and updating it when the occurrence qualifies, then records the
// occurrence. Bindings the store does not represent (problems,
// function-local bindings, unnamed non-aggregates) yield nil without error.
// A storage failure aborts only this binding; it is logged and returned.
func (l *CLinkage) AddBinding(name sema.Name) (Binding, error) {
	pb, err := l.addBinding(name.Binding, &name)
	if err == nil && pb != nil && name.Loc.File != "" {
		err = l.pdom.addName(pb, name)
	}
	if err != nil {
		var ident string
		if name.Binding != nil {
			ident = name.Binding.Name()
		}
		l.logger.Error("add binding failed",
			"name", ident,
			"location", name.Loc.String(),
			"error", err,
		)
		return nil, fmt.Errorf("add binding %q: %w", ident, err)
	}
	return pb, nil
}

func (l *CLinkage) addBinding(b sema.Binding, from *sema.Name) (Binding, error) {
	if l.cannotAdapt(b) {
		return nil, nil
	}
	pb, err := l.attemptFastAdapt(b)
	if err != nil {
		return nil, err
	}
	if pb == nil {
		name, ok := bindingName(b)
		if !ok {
			return nil, nil
		}
		parent, err := l.adaptedParent(b, true)
		if err != nil || parent == 0 {
			return nil, err
		}
		ltf, _, err := l.localToFile(b, parent, true)
		if err != nil {
			return nil, err
		}
		if pb, err = l.findExisting(parent, b, name, ltf); err != nil {
			return nil, err
		}
		if pb == nil {
			if pb, err = l.createBinding(parent, b, name, ltf); err != nil || pb == nil {
				return nil, err
			}
			l.pdom.putCachedResult(adaptedKey(b), pb.Record())
			return pb, nil
		}
		l.pdom.putCachedResult(adaptedKey(b), pb.Record())
	}

	update, err := shouldUpdate(pb, from)
	if err != nil {
		return nil, err
	}
	if update {
		if err := l.updateBinding(pb, b); err != nil {
			return nil, err
		}
	}
	return pb, nil
}

// AdaptBinding returns the record for b without creating anything, or nil.
// File-local bindings are returned only when includeLocal is set.
func (l *CLinkage) AdaptBinding(b sema.Binding, includeLocal bool) (Binding, error) {
	if l.cannotAdapt(b) {
		return nil, nil
	}
	pb, err := l.attemptFastAdapt(b)
	if err != nil {
		return nil, err
	}
	if pb != nil {
		if !includeLocal {
			if ltf, err := pb.LocalToFile(); err != nil || ltf != 0 {
				return nil, err
			}
		}
		return pb, nil
	}

	name, ok := bindingName(b)
	if !ok {
		return nil, nil
	}
	parent, err := l.adaptedParent(b, false)
	if err != nil || parent == 0 {
		return nil, err
	}
	ltf, found, err := l.localToFile(b, parent, false)
	if err != nil || !found {
		return nil, err
	}
	if ltf != 0 && !includeLocal {
		return nil, nil
	}
	if pb, err = l.findExisting(parent, b, name, ltf); err != nil || pb == nil {
		return nil, err
	}
	l.pdom.putCachedResult(adaptedKey(b), pb.Record())
	return pb, nil
}

// cannotAdapt reports bindings the store never represents.
func (l *CLinkage) cannotAdapt(b sema.Binding) bool {
	if b == nil {
		return true
	}
	if _, ok := b.(sema.Problem); ok {
		return true
	}
	return bindingNodeType(b) == 0
}

func (l *CLinkage) attemptFastAdapt(b sema.Binding) (Binding, error) {
	v, ok := l.pdom.cachedResult(adaptedKey(b))
	if !ok {
		return nil, nil
	}
	return l.getBinding(v.(database.Ptr))
}

// bindingNodeType maps a front-end binding to its record kind. Fields are
// tested before variables: every field is also a variable.
func bindingNodeType(b sema.Binding) NodeType {
	switch b := b.(type) {
	case sema.Field:
		return CField
	case sema.Variable:
		return CVariable
	case sema.Function:
		return CFunction
	case sema.Enumerator:
		return CEnumerator
	case sema.NamedType:
		switch b.NamedKind() {
		case sema.NamedStruct, sema.NamedUnion:
			if _, ok := b.(sema.Composite); ok {
				return CStructure
			}
		case sema.NamedEnum:
			return CEnumeration
		case sema.NamedTypedef:
			if _, ok := b.(sema.Typedef); ok {
				return CTypedef
			}
		}
	}
	return 0
}

// bindingName returns the index name of b. Anonymous aggregates get a name
// derived from their position, stable across parses of the same source.
func bindingName(b sema.Binding) (string, bool) {
	if n := b.Name(); n != "" {
		return n, true
	}
	nt, ok := b.(sema.NamedType)
	if !ok || nt.NamedKind() == sema.NamedTypedef {
		return "", false
	}
	loc := b.Location()
	if loc.File == "" && loc.Line == 0 {
		return "", false
	}
	return AnonymousName(loc), true
}

// AnonymousName is the synthetic name of an anonymous aggregate declared at
// loc. The full path keeps aggregates of same-named files in different
// directories apart.
func AnonymousName(loc sema.Location) string {
	return fmt.Sprintf("{%s:%d:%d}", loc.File, loc.Line, loc.Col)
}

// adaptedParent resolves the record that owns b: the linkage for global
// bindings, the enclosing structure for members. It returns 0 for bindings
// that live in a function scope.
func (l *CLinkage) adaptedParent(b sema.Binding, create bool) (database.Ptr, error) {
	if sema.IsFunctionScoped(b) {
		return 0, nil
	}
	owner := b.Owner()
	if owner == nil {
		return l.record, nil
	}
	c, ok := owner.(sema.Composite)
	if !ok {
		return 0, nil
	}
	var (
		pb  Binding
		err error
	)
	if create {
		pb, err = l.addBinding(c, nil)
	} else {
		pb, err = l.AdaptBinding(c, true)
	}
	if err != nil || pb == nil {
		return 0, err
	}
	return pb.Record(), nil
}

// localToFile returns the file record of a static global variable or
// function and 0 for everything else. found is false when the binding is
// file-local but its file is unknown (only possible when create is unset).
func (l *CLinkage) localToFile(b sema.Binding, parent database.Ptr, create bool) (ltf database.Ptr, found bool, err error) {
	if parent != l.record {
		return 0, true, nil
	}
	var static bool
	switch x := b.(type) {
	case sema.Field:
	case sema.Variable:
		static = x.Annotations().Static
	case sema.Function:
		static = x.Annotations().Static
	}
	path := b.Location().File
	if !static || path == "" {
		return 0, true, nil
	}
	var f *File
	if create {
		f, err = l.pdom.addFile(path)
	} else {
		f, err = l.pdom.findFile(path)
	}
	if err != nil || f == nil {
		return 0, false, err
	}
	return f.Record(), true, nil
}

func (l *CLinkage) findExisting(parent database.Ptr, b sema.Binding, name string, ltf database.Ptr) (Binding, error) {
	types := []NodeType{bindingNodeType(b)}
	var (
		rec database.Ptr
		err error
	)
	if parent == l.record {
		rec, err = FindBinding(l.index, l.db, name, types, ltf)
	} else {
		s, serr := l.getStructure(parent)
		if serr != nil || s == nil {
			return nil, serr
		}
		rec, err = FindInList(s.members(), l.db, name, types)
	}
	if err != nil || rec == 0 {
		return nil, err
	}
	return l.getBinding(rec)
}

// shouldUpdate decides whether the occurrence may rewrite the payload of an
// existing binding: definitions always do, references never do, and
// declarations only while no definition is recorded.
func shouldUpdate(pb Binding, from *sema.Name) (bool, error) {
	if from == nil || from.IsReference() {
		return false, nil
	}
	if from.IsDefinition() {
		return true, nil
	}
	has, err := pb.HasDefinition()
	return !has, err
}

// --- creation ---

func (l *CLinkage) createBinding(parent database.Ptr, b sema.Binding, name string, ltf database.Ptr) (Binding, error) {
	pb, err := l.newBinding(parent, b, name)
	if err != nil || pb == nil {
		return nil, err
	}
	if err := pb.base().setLocalToFile(ltf); err != nil {
		pb.Delete()
		return nil, err
	}
	if err := l.linkBinding(parent, pb); err != nil {
		pb.Delete()
		return nil, err
	}
	// The record is reachable from here on, so a type that refers back to
	// it finds it instead of creating a second one.
	if err := l.updateBinding(pb, b); err != nil {
		return nil, err
	}
	if err := l.linkExtra(pb, b); err != nil {
		return nil, err
	}
	l.logger.Debug("binding created", "name", name, "kind", pb.NodeType().String())
	return pb, nil
}

// newBinding allocates the record for b and writes its name and the scalar
// fields the containers order or summarize by.
func (l *CLinkage) newBinding(parent database.Ptr, b sema.Binding, name string) (Binding, error) {
	switch nt := bindingNodeType(b); nt {
	case CField:
		return newField(l, parent, name)
	case CVariable:
		return newVariable(l, parent, name)
	case CFunction:
		return newFunction(l, parent, name)
	case CStructure:
		return newStructure(l, parent, name, b.(sema.Composite))
	case CEnumeration:
		return newEnumeration(l, parent, name)
	case CEnumerator:
		e := b.(sema.Enumerator)
		var enumRec database.Ptr
		if en := e.Enumeration(); en != nil {
			rec, err := l.RecordForType(en)
			if err != nil {
				return nil, err
			}
			enumRec = rec
		}
		return newEnumerator(l, parent, name, e.Value(), enumRec)
	case CTypedef:
		return newTypedef(l, parent, name)
	}
	return nil, nil
}

// linkBinding inserts a new binding into its owner: the linkage index for
// global bindings, the member list of the enclosing structure otherwise.
func (l *CLinkage) linkBinding(parent database.Ptr, pb Binding) error {
	if parent == l.record {
		_, err := l.index.Insert(pb.Record())
		return err
	}
	s, err := l.getStructure(parent)
	if err != nil {
		return err
	}
	if s == nil {
		return corrupt("link binding", parent)
	}
	return s.addChild(pb)
}

// linkExtra adds the secondary links of a new binding. An enumerator joins
// its enumeration's list. A field of an anonymous aggregate also joins the
// nearest named enclosing aggregate, or the index when the chain of
// anonymous aggregates reaches global scope.
func (l *CLinkage) linkExtra(pb Binding, b sema.Binding) error {
	switch pb := pb.(type) {
	case *Enumerator:
		en, err := pb.Enumeration()
		if err != nil || en == nil {
			return err
		}
		return en.addChild(pb)
	case *Field:
		owner := b.Owner()
		for {
			c, ok := owner.(sema.Composite)
			if !ok || !c.IsAnonymous() {
				return nil
			}
			next := c.Owner()
			if next == nil {
				_, err := l.index.Insert(pb.Record())
				return err
			}
			nc, ok := next.(sema.Composite)
			if !ok {
				return nil
			}
			if !nc.IsAnonymous() {
				outer, err := l.addBinding(nc, nil)
				if err != nil {
					return err
				}
				s, ok := outer.(*Structure)
				if !ok {
					return nil
				}
				return s.addChild(pb)
			}
			owner = nc
		}
	}
	return nil
}

// unlinkMember removes pb from the lists that name it as a member. A field
// or nested aggregate leaves its structure and, through a chain of
// anonymous aggregates, the named owner linkExtra added it to. An
// enumerator leaves its enumeration. The global index is not touched.
func (l *CLinkage) unlinkMember(pb Binding) (bool, error) {
	switch pb := pb.(type) {
	case *Enumerator:
		en, err := pb.Enumeration()
		if err != nil || en == nil {
			return false, err
		}
		return en.removeChild(pb.record)
	case *Field, *Structure:
		parent, err := pb.ParentRecord()
		if err != nil {
			return false, err
		}
		removed := false
		for depth := 0; parent != 0 && parent != l.record; depth++ {
			if depth > maxTreeDepth {
				return removed, corrupt("unlink member", pb.Record())
			}
			s, err := l.getStructure(parent)
			if err != nil || s == nil {
				return removed, err
			}
			ok, err := s.removeChild(pb.Record())
			if err != nil {
				return removed, err
			}
			removed = removed || ok
			anon, err := s.IsAnonymous()
			if err != nil || !anon {
				return removed, err
			}
			if parent, err = s.ParentRecord(); err != nil {
				return removed, err
			}
		}
		return removed, nil
	}
	return false, nil
}

// updateBinding rewrites the mutable payload of pb from b. Name and record
// address never change.
func (l *CLinkage) updateBinding(pb Binding, b sema.Binding) error {
	switch pb := pb.(type) {
	case *Field:
		if f, ok := b.(sema.Field); ok {
			return pb.update(f)
		}
	case *Variable:
		if v, ok := b.(sema.Variable); ok {
			return pb.update(v)
		}
	case *Function:
		if f, ok := b.(sema.Function); ok {
			return pb.update(f)
		}
	case *Structure:
		if c, ok := b.(sema.Composite); ok {
			return pb.update(c)
		}
	case *Enumerator:
		if e, ok := b.(sema.Enumerator); ok {
			return pb.update(e)
		}
	case *Typedef:
		if t, ok := b.(sema.Typedef); ok {
			return pb.update(t)
		}
	}
	return nil
}

// --- reading ---

// GetNode reads the tag of rec and returns the matching wrapper.
func (l *CLinkage) GetNode(rec database.Ptr) (Node, error) {
	if rec == 0 {
		return nil, nil
	}
	nt, err := readNodeType(l.db, rec)
	if err != nil {
		return nil, err
	}
	n := node{linkage: l, record: rec}
	switch nt {
	case CVariable:
		return &Variable{bindingBase{namedNode{n}}}, nil
	case CField:
		return &Field{Variable{bindingBase{namedNode{n}}}}, nil
	case CFunction:
		return &Function{bindingBase{namedNode{n}}}, nil
	case CStructure:
		return &Structure{bindingBase{namedNode{n}}}, nil
	case CEnumeration:
		return &Enumeration{bindingBase{namedNode{n}}}, nil
	case CEnumerator:
		return &Enumerator{bindingBase{namedNode{n}}}, nil
	case CTypedef:
		return &Typedef{bindingBase{namedNode{n}}}, nil
	case CParameter:
		return &Parameter{namedNode{n}}, nil
	case CBasicType:
		return &BasicType{n}, nil
	case CFunctionType:
		return &FunctionType{n}, nil
	case CMarshalledType:
		return &MarshalledType{n}, nil
	case NodeFile:
		return &File{db: l.db, record: rec}, nil
	}
	return nil, &database.StorageError{Op: "get node", Record: rec,
		Err: fmt.Errorf("%w: unknown node type %d", database.ErrCorruptOffset, nt)}
}

// getBinding returns the binding stored at rec, or an error when rec holds
// another kind of node.
func (l *CLinkage) getBinding(rec database.Ptr) (Binding, error) {
	n, err := l.GetNode(rec)
	if err != nil || n == nil {
		return nil, err
	}
	b, ok := n.(Binding)
	if !ok {
		return nil, &database.StorageError{Op: "get binding", Record: rec,
			Err: fmt.Errorf("%w: %s is not a binding", database.ErrCorruptOffset, n.NodeType())}
	}
	return b, nil
}

// GetBinding is GetNode restricted to binding records.
func (l *CLinkage) GetBinding(rec database.Ptr) (Binding, error) {
	return l.getBinding(rec)
}

func (l *CLinkage) getStructure(rec database.Ptr) (*Structure, error) {
	n, err := l.GetNode(rec)
	if err != nil {
		return nil, err
	}
	s, _ := n.(*Structure)
	return s, nil
}

// FindBinding returns the binding named name with one of the given kinds
// and locality (0 for global), or nil.
func (l *CLinkage) FindBinding(name string, localToFile database.Ptr, kinds ...NodeType) (Binding, error) {
	rec, err := FindBinding(l.index, l.db, name, kinds, localToFile)
	if err != nil || rec == 0 {
		return nil, err
	}
	return l.getBinding(rec)
}

// FindBindings returns every indexed binding named name with one of the
// given kinds (all kinds when none are given), global and file-local.
func (l *CLinkage) FindBindings(name string, kinds ...NodeType) ([]Binding, error) {
	recs, err := FindBindings(l.index, l.db, name, kinds)
	if err != nil {
		return nil, err
	}
	return l.bindings(recs)
}

// FindMemberBindings returns the bindings named name with one of kinds that
// live only in the member lists of global structures, such as a struct
// declared inside another struct. Fields are returned only when kinds
// names CField. The search walks every global structure.
func (l *CLinkage) FindMemberBindings(name string, kinds ...NodeType) ([]Binding, error) {
	f := &memberFinder{name: name, kinds: kinds, seen: make(map[database.Ptr]bool)}
	err := l.index.Walk(func(rec database.Ptr) (bool, error) {
		nt, err := readNodeType(l.db, rec)
		if err != nil {
			return false, err
		}
		if nt != CStructure {
			return true, nil
		}
		s, err := l.getStructure(rec)
		if err != nil {
			return false, err
		}
		return true, s.Accept(f)
	})
	if err != nil {
		return nil, err
	}
	return f.found, nil
}

// LookupBindings is FindBindings falling back to FindMemberBindings when
// the index has no match.
func (l *CLinkage) LookupBindings(name string, kinds ...NodeType) ([]Binding, error) {
	bs, err := l.FindBindings(name, kinds...)
	if err != nil || len(bs) > 0 {
		return bs, err
	}
	return l.FindMemberBindings(name, kinds...)
}

// FindBindingsByPrefix returns up to limit indexed bindings whose name starts
// with prefix, in index order.
func (l *CLinkage) FindBindingsByPrefix(prefix string, caseSensitive bool, limit int) ([]Binding, error) {
	recs, err := FindBindingsByPrefix(l.index, l.db, prefix, caseSensitive, limit)
	if err != nil {
		return nil, err
	}
	return l.bindings(recs)
}

func (l *CLinkage) bindings(recs []database.Ptr) ([]Binding, error) {
	out := make([]Binding, 0, len(recs))
	for _, rec := range recs {
		b, err := l.getBinding(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
