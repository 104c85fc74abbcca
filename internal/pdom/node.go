package pdom

import (
	"fmt"

	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/sema"
)

// NodeType is the discriminant tag stored at offset 0 of every node record.
type NodeType int32

const (
	NodeLinkage NodeType = 1
	NodeFile    NodeType = 2

	CVariable       NodeType = 10
	CFunction       NodeType = 11
	CStructure      NodeType = 12
	CField          NodeType = 13
	CEnumeration    NodeType = 14
	CEnumerator     NodeType = 15
	CTypedef        NodeType = 16
	CParameter      NodeType = 17
	CBasicType      NodeType = 18
	CFunctionType   NodeType = 19
	CMarshalledType NodeType = 20
)

func (t NodeType) String() string {
	switch t {
	case NodeLinkage:
		return "linkage"
	case NodeFile:
		return "file"
	case CVariable:
		return "variable"
	case CFunction:
		return "function"
	case CStructure:
		return "structure"
	case CField:
		return "field"
	case CEnumeration:
		return "enumeration"
	case CEnumerator:
		return "enumerator"
	case CTypedef:
		return "typedef"
	case CParameter:
		return "parameter"
	case CBasicType:
		return "basic_type"
	case CFunctionType:
		return "function_type"
	case CMarshalledType:
		return "marshalled_type"
	default:
		return fmt.Sprintf("node(%d)", int32(t))
	}
}

// ParseNodeType maps a kind name as printed by String back to its tag.
func ParseNodeType(s string) (NodeType, bool) {
	for _, t := range []NodeType{CVariable, CFunction, CStructure, CField, CEnumeration,
		CEnumerator, CTypedef, CParameter} {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

// IsBinding reports whether records of this type carry the binding header.
func (t NodeType) IsBinding() bool {
	switch t {
	case CVariable, CFunction, CStructure, CField, CEnumeration, CEnumerator, CTypedef:
		return true
	}
	return false
}

// Node header.
const (
	offNodeType    = 0
	offParent      = 8
	nodeRecordSize = 16
)

// Named node.
const (
	offName             = nodeRecordSize
	namedNodeRecordSize = offName + database.PtrSize
)

// Binding header.
const (
	offFirstDecl      = namedNodeRecordSize
	offFirstDef       = offFirstDecl + database.PtrSize
	offFirstRef       = offFirstDef + database.PtrSize
	offLocalToFile    = offFirstRef + database.PtrSize
	bindingRecordSize = offLocalToFile + database.PtrSize
)

// Node is a record read back through CLinkage.GetNode.
type Node interface {
	Record() database.Ptr
	NodeType() NodeType
	// Delete releases the sub-structures the node owns and then the record.
	// It does not unlink the node from lists or indexes that refer to it.
	Delete() error
}

// allocateNode allocates size bytes and initializes the node header. The
// rest of the record is zeroed so pointer fields and list heads read as null.
func allocateNode(db *database.Database, nt NodeType, parent database.Ptr, size int) (database.Ptr, error) {
	rec, err := db.Malloc(size)
	if err != nil {
		return 0, err
	}
	if err := initializeNode(db, rec, size, nt, parent); err != nil {
		db.Free(rec)
		return 0, err
	}
	return rec, nil
}

func initializeNode(db *database.Database, rec database.Ptr, size int, nt NodeType, parent database.Ptr) error {
	if err := db.Clear(rec, size); err != nil {
		return err
	}
	if err := db.PutInt(rec+offNodeType, int32(nt)); err != nil {
		return err
	}
	return db.PutRecPtr(rec+offParent, parent)
}

func readNodeType(db *database.Database, rec database.Ptr) (NodeType, error) {
	v, err := db.GetInt(rec + offNodeType)
	return NodeType(v), err
}

// readNodeName returns the name of a named node record.
func readNodeName(db *database.Database, rec database.Ptr) (string, error) {
	nameRec, err := db.GetRecPtr(rec + offName)
	if err != nil || nameRec == 0 {
		return "", err
	}
	return database.GetString(db, nameRec).String()
}

type node struct {
	linkage *CLinkage
	record  database.Ptr
}

func (n *node) Record() database.Ptr { return n.record }

func (n *node) db() *database.Database { return n.linkage.db }

// ParentRecord returns the owner record: the linkage for global bindings.
func (n *node) ParentRecord() (database.Ptr, error) {
	return n.db().GetRecPtr(n.record + offParent)
}

func (n *node) free() error {
	return n.db().Free(n.record)
}

type namedNode struct {
	node
}

// Name returns the stored name.
func (n *namedNode) Name() (string, error) {
	return readNodeName(n.db(), n.record)
}

func (n *namedNode) setName(name string) error {
	db := n.db()
	old, err := db.GetRecPtr(n.record + offName)
	if err != nil {
		return err
	}
	var rec database.Ptr
	if name != "" {
		s, err := database.NewString(db, name)
		if err != nil {
			return err
		}
		rec = s.Record()
	}
	if err := db.PutRecPtr(n.record+offName, rec); err != nil {
		return err
	}
	if old != 0 {
		return database.GetString(db, old).Delete()
	}
	return nil
}

func (n *namedNode) deleteName() error {
	return n.setName("")
}

// Binding is a persisted named entity.
type Binding interface {
	Node
	Name() (string, error)
	ParentRecord() (database.Ptr, error)
	LocalToFile() (database.Ptr, error)
	HasDefinition() (bool, error)
	HasDeclaration() (bool, error)
	Occurrences(role ...sema.Role) ([]Occurrence, error)

	base() *bindingBase
}

type bindingBase struct {
	namedNode
}

func (b *bindingBase) base() *bindingBase { return b }

// LocalToFile returns the file record for file-local bindings and 0 for
// globally visible ones.
func (b *bindingBase) LocalToFile() (database.Ptr, error) {
	return b.db().GetRecPtr(b.record + offLocalToFile)
}

func (b *bindingBase) setLocalToFile(file database.Ptr) error {
	return b.db().PutRecPtr(b.record+offLocalToFile, file)
}

// HasDefinition reports whether a definition of the binding is recorded.
func (b *bindingBase) HasDefinition() (bool, error) {
	p, err := b.firstName(sema.RoleDefinition)
	return p != 0, err
}

// HasDeclaration reports whether a declaration or definition is recorded.
func (b *bindingBase) HasDeclaration() (bool, error) {
	if ok, err := b.HasDefinition(); ok || err != nil {
		return ok, err
	}
	p, err := b.firstName(sema.RoleDeclaration)
	return p != 0, err
}

func firstNameOffset(role sema.Role) database.Ptr {
	switch role {
	case sema.RoleDefinition:
		return offFirstDef
	case sema.RoleReference:
		return offFirstRef
	default:
		return offFirstDecl
	}
}

func (b *bindingBase) firstName(role sema.Role) (database.Ptr, error) {
	return b.db().GetRecPtr(b.record + firstNameOffset(role))
}

// deleteBinding frees the name string and the record.
func (b *bindingBase) deleteBinding() error {
	if err := b.deleteName(); err != nil {
		return err
	}
	return b.free()
}
