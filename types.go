package pdom

import (
	"github.com/jward/pdom/internal/frontend"
	symdb "github.com/jward/pdom/internal/pdom"
	"github.com/jward/pdom/internal/store"
)

// Public aliases for the internal types that appear in the Engine and
// QueryBuilder API.

type Store = store.Store
type File = store.File
type Binding = symdb.Binding
type Occurrence = symdb.Occurrence
type Kind = symdb.NodeType
type Diagnostic = frontend.Diagnostic

// Binding kinds accepted by FindBinding and reported by Describe.
const (
	KindVariable    = symdb.CVariable
	KindFunction    = symdb.CFunction
	KindStructure   = symdb.CStructure
	KindField       = symdb.CField
	KindEnumeration = symdb.CEnumeration
	KindEnumerator  = symdb.CEnumerator
	KindTypedef     = symdb.CTypedef
	KindParameter   = symdb.CParameter
)

// ParseKind maps a kind name such as "function" or "structure" to its Kind.
func ParseKind(s string) (Kind, bool) {
	return symdb.ParseNodeType(s)
}
