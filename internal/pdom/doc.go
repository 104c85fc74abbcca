// Package pdom is the persistent C symbol database.
//
// Every persistent entity is a fixed-layout record in a database.Database.
// Records start with a common node header (node type tag, parent record);
// named nodes add a name string and bindings add the heads of their name
// occurrence lists and a local-to-file record:
//
//	offset  size  field
//	0       4     node type
//	8       8     parent
//	16      8     name            (named nodes)
//	24      8     first declaration (bindings)
//	32      8     first definition
//	40      8     first reference
//	48      8     local-to-file
//
// Concrete kinds append their own fields after the binding header. Offsets are
// append-only within a format version.
//
// CLinkage adapts front-end bindings (package sema) into records: it resolves
// the owner, looks the binding up in the per-linkage B-tree or the owner's
// member list, and creates or updates the record. GetNode reads the tag of a
// record and returns the matching wrapper.
//
// A PDOM has one writer at a time and any number of readers. Update and View
// take the advisory write and read locks; CLinkage methods assume the caller
// holds the appropriate lock.
package pdom
