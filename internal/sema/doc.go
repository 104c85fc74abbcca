// Package sema is the semantic model shared by the C front-end and the
// symbol database. The front-end produces Name events carrying a Binding and
// the role of the occurrence; the database adapts those bindings into
// persistent records.
//
// Bindings are described by interfaces so that persisted records can stand in
// for declared ones where a type is expected. The Decl types in this package
// are the concrete values the front-end builds.
package sema
