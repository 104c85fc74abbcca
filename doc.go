// Package pdom maintains a persistent database of the symbols in C
// sources: variables, functions, structures and unions, fields,
// enumerations and enumerators, typedefs and parameters, together with
// every place they are declared, defined and referenced.
//
// # Pipeline
//
// Indexing a file runs two stages:
//
//  1. Translate: the front-end parses the file with tree-sitter and
//     resolves each identifier against C scopes, producing the bindings
//     it names and the role of each occurrence.
//
//  2. Store: the PDOM adapts each binding into the record store under its
//     write lock. A binding that already exists (same name, kind and
//     owner, or the same file for static ones) is updated in place, so
//     every translation unit that names a global symbol shares one record.
//
// A SQLite registry next to the store remembers which files were indexed,
// their content hash and the set of bindings they touched.
//
// # Usage
//
//	e, err := pdom.New("project.pdom")
//	if err != nil { ... }
//	defer e.Close()
//
//	report, err := e.IndexDirectory(ctx, "path/to/project")
//
//	q := e.Query()
//	defs, err := q.Definitions("main", pdom.KindFunction)
//	fields, err := q.Fields("point")
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] answers:
//
//   - [QueryBuilder.FindBinding]: bindings by exact name and kind.
//   - [QueryBuilder.Search]: bindings by name prefix, paginated.
//   - [QueryBuilder.Definitions], [QueryBuilder.Declarations] and
//     [QueryBuilder.References]: occurrence sites.
//   - [QueryBuilder.Fields], [QueryBuilder.Enumerators] and
//     [QueryBuilder.Parameters]: members of aggregates and functions.
//   - [QueryBuilder.Describe]: everything recorded for a binding.
//   - [QueryBuilder.FilesForBinding]: units that touched a binding.
//
// # Incremental indexing
//
// [Engine.IndexFiles] skips files whose content hash matches the registry.
// Records are never deleted from the store; [Engine.Reset] rebuilds it
// from scratch.
//
// # Scripts
//
// [Engine.RunScript] runs Risor scripts with the query API exposed as
// globals. The scripts shipped in the scripts package are embedded; use
// [WithScriptsDir] to load them from disk.
package pdom
