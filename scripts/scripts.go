// Package scripts embeds the Risor query scripts shipped with pdom.
//
// Each top-level .risor file is a script runnable with `pdom script <name>`.
// Scripts see the command-line arguments as the global args and the query
// functions registered by the engine (find_binding, search, definitions,
// declarations, references, describe, fields, enumerators, parameters,
// files, unit_errors, stats). The value of a script's last expression is
// its output.
package scripts

import "embed"

// FS holds the embedded scripts.
//
//go:embed *.risor
var FS embed.FS
