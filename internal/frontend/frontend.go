// Package frontend parses C source with tree-sitter and reports every
// binding occurrence it finds as a sema.Name, in source order.
//
// The translation is syntactic: there is no preprocessor, so macros are not
// expanded and both branches of conditional sections are read. Typedef
// names are resolved against the declarations seen earlier in the same
// unit.
package frontend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"

	"github.com/jward/pdom/internal/sema"
)

// Version identifies the translation rules. The engine re-indexes every
// unit when it changes.
const Version = "1"

// Diagnostic is a problem found while translating a unit. Diagnostics never
// stop translation.
type Diagnostic struct {
	Loc     sema.Location `json:"location"`
	Message string        `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Loc, d.Message)
}

// Unit is the translation of one source file.
type Unit struct {
	Path        string
	Names       []sema.Name
	Diagnostics []Diagnostic
}

// Frontend translates C files. It is safe for concurrent use: every Parse
// call uses its own parser.
type Frontend struct {
	logger *slog.Logger
}

// Option configures a Frontend.
type Option func(*Frontend)

// WithLogger sets the logger used for per-unit debug output.
func WithLogger(l *slog.Logger) Option {
	return func(f *Frontend) {
		if l != nil {
			f.logger = l
		}
	}
}

// New returns a Frontend.
func New(opts ...Option) *Frontend {
	f := &Frontend{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// sourceExts are the extensions IsSource accepts.
var sourceExts = map[string]bool{".c": true, ".h": true}

// IsSource reports whether path names a C source or header file.
func IsSource(path string) bool {
	return sourceExts[strings.ToLower(filepath.Ext(path))]
}

// ParseFile reads and translates the file at path.
func (f *Frontend) ParseFile(ctx context.Context, path string) (*Unit, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return f.Parse(ctx, path, src)
}

// Parse translates src, reporting locations against path.
func (f *Frontend) Parse(ctx context.Context, path string, src []byte) (*Unit, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(c.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	t := newTranslator(path, src)
	root := tree.RootNode()
	if root.HasError() {
		t.syntaxErrors(root)
	}
	t.translationUnit(root)

	f.logger.Debug("unit translated", "path", path, "names", len(t.names), "diagnostics", len(t.diags))
	return &Unit{Path: path, Names: t.names, Diagnostics: t.diags}, nil
}
