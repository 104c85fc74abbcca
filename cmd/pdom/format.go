package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jward/pdom"
)

// formatOccurrencesText formats occurrences as "file:line:col role" lines.
func formatOccurrencesText(w io.Writer, occs []pdom.Occurrence) {
	for _, o := range occs {
		fmt.Fprintf(w, "%s:%d:%d %s\n", o.File, o.Line, o.Col, o.Role)
	}
}

// formatBindingsText formats bindings as aligned columns.
func formatBindingsText(w io.Writer, infos []pdom.BindingInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORD\tNAME\tKIND\tTYPE\tOWNER\tLOCAL TO\tDEFINED")
	for _, b := range infos {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%t\n",
			b.Record, b.Name, b.Kind, b.Type, b.Owner, b.FileLocal, b.Defined)
	}
	tw.Flush()
}

// formatMembersText formats fields or parameters as aligned columns.
func formatMembersText(w io.Writer, members []pdom.Member) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE")
	for _, m := range members {
		fmt.Fprintf(tw, "%s\t%s\n", m.Name, m.Type)
	}
	tw.Flush()
}

// formatEnumeratorsText formats enumerators as "NAME = value" lines.
func formatEnumeratorsText(w io.Writer, values []pdom.EnumeratorValue) {
	for _, v := range values {
		fmt.Fprintf(w, "%s = %d\n", v.Name, v.Value)
	}
}

// formatFilesText formats registered units as aligned columns.
func formatFilesText(w io.Writer, files []*pdom.File) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATH\tBINDINGS\tNAMES\tINDEXED")
	for _, f := range files {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n",
			f.ID, f.Path, f.BindingCount, f.NameCount, f.LastIndexed.Format(time.RFC3339))
	}
	tw.Flush()
}

// formatDetailText formats one described binding as readable text.
func formatDetailText(w io.Writer, d *pdom.Detail) {
	fmt.Fprintf(w, "%s %s (#%d)\n", d.Kind, d.Name, d.Record)
	if d.Type != "" {
		fmt.Fprintf(w, "Type: %s\n", d.Type)
	}
	if d.Owner != "" {
		fmt.Fprintf(w, "Owner: %s\n", d.Owner)
	}
	if d.FileLocal != "" {
		fmt.Fprintf(w, "Local to: %s\n", d.FileLocal)
	}
	if d.Signature != "" {
		fmt.Fprintf(w, "Signature: %s\n", d.Signature)
	}
	if d.Key != "" {
		fmt.Fprintf(w, "Key: %s\n", d.Key)
	}
	if d.Value != nil {
		fmt.Fprintf(w, "Value: %d\n", *d.Value)
	}
	if d.Min != nil && d.Max != nil {
		fmt.Fprintf(w, "Range: %d..%d\n", *d.Min, *d.Max)
	}
	if mods := annotationNames(d); len(mods) > 0 {
		fmt.Fprintf(w, "Annotations: %s\n", strings.Join(mods, " "))
	}

	if len(d.Fields) > 0 {
		fmt.Fprintln(w, "\nFields:")
		formatMembersText(w, d.Fields)
	}
	if len(d.Parameters) > 0 {
		fmt.Fprintln(w, "\nParameters:")
		formatMembersText(w, d.Parameters)
	}
	if len(d.Enumerators) > 0 {
		fmt.Fprintln(w, "\nEnumerators:")
		formatEnumeratorsText(w, d.Enumerators)
	}
	if len(d.Occurrences) > 0 {
		fmt.Fprintln(w, "\nOccurrences:")
		formatOccurrencesText(w, d.Occurrences)
	}
}

func annotationNames(d *pdom.Detail) []string {
	a := d.Annotations
	if a == nil {
		return nil
	}
	var out []string
	for _, m := range []struct {
		set  bool
		name string
	}{
		{a.Static, "static"},
		{a.Extern, "extern"},
		{a.Auto, "auto"},
		{a.Register, "register"},
		{a.Inline, "inline"},
		{a.Varargs, "varargs"},
		{a.NoReturn, "noreturn"},
	} {
		if m.set {
			out = append(out, m.name)
		}
	}
	return out
}

// formatStatsText formats store statistics as readable text.
func formatStatsText(w io.Writer, s *pdom.Stats) {
	fmt.Fprintln(w, "Store Statistics")
	fmt.Fprintln(w, "================")
	fmt.Fprintf(w, "Units: %d\n", s.Units)
	fmt.Fprintf(w, "Bindings: %d\n", s.Bindings)
	fmt.Fprintf(w, "Store size: %d bytes\n", s.StoreBytes)
	fmt.Fprintf(w, "Format version: %d\n", s.Version)
	fmt.Fprintf(w, "Cache: %d hits, %d misses\n", s.CacheHits, s.CacheMisses)
}

// formatValueText prints script results: one line per list element, sorted
// key: value lines for maps, and the value itself otherwise.
func formatValueText(w io.Writer, v any) {
	switch v := v.(type) {
	case []any:
		for _, item := range v {
			formatValueText(w, item)
		}
	case []string:
		for _, item := range v {
			fmt.Fprintln(w, item)
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s: %v\n", k, v[k])
		}
	default:
		fmt.Fprintln(w, v)
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []pdom.Occurrence:
		formatOccurrencesText(w, v)
	case []pdom.BindingInfo:
		formatBindingsText(w, v)
	case []pdom.Member:
		formatMembersText(w, v)
	case []pdom.EnumeratorValue:
		formatEnumeratorsText(w, v)
	case []*pdom.File:
		formatFilesText(w, v)
	case []*pdom.Detail:
		for i, d := range v {
			if i > 0 {
				fmt.Fprintln(w)
			}
			formatDetailText(w, d)
		}
	case *pdom.Stats:
		formatStatsText(w, v)
	case nil:
	case []any, []string, map[string]any, string, int64, float64, bool:
		formatValueText(w, v)
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	if result.TotalCount != nil {
		count := *result.TotalCount
		if shown := resultLen(result.Results); shown < count {
			fmt.Fprintf(w, "\nShowing %d of %d results\n", shown, count)
		}
	}
	return nil
}

// resultLen returns the length of a paginated result slice.
func resultLen(v any) int {
	switch r := v.(type) {
	case []pdom.BindingInfo:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	if slices.Contains(validFormats, format) {
		return nil
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
