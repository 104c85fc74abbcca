package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jward/pdom"
	"github.com/spf13/cobra"
)

var (
	flagLimit         int
	flagOffset        int
	flagKinds         []string
	flagCaseSensitive bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the symbol database",
	Long:  "Run queries against an indexed tree. Lines and columns are 1-based.",
}

func init() {
	queryCmd.PersistentFlags().StringSliceVar(&flagKinds, "kind", nil, "binding kinds to match (variable, function, structure, field, enumeration, enumerator, typedef, parameter)")

	searchCmd.Flags().IntVar(&flagLimit, "limit", 50, "pagination limit (max 500)")
	searchCmd.Flags().IntVar(&flagOffset, "offset", 0, "pagination offset")
	searchCmd.Flags().BoolVar(&flagCaseSensitive, "case-sensitive", false, "match the prefix case-sensitively")

	queryCmd.AddCommand(bindingCmd)
	queryCmd.AddCommand(definitionsCmd)
	queryCmd.AddCommand(declarationsCmd)
	queryCmd.AddCommand(referencesCmd)
	queryCmd.AddCommand(describeCmd)
	queryCmd.AddCommand(fieldsCmd)
	queryCmd.AddCommand(enumeratorsCmd)
	queryCmd.AddCommand(paramsCmd)
	queryCmd.AddCommand(searchCmd)
	queryCmd.AddCommand(filesCmd)
	queryCmd.AddCommand(filesForCmd)
	queryCmd.AddCommand(unitErrorsCmd)
	queryCmd.AddCommand(statsCmd)
}

// --- Helpers ---

// parseKinds maps --kind values to binding kinds.
func parseKinds(names []string) ([]pdom.Kind, error) {
	kinds := make([]pdom.Kind, 0, len(names))
	for _, n := range names {
		k, ok := pdom.ParseKind(n)
		if !ok {
			return nil, fmt.Errorf("invalid kind %q", n)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// resolveFilePath converts a file argument to an absolute path.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

// withQuery opens the database, runs fn against its QueryBuilder and
// writes the result.
func withQuery(command string, fn func(q *pdom.QueryBuilder) (CLIResult, error)) error {
	engine, err := openEngine()
	if err != nil {
		return outputError(command, err)
	}
	defer engine.Close()

	result, err := fn(engine.Query())
	if err != nil {
		return outputError(command, err)
	}
	result.Command = command
	return outputResult(result)
}

// byNameCmd builds a command that looks bindings up by name, filtered by
// --kind.
func byNameCmd[T any](use, short string, query func(q *pdom.QueryBuilder, name string, kinds ...pdom.Kind) ([]T, error)) *cobra.Command {
	command := use
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQuery(command, func(q *pdom.QueryBuilder) (CLIResult, error) {
				kinds, err := parseKinds(flagKinds)
				if err != nil {
					return CLIResult{}, err
				}
				items, err := query(q, args[0], kinds...)
				if err != nil {
					return CLIResult{}, err
				}
				return CLIResult{Results: nonNil(items)}, nil
			})
		},
	}
}

// memberCmd builds a command that lists the members of one named binding.
func memberCmd[T any](use, short string, query func(q *pdom.QueryBuilder, name string) ([]T, error)) *cobra.Command {
	command := use
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQuery(command, func(q *pdom.QueryBuilder) (CLIResult, error) {
				items, err := query(q, args[0])
				if err != nil {
					return CLIResult{}, err
				}
				return CLIResult{Results: nonNil(items)}, nil
			})
		},
	}
}

// nonNil keeps empty results as [] rather than null in JSON output.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// --- Binding lookups ---

var (
	bindingCmd      = byNameCmd("binding", "Find bindings by exact name", (*pdom.QueryBuilder).FindBinding)
	definitionsCmd  = byNameCmd("definitions", "List definition sites", (*pdom.QueryBuilder).Definitions)
	declarationsCmd = byNameCmd("declarations", "List declaration sites", (*pdom.QueryBuilder).Declarations)
	referencesCmd   = byNameCmd("references", "List reference sites", (*pdom.QueryBuilder).References)
	describeCmd     = byNameCmd("describe", "Show everything recorded for a binding", (*pdom.QueryBuilder).Describe)
	filesForCmd     = byNameCmd("files-for", "List the units that name a binding", (*pdom.QueryBuilder).FilesForBinding)

	fieldsCmd      = memberCmd("fields", "List the fields of a structure or union", (*pdom.QueryBuilder).Fields)
	enumeratorsCmd = memberCmd("enumerators", "List the enumerators of an enumeration", (*pdom.QueryBuilder).Enumerators)
	paramsCmd      = memberCmd("params", "List the parameters of a function", (*pdom.QueryBuilder).Parameters)
)

// --- Discovery ---

var searchCmd = &cobra.Command{
	Use:   "search <prefix>",
	Short: "Search bindings by name prefix",
	Long:  "Search for bindings whose name starts with prefix. Matching ignores case unless --case-sensitive is set.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	return withQuery("search", func(q *pdom.QueryBuilder) (CLIResult, error) {
		kinds, err := parseKinds(flagKinds)
		if err != nil {
			return CLIResult{}, err
		}
		filter := pdom.SearchFilter{Kinds: kinds, CaseSensitive: flagCaseSensitive}
		page := pdom.Pagination{Limit: flagLimit, Offset: flagOffset}
		result, err := q.Search(args[0], filter, page)
		if err != nil {
			return CLIResult{}, err
		}
		return CLIResult{Results: result.Items, TotalCount: &result.TotalCount}, nil
	})
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List indexed units",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery("files", func(q *pdom.QueryBuilder) (CLIResult, error) {
			files, err := q.Files()
			if err != nil {
				return CLIResult{}, err
			}
			return CLIResult{Results: nonNil(files)}, nil
		})
	},
}

var unitErrorsCmd = &cobra.Command{
	Use:   "unit-errors <file>",
	Short: "Show the diagnostics recorded for a unit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery("unit-errors", func(q *pdom.QueryBuilder) (CLIResult, error) {
			path, err := resolveFilePath(args[0])
			if err != nil {
				return CLIResult{}, err
			}
			msgs, err := q.UnitErrors(path)
			if err != nil {
				return CLIResult{}, err
			}
			return CLIResult{Results: nonNil(msgs)}, nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery("stats", func(q *pdom.QueryBuilder) (CLIResult, error) {
			stats, err := q.Stats()
			if err != nil {
				return CLIResult{}, err
			}
			return CLIResult{Results: stats}, nil
		})
	},
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(os.Stdout, result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}
