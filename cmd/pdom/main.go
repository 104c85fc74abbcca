package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jward/pdom"
	"github.com/spf13/cobra"
)

var (
	flagDB         string
	flagFormat     string
	flagLogLevel   string
	flagScriptsDir string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "pdom",
	Short:         "Persistent symbol database for C sources",
	Long:          "pdom parses C sources with tree-sitter, resolves their names against C scoping rules, and keeps every binding with its declarations, definitions and references in a persistent store.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		_, err := parseLogLevel(flagLogLevel)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .pdom/index.pdom relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&flagScriptsDir, "scripts-dir", "", "load scripts from disk path instead of embedded")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(scriptsCmd)
}

var (
	flagForce   bool
	flagSerial  bool
	flagWorkers int
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index the C sources under a directory",
	Long:  "Translates every .c and .h file under path (git-tracked files when path is in a repository) and records its bindings. Unchanged files are skipped.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "discard the database and reindex from scratch")
	indexCmd.Flags().BoolVar(&flagSerial, "serial", false, "translate files one at a time")
	indexCmd.Flags().IntVar(&flagWorkers, "workers", 0, "translation workers (default: number of CPUs)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	dbPath := resolveDBPath(findRepoRoot(targetDir))
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}

	opts, err := engineOptions()
	if err != nil {
		return err
	}
	opts = append(opts, pdom.WithParallel(!flagSerial))
	if flagWorkers > 0 {
		opts = append(opts, pdom.WithWorkers(flagWorkers))
	}

	engine, err := pdom.New(dbPath, opts...)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer engine.Close()

	if flagForce {
		if err := engine.Reset(); err != nil {
			return fmt.Errorf("resetting database for --force: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Cleared database: %s\n", dbPath)
	}

	report, err := engine.IndexDirectory(context.Background(), targetDir)
	if err != nil {
		return fmt.Errorf("indexing: %w", err)
	}
	if err := engine.Flush(); err != nil {
		return fmt.Errorf("flushing: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Indexed %s in %s (%d indexed, %d skipped, %d removed, %d diagnostics)\n",
		targetDir,
		time.Since(start).Round(time.Millisecond),
		report.Indexed, report.Skipped, report.Removed, report.Diagnostics,
	)
	for _, path := range report.Failed {
		fmt.Fprintf(os.Stderr, "  failed: %s\n", path)
	}
	fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath)

	if err := report.Err(); err != nil {
		return fmt.Errorf("indexing: %w", err)
	}
	return nil
}

// engineOptions returns the options shared by every command that opens
// the database.
func engineOptions() ([]pdom.Option, error) {
	level, err := parseLogLevel(flagLogLevel)
	if err != nil {
		return nil, err
	}
	opts := []pdom.Option{pdom.WithLogger(pdom.NewTextLogger(os.Stderr, level))}
	if flagScriptsDir != "" {
		opts = append(opts, pdom.WithScriptsDir(flagScriptsDir))
	}
	return opts, nil
}

// openEngine opens an existing database from the --db flag path (or default)
// for queries. It never writes, so it is safe next to a running index.
func openEngine() (*pdom.Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	dbPath := resolveDBPath(findRepoRoot(cwd))
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'pdom index' first)", dbPath)
	}
	opts, err := engineOptions()
	if err != nil {
		return nil, err
	}
	return pdom.New(dbPath, append(opts, pdom.WithReadOnly(true))...)
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: must be debug, info, warn or error", s)
	}
	return level, nil
}

// resolveTargetDir returns the absolute path of the directory to index.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag or the default.
func resolveDBPath(repoRoot string) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(repoRoot, flagDB)
	}
	return filepath.Join(repoRoot, ".pdom", "index.pdom")
}
