package main_test

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildBinary compiles the pdom binary and returns the path.
func buildBinary(t *testing.T) string {
	t.Helper()
	binName := "pdom"
	if runtime.GOOS == "windows" {
		binName += ".exe"
	}
	bin := filepath.Join(t.TempDir(), binName)
	cmd := exec.Command("go", "build", "-o", bin, ".")
	cmd.Dir = filepath.Join(projectRoot(t), "cmd", "pdom")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=1")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "build failed: %s", string(out))
	return bin
}

// projectRoot walks up from this file's directory to find go.mod.
func projectRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "runtime.Caller failed")
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		require.NotEqual(t, parent, dir, "could not find project root")
		dir = parent
	}
}

// createCFixture creates a directory with a .git dir and two C units.
func createCFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))

	files := map[string]string{
		"shapes.h": `struct point { int x; int y; };
enum axis { AXIS_X, AXIS_Y = 4 };
int norm(struct point p);
`,
		"shapes.c": `int norm(struct point p)
{
	return p.x * p.x + p.y * p.y;
}

int main(void)
{
	struct point p = {3, 4};
	return norm(p);
}
`,
	}
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	return dir
}

// indexFixture builds the binary and indexes a C fixture.
func indexFixture(t *testing.T) (bin, fixtureDir string) {
	t.Helper()
	bin = buildBinary(t)
	fixtureDir = createCFixture(t)

	cmd := exec.Command(bin, "index", fixtureDir)
	cmd.Dir = fixtureDir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "index failed: %s", string(out))
	require.FileExists(t, filepath.Join(fixtureDir, ".pdom", "index.pdom"))
	return bin, fixtureDir
}

// run executes the binary in dir and returns stdout and stderr.
func run(t *testing.T, bin, dir string, args ...string) (stdout, stderr string) {
	t.Helper()
	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	_ = cmd.Run()
	return stdoutBuf.String(), stderrBuf.String()
}

// runJSON executes a command and parses its CLIResult envelope.
func runJSON(t *testing.T, bin, dir string, args ...string) map[string]any {
	t.Helper()
	stdout, stderr := run(t, bin, dir, args...)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &result), "invalid JSON output: %s (stderr: %s)", stdout, stderr)
	return result
}

func TestCLI_Index_CreatesDatabase(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin, fixture := indexFixture(t)

	result := runJSON(t, bin, fixture, "query", "files")
	files, ok := result["results"].([]any)
	require.True(t, ok)
	assert.Len(t, files, 2)
}

func TestCLI_Index_SecondRunSkips(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin, fixture := indexFixture(t)

	_, stderr := run(t, bin, fixture, "index", fixture)
	assert.Contains(t, stderr, "0 indexed, 2 skipped")

	_, stderr = run(t, bin, fixture, "index", "--force", fixture)
	assert.Contains(t, stderr, "Cleared database")
	assert.Contains(t, stderr, "2 indexed")
}

func TestCLI_Query_LeavesStoreUntouched(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin, fixture := indexFixture(t)
	dbPath := filepath.Join(fixture, ".pdom", "index.pdom")
	before, err := os.ReadFile(dbPath)
	require.NoError(t, err)

	result := runJSON(t, bin, fixture, "query", "binding", "norm")
	assert.Len(t, result["results"], 1)
	runJSON(t, bin, fixture, "script", "undefined")

	after, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	require.NoError(t, os.WriteFile(filepath.Join(fixture, "extra.c"), []byte("int added;\n"), 0o644))
	_, stderr := run(t, bin, fixture, "index", fixture)
	assert.Contains(t, stderr, "1 indexed, 2 skipped")
	result = runJSON(t, bin, fixture, "query", "binding", "added")
	assert.Len(t, result["results"], 1)
}

func TestCLI_Index_CustomDBPath(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin := buildBinary(t)
	fixture := createCFixture(t)
	customDB := filepath.Join(t.TempDir(), "custom.pdom")

	cmd := exec.Command(bin, "index", "--db", customDB, "--serial", fixture)
	cmd.Dir = fixture
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "index with --db failed: %s", string(out))
	assert.FileExists(t, customDB)
	assert.NoFileExists(t, filepath.Join(fixture, ".pdom", "index.pdom"))
}

func TestCLI_Query_Definitions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin, fixture := indexFixture(t)

	result := runJSON(t, bin, fixture, "query", "definitions", "norm", "--kind", "function")
	assert.Equal(t, "definitions", result["command"])
	occs, ok := result["results"].([]any)
	require.True(t, ok)
	require.Len(t, occs, 1)
	occ := occs[0].(map[string]any)
	assert.Equal(t, filepath.Join(fixture, "shapes.c"), occ["file"])
	assert.Equal(t, float64(1), occ["line"])
	assert.Equal(t, "definition", occ["role"])
}

func TestCLI_Query_Members(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin, fixture := indexFixture(t)

	result := runJSON(t, bin, fixture, "query", "fields", "point")
	fields := result["results"].([]any)
	require.Len(t, fields, 2)
	assert.Equal(t, "x", fields[0].(map[string]any)["name"])

	result = runJSON(t, bin, fixture, "query", "enumerators", "axis")
	values := result["results"].([]any)
	require.Len(t, values, 2)
	assert.Equal(t, float64(4), values[1].(map[string]any)["value"])

	result = runJSON(t, bin, fixture, "query", "params", "norm")
	params := result["results"].([]any)
	require.Len(t, params, 1)
	assert.Equal(t, "struct point", params[0].(map[string]any)["type"])
}

func TestCLI_Query_SearchPagination(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin, fixture := indexFixture(t)

	result := runJSON(t, bin, fixture, "query", "search", "", "--limit", "2")
	assert.Len(t, result["results"], 2)
	assert.Greater(t, result["total_count"], float64(2))
}

func TestCLI_Query_Errors(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin := buildBinary(t)
	fixture := createCFixture(t)

	t.Run("no database", func(t *testing.T) {
		result := runJSON(t, bin, fixture, "query", "stats")
		assert.Contains(t, result["error"], "database not found")
	})

	cmd := exec.Command(bin, "index", fixture)
	cmd.Dir = fixture
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "index failed: %s", string(out))

	t.Run("unknown kind", func(t *testing.T) {
		result := runJSON(t, bin, fixture, "query", "binding", "norm", "--kind", "method")
		assert.Contains(t, result["error"], `invalid kind "method"`)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, stderr := run(t, bin, fixture, "--format", "yaml", "query", "stats")
		assert.Contains(t, stderr, "invalid format")
	})
}

func TestCLI_Query_FormatText(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin, fixture := indexFixture(t)

	stdout, _ := run(t, bin, fixture, "--format", "text", "query", "references", "norm")
	assert.False(t, strings.HasPrefix(strings.TrimSpace(stdout), "{"), "text format should not produce JSON")
	assert.Contains(t, stdout, "shapes.c:9:9 reference")
}

func TestCLI_Script(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin, fixture := indexFixture(t)

	result := runJSON(t, bin, fixture, "script", "enums", "axis")
	assert.Equal(t, "script enums", result["command"])
	assert.Equal(t, []any{"axis.AXIS_X = 0", "axis.AXIS_Y = 4"}, result["results"])

	result = runJSON(t, bin, fixture, "scripts")
	assert.Contains(t, result["results"], "layout")

	result = runJSON(t, bin, fixture, "script", "missing")
	assert.NotEmpty(t, result["error"])
}
