package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchgate/internal/config"
	"github.com/Aman-CERP/searchgate/internal/errors"
	"github.com/Aman-CERP/searchgate/pkg/version"
)

var envVars = []string{
	"SEARCHGATE_INDEX_ROOT", "SEARCHGATE_LISTEN", "ALLOWED_ORIGINS",
	"SEARCHGATE_REDIS_ADDRS", "SEARCHGATE_JOURNAL", "SEARCHGATE_LOG_LEVEL",
}

// testWorkspace isolates a test in a temp directory with a config file
// pointing the index root and journal into it.
func testWorkspace(t *testing.T, journal bool) string {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	dir := t.TempDir()
	t.Chdir(dir)

	content := "paths:\n  index_root: " + filepath.Join(dir, "indexes") + "\n" +
		"logging:\n  level: error\n" +
		"locking:\n  retry_delay: 1ms\n"
	if journal {
		content += "journal:\n  path: " + filepath.Join(dir, "journal.db") + "\n"
	}
	path := filepath.Join(dir, "searchgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(&bytes.Buffer{})
	if stdin != "" {
		root.SetIn(strings.NewReader(stdin))
	}
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRoot_HasSubcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"serve", "index", "query", "drop", "size", "stats", "config", "version"} {
		found, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, found.Name())
	}
}

func TestVersionCmd_DefaultOutput(t *testing.T) {
	// Given: a config flag pointing nowhere, which version must not load
	out, err := run(t, "", "version", "--config", "/does/not/exist.yaml")

	// Then: the full version string is printed
	require.NoError(t, err)
	assert.Contains(t, out, "searchgate")
	assert.Contains(t, out, version.Version)
	assert.Contains(t, out, "commit")
}

func TestVersionCmd_ShortAndJSON(t *testing.T) {
	out, err := run(t, "", "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))

	out, err = run(t, "", "version", "--json")
	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info["version"])
	assert.Contains(t, info, "go_version")
}

func TestMissingExplicitConfig(t *testing.T) {
	testWorkspace(t, false)

	_, err := run(t, "", "size", "--config", "missing.yaml")

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigNotFound))
}

func TestConfigShow(t *testing.T) {
	dir := testWorkspace(t, false)

	// When: showing the discovered configuration
	out, err := run(t, "", "config", "show")

	// Then: file values and defaults appear in YAML
	require.NoError(t, err)
	assert.Contains(t, out, "index_root: "+filepath.Join(dir, "indexes"))
	assert.Contains(t, out, "default_field: content")

	out, err = run(t, "", "config", "show", "--json")
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Contains(t, m, "query")
}

func TestConfigPath(t *testing.T) {
	testWorkspace(t, false)

	out, err := run(t, "", "config", "path")

	require.NoError(t, err)
	assert.Equal(t, "searchgate.yaml", strings.TrimSpace(out))
}

func TestConfigInit(t *testing.T) {
	dir := testWorkspace(t, false)
	target := filepath.Join(dir, "conf", "new.yaml")

	// When: creating a new config file
	out, err := run(t, "", "config", "init", target)

	// Then: it exists and holds the defaults
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "identity_field: uuid")

	// And: a second run refuses to overwrite without --force
	_, err = run(t, "", "config", "init", target)
	assert.Error(t, err)
	_, err = run(t, "", "config", "init", target, "--force", "--plain")
	assert.NoError(t, err)

	// And: both forms load cleanly
	_, err = run(t, "", "config", "show", "--config", target)
	assert.NoError(t, err)
}

func TestConfigInit_TemplateMatchesDefaults(t *testing.T) {
	testWorkspace(t, false)
	require.NoError(t, os.Remove("searchgate.yaml"))

	_, err := run(t, "", "config", "init")
	require.NoError(t, err)

	cfg, err := config.Load("searchgate.yaml")
	require.NoError(t, err)
	defaults := config.NewConfig()
	defaults.Queue.Consumer = cfg.Queue.Consumer
	assert.Equal(t, defaults, cfg)
}

func TestIndexQueryStatsDrop(t *testing.T) {
	testWorkspace(t, true)
	batchFile := "batch.json"
	require.NoError(t, os.WriteFile(batchFile, []byte(`[
		{"indexName":"blog","documents":[{"uuid":"u1","content":"hello world"},{"uuid":"u2","content":"other"}]},
		{"indexName":"news","documents":[{"uuid":"n1","content":"hello news","slug":null}]}
	]`), 0o644))

	// Given: a batch applied from a file
	out, err := run(t, "", "index", batchFile)
	require.NoError(t, err)
	assert.Contains(t, out, "blog")
	assert.Contains(t, out, "committed")

	// When: querying the default field
	out, err = run(t, "", "query", "blog", "hello")

	// Then: only the matching document is returned
	require.NoError(t, err)
	var resp struct {
		Documents      []map[string]string `json:"documents"`
		TotalDocuments string              `json:"totalDocuments"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "1", resp.TotalDocuments)
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, "u1", resp.Documents[0]["uuid"])

	// And: a deletion piped on stdin as JSON lines removes it
	out, err = run(t, `{"indexName":"blog","documents":[{"deleted":true,"uuid":"u1"}]}`+"\n", "index", "-", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"deleted": 1`)
	out, err = run(t, "", "query", "blog", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, `"totalDocuments": "0"`)

	// And: the journal lists every index outcome
	out, err = run(t, "", "stats", "--json")
	require.NoError(t, err)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Len(t, entries, 3)

	out, err = run(t, "", "stats", "--index", "news")
	require.NoError(t, err)
	assert.Contains(t, out, "news")
	assert.NotContains(t, out, "blog")

	// And: size reports storage, and drop removes the index
	out, err = run(t, "", "size")
	require.NoError(t, err)
	assert.Contains(t, out, "Total size of index storage:")
	assert.Contains(t, out, "blog")

	out, err = run(t, "", "drop", "blog")
	require.NoError(t, err)
	assert.Contains(t, out, "Dropped index blog")

	_, err = run(t, "", "query", "blog", "hello")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeIndexNotFound))
}

func TestQuery_SyntaxError(t *testing.T) {
	testWorkspace(t, false)
	_, err := run(t, `[{"indexName":"blog","documents":[{"uuid":"u1","content":"x"}]}]`, "index")
	require.NoError(t, err)

	_, err = run(t, "", "query", "blog", "title:")

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeQuerySyntax))
}

func TestIndex_RejectsUnknownFormat(t *testing.T) {
	testWorkspace(t, false)

	_, err := run(t, "[]", "index", "--format", "xml")

	assert.ErrorContains(t, err, "unsupported format")
}

func TestStats_JournalDisabled(t *testing.T) {
	testWorkspace(t, false)

	_, err := run(t, "", "stats")

	assert.ErrorContains(t, err, "journal is disabled")
}

func TestSize_EmptyRoot(t *testing.T) {
	testWorkspace(t, false)

	out, err := run(t, "", "size", "--json")

	require.NoError(t, err)
	var usage map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &usage))
	assert.EqualValues(t, 0, usage["totalBytes"])
}

func TestDoctor_JSON(t *testing.T) {
	dir := testWorkspace(t, false)

	out, err := run(t, "", "doctor", "--json")

	// File descriptor limits vary by machine; only the shape is asserted.
	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results), "err=%v", err)
	require.Len(t, results, 4)
	assert.Equal(t, "index_root_writable", results[0]["name"])
	assert.Equal(t, "PASS", results[0]["status"])
	assert.Equal(t, "SKIP", results[3]["status"])
	assert.DirExists(t, filepath.Join(dir, "indexes"))
}

func TestProfileFlags_WriteFiles(t *testing.T) {
	dir := testWorkspace(t, false)
	heap := filepath.Join(dir, "heap.prof")

	_, err := run(t, "", "size", "--profile-mem", heap)

	require.NoError(t, err)
	info, err := os.Stat(heap)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestServe_UnreachableRedisStartsNothing(t *testing.T) {
	// Given: the queue enabled against a port nothing listens on
	testWorkspace(t, false)
	t.Setenv("SEARCHGATE_REDIS_ADDRS", "127.0.0.1:1")
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	// When: serving
	_, err = run(t, "", "serve", "--listen", addr)

	// Then: it fails on the client and the HTTP address was never taken
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
	l, err = net.Listen("tcp", addr)
	require.NoError(t, err)
	_ = l.Close()
}
