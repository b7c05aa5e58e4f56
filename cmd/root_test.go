package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/metagraph/internal/config"
	"github.com/zjrosen/metagraph/internal/identifier"
)

const testManifest = `artifacts:
  - name: api
    inputs: [api/schema.yaml]
  - name: docs
    inputs: [docs/index.md]
    depends_on: [api]
`

// setupWorkspace creates a workspace with a manifest and an explicit config
// file, so that no local or home config is picked up.
func setupWorkspace(t *testing.T) (root, configFile string) {
	t.Helper()
	root = t.TempDir()
	writeTestFile(t, root, "metagraph.yaml", testManifest)
	writeTestFile(t, root, "api/schema.yaml", "openapi: 3")
	writeTestFile(t, root, "docs/index.md", "# docs")

	configFile = filepath.Join(t.TempDir(), "config.yaml")
	writeTestFile(t, filepath.Dir(configFile), "config.yaml", "cache:\n  capacity: 100\n")
	return root, configFile
}

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o750))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o600))
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the CLI with args and returns everything it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

// ============================================================================
// status / graph
// ============================================================================

func TestStatus(t *testing.T) {
	root, configFile := setupWorkspace(t)

	out, err := execute(t, "status", "--config", configFile, "--root", root)
	require.NoError(t, err, out)
	require.Contains(t, out, "MID:artifact#api")
	require.Contains(t, out, "MID:artifact#docs")
	require.Contains(t, out, "CACHE")
	require.Contains(t, out, "/100 items")
	require.Contains(t, out, "3 edges, 2 providers")
}

func TestStatus_ManifestFlag(t *testing.T) {
	root, configFile := setupWorkspace(t)
	writeTestFile(t, root, "build/other.yaml", "artifacts:\n  - name: solo\n    inputs: [docs/index.md]\n")

	out, err := execute(t, "status", "--config", configFile, "--root", root, "--manifest", "build/other.yaml")
	require.NoError(t, err, out)
	require.Contains(t, out, "MID:artifact#solo")
	require.NotContains(t, out, "MID:artifact#api")
}

func TestStatus_MissingManifest(t *testing.T) {
	_, configFile := setupWorkspace(t)

	_, err := execute(t, "status", "--config", configFile, "--root", t.TempDir())
	require.ErrorContains(t, err, "reading manifest")
}

func TestStatus_InvalidConfig(t *testing.T) {
	root, _ := setupWorkspace(t)
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	writeTestFile(t, filepath.Dir(configFile), "config.yaml", "cache:\n  capacity: 5\n")

	_, err := execute(t, "status", "--config", configFile, "--root", root)
	require.ErrorContains(t, err, "invalid configuration")
}

func TestGraph(t *testing.T) {
	root, configFile := setupWorkspace(t)

	out, err := execute(t, "graph", "docs", "--config", configFile, "--root", root)
	require.NoError(t, err, out)
	require.Contains(t, out, "UPSTREAM (2)")
	require.Contains(t, out, "MID:file#docs/index.md")
	require.Contains(t, out, "MID:artifact#api")
	require.Contains(t, out, "DOWNSTREAM (0)")
}

func TestGraph_File(t *testing.T) {
	root, configFile := setupWorkspace(t)

	out, err := execute(t, "graph", "MID:file#api/schema.yaml", "--config", configFile, "--root", root)
	require.NoError(t, err, out)
	require.Contains(t, out, "UPSTREAM (0)")
	require.Contains(t, out, "DOWNSTREAM (1)")
	require.Contains(t, out, "MID:artifact#api")
}

func TestGraph_InvalidID(t *testing.T) {
	root, configFile := setupWorkspace(t)

	_, err := execute(t, "graph", "MID:", "--config", configFile, "--root", root)
	require.ErrorIs(t, err, identifier.ErrInvalidIdentifier)
}

func TestResolveID(t *testing.T) {
	id, err := resolveID("docs")
	require.NoError(t, err)
	require.Equal(t, identifier.ID("MID:artifact#docs"), id)

	id, err = resolveID("MID:file#a.txt")
	require.NoError(t, err)
	require.Equal(t, identifier.ID("MID:file#a.txt"), id)
}

// ============================================================================
// watch
// ============================================================================

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchLoop(t *testing.T) {
	root, _ := setupWorkspace(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wcfg := config.Defaults()
	wcfg.Watcher.Root = root
	wcfg.Cache.Capacity = 100
	w, err := openWorkspace(ctx, wcfg, "test")
	require.NoError(t, err)
	defer w.Close()

	items, err := w.computeAll(ctx)
	require.NoError(t, err)
	oldDocs := items[1].Digest

	changes := make(chan []string, 1)
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- watchLoop(ctx, out, w, changes, "metagraph.yaml",
			w.engine.MetadataEvents().Subscribe(ctx), w.engine.CommandEvents().Subscribe(ctx))
	}()

	writeTestFile(t, root, "api/schema.yaml", "openapi: 3.1")
	changes <- []string{"api/schema.yaml", "metagraph.yaml"}

	require.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, "MID:artifact#api") && strings.Contains(s, "MID:artifact#docs") &&
			strings.Contains(s, "manifest changed")
	}, 2*time.Second, 10*time.Millisecond)
	require.NotContains(t, out.String(), oldDocs)

	cancel()
	require.NoError(t, <-done)
}

// ============================================================================
// config
// ============================================================================

func TestConfigInitAndSet(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "nested", "config.yaml")

	out, err := execute(t, "config", "init", "--config", configFile)
	require.NoError(t, err, out)
	require.FileExists(t, configFile)

	_, err = execute(t, "config", "init", "--config", configFile)
	require.ErrorContains(t, err, "already exists")

	_, err = execute(t, "config", "init", "--config", configFile, "--force")
	require.NoError(t, err)

	out, err = execute(t, "config", "set", "cache.capacity", "5000", "--config", configFile)
	require.NoError(t, err, out)
	data, err := os.ReadFile(configFile)
	require.NoError(t, err)
	require.Contains(t, string(data), "capacity: 5000")
	require.Contains(t, string(data), "# Max cached items", "comments are preserved")

	_, err = execute(t, "config", "set", "cache.capacity", "5", "--config", configFile)
	require.Error(t, err)
	after, err := os.ReadFile(configFile)
	require.NoError(t, err)
	require.Equal(t, data, after, "an invalid value leaves the file unchanged")

	_, err = execute(t, "config", "set", "no.such.key", "1", "--config", configFile)
	require.ErrorContains(t, err, "unknown config key")
}

func TestConfigSet_InvalidCurrentFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	writeTestFile(t, filepath.Dir(configFile), "config.yaml", "cache:\n  capacity: 5\n")

	out, err := execute(t, "config", "set", "cache.capacity", "500", "--config", configFile)
	require.NoError(t, err, out)
}

func TestConfigKeys(t *testing.T) {
	out, err := execute(t, "config", "keys")
	require.NoError(t, err)
	require.Contains(t, out, "cache.capacity")
	require.Contains(t, out, "watcher.debounce")
}
