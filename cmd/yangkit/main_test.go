package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yangkit/internal/core/app"
)

func writeProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"models/types.yang": `module types { namespace "urn:types"; prefix t; revision 2020-01-01;
  grouping addr { leaf address { type string; } } }`,
		"models/iface.yang": `module iface { namespace "urn:iface"; prefix ifc;
  import types { prefix t; }
  feature stats;
  container interfaces { uses t:addr; }
  container stats { if-feature stats; } }`,
		"yangkit.toml": fmt.Sprintf("version = 1\n\n[paths]\nproject_root = %q\n\n[sources]\nsearch_paths = [\"models\"]\n", root),
	}
	for name, body := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return root
}

func run(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", filepath.Join(root, "yangkit.toml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	root := writeProject(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "compile", args: []string{"compile", "iface"}, want: []string{
			"iface\t-\turn:iface\t2 nodes\n",
			"types\t2020-01-01\turn:types\t0 nodes\n",
		}},
		{name: "compile without features", args: []string{"compile", "--no-features", "--tree", "iface"}, want: []string{
			"iface\t-\turn:iface\t1 nodes\n",
			"  container interfaces\n    leaf address\n",
			"pruned\t",
		}},
		{name: "sources", args: []string{"sources"}, want: []string{
			"types@2020-01-01\tyang/text\t4\n",
			"types@2020-01-01\tyang/ast\t5\n",
		}},
		{name: "chain", args: []string{"chain", "iface", "types"}, want: []string{"iface -> types\n"}},
		{name: "graph", args: []string{"graph", "--format", "tsv", "iface"}, want: []string{"iface\ttypes\timport\t"}},
		{name: "graph metrics", args: []string{"graph", "--format", "metrics", "iface"}, want: []string{
			"types\t0\t1\t0\n",
			"iface\t1\t0\t1\n",
		}},
		{name: "purge", args: []string{"purge"}, want: []string{"removed 0 sources, 0 artifacts\n"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, root, tt.args...)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestCommands_Failures(t *testing.T) {
	root := writeProject(t)

	_, err := run(t, root, "compile", "absent")
	assert.Error(t, err)

	_, err = run(t, root, "chain", "types", "iface")
	assert.Error(t, err)

	_, err = run(t, root, "graph", "--format", "svg", "iface")
	assert.Error(t, err)

	_, err = run(t, root, "compile")
	assert.Error(t, err)
}

func TestAffects(t *testing.T) {
	update := app.Update{Changed: []string{"types"}, Affected: []string{"iface", "types"}}
	assert.True(t, affects(update, []string{"iface@2020-01-01"}))
	assert.False(t, affects(update, []string{"other"}))
	assert.True(t, affects(app.Update{Changed: []string{"yangkit.toml"}}, []string{"other"}))
}

func TestCompileOptions(t *testing.T) {
	assert.Empty(t, compileOptions{}.requestOptions())
	assert.Len(t, compileOptions{features: []string{"a"}, semver: true}.requestOptions(), 3)
	assert.Len(t, compileOptions{noFeatures: true}.requestOptions(), 1)
}

func TestSetupLoggingLevels(t *testing.T) {
	var buf bytes.Buffer
	setupLogging(&buf, "warn", false)
	t.Cleanup(func() { setupLogging(os.Stderr, "info", false) })
	slog.Info("hidden")
	slog.Warn("shown")
	out := buf.String()
	assert.False(t, strings.Contains(out, "level=INFO"))
	assert.True(t, strings.Contains(out, "level=WARN"))
}
