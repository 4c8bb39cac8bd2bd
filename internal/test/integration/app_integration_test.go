package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yangkit/internal/core/app"
	"yangkit/internal/core/config"
	"yangkit/internal/ui/report"
)

const remoteTypes = `module ietf-inet-types {
  namespace "urn:ietf:params:xml:ns:yang:ietf-inet-types";
  prefix inet;
  revision 2013-07-15;
  grouping host { leaf host { type string; } }
}`

func createProject(t *testing.T, root, baseURL string) string {
	t.Helper()
	files := map[string]string{
		"models/network.yang": `module network {
  namespace "urn:example:network";
  prefix net;
  revision 2024-05-01;
  import ietf-inet-types { prefix inet; revision-date 2013-07-15; }
  include network-types;
  feature routing;
  container network {
    uses inet:host;
    container routing { if-feature routing; }
  }
}`,
		"models/sub/network-types.yang": `submodule network-types {
  belongs-to network { prefix net; }
  container counters;
}`,
		"models/drafts/network-draft.yang": `module network { namespace "urn:draft"; prefix d; revision 1999-01-01; }`,
	}
	for name, body := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	toml := fmt.Sprintf(`version = 1

[paths]
project_root = %q

[sources]
search_paths = ["models"]
exclude_dirs = ["drafts"]
debounce = "20ms"

[remote]
enabled = true
base_url = %q
modules = ["ietf-inet-types@2013-07-15"]
persist = true

[cache]
policy = "expiring"
lifetime = "1m"
store_path = "sources.db"
artifacts_dir = "ast"

[features]
mode = "list"
supported = ["network:routing"]
`, root, baseURL)
	path := filepath.Join(root, "yangkit.toml")
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o644))
	return path
}

func TestFullPipelineIntegration(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/ietf-inet-types@2013-07-15.yang" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(remoteTypes))
	}))
	defer srv.Close()

	root := t.TempDir()
	cfgPath := createProject(t, root, srv.URL)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, root)
	require.NoError(t, err)

	sc, err := a.Compile(ctx, []string{"network"})
	require.NoError(t, err)
	require.Len(t, sc.Modules(), 2)
	network, ok := sc.FindModule("network", "2024-05-01")
	require.True(t, ok, "the excluded draft must not shadow the real module")
	assert.Equal(t, []string{"network-types"}, network.Submodules)
	top, ok := network.ChildByLocalName("network")
	require.True(t, ok)
	_, ok = top.ChildByLocalName("routing")
	assert.True(t, ok, "routing is listed as supported")
	_, ok = top.ChildByLocalName("host")
	assert.True(t, ok)

	dot, err := report.Render(a.Graph, "dot")
	require.NoError(t, err)
	assert.Contains(t, dot, `"network" -> "ietf-inet-types"`)
	assert.Contains(t, dot, `"network" -> "network-types"`)

	health := app.NewHealthService(a).Check(ctx)
	assert.Equal(t, "up", health.Status)
	assert.Equal(t, "ok", health.Components["store"])

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, a.Close(closeCtx))
	fetched := hits.Load()
	require.Equal(t, int32(1), fetched)

	// The server is gone; persisted text and artifacts serve the import now.
	srv.Close()
	restarted, err := app.New(ctx, cfg, root)
	require.NoError(t, err)
	defer restarted.Close(closeCtx)

	restarted.SetFeatures(config.Features{Mode: "none"})
	sc, err = restarted.Compile(ctx, []string{"network@2024-05-01"})
	require.NoError(t, err)
	network, ok = sc.FindModule("network", "2024-05-01")
	require.True(t, ok)
	top, _ = network.ChildByLocalName("network")
	_, ok = top.ChildByLocalName("routing")
	assert.False(t, ok)
	require.NotEmpty(t, sc.Pruned())
	assert.True(t, strings.HasSuffix(sc.Pruned()[0], "routing"), "got %v", sc.Pruned())
	assert.Equal(t, fetched, hits.Load())
}
