package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolvePaths_DefaultLayout(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, DefaultFile), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "models", "ietf")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Cache.StorePath = "sources.db"
	cfg.Sources.SearchPaths = []string{"models", "/opt/yang"}

	got, err := ResolvePaths(cfg, nested)
	if err != nil {
		t.Fatal(err)
	}
	if got.ProjectRoot != filepath.Clean(root) {
		t.Fatalf("expected project root %q, got %q", root, got.ProjectRoot)
	}
	if got.StorePath != filepath.Join(root, ".yangkit/state", "sources.db") {
		t.Fatalf("unexpected store path: %q", got.StorePath)
	}
	if got.ArtifactsDir != "" {
		t.Fatalf("artifacts must stay disabled, got %q", got.ArtifactsDir)
	}
	if len(got.SearchPaths) != 2 || got.SearchPaths[0] != filepath.Join(root, "models") || got.SearchPaths[1] != "/opt/yang" {
		t.Fatalf("unexpected search paths: %v", got.SearchPaths)
	}
}

func TestResolvePaths_AbsoluteOverrides(t *testing.T) {
	root := t.TempDir()
	artifacts := filepath.Join(root, "elsewhere", "artifacts")
	cfg := DefaultConfig()
	cfg.Paths.ProjectRoot = root
	cfg.Cache.ArtifactsDir = artifacts

	got, err := ResolvePaths(cfg, "/")
	if err != nil {
		t.Fatal(err)
	}
	if got.ArtifactsDir != artifacts {
		t.Fatalf("expected %q, got %q", artifacts, got.ArtifactsDir)
	}
	if got.CacheDir != filepath.Join(root, ".yangkit/cache") {
		t.Fatalf("unexpected cache dir %q", got.CacheDir)
	}
}

func TestResolvePaths_EmptyCWD(t *testing.T) {
	if _, err := ResolvePaths(DefaultConfig(), " "); err == nil {
		t.Fatal("expected error for empty cwd")
	}
}
