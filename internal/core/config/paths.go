package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolvedPaths holds every configured location as a clean absolute path.
// StorePath and ArtifactsDir are empty when disabled.
type ResolvedPaths struct {
	ProjectRoot  string
	StateDir     string
	CacheDir     string
	StorePath    string
	ArtifactsDir string
	SearchPaths  []string
}

func ResolvePaths(cfg *Config, cwd string) (ResolvedPaths, error) {
	if strings.TrimSpace(cwd) == "" {
		return ResolvedPaths{}, fmt.Errorf("cwd must not be empty")
	}

	projectRoot := strings.TrimSpace(cfg.Paths.ProjectRoot)
	if projectRoot != "" {
		projectRoot = ResolveRelative(cwd, projectRoot)
	} else {
		root, err := DetectProjectRoot([]string{cwd})
		if err != nil {
			return ResolvedPaths{}, err
		}
		projectRoot = root
	}

	stateDir := ResolveRelative(projectRoot, cfg.Paths.StateDir)
	cacheDir := ResolveRelative(projectRoot, cfg.Paths.CacheDir)

	resolved := ResolvedPaths{
		ProjectRoot: filepath.Clean(projectRoot),
		StateDir:    stateDir,
		CacheDir:    cacheDir,
	}
	if p := strings.TrimSpace(cfg.Cache.StorePath); p != "" {
		resolved.StorePath = ResolveRelative(stateDir, p)
	}
	if p := strings.TrimSpace(cfg.Cache.ArtifactsDir); p != "" {
		resolved.ArtifactsDir = ResolveRelative(cacheDir, p)
	}
	for _, p := range cfg.Sources.SearchPaths {
		resolved.SearchPaths = append(resolved.SearchPaths, ResolveRelative(projectRoot, p))
	}
	return resolved, nil
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}

// DetectProjectRoot walks up from each candidate looking for a yangkit
// marker and falls back to the working directory.
func DetectProjectRoot(candidates []string) (string, error) {
	markers := []string{
		DefaultFile,
		".yangkit",
		".git",
	}

	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) == "" {
			continue
		}

		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		root := abs
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			root = filepath.Dir(abs)
		}

		for {
			for _, marker := range markers {
				if _, err := os.Stat(filepath.Join(root, marker)); err == nil {
					return filepath.Clean(root), nil
				}
			}
			parent := filepath.Dir(root)
			if parent == root {
				break
			}
			root = parent
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Clean(cwd), nil
}
