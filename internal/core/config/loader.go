package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const DefaultFile = "yangkit.toml"

// Load decodes path, applies defaults and environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("decode %s: unknown keys %s", path, strings.Join(keys, ", "))
	}

	applyDefaults(&cfg)
	ApplyEnvOverrides(&cfg)
	normalize(&cfg)
	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to DefaultConfig,
// still honouring environment overrides.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		ApplyEnvOverrides(cfg)
		normalize(cfg)
		if errs := Validate(cfg); len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return cfg, nil
	}
	return Load(path)
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if strings.TrimSpace(cfg.Paths.StateDir) == "" {
		cfg.Paths.StateDir = ".yangkit/state"
	}
	if strings.TrimSpace(cfg.Paths.CacheDir) == "" {
		cfg.Paths.CacheDir = ".yangkit/cache"
	}
	if strings.TrimSpace(cfg.Repository.Name) == "" {
		cfg.Repository.Name = "yangkit"
	}

	if len(cfg.Sources.SearchPaths) == 0 {
		cfg.Sources.SearchPaths = []string{"."}
	}
	if cfg.Sources.Debounce == 0 {
		cfg.Sources.Debounce = 300 * time.Millisecond
	}
	if len(cfg.Sources.Extensions) == 0 {
		cfg.Sources.Extensions = []string{".yang"}
	}
	if cfg.Sources.ExcludeDirs == nil {
		cfg.Sources.ExcludeDirs = []string{".git", ".yangkit"}
	}

	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = 30 * time.Second
	}
	if cfg.Remote.Burst <= 0 {
		cfg.Remote.Burst = 4
	}

	if strings.TrimSpace(cfg.Cache.Policy) == "" {
		cfg.Cache.Policy = "soft"
	}
	if cfg.Cache.Lifetime == 0 {
		cfg.Cache.Lifetime = 10 * time.Minute
	}
	if cfg.Cache.SweepInterval == 0 {
		cfg.Cache.SweepInterval = time.Minute
	}
	if cfg.Cache.Capacity <= 0 {
		cfg.Cache.Capacity = 4096
	}
	if cfg.Cache.PrunePercent <= 0 {
		cfg.Cache.PrunePercent = 25
	}

	if cfg.Executor.QueueCapacity <= 0 {
		cfg.Executor.QueueCapacity = 1024
	}

	if strings.TrimSpace(cfg.Features.Mode) == "" {
		cfg.Features.Mode = "all"
	}

	if cfg.Resolution.Timeout == 0 {
		cfg.Resolution.Timeout = 2 * time.Minute
	}

	if strings.TrimSpace(cfg.Observability.LogLevel) == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.SampleRatio <= 0 {
		cfg.Observability.SampleRatio = 1
	}
}

func normalize(cfg *Config) {
	cfg.Repository.Name = strings.TrimSpace(cfg.Repository.Name)
	cfg.Features.Mode = strings.ToLower(strings.TrimSpace(cfg.Features.Mode))
	cfg.Cache.Policy = strings.ToLower(strings.TrimSpace(cfg.Cache.Policy))
	cfg.Observability.LogLevel = strings.ToLower(strings.TrimSpace(cfg.Observability.LogLevel))
	cfg.Remote.BaseURL = strings.TrimSpace(cfg.Remote.BaseURL)
	cfg.Features.Supported = trimAll(cfg.Features.Supported)
	cfg.Remote.Modules = trimAll(cfg.Remote.Modules)
	cfg.Sources.SearchPaths = trimAll(cfg.Sources.SearchPaths)
}

func trimAll(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
