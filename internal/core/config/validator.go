package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/Masterminds/semver/v3"

	"yangkit/internal/engine/source"
)

// Validate reports every problem found, not only the first.
func Validate(cfg *Config) []error {
	var errs []error
	errs = append(errs, validateVersion(cfg)...)
	errs = append(errs, validateSources(cfg)...)
	errs = append(errs, validateRemote(cfg)...)
	errs = append(errs, validateCache(cfg)...)
	errs = append(errs, validateFeatures(cfg)...)
	errs = append(errs, validateResolution(cfg)...)
	errs = append(errs, validateObservability(cfg)...)
	return errs
}

func validateVersion(cfg *Config) []error {
	if cfg.Version != 1 {
		return []error{fmt.Errorf("unsupported config version %d", cfg.Version)}
	}
	return nil
}

func validateSources(cfg *Config) []error {
	var errs []error
	root := cfg.Paths.ProjectRoot
	if root == "" {
		root = "."
	}
	for i, p := range cfg.Sources.SearchPaths {
		info, err := os.Stat(ResolveRelative(root, p))
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("sources.search_paths[%d] %q does not exist", i, p))
		case !info.IsDir():
			errs = append(errs, fmt.Errorf("sources.search_paths[%d] %q is not a directory", i, p))
		}
	}
	if cfg.Sources.Debounce < 0 {
		errs = append(errs, fmt.Errorf("sources.debounce must not be negative"))
	}
	return errs
}

func validateRemote(cfg *Config) []error {
	if !cfg.Remote.Enabled {
		return nil
	}
	var errs []error
	u, err := url.Parse(cfg.Remote.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("remote.base_url %q must be an http(s) URL", cfg.Remote.BaseURL))
	}
	if len(cfg.Remote.Modules) == 0 {
		errs = append(errs, fmt.Errorf("remote.modules must list at least one module when remote is enabled"))
	}
	for i, m := range cfg.Remote.Modules {
		if _, err := source.ParseIdentifier(m); err != nil {
			errs = append(errs, fmt.Errorf("remote.modules[%d]: %w", i, err))
		}
	}
	if cfg.Remote.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("remote.rate_per_second must not be negative"))
	}
	return errs
}

func validateCache(cfg *Config) []error {
	var errs []error
	switch cfg.Cache.Policy {
	case "soft", "expiring":
	default:
		errs = append(errs, fmt.Errorf("cache.policy %q must be soft or expiring", cfg.Cache.Policy))
	}
	if cfg.Cache.Policy == "expiring" && cfg.Cache.Lifetime <= 0 {
		errs = append(errs, fmt.Errorf("cache.lifetime must be positive for the expiring policy"))
	}
	if cfg.Cache.PrunePercent > 100 {
		errs = append(errs, fmt.Errorf("cache.prune_percent %d exceeds 100", cfg.Cache.PrunePercent))
	}
	return errs
}

func validateFeatures(cfg *Config) []error {
	switch cfg.Features.Mode {
	case "all", "none":
		if len(cfg.Features.Supported) > 0 {
			return []error{fmt.Errorf("features.supported is only used with mode \"list\"")}
		}
	case "list":
	default:
		return []error{fmt.Errorf("features.mode %q must be all, none or list", cfg.Features.Mode)}
	}
	return nil
}

func validateResolution(cfg *Config) []error {
	var errs []error
	for name, c := range cfg.Resolution.VersionConstraints {
		if _, err := semver.NewConstraint(c); err != nil {
			errs = append(errs, fmt.Errorf("resolution.version_constraints.%s: %w", name, err))
		}
	}
	return errs
}

func validateObservability(cfg *Config) []error {
	var errs []error
	switch cfg.Observability.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("observability.log_level %q is not one of debug, info, warn, error", cfg.Observability.LogLevel))
	}
	if cfg.Observability.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("observability.sample_ratio %v exceeds 1", cfg.Observability.SampleRatio))
	}
	return errs
}
