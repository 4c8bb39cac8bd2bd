package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: YANGKIT_[SECTION]_[KEY] (e.g., YANGKIT_CACHE_POLICY).
func ApplyEnvOverrides(cfg *Config) {
	// Paths
	setEnvString(&cfg.Paths.ProjectRoot, "YANGKIT_PATHS_PROJECT_ROOT")
	setEnvString(&cfg.Paths.StateDir, "YANGKIT_PATHS_STATE_DIR")
	setEnvString(&cfg.Paths.CacheDir, "YANGKIT_PATHS_CACHE_DIR")

	setEnvString(&cfg.Repository.Name, "YANGKIT_REPOSITORY_NAME")

	// Sources
	setEnvList(&cfg.Sources.SearchPaths, "YANGKIT_SOURCES_SEARCH_PATHS")
	setEnvBool(&cfg.Sources.Watch, "YANGKIT_SOURCES_WATCH")
	setEnvDuration(&cfg.Sources.Debounce, "YANGKIT_SOURCES_DEBOUNCE")

	// Remote
	setEnvBool(&cfg.Remote.Enabled, "YANGKIT_REMOTE_ENABLED")
	setEnvString(&cfg.Remote.BaseURL, "YANGKIT_REMOTE_BASE_URL")
	setEnvList(&cfg.Remote.Modules, "YANGKIT_REMOTE_MODULES")
	setEnvFloat64(&cfg.Remote.RatePerSecond, "YANGKIT_REMOTE_RATE_PER_SECOND")
	setEnvInt(&cfg.Remote.Burst, "YANGKIT_REMOTE_BURST")
	setEnvDuration(&cfg.Remote.Timeout, "YANGKIT_REMOTE_TIMEOUT")
	setEnvBool(&cfg.Remote.Persist, "YANGKIT_REMOTE_PERSIST")

	// Cache
	setEnvString(&cfg.Cache.Policy, "YANGKIT_CACHE_POLICY")
	setEnvDuration(&cfg.Cache.Lifetime, "YANGKIT_CACHE_LIFETIME")
	setEnvInt(&cfg.Cache.Capacity, "YANGKIT_CACHE_CAPACITY")
	setEnvString(&cfg.Cache.StorePath, "YANGKIT_CACHE_STORE_PATH")
	setEnvString(&cfg.Cache.ArtifactsDir, "YANGKIT_CACHE_ARTIFACTS_DIR")

	setEnvInt(&cfg.Executor.QueueCapacity, "YANGKIT_EXECUTOR_QUEUE_CAPACITY")

	// Features
	setEnvString(&cfg.Features.Mode, "YANGKIT_FEATURES_MODE")
	setEnvList(&cfg.Features.Supported, "YANGKIT_FEATURES_SUPPORTED")

	setEnvBool(&cfg.Resolution.SemanticVersioning, "YANGKIT_RESOLUTION_SEMANTIC_VERSIONING")
	setEnvDuration(&cfg.Resolution.Timeout, "YANGKIT_RESOLUTION_TIMEOUT")

	// Observability
	setEnvString(&cfg.Observability.MetricsAddress, "YANGKIT_OBSERVABILITY_METRICS_ADDRESS")
	setEnvBool(&cfg.Observability.EnableTracing, "YANGKIT_OBSERVABILITY_ENABLE_TRACING")
	setEnvString(&cfg.Observability.OTLPEndpoint, "YANGKIT_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvString(&cfg.Observability.LogLevel, "YANGKIT_OBSERVABILITY_LOG_LEVEL")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

// setEnvList splits a comma separated value.
func setEnvList(target *[]string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = trimAll(strings.Split(val, ","))
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
