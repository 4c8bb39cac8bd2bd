// Package config loads yangkit's TOML configuration.
package config

import (
	"time"
)

type Config struct {
	Version       int           `toml:"version"`
	Paths         Paths         `toml:"paths"`
	Repository    Repository    `toml:"repository"`
	Sources       Sources       `toml:"sources"`
	Remote        Remote        `toml:"remote"`
	Cache         Cache         `toml:"cache"`
	Executor      Executor      `toml:"executor"`
	Features      Features      `toml:"features"`
	Resolution    Resolution    `toml:"resolution"`
	Observability Observability `toml:"observability"`
}

type Paths struct {
	ProjectRoot string `toml:"project_root"`
	StateDir    string `toml:"state_dir"`
	CacheDir    string `toml:"cache_dir"`
}

type Repository struct {
	Name string `toml:"name"`
}

// Sources lists local schema directories.
type Sources struct {
	SearchPaths  []string      `toml:"search_paths"`
	Watch        bool          `toml:"watch"`
	Debounce     time.Duration `toml:"debounce"`
	ExcludeDirs  []string      `toml:"exclude_dirs"`
	ExcludeFiles []string      `toml:"exclude_files"`
	Extensions   []string      `toml:"extensions"`
}

// Remote configures an HTTP schema server. Modules lists the identifiers
// ("name" or "name@revision") it is advertised for.
type Remote struct {
	Enabled       bool          `toml:"enabled"`
	BaseURL       string        `toml:"base_url"`
	Modules       []string      `toml:"modules"`
	RatePerSecond float64       `toml:"rate_per_second"`
	Burst         int           `toml:"burst"`
	Timeout       time.Duration `toml:"timeout"`
	// Persist stores fetched text in the source store.
	Persist bool `toml:"persist"`
}

type Cache struct {
	// Policy is "soft" or "expiring".
	Policy        string        `toml:"policy"`
	Lifetime      time.Duration `toml:"lifetime"`
	SweepInterval time.Duration `toml:"sweep_interval"`
	Capacity      int           `toml:"capacity"`
	MaxHeapMB     uint64        `toml:"max_heap_mb"`
	PrunePercent  int           `toml:"prune_percent"`
	// StorePath is the SQLite text store. Empty disables it.
	StorePath string `toml:"store_path"`
	// ArtifactsDir holds msgpack-encoded parsed sources. Empty disables it.
	ArtifactsDir string `toml:"artifacts_dir"`
}

type Executor struct {
	QueueCapacity int `toml:"queue_capacity"`
}

// Features selects supported features: mode "all", "none" or "list". In
// list mode Supported holds "module:feature" or bare feature names.
type Features struct {
	Mode      string   `toml:"mode"`
	Supported []string `toml:"supported"`
}

type Resolution struct {
	SemanticVersioning bool              `toml:"semantic_versioning"`
	VersionConstraints map[string]string `toml:"version_constraints"`
	Timeout            time.Duration     `toml:"timeout"`
}

type Observability struct {
	MetricsAddress string  `toml:"metrics_address"`
	EnableTracing  bool    `toml:"enable_tracing"`
	OTLPEndpoint   string  `toml:"otlp_endpoint"`
	OTLPInsecure   bool    `toml:"otlp_insecure"`
	SampleRatio    float64 `toml:"sample_ratio"`
	LogLevel       string  `toml:"log_level"`
}

// DefaultConfig is the configuration used when no file exists.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
