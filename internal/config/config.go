// Package config implements miller's layered configuration: built-in
// defaults, a user-level config (~/.config/miller/config.yaml), a
// project-level config (.miller.yaml at the workspace root), and finally
// environment-variable overrides, each layer merging over the previous.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectType is a coarse guess at the dominant language of a workspace,
// used to pick sensible default ignore patterns and parser priorities.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeRust    ProjectType = "rust"
	ProjectTypeUnknown ProjectType = "unknown"
)

// Config is miller's full runtime configuration.
type Config struct {
	Version int `yaml:"version"`

	Workspace    WorkspaceConfig    `yaml:"workspace"`
	Ignore       IgnoreConfig       `yaml:"ignore"`
	Relational   RelationalConfig   `yaml:"relational"`
	Vector       VectorConfig       `yaml:"vector"`
	Embeddings   EmbeddingsConfig   `yaml:"embeddings"`
	Indexing     IndexingConfig     `yaml:"indexing"`
	Watch        WatchConfig        `yaml:"watch"`
	Reachability ReachabilityConfig `yaml:"reachability"`
	Search       SearchConfig       `yaml:"search"`
	Trace        TraceConfig        `yaml:"trace"`
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// WorkspaceConfig controls where a workspace's root lives and where its
// on-disk state (.miller/) is stored.
type WorkspaceConfig struct {
	// Root overrides the workspace root path; defaults to the current
	// working directory at `miller index`/`miller serve` time.
	Root string `yaml:"root"`
	// StateDir is the hidden root holding indexes/ and registry.json,
	// relative to Root unless absolute.
	StateDir string `yaml:"state_dir"`
}

// IgnoreConfig controls file-discovery filtering during a scan.
type IgnoreConfig struct {
	// ExtraExclude are glob patterns applied in addition to .gitignore,
	// .millerignore, and the built-in defaults.
	ExtraExclude []string `yaml:"extra_exclude"`
	// AutoGenerate enables emitting a .millerignore when vendor signals
	// are strong and no custom ignore file exists yet.
	AutoGenerate bool `yaml:"auto_generate"`
	// MinifiedThreshold is the minimum count of minified files in a
	// directory before it's flagged as a vendor directory.
	MinifiedThreshold int `yaml:"minified_threshold"`
	// VendorFileThreshold is the minimum count of vendor-library-named
	// files in a directory before it's flagged as vendor.
	VendorFileThreshold int `yaml:"vendor_file_threshold"`
	// MaxFileSizeBytes skips files larger than this during both the
	// initial scan and file-watcher events.
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes"`
}

// RelationalConfig tunes the embedded relational store.
type RelationalConfig struct {
	// Path is the symbols.db location, relative to the state dir unless
	// absolute.
	Path string `yaml:"path"`
	// BusyTimeout bounds how long a writer waits on SQLITE_BUSY.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
	// CacheSizeKB sets SQLite's page cache size.
	CacheSizeKB int `yaml:"cache_size_kb"`
}

// VectorConfig tunes the vector/full-text store.
type VectorConfig struct {
	// Path is the vectors store directory, relative to the state dir
	// unless absolute.
	Path string `yaml:"path"`
	// Backend selects the full-text engine backing code_pattern search:
	// "fts5" (default, via the relational store) or "bleve".
	Backend string `yaml:"backend"`
	// HNSWEfConstruction and HNSWEfSearch tune the ANN index's
	// build/query quality-vs-speed tradeoff.
	HNSWEfConstruction int `yaml:"hnsw_ef_construction"`
	HNSWEfSearch       int `yaml:"hnsw_ef_search"`
	HNSWM              int `yaml:"hnsw_m"`
}

// EmbeddingsConfig configures the embedding adapter.
type EmbeddingsConfig struct {
	// Provider selects the embedder implementation: "static" (deterministic,
	// offline, no model download) or "remote" (HTTP embedding service).
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// Dimensions must match the vector store's recorded dimension; a
	// mismatch triggers the drift-detection rebuild-refusal path.
	Dimensions int `yaml:"dimensions"`
	// MaxSequenceLength truncates/rejects inputs longer than this many
	// tokens before embedding.
	MaxSequenceLength int `yaml:"max_sequence_length"`
	BatchSize         int `yaml:"batch_size"`
	// RemoteEndpoint is the base URL of the remote embedding service,
	// used when Provider == "remote".
	RemoteEndpoint string        `yaml:"remote_endpoint"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// OfflineOnly disables any remote provider and network-backed model
	// cache refresh, forcing the static fallback embedder.
	OfflineOnly bool `yaml:"offline_only"`
	// CacheSize bounds the LRU cache of text -> vector entries.
	CacheSize int `yaml:"cache_size"`
}

// IndexingConfig tunes the indexing buffer and scanner.
type IndexingConfig struct {
	// FlushSymbols/FlushFiles/FlushBytes are the buffer thresholds that
	// trigger an early flush before FlushInterval elapses.
	FlushSymbols  int           `yaml:"flush_symbols"`
	FlushFiles    int           `yaml:"flush_files"`
	FlushBytes    int64         `yaml:"flush_bytes"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	// Workers bounds the parallel extraction worker pool; 0 means
	// runtime.NumCPU().
	Workers int `yaml:"workers"`
}

// WatchConfig tunes the file watcher's debounce queue.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
	// Debounce is the quiet period after the last event for a given path
	// before it's handed to the scanner for re-indexing.
	Debounce time.Duration `yaml:"debounce"`
}

// ReachabilityConfig tunes the reachability engine's BFS.
type ReachabilityConfig struct {
	MaxDepth int `yaml:"max_depth"`
}

// SearchConfig tunes the hybrid search pipeline.
type SearchConfig struct {
	// RRFConstant is the k in reciprocal-rank fusion: score = 1/(k+rank).
	RRFConstant int `yaml:"rrf_constant"`
	// SemanticFallbackThreshold: below this top-hit score, a lexical
	// search falls back to re-running as semantic.
	SemanticFallbackThreshold float64 `yaml:"semantic_fallback_threshold"`
	DefaultLimit              int     `yaml:"default_limit"`
	MaxLimit                  int     `yaml:"max_limit"`
	// TabularAutoThreshold: auto format renders tabular output once hit
	// count reaches this many rows.
	TabularAutoThreshold int `yaml:"tabular_auto_threshold"`
}

// TraceConfig tunes the cross-language call-path trace engine.
type TraceConfig struct {
	MaxDepth int `yaml:"max_depth"`
	// VectorAssistThreshold: below this many exact/variant relationship
	// matches at a node, fall back to vector similarity to find
	// cross-language callees.
	VectorAssistThreshold int `yaml:"vector_assist_threshold"`
}

// ServerConfig controls the MCP server transport. The optional metrics
// HTTP listener is configured by MetricsConfig.
type ServerConfig struct {
	Transport string `yaml:"transport"`
}

// LoggingConfig configures slog handler selection.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// File is the rotating JSON log file path, relative to the state dir
	// unless absolute. Empty disables file logging.
	File string `yaml:"file"`
	// Format selects the stderr handler when not attached to a TTY:
	// "json" or "text". TTY output always uses the human-readable handler.
	Format string `yaml:"format"`
}

// MetricsConfig controls the optional Prometheus metrics listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

var defaultExcludePatterns = []string{
	".git", ".miller", "node_modules", "vendor", "__pycache__",
	"dist", "build", "target", ".venv", "venv",
	"*.min.js", "*.min.css", "package-lock.json", "yarn.lock",
	"pnpm-lock.yaml", "go.sum", "*.pyc", "*.so", "*.o", "*.a",
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Workspace: WorkspaceConfig{
			StateDir: ".miller",
		},
		Ignore: IgnoreConfig{
			ExtraExclude:        append([]string(nil), defaultExcludePatterns...),
			AutoGenerate:        true,
			MinifiedThreshold:   10,
			VendorFileThreshold: 5,
			MaxFileSizeBytes:    10 * 1024 * 1024,
		},
		Relational: RelationalConfig{
			Path:        "indexes/symbols.db",
			BusyTimeout: 5 * time.Second,
			CacheSizeKB: 20000,
		},
		Vector: VectorConfig{
			Path:               "indexes/vectors.lance",
			Backend:            "fts5",
			HNSWEfConstruction: 200,
			HNSWEfSearch:       64,
			HNSWM:              16,
		},
		Embeddings: EmbeddingsConfig{
			Provider:          "static",
			Model:             "miller-static-v1",
			Dimensions:        384,
			MaxSequenceLength: 512,
			BatchSize:         32,
			RequestTimeout:    30 * time.Second,
			OfflineOnly:       false,
			CacheSize:         10000,
		},
		Indexing: IndexingConfig{
			FlushSymbols:  500,
			FlushFiles:    50,
			FlushBytes:    8 * 1024 * 1024,
			FlushInterval: 2 * time.Second,
			Workers:       runtime.NumCPU(),
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 300 * time.Millisecond,
		},
		Reachability: ReachabilityConfig{
			MaxDepth: 10,
		},
		Search: SearchConfig{
			RRFConstant:               60,
			SemanticFallbackThreshold: 0.3,
			DefaultLimit:              20,
			MaxLimit:                  200,
			TabularAutoThreshold:      20,
		},
		Trace: TraceConfig{
			MaxDepth:              6,
			VectorAssistThreshold: 5,
		},
		Server: ServerConfig{
			Transport: "stdio",
		},
		Logging: LoggingConfig{
			Level:  "info",
			File:   "miller.log",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
	}
}

// GetUserConfigDir returns the directory holding miller's user-level
// config, honoring XDG_CONFIG_HOME.
func GetUserConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "miller")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "miller")
	}
	return filepath.Join(home, ".config", "miller")
}

// GetUserConfigPath returns the full path to the user-level config file.
func GetUserConfigPath() string {
	return filepath.Join(GetUserConfigDir(), "config.yaml")
}

// UserConfigExists reports whether a user-level config file is present.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	cfg := NewConfig()
	if !UserConfigExists() {
		return cfg, nil
	}
	if err := cfg.loadYAML(GetUserConfigPath()); err != nil {
		return nil, fmt.Errorf("load user config: %w", err)
	}
	return cfg, nil
}

// Load resolves the full layered config for the workspace rooted at dir:
// built-in defaults, then the user config, then a project config
// (.miller.yaml at dir), then environment overrides, then validation.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	userCfg, err := loadUserConfig()
	if err != nil {
		return nil, err
	}
	cfg.mergeWith(userCfg)

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".miller.yaml", ".miller.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	c.mergeWith(&loaded)
	return nil
}

// mergeWith overlays non-zero fields from other onto c. Slices replace
// wholesale when non-empty; scalars overwrite when non-zero.
func (c *Config) mergeWith(other *Config) {
	if other == nil {
		return
	}
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Workspace.Root != "" {
		c.Workspace.Root = other.Workspace.Root
	}
	if other.Workspace.StateDir != "" {
		c.Workspace.StateDir = other.Workspace.StateDir
	}

	if len(other.Ignore.ExtraExclude) > 0 {
		c.Ignore.ExtraExclude = other.Ignore.ExtraExclude
	}
	if other.Ignore.MinifiedThreshold != 0 {
		c.Ignore.MinifiedThreshold = other.Ignore.MinifiedThreshold
	}
	if other.Ignore.VendorFileThreshold != 0 {
		c.Ignore.VendorFileThreshold = other.Ignore.VendorFileThreshold
	}
	if other.Ignore.MaxFileSizeBytes != 0 {
		c.Ignore.MaxFileSizeBytes = other.Ignore.MaxFileSizeBytes
	}

	if other.Relational.Path != "" {
		c.Relational.Path = other.Relational.Path
	}
	if other.Relational.BusyTimeout != 0 {
		c.Relational.BusyTimeout = other.Relational.BusyTimeout
	}
	if other.Relational.CacheSizeKB != 0 {
		c.Relational.CacheSizeKB = other.Relational.CacheSizeKB
	}

	if other.Vector.Path != "" {
		c.Vector.Path = other.Vector.Path
	}
	if other.Vector.Backend != "" {
		c.Vector.Backend = other.Vector.Backend
	}
	if other.Vector.HNSWEfConstruction != 0 {
		c.Vector.HNSWEfConstruction = other.Vector.HNSWEfConstruction
	}
	if other.Vector.HNSWEfSearch != 0 {
		c.Vector.HNSWEfSearch = other.Vector.HNSWEfSearch
	}
	if other.Vector.HNSWM != 0 {
		c.Vector.HNSWM = other.Vector.HNSWM
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.MaxSequenceLength != 0 {
		c.Embeddings.MaxSequenceLength = other.Embeddings.MaxSequenceLength
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.RemoteEndpoint != "" {
		c.Embeddings.RemoteEndpoint = other.Embeddings.RemoteEndpoint
	}
	if other.Embeddings.RequestTimeout != 0 {
		c.Embeddings.RequestTimeout = other.Embeddings.RequestTimeout
	}
	if other.Embeddings.OfflineOnly {
		c.Embeddings.OfflineOnly = true
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Indexing.FlushSymbols != 0 {
		c.Indexing.FlushSymbols = other.Indexing.FlushSymbols
	}
	if other.Indexing.FlushFiles != 0 {
		c.Indexing.FlushFiles = other.Indexing.FlushFiles
	}
	if other.Indexing.FlushBytes != 0 {
		c.Indexing.FlushBytes = other.Indexing.FlushBytes
	}
	if other.Indexing.FlushInterval != 0 {
		c.Indexing.FlushInterval = other.Indexing.FlushInterval
	}
	if other.Indexing.Workers != 0 {
		c.Indexing.Workers = other.Indexing.Workers
	}

	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}

	if other.Reachability.MaxDepth != 0 {
		c.Reachability.MaxDepth = other.Reachability.MaxDepth
	}

	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.SemanticFallbackThreshold != 0 {
		c.Search.SemanticFallbackThreshold = other.Search.SemanticFallbackThreshold
	}
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}
	if other.Search.TabularAutoThreshold != 0 {
		c.Search.TabularAutoThreshold = other.Search.TabularAutoThreshold
	}

	if other.Trace.MaxDepth != 0 {
		c.Trace.MaxDepth = other.Trace.MaxDepth
	}
	if other.Trace.VectorAssistThreshold != 0 {
		c.Trace.VectorAssistThreshold = other.Trace.VectorAssistThreshold
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.Format != "" {
		c.Logging.Format = other.Logging.Format
	}

	if other.Metrics.Enabled {
		c.Metrics.Enabled = true
	}
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
}

// applyEnvOverrides applies the four environment overrides spec.md names
// (workspace root, embedding model id, max sequence length, offline-only)
// plus the additional MILLER_* knobs needed for indexing/search tuning.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MILLER_WORKSPACE_ROOT"); v != "" {
		c.Workspace.Root = v
	}
	if v := os.Getenv("MILLER_EMBEDDING_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("MILLER_MAX_SEQUENCE_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embeddings.MaxSequenceLength = n
		}
	}
	if v := os.Getenv("MILLER_OFFLINE_ONLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Embeddings.OfflineOnly = b
		}
	}
	if v := os.Getenv("MILLER_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("MILLER_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.RRFConstant = n
		}
	}
	if v := os.Getenv("MILLER_SEMANTIC_FALLBACK_THRESHOLD"); v != "" {
		if f, err := parseFloat64(v); err == nil {
			c.Search.SemanticFallbackThreshold = f
		}
	}
	if v := os.Getenv("MILLER_WATCH_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Watch.Debounce = d
		}
	}
	if v := os.Getenv("MILLER_REACHABILITY_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Reachability.MaxDepth = n
		}
	}
	if v := os.Getenv("MILLER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MILLER_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("MILLER_METRICS_ADDR"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Addr = v
	}
}

func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// DetectProjectType inspects dir for manifest files to guess its dominant
// language.
func DetectProjectType(dir string) ProjectType {
	switch {
	case fileExists(filepath.Join(dir, "go.mod")):
		return ProjectTypeGo
	case fileExists(filepath.Join(dir, "Cargo.toml")):
		return ProjectTypeRust
	case fileExists(filepath.Join(dir, "package.json")):
		return ProjectTypeNode
	case fileExists(filepath.Join(dir, "pyproject.toml")), fileExists(filepath.Join(dir, "setup.py")), fileExists(filepath.Join(dir, "requirements.txt")):
		return ProjectTypePython
	default:
		return ProjectTypeUnknown
	}
}

// FindProjectRoot walks up from startDir looking for a marker of a
// project root (.git, go.mod, package.json, pyproject.toml, Cargo.toml).
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	markers := []string{".git", "go.mod", "package.json", "pyproject.toml", "Cargo.toml"}
	for {
		for _, m := range markers {
			p := filepath.Join(dir, m)
			if fileExists(p) || dirExists(p) {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir, nil
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (p ProjectType) String() string {
	return string(p)
}

func (p ProjectType) IsKnown() bool {
	return p != ProjectTypeUnknown && p != ""
}

// Validate checks the config for internally-inconsistent values.
func (c *Config) Validate() error {
	if c.Search.SemanticFallbackThreshold < 0 || c.Search.SemanticFallbackThreshold > 1 {
		return fmt.Errorf("search.semantic_fallback_threshold must be in [0,1], got %f", c.Search.SemanticFallbackThreshold)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit <= 0 || c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit (%d) must be positive and <= search.max_limit (%d)", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Reachability.MaxDepth <= 0 {
		return fmt.Errorf("reachability.max_depth must be positive, got %d", c.Reachability.MaxDepth)
	}
	if c.Trace.MaxDepth <= 0 {
		return fmt.Errorf("trace.max_depth must be positive, got %d", c.Trace.MaxDepth)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	switch c.Embeddings.Provider {
	case "static", "remote":
	default:
		return fmt.Errorf("embeddings.provider must be static or remote, got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "remote" && c.Embeddings.OfflineOnly {
		return fmt.Errorf("embeddings.provider=remote is incompatible with embeddings.offline_only=true")
	}
	switch c.Vector.Backend {
	case "fts5", "bleve":
	default:
		return fmt.Errorf("vector.backend must be fts5 or bleve, got %q", c.Vector.Backend)
	}
	switch c.Server.Transport {
	case "stdio":
	default:
		return fmt.Errorf("server.transport must be stdio, got %q", c.Server.Transport)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}
	return nil
}

// WriteYAML marshals c and writes it to path, creating parent directories
// as needed.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// LoadUserConfig loads only the user-level config layer (no project
// config, no env overrides), used by `miller init`/`miller doctor` to
// inspect what a user has customized.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// MergeNewDefaults backfills zero-valued fields in c with defaults from a
// fresh NewConfig(), returning the dotted field names that were changed.
// Used on upgrade, when a new release adds config fields a user's saved
// config predates.
func (c *Config) MergeNewDefaults() []string {
	defaults := NewConfig()
	var changed []string

	if c.Search.TabularAutoThreshold == 0 {
		c.Search.TabularAutoThreshold = defaults.Search.TabularAutoThreshold
		changed = append(changed, "search.tabular_auto_threshold")
	}
	if c.Trace.VectorAssistThreshold == 0 {
		c.Trace.VectorAssistThreshold = defaults.Trace.VectorAssistThreshold
		changed = append(changed, "trace.vector_assist_threshold")
	}
	if c.Indexing.Workers == 0 {
		c.Indexing.Workers = defaults.Indexing.Workers
		changed = append(changed, "indexing.workers")
	}
	if c.Embeddings.CacheSize == 0 {
		c.Embeddings.CacheSize = defaults.Embeddings.CacheSize
		changed = append(changed, "embeddings.cache_size")
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = defaults.Metrics.Addr
		changed = append(changed, "metrics.addr")
	}
	if c.Vector.HNSWEfConstruction == 0 {
		c.Vector.HNSWEfConstruction = defaults.Vector.HNSWEfConstruction
		changed = append(changed, "vector.hnsw_ef_construction")
	}
	if c.Vector.HNSWEfSearch == 0 {
		c.Vector.HNSWEfSearch = defaults.Vector.HNSWEfSearch
		changed = append(changed, "vector.hnsw_ef_search")
	}
	if c.Vector.HNSWM == 0 {
		c.Vector.HNSWM = defaults.Vector.HNSWM
		changed = append(changed, "vector.hnsw_m")
	}

	return changed
}
