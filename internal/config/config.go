// Package config provides configuration types and defaults for metagraph.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/metagraph/internal/cachemanager"
	"github.com/zjrosen/metagraph/internal/log"
	"github.com/zjrosen/metagraph/internal/tracing"
)

// Config holds all configuration options for metagraph.
type Config struct {
	// Manifest is the artifact manifest path, relative to the working directory.
	Manifest string         `mapstructure:"manifest"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Registry RegistryConfig `mapstructure:"registry"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Log      LogConfig      `mapstructure:"log"`
}

// CacheConfig holds item cache settings.
type CacheConfig struct {
	Capacity int `mapstructure:"capacity"` // max cached items (minimum 100)
}

// RegistryConfig holds dependency registry settings.
type RegistryConfig struct {
	// TraceLevel: 0 quiet, 1 log every dispatch, 2 also log sweep timings.
	TraceLevel int `mapstructure:"trace_level"`
}

// EngineConfig holds command processor settings.
type EngineConfig struct {
	QueueCapacity        int           `mapstructure:"queue_capacity"`
	SlowCommandThreshold time.Duration `mapstructure:"slow_command_threshold"`
}

// WatcherConfig holds file watcher settings.
type WatcherConfig struct {
	Root     string        `mapstructure:"root"`     // directory to watch (default: current directory)
	Debounce time.Duration `mapstructure:"debounce"` // quiet period before reporting changes
	Ignore   []string      `mapstructure:"ignore"`   // glob patterns matched against base names
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active (default: false).
	Enabled bool `mapstructure:"enabled"`

	// Exporter specifies the trace exporter type: "none", "file", "stdout", "otlp".
	Exporter string `mapstructure:"exporter"`

	// FilePath is the path for file exporter output.
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the endpoint for OTLP exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate is the sampling rate (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate"`
}

// LogConfig holds debug log settings.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	Path  string `mapstructure:"path"`  // log file used with --debug
}

// ProviderConfig converts the tracing section to a tracing.Config.
func (t TracingConfig) ProviderConfig() tracing.Config {
	cfg := tracing.DefaultConfig()
	cfg.Enabled = t.Enabled
	if t.Exporter != "" {
		cfg.Exporter = t.Exporter
	}
	cfg.FilePath = t.FilePath
	if cfg.FilePath == "" {
		cfg.FilePath = DefaultTracesFilePath()
	}
	if t.OTLPEndpoint != "" {
		cfg.OTLPEndpoint = t.OTLPEndpoint
	}
	if t.SampleRate > 0 {
		cfg.SampleRate = t.SampleRate
	}
	return cfg
}

// DefaultTracesFilePath returns the default path for trace files.
// Returns ~/.config/metagraph/traces/traces.jsonl or empty string if home dir unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "metagraph", "traces", "traces.jsonl")
}

// DefaultWatcherIgnore returns the patterns ignored unless configured otherwise.
func DefaultWatcherIgnore() []string {
	return []string{".git", ".metagraph", "*.swp", "*~", ".DS_Store"}
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		Manifest: "metagraph.yaml",
		Cache: CacheConfig{
			Capacity: cachemanager.DefaultCapacity,
		},
		Registry: RegistryConfig{
			TraceLevel: 0,
		},
		Engine: EngineConfig{
			QueueCapacity:        1000,
			SlowCommandThreshold: 100 * time.Millisecond,
		},
		Watcher: WatcherConfig{
			Root:     "",
			Debounce: 200 * time.Millisecond,
			Ignore:   DefaultWatcherIgnore(),
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from home dir at runtime
			OTLPEndpoint: tracing.DefaultOTLPEndpoint,
			SampleRate:   1.0,
		},
		Log: LogConfig{
			Level: "debug",
			Path:  "debug.log",
		},
	}
}

// Validate checks every section.
func Validate(cfg Config) error {
	if err := ValidateCache(cfg.Cache); err != nil {
		return err
	}
	if err := ValidateRegistry(cfg.Registry); err != nil {
		return err
	}
	if err := ValidateEngine(cfg.Engine); err != nil {
		return err
	}
	if err := ValidateWatcher(cfg.Watcher); err != nil {
		return err
	}
	if err := ValidateTracing(cfg.Tracing); err != nil {
		return err
	}
	return ValidateLog(cfg.Log)
}

// ValidateCache checks the cache capacity.
func ValidateCache(cache CacheConfig) error {
	if cache.Capacity < cachemanager.MinCapacity {
		return fmt.Errorf("cache.capacity must be at least %d, got %d", cachemanager.MinCapacity, cache.Capacity)
	}
	return nil
}

// ValidateRegistry checks the registry trace level.
func ValidateRegistry(reg RegistryConfig) error {
	if reg.TraceLevel < 0 || reg.TraceLevel > 2 {
		return fmt.Errorf("registry.trace_level must be 0, 1, or 2, got %d", reg.TraceLevel)
	}
	return nil
}

// ValidateEngine checks command processor settings.
func ValidateEngine(eng EngineConfig) error {
	if eng.QueueCapacity < 1 {
		return fmt.Errorf("engine.queue_capacity must be positive, got %d", eng.QueueCapacity)
	}
	if eng.SlowCommandThreshold < 0 {
		return fmt.Errorf("engine.slow_command_threshold must not be negative, got %v", eng.SlowCommandThreshold)
	}
	return nil
}

// ValidateWatcher checks the watcher settings.
func ValidateWatcher(w WatcherConfig) error {
	if w.Debounce < 0 {
		return fmt.Errorf("watcher.debounce must not be negative, got %v", w.Debounce)
	}
	for _, pattern := range w.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("watcher.ignore pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// ValidateTracing checks the tracing configuration.
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	if tracing.Enabled && tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}

	return nil
}

// ValidateLog checks the log level.
func ValidateLog(l LogConfig) error {
	if _, err := log.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// DefaultConfigTemplate returns a commented YAML config for first-time users.
func DefaultConfigTemplate() string {
	return `# Metagraph Configuration

# Artifact manifest: derived artifacts and the inputs they are computed from
manifest: metagraph.yaml

# Item cache (strict LRU)
cache:
  capacity: 100000   # Max cached items (minimum 100)

# Dependency registry
registry:
  trace_level: 0     # 0 quiet, 1 log every dispatch, 2 also log sweep timings

# Command processor
engine:
  queue_capacity: 1000
  slow_command_threshold: 100ms   # Warn when a command runs longer

# File watcher (metagraph watch)
watcher:
  # root: /path/to/project        # Directory to watch (default: current directory)
  debounce: 200ms                 # Quiet period before changes are reported
  ignore:
    - .git
    - .metagraph
    - "*.swp"
    - "*~"
    - .DS_Store

# Debug log (written when --debug or METAGRAPH_DEBUG is set)
log:
  level: debug   # debug, info, warn, error
  path: debug.log

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/metagraph/traces/traces.jsonl  # Output file for file exporter
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
#
# Example: Send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1  # Sample 10% of traces
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
