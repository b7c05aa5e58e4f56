package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/zjrosen/metagraph/internal/log"
)

// LocalConfigPath is the project-local config file, checked first.
const LocalConfigPath = ".metagraph/config.yaml"

// EnvPrefix prefixes environment overrides, e.g. METAGRAPH_CACHE_CAPACITY.
const EnvPrefix = "METAGRAPH"

var envKeyReplacer = strings.NewReplacer(".", "_")

// KnownKeys returns every dotted configuration key, sorted.
func KnownKeys() []string {
	v := viper.New()
	SetDefaults(v)
	keys := v.AllKeys()
	slices.Sort(keys)
	return keys
}

// IsKnownKey reports whether key is a configuration key.
func IsKnownKey(key string) bool {
	_, found := slices.BinarySearch(KnownKeys(), strings.ToLower(key))
	return found
}

// SetDefaults registers every default with v so that keys absent from the
// config file still unmarshal and can be overridden from the environment.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("manifest", d.Manifest)
	v.SetDefault("cache.capacity", d.Cache.Capacity)
	v.SetDefault("registry.trace_level", d.Registry.TraceLevel)
	v.SetDefault("engine.queue_capacity", d.Engine.QueueCapacity)
	v.SetDefault("engine.slow_command_threshold", d.Engine.SlowCommandThreshold)
	v.SetDefault("watcher.root", d.Watcher.Root)
	v.SetDefault("watcher.debounce", d.Watcher.Debounce)
	v.SetDefault("watcher.ignore", d.Watcher.Ignore)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.path", d.Log.Path)
}

// Locate configures v to read configFile, or, when empty, the first of
// .metagraph/config.yaml and ~/.config/metagraph/config.yaml.
func Locate(v *viper.Viper, configFile string) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		return
	}
	if _, err := os.Stat(LocalConfigPath); err == nil {
		v.SetConfigFile(LocalConfigPath)
		return
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "metagraph"))
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// Load reads configuration into a validated Config. A missing config file is
// not an error; defaults and environment overrides still apply.
func Load(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
	Locate(v, configFile)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(configFile == "" && os.IsNotExist(err)) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		log.Debug(log.CatConfig, "No config file found, using defaults")
	} else {
		log.Debug(log.CatConfig, "Loaded config", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
