package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all molx settings.
const envPrefix = "MOLX"

// envKeys lists the scalar keys that may be supplied purely through the
// environment. viper only resolves AutomaticEnv for keys it already knows
// about, so LoadFromEnv binds them explicitly.
var envKeys = []string{
	"log.level", "log.format",
	"dataset.root", "dataset.name", "dataset.split_mode", "dataset.processed_filename",
	"dataset.properties_file", "dataset.target", "dataset.sdf_files",
	"storage.backend", "storage.prefix",
	"minio.endpoint", "minio.access_key", "minio.secret_key", "minio.bucket", "minio.region", "minio.use_ssl",
	"cache.enabled", "cache.addr", "cache.password", "cache.db", "cache.default_ttl", "cache.key_prefix",
	"events.enabled", "events.brokers", "events.topic",
	"metrics.enabled", "metrics.namespace", "metrics.path",
	"server.port", "server.mode",
	"predictor.endpoint", "predictor.health_addr", "predictor.timeout",
	"conformer.seed", "conformer.num_conformers",
	"model.model", "model.task_type", "model.metric", "model.num_tasks", "model.epochs",
	"model.lr", "model.batch_size", "model.hidden", "model.depth",
}

// newViper builds a Viper instance with YAML file type, MOLX_ env prefix,
// automatic env binding and a "." → "_" key replacer so that nested keys like
// "dataset.root" resolve to "MOLX_DATASET_ROOT".
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range envKeys {
		// BindEnv only errors on an empty key list.
		_ = v.BindEnv(k)
	}
	return v
}

// Load reads the YAML file at configPath, merges MOLX_* environment overrides,
// applies defaults and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from MOLX_* environment variables and defaults,
// with no config file required.
//
//	MOLX_<SECTION>_<FIELD>   e.g.  MOLX_DATASET_ROOT, MOLX_CACHE_ADDR
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// unmarshalAndFinalize unmarshals viper state into a Config, applies defaults
// and validates the result.
func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath and invokes onChange with the newly parsed Config
// whenever the file changes. An invalid new config is passed to onError (when
// non-nil) and onChange is skipped. Watch is non-blocking.
func Watch(configPath string, onChange func(*Config), onError func(error)) {
	v := newViper()
	v.SetConfigFile(configPath)

	// Callers are expected to have called Load first.
	_ = v.ReadInConfig()

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// MustLoad wraps Load and panics on any error. Use only in main().
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

// Default returns a Config populated entirely with defaults.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
