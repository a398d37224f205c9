// Package config defines the configuration structures for molx. No I/O or
// parsing logic lives in this file, only plain data types and validation.
package config

import (
	"fmt"
	"time"

	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// DatasetConfig locates the raw Molecule3D files and names the processed output.
type DatasetConfig struct {
	// Root is the dataset root; raw files live under <root>/Molecule3D/raw.
	Root              string   `mapstructure:"root" yaml:"root"`
	Name              string   `mapstructure:"name" yaml:"name"`
	SplitMode         string   `mapstructure:"split_mode" yaml:"split_mode"` // "random" | "scaffold"
	ProcessedFilename string   `mapstructure:"processed_filename" yaml:"processed_filename"`
	SDFFiles          []string `mapstructure:"sdf_files" yaml:"sdf_files"`
	PropertiesFile    string   `mapstructure:"properties_file" yaml:"properties_file"`
	// Target is the default property column used by the transform adapters.
	Target int `mapstructure:"target" yaml:"target"`
}

// StorageConfig selects where processed split blobs are written.
type StorageConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // "local" | "minio"
	// Prefix is prepended to object keys on the minio backend.
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// MinIOConfig holds MinIO / S3-compatible object-storage parameters.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

// CacheConfig holds the redis read-through cache parameters for Split.Get.
type CacheConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	Password     string        `mapstructure:"password" yaml:"password"`
	DB           int           `mapstructure:"db" yaml:"db"`
	PoolSize     int           `mapstructure:"pool_size" yaml:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl" yaml:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// EventsConfig holds the Kafka producer parameters for build notifications.
type EventsConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Brokers      []string      `mapstructure:"brokers" yaml:"brokers"`
	Topic        string        `mapstructure:"topic" yaml:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout"`
	RequiredAcks int           `mapstructure:"required_acks" yaml:"required_acks"`
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// MetricsConfig holds the Prometheus registry parameters.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	Subsystem string `mapstructure:"subsystem" yaml:"subsystem"`
	Path      string `mapstructure:"path" yaml:"path"`
}

// ServerConfig holds HTTP server tunables for `molx serve`.
type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	Mode            string        `mapstructure:"mode" yaml:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// PredictorConfig points at the external 3D structure predictor used by the
// Pred3D transform.
type PredictorConfig struct {
	// Endpoint is the base URL of a JSON inference server; the graph of a
	// record is posted to {endpoint}/v1/models/{model}:predict and the
	// reply carries an N×N "distances" output.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Model    string `mapstructure:"model" yaml:"model"`
	// HealthAddr is an optional gRPC address probed with grpc.health.v1.
	HealthAddr string        `mapstructure:"health_addr" yaml:"health_addr"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// ConformerConfig tunes the distance-geometry embedder used by RDKit3D.
type ConformerConfig struct {
	Seed          int64 `mapstructure:"seed" yaml:"seed"`
	NumConformers int   `mapstructure:"num_conformers" yaml:"num_conformers"`
	MaxAttempts   int   `mapstructure:"max_attempts" yaml:"max_attempts"`
	MaxIterations int   `mapstructure:"max_iterations" yaml:"max_iterations"`
}

// ModelConfig holds the hyperparameters of the hierarchical message-passing
// model. molx only carries and validates them; training lives elsewhere.
type ModelConfig struct {
	// Model is "ml2" (with subgraph-level representations) or "ml3" (without).
	Model    string `mapstructure:"model" yaml:"model" json:"model"`
	TaskType string `mapstructure:"task_type" yaml:"task_type" json:"task_type"` // "regression" | "classification"
	Metric   string `mapstructure:"metric" yaml:"metric" json:"metric"`          // "mae" | "rmse" | "prc" | "roc"
	NumTasks int    `mapstructure:"num_tasks" yaml:"num_tasks" json:"num_tasks"`
	// GraphLevelFeature concatenates a 200-d molecule descriptor with the
	// network representation before the prediction head.
	GraphLevelFeature *bool `mapstructure:"graph_level_feature" yaml:"graph_level_feature" json:"graph_level_feature"`

	Epochs          int     `mapstructure:"epochs" yaml:"epochs" json:"epochs"`
	EarlyStopping   int     `mapstructure:"early_stopping" yaml:"early_stopping" json:"early_stopping"`
	LR              float64 `mapstructure:"lr" yaml:"lr" json:"lr"`
	LRDecayFactor   float64 `mapstructure:"lr_decay_factor" yaml:"lr_decay_factor" json:"lr_decay_factor"`
	LRDecayStepSize int     `mapstructure:"lr_decay_step_size" yaml:"lr_decay_step_size" json:"lr_decay_step_size"`
	Dropout         float64 `mapstructure:"dropout" yaml:"dropout" json:"dropout"`
	WeightDecay     float64 `mapstructure:"weight_decay" yaml:"weight_decay" json:"weight_decay"`
	Depth           int     `mapstructure:"depth" yaml:"depth" json:"depth"`
	Hidden          int     `mapstructure:"hidden" yaml:"hidden" json:"hidden"`
	BatchSize       int     `mapstructure:"batch_size" yaml:"batch_size" json:"batch_size"`
	VTBatchSize     int     `mapstructure:"vt_batch_size" yaml:"vt_batch_size" json:"vt_batch_size"`
}

// UseGraphLevelFeature reports the effective graph_level_feature flag.
func (m ModelConfig) UseGraphLevelFeature() bool {
	return m.GraphLevelFeature == nil || *m.GraphLevelFeature
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure. Every component reads its
// settings from the relevant sub-struct.
type Config struct {
	Log       logging.LogConfig `mapstructure:"log" yaml:"log"`
	Dataset   DatasetConfig     `mapstructure:"dataset" yaml:"dataset"`
	Storage   StorageConfig     `mapstructure:"storage" yaml:"storage"`
	MinIO     MinIOConfig       `mapstructure:"minio" yaml:"minio"`
	Cache     CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Events    EventsConfig      `mapstructure:"events" yaml:"events"`
	Metrics   MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Server    ServerConfig      `mapstructure:"server" yaml:"server"`
	Predictor PredictorConfig   `mapstructure:"predictor" yaml:"predictor"`
	Conformer ConformerConfig   `mapstructure:"conformer" yaml:"conformer"`
	Model     ModelConfig       `mapstructure:"model" yaml:"model"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered.
func (c *Config) Validate() error {
	// Dataset
	if c.Dataset.Root == "" {
		return fmt.Errorf("config: dataset.root is required")
	}
	switch c.Dataset.SplitMode {
	case "random", "scaffold":
	default:
		return fmt.Errorf("config: dataset.split_mode %q is invalid; expected random|scaffold", c.Dataset.SplitMode)
	}
	if c.Dataset.ProcessedFilename == "" {
		return fmt.Errorf("config: dataset.processed_filename is required")
	}
	if len(c.Dataset.SDFFiles) == 0 {
		return fmt.Errorf("config: dataset.sdf_files must list at least one file")
	}
	if c.Dataset.Target < 0 {
		return fmt.Errorf("config: dataset.target must be ≥ 0, got %d", c.Dataset.Target)
	}

	// Storage
	switch c.Storage.Backend {
	case "local":
	case "minio":
		if c.MinIO.Endpoint == "" {
			return fmt.Errorf("config: minio.endpoint is required for the minio backend")
		}
		if c.MinIO.Bucket == "" {
			return fmt.Errorf("config: minio.bucket is required for the minio backend")
		}
	default:
		return fmt.Errorf("config: storage.backend %q is invalid; expected local|minio", c.Storage.Backend)
	}

	// Cache
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("config: cache.addr is required when the cache is enabled")
	}
	if c.Cache.DB < 0 {
		return fmt.Errorf("config: cache.db must be ≥ 0, got %d", c.Cache.DB)
	}

	// Events
	if c.Events.Enabled {
		if len(c.Events.Brokers) == 0 {
			return fmt.Errorf("config: events.brokers must contain at least one broker address")
		}
		if c.Events.Topic == "" {
			return fmt.Errorf("config: events.topic is required")
		}
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// Conformer
	if c.Conformer.NumConformers < 1 {
		return fmt.Errorf("config: conformer.num_conformers must be ≥ 1, got %d", c.Conformer.NumConformers)
	}

	// Log
	if _, err := logging.ParseLevel(c.Log.Level.String()); err != nil {
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return c.Model.Validate()
}

// Validate checks the hyperparameters against their allowed values.
func (m *ModelConfig) Validate() error {
	switch m.Model {
	case "ml2", "ml3":
	default:
		return fmt.Errorf("config: model.model %q is invalid; expected ml2|ml3", m.Model)
	}
	switch m.TaskType {
	case "regression", "classification":
	default:
		return fmt.Errorf("config: model.task_type %q is invalid; expected regression|classification", m.TaskType)
	}
	switch m.Metric {
	case "mae", "rmse", "prc", "roc":
	default:
		return fmt.Errorf("config: model.metric %q is invalid; expected mae|rmse|prc|roc", m.Metric)
	}
	if m.TaskType == "regression" && (m.Metric == "prc" || m.Metric == "roc") {
		return fmt.Errorf("config: model.metric %q requires task_type classification", m.Metric)
	}
	if m.TaskType == "classification" && (m.Metric == "mae" || m.Metric == "rmse") {
		return fmt.Errorf("config: model.metric %q requires task_type regression", m.Metric)
	}
	if m.NumTasks < 1 {
		return fmt.Errorf("config: model.num_tasks must be ≥ 1, got %d", m.NumTasks)
	}
	if m.Epochs < 1 || m.BatchSize < 1 || m.VTBatchSize < 1 || m.Depth < 1 || m.Hidden < 1 {
		return fmt.Errorf("config: model epochs, depth, hidden and batch sizes must be ≥ 1")
	}
	if m.LR <= 0 {
		return fmt.Errorf("config: model.lr must be > 0, got %g", m.LR)
	}
	if m.Dropout < 0 || m.Dropout >= 1 {
		return fmt.Errorf("config: model.dropout must be in [0, 1), got %g", m.Dropout)
	}
	if m.WeightDecay < 0 {
		return fmt.Errorf("config: model.weight_decay must be ≥ 0, got %g", m.WeightDecay)
	}
	if m.LRDecayFactor <= 0 || m.LRDecayFactor > 1 {
		return fmt.Errorf("config: model.lr_decay_factor must be in (0, 1], got %g", m.LRDecayFactor)
	}
	return nil
}
