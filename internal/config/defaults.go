package config

import (
	"time"

	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultDatasetRoot       = "dataset"
	DefaultDatasetName       = "Molecule3D"
	DefaultSplitMode         = "random"
	DefaultProcessedFilename = "data.pt"
	DefaultPropertiesFile    = "properties.csv"

	DefaultStorageBackend = "local"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "molx"

	DefaultCacheAddr   = "localhost:6379"
	DefaultCacheTTL    = time.Hour
	DefaultCachePrefix = "molx:"

	DefaultEventsBroker = "localhost:9092"
	DefaultEventsTopic  = "molx.dataset.processed"

	DefaultMetricsNamespace = "molx"
	DefaultMetricsPath      = "/metrics"

	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultPredictorTimeout = 30 * time.Second
	DefaultPredictorModel   = "pred3d"

	DefaultConformerSeed          = 42
	DefaultConformerNumConformers = 1
	DefaultConformerMaxAttempts   = 10
	DefaultConformerMaxIterations = 500

	DefaultLogLevel  = logging.LevelInfo
	DefaultLogFormat = "json"
)

// DefaultSDFFiles are the four raw structure files shipped with Molecule3D,
// in absolute-index order.
var DefaultSDFFiles = []string{
	"combined_mols_0_to_1000000.sdf",
	"combined_mols_1000000_to_2000000.sdf",
	"combined_mols_2000000_to_3000000.sdf",
	"combined_mols_3000000_to_3899647.sdf",
}

// DefaultModel returns the default hyperparameters of the hierarchical
// message-passing model.
func DefaultModel() ModelConfig {
	glf := true
	return ModelConfig{
		Model:             "ml2",
		TaskType:          "regression",
		Metric:            "mae",
		NumTasks:          12,
		GraphLevelFeature: &glf,
		Epochs:            400,
		EarlyStopping:     200,
		LR:                0.0005,
		LRDecayFactor:     0.8,
		LRDecayStepSize:   50,
		Dropout:           0,
		WeightDecay:       0,
		Depth:             3,
		Hidden:            256,
		BatchSize:         64,
		VTBatchSize:       1000,
	}
}

// ApplyDefaults fills every zero-value field in cfg with the default.
// Fields already set by the caller are left unchanged so that explicit
// configuration always wins. It must run after unmarshalling and before
// Validate.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Dataset ───────────────────────────────────────────────────────────────
	if cfg.Dataset.Root == "" {
		cfg.Dataset.Root = DefaultDatasetRoot
	}
	if cfg.Dataset.Name == "" {
		cfg.Dataset.Name = DefaultDatasetName
	}
	if cfg.Dataset.SplitMode == "" {
		cfg.Dataset.SplitMode = DefaultSplitMode
	}
	if cfg.Dataset.ProcessedFilename == "" {
		cfg.Dataset.ProcessedFilename = DefaultProcessedFilename
	}
	if len(cfg.Dataset.SDFFiles) == 0 {
		cfg.Dataset.SDFFiles = append([]string(nil), DefaultSDFFiles...)
	}
	if cfg.Dataset.PropertiesFile == "" {
		cfg.Dataset.PropertiesFile = DefaultPropertiesFile
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Cache ─────────────────────────────────────────────────────────────────
	if cfg.Cache.Addr == "" {
		cfg.Cache.Addr = DefaultCacheAddr
	}
	if cfg.Cache.DefaultTTL == 0 {
		cfg.Cache.DefaultTTL = DefaultCacheTTL
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = DefaultCachePrefix
	}
	// DB is an int; 0 is a valid explicit value and also the default.

	// ── Events ────────────────────────────────────────────────────────────────
	if len(cfg.Events.Brokers) == 0 {
		cfg.Events.Brokers = []string{DefaultEventsBroker}
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = DefaultEventsTopic
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	// ── Predictor ─────────────────────────────────────────────────────────────
	if cfg.Predictor.Model == "" {
		cfg.Predictor.Model = DefaultPredictorModel
	}
	if cfg.Predictor.Timeout == 0 {
		cfg.Predictor.Timeout = DefaultPredictorTimeout
	}

	// ── Conformer ─────────────────────────────────────────────────────────────
	// Seed 0 is replaced too: the embedder is always deterministic.
	if cfg.Conformer.Seed == 0 {
		cfg.Conformer.Seed = DefaultConformerSeed
	}
	if cfg.Conformer.NumConformers == 0 {
		cfg.Conformer.NumConformers = DefaultConformerNumConformers
	}
	if cfg.Conformer.MaxAttempts == 0 {
		cfg.Conformer.MaxAttempts = DefaultConformerMaxAttempts
	}
	if cfg.Conformer.MaxIterations == 0 {
		cfg.Conformer.MaxIterations = DefaultConformerMaxIterations
	}

	// ── Model ─────────────────────────────────────────────────────────────────
	applyModelDefaults(&cfg.Model)

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// applyModelDefaults fills unset hyperparameters. Dropout and weight decay
// default to 0, which is also their zero value.
func applyModelDefaults(m *ModelConfig) {
	d := DefaultModel()
	if m.Model == "" {
		m.Model = d.Model
	}
	if m.TaskType == "" {
		m.TaskType = d.TaskType
	}
	if m.Metric == "" {
		m.Metric = d.Metric
	}
	if m.NumTasks == 0 {
		m.NumTasks = d.NumTasks
	}
	if m.GraphLevelFeature == nil {
		m.GraphLevelFeature = d.GraphLevelFeature
	}
	if m.Epochs == 0 {
		m.Epochs = d.Epochs
	}
	if m.EarlyStopping == 0 {
		m.EarlyStopping = d.EarlyStopping
	}
	if m.LR == 0 {
		m.LR = d.LR
	}
	if m.LRDecayFactor == 0 {
		m.LRDecayFactor = d.LRDecayFactor
	}
	if m.LRDecayStepSize == 0 {
		m.LRDecayStepSize = d.LRDecayStepSize
	}
	if m.Depth == 0 {
		m.Depth = d.Depth
	}
	if m.Hidden == 0 {
		m.Hidden = d.Hidden
	}
	if m.BatchSize == 0 {
		m.BatchSize = d.BatchSize
	}
	if m.VTBatchSize == 0 {
		m.VTBatchSize = d.VTBatchSize
	}
}
