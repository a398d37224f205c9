package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestDefaultModel_Values(t *testing.T) {
	m := DefaultModel()

	assert.Equal(t, "ml2", m.Model)
	assert.Equal(t, "regression", m.TaskType)
	assert.Equal(t, "mae", m.Metric)
	assert.Equal(t, 12, m.NumTasks)
	assert.True(t, m.UseGraphLevelFeature())
	assert.Equal(t, 400, m.Epochs)
	assert.Equal(t, 200, m.EarlyStopping)
	assert.InDelta(t, 0.0005, m.LR, 1e-12)
	assert.InDelta(t, 0.8, m.LRDecayFactor, 1e-12)
	assert.Equal(t, 50, m.LRDecayStepSize)
	assert.Zero(t, m.Dropout)
	assert.Zero(t, m.WeightDecay)
	assert.Equal(t, 3, m.Depth)
	assert.Equal(t, 256, m.Hidden)
	assert.Equal(t, 64, m.BatchSize)
	assert.Equal(t, 1000, m.VTBatchSize)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	glf := false
	cfg := &Config{}
	cfg.Server.Port = 9999
	cfg.Dataset.SDFFiles = []string{"only.sdf"}
	cfg.Model.GraphLevelFeature = &glf
	cfg.Conformer.Seed = 7

	ApplyDefaults(cfg)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, []string{"only.sdf"}, cfg.Dataset.SDFFiles)
	assert.False(t, cfg.Model.UseGraphLevelFeature())
	assert.Equal(t, int64(7), cfg.Conformer.Seed)
}

func TestApplyDefaults_NilSafe(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}

func TestApplyDefaults_DoesNotAliasDefaultSDFFiles(t *testing.T) {
	cfg := Default()
	cfg.Dataset.SDFFiles[0] = "changed.sdf"
	assert.Equal(t, "combined_mols_0_to_1000000.sdf", DefaultSDFFiles[0])
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"split mode", func(c *Config) { c.Dataset.SplitMode = "scaffod" }, "split_mode"},
		{"no sdf files", func(c *Config) { c.Dataset.SDFFiles = []string{} }, "sdf_files"},
		{"negative target", func(c *Config) { c.Dataset.Target = -1 }, "dataset.target"},
		{"backend", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"minio bucket", func(c *Config) { c.Storage.Backend = "minio"; c.MinIO.Bucket = "" }, "minio.bucket"},
		{"cache addr", func(c *Config) { c.Cache.Enabled = true; c.Cache.Addr = "" }, "cache.addr"},
		{"events topic", func(c *Config) { c.Events.Enabled = true; c.Events.Topic = "" }, "events.topic"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "text" }, "log.format"},
		{"model", func(c *Config) { c.Model.Model = "ml1" }, "model.model"},
		{"task type", func(c *Config) { c.Model.TaskType = "ranking" }, "task_type"},
		{"metric mismatch", func(c *Config) { c.Model.Metric = "roc" }, "classification"},
		{"dropout", func(c *Config) { c.Model.Dropout = 1.5 }, "dropout"},
		{"decay", func(c *Config) { c.Model.LRDecayFactor = 2 }, "lr_decay_factor"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestModelConfig_ClassificationMetrics(t *testing.T) {
	m := DefaultModel()
	m.TaskType = "classification"
	m.Metric = "prc"
	assert.NoError(t, m.Validate())

	m.Metric = "rmse"
	assert.Error(t, m.Validate())
}
