package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
)

const validConfigYAML = `
log:
  level: debug
  format: console
dataset:
  root: /data/molx
  split_mode: scaffold
  processed_filename: molecule3d.pt
  target: 3
storage:
  backend: minio
minio:
  endpoint: "minio:9000"
  bucket: "datasets"
  access_key: "key"
  secret_key: "secret"
cache:
  enabled: true
  addr: "redis:6379"
  default_ttl: 10m
events:
  enabled: true
  brokers: ["kafka-1:9092", "kafka-2:9092"]
server:
  port: 9000
model:
  model: ml3
  hidden: 128
  lr: 0.001
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FromFile_ValidConfig(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, logging.LevelDebug, cfg.Log.Level)
	assert.Equal(t, "/data/molx", cfg.Dataset.Root)
	assert.Equal(t, "scaffold", cfg.Dataset.SplitMode)
	assert.Equal(t, "molecule3d.pt", cfg.Dataset.ProcessedFilename)
	assert.Equal(t, 3, cfg.Dataset.Target)
	assert.Equal(t, "minio", cfg.Storage.Backend)
	assert.Equal(t, "datasets", cfg.MinIO.Bucket)
	assert.Equal(t, 10*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.Brokers)
	assert.Equal(t, 9000, cfg.Server.Port)

	// Explicit hyperparameters win, the rest are defaulted.
	assert.Equal(t, "ml3", cfg.Model.Model)
	assert.Equal(t, 128, cfg.Model.Hidden)
	assert.InDelta(t, 0.001, cfg.Model.LR, 1e-12)
	assert.Equal(t, 12, cfg.Model.NumTasks)
	assert.Equal(t, 1000, cfg.Model.VTBatchSize)
}

func TestLoad_FromFile_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_FromFile_InvalidYAML(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "dataset: ["))
	assert.Error(t, err)
}

func TestLoad_FromFile_ValidationFailure(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "dataset:\n  split_mode: scaffod\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "split_mode")
}

func TestLoad_EnvOverride(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	t.Setenv("MOLX_SERVER_PORT", "9999")
	t.Setenv("MOLX_DATASET_ROOT", "/mnt/override")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "/mnt/override", cfg.Dataset.Root)
}

func TestLoadFromEnv_DefaultsOnly(t *testing.T) {
	t.Setenv("MOLX_DATASET_SPLIT_MODE", "scaffold")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "scaffold", cfg.Dataset.SplitMode)
	assert.Equal(t, DefaultDatasetRoot, cfg.Dataset.Root)
	assert.Equal(t, DefaultSDFFiles, cfg.Dataset.SDFFiles)
	assert.Equal(t, DefaultStorageBackend, cfg.Storage.Backend)
}

func TestMustLoad_PanicsOnError(t *testing.T) {
	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "missing.yaml")) })
}

func TestWatch_InvokesOnChange(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)

	changed := make(chan *Config, 1)
	Watch(path, func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	}, nil)

	// Give the watcher a moment to register before rewriting the file.
	time.Sleep(100 * time.Millisecond)
	updated := validConfigYAML + "\nconformer:\n  seed: 7\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case c := <-changed:
		assert.Equal(t, int64(7), c.Conformer.Seed)
	case <-time.After(5 * time.Second):
		t.Skip("file watcher did not fire on this platform")
	}
}
