package cli

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/turtacn/molx/internal/application/dataset"
	"github.com/turtacn/molx/internal/application/transform"
	"github.com/turtacn/molx/internal/config"
	"github.com/turtacn/molx/internal/infrastructure/database/redis"
	"github.com/turtacn/molx/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molx/internal/infrastructure/storage/blob"
	"github.com/turtacn/molx/internal/infrastructure/storage/minio"
	"github.com/turtacn/molx/internal/intelligence/common"
	"github.com/turtacn/molx/internal/intelligence/conformer"
	"github.com/turtacn/molx/internal/interfaces/http/handlers"
)

// eventSource identifies molx in published event envelopes.
const eventSource = "molx"

// Runtime holds the infrastructure built from a Config. Optional pieces
// stay nil when their section is disabled.
type Runtime struct {
	Config *config.Config
	Logger logging.Logger

	Store     blob.Store
	Redis     *redis.Client
	Cache     redis.RecordCache
	Producer  *kafka.Producer
	Publisher *kafka.EventPublisher
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.DatasetMetrics
	Predictor *common.StructurePredictor
	Embedder  *conformer.Embedder

	closers []func() error
}

// NewRuntime connects every enabled backend. On error, whatever was already
// opened is closed.
func NewRuntime(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Runtime, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	rt := &Runtime{Config: cfg, Logger: logger}
	for _, step := range []func() error{rt.initStore, rt.initMetrics, rt.initCache, rt.initEvents, rt.initPredictor} {
		if err := ctx.Err(); err != nil {
			rt.Close()
			return nil, err
		}
		if err := step(); err != nil {
			rt.Close()
			return nil, err
		}
	}
	c := cfg.Conformer
	rt.Embedder = conformer.NewEmbedder(conformer.Options{
		Seed:          c.Seed,
		NumConformers: c.NumConformers,
		MaxAttempts:   c.MaxAttempts,
		MaxIterations: c.MaxIterations,
	}, logger)
	return rt, nil
}

func (rt *Runtime) initStore() error {
	cfg := rt.Config
	switch cfg.Storage.Backend {
	case "minio":
		client, err := minio.NewMinIOClient(&minio.MinIOConfig{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKey,
			SecretAccessKey: cfg.MinIO.SecretKey,
			UseSSL:          cfg.MinIO.UseSSL,
			Region:          cfg.MinIO.Region,
			Bucket:          cfg.MinIO.Bucket,
			Prefix:          cfg.Storage.Prefix,
		}, rt.Logger.Named("minio"))
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, client.Close)
		rt.Store = minio.NewStore(client, rt.Logger)
	default:
		rt.Store = blob.NewLocal(filepath.Join(cfg.Dataset.Root, cfg.Dataset.Name))
	}
	return nil
}

func (rt *Runtime) initMetrics() error {
	m := rt.Config.Metrics
	if !m.Enabled {
		return nil
	}
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            m.Namespace,
		Subsystem:            m.Subsystem,
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, rt.Logger)
	if err != nil {
		return err
	}
	rt.Collector = collector
	rt.Metrics = prometheus.NewDatasetMetrics(collector)
	return nil
}

func (rt *Runtime) initCache() error {
	c := rt.Config.Cache
	if !c.Enabled {
		return nil
	}
	client, err := redis.NewClient(&redis.RedisConfig{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		KeyPrefix:    c.KeyPrefix,
	}, rt.Logger)
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, client.Close)
	rt.Redis = client
	rt.Cache = redis.NewRecordCache(client, rt.Logger, redis.WithDefaultTTL(c.DefaultTTL))
	return nil
}

// kafkaAcks maps the numeric acks setting to the producer's names.
func kafkaAcks(n int) string {
	switch n {
	case 0:
		return "none"
	case -1:
		return "all"
	}
	return "one"
}

func (rt *Runtime) initEvents() error {
	e := rt.Config.Events
	if !e.Enabled {
		return nil
	}
	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      e.Brokers,
		Acks:         kafkaAcks(e.RequiredAcks),
		MaxRetries:   e.MaxAttempts,
		BatchTimeout: e.BatchTimeout,
	}, rt.Logger)
	if err != nil {
		return err
	}
	rt.Producer = producer
	rt.Publisher = kafka.NewEventPublisher(producer, e.Topic, eventSource)
	rt.closers = append(rt.closers, rt.Publisher.Close)
	return nil
}

func (rt *Runtime) initPredictor() error {
	p := rt.Config.Predictor
	if p.Endpoint == "" {
		return nil
	}
	backend, err := common.NewHTTPBackend(common.HTTPBackendConfig{
		BaseURL:    p.Endpoint,
		Timeout:    p.Timeout,
		MaxRetries: p.MaxRetries,
		HealthAddr: p.HealthAddr,
	}, rt.Logger)
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, backend.Close)
	rt.Predictor = common.NewStructurePredictor(backend, p.Model, "")
	return nil
}

// DatasetOptions maps the dataset section and the connected backends onto
// dataset.Options. The build lock is only taken when a cache is configured,
// since it lives in the same redis.
func (rt *Runtime) DatasetOptions() dataset.Options {
	d := rt.Config.Dataset
	opts := dataset.Options{
		Root:              d.Root,
		Name:              d.Name,
		SplitMode:         d.SplitMode,
		ProcessedFilename: d.ProcessedFilename,
		SDFFiles:          d.SDFFiles,
		PropertiesFile:    d.PropertiesFile,
		Store:             rt.Store,
		Cache:             rt.Cache,
		Metrics:           rt.Metrics,
		Logger:            rt.Logger,
	}
	if rt.Publisher != nil {
		opts.Publisher = rt.Publisher
	}
	if rt.Redis != nil {
		opts.Lock = redis.NewMutex(rt.Redis, rt.Logger, "build:"+d.Name+":"+d.SplitMode,
			redis.WithWatchdog(true))
	}
	return opts
}

// Transform builds the named adapter with the runtime's predictor and
// embedder.
func (rt *Runtime) Transform(name string, target, confID int) (dataset.Transform, error) {
	cfg := transform.Config{
		Name:     name,
		Target:   target,
		ConfID:   confID,
		Embedder: rt.Embedder,
	}
	if rt.Predictor != nil {
		cfg.Predictor = rt.Predictor
	}
	return transform.New(cfg, transform.WithMetrics(rt.Metrics), transform.WithLogger(rt.Logger))
}

// HealthCheckers probes every connected backend.
func (rt *Runtime) HealthCheckers() []handlers.HealthChecker {
	checks := []handlers.HealthChecker{
		handlers.NewCheck("store", func(ctx context.Context) error {
			_, err := rt.Store.Exists(ctx, dataset.ManifestKey(rt.Config.Dataset.SplitMode))
			return err
		}),
	}
	if rt.Cache != nil {
		checks = append(checks, handlers.NewCheck("cache", rt.Cache.Ping))
	}
	if rt.Predictor != nil {
		checks = append(checks, handlers.NewCheck("predictor", rt.Predictor.Healthy))
	}
	return checks
}

// Close releases the backends in reverse order of creation.
func (rt *Runtime) Close() error {
	var first error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	rt.closers = nil
	return first
}

// targetArg parses a target given as a column index or a target name of
// the manifest.
func targetArg(raw string, m *dataset.Manifest) (int, error) {
	if i, err := strconv.Atoi(raw); err == nil {
		return i, nil
	}
	if m != nil {
		if i, ok := m.TargetIndex(raw); ok {
			return i, nil
		}
	}
	return 0, transform.ErrTargetOutOfRange.WithDetailf("unknown target %q", raw)
}
