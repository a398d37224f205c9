package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/turtacn/molx/internal/infrastructure/database/redis"
	"github.com/turtacn/molx/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molx/internal/infrastructure/storage/blob"
	"github.com/turtacn/molx/pkg/errors"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

// DefaultName is the dataset directory name under the root.
const DefaultName = "Molecule3D"

// DefaultSDFFiles are the raw structure files in the order their molecules
// are numbered.
var DefaultSDFFiles = []string{
	"combined_mols_0_to_1000000.sdf",
	"combined_mols_1000000_to_2000000.sdf",
	"combined_mols_2000000_to_3000000.sdf",
	"combined_mols_3000000_to_3899647.sdf",
}

// EventPublisher announces finished builds.
type EventPublisher interface {
	PublishDatasetProcessed(ctx context.Context, payload *kafka.DatasetProcessedPayload) error
}

// Locker serializes builds of the same split mode across processes.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Options configure Open and Process.
type Options struct {
	// Root holds {Name}/raw with the input files; processed splits go to
	// Store, which defaults to a local store at {Root}/{Name}.
	Root              string
	Name              string
	Split             string
	SplitMode         string
	ProcessedFilename string
	SDFFiles          []string
	PropertiesFile    string

	// Transform runs on every Get. PreFilter and PreTransform run once per
	// record while splits are built.
	Transform    Transform
	PreTransform Transform
	PreFilter    Filter

	// Reprocess rebuilds the splits even when a manifest exists.
	Reprocess bool

	Store     blob.Store
	Cache     redis.RecordCache
	Publisher EventPublisher
	Lock      Locker
	Metrics   *prometheus.DatasetMetrics
	Progress  ProgressFactory
	Logger    logging.Logger
}

func (o *Options) applyDefaults() {
	if o.Name == "" {
		o.Name = DefaultName
	}
	if o.Split == "" {
		o.Split = SplitTrain
	}
	if o.SplitMode == "" {
		o.SplitMode = SplitModeRandom
	}
	if o.ProcessedFilename == "" {
		o.ProcessedFilename = "data.pt"
	}
	if len(o.SDFFiles) == 0 {
		o.SDFFiles = DefaultSDFFiles
	}
	if o.PropertiesFile == "" {
		o.PropertiesFile = "properties.csv"
	}
	if o.Store == nil {
		o.Store = blob.NewLocal(filepath.Join(o.Root, o.Name))
	}
	if o.Logger == nil {
		o.Logger = logging.NewNopLogger()
	}
}

// RawDir returns {Root}/{Name}/raw.
func (o Options) RawDir() string { return filepath.Join(o.Root, o.Name, "raw") }

// Molecule3D is one split of the dataset.
type Molecule3D struct {
	opts     Options
	manifest *Manifest
	split    *Split
	logger   logging.Logger

	statsOnce  sync.Once
	statsErr   error
	numFeat    int
	nodeLabels int
	edgeLabels int
}

// Open returns the requested split, building all splits of the split mode
// first when they are missing, were built under another processed
// filename, or Reprocess is set.
func Open(ctx context.Context, opts Options) (*Molecule3D, error) {
	opts.applyDefaults()
	if err := ValidateSplit(opts.Split); err != nil {
		return nil, err
	}
	if err := ValidateSplitMode(opts.SplitMode); err != nil {
		return nil, err
	}

	m, err := loadCurrent(ctx, opts)
	if err != nil {
		return nil, err
	}
	if m == nil {
		if m, err = Process(ctx, opts); err != nil {
			return nil, err
		}
	}

	s, err := OpenSplit(ctx, opts.Store, m, opts.Split,
		WithRecordCache(opts.Cache),
		WithAccessMetrics(opts.Metrics),
		WithSplitLogger(opts.Logger))
	if err != nil {
		return nil, err
	}
	return &Molecule3D{opts: opts, manifest: m, split: s, logger: opts.Logger.Named("molecule3d")}, nil
}

// loadCurrent returns the manifest when it is usable as is, or nil when the
// splits must be (re)built.
func loadCurrent(ctx context.Context, opts Options) (*Manifest, error) {
	if opts.Reprocess {
		return nil, nil
	}
	m, err := LoadManifest(ctx, opts.Store, opts.SplitMode)
	if err != nil {
		if errors.Is(err, ErrNotProcessed) {
			return nil, nil
		}
		return nil, err
	}
	if m.ProcessedFilename != opts.ProcessedFilename {
		return nil, nil
	}
	return m, nil
}

// Process builds every split of opts.SplitMode from the raw data and
// returns the new manifest. With a Lock, concurrent processes build once:
// whoever waited re-reads the manifest instead of building again.
func Process(ctx context.Context, opts Options) (*Manifest, error) {
	opts.applyDefaults()
	if err := ValidateSplitMode(opts.SplitMode); err != nil {
		return nil, err
	}
	logger := opts.Logger.Named("process")

	if opts.Lock != nil {
		if err := opts.Lock.Lock(ctx); err != nil {
			return nil, err
		}
		defer func() {
			if err := opts.Lock.Unlock(context.Background()); err != nil {
				logger.Warn("build lock release failed", logging.Err(err))
			}
		}()
		if m, err := loadCurrent(ctx, opts); err != nil || m != nil {
			if m != nil {
				logger.Info("splits were built while waiting for the lock", logging.String("build_id", m.BuildID))
			}
			return m, err
		}
	}

	start := time.Now()
	reader := NewReader(ReaderConfig{
		RawDir:         opts.RawDir(),
		SDFFiles:       opts.SDFFiles,
		PropertiesFile: opts.PropertiesFile,
	}, opts.Logger, WithProgress(opts.Progress))
	if err := reader.CheckRawFiles(); err != nil {
		return nil, err
	}
	index, err := LoadSplitIndex(opts.RawDir(), opts.SplitMode)
	if err != nil {
		return nil, err
	}
	records, targets, err := reader.ProduceRecords(ctx)
	if err != nil {
		return nil, err
	}

	asm, err := NewAssembler(opts.Store, AssemblerConfig{
		Dataset:           opts.Name,
		SplitMode:         opts.SplitMode,
		ProcessedFilename: opts.ProcessedFilename,
		Targets:           targets,
	}, opts.Logger,
		WithPreFilter(opts.PreFilter),
		WithPreTransform(opts.PreTransform),
		WithBuildMetrics(opts.Metrics))
	if err != nil {
		return nil, err
	}
	m, err := asm.Build(ctx, records, index)
	if err != nil {
		return nil, err
	}
	if opts.Cache != nil {
		if n, err := opts.Cache.DeleteByPrefix(ctx, opts.SplitMode+":"); err != nil {
			logger.Warn("cache invalidation failed", logging.Err(err))
		} else if n > 0 {
			logger.Info("stale cache entries dropped", logging.Int64("keys", n))
		}
	}
	publish(ctx, opts, m, time.Since(start), logger)
	return m, nil
}

// publish announces the build. A failed publish is logged; the build
// itself has already succeeded.
func publish(ctx context.Context, opts Options, m *Manifest, elapsed time.Duration, logger logging.Logger) {
	if opts.Publisher == nil {
		return
	}
	payload := &kafka.DatasetProcessedPayload{
		BuildID:     m.BuildID,
		Dataset:     m.Dataset,
		SplitMode:   m.SplitMode,
		Splits:      make(map[string]int, len(m.Splits)),
		Locations:   make(map[string]string, len(m.Splits)),
		Targets:     m.Targets,
		Duration:    elapsed,
		ProcessedAt: m.CreatedAt,
	}
	for name, info := range m.Splits {
		payload.Splits[name] = info.Records
		payload.Locations[name] = opts.Store.Location(info.Key)
	}
	err := opts.Publisher.PublishDatasetProcessed(ctx, payload)
	opts.Metrics.RecordEvent(err)
	if err != nil {
		logger.Warn("dataset event not published", logging.String("build_id", m.BuildID), logging.Err(err))
	}
}

// Len returns the number of records in the split.
func (d *Molecule3D) Len() int { return d.split.Len() }

// Get returns record i with the access-time transform applied.
func (d *Molecule3D) Get(ctx context.Context, i int) (*mtypes.Record, error) {
	r, err := d.split.Get(ctx, i)
	if err != nil {
		return nil, err
	}
	if d.opts.Transform == nil {
		return r, nil
	}
	return d.opts.Transform.Apply(ctx, r)
}

func (d *Molecule3D) String() string { return fmt.Sprintf("%s(%d)", d.opts.Name, d.Len()) }

func (d *Molecule3D) Manifest() *Manifest { return d.manifest }

func (d *Molecule3D) Split() *Split { return d.split }

func (d *Molecule3D) Close() error { return d.split.Close() }

// NumNodeLabels counts the trailing columns of x that form a one-hot block.
func (d *Molecule3D) NumNodeLabels() (int, error) {
	d.loadStats()
	return d.nodeLabels, d.statsErr
}

// NumNodeAttributes is the number of x columns that are not labels.
func (d *Molecule3D) NumNodeAttributes() (int, error) {
	d.loadStats()
	return d.numFeat - d.nodeLabels, d.statsErr
}

// NumEdgeLabels counts the trailing columns of edge_attr that sum to one
// per edge over the whole split.
func (d *Molecule3D) NumEdgeLabels() (int, error) {
	d.loadStats()
	return d.edgeLabels, d.statsErr
}

func (d *Molecule3D) loadStats() {
	d.statsOnce.Do(func() {
		if d.split.file.HasColumn(mtypes.KeyX) {
			x, err := d.split.Column(mtypes.KeyX)
			if err != nil {
				d.statsErr = err
				return
			}
			d.numFeat = x.RowWidth()
			d.nodeLabels = oneHotSuffix(x)
		}
		if d.split.file.HasColumn(mtypes.KeyEdgeAttr) {
			e, err := d.split.Column(mtypes.KeyEdgeAttr)
			if err != nil {
				d.statsErr = err
				return
			}
			d.edgeLabels = unitSumSuffix(e)
		}
	})
}

// oneHotSuffix returns width-i for the first column i such that every row
// of the block [i, width) is 0/1 with exactly one 1, or 0 when none is.
func oneHotSuffix(f *mtypes.Field) int {
	width, rows := f.RowWidth(), f.Rows()
	for i := 0; i < width; i++ {
		ok := true
		for r := 0; r < rows && ok; r++ {
			var sum int64
			for _, v := range f.Ints[r*width+i : (r+1)*width] {
				if v != 0 && v != 1 {
					ok = false
					break
				}
				sum += v
			}
			ok = ok && sum == 1
		}
		if ok {
			return width - i
		}
	}
	return 0
}

// unitSumSuffix returns width-i for the first column i whose block
// [i, width) sums to the number of rows over the whole field.
func unitSumSuffix(f *mtypes.Field) int {
	width, rows := f.RowWidth(), f.Rows()
	for i := 0; i < width; i++ {
		var sum int64
		for r := 0; r < rows; r++ {
			for _, v := range f.Ints[r*width+i : (r+1)*width] {
				sum += v
			}
		}
		if sum == int64(rows) {
			return width - i
		}
	}
	return 0
}
