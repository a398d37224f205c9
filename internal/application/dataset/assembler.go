package dataset

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molx/internal/infrastructure/storage/blob"
	"github.com/turtacn/molx/internal/infrastructure/storage/tensorfile"
	"github.com/turtacn/molx/internal/intelligence/molgraph"
	"github.com/turtacn/molx/pkg/errors"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

// Filter decides whether a record is kept.
type Filter func(r *mtypes.Record) bool

// Transform maps a record to a new record without mutating its input.
type Transform interface {
	Apply(ctx context.Context, r *mtypes.Record) (*mtypes.Record, error)
}

// TransformFunc adapts a function to Transform.
type TransformFunc func(ctx context.Context, r *mtypes.Record) (*mtypes.Record, error)

func (f TransformFunc) Apply(ctx context.Context, r *mtypes.Record) (*mtypes.Record, error) {
	return f(ctx, r)
}

// AssemblerConfig names what is being built.
type AssemblerConfig struct {
	Dataset           string
	SplitMode         string
	ProcessedFilename string
	Targets           []string
}

// Assembler selects records per split, runs the pre-filter and the
// pre-transform, and persists each split as a tensor file.
type Assembler struct {
	store        blob.Store
	cfg          AssemblerConfig
	preFilter    Filter
	preTransform Transform
	metrics      *prometheus.DatasetMetrics
	logger       logging.Logger
}

type AssemblerOption func(*Assembler)

func WithPreFilter(f Filter) AssemblerOption {
	return func(a *Assembler) { a.preFilter = f }
}

func WithPreTransform(t Transform) AssemblerOption {
	return func(a *Assembler) { a.preTransform = t }
}

func WithBuildMetrics(m *prometheus.DatasetMetrics) AssemblerOption {
	return func(a *Assembler) { a.metrics = m }
}

func NewAssembler(store blob.Store, cfg AssemblerConfig, logger logging.Logger, opts ...AssemblerOption) (*Assembler, error) {
	if err := ValidateSplitMode(cfg.SplitMode); err != nil {
		return nil, err
	}
	if cfg.ProcessedFilename == "" {
		return nil, errors.New(errors.ErrCodeValidation, "processed filename is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	a := &Assembler{store: store, cfg: cfg, logger: logger.Named("assembler")}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Build persists train, val and test and then the manifest. The manifest is
// written last so that a reader never sees a manifest without its splits.
func (a *Assembler) Build(ctx context.Context, records []*mtypes.Record, index SplitIndex) (m *Manifest, err error) {
	start := time.Now()
	produced, skipped := 0, 0
	defer func() {
		a.metrics.RecordBuild(a.cfg.SplitMode, produced, skipped, time.Since(start), err)
	}()

	if err := index.Check(len(records)); err != nil {
		return nil, err
	}

	m = &Manifest{
		BuildID:           uuid.New().String(),
		Dataset:           a.cfg.Dataset,
		SplitMode:         a.cfg.SplitMode,
		ProcessedFilename: a.cfg.ProcessedFilename,
		Splits:            make(map[string]SplitInfo, len(Splits)),
		Targets:           a.cfg.Targets,
		FeatureDims:       molgraph.Dims(),
		CreatedAt:         time.Now().UTC(),
	}
	for _, split := range Splits {
		selected, dropped, err := a.selectSplit(ctx, records, index[IndexKey(split)])
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeUnknown, "split %s", split)
		}
		key := SplitKey(a.cfg.SplitMode, split, a.cfg.ProcessedFilename)
		size, err := a.writeSplit(ctx, key, selected, m.BuildID)
		logging.LogSplitWritten(a.logger, split, a.store.Location(key), len(selected), size, err)
		if err != nil {
			return nil, err
		}
		a.metrics.RecordSplit(a.cfg.SplitMode, split, len(selected), size)
		m.Splits[split] = SplitInfo{Key: key, Records: len(selected), Skipped: dropped, Bytes: size}
		produced += len(selected)
		skipped += dropped
	}
	if err := SaveManifest(ctx, a.store, m); err != nil {
		return nil, err
	}
	logging.LogOperationDuration(a.logger, "build", start,
		logging.String("split_mode", a.cfg.SplitMode),
		logging.String("build_id", m.BuildID))
	return m, nil
}

func (a *Assembler) selectSplit(ctx context.Context, records []*mtypes.Record, inds []int) ([]*mtypes.Record, int, error) {
	out := make([]*mtypes.Record, 0, len(inds))
	dropped := 0
	for _, idx := range inds {
		r := records[idx]
		if a.preFilter != nil && !a.preFilter(r) {
			dropped++
			continue
		}
		if a.preTransform != nil {
			t, err := a.preTransform.Apply(ctx, r)
			if err != nil {
				return nil, 0, errors.Wrapf(err, errors.CodeUnknown, "pre-transform of molecule %d", idx)
			}
			r = t
		}
		out = append(out, r)
	}
	return out, dropped, nil
}

// writeSplit stages the tensor file on local disk so that the store gets a
// sized reader, then uploads it.
func (a *Assembler) writeSplit(ctx context.Context, key string, records []*mtypes.Record, buildID string) (int64, error) {
	tmp, err := os.CreateTemp("", "molx-split-*")
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeStorage, "create staging file")
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	size, err := tensorfile.Write(tmp, records, buildID)
	if err != nil {
		return 0, err
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeStorage, "rewind staging file")
	}
	if err := a.store.Put(ctx, key, tmp, size); err != nil {
		return 0, err
	}
	return size, nil
}
