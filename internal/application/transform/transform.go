// Package transform adds 3D geometry to dataset records. Every adapter
// returns a new record carrying a scalar y taken from props, with props
// removed, and never mutates its input.
package transform

import (
	"context"
	"time"

	"github.com/turtacn/molx/internal/application/dataset"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molx/internal/intelligence/conformer"
	"github.com/turtacn/molx/pkg/errors"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

// Adapter names.
const (
	NamePred3D  = "pred3d"
	NameGT3D    = "gt3d"
	NameRDKit3D = "rdkit3d"
)

// Names lists the adapters accepted by New.
var Names = []string{NamePred3D, NameGT3D, NameRDKit3D}

var (
	ErrTargetOutOfRange = errors.New(errors.ErrCodeTargetOutOfRange, "target index out of range")
	ErrUnknownTransform = errors.New(errors.ErrCodeValidation, "unknown transform; expected pred3d|gt3d|rdkit3d")
)

// DistancePredictor returns a num_nodes × num_nodes matrix for a record.
// *common.StructurePredictor satisfies it.
type DistancePredictor interface {
	PredictDistances(ctx context.Context, r *mtypes.Record) ([][]float64, error)
}

type options struct {
	metrics *prometheus.DatasetMetrics
	logger  logging.Logger
}

type Option func(*options)

func WithMetrics(m *prometheus.DatasetMetrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(name string, opts []Option) options {
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewNopLogger()
	}
	o.logger = o.logger.Named(name)
	return o
}

// observe records the duration and outcome of one application.
func (o options) observe(name string, start time.Time, err error) {
	o.metrics.RecordTransform(name, time.Since(start), err)
	if err != nil {
		o.logger.Debug("transform failed", logging.Err(err))
	}
}

// withTarget clones r, sets y to props[target] and drops props.
func withTarget(r *mtypes.Record, target int) (*mtypes.Record, error) {
	props, err := r.Float32s(mtypes.KeyProps)
	if err != nil {
		return nil, err
	}
	if target < 0 || target >= len(props) {
		return nil, ErrTargetOutOfRange.WithDetailf("target %d, record has %d targets", target, len(props))
	}
	out := r.Clone()
	out.Delete(mtypes.KeyProps)
	out.SetFloat32Scalar(mtypes.KeyY, props[target])
	return out, nil
}

// Config selects and parameterizes an adapter for New.
type Config struct {
	Name   string
	Target int
	// ConfID picks the conformer RDKit3D writes; -1 means the first.
	ConfID    int
	Predictor DistancePredictor
	Embedder  *conformer.Embedder
}

// New builds the adapter named by cfg.Name.
func New(cfg Config, opts ...Option) (dataset.Transform, error) {
	switch cfg.Name {
	case NamePred3D:
		if cfg.Predictor == nil {
			return nil, errors.New(errors.ErrCodeValidation, "pred3d needs a structure predictor")
		}
		return NewPred3D(cfg.Predictor, cfg.Target, opts...), nil
	case NameGT3D:
		return NewGT3D(cfg.Target, opts...), nil
	case NameRDKit3D:
		embedder := cfg.Embedder
		if embedder == nil {
			embedder = conformer.NewEmbedder(conformer.DefaultOptions(), nil)
		}
		return NewRDKit3D(embedder, cfg.Target, cfg.ConfID, opts...)
	}
	return nil, ErrUnknownTransform.WithDetail(cfg.Name)
}
