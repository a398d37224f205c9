package transform

import (
	"context"
	"time"

	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

// Pred3D attaches a predicted distance graph: every non-zero entry (i, j)
// of the predicted matrix, in row-major order, becomes a dist_index row
// [i, j] with dist_weight d_ij.
type Pred3D struct {
	predictor DistancePredictor
	target    int
	opts      options
}

func NewPred3D(p DistancePredictor, target int, opts ...Option) *Pred3D {
	return &Pred3D{predictor: p, target: target, opts: newOptions(NamePred3D, opts)}
}

func (t *Pred3D) Name() string { return NamePred3D }

func (t *Pred3D) Apply(ctx context.Context, r *mtypes.Record) (out *mtypes.Record, err error) {
	start := time.Now()
	defer func() { t.opts.observe(NamePred3D, start, err) }()

	out, err = withTarget(r, t.target)
	if err != nil {
		return nil, err
	}
	dist, err := t.predictor.PredictDistances(ctx, r)
	if err != nil {
		return nil, err
	}

	var index []int64
	var weight []float32
	for i, row := range dist {
		for j, d := range row {
			if d != 0 {
				index = append(index, int64(i), int64(j))
				weight = append(weight, float32(d))
			}
		}
	}
	out.SetInt64(mtypes.KeyDistIndex, []int{len(weight), 2}, index)
	out.SetFloat32(mtypes.KeyDistWeight, []int{len(weight)}, weight)
	t.opts.logger.Debug("distance graph attached",
		logging.Int("nodes", len(dist)),
		logging.Int("edges", len(weight)))
	return out, nil
}
