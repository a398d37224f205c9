package transform

import (
	"context"
	"time"

	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

// GT3D keeps the ground-truth xyz the record already carries.
type GT3D struct {
	target int
	opts   options
}

func NewGT3D(target int, opts ...Option) *GT3D {
	return &GT3D{target: target, opts: newOptions(NameGT3D, opts)}
}

func (t *GT3D) Name() string { return NameGT3D }

func (t *GT3D) Apply(_ context.Context, r *mtypes.Record) (out *mtypes.Record, err error) {
	start := time.Now()
	defer func() { t.opts.observe(NameGT3D, start, err) }()

	if _, err := r.Field(mtypes.KeyXYZ); err != nil {
		return nil, err
	}
	return withTarget(r, t.target)
}
