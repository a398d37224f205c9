package common

import (
	"context"
	"encoding/json"

	"github.com/turtacn/molx/pkg/errors"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

// DistanceOutput is the output name holding the predicted N×N matrix.
const DistanceOutput = "distances"

// graphFields are the record fields sent to a structure predictor.
var graphFields = []string{
	mtypes.KeyX, mtypes.KeyEdgeIndex, mtypes.KeyEdgeAttr, mtypes.KeyNumNodes, mtypes.KeyZ,
}

// StructurePredictor asks a served 3D model for a pairwise distance matrix
// of a molecular graph.
type StructurePredictor struct {
	backend ModelBackend
	model   string
	version string
}

func NewStructurePredictor(backend ModelBackend, model, version string) *StructurePredictor {
	return &StructurePredictor{backend: backend, model: model, version: version}
}

// PredictDistances returns the num_nodes × num_nodes matrix predicted for rec.
func (p *StructurePredictor) PredictDistances(ctx context.Context, rec *mtypes.Record) ([][]float64, error) {
	n, err := rec.NumNodes()
	if err != nil {
		return nil, ErrInvalidInput.WithDetail("record has no num_nodes").WithCause(err)
	}

	in := mtypes.NewRecord()
	for _, key := range graphFields {
		f, err := rec.Field(key)
		if err != nil {
			if key == mtypes.KeyZ {
				continue
			}
			return nil, ErrInvalidInput.WithDetailf("record has no %s", key).WithCause(err)
		}
		in.Set(key, f)
	}
	inputs, err := json.Marshal(in)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode graph input")
	}

	resp, err := p.backend.Predict(ctx, &PredictRequest{
		ModelName:    p.model,
		ModelVersion: p.version,
		Inputs:       inputs,
		OutputNames:  []string{DistanceOutput},
	})
	if err != nil {
		return nil, err
	}
	raw, err := resp.Output(DistanceOutput)
	if err != nil {
		return nil, err
	}
	return DecodeSquareMatrix(raw, n)
}

// Healthy forwards to the backend.
func (p *StructurePredictor) Healthy(ctx context.Context) error { return p.backend.Healthy(ctx) }
