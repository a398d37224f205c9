package common

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molx/pkg/errors"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*PredictResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBackend) Healthy(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockBackend) Close() error                      { return nil }

func graphRecord() *mtypes.Record {
	r := mtypes.NewRecord()
	r.SetInt64Scalar(mtypes.KeyNumNodes, 2)
	r.SetInt64(mtypes.KeyX, []int{2, 9}, make([]int64, 18))
	r.SetInt64(mtypes.KeyEdgeIndex, []int{2, 2}, []int64{0, 1, 1, 0})
	r.SetInt64(mtypes.KeyEdgeAttr, []int{2, 3}, make([]int64, 6))
	r.SetString(mtypes.KeySMILES, "C=O")
	r.SetFloat32(mtypes.KeyProps, nil, []float32{1, 2})
	return r
}

func TestStructurePredictor_PredictDistances(t *testing.T) {
	backend := new(MockBackend)
	backend.On("Predict", mock.Anything, mock.MatchedBy(func(req *PredictRequest) bool {
		var in map[string]json.RawMessage
		if err := json.Unmarshal(req.Inputs, &in); err != nil {
			return false
		}
		_, hasProps := in[mtypes.KeyProps]
		_, hasX := in[mtypes.KeyX]
		return req.ModelName == "pred3d" && hasX && !hasProps
	})).Return(&PredictResponse{
		Outputs: map[string]json.RawMessage{DistanceOutput: json.RawMessage(`[[0,1.2],[1.2,0]]`)},
	}, nil)

	p := NewStructurePredictor(backend, "pred3d", "")
	mat, err := p.PredictDistances(context.Background(), graphRecord())
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 1.2}, {1.2, 0}}, mat)
	backend.AssertExpectations(t)
}

func TestStructurePredictor_WrongShape(t *testing.T) {
	backend := new(MockBackend)
	backend.On("Predict", mock.Anything, mock.Anything).Return(&PredictResponse{
		Outputs: map[string]json.RawMessage{DistanceOutput: json.RawMessage(`[[0]]`)},
	}, nil)

	_, err := NewStructurePredictor(backend, "pred3d", "").PredictDistances(context.Background(), graphRecord())
	assert.True(t, errors.IsCode(err, errors.ErrCodeAIOutputInvalid))
}

func TestStructurePredictor_MissingGraph(t *testing.T) {
	r := mtypes.NewRecord()
	r.SetInt64Scalar(mtypes.KeyNumNodes, 1)
	_, err := NewStructurePredictor(new(MockBackend), "pred3d", "").PredictDistances(context.Background(), r)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAIInputInvalid))
}
