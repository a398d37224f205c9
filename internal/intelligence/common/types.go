package common

import (
	"context"
	"encoding/json"
	"time"

	"github.com/turtacn/molx/pkg/errors"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrInvalidInput       = errors.New(errors.ErrCodeAIInputInvalid, "invalid model input")
	ErrInvalidOutput      = errors.New(errors.ErrCodeAIOutputInvalid, "invalid model output")
	ErrInferenceFailed    = errors.New(errors.ErrCodeAIInferenceFailed, "inference failed")
	ErrServingUnavailable = errors.New(errors.ErrCodeAIModelNotAvailable, "serving unavailable")
	ErrClientClosed       = errors.New(errors.ErrCodeServiceUnavailable, "client closed")
)

// ---------------------------------------------------------------------------
// ModelBackend interface
// ---------------------------------------------------------------------------

// ModelBackend invokes a served model.
type ModelBackend interface {
	Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error)
	Healthy(ctx context.Context) error
	Close() error
}

// ---------------------------------------------------------------------------
// Predict types
// ---------------------------------------------------------------------------

// PredictRequest carries the JSON input payload of one inference call.
type PredictRequest struct {
	ModelName    string            `json:"model_name"`
	ModelVersion string            `json:"model_version,omitempty"`
	Inputs       json.RawMessage   `json:"inputs"`
	OutputNames  []string          `json:"output_names,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (r *PredictRequest) Validate() error {
	if r == nil {
		return ErrInvalidInput.WithDetail("nil request")
	}
	if r.ModelName == "" {
		return ErrInvalidInput.WithDetail("model_name is required")
	}
	if len(r.Inputs) == 0 {
		return ErrInvalidInput.WithDetail("inputs are required")
	}
	return nil
}

// PredictResponse carries the named raw outputs of one inference call.
type PredictResponse struct {
	ModelName       string                     `json:"model_name"`
	ModelVersion    string                     `json:"model_version"`
	Outputs         map[string]json.RawMessage `json:"outputs"`
	InferenceTimeMs int64                      `json:"inference_time_ms"`
}

// Output returns the named output or ErrInvalidOutput.
func (r *PredictResponse) Output(name string) (json.RawMessage, error) {
	out, ok := r.Outputs[name]
	if !ok {
		return nil, ErrInvalidOutput.WithDetailf("output %q missing", name)
	}
	return out, nil
}

// InferenceTime returns the backend reported latency.
func (r *PredictResponse) InferenceTime() time.Duration {
	return time.Duration(r.InferenceTimeMs) * time.Millisecond
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// DecodeSquareMatrix decodes a JSON matrix and checks that it is n×n.
func DecodeSquareMatrix(data []byte, n int) ([][]float64, error) {
	var mat [][]float64
	if err := json.Unmarshal(data, &mat); err != nil {
		return nil, ErrInvalidOutput.WithDetail("matrix is not a JSON array of number arrays").WithCause(err)
	}
	if len(mat) != n {
		return nil, ErrInvalidOutput.WithDetailf("matrix has %d rows, want %d", len(mat), n)
	}
	for i, row := range mat {
		if len(row) != n {
			return nil, ErrInvalidOutput.WithDetailf("row %d has %d columns, want %d", i, len(row), n)
		}
	}
	return mat, nil
}
