package common

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/turtacn/molx/pkg/errors"
)

func newTestBackend(t *testing.T, url string, retries int) *HTTPBackend {
	b, err := NewHTTPBackend(HTTPBackendConfig{
		BaseURL:      url,
		MaxRetries:   retries,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return b
}

func TestNewHTTPBackend_InvalidURL(t *testing.T) {
	_, err := NewHTTPBackend(HTTPBackendConfig{}, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	_, err = NewHTTPBackend(HTTPBackendConfig{BaseURL: "ftp://x"}, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestHTTPBackend_Predict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models/pred3d:predict", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var req PredictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.JSONEq(t, `{"a":1}`, string(req.Inputs))
		_, _ = w.Write([]byte(`{"model_name":"pred3d","outputs":{"distances":[[0,1],[1,0]]},"inference_time_ms":7}`))
	}))
	defer srv.Close()

	b := newTestBackend(t, srv.URL+"/", 0)
	resp, err := b.Predict(context.Background(), &PredictRequest{ModelName: "pred3d", Inputs: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)
	assert.Equal(t, 7*time.Millisecond, resp.InferenceTime())

	raw, err := resp.Output(DistanceOutput)
	require.NoError(t, err)
	mat, err := DecodeSquareMatrix(raw, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 1}, {1, 0}}, mat)

	_, err = resp.Output("missing")
	assert.True(t, errors.IsCode(err, errors.ErrCodeAIOutputInvalid))
}

func TestHTTPBackend_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"outputs":{}}`))
	}))
	defer srv.Close()

	_, err := newTestBackend(t, srv.URL, 3).Predict(context.Background(), &PredictRequest{ModelName: "m", Inputs: json.RawMessage(`1`)})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	atomic.StoreInt32(&calls, -10)
	_, err = newTestBackend(t, srv.URL, 1).Predict(context.Background(), &PredictRequest{ModelName: "m", Inputs: json.RawMessage(`1`)})
	assert.True(t, errors.IsCode(err, errors.ErrCodeAIInferenceFailed))
}

func TestHTTPBackend_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad graph", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestBackend(t, srv.URL, 3).Predict(context.Background(), &PredictRequest{ModelName: "m", Inputs: json.RawMessage(`1`)})
	assert.True(t, errors.IsCode(err, errors.ErrCodeAIInputInvalid))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPBackend_ValidationAndClose(t *testing.T) {
	b := newTestBackend(t, "http://127.0.0.1:1", 0)
	_, err := b.Predict(context.Background(), &PredictRequest{Inputs: json.RawMessage(`1`)})
	assert.True(t, errors.IsCode(err, errors.ErrCodeAIInputInvalid))
	_, err = b.Predict(context.Background(), &PredictRequest{ModelName: "m"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeAIInputInvalid))

	require.NoError(t, b.Close())
	_, err = b.Predict(context.Background(), &PredictRequest{ModelName: "m", Inputs: json.RawMessage(`1`)})
	assert.Equal(t, ErrClientClosed, err)
	assert.Equal(t, ErrClientClosed, b.Healthy(context.Background()))
}

func TestHTTPBackend_Healthy(t *testing.T) {
	ok := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	b := newTestBackend(t, srv.URL, 0)
	assert.NoError(t, b.Healthy(context.Background()))
	ok = false
	assert.True(t, errors.IsCode(b.Healthy(context.Background()), errors.ErrCodeAIModelNotAvailable))
}

func TestProbeGRPCHealth(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	go func() { _ = gs.Serve(lis) }()
	defer gs.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	assert.NoError(t, ProbeGRPCHealth(ctx, lis.Addr().String(), ""))

	b, err := NewHTTPBackend(HTTPBackendConfig{BaseURL: "http://unused", HealthAddr: lis.Addr().String()}, nil)
	require.NoError(t, err)
	assert.NoError(t, b.Healthy(ctx))

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	assert.True(t, errors.IsCode(ProbeGRPCHealth(ctx, lis.Addr().String(), ""), errors.ErrCodeAIModelNotAvailable))
}

func TestDecodeSquareMatrix(t *testing.T) {
	_, err := DecodeSquareMatrix([]byte(`[[1,2],[3]]`), 2)
	assert.Error(t, err)
	_, err = DecodeSquareMatrix([]byte(`[[1]]`), 2)
	assert.Error(t, err)
	_, err = DecodeSquareMatrix([]byte(`"x"`), 1)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAIOutputInvalid))
}
