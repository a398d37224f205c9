package common

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molx/pkg/errors"
)

// HTTPBackendConfig configures an HTTPBackend.
type HTTPBackendConfig struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// HealthAddr, when set, is a gRPC address probed with the standard
	// health protocol instead of GET /healthz.
	HealthAddr string
}

// HTTPBackend implements ModelBackend against a JSON inference endpoint:
// POST {base}/v1/models/{name}:predict.
type HTTPBackend struct {
	baseURL    string
	httpClient *http.Client
	cfg        HTTPBackendConfig
	logger     logging.Logger
	closed     atomic.Bool
}

// NewHTTPBackend creates a new HTTP backend.
func NewHTTPBackend(cfg HTTPBackendConfig, logger logging.Logger) (*HTTPBackend, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeValidation, "base URL cannot be empty")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, errors.Newf(errors.ErrCodeValidation, "invalid base URL %q", cfg.BaseURL)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryWaitMin == 0 {
		cfg.RetryWaitMin = 200 * time.Millisecond
	}
	if cfg.RetryWaitMax == 0 {
		cfg.RetryWaitMax = 5 * time.Second
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &HTTPBackend{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger.Named("predictor"),
	}, nil
}

func (b *HTTPBackend) Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
	if b.closed.Load() {
		return nil, ErrClientClosed
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode predict request")
	}
	path := fmt.Sprintf("/v1/models/%s:predict", url.PathEscape(req.ModelName))

	var resp PredictResponse
	start := time.Now()
	if err := b.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	if resp.InferenceTimeMs == 0 {
		resp.InferenceTimeMs = time.Since(start).Milliseconds()
	}
	b.logger.Debug("prediction done",
		logging.String("model", req.ModelName),
		logging.Duration("latency", time.Since(start)))
	return &resp, nil
}

// Healthy probes the backend, over gRPC health when configured and
// GET /healthz otherwise.
func (b *HTTPBackend) Healthy(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClientClosed
	}
	if b.cfg.HealthAddr != "" {
		return ProbeGRPCHealth(ctx, b.cfg.HealthAddr, "")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/healthz", nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "build health request")
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return ErrServingUnavailable.WithCause(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return ErrServingUnavailable.WithDetailf("health status %d", resp.StatusCode)
	}
	return nil
}

func (b *HTTPBackend) Close() error {
	if b.closed.CompareAndSwap(false, true) {
		b.httpClient.CloseIdleConnections()
	}
	return nil
}

// do performs a request with retries on transport errors and 5xx replies.
func (b *HTTPBackend) do(ctx context.Context, method, path string, body []byte, result interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := b.backoff(attempt)
			b.logger.Debug("retrying prediction", logging.Int("attempt", attempt), logging.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "prediction cancelled")
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "build predict request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := b.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "prediction cancelled")
			}
			lastErr = ErrServingUnavailable.WithCause(err)
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = ErrInferenceFailed.WithDetail("read response").WithCause(err)
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = ErrInferenceFailed.WithDetailf("status %d: %s", resp.StatusCode, truncate(data, 200))
			continue
		}
		if resp.StatusCode >= 400 {
			return ErrInvalidInput.WithDetailf("status %d: %s", resp.StatusCode, truncate(data, 200))
		}
		if err := json.Unmarshal(data, result); err != nil {
			return ErrInvalidOutput.WithDetail("decode response").WithCause(err)
		}
		return nil
	}
	return lastErr
}

func (b *HTTPBackend) backoff(attempt int) time.Duration {
	d := b.cfg.RetryWaitMin << uint(attempt-1)
	if d > b.cfg.RetryWaitMax || d <= 0 {
		d = b.cfg.RetryWaitMax
	}
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// ProbeGRPCHealth calls grpc.health.v1.Health/Check on addr and fails
// unless the service reports SERVING.
func ProbeGRPCHealth(ctx context.Context, addr, service string) error {
	conn, err := grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return ErrServingUnavailable.WithDetail(addr).WithCause(err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return ErrServingUnavailable.WithDetail(addr).WithCause(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return ErrServingUnavailable.WithDetailf("%s reports %s", addr, resp.GetStatus())
	}
	return nil
}
