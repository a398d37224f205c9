package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molx/internal/application/dataset"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molx/internal/infrastructure/storage/blob"
	"github.com/turtacn/molx/internal/interfaces/http/handlers"
	"github.com/turtacn/molx/internal/interfaces/http/middleware"
)

func newTestRouter(t *testing.T, mutate func(*RouterConfig)) *gin.Engine {
	t.Helper()
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "molx_test"}, nil)
	require.NoError(t, err)
	metrics := prometheus.NewDatasetMetrics(collector)

	cat := dataset.NewCatalog(dataset.Options{Store: blob.NewLocal(t.TempDir()), Metrics: metrics})
	t.Cleanup(func() { cat.Close() })

	cfg := RouterConfig{
		DatasetHandler: handlers.NewDatasetHandler(handlers.CatalogService(cat), nil, nil),
		HealthHandler:  handlers.NewHealthHandler("test"),
		Metrics:        collector,
		Mode:           gin.TestMode,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewRouter(cfg)
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestNewRouter_Routes(t *testing.T) {
	r := newTestRouter(t, nil)

	tests := []struct {
		path   string
		status int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/v1/datasets/random/manifest", http.StatusNotFound},
		{"/api/v1/datasets/cluster/manifest", http.StatusBadRequest},
		{"/api/v1/datasets/random/splits/train", http.StatusNotFound},
		{"/api/v1/datasets/random/splits/train/records/0", http.StatusNotFound},
		{"/api/v1/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(r, tt.path)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		})
	}
}

func TestNewRouter_CustomMetricsPath(t *testing.T) {
	r := newTestRouter(t, func(cfg *RouterConfig) { cfg.MetricsPath = "/internal/metrics" })
	assert.Equal(t, http.StatusOK, get(r, "/internal/metrics").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/metrics").Code)
}

func TestNewRouter_NilHandlers(t *testing.T) {
	r := NewRouter(RouterConfig{Mode: gin.TestMode})
	assert.Equal(t, http.StatusNotFound, get(r, "/healthz").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/datasets/random/manifest").Code)
}

func TestNewRouter_RateLimitOnlyOnAPI(t *testing.T) {
	limiter := middleware.NewTokenBucketLimiter(0.001, 1, 0)
	r := newTestRouter(t, func(cfg *RouterConfig) {
		cfg.RateLimit = limiter
		cfg.RateLimitConfig = middleware.DefaultRateLimitConfig()
	})

	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/datasets/random/manifest").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/api/v1/datasets/random/manifest").Code)
	assert.Equal(t, http.StatusOK, get(r, "/healthz").Code)
}

func TestNewRouter_CORS(t *testing.T) {
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = []string{"https://lab.example.com"}
	r := newTestRouter(t, func(cfg *RouterConfig) { cfg.CORS = &cors })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://lab.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://lab.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewRouter_ServesManifest(t *testing.T) {
	store := blob.NewLocal(t.TempDir())
	m := &dataset.Manifest{BuildID: "b1", SplitMode: dataset.SplitModeRandom, ProcessedFilename: "data.pt",
		Splits: map[string]dataset.SplitInfo{dataset.SplitTrain: {Key: "processed/random/train.data.pt", Records: 1}}}
	require.NoError(t, dataset.SaveManifest(context.Background(), store, m))

	cat := dataset.NewCatalog(dataset.Options{Store: store})
	defer cat.Close()
	r := NewRouter(RouterConfig{
		DatasetHandler: handlers.NewDatasetHandler(handlers.CatalogService(cat), nil, nil),
		Mode:           gin.TestMode,
	})

	w := get(r, "/api/v1/datasets/random/manifest")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"build_id":"b1"`)
}
