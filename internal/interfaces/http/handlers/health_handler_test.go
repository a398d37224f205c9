package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molx/pkg/errors"
)

func healthRouter(h *HealthHandler) *gin.Engine {
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func TestHealthHandler_Liveness(t *testing.T) {
	failing := NewCheck("cache", func(context.Context) error { return errors.New(errors.ErrCodeCacheError, "down") })
	w := serve(t, healthRouter(NewHealthHandler("v1.2.3", failing)), "/healthz")

	require.Equal(t, http.StatusOK, w.Code)
	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alive", resp.Status)
	assert.Equal(t, "v1.2.3", resp.Version)
}

func TestHealthHandler_Readiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New(errors.ErrCodeAIModelNotAvailable, "predictor down") }

	tests := []struct {
		name     string
		checkers []HealthChecker
		status   int
		want     string
	}{
		{name: "no checkers", status: http.StatusOK, want: "ready"},
		{name: "all healthy", checkers: []HealthChecker{NewCheck("store", ok), NewCheck("cache", ok)}, status: http.StatusOK, want: "ready"},
		{name: "one down", checkers: []HealthChecker{NewCheck("store", ok), NewCheck("predictor", down)}, status: http.StatusServiceUnavailable, want: "not_ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, healthRouter(NewHealthHandler("dev", tt.checkers...)), "/readyz")
			require.Equal(t, tt.status, w.Code)

			var resp ReadinessResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Components, len(tt.checkers))
			if cc, found := resp.Components["predictor"]; found {
				assert.Equal(t, "unhealthy", cc.Status)
				assert.Contains(t, cc.Error, "predictor down")
			}
		})
	}
}
