package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() { gin.SetMode(gin.TestMode) }

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	ok := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	r.GET("/api/v1/datasets/random/manifest", ok)
	r.OPTIONS("/api/v1/datasets/random/manifest", ok)
	r.GET("/healthz", ok)
	return r
}

func corsRequest(method, origin string) *http.Request {
	r := httptest.NewRequest(method, "/api/v1/datasets/random/manifest", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestCORS_Preflight(t *testing.T) {
	config := DefaultCORSConfig()
	config.AllowedOrigins = []string{"https://app.example.com"}
	r := newEngine(CORS(config))

	w := httptest.NewRecorder()
	req := corsRequest(http.MethodOptions, "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, HEAD, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	assert.Empty(t, w.Body.String())
}

func TestCORS_Origins(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		wildcard    bool
		credentials bool
		origin      string
		want        string
	}{
		{name: "exact", allowed: []string{"https://a.com"}, origin: "https://a.com", want: "https://a.com"},
		{name: "case insensitive", allowed: []string{"https://A.com"}, origin: "https://a.com", want: "https://a.com"},
		{name: "disallowed", allowed: []string{"https://a.com"}, origin: "https://evil.com", want: ""},
		{name: "star", allowed: []string{"*"}, origin: "https://any.org", want: "*"},
		{name: "star with credentials echoes", allowed: []string{"*"}, credentials: true, origin: "https://any.org", want: "https://any.org"},
		{name: "subdomain", allowed: []string{"*.example.com"}, wildcard: true, origin: "https://lab.example.com", want: "https://lab.example.com"},
		{name: "subdomain pattern off", allowed: []string{"*.example.com"}, origin: "https://lab.example.com", want: ""},
		{name: "no origin", allowed: []string{"*"}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultCORSConfig()
			config.AllowedOrigins = tt.allowed
			config.AllowWildcard = tt.wildcard
			config.AllowCredentials = tt.credentials
			r := newEngine(CORS(config))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, corsRequest(http.MethodGet, tt.origin))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "ok", w.Body.String())
			assert.Equal(t, tt.want, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.want != "" {
				assert.Contains(t, w.Header().Values("Vary"), "Origin")
				assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), RequestIDHeader)
			}
			if tt.credentials {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}

func TestDefaultCORSConfig(t *testing.T) {
	config := DefaultCORSConfig()
	assert.Empty(t, config.AllowedOrigins)
	assert.False(t, config.AllowCredentials)
	assert.NotContains(t, config.AllowedMethods, http.MethodDelete)
}
