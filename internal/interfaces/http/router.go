package http

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molx/internal/interfaces/http/handlers"
	"github.com/turtacn/molx/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handler and middleware dependencies of the
// route tree. Nil handlers leave their routes unregistered.
type RouterConfig struct {
	DatasetHandler *handlers.DatasetHandler
	HealthHandler  *handlers.HealthHandler

	CORS      *middleware.CORSConfig
	Logging   middleware.LoggingConfig
	RateLimit middleware.RateLimiter
	// RateLimitConfig is used only with RateLimit.
	RateLimitConfig middleware.RateLimitConfig

	Logger      logging.Logger
	Metrics     prometheus.MetricsCollector
	MetricsPath string
	// Mode is a gin mode: debug, release or test.
	Mode string
}

// NewRouter builds the route tree: probes and metrics at the root, the
// dataset API under /api/v1.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	logger := cfg.Logger.Named("http")

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(logger))
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	r.Use(middleware.RequestLogging(logger, cfg.Logging))

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api/v1")
	if cfg.RateLimit != nil {
		api.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateLimitConfig))
	}
	if cfg.DatasetHandler != nil {
		cfg.DatasetHandler.RegisterRoutes(api)
	}
	return r
}
