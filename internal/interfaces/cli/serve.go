package cli

import (
	"context"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/turtacn/molx/internal/application/dataset"
	"github.com/turtacn/molx/internal/config"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/molx/internal/interfaces/http"
	"github.com/turtacn/molx/internal/interfaces/http/handlers"
	"github.com/turtacn/molx/internal/interfaces/http/middleware"
)

// ServeOptions holds the serve command's flags.
type ServeOptions struct {
	Port        int
	RateLimit   float64
	Burst       int
	CORSOrigins []string
	Watch       bool
}

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve processed splits over HTTP",
		Long: "Serves manifests, split summaries and single records of the processed\n" +
			"splits, with optional access-time 3D transforms. Run `molx process` first;\n" +
			"the server never builds splits itself.",
		Example: "  molx serve --port 8080 --rate-limit 100 --cors-origin https://lab.example.com",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cliCtx, opts)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.Port, "port", "p", 0, "listen port (overrides server.port)")
	f.Float64Var(&opts.RateLimit, "rate-limit", middleware.DefaultRateLimitConfig().RequestsPerSecond, "API requests per second per client (0 disables)")
	f.IntVar(&opts.Burst, "burst", middleware.DefaultRateLimitConfig().BurstSize, "API burst size per client")
	f.StringSliceVar(&opts.CORSOrigins, "cors-origin", nil, "allowed CORS origins (repeatable; empty disables CORS)")
	f.BoolVar(&opts.Watch, "watch-config", false, "log configuration file changes that need a restart")
	return cmd
}

func runServe(ctx context.Context, cliCtx *CLIContext, opts *ServeOptions) error {
	cfg := cliCtx.Config
	logger := cliCtx.Logger
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}

	rt, err := NewRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	cat := dataset.NewCatalog(rt.DatasetOptions())
	defer cat.Close()

	routerCfg := httpserver.RouterConfig{
		DatasetHandler: handlers.NewDatasetHandler(handlers.CatalogService(cat), rt.Transform, logger),
		HealthHandler:  handlers.NewHealthHandler(Version, rt.HealthCheckers()...),
		Logging:        middleware.DefaultLoggingConfig(),
		Logger:         logger,
		MetricsPath:    cfg.Metrics.Path,
		Mode:           cfg.Server.Mode,
	}
	if rt.Collector != nil {
		routerCfg.Metrics = rt.Collector
	}
	if len(opts.CORSOrigins) > 0 {
		cors := middleware.DefaultCORSConfig()
		cors.AllowedOrigins = opts.CORSOrigins
		routerCfg.CORS = &cors
	}
	if opts.RateLimit > 0 {
		limiter := middleware.NewTokenBucketLimiter(opts.RateLimit, opts.Burst, time.Minute)
		defer limiter.Stop()
		routerCfg.RateLimit = limiter
		routerCfg.RateLimitConfig = middleware.DefaultRateLimitConfig()
		routerCfg.RateLimitConfig.RequestsPerSecond = opts.RateLimit
		routerCfg.RateLimitConfig.BurstSize = opts.Burst
	}
	if routerCfg.Mode == "" {
		routerCfg.Mode = gin.ReleaseMode
	}

	srv := httpserver.NewServer(httpserver.ServerConfig{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, httpserver.NewRouter(routerCfg), logger)

	if opts.Watch && cliCtx.ConfigPath != "" {
		watchConfig(cliCtx.ConfigPath, cfg, logger)
	}

	logger.Info("starting molx server",
		logging.String("version", Version),
		logging.String("addr", srv.Addr()),
		logging.String("split_mode", cfg.Dataset.SplitMode),
		logging.String("store", rt.Store.Location("")))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return srv.Stop(context.Background())
}

// watchConfig reports which sections of the file differ from the running
// configuration. Changes only take effect after a restart.
func watchConfig(path string, running *config.Config, logger logging.Logger) {
	logger = logger.Named("config")
	config.Watch(path, func(next *config.Config) {
		changed := changedSections(running, next)
		if len(changed) == 0 {
			return
		}
		logger.Warn("configuration file changed; restart to apply",
			logging.String("path", path),
			logging.Strings("sections", changed))
	}, func(err error) {
		logger.Error("configuration file is invalid", logging.String("path", path), logging.Err(err))
	})
}

func changedSections(a, b *config.Config) []string {
	va, vb := reflect.ValueOf(*a), reflect.ValueOf(*b)
	t := va.Type()
	var changed []string
	for i := 0; i < t.NumField(); i++ {
		if !reflect.DeepEqual(va.Field(i).Interface(), vb.Field(i).Interface()) {
			changed = append(changed, t.Field(i).Tag.Get("yaml"))
		}
	}
	return changed
}
