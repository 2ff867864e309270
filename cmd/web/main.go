package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"rfm-dashboard/internal/config"
	"rfm-dashboard/internal/ingest"
	"rfm-dashboard/internal/middleware"
	"rfm-dashboard/internal/observability"
	"rfm-dashboard/internal/server"
	"rfm-dashboard/internal/services"
	"rfm-dashboard/internal/ui/templates"
)

const (
	renderTimeout  = 10 * time.Second
	csvLoadTimeout = 2 * time.Minute
	sweepInterval  = time.Minute
	cacheMaxAge    = "private, max-age=60"
)

func dashboardHandler(props templates.DashboardProps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", cacheMaxAge)
		if err := templates.Dashboard(props).Render(ctx, w); err != nil {
			http.Error(w, "render error", http.StatusInternalServerError)
		}
	}
}

func buildAnalytics(cfg *config.Config, logger *slog.Logger) (*services.Analytics, error) {
	enc, err := ingest.ParseEncoding(cfg.Dataset.Encoding)
	if err != nil {
		return nil, err
	}
	src := ingest.FileSource{Path: cfg.Dataset.CSVFile, Encoding: enc}
	cache := ingest.NewCache(cfg.Dataset.CacheDir, logger)
	return services.NewAnalytics(cfg.Analysis, src, cache, logger), nil
}

func buildHandler(cfg *config.Config, analytics *services.Analytics, rateLimiter *middleware.RateLimiter, props templates.DashboardProps, logger *slog.Logger) http.Handler {
	templateHandlers := &server.TemplateHandlers{
		Dashboard: dashboardHandler(props),
	}
	srv := server.NewServer(analytics, logger, templateHandlers)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
	)
	return middlewareChain(srv)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"csv_file", cfg.Dataset.CSVFile,
		"encoding", cfg.Dataset.Encoding,
		"addr", cfg.Address(),
	)

	analytics, err := buildAnalytics(cfg, logger)
	if err != nil {
		logger.Error("invalid dataset configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), csvLoadTimeout)
	start := time.Now()
	countries, err := analytics.Countries(ctx)
	cancel()
	if err != nil {
		logger.Error("failed to load CSV data", "error", err)
		os.Exit(1)
	}
	logger.Info("CSV data loaded successfully", "duration", time.Since(start), "countries", len(countries))

	props := templates.DashboardProps{
		Countries:      countries,
		DefaultCountry: cfg.Analysis.Country,
		DefaultK:       cfg.Analysis.DefaultK,
		MinK:           config.MinClusters,
		MaxK:           config.MaxClusters,
		RevenueTarget:  cfg.Analysis.RevenueTarget,
	}

	rateLimiter := middleware.NewRateLimiter(cfg.Security)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go rateLimiter.Run(sweepCtx, sweepInterval)

	httpServer := server.NewHTTPServer(cfg, buildHandler(cfg, analytics, rateLimiter, props, logger))
	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg.Server)

	gracefulServer.RegisterShutdownHook("rate-limiter", func(ctx context.Context) error {
		stopSweep()
		return nil
	})
	gracefulServer.RegisterShutdownHook("analytics", func(ctx context.Context) error {
		logger.Info("shutting down analytics service", "stats", analytics.Stats())
		return nil
	})

	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
