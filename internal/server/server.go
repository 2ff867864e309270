package server

import (
	"log/slog"
	"net/http"

	"rfm-dashboard/internal/config"
	"rfm-dashboard/internal/handlers"
	"rfm-dashboard/internal/services"
)

type Server struct {
	analytics   *services.Analytics
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

func NewServer(analytics *services.Analytics, logger *slog.Logger, templateHandlers *TemplateHandlers) *Server {
	s := &Server{
		analytics:   analytics,
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(analytics, logger),
		sseHandlers: handlers.NewSSEHandlers(analytics, logger),
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	// Dashboard routes
	if templateHandlers != nil && templateHandlers.Dashboard != nil {
		s.mux.HandleFunc("GET /{$}", templateHandlers.Dashboard)
	}
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)

	// Segmentation API
	s.mux.HandleFunc("GET /api/segments", s.apiHandlers.HandleSegments)
	s.mux.HandleFunc("GET /api/segments/{cluster}/customers", s.apiHandlers.HandleSegmentCustomers)
	s.mux.HandleFunc("GET /api/monthly-revenue", s.apiHandlers.HandleMonthlyRevenue)
	s.mux.HandleFunc("GET /api/products", s.apiHandlers.HandleProducts)
	s.mux.HandleFunc("GET /api/forecast", s.apiHandlers.HandleForecast)
	s.mux.HandleFunc("GET /api/impact", s.apiHandlers.HandleImpact)

	// Product and management reports
	s.mux.HandleFunc("GET /api/price-quantity", s.apiHandlers.HandlePriceQuantity)
	s.mux.HandleFunc("GET /api/inventory", s.apiHandlers.HandleInventory)
	s.mux.HandleFunc("GET /api/report", s.apiHandlers.HandleReport)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/segments", s.sseHandlers.HandleSegments)
	s.mux.HandleFunc("GET /sse/forecast", s.sseHandlers.HandleForecast)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// NewHTTPServer binds handler to the configured address and timeouts.
func NewHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
