package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/monthly"
	"rfm-dashboard/internal/observability"
	"rfm-dashboard/internal/sanitize"
	"rfm-dashboard/internal/services"
	"rfm-dashboard/internal/summary"
)

const (
	defaultCustomerLimit = 20
	maxCustomerLimit     = 500
	defaultProductLimit  = 20
)

var cacheHeaders = map[string]string{
	"Cache-Control": "private, max-age=60",
}

type APIHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewAPIHandlers(analytics *services.Analytics, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
}

// run executes one analysis for the query parameters of r.
func (h *APIHandlers) run(r *http.Request) (*services.Analysis, error) {
	rc, err := runConfigFromQuery(r, h.analytics.DefaultRunConfig())
	if err != nil {
		return nil, err
	}
	return h.analytics.Run(r.Context(), rc)
}

func (h *APIHandlers) HandleSegments(w http.ResponseWriter, r *http.Request) {
	res, err := h.run(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, res, cacheHeaders)
}

type customersResponse struct {
	RunID     string                     `json:"run_id"`
	ClusterID int                        `json:"cluster_id"`
	Persona   models.Persona             `json:"persona"`
	Customers []models.SegmentedCustomer `json:"customers"`
}

func (h *APIHandlers) HandleSegmentCustomers(w http.ResponseWriter, r *http.Request) {
	cluster, err := strconv.Atoi(r.PathValue("cluster"))
	if err != nil {
		h.fail(w, r, errors.BadRequest(fmt.Sprintf("cluster must be an integer, got %q", r.PathValue("cluster"))))
		return
	}
	limit, err := intParam(r, "limit", defaultCustomerLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit = min(max(limit, 1), maxCustomerLimit)

	res, err := h.run(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	persona, ok := res.Persona(cluster)
	if !ok {
		h.fail(w, r, errors.NotFound(fmt.Sprintf("cluster %d not found, run has %d clusters", cluster, res.K)))
		return
	}

	errors.WriteSuccessWithHeaders(w, customersResponse{
		RunID:     res.RunID,
		ClusterID: cluster,
		Persona:   persona,
		Customers: summary.TopCustomers(res.Customers, cluster, limit),
	}, cacheHeaders)
}

type monthlyResponse struct {
	RunID   string                `json:"run_id"`
	Monthly models.MonthlyRevenue `json:"monthly"`
	Targets []models.TargetReport `json:"targets"`
}

func (h *APIHandlers) HandleMonthlyRevenue(w http.ResponseWriter, r *http.Request) {
	res, err := h.run(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, monthlyResponse{
		RunID:   res.RunID,
		Monthly: res.Monthly,
		Targets: res.Targets,
	}, cacheHeaders)
}

type productsResponse struct {
	Countries []string `json:"countries"`
	Country   string   `json:"country"`
	Products  []string `json:"products"`
}

// HandleProducts lists the countries of a run and the best selling stock
// codes of product_country.
func (h *APIHandlers) HandleProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultProductLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.run(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := productsResponse{Countries: sanitize.Countries(res.Transactions)}
	if country, ok := productCountry(r, res); ok {
		resp.Country = country
		resp.Products = monthly.Products(res.Transactions, country, limit)
	}
	errors.WriteSuccessWithHeaders(w, resp, cacheHeaders)
}

type forecastResponse struct {
	RunID     string                     `json:"run_id"`
	Horizon   int                        `json:"horizon"`
	StockCode string                     `json:"stock_code,omitempty"`
	Country   string                     `json:"country,omitempty"`
	Forecasts []services.SegmentForecast `json:"forecasts"`
}

// HandleForecast forecasts every cluster series, or a single product when
// stock_code is given.
func (h *APIHandlers) HandleForecast(w http.ResponseWriter, r *http.Request) {
	horizon, err := intParam(r, "horizon", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.run(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := forecastResponse{RunID: res.RunID, Horizon: horizon}
	if stock := strings.TrimSpace(r.URL.Query().Get("stock_code")); stock != "" {
		country, ok := productCountry(r, res)
		if !ok {
			h.fail(w, r, errors.BadRequest("product_country is required when the run covers all countries"))
			return
		}
		f, err := h.analytics.ForecastProduct(r.Context(), res, stock, country, horizon)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp.StockCode, resp.Country = stock, country
		resp.Forecasts = []services.SegmentForecast{f}
	} else {
		resp.Forecasts, err = h.analytics.ForecastSegments(r.Context(), res, horizon)
		if err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if len(resp.Forecasts) > 0 && len(resp.Forecasts[0].Points) > 0 {
		resp.Horizon = len(resp.Forecasts[0].Points)
	}
	errors.WriteSuccessWithHeaders(w, resp, cacheHeaders)
}

func (h *APIHandlers) HandleImpact(w http.ResponseWriter, r *http.Request) {
	event, err := monthParam(r, "event")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cluster, err := intParam(r, "cluster", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pre, err := intParam(r, "pre", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	post, err := intParam(r, "post", -1)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.run(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	q := services.ImpactQuery{ClusterID: cluster, Event: event, Pre: pre, Post: post}
	if stock := strings.TrimSpace(r.URL.Query().Get("stock_code")); stock != "" {
		country, ok := productCountry(r, res)
		if !ok {
			h.fail(w, r, errors.BadRequest("product_country is required when the run covers all countries"))
			return
		}
		q.StockCode, q.Country = stock, country
	}

	result, err := h.analytics.Impact(res, q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, result, cacheHeaders)
}

// productCountry is product_country, or the run country when the run is
// filtered to one.
func productCountry(r *http.Request, res *services.Analysis) (string, bool) {
	if c := strings.TrimSpace(r.URL.Query().Get("product_country")); c != "" {
		return c, true
	}
	if res.Country != "" && !strings.EqualFold(res.Country, sanitize.AllCountries) {
		return res.Country, true
	}
	return "", false
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {

	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {

	stats := h.analytics.Stats()

	errors.WriteSuccess(w, stats)
}
