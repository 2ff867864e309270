package handlers

import (
	"net/http"
	"strings"

	"rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/products"
	"rfm-dashboard/internal/report"
)

// HandlePriceQuantity groups the sales of stock_code by unit price. Without
// product_country it covers every country of the run.
func (h *APIHandlers) HandlePriceQuantity(w http.ResponseWriter, r *http.Request) {
	stock := strings.TrimSpace(r.URL.Query().Get("stock_code"))
	if stock == "" {
		h.fail(w, r, errors.BadRequest("stock_code is required"))
		return
	}
	res, err := h.run(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	country, _ := productCountry(r, res)
	curve, err := products.PriceQuantity(res.Transactions, stock, country)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, curve, cacheHeaders)
}

func inventoryQuery(r *http.Request) (products.InventoryQuery, error) {
	q := products.DefaultInventoryQuery()
	q.Period = products.Period(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("period"))))
	q.StockCode = strings.TrimSpace(r.URL.Query().Get("stock_code"))

	var err error
	if q.Value, err = intParam(r, "value", 0); err != nil {
		return q, err
	}
	if q.LeadTimeDays, err = intParam(r, "lead_time", q.LeadTimeDays); err != nil {
		return q, err
	}
	if q.CurrentStock, err = intParam(r, "stock", 0); err != nil {
		return q, err
	}
	if q.AvgDemand, err = floatParam(r, "demand", q.AvgDemand); err != nil {
		return q, err
	}
	if q.HoldingCost, err = floatParam(r, "holding_cost", q.HoldingCost); err != nil {
		return q, err
	}
	if q.OrderingCost, err = floatParam(r, "ordering_cost", q.OrderingCost); err != nil {
		return q, err
	}
	return q, nil
}

// HandleInventory compares a stock level with the EOQ level for the
// products sold in the selected period.
func (h *APIHandlers) HandleInventory(w http.ResponseWriter, r *http.Request) {
	q, err := inventoryQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.run(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	plan, err := products.OptimizeInventory(res.Transactions, q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, plan, cacheHeaders)
}

type reportResponse struct {
	RunID   string `json:"run_id"`
	Country string `json:"country"`
	report.Management
}

func (h *APIHandlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	res, err := h.run(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	m, err := report.Build(res.Transactions, res.Returns, report.DefaultLimits())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, reportResponse{RunID: res.RunID, Country: res.Country, Management: m}, cacheHeaders)
}
