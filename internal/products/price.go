// Package products analyses single stock codes: how volume responds to
// price, and how much stock an economic order quantity suggests holding.
package products

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

const (
	adviceReprice = "quantity falls as price rises, review the pricing strategy"
	adviceHold    = "price can hold or rise without a large effect on volume"
)

type PricePoint struct {
	UnitPrice float64 `json:"unit_price"`
	Quantity  float64 `json:"quantity"`
}

// PriceCurve is the quantity sold of one product at each unit price it was
// sold at, cheapest first.
type PriceCurve struct {
	StockCode   string       `json:"stock_code"`
	Description string       `json:"description"`
	Country     string       `json:"country,omitempty"`
	Points      []PricePoint `json:"points"`
	// Correlation is Pearson's r between price and quantity, 0 when either
	// is constant.
	Correlation float64 `json:"correlation"`
	// QuantityFalls compares the most expensive point against the cheapest.
	QuantityFalls bool   `json:"quantity_falls"`
	Advice        string `json:"advice"`
}

// PriceQuantity groups the sales of stockCode by unit price. An empty
// country covers every country.
func PriceQuantity(txs []models.Transaction, stockCode, country string) (PriceCurve, error) {
	curve := PriceCurve{StockCode: stockCode, Country: country}
	quantities := make(map[float64]float64)
	for _, tx := range txs {
		if tx.StockCode != stockCode || (country != "" && tx.Country != country) {
			continue
		}
		if curve.Description == "" {
			curve.Description = tx.Description
		}
		quantities[tx.UnitPrice] += tx.Quantity
	}
	if len(quantities) == 0 {
		return PriceCurve{}, apperrors.EmptyResult("products", fmt.Sprintf("no sales of product %s", stockCode))
	}

	curve.Points = make([]PricePoint, 0, len(quantities))
	for price, qty := range quantities {
		curve.Points = append(curve.Points, PricePoint{UnitPrice: price, Quantity: qty})
	}
	slices.SortFunc(curve.Points, func(a, b PricePoint) int { return cmp.Compare(a.UnitPrice, b.UnitPrice) })

	prices := make([]float64, len(curve.Points))
	qtys := make([]float64, len(curve.Points))
	for i, p := range curve.Points {
		prices[i], qtys[i] = p.UnitPrice, p.Quantity
	}
	if len(curve.Points) > 1 {
		if r := stat.Correlation(prices, qtys, nil); !math.IsNaN(r) {
			curve.Correlation = r
		}
	}

	curve.QuantityFalls = qtys[len(qtys)-1] < qtys[0]
	curve.Advice = adviceHold
	if curve.QuantityFalls {
		curve.Advice = adviceReprice
	}
	return curve, nil
}
