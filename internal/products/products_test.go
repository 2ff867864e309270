package products

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

func sale(stock string, qty, price float64, at time.Time, country string) models.Transaction {
	return models.Transaction{
		InvoiceID: "1", CustomerID: 1, StockCode: stock, Description: "ITEM " + stock,
		Quantity: qty, UnitPrice: price, InvoiceDate: at, Country: country, Revenue: qty * price,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPriceQuantity(t *testing.T) {
	txs := []models.Transaction{
		sale("85123A", 10, 2.55, day(2011, 1, 3), "United Kingdom"),
		sale("85123A", 5, 2.55, day(2011, 2, 3), "United Kingdom"),
		sale("85123A", 8, 2.95, day(2011, 3, 3), "United Kingdom"),
		sale("85123A", 2, 3.25, day(2011, 4, 3), "United Kingdom"),
		sale("85123A", 100, 1.00, day(2011, 4, 3), "France"),
		sale("22423", 4, 12.75, day(2011, 4, 3), "United Kingdom"),
	}

	got, err := PriceQuantity(txs, "85123A", "United Kingdom")
	if err != nil {
		t.Fatalf("PriceQuantity() error = %v", err)
	}

	want := []PricePoint{{2.55, 15}, {2.95, 8}, {3.25, 2}}
	if diff := cmp.Diff(want, got.Points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
	if got.Description != "ITEM 85123A" {
		t.Errorf("description = %q", got.Description)
	}
	if !got.QuantityFalls || got.Advice != adviceReprice {
		t.Errorf("falling volume not flagged: %+v", got)
	}
	if got.Correlation >= -0.9 {
		t.Errorf("correlation = %v, want strongly negative", got.Correlation)
	}

	all, err := PriceQuantity(txs, "85123A", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all.Points) != 4 || all.Points[0].UnitPrice != 1.00 {
		t.Errorf("all countries should include the French price point: %+v", all.Points)
	}
}

func TestPriceQuantity_SinglePriceAndMissing(t *testing.T) {
	txs := []models.Transaction{sale("22423", 4, 12.75, day(2011, 4, 3), "France")}

	got, err := PriceQuantity(txs, "22423", "France")
	if err != nil {
		t.Fatal(err)
	}
	if got.Correlation != 0 || got.QuantityFalls || got.Advice != adviceHold {
		t.Errorf("single price point: %+v", got)
	}

	if _, err := PriceQuantity(txs, "99999", ""); !apperrors.HasCode(err, apperrors.CodeEmptyResult) {
		t.Errorf("unknown product error = %v, want EMPTY_RESULT", err)
	}
}

func TestEOQ(t *testing.T) {
	tests := []struct {
		name                      string
		demand, ordering, holding float64
		want                      float64
	}{
		{"defaults", 100, 100, 5, math.Sqrt(4000)},
		{"textbook", 1000, 10, 0.5, 200},
		{"no demand", 0, 100, 5, fallbackEOQ},
		{"free holding", 100, 100, 0, fallbackEOQ},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EOQ(tt.demand, tt.ordering, tt.holding); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EOQ() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOptimizeInventory(t *testing.T) {
	txs := []models.Transaction{
		sale("85123A", 10, 2.00, day(2011, 1, 3), "United Kingdom"),
		sale("85123A", 6, 2.00, day(2011, 2, 3), "United Kingdom"),
		sale("22423", 20, 1.00, day(2011, 2, 10), "France"),
		sale("84879", 3, 1.00, day(2011, 5, 1), "Germany"),
		sale("84879", 3, 1.00, day(2012, 2, 1), "Germany"),
	}

	q := DefaultInventoryQuery()
	q.Period, q.Value = PeriodQuarter, 1
	q.CurrentStock = 40

	plan, err := OptimizeInventory(txs, q)
	if err != nil {
		t.Fatalf("OptimizeInventory() error = %v", err)
	}
	if math.Abs(plan.EOQ-math.Sqrt(4000)) > 1e-9 {
		t.Errorf("EOQ = %v", plan.EOQ)
	}

	want := []StockLine{
		{StockCode: "22423", Description: "ITEM 22423", Quantity: 20, Revenue: 20, CurrentStock: 40, OptimalStock: 63, Gap: 23, Action: ActionReorder},
		{StockCode: "85123A", Description: "ITEM 85123A", Quantity: 16, Revenue: 32, CurrentStock: 40, OptimalStock: 63, Gap: 23, Action: ActionReorder},
		{StockCode: "84879", Description: "ITEM 84879", Quantity: 3, Revenue: 3, CurrentStock: 40, OptimalStock: 63, Gap: 23, Action: ActionReorder},
	}
	if diff := cmp.Diff(want, plan.Lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestOptimizeInventory_FiltersAndActions(t *testing.T) {
	txs := []models.Transaction{
		sale("85123A", 10, 2.00, day(2011, 1, 3), "United Kingdom"),
		sale("85123A", 6, 2.00, day(2011, 2, 3), "United Kingdom"),
		sale("22423", 20, 1.00, day(2011, 2, 10), "France"),
	}

	tests := []struct {
		name   string
		mutate func(*InventoryQuery)
		codes  []string
		action string
	}{
		{"month", func(q *InventoryQuery) { q.Period, q.Value, q.CurrentStock = PeriodMonth, 2, 63 }, []string{"22423", "85123A"}, ActionHold},
		{"year", func(q *InventoryQuery) { q.Period, q.Value, q.CurrentStock = PeriodYear, 2011, 200 }, []string{"22423", "85123A"}, ActionReduce},
		{"product", func(q *InventoryQuery) { q.StockCode, q.CurrentStock = "85123A", 0 }, []string{"85123A"}, ActionReorder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := DefaultInventoryQuery()
			tt.mutate(&q)
			plan, err := OptimizeInventory(txs, q)
			if err != nil {
				t.Fatal(err)
			}
			var codes []string
			for _, l := range plan.Lines {
				codes = append(codes, l.StockCode)
				if l.Action != tt.action {
					t.Errorf("%s action = %s, want %s", l.StockCode, l.Action, tt.action)
				}
			}
			if diff := cmp.Diff(tt.codes, codes); diff != "" {
				t.Errorf("codes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOptimizeInventory_Errors(t *testing.T) {
	txs := []models.Transaction{sale("85123A", 10, 2.00, day(2011, 1, 3), "United Kingdom")}

	tests := []struct {
		name string
		q    InventoryQuery
		code apperrors.ErrorCode
	}{
		{"month out of range", InventoryQuery{Period: PeriodMonth, Value: 13}, apperrors.CodeValidation},
		{"quarter out of range", InventoryQuery{Period: PeriodQuarter, Value: 0}, apperrors.CodeValidation},
		{"unknown period", InventoryQuery{Period: "week", Value: 1}, apperrors.CodeValidation},
		{"negative cost", InventoryQuery{HoldingCost: -1}, apperrors.CodeValidation},
		{"nothing selected", InventoryQuery{Period: PeriodYear, Value: 2012}, apperrors.CodeEmptyResult},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := OptimizeInventory(txs, tt.q); !apperrors.HasCode(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}
}
