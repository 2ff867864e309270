package report

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

func line(customer int64, stock string, qty, price float64, at time.Time, country string) models.Transaction {
	return models.Transaction{
		InvoiceID: "1", CustomerID: customer, StockCode: stock, Description: "ITEM " + stock,
		Quantity: qty, UnitPrice: price, InvoiceDate: at, Country: country, Revenue: qty * price,
	}
}

func TestBuild(t *testing.T) {
	jan := time.Date(2011, 1, 5, 10, 0, 0, 0, time.UTC)
	feb := time.Date(2011, 2, 7, 10, 0, 0, 0, time.UTC)

	sales := []models.Transaction{
		line(1, "A", 10, 2, jan, "United Kingdom"),
		line(1, "B", 1, 50, feb, "United Kingdom"),
		line(2, "A", 5, 2, jan, "France"),
		line(3, "C", 30, 1, feb, "France"),
		line(4, "B", 1, 5, feb, "Germany"),
	}
	returns := []models.Transaction{
		line(1, "A", -3, 2, feb, "United Kingdom"),
		line(2, "C", -8, 1, feb, "France"),
		line(3, "A", -2, 2, feb, "France"),
	}

	m, err := Build(sales, returns, Limits{Products: 2, Customers: 2, Countries: 0, Returns: 1})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if m.TotalRevenue != 115 {
		t.Errorf("total revenue = %v, want 115", m.TotalRevenue)
	}

	janStart := time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)
	febStart := time.Date(2011, 2, 1, 0, 0, 0, 0, time.UTC)
	wantMonthly := []CountryMonth{
		{Month: janStart, Country: "France", Revenue: 10},
		{Month: janStart, Country: "United Kingdom", Revenue: 20},
		{Month: febStart, Country: "France", Revenue: 30},
		{Month: febStart, Country: "Germany", Revenue: 5},
		{Month: febStart, Country: "United Kingdom", Revenue: 50},
	}
	if diff := cmp.Diff(wantMonthly, m.MonthlyCountry); diff != "" {
		t.Errorf("monthly by country mismatch (-want +got):\n%s", diff)
	}

	wantProducts := []ProductQuantity{
		{StockCode: "C", Description: "ITEM C", Quantity: 30},
		{StockCode: "A", Description: "ITEM A", Quantity: 15},
	}
	if diff := cmp.Diff(wantProducts, m.TopProducts); diff != "" {
		t.Errorf("top products mismatch (-want +got):\n%s", diff)
	}

	wantCustomers := []CustomerSpend{{CustomerID: 1, Revenue: 70}, {CustomerID: 3, Revenue: 30}}
	if diff := cmp.Diff(wantCustomers, m.TopCustomers); diff != "" {
		t.Errorf("top customers mismatch (-want +got):\n%s", diff)
	}

	wantCountries := []CountryRevenue{
		{Country: "United Kingdom", Revenue: 70},
		{Country: "France", Revenue: 40},
		{Country: "Germany", Revenue: 5},
	}
	if diff := cmp.Diff(wantCountries, m.Countries); diff != "" {
		t.Errorf("countries mismatch (-want +got):\n%s", diff)
	}

	wantReturned := []ProductQuantity{{StockCode: "C", Description: "ITEM C", Quantity: -8}}
	if diff := cmp.Diff(wantReturned, m.MostReturned); diff != "" {
		t.Errorf("most returned mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_NoSales(t *testing.T) {
	if _, err := Build(nil, nil, DefaultLimits()); !apperrors.HasCode(err, apperrors.CodeEmptyResult) {
		t.Errorf("error = %v, want EMPTY_RESULT", err)
	}
}

func TestBuild_NoReturns(t *testing.T) {
	sales := []models.Transaction{line(1, "A", 1, 1, time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC), "France")}
	m, err := Build(sales, nil, DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	if len(m.MostReturned) != 0 {
		t.Errorf("most returned = %+v, want empty", m.MostReturned)
	}
}
