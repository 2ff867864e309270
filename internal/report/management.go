// Package report builds the management overview of a transaction set:
// revenue by month and country, best sellers, biggest spenders and the
// most returned products.
package report

import (
	"cmp"
	"slices"
	"time"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/monthly"
)

type Limits struct {
	Products  int
	Customers int
	Countries int
	Returns   int
}

func DefaultLimits() Limits {
	return Limits{Products: 10, Customers: 5, Countries: 10, Returns: 10}
}

type CountryMonth struct {
	Month   time.Time `json:"month"`
	Country string    `json:"country"`
	Revenue float64   `json:"revenue"`
}

type ProductQuantity struct {
	StockCode   string  `json:"stock_code"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
}

type CustomerSpend struct {
	CustomerID int64   `json:"customer_id"`
	Revenue    float64 `json:"revenue"`
}

type CountryRevenue struct {
	Country string  `json:"country"`
	Revenue float64 `json:"revenue"`
}

type Management struct {
	TotalRevenue   float64           `json:"total_revenue"`
	MonthlyCountry []CountryMonth    `json:"monthly_country"`
	TopProducts    []ProductQuantity `json:"top_products"`
	TopCustomers   []CustomerSpend   `json:"top_customers"`
	Countries      []CountryRevenue  `json:"countries"`
	// MostReturned sums negative quantities, so the most returned product
	// has the lowest quantity and comes first.
	MostReturned []ProductQuantity `json:"most_returned"`
}

// Build summarizes sales; returns are the negative-quantity rows the
// sanitizer set aside. A limit of zero or less keeps every entry.
func Build(sales, returns []models.Transaction, limits Limits) (Management, error) {
	if len(sales) == 0 {
		return Management{}, apperrors.EmptyResult("report", "no sales to report on")
	}

	var m Management
	byMonthCountry := make(map[CountryMonth]float64)
	byCountry := make(map[string]float64)
	byCustomer := make(map[int64]float64)
	sold := make(map[string]*ProductQuantity)

	for _, tx := range sales {
		m.TotalRevenue += tx.Revenue
		byMonthCountry[CountryMonth{Month: monthly.MonthStart(tx.InvoiceDate), Country: tx.Country}] += tx.Revenue
		byCountry[tx.Country] += tx.Revenue
		byCustomer[tx.CustomerID] += tx.Revenue
		addQuantity(sold, tx)
	}

	returned := make(map[string]*ProductQuantity)
	for _, tx := range returns {
		addQuantity(returned, tx)
	}

	m.MonthlyCountry = make([]CountryMonth, 0, len(byMonthCountry))
	for key, revenue := range byMonthCountry {
		key.Revenue = revenue
		m.MonthlyCountry = append(m.MonthlyCountry, key)
	}
	slices.SortFunc(m.MonthlyCountry, func(a, b CountryMonth) int {
		if c := a.Month.Compare(b.Month); c != 0 {
			return c
		}
		return cmp.Compare(a.Country, b.Country)
	})

	m.Countries = make([]CountryRevenue, 0, len(byCountry))
	for country, revenue := range byCountry {
		m.Countries = append(m.Countries, CountryRevenue{Country: country, Revenue: revenue})
	}
	slices.SortFunc(m.Countries, func(a, b CountryRevenue) int {
		if c := cmp.Compare(b.Revenue, a.Revenue); c != 0 {
			return c
		}
		return cmp.Compare(a.Country, b.Country)
	})
	m.Countries = head(m.Countries, limits.Countries)

	m.TopCustomers = make([]CustomerSpend, 0, len(byCustomer))
	for id, revenue := range byCustomer {
		m.TopCustomers = append(m.TopCustomers, CustomerSpend{CustomerID: id, Revenue: revenue})
	}
	slices.SortFunc(m.TopCustomers, func(a, b CustomerSpend) int {
		if c := cmp.Compare(b.Revenue, a.Revenue); c != 0 {
			return c
		}
		return cmp.Compare(a.CustomerID, b.CustomerID)
	})
	m.TopCustomers = head(m.TopCustomers, limits.Customers)

	m.TopProducts = head(ranked(sold, false), limits.Products)
	m.MostReturned = head(ranked(returned, true), limits.Returns)
	return m, nil
}

func addQuantity(into map[string]*ProductQuantity, tx models.Transaction) {
	p, ok := into[tx.StockCode]
	if !ok {
		p = &ProductQuantity{StockCode: tx.StockCode, Description: tx.Description}
		into[tx.StockCode] = p
	}
	p.Quantity += tx.Quantity
}

func ranked(products map[string]*ProductQuantity, ascending bool) []ProductQuantity {
	out := make([]ProductQuantity, 0, len(products))
	for _, p := range products {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b ProductQuantity) int {
		c := cmp.Compare(b.Quantity, a.Quantity)
		if ascending {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.StockCode, b.StockCode)
	})
	return out
}

func head[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}
