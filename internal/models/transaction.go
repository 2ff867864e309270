package models

import "time"

// Transaction is one sanitized invoice line.
type Transaction struct {
	InvoiceID   string    `json:"invoice_id"`
	CustomerID  int64     `json:"customer_id"`
	StockCode   string    `json:"stock_code"`
	Description string    `json:"description"`
	Quantity    float64   `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	InvoiceDate time.Time `json:"invoice_date"`
	Country     string    `json:"country"`
	Revenue     float64   `json:"revenue"`
}

type CustomerRFM struct {
	CustomerID int64   `json:"customer_id"`
	Recency    int     `json:"recency"`
	Frequency  int     `json:"frequency"`
	Monetary   float64 `json:"monetary"`
}

type Assignment struct {
	CustomerID int64 `json:"customer_id"`
	ClusterID  int   `json:"cluster_id"`
}

// SegmentedCustomer is an RFM row carrying its cluster label.
type SegmentedCustomer struct {
	CustomerRFM
	ClusterID int `json:"cluster_id"`
}

type SegmentSummary struct {
	ClusterID     int     `json:"cluster_id"`
	RecencyMean   float64 `json:"recency_mean"`
	RecencyMin    float64 `json:"recency_min"`
	RecencyMax    float64 `json:"recency_max"`
	FrequencyMean float64 `json:"frequency_mean"`
	FrequencyMin  float64 `json:"frequency_min"`
	FrequencyMax  float64 `json:"frequency_max"`
	MonetaryMean  float64 `json:"monetary_mean"`
	MonetaryMin   float64 `json:"monetary_min"`
	MonetaryMax   float64 `json:"monetary_max"`
	Count         int     `json:"count"`
	CustomerRatio float64 `json:"customer_ratio"`
	TotalRevenue  float64 `json:"total_revenue"`
	RevenueRatio  float64 `json:"revenue_ratio"`
	CLV           float64 `json:"clv"`
}

// Persona names a cluster relative to the other clusters of the same run.
type Persona struct {
	ClusterID int      `json:"cluster_id"`
	Name      string   `json:"name"`
	Emoji     string   `json:"emoji"`
	Actions   []string `json:"actions"`
	// PotentialRevenue is the cluster revenue if CLV grew by a fifth.
	PotentialRevenue float64 `json:"potential_revenue"`
}
