package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"rfm-dashboard/internal/config"
	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/ingest"
	"rfm-dashboard/internal/models"
)

const csvHeader = "InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country\n"

// retailCSV builds a year of purchases for three behaviour groups plus a
// few rows the sanitizer must drop.
func retailCSV() string {
	var b strings.Builder
	b.WriteString(csvHeader)
	invoice := 540000

	write := func(customer int, stock string, qty int, price float64, at time.Time, country string) {
		fmt.Fprintf(&b, "%d,%s,ITEM %s,%d,%s,%.2f,%d.0,%s\n",
			invoice, stock, stock, qty, at.Format("1/2/2006 15:04"), price, customer, country)
		invoice++
	}

	start := time.Date(2011, 1, 3, 9, 0, 0, 0, time.UTC)
	for m := range 12 {
		month := start.AddDate(0, m, 0)
		for c := range 6 {
			write(12000+c, "85123A", 10+m, 2.55, month.AddDate(0, 0, c), "United Kingdom")
		}
		if m%3 == 0 {
			for c := range 6 {
				write(13000+c, "22423", 2, 12.75, month.AddDate(0, 0, c), "France")
			}
		}
	}
	for c := range 6 {
		write(14000+c, "84879", 1, 1.69, start.AddDate(0, 0, c), "Germany")
	}

	b.WriteString("C999999,85123A,ITEM,1,1/5/2011 10:00,2.55,12000.0,United Kingdom\n")
	b.WriteString("999998,85123A,ITEM,-4,1/5/2011 10:00,2.55,12000.0,United Kingdom\n")
	b.WriteString("999997,85123A,ITEM,4,1/5/2011 10:00,2.55,,United Kingdom\n")
	return b.String()
}

func testAnalytics(t *testing.T, csv string) *Analytics {
	t.Helper()
	cfg := config.Default().Analysis
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	src := ingest.BytesSource(t.Name(), []byte(csv), ingest.UTF8)
	return NewAnalytics(cfg, src, ingest.NewCache("", logger), logger)
}

func TestAnalytics_RunFromMemorySource(t *testing.T) {
	table, err := ingest.ReadCSV(strings.NewReader(retailCSV()), ingest.UTF8)
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	cache := ingest.NewCache("", logger)
	a := NewAnalytics(config.Default().Analysis, ingest.MemorySource{Name: "retail", Table: table}, cache, logger)

	res, err := a.Run(context.Background(), a.DefaultRunConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Customers) != 18 {
		t.Errorf("customers = %d, want 18", len(res.Customers))
	}
	if len(res.Returns) != 1 || res.Returns[0].Quantity != -4 {
		t.Errorf("returns = %+v, want the single -4 row", res.Returns)
	}

	if _, err := a.Run(context.Background(), a.DefaultRunConfig()); err != nil {
		t.Fatal(err)
	}
	if stats := cache.Stats(); stats["misses"] != int64(1) {
		t.Errorf("memory source should be loaded once, stats = %v", stats)
	}
}

func TestAnalytics_Run(t *testing.T) {
	a := testAnalytics(t, retailCSV())

	var stages []Stage
	rc := a.DefaultRunConfig()
	rc.Progress = func(s Stage) { stages = append(stages, s) }

	res, err := a.Run(context.Background(), rc)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if diff := cmp.Diff(Stages, stages); diff != "" {
		t.Errorf("progress stages mismatch (-want +got):\n%s", diff)
	}
	if res.RunID == "" {
		t.Error("run id should be set")
	}
	if got := len(res.Customers); got != 18 {
		t.Errorf("customers = %d, want 18", got)
	}
	if res.Sanitize.Dropped() != 3 {
		t.Errorf("dropped rows = %d, want 3", res.Sanitize.Dropped())
	}
	if res.K != 3 || len(res.Summaries) != 3 || len(res.Personas) != 3 {
		t.Errorf("k = %d, summaries = %d, personas = %d, want 3 each", res.K, len(res.Summaries), len(res.Personas))
	}
	if want := time.Date(2011, 12, 8, 9, 0, 0, 0, time.UTC); !res.LatestDate.Equal(want) {
		t.Errorf("latest date = %v, want %v", res.LatestDate, want)
	}
	if !res.RefDate.Equal(res.LatestDate) {
		t.Errorf("ref date should default to latest date, got %v", res.RefDate)
	}

	if err := res.Monthly.Validate(); err != nil {
		t.Errorf("monthly series invalid: %v", err)
	}
	if len(res.Monthly.Axis) != 12 {
		t.Errorf("months = %d, want 12", len(res.Monthly.Axis))
	}
	if len(res.Targets) != len(res.Monthly.Series) {
		t.Errorf("target reports = %d, series = %d", len(res.Targets), len(res.Monthly.Series))
	}

	ratio := 0.0
	for _, s := range res.Summaries {
		ratio += s.CustomerRatio
	}
	if math.Abs(ratio-1) > 1e-9 {
		t.Errorf("customer ratios sum to %g", ratio)
	}
}

func TestAnalytics_RunDeterministic(t *testing.T) {
	a := testAnalytics(t, retailCSV())
	rc := a.DefaultRunConfig()

	first, err := a.Run(context.Background(), rc)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Run(context.Background(), rc)
	if err != nil {
		t.Fatal(err)
	}

	if first.RunID == second.RunID {
		t.Error("each run should get its own id")
	}
	if diff := cmp.Diff(first.Customers, second.Customers); diff != "" {
		t.Errorf("segmentation changed between runs:\n%s", diff)
	}

	stats := a.Stats()
	if stats["runs"].(int64) != 2 {
		t.Errorf("runs = %v, want 2", stats["runs"])
	}
	cache := stats["cache"].(map[string]any)
	if cache["misses"].(int64) != 1 || cache["hits"].(int64) != 1 {
		t.Errorf("cache stats = %v, want one miss and one hit", cache)
	}
}

func TestAnalytics_RunCountryFilter(t *testing.T) {
	a := testAnalytics(t, retailCSV())
	rc := a.DefaultRunConfig()
	rc.Country = "France"
	rc.K = 5

	res, err := a.Run(context.Background(), rc)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Customers) != 6 {
		t.Errorf("customers = %d, want 6 French customers", len(res.Customers))
	}
	for _, tx := range res.Transactions {
		if tx.Country != "France" {
			t.Fatalf("transaction from %s survived France filter", tx.Country)
		}
	}
	if res.RequestedK != 5 {
		t.Errorf("requested k = %d, want 5", res.RequestedK)
	}
}

func TestAnalytics_RunErrors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		rc   func(*RunConfig)
		code apperrors.ErrorCode
	}{
		{
			name: "missing column",
			csv:  "InvoiceNo,Quantity,InvoiceDate,UnitPrice\n1,1,2011-01-01,1\n",
			code: apperrors.CodeDataValidation,
		},
		{
			name: "nothing survives cleaning",
			csv:  csvHeader + "C1,S,D,1,2011-01-01,1,1,UK\n",
			code: apperrors.CodeEmptyResult,
		},
		{
			name: "unknown country",
			csv:  retailCSV(),
			rc:   func(rc *RunConfig) { rc.Country = "Atlantis" },
			code: apperrors.CodeEmptyResult,
		},
		{
			name: "invalid k",
			csv:  retailCSV(),
			rc:   func(rc *RunConfig) { rc.K = 0 },
			code: apperrors.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testAnalytics(t, tt.csv)
			rc := a.DefaultRunConfig()
			if tt.rc != nil {
				tt.rc(&rc)
			}

			res, err := a.Run(context.Background(), rc)
			if res != nil {
				t.Error("failed run should not return a partial result")
			}
			if !apperrors.HasCode(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
			if a.Stats()["failures"].(int64) != 1 {
				t.Error("failure should be counted")
			}
		})
	}
}

func TestAnalytics_RunFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "online_retail.csv")
	if err := os.WriteFile(path, []byte(retailCSV()), 0o644); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	src := ingest.FileSource{Path: path, Encoding: ingest.Latin1}
	a := NewAnalytics(config.Default().Analysis, src, ingest.NewCache(t.TempDir(), logger), logger)

	if _, err := a.Run(context.Background(), a.DefaultRunConfig()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestAnalytics_ForecastSegments(t *testing.T) {
	a := testAnalytics(t, retailCSV())
	res, err := a.Run(context.Background(), a.DefaultRunConfig())
	if err != nil {
		t.Fatal(err)
	}

	forecasts, err := a.ForecastSegments(context.Background(), res, 2)
	if err != nil {
		t.Fatalf("ForecastSegments() error = %v", err)
	}
	if len(forecasts) != len(res.Monthly.Series) {
		t.Fatalf("forecasts = %d, want %d", len(forecasts), len(res.Monthly.Series))
	}
	for i, f := range forecasts {
		if f.ClusterID != res.Monthly.Series[i].ClusterID {
			t.Errorf("forecast %d cluster = %d, want %d", i, f.ClusterID, res.Monthly.Series[i].ClusterID)
		}
		if len(f.Points) != 2 || len(f.Advice) != 2 {
			t.Errorf("cluster %d: %d points, %d advice, want 2 each", f.ClusterID, len(f.Points), len(f.Advice))
		}
		if !f.Points[0].Month.Equal(time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("first forecast month = %v, want Jan 2012", f.Points[0].Month)
		}
	}
}

type failingForecaster struct{}

func (failingForecaster) Forecast(context.Context, []models.MonthPoint, int) ([]models.ForecastPoint, error) {
	return nil, fmt.Errorf("model crashed")
}

func TestAnalytics_ForecastSegmentsPropagatesFailure(t *testing.T) {
	a := testAnalytics(t, retailCSV())
	res, err := a.Run(context.Background(), a.DefaultRunConfig())
	if err != nil {
		t.Fatal(err)
	}

	a.WithForecaster(failingForecaster{})
	if _, err := a.ForecastSegments(context.Background(), res, 1); !apperrors.HasCode(err, apperrors.CodeInternal) {
		t.Errorf("error = %v, want INTERNAL_ERROR", err)
	}
}

func TestAnalytics_ForecastProduct(t *testing.T) {
	a := testAnalytics(t, retailCSV())
	res, err := a.Run(context.Background(), a.DefaultRunConfig())
	if err != nil {
		t.Fatal(err)
	}

	f, err := a.ForecastProduct(context.Background(), res, "85123A", "United Kingdom", 3)
	if err != nil {
		t.Fatalf("ForecastProduct() error = %v", err)
	}
	// Quantity grows by one unit per customer each month, so the trend is up.
	if f.Points[0].Delta <= 0 {
		t.Errorf("expected positive delta, got %g", f.Points[0].Delta)
	}

	if _, err := a.ForecastProduct(context.Background(), res, "84879", "Germany", 3); !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Errorf("single-month product error = %v, want VALIDATION_ERROR", err)
	}
}

func TestAnalytics_Impact(t *testing.T) {
	a := testAnalytics(t, retailCSV())
	res, err := a.Run(context.Background(), a.DefaultRunConfig())
	if err != nil {
		t.Fatal(err)
	}

	got, err := a.Impact(res, ImpactQuery{
		StockCode: "85123A",
		Country:   "United Kingdom",
		Event:     time.Date(2011, 7, 1, 0, 0, 0, 0, time.UTC),
		Pre:       6,
		Post:      3,
	})
	if err != nil {
		t.Fatalf("Impact() error = %v", err)
	}
	if len(got.PreData) != 6 || len(got.PostData) != 4 {
		t.Errorf("windows = %d/%d, want 6/4", len(got.PreData), len(got.PostData))
	}
	if got.Impact <= 0 {
		t.Errorf("impact = %g, want positive", got.Impact)
	}

	_, err = a.Impact(res, ImpactQuery{ClusterID: 42, Event: time.Date(2011, 7, 1, 0, 0, 0, 0, time.UTC), Pre: 6, Post: 3})
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Errorf("unknown cluster error = %v, want NOT_FOUND", err)
	}
}

func TestAnalytics_Countries(t *testing.T) {
	a := testAnalytics(t, retailCSV())

	got, err := a.Countries(context.Background())
	if err != nil {
		t.Fatalf("Countries() error = %v", err)
	}
	if diff := cmp.Diff([]string{"France", "Germany", "United Kingdom"}, got); diff != "" {
		t.Errorf("countries mismatch (-want +got):\n%s", diff)
	}
	if misses := a.Stats()["cache"].(map[string]any)["misses"]; misses != int64(1) {
		t.Errorf("cache misses = %v, want the load to be cached", misses)
	}

	if _, err := NewAnalytics(config.Default().Analysis, nil, nil, nil).Countries(context.Background()); !apperrors.HasCode(err, apperrors.CodeServiceUnavail) {
		t.Errorf("nil source error = %v, want SERVICE_UNAVAILABLE", err)
	}
}
