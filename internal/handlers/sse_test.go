package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/services"
)

func TestNewSSEHandlers(t *testing.T) {
	analytics := createTestAnalytics(t)
	logger := quietLogger()

	handlers := NewSSEHandlers(analytics, logger)

	if handlers == nil {
		t.Fatal("NewSSEHandlers() returned nil")
	}
	if handlers.analytics != analytics {
		t.Error("NewSSEHandlers() should set analytics field")
	}
	if handlers.logger != logger {
		t.Error("NewSSEHandlers() should set logger field")
	}
}

func TestRenderSegmentTable(t *testing.T) {
	res := &services.Analysis{
		K:          2,
		RequestedK: 4,
		RefDate:    time.Date(2011, 12, 9, 0, 0, 0, 0, time.UTC),
		Customers:  make([]models.SegmentedCustomer, 3),
		Summaries: []models.SegmentSummary{
			{ClusterID: 0, Count: 2, CustomerRatio: 2.0 / 3, RecencyMean: 4, FrequencyMean: 12, MonetaryMean: 1500.5, RevenueRatio: 0.9, CLV: 18006},
			{ClusterID: 1, Count: 1, CustomerRatio: 1.0 / 3, RecencyMean: 300, FrequencyMean: 1, MonetaryMean: 333.4, RevenueRatio: 0.1, CLV: 333.4},
		},
		Personas: []models.Persona{
			{ClusterID: 0, Name: "High value", Emoji: "💎"},
			{ClusterID: 1, Name: "Churn risk", Emoji: "⚠️"},
		},
	}

	html, err := renderSegmentTable(res)
	if err != nil {
		t.Fatalf("renderSegmentTable() failed: %v", err)
	}

	expectedContent := []string{
		`<div id="segments-content">`,
		`<table class="modern-table">`,
		"<th>Segment</th>",
		"3 customers, k=2 (requested 4), reference 2011-12-09",
		"High value",
		"Churn risk",
		"66.7%",
		"90.0%",
		"1500.50",
		"18006.00",
	}
	for _, content := range expectedContent {
		if !strings.Contains(html, content) {
			t.Errorf("expected HTML to contain %q", content)
		}
	}

	if rows := strings.Count(html, "<tr>") - 1; rows != 2 {
		t.Errorf("expected 2 segment rows, got %d", rows)
	}
}

func TestMonthlyChartData(t *testing.T) {
	jan := time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)
	res := &services.Analysis{
		Monthly: models.MonthlyRevenue{
			Axis: []time.Time{jan, jan.AddDate(0, 1, 0)},
			Series: []models.SegmentSeries{
				{ClusterID: 0, Months: []string{"Jan 2011", "Feb 2011"}, Revenue: []float64{10, 0}},
			},
		},
		Personas: []models.Persona{{ClusterID: 0, Name: "Loyal"}},
	}

	chart := monthlyChartData(res)

	if strings.Join(chart.Labels, ",") != "Jan 2011,Feb 2011" {
		t.Errorf("labels = %v", chart.Labels)
	}
	if len(chart.Series) != 1 || chart.Series[0].Name != "Loyal" {
		t.Errorf("series = %+v", chart.Series)
	}
}

func TestSSEHandlers_HandleSegments(t *testing.T) {
	handlers := NewSSEHandlers(createTestAnalytics(t), quietLogger())

	req := httptest.NewRequest(http.MethodGet, "/sse/segments?k=3", nil)
	w := httptest.NewRecorder()

	handlers.HandleSegments(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("expected content-type to contain 'text/event-stream', got %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("expected cache-control 'no-cache', got %q", cc)
	}

	body := w.Body.String()
	for _, want := range []string{"<table", "monthlyData", "personas", "targets", "Jan 2011", "runId"} {
		if !strings.Contains(body, want) {
			t.Errorf("stream should contain %q", want)
		}
	}
}

func TestSSEHandlers_HandleSegments_Error(t *testing.T) {
	handlers := NewSSEHandlers(createTestAnalytics(t), quietLogger())

	req := httptest.NewRequest(http.MethodGet, "/sse/segments?k=42", nil)
	w := httptest.NewRecorder()

	handlers.HandleSegments(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "error-banner") || !strings.Contains(body, "k must be between 2 and 10") {
		t.Errorf("stream should patch an error banner, got %q", body)
	}
	if strings.Contains(body, "monthlyData") {
		t.Error("failed run should not push signals")
	}
}

func TestSSEHandlers_HandleForecast(t *testing.T) {
	handlers := NewSSEHandlers(createTestAnalytics(t), quietLogger())

	req := httptest.NewRequest(http.MethodGet, "/sse/forecast?horizon=2", nil)
	w := httptest.NewRecorder()

	handlers.HandleForecast(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "forecastData") {
		t.Error("response should contain forecastData signal")
	}
	if !strings.Contains(body, "Forecast loaded") {
		t.Error("response should contain success message")
	}
}
