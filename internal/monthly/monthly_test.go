package monthly

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

func sale(customer int64, at time.Time, revenue float64) models.Transaction {
	return models.Transaction{CustomerID: customer, InvoiceDate: at, Revenue: revenue}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 30, 0, 0, time.UTC)
}

func TestReconstruct_ZeroFillsMissingMonths(t *testing.T) {
	txs := []models.Transaction{
		sale(1, day(2011, 1, 3), 10),
		sale(1, day(2011, 2, 14), 5),
		sale(1, day(2011, 3, 1), 7),
		sale(2, day(2011, 1, 20), 100),
		sale(2, day(2011, 1, 21), 50),
		sale(2, day(2011, 3, 31), 40),
		sale(99, day(2011, 4, 1), 1000),
	}
	assignments := []models.Assignment{{CustomerID: 1, ClusterID: 0}, {CustomerID: 2, ClusterID: 1}}

	got, err := Reconstruct(txs, assignments)
	if err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}

	wantAxis := []time.Time{
		time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2011, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2011, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(wantAxis, got.Axis); diff != "" {
		t.Errorf("axis mismatch (-want +got):\n%s", diff)
	}

	labels := []string{"Jan 2011", "Feb 2011", "Mar 2011"}
	want := []models.SegmentSeries{
		{ClusterID: 0, Months: labels, Revenue: []float64{10, 5, 7}},
		{ClusterID: 1, Months: labels, Revenue: []float64{150, 0, 40}},
	}
	if diff := cmp.Diff(want, got.Series); diff != "" {
		t.Errorf("series mismatch (-want +got):\n%s", diff)
	}
}

func TestReconstruct_Rectangular(t *testing.T) {
	var txs []models.Transaction
	var assignments []models.Assignment
	for c := int64(0); c < 12; c++ {
		assignments = append(assignments, models.Assignment{CustomerID: c, ClusterID: int(c % 4)})
		txs = append(txs, sale(c, day(2010, time.Month(1+c), 5), float64(c)))
	}

	got, err := Reconstruct(txs, assignments)
	if err != nil {
		t.Fatal(err)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if len(got.Series) != 4 {
		t.Errorf("series = %d, want 4", len(got.Series))
	}
	for _, s := range got.Series {
		if len(s.Revenue) != 12 {
			t.Errorf("cluster %d has %d months, want 12", s.ClusterID, len(s.Revenue))
		}
	}
}

func TestReconstruct_KeepsClusterWithoutJoinedSales(t *testing.T) {
	txs := []models.Transaction{sale(1, day(2011, 5, 1), 3)}
	assignments := []models.Assignment{{CustomerID: 1, ClusterID: 0}, {CustomerID: 2, ClusterID: 1}}

	got, err := Reconstruct(txs, assignments)
	if err != nil {
		t.Fatal(err)
	}
	s, ok := got.Cluster(1)
	if !ok {
		t.Fatal("cluster 1 missing from result")
	}
	if diff := cmp.Diff([]float64{0}, s.Revenue); diff != "" {
		t.Errorf("cluster 1 revenue mismatch (-want +got):\n%s", diff)
	}
}

func TestReconstruct_Errors(t *testing.T) {
	assignments := []models.Assignment{{CustomerID: 1, ClusterID: 0}}

	tests := []struct {
		name        string
		txs         []models.Transaction
		assignments []models.Assignment
	}{
		{"no transactions", nil, assignments},
		{"no assignments", []models.Transaction{sale(1, day(2011, 1, 1), 1)}, nil},
		{"empty join", []models.Transaction{sale(7, day(2011, 1, 1), 1)}, assignments},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reconstruct(tt.txs, tt.assignments)
			if !apperrors.HasCode(err, apperrors.CodeEmptyResult) {
				t.Errorf("error = %v, want EMPTY_RESULT", err)
			}
		})
	}
}

func TestValidate_RejectsRaggedSeries(t *testing.T) {
	axis := []time.Time{day(2011, 1, 1), day(2011, 2, 1)}
	m := models.MonthlyRevenue{
		Axis:   axis,
		Series: []models.SegmentSeries{{ClusterID: 0, Months: []string{"Jan 2011"}, Revenue: []float64{1}}},
	}
	if err := m.Validate(); err == nil {
		t.Error("Validate() should reject a short series")
	}

	m = models.MonthlyRevenue{Axis: []time.Time{axis[1], axis[0]}}
	if err := m.Validate(); err == nil {
		t.Error("Validate() should reject a descending axis")
	}
}

func TestCompareTarget(t *testing.T) {
	s := models.SegmentSeries{ClusterID: 2, Revenue: []float64{80, 120, 100, 150}}

	got := CompareTarget(s, 100)
	want := models.TargetReport{
		ClusterID:         2,
		Target:            100,
		AverageRevenue:    112.5,
		AverageVsTarget:   12.5,
		MonthsAboveTarget: 2,
		Months:            4,
		LastMonthRevenue:  150,
		LastVsTarget:      50,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	zero := CompareTarget(s, 0)
	if zero.AverageVsTarget != 0 || zero.LastVsTarget != 0 {
		t.Errorf("zero target percentages = %g, %g, want 0", zero.AverageVsTarget, zero.LastVsTarget)
	}
}

func TestProductSeries(t *testing.T) {
	txs := []models.Transaction{
		{StockCode: "85123A", Country: "France", InvoiceDate: day(2011, 3, 5), Revenue: 4},
		{StockCode: "85123A", Country: "France", InvoiceDate: day(2011, 1, 5), Revenue: 2},
		{StockCode: "85123A", Country: "France", InvoiceDate: day(2011, 1, 25), Revenue: 3},
		{StockCode: "85123A", Country: "Spain", InvoiceDate: day(2011, 2, 5), Revenue: 100},
		{StockCode: "22423", Country: "France", InvoiceDate: day(2011, 2, 5), Revenue: 100},
	}

	got, err := ProductSeries(txs, "85123A", "France")
	if err != nil {
		t.Fatal(err)
	}
	want := []models.MonthPoint{
		{Month: time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC), Revenue: 5},
		{Month: time.Date(2011, 3, 1, 0, 0, 0, 0, time.UTC), Revenue: 4},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("product series mismatch (-want +got):\n%s", diff)
	}

	if _, err := ProductSeries(txs, "NOPE", "France"); !apperrors.HasCode(err, apperrors.CodeEmptyResult) {
		t.Errorf("unknown product error = %v, want EMPTY_RESULT", err)
	}

	if diff := cmp.Diff([]string{"22423", "85123A"}, Products(txs, "France", 0)); diff != "" {
		t.Errorf("Products() mismatch (-want +got):\n%s", diff)
	}
}

func TestMonthHelpers(t *testing.T) {
	start := time.Date(2010, 11, 17, 23, 0, 0, 0, time.UTC)
	end := time.Date(2011, 2, 2, 0, 0, 0, 0, time.UTC)

	months := MonthsBetween(start, end)
	var labels []string
	for _, m := range months {
		labels = append(labels, Label(m))
	}
	if diff := cmp.Diff([]string{"Nov 2010", "Dec 2010", "Jan 2011", "Feb 2011"}, labels); diff != "" {
		t.Errorf("MonthsBetween() mismatch (-want +got):\n%s", diff)
	}
	if got := MonthDiff(start, end); got != 3 {
		t.Errorf("MonthDiff() = %d, want 3", got)
	}
}
