package monthly

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

// Reconstruct sums revenue per calendar month and cluster. Transactions of
// customers without an assignment are ignored. Every assigned cluster gets a
// series on the same ascending axis, with months it had no revenue in set to
// zero. The axis holds each month with at least one joined transaction.
func Reconstruct(txs []models.Transaction, assignments []models.Assignment) (models.MonthlyRevenue, error) {
	if len(txs) == 0 || len(assignments) == 0 {
		return models.MonthlyRevenue{}, apperrors.EmptyResult("monthly", "transactions or cluster assignments are empty")
	}

	clusterOf := make(map[int64]int, len(assignments))
	clusterSet := make(map[int]struct{})
	for _, a := range assignments {
		clusterOf[a.CustomerID] = a.ClusterID
		clusterSet[a.ClusterID] = struct{}{}
	}

	type key struct {
		month   time.Time
		cluster int
	}
	sums := make(map[key]float64)
	monthSet := make(map[time.Time]struct{})

	for _, tx := range txs {
		cluster, ok := clusterOf[tx.CustomerID]
		if !ok {
			continue
		}
		m := MonthStart(tx.InvoiceDate)
		sums[key{m, cluster}] += tx.Revenue
		monthSet[m] = struct{}{}
	}

	if len(monthSet) == 0 {
		return models.MonthlyRevenue{}, apperrors.EmptyResult("monthly", "no transaction matched a segmented customer")
	}

	axis := make([]time.Time, 0, len(monthSet))
	for m := range monthSet {
		axis = append(axis, m)
	}
	slices.SortFunc(axis, func(a, b time.Time) int { return a.Compare(b) })

	labels := make([]string, len(axis))
	for i, m := range axis {
		labels[i] = Label(m)
	}

	clusters := make([]int, 0, len(clusterSet))
	for c := range clusterSet {
		clusters = append(clusters, c)
	}
	slices.Sort(clusters)

	result := models.MonthlyRevenue{Axis: axis, Series: make([]models.SegmentSeries, 0, len(clusters))}
	for _, c := range clusters {
		revenue := make([]float64, len(axis))
		for i, m := range axis {
			revenue[i] = sums[key{m, c}]
		}
		result.Series = append(result.Series, models.SegmentSeries{
			ClusterID: c,
			Months:    slices.Clone(labels),
			Revenue:   revenue,
		})
	}

	if err := result.Validate(); err != nil {
		return models.MonthlyRevenue{}, apperrors.InternalWrap(err, "monthly series are not rectangular")
	}
	return result, nil
}

// ProductSeries is the monthly revenue of one stock code in one country,
// ascending, covering only months with sales.
func ProductSeries(txs []models.Transaction, stockCode, country string) ([]models.MonthPoint, error) {
	sums := make(map[time.Time]float64)
	for _, tx := range txs {
		if tx.StockCode != stockCode || tx.Country != country {
			continue
		}
		sums[MonthStart(tx.InvoiceDate)] += tx.Revenue
	}
	if len(sums) == 0 {
		return nil, apperrors.EmptyResult("monthly",
			fmt.Sprintf("no sales of product %s in %s", stockCode, country))
	}

	points := make([]models.MonthPoint, 0, len(sums))
	for m, v := range sums {
		points = append(points, models.MonthPoint{Month: m, Revenue: v})
	}
	slices.SortFunc(points, func(a, b models.MonthPoint) int { return a.Month.Compare(b.Month) })
	return points, nil
}

// Products lists stock codes with revenue in a country, best selling first.
func Products(txs []models.Transaction, country string, limit int) []string {
	revenue := make(map[string]float64)
	for _, tx := range txs {
		if tx.Country == country && tx.StockCode != "" {
			revenue[tx.StockCode] += tx.Revenue
		}
	}
	codes := make([]string, 0, len(revenue))
	for code := range revenue {
		codes = append(codes, code)
	}
	slices.SortFunc(codes, func(a, b string) int {
		if c := cmp.Compare(revenue[b], revenue[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if limit > 0 && len(codes) > limit {
		codes = codes[:limit]
	}
	return codes
}
