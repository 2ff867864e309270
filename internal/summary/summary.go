package summary

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

// Summarize computes per-cluster statistics, ordered by cluster id. Ratios
// are shares of the whole population, so each sums to 1 across clusters.
func Summarize(customers []models.SegmentedCustomer) ([]models.SegmentSummary, error) {
	if len(customers) == 0 {
		return nil, apperrors.EmptyResult("summary", "no segmented customers to summarize")
	}

	type columns struct {
		recency, frequency, monetary []float64
	}
	groups := make(map[int]*columns)
	grandTotal := 0.0

	for _, c := range customers {
		g, ok := groups[c.ClusterID]
		if !ok {
			g = &columns{}
			groups[c.ClusterID] = g
		}
		g.recency = append(g.recency, float64(c.Recency))
		g.frequency = append(g.frequency, float64(c.Frequency))
		g.monetary = append(g.monetary, c.Monetary)
		grandTotal += c.Monetary
	}

	total := float64(len(customers))
	out := make([]models.SegmentSummary, 0, len(groups))

	for id, g := range groups {
		count := len(g.monetary)
		s := models.SegmentSummary{
			ClusterID:     id,
			RecencyMean:   stat.Mean(g.recency, nil),
			RecencyMin:    floats.Min(g.recency),
			RecencyMax:    floats.Max(g.recency),
			FrequencyMean: stat.Mean(g.frequency, nil),
			FrequencyMin:  floats.Min(g.frequency),
			FrequencyMax:  floats.Max(g.frequency),
			MonetaryMean:  stat.Mean(g.monetary, nil),
			MonetaryMin:   floats.Min(g.monetary),
			MonetaryMax:   floats.Max(g.monetary),
			Count:         count,
			CustomerRatio: float64(count) / total,
		}
		s.TotalRevenue = s.MonetaryMean * float64(count)
		if grandTotal > 0 {
			s.RevenueRatio = s.TotalRevenue / grandTotal
		}
		s.CLV = s.MonetaryMean * s.FrequencyMean

		out = append(out, s)
	}

	slices.SortFunc(out, func(a, b models.SegmentSummary) int {
		return cmp.Compare(a.ClusterID, b.ClusterID)
	})
	return out, nil
}

// TopCustomers returns up to limit customers of a cluster by monetary value,
// highest first. A limit of zero or less returns all of them.
func TopCustomers(customers []models.SegmentedCustomer, cluster, limit int) []models.SegmentedCustomer {
	var out []models.SegmentedCustomer
	for _, c := range customers {
		if c.ClusterID == cluster {
			out = append(out, c)
		}
	}

	slices.SortStableFunc(out, func(a, b models.SegmentedCustomer) int {
		if c := cmp.Compare(b.Monetary, a.Monetary); c != 0 {
			return c
		}
		return cmp.Compare(a.CustomerID, b.CustomerID)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
