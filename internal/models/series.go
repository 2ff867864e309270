package models

import (
	"fmt"
	"time"
)

// MonthLabelLayout is the display format of a month on the shared axis.
const MonthLabelLayout = "Jan 2006"

type MonthPoint struct {
	Month   time.Time `json:"month"`
	Revenue float64   `json:"revenue"`
}

// SegmentSeries holds one cluster's revenue aligned to MonthlyRevenue.Axis.
type SegmentSeries struct {
	ClusterID int       `json:"cluster_id"`
	Months    []string  `json:"months"`
	Revenue   []float64 `json:"revenue"`
}

// Points pairs the series values with the month timestamps of axis.
func (s SegmentSeries) Points(axis []time.Time) []MonthPoint {
	points := make([]MonthPoint, 0, len(s.Revenue))
	for i, v := range s.Revenue {
		if i >= len(axis) {
			break
		}
		points = append(points, MonthPoint{Month: axis[i], Revenue: v})
	}
	return points
}

type MonthlyRevenue struct {
	Axis   []time.Time     `json:"axis"`
	Series []SegmentSeries `json:"series"`
}

func (m MonthlyRevenue) Cluster(id int) (SegmentSeries, bool) {
	for _, s := range m.Series {
		if s.ClusterID == id {
			return s, true
		}
	}
	return SegmentSeries{}, false
}

// Validate checks that every series shares the strictly ascending axis.
func (m MonthlyRevenue) Validate() error {
	for i := 1; i < len(m.Axis); i++ {
		if !m.Axis[i].After(m.Axis[i-1]) {
			return fmt.Errorf("month axis not strictly ascending at %d", i)
		}
	}
	for _, s := range m.Series {
		if len(s.Months) != len(m.Axis) || len(s.Revenue) != len(m.Axis) {
			return fmt.Errorf("cluster %d series has %d labels and %d values, axis has %d",
				s.ClusterID, len(s.Months), len(s.Revenue), len(m.Axis))
		}
		for i, label := range s.Months {
			if label != m.Axis[i].Format(MonthLabelLayout) {
				return fmt.Errorf("cluster %d label %q does not match axis month %s",
					s.ClusterID, label, m.Axis[i].Format(MonthLabelLayout))
			}
		}
	}
	return nil
}

type ForecastPoint struct {
	Month     time.Time `json:"month"`
	Predicted float64   `json:"predicted"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
	Delta     float64   `json:"delta"`
	PctChange float64   `json:"pct_change"`
}

type ImpactResult struct {
	EventMonth    time.Time `json:"event_month"`
	PreData       []float64 `json:"pre_data"`
	PostData      []float64 `json:"post_data"`
	PreMean       float64   `json:"pre_mean"`
	PostMean      float64   `json:"post_mean"`
	Impact        float64   `json:"impact"`
	ImpactPct     float64   `json:"impact_pct"`
	TStat         float64   `json:"t_stat"`
	PValue        float64   `json:"p_value"`
	IsSignificant bool      `json:"is_significant"`
}

type TargetReport struct {
	ClusterID         int     `json:"cluster_id"`
	Target            float64 `json:"target"`
	AverageRevenue    float64 `json:"average_revenue"`
	AverageVsTarget   float64 `json:"average_vs_target_pct"`
	MonthsAboveTarget int     `json:"months_above_target"`
	Months            int     `json:"months"`
	LastMonthRevenue  float64 `json:"last_month_revenue"`
	LastVsTarget      float64 `json:"last_vs_target_pct"`
}
