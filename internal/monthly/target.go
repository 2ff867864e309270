package monthly

import (
	"gonum.org/v1/gonum/stat"

	"rfm-dashboard/internal/models"
)

// CompareTarget measures a cluster series against a monthly revenue target.
// Percentages are 0 when the target is not positive.
func CompareTarget(series models.SegmentSeries, target float64) models.TargetReport {
	report := models.TargetReport{
		ClusterID: series.ClusterID,
		Target:    target,
		Months:    len(series.Revenue),
	}
	if len(series.Revenue) == 0 {
		return report
	}

	report.AverageRevenue = stat.Mean(series.Revenue, nil)
	report.LastMonthRevenue = series.Revenue[len(series.Revenue)-1]
	for _, v := range series.Revenue {
		if v > target {
			report.MonthsAboveTarget++
		}
	}
	if target > 0 {
		report.AverageVsTarget = (report.AverageRevenue - target) / target * 100
		report.LastVsTarget = (report.LastMonthRevenue - target) / target * 100
	}
	return report
}

func CompareTargets(m models.MonthlyRevenue, target float64) []models.TargetReport {
	out := make([]models.TargetReport, len(m.Series))
	for i, s := range m.Series {
		out[i] = CompareTarget(s, target)
	}
	return out
}
