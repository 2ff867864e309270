package impact

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/monthly"
)

const (
	// MinPrePoints is the fewest months the pre-event window may hold.
	MinPrePoints = 3
	DefaultAlpha = 0.05
)

// Estimate compares revenue before an event month with revenue from the
// event month on, using a pooled-variance two-sample t-test.
//
// The pre window holds up to pre months before the event, widened to
// MinPrePoints when the series allows. The post window starts at the event
// month and holds up to post further months.
func Estimate(history []models.MonthPoint, event time.Time, pre, post int, alpha float64) (models.ImpactResult, error) {
	if pre < 1 || post < 0 {
		return models.ImpactResult{}, apperrors.Validation(fmt.Sprintf("invalid windows: pre=%d post=%d", pre, post))
	}
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultAlpha
	}

	event = monthly.MonthStart(event)
	idx := -1
	for i, p := range history {
		if monthly.MonthStart(p.Month).Equal(event) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.ImpactResult{}, apperrors.NotFound(fmt.Sprintf("event month %s is not in the series", monthly.Label(event)))
	}

	preStart := max(0, idx-pre)
	if idx-preStart < MinPrePoints {
		preStart = max(0, idx-MinPrePoints)
	}
	if idx-preStart < MinPrePoints {
		return models.ImpactResult{}, apperrors.Validation(fmt.Sprintf(
			"need at least %d months before %s, have %d", MinPrePoints, monthly.Label(event), idx-preStart))
	}
	postEnd := min(len(history)-1, idx+post)

	preData := revenues(history[preStart:idx])
	postData := revenues(history[idx : postEnd+1])

	res := models.ImpactResult{
		EventMonth: event,
		PreData:    preData,
		PostData:   postData,
		PreMean:    stat.Mean(preData, nil),
		PostMean:   stat.Mean(postData, nil),
	}
	res.Impact = res.PostMean - res.PreMean
	if res.PreMean != 0 {
		res.ImpactPct = res.Impact / res.PreMean * 100
	}

	res.TStat, res.PValue = TTest(preData, postData)
	res.IsSignificant = res.PValue < alpha

	return res, nil
}

// TTest is Student's two-sample t-test with pooled variance, two sided.
// When both samples are constant and equal the statistic is undefined and
// the p-value is reported as 1.
func TTest(a, b []float64) (t, p float64) {
	n1, n2 := float64(len(a)), float64(len(b))
	df := n1 + n2 - 2
	if df < 1 {
		return 0, 1
	}

	m1, m2 := stat.Mean(a, nil), stat.Mean(b, nil)
	pooled := (sumSquares(a, m1) + sumSquares(b, m2)) / df
	se := math.Sqrt(pooled * (1/n1 + 1/n2))

	diff := m1 - m2
	switch {
	case se == 0 && diff == 0:
		return 0, 1
	case se == 0:
		return math.Copysign(math.MaxFloat64, diff), 0
	}

	t = diff / se
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p = 2 * dist.Survival(math.Abs(t))
	return t, p
}

func sumSquares(xs []float64, mean float64) float64 {
	s := 0.0
	for _, x := range xs {
		d := x - mean
		s += d * d
	}
	return s
}

func revenues(points []models.MonthPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Revenue
	}
	return out
}
