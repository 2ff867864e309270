package forecast

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/monthly"
)

const (
	// MinPoints is the shortest history a forecast is made from.
	MinPoints = 3
	// TrailingMonths is the window of the baseline predictions are compared to.
	TrailingMonths = 3

	z95 = 1.96
)

// Forecaster predicts the next horizon months of a monthly series.
type Forecaster interface {
	Forecast(ctx context.Context, history []models.MonthPoint, horizon int) ([]models.ForecastPoint, error)
}

// Trend fits a least-squares line over calendar month index. Intervals are
// the fitted value plus or minus 1.96 residual standard deviations.
type Trend struct{}

func (Trend) Forecast(ctx context.Context, history []models.MonthPoint, horizon int) ([]models.ForecastPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if horizon < 1 {
		return nil, apperrors.Validation(fmt.Sprintf("forecast horizon must be at least 1, got %d", horizon))
	}
	if len(history) < MinPoints {
		return nil, apperrors.Validation(fmt.Sprintf("forecast needs at least %d months of history, got %d", MinPoints, len(history)))
	}

	origin := history[0].Month
	xs := make([]float64, len(history))
	ys := make([]float64, len(history))
	for i, p := range history {
		xs[i] = float64(monthly.MonthDiff(origin, p.Month))
		ys[i] = p.Revenue
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)

	residuals := make([]float64, len(xs))
	for i := range xs {
		residuals[i] = ys[i] - (alpha + beta*xs[i])
	}
	spread := z95 * stat.PopStdDev(residuals, nil)

	baseline := Baseline(history)
	last := monthly.MonthStart(history[len(history)-1].Month)
	lastX := xs[len(xs)-1]

	future := monthly.MonthsBetween(last.AddDate(0, 1, 0), last.AddDate(0, horizon, 0))
	out := make([]models.ForecastPoint, len(future))
	for h, month := range future {
		yhat := alpha + beta*(lastX+float64(h+1))
		p := models.ForecastPoint{
			Month:     month,
			Predicted: yhat,
			Lower:     yhat - spread,
			Upper:     yhat + spread,
			Delta:     yhat - baseline,
		}
		if baseline != 0 {
			p.PctChange = p.Delta / baseline * 100
		}
		out[h] = p
	}
	return out, nil
}

// Baseline is the mean revenue of the last TrailingMonths points.
func Baseline(history []models.MonthPoint) float64 {
	if len(history) == 0 {
		return 0
	}
	tail := history[max(0, len(history)-TrailingMonths):]
	sum := 0.0
	for _, p := range tail {
		sum += p.Revenue
	}
	return sum / float64(len(tail))
}

type Advice struct {
	Trend  string `json:"trend"`
	Action string `json:"action"`
}

// Advise maps a percentage change against the baseline to a trend band.
func Advise(pct float64) Advice {
	switch {
	case math.IsNaN(pct):
		return Advice{Trend: "unknown", Action: "Not enough history to judge the trend."}
	case pct >= 10:
		return Advice{Trend: "strong growth", Action: "Expand supply and step up promotion and sales campaigns."}
	case pct >= 5:
		return Advice{Trend: "growth", Action: "Keep the current marketing plan and consider expanding supply."}
	case pct >= 0:
		return Advice{Trend: "slight growth", Action: "Keep the current plan and add targeted promotions."}
	case pct > -5:
		return Advice{Trend: "slight decline", Action: "Refine marketing and review promotional offers."}
	case pct > -10:
		return Advice{Trend: "decline", Action: "Rework the marketing plan and run stronger promotions."}
	default:
		return Advice{Trend: "sharp decline", Action: "Act now: discount heavily and clear slow stock."}
	}
}
