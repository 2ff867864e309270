package monthly

import (
	"time"

	"rfm-dashboard/internal/models"
)

// MonthStart truncates t to the first instant of its calendar month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthsBetween returns every month from start to end inclusive.
func MonthsBetween(start, end time.Time) []time.Time {
	cur := MonthStart(start)
	last := MonthStart(end)
	var out []time.Time
	for !cur.After(last) {
		out = append(out, cur)
		cur = cur.AddDate(0, 1, 0)
	}
	return out
}

// MonthDiff is the number of calendar months from a to b.
func MonthDiff(a, b time.Time) int {
	a, b = MonthStart(a), MonthStart(b)
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

func Label(t time.Time) string {
	return t.Format(models.MonthLabelLayout)
}
