package summary

import (
	"slices"

	"rfm-dashboard/internal/models"
)

const (
	HighValue     = "High value"
	Loyal         = "Loyal"
	ChurnRisk     = "Churn risk"
	FrequentBuyer = "Frequent buyer"
	Potential     = "Potential"
)

var emojis = map[string]string{
	HighValue:     "💎",
	Loyal:         "🏆",
	ChurnRisk:     "⚠️",
	FrequentBuyer: "🔄",
	Potential:     "🌱",
}

var actions = map[string][]string{
	HighValue: {
		"Offer personalised VIP service to sustain high spend",
		"Promote premium and limited edition products",
		"Introduce tiered rewards based on spend level",
		"Track spending trends to tune the product range",
	},
	Loyal: {
		"Raise order value with upsell and cross-sell suggestions",
		"Run a loyalty programme that rewards repeat purchases",
		"Analyse baskets for products bought together",
		"Launch a referral programme to grow the customer base",
	},
	ChurnRisk: {
		"Send a win-back campaign with a time-limited offer",
		"Survey lapsed customers to learn why they stopped buying",
		"Use short-term discounts to trigger a repeat purchase",
		"Improve service quality to lift satisfaction",
	},
	FrequentBuyer: potentialActions,
	Potential:     potentialActions,
}

var potentialActions = []string{
	"Study purchase patterns to focus marketing",
	"Personalise product recommendations from purchase history",
	"Tune pricing per customer segment",
	"Run seasonal promotions to drive revenue",
}

// Personas names each cluster by comparing its means with the other
// clusters: the highest mean monetary is High value, the highest mean
// frequency is Loyal, the highest mean recency is Churn risk. Remaining
// clusters are Frequent buyer when their frequency rank outranks their
// recency rank, otherwise Potential.
func Personas(summaries []models.SegmentSummary) []models.Persona {
	if len(summaries) == 0 {
		return nil
	}

	n := len(summaries)
	recency := make([]float64, n)
	frequency := make([]float64, n)
	monetary := make([]float64, n)
	for i, s := range summaries {
		recency[i] = s.RecencyMean
		frequency[i] = s.FrequencyMean
		monetary[i] = s.MonetaryMean
	}

	// Descending recency rank: the most recently active cluster ranks highest.
	recencyRank := rank(recency, false)
	frequencyRank := rank(frequency, true)

	names := make([]string, n)
	highValue := argmax(monetary)
	names[highValue] = HighValue

	if loyal := argmax(frequency); names[loyal] == "" {
		names[loyal] = Loyal
	}
	if churn := argmax(recency); names[churn] == "" {
		names[churn] = ChurnRisk
	}

	for i := range names {
		if names[i] != "" {
			continue
		}
		if frequencyRank[i] > recencyRank[i] {
			names[i] = FrequentBuyer
		} else {
			names[i] = Potential
		}
	}

	out := make([]models.Persona, n)
	for i, s := range summaries {
		out[i] = models.Persona{
			ClusterID:        s.ClusterID,
			Name:             names[i],
			Emoji:            emojis[names[i]],
			Actions:          actions[names[i]],
			PotentialRevenue: s.CLV * float64(s.Count) * 1.2,
		}
	}
	return out
}

// argmax returns the first index holding the largest value.
func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// rank assigns 1-based ranks with ties sharing their average rank.
func rank(values []float64, ascending bool) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		x, y := values[a], values[b]
		if !ascending {
			x, y = y, x
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	})

	ranks := make([]float64, len(values))
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && values[idx[end]] == values[idx[start]] {
			end++
		}
		avg := float64(start+end+1) / 2
		for _, i := range idx[start:end] {
			ranks[i] = avg
		}
		start = end
	}
	return ranks
}
