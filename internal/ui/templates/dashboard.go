package templates

import "strings"

const defaultTitle = "Customer Segmentation"

// DashboardProps seeds the filter controls of the page. Content is filled in
// by the /sse/segments and /sse/forecast streams.
type DashboardProps struct {
	Title          string
	Countries      []string
	DefaultCountry string
	DefaultK       int
	MinK           int
	MaxK           int
	RevenueTarget  float64
}

// pageSignals is the initial Datastar signal store.
type pageSignals struct {
	K            int            `json:"k"`
	Country      string         `json:"country"`
	Target       float64        `json:"target"`
	Horizon      int            `json:"horizon"`
	MonthlyData  map[string]any `json:"monthlyData"`
	Personas     []any          `json:"personas"`
	Targets      []any          `json:"targets"`
	ForecastData []any          `json:"forecastData"`
}

const defaultHorizon = 3

func (p DashboardProps) title() string {
	if p.Title == "" {
		return defaultTitle
	}
	return p.Title
}

func (p DashboardProps) country() string {
	if p.DefaultCountry == "" {
		return "all"
	}
	return p.DefaultCountry
}

func (p DashboardProps) countrySelected(c string) bool {
	return strings.EqualFold(c, p.country())
}

func (p DashboardProps) kOptions() []int {
	var ks []int
	for k := p.MinK; k <= p.MaxK; k++ {
		ks = append(ks, k)
	}
	return ks
}

func (p DashboardProps) signals() pageSignals {
	return pageSignals{
		K:            p.DefaultK,
		Country:      p.country(),
		Target:       p.RevenueTarget,
		Horizon:      defaultHorizon,
		MonthlyData:  map[string]any{},
		Personas:     []any{},
		Targets:      []any{},
		ForecastData: []any{},
	}
}
