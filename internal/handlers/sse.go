package handlers

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/monthly"
	"rfm-dashboard/internal/services"
)

var segmentTableTemplate = template.Must(template.New("segmentTable").Parse(`
<div id="segments-content">
<p class="run-info">{{.Customers}} customers, k={{.K}}{{if ne .K .RequestedK}} (requested {{.RequestedK}}){{end}}, reference {{.RefDate}}</p>
<table class="modern-table">
<thead><tr><th>Segment</th><th>Customers</th><th>Recency</th><th>Frequency</th><th>Monetary</th><th>Revenue share</th><th>CLV</th></tr></thead>
<tbody>
{{range .Rows}}<tr>
<td>{{.Emoji}} <span class="segment-badge">{{.Name}}</span> <small>#{{.ClusterID}}</small></td>
<td>{{.Count}} <small>({{printf "%.1f" .CustomerPct}}%)</small></td>
<td>{{printf "%.1f" .RecencyMean}}</td>
<td>{{printf "%.1f" .FrequencyMean}}</td>
<td>{{printf "%.2f" .MonetaryMean}}</td>
<td>{{printf "%.1f" .RevenuePct}}%</td>
<td><strong>{{printf "%.2f" .CLV}}</strong></td>
</tr>{{end}}
</tbody>
</table>
</div>`))

var errorTemplate = template.Must(template.New("segmentError").Parse(
	`<div id="segments-content"><div class="error-banner">{{.}}</div></div>`))

type SSEHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewSSEHandlers(analytics *services.Analytics, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

type segmentRow struct {
	models.SegmentSummary
	Name        string
	Emoji       string
	CustomerPct float64
	RevenuePct  float64
}

type tableData struct {
	Customers  int
	K          int
	RequestedK int
	RefDate    string
	Rows       []segmentRow
}

func renderSegmentTable(res *services.Analysis) (string, error) {
	data := tableData{
		Customers:  len(res.Customers),
		K:          res.K,
		RequestedK: res.RequestedK,
		RefDate:    res.RefDate.Format("2006-01-02"),
		Rows:       make([]segmentRow, 0, len(res.Summaries)),
	}
	for _, s := range res.Summaries {
		row := segmentRow{
			SegmentSummary: s,
			CustomerPct:    s.CustomerRatio * 100,
			RevenuePct:     s.RevenueRatio * 100,
		}
		if p, ok := res.Persona(s.ClusterID); ok {
			row.Name, row.Emoji = p.Name, p.Emoji
		}
		data.Rows = append(data.Rows, row)
	}

	var buf strings.Builder
	err := segmentTableTemplate.Execute(&buf, data)
	return buf.String(), err
}

type chartSeries struct {
	ClusterID int       `json:"cluster_id"`
	Name      string    `json:"name"`
	Revenue   []float64 `json:"revenue"`
}

type monthlyChart struct {
	Labels []string      `json:"labels"`
	Series []chartSeries `json:"series"`
}

func monthlyChartData(res *services.Analysis) monthlyChart {
	chart := monthlyChart{
		Labels: make([]string, len(res.Monthly.Axis)),
		Series: make([]chartSeries, 0, len(res.Monthly.Series)),
	}
	for i, m := range res.Monthly.Axis {
		chart.Labels[i] = monthly.Label(m)
	}
	for _, s := range res.Monthly.Series {
		cs := chartSeries{ClusterID: s.ClusterID, Revenue: s.Revenue}
		if p, ok := res.Persona(s.ClusterID); ok {
			cs.Name = p.Name
		}
		chart.Series = append(chart.Series, cs)
	}
	return chart
}

func (h *SSEHandlers) patchError(sse *datastar.ServerSentEventGenerator, err error) {
	var buf strings.Builder
	if execErr := errorTemplate.Execute(&buf, err.Error()); execErr != nil {
		h.logger.Error("render error banner", "error", execErr)
		return
	}
	sse.PatchElements(buf.String())
}

// HandleSegments runs an analysis for the query parameters, patches the
// segment table and pushes the monthly series, personas and target report
// as signals.
func (h *SSEHandlers) HandleSegments(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	rc, err := runConfigFromQuery(r, h.analytics.DefaultRunConfig())
	if err == nil {
		var res *services.Analysis
		res, err = h.analytics.Run(r.Context(), rc)
		if err == nil {
			h.sendAnalysis(sse, res)
			flush(w)
			return
		}
	}

	h.logger.Warn("segment stream failed", "error", err)
	h.patchError(sse, err)
	flush(w)
}

func (h *SSEHandlers) sendAnalysis(sse *datastar.ServerSentEventGenerator, res *services.Analysis) {
	html, err := renderSegmentTable(res)
	if err != nil {
		h.logger.Error("render segment table", "error", err)
		return
	}
	sse.PatchElements(html)

	signals, err := json.Marshal(map[string]any{
		"runId":       res.RunID,
		"k":           res.K,
		"monthlyData": monthlyChartData(res),
		"personas":    res.Personas,
		"targets":     res.Targets,
	})
	if err != nil {
		h.logger.Error("marshal segment signals", "error", err)
		return
	}
	sse.PatchSignals(signals)
}

// HandleForecast pushes per-cluster forecasts as the forecastData signal.
func (h *SSEHandlers) HandleForecast(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	horizon, err := intParam(r, "horizon", 0)
	if err != nil {
		h.patchError(sse, err)
		flush(w)
		return
	}
	rc, err := runConfigFromQuery(r, h.analytics.DefaultRunConfig())
	if err != nil {
		h.patchError(sse, err)
		flush(w)
		return
	}
	res, err := h.analytics.Run(r.Context(), rc)
	if err != nil {
		h.patchError(sse, err)
		flush(w)
		return
	}
	forecasts, err := h.analytics.ForecastSegments(r.Context(), res, horizon)
	if err != nil {
		h.logger.Error("forecast segments", "error", err)
		h.patchError(sse, err)
		flush(w)
		return
	}

	signals, err := json.Marshal(map[string]any{"forecastData": forecasts})
	if err != nil {
		h.logger.Error("marshal forecast data", "error", err)
		return
	}
	sse.PatchSignals(signals)
	sse.PatchElements(`<div id="forecast-content">Forecast loaded</div>`)
	flush(w)
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
