package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"rfm-dashboard/internal/config"
	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/forecast"
	"rfm-dashboard/internal/impact"
	"rfm-dashboard/internal/ingest"
	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/monthly"
	"rfm-dashboard/internal/observability"
	"rfm-dashboard/internal/rfm"
	"rfm-dashboard/internal/sanitize"
	"rfm-dashboard/internal/segment"
	"rfm-dashboard/internal/summary"
)

const maxForecastWorkers = 4

// Stage names one step of an analysis run, in execution order.
type Stage string

const (
	StageLoad      Stage = rfm.StepLoad
	StageSanitize  Stage = rfm.StepSanitize
	StageFeatures  Stage = rfm.StepFeatures
	StageSegment   Stage = "segment"
	StageSummarize Stage = "summarize"
	StageMonthly   Stage = "monthly"
)

// Stages lists every stage a successful run reports, in order.
var Stages = []Stage{StageLoad, StageSanitize, StageFeatures, StageSegment, StageSummarize, StageMonthly}

// RunConfig is everything a single run depends on besides the data source.
type RunConfig struct {
	K       int
	Country string
	// RefDate anchors recency. Zero means the dataset latest date.
	RefDate       time.Time
	Since         *time.Time
	RevenueTarget float64
	// Progress, when set, is called after each stage completes.
	Progress func(Stage)
}

// Analysis is the result of one run. It is never mutated after Run returns.
type Analysis struct {
	RunID         string                     `json:"run_id"`
	LatestDate    time.Time                  `json:"latest_date"`
	RefDate       time.Time                  `json:"ref_date"`
	Country       string                     `json:"country"`
	RevenueTarget float64                    `json:"revenue_target"`
	RequestedK    int                        `json:"requested_k"`
	K             int                        `json:"k"`
	Sanitize      sanitize.Report            `json:"sanitize"`
	Summaries     []models.SegmentSummary    `json:"summaries"`
	Personas      []models.Persona           `json:"personas"`
	Monthly       models.MonthlyRevenue      `json:"monthly"`
	Targets       []models.TargetReport      `json:"targets"`
	Customers     []models.SegmentedCustomer `json:"-"`
	Transactions  []models.Transaction       `json:"-"`
	Returns       []models.Transaction       `json:"-"`
	Duration      time.Duration              `json:"duration"`
}

func (a *Analysis) Persona(cluster int) (models.Persona, bool) {
	for _, p := range a.Personas {
		if p.ClusterID == cluster {
			return p, true
		}
	}
	return models.Persona{}, false
}

type runStats struct {
	RunID     string        `json:"run_id"`
	Customers int           `json:"customers"`
	K         int           `json:"k"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}

// Analytics runs the segmentation pipeline against one transaction source.
// Runs are independent; only the raw load is shared through the cache.
type Analytics struct {
	cfg        config.AnalysisConfig
	source     ingest.Source
	cache      *ingest.Cache
	sanitizer  *sanitize.Sanitizer
	builder    *rfm.Builder
	engine     *segment.Engine
	forecaster forecast.Forecaster
	logger     *slog.Logger

	runs     atomic.Int64
	failures atomic.Int64
	mu       sync.RWMutex
	lastRun  *runStats
}

func NewAnalytics(cfg config.AnalysisConfig, source ingest.Source, cache *ingest.Cache, logger *slog.Logger) *Analytics {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = ingest.NewCache("", logger)
	}
	return &Analytics{
		cfg:        cfg,
		source:     source,
		cache:      cache,
		sanitizer:  sanitize.New(logger),
		builder:    rfm.NewBuilder(logger),
		engine:     segment.NewEngine(cfg.Seed, cfg.Restarts, cfg.MaxIterations, logger),
		forecaster: forecast.Trend{},
		logger:     logger,
	}
}

// WithForecaster swaps the forecasting collaborator.
func (a *Analytics) WithForecaster(f forecast.Forecaster) *Analytics {
	a.forecaster = f
	return a
}

// DefaultRunConfig fills a RunConfig from the configured defaults.
func (a *Analytics) DefaultRunConfig() RunConfig {
	return RunConfig{
		K:             a.cfg.DefaultK,
		Country:       a.cfg.Country,
		RevenueTarget: a.cfg.RevenueTarget,
	}
}

// Run executes load, sanitize, features, segment, summarize and monthly in
// sequence. Any stage error aborts the run and no partial result is returned.
func (a *Analytics) Run(ctx context.Context, rc RunConfig) (*Analysis, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)
	logger := observability.ContextLogger(ctx, a.logger)

	ctx, span := observability.StartSpan(ctx, "analysis.run")
	span.SetTag("k", strconv.Itoa(rc.K))
	span.SetTag("country", rc.Country)
	defer span.FinishAndLog(ctx, logger)

	res, err := a.run(ctx, logger, rc)
	if err != nil {
		a.failures.Add(1)
		span.SetError(err)
		return nil, err
	}

	res.RunID = runID
	res.Duration = time.Since(start)
	a.runs.Add(1)

	a.mu.Lock()
	a.lastRun = &runStats{RunID: runID, Customers: len(res.Customers), K: res.K, Duration: res.Duration, At: time.Now()}
	a.mu.Unlock()

	logger.InfoContext(ctx, "analysis complete",
		"customers", len(res.Customers),
		"transactions", len(res.Transactions),
		"k", res.K,
		"months", len(res.Monthly.Axis),
		"duration", res.Duration,
	)
	return res, nil
}

func (a *Analytics) run(ctx context.Context, logger *slog.Logger, rc RunConfig) (*Analysis, error) {
	if a.source == nil {
		return nil, apperrors.ServiceUnavailable("no transaction source configured")
	}
	if rc.Country == "" {
		rc.Country = sanitize.AllCountries
	}

	step := func(ctx context.Context, name string, fn func(context.Context) error) error {
		if err := stage(ctx, logger, Stage(name), fn); err != nil {
			return err
		}
		if rc.Progress != nil {
			rc.Progress(Stage(name))
		}
		return nil
	}
	prepared, err := a.builder.FromSource(ctx, a.cache, a.source,
		sanitize.Options{Country: rc.Country, Since: rc.Since}, rc.RefDate, step)
	if err != nil {
		return nil, err
	}
	batch, features := prepared.Batch, prepared.Features

	var segmented segment.Result
	if err := step(ctx, string(StageSegment), func(ctx context.Context) (err error) {
		segmented, err = a.engine.Segment(ctx, features.Customers, rc.K)
		return err
	}); err != nil {
		return nil, err
	}

	var summaries []models.SegmentSummary
	if err := step(ctx, string(StageSummarize), func(ctx context.Context) (err error) {
		summaries, err = summary.Summarize(segmented.Customers)
		return err
	}); err != nil {
		return nil, err
	}

	var series models.MonthlyRevenue
	if err := step(ctx, string(StageMonthly), func(ctx context.Context) (err error) {
		series, err = monthly.Reconstruct(batch.Transactions, segmented.Assignments())
		return err
	}); err != nil {
		return nil, err
	}

	return &Analysis{
		LatestDate:    batch.LatestDate,
		RefDate:       prepared.RefDate,
		Country:       rc.Country,
		RevenueTarget: rc.RevenueTarget,
		RequestedK:    segmented.Requested,
		K:             segmented.K,
		Sanitize:      prepared.Report,
		Summaries:     summaries,
		Personas:      summary.Personas(summaries),
		Monthly:       series,
		Targets:       monthly.CompareTargets(series, rc.RevenueTarget),
		Customers:     segmented.Customers,
		Transactions:  batch.Transactions,
		Returns:       batch.Returns,
	}, nil
}

func stage(ctx context.Context, logger *slog.Logger, s Stage, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := observability.StartSpan(ctx, "analysis."+string(s))
	defer span.FinishAndLog(ctx, logger)

	if err := fn(ctx); err != nil {
		span.SetError(err)
		return err
	}
	return nil
}

type SegmentForecast struct {
	ClusterID int                    `json:"cluster_id"`
	Points    []models.ForecastPoint `json:"points"`
	Advice    []forecast.Advice      `json:"advice"`
	Error     string                 `json:"error,omitempty"`
}

// ForecastSegments forecasts every cluster series of a run concurrently.
// A cluster with too little history carries its error instead of failing
// the whole call.
func (a *Analytics) ForecastSegments(ctx context.Context, res *Analysis, horizon int) ([]SegmentForecast, error) {
	if horizon < 1 {
		horizon = a.cfg.ForecastHorizon
	}

	out := make([]SegmentForecast, len(res.Monthly.Series))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxForecastWorkers)

	for i, s := range res.Monthly.Series {
		g.Go(func() error {
			f := SegmentForecast{ClusterID: s.ClusterID}
			points, err := a.forecaster.Forecast(ctx, s.Points(res.Monthly.Axis), horizon)
			switch {
			case err == nil:
				f.Points = points
				f.Advice = adviceFor(points)
			case apperrors.HasCode(err, apperrors.CodeValidation):
				f.Error = err.Error()
			default:
				return err
			}
			out[i] = f
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, apperrors.InternalWrap(err, "forecast failed")
	}
	return out, nil
}

// ForecastProduct forecasts one stock code in one country.
func (a *Analytics) ForecastProduct(ctx context.Context, res *Analysis, stockCode, country string, horizon int) (SegmentForecast, error) {
	if horizon < 1 {
		horizon = a.cfg.ForecastHorizon
	}
	history, err := monthly.ProductSeries(res.Transactions, stockCode, country)
	if err != nil {
		return SegmentForecast{}, err
	}
	points, err := a.forecaster.Forecast(ctx, history, horizon)
	if err != nil {
		return SegmentForecast{}, err
	}
	return SegmentForecast{ClusterID: -1, Points: points, Advice: adviceFor(points)}, nil
}

func adviceFor(points []models.ForecastPoint) []forecast.Advice {
	out := make([]forecast.Advice, len(points))
	for i, p := range points {
		out[i] = forecast.Advise(p.PctChange)
	}
	return out
}

// ImpactQuery selects the series an impact estimate runs on: a cluster, or a
// product when StockCode is set.
type ImpactQuery struct {
	ClusterID int
	StockCode string
	Country   string
	Event     time.Time
	Pre       int
	Post      int
}

func (a *Analytics) Impact(res *Analysis, q ImpactQuery) (models.ImpactResult, error) {
	if q.Pre < 1 {
		q.Pre = a.cfg.PreWindow
	}
	if q.Post < 0 {
		q.Post = a.cfg.PostWindow
	}

	var history []models.MonthPoint
	if q.StockCode != "" {
		var err error
		history, err = monthly.ProductSeries(res.Transactions, q.StockCode, q.Country)
		if err != nil {
			return models.ImpactResult{}, err
		}
	} else {
		s, ok := res.Monthly.Cluster(q.ClusterID)
		if !ok {
			return models.ImpactResult{}, apperrors.NotFound(fmt.Sprintf("cluster %d not found", q.ClusterID))
		}
		history = s.Points(res.Monthly.Axis)
	}

	return impact.Estimate(history, q.Event, q.Pre, q.Post, a.cfg.ImpactAlpha)
}

// Countries loads the source through the cache and lists the countries of
// every row that survives sanitizing. It also warms the cache.
func (a *Analytics) Countries(ctx context.Context) ([]string, error) {
	if a.source == nil {
		return nil, apperrors.ServiceUnavailable("no transaction source configured")
	}
	table, err := a.cache.Load(ctx, a.source)
	if err != nil {
		return nil, apperrors.InternalWrap(err, "failed to load transactions")
	}
	batch, _, err := a.sanitizer.Sanitize(ctx, table, sanitize.Options{Country: sanitize.AllCountries})
	if err != nil {
		return nil, err
	}
	return sanitize.Countries(batch.Transactions), nil
}

// Stats reports counters for the admin endpoint.
func (a *Analytics) Stats() map[string]any {
	a.mu.RLock()
	last := a.lastRun
	a.mu.RUnlock()

	out := map[string]any{
		"runs":     a.runs.Load(),
		"failures": a.failures.Load(),
		"cache":    a.cache.Stats(),
	}
	if last != nil {
		out["last_run"] = *last
	}
	return out
}
