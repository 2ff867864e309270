package rfm

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"time"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/ingest"
	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/sanitize"
)

const day = 24 * time.Hour

// Features is one RFM row per customer, ordered by customer id.
type Features struct {
	Customers []models.CustomerRFM
	// Clamped counts customers whose last purchase is after the reference
	// date and whose recency was floored to zero.
	Clamped int
}

type Builder struct {
	sanitizer *sanitize.Sanitizer
	logger    *slog.Logger
}

func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{sanitizer: sanitize.New(logger), logger: logger}
}

type aggregate struct {
	last     time.Time
	invoices map[string]struct{}
	monetary float64
}

// Build aggregates sanitized transactions into RFM features relative to ref.
func (b *Builder) Build(ctx context.Context, txs []models.Transaction, ref time.Time) (Features, error) {
	if len(txs) == 0 {
		return Features{}, apperrors.EmptyResult("rfm", "transaction batch is empty")
	}

	groups := make(map[int64]*aggregate)
	for _, tx := range txs {
		g, ok := groups[tx.CustomerID]
		if !ok {
			g = &aggregate{invoices: make(map[string]struct{})}
			groups[tx.CustomerID] = g
		}
		if tx.InvoiceDate.After(g.last) {
			g.last = tx.InvoiceDate
		}
		g.invoices[tx.InvoiceID] = struct{}{}
		g.monetary += tx.Revenue
	}

	var features Features
	features.Customers = make([]models.CustomerRFM, 0, len(groups))
	skipped := 0

	for id, g := range groups {
		if g.last.IsZero() || math.IsNaN(g.monetary) || math.IsInf(g.monetary, 0) {
			skipped++
			continue
		}

		recency := Recency(ref, g.last)
		if recency < 0 {
			recency = 0
			features.Clamped++
		}

		features.Customers = append(features.Customers, models.CustomerRFM{
			CustomerID: id,
			Recency:    recency,
			Frequency:  len(g.invoices),
			Monetary:   g.monetary,
		})
	}

	slices.SortFunc(features.Customers, func(a, b models.CustomerRFM) int {
		switch {
		case a.CustomerID < b.CustomerID:
			return -1
		case a.CustomerID > b.CustomerID:
			return 1
		}
		return 0
	})

	if features.Clamped > 0 {
		b.logger.WarnContext(ctx, "reference date precedes last purchase, recency clamped to zero",
			"customers", features.Clamped,
			"reference_date", ref.Format(time.DateOnly),
		)
	}
	if skipped > 0 {
		b.logger.WarnContext(ctx, "dropped customers with unresolvable features", "customers", skipped)
	}

	if len(features.Customers) == 0 {
		return Features{}, apperrors.EmptyResult("rfm", "no customer rows survived feature cleaning")
	}

	return features, nil
}

// Recency is the number of whole days from last to ref, rounded down.
// It is negative when last falls after ref.
func Recency(ref, last time.Time) int {
	return int(math.Floor(float64(ref.Sub(last)) / float64(day)))
}

// Loader reads a raw table from a source; *ingest.Cache is the usual one.
type Loader interface {
	Load(ctx context.Context, src ingest.Source) (ingest.Table, error)
}

// Step names reported to a StepFunc, in execution order.
const (
	StepLoad     = "load"
	StepSanitize = "sanitize"
	StepFeatures = "features"
)

// StepFunc runs one named step of FromSource. It must call fn and return
// its error; callers use it to time or report progress.
type StepFunc func(ctx context.Context, name string, fn func(context.Context) error) error

func runStep(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

// Prepared is the output of FromSource: the features plus the sanitized
// batch they were built from.
type Prepared struct {
	Features Features
	Batch    sanitize.Batch
	Report   sanitize.Report
	RefDate  time.Time
}

// FromSource loads, sanitizes and aggregates. A zero ref uses the batch
// latest date. A nil step runs each step directly.
func (b *Builder) FromSource(ctx context.Context, loader Loader, src ingest.Source, opts sanitize.Options, ref time.Time, step StepFunc) (Prepared, error) {
	if step == nil {
		step = runStep
	}

	var table ingest.Table
	if err := step(ctx, StepLoad, func(ctx context.Context) (err error) {
		table, err = loader.Load(ctx, src)
		if err != nil {
			return apperrors.InternalWrap(err, "failed to load transactions")
		}
		return nil
	}); err != nil {
		return Prepared{}, err
	}

	var p Prepared
	if err := step(ctx, StepSanitize, func(ctx context.Context) (err error) {
		p.Batch, p.Report, err = b.sanitizer.Sanitize(ctx, table, opts)
		return err
	}); err != nil {
		return Prepared{}, err
	}

	p.RefDate = ref
	if p.RefDate.IsZero() {
		p.RefDate = p.Batch.LatestDate
	}

	if err := step(ctx, StepFeatures, func(ctx context.Context) (err error) {
		p.Features, err = b.Build(ctx, p.Batch.Transactions, p.RefDate)
		return err
	}); err != nil {
		return Prepared{}, err
	}
	return p, nil
}
