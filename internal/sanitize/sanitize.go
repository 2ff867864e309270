package sanitize

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/ingest"
	"rfm-dashboard/internal/models"
)

// AllCountries disables the country filter.
const AllCountries = "all"

// CancellationPrefix marks invoices that reverse an earlier sale.
const CancellationPrefix = "C"

type Options struct {
	Country string
	// Since keeps transactions dated on or after it. Nil keeps everything.
	Since *time.Time
}

func (o Options) filtersCountry() bool {
	return o.Country != "" && !strings.EqualFold(o.Country, AllCountries)
}

func (o Options) beforeSince(tx models.Transaction) bool {
	return o.Since != nil && tx.InvoiceDate.Before(*o.Since)
}

func (o Options) otherCountry(tx models.Transaction) bool {
	return o.filtersCountry() && tx.Country != o.Country
}

// Batch is a sanitized transaction set. LatestDate is the newest invoice
// among valid rows, taken before the date and country filters narrow it.
type Batch struct {
	Transactions []models.Transaction
	LatestDate   time.Time
	// Returns holds the well-formed rows with a negative quantity, after the
	// date and country filters. They never reach Transactions.
	Returns []models.Transaction
}

// Report counts rows removed at each step.
type Report struct {
	Rows         int `json:"rows"`
	Malformed    int `json:"malformed"`
	Cancelled    int `json:"cancelled"`
	NonPositive  int `json:"non_positive"`
	BeforeSince  int `json:"before_since"`
	OtherCountry int `json:"other_country"`
	Kept         int `json:"kept"`
}

func (r Report) Dropped() int {
	return r.Rows - r.Kept
}

type Sanitizer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Sanitizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sanitizer{logger: logger}
}

// Sanitize turns a raw table into a clean batch. A missing mandatory column
// fails the whole call; bad rows are dropped and only counted.
func (s *Sanitizer) Sanitize(ctx context.Context, table ingest.Table, opts Options) (Batch, Report, error) {
	cols, err := resolveColumns(table, opts)
	if err != nil {
		return Batch{}, Report{}, err
	}

	txs, malformed, err := coerce(ctx, table.Rows, cols)
	if err != nil {
		return Batch{}, Report{}, err
	}

	batch, report := clean(txs, opts)
	report.Rows = len(table.Rows)
	report.Malformed = malformed

	if report.Dropped() > 0 {
		s.logger.WarnContext(ctx, "dropped invalid transaction rows",
			"rows", report.Rows,
			"malformed", report.Malformed,
			"cancelled", report.Cancelled,
			"non_positive", report.NonPositive,
			"before_since", report.BeforeSince,
			"other_country", report.OtherCountry,
			"kept", report.Kept,
		)
	}

	return batch, report, nil
}

// Clean applies the row rules to already typed transactions. Clean of a
// Clean result returns the same transactions.
func Clean(txs []models.Transaction, opts Options) Batch {
	batch, _ := clean(txs, opts)
	return batch
}

func clean(txs []models.Transaction, opts Options) (Batch, Report) {
	var report Report
	valid := make([]models.Transaction, 0, len(txs))

	var returns []models.Transaction

	for _, tx := range txs {
		switch {
		case tx.InvoiceID == "" || tx.InvoiceDate.IsZero():
			report.Malformed++
			continue
		case strings.HasPrefix(tx.InvoiceID, CancellationPrefix):
			report.Cancelled++
		case !(tx.Quantity > 0) || !(tx.UnitPrice > 0):
			report.NonPositive++
		default:
			valid = append(valid, tx)
			continue
		}
		if tx.Quantity < 0 {
			returns = append(returns, tx)
		}
	}

	var latest time.Time
	for _, tx := range valid {
		if tx.InvoiceDate.After(latest) {
			latest = tx.InvoiceDate
		}
	}

	kept := valid[:0]
	for _, tx := range valid {
		if opts.beforeSince(tx) {
			report.BeforeSince++
			continue
		}
		if opts.otherCountry(tx) {
			report.OtherCountry++
			continue
		}
		tx.Revenue = tx.Quantity * tx.UnitPrice
		kept = append(kept, tx)
	}

	returned := returns[:0]
	for _, tx := range returns {
		if opts.beforeSince(tx) || opts.otherCountry(tx) {
			continue
		}
		tx.Revenue = tx.Quantity * tx.UnitPrice
		returned = append(returned, tx)
	}

	report.Rows = len(txs)
	report.Kept = len(kept)

	return Batch{Transactions: slices.Clip(kept), LatestDate: latest, Returns: slices.Clip(returned)}, report
}

// Countries lists the distinct country values of a batch, sorted.
func Countries(txs []models.Transaction) []string {
	seen := make(map[string]struct{})
	for _, tx := range txs {
		if tx.Country != "" {
			seen[tx.Country] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

type columns struct {
	invoice, customer, quantity, price, date int
	stock, description, country              int
}

type requiredColumn struct {
	name string
	idx  int
}

func resolveColumns(table ingest.Table, opts Options) (columns, error) {
	cols := columns{
		invoice:     table.Index("InvoiceNo", "Invoice"),
		customer:    table.Index("CustomerID", "Customer ID"),
		quantity:    table.Index("Quantity"),
		price:       table.Index("UnitPrice", "Price"),
		date:        table.Index("InvoiceDate"),
		stock:       table.Index("StockCode"),
		description: table.Index("Description"),
		country:     table.Index("Country"),
	}

	required := []requiredColumn{
		{"InvoiceNo", cols.invoice},
		{"CustomerID", cols.customer},
		{"Quantity", cols.quantity},
		{"UnitPrice", cols.price},
		{"InvoiceDate", cols.date},
	}
	if opts.filtersCountry() {
		required = append(required, requiredColumn{"Country", cols.country})
	}

	for _, r := range required {
		if r.idx < 0 {
			return columns{}, apperrors.MissingColumn(r.name)
		}
	}
	return cols, nil
}
