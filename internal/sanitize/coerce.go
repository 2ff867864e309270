package sanitize

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"

	"rfm-dashboard/internal/models"
)

const (
	batchSize  = 10000
	maxWorkers = 10
)

// coerce converts string rows to transactions in parallel batches. Output
// keeps input order; rows that fail to coerce are counted, not returned.
func coerce(ctx context.Context, rows [][]string, cols columns) ([]models.Transaction, int, error) {
	nBatches := (len(rows) + batchSize - 1) / batchSize
	parsed := make([][]models.Transaction, nBatches)
	failed := make([]int, nBatches)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for b := range nBatches {
		start := b * batchSize
		end := min(start+batchSize, len(rows))

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out := make([]models.Transaction, 0, end-start)
			for _, record := range rows[start:end] {
				tx, err := parseRow(record, cols)
				if err != nil {
					failed[b]++
					continue
				}
				out = append(out, tx)
			}
			parsed[b] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	total := 0
	malformed := 0
	for b := range parsed {
		total += len(parsed[b])
		malformed += failed[b]
	}
	txs := make([]models.Transaction, 0, total)
	for _, batch := range parsed {
		txs = append(txs, batch...)
	}

	return txs, malformed, nil
}

func parseRow(record []string, cols columns) (models.Transaction, error) {
	field := func(idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	for _, idx := range []int{cols.invoice, cols.customer, cols.quantity, cols.price, cols.date} {
		if idx >= len(record) {
			return models.Transaction{}, fmt.Errorf("short row")
		}
	}

	invoice := field(cols.invoice)
	if invoice == "" {
		return models.Transaction{}, fmt.Errorf("missing invoice")
	}

	customer, err := parseNumber(field(cols.customer))
	if err != nil {
		return models.Transaction{}, fmt.Errorf("customer id: %w", err)
	}
	quantity, err := parseNumber(field(cols.quantity))
	if err != nil {
		return models.Transaction{}, fmt.Errorf("quantity: %w", err)
	}
	price, err := parseNumber(field(cols.price))
	if err != nil {
		return models.Transaction{}, fmt.Errorf("unit price: %w", err)
	}
	date, err := ParseDate(field(cols.date))
	if err != nil {
		return models.Transaction{}, fmt.Errorf("invoice date: %w", err)
	}

	return models.Transaction{
		InvoiceID:   invoice,
		CustomerID:  int64(customer),
		StockCode:   field(cols.stock),
		Description: field(cols.description),
		Quantity:    quantity,
		UnitPrice:   price,
		InvoiceDate: date,
		Country:     field(cols.country),
	}, nil
}

func parseNumber(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := cast.ToFloat64E(s)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

// ParseDate reads an invoice timestamp in any common layout. Values without
// a zone are taken as UTC.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
