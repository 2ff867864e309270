// Command segment runs the customer segmentation pipeline once over a CSV
// export and prints the segment summary, personas and target report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"

	"rfm-dashboard/internal/config"
	"rfm-dashboard/internal/ingest"
	"rfm-dashboard/internal/monthly"
	"rfm-dashboard/internal/observability"
	"rfm-dashboard/internal/sanitize"
	"rfm-dashboard/internal/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "segment:", err)
		}
		os.Exit(1)
	}
}

type options struct {
	csv      string
	encoding string
	cacheDir string
	k        int
	country  string
	refDate  string
	since    string
	target   float64
	quiet    bool
}

func parseFlags(args []string, defaults *config.Config, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("segment", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.csv, "csv", defaults.Dataset.CSVFile, "Transactions CSV export")
	fs.StringVar(&o.encoding, "encoding", defaults.Dataset.Encoding, "CSV encoding (latin1 or utf-8)")
	fs.StringVar(&o.cacheDir, "cache-dir", "", "Directory for the parsed CSV cache (empty disables)")
	fs.IntVar(&o.k, "k", defaults.Analysis.DefaultK, fmt.Sprintf("Number of segments (%d-%d)", config.MinClusters, config.MaxClusters))
	fs.StringVar(&o.country, "country", defaults.Analysis.Country, "Country filter, or \"all\"")
	fs.StringVar(&o.refDate, "ref-date", "", "Reference date for recency (default: latest invoice)")
	fs.StringVar(&o.since, "since", "", "Ignore invoices before this date")
	fs.Float64Var(&o.target, "target", defaults.Analysis.RevenueTarget, "Monthly revenue target per segment")
	fs.BoolVar(&o.quiet, "quiet", false, "Hide the progress bar")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.k < config.MinClusters || o.k > config.MaxClusters {
		return o, fmt.Errorf("-k must be between %d and %d, got %d", config.MinClusters, config.MaxClusters, o.k)
	}
	if o.target < 0 {
		return o, fmt.Errorf("-target cannot be negative")
	}
	return o, nil
}

func (o options) runConfig() (services.RunConfig, error) {
	rc := services.RunConfig{K: o.k, Country: o.country, RevenueTarget: o.target}
	if o.refDate != "" {
		t, err := sanitize.ParseDate(o.refDate)
		if err != nil {
			return rc, fmt.Errorf("-ref-date: %w", err)
		}
		rc.RefDate = t
	}
	if o.since != "" {
		t, err := sanitize.ParseDate(o.since)
		if err != nil {
			return rc, fmt.Errorf("-since: %w", err)
		}
		rc.Since = &t
	}
	return rc, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg := config.Default()
	o, err := parseFlags(args, cfg, stderr)
	if err != nil {
		return err
	}
	rc, err := o.runConfig()
	if err != nil {
		return err
	}
	enc, err := ingest.ParseEncoding(o.encoding)
	if err != nil {
		return err
	}

	logger := observability.NewLoggerTo(stderr, config.LoggerConfig{Level: "warn", Format: "text"})

	src := ingest.FileSource{Path: o.csv, Encoding: enc}
	analytics := services.NewAnalytics(cfg.Analysis, src, ingest.NewCache(o.cacheDir, logger), logger)

	barOut := stderr
	if o.quiet {
		barOut = io.Discard
	}
	bar := progressbar.NewOptions(len(services.Stages),
		progressbar.OptionSetWriter(barOut),
		progressbar.OptionSetDescription("segmenting"),
		progressbar.OptionClearOnFinish(),
	)
	rc.Progress = func(s services.Stage) {
		bar.Describe(string(s))
		_ = bar.Add(1)
	}

	res, err := analytics.Run(ctx, rc)
	_ = bar.Finish()
	if err != nil {
		return err
	}

	return printReport(stdout, res)
}

func printReport(w io.Writer, res *services.Analysis) error {
	fmt.Fprintf(w, "run %s: %d customers, %d transactions, k=%d", res.RunID, len(res.Customers), len(res.Transactions), res.K)
	if res.K != res.RequestedK {
		fmt.Fprintf(w, " (requested %d)", res.RequestedK)
	}
	fmt.Fprintf(w, ", country %s, reference %s, %s\n",
		res.Country, res.RefDate.Format(time.DateOnly), res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "rows %d, kept %d, dropped %d (malformed %d, cancelled %d, non-positive %d, before since %d, other country %d)\n\n",
		res.Sanitize.Rows, res.Sanitize.Kept, res.Sanitize.Dropped(), res.Sanitize.Malformed, res.Sanitize.Cancelled,
		res.Sanitize.NonPositive, res.Sanitize.BeforeSince, res.Sanitize.OtherCountry)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "cluster\tpersona\tcustomers\trecency\tfrequency\tmonetary\trevenue %\tCLV\t")
	for _, s := range res.Summaries {
		name := ""
		if p, ok := res.Persona(s.ClusterID); ok {
			name = p.Name
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%.1f\t%.1f\t%.2f\t%.1f\t%.2f\t\n",
			s.ClusterID, name, s.Count, s.RecencyMean, s.FrequencyMean, s.MonetaryMean, s.RevenueRatio*100, s.CLV)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	for _, p := range res.Personas {
		fmt.Fprintf(w, "%s %s (cluster %d): %s\n", p.Emoji, p.Name, p.ClusterID, strings.Join(p.Actions, "; "))
	}

	if len(res.Monthly.Axis) > 0 {
		fmt.Fprintf(w, "\nmonthly target %.2f over %s to %s\n", res.RevenueTarget,
			monthly.Label(res.Monthly.Axis[0]), monthly.Label(res.Monthly.Axis[len(res.Monthly.Axis)-1]))
	}
	for _, t := range res.Targets {
		fmt.Fprintf(w, "cluster %d: average %.2f (%+.1f%% vs target), %d/%d months above, last month %+.1f%%\n",
			t.ClusterID, t.AverageRevenue, t.AverageVsTarget, t.MonthsAboveTarget, t.Months, t.LastVsTarget)
	}
	return nil
}
