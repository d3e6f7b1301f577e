// Command handspread runs a comps analysis for a set of tickers and prints
// a plain tabular summary to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/samay58/handspread/internal/config"
	"github.com/samay58/handspread/internal/engine"
	"github.com/samay58/handspread/internal/marketdata"
	"github.com/samay58/handspread/internal/secdata"
	"github.com/samay58/handspread/internal/valuemodel"
)

// summaryColumns lists, in display order, the multiples and growth metrics
// printed per ticker.
var summaryColumns = []struct {
	Header string
	Source string // "multiples" or "growth"
	Key    string
}{
	{"EV/Rev", "multiples", "ev_revenue"},
	{"EV/EBITDA", "multiples", "ev_ebitda"},
	{"P/E", "multiples", "pe"},
	{"Rev YoY", "growth", "revenue"},
	{"EBITDA YoY", "growth", "ebitda"},
}

func main() {
	tickers := flag.String("tickers", "", "comma-separated list of tickers, e.g. AAPL,MSFT")
	timeout := flag.Duration("timeout", 0, "per-ticker deadline (default 30s)")
	taxRate := flag.Float64("tax-rate", 0, "ROIC tax rate override (0 uses the engine default)")
	flag.Parse()

	if strings.TrimSpace(*tickers) == "" {
		fmt.Fprintln(os.Stderr, "Error: --tickers is required")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	symbols := splitTickers(*tickers)

	opts := engine.Opts{
		Market:   marketdata.NewClient(cfg.FinnhubAPIKey, cfg.MarketTTL, cfg.MarketConcurrency),
		SEC:      secdata.NewClient(cfg.EdgarUserAgent),
		Resolver: secdata.NewTickerResolver(cfg.EdgarUserAgent),
		Timeout:  *timeout,
	}
	if *taxRate > 0 {
		opts.TaxRate = taxRate
	}

	results, err := engine.AnalyzeComps(context.Background(), symbols, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	printSummary(results)
}

func splitTickers(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printSummary(results []valuemodel.CompanyAnalysis) {
	header := "TICKER"
	for _, col := range summaryColumns {
		header += "\t" + col.Header
	}
	fmt.Println(header)

	for _, r := range results {
		row := r.Symbol
		for _, col := range summaryColumns {
			var set map[string]valuemodel.ComputedValue
			if col.Source == "multiples" {
				set = r.Multiples
			} else {
				set = r.Growth
			}
			row += "\t" + formatValue(set[col.Key])
		}
		fmt.Println(row)
	}

	printErrors(results)
}

func formatValue(v valuemodel.ComputedValue) string {
	if v.Value == nil {
		return "n/a"
	}
	switch v.Unit {
	case "x":
		return fmt.Sprintf("%.2fx", *v.Value)
	case "pure", "%":
		return fmt.Sprintf("%.1f%%", *v.Value*100)
	default:
		return fmt.Sprintf("%.2f", *v.Value)
	}
}

func printErrors(results []valuemodel.CompanyAnalysis) {
	var lines []string
	for _, r := range results {
		for _, e := range r.Errors {
			lines = append(lines, fmt.Sprintf("%s: [%s/%s] %s", r.Symbol, e.Kind, e.Stage, e.Message))
		}
	}
	if len(lines) == 0 {
		return
	}
	sort.Strings(lines)
	fmt.Fprintln(os.Stderr, "\nWarnings:")
	for _, l := range lines {
		fmt.Fprintln(os.Stderr, "  "+l)
	}
}
