// Package engine orchestrates a comps run across tickers: per ticker, it
// fans out the sec_ltm fetch, the sec_ltm_minus_1 fetch, and the market
// fetch as three independent concurrent streams under a shared deadline,
// then assembles the EV bridge, multiples, growth, and operating metrics
// once all three settle. A failure in any one stream or stage is recorded
// against that ticker's CompanyAnalysis rather than aborting the run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samay58/handspread/internal/analysisutil"
	"github.com/samay58/handspread/internal/evbridge"
	"github.com/samay58/handspread/internal/growth"
	"github.com/samay58/handspread/internal/multiples"
	"github.com/samay58/handspread/internal/operating"
	"github.com/samay58/handspread/internal/secdata"
	"github.com/samay58/handspread/internal/valuemodel"
)

// DefaultTimeout is the per-ticker deadline shared by the SEC and market
// fetches when Opts.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// MarketSource is whatever fetches a current MarketSnapshot for a symbol;
// internal/marketdata.Client satisfies it.
type MarketSource interface {
	Fetch(ctx context.Context, symbol string) (valuemodel.MarketSnapshot, error)
}

// SECSource is whatever resolves one period's cited metrics for a CIK, per
// the period-selector interface §6 describes for the external SEC library
// ("ltm", "ltm-1", or "annual:N"); internal/secdata.Client satisfies it.
type SECSource interface {
	FetchPeriod(ctx context.Context, cik, period string) (map[string]valuemodel.CitedValue, error)
}

// CIKResolver maps a ticker to its SEC CIK; internal/secdata.TickerResolver
// satisfies it.
type CIKResolver interface {
	Resolve(ctx context.Context, ticker string) (string, error)
}

// Opts bundles the engine's collaborators and run parameters.
type Opts struct {
	Market   MarketSource
	SEC      SECSource
	Resolver CIKResolver
	Policy   *evbridge.EVPolicy // nil uses evbridge.DefaultEVPolicy()
	TaxRate  *float64           // nil uses operating's default
	Timeout  time.Duration      // per-ticker deadline; <= 0 uses DefaultTimeout
}

// InvalidInputError is the only error kind AnalyzeComps itself ever
// returns; every per-ticker failure is instead recorded in that ticker's
// CompanyAnalysis.Errors.
type InvalidInputError struct{ Message string }

func (e *InvalidInputError) Error() string { return e.Message }

func (e *InvalidInputError) Kind() valuemodel.ErrorKind { return valuemodel.ErrInvalidInput }

// AnalyzeComps runs a full comps analysis for every ticker, in parallel,
// and returns results in the same order the tickers were supplied.
func AnalyzeComps(ctx context.Context, tickers []string, opts Opts) ([]valuemodel.CompanyAnalysis, error) {
	if len(tickers) == 0 {
		return nil, &InvalidInputError{Message: "tickers must not be empty"}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runID := uuid.NewString()

	results := make([]valuemodel.CompanyAnalysis, len(tickers))
	var wg sync.WaitGroup
	for i, ticker := range tickers {
		wg.Add(1)
		go func(i int, ticker string) {
			defer wg.Done()
			results[i] = analyzeTicker(ctx, ticker, opts, timeout, runID)
		}(i, ticker)
	}
	wg.Wait()

	return results, nil
}

type marketResult struct {
	snapshot valuemodel.MarketSnapshot
	err      error
}

type secPeriodResult struct {
	cik     string
	metrics map[string]valuemodel.CitedValue
	err     error
}

// analyzeTicker fans out the three independent streams §4.H names —
// sec_ltm, sec_ltm_minus_1, and market — concurrently under a shared
// deadline, then assembles D through G sequentially once all three settle.
// It never panics and never returns an error — every failure becomes an
// ErrorEntry on the result.
func analyzeTicker(ctx context.Context, ticker string, opts Opts, timeout time.Duration, runID string) valuemodel.CompanyAnalysis {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	analysis := valuemodel.CompanyAnalysis{Symbol: ticker}

	marketCh := make(chan marketResult, 1)
	secLTMCh := make(chan secPeriodResult, 1)
	secLTMMinus1Ch := make(chan secPeriodResult, 1)

	go func() {
		if opts.Market == nil {
			marketCh <- marketResult{err: errors.New("no market source configured")}
			return
		}
		snap, err := opts.Market.Fetch(ctx, ticker)
		marketCh <- marketResult{snapshot: snap, err: err}
	}()

	go func() { secLTMCh <- fetchSECPeriod(ctx, ticker, opts, secdata.PeriodLTM) }()
	go func() { secLTMMinus1Ch <- fetchSECPeriod(ctx, ticker, opts, secdata.PeriodLTMMinus1) }()

	mr := <-marketCh
	ltmR := <-secLTMCh
	ltmMinus1R := <-secLTMMinus1Ch

	if mr.err != nil {
		analysis.Errors = append(analysis.Errors, valuemodel.ErrorEntry{
			Kind: classify(ctx, mr.err), Stage: "market", Message: mr.err.Error(), RunID: runID,
		})
	} else {
		analysis.Market = mr.snapshot
		analysis.CompanyName = mr.snapshot.CompanyName
	}

	if ltmR.err != nil {
		analysis.Errors = append(analysis.Errors, valuemodel.ErrorEntry{
			Kind: classify(ctx, ltmR.err), Stage: "sec_ltm", Message: ltmR.err.Error(), RunID: runID,
		})
	} else {
		analysis.CIK = ltmR.cik
		analysis.SECLTM = ltmR.metrics
	}
	if ltmMinus1R.err != nil {
		analysis.Errors = append(analysis.Errors, valuemodel.ErrorEntry{
			Kind: classify(ctx, ltmMinus1R.err), Stage: "sec_ltm_minus_1", Message: ltmMinus1R.err.Error(), RunID: runID,
		})
	} else {
		if analysis.CIK == "" {
			analysis.CIK = ltmMinus1R.cik
		}
		analysis.SECLTMMinus1 = ltmMinus1R.metrics
	}
	if analysis.SECLTM == nil {
		analysis.SECLTM = map[string]valuemodel.CitedValue{}
	}
	if analysis.SECLTMMinus1 == nil {
		analysis.SECLTMMinus1 = map[string]valuemodel.CitedValue{}
	}

	policy := evbridge.DefaultEVPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}

	analysis.EVBridge = safeBuildValue(&analysis, runID, "ev_bridge", func() valuemodel.ComputedValue {
		return evbridge.BuildEVBridge(analysis.Market, analysis.SECLTM, policy)
	})

	oiCur, dnaCur, sbcCur := extractTriple(analysis.SECLTM)
	oiPri, dnaPri, sbcPri := extractTriple(analysis.SECLTMMinus1)
	adjEBITDACur := analysisutil.ComputeAdjustedEBITDA(oiCur, dnaCur, sbcCur)
	adjEBITDAPri := analysisutil.ComputeAdjustedEBITDA(oiPri, dnaPri, sbcPri)

	analysis.Multiples = safeBuildMap(&analysis, runID, "multiples", func() map[string]valuemodel.ComputedValue {
		return multiples.Compute(multiples.Inputs{
			EV: analysis.EVBridge, Market: analysis.Market, SECLTM: analysis.SECLTM, AdjustedEBITDA: adjEBITDACur,
		})
	})

	analysis.Growth = safeBuildMap(&analysis, runID, "growth", func() map[string]valuemodel.ComputedValue {
		return growth.Compute(growth.Inputs{
			Current: analysis.SECLTM, Prior: analysis.SECLTMMinus1,
			AdjustedEBITDACurrent: adjEBITDACur, AdjustedEBITDAPrior: adjEBITDAPri,
		})
	})

	analysis.Operating = safeBuildMap(&analysis, runID, "operating", func() map[string]valuemodel.ComputedValue {
		return operating.Compute(operating.Inputs{
			SECLTM: analysis.SECLTM, AdjustedEBITDA: adjEBITDACur, Market: analysis.Market, TaxRate: opts.TaxRate,
		})
	})

	return analysis
}

func resolveCIK(ctx context.Context, ticker string, resolver CIKResolver) (string, error) {
	if resolver == nil {
		return "", errors.New("no CIK resolver configured")
	}
	return resolver.Resolve(ctx, ticker)
}

// fetchSECPeriod resolves ticker's CIK and fetches one period's cited
// metrics. It is called independently for "ltm" and "ltm-1" so that the two
// periods are genuinely separate concurrent streams, each cancellable and
// independently error-isolated per §4.H; the resolver itself is a cheap,
// already-loaded in-memory lookup (internal/secdata.TickerResolver), so
// resolving twice costs no extra network round-trip.
func fetchSECPeriod(ctx context.Context, ticker string, opts Opts, period string) secPeriodResult {
	cik, err := resolveCIK(ctx, ticker, opts.Resolver)
	if err != nil {
		return secPeriodResult{err: err}
	}
	if opts.SEC == nil {
		return secPeriodResult{err: errors.New("no SEC source configured")}
	}
	metrics, err := opts.SEC.FetchPeriod(ctx, cik, period)
	return secPeriodResult{cik: cik, metrics: metrics, err: err}
}

func extractTriple(metrics map[string]valuemodel.CitedValue) (oi, dna, sbc *valuemodel.CitedValue) {
	if v, ok := metrics["operating_income"]; ok {
		oi = &v
	}
	if v, ok := metrics["depreciation_amortization"]; ok {
		dna = &v
	}
	if v, ok := metrics["stock_based_compensation"]; ok {
		sbc = &v
	}
	return
}

// safeBuildValue and safeBuildMap isolate a single downstream stage: a
// panic there is recorded as a DataQuality error against the ticker
// instead of taking down the whole run.
func safeBuildValue(analysis *valuemodel.CompanyAnalysis, runID, stage string, fn func() valuemodel.ComputedValue) (result valuemodel.ComputedValue) {
	defer func() {
		if r := recover(); r != nil {
			analysis.Errors = append(analysis.Errors, valuemodel.ErrorEntry{
				Kind: valuemodel.ErrDataQuality, Stage: stage, Message: fmt.Sprintf("panic: %v", r), RunID: runID,
			})
		}
	}()
	return fn()
}

func safeBuildMap(analysis *valuemodel.CompanyAnalysis, runID, stage string, fn func() map[string]valuemodel.ComputedValue) (result map[string]valuemodel.ComputedValue) {
	defer func() {
		if r := recover(); r != nil {
			analysis.Errors = append(analysis.Errors, valuemodel.ErrorEntry{
				Kind: valuemodel.ErrDataQuality, Stage: stage, Message: fmt.Sprintf("panic: %v", r), RunID: runID,
			})
			result = map[string]valuemodel.ComputedValue{}
		}
	}()
	return fn()
}

func classify(ctx context.Context, err error) valuemodel.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return valuemodel.ErrTimeout
	}
	return valuemodel.ErrUpstreamFailure
}
