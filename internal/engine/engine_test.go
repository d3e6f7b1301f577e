package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samay58/handspread/internal/valuemodel"
)

type fakeMarket struct {
	snap valuemodel.MarketSnapshot
	err  error
	wait time.Duration
}

func (f fakeMarket) Fetch(ctx context.Context, symbol string) (valuemodel.MarketSnapshot, error) {
	if f.wait > 0 {
		select {
		case <-time.After(f.wait):
		case <-ctx.Done():
			return valuemodel.MarketSnapshot{}, ctx.Err()
		}
	}
	return f.snap, f.err
}

type fakeSEC struct {
	ltm          map[string]valuemodel.CitedValue
	ltmMinus1    map[string]valuemodel.CitedValue
	err          error
	ltmMinus1Err error
}

func (f fakeSEC) FetchPeriod(ctx context.Context, cik, period string) (map[string]valuemodel.CitedValue, error) {
	if period == "ltm-1" {
		if f.ltmMinus1Err != nil {
			return nil, f.ltmMinus1Err
		}
		if f.err != nil {
			return nil, f.err
		}
		return f.ltmMinus1, nil
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.ltm, nil
}

type fakeResolver struct {
	cik string
	err error
}

func (f fakeResolver) Resolve(ctx context.Context, ticker string) (string, error) {
	return f.cik, f.err
}

func v(x float64) *float64 { return &x }

func cited(metric string, value float64, unit string) valuemodel.CitedValue {
	return valuemodel.NewCitedValue(&value, unit, valuemodel.CitedValueInput{Metric: metric})
}

func TestAnalyzeCompsEmptyTickersIsInvalidInput(t *testing.T) {
	_, err := AnalyzeComps(context.Background(), nil, Opts{})
	if err == nil {
		t.Fatal("expected error for empty ticker list")
	}
	if _, ok := err.(*InvalidInputError); !ok {
		t.Errorf("expected *InvalidInputError, got %T", err)
	}
}

func TestAnalyzeCompsHappyPath(t *testing.T) {
	opts := Opts{
		Market: fakeMarket{snap: valuemodel.MarketSnapshot{
			MarketCap: valuemodel.NewMarketValue(v(4422.6e9), "USD", "finnhub", "profile2", time.Now()),
		}},
		SEC: fakeSEC{ltm: map[string]valuemodel.CitedValue{
			"revenue":    cited("revenue", 187e9, "USD"),
			"total_debt": cited("total_debt", 8.5e9, "USD"),
		}},
		Resolver: fakeResolver{cik: "0000320193"},
	}

	results, err := AnalyzeComps(context.Background(), []string{"AAPL"}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	got := results[0]
	if got.Symbol != "AAPL" {
		t.Errorf("symbol = %q, want AAPL", got.Symbol)
	}
	if len(got.Errors) != 0 {
		t.Errorf("expected no errors, got %v", got.Errors)
	}
	if got.Multiples["ev_revenue"].Value == nil {
		t.Error("expected ev_revenue to be computed")
	}
}

func TestAnalyzeCompsPreservesInputOrder(t *testing.T) {
	opts := Opts{
		Market:   fakeMarket{err: errors.New("down")},
		SEC:      fakeSEC{err: errors.New("down")},
		Resolver: fakeResolver{cik: "0"},
	}
	results, err := AnalyzeComps(context.Background(), []string{"ZZZ", "AAA", "MMM"}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"ZZZ", "AAA", "MMM"}
	for i, w := range want {
		if results[i].Symbol != w {
			t.Errorf("results[%d].Symbol = %q, want %q", i, results[i].Symbol, w)
		}
	}
}

func TestAnalyzeCompsPartialFailureIsolatesTicker(t *testing.T) {
	opts := Opts{
		Market:   fakeMarket{err: errors.New("vendor unavailable")},
		SEC:      fakeSEC{ltm: map[string]valuemodel.CitedValue{"revenue": cited("revenue", 100, "USD")}},
		Resolver: fakeResolver{cik: "0000320193"},
	}
	results, err := AnalyzeComps(context.Background(), []string{"AAPL"}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := results[0]
	found := false
	for _, e := range got.Errors {
		if e.Stage == "market" && e.Kind == valuemodel.ErrUpstreamFailure {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a market-stage UpstreamFailure error, got %v", got.Errors)
	}
	// §8's "Partial stream failure" scenario names exactly one errors entry;
	// a failed market stream leaves MarketSnapshot{} (MarketCap a nil
	// AnyValue interface), which must not produce a spurious recovered-panic
	// ev_bridge error downstream.
	if len(got.Errors) != 1 {
		t.Errorf("expected exactly one error entry, got %v", got.Errors)
	}
	if got.SECLTM["revenue"].Value == nil {
		t.Error("expected SEC data to still be present despite market failure")
	}
}

func TestAnalyzeCompsMissingResolverRecordsError(t *testing.T) {
	opts := Opts{
		Market: fakeMarket{snap: valuemodel.MarketSnapshot{}},
	}
	results, err := AnalyzeComps(context.Background(), []string{"AAPL"}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := results[0]
	foundLTM, foundLTMMinus1, foundEVBridge := false, false, false
	for _, e := range got.Errors {
		switch e.Stage {
		case "sec_ltm":
			foundLTM = true
		case "sec_ltm_minus_1":
			foundLTMMinus1 = true
		case "ev_bridge":
			foundEVBridge = true
		}
	}
	if !foundLTM {
		t.Errorf("expected sec_ltm error when no resolver is configured, got %v", got.Errors)
	}
	if !foundLTMMinus1 {
		t.Errorf("expected sec_ltm_minus_1 error when no resolver is configured, got %v", got.Errors)
	}
	if foundEVBridge {
		t.Errorf("did not expect an ev_bridge error from an empty MarketSnapshot, got %v", got.Errors)
	}
}

func TestAnalyzeCompsSECPeriodsFailIndependently(t *testing.T) {
	opts := Opts{
		Market: fakeMarket{snap: valuemodel.MarketSnapshot{}},
		SEC: fakeSEC{
			ltm:          map[string]valuemodel.CitedValue{"revenue": cited("revenue", 200e9, "USD")},
			ltmMinus1Err: errors.New("ltm-1 filing not found"),
		},
		Resolver: fakeResolver{cik: "0000320193"},
	}
	results, err := AnalyzeComps(context.Background(), []string{"AAPL"}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := results[0]

	if got.SECLTM["revenue"].Value == nil {
		t.Error("expected sec_ltm revenue to still be present despite sec_ltm_minus_1 failure")
	}
	if len(got.SECLTMMinus1) != 0 {
		t.Errorf("expected empty sec_ltm_minus_1 map, got %v", got.SECLTMMinus1)
	}
	found := false
	for _, e := range got.Errors {
		if e.Stage == "sec_ltm_minus_1" {
			found = true
		}
		if e.Stage == "sec_ltm" {
			t.Errorf("did not expect a sec_ltm error, got %v", e)
		}
	}
	if !found {
		t.Errorf("expected a sec_ltm_minus_1 error, got %v", got.Errors)
	}
	if len(got.Errors) != 1 {
		t.Errorf("expected exactly one error entry (no spurious ev_bridge error from the empty MarketSnapshot), got %v", got.Errors)
	}
}

func TestAnalyzeCompsTimeoutIsRecordedAsTimeoutKind(t *testing.T) {
	opts := Opts{
		Market:   fakeMarket{snap: valuemodel.MarketSnapshot{}, wait: 50 * time.Millisecond},
		SEC:      fakeSEC{},
		Resolver: fakeResolver{cik: "0"},
		Timeout:  5 * time.Millisecond,
	}
	results, err := AnalyzeComps(context.Background(), []string{"AAPL"}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := results[0]
	found := false
	for _, e := range got.Errors {
		if e.Stage == "market" && e.Kind == valuemodel.ErrTimeout {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a market-stage Timeout error, got %v", got.Errors)
	}
	if len(got.Errors) != 1 {
		t.Errorf("expected exactly one error entry (no spurious ev_bridge error from the empty MarketSnapshot), got %v", got.Errors)
	}
}
