// Package analysisutil holds the small cross-cutting helpers that the
// EV-bridge, multiples, growth, and operating components all lean on:
// pulling a cited value out of the SEC metrics mapping, detecting the
// filing currency, computing SBC-adjusted EBITDA, and guarding against
// cross-currency arithmetic.
package analysisutil

import (
	"github.com/samay58/handspread/internal/valuemodel"
)

// ExtractSECValue looks up a normalized metric name in a SEC metrics
// mapping. Absence returns (zero value, false) rather than panicking —
// every caller must tolerate a missing metric.
func ExtractSECValue(metrics map[string]valuemodel.CitedValue, name string) (valuemodel.CitedValue, bool) {
	v, ok := metrics[name]
	return v, ok
}

// DetectSECCurrency inspects the unit of each supplied cited value and
// returns the majority currency code, or "" if none carry a recognizable
// currency. Mixed currencies are reported via the returned warning.
func DetectSECCurrency(values ...valuemodel.CitedValue) (ccy string, warning string) {
	counts := make(map[string]int)
	order := make([]string, 0, 4)
	for _, v := range values {
		c, ok := valuemodel.CurrencyOf(v.Unit)
		if !ok {
			continue
		}
		if _, seen := counts[c]; !seen {
			order = append(order, c)
		}
		counts[c]++
	}
	if len(order) == 0 {
		return "", ""
	}
	best := order[0]
	for _, c := range order[1:] {
		if counts[c] > counts[best] {
			best = c
		}
	}
	if len(order) > 1 {
		return best, "mixed SEC currencies detected; using majority " + best
	}
	return best, ""
}

// ComputeAdjustedEBITDA implements "OI + D&A + SBC", falling back to GAAP
// EBITDA with a warning when SBC is unavailable. Missing OI or D&A yields a
// nil value.
func ComputeAdjustedEBITDA(operatingIncome, dna, sbc *valuemodel.CitedValue) valuemodel.ComputedValue {
	components := map[string]valuemodel.AnyValue{}
	order := []string{}
	if operatingIncome != nil {
		components["operating_income"] = *operatingIncome
		order = append(order, "operating_income")
	}
	if dna != nil {
		components["depreciation_amortization"] = *dna
		order = append(order, "depreciation_amortization")
	}
	if sbc != nil {
		components["stock_based_compensation"] = *sbc
		order = append(order, "stock_based_compensation")
	}

	unit := "USD"
	if ccy, _ := DetectSECCurrency(nonNil(operatingIncome, dna, sbc)...); ccy != "" {
		unit = ccy
	}

	if operatingIncome == nil || dna == nil || operatingIncome.Value == nil || dna.Value == nil {
		return valuemodel.NewComputedValue("OI + D&A + SBC", components, order, nil, unit)
	}

	sum := *operatingIncome.Value + *dna.Value
	var warn string
	if sbc == nil || sbc.Value == nil {
		warn = "SBC unavailable; adjusted EBITDA ≈ GAAP EBITDA"
	} else {
		sum += *sbc.Value
	}

	if warn != "" {
		return valuemodel.NewComputedValue("OI + D&A + SBC", components, order, &sum, unit, warn)
	}
	return valuemodel.NewComputedValue("OI + D&A + SBC", components, order, &sum, unit)
}

func nonNil(vs ...*valuemodel.CitedValue) []valuemodel.CitedValue {
	out := make([]valuemodel.CitedValue, 0, len(vs))
	for _, v := range vs {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// IsCrossCurrency reports whether dividing a USD-denominated market input by
// secValue would mix currencies: true iff secValue's unit carries a non-USD
// currency and the market side is USD. Consumers must call this before any
// market/SEC division.
func IsCrossCurrency(marketIsUSD bool, secValue valuemodel.CitedValue) bool {
	if !marketIsUSD {
		return false
	}
	ccy, ok := valuemodel.CurrencyOf(secValue.Unit)
	if !ok {
		return false
	}
	return ccy != "USD"
}
