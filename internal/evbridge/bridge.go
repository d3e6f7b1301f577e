package evbridge

import (
	"fmt"

	"github.com/samay58/handspread/internal/analysisutil"
	"github.com/samay58/handspread/internal/valuemodel"
)

// bridgeMetrics lists the SEC metric names the currency gate inspects
// before any bridge arithmetic runs.
var bridgeMetrics = []string{
	"total_debt", "short_term_debt", "cash", "marketable_securities",
	"operating_lease_liabilities", "preferred_stock",
	"noncontrolling_interests", "equity_method_investments",
}

// BuildEVBridge applies policy to snapshot + secLTM and returns the
// ComputedValue enumerated in bridge order (§4.D). Missing cited
// components contribute zero except market_cap: a nil market cap makes the
// whole bridge nil.
func BuildEVBridge(snapshot valuemodel.MarketSnapshot, secLTM map[string]valuemodel.CitedValue, policy EVPolicy) valuemodel.ComputedValue {
	var present []valuemodel.CitedValue
	for _, m := range bridgeMetrics {
		if v, ok := analysisutil.ExtractSECValue(secLTM, m); ok {
			present = append(present, v)
		}
	}
	if ccy, _ := analysisutil.DetectSECCurrency(present...); ccy != "" && ccy != "USD" {
		return valuemodel.NewComputedValue(
			"",
			nil, nil,
			nil, "USD",
			fmt.Sprintf("EV bridge blocked: SEC currency %s ≠ USD market", ccy),
		)
	}

	components := map[string]valuemodel.AnyValue{}
	var order []string
	var formula string
	var total float64

	if snapshot.MarketCap == nil {
		return valuemodel.NewComputedValue("", nil, nil, nil, "USD")
	}
	marketCapBase := snapshot.MarketCap.Base()
	if marketCapBase.Value == nil {
		return valuemodel.NewComputedValue("", nil, nil, nil, "USD")
	}
	components["market_cap"] = snapshot.MarketCap
	order = append(order, "market_cap")
	formula = "market_cap"
	total = *marketCapBase.Value

	addTerm := func(role string, v valuemodel.CitedValue, sign string) {
		if v.Value == nil {
			return
		}
		components[role] = v
		order = append(order, role)
		formula += fmt.Sprintf(" %s %s", sign, role)
		if sign == "+" {
			total += *v.Value
		} else {
			total -= *v.Value
		}
	}

	totalDebt, hasTotalDebt := analysisutil.ExtractSECValue(secLTM, "total_debt")
	shortTermDebt, hasShortTermDebt := analysisutil.ExtractSECValue(secLTM, "short_term_debt")

	switch policy.DebtMode {
	case DebtModeSplit:
		if hasTotalDebt {
			addTerm("total_debt", totalDebt, "+")
		}
		if hasShortTermDebt {
			addTerm("short_term_debt", shortTermDebt, "+")
		}
	case DebtModeTotalPlusShortTerm:
		combined := combineDebt(totalDebt, hasTotalDebt, shortTermDebt, hasShortTermDebt)
		if combined != nil {
			components["debt"] = *combined
			order = append(order, "debt")
			formula += " + debt"
			total += *combined.Value
		}
	default: // DebtModeTotalOnly, or unrecognized falls back to total-only
		if hasTotalDebt {
			addTerm("total_debt", totalDebt, "+")
		}
	}

	if policy.SubtractCash {
		if v, ok := analysisutil.ExtractSECValue(secLTM, "cash"); ok {
			addTerm("cash", v, "-")
		}
	}
	if policy.SubtractMarketableSecurities {
		if v, ok := analysisutil.ExtractSECValue(secLTM, "marketable_securities"); ok {
			addTerm("marketable_securities", v, "-")
		}
	}
	if policy.IncludeLeases {
		if v, ok := analysisutil.ExtractSECValue(secLTM, "operating_lease_liabilities"); ok {
			addTerm("operating_lease_liabilities", v, "+")
		}
	}
	if policy.IncludePreferred {
		if v, ok := analysisutil.ExtractSECValue(secLTM, "preferred_stock"); ok {
			addTerm("preferred_stock", v, "+")
		}
	}
	if policy.IncludeNCI {
		if v, ok := analysisutil.ExtractSECValue(secLTM, "noncontrolling_interests"); ok {
			addTerm("noncontrolling_interests", v, "+")
		}
	}
	if policy.SubtractEquityMethodInvestments {
		if v, ok := analysisutil.ExtractSECValue(secLTM, "equity_method_investments"); ok {
			addTerm("equity_method_investments", v, "-")
		}
	}

	return valuemodel.NewComputedValue(formula, components, order, &total, "USD")
}

// combineDebt sums total_debt and short_term_debt into a single sub-component
// for DebtModeTotalPlusShortTerm. Returns nil if neither is present.
func combineDebt(total valuemodel.CitedValue, hasTotal bool, short valuemodel.CitedValue, hasShort bool) *valuemodel.ComputedValue {
	components := map[string]valuemodel.AnyValue{}
	var order []string
	var sum float64
	var any bool
	if hasTotal && total.Value != nil {
		components["total_debt"] = total
		order = append(order, "total_debt")
		sum += *total.Value
		any = true
	}
	if hasShort && short.Value != nil {
		components["short_term_debt"] = short
		order = append(order, "short_term_debt")
		sum += *short.Value
		any = true
	}
	if !any {
		return nil
	}
	cv := valuemodel.NewComputedValue("total_debt + short_term_debt", components, order, &sum, "USD")
	return &cv
}
