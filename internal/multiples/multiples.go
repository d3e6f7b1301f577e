// Package multiples computes the EV and equity multiples and yields of
// §4.E, each as a provenance-carrying ComputedValue with an explicit
// numerator and denominator.
package multiples

import (
	"fmt"

	"github.com/samay58/handspread/internal/analysisutil"
	"github.com/samay58/handspread/internal/valuemodel"
)

// Inputs bundles everything Compute needs: the EV bridge result, the market
// snapshot, and the per-metric SEC cited values plus the already-computed
// SBC-adjusted EBITDA for the same period.
type Inputs struct {
	EV             valuemodel.ComputedValue
	Market         valuemodel.MarketSnapshot
	SECLTM         map[string]valuemodel.CitedValue
	AdjustedEBITDA valuemodel.ComputedValue
}

// Compute returns all nine named multiples (§4.E's table), keyed by name.
// A multiple whose required inputs are absent is still present in the
// returned map, with Value == nil.
func Compute(in Inputs) map[string]valuemodel.ComputedValue {
	out := map[string]valuemodel.ComputedValue{}

	sec := func(name string) (valuemodel.AnyValue, bool) {
		v, ok := analysisutil.ExtractSECValue(in.SECLTM, name)
		if !ok {
			return nil, false
		}
		return v, true
	}

	out["ev_revenue"] = divideOrMissing("enterprise_value / revenue", "enterprise_value", in.EV, "revenue", sec, "x")
	out["ev_ebitda"] = divide("enterprise_value / adjusted_ebitda", "enterprise_value", in.EV, "adjusted_ebitda", in.AdjustedEBITDA, "x")
	out["ev_ebitda_gaap"] = divideOrMissing("enterprise_value / ebitda", "enterprise_value", in.EV, "ebitda", sec, "x")
	out["ev_ebit"] = divideOrMissing("enterprise_value / operating_income", "enterprise_value", in.EV, "operating_income", sec, "x")
	out["ev_fcf"] = divideOrMissing("enterprise_value / free_cash_flow", "enterprise_value", in.EV, "free_cash_flow", sec, "x")

	out["pe"] = divideOrMissing("market_cap / net_income", "market_cap", in.Market.MarketCap, "net_income", sec, "x")
	out["pb"] = divideOrMissing("market_cap / stockholders_equity", "market_cap", in.Market.MarketCap, "stockholders_equity", sec, "x")

	out["fcf_yield"] = divideOrMissingRev("free_cash_flow / market_cap", "free_cash_flow", sec, "market_cap", in.Market.MarketCap, "%")
	out["dividend_yield"] = divideOrMissingRev("dividends_per_share / price", "dividends_per_share", sec, "price", in.Market.Price, "%")

	return out
}

func divideOrMissing(formula, numRole string, num valuemodel.AnyValue, denName string, sec func(string) (valuemodel.AnyValue, bool), unit string) valuemodel.ComputedValue {
	den, ok := sec(denName)
	if !ok || num == nil {
		return valuemodel.NewComputedValue(formula, nil, nil, nil, unit)
	}
	return divide(formula, numRole, num, denName, den, unit)
}

func divideOrMissingRev(formula, numName string, sec func(string) (valuemodel.AnyValue, bool), denRole string, den valuemodel.AnyValue, unit string) valuemodel.ComputedValue {
	num, ok := sec(numName)
	if !ok || den == nil {
		return valuemodel.NewComputedValue(formula, nil, nil, nil, unit)
	}
	return divide(formula, numName, num, denRole, den, unit)
}

// divide performs the actual numerator/denominator arithmetic with the
// currency gate, zero/missing/non-finite denominator handling, and sign
// preservation required by §4.E.
func divide(formula, numRole string, num valuemodel.AnyValue, denRole string, den valuemodel.AnyValue, unit string) valuemodel.ComputedValue {
	components := map[string]valuemodel.AnyValue{numRole: num, denRole: den}
	order := []string{numRole, denRole}

	for _, v := range []valuemodel.AnyValue{num, den} {
		cv, ok := v.(valuemodel.CitedValue)
		if !ok {
			// Adjusted EBITDA is computed from SEC facts and carries their
			// currency in its unit, so it is gated like a cited operand.
			comp, isComputed := v.(valuemodel.ComputedValue)
			if !isComputed {
				continue
			}
			cv = valuemodel.CitedValue{Value: comp.Value}
		}
		if analysisutil.IsCrossCurrency(true, cv) {
			ccy, _ := valuemodel.CurrencyOf(cv.Unit)
			return valuemodel.NewComputedValue(formula, components, order, nil, unit,
				fmt.Sprintf("currency mismatch: %s cited vs USD market", ccy))
		}
	}

	nb, db := num.Base(), den.Base()
	if nb.Value == nil || db.Value == nil || !nb.Finite() || !db.Finite() || *db.Value == 0 {
		return valuemodel.NewComputedValue(formula, components, order, nil, unit)
	}

	result := *nb.Value / *db.Value
	return valuemodel.NewComputedValue(formula, components, order, &result, unit)
}
