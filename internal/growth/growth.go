// Package growth computes year-over-year change between an LTM period and
// the same window shifted back one year (LTM-1), plus margin deltas
// between the two periods, per §4.F.
package growth

import (
	"fmt"
	"math"
	"strings"

	"github.com/samay58/handspread/internal/analysisutil"
	"github.com/samay58/handspread/internal/valuemodel"
)

// yoyMetrics names every SEC-sourced metric growth computes directly by
// name lookup in the current/prior metric maps. PerShare marks metrics
// subject to the split-contamination skip.
var yoyMetrics = []struct {
	Name     string
	PerShare bool
}{
	{"revenue", false},
	{"gross_profit", false},
	{"operating_income", false},
	{"ebitda", false},
	{"net_income", false},
	{"eps_diluted", true},
	{"depreciation_amortization", false},
	{"free_cash_flow", false},
}

// Inputs bundles the two periods' SEC metrics plus the SBC-adjusted EBITDA
// already computed for each period (adjusted_ebitda is not a raw SEC metric,
// so it is passed in rather than looked up by name).
type Inputs struct {
	Current               map[string]valuemodel.CitedValue
	Prior                 map[string]valuemodel.CitedValue
	AdjustedEBITDACurrent valuemodel.ComputedValue
	AdjustedEBITDAPrior   valuemodel.ComputedValue
}

// Compute returns YoY growth for every metric in yoyMetrics plus
// adjusted_ebitda, and margin deltas for gross/EBITDA/adjusted-EBITDA
// margins, keyed by name.
func Compute(in Inputs) map[string]valuemodel.ComputedValue {
	out := map[string]valuemodel.ComputedValue{}

	for _, m := range yoyMetrics {
		formula := fmt.Sprintf("(%s[t] - %s[t-1]) / |%s[t-1]|", m.Name, m.Name, m.Name)
		cur, curOK := analysisutil.ExtractSECValue(in.Current, m.Name)
		pri, priOK := analysisutil.ExtractSECValue(in.Prior, m.Name)
		if !curOK || !priOK {
			out[m.Name] = valuemodel.NewComputedValue(formula, nil, nil, nil, "pure")
			continue
		}
		out[m.Name] = yoy(formula, cur, pri, m.PerShare)
	}

	out["adjusted_ebitda"] = yoy(
		"(adjusted_ebitda[t] - adjusted_ebitda[t-1]) / |adjusted_ebitda[t-1]|",
		in.AdjustedEBITDACurrent, in.AdjustedEBITDAPrior, false,
	)

	out["gross_margin"] = marginDelta(in, "gross_profit", false)
	out["ebitda_margin"] = marginDelta(in, "ebitda", false)
	out["adjusted_ebitda_margin"] = marginDelta(in, "adjusted_ebitda", true)

	return out
}

// yoy implements "(current - prior) / |prior|" with the prior-zero guard,
// missing-input tolerance, and the split-contamination skip for per-share
// metrics.
func yoy(formula string, current, prior valuemodel.AnyValue, perShare bool) valuemodel.ComputedValue {
	components := map[string]valuemodel.AnyValue{"current": current, "prior": prior}
	order := []string{"current", "prior"}

	if perShare && (hasSplitWarning(current.Base().Warnings) || hasSplitWarning(prior.Base().Warnings)) {
		return valuemodel.NewComputedValue(formula, components, order, nil, "pure", "skipped: stock split contamination")
	}

	cb, pb := current.Base(), prior.Base()
	if cb.Value == nil || pb.Value == nil {
		return valuemodel.NewComputedValue(formula, components, order, nil, "pure")
	}
	if *pb.Value == 0 {
		return valuemodel.NewComputedValue(formula, components, order, nil, "pure", "prior period is zero")
	}

	g := (*cb.Value - *pb.Value) / math.Abs(*pb.Value)
	return valuemodel.NewComputedValue(formula, components, order, &g, "pure")
}

// marginDelta computes (current numerator/revenue) - (prior numerator/
// revenue), in percentage points, for the three margin series growth
// tracks. numerator is "adjusted_ebitda" when isAdjustedEBITDA is set
// (looked up from the precomputed ComputedValue pair instead of the SEC
// metric maps), otherwise it is a plain SEC metric name.
func marginDelta(in Inputs, numerator string, isAdjustedEBITDA bool) valuemodel.ComputedValue {
	formula := fmt.Sprintf("%s[t]/revenue[t] - %s[t-1]/revenue[t-1]", numerator, numerator)

	curRev, curRevOK := analysisutil.ExtractSECValue(in.Current, "revenue")
	priRev, priRevOK := analysisutil.ExtractSECValue(in.Prior, "revenue")

	var curNum, priNum valuemodel.AnyValue
	curNumOK, priNumOK := true, true
	if isAdjustedEBITDA {
		curNum, priNum = in.AdjustedEBITDACurrent, in.AdjustedEBITDAPrior
	} else {
		var cv, pv valuemodel.CitedValue
		cv, curNumOK = analysisutil.ExtractSECValue(in.Current, numerator)
		pv, priNumOK = analysisutil.ExtractSECValue(in.Prior, numerator)
		curNum, priNum = cv, pv
	}

	if !curRevOK || !priRevOK || !curNumOK || !priNumOK {
		return valuemodel.NewComputedValue(formula, nil, nil, nil, "%")
	}

	components := map[string]valuemodel.AnyValue{
		"current_numerator": curNum, "current_revenue": curRev,
		"prior_numerator": priNum, "prior_revenue": priRev,
	}
	order := []string{"current_numerator", "current_revenue", "prior_numerator", "prior_revenue"}

	curMargin, curOK := safeRatio(curNum.Base(), curRev.Value)
	priMargin, priOK := safeRatio(priNum.Base(), priRev.Value)
	if !curOK || !priOK {
		return valuemodel.NewComputedValue(formula, components, order, nil, "%")
	}

	delta := curMargin - priMargin
	return valuemodel.NewComputedValue(formula, components, order, &delta, "%")
}

func safeRatio(num valuemodel.Value, den *float64) (float64, bool) {
	if num.Value == nil || den == nil || *den == 0 {
		return 0, false
	}
	return *num.Value / *den, true
}

func hasSplitWarning(warnings []string) bool {
	for _, w := range warnings {
		if strings.Contains(w, "Possible stock split contamination") {
			return true
		}
	}
	return false
}
