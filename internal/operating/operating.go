// Package operating computes the single-period operating and capital-
// efficiency metrics of §4.G: margins, R&D/SG&A/capex intensity,
// revenue-per-share, and ROIC.
package operating

import (
	"github.com/samay58/handspread/internal/analysisutil"
	"github.com/samay58/handspread/internal/valuemodel"
)

// defaultTaxRate is the assumed marginal tax rate ROIC uses when the caller
// does not override it via Inputs.TaxRate.
const defaultTaxRate = 0.21

// Inputs bundles the current period's SEC metrics, the SBC-adjusted EBITDA
// already computed for that period, the market snapshot (for
// revenue-per-share), and an optional tax rate override for ROIC.
type Inputs struct {
	SECLTM         map[string]valuemodel.CitedValue
	AdjustedEBITDA valuemodel.ComputedValue
	Market         valuemodel.MarketSnapshot
	TaxRate        *float64
}

// Compute returns gross_margin, ebitda_margin, adjusted_ebitda_margin,
// net_margin, fcf_margin, rd_to_revenue, sga_to_revenue, capex_to_revenue,
// revenue_per_share, and roic, keyed by name.
func Compute(in Inputs) map[string]valuemodel.ComputedValue {
	out := map[string]valuemodel.ComputedValue{}

	sec := func(name string) (valuemodel.CitedValue, bool) {
		return analysisutil.ExtractSECValue(in.SECLTM, name)
	}
	revenue, revenueOK := sec("revenue")

	ratioToRevenue := func(key, numerator string) valuemodel.ComputedValue {
		num, numOK := sec(numerator)
		formula := numerator + " / revenue"
		if !numOK || !revenueOK {
			return valuemodel.NewComputedValue(formula, nil, nil, nil, "pure")
		}
		return ratio(formula, "numerator", num, "revenue", revenue, "pure")
	}

	out["gross_margin"] = ratioToRevenue("gross_margin", "gross_profit")
	out["ebitda_margin"] = ratioToRevenue("ebitda_margin", "ebitda")
	out["net_margin"] = ratioToRevenue("net_margin", "net_income")
	out["fcf_margin"] = ratioToRevenue("fcf_margin", "free_cash_flow")
	out["rd_to_revenue"] = ratioToRevenue("rd_to_revenue", "research_development")
	out["sga_to_revenue"] = ratioToRevenue("sga_to_revenue", "sga")
	out["capex_to_revenue"] = ratioToRevenue("capex_to_revenue", "capital_expenditures")

	if revenueOK {
		out["adjusted_ebitda_margin"] = ratio("adjusted_ebitda / revenue", "numerator", in.AdjustedEBITDA, "revenue", revenue, "pure")
	} else {
		out["adjusted_ebitda_margin"] = valuemodel.NewComputedValue("adjusted_ebitda / revenue", nil, nil, nil, "pure")
	}

	out["revenue_per_share"] = revenuePerShare(revenue, revenueOK, in.Market)
	out["roic"] = roic(in)

	return out
}

// ratio computes numerator/denominator with the standard zero/missing/
// non-finite guard. Unlike multiples, operating ratios are always
// same-currency (both legs come from the SEC metrics map), so there is no
// currency gate here.
func ratio(formula, numRole string, num valuemodel.AnyValue, denRole string, den valuemodel.AnyValue, unit string) valuemodel.ComputedValue {
	components := map[string]valuemodel.AnyValue{numRole: num, denRole: den}
	order := []string{numRole, denRole}

	nb, db := num.Base(), den.Base()
	if !nb.Finite() || !db.Finite() || *db.Value == 0 {
		return valuemodel.NewComputedValue(formula, components, order, nil, unit)
	}
	v := *nb.Value / *db.Value
	return valuemodel.NewComputedValue(formula, components, order, &v, unit)
}

// revenuePerShare divides SEC-cited revenue by the market-vendor share
// count. The two legs can legitimately be denominated in different
// currencies (a non-US filer's revenue vs. a USD-context share count), so
// the result is flagged rather than blocked outright.
func revenuePerShare(revenue valuemodel.CitedValue, revenueOK bool, market valuemodel.MarketSnapshot) valuemodel.ComputedValue {
	formula := "revenue / shares_outstanding"
	if !revenueOK || market.SharesOutstanding.Value == nil {
		return valuemodel.NewComputedValue(formula, nil, nil, nil, "pure")
	}
	components := map[string]valuemodel.AnyValue{"revenue": revenue, "shares_outstanding": market.SharesOutstanding}
	order := []string{"revenue", "shares_outstanding"}

	shares := market.SharesOutstanding.Base()
	if !revenue.Finite() || !shares.Finite() || *shares.Value == 0 {
		return valuemodel.NewComputedValue(formula, components, order, nil, perShareUnit(revenue.Unit))
	}

	var warn string
	if analysisutil.IsCrossCurrency(true, revenue) {
		ccy, _ := valuemodel.CurrencyOf(revenue.Unit)
		warn = "cross-context: SEC " + ccy + " revenue vs market share count"
	}

	v := *revenue.Value / *shares.Value
	unit := perShareUnit(revenue.Unit)
	if warn != "" {
		return valuemodel.NewComputedValue(formula, components, order, &v, unit, warn)
	}
	return valuemodel.NewComputedValue(formula, components, order, &v, unit)
}

func perShareUnit(revenueUnit string) string {
	if ccy, ok := valuemodel.CurrencyOf(revenueUnit); ok {
		return ccy + "/shares"
	}
	return "USD/shares"
}

// roic computes operating_income*(1-tax_rate) / (total_debt +
// stockholders_equity), the after-tax return on invested capital. Zero
// invested capital yields nil rather than a divide-by-zero.
func roic(in Inputs) valuemodel.ComputedValue {
	formula := "operating_income * (1 - tax_rate) / (total_debt + stockholders_equity)"

	oi, oiOK := analysisutil.ExtractSECValue(in.SECLTM, "operating_income")
	debt, debtOK := analysisutil.ExtractSECValue(in.SECLTM, "total_debt")
	equity, equityOK := analysisutil.ExtractSECValue(in.SECLTM, "stockholders_equity")
	if !oiOK || !debtOK || !equityOK {
		return valuemodel.NewComputedValue(formula, nil, nil, nil, "pure")
	}

	components := map[string]valuemodel.AnyValue{
		"operating_income": oi, "total_debt": debt, "stockholders_equity": equity,
	}
	order := []string{"operating_income", "total_debt", "stockholders_equity"}

	if !oi.Finite() || !debt.Finite() || !equity.Finite() {
		return valuemodel.NewComputedValue(formula, components, order, nil, "pure")
	}

	taxRate := defaultTaxRate
	if in.TaxRate != nil {
		taxRate = *in.TaxRate
	}

	invested := *debt.Value + *equity.Value
	if invested == 0 {
		return valuemodel.NewComputedValue(formula, components, order, nil, "pure")
	}

	v := (*oi.Value * (1 - taxRate)) / invested
	return valuemodel.NewComputedValue(formula, components, order, &v, "pure")
}
