// Package secdata is Handspread's own minimal XBRL companyfacts client,
// standing in for the full-featured external SEC data library §1 assumes:
// it maps a handful of us-gaap concepts to normalized metric names, picks
// the latest annual (10-K) fact and the one fiscal year before it, and
// flags the split-contamination pattern in per-share figures.
package secdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/samay58/handspread/internal/valuemodel"
)

const companyFactsURLFmt = "https://data.sec.gov/api/xbrl/companyfacts/CIK%010s.json"

// metricConcepts maps a normalized metric name to the us-gaap XBRL tags
// that report it, tried in order until one has data.
var metricConcepts = map[string][]string{
	"revenue": {"RevenueFromContractWithCustomerExcludingAssessedTax", "Revenues"},
	"gross_profit": {"GrossProfit"},
	"operating_income": {"OperatingIncomeLoss"},
	"ebitda": {}, // Handspread derives ebitda itself; see deriveEBITDA
	"net_income": {"NetIncomeLoss"},
	"eps_diluted": {"EarningsPerShareDiluted"},
	"depreciation_amortization": {"DepreciationDepletionAndAmortization", "DepreciationAmortizationAndAccretionNet", "DepreciationAndAmortization"},
	"stock_based_compensation": {"ShareBasedCompensation"},
	"research_development": {"ResearchAndDevelopmentExpense"},
	"sga": {"SellingGeneralAndAdministrativeExpense"},
	"capital_expenditures": {"PaymentsToAcquirePropertyPlantAndEquipment"},
	"operating_cash_flow": {"NetCashProvidedByUsedInOperatingActivities"},
	"stockholders_equity": {"StockholdersEquity", "StockholdersEquityIncludingPortionAttributableToNoncontrollingInterest"},
	"total_debt": {"DebtLongtermAndShorttermCombinedAmount", "LongTermDebtNoncurrent", "LongTermDebt"},
	"short_term_debt": {"LongTermDebtCurrent", "ShortTermBorrowings"},
	"cash": {"CashAndCashEquivalentsAtCarryingValue"},
	"marketable_securities": {"ShortTermInvestments", "MarketableSecuritiesCurrent", "OtherShortTermInvestments"},
	"noncontrolling_interests": {"MinorityInterest", "MinorityInterestInLimitedPartnerships"},
	"preferred_stock": {"PreferredStockValue"},
	"dividends_per_share": {"CommonStockDividendsPerShareDeclared"},
	"operating_lease_liabilities": {"OperatingLeaseLiability", "OperatingLeaseLiabilityNoncurrent"},
	"equity_method_investments": {"EquityMethodInvestments"},
}

// perShareMetrics get split-contamination checked; all other metrics are
// scale-dollar figures the split ratio test doesn't apply to.
var perShareMetrics = map[string]bool{
	"eps_diluted":         true,
	"dividends_per_share": true,
}

// Client fetches and normalizes XBRL companyfacts for a single CIK. A
// singleflight group coalesces the "ltm" and "ltm-1" period-selector calls
// §6 describes the external library exposing: both resolve from the same
// underlying companyfacts document, so two concurrent requests for one CIK
// should cost one HTTP round-trip, not two.
type Client struct {
	http       *http.Client
	baseURLFmt string
	userAgent  string
	group      singleflight.Group
}

// NewClient requires a contact-identifying User-Agent string, as SEC's
// fair-access policy mandates (a bare default string gets rate-limited).
func NewClient(userAgent string) *Client {
	return &Client{
		http:       &http.Client{Timeout: 20 * time.Second},
		baseURLFmt: companyFactsURLFmt,
		userAgent:  userAgent,
	}
}

// Periods holds the two annual periods the engine needs: the latest 10-K
// (LTM) and the one immediately before it (LTM-1).
type Periods struct {
	LTM       map[string]valuemodel.CitedValue
	LTMMinus1 map[string]valuemodel.CitedValue
}

// Period selectors matching §6's "ltm" / "ltm-1" / "annual:N" vocabulary;
// Handspread's own reference client only needs the first two.
const (
	PeriodLTM       = "ltm"
	PeriodLTMMinus1 = "ltm-1"
)

// FetchPeriod implements the period-selector shape §6 specifies for the
// external SEC library: one call per (cik, period). The engine issues one
// call for "ltm" and one for "ltm-1" as independent concurrent streams;
// both are served from the same companyfacts document, coalesced via
// singleflight so they cost a single HTTP round-trip per CIK.
func (c *Client) FetchPeriod(ctx context.Context, cik, period string) (map[string]valuemodel.CitedValue, error) {
	periods, err := c.fetchCoalesced(ctx, cik)
	if err != nil {
		return nil, err
	}
	if period == PeriodLTMMinus1 {
		return periods.LTMMinus1, nil
	}
	return periods.LTM, nil
}

func (c *Client) fetchCoalesced(ctx context.Context, cik string) (Periods, error) {
	v, err, _ := c.group.Do(cik, func() (interface{}, error) {
		return c.Fetch(ctx, cik)
	})
	if err != nil {
		return Periods{}, err
	}
	return v.(Periods), nil
}

// Fetch retrieves companyfacts for cik (unpadded or zero-padded, either is
// accepted) and extracts the two most recent annual periods for every
// known metric.
func (c *Client) Fetch(ctx context.Context, cik string) (Periods, error) {
	raw, err := c.fetchRaw(ctx, cik)
	if err != nil {
		return Periods{}, err
	}

	ltm := make(map[string]valuemodel.CitedValue)
	ltmMinus1 := make(map[string]valuemodel.CitedValue)

	for metric, concepts := range metricConcepts {
		if len(concepts) == 0 {
			continue
		}
		points, concept, unit := firstAnnualSeries(raw, concepts)
		if len(points) == 0 {
			continue
		}
		if cv, ok := pointToCitedValue(raw, metric, concept, unit, points[0]); ok {
			ltm[metric] = cv
		}
		if len(points) > 1 {
			if cv, ok := pointToCitedValue(raw, metric, concept, unit, points[1]); ok {
				ltmMinus1[metric] = cv
			}
		}
	}

	deriveEBITDA(ltm)
	deriveEBITDA(ltmMinus1)
	deriveFreeCashFlow(ltm)
	deriveFreeCashFlow(ltmMinus1)
	applySplitContamination(ltm, ltmMinus1)

	return Periods{LTM: ltm, LTMMinus1: ltmMinus1}, nil
}

// deriveEBITDA synthesizes GAAP EBITDA (operating_income + D&A) for a
// period, since no single us-gaap concept reports it directly.
func deriveEBITDA(metrics map[string]valuemodel.CitedValue) {
	oi, oiOK := metrics["operating_income"]
	dna, dnaOK := metrics["depreciation_amortization"]
	if !oiOK || !dnaOK || oi.Value == nil || dna.Value == nil {
		return
	}
	val := *oi.Value + *dna.Value
	metrics["ebitda"] = valuemodel.NewCitedValue(&val, oi.Unit, valuemodel.CitedValueInput{
		Concept: "derived:OperatingIncomeLoss+DepreciationDepletionAndAmortization",
		Metric:  "ebitda", FiscalYear: oi.FiscalYear, FiscalPeriod: oi.FiscalPeriod,
		PeriodEnd: oi.PeriodEnd, FormType: oi.FormType, Filed: oi.Filed,
		Accession: oi.Accession, CIK: oi.CIK, FilingURL: oi.FilingURL,
	})
}

// deriveFreeCashFlow synthesizes free cash flow (operating cash flow minus
// capex) for a period, since XBRL has no single FCF concept.
func deriveFreeCashFlow(metrics map[string]valuemodel.CitedValue) {
	ocf, ocfOK := metrics["operating_cash_flow"]
	capex, capexOK := metrics["capital_expenditures"]
	if !ocfOK || !capexOK || ocf.Value == nil || capex.Value == nil {
		return
	}
	val := *ocf.Value - *capex.Value
	metrics["free_cash_flow"] = valuemodel.NewCitedValue(&val, ocf.Unit, valuemodel.CitedValueInput{
		Concept: "derived:NetCashProvidedByUsedInOperatingActivities-PaymentsToAcquirePropertyPlantAndEquipment",
		Metric:  "free_cash_flow", FiscalYear: ocf.FiscalYear, FiscalPeriod: ocf.FiscalPeriod,
		PeriodEnd: ocf.PeriodEnd, FormType: ocf.FormType, Filed: ocf.Filed,
		Accession: ocf.Accession, CIK: ocf.CIK, FilingURL: ocf.FilingURL,
	})
}

type companyFactsResponse struct {
	CIK        int64                         `json:"cik"`
	EntityName string                        `json:"entityName"`
	Facts      map[string]map[string]concept `json:"facts"`
}

type concept struct {
	Units map[string][]factPoint `json:"units"`
}

type factPoint struct {
	End   string  `json:"end"`
	Val   float64 `json:"val"`
	Accn  string  `json:"accn"`
	FY    int     `json:"fy"`
	FP    string  `json:"fp"`
	Form  string  `json:"form"`
	Filed string  `json:"filed"`
}

func (c *Client) fetchRaw(ctx context.Context, cik string) (companyFactsResponse, error) {
	url := fmt.Sprintf(c.baseURLFmt, cik)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return companyFactsResponse{}, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return companyFactsResponse{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return companyFactsResponse{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return companyFactsResponse{}, fmt.Errorf("sec companyfacts %s: status %d", cik, resp.StatusCode)
	}

	var out companyFactsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return companyFactsResponse{}, err
	}
	return out, nil
}

// firstAnnualSeries returns the first matching concept's 10-K fact points,
// most recent first, along with which concept tag and unit matched.
func firstAnnualSeries(raw companyFactsResponse, concepts []string) ([]factPoint, string, string) {
	usgaap := raw.Facts["us-gaap"]
	for _, name := range concepts {
		c, ok := usgaap[name]
		if !ok {
			continue
		}
		unit := "USD"
		points, ok := c.Units[unit]
		if !ok {
			for u, p := range c.Units {
				unit, points = u, p
				break
			}
		}
		annual := make([]factPoint, 0, len(points))
		for _, p := range points {
			if p.Form == "10-K" {
				annual = append(annual, p)
			}
		}
		if len(annual) == 0 {
			continue
		}
		sort.Slice(annual, func(i, j int) bool { return annual[i].End > annual[j].End })
		return annual, name, unit
	}
	return nil, "", ""
}

func pointToCitedValue(raw companyFactsResponse, metric, concept, unit string, p factPoint) (valuemodel.CitedValue, bool) {
	val := p.Val
	periodEnd, _ := time.Parse("2006-01-02", p.End)
	filed, _ := time.Parse("2006-01-02", p.Filed)
	cik := fmt.Sprintf("%d", raw.CIK)

	return valuemodel.NewCitedValue(&val, unitLabel(unit), valuemodel.CitedValueInput{
		Concept:      "us-gaap:" + concept,
		Metric:       metric,
		FiscalYear:   p.FY,
		FiscalPeriod: p.FP,
		PeriodEnd:    periodEnd,
		FormType:     p.Form,
		Filed:        filed,
		Accession:    p.Accn,
		CIK:          cik,
		FilingURL:    fmt.Sprintf("https://www.sec.gov/cgi-bin/browse-edgar?action=getcompany&CIK=%s", cik),
	}), true
}

// unitLabel turns an XBRL unit ref like "USD-per-shares" or "USD" into the
// "<CCY>/shares" / "<CCY>" convention the rest of Handspread expects.
func unitLabel(xbrlUnit string) string {
	switch xbrlUnit {
	case "USD":
		return "USD"
	case "USD-per-shares":
		return "USD/shares"
	default:
		return xbrlUnit
	}
}

// applySplitContamination flags per-share metrics whose LTM/LTM-1 ratio
// falls outside [0.2, 5] against each other — a pattern consistent with an
// un-restated stock split slipping through XBRL tagging.
func applySplitContamination(ltm, ltmMinus1 map[string]valuemodel.CitedValue) {
	for metric := range perShareMetrics {
		cur, curOK := ltm[metric]
		pri, priOK := ltmMinus1[metric]
		if !curOK || !priOK || cur.Value == nil || pri.Value == nil || *pri.Value == 0 {
			continue
		}
		ratio := *cur.Value / *pri.Value
		if ratio > 5 || ratio < 0.2 {
			cur.Warnings = append(cur.Warnings, "Possible stock split contamination")
			pri.Warnings = append(pri.Warnings, "Possible stock split contamination")
			ltm[metric] = cur
			ltmMinus1[metric] = pri
		}
	}
}
