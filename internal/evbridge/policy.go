// Package evbridge builds the enterprise-value bridge: market cap plus
// debt-like claims minus cash-like offsets, per a configurable EVPolicy.
package evbridge

// DebtMode selects which combination of total_debt + short_term_debt feeds
// the bridge (§3's EVPolicy table).
type DebtMode string

const (
	// DebtModeTotalOnly uses total_debt alone; short_term_debt is ignored
	// even when present, so a filer whose total_debt already includes its
	// short-term portion is never double counted.
	DebtModeTotalOnly DebtMode = "total_only"
	// DebtModeSplit adds total_debt and short_term_debt as two distinct,
	// separately itemized bridge components.
	DebtModeSplit DebtMode = "split"
	// DebtModeTotalPlusShortTerm adds total_debt and short_term_debt too,
	// but collapses them into a single combined "debt" line item instead
	// of itemizing them separately.
	DebtModeTotalPlusShortTerm DebtMode = "total_plus_short_term"
)

// EVPolicy configures how BuildEVBridge assembles enterprise value. The
// zero value is not a valid policy; use DefaultEVPolicy.
type EVPolicy struct {
	DebtMode                        DebtMode
	SubtractCash                    bool
	SubtractMarketableSecurities    bool
	IncludeLeases                   bool
	IncludePreferred                bool
	IncludeNCI                      bool
	SubtractEquityMethodInvestments bool
}

// DefaultEVPolicy matches the defaults in §3: split debt tracking off
// (total_only), cash and marketable securities subtracted, leases excluded,
// preferred stock and NCI included, equity-method investments not
// subtracted.
func DefaultEVPolicy() EVPolicy {
	return EVPolicy{
		DebtMode:                        DebtModeTotalOnly,
		SubtractCash:                    true,
		SubtractMarketableSecurities:    true,
		IncludeLeases:                   false,
		IncludePreferred:                true,
		IncludeNCI:                      true,
		SubtractEquityMethodInvestments: false,
	}
}
