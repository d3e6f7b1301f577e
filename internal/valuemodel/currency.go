package valuemodel

import "strings"

// CurrencyOf extracts the ISO currency code embedded in a unit string such
// as "USD" or "CNY/shares". Units with no currency component ("shares",
// "pure", "x", "%") return ok=false.
func CurrencyOf(unit string) (ccy string, ok bool) {
	base := unit
	if idx := strings.IndexByte(unit, '/'); idx >= 0 {
		base = unit[:idx]
	}
	if len(base) == 3 && isUpperAlpha(base) {
		return base, true
	}
	return "", false
}

func isUpperAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
