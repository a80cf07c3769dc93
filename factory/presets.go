package factory

import (
	"encoding/json"
)

// StandardPoolJSON returns JSON for a monthly pool: 12% yield, 1% minimum
// principal per bill, 5-day late grace and 90-day default grace.
func StandardPoolJSON(id, name string) string {
	pj := map[string]interface{}{
		"id":                             id,
		"name":                           name,
		"period_duration":                "monthly",
		"late_payment_grace_period_days": 5,
		"default_grace_period_days":      90,
		"advance_rate_bps":               8000,
		"fees": map[string]interface{}{
			"yield_bps":              1200,
			"min_principal_rate_bps": 100,
			"late_fee_flat":          "100",
			"late_fee_bps":           2400,
		},
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}

// ReceivablePoolJSON returns JSON for a pool lending against receivables:
// quarterly bills, a front-loading fee and a capped line size.
func ReceivablePoolJSON(id, name string, advanceRateBps int, maxCreditLine int64) string {
	pj := map[string]interface{}{
		"id":                             id,
		"name":                           name,
		"period_duration":                "quarterly",
		"late_payment_grace_period_days": 10,
		"default_grace_period_days":      180,
		"advance_rate_bps":               advanceRateBps,
		"max_credit_line":                maxCreditLine,
		"fees": map[string]interface{}{
			"yield_bps":              1000,
			"min_principal_rate_bps": 0,
			"late_fee_flat":          "0",
			"late_fee_bps":           1500,
			"front_loading_fee_flat": "50",
			"front_loading_fee_bps":  25,
		},
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}

// TermLoanJSON returns JSON for non-revolving, borrower-level credit terms.
func TermLoanJSON(limit int64, periods int) string {
	cj := map[string]interface{}{
		"credit_limit":          limit,
		"num_of_periods":        periods,
		"period_duration":       "monthly",
		"revolving":             false,
		"borrower_level_credit": true,
	}
	b, _ := json.MarshalIndent(cj, "", "  ")
	return string(b)
}
