package extract

import (
	"regexp"
	"strconv"
	"strings"

	"property_agent/internal/model"
)

var (
	noCourtReserveRe = regexp.MustCompile(`(?i)\bNo\s+Court\s+Reserve\b`)
	bankReserveRe    = regexp.MustCompile(`(?i)\bBank\s+Reserve\b`)
	courtReserveRe   = regexp.MustCompile(`(?i)R\s*(\d[\d ,]*)(?:\.\d+)?\s*(?:–\s*)?Court\s+Reserve`)
	sizeRe           = regexp.MustCompile(`(?i)(\d{1,3}(?:[ ,]\d{3})+|\d+)\s?m²`)
)

// ReserveRule maps a lot's text to a reserve classification. Apply reports
// false when the rule does not recognise the text.
type ReserveRule struct {
	Name  string
	Apply func(text string) (model.ReserveKind, *float64, bool)
}

// The none and bank checks must run before the amount rule: their lines may
// carry digits (a size, an erf number) that would otherwise read as a price.
var reserveRules = []ReserveRule{
	{
		Name: "no_court_reserve",
		Apply: func(text string) (model.ReserveKind, *float64, bool) {
			return model.ReserveNone, nil, noCourtReserveRe.MatchString(text)
		},
	},
	{
		Name: "bank_reserve",
		Apply: func(text string) (model.ReserveKind, *float64, bool) {
			return model.ReserveBank, nil, bankReserveRe.MatchString(text)
		},
	},
	{
		Name: "court_reserve_amount",
		Apply: func(text string) (model.ReserveKind, *float64, bool) {
			m := courtReserveRe.FindStringSubmatch(text)
			if m == nil {
				return "", nil, false
			}
			return model.ReserveCourt, parseAmount(m[1]), true
		},
	},
}

// ReserveRules returns the reserve classification rules in evaluation order.
func ReserveRules() []ReserveRule {
	out := make([]ReserveRule, len(reserveRules))
	copy(out, reserveRules)
	return out
}

// ClassifyReserve returns the reserve kind and, for court reserves, the price.
// The first matching rule wins; no match yields ReserveUnknown.
func ClassifyReserve(text string) (model.ReserveKind, *float64) {
	for _, r := range reserveRules {
		if kind, price, ok := r.Apply(text); ok {
			return kind, price
		}
	}
	return model.ReserveUnknown, nil
}

// ParseSize returns the first square-metre figure in text, or nil.
func ParseSize(text string) *float64 {
	m := sizeRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return parseAmount(m[1])
}

// parseAmount parses a figure written with space or comma thousands separators.
func parseAmount(raw string) *float64 {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if digits == "" {
		return nil
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return nil
	}
	return &v
}
