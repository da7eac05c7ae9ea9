// Package filter implements the preference matching engine.
package filter

import (
	"strings"

	"property_agent/internal/model"
)

// Match checks whether a lot passes a subscriber's preference.
// No Court Reserve and Bank Reserve lots always pass.
// A known reserve price must lie within the inclusive price bounds; a missing
// price never rejects. When keywords are set, at least one must appear in the
// lot text (case-insensitive substring).
func Match(p model.Property, pref model.Preference) bool {
	if p.IsOpportunity() {
		return true
	}
	if !priceInRange(p.ReservePrice, pref) {
		return false
	}
	return containsAny(p.RawText, pref.Keywords)
}

// MatchListing applies the price and keyword checks to an event-level listing.
func MatchListing(l model.Listing, pref model.Preference) bool {
	if !priceInRange(l.Price, pref) {
		return false
	}
	return containsAny(l.RawText, pref.Keywords)
}

func priceInRange(price *float64, pref model.Preference) bool {
	if price == nil {
		return true
	}
	if pref.MinPrice != nil && *price < *pref.MinPrice {
		return false
	}
	if pref.MaxPrice != nil && *price > *pref.MaxPrice {
		return false
	}
	return true
}

func containsAny(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// NormalizeKeywords splits a comma-separated keyword list, trimming blanks.
func NormalizeKeywords(raw string) []string {
	var out []string
	for _, kw := range strings.Split(raw, ",") {
		kw = strings.TrimSpace(kw)
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
