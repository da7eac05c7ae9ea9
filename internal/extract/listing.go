package extract

import (
	"regexp"
	"strconv"
	"strings"

	"property_agent/internal/model"
)

// DefaultTowns are towns and suburbs commonly named in sale notices.
var DefaultTowns = []string{
	"Roodepoort", "Krugersdorp", "Johannesburg", "Pretoria", "Soweto",
	"Randburg", "Sandton", "Centurion", "Midrand", "Kempton Park",
	"Boksburg", "Benoni", "Springs", "Germiston", "Alberton",
	"Vereeniging", "Vanderbijlpark", "Sasolburg", "Potchefstroom",
	"Klerksdorp", "Rustenburg", "Polokwane", "Nelspruit", "Mbombela",
	"Witbank", "Emalahleni", "Middelburg", "Secunda",
	"Cape Town", "Bellville", "Durban", "Pinetown", "Umhlanga",
	"Port Elizabeth", "Gqeberha", "East London", "Bloemfontein",
}

var (
	amountRe   = regexp.MustCompile(`(?i)R\s*(\d[\d ,]*(?:\.\d{2})?)`)
	erfRe      = regexp.MustCompile(`(?i)\bERF\s*(\d+)\b`)
	locationRe = regexp.MustCompile(`(?:\bsituated\s+at|\blocated\s+at|\bin|\bat)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`)
)

type categoryRule struct {
	pattern *regexp.Regexp
	label   string
}

// Order encodes specificity: the first pattern found wins.
var categoryRules = []categoryRule{
	{regexp.MustCompile(`\bsectional\s+title\b`), "sectional title"},
	{regexp.MustCompile(`\bapartment\b`), "apartment"},
	{regexp.MustCompile(`\bflat\b`), "flat"},
	{regexp.MustCompile(`\bplot\b`), "plot"},
	{regexp.MustCompile(`\bstand\b`), "stand"},
	{regexp.MustCompile(`\bhouse\b`), "house"},
	{regexp.MustCompile(`\bdwelling\b`), "house"},
	{regexp.MustCompile(`\bproperty\b`), "property"},
	{regexp.MustCompile(`\bunit\b`), "unit"},
	{regexp.MustCompile(`\bvacant\s+land\b`), "vacant land"},
	{regexp.MustCompile(`\bfarm\b`), "farm"},
}

// Listing builds an event-level summary from a calendar event. It is used
// when the event has no document with numbered lots.
func (e *Extractor) Listing(ev model.Event) model.Listing {
	location := strings.TrimSpace(ev.Location)
	if location == "" {
		location = e.Location(ev.RawText)
	}
	return model.Listing{
		Title:       ev.Title,
		Date:        ev.Date,
		Price:       LargestAmount(ev.RawText),
		Location:    location,
		ErfNumber:   ParseErf(ev.RawText),
		Category:    ParseCategory(ev.RawText),
		Description: strings.TrimSpace(ev.RawText),
		RawText:     ev.RawText,
	}
}

// LargestAmount returns the largest rand amount in text, assumed to be the
// asking or reserve price.
func LargestAmount(text string) *float64 {
	var best *float64
	for _, m := range amountRe.FindAllStringSubmatch(text, -1) {
		v := parseDecimal(m[1])
		if v == nil {
			continue
		}
		if best == nil || *v > *best {
			best = v
		}
	}
	return best
}

// ParseErf returns the first erf number as "ERF <n>", or "".
func ParseErf(text string) string {
	m := erfRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return "ERF " + m[1]
}

// ParseCategory returns the property category label, or "".
func ParseCategory(text string) string {
	lower := strings.ToLower(text)
	for _, r := range categoryRules {
		if r.pattern.MatchString(lower) {
			return r.label
		}
	}
	return ""
}

// Categories returns the category labels in matching order.
func Categories() []string {
	out := make([]string, 0, len(categoryRules))
	for _, r := range categoryRules {
		out = append(out, r.label)
	}
	return out
}

// Location returns the first known town mentioned in text, falling back to
// the capitalised words after "situated at", "located at", "in" or "at".
func (e *Extractor) Location(text string) string {
	lower := strings.ToLower(text)
	for _, town := range e.towns {
		if strings.Contains(lower, strings.ToLower(town)) {
			return town
		}
	}
	if m := locationRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// parseDecimal keeps digits and the decimal point, dropping separators.
func parseDecimal(raw string) *float64 {
	clean := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, raw)
	if clean == "" {
		return nil
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return nil
	}
	return &v
}
