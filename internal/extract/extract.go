// Package extract turns raw sale-document and event text into structured records.
//
// Every function in this package is total: unmatched fields resolve to nil or
// an explicit unknown value and malformed blocks are skipped, never fatal.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"property_agent/internal/model"
)

// MinBlockLength is the shortest entry text (in characters) kept as a lot.
const MinBlockLength = 20

var (
	sectionStartRe = regexp.MustCompile(`(?i)NO IMAGE\s+ADDRESS`)
	sectionEndRe   = regexp.MustCompile(`(?i)(?:The properties listed above|RULES OF SALES? IN EXECUTION)`)
	entryRe        = regexp.MustCompile(`(?m)^(\d{1,2})\.\s`)
)

// Extractor parses documents and event text.
type Extractor struct {
	towns []string
}

// New creates an Extractor that recognises the given towns when guessing an
// event location. A nil or empty list selects DefaultTowns.
func New(towns []string) *Extractor {
	if len(towns) == 0 {
		towns = DefaultTowns
	}
	return &Extractor{towns: towns}
}

// Properties extracts every numbered lot from a sale document.
func (e *Extractor) Properties(documentText, saleDate, sourceRef string) []model.Property {
	return Properties(documentText, saleDate, sourceRef)
}

// Properties extracts every numbered lot from a sale document.
// Entries shorter than MinBlockLength and duplicate numbers are dropped.
func Properties(documentText, saleDate, sourceRef string) []model.Property {
	section := lotSection(documentText)
	if section == "" {
		return nil
	}

	var props []model.Property
	seen := make(map[int]bool)
	for _, b := range splitEntries(section) {
		if utf8.RuneCountInString(b.text) < MinBlockLength {
			continue
		}
		number, err := strconv.Atoi(b.number)
		if err != nil || number <= 0 || seen[number] {
			continue
		}
		seen[number] = true

		kind, price := ClassifyReserve(b.text)
		props = append(props, model.Property{
			SaleDate:     saleDate,
			Number:       number,
			RawText:      b.text,
			SizeM2:       ParseSize(b.text),
			ReservePrice: price,
			ReserveKind:  kind,
			SourceRef:    sourceRef,
		})
	}
	return props
}

// lotSection trims text to the region between the lot table header and the
// sale rules footer.
func lotSection(text string) string {
	if loc := sectionStartRe.FindStringIndex(text); loc != nil {
		text = text[loc[1]:]
	}
	if loc := sectionEndRe.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	return text
}

type entry struct {
	number string
	text   string
}

func splitEntries(section string) []entry {
	matches := entryRe.FindAllStringSubmatchIndex(section, -1)
	entries := make([]entry, 0, len(matches))
	for i, m := range matches {
		end := len(section)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		entries = append(entries, entry{
			number: section[m[2]:m[3]],
			text:   strings.TrimSpace(section[m[1]:end]),
		})
	}
	return entries
}
