// Package identity computes content-derived keys used to deduplicate records.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"property_agent/internal/model"
)

// PrefixLength is the number of leading raw-text characters in a property key.
const PrefixLength = 80

// Property returns the identity of a lot: sale date, sequence number and the
// first PrefixLength characters of its text. The source reference is excluded.
func Property(p model.Property) string {
	return digest(p.SaleDate, strconv.Itoa(p.Number), prefix(p.RawText, PrefixLength))
}

// Listing returns the identity of an event-level listing.
func Listing(l model.Listing) string {
	price := "None"
	if l.Price != nil {
		price = strconv.FormatFloat(*l.Price, 'f', -1, 64)
	}
	return digest(l.Title, l.Date, price)
}

func digest(fields ...string) string {
	h := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(h[:])
}

func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
