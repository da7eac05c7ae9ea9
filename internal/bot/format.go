package bot

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"property_agent/internal/model"
)

const (
	propertyBodyLimit = 600
	listingDescLimit  = 1500
	messageLimit      = 4096
)

var (
	// Lines restating size or reserve are dropped from the body; they are
	// rendered on their own lines below it.
	restatedLineRe = regexp.MustCompile(`(?im)^\s*(?:\d[\d\s]*m²|No\s+Court\s+Reserve|Bank\s+Reserve|R[\d\s,]+Court\s+Reserve.*)\s*$`)
	blankRunRe     = regexp.MustCompile(`\n{3,}`)
)

// FormatProperty renders a lot as a Markdown notification.
func FormatProperty(p model.Property, siteURL string) string {
	body := restatedLineRe.ReplaceAllString(p.RawText, "")
	body = strings.TrimSpace(blankRunRe.ReplaceAllString(strings.TrimSpace(body), "\n\n"))
	body = truncate(body, propertyBodyLimit)

	var b strings.Builder
	fmt.Fprintf(&b, "🏠 *Sale in Execution — %s*\n", humanDate(p.SaleDate))
	b.WriteString(escape(body))
	b.WriteString("\n")
	if p.SizeM2 != nil && *p.SizeM2 > 0 {
		fmt.Fprintf(&b, "📐 %sm²\n", grouped(*p.SizeM2))
	}
	b.WriteString(ReserveDisplay(p))
	b.WriteString("\n")
	if p.SourceRef != "" {
		fmt.Fprintf(&b, "🔗 [Full property list](%s)", p.SourceRef)
	} else {
		fmt.Fprintf(&b, "🔗 [Source](%s)", siteURL)
	}
	return truncate(b.String(), messageLimit)
}

// ReserveDisplay describes the reserve of a lot in one line.
func ReserveDisplay(p model.Property) string {
	switch {
	case p.ReserveKind == model.ReserveNone:
		return "⚡ *NO COURT RESERVE — any bid wins*"
	case p.ReserveKind == model.ReserveBank:
		return "🏦 *Bank Reserve* (floor set by bank)"
	case p.ReserveKind == model.ReserveCourt && p.ReservePrice != nil:
		return "💰 Court Reserve: " + Rand(*p.ReservePrice)
	default:
		return "❓ Reserve unknown"
	}
}

// FormatListing renders an event-level listing as a Markdown notification.
func FormatListing(l model.Listing, siteURL string) string {
	price := "Price not listed"
	if l.Price != nil && *l.Price > 0 {
		price = Rand(*l.Price)
	}

	var b strings.Builder
	b.WriteString("🏠 *NEW SALE IN EXECUTION MATCH*\n")
	fmt.Fprintf(&b, "📅 Date: %s\n", orDefault(l.Date, "TBD"))
	fmt.Fprintf(&b, "📍 Location: %s\n", escape(orDefault(l.Location, "Unknown")))
	fmt.Fprintf(&b, "💰 Price: %s\n", price)
	fmt.Fprintf(&b, "🏗 Type: %s\n", orDefault(cases.Title(language.English).String(l.Category), "N/A"))
	fmt.Fprintf(&b, "📝 ERF: %s\n", orDefault(l.ErfNumber, "N/A"))
	b.WriteString("---\n")
	b.WriteString(escape(truncate(l.Description, listingDescLimit)))
	b.WriteString("\n---\n")
	fmt.Fprintf(&b, "🔗 [Source](%s)", siteURL)
	return truncate(b.String(), messageLimit)
}

// FormatPreference summarises a subscriber's preference.
func FormatPreference(pref *model.Preference) string {
	if pref == nil {
		return "No preferences set."
	}
	minPrice, maxPrice := "any", "any"
	if pref.MinPrice != nil {
		minPrice = Rand(*pref.MinPrice)
	}
	if pref.MaxPrice != nil {
		maxPrice = Rand(*pref.MaxPrice)
	}
	keywords := strings.Join(pref.Keywords, ", ")
	if keywords == "" {
		keywords = "any"
	}
	return fmt.Sprintf("💰 Price range: %s – %s\n📍 Location keywords: %s", minPrice, maxPrice, keywords)
}

// FormatRunReport summarises an ingestion cycle for an operator.
func FormatRunReport(r model.RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Run %s finished in %s\n", r.RunID, r.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Events: %d (%d from cache)\n", r.Events, r.CachedEvents)
	fmt.Fprintf(&b, "Lots parsed: %d, new: %d, listings: %d\n", r.Parsed, r.Stored, r.Listings)
	fmt.Fprintf(&b, "Notified: %d (sent %d, failed %d)\n", r.Notified, r.Sent, r.SendFailures)
	fmt.Fprintf(&b, "Already seen: %d, unmatched: %d", r.SkippedSeen, r.Unmatched)
	return b.String()
}

// Rand formats an amount in whole rand with thousands separators.
func Rand(v float64) string {
	return "R " + grouped(v)
}

func grouped(v float64) string {
	return message.NewPrinter(language.English).Sprintf("%d", int64(math.Round(v)))
}

func humanDate(date string) string {
	t, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return orDefault(date, "TBD")
	}
	return t.Format("2 Jan 2006")
}

// truncate shortens s to at most limit runes, marking the cut with "...".
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
