// Package model defines the domain types used across the application.
package model

import (
	"errors"
	"time"
)

// DateLayout is the ISO calendar date format used for sale dates.
const DateLayout = "2006-01-02"

// DateIn formats t as a sale date in loc. A nil loc means UTC.
func DateIn(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// IsPast reports whether date is a well-formed sale date before today.
// Malformed dates are never past.
func IsPast(date, today string) bool {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return false
	}
	return date < today
}

// ErrInvalidRange is returned when a preference's minimum exceeds its maximum.
var ErrInvalidRange = errors.New("minimum price is greater than maximum price")

// Event is one calendar-level sale announcement returned by a fetcher.
type Event struct {
	EventID      string
	Title        string
	Date         string
	Location     string
	RawText      string
	Links        []string
	DocumentText string
	DocumentRef  string
}

// ReserveKind classifies the floor price of an auctioned lot.
type ReserveKind string

// Supported reserve kinds.
const (
	ReserveCourt   ReserveKind = "court"
	ReserveBank    ReserveKind = "bank"
	ReserveNone    ReserveKind = "none"
	ReserveUnknown ReserveKind = "unknown"
)

// Property is a single auctioned lot extracted from a sale document.
type Property struct {
	SaleDate     string
	Number       int
	RawText      string
	SizeM2       *float64
	ReservePrice *float64
	ReserveKind  ReserveKind
	SourceRef    string
	FirstSeenAt  time.Time
}

// IsOpportunity reports whether the lot has no court-set floor price.
func (p Property) IsOpportunity() bool {
	return p.ReserveKind == ReserveNone || p.ReserveKind == ReserveBank
}

// Listing is an event-level summary used when no per-lot document exists.
type Listing struct {
	Title       string
	Date        string
	Price       *float64
	Location    string
	ErfNumber   string
	Category    string
	Description string
	RawText     string
}

// User is a registered subscriber.
type User struct {
	ID          int64
	ChatID      int64
	DisplayName string
	CreatedAt   time.Time
}

// Preference holds one subscriber's filter settings.
type Preference struct {
	SubscriberID int64
	MinPrice     *float64
	MaxPrice     *float64
	Keywords     []string
	Active       bool
}

// Validate checks the price bounds of the preference.
func (p Preference) Validate() error {
	if p.MinPrice != nil && p.MaxPrice != nil && *p.MinPrice > *p.MaxPrice {
		return ErrInvalidRange
	}
	return nil
}

// SeenEntry marks an identity hash as already routed to a subscriber.
type SeenEntry struct {
	Hash        string
	FirstSeenAt time.Time
}

// RunState is the phase of an ingestion cycle.
type RunState string

// Ingestion cycle phases.
const (
	StateIdle       RunState = "idle"
	StateFetching   RunState = "fetching"
	StateExtracting RunState = "extracting"
	StateMatching   RunState = "matching"
	StateNotifying  RunState = "notifying"
)

// RunReport summarises one ingestion cycle.
type RunReport struct {
	RunID        string
	Events       int
	CachedEvents int
	Parsed       int
	Stored       int
	Listings     int
	SkippedSeen  int
	Unmatched    int
	Notified     int
	Sent         int
	SendFailures int
	Duration     time.Duration
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
