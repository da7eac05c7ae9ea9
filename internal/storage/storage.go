// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"property_agent/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Users persists registered subscribers.
type Users interface {
	UpsertUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
}

// Preferences persists subscriber filters.
type Preferences interface {
	// UpsertPreference stores pref and activates it. Nil fields keep the
	// values of an active preference; an inactive one starts from scratch.
	UpsertPreference(ctx context.Context, pref model.Preference) error
	GetPreference(ctx context.Context, subscriberID int64) (*model.Preference, error)
	ListActivePreferences(ctx context.Context) ([]model.Preference, error)
	ClearPreference(ctx context.Context, subscriberID int64) error
}

// Catalogue persists extracted lots. Rows are never updated or deleted.
type Catalogue interface {
	// InsertProperties atomically stores the lots of one document, skipping
	// identities already present, sets FirstSeenAt on the lots it wrote and
	// returns their count. On error nothing is stored.
	InsertProperties(ctx context.Context, props []model.Property) (int, error)
	ListPropertiesByDate(ctx context.Context, saleDate string) ([]model.Property, error)
	ListUpcomingProperties(ctx context.Context, today string) ([]model.Property, error)
	SaleDatesSince(ctx context.Context, today string) ([]string, error)
}

// Seen tracks identities already routed to at least one subscriber.
type Seen interface {
	MarkSeen(ctx context.Context, hash string) error
	IsSeen(ctx context.Context, hash string) (bool, error)
}

// Storage is the interface for all persistence operations.
type Storage interface {
	Users
	Preferences
	Catalogue
	Seen

	Close() error
}
