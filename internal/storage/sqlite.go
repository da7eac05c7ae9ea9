package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"property_agent/internal/identity"
	"property_agent/internal/model"
	"property_agent/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// UpsertUser registers a user or refreshes their chat and display name.
func (s *SQLite) UpsertUser(ctx context.Context, u *model.User) error {
	now := s.timestamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, chat_id, display_name, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     chat_id = excluded.chat_id,
		     display_name = excluded.display_name`,
		u.ID, u.ChatID, u.DisplayName, now,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser returns a single user by ID.
func (s *SQLite) GetUser(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, display_name, created_at FROM users WHERE id = ?`, id,
	)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns all registered users ordered by ID.
func (s *SQLite) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, display_name, created_at FROM users ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpsertPreference stores a subscriber's preference and marks it active.
func (s *SQLite) UpsertPreference(ctx context.Context, pref model.Preference) error {
	var keywords *string
	if pref.Keywords != nil {
		b, err := json.Marshal(pref.Keywords)
		if err != nil {
			return fmt.Errorf("encode keywords: %w", err)
		}
		v := string(b)
		keywords = &v
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO preferences (subscriber_id, min_price, max_price, location_keywords, active)
		 VALUES (?, ?, ?, ?, 1)
		 ON CONFLICT(subscriber_id) DO UPDATE SET
		     min_price = CASE WHEN preferences.active = 1
		                      THEN COALESCE(excluded.min_price, preferences.min_price)
		                      ELSE excluded.min_price END,
		     max_price = CASE WHEN preferences.active = 1
		                      THEN COALESCE(excluded.max_price, preferences.max_price)
		                      ELSE excluded.max_price END,
		     location_keywords = CASE WHEN preferences.active = 1
		                      THEN COALESCE(excluded.location_keywords, preferences.location_keywords)
		                      ELSE excluded.location_keywords END,
		     active = 1`,
		pref.SubscriberID, pref.MinPrice, pref.MaxPrice, keywords,
	)
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}

// GetPreference returns the active preference of a subscriber.
func (s *SQLite) GetPreference(ctx context.Context, subscriberID int64) (*model.Preference, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT subscriber_id, min_price, max_price, location_keywords, active
		 FROM preferences WHERE subscriber_id = ? AND active = 1`, subscriberID,
	)
	p, err := scanPreference(row)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListActivePreferences returns every active preference ordered by subscriber.
func (s *SQLite) ListActivePreferences(ctx context.Context) ([]model.Preference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subscriber_id, min_price, max_price, location_keywords, active
		 FROM preferences WHERE active = 1 ORDER BY subscriber_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var prefs []model.Preference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, err
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// ClearPreference deactivates a subscriber's preference, keeping the row.
func (s *SQLite) ClearPreference(ctx context.Context, subscriberID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE preferences SET active = 0 WHERE subscriber_id = ?`, subscriberID,
	)
	if err != nil {
		return fmt.Errorf("clear preference: %w", err)
	}
	return nil
}

// InsertProperties stores the lots of one document in a single
// transaction, skipping identities already present. Either every new lot is
// written or none is. It returns the number of rows written.
func (s *SQLite) InsertProperties(ctx context.Context, props []model.Property) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.timestamp()
	firstSeen, _ := time.Parse(timeLayout, now)
	written := make([]int, 0, len(props))
	for i, p := range props {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO properties
			     (identity_hash, sale_date, sequence_number, raw_text, size_m2,
			      reserve_price, reserve_kind, source_ref, first_seen_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			identity.Property(p), p.SaleDate, p.Number, p.RawText, p.SizeM2,
			p.ReservePrice, string(p.ReserveKind), p.SourceRef, now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert property %d: %w", p.Number, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		if n > 0 {
			written = append(written, i)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit properties: %w", err)
	}
	for _, i := range written {
		props[i].FirstSeenAt = firstSeen
	}
	return len(written), nil
}

// ListPropertiesByDate returns the lots of one sale date ordered by number.
func (s *SQLite) ListPropertiesByDate(ctx context.Context, saleDate string) ([]model.Property, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sale_date, sequence_number, raw_text, size_m2, reserve_price,
		        reserve_kind, source_ref, first_seen_at
		 FROM properties WHERE sale_date = ? ORDER BY sequence_number`, saleDate,
	)
	if err != nil {
		return nil, fmt.Errorf("query properties: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanProperties(rows)
}

// ListUpcomingProperties returns lots on or after today ordered by date and number.
func (s *SQLite) ListUpcomingProperties(ctx context.Context, today string) ([]model.Property, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sale_date, sequence_number, raw_text, size_m2, reserve_price,
		        reserve_kind, source_ref, first_seen_at
		 FROM properties WHERE sale_date >= ? ORDER BY sale_date, sequence_number`, today,
	)
	if err != nil {
		return nil, fmt.Errorf("query upcoming properties: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanProperties(rows)
}

// SaleDatesSince returns the distinct sale dates on or after today.
func (s *SQLite) SaleDatesSince(ctx context.Context, today string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT sale_date FROM properties WHERE sale_date >= ? ORDER BY sale_date`, today,
	)
	if err != nil {
		return nil, fmt.Errorf("query sale dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan sale date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// MarkSeen records that an identity has been routed to a subscriber.
func (s *SQLite) MarkSeen(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen (identity_hash, first_seen_at) VALUES (?, ?)`,
		hash, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// IsSeen checks whether an identity has already been routed.
func (s *SQLite) IsSeen(ctx context.Context, hash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen WHERE identity_hash = ?`, hash,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return count > 0, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanUser(row scannable) (model.User, error) {
	var u model.User
	var created string
	err := row.Scan(&u.ID, &u.ChatID, &u.DisplayName, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	if err != nil {
		return u, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(timeLayout, created)
	return u, nil
}

func scanPreference(row scannable) (model.Preference, error) {
	var p model.Preference
	var minPrice, maxPrice sql.NullFloat64
	var keywords sql.NullString
	var active int
	err := row.Scan(&p.SubscriberID, &minPrice, &maxPrice, &keywords, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, fmt.Errorf("scan preference: %w", err)
	}
	p.MinPrice = nullFloat(minPrice)
	p.MaxPrice = nullFloat(maxPrice)
	p.Active = active == 1
	if keywords.Valid && keywords.String != "" {
		if err := json.Unmarshal([]byte(keywords.String), &p.Keywords); err != nil {
			return p, fmt.Errorf("decode keywords: %w", err)
		}
	}
	return p, nil
}

func scanProperties(rows *sql.Rows) ([]model.Property, error) {
	var props []model.Property
	for rows.Next() {
		var p model.Property
		var size, price sql.NullFloat64
		var kind, firstSeen string
		err := rows.Scan(&p.SaleDate, &p.Number, &p.RawText, &size, &price,
			&kind, &p.SourceRef, &firstSeen)
		if err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		p.SizeM2 = nullFloat(size)
		p.ReservePrice = nullFloat(price)
		p.ReserveKind = model.ReserveKind(kind)
		p.FirstSeenAt, _ = time.Parse(timeLayout, firstSeen)
		props = append(props, p)
	}
	return props, rows.Err()
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
