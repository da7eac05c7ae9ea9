package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"property_agent/internal/identity"
	"property_agent/internal/model"
)

// Memory is an in-process Storage used by tests and the lotctl dry runs.
type Memory struct {
	mu         sync.RWMutex
	users      map[int64]model.User
	prefs      map[int64]model.Preference
	properties map[string]model.Property
	seen       map[string]time.Time
	now        func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:      make(map[int64]model.User),
		prefs:      make(map[int64]model.Preference),
		properties: make(map[string]model.Property),
		seen:       make(map[string]time.Time),
		now:        time.Now,
	}
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func (m *Memory) UpsertUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.users[u.ID]
	if !ok {
		stored = model.User{ID: u.ID, CreatedAt: m.now().UTC().Truncate(time.Second)}
	}
	stored.ChatID = u.ChatID
	stored.DisplayName = u.DisplayName
	m.users[u.ID] = stored
	return nil
}

func (m *Memory) GetUser(_ context.Context, id int64) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var users []model.User
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *Memory) UpsertPreference(_ context.Context, pref model.Preference) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := model.Preference{
		SubscriberID: pref.SubscriberID,
		MinPrice:     pref.MinPrice,
		MaxPrice:     pref.MaxPrice,
		Keywords:     append([]string(nil), pref.Keywords...),
		Active:       true,
	}
	if cur, ok := m.prefs[pref.SubscriberID]; ok && cur.Active {
		if next.MinPrice == nil {
			next.MinPrice = cur.MinPrice
		}
		if next.MaxPrice == nil {
			next.MaxPrice = cur.MaxPrice
		}
		if pref.Keywords == nil {
			next.Keywords = cur.Keywords
		}
	}
	m.prefs[pref.SubscriberID] = next
	return nil
}

func (m *Memory) GetPreference(_ context.Context, subscriberID int64) (*model.Preference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.prefs[subscriberID]
	if !ok || !p.Active {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) ListActivePreferences(_ context.Context) ([]model.Preference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var prefs []model.Preference
	for _, p := range m.prefs {
		if p.Active {
			prefs = append(prefs, p)
		}
	}
	sort.Slice(prefs, func(i, j int) bool { return prefs[i].SubscriberID < prefs[j].SubscriberID })
	return prefs, nil
}

func (m *Memory) ClearPreference(_ context.Context, subscriberID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.prefs[subscriberID]; ok {
		p.Active = false
		m.prefs[subscriberID] = p
	}
	return nil
}

func (m *Memory) InsertProperties(ctx context.Context, props []model.Property) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC().Truncate(time.Second)
	written := 0
	for i := range props {
		hash := identity.Property(props[i])
		if _, ok := m.properties[hash]; ok {
			continue
		}
		props[i].FirstSeenAt = now
		m.properties[hash] = props[i]
		written++
	}
	return written, nil
}

func (m *Memory) ListPropertiesByDate(_ context.Context, saleDate string) ([]model.Property, error) {
	return m.selectProperties(func(p model.Property) bool { return p.SaleDate == saleDate }), nil
}

func (m *Memory) ListUpcomingProperties(_ context.Context, today string) ([]model.Property, error) {
	return m.selectProperties(func(p model.Property) bool { return p.SaleDate >= today }), nil
}

func (m *Memory) SaleDatesSince(_ context.Context, today string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := make(map[string]struct{})
	for _, p := range m.properties {
		if p.SaleDate >= today {
			set[p.SaleDate] = struct{}{}
		}
	}
	var dates []string
	for d := range set {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates, nil
}

func (m *Memory) MarkSeen(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[hash]; !ok {
		m.seen[hash] = m.now().UTC()
	}
	return nil
}

func (m *Memory) IsSeen(_ context.Context, hash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.seen[hash]
	return ok, nil
}

func (m *Memory) selectProperties(keep func(model.Property) bool) []model.Property {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Property
	for _, p := range m.properties {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SaleDate != out[j].SaleDate {
			return out[i].SaleDate < out[j].SaleDate
		}
		return out[i].Number < out[j].Number
	})
	return out
}
