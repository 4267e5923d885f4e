// Package memory is an in-process ports.Store used for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"expensa/internal/core"
	"expensa/internal/ports"
)

type expenseRow struct {
	seq int64
	e   core.Expense
}

type Store struct {
	mu         sync.RWMutex
	seq        int64
	users      map[string]ports.User // by email
	sessions   map[string]ports.Session
	categories map[string]core.Category
	expenses   map[string]expenseRow
	now        func() time.Time
}

var _ ports.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:      make(map[string]ports.User),
		sessions:   make(map[string]ports.Session),
		categories: make(map[string]core.Category),
		expenses:   make(map[string]expenseRow),
		now:        time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

// stamp truncates to milliseconds so timestamps match the SQLite store.
func (s *Store) stamp(t time.Time) time.Time {
	if t.IsZero() {
		t = s.now()
	}
	return time.UnixMilli(t.UnixMilli()).UTC()
}

// join attaches the current category snapshot. Callers hold the lock.
func (s *Store) join(e core.Expense) core.Expense {
	e.Category = nil
	if e.CategoryID != nil {
		if c, ok := s.categories[*e.CategoryID]; ok && c.OwnerID == e.OwnerID {
			snap := c.Snapshot()
			e.Category = &snap
		}
	}
	meta := make(map[string]any, len(e.Metadata))
	for k, v := range e.Metadata {
		meta[k] = v
	}
	e.Metadata = meta
	return e
}

func (s *Store) ListExpenses(_ context.Context, ownerID string, r *core.TimeRange) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]expenseRow, 0)
	for _, row := range s.expenses {
		if row.e.OwnerID != ownerID {
			continue
		}
		if r != nil && !r.Contains(row.e.CreatedAt) {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].e.CreatedAt.Equal(rows[j].e.CreatedAt) {
			return rows[i].e.CreatedAt.After(rows[j].e.CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})

	out := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		out = append(out, s.join(row.e))
	}
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, ownerID, id string) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.expenses[id]
	if !ok || row.e.OwnerID != ownerID {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	return s.join(row.e), nil
}

func (s *Store) CreateExpense(_ context.Context, ne core.NewExpense) (core.Expense, error) {
	ne = ne.Normalize()
	if err := ne.Validate(); err != nil {
		return core.Expense{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ne.CategoryID != nil {
		if c, ok := s.categories[*ne.CategoryID]; !ok || c.OwnerID != ne.OwnerID {
			return core.Expense{}, fmt.Errorf("category %s: %w", *ne.CategoryID, core.ErrNotFound)
		}
	}

	s.seq++
	e := core.Expense{
		ID:          uuid.NewString(),
		OwnerID:     ne.OwnerID,
		Amount:      ne.Amount,
		Description: ne.Description,
		CategoryID:  ne.CategoryID,
		CreatedAt:   s.stamp(ne.CreatedAt),
		Metadata:    ne.Metadata,
	}
	s.expenses[e.ID] = expenseRow{seq: s.seq, e: e}
	return s.join(e), nil
}

func (s *Store) DeleteExpense(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.expenses[id]; ok && row.e.OwnerID == ownerID {
		delete(s.expenses, id)
	}
	return nil
}

func (s *Store) ListCategories(_ context.Context, ownerID string) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []core.Category{}
	for _, c := range s.categories {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, ownerID, id string) (core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok || c.OwnerID != ownerID {
		return core.Category{}, fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	return c, nil
}

func (s *Store) CreateCategory(_ context.Context, nc core.NewCategory) (core.Category, error) {
	nc = nc.Normalize()
	if err := nc.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertCategory(nc), nil
}

// insertCategory stores a validated category. Callers hold the write lock.
func (s *Store) insertCategory(nc core.NewCategory) core.Category {
	now := s.stamp(time.Time{})
	c := core.Category{
		ID:        uuid.NewString(),
		OwnerID:   nc.OwnerID,
		Name:      nc.Name,
		Icon:      nc.Icon,
		Color:     nc.Color,
		IsDefault: nc.IsDefault,
		Limit:     copyMoney(nc.Limit),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.categories[c.ID] = c
	return c
}

func (s *Store) UpdateCategoryLimit(_ context.Context, ownerID, id string, limit *core.Money) (core.Category, error) {
	if err := core.ValidateLimit(limit); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok || c.OwnerID != ownerID {
		return core.Category{}, fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	c.Limit = copyMoney(limit)
	c.UpdatedAt = s.stamp(time.Time{})
	s.categories[id] = c
	return c, nil
}

func (s *Store) DeleteCategory(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok || c.OwnerID != ownerID {
		return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	for eid, row := range s.expenses {
		if row.e.OwnerID == ownerID && row.e.CategoryID != nil && *row.e.CategoryID == id {
			row.e.CategoryID = nil
			s.expenses[eid] = row
		}
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) CreateUser(_ context.Context, email, passwordHash string, seed []core.NewCategory) (ports.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[email]; ok {
		return ports.User{}, ports.ErrEmailTaken
	}
	u := ports.User{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash, CreatedAt: s.stamp(time.Time{})}

	prepared := make([]core.NewCategory, 0, len(seed))
	for _, nc := range seed {
		nc.OwnerID = u.ID
		nc = nc.Normalize()
		if err := nc.Validate(); err != nil {
			return ports.User{}, fmt.Errorf("seed category %q: %w", nc.Name, err)
		}
		prepared = append(prepared, nc)
	}
	for _, nc := range prepared {
		s.insertCategory(nc)
	}
	s.users[email] = u
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (ports.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[email]
	if !ok {
		return ports.User{}, fmt.Errorf("user: %w", core.ErrNotFound)
	}
	return u, nil
}

func (s *Store) CreateSession(_ context.Context, sess ports.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.CreatedAt = s.stamp(sess.CreatedAt)
	sess.ExpiresAt = s.stamp(sess.ExpiresAt)
	s.sessions[sess.Token] = sess
	return nil
}

func (s *Store) GetSession(_ context.Context, token string) (ports.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	if !ok {
		return ports.Session{}, ports.ErrSessionNotFound
	}
	for _, u := range s.users {
		if u.ID == sess.UserID {
			sess.Email = u.Email
			return sess, nil
		}
	}
	return ports.Session{}, ports.ErrSessionNotFound
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for token, sess := range s.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}

func copyMoney(m *core.Money) *core.Money {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}
