// Package memory is an in-process implementation of ports.Store. It backs the
// "memory" data backend and the service and handler tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"omnifin/internal/core"
	"omnifin/internal/ports"
)

var _ ports.Store = (*Store)(nil)

type Store struct {
	mu           sync.RWMutex
	now          func() time.Time
	companies    []core.Company
	entities     []core.Entity
	transactions map[uuid.UUID]core.Transaction
	order        []uuid.UUID // transaction insertion order
	snapshots    []core.MetricsSnapshot
}

func New() *Store {
	return &Store{
		now:          time.Now,
		transactions: make(map[uuid.UUID]core.Transaction),
	}
}

// WithClock replaces the timestamp source, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) CreateCompany(_ context.Context, c core.Company) (core.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := s.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	s.companies = append(s.companies, c)
	return c, nil
}

func (s *Store) GetCompany(_ context.Context, id uuid.UUID) (core.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.companies {
		if c.ID == id {
			return c, nil
		}
	}
	return core.Company{}, fmt.Errorf("company %s: %w", id, core.ErrNotFound)
}

func (s *Store) FirstCompany(_ context.Context) (core.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.companies) == 0 {
		return core.Company{}, fmt.Errorf("first company: %w", core.ErrNotFound)
	}
	return s.companies[0], nil
}

func (s *Store) ListCompanies(_ context.Context) ([]core.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Company(nil), s.companies...), nil
}

func (s *Store) CreateEntity(_ context.Context, e core.Entity) (core.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasCompany(e.CompanyID) {
		return core.Entity{}, fmt.Errorf("company %s: %w", e.CompanyID, core.ErrNotFound)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := s.now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	s.entities = append(s.entities, e)
	return e, nil
}

func (s *Store) ListEntities(_ context.Context, companyID uuid.UUID) ([]core.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Entity, 0)
	for _, e := range s.entities {
		if e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasCompany(t.CompanyID) {
		return core.Transaction{}, fmt.Errorf("company %s: %w", t.CompanyID, core.ErrNotFound)
	}
	if t.EntityID != nil && !s.hasEntity(*t.EntityID) {
		return core.Transaction{}, fmt.Errorf("entity %s: %w", *t.EntityID, core.ErrNotFound)
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := s.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	s.transactions[t.ID] = t
	s.order = append(s.order, t.ID)
	return t, nil
}

func (s *Store) GetTransaction(_ context.Context, id uuid.UUID) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return t, nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.transactions[t.ID]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	t.CompanyID = cur.CompanyID
	t.EntityID = cur.EntityID
	t.CreatedAt = cur.CreatedAt
	t.UpdatedAt = s.now().UTC()
	s.transactions[t.ID] = t
	return t, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[id]; !ok {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	delete(s.transactions, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) ListTransactions(_ context.Context, companyID uuid.UUID, limit int) ([]core.Transaction, error) {
	s.mu.RLock()
	out := make([]core.Transaction, 0)
	// newest inserted first so that equal dates list the latest entry first
	for i := len(s.order) - 1; i >= 0; i-- {
		t := s.transactions[s.order[i]]
		if t.CompanyID == companyID {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date.Time)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SaveSnapshot(_ context.Context, snap core.MetricsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func (s *Store) ListSnapshots(_ context.Context, companyID uuid.UUID, limit int) ([]core.MetricsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.MetricsSnapshot, 0)
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		if s.snapshots[i].CompanyID != companyID {
			continue
		}
		out = append(out, s.snapshots[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) hasCompany(id uuid.UUID) bool {
	for _, c := range s.companies {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) hasEntity(id uuid.UUID) bool {
	for _, e := range s.entities {
		if e.ID == id {
			return true
		}
	}
	return false
}
