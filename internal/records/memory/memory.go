// Package memory is an in-process implementation of the record, user and
// session revocation stores, used by default in development and in tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"neovest/internal/core"
	"neovest/internal/records"
)

type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	expenses map[string][]core.Expense // by user, newest first
	users    map[string]core.User      // by id
	emails   map[string]string         // lower-cased email -> user id
	revoked  map[string]time.Time      // token id -> expiry
}

func New() *Store {
	return &Store{
		now:      time.Now,
		expenses: map[string][]core.Expense{},
		users:    map[string]core.User{},
		emails:   map[string]string{},
		revoked:  map[string]time.Time{},
	}
}

// WithClock replaces the clock used for CreatedAt/UpdatedAt and revocation expiry.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *Store) AddRecord(_ context.Context, userID string, n core.NewExpense) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now()
	e := core.Expense{
		ID:            id.String(),
		UserID:        userID,
		Amount:        n.Amount,
		Category:      n.Category,
		Description:   n.Description,
		Date:          n.Date,
		PaymentMethod: n.PaymentMethod,
		Tags:          append([]string(nil), n.Tags...),
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	if err := e.Validate(); err != nil {
		return "", err
	}
	list := append(s.expenses[userID], e)
	records.SortNewestFirst(list)
	s.expenses[userID] = list
	return e.ID, nil
}

func (s *Store) QueryRecords(_ context.Context, userID string, limit int) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.expenses[userID]
	n := min(records.EffectiveLimit(limit), len(list))
	out := make([]core.Expense, n)
	for i := range out {
		out[i] = list[i]
		out[i].Tags = append([]string(nil), list[i].Tags...)
	}
	return out, nil
}

// GetExpense looks up a single expense by id across users.
func (s *Store) GetExpense(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.expenses {
		for _, e := range list {
			if e.ID == id {
				e.Tags = append([]string(nil), e.Tags...)
				return e, nil
			}
		}
	}
	return core.Expense{}, fmt.Errorf("expense %s: %w", id, records.ErrNotFound)
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	key := strings.ToLower(strings.TrimSpace(u.Email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emails[key]; ok {
		return records.ErrEmailTaken
	}
	s.users[u.ID] = u
	s.emails[key] = u.ID
	return nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return core.User{}, records.ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *Store) UserByID(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, records.ErrUserNotFound
	}
	return u, nil
}

// Revoke marks a session token id as signed out until expiresAt.
func (s *Store) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenID] = expiresAt
	return nil
}

func (s *Store) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !s.now().Before(exp) {
		delete(s.revoked, tokenID)
		return false, nil
	}
	return true, nil
}
