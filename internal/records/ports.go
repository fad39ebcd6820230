// Package records defines the record store capability the dashboard and forms
// depend on. Every call names its user explicitly.
package records

import (
	"context"
	"errors"
	"sort"

	"neovest/internal/core"
)

// DefaultLimit is applied when QueryRecords is called with limit <= 0.
const DefaultLimit = 1000

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrNotFound     = errors.New("expense not found")
)

// Ports for outbound adapters.
type (
	Writer interface {
		// AddRecord validates and stores a new expense for userID, returning its id.
		AddRecord(ctx context.Context, userID string, e core.NewExpense) (id string, err error)
	}

	Querier interface {
		// QueryRecords returns up to limit expenses, newest first by occurrence date
		// and then by creation time.
		QueryRecords(ctx context.Context, userID string, limit int) ([]core.Expense, error)
	}

	Store interface {
		Writer
		Querier
	}

	UserStore interface {
		CreateUser(ctx context.Context, u core.User) error
		UserByEmail(ctx context.Context, email string) (core.User, error)
		UserByID(ctx context.Context, id string) (core.User, error)
	}
)

// EffectiveLimit maps non-positive limits to DefaultLimit.
func EffectiveLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// SortNewestFirst orders expenses the way QueryRecords returns them.
func SortNewestFirst(es []core.Expense) {
	sort.SliceStable(es, func(i, j int) bool {
		if !es[i].Date.Equal(es[j].Date) {
			return es[i].Date.After(es[j].Date)
		}
		return es[i].CreatedAt.After(es[j].CreatedAt)
	})
}
