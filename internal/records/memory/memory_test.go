package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"neovest/internal/core"
	"neovest/internal/records"
)

func newExpense(desc string, day int) core.NewExpense {
	return core.NewExpense{
		Amount:        decimal.NewFromInt(int64(day * 10)),
		Category:      "Food & Dining",
		Description:   desc,
		Date:          time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
		PaymentMethod: core.Cash,
		Tags:          []string{"t"},
	}
}

func TestAddAndQueryNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, d := range []int{3, 10, 1, 7} {
		if _, err := s.AddRecord(ctx, "u1", newExpense("e", d)); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if _, err := s.AddRecord(ctx, "u2", newExpense("other", 20)); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := s.QueryRecords(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 records for u1, got %d", len(got))
	}
	wantDays := []int{10, 7, 3, 1}
	for i, e := range got {
		if e.Date.Day() != wantDays[i] {
			t.Fatalf("position %d: expected day %d, got %d", i, wantDays[i], e.Date.Day())
		}
		if e.UserID != "u1" || e.ID == "" || e.CreatedAt.IsZero() {
			t.Fatalf("store must assign identity: %+v", e)
		}
	}

	limited, _ := s.QueryRecords(ctx, "u1", 2)
	if len(limited) != 2 || limited[0].Date.Day() != 10 {
		t.Fatalf("unexpected limited result: %+v", limited)
	}
}

func TestSameDateOrderedByCreation(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New().WithClock(func() time.Time { clock = clock.Add(time.Second); return clock })

	first, _ := s.AddRecord(ctx, "u1", newExpense("first", 5))
	second, _ := s.AddRecord(ctx, "u1", newExpense("second", 5))

	got, _ := s.QueryRecords(ctx, "u1", 10)
	if got[0].ID != second || got[1].ID != first {
		t.Fatalf("expected later creation first, got %s then %s", got[0].ID, got[1].ID)
	}
}

func TestAddRecordValidates(t *testing.T) {
	s := New()
	bad := newExpense("", 1)
	if _, err := s.AddRecord(context.Background(), "u1", bad); !errors.Is(err, core.ErrEmptyDescription) {
		t.Fatalf("expected ErrEmptyDescription, got %v", err)
	}
	if _, err := s.AddRecord(context.Background(), "", newExpense("x", 1)); !errors.Is(err, core.ErrMissingUser) {
		t.Fatalf("expected ErrMissingUser, got %v", err)
	}
}

func TestQueryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.AddRecord(ctx, "u1", newExpense("e", 1))

	got, _ := s.QueryRecords(ctx, "u1", 1)
	got[0].Description = "changed"
	got[0].Tags[0] = "changed"

	again, _ := s.QueryRecords(ctx, "u1", 1)
	if again[0].Description != "e" || again[0].Tags[0] != "t" {
		t.Fatalf("store leaked internal state: %+v", again[0])
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := core.User{ID: "u1", Email: "Asha@Example.com"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateUser(ctx, core.User{ID: "u2", Email: "asha@example.com"}); !errors.Is(err, records.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	got, err := s.UserByEmail(ctx, " asha@EXAMPLE.com")
	if err != nil || got.ID != "u1" {
		t.Fatalf("lookup by email: %+v %v", got, err)
	}
	if _, err := s.UserByID(ctx, "nope"); !errors.Is(err, records.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRevocationExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New().WithClock(func() time.Time { return now })

	_ = s.Revoke(ctx, "jti", now.Add(time.Hour))
	if ok, _ := s.IsRevoked(ctx, "jti"); !ok {
		t.Fatalf("expected revoked")
	}
	now = now.Add(2 * time.Hour)
	if ok, _ := s.IsRevoked(ctx, "jti"); ok {
		t.Fatalf("expected revocation to lapse after expiry")
	}
}
