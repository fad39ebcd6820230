package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"neovest/internal/core"
	"neovest/internal/records"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "neovest.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sample(desc string, day int) core.NewExpense {
	return core.NewExpense{
		Amount:        decimal.RequireFromString("1234.50"),
		Category:      "Travel",
		Description:   desc,
		Date:          time.Date(2025, 4, day, 0, 0, 0, 0, time.FixedZone("IST", 19800)),
		PaymentMethod: core.BankTransfer,
		Tags:          []string{"trip", "goa"},
	}
}

func TestMigrationsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	if err := RunMigrations(path); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// second run is a no-op
	if err := RunMigrations(path); err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	v, dirty, err := MigrationVersion(path)
	if err != nil || dirty || v != 3 {
		t.Fatalf("unexpected version: v=%d dirty=%v err=%v", v, dirty, err)
	}
}

func TestAddAndQueryRecords(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for _, d := range []int{2, 9, 5} {
		if _, err := repo.AddRecord(ctx, "u1", sample("day", d)); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if _, err := repo.AddRecord(ctx, "u2", sample("other user", 30)); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := repo.QueryRecords(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Date.Before(got[i].Date) {
			t.Fatalf("records not newest first: %v before %v", got[i-1].Date, got[i].Date)
		}
	}
	e := got[0]
	if !e.Amount.Equal(decimal.RequireFromString("1234.5")) {
		t.Fatalf("amount round trip: %s", e.Amount)
	}
	if e.PaymentMethod != core.BankTransfer || len(e.Tags) != 2 || e.Tags[1] != "goa" {
		t.Fatalf("unexpected fields: %+v", e)
	}
	if !e.Date.Equal(time.Date(2025, 4, 9, 0, 0, 0, 0, time.FixedZone("IST", 19800))) {
		t.Fatalf("date round trip: %v", e.Date)
	}

	limited, _ := repo.QueryRecords(ctx, "u1", 1)
	if len(limited) != 1 || limited[0].ID != e.ID {
		t.Fatalf("limit not applied: %+v", limited)
	}
}

func TestAddRecordRejectsInvalid(t *testing.T) {
	repo := newTestRepo(t)
	bad := sample("x", 1)
	bad.Amount = decimal.NewFromInt(-5)
	if _, err := repo.AddRecord(context.Background(), "u1", bad); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestSyncState(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	a, _ := repo.AddRecord(ctx, "u1", sample("a", 1))
	b, _ := repo.AddRecord(ctx, "u1", sample("b", 2))

	pending, err := repo.PendingSync(ctx, 10, 0)
	if err != nil || len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d (%v)", len(pending), err)
	}

	if err := repo.MarkSynced(ctx, a); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	if err := repo.MarkSyncError(ctx, b, errors.New("quota")); err != nil {
		t.Fatalf("mark error: %v", err)
	}

	pending, _ = repo.PendingSync(ctx, 10, 0)
	if len(pending) != 1 || pending[0].ID != b {
		t.Fatalf("expected only %s pending, got %+v", b, pending)
	}

	if synced, err := repo.IsSynced(ctx, a); err != nil || !synced {
		t.Fatalf("expected %s synced, got %v (%v)", a, synced, err)
	}
	if synced, err := repo.IsSynced(ctx, b); err != nil || synced {
		t.Fatalf("expected %s unsynced, got %v (%v)", b, synced, err)
	}
	if _, err := repo.IsSynced(ctx, "missing"); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := repo.GetExpense(ctx, "missing"); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPendingSyncSkipsRowsPastMaxAttempts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	first, _ := repo.AddRecord(ctx, "u1", sample("first", 1))
	second, _ := repo.AddRecord(ctx, "u1", sample("second", 2))
	fresh, _ := repo.AddRecord(ctx, "u1", sample("fresh", 3))

	for i := 0; i < 50; i++ {
		for _, id := range []string{first, second} {
			if err := repo.MarkSyncError(ctx, id, errors.New("rejected")); err != nil {
				t.Fatalf("mark error: %v", err)
			}
		}
	}

	pending, err := repo.PendingSync(ctx, 2, 3)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != fresh {
		t.Fatalf("expected only %s pending, got %+v", fresh, pending)
	}

	// Without a cap the failing rows are still listed, after the fresh one.
	all, _ := repo.PendingSync(ctx, 2, 0)
	if len(all) != 2 || all[0].ID != fresh || all[1].ID != first {
		t.Fatalf("expected fresh then first, got %+v", all)
	}
}

func TestUsersAndRevocation(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	now := time.Now().UTC().Truncate(time.Second)

	u := core.User{ID: "u1", Email: "ravi@example.com", PasswordHash: "h", CreatedAt: now, UpdatedAt: now}
	if err := repo.CreateUser(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	u.ID = "u2"
	u.Email = "RAVI@example.com"
	if err := repo.CreateUser(ctx, u); !errors.Is(err, records.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	got, err := repo.UserByEmail(ctx, "Ravi@Example.com")
	if err != nil || got.ID != "u1" || !got.CreatedAt.Equal(now) {
		t.Fatalf("lookup: %+v %v", got, err)
	}
	if _, err := repo.UserByID(ctx, "nobody"); !errors.Is(err, records.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if err := repo.Revoke(ctx, "live", now.Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := repo.Revoke(ctx, "stale", now.Add(-time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, _ := repo.IsRevoked(ctx, "live"); !ok {
		t.Fatalf("expected live token revoked")
	}
	if ok, _ := repo.IsRevoked(ctx, "stale"); ok {
		t.Fatalf("expired revocation should not count")
	}
	if n, err := repo.PurgeRevoked(ctx); err != nil || n != 1 {
		t.Fatalf("purge: n=%d err=%v", n, err)
	}
}
