package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"neovest/internal/auth"
	"neovest/internal/core"
	"neovest/internal/records/memory"
)

var ist = time.FixedZone("IST", 19800)

func fixedNow() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, ist) }

func add(t *testing.T, s *memory.Store, user, cat, amount string, date time.Time) {
	t.Helper()
	_, err := s.AddRecord(context.Background(), user, core.NewExpense{
		Amount:        decimal.RequireFromString(amount),
		Category:      cat,
		Description:   cat + " " + amount,
		Date:          date,
		PaymentMethod: core.UPI,
	})
	require.NoError(t, err)
}

func TestRefreshComputesSnapshot(t *testing.T) {
	store := memory.New()
	add(t, store, "u1", "Food", "100", time.Date(2025, 3, 10, 0, 0, 0, 0, ist))
	add(t, store, "u1", "Food", "50", time.Date(2025, 2, 20, 0, 0, 0, 0, ist))
	add(t, store, "u1", "Travel", "25", time.Date(2025, 3, 1, 0, 0, 0, 0, ist))
	add(t, store, "u2", "Food", "999", time.Date(2025, 3, 1, 0, 0, 0, 0, ist))

	svc := NewService(store, Config{Location: ist, Now: fixedNow})
	snap, err := svc.Refresh(context.Background(), "u1")
	require.NoError(t, err)

	assert.True(t, snap.Stats.TotalExpenses.Equal(decimal.NewFromInt(175)))
	assert.True(t, snap.Stats.MonthlyExpenses.Equal(decimal.NewFromInt(125)))
	assert.Equal(t, 3, snap.Stats.ExpenseCount)
	require.Len(t, snap.Ranked, 2)
	assert.Equal(t, "Food", snap.Ranked[0].Category)
	require.Len(t, snap.Recent, 3)
	assert.Equal(t, 10, snap.Recent[0].Date.Day(), "recent keeps store order, newest first")

	vis, ok := svc.Visible("u1")
	require.True(t, ok)
	assert.Equal(t, snap.Token, vis.Token)
	_, ok = svc.Visible("u2")
	assert.False(t, ok)
}

func TestRecentLimit(t *testing.T) {
	store := memory.New()
	for i := 1; i <= 8; i++ {
		add(t, store, "u1", "Food", "1", time.Date(2025, 3, i, 0, 0, 0, 0, ist))
	}
	svc := NewService(store, Config{Location: ist, Now: fixedNow})
	snap, err := svc.Refresh(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, snap.Recent, DefaultRecentLimit)
}

func TestEmptySnapshot(t *testing.T) {
	svc := NewService(memory.New(), Config{Location: ist, Now: fixedNow})
	snap, err := svc.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Stats.ExpenseCount)
	assert.Empty(t, snap.Recent)
	assert.Empty(t, snap.Ranked)
	assert.True(t, snap.Stats.AveragePerTransaction().IsZero())
}

// gatedQuerier blocks each query until released, returning the records
// configured for that call number.
type gatedQuerier struct {
	mu      sync.Mutex
	calls   int
	gates   []chan struct{}
	results [][]core.Expense
	started chan int
}

func newGated(results ...[]core.Expense) *gatedQuerier {
	g := &gatedQuerier{results: results, started: make(chan int, len(results))}
	for range results {
		g.gates = append(g.gates, make(chan struct{}))
	}
	return g
}

func (g *gatedQuerier) QueryRecords(ctx context.Context, _ string, _ int) ([]core.Expense, error) {
	g.mu.Lock()
	n := g.calls
	g.calls++
	g.mu.Unlock()
	g.started <- n
	select {
	case <-g.gates[n]:
		return g.results[n], nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func expenses(n int) []core.Expense {
	out := make([]core.Expense, n)
	for i := range out {
		out[i] = core.Expense{ID: string(rune('a' + i)), Amount: decimal.NewFromInt(10), Category: "Food", Date: fixedNow()}
	}
	return out
}

func TestOlderRefreshCompletingLastIsDiscarded(t *testing.T) {
	q := newGated(expenses(1), expenses(2))
	svc := NewService(q, Config{Location: ist, Now: fixedNow})
	ctx := context.Background()

	type result struct {
		snap Snapshot
		err  error
	}
	first := make(chan result, 1)
	second := make(chan result, 1)

	go func() { s, err := svc.Refresh(ctx, "u1"); first <- result{s, err} }()
	<-q.started
	go func() { s, err := svc.Refresh(ctx, "u1"); second <- result{s, err} }()
	<-q.started

	// newer refresh finishes first
	close(q.gates[1])
	r2 := <-second
	require.NoError(t, r2.err)
	assert.Equal(t, 2, r2.snap.Stats.ExpenseCount)

	// older one lands afterwards and must not overwrite
	close(q.gates[0])
	r1 := <-first
	assert.ErrorIs(t, r1.err, ErrStale)

	vis, ok := svc.Visible("u1")
	require.True(t, ok)
	assert.Equal(t, 2, vis.Stats.ExpenseCount)
	assert.Equal(t, r2.snap.Token, vis.Token)
	assert.Greater(t, r2.snap.Token, r1.snap.Token)
}

func TestOlderRefreshCompletingFirstIsReplaced(t *testing.T) {
	q := newGated(expenses(1), expenses(3))
	svc := NewService(q, Config{Location: ist, Now: fixedNow})
	ctx := context.Background()

	errs := make(chan error, 2)
	go func() { _, err := svc.Refresh(ctx, "u1"); errs <- err }()
	<-q.started
	go func() { _, err := svc.Refresh(ctx, "u1"); errs <- err }()
	<-q.started

	close(q.gates[0])
	assert.ErrorIs(t, <-errs, ErrStale, "a newer refresh was already issued")
	close(q.gates[1])
	assert.NoError(t, <-errs)

	vis, _ := svc.Visible("u1")
	assert.Equal(t, 3, vis.Stats.ExpenseCount)
}

type failingQuerier struct{ err error }

func (f failingQuerier) QueryRecords(context.Context, string, int) ([]core.Expense, error) {
	return nil, f.err
}

type switchQuerier struct {
	mu   sync.Mutex
	next interface {
		QueryRecords(context.Context, string, int) ([]core.Expense, error)
	}
}

func (s *switchQuerier) QueryRecords(ctx context.Context, u string, l int) ([]core.Expense, error) {
	s.mu.Lock()
	q := s.next
	s.mu.Unlock()
	return q.QueryRecords(ctx, u, l)
}

func TestFetchFailureKeepsPreviousSnapshot(t *testing.T) {
	store := memory.New()
	add(t, store, "u1", "Food", "40", fixedNow())
	sq := &switchQuerier{next: store}
	svc := NewService(sq, Config{Location: ist, Now: fixedNow})

	good, err := svc.Refresh(context.Background(), "u1")
	require.NoError(t, err)

	boom := errors.New("store unavailable")
	sq.mu.Lock()
	sq.next = failingQuerier{err: boom}
	sq.mu.Unlock()

	_, err = svc.Refresh(context.Background(), "u1")
	assert.ErrorIs(t, err, boom)

	vis, ok := svc.Visible("u1")
	require.True(t, ok)
	assert.Equal(t, good.Token, vis.Token)
}

func TestRefreshTimesOut(t *testing.T) {
	q := newGated(expenses(1))
	svc := NewService(q, Config{Location: ist, Now: fixedNow, Timeout: 20 * time.Millisecond})

	_, err := svc.Refresh(context.Background(), "u1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, ok := svc.Visible("u1")
	assert.False(t, ok)
}

func TestLoadUsesVisibleSnapshot(t *testing.T) {
	store := memory.New()
	add(t, store, "u1", "Food", "40", fixedNow())
	svc := NewService(store, Config{Location: ist, Now: fixedNow})

	first, err := svc.Load(context.Background(), "u1")
	require.NoError(t, err)
	add(t, store, "u1", "Food", "60", fixedNow())

	again, err := svc.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, first.Token, again.Token, "Load must not refetch while a snapshot is visible")

	fresh, err := svc.Refresh(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Stats.ExpenseCount)
}

func TestSignOutDropsSnapshot(t *testing.T) {
	store := memory.New()
	authSvc, err := auth.NewService(store, store, auth.Options{Secret: []byte("s"), Cost: bcrypt.MinCost})
	require.NoError(t, err)
	ctx := context.Background()
	u, err := authSvc.SignUp(ctx, "a@b.in", "password1", "")
	require.NoError(t, err)
	add(t, store, u.ID, "Food", "10", fixedNow())

	svc := NewService(store, Config{Location: ist, Now: fixedNow})
	defer svc.FollowAuth(authSvc)()

	sess, err := authSvc.SignIn(ctx, "a@b.in", "password1")
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, u.ID)
	require.NoError(t, err)
	_, ok := svc.Visible(u.ID)
	require.True(t, ok)

	require.NoError(t, authSvc.SignOut(ctx, sess.Token))
	_, ok = svc.Visible(u.ID)
	assert.False(t, ok)
}

func trackedTokens(s *Service) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func TestTokensReleasedWithUserState(t *testing.T) {
	store := memory.New()
	add(t, store, "u1", "Food", "40", fixedNow())
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	svc := NewService(store, Config{Location: ist, Now: fixedNow, CacheTTL: time.Minute})
	svc.Cache().WithClock(func() time.Time { return now })
	ctx := context.Background()

	first, err := svc.Refresh(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, trackedTokens(svc))

	svc.Forget("u1")
	assert.Equal(t, 0, trackedTokens(svc), "Forget should drop the token")

	again, err := svc.Refresh(ctx, "u1")
	require.NoError(t, err)
	assert.Greater(t, again.Token, first.Token, "tokens keep increasing after a drop")

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, svc.CleanExpired())
	assert.Equal(t, 0, trackedTokens(svc), "expired snapshot should release its token")

	failing := NewService(failingQuerier{err: errors.New("down")}, Config{Location: ist, Now: fixedNow})
	_, err = failing.Refresh(ctx, "u2")
	require.Error(t, err)
	assert.Equal(t, 0, trackedTokens(failing), "failed refresh with nothing visible keeps no token")
}

func TestForgetDuringRefreshMakesItStale(t *testing.T) {
	q := newGated(expenses(2))
	svc := NewService(q, Config{Location: ist, Now: fixedNow})

	done := make(chan error, 1)
	go func() { _, err := svc.Refresh(context.Background(), "u1"); done <- err }()
	<-q.started

	svc.Forget("u1")
	close(q.gates[0])

	assert.ErrorIs(t, <-done, ErrStale)
	_, ok := svc.Visible("u1")
	assert.False(t, ok)
	assert.Equal(t, 0, trackedTokens(svc))
}
