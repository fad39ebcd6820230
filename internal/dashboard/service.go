// Package dashboard fetches a user's records and turns them into the snapshot
// the overview tab renders.
//
// Every Refresh takes a per-user token from a monotonically increasing
// counter. A result is applied only if no later refresh for the same user has
// been issued in the meantime; otherwise it is discarded with ErrStale. Two
// overlapping refreshes can therefore never leave older data on screen.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"neovest/internal/auth"
	"neovest/internal/cache"
	"neovest/internal/core"
	applog "neovest/internal/log"
	"neovest/internal/records"
	"neovest/internal/stats"
)

const (
	DefaultFetchLimit  = records.DefaultLimit
	DefaultRecentLimit = 5
	DefaultTimeout     = 7 * time.Second
	DefaultCacheSize   = 1024
	DefaultCacheTTL    = 30 * time.Minute
)

// ErrStale reports a refresh whose result was superseded by a newer one.
var ErrStale = errors.New("dashboard refresh superseded by a newer one")

type (
	Snapshot struct {
		Token      uint64                 `json:"token"`
		UserID     string                 `json:"-"`
		Stats      stats.DashboardStats   `json:"stats"`
		Recent     []stats.RecentActivity `json:"recent"`
		Ranked     []stats.CategoryShare  `json:"categories"`
		ComputedAt time.Time              `json:"computed_at"`
	}

	Config struct {
		Location    *time.Location   // month boundaries; time.Local when nil
		Now         func() time.Time // time.Now when nil
		FetchLimit  int
		RecentLimit int
		Timeout     time.Duration
		CacheSize   int
		CacheTTL    time.Duration
		Logger      *applog.Logger
	}

	Service struct {
		querier records.Querier
		loc     *time.Location
		now     func() time.Time
		fetch   int
		recent  int
		timeout time.Duration
		logger  *applog.Logger

		mu       sync.Mutex
		seq      uint64            // last token issued to anyone
		tokens   map[string]uint64 // latest issued per user
		inflight map[string]int    // refreshes running per user
		visible  *cache.LRUCache[Snapshot]
		loads    singleflight.Group
	}
)

func NewService(q records.Querier, cfg Config) *Service {
	s := &Service{
		querier: q,
		loc:     cfg.Location,
		now:     cfg.Now,
		fetch:   cfg.FetchLimit,
		recent:  cfg.RecentLimit,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		tokens:   make(map[string]uint64),
		inflight: make(map[string]int),
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.fetch <= 0 {
		s.fetch = DefaultFetchLimit
	}
	if s.recent <= 0 {
		s.recent = DefaultRecentLimit
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.logger == nil {
		s.logger = applog.New(applog.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(applog.ComponentDashboard)

	size, ttl := cfg.CacheSize, cfg.CacheTTL
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	s.visible = cache.NewLRUCache[Snapshot](size, ttl)
	return s
}

// Cache exposes the visible-state cache.
func (s *Service) Cache() *cache.LRUCache[Snapshot] { return s.visible }

// CleanExpired drops expired snapshots along with the tokens of users that
// have neither a visible snapshot nor a refresh in flight. It implements
// cache.Cleaner.
func (s *Service) CleanExpired() int {
	removed := s.visible.CleanExpired()

	s.mu.Lock()
	defer s.mu.Unlock()
	for userID := range s.tokens {
		if s.inflight[userID] == 0 && !s.visible.Contains(userID) {
			delete(s.tokens, userID)
		}
	}
	return removed
}

// Empty is the snapshot shown before anything has been fetched.
func (s *Service) Empty(userID string) Snapshot {
	return s.compute(userID, 0, nil)
}

// nextToken issues a token above every earlier one, so a user's tokens keep
// increasing even after their entry has been dropped.
func (s *Service) nextToken(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.tokens[userID] = s.seq
	s.inflight[userID]++
	return s.seq
}

// finish ends a refresh, dropping the user's token when nothing depends on it.
func (s *Service) finish(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[userID]--; s.inflight[userID] > 0 {
		return
	}
	delete(s.inflight, userID)
	if !s.visible.Contains(userID) {
		delete(s.tokens, userID)
	}
}

// Refresh fetches the user's records and recomputes the dashboard. On fetch
// failure the visible snapshot is left as it was and the error is returned.
func (s *Service) Refresh(ctx context.Context, userID string) (Snapshot, error) {
	token := s.nextToken(userID)
	defer s.finish(userID)
	log := s.logger.With(applog.FieldUserID, userID, applog.FieldRefreshToken, token)

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	recs, err := s.querier.QueryRecords(fetchCtx, userID, s.fetch)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.WarnContext(ctx, "Dashboard fetch timed out",
				applog.FieldErrorType, applog.ErrorTypeTimeout,
				applog.FieldDuration, time.Since(started).Milliseconds())
		} else {
			log.ErrorContext(ctx, "Dashboard fetch failed", applog.FieldError, err.Error())
		}
		return Snapshot{}, fmt.Errorf("fetch records: %w", err)
	}

	snap := s.compute(userID, token, recs)

	if !s.apply(snap) {
		log.DebugContext(ctx, "Discarding superseded dashboard refresh")
		return snap, ErrStale
	}

	log.DebugContext(ctx, "Dashboard refreshed",
		applog.FieldOperation, applog.OpRefresh,
		applog.FieldRecordCount, len(recs),
		applog.FieldDuration, time.Since(started).Milliseconds())
	return snap, nil
}

func (s *Service) compute(userID string, token uint64, recs []core.Expense) Snapshot {
	now := s.now().In(s.loc)
	st := stats.ComputeStats(recs, now)
	return Snapshot{
		Token:      token,
		UserID:     userID,
		Stats:      st,
		Recent:     stats.Recent(recs, s.recent),
		Ranked:     stats.RankCategories(st, stats.DisplayCategories),
		ComputedAt: now,
	}
}

// apply stores snap as visible if its token is still the newest issued.
func (s *Service) apply(snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Token != s.tokens[snap.UserID] {
		return false
	}
	return s.visible.SetIf(snap.UserID, snap, func(cur Snapshot, exists bool) bool {
		return !exists || cur.Token < snap.Token
	})
}

// Visible returns the snapshot currently applied for the user.
func (s *Service) Visible(userID string) (Snapshot, bool) {
	return s.visible.Get(userID)
}

// Load returns the visible snapshot, refreshing first when there is none.
// Concurrent loads for the same user share one refresh.
func (s *Service) Load(ctx context.Context, userID string) (Snapshot, error) {
	if snap, ok := s.Visible(userID); ok {
		return snap, nil
	}
	v, err, _ := s.loads.Do(userID, func() (any, error) {
		if snap, ok := s.Visible(userID); ok {
			return snap, nil
		}
		snap, err := s.Refresh(ctx, userID)
		if errors.Is(err, ErrStale) {
			if vis, ok := s.Visible(userID); ok {
				return vis, nil
			}
			return snap, nil
		}
		return snap, err
	})
	if err != nil {
		return s.Empty(userID), err
	}
	return v.(Snapshot), nil
}

// Forget drops the user's visible snapshot. Refreshes still in flight for the
// user become stale.
func (s *Service) Forget(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, userID)
	s.visible.Delete(userID)
}

// FollowAuth drops a user's dashboard when they sign out.
func (s *Service) FollowAuth(a *auth.Service) (unsubscribe func()) {
	return a.Subscribe(func(ev auth.Event) {
		if ev.Kind == auth.SignedOut {
			s.Forget(ev.UserID)
		}
	})
}
