package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"neovest/internal/auth"
	"neovest/internal/dashboard"
	applog "neovest/internal/log"
	"neovest/internal/stats"
)

// dashboardView is what the stat, category and activity partials render.
type dashboardView struct {
	Stats      stats.DashboardStats
	Average    decimal.Decimal
	Recent     []stats.RecentActivity
	Ranked     []stats.CategoryShare
	ComputedAt time.Time
	Empty      bool
	Failed     bool
}

func (s *Server) dashboardView(snap dashboard.Snapshot) dashboardView {
	return dashboardView{
		Stats:      snap.Stats,
		Average:    snap.Stats.AveragePerTransaction(),
		Recent:     snap.Recent,
		Ranked:     snap.Ranked,
		ComputedAt: snap.ComputedAt,
		Empty:      snap.Stats.ExpenseCount == 0,
	}
}

// renderPartial loads the user's snapshot and renders one dashboard fragment.
// A failed load still renders, from the empty snapshot, with a warning.
func (s *Server) renderPartial(w http.ResponseWriter, r *http.Request, name string) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}
	snap, err := s.snapshotOf(r)
	view := s.dashboardView(snap)
	if err != nil {
		view.Failed = true
		NewHTMXResponse().
			TriggerWarningNotification("Could not load your latest figures").
			WriteHeaders(w)
	}
	s.render(w, r, name, view)
}

func (s *Server) handleStatsPartial(w http.ResponseWriter, r *http.Request) {
	s.renderPartial(w, r, "stats")
}

func (s *Server) handleCategoriesPartial(w http.ResponseWriter, r *http.Request) {
	s.renderPartial(w, r, "categories")
}

func (s *Server) handleActivityPartial(w http.ResponseWriter, r *http.Request) {
	s.renderPartial(w, r, "activity")
}

// handleRefresh recomputes the dashboard and tells the page to reload its partials.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())

	resp := NewHTMXResponse().Status(http.StatusNoContent).TriggerDashboardRefresh()
	if _, err := s.dashboard.Refresh(r.Context(), userID); err != nil && !errors.Is(err, dashboard.ErrStale) {
		resp.TriggerWarningNotification("Could not refresh your dashboard. Showing the last known figures.")
	}
	resp.Write(w)
}

// handleAPIDashboard returns the visible snapshot as JSON.
func (s *Server) handleAPIDashboard(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}
	snap, err := s.snapshotOf(r)
	if err != nil {
		userID, _ := auth.UserIDFromContext(r.Context())
		s.structured.LogError(r.Context(), "Dashboard API load failed", err,
			applog.ComponentDashboard, applog.OpRead,
			applog.NewFields().WithUser(userID))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":    "dashboard unavailable",
			"snapshot": snap,
		})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
