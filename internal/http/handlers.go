package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"neovest/internal/auth"
	"neovest/internal/core"
	"neovest/internal/dashboard"
	applog "neovest/internal/log"
)

// Dashboard tabs in display order. Investments and goals are placeholders.
var tabs = []tab{
	{ID: "overview", Label: "Overview"},
	{ID: "expenses", Label: "Expenses"},
	{ID: "investments", Label: "Investments", Placeholder: true},
	{ID: "goals", Label: "Goals", Placeholder: true},
}

type tab struct {
	ID          string
	Label       string
	Placeholder bool
}

func activeTab(id string) tab {
	for _, t := range tabs {
		if t.ID == id {
			return t
		}
	}
	return tabs[0]
}

// pageData is shared by every full page render.
type pageData struct {
	Title    string
	User     core.User
	Tabs     []tab
	Active   tab
	Notice   string
	Dash     dashboardView
	Form     expenseFormView
	Expenses []core.Expense
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.metrics.started).Round(time.Second).String(),
	})
}

// handleReady reports whether templates are loaded and the record backend answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	switch {
	case s.pinger == nil:
		checks["records"] = "ok"
	default:
		if err := s.pinger.Ping(ctx); err != nil {
			checks["records"] = fmt.Sprintf("failed: %v", err)
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["records"] = "ok"
		}
	}

	checks["dashboard_cache"] = map[string]any{
		"entries": s.dashboard.Cache().Size(),
		"status":  "ok",
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()
	traceMetrics := s.tracer.GetMetrics()

	w.WriteHeader(http.StatusOK)

	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}
	gauge := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", name, help, name, name, v)
	}

	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	gauge("http_response_time_avg_ms", "Average response time in milliseconds", traceMetrics.AverageResponseTime.Milliseconds())
	counter("expenses_total", "Total number of expenses created", s.metrics.expensesCreated.Load())
	counter("sign_ins_total", "Total number of successful sign-ins", s.metrics.signIns.Load())
	gauge("dashboard_cache_entries", "Visible dashboard snapshots held in memory", int64(s.dashboard.Cache().Size()))
	counter("rate_limit_rejections_total", "Requests rejected by the rate limiter", rateLimitMetrics.Rejected)
	gauge("active_rate_limit_clients", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	counter("suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	counter("blocked_requests_total", "Suspicious requests rejected outright", securityMetrics.BlockedRequests)
	gauge("uptime_seconds", "Application uptime in seconds", int64(s.now().Sub(s.metrics.started).Seconds()))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		NotFoundError("Page not found").Write(w)
		return
	}
	if resp := RequireMethod(r, http.MethodGet, http.MethodHead); resp != nil {
		resp.Write(w)
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	data := s.basePage(r.Context(), userID, "Dashboard")
	data.Active = activeTab(r.URL.Query().Get("tab"))

	snap, err := s.dashboard.Load(r.Context(), userID)
	data.Dash = s.dashboardView(snap)
	if err != nil {
		data.Notice = "Your dashboard could not be loaded right now. Figures may be out of date."
	}

	if data.Active.ID == "expenses" {
		data.Form = s.newExpenseForm(nil, nil)
		data.Expenses = s.listExpenses(r.Context(), userID)
	}

	s.render(w, r, "index", data)
}

func (s *Server) basePage(ctx context.Context, userID, title string) pageData {
	data := pageData{Title: title, Tabs: tabs, Active: tabs[0]}
	if userID == "" {
		return data
	}
	u, err := s.auth.User(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to load user profile",
			applog.FieldUserID, userID, applog.FieldError, err.Error())
		u = core.User{ID: userID}
	}
	data.User = u
	return data
}

func (s *Server) listExpenses(ctx context.Context, userID string) []core.Expense {
	list, err := s.querier.QueryRecords(ctx, userID, s.listLimit)
	if err != nil {
		s.structured.LogError(ctx, "Failed to list expenses", err,
			applog.ComponentExpense, applog.OpList,
			applog.NewFields().WithUser(userID).WithErrorType(applog.ErrorTypeDatabase))
		return nil
	}
	return list
}

// snapshotOf is a helper used by partials and the JSON API.
func (s *Server) snapshotOf(r *http.Request) (dashboard.Snapshot, error) {
	userID, _ := auth.UserIDFromContext(r.Context())
	return s.dashboard.Load(r.Context(), userID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
