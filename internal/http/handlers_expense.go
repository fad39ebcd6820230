package http

import (
	"errors"
	"fmt"
	"net/http"

	"neovest/internal/auth"
	"neovest/internal/core"
	"neovest/internal/dashboard"
	applog "neovest/internal/log"
	"neovest/internal/stats"
)

type expenseFormView struct {
	Categories     []string
	PaymentMethods []core.PaymentMethod
	Today          string
	Values         map[string]string
	Errors         FieldErrors
}

func (s *Server) newExpenseForm(values map[string]string, errs FieldErrors) expenseFormView {
	if values == nil {
		values = map[string]string{}
	}
	if errs == nil {
		errs = FieldErrors{}
	}
	return expenseFormView{
		Categories:     core.Categories(),
		PaymentMethods: core.PaymentMethods(),
		Today:          s.now().In(s.loc).Format(dateLayout),
		Values:         values,
		Errors:         errs,
	}
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.handleListExpenses(w, r)
	case http.MethodPost:
		s.handleCreateExpense(w, r)
	default:
		MethodNotAllowedError("GET, POST").Write(w)
	}
}

// handleListExpenses renders the expense list fragment for HTMX, or the full
// page on the expenses tab otherwise.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if r.Header.Get("HX-Request") != "true" {
		http.Redirect(w, r, "/?tab=expenses", http.StatusSeeOther)
		return
	}
	s.render(w, r, "expense-list", pageData{Expenses: s.listExpenses(r.Context(), userID)})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := auth.UserIDFromContext(ctx)

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		s.logger.WarnContext(ctx, "Parse expense body failed",
			applog.FieldError, err.Error(),
			applog.FieldErrorType, applog.ErrorTypeValidation)
		BadRequestError("Invalid request format").Write(w)
		return
	}

	ne, errs := ParseExpenseInput(parser.Get, s.loc, s.now())
	if !errs.Empty() {
		if parser.IsJSON() {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": errs})
			return
		}
		values := map[string]string{}
		for _, k := range []string{"amount", "category", "description", "payment_method", "date", "tags"} {
			values[k] = parser.Get(k)
		}
		w.Header().Set("HX-Retarget", "#expense-form")
		w.Header().Set("HX-Reswap", "outerHTML")
		NewHTMXResponse().TriggerErrorNotification(errs.Summary()).WriteHeaders(w)
		s.renderStatus(w, r, http.StatusUnprocessableEntity, "expense-form", s.newExpenseForm(values, errs))
		return
	}

	id, err := s.writer.AddRecord(ctx, userID, ne)
	if err != nil {
		fields := applog.NewFields().WithUser(userID).
			WithExpense("", ne.Description, ne.Amount.String(), ne.Category, string(ne.PaymentMethod))
		if core.IsValidationError(err) {
			s.structured.LogError(ctx, "Expense rejected by store", err, applog.ComponentExpense, applog.OpCreate,
				fields.WithErrorType(applog.ErrorTypeValidation))
			UnprocessableEntityError("Invalid expense: " + err.Error()).Write(w)
			return
		}
		s.structured.LogError(ctx, "Failed to save expense", err, applog.ComponentExpense, applog.OpCreate,
			fields.WithErrorType(applog.ErrorTypeDatabase))
		InternalServerError("Could not save your expense. Please try again.").
			TriggerErrorNotification("Could not save your expense").
			Write(w)
		return
	}

	s.metrics.expensesCreated.Add(1)
	s.structured.LogExpenseCreated(ctx, userID, id, ne.Description, ne.Amount.String(), ne.Category, string(ne.PaymentMethod))

	_, refreshErr := s.dashboard.Refresh(ctx, userID)
	refreshed := refreshErr == nil || errors.Is(refreshErr, dashboard.ErrStale)

	if parser.IsJSON() {
		writeJSON(w, http.StatusCreated, map[string]any{"id": id, "dashboard_refreshed": refreshed})
		return
	}

	resp := NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerExpenseCreated(id).
		TriggerDashboardRefresh().
		TriggerFormReset().
		TriggerSuccessNotification(fmt.Sprintf("Expense recorded: %s, %s (%s)",
			ne.Description, stats.FormatINR(ne.Amount), ne.Category))
	if !refreshed {
		// Same trigger key, so this replaces the success toast.
		resp.TriggerWarningNotification("Expense recorded, but the dashboard could not be refreshed.")
	}
	resp.Write(w)
}
