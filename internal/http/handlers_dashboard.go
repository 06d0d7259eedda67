package http

import (
	"bytes"
	"errors"
	"net/http"

	"omnifin/internal/core"
	"omnifin/internal/log"
)

// dashboardPage is the view model of dashboard.html.
type dashboardPage struct {
	core.Dashboard
	Currency  string
	Companies []core.Company
}

// handleIndex renders the dashboard page for ?company_id or the first company.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.templates == nil {
		log.FromContext(ctx).ErrorContext(ctx, "Templates not loaded")
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	companyID, err := optionalCompanyID(r)
	if err != nil {
		http.Error(w, "invalid company_id", http.StatusBadRequest)
		return
	}

	dashboard, err := s.ledger.Dashboard(ctx, companyID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "company not found", http.StatusNotFound)
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "Dashboard load failed",
			log.FieldError, err,
			log.FieldOperation, log.OpRender)
		http.Error(w, "dashboard unavailable", http.StatusInternalServerError)
		return
	}

	companies, err := s.cachedCompanies(ctx)
	if err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Company list unavailable", log.FieldError, err)
	}

	page := dashboardPage{
		Dashboard: dashboard,
		Currency:  core.DefaultCurrency,
		Companies: companies,
	}
	if dashboard.Company != nil {
		page.Currency = dashboard.Company.Currency
	}

	// Render into a buffer so a template failure never sends a half page.
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "dashboard.html", page); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Dashboard template execution failed",
			log.FieldError, err,
			log.FieldOperation, log.OpRender)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleDashboardJSON(w http.ResponseWriter, r *http.Request) {
	companyID, err := optionalCompanyID(r)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	dashboard, err := s.ledger.Dashboard(r.Context(), companyID)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	dashboard.Transactions = nonNil(dashboard.Transactions)
	dashboard.Entities = nonNil(dashboard.Entities)
	dashboard.RunningBalance = nonNil(dashboard.RunningBalance)
	NewJSONResponse().Data(dashboard).Write(w)
}
