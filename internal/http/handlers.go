package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"omnifin/internal/log"
)

const (
	defaultListLimit = 100
	readyTimeout     = 3 * time.Second
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks templates and pings the store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]string{}

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if err := s.ledger.Ready(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		checks["store"] = "failed"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.cachedCompanies(r.Context())
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Data(companies).Write(w)
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	cmd, err := ParseCreateCompany(NewRequestBodyParser(w, r))
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	company, err := s.ledger.CreateCompany(r.Context(), cmd)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	s.invalidateCompanies(company)

	log.FromContext(r.Context()).InfoContext(r.Context(), "Company created",
		log.FieldCompanyID, company.ID,
		log.FieldOperation, log.OpCreate)
	NewJSONResponse().Status(http.StatusCreated).Data(company).Write(w)
}

func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	company, err := s.cachedCompany(r.Context(), id)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Data(company).Write(w)
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	entities, err := s.ledger.ListEntities(r.Context(), id)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Data(nonNil(entities)).Write(w)
}

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	cmd, err := ParseCreateEntity(NewRequestBodyParser(w, r))
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	entity, err := s.ledger.CreateEntity(r.Context(), cmd)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Entity created",
		log.FieldCompanyID, entity.CompanyID,
		log.FieldEntityID, entity.ID,
		log.FieldType, entity.Type)
	NewJSONResponse().Status(http.StatusCreated).Data(entity).Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	transactions, err := s.ledger.ListTransactions(r.Context(), id, parseLimit(r, defaultListLimit))
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Data(nonNil(transactions)).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	cmd, err := ParseCreateTransaction(NewRequestBodyParser(w, r))
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	t, err := s.ledger.CreateTransaction(r.Context(), cmd)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	s.structured.LogTransactionRecorded(r.Context(), log.OpCreate, t)
	NewJSONResponse().Status(http.StatusCreated).Data(t).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	t, err := s.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Data(t).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	cmd, err := ParseUpdateTransaction(id, NewRequestBodyParser(w, r))
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	t, err := s.ledger.UpdateTransaction(r.Context(), cmd)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	s.structured.LogTransactionRecorded(r.Context(), log.OpUpdate, t)
	NewJSONResponse().Data(t).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	if err := s.ledger.DeleteTransaction(r.Context(), id); err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Transaction deleted",
		log.FieldTransactionID, id,
		log.FieldOperation, log.OpDelete)
	NewJSONResponse().Data(map[string]string{"id": id.String()}).Write(w)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	snapshots, err := s.ledger.ListSnapshots(r.Context(), id, parseLimit(r, defaultListLimit))
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Data(nonNil(snapshots)).Write(w)
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
