package core

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventCompanyCreated     EventKind = "company.created"
	EventEntityCreated      EventKind = "entity.created"
	EventTransactionCreated EventKind = "transaction.created"
	EventTransactionUpdated EventKind = "transaction.updated"
	EventTransactionDeleted EventKind = "transaction.deleted"
)

type EventKind string

func (k EventKind) IsValid() bool {
	switch k {
	case EventCompanyCreated, EventEntityCreated,
		EventTransactionCreated, EventTransactionUpdated, EventTransactionDeleted:
		return true
	}
	return false
}

// LedgerEvent is a lightweight notification that something changed for a
// company. It carries identifiers only; consumers read current state from
// the store.
type LedgerEvent struct {
	Kind      EventKind `json:"kind"`
	CompanyID uuid.UUID `json:"company_id"`
	SubjectID uuid.UUID `json:"subject_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEvent(kind EventKind, companyID, subjectID uuid.UUID, at time.Time) LedgerEvent {
	return LedgerEvent{Kind: kind, CompanyID: companyID, SubjectID: subjectID, Timestamp: at}
}
