// Package ports declares the data-access capabilities the services depend on.
// Implementations live in storage (SQL), ports/memory and the outbound
// adapters; they are constructed once in cmd and passed down explicitly.
package ports

import (
	"context"

	"github.com/google/uuid"

	"omnifin/internal/core"
)

// Ports for outbound adapters.
type (
	CompanyRepository interface {
		CreateCompany(ctx context.Context, c core.Company) (core.Company, error)
		GetCompany(ctx context.Context, id uuid.UUID) (core.Company, error)
		// FirstCompany returns the oldest company, or core.ErrNotFound.
		FirstCompany(ctx context.Context) (core.Company, error)
		ListCompanies(ctx context.Context) ([]core.Company, error)
	}

	EntityRepository interface {
		CreateEntity(ctx context.Context, e core.Entity) (core.Entity, error)
		ListEntities(ctx context.Context, companyID uuid.UUID) ([]core.Entity, error)
	}

	TransactionRepository interface {
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, id uuid.UUID) error
		// ListTransactions returns the newest transactions first. A limit of
		// zero or less means no limit.
		ListTransactions(ctx context.Context, companyID uuid.UUID, limit int) ([]core.Transaction, error)
	}

	SnapshotRepository interface {
		SaveSnapshot(ctx context.Context, s core.MetricsSnapshot) error
		// ListSnapshots returns the newest snapshots first.
		ListSnapshots(ctx context.Context, companyID uuid.UUID, limit int) ([]core.MetricsSnapshot, error)
	}

	// Store is the full persistence capability handed to the services.
	Store interface {
		CompanyRepository
		EntityRepository
		TransactionRepository
		SnapshotRepository
		Ping(ctx context.Context) error
		Close() error
	}

	// EventPublisher announces ledger mutations to the worker.
	EventPublisher interface {
		PublishLedgerEvent(ctx context.Context, ev core.LedgerEvent) error
	}

	// TransactionExporter mirrors transactions to an external sheet.
	TransactionExporter interface {
		ExportTransaction(ctx context.Context, company core.Company, t core.Transaction) (rowRef string, err error)
	}
)
