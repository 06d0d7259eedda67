package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"omnifin/internal/core"
	"omnifin/internal/log"
	"omnifin/internal/ports"
)

// Ledger is the part of the ledger service the worker drives.
type Ledger interface {
	GetCompany(ctx context.Context, id uuid.UUID) (core.Company, error)
	ListCompanies(ctx context.Context) ([]core.Company, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error)
	Snapshot(ctx context.Context, companyID uuid.UUID) (core.MetricsSnapshot, error)
}

// SnapshotWorker keeps metrics history current and mirrors transactions to
// the export sheet.
type SnapshotWorker struct {
	ledger     Ledger
	exporter   ports.TransactionExporter
	logger     *log.Logger
	structured *log.StructuredLogger
}

// NewSnapshotWorker creates a worker. exporter may be nil.
func NewSnapshotWorker(ledger Ledger, exporter ports.TransactionExporter) *SnapshotWorker {
	logger := log.For(log.ComponentWorker)
	return &SnapshotWorker{
		ledger:     ledger,
		exporter:   exporter,
		logger:     logger,
		structured: log.NewStructuredLogger(logger),
	}
}

// HandleLedgerEvent processes a single ledger event from AMQP. Events for
// companies or transactions that no longer exist are dropped.
func (w *SnapshotWorker) HandleLedgerEvent(ctx context.Context, ev core.LedgerEvent) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		log.FieldEventKind, ev.Kind,
		log.FieldCompanyID, ev.CompanyID,
		"subject_id", ev.SubjectID)

	company, err := w.ledger.GetCompany(ctx, ev.CompanyID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.WarnContext(ctx, "Company no longer exists, dropping event",
			log.FieldCompanyID, ev.CompanyID,
			log.FieldEventKind, ev.Kind)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get company: %w", err)
	}

	snap, err := w.ledger.Snapshot(ctx, company.ID)
	if err != nil {
		return fmt.Errorf("snapshot company %s: %w", company.ID, err)
	}

	w.logger.InfoContext(ctx, "Metrics snapshot recorded",
		log.FieldCompanyID, company.ID,
		log.FieldOperation, log.OpSnapshot,
		"cash_flow", snap.Metrics.CashFlow.StringFixed(2),
		"pending", snap.Metrics.PendingTransactions)

	switch ev.Kind {
	case core.EventTransactionCreated, core.EventTransactionUpdated:
		return w.export(ctx, company, ev.SubjectID)
	}
	return nil
}

func (w *SnapshotWorker) export(ctx context.Context, company core.Company, transactionID uuid.UUID) error {
	if w.exporter == nil {
		w.logger.DebugContext(ctx, "No exporter configured, skipping export", log.FieldTransactionID, transactionID)
		return nil
	}

	t, err := w.ledger.GetTransaction(ctx, transactionID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.WarnContext(ctx, "Transaction deleted before export", log.FieldTransactionID, transactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}

	ref, err := w.exporter.ExportTransaction(ctx, company, t)
	if err != nil {
		w.structured.LogError(ctx, "Transaction export failed", err, log.ComponentSheets, log.OpExport,
			log.NewFields().WithTransaction(company.ID.String(), t.ID.String(), t.Amount, string(t.Type), string(t.Status)))
		return fmt.Errorf("export transaction: %w", err)
	}

	w.logger.InfoContext(ctx, "Transaction exported",
		log.FieldTransactionID, t.ID,
		log.FieldOperation, log.OpExport,
		log.FieldSheetsRef, ref)
	return nil
}

// SnapshotAll records a snapshot for every company. It is the backstop for
// events lost while the broker was unreachable. Failures for one company do
// not stop the others.
func (w *SnapshotWorker) SnapshotAll(ctx context.Context) error {
	companies, err := w.ledger.ListCompanies(ctx)
	if err != nil {
		return fmt.Errorf("list companies: %w", err)
	}

	var (
		errs         []error
		successCount int
	)
	for _, c := range companies {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := w.ledger.Snapshot(ctx, c.ID); err != nil {
			w.structured.LogError(ctx, "Failed to snapshot company", err, log.ComponentWorker, log.OpSnapshot,
				log.LogFields{log.FieldCompanyID: c.ID.String()})
			errs = append(errs, fmt.Errorf("company %s: %w", c.ID, err))
			continue
		}
		successCount++
	}

	w.logger.InfoContext(ctx, "Snapshot run completed",
		log.FieldOperation, log.OpSnapshot,
		"companies", len(companies),
		"success_count", successCount,
		"error_count", len(errs))

	return errors.Join(errs...)
}
