package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnifin/internal/core"
	"omnifin/internal/log"
	"omnifin/internal/ports/memory"
	"omnifin/internal/services"
)

type fakeExporter struct {
	mu       sync.Mutex
	exported []core.Transaction
	err      error
}

func (f *fakeExporter) ExportTransaction(_ context.Context, _ core.Company, t core.Transaction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.exported = append(f.exported, t)
	return "Transactions!A2", nil
}

func setup(t *testing.T) (*services.LedgerService, core.Company, core.Transaction) {
	t.Helper()
	ctx := context.Background()
	svc := services.NewLedgerService(memory.New())
	company, err := svc.CreateCompany(ctx, core.CreateCompanyCommand{Name: "Acme"})
	require.NoError(t, err)
	tx, err := svc.CreateTransaction(ctx, core.CreateTransactionCommand{
		CompanyID: company.ID, Amount: decimal.NewFromInt(100), Type: core.Income,
		Category: "Sales", Date: core.NewDate(2024, 1, 1),
	})
	require.NoError(t, err)
	return svc, company, tx
}

func TestHandleLedgerEventSnapshotsAndExports(t *testing.T) {
	ctx := context.Background()
	svc, company, tx := setup(t)
	exp := &fakeExporter{}
	w := NewSnapshotWorker(svc, exp)

	err := w.HandleLedgerEvent(ctx, core.NewLedgerEvent(core.EventTransactionCreated, company.ID, tx.ID, time.Now()))
	require.NoError(t, err)

	snaps, err := svc.ListSnapshots(ctx, company.ID, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Metrics.TotalRevenue.Equal(decimal.NewFromInt(100)))

	require.Len(t, exp.exported, 1)
	assert.Equal(t, tx.ID, exp.exported[0].ID)
}

func TestHandleLedgerEventEntityDoesNotExport(t *testing.T) {
	ctx := context.Background()
	svc, company, _ := setup(t)
	exp := &fakeExporter{}
	w := NewSnapshotWorker(svc, exp)

	require.NoError(t, w.HandleLedgerEvent(ctx, core.NewLedgerEvent(core.EventEntityCreated, company.ID, uuid.New(), time.Now())))
	assert.Empty(t, exp.exported)
}

func TestHandleLedgerEventDropsStaleEvents(t *testing.T) {
	ctx := context.Background()
	svc, company, _ := setup(t)
	w := NewSnapshotWorker(svc, &fakeExporter{})

	assert.NoError(t, w.HandleLedgerEvent(ctx, core.NewLedgerEvent(core.EventCompanyCreated, uuid.New(), uuid.New(), time.Now())))
	assert.NoError(t, w.HandleLedgerEvent(ctx, core.NewLedgerEvent(core.EventTransactionUpdated, company.ID, uuid.New(), time.Now())))
}

func TestHandleLedgerEventExportFailureRequeues(t *testing.T) {
	ctx := context.Background()
	svc, company, tx := setup(t)
	w := NewSnapshotWorker(svc, &fakeExporter{err: errors.New("quota exceeded")})

	err := w.HandleLedgerEvent(ctx, core.NewLedgerEvent(core.EventTransactionCreated, company.ID, tx.ID, time.Now()))
	assert.Error(t, err)
}

// captureLogs installs a JSON default logger for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Default()
	log.SetDefault(log.New(log.Config{Level: "debug", Format: log.FormatJSON, Component: log.ComponentApp, Output: &buf}))
	t.Cleanup(func() { log.SetDefault(prev) })
	return &buf
}

func logLine(t *testing.T, buf *bytes.Buffer, msg string) map[string]any {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		if m["msg"] == msg {
			assert.Equal(t, 1, strings.Count(line, `"component"`), line)
			return m
		}
	}
	t.Fatalf("no log line %q in:\n%s", msg, buf.String())
	return nil
}

func TestHandleLedgerEventLogging(t *testing.T) {
	buf := captureLogs(t)
	ctx := context.Background()
	svc, company, tx := setup(t)
	w := NewSnapshotWorker(svc, &fakeExporter{err: errors.New("quota exceeded")})

	require.Error(t, w.HandleLedgerEvent(ctx, core.NewLedgerEvent(core.EventTransactionCreated, company.ID, tx.ID, time.Now())))

	processing := logLine(t, buf, "Processing ledger event")
	assert.Equal(t, log.ComponentWorker, processing[log.FieldComponent])
	assert.Equal(t, string(core.EventTransactionCreated), processing[log.FieldEventKind])

	snapshot := logLine(t, buf, "Metrics snapshot recorded")
	assert.Equal(t, log.OpSnapshot, snapshot[log.FieldOperation])

	failed := logLine(t, buf, "Transaction export failed")
	assert.Equal(t, "error", failed["level"])
	assert.Equal(t, log.ComponentSheets, failed[log.FieldComponent])
	assert.Equal(t, log.OpExport, failed[log.FieldOperation])
	assert.Equal(t, "quota exceeded", failed[log.FieldError])
	assert.Equal(t, tx.ID.String(), failed[log.FieldTransactionID])
}

func TestHandleLedgerEventWithoutExporter(t *testing.T) {
	ctx := context.Background()
	svc, company, tx := setup(t)
	w := NewSnapshotWorker(svc, nil)
	assert.NoError(t, w.HandleLedgerEvent(ctx, core.NewLedgerEvent(core.EventTransactionCreated, company.ID, tx.ID, time.Now())))
}

func TestSnapshotAll(t *testing.T) {
	ctx := context.Background()
	svc, company, _ := setup(t)
	other, err := svc.CreateCompany(ctx, core.CreateCompanyCommand{Name: "Other"})
	require.NoError(t, err)

	w := NewSnapshotWorker(svc, nil)
	require.NoError(t, w.SnapshotAll(ctx))

	for _, id := range []uuid.UUID{company.ID, other.ID} {
		snaps, err := svc.ListSnapshots(ctx, id, 0)
		require.NoError(t, err)
		assert.Len(t, snaps, 1)
	}
}

func TestSchedulerRunsSnapshots(t *testing.T) {
	svc, company, _ := setup(t)
	s := NewScheduler(NewSnapshotWorker(svc, nil), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx), "second start is a no-op")

	assert.Eventually(t, func() bool {
		snaps, err := svc.ListSnapshots(context.Background(), company.ID, 0)
		return err == nil && len(snaps) > 0
	}, 5*time.Second, 50*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, s.Stop(stopCtx))
	require.NoError(t, s.Stop(stopCtx))
}

func TestSchedulerRejectsInvalidInterval(t *testing.T) {
	svc, _, _ := setup(t)
	s := NewScheduler(NewSnapshotWorker(svc, nil), 0)
	assert.Error(t, s.Start(context.Background()))
}
