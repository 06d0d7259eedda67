package services

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
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.LedgerEvent
	err    error
	closed bool
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, ev core.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func (p *recordingPublisher) kinds() []core.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.EventKind, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*LedgerService, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	svc := NewLedgerService(memory.New(),
		WithPublisher(pub),
		WithClock(func() time.Time { return fixedNow }),
		WithDashboardTimeout(time.Second))
	return svc, pub
}

func createCompany(t *testing.T, svc *LedgerService) core.Company {
	t.Helper()
	c, err := svc.CreateCompany(context.Background(), core.CreateCompanyCommand{Name: "Acme"})
	require.NoError(t, err)
	return c
}

func createTx(t *testing.T, svc *LedgerService, companyID uuid.UUID, typ core.TransactionType, status core.TransactionStatus, amount string, date core.Date) core.Transaction {
	t.Helper()
	tx, err := svc.CreateTransaction(context.Background(), core.CreateTransactionCommand{
		CompanyID: companyID,
		Amount:    decimal.RequireFromString(amount),
		Type:      typ,
		Category:  "General",
		Date:      date,
		Status:    status,
	})
	require.NoError(t, err)
	return tx
}

func TestDashboardEmptyState(t *testing.T) {
	svc, _ := newTestService(t)

	d, err := svc.Dashboard(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, d.Empty())
	assert.Empty(t, d.Transactions)
	assert.True(t, d.Metrics.CashFlow.IsZero())
	assert.Equal(t, WelcomeInsight, d.Insight)
}

func TestDashboardComputesMetrics(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	company := createCompany(t, svc)

	createTx(t, svc, company.ID, core.Income, core.StatusCompleted, "1000", core.NewDate(2024, 1, 1))
	createTx(t, svc, company.ID, core.Expense, core.StatusCompleted, "400", core.NewDate(2024, 1, 2))
	createTx(t, svc, company.ID, core.Income, core.StatusPending, "200", core.NewDate(2024, 1, 3))
	for _, typ := range []core.EntityType{core.EntityCustomer, core.EntityCustomer, core.EntitySupplier, core.EntityEmployee} {
		_, err := svc.CreateEntity(ctx, core.CreateEntityCommand{CompanyID: company.ID, Name: "e", Type: typ})
		require.NoError(t, err)
	}

	d, err := svc.Dashboard(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, d.Company)
	assert.Equal(t, company.ID, d.Company.ID)
	assert.True(t, d.Metrics.TotalRevenue.Equal(decimal.NewFromInt(1000)))
	assert.True(t, d.Metrics.TotalExpenses.Equal(decimal.NewFromInt(400)))
	assert.True(t, d.Metrics.CashFlow.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, 1, d.Metrics.PendingTransactions)
	assert.Equal(t, 2, d.Metrics.CustomerCount)
	assert.Equal(t, 1, d.Metrics.SupplierCount)
	require.Len(t, d.RunningBalance, 3)
	assert.True(t, d.RunningBalance[2].Balance.Equal(decimal.NewFromInt(800)))
	assert.Equal(t, "You have 1 pending transaction(s) to review.", d.Insight.Message)

	explicit, err := svc.Dashboard(ctx, &company.ID)
	require.NoError(t, err)
	assert.True(t, explicit.Metrics.CashFlow.Equal(d.Metrics.CashFlow))
}

func TestDashboardLoadsAtMostFiftyTransactions(t *testing.T) {
	svc, _ := newTestService(t)
	company := createCompany(t, svc)
	for i := 0; i < DashboardTransactionLimit+5; i++ {
		createTx(t, svc, company.ID, core.Income, core.StatusCompleted, "1", core.NewDate(2024, 1, 1).AddDays(i))
	}

	d, err := svc.Dashboard(context.Background(), &company.ID)
	require.NoError(t, err)
	assert.Len(t, d.Transactions, DashboardTransactionLimit)
	assert.True(t, d.Metrics.TotalRevenue.Equal(decimal.NewFromInt(DashboardTransactionLimit)))
}

func TestDashboardUnknownCompany(t *testing.T) {
	svc, _ := newTestService(t)
	id := uuid.New()
	_, err := svc.Dashboard(context.Background(), &id)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestCreateTransactionDefaultsAndEvents(t *testing.T) {
	ctx := context.Background()
	svc, pub := newTestService(t)
	company := createCompany(t, svc)

	tx, err := svc.CreateTransaction(ctx, core.CreateTransactionCommand{
		CompanyID: company.ID,
		Amount:    decimal.RequireFromString("12.50"),
		Type:      core.Expense,
		Category:  "Fuel",
		Date:      core.NewDate(2024, 3, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, tx.Status)

	_, err = svc.UpdateTransaction(ctx, core.UpdateTransactionCommand{
		ID: tx.ID, Amount: decimal.RequireFromString("13"), Type: core.Expense,
		Category: "Fuel", Date: tx.Date, Status: core.StatusCancelled,
	})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteTransaction(ctx, tx.ID))

	assert.Equal(t, []core.EventKind{
		core.EventCompanyCreated,
		core.EventTransactionCreated,
		core.EventTransactionUpdated,
		core.EventTransactionDeleted,
	}, pub.kinds())
	assert.Equal(t, company.ID, pub.events[3].CompanyID)
	assert.Equal(t, tx.ID, pub.events[3].SubjectID)
	assert.Equal(t, fixedNow, pub.events[3].Timestamp)
}

func TestCreateTransactionValidation(t *testing.T) {
	ctx := context.Background()
	svc, pub := newTestService(t)

	_, err := svc.CreateTransaction(ctx, core.CreateTransactionCommand{})
	assert.True(t, errors.Is(err, core.ErrValidation))

	_, err = svc.CreateTransaction(ctx, core.CreateTransactionCommand{
		CompanyID: uuid.New(), Amount: decimal.NewFromInt(1), Type: core.Income,
		Category: "Sales", Date: core.NewDate(2024, 1, 1),
	})
	var ve *core.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "does not exist", ve.Fields["company_id"])

	company := createCompany(t, svc)
	missing := uuid.New()
	_, err = svc.CreateTransaction(ctx, core.CreateTransactionCommand{
		CompanyID: company.ID, EntityID: &missing, Amount: decimal.NewFromInt(1), Type: core.Income,
		Category: "Sales", Date: core.NewDate(2024, 1, 1),
	})
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "entity_id")

	assert.Equal(t, []core.EventKind{core.EventCompanyCreated}, pub.kinds())
}

func TestUpdateDeleteMissingTransaction(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	err := svc.DeleteTransaction(ctx, uuid.New())
	assert.True(t, errors.Is(err, core.ErrNotFound))

	_, err = svc.UpdateTransaction(ctx, core.UpdateTransactionCommand{
		ID: uuid.New(), Amount: decimal.NewFromInt(1), Type: core.Income,
		Category: "x", Date: core.NewDate(2024, 1, 1), Status: core.StatusCompleted,
	})
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Default()
	log.SetDefault(log.New(log.Config{Format: log.FormatJSON, Component: log.ComponentApp, Output: &buf}))
	t.Cleanup(func() { log.SetDefault(prev) })

	svc, pub := newTestService(t)
	pub.err = errors.New("broker down")

	c, err := svc.CreateCompany(context.Background(), core.CreateCompanyCommand{Name: "Acme", Currency: "EUR"})
	require.NoError(t, err)
	assert.Equal(t, "EUR", c.Currency)

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	assert.Equal(t, 1, strings.Count(line, `"component"`), line)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "Failed to publish ledger event", entry["msg"])
	assert.Equal(t, log.ComponentLedger, entry[log.FieldComponent])
	assert.Equal(t, string(core.EventCompanyCreated), entry[log.FieldEventKind])
	assert.Equal(t, "broker down", entry[log.FieldError])
}

func TestNoPublisher(t *testing.T) {
	svc := NewLedgerService(memory.New())
	_, err := svc.CreateCompany(context.Background(), core.CreateCompanyCommand{Name: "Acme"})
	require.NoError(t, err)
	require.NoError(t, svc.Close())
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	company := createCompany(t, svc)
	createTx(t, svc, company.ID, core.Income, core.StatusCompleted, "10", core.NewDate(2024, 1, 1))

	snap, err := svc.Snapshot(ctx, company.ID)
	require.NoError(t, err)
	assert.True(t, snap.Metrics.CashFlow.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, fixedNow, snap.TakenAt)

	list, err := svc.ListSnapshots(ctx, company.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, snap.ID, list[0].ID)
}

func TestClose(t *testing.T) {
	svc, pub := newTestService(t)
	require.NoError(t, svc.Close())
	assert.True(t, pub.closed)
}
