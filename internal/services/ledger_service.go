package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"omnifin/internal/core"
	"omnifin/internal/ledger"
	"omnifin/internal/log"
	"omnifin/internal/ports"
)

const (
	// DashboardTransactionLimit is how many of the newest transactions the
	// dashboard loads.
	DashboardTransactionLimit = 50

	defaultDashboardTimeout = 5 * time.Second
)

// WelcomeInsight is shown while no company exists.
var WelcomeInsight = core.Insight{
	Message: "Let's get started by creating your first company.",
	Mood:    core.MoodThinking,
}

// LedgerService orchestrates ledger operations across the store and AMQP.
type LedgerService struct {
	store            ports.Store
	publisher        ports.EventPublisher
	now              func() time.Time
	dashboardTimeout time.Duration
	logger           *log.Logger
}

type Option func(*LedgerService)

// WithPublisher enables ledger events. Without it mutations are only stored.
func WithPublisher(p ports.EventPublisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

// WithDashboardTimeout bounds the store reads behind Dashboard.
func WithDashboardTimeout(d time.Duration) Option {
	return func(s *LedgerService) {
		if d > 0 {
			s.dashboardTimeout = d
		}
	}
}

func NewLedgerService(store ports.Store, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:            store,
		now:              time.Now,
		dashboardTimeout: defaultDashboardTimeout,
		logger:           log.For(log.ComponentLedger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCompany validates and saves a company, defaulting the currency.
func (s *LedgerService) CreateCompany(ctx context.Context, cmd core.CreateCompanyCommand) (core.Company, error) {
	cmd.Normalize()
	if err := cmd.Validate(); err != nil {
		return core.Company{}, err
	}

	company, err := s.store.CreateCompany(ctx, core.Company{
		Name:         cmd.Name,
		Currency:     cmd.Currency,
		BusinessType: cmd.BusinessType,
	})
	if err != nil {
		return core.Company{}, fmt.Errorf("save company: %w", err)
	}

	s.publish(ctx, core.EventCompanyCreated, company.ID, company.ID)
	return company, nil
}

func (s *LedgerService) GetCompany(ctx context.Context, id uuid.UUID) (core.Company, error) {
	return s.store.GetCompany(ctx, id)
}

func (s *LedgerService) ListCompanies(ctx context.Context) ([]core.Company, error) {
	return s.store.ListCompanies(ctx)
}

func (s *LedgerService) CreateEntity(ctx context.Context, cmd core.CreateEntityCommand) (core.Entity, error) {
	cmd.Normalize()
	if err := cmd.Validate(); err != nil {
		return core.Entity{}, err
	}
	if err := s.requireCompany(ctx, cmd.CompanyID); err != nil {
		return core.Entity{}, err
	}

	entity, err := s.store.CreateEntity(ctx, core.Entity{
		CompanyID: cmd.CompanyID,
		Name:      cmd.Name,
		Type:      cmd.Type,
		Email:     cmd.Email,
		Phone:     cmd.Phone,
	})
	if err != nil {
		return core.Entity{}, fmt.Errorf("save entity: %w", err)
	}

	s.publish(ctx, core.EventEntityCreated, entity.CompanyID, entity.ID)
	return entity, nil
}

// ListEntities returns the entities of an existing company.
func (s *LedgerService) ListEntities(ctx context.Context, companyID uuid.UUID) ([]core.Entity, error) {
	if _, err := s.store.GetCompany(ctx, companyID); err != nil {
		return nil, err
	}
	return s.store.ListEntities(ctx, companyID)
}

// CreateTransaction validates and saves a transaction. The status defaults
// to completed.
func (s *LedgerService) CreateTransaction(ctx context.Context, cmd core.CreateTransactionCommand) (core.Transaction, error) {
	cmd.Normalize()
	if err := cmd.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.requireCompany(ctx, cmd.CompanyID); err != nil {
		return core.Transaction{}, err
	}
	if cmd.EntityID != nil {
		if err := s.requireEntity(ctx, cmd.CompanyID, *cmd.EntityID); err != nil {
			return core.Transaction{}, err
		}
	}

	t, err := s.store.CreateTransaction(ctx, cmd.Transaction())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.publish(ctx, core.EventTransactionCreated, t.CompanyID, t.ID)
	return t, nil
}

func (s *LedgerService) UpdateTransaction(ctx context.Context, cmd core.UpdateTransactionCommand) (core.Transaction, error) {
	cmd.Normalize()
	if err := cmd.Validate(); err != nil {
		return core.Transaction{}, err
	}

	current, err := s.store.GetTransaction(ctx, cmd.ID)
	if err != nil {
		return core.Transaction{}, err
	}

	t, err := s.store.UpdateTransaction(ctx, cmd.Apply(current))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	s.publish(ctx, core.EventTransactionUpdated, t.CompanyID, t.ID)
	return t, nil
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	current, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	s.publish(ctx, core.EventTransactionDeleted, current.CompanyID, id)
	return nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// ListTransactions returns the newest transactions of an existing company.
func (s *LedgerService) ListTransactions(ctx context.Context, companyID uuid.UUID, limit int) ([]core.Transaction, error) {
	if _, err := s.store.GetCompany(ctx, companyID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, companyID, limit)
}

func (s *LedgerService) ListSnapshots(ctx context.Context, companyID uuid.UUID, limit int) ([]core.MetricsSnapshot, error) {
	if _, err := s.store.GetCompany(ctx, companyID); err != nil {
		return nil, err
	}
	return s.store.ListSnapshots(ctx, companyID, limit)
}

// Dashboard assembles the dashboard for companyID, or for the first company
// when companyID is nil. With no company at all it returns the empty state.
// Metrics are recomputed on every call.
func (s *LedgerService) Dashboard(ctx context.Context, companyID *uuid.UUID) (core.Dashboard, error) {
	ctx, cancel := context.WithTimeout(ctx, s.dashboardTimeout)
	defer cancel()

	var (
		company core.Company
		err     error
	)
	if companyID != nil {
		company, err = s.store.GetCompany(ctx, *companyID)
	} else {
		company, err = s.store.FirstCompany(ctx)
		if errors.Is(err, core.ErrNotFound) {
			return EmptyDashboard(), nil
		}
	}
	if err != nil {
		return core.Dashboard{}, err
	}

	var (
		transactions []core.Transaction
		entities     []core.Entity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		transactions, err = s.store.ListTransactions(gctx, company.ID, DashboardTransactionLimit)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		entities, err = s.store.ListEntities(gctx, company.ID)
		if err != nil {
			return fmt.Errorf("list entities: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.Dashboard{}, fmt.Errorf("load dashboard: %w", err)
	}

	metrics := ledger.ComputeDashboardMetrics(transactions, entities)

	s.logger.DebugContext(ctx, "Dashboard computed",
		log.FieldCompanyID, company.ID,
		"transactions", len(transactions),
		"entities", len(entities),
		"cash_flow", metrics.CashFlow.StringFixed(2))

	return core.Dashboard{
		Company:        &company,
		Transactions:   transactions,
		Entities:       entities,
		Metrics:        metrics,
		RunningBalance: ledger.ComputeRunningBalance(transactions),
		Insight:        ledger.BuildInsight(metrics, company.Currency),
	}, nil
}

// EmptyDashboard is the state shown before the first company exists.
func EmptyDashboard() core.Dashboard {
	return core.Dashboard{
		Transactions: []core.Transaction{},
		Entities:     []core.Entity{},
		Metrics: core.DashboardMetrics{
			TotalRevenue:  decimal.Zero,
			TotalExpenses: decimal.Zero,
			CashFlow:      decimal.Zero,
		},
		RunningBalance: []core.RunningBalanceEntry{},
		Insight:        WelcomeInsight,
	}
}

// Snapshot computes the metrics of a company over all its transactions and
// records them.
func (s *LedgerService) Snapshot(ctx context.Context, companyID uuid.UUID) (core.MetricsSnapshot, error) {
	var (
		transactions []core.Transaction
		entities     []core.Entity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		transactions, err = s.store.ListTransactions(gctx, companyID, 0)
		return err
	})
	g.Go(func() error {
		var err error
		entities, err = s.store.ListEntities(gctx, companyID)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.MetricsSnapshot{}, fmt.Errorf("load ledger for snapshot: %w", err)
	}

	snap := core.MetricsSnapshot{
		ID:        uuid.New(),
		CompanyID: companyID,
		Metrics:   ledger.ComputeDashboardMetrics(transactions, entities),
		TakenAt:   s.now().UTC(),
	}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return core.MetricsSnapshot{}, fmt.Errorf("save snapshot: %w", err)
	}
	return snap, nil
}

// Ready reports whether the store answers.
func (s *LedgerService) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *LedgerService) requireCompany(ctx context.Context, id uuid.UUID) error {
	_, err := s.store.GetCompany(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		ve := &core.ValidationError{}
		ve.Add("company_id", "does not exist")
		return ve
	}
	if err != nil {
		return fmt.Errorf("load company: %w", err)
	}
	return nil
}

func (s *LedgerService) requireEntity(ctx context.Context, companyID, entityID uuid.UUID) error {
	entities, err := s.store.ListEntities(ctx, companyID)
	if err != nil {
		return fmt.Errorf("load entities: %w", err)
	}
	for _, e := range entities {
		if e.ID == entityID {
			return nil
		}
	}
	ve := &core.ValidationError{}
	ve.Add("entity_id", "does not exist for this company")
	return ve
}

// publish never fails the caller: the mutation is already stored.
func (s *LedgerService) publish(ctx context.Context, kind core.EventKind, companyID, subjectID uuid.UUID) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "Event publisher not available, skipping ledger event", log.FieldEventKind, kind)
		return
	}
	ev := core.NewLedgerEvent(kind, companyID, subjectID, s.now().UTC())
	if err := s.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldEventKind, kind,
			log.FieldCompanyID, companyID,
			"subject_id", subjectID,
			log.FieldError, err)
	}
}

// Close closes the store and, when it holds a connection, the publisher.
func (s *LedgerService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}

	if c, ok := s.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %w", errors.Join(errs...))
	}

	return nil
}
