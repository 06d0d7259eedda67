package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"omnifin/internal/core"
	"omnifin/internal/log"
	"omnifin/internal/ports"
)

var _ ports.Store = (*SQLRepository)(nil)

// SQLRepository implements ports.Store on database/sql.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	logger  *log.Logger
}

// NewSQLiteRepository opens (creating if needed) the sqlite file at dbPath
// and migrates it.
func NewSQLiteRepository(dbPath string) (*SQLRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	repo, err := open(DialectSQLite, dsn)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	repo.db.SetMaxOpenConns(1)
	return repo, nil
}

// NewPostgresRepository connects to dsn and migrates the schema.
func NewPostgresRepository(dsn string) (*SQLRepository, error) {
	repo, err := open(DialectPostgres, dsn)
	if err != nil {
		return nil, err
	}
	repo.db.SetMaxOpenConns(10)
	repo.db.SetConnMaxIdleTime(5 * time.Minute)
	return repo, nil
}

func open(dialect Dialect, dsn string) (*SQLRepository, error) {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLRepository{db: db, dialect: dialect, now: time.Now, logger: log.For(log.ComponentStorage)}, nil
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.db.ExecContext(ctx, r.dialect.rebind(query), args...)
}

func (r *SQLRepository) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.db.QueryContext(ctx, r.dialect.rebind(query), args...)
}

func (r *SQLRepository) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.db.QueryRowContext(ctx, r.dialect.rebind(query), args...)
}

func (r *SQLRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

const companyColumns = `id, name, currency, business_type, created_at, updated_at`

func (r *SQLRepository) CreateCompany(ctx context.Context, c core.Company) (core.Company, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := r.timestamp()
	c.CreatedAt, c.UpdatedAt = now, now

	_, err := r.exec(ctx, `INSERT INTO companies (`+companyColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Currency, c.BusinessType, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return core.Company{}, fmt.Errorf("create company: %w", err)
	}

	r.logger.InfoContext(ctx, "Company saved",
		log.FieldOperation, log.OpCreate,
		log.FieldCompanyID, c.ID,
		"name", c.Name,
		"currency", c.Currency)

	return c, nil
}

func (r *SQLRepository) GetCompany(ctx context.Context, id uuid.UUID) (core.Company, error) {
	row := r.queryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = ?`, id)
	c, err := scanCompany(row)
	if err != nil {
		return core.Company{}, fmt.Errorf("get company %s: %w", id, notFound(err))
	}
	return c, nil
}

func (r *SQLRepository) FirstCompany(ctx context.Context) (core.Company, error) {
	row := r.queryRow(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY created_at ASC, id ASC LIMIT 1`)
	c, err := scanCompany(row)
	if err != nil {
		return core.Company{}, fmt.Errorf("first company: %w", notFound(err))
	}
	return c, nil
}

func (r *SQLRepository) ListCompanies(ctx context.Context) ([]core.Company, error) {
	rows, err := r.query(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	out := make([]core.Company, 0)
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companies: %w", err)
	}
	return out, nil
}

const entityColumns = `id, company_id, name, type, email, phone, created_at, updated_at`

func (r *SQLRepository) CreateEntity(ctx context.Context, e core.Entity) (core.Entity, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := r.timestamp()
	e.CreatedAt, e.UpdatedAt = now, now

	_, err := r.exec(ctx, `INSERT INTO entities (`+entityColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CompanyID, e.Name, string(e.Type), e.Email, e.Phone, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return core.Entity{}, fmt.Errorf("create entity: %w", err)
	}

	r.logger.InfoContext(ctx, "Entity saved",
		log.FieldOperation, log.OpCreate,
		log.FieldEntityID, e.ID,
		log.FieldCompanyID, e.CompanyID,
		log.FieldType, e.Type)

	return e, nil
}

func (r *SQLRepository) ListEntities(ctx context.Context, companyID uuid.UUID) ([]core.Entity, error) {
	rows, err := r.query(ctx, `SELECT `+entityColumns+` FROM entities WHERE company_id = ? ORDER BY name ASC`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	out := make([]core.Entity, 0)
	for rows.Next() {
		var (
			e   core.Entity
			typ string
		)
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Name, &typ, &e.Email, &e.Phone, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.Type = core.EntityType(typ)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

const transactionColumns = `id, company_id, entity_id, amount, type, category, description, date, status, created_at, updated_at`

func (r *SQLRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := r.timestamp()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := r.exec(ctx, `INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.CompanyID, nullUUID(t.EntityID), t.Amount, string(t.Type), t.Category, t.Description,
		t.Date, string(t.Status), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	r.logger.InfoContext(ctx, "Transaction saved",
		log.FieldOperation, log.OpCreate,
		log.FieldTransactionID, t.ID,
		log.FieldCompanyID, t.CompanyID,
		log.FieldType, t.Type,
		log.FieldAmount, t.Amount.StringFixed(2),
		"date", t.Date.String())

	return t, nil
}

func (r *SQLRepository) GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error) {
	row := r.queryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, notFound(err))
	}
	return t, nil
}

// UpdateTransaction rewrites the mutable fields of t. Company and entity
// links are not changed.
func (r *SQLRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	res, err := r.exec(ctx, `UPDATE transactions
		SET amount = ?, type = ?, category = ?, description = ?, date = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		t.Amount, string(t.Type), t.Category, t.Description, t.Date, string(t.Status), r.timestamp(), t.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", t.ID, core.ErrNotFound)
	}

	r.logger.InfoContext(ctx, "Transaction updated",
		log.FieldOperation, log.OpUpdate,
		log.FieldTransactionID, t.ID,
		log.FieldStatus, t.Status)

	return r.GetTransaction(ctx, t.ID)
}

func (r *SQLRepository) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	res, err := r.exec(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete transaction %s: %w", id, core.ErrNotFound)
	}

	r.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldTransactionID, id)
	return nil
}

func (r *SQLRepository) ListTransactions(ctx context.Context, companyID uuid.UUID, limit int) ([]core.Transaction, error) {
	q := `SELECT ` + transactionColumns + ` FROM transactions WHERE company_id = ? ORDER BY date DESC, created_at DESC`
	args := []any{companyID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *SQLRepository) SaveSnapshot(ctx context.Context, s core.MetricsSnapshot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.TakenAt.IsZero() {
		s.TakenAt = r.timestamp()
	}
	m := s.Metrics
	_, err := r.exec(ctx, `INSERT INTO metrics_snapshots
		(id, company_id, total_revenue, total_expenses, cash_flow, customer_count, supplier_count, pending_transactions, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.CompanyID, m.TotalRevenue, m.TotalExpenses, m.CashFlow,
		m.CustomerCount, m.SupplierCount, m.PendingTransactions, s.TakenAt.UTC())
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (r *SQLRepository) ListSnapshots(ctx context.Context, companyID uuid.UUID, limit int) ([]core.MetricsSnapshot, error) {
	q := `SELECT id, company_id, total_revenue, total_expenses, cash_flow, customer_count, supplier_count, pending_transactions, taken_at
		FROM metrics_snapshots WHERE company_id = ? ORDER BY taken_at DESC`
	args := []any{companyID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]core.MetricsSnapshot, 0)
	for rows.Next() {
		var s core.MetricsSnapshot
		m := &s.Metrics
		if err := rows.Scan(&s.ID, &s.CompanyID, &m.TotalRevenue, &m.TotalExpenses, &m.CashFlow,
			&m.CustomerCount, &m.SupplierCount, &m.PendingTransactions, &s.TakenAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCompany(row scanner) (core.Company, error) {
	var c core.Company
	err := row.Scan(&c.ID, &c.Name, &c.Currency, &c.BusinessType, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t        core.Transaction
		entityID uuid.NullUUID
		typ      string
		status   string
	)
	err := row.Scan(&t.ID, &t.CompanyID, &entityID, &t.Amount, &typ, &t.Category, &t.Description,
		&t.Date, &status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	if entityID.Valid {
		id := entityID.UUID
		t.EntityID = &id
	}
	t.Type = core.TransactionType(typ)
	t.Status = core.TransactionStatus(status)
	return t, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}
