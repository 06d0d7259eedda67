package core

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusCancelled TransactionStatus = "cancelled"
)

const (
	EntityCustomer EntityType = "customer"
	EntitySupplier EntityType = "supplier"
	EntityEmployee EntityType = "employee"
	EntityOther    EntityType = "other"
)

// DateLayout is the ISO calendar date form used on the wire and in storage.
const DateLayout = "2006-01-02"

// DefaultCurrency is applied to companies created without one.
const DefaultCurrency = "USD"

type (
	TransactionType   string
	TransactionStatus string
	EntityType        string

	// Date is a calendar date without timezone. The wrapped time is always
	// midnight UTC so that comparisons order by day only.
	Date struct {
		time.Time
	}

	Company struct {
		ID           uuid.UUID `json:"id"`
		Name         string    `json:"name"`
		Currency     string    `json:"currency"`
		BusinessType string    `json:"businessType,omitempty"`
		CreatedAt    time.Time `json:"createdAt"`
		UpdatedAt    time.Time `json:"updatedAt"`
	}

	// Entity is a counterparty of a company.
	Entity struct {
		ID        uuid.UUID  `json:"id"`
		CompanyID uuid.UUID  `json:"companyId"`
		Name      string     `json:"name"`
		Type      EntityType `json:"type"`
		Email     string     `json:"email,omitempty"`
		Phone     string     `json:"phone,omitempty"`
		CreatedAt time.Time  `json:"createdAt"`
		UpdatedAt time.Time  `json:"updatedAt"`
	}

	// Transaction amounts are unsigned magnitudes; Type carries the direction.
	Transaction struct {
		ID          uuid.UUID         `json:"id"`
		CompanyID   uuid.UUID         `json:"companyId"`
		EntityID    *uuid.UUID        `json:"entityId,omitempty"`
		Amount      decimal.Decimal   `json:"amount"`
		Type        TransactionType   `json:"type"`
		Category    string            `json:"category"`
		Description string            `json:"description,omitempty"`
		Date        Date              `json:"date"`
		Status      TransactionStatus `json:"status"`
		CreatedAt   time.Time         `json:"createdAt"`
		UpdatedAt   time.Time         `json:"updatedAt"`
	}

	DashboardMetrics struct {
		TotalRevenue        decimal.Decimal `json:"totalRevenue"`
		TotalExpenses       decimal.Decimal `json:"totalExpenses"`
		CashFlow            decimal.Decimal `json:"cashFlow"`
		CustomerCount       int             `json:"customerCount"`
		SupplierCount       int             `json:"supplierCount"`
		PendingTransactions int             `json:"pendingTransactions"`
	}

	RunningBalanceEntry struct {
		TransactionID uuid.UUID       `json:"transactionId"`
		Date          Date            `json:"date"`
		Balance       decimal.Decimal `json:"balance"`
	}

	// MetricsSnapshot is a point-in-time copy of the metrics of one company.
	// It is history, never the source of truth for the dashboard.
	MetricsSnapshot struct {
		ID        uuid.UUID        `json:"id"`
		CompanyID uuid.UUID        `json:"companyId"`
		Metrics   DashboardMetrics `json:"metrics"`
		TakenAt   time.Time        `json:"takenAt"`
	}
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
)

func (t TransactionType) IsValid() bool {
	switch t {
	case Income, Expense:
		return true
	}
	return false
}

func (t TransactionType) String() string { return string(t) }

func (s TransactionStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s TransactionStatus) String() string { return string(s) }

func (e EntityType) IsValid() bool {
	switch e {
	case EntityCustomer, EntitySupplier, EntityEmployee, EntityOther:
		return true
	}
	return false
}

func (e EntityType) String() string { return string(e) }

// SignedAmount returns the amount with the sign implied by the transaction
// type: positive for income, negative for expense. Unknown types contribute
// zero.
func (t Transaction) SignedAmount() decimal.Decimal {
	switch t.Type {
	case Income:
		return t.Amount
	case Expense:
		return t.Amount.Neg()
	default:
		return decimal.Zero
	}
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value stores the date as ISO text; both sqlite and postgres accept it.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.Format(DateLayout), nil
}

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return fmt.Errorf("%w: cannot scan %T", ErrInvalidDate, src)
	}
}

func (d *Date) scanString(s string) error {
	// Drivers may hand back a full timestamp for DATE columns.
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
