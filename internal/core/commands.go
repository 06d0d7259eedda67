package core

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}

type (
	CreateCompanyCommand struct {
		Name         string `json:"name" validate:"required,max=200"`
		Currency     string `json:"currency" validate:"required,iso4217"`
		BusinessType string `json:"business_type" validate:"max=100"`
	}

	CreateEntityCommand struct {
		CompanyID uuid.UUID  `json:"company_id" validate:"required"`
		Name      string     `json:"name" validate:"required,max=200"`
		Type      EntityType `json:"type" validate:"required,oneof=customer supplier employee other"`
		Email     string     `json:"email" validate:"omitempty,email,max=254"`
		Phone     string     `json:"phone" validate:"max=50"`
	}

	CreateTransactionCommand struct {
		CompanyID   uuid.UUID         `json:"company_id" validate:"required"`
		EntityID    *uuid.UUID        `json:"entity_id"`
		Amount      decimal.Decimal   `json:"amount"`
		Type        TransactionType   `json:"type" validate:"required,oneof=income expense"`
		Category    string            `json:"category" validate:"required,max=100"`
		Description string            `json:"description" validate:"max=500"`
		Date        Date              `json:"date"`
		Status      TransactionStatus `json:"status" validate:"omitempty,oneof=pending completed cancelled"`
	}

	// UpdateTransactionCommand replaces every mutable field of a transaction.
	UpdateTransactionCommand struct {
		ID          uuid.UUID         `json:"id" validate:"required"`
		Amount      decimal.Decimal   `json:"amount"`
		Type        TransactionType   `json:"type" validate:"required,oneof=income expense"`
		Category    string            `json:"category" validate:"required,max=100"`
		Description string            `json:"description" validate:"max=500"`
		Date        Date              `json:"date"`
		Status      TransactionStatus `json:"status" validate:"required,oneof=pending completed cancelled"`
	}
)

// ValidationError carries one message per offending field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+e.Fields[name])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Add records msg for field, keeping the first message per field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// Err returns nil when no field was recorded.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (c *CreateCompanyCommand) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	c.BusinessType = strings.TrimSpace(c.BusinessType)
}

func (c CreateCompanyCommand) Validate() error {
	ve := &ValidationError{}
	collect(ve, validate.Struct(c))
	return ve.Err()
}

func (c *CreateEntityCommand) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
}

func (c CreateEntityCommand) Validate() error {
	ve := &ValidationError{}
	collect(ve, validate.Struct(c))
	return ve.Err()
}

// Normalize trims text fields and applies the default status.
func (c *CreateTransactionCommand) Normalize() {
	c.Category = strings.TrimSpace(c.Category)
	c.Description = strings.TrimSpace(c.Description)
	if c.Status == "" {
		c.Status = StatusCompleted
	}
	if c.EntityID != nil && *c.EntityID == uuid.Nil {
		c.EntityID = nil
	}
}

func (c CreateTransactionCommand) Validate() error {
	ve := &ValidationError{}
	collect(ve, validate.Struct(c))
	checkAmount(ve, c.Amount)
	checkDate(ve, c.Date)
	return ve.Err()
}

// Transaction builds the transaction described by the command.
func (c CreateTransactionCommand) Transaction() Transaction {
	return Transaction{
		CompanyID:   c.CompanyID,
		EntityID:    c.EntityID,
		Amount:      c.Amount,
		Type:        c.Type,
		Category:    c.Category,
		Description: c.Description,
		Date:        c.Date,
		Status:      c.Status,
	}
}

func (c *UpdateTransactionCommand) Normalize() {
	c.Category = strings.TrimSpace(c.Category)
	c.Description = strings.TrimSpace(c.Description)
}

func (c UpdateTransactionCommand) Validate() error {
	ve := &ValidationError{}
	collect(ve, validate.Struct(c))
	checkAmount(ve, c.Amount)
	checkDate(ve, c.Date)
	return ve.Err()
}

// Apply copies the mutable fields of the command onto t.
func (c UpdateTransactionCommand) Apply(t Transaction) Transaction {
	t.Amount = c.Amount
	t.Type = c.Type
	t.Category = c.Category
	t.Description = c.Description
	t.Date = c.Date
	t.Status = c.Status
	return t
}

func checkAmount(ve *ValidationError, amount decimal.Decimal) {
	if amount.IsNegative() {
		ve.Add("amount", "must not be negative")
	}
}

func checkDate(ve *ValidationError, d Date) {
	if d.Validate() != nil {
		ve.Add("date", "is required (YYYY-MM-DD)")
	}
}

func collect(ve *ValidationError, err error) {
	if err == nil {
		return
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		ve.Add("_", err.Error())
		return
	}
	for _, fe := range verrs {
		ve.Add(fe.Field(), fieldMessage(fe))
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "email":
		return "must be a valid email address"
	case "iso4217":
		return "must be an ISO 4217 currency code"
	default:
		return "is invalid"
	}
}
