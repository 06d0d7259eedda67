package core

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTransactionCommand() CreateTransactionCommand {
	return CreateTransactionCommand{
		CompanyID: uuid.New(),
		Amount:    decimal.RequireFromString("10.00"),
		Type:      Income,
		Category:  "Sales",
		Date:      NewDate(2024, 1, 1),
	}
}

func TestCreateTransactionCommandDefaults(t *testing.T) {
	cmd := validTransactionCommand()
	nilID := uuid.Nil
	cmd.EntityID = &nilID
	cmd.Category = "  Sales "
	cmd.Normalize()

	require.NoError(t, cmd.Validate())
	assert.Equal(t, StatusCompleted, cmd.Status)
	assert.Equal(t, "Sales", cmd.Category)
	assert.Nil(t, cmd.EntityID)

	tx := cmd.Transaction()
	assert.Equal(t, cmd.CompanyID, tx.CompanyID)
	assert.Equal(t, StatusCompleted, tx.Status)
}

func TestCreateTransactionCommandZeroAmountAllowed(t *testing.T) {
	cmd := validTransactionCommand()
	cmd.Amount = decimal.Zero
	cmd.Normalize()
	assert.NoError(t, cmd.Validate())
}

func TestCreateTransactionCommandRejectsEveryBadField(t *testing.T) {
	cmd := CreateTransactionCommand{
		Amount: decimal.NewFromInt(-5),
		Type:   "refund",
		Status: "void",
	}
	err := cmd.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	for _, field := range []string{"company_id", "amount", "type", "category", "date", "status"} {
		assert.Contains(t, ve.Fields, field)
	}
	assert.Equal(t, "is required", ve.Fields["company_id"])
	assert.Equal(t, "must be one of: income, expense", ve.Fields["type"])
}

func TestUpdateTransactionCommand(t *testing.T) {
	cmd := UpdateTransactionCommand{
		ID:       uuid.New(),
		Amount:   decimal.RequireFromString("3.50"),
		Type:     Expense,
		Category: "Fuel",
		Date:     NewDate(2024, 2, 1),
		Status:   StatusPending,
	}
	require.NoError(t, cmd.Validate())

	before := Transaction{ID: cmd.ID, Amount: decimal.NewFromInt(1), Type: Income, Category: "x", Status: StatusCompleted}
	after := cmd.Apply(before)
	assert.Equal(t, before.ID, after.ID)
	assert.True(t, after.Amount.Equal(cmd.Amount))
	assert.Equal(t, StatusPending, after.Status)
	assert.Equal(t, StatusCompleted, before.Status)

	cmd.Status = ""
	var ve *ValidationError
	require.True(t, errors.As(cmd.Validate(), &ve))
	assert.Contains(t, ve.Fields, "status")
}

func TestCreateCompanyCommand(t *testing.T) {
	cmd := CreateCompanyCommand{Name: " Acme "}
	cmd.Normalize()
	require.NoError(t, cmd.Validate())
	assert.Equal(t, "Acme", cmd.Name)
	assert.Equal(t, DefaultCurrency, cmd.Currency)

	bad := CreateCompanyCommand{Name: "", Currency: "ZZZ"}
	var ve *ValidationError
	require.True(t, errors.As(bad.Validate(), &ve))
	assert.Contains(t, ve.Fields, "name")
	assert.Contains(t, ve.Fields, "currency")
}

func TestCreateEntityCommand(t *testing.T) {
	cmd := CreateEntityCommand{CompanyID: uuid.New(), Name: "Bob", Type: EntityCustomer, Email: "bob@example.com"}
	require.NoError(t, cmd.Validate())

	cmd.Email = "not-an-email"
	cmd.Type = "partner"
	var ve *ValidationError
	require.True(t, errors.As(cmd.Validate(), &ve))
	assert.Equal(t, "must be a valid email address", ve.Fields["email"])
	assert.Contains(t, ve.Fields, "type")
}

func TestValidationErrorMessage(t *testing.T) {
	ve := &ValidationError{}
	assert.NoError(t, ve.Err())
	ve.Add("b", "is required")
	ve.Add("a", "is invalid")
	ve.Add("a", "ignored")
	assert.Equal(t, "validation failed: a is invalid; b is required", ve.Error())
}
