package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"omnifin/internal/core"
)

const maxBodyBytes = 1 << 20

// ErrMalformedBody is returned when the body is neither valid JSON nor a
// valid form encoding.
var ErrMalformedBody = errors.New("malformed request body")

// RequestBodyParser reads a JSON or form-encoded body once and exposes its
// fields as strings. Callers turn those into typed commands.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if p.err != nil {
		p.err = fmt.Errorf("%w: %v", ErrMalformedBody, p.err)
	}
	return p
}

// Parse decodes the body. JSON is chosen by content type or by a leading
// brace; everything else is parsed as a form.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	mediaType, _, _ := mime.ParseMediaType(p.contentType)
	if mediaType == "application/json" || trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		// Keep amounts as their literal text.
		dec.UseNumber()
		data := make(map[string]any)
		if err := dec.Decode(&data); err != nil {
			p.err = fmt.Errorf("%w: %v", ErrMalformedBody, err)
			return p.err
		}
		p.jsonData = data
		return nil
	}

	form, err := url.ParseQuery(string(trimmed))
	if err != nil {
		p.err = fmt.Errorf("%w: %v", ErrMalformedBody, err)
		return p.err
	}
	p.formData = form
	return nil
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		return sanitizeInput(stringValue(p.jsonData[key]))
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func parseUUIDField(ve *core.ValidationError, field, raw string) uuid.UUID {
	if raw == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		ve.Add(field, "must be a valid UUID")
		return uuid.Nil
	}
	return id
}

func parseAmountField(ve *core.ValidationError, raw string) decimal.Decimal {
	if raw == "" {
		ve.Add("amount", "is required")
		return decimal.Zero
	}
	amount, err := core.ParseAmount(raw)
	if err != nil {
		ve.Add("amount", "must be a non-negative number with up to 13 integer digits")
		return decimal.Zero
	}
	return amount
}

func parseDateField(ve *core.ValidationError, raw string) core.Date {
	if raw == "" {
		return core.Date{}
	}
	d, err := core.ParseDate(raw)
	if err != nil {
		ve.Add("date", "must be a date in YYYY-MM-DD format")
		return core.Date{}
	}
	return d
}

// ParseCreateCompany reads a company creation body.
func ParseCreateCompany(p *RequestBodyParser) (core.CreateCompanyCommand, error) {
	if err := p.Parse(); err != nil {
		return core.CreateCompanyCommand{}, err
	}
	return core.CreateCompanyCommand{
		Name:         p.Get("name"),
		Currency:     p.Get("currency"),
		BusinessType: p.Get("business_type"),
	}, nil
}

// ParseCreateEntity reads an entity creation body.
func ParseCreateEntity(p *RequestBodyParser) (core.CreateEntityCommand, error) {
	if err := p.Parse(); err != nil {
		return core.CreateEntityCommand{}, err
	}
	ve := &core.ValidationError{}
	cmd := core.CreateEntityCommand{
		CompanyID: parseUUIDField(ve, "company_id", p.Get("company_id")),
		Name:      p.Get("name"),
		Type:      core.EntityType(p.Get("type")),
		Email:     p.Get("email"),
		Phone:     p.Get("phone"),
	}
	if len(ve.Fields) > 0 {
		cmd.Normalize()
		merge(ve, cmd.Validate())
	}
	return cmd, ve.Err()
}

// ParseCreateTransaction reads a transaction creation body. Malformed
// fields are reported together; missing ones are left for validation.
func ParseCreateTransaction(p *RequestBodyParser) (core.CreateTransactionCommand, error) {
	if err := p.Parse(); err != nil {
		return core.CreateTransactionCommand{}, err
	}
	ve := &core.ValidationError{}
	cmd := core.CreateTransactionCommand{
		CompanyID:   parseUUIDField(ve, "company_id", p.Get("company_id")),
		Amount:      parseAmountField(ve, p.Get("amount")),
		Type:        core.TransactionType(p.Get("type")),
		Category:    p.Get("category"),
		Description: p.Get("description"),
		Date:        parseDateField(ve, p.Get("date")),
		Status:      core.TransactionStatus(p.Get("status")),
	}
	if raw := p.Get("entity_id"); raw != "" {
		if id := parseUUIDField(ve, "entity_id", raw); id != uuid.Nil {
			cmd.EntityID = &id
		}
	}
	if len(ve.Fields) > 0 {
		cmd.Normalize()
		merge(ve, cmd.Validate())
	}
	return cmd, ve.Err()
}

// ParseUpdateTransaction reads a full replacement of transaction id.
func ParseUpdateTransaction(id uuid.UUID, p *RequestBodyParser) (core.UpdateTransactionCommand, error) {
	if err := p.Parse(); err != nil {
		return core.UpdateTransactionCommand{}, err
	}
	ve := &core.ValidationError{}
	cmd := core.UpdateTransactionCommand{
		ID:          id,
		Amount:      parseAmountField(ve, p.Get("amount")),
		Type:        core.TransactionType(p.Get("type")),
		Category:    p.Get("category"),
		Description: p.Get("description"),
		Date:        parseDateField(ve, p.Get("date")),
		Status:      core.TransactionStatus(p.Get("status")),
	}
	if len(ve.Fields) > 0 {
		cmd.Normalize()
		merge(ve, cmd.Validate())
	}
	return cmd, ve.Err()
}

// merge folds the field errors of err into ve so a 422 lists every problem
// at once. Messages already in ve win.
func merge(ve *core.ValidationError, err error) {
	var other *core.ValidationError
	if !errors.As(err, &other) {
		return
	}
	for field, msg := range other.Fields {
		ve.Add(field, msg)
	}
}
