package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnifin/internal/core"
	"omnifin/internal/log"
	"omnifin/internal/ports/memory"
	"omnifin/internal/services"
)

func newTestServer(t *testing.T) (*Server, *services.LedgerService) {
	t.Helper()
	svc := services.NewLedgerService(memory.New())
	srv := newServerFor(t, svc)
	return srv, svc
}

func newServerFor(t *testing.T, l Ledger) *Server {
	t.Helper()
	logger := log.New(log.Config{Level: "error", Format: log.FormatJSON, Output: io.Discard})
	srv := NewServer(":0", l, Options{RateLimitPerMinute: 1000, Logger: logger})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

// dataAs decodes the data member of an envelope into T.
func dataAs[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	require.True(t, env.Success, rr.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.NotEmpty(t, rr.Header().Get("X-Request-ID"), path)
	}
}

type unreadyLedger struct{ Ledger }

func (unreadyLedger) Ready(context.Context) error { return errors.New("store down") }

func TestReadyReportsStoreFailure(t *testing.T) {
	srv := newServerFor(t, unreadyLedger{services.NewLedgerService(memory.New())})

	rr := do(t, srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"store":"failed"`)
}

func TestIndexEmptyState(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), "No company yet")
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestIndexRendersMetrics(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()

	company, err := svc.CreateCompany(ctx, core.CreateCompanyCommand{Name: "Acme", Currency: "USD"})
	require.NoError(t, err)
	for _, tx := range []struct {
		typ    core.TransactionType
		status core.TransactionStatus
		amount string
	}{
		{core.Income, core.StatusCompleted, "1000"},
		{core.Expense, core.StatusCompleted, "400"},
		{core.Income, core.StatusPending, "200"},
	} {
		rr := do(t, srv, http.MethodPost, "/api/transactions",
			`{"company_id":"`+company.ID.String()+`","amount":"`+tx.amount+`","type":"`+string(tx.typ)+
				`","status":"`+string(tx.status)+`","category":"General","date":"2024-06-01"}`)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := do(t, srv, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Acme")
	assert.Contains(t, body, "$1,000.00")
	assert.Contains(t, body, "$400.00")
	assert.Contains(t, body, "$600.00")
	assert.Contains(t, body, "1 pending transaction(s)")

	rr = do(t, srv, http.MethodGet, "/?company_id="+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, http.MethodGet, "/?company_id=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCompanyLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/api/companies", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, dataAs[[]core.Company](t, rr))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	rr = do(t, srv, http.MethodPost, "/api/companies", `{"name":"Acme","currency":"eur"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	company := dataAs[core.Company](t, rr)
	assert.Equal(t, "EUR", company.Currency)

	// The cached empty list must not survive the create.
	rr = do(t, srv, http.MethodGet, "/api/companies", "")
	require.Len(t, dataAs[[]core.Company](t, rr), 1)

	rr = do(t, srv, http.MethodGet, "/api/companies/"+company.ID.String(), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, company.ID, dataAs[core.Company](t, rr).ID)

	rr = do(t, srv, http.MethodGet, "/api/companies/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, http.MethodGet, "/api/companies/not-a-uuid", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, http.MethodPost, "/api/companies", `{"currency":"EUR"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), `"name":"is required"`)

	rr = do(t, srv, http.MethodPost, "/api/companies", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEntitiesAndTransactions(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/companies", `{"name":"Acme"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	company := dataAs[core.Company](t, rr)
	cid := company.ID.String()

	rr = do(t, srv, http.MethodPost, "/api/entities", `{"company_id":"`+cid+`","name":"Bob","type":"customer"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	entity := dataAs[core.Entity](t, rr)

	rr = do(t, srv, http.MethodPost, "/api/entities", `{"company_id":"`+uuid.NewString()+`","name":"Ghost","type":"supplier"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, srv, http.MethodGet, "/api/companies/"+cid+"/entities", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, dataAs[[]core.Entity](t, rr), 1)

	rr = do(t, srv, http.MethodPost, "/api/transactions",
		`{"company_id":"`+cid+`","entity_id":"`+entity.ID.String()+`","amount":"250.00","type":"income","category":"Sales","date":"2024-06-01"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	tx := dataAs[core.Transaction](t, rr)
	assert.Equal(t, core.StatusCompleted, tx.Status)
	txPath := "/api/transactions/" + tx.ID.String()

	rr = do(t, srv, http.MethodGet, txPath, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, tx.ID, dataAs[core.Transaction](t, rr).ID)

	rr = do(t, srv, http.MethodPut, txPath, `{"amount":"300","type":"income","category":"Sales","date":"2024-06-02","status":"pending"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := dataAs[core.Transaction](t, rr)
	assert.Equal(t, "300.00", updated.Amount.StringFixed(2))
	assert.Equal(t, core.StatusPending, updated.Status)

	rr = do(t, srv, http.MethodPut, txPath, `{"amount":"abc","type":"income","category":"Sales","date":"2024-06-02","status":"pending"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, srv, http.MethodGet, "/api/companies/"+cid+"/transactions?limit=10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, dataAs[[]core.Transaction](t, rr), 1)

	rr = do(t, srv, http.MethodGet, "/api/dashboard?company_id="+cid, "")
	require.Equal(t, http.StatusOK, rr.Code)
	dashboard := dataAs[core.Dashboard](t, rr)
	assert.Equal(t, 1, dashboard.Metrics.PendingTransactions)
	assert.Equal(t, 1, dashboard.Metrics.CustomerCount)
	assert.True(t, dashboard.Metrics.TotalRevenue.IsZero())

	rr = do(t, srv, http.MethodDelete, txPath, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]string{"id": tx.ID.String()}, dataAs[map[string]string](t, rr))

	rr = do(t, srv, http.MethodDelete, txPath, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, http.MethodGet, "/api/companies/"+cid+"/snapshots", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, dataAs[[]core.MetricsSnapshot](t, rr))
}

func TestDashboardJSONEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"company":null`)
	assert.Contains(t, rr.Body.String(), `"transactions":[]`)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodPatch, "/api/companies", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestSuspiciousRequestRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/api/companies?file=..%2F..%2Fetc%2Fpasswd", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMutationsAreRateLimited(t *testing.T) {
	logger := log.New(log.Config{Level: "error", Output: io.Discard})
	srv := NewServer(":0", services.NewLedgerService(memory.New()), Options{RateLimitPerMinute: 1, Logger: logger})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, srv, http.MethodPost, "/api/companies", `{"name":"Acme"}`).Code)
	}
	assert.Contains(t, codes, http.StatusTooManyRequests)

	rr := do(t, srv, http.MethodGet, "/api/companies", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestStaticAssets(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/static/app.css", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Cache-Control"), "max-age=3600")
}
