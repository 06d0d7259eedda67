package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnifin/internal/core"
)

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return env
}

func TestJSONResponseBuilder(t *testing.T) {
	rr := httptest.NewRecorder()
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Custom", "yes").
		Data(map[string]int{"n": 1}).
		Write(rr)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, "yes", rr.Header().Get("X-Custom"))

	env := decodeEnvelope(t, rr)
	assert.True(t, env.Success)
	assert.Equal(t, map[string]any{"n": float64(1)}, env.Data)
	assert.Empty(t, env.Error)
}

func TestJSONResponseBuilderEncodeFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	NewJSONResponse().Data(make(chan int)).Write(rr)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.False(t, decodeEnvelope(t, rr).Success)
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name    string
		builder *JSONResponseBuilder
		status  int
		message string
	}{
		{"bad request", BadRequestError("bad"), http.StatusBadRequest, "bad"},
		{"not found", NotFoundError("gone"), http.StatusNotFound, "gone"},
		{"internal", InternalServerError(), http.StatusInternalServerError, "internal server error"},
		{"custom", ErrorResponse(http.StatusTeapot, "short and stout"), http.StatusTeapot, "short and stout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.builder.Write(rr)
			assert.Equal(t, tt.status, rr.Code)
			env := decodeEnvelope(t, rr)
			assert.False(t, env.Success)
			assert.Equal(t, tt.message, env.Error)
		})
	}
}

func TestErrorFor(t *testing.T) {
	ve := &core.ValidationError{}
	ve.Add("amount", "is required")

	tests := []struct {
		name       string
		err        error
		status     int
		wantFields bool
	}{
		{"validation with fields", ve, http.StatusUnprocessableEntity, true},
		{"wrapped validation", fmt.Errorf("create: %w", ve), http.StatusUnprocessableEntity, true},
		{"bare validation", fmt.Errorf("%w: company does not exist", core.ErrValidation), http.StatusUnprocessableEntity, false},
		{"not found", fmt.Errorf("transaction: %w", core.ErrNotFound), http.StatusNotFound, false},
		{"malformed body", fmt.Errorf("%w: eof", ErrMalformedBody), http.StatusBadRequest, false},
		{"store failure", errors.New("disk on fire"), http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/x", nil)
			rr := httptest.NewRecorder()
			ErrorFor(r, tt.err).Write(rr)

			assert.Equal(t, tt.status, rr.Code)
			env := decodeEnvelope(t, rr)
			assert.False(t, env.Success)
			if tt.wantFields {
				assert.Equal(t, "is required", env.Fields["amount"])
			} else {
				assert.Empty(t, env.Fields)
			}
			assert.NotContains(t, env.Error, "disk on fire")
		})
	}
}
