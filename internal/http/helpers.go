package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"omnifin/internal/core"
)

const maxListLimit = 500

// sanitizeInput removes control characters (except tab and newlines) and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// pathID parses the {id} path segment. A malformed id cannot name an
// existing record, so it is reported as not found.
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, core.ErrNotFound
	}
	return id, nil
}

// optionalCompanyID reads ?company_id=. Empty means "first company".
func optionalCompanyID(r *http.Request) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("company_id"))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		ve := &core.ValidationError{}
		ve.Add("company_id", "must be a valid UUID")
		return nil, ve
	}
	return &id, nil
}

// parseLimit reads ?limit=, falling back to def and clamping to maxListLimit.
func parseLimit(r *http.Request, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
