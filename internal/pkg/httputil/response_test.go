package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()

	Success(rec, http.StatusCreated, map[string]string{"id": "42"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"id":"42"}}`, rec.Body.String())
}

func TestValidationError_FieldDetails(t *testing.T) {
	type request struct {
		Title string `json:"title" validate:"required,min=5"`
		Email string `json:"responsible_email" validate:"required,email"`
	}
	err := NewValidator().Struct(request{Title: "abc", Email: "nope"})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	ValidationError(rec, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Error struct {
			Message string       `json:"message"`
			Details []FieldError `json:"details"`
		} `json:"error"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "validation error", body.Error.Message)
	assert.ElementsMatch(t, []FieldError{
		{Field: "title", Rule: "min", Param: "5"},
		{Field: "responsible_email", Rule: "email"},
	}, body.Error.Details)
}

func TestValidationError_PlainError(t *testing.T) {
	rec := httptest.NewRecorder()

	ValidationError(rec, errors.New("invalid page: \"x\""))

	assert.JSONEq(t, `{"error":{"message":"validation error","details":"invalid page: \"x\""}}`, rec.Body.String())
}

func TestHandleError(t *testing.T) {
	errMissing := errors.New("incident not found")
	errBadInput := errors.New("bad input")
	mappings := []ErrorMapping{
		{Error: errMissing, Status: http.StatusNotFound},
		{Error: errBadInput, Status: http.StatusBadRequest, Message: "bad page"},
	}

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"mapped uses error text", fmt.Errorf("get: %w", errMissing), http.StatusNotFound, "get: incident not found"},
		{"mapped with fixed message", errBadInput, http.StatusBadRequest, "bad page"},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "request timed out"},
		{"unmapped", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			HandleError(context.Background(), rec, tt.err, mappings)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantMessage, errorMessage(t, rec))
		})
	}
}

func TestHandleError_ClientGone(t *testing.T) {
	rec := httptest.NewRecorder()

	HandleError(context.Background(), rec, context.Canceled, nil)

	assert.Empty(t, rec.Body.String())
}

func TestParsePageRequest(t *testing.T) {
	spec := SortSpec{
		Fields:     map[string]string{"title": "title", "createdAt": "created_at"},
		DefaultBy:  "created_at",
		DefaultDir: domain.SortDesc,
	}

	tests := []struct {
		name    string
		query   string
		want    domain.PageRequest
		wantErr bool
	}{
		{"defaults", "", domain.PageRequest{Page: 0, Size: 10, SortField: "created_at", SortDir: domain.SortDesc}, false},
		{"explicit", "page=2&size=25&sort=title,asc", domain.PageRequest{Page: 2, Size: 25, SortField: "title", SortDir: domain.SortAsc}, false},
		{"camelCase desc", "sort=createdAt,DESC", domain.PageRequest{Page: 0, Size: 10, SortField: "created_at", SortDir: domain.SortDesc}, false},
		{"size capped", "size=1000", domain.PageRequest{Page: 0, Size: 100, SortField: "created_at", SortDir: domain.SortDesc}, false},
		{"negative page", "page=-3&size=0", domain.PageRequest{Page: 0, Size: 10, SortField: "created_at", SortDir: domain.SortDesc}, false},
		{"unknown sort field", "sort=password", domain.PageRequest{Page: 0, Size: 10, SortField: "created_at", SortDir: domain.SortDesc}, false},
		{"bad page", "page=x", domain.PageRequest{}, true},
		{"page offset overflows", "page=4611686018427387904", domain.PageRequest{}, true},
		{"page just out of range for size", "page=21474837&size=100", domain.PageRequest{}, true},
		{"last addressable page", "page=21474836&size=100", domain.PageRequest{Page: 21474836, Size: 100, SortField: "created_at", SortDir: domain.SortDesc}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents?"+tt.query, nil)

			got, err := ParsePageRequest(req, spec)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
