package incidents

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/pkg/httputil"
	"github.com/bissquit/incident-tracker/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTokens maps bearer tokens to roles.
type stubTokens map[string][]domain.Role

func (s stubTokens) ValidateToken(_ context.Context, token string) (string, []domain.Role, error) {
	roles, ok := s[token]
	if !ok {
		return "", nil, errors.New("unknown token")
	}
	return "user-" + token, roles, nil
}

type handlerFixture struct {
	repo   *mockRepository
	client *testutil.Client
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	repo := newMockRepository()
	handler := NewHandler(newTestService(repo))

	tokens := stubTokens{
		"admin": {domain.RoleAdmin, domain.RoleBasic},
		"basic": {domain.RoleBasic},
	}

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.AuthMiddleware(tokens))
		handler.RegisterRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(httputil.RequireRole(domain.RoleAdmin))
			handler.RegisterAdminRoutes(r)
		})
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	client := testutil.NewClientWithValidator(server.URL, testutil.NewOpenAPIValidator(t))
	client.SetT(t)
	client.Token = "basic"

	return &handlerFixture{repo: repo, client: client}
}

func (f *handlerFixture) seed(t *testing.T, title string, status domain.IncidentStatus, priority domain.IncidentPriority) *domain.Incident {
	t.Helper()
	inc := &domain.Incident{
		Title:            title,
		Priority:         priority,
		Status:           status,
		ResponsibleEmail: "oncall@example.com",
		CreatedAt:        fixedNow,
		UpdatedAt:        fixedNow,
	}
	require.NoError(t, f.repo.Create(context.Background(), inc))
	return inc
}

type incidentEnvelope struct {
	Data domain.Incident `json:"data"`
}

func TestHandler_Create(t *testing.T) {
	// Arrange
	f := newHandlerFixture(t)

	// Act
	resp, err := f.client.POST("/api/v1/incidents", map[string]any{
		"title":             "Payment gateway timeouts",
		"description":       "Checkout fails for some users",
		"priority":          "HIGH",
		"responsible_email": "payments@example.com",
		"tags":              []string{"Payments", "checkout"},
	})
	require.NoError(t, err)

	// Assert
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body incidentEnvelope
	testutil.DecodeJSON(t, resp, &body)
	assert.NotEmpty(t, body.Data.ID)
	assert.Equal(t, domain.IncidentStatusOpen, body.Data.Status)
	assert.Equal(t, []string{"checkout", "payments"}, body.Data.Tags)
	assert.Len(t, f.repo.incidents, 1)
}

func TestHandler_Create_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"short title", map[string]any{"title": "Bad", "priority": "LOW", "responsible_email": "a@example.com"}},
		{"unknown priority", map[string]any{"title": "Valid title", "priority": "URGENT", "responsible_email": "a@example.com"}},
		{"bad email", map[string]any{"title": "Valid title", "priority": "LOW", "responsible_email": "nope"}},
		{"missing fields", map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t)

			resp, err := f.client.WithoutValidation().POST("/api/v1/incidents", tt.body)
			require.NoError(t, err)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, testutil.ReadBody(t, resp), "validation error")
			assert.Empty(t, f.repo.incidents)
		})
	}
}

func TestHandler_Get(t *testing.T) {
	f := newHandlerFixture(t)
	inc := f.seed(t, "Disk almost full", domain.IncidentStatusOpen, domain.IncidentPriorityMedium)

	t.Run("found", func(t *testing.T) {
		resp, err := f.client.GET("/api/v1/incidents/" + inc.ID)
		require.NoError(t, err)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body incidentEnvelope
		testutil.DecodeJSON(t, resp, &body)
		assert.Equal(t, inc.ID, body.Data.ID)
		assert.Equal(t, "Disk almost full", body.Data.Title)
	})

	t.Run("not found", func(t *testing.T) {
		resp, err := f.client.GET("/api/v1/incidents/00000000-0000-0000-0000-999999999999")
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("malformed id", func(t *testing.T) {
		resp, err := f.client.GET("/api/v1/incidents/not-a-uuid")
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_ = resp.Body.Close()
	})
}

func TestHandler_List(t *testing.T) {
	f := newHandlerFixture(t)
	f.seed(t, "Database is down", domain.IncidentStatusOpen, domain.IncidentPriorityHigh)
	f.seed(t, "Slow dashboard", domain.IncidentStatusResolved, domain.IncidentPriorityLow)
	f.seed(t, "Database replica lag", domain.IncidentStatusInProgress, domain.IncidentPriorityMedium)

	tests := []struct {
		name      string
		query     string
		wantTotal int64
	}{
		{"all", "", 3},
		{"status filter", "?status=RESOLVED", 1},
		{"priority filter", "?priority=HIGH", 1},
		{"text search", "?q=database", 2},
		{"search with status", "?q=database&status=OPEN", 1},
		{"paged", "?page=1&size=2&sort=title,asc", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.client.GET("/api/v1/incidents" + tt.query)
			require.NoError(t, err)

			require.Equal(t, http.StatusOK, resp.StatusCode)
			var body struct {
				Data domain.Page[domain.Incident] `json:"data"`
			}
			testutil.DecodeJSON(t, resp, &body)
			assert.Equal(t, tt.wantTotal, body.Data.TotalElements)
		})
	}
}

func TestHandler_List_InvalidStatus(t *testing.T) {
	f := newHandlerFixture(t)

	resp, err := f.client.WithoutValidation().GET("/api/v1/incidents?status=BROKEN")
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestHandler_Update(t *testing.T) {
	// Arrange
	f := newHandlerFixture(t)
	inc := f.seed(t, "Disk almost full", domain.IncidentStatusOpen, domain.IncidentPriorityMedium)

	// Act
	resp, err := f.client.PUT("/api/v1/incidents/"+inc.ID, map[string]any{
		"title":             "Disk full on db-1",
		"priority":          "HIGH",
		"status":            "IN_PROGRESS",
		"responsible_email": "dba@example.com",
	})
	require.NoError(t, err)

	// Assert
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body incidentEnvelope
	testutil.DecodeJSON(t, resp, &body)
	assert.Equal(t, "Disk full on db-1", body.Data.Title)
	assert.Equal(t, domain.IncidentStatusInProgress, body.Data.Status)
	assert.Equal(t, "dba@example.com", f.repo.incidents[inc.ID].ResponsibleEmail)
}

func TestHandler_UpdateStatus(t *testing.T) {
	f := newHandlerFixture(t)
	inc := f.seed(t, "Disk almost full", domain.IncidentStatusOpen, domain.IncidentPriorityMedium)

	resp, err := f.client.PATCH("/api/v1/incidents/"+inc.ID+"/status", map[string]string{"status": "RESOLVED"})
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
	assert.Equal(t, domain.IncidentStatusResolved, f.repo.incidents[inc.ID].Status)
}

func TestHandler_Delete(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		wantStatus int
		wantKept   bool
	}{
		{"admin", "admin", http.StatusNoContent, false},
		{"basic user", "basic", http.StatusForbidden, true},
		{"anonymous", "", http.StatusUnauthorized, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			inc := f.seed(t, "Disk almost full", domain.IncidentStatusOpen, domain.IncidentPriorityMedium)
			f.client.Token = tt.token

			resp, err := f.client.DELETE("/api/v1/incidents/" + inc.ID)
			require.NoError(t, err)
			_ = resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			_, kept := f.repo.incidents[inc.ID]
			assert.Equal(t, tt.wantKept, kept)
		})
	}
}

func TestHandler_Stats(t *testing.T) {
	f := newHandlerFixture(t)
	f.seed(t, "Database is down", domain.IncidentStatusOpen, domain.IncidentPriorityHigh)
	f.seed(t, "Slow dashboard", domain.IncidentStatusOpen, domain.IncidentPriorityLow)

	for _, path := range []string{"/api/v1/stats", "/api/v1/stats/incidents"} {
		t.Run(path, func(t *testing.T) {
			resp, err := f.client.GET(path)
			require.NoError(t, err)

			require.Equal(t, http.StatusOK, resp.StatusCode)
			var body struct {
				Data domain.IncidentStats `json:"data"`
			}
			testutil.DecodeJSON(t, resp, &body)
			assert.Equal(t, int64(2), body.Data.Total)
			assert.Equal(t, int64(2), body.Data.ByStatus[domain.IncidentStatusOpen])
			assert.Equal(t, int64(1), body.Data.ByPriority[domain.IncidentPriorityHigh])
		})
	}
}
