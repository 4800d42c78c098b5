package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/pkg/httputil"
	"github.com/bissquit/incident-tracker/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sessionAuthenticator issues opaque tokens and remembers who they belong to.
type sessionAuthenticator struct {
	sessions map[string]*domain.User
}

func (a *sessionAuthenticator) GenerateToken(_ context.Context, user *domain.User) (*Token, error) {
	token := "token-" + user.ID
	copied := *user
	a.sessions[token] = &copied
	return &Token{AccessToken: token, TokenType: "Bearer", ExpiresIn: 300}, nil
}

func (a *sessionAuthenticator) ValidateAccessToken(_ context.Context, token string) (string, []domain.Role, error) {
	user, ok := a.sessions[token]
	if !ok {
		return "", nil, ErrInvalidToken
	}
	return user.ID, user.Roles, nil
}

type handlerFixture struct {
	repo    *mockRepository
	service *Service
	client  *testutil.Client
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	repo := newMockRepository()
	service := NewService(repo, &sessionAuthenticator{sessions: make(map[string]*domain.User)})
	handler := NewHandler(service)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		handler.RegisterRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(service))
			handler.RegisterProtectedRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleAdmin))
				handler.RegisterAdminRoutes(r)
			})
		})
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	client := testutil.NewClientWithValidator(server.URL, testutil.NewOpenAPIValidator(t))
	client.SetT(t)

	return &handlerFixture{repo: repo, service: service, client: client}
}

func (f *handlerFixture) createUser(t *testing.T, username, password string, roles ...string) *domain.User {
	t.Helper()
	user, err := f.service.CreateUser(context.Background(), CreateUserInput{
		Username: username,
		Password: password,
		Roles:    roles,
	})
	require.NoError(t, err)
	return user
}

type userEnvelope struct {
	Data domain.User `json:"data"`
}

func TestHandler_Register(t *testing.T) {
	// Arrange
	f := newHandlerFixture(t)

	// Act
	resp, err := f.client.POST("/api/v1/auth/register", map[string]string{
		"username": "analyst",
		"password": "secret1",
	})
	require.NoError(t, err)

	// Assert
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := testutil.ReadBody(t, resp)
	assert.Contains(t, body, `"username":"analyst"`)
	assert.Contains(t, body, `"roles":["BASIC"]`)
	assert.NotContains(t, body, "password")
}

func TestHandler_Register_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
	}{
		{"duplicate username", map[string]string{"username": "taken", "password": "secret1"}, http.StatusConflict},
		{"short password", map[string]string{"username": "fresh", "password": "123"}, http.StatusBadRequest},
		{"short username", map[string]string{"username": "ab", "password": "secret1"}, http.StatusBadRequest},
		{"multibyte password over 72 bytes", map[string]string{"username": "fresh", "password": strings.Repeat("é", 40)}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			f.createUser(t, "taken", "secret1")

			resp, err := f.client.WithoutValidation().POST("/api/v1/auth/register", tt.body)
			require.NoError(t, err)
			_ = resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestHandler_LoginAndMe(t *testing.T) {
	f := newHandlerFixture(t)
	user := f.createUser(t, "technician", "secret1")

	t.Run("wrong password", func(t *testing.T) {
		resp, err := f.client.POST("/api/v1/auth/login", map[string]string{
			"username": "technician",
			"password": "wrong",
		})
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("me without token", func(t *testing.T) {
		f.client.ClearToken()
		resp, err := f.client.GET("/api/v1/me")
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("login then me", func(t *testing.T) {
		f.client.LoginAs(t, "technician", "secret1")

		resp, err := f.client.GET("/api/v1/me")
		require.NoError(t, err)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body userEnvelope
		testutil.DecodeJSON(t, resp, &body)
		assert.Equal(t, user.ID, body.Data.ID)
		assert.Equal(t, "technician", body.Data.Username)
	})
}

func TestHandler_AdminRoutes_RequireAdmin(t *testing.T) {
	f := newHandlerFixture(t)
	f.createUser(t, "support", "secret1")
	f.client.LoginAs(t, "support", "secret1")

	resp, err := f.client.GET("/api/v1/users")
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandler_UserManagement(t *testing.T) {
	f := newHandlerFixture(t)
	f.createUser(t, "admin", "secret1", "ADMIN")
	f.client.LoginAs(t, "admin", "secret1")

	// create
	resp, err := f.client.POST("/api/v1/users", map[string]any{
		"username": "analyst",
		"password": "secret1",
		"roles":    []string{"BASIC", "ADMIN"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created userEnvelope
	testutil.DecodeJSON(t, resp, &created)
	assert.Equal(t, []domain.Role{domain.RoleBasic, domain.RoleAdmin}, created.Data.Roles)

	// list
	resp, err = f.client.GET("/api/v1/users?page=0&size=10&sort=username")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page struct {
		Data domain.Page[domain.User] `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &page)
	assert.Equal(t, int64(2), page.Data.TotalElements)

	// search
	resp, err = f.client.GET("/api/v1/users/search?username=analyst")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var found userEnvelope
	testutil.DecodeJSON(t, resp, &found)
	assert.Equal(t, created.Data.ID, found.Data.ID)

	// update
	resp, err = f.client.PUT("/api/v1/users/"+created.Data.ID, map[string]any{
		"username": "lead-analyst",
		"roles":    []string{"BASIC"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated userEnvelope
	testutil.DecodeJSON(t, resp, &updated)
	assert.Equal(t, "lead-analyst", updated.Data.Username)
	assert.Equal(t, []domain.Role{domain.RoleBasic}, updated.Data.Roles)

	// delete
	resp, err = f.client.DELETE("/api/v1/users/" + created.Data.ID)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotContains(t, f.repo.users, created.Data.ID)

	// gone
	resp, err = f.client.GET("/api/v1/users/" + created.Data.ID)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
