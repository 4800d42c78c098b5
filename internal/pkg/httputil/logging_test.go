package httputil

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := chi.NewRouter()
	r.Use(RequestLoggerMiddleware(logger))
	r.Use(AuthMiddleware(fakeValidator{"good": {domain.RoleBasic}}))
	r.Get("/api/v1/incidents/{id}", func(w http.ResponseWriter, _ *http.Request) {
		Error(w, http.StatusNotFound, "incident not found")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents/abc", nil)
	req.Header.Set("Authorization", "Bearer good")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "/api/v1/incidents/{id}", entry["route"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
	assert.Equal(t, "id-good", entry["user_id"])
}

func TestAccessLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/api/v1/incidents", http.StatusOK, slog.LevelInfo},
		{"/healthz", http.StatusOK, slog.LevelDebug},
		{"/readyz", http.StatusServiceUnavailable, slog.LevelError},
		{"/api/v1/auth/login", http.StatusUnauthorized, slog.LevelWarn},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, accessLevel(tt.path, tt.status), "%s %d", tt.path, tt.status)
	}
}
