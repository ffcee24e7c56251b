package engine

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexiath/sovera/internal/ratelimit"
	"github.com/nexiath/sovera/internal/realtime"
	"github.com/nexiath/sovera/internal/rows"
	"github.com/nexiath/sovera/internal/schema"
	"github.com/nexiath/sovera/internal/store"
	"github.com/nexiath/sovera/pkg/health"
	"github.com/nexiath/sovera/pkg/logger"
)

func testServer(t *testing.T) (*Server, *Authenticator) {
	t.Helper()
	log := logger.New("engine-test", "dev")
	auth := NewAuthenticator("test-secret")
	hub := realtime.NewHub(log)

	api := New(Config{
		Logger:  log,
		Hub:     hub,
		Limiter: ratelimit.New(nil, log),
		Auth:    auth,
		Health:  health.NewChecker(),
	})
	return NewServer(api, 0), auth
}

func TestAuthenticatorTokenRoundTrip(t *testing.T) {
	auth := NewAuthenticator("secret")

	token, err := auth.IssueToken(42, time.Hour)
	require.NoError(t, err)

	userID, err := auth.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestAuthenticatorRejections(t *testing.T) {
	auth := NewAuthenticator("secret")

	t.Run("wrong secret", func(t *testing.T) {
		other := NewAuthenticator("other-secret")
		token, err := other.IssueToken(1, time.Hour)
		require.NoError(t, err)

		_, err = auth.VerifyToken(token)
		assert.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := auth.IssueToken(1, -time.Minute)
		require.NoError(t, err)

		_, err = auth.VerifyToken(token)
		assert.Error(t, err)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := auth.VerifyToken("not.a.token")
		assert.Error(t, err)
	})
}

func TestTokenFromRequest(t *testing.T) {
	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer abc")
		assert.Equal(t, "abc", tokenFromRequest(r))
	})

	t.Run("raw header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "abc")
		assert.Equal(t, "abc", tokenFromRequest(r))
	})

	t.Run("query parameter fallback", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/?token=xyz", nil)
		assert.Equal(t, "xyz", tokenFromRequest(r))
	})

	t.Run("header wins over query", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/?token=xyz", nil)
		r.Header.Set("Authorization", "Bearer abc")
		assert.Equal(t, "abc", tokenFromRequest(r))
	})
}

func TestAuthMiddleware(t *testing.T) {
	server, _ := testServer(t)
	router := server.Router()

	t.Run("missing token is unauthorized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "missing_token", body.Error)
		assert.Equal(t, http.StatusUnauthorized, body.Status)
	})

	t.Run("invalid token is unauthorized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
		req.Header.Set("Authorization", "Bearer bogus")
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("health needs no token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	server, _ := testServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/projects", nil)
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := testServer(t)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["last_healthy"])
}

func TestWSStats(t *testing.T) {
	server, _ := testServer(t)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/ws/stats?project_id=9", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, float64(9), body["project_id"])
}

func TestWriteDomainError(t *testing.T) {
	log := logger.New("engine-test", "dev")
	log.DisableConsoleOutput()
	api := New(Config{Logger: log})

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &schema.ValidationError{Field: "table", Message: "bad"}, http.StatusBadRequest, "validation_failed"},
		{"table exists", &schema.TableExistsError{Table: "t"}, http.StatusConflict, "table_exists"},
		{"table not found", &schema.TableNotFoundError{Table: "t"}, http.StatusNotFound, "table_not_found"},
		{"unknown columns", &rows.UnknownColumnError{Table: "t", Columns: []string{"x"}}, http.StatusBadRequest, "unknown_columns"},
		{"missing columns", &rows.MissingColumnsError{Table: "t", Columns: []string{"x"}}, http.StatusBadRequest, "missing_columns"},
		{"coercion", &rows.CoercionError{Column: "c", DataType: "integer", Value: "x"}, http.StatusBadRequest, "invalid_value"},
		{"row not found", &rows.RowNotFoundError{Table: "t", Key: 1}, http.StatusNotFound, "row_not_found"},
		{"no primary key", &rows.NoPrimaryKeyError{Table: "t"}, http.StatusBadRequest, "no_primary_key"},
		{"project not found", store.ErrProjectNotFound, http.StatusNotFound, "project_not_found"},
		{"user not found", store.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
		{"duplicate member", store.ErrDuplicateMember, http.StatusConflict, "duplicate_member"},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			api.writeDomainError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Error)
			assert.Equal(t, tt.wantStatus, body.Status)
		})
	}

	t.Run("internal errors are logged but never leak details", func(t *testing.T) {
		entries := log.Subscribe()
		rec := httptest.NewRecorder()
		api.writeDomainError(rec, errors.New("password=hunter2"))

		assert.NotContains(t, rec.Body.String(), "hunter2")

		select {
		case entry := <-entries:
			assert.Equal(t, "ERROR", entry.Level)
			assert.Contains(t, entry.Message, "password=hunter2")
		default:
			t.Fatal("expected the internal error to be logged")
		}
	})
}
