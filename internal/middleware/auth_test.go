package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nadmax/bordo/internal/auth"
	"github.com/nadmax/bordo/internal/repository/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	sessions map[string]*auth.Session
	err      error
	tokens   []string
}

func (f *fakeSessions) Session(ctx context.Context, token string) (*auth.Session, error) {
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return nil, f.err
	}

	s, ok := f.sessions[token]
	if !ok {
		return nil, auth.ErrInvalidSession
	}

	return s, nil
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]*auth.Session{
		"good-token": {Token: "good-token", User: &models.User{ID: "user-1", Email: "ana@example.com"}},
	}}
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := auth.RequireUser(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(user.ID))
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"bearer header", "Bearer abc", "", "abc"},
		{"lowercase scheme", "bearer abc", "", "abc"},
		{"basic scheme", "Basic abc", "", ""},
		{"query fallback", "", "access_token=xyz", "xyz"},
		{"header wins", "Bearer abc", "access_token=xyz", "abc"},
		{"nothing", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/realtime?"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			assert.Equal(t, tt.want, BearerToken(req))
		})
	}
}

func TestRequireAuth(t *testing.T) {
	sessions := newFakeSessions()
	handler := RequireAuth(sessions)(echoUser())

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())
	assert.Equal(t, []string{"good-token"}, sessions.tokens)
}

func TestRequireAuth_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing token", ""},
		{"unknown token", "Bearer stale-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireAuth(newFakeSessions())(echoUser())

			req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestRequireAuth_StoreFailure(t *testing.T) {
	sessions := newFakeSessions()
	sessions.err = errors.New("redis: connection refused")
	handler := RequireAuth(sessions)(echoUser())

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
