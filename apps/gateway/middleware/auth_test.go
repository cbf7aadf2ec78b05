//nolint:testpackage // Tests require access to internal fields and mock authenticator
package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pitabwire/frame/security"
	"github.com/stretchr/testify/assert"
)

// mockAuthenticator is a mock implementation of security.Authenticator.
type mockAuthenticator struct {
	authenticateFunc func(ctx context.Context, token string, options ...security.AuthOption) (context.Context, error)
}

func (m *mockAuthenticator) Authenticate(
	ctx context.Context,
	token string,
	options ...security.AuthOption,
) (context.Context, error) {
	if m.authenticateFunc != nil {
		return m.authenticateFunc(ctx, token, options...)
	}
	return ctx, nil
}

func TestAuthMiddleware_MissingAuthHeader(t *testing.T) {
	middleware := NewAuthMiddleware(&mockAuthenticator{})

	handler := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("handler should not be called")
	})
	wrapped := middleware.Middleware(handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Missing authorization header")
	assert.Equal(t, `Bearer realm="remediation-gateway"`, rr.Header().Get("WWW-Authenticate"))
}

func TestAuthMiddleware_InvalidAuthHeaderFormat(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
	}{
		{"no space", "Bearertoken123"},
		{"wrong scheme", "Basic token123"},
		{"empty token", "Bearer "},
		{"only scheme", "Bearer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware := NewAuthMiddleware(&mockAuthenticator{})

			handler := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
				t.Error("handler should not be called")
			})
			wrapped := middleware.Middleware(handler)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set("Authorization", tt.authHeader)
			rr := httptest.NewRecorder()
			wrapped.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	auth := &mockAuthenticator{
		authenticateFunc: func(_ context.Context, _ string, _ ...security.AuthOption) (context.Context, error) {
			return nil, errors.New("token expired")
		},
	}
	middleware := NewAuthMiddleware(auth)

	handler := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("handler should not be called")
	})
	wrapped := middleware.Middleware(handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid or expired token")
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	called := false
	auth := &mockAuthenticator{
		authenticateFunc: func(ctx context.Context, token string, _ ...security.AuthOption) (context.Context, error) {
			assert.Equal(t, "good-token", token)
			return ctx, nil
		},
	}
	middleware := NewAuthMiddleware(auth)

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	wrapped := middleware.Middleware(handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rr.Code)
}
