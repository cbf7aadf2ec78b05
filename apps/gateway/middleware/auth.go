package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/pitabwire/frame/security"
	"github.com/pitabwire/util"
)

const (
	// authHeaderParts is the number of parts in a valid Authorization header.
	authHeaderParts = 2
	// bearerScheme is the authentication scheme for Bearer tokens.
	bearerScheme = "bearer"
)

// AuthMiddleware validates bearer tokens on operator-facing endpoints.
type AuthMiddleware struct {
	authenticator security.Authenticator
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(authenticator security.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
	}
}

// Middleware creates an HTTP middleware that requires authentication.
func (am *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := util.Log(ctx)

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			log.Debug("missing authorization header")
			am.unauthorized(w, "Missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", authHeaderParts)
		if len(parts) != authHeaderParts || !strings.EqualFold(parts[0], bearerScheme) {
			log.Debug("invalid authorization header format")
			am.unauthorized(w, "Invalid authorization header format. Expected: Bearer <token>")
			return
		}

		token := parts[1]
		if token == "" {
			log.Debug("empty token")
			am.unauthorized(w, "Empty token")
			return
		}

		authCtx, err := am.authenticator.Authenticate(ctx, token)
		if err != nil {
			log.Debug("token validation failed", "error", err.Error())
			am.unauthorized(w, "Invalid or expired token")
			return
		}

		claims := security.ClaimsFromContext(authCtx)
		operatorID := ""
		if claims != nil {
			operatorID, _ = claims.GetSubject()
		}

		log.Info("authenticated request",
			"operator_id", operatorID,
			"path", r.URL.Path,
		)

		next.ServeHTTP(w, r.WithContext(authCtx))
	})
}

// unauthorized writes an unauthorized response.
func (am *AuthMiddleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="remediation-gateway"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"` + message + `"}`))
}

// GetOperatorFromContext retrieves authenticated operator claims.
func GetOperatorFromContext(ctx context.Context) *security.AuthenticationClaims {
	return security.ClaimsFromContext(ctx)
}
