// Package middleware holds the HTTP middleware chain: authentication,
// rate limiting, request logging, metrics, and panic recovery.
package middleware

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/apperr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/httputil"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/logging"
)

type contextKey string

const userContextKey contextKey = "authenticated_user"

// UserLoader resolves an authenticated principal to an agent record.
type UserLoader interface {
	Get(ctx context.Context, id string) (agent.User, error)
}

// UserFromContext returns the authenticated agent, if any.
func UserFromContext(ctx context.Context) (agent.User, bool) {
	u, ok := ctx.Value(userContextKey).(agent.User)
	return u, ok
}

// WithUser injects an agent into the context, for tests and internal
// calls.
func WithUser(ctx context.Context, u agent.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// Auth validates the bearer token as an HS256 JWT signed with the auth
// provider's secret, loads the agent it identifies, and stores it in
// the request context.
func Auth(secret string, users UserLoader, log *logging.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logging.NewDefault("auth")
	}
	keyFunc := func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				httputil.WriteError(w, apperr.Unauthorized("missing bearer token"))
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, keyFunc,
				jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				httputil.WriteError(w, apperr.Unauthorized("invalid token"))
				return
			}
			sub, err := claims.GetSubject()
			if err != nil || sub == "" {
				httputil.WriteError(w, apperr.Unauthorized("token missing subject"))
				return
			}

			user, err := users.Get(r.Context(), sub)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					httputil.WriteError(w, apperr.Unauthorized("unknown user"))
					return
				}
				log.WithError(err).Error("loading authenticated user")
				httputil.WriteError(w, apperr.Internal("could not load user"))
				return
			}
			if user.Status != "" && user.Status != "active" {
				httputil.WriteError(w, apperr.Forbidden("account is not active"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
