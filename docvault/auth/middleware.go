package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"docvault/docvault/schema"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type requestContextKey string

const userRequestContextKey requestContextKey = "user"

// Middleware returns the middleware chain for authenticated routes: token
// verification, authentication, loading the account bound to the token into
// the request context, and audit logging. Soft-deleted accounts are rejected
// with 401 so that stale tokens lose access the moment an account is deleted.
func Middleware(jwtManager *JwtManager, db *gorm.DB, auditLog AuditLogger) chi.Middlewares {
	return chi.Middlewares{jwtManager.Verifier(), jwtManager.Authenticator(), addUserToContext(db), auditLog.Middleware}
}

func addUserToContext(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			userId, err := UserIdFromClaims(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			user, err := schema.GetUser(userId, db)
			if err != nil {
				if errors.Is(err, schema.ErrUserNotFound) {
					http.Error(w, err.Error(), http.StatusUnauthorized)
					return
				}
				http.Error(w, fmt.Sprintf("unable to find user %v: %v", userId, err), http.StatusInternalServerError)
				return
			}

			reqCtx := r.Context()
			reqCtx = context.WithValue(reqCtx, userRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}

func UserFromContext(r *http.Request) (schema.User, error) {
	userUntyped := r.Context().Value(userRequestContextKey)
	if userUntyped == nil {
		return schema.User{}, fmt.Errorf("user field not found in request context")
	}
	user, ok := userUntyped.(schema.User)
	if !ok {
		return schema.User{}, fmt.Errorf("invalid value for user field")
	}
	return user, nil
}
