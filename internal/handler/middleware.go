package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/qzwhatnext/engine/internal/store"
)

// contextKey is used for context values
type contextKey string

const userIDKey contextKey = "userID"

// UserIDFromContext extracts the user ID the auth middleware resolved.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	return userID, ok
}

// AuthMiddleware validates a bearer token — either a JWT or an
// automation token (the "qz_" prefix, per the add_smart ingestion path) —
// and adds the resolved user ID to the request context. An absent or
// unparseable token leaves the context untouched; route handlers that
// require a caller reject the request themselves.
func AuthMiddleware(jwtSvc *JWTService, tokens *store.AutomationTokenStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				next.ServeHTTP(w, r)
				return
			}

			token := parts[1]
			var userID uuid.UUID
			var err error

			if strings.HasPrefix(token, "qz_") && tokens != nil {
				userID, err = tokens.ValidateAndGetUserID(r.Context(), token)
			} else {
				userID, err = jwtSvc.ValidateToken(token)
			}

			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireUser resolves the authenticated caller and checks it matches the
// {userID} path parameter, so a valid token for one user can never read or
// trigger a rebuild for another.
func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	callerID, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return uuid.Nil, false
	}

	pathID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return uuid.Nil, false
	}

	if callerID != pathID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return uuid.Nil, false
	}

	return pathID, true
}
