package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"petlink/cmd/security/token"
)

// DevUserHeader carries the caller's user id when authentication is off.
const DevUserHeader = "X-User-ID"

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	UserID(raw string) (int64, error)
}

type userIDKey struct{}

// UserID returns the authenticated caller stored by the auth middleware.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	return id, ok && id > 0
}

func withUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// requireUser rejects requests without a valid caller. A nil auth trusts
// DevUserHeader.
func requireUser(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				id  int64
				err error
			)
			if auth == nil {
				id, err = strconv.ParseInt(strings.TrimSpace(r.Header.Get(DevUserHeader)), 10, 64)
				if err == nil && id <= 0 {
					err = token.ErrTokenInvalid
				}
			} else {
				raw := token.FromRequest(r)
				if raw == "" {
					writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
					return
				}
				id, err = auth.UserID(raw)
			}
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
				return
			}
			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), id)))
		})
	}
}
