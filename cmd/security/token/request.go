package token

import (
	"net/http"
	"strings"
)

// FromRequest returns the bearer token of r: the Authorization header first,
// then the access_token query parameter (browsers cannot set headers on a
// websocket handshake).
func FromRequest(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		scheme, rest, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(rest)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
