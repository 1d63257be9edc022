package middlewares

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/postmesh/internal/http/errors"
)

// HeaderUserID carries the subject authenticated by the gateway in front of the services.
const HeaderUserID = "X-User-Id"

// RequireUser rejects requests without an X-User-Id header with 401 and stores the
// subject in the context otherwise.
func RequireUser() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if uid == "" {
				errors.WriteError(w, errors.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uid)))
		})
	}
}
