// Package requestid carries an inbound X-Request-ID through to outbound
// lookup calls.
package requestid

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"cleanplate/pkg/requestcontext"
)

// Header is the request ID header name used in both directions.
const Header = "X-Request-ID"

const maxLength = 128

// Middleware stores the inbound request ID, or a new one, in the context and
// echoes it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(Header))
		if id == "" || len(id) > maxLength {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), id)))
	})
}
