// Package requesttime pins one "now" per HTTP request so every status
// resolved while serving it agrees on the current day.
package requesttime

import (
	"net/http"
	"time"

	"cleanplate/pkg/requestcontext"
)

// Middleware stores the request start time for requestcontext.Now.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
