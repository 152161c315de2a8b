package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleanplate/pkg/requestcontext"
)

func serve(t *testing.T, header string) (seen string, echoed string) {
	t.Helper()
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(Header, header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return seen, rec.Header().Get(Header)
}

func TestMiddleware(t *testing.T) {
	t.Run("inbound id is kept", func(t *testing.T) {
		seen, echoed := serve(t, "req-123")
		assert.Equal(t, "req-123", seen)
		assert.Equal(t, "req-123", echoed)
	})

	t.Run("missing id is generated", func(t *testing.T) {
		seen, echoed := serve(t, "")
		_, err := uuid.Parse(seen)
		require.NoError(t, err)
		assert.Equal(t, seen, echoed)
	})

	t.Run("oversized id is replaced", func(t *testing.T) {
		seen, _ := serve(t, strings.Repeat("x", maxLength+1))
		_, err := uuid.Parse(seen)
		assert.NoError(t, err)
	})
}
