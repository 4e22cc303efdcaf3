package auth

import (
	"net/http"
	"strings"

	"github.com/gatehouse-authz/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-authz/gatehouse/internal/shared"
)

// Middleware authenticates API requests with a bearer token and stores the
// client identity in the request context. The billing webhook is mounted
// outside this middleware: the provider signs payloads instead of holding a
// token.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenStr := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if tokenStr == "" || tokenStr == header {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}
		client, err := s.Verify(tokenStr)
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithClient(r.Context(), client)))
	})
}
