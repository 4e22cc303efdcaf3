package access

import (
	"errors"
	"net/http"

	"github.com/gatehouse-authz/gatehouse/internal/billing"
	"github.com/gatehouse-authz/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-authz/gatehouse/internal/shared"
)

// SubjectHeaderUser and SubjectHeaderTeam carry the end-user identity that a
// trusted upstream resolved before proxying the request here.
const (
	SubjectHeaderUser = "X-User-ID"
	SubjectHeaderTeam = "X-Team-ID"
)

// denyResponse is the body a guarded route answers on 403. UI translation
// keys index on reason, so the shape stays stable.
type denyResponse struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Reason  Reason         `json:"reason"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Require guards a route behind a permission. The subject comes from the
// identity headers set by the caller; a missing subject is a client error,
// not a deny. Denials answer 403 with the reason and metadata so the caller
// can surface an actionable message. An undetermined answer is 503, never a
// silent allow.
func (e *Engine) Require(permissionKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(SubjectHeaderUser)
			teamID := r.Header.Get(SubjectHeaderTeam)
			if userID == "" || teamID == "" {
				httpx.Problem(w, http.StatusBadRequest, "Missing Subject",
					"X-User-ID and X-Team-ID headers are required")
				return
			}

			mode := billing.ModeConsume
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				mode = billing.ModeView
			}
			decision, err := e.Evaluate(r.Context(), userID, teamID, permissionKey, &Options{Mode: mode})
			if err != nil {
				if errors.Is(err, shared.ErrUnavailable) {
					httpx.Problem(w, http.StatusServiceUnavailable, "Undetermined",
						"access could not be determined, retry later")
					return
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !decision.Allowed {
				httpx.JSON(w, http.StatusForbidden, denyResponse{
					Error:  decision.Message,
					Reason: decision.Reason,
					Meta:   decision.Meta,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
