package access

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-authz/gatehouse/internal/billing"
	"github.com/gatehouse-authz/gatehouse/internal/observability"
	"github.com/gatehouse-authz/gatehouse/internal/shared"
)

type recordingAuditor struct {
	logs []shared.DecisionLog
}

func (a *recordingAuditor) Record(ctx context.Context, log shared.DecisionLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestHandler(t *testing.T, e *Engine, auditor Auditor) http.Handler {
	t.Helper()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), e, auditor, observability.NewMetrics())
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestEvaluateEndpointReturnsDecision(t *testing.T) {
	bill := &mockBilling{quota: billing.QuotaCheck{Allowed: false, Used: 10, Limit: 10}}
	e := newTestEngine(t, &mockMemberships{roles: map[string]string{"u1|t1": "owner"}}, bill)
	auditor := &recordingAuditor{}
	srv := newTestHandler(t, e, auditor)

	body := `{"userId": "u1", "teamId": "t1", "permission": "tasks.create"}`
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader(body)))

	// Denials are successful evaluations, not HTTP errors.
	require.Equal(t, http.StatusOK, rec.Code)
	var d Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonQuotaExceeded, d.Reason)

	require.Len(t, auditor.logs, 1)
	assert.Equal(t, "tasks.create", auditor.logs[0].Permission)
	assert.Equal(t, string(ReasonQuotaExceeded), auditor.logs[0].Reason)
}

func TestEvaluateEndpointValidatesPayload(t *testing.T) {
	e := newTestEngine(t, &mockMemberships{}, &mockBilling{})
	srv := newTestHandler(t, e, &recordingAuditor{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/evaluate",
		strings.NewReader(`{"userId": "u1"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateEndpointMapsUnavailableTo503(t *testing.T) {
	e := newTestEngine(t, &mockMemberships{err: shared.Unavailable(errors.New("down"))}, &mockBilling{})
	srv := newTestHandler(t, e, &recordingAuditor{})

	body := `{"userId": "u1", "teamId": "t1", "permission": "tasks.create"}`
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader(body)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEvaluateAllEndpoint(t *testing.T) {
	bill := &mockBilling{quota: billing.QuotaCheck{Allowed: true}}
	e := newTestEngine(t, &mockMemberships{roles: map[string]string{"u1|t1": "viewer"}}, bill)
	auditor := &recordingAuditor{}
	srv := newTestHandler(t, e, auditor)

	body := `{"userId": "u1", "teamId": "t1", "permissions": ["pages.read", "teams.delete"]}`
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/evaluate-all", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Decisions map[string]Decision `json:"decisions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Decisions["pages.read"].Allowed)
	assert.False(t, resp.Decisions["teams.delete"].Allowed)
	assert.Empty(t, auditor.logs, "bulk lookups are not audited")
}

func TestRequireMiddleware(t *testing.T) {
	bill := &mockBilling{quota: billing.QuotaCheck{Allowed: true}}
	e := newTestEngine(t, &mockMemberships{roles: map[string]string{"u1|t1": "owner"}}, bill)

	r := chi.NewRouter()
	r.With(e.Require("tasks.create")).Post("/tasks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	// Missing identity headers are a client error.
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/tasks", nil)
	req.Header.Set(SubjectHeaderUser, "u1")
	req.Header.Set(SubjectHeaderTeam, "t1")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, billing.ModeConsume, bill.lastMode, "mutations consume quota")

	req = httptest.NewRequest(http.MethodPost, "/tasks", nil)
	req.Header.Set(SubjectHeaderUser, "outsider")
	req.Header.Set(SubjectHeaderTeam, "t1")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var denied struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Reason  Reason `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &denied))
	assert.False(t, denied.Success)
	assert.Equal(t, ReasonNotAMember, denied.Reason)
	assert.NotEmpty(t, denied.Error)
}
