package access

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-authz/gatehouse/internal/billing"
	"github.com/gatehouse-authz/gatehouse/internal/observability"
	"github.com/gatehouse-authz/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-authz/gatehouse/internal/shared"
)

// Auditor persists evaluated decisions for later review.
type Auditor interface {
	Record(ctx context.Context, log shared.DecisionLog) error
}

// Handler exposes the decision endpoints consumed by product services.
type Handler struct {
	logger   *slog.Logger
	engine   *Engine
	auditor  Auditor
	metrics  *observability.Metrics
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine, auditor Auditor, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:   logger,
		engine:   engine,
		auditor:  auditor,
		metrics:  metrics,
		validate: validator.New(),
	}
}

// MountRoutes registers decision routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/evaluate", h.evaluate)
	r.Post("/evaluate-all", h.evaluateAll)
}

type evaluateRequest struct {
	UserID     string `json:"userId" validate:"required"`
	TeamID     string `json:"teamId" validate:"required"`
	Permission string `json:"permission" validate:"required"`
	Mode       string `json:"mode" validate:"omitempty,oneof=consume view"`
}

type evaluateAllRequest struct {
	UserID      string   `json:"userId" validate:"required"`
	TeamID      string   `json:"teamId" validate:"required"`
	Permissions []string `json:"permissions" validate:"required,min=1,max=100"`
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	opts := &Options{Mode: parseMode(req.Mode)}
	decision, err := h.engine.Evaluate(r.Context(), req.UserID, req.TeamID, req.Permission, opts)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.record(r, req.UserID, req.TeamID, req.Permission, decision)
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *Handler) evaluateAll(w http.ResponseWriter, r *http.Request) {
	var req evaluateAllRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	decisions, err := h.engine.EvaluateAll(r.Context(), req.UserID, req.TeamID, req.Permissions)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	// Bulk lookups feed UI guards, not actions, so they are counted but not
	// written to the audit trail.
	for key, d := range decisions {
		h.metrics.RecordDecision(key, string(d.Reason))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"decisions": decisions})
}

func (h *Handler) record(r *http.Request, userID, teamID, permission string, decision Decision) {
	h.metrics.RecordDecision(permission, string(decision.Reason))
	if h.auditor == nil {
		return
	}
	var clientID string
	if client := shared.ClientFromContext(r.Context()); client != nil {
		clientID = client.ID
	}
	log := shared.DecisionLog{
		ClientID:   clientID,
		UserID:     userID,
		TeamID:     teamID,
		Permission: permission,
		Allowed:    decision.Allowed,
		Reason:     string(decision.Reason),
		Meta:       decision.Meta,
		At:         time.Now().UTC(),
	}
	// Detached from the request context so a client disconnect cannot lose
	// the audit record of a decision that was already served.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
	defer cancel()
	if err := h.auditor.Record(ctx, log); err != nil {
		h.logger.Warn("decision audit write failed",
			slog.String("permission", permission), slog.Any("error", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrUnavailable):
		httpx.Problem(w, http.StatusServiceUnavailable, "Undetermined",
			"access could not be determined, retry later")
	default:
		h.logger.Error("evaluation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseMode(s string) billing.Mode {
	if s == "view" {
		return billing.ModeView
	}
	return billing.ModeConsume
}
