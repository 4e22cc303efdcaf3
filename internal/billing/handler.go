package billing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-authz/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-authz/gatehouse/internal/shared"
)

const signatureHeader = "X-Billing-Signature"

// Handler exposes billing state and usage tracking endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	webhooks *WebhookProcessor
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, webhooks *WebhookProcessor) *Handler {
	return &Handler{logger: logger, service: service, webhooks: webhooks, validate: validator.New()}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/teams/{teamID}/subscription", h.subscription)
	r.Get("/teams/{teamID}/quotas/{limitSlug}", h.quota)
	r.Post("/usage", h.track)
}

// MountWebhook registers the provider webhook separately so the router can
// exempt it from client authentication; the HMAC signature is its auth.
func (h *Handler) MountWebhook(r chi.Router) {
	r.Post("/webhook", h.webhook)
}

func (h *Handler) subscription(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	sub, err := h.service.ActiveSubscription(r.Context(), teamID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	plan, _, planErr := h.service.PlanFor(r.Context(), teamID)
	if planErr != nil {
		h.respondError(w, r, shared.Unavailable(planErr))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"subscription": sub,
		"plan":         plan,
	})
}

func (h *Handler) quota(w http.ResponseWriter, r *http.Request) {
	mode := ModeView
	if r.URL.Query().Get("mode") == string(ModeConsume) {
		mode = ModeConsume
	}
	check, err := h.service.CheckQuota(r.Context(), chi.URLParam(r, "teamID"), chi.URLParam(r, "limitSlug"), mode)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, check)
}

func (h *Handler) track(w http.ResponseWriter, r *http.Request) {
	var event UsageEvent
	if err := httpx.DecodeJSON(r, &event); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(event); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	record, err := h.service.Track(r.Context(), event)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	status := http.StatusCreated
	if record.Duplicate {
		status = http.StatusOK
	}
	httpx.JSON(w, status, record)
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "unable to read body")
		return
	}
	err = h.webhooks.Process(r.Context(), payload, r.Header.Get(signatureHeader))
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, map[string]any{"received": true})
	case errors.Is(err, ErrReplayedEvent):
		httpx.JSON(w, http.StatusOK, map[string]any{"received": true, "replay": true})
	case errors.Is(err, ErrBadSignature):
		httpx.Problem(w, http.StatusUnauthorized, "Invalid Signature", "")
	case errors.Is(err, shared.ErrUnavailable):
		// Provider retries on 5xx, which is what we want here.
		httpx.Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "")
	default:
		httpx.Problem(w, http.StatusBadRequest, "Invalid Event", err.Error())
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidEvent):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrUnavailable):
		httpx.Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "billing state could not be determined")
	default:
		h.logger.Error("billing request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
