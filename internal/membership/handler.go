package membership

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-authz/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-authz/gatehouse/internal/shared"
)

// Handler exposes membership management endpoints.
type Handler struct {
	logger   *slog.Logger
	resolver *Resolver
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver) *Handler {
	return &Handler{logger: logger, resolver: resolver, validate: validator.New()}
}

// MountRoutes registers membership routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{teamID}/members", h.list)
	r.Get("/{teamID}/members/{userID}", h.get)
	r.Put("/{teamID}/members/{userID}", h.assign)
	r.Delete("/{teamID}/members/{userID}", h.remove)
	r.Post("/{teamID}/owner", h.transferOwnership)
}

type assignRequest struct {
	Role    string `json:"role" validate:"required"`
	ActorID string `json:"actorId"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))

	members, pagination, err := h.resolver.ListForTeam(r.Context(), teamID, page, perPage)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"members":    members,
		"pagination": pagination,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	m, err := h.resolver.Get(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "teamID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	userID := chi.URLParam(r, "userID")
	teamID := chi.URLParam(r, "teamID")

	var (
		m   Membership
		err error
	)
	if req.ActorID == "" {
		m, err = h.resolver.Assign(r.Context(), userID, teamID, req.Role)
	} else {
		m, err = h.resolver.ChangeRole(r.Context(), req.ActorID, userID, teamID, req.Role)
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	actorID := r.URL.Query().Get("actorId")
	if actorID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "actorId query parameter required")
		return
	}
	err := h.resolver.Remove(r.Context(), actorID, chi.URLParam(r, "userID"), chi.URLParam(r, "teamID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transferRequest struct {
	ActorID string `json:"actorId" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
}

func (h *Handler) transferOwnership(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.resolver.TransferOwnership(r.Context(), req.ActorID, req.UserID, chi.URLParam(r, "teamID")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNoMembership):
		httpx.Problem(w, http.StatusNotFound, "Not A Member", err.Error())
	case errors.Is(err, ErrUnknownRole):
		httpx.Problem(w, http.StatusBadRequest, "Unknown Role", err.Error())
	case errors.Is(err, ErrRankForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrUnavailable):
		httpx.Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "membership state could not be determined")
	default:
		h.logger.Error("membership request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
