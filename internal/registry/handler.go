package registry

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse-authz/gatehouse/internal/platform/httpx"
)

// Handler exposes the composed registry read-only over HTTP. The registry is
// fixed after startup, so every endpoint here is a pure lookup.
type Handler struct {
	reg *Registry
}

// NewHandler builds Handler instance.
func NewHandler(reg *Registry) *Handler {
	return &Handler{reg: reg}
}

// MountRoutes registers registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/entities", h.listEntities)
	r.Get("/entities/menu", h.menuEntities)
	r.Get("/entities/{slug}", h.getEntity)
	r.Get("/entities/{slug}/children", h.childEntities)
	r.Get("/permissions", h.listPermissions)
	r.Get("/roles/{set}", h.listRoles)
}

func (h *Handler) listEntities(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"entities": h.reg.Entities()})
}

func (h *Handler) menuEntities(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"entities": h.reg.MenuEntities()})
}

func (h *Handler) getEntity(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	e, ok := h.reg.Entity(slug)
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Unknown Entity", "no entity with slug "+slug)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) childEntities(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if _, ok := h.reg.Entity(slug); !ok {
		httpx.Problem(w, http.StatusNotFound, "Unknown Entity", "no entity with slug "+slug)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entities": h.reg.ChildEntities(slug)})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": h.reg.Permissions()})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	set := RoleSet(chi.URLParam(r, "set"))
	if set != RoleSetTeam && set != RoleSetSystem {
		httpx.Problem(w, http.StatusNotFound, "Unknown Role Set", "role set must be team or system")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": h.reg.Roles(set)})
}
