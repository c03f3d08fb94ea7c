// internal/app/features/groups/handler.go
package groups

import (
	"context"
	"net/http"

	"github.com/dalemusser/stratacomm/internal/app/fabric"
	"github.com/dalemusser/stratacomm/internal/app/features/shared"
	"github.com/dalemusser/stratacomm/internal/app/system/timeouts"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves group creation, lookup and membership changes. Every
// membership change goes through the fabric so the per-group admin role
// stays in step with the admin list.
type Handler struct {
	Fabric *fabric.Fabric
	Log    *zap.Logger
}

func NewHandler(f *fabric.Fabric, logger *zap.Logger) *Handler {
	return &Handler{Fabric: f, Log: logger}
}

type createRequest struct {
	Name    string   `json:"name" validate:"required,max=200" label:"Name"`
	Type    string   `json:"type" validate:"omitempty,grouptype" label:"Type"`
	Members []string `json:"members" validate:"max=5000,dive,required" label:"Members"`
}

type userRequest struct {
	UserID string `json:"user_id" validate:"required" label:"User"`
}

// HandleCreate handles POST /api/groups. The caller becomes the first admin.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := shared.Decode(w, r, &req); err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	if req.Type == "" {
		req.Type = models.GroupTypeCustom
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "create group")
	defer cancel()

	g, err := h.Fabric.CreateGroup(ctx, shared.Actor(r), req.Name, req.Members, req.Type)
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, g)
}

// ServeMine handles GET /api/groups/mine.
func (h *Handler) ServeMine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "list my groups")
	defer cancel()

	list, err := h.Fabric.Groups.GroupsForUser(ctx, shared.Actor(r))
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	if list == nil {
		list = []models.Group{}
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"groups": list})
}

// ServeGroup handles GET /api/groups/{id}.
func (h *Handler) ServeGroup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get group")
	defer cancel()

	g, err := h.Fabric.Group(ctx, shared.Actor(r), chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, g)
}

type changeFunc func(ctx context.Context, actorID, groupID, userID string) error

// change runs one membership operation. The user comes from the body on
// POST and from the path on DELETE.
func (h *Handler) change(op string, fn changeFunc, fromPath bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if !fromPath {
			var req userRequest
			if err := shared.Decode(w, r, &req); err != nil {
				shared.WriteError(w, r, h.Log, err)
				return
			}
			userID = req.UserID
		}

		ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, op)
		defer cancel()

		groupID := chi.URLParam(r, "id")
		if err := fn(ctx, shared.Actor(r), groupID, userID); err != nil {
			shared.WriteError(w, r, h.Log, err)
			return
		}
		g, err := h.Fabric.Groups.Group(ctx, groupID)
		if err != nil {
			shared.WriteError(w, r, h.Log, err)
			return
		}
		shared.WriteJSON(w, http.StatusOK, g)
	}
}
