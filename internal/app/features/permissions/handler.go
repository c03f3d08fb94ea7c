// internal/app/features/permissions/handler.go
package permissions

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dalemusser/stratacomm/internal/app/fabric"
	"github.com/dalemusser/stratacomm/internal/app/features/shared"
	"github.com/dalemusser/stratacomm/internal/app/system/timeouts"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	Fabric *fabric.Fabric
	Log    *zap.Logger
}

func NewHandler(f *fabric.Fabric, logger *zap.Logger) *Handler {
	return &Handler{Fabric: f, Log: logger}
}

type checkResponse struct {
	UserID   string        `json:"user_id"`
	Resource string        `json:"resource"`
	Action   models.Action `json:"action"`
	Allowed  bool          `json:"allowed"`
}

// ServeCheck handles GET /api/permissions/check?resource=R&action=A. A
// user_id other than the caller's needs org/read.
func (h *Handler) ServeCheck(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resource := strings.TrimSpace(q.Get("resource"))
	if resource == "" {
		shared.WriteError(w, r, h.Log, fmt.Errorf("%w: resource is required", shared.ErrBadRequest))
		return
	}
	action, err := models.ParseAction(q.Get("action"))
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "permission check")
	defer cancel()

	actor := shared.Actor(r)
	userID := strings.TrimSpace(q.Get("user_id"))
	if userID == "" {
		userID = actor
	}
	if userID != actor && !h.Fabric.Check(ctx, actor, fabric.ResourceOrg, models.ActionRead) {
		shared.WriteError(w, r, h.Log, fmt.Errorf("%w: checking another user's permissions", fabric.ErrForbidden))
		return
	}

	shared.WriteJSON(w, http.StatusOK, checkResponse{
		UserID:   userID,
		Resource: resource,
		Action:   action,
		Allowed:  h.Fabric.Check(ctx, userID, resource, action),
	})
}

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/check", h.ServeCheck)
	return r
}
