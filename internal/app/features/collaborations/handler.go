package collaborations

import (
	"net/http"

	"github.com/dalemusser/stratacomm/internal/app/fabric"
	"github.com/dalemusser/stratacomm/internal/app/features/shared"
	"github.com/dalemusser/stratacomm/internal/app/system/timeouts"
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

type openRequest struct {
	Participants []string `json:"participants" validate:"required,min=1,max=1000,dive,required" label:"Participants"`
}

type fileRequest struct {
	Name string `json:"name" validate:"required,max=255" label:"File name"`
	URL  string `json:"url" validate:"required,httpurl" label:"File URL"`
}

// HandleOpen handles POST /api/collaborations/{taskID}. Calling it again
// merges participants; only newly added ones are notified.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := shared.Decode(w, r, &req); err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.FanOut(), h.Log, "collaborate on task")
	defer cancel()

	res, err := h.Fabric.CollaborateOnTask(ctx, shared.Actor(r), chi.URLParam(r, "taskID"), req.Participants)
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, res)
}

// ServeCollaboration handles GET /api/collaborations/{taskID}.
func (h *Handler) ServeCollaboration(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get collaboration")
	defer cancel()

	c, err := h.Fabric.Collaboration(ctx, shared.Actor(r), chi.URLParam(r, "taskID"))
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, c)
}

// HandleAttach handles POST /api/collaborations/{taskID}/files.
func (h *Handler) HandleAttach(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if err := shared.Decode(w, r, &req); err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "attach file")
	defer cancel()

	f, err := h.Fabric.AttachFile(ctx, shared.Actor(r), chi.URLParam(r, "taskID"), req.Name, req.URL)
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, f)
}

// HandleClose handles POST /api/collaborations/{taskID}/close.
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "close collaboration")
	defer cancel()

	if err := h.Fabric.CloseCollaboration(ctx, shared.Actor(r), chi.URLParam(r, "taskID")); err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
