// internal/app/features/messages/handler.go
package messages

import (
	"fmt"
	"net/http"

	"github.com/dalemusser/stratacomm/internal/app/fabric"
	"github.com/dalemusser/stratacomm/internal/app/features/shared"
	"github.com/dalemusser/stratacomm/internal/app/system/timeouts"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves the message endpoints for the signed-in user.
type Handler struct {
	Fabric *fabric.Fabric
	Log    *zap.Logger
}

func NewHandler(f *fabric.Fabric, logger *zap.Logger) *Handler {
	return &Handler{Fabric: f, Log: logger}
}

// sendRequest addresses exactly one of To, GroupID or TaskID.
type sendRequest struct {
	To      []string `json:"to" validate:"omitempty,max=1000,dive,required" label:"Recipients"`
	GroupID string   `json:"group_id" label:"Group"`
	TaskID  string   `json:"task_id" label:"Task"`
	Content string   `json:"content" validate:"max=65536" label:"Content"`
	Type    string   `json:"type" validate:"omitempty,messagetype" label:"Type"`
	FileURL string   `json:"file_url" validate:"omitempty,httpurl" label:"File URL"`
}

func (req sendRequest) targets() int {
	n := 0
	if len(req.To) > 0 {
		n++
	}
	if req.GroupID != "" {
		n++
	}
	if req.TaskID != "" {
		n++
	}
	return n
}

// HandleSend handles POST /api/messages. The response carries the
// per-recipient outcome; a partial delivery is still a 200.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := shared.Decode(w, r, &req); err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	if req.targets() != 1 {
		shared.WriteError(w, r, h.Log, fmt.Errorf("%w: set exactly one of to, group_id or task_id", shared.ErrBadRequest))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.FanOut(), h.Log, "send message")
	defer cancel()

	actor := shared.Actor(r)
	payload := models.MessagePayload{Content: req.Content, Type: req.Type, FileURL: req.FileURL}

	var (
		res models.MessageDeliveryResult
		err error
	)
	switch {
	case req.GroupID != "":
		res, err = h.Fabric.SendToGroup(ctx, actor, req.GroupID, payload)
	case req.TaskID != "":
		res, err = h.Fabric.SendToCollaboration(ctx, actor, req.TaskID, payload)
	default:
		res, err = h.Fabric.SendDirect(ctx, actor, req.To, payload)
	}
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, res)
}

// ServeList handles GET /api/messages?limit=N.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	limit, err := shared.QueryInt(r, "limit")
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "list messages")
	defer cancel()

	msgs, err := h.Fabric.Router.UserMessages(ctx, shared.Actor(r), limit)
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// ServeUnreadCount handles GET /api/messages/unread_count.
func (h *Handler) ServeUnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "count unread")
	defer cancel()

	n, err := h.Fabric.Router.UnreadCount(ctx, shared.Actor(r))
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]int64{"unread": n})
}

// HandleMarkRead handles POST /api/messages/{id}/read. Only the caller's own
// copy changes.
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "mark message read")
	defer cancel()

	if err := h.Fabric.Router.MarkAsRead(ctx, shared.Actor(r), chi.URLParam(r, "id")); err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
