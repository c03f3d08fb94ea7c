package notifications

import (
	"net/http"

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

type payload struct {
	Type    string `json:"type" validate:"required,notificationtype" label:"Type"`
	Title   string `json:"title" validate:"required,max=200" label:"Title"`
	Content string `json:"content" validate:"max=4000" label:"Content"`
	Link    string `json:"link" validate:"max=2048" label:"Link"`
}

func (p payload) model() models.NotificationPayload {
	return models.NotificationPayload{Type: p.Type, Title: p.Title, Content: p.Content, Link: p.Link}
}

type pushRequest struct {
	UserID string `json:"user_id" validate:"required" label:"User"`
	payload
}

type broadcastRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,max=10000,dive,required" label:"Users"`
	payload
}

// ServeList handles GET /api/notifications?limit=N&unread=true.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	limit, err := shared.QueryInt(r, "limit")
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	unread, err := shared.QueryBool(r, "unread")
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "list notifications")
	defer cancel()

	list, err := h.Fabric.Notify.Notifications(ctx, shared.Actor(r), limit, unread)
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

// HandlePush handles POST /api/notifications for a single recipient.
func (h *Handler) HandlePush(w http.ResponseWriter, r *http.Request) {
	var req pushRequest
	if err := shared.Decode(w, r, &req); err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "push notification")
	defer cancel()

	n, err := h.Fabric.Push(ctx, shared.Actor(r), req.UserID, req.model())
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, n)
}

// HandleBroadcast handles POST /api/notifications/broadcast. Each recipient
// gets an independent notification; failures are listed, not fatal.
func (h *Handler) HandleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := shared.Decode(w, r, &req); err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.FanOut(), h.Log, "broadcast notification")
	defer cancel()

	res, err := h.Fabric.Broadcast(ctx, shared.Actor(r), req.UserIDs, req.model())
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, res)
}

// HandleMarkRead handles POST /api/notifications/{id}/read.
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "mark notification read")
	defer cancel()

	if err := h.Fabric.Notify.MarkAsRead(ctx, shared.Actor(r), chi.URLParam(r, "id")); err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMarkAllRead handles POST /api/notifications/read_all.
func (h *Handler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "mark all notifications read")
	defer cancel()

	n, err := h.Fabric.Notify.MarkAllAsRead(ctx, shared.Actor(r))
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
