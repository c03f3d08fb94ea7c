// Package ws upgrades authenticated clients to a websocket for live pushes.
package ws

import (
	"net/http"

	"github.com/dalemusser/stratacomm/internal/app/features/shared"
	"github.com/dalemusser/stratacomm/internal/app/system/livepush"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	Hub *livepush.Hub
	Log *zap.Logger
}

func NewHandler(hub *livepush.Hub, logger *zap.Logger) *Handler {
	return &Handler{Hub: hub, Log: logger}
}

// Serve handles GET /ws. Browsers cannot set headers on a websocket
// handshake, so the token may come in the access_token query parameter.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	userID := shared.Actor(r)
	h.Log.Debug("websocket connect", zap.String("user_id", userID))
	h.Hub.Serve(w, r, userID)
}

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Serve)
	return r
}
