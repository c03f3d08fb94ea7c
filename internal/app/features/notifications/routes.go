// internal/app/features/notifications/routes.go
package notifications

import "github.com/go-chi/chi/v5"

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeList)
	r.Post("/", h.HandlePush)
	r.Post("/broadcast", h.HandleBroadcast)
	r.Post("/read_all", h.HandleMarkAllRead)
	r.Post("/{id}/read", h.HandleMarkRead)
	return r
}
