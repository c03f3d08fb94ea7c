package messages

import "github.com/go-chi/chi/v5"

// Routes is mounted under /api/messages behind auth.RequireUser.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeList)
	r.Post("/", h.HandleSend)
	r.Get("/unread_count", h.ServeUnreadCount)
	r.Post("/{id}/read", h.HandleMarkRead)
	return r
}
