package collaborations

import "github.com/go-chi/chi/v5"

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/{taskID}", h.HandleOpen)
	r.Get("/{taskID}", h.ServeCollaboration)
	r.Post("/{taskID}/files", h.HandleAttach)
	r.Post("/{taskID}/close", h.HandleClose)
	return r
}
