// internal/app/features/groups/routes.go
package groups

import "github.com/go-chi/chi/v5"

// Routes is mounted under /api/groups behind auth.RequireUser.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.HandleCreate)
	r.Get("/mine", h.ServeMine)
	r.Get("/{id}", h.ServeGroup)

	// MEMBERS
	r.Post("/{id}/members", h.change("add member", h.Fabric.AddMember, false))
	r.Delete("/{id}/members/{userID}", h.change("remove member", h.Fabric.RemoveMember, true))

	// ADMINS
	r.Post("/{id}/admins", h.change("promote admin", h.Fabric.PromoteAdmin, false))
	r.Delete("/{id}/admins/{userID}", h.change("demote admin", h.Fabric.DemoteAdmin, true))

	return r
}
