package org

import "github.com/go-chi/chi/v5"

// Routes is mounted under /api/org.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeOrganization)

	r.Post("/users", h.HandleCreateUser)
	r.Post("/users/{id}/roles/{roleID}", h.HandleAssignRole)
	r.Delete("/users/{id}/roles/{roleID}", h.HandleRevokeRole)

	r.Post("/departments", h.HandleCreateDepartment)
	r.Post("/teams", h.HandleCreateTeam)
	r.Post("/roles", h.HandleCreateRole)
	return r
}
