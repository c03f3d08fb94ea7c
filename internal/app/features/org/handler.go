// internal/app/features/org/handler.go
package org

import (
	"net/http"
	"strings"

	"github.com/dalemusser/stratacomm/internal/app/fabric"
	"github.com/dalemusser/stratacomm/internal/app/fabric/directory"
	"github.com/dalemusser/stratacomm/internal/app/features/shared"
	"github.com/dalemusser/stratacomm/internal/app/system/timeouts"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves the organization directory: users, departments, teams,
// roles and role assignments. Reads need org/read, writes org/manage.
type Handler struct {
	Fabric *fabric.Fabric
	Log    *zap.Logger
}

func NewHandler(f *fabric.Fabric, logger *zap.Logger) *Handler {
	return &Handler{Fabric: f, Log: logger}
}

type userRequest struct {
	ID       string `json:"id" validate:"max=128" label:"ID"`
	FullName string `json:"full_name" validate:"required,max=200" label:"Full name"`
	Email    string `json:"email" validate:"max=254" label:"Email"`
	Status   string `json:"status" label:"Status"`
}

type departmentRequest struct {
	Name      string `json:"name" validate:"required,max=200" label:"Name"`
	ManagerID string `json:"manager_id" validate:"required" label:"Manager"`
	ParentID  string `json:"parent_id" label:"Parent department"`
}

type teamRequest struct {
	Name         string   `json:"name" validate:"required,max=200" label:"Name"`
	DepartmentID string   `json:"department_id" validate:"required" label:"Department"`
	LeaderID     string   `json:"leader_id" validate:"required" label:"Leader"`
	Members      []string `json:"members" validate:"max=5000,dive,required" label:"Members"`
}

type permissionRequest struct {
	Resource string   `json:"resource" validate:"required,max=256" label:"Resource"`
	Actions  []string `json:"actions" validate:"required,min=1,dive,action" label:"Actions"`
}

type roleRequest struct {
	Name        string              `json:"name" validate:"required,max=200" label:"Name"`
	Permissions []permissionRequest `json:"permissions" validate:"required,min=1,dive" label:"Permissions"`
}

func (req roleRequest) permissions() ([]models.Permission, error) {
	out := make([]models.Permission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		perm := models.Permission{Resource: strings.TrimSpace(p.Resource)}
		for _, s := range p.Actions {
			a, err := models.ParseAction(s)
			if err != nil {
				return nil, err
			}
			perm.Actions = append(perm.Actions, a)
		}
		out = append(out, perm)
	}
	return out, nil
}

// ServeOrganization handles GET /api/org.
func (h *Handler) ServeOrganization(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "organization snapshot")
	defer cancel()

	o, err := h.Fabric.Organization(ctx, shared.Actor(r))
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, o)
}

// HandleCreateUser handles POST /api/org/users.
func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := shared.Decode(w, r, &req); err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "create user")
	defer cancel()

	u, err := h.Fabric.CreateUser(ctx, shared.Actor(r), directory.NewUser{
		ID:       req.ID,
		FullName: req.FullName,
		Email:    req.Email,
		Status:   req.Status,
	})
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, u)
}

// HandleCreateDepartment handles POST /api/org/departments.
func (h *Handler) HandleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req departmentRequest
	if err := shared.Decode(w, r, &req); err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "create department")
	defer cancel()

	d, err := h.Fabric.CreateDepartment(ctx, shared.Actor(r), req.Name, req.ManagerID, req.ParentID)
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, d)
}

// HandleCreateTeam handles POST /api/org/teams.
func (h *Handler) HandleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if err := shared.Decode(w, r, &req); err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "create team")
	defer cancel()

	tm, err := h.Fabric.CreateTeam(ctx, shared.Actor(r), req.Name, req.DepartmentID, req.LeaderID, req.Members)
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, tm)
}

// HandleCreateRole handles POST /api/org/roles.
func (h *Handler) HandleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := shared.Decode(w, r, &req); err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	perms, err := req.permissions()
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "create role")
	defer cancel()

	role, err := h.Fabric.CreateRole(ctx, shared.Actor(r), req.Name, perms)
	if err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, role)
}

// HandleAssignRole handles POST /api/org/users/{id}/roles/{roleID}.
// Assigning a role the user already holds succeeds.
func (h *Handler) HandleAssignRole(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "assign role")
	defer cancel()

	if err := h.Fabric.AssignRole(ctx, shared.Actor(r), chi.URLParam(r, "id"), chi.URLParam(r, "roleID")); err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRevokeRole handles DELETE /api/org/users/{id}/roles/{roleID}.
func (h *Handler) HandleRevokeRole(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "revoke role")
	defer cancel()

	if err := h.Fabric.RevokeRole(ctx, shared.Actor(r), chi.URLParam(r, "id"), chi.URLParam(r, "roleID")); err != nil {
		shared.WriteError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
