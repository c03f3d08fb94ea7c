// internal/domain/models/role.go
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Action is an operation a permission grants on a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
	ActionAny    Action = "*"
)

// Actions is the full set of allowed actions, wildcard included.
var Actions = []Action{ActionRead, ActionWrite, ActionDelete, ActionManage, ActionAny}

// AnyResource is the wildcard resource name.
const AnyResource = "*"

// ParseAction validates s and returns it as an Action.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Actions {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Permission grants a set of actions on one resource.
type Permission struct {
	Resource string   `bson:"resource" json:"resource"`
	Actions  []Action `bson:"actions" json:"actions"`
}

// Allows reports whether p grants action on resource.
func (p Permission) Allows(resource string, action Action) bool {
	if p.Resource != resource && p.Resource != AnyResource {
		return false
	}
	for _, a := range p.Actions {
		if a == action || a == ActionAny {
			return true
		}
	}
	return false
}

// IsWildcard reports whether p uses a wildcard resource or action.
func (p Permission) IsWildcard() bool {
	if p.Resource == AnyResource {
		return true
	}
	for _, a := range p.Actions {
		if a == ActionAny {
			return true
		}
	}
	return false
}

// Role is a named bundle of permissions. A user's effective grants are the
// union of all assigned roles.
type Role struct {
	ID          string       `bson:"_id" json:"id"`
	Name        string       `bson:"name" json:"name"`
	NameCI      string       `bson:"name_ci" json:"-"`
	Permissions []Permission `bson:"permissions" json:"permissions"`
	CreatedAt   time.Time    `bson:"created_at" json:"created_at"`
}

// Role validation errors.
var (
	ErrUnknownAction     = errors.New("unknown action")
	ErrRoleNameRequired  = errors.New("role name is required")
	ErrRoleNoPermissions = errors.New("role must grant at least one permission")
	ErrEmptyResource     = errors.New("permission resource is required")
	ErrEmptyActions      = errors.New("permission must list at least one action")
)

// Canonical returns r with resources trimmed and actions in their parsed,
// lower-case form, which is what Allows compares against. Actions that do
// not parse are kept as given so Validate reports them.
func (r Role) Canonical() Role {
	perms := make([]Permission, len(r.Permissions))
	for i, p := range r.Permissions {
		actions := make([]Action, len(p.Actions))
		for j, a := range p.Actions {
			if parsed, err := ParseAction(string(a)); err == nil {
				actions[j] = parsed
			} else {
				actions[j] = a
			}
		}
		perms[i] = Permission{Resource: strings.TrimSpace(p.Resource), Actions: actions}
	}
	r.Permissions = perms
	return r
}

// Validate checks the role shape. Roles are validated when written so the
// evaluator never has to parse or repair them at check time.
func (r Role) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrRoleNameRequired
	}
	if len(r.Permissions) == 0 {
		return ErrRoleNoPermissions
	}
	for _, p := range r.Permissions {
		if strings.TrimSpace(p.Resource) == "" {
			return ErrEmptyResource
		}
		if len(p.Actions) == 0 {
			return ErrEmptyActions
		}
		for _, a := range p.Actions {
			if _, err := ParseAction(string(a)); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsWildcard reports whether any permission in the role uses a wildcard.
func (r Role) IsWildcard() bool {
	for _, p := range r.Permissions {
		if p.IsWildcard() {
			return true
		}
	}
	return false
}

// RoleAssignment links a user to a role. Exactly one document per pair.
type RoleAssignment struct {
	UserID     string    `bson:"user_id" json:"user_id"`
	RoleID     string    `bson:"role_id" json:"role_id"`
	AssignedBy string    `bson:"assigned_by,omitempty" json:"assigned_by,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}
