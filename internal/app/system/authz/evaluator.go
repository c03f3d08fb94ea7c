// internal/app/system/authz/evaluator.go
package authz

import (
	"context"

	"github.com/dalemusser/stratacomm/internal/app/system/metrics"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"go.uber.org/zap"
)

// Assignments lists the role ids assigned to a user.
type Assignments interface {
	RoleIDsByUser(ctx context.Context, userID string) ([]string, error)
}

// Roles loads role definitions.
type Roles interface {
	GetByIDs(ctx context.Context, ids []string) ([]models.Role, error)
}

// Cache holds a user's resolved role set. Implementations must treat a miss
// and an error the same way from the evaluator's point of view: fall through
// to the stores.
type Cache interface {
	Get(ctx context.Context, userID string) (roles []models.Role, ok bool, err error)
	Set(ctx context.Context, userID string, roles []models.Role) error
	Invalidate(ctx context.Context, userID string) error
}

// Evaluator answers "may this user perform this action on this resource".
// Access is denied unless some assigned role grants it.
type Evaluator struct {
	assignments Assignments
	roles       Roles
	cache       Cache
	log         *zap.Logger
}

// NewEvaluator builds an evaluator. cache may be nil.
func NewEvaluator(assignments Assignments, roles Roles, cache Cache, logger *zap.Logger) *Evaluator {
	return &Evaluator{assignments: assignments, roles: roles, cache: cache, log: logger}
}

// Check reports whether userID may perform action on resource. A store
// failure denies.
func (e *Evaluator) Check(ctx context.Context, userID, resource string, action models.Action) bool {
	roles, err := e.RolesForUser(ctx, userID)
	if err != nil {
		metrics.PermissionChecks.WithLabelValues("error").Inc()
		e.log.Error("permission check failed; denying",
			zap.String("user_id", userID),
			zap.String("resource", resource),
			zap.String("action", string(action)),
			zap.Error(err))
		return false
	}
	if Allows(roles, resource, action) {
		metrics.PermissionChecks.WithLabelValues("allow").Inc()
		return true
	}
	metrics.PermissionChecks.WithLabelValues("deny").Inc()
	return false
}

// Allows reports whether any permission of any role grants action on
// resource. Zero roles grant nothing.
func Allows(roles []models.Role, resource string, action models.Action) bool {
	for _, r := range roles {
		for _, p := range r.Permissions {
			if p.Allows(resource, action) {
				return true
			}
		}
	}
	return false
}

// RolesForUser resolves the user's roles, using the cache when configured.
func (e *Evaluator) RolesForUser(ctx context.Context, userID string) ([]models.Role, error) {
	if e.cache != nil {
		roles, ok, err := e.cache.Get(ctx, userID)
		switch {
		case err != nil:
			metrics.RoleCacheLookups.WithLabelValues("error").Inc()
			e.log.Warn("role cache read failed", zap.String("user_id", userID), zap.Error(err))
		case ok:
			metrics.RoleCacheLookups.WithLabelValues("hit").Inc()
			return roles, nil
		default:
			metrics.RoleCacheLookups.WithLabelValues("miss").Inc()
		}
	}

	ids, err := e.assignments.RoleIDsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var roles []models.Role
	if len(ids) > 0 {
		if roles, err = e.roles.GetByIDs(ctx, ids); err != nil {
			return nil, err
		}
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, userID, roles); err != nil {
			e.log.Warn("role cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return roles, nil
}

// Invalidate drops the cached role set for userID. Call it after the user's
// assignments change.
func (e *Evaluator) Invalidate(ctx context.Context, userID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, userID); err != nil {
		e.log.Warn("role cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}
