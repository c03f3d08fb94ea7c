// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"

	"github.com/dalemusser/stratacomm/internal/app/store/audit"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Admin controls logging for admin action events (group, directory and role changes).
	// Values: "all" (store + zap), "db" (store only), "log" (zap only), "off" (disabled)
	Admin string
	// Security controls logging for security-sensitive events such as wildcard roles.
	// Same values as Admin. Empty means "all".
	Security string
}

// Recorder persists audit events. *audit.Store satisfies it, as does the
// in-memory store.
type Recorder interface {
	Log(ctx context.Context, event audit.Event) error
}

// Logger provides convenience methods for logging audit events.
// It logs to both the audit store and structured logs (via zap).
type Logger struct {
	store  Recorder
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store Recorder, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}

	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.ActorID != "" {
		fields = append(fields, zap.String("actor_id", event.ActorID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success && event.Category != audit.CategorySecurity {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryAdmin:
		setting = l.config.Admin
	case audit.CategorySecurity:
		setting = l.config.Security
	}
	if setting == "" {
		setting = "all"
	}
	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	if (setting == "all" || setting == "db") && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func (l *Logger) admin(ctx context.Context, eventType, actorID, userID string, details map[string]string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: eventType,
		ActorID:   actorID,
		UserID:    userID,
		Success:   true,
		Details:   details,
	})
}

// --- Directory Events ---

// UserCreated logs when a user is registered in the directory.
func (l *Logger) UserCreated(ctx context.Context, actorID, userID string) {
	l.admin(ctx, audit.EventUserCreated, actorID, userID, nil)
}

// DepartmentCreated logs a new department.
func (l *Logger) DepartmentCreated(ctx context.Context, actorID, deptID, name string) {
	l.admin(ctx, audit.EventDepartmentCreated, actorID, "", map[string]string{
		"department_id":   deptID,
		"department_name": name,
	})
}

// TeamCreated logs a new team.
func (l *Logger) TeamCreated(ctx context.Context, actorID, teamID, deptID, name string) {
	l.admin(ctx, audit.EventTeamCreated, actorID, "", map[string]string{
		"team_id":       teamID,
		"team_name":     name,
		"department_id": deptID,
	})
}

// --- Role Events ---

// RoleCreated logs a new role. Roles that grant wildcards are additionally
// recorded as a security event.
func (l *Logger) RoleCreated(ctx context.Context, actorID, roleID, name string, wildcard bool) {
	details := map[string]string{"role_id": roleID, "role_name": name}
	l.admin(ctx, audit.EventRoleCreated, actorID, "", details)
	if wildcard {
		l.Log(ctx, audit.Event{
			Category:  audit.CategorySecurity,
			EventType: audit.EventWildcardRoleCreated,
			ActorID:   actorID,
			Success:   true,
			Details:   details,
		})
	}
}

// RoleAssigned logs a role grant.
func (l *Logger) RoleAssigned(ctx context.Context, actorID, userID, roleID string, wildcard bool) {
	details := map[string]string{"role_id": roleID}
	l.admin(ctx, audit.EventRoleAssigned, actorID, userID, details)
	if wildcard {
		l.Log(ctx, audit.Event{
			Category:  audit.CategorySecurity,
			EventType: audit.EventWildcardRoleAssigned,
			ActorID:   actorID,
			UserID:    userID,
			Success:   true,
			Details:   details,
		})
	}
}

// RoleRevoked logs a role removal.
func (l *Logger) RoleRevoked(ctx context.Context, actorID, userID, roleID string) {
	l.admin(ctx, audit.EventRoleRevoked, actorID, userID, map[string]string{"role_id": roleID})
}

// --- Group Events ---

// GroupCreated logs when a group is created.
func (l *Logger) GroupCreated(ctx context.Context, actorID, groupID, groupName, groupType string) {
	l.admin(ctx, audit.EventGroupCreated, actorID, "", map[string]string{
		"group_id":   groupID,
		"group_name": groupName,
		"group_type": groupType,
	})
}

// MemberAddedToGroup logs when a user is added to a group.
func (l *Logger) MemberAddedToGroup(ctx context.Context, actorID, userID, groupID string) {
	l.admin(ctx, audit.EventMemberAddedToGroup, actorID, userID, map[string]string{"group_id": groupID})
}

// MemberRemovedFromGroup logs when a user is removed from a group.
func (l *Logger) MemberRemovedFromGroup(ctx context.Context, actorID, userID, groupID string) {
	l.admin(ctx, audit.EventMemberRemovedFromGroup, actorID, userID, map[string]string{"group_id": groupID})
}

// GroupAdminPromoted logs when a member is granted group admin rights.
func (l *Logger) GroupAdminPromoted(ctx context.Context, actorID, userID, groupID string) {
	l.admin(ctx, audit.EventGroupAdminPromoted, actorID, userID, map[string]string{"group_id": groupID})
}

// GroupAdminDemoted logs when group admin rights are revoked.
func (l *Logger) GroupAdminDemoted(ctx context.Context, actorID, userID, groupID string) {
	l.admin(ctx, audit.EventGroupAdminDemoted, actorID, userID, map[string]string{"group_id": groupID})
}

// CollaborationClosed logs when a task collaboration is closed.
func (l *Logger) CollaborationClosed(ctx context.Context, actorID, taskID string) {
	l.admin(ctx, audit.EventCollaborationClosed, actorID, "", map[string]string{"task_id": taskID})
}
