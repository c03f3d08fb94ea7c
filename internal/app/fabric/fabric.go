// Package fabric composes the directory, permission evaluator, group
// manager, message router and notification dispatcher. Each operation here
// checks that the actor may act, resolves symbolic recipients, then
// delivers.
package fabric

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/stratacomm/internal/app/fabric/directory"
	"github.com/dalemusser/stratacomm/internal/app/fabric/groups"
	"github.com/dalemusser/stratacomm/internal/app/fabric/messaging"
	"github.com/dalemusser/stratacomm/internal/app/fabric/notify"
	"github.com/dalemusser/stratacomm/internal/app/system/authz"
	rolestore "github.com/dalemusser/stratacomm/internal/app/store/roles"
	userstore "github.com/dalemusser/stratacomm/internal/app/store/users"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"go.uber.org/zap"
)

// Resources checked by the composition layer. Group resources are
// per-group; see models.GroupResource.
const (
	ResourceMessages       = "messages"
	ResourceNotifications  = "notifications"
	ResourceGroups         = "groups"
	ResourceCollaborations = "collaborations"
	ResourceOrg            = "org"

	AdminRoleID   = "role-administrators"
	AdminRoleName = "Administrators"
)

// ErrForbidden is returned when the actor lacks the needed grant.
var ErrForbidden = errors.New("forbidden")

// Fabric is the service object the HTTP features call into.
type Fabric struct {
	Directory *directory.Directory
	Authz     *authz.Evaluator
	Groups    *groups.Manager
	Router    *messaging.Router
	Notify    *notify.Dispatcher
	log       *zap.Logger
}

func New(dir *directory.Directory, eval *authz.Evaluator, gm *groups.Manager, router *messaging.Router, disp *notify.Dispatcher, logger *zap.Logger) *Fabric {
	return &Fabric{Directory: dir, Authz: eval, Groups: gm, Router: router, Notify: disp, log: logger}
}

// Check reports whether userID may perform action on resource.
func (f *Fabric) Check(ctx context.Context, userID, resource string, action models.Action) bool {
	return f.Authz.Check(ctx, userID, resource, action)
}

func (f *Fabric) require(ctx context.Context, actorID, resource string, action models.Action) error {
	if !f.Authz.Check(ctx, actorID, resource, action) {
		return fmt.Errorf("%w: %s on %s", ErrForbidden, action, resource)
	}
	return nil
}

// GroupRoleID is the id of the role granting management of groupID.
func GroupRoleID(groupID string) string { return "group-admin-" + groupID }

// --- Messaging ---

// SendDirect sends from the actor to explicit recipients.
func (f *Fabric) SendDirect(ctx context.Context, actorID string, to []string, p models.MessagePayload) (models.MessageDeliveryResult, error) {
	if err := f.require(ctx, actorID, ResourceMessages, models.ActionWrite); err != nil {
		return models.MessageDeliveryResult{}, err
	}
	return f.Router.Send(ctx, messaging.SendRequest{From: actorID, To: to, Payload: p})
}

// SendToGroup sends to a group's current members. Members may always post
// to their group; others need write on the group.
func (f *Fabric) SendToGroup(ctx context.Context, actorID, groupID string, p models.MessagePayload) (models.MessageDeliveryResult, error) {
	g, err := f.Groups.Group(ctx, groupID)
	if err != nil {
		return models.MessageDeliveryResult{}, err
	}
	if !g.IsMember(actorID) {
		if err := f.require(ctx, actorID, models.GroupResource(groupID), models.ActionWrite); err != nil {
			return models.MessageDeliveryResult{}, err
		}
	}
	return f.Router.SendToGroup(ctx, actorID, groupID, p)
}

// SendToCollaboration sends to a task collaboration. Only participants may
// post.
func (f *Fabric) SendToCollaboration(ctx context.Context, actorID, taskID string, p models.MessagePayload) (models.MessageDeliveryResult, error) {
	c, err := f.Groups.Collaboration(ctx, taskID)
	if err != nil {
		return models.MessageDeliveryResult{}, err
	}
	if !c.HasParticipant(actorID) {
		return models.MessageDeliveryResult{}, fmt.Errorf("%w: not a participant of task %s", ErrForbidden, taskID)
	}
	return f.Router.SendToCollaboration(ctx, actorID, taskID, p)
}

// --- Groups ---

// CreateGroup creates a group owned by the actor and grants the actor
// read, write and manage on it through a per-group role. The group record is
// authoritative for who administers it: if the grant fails after the group
// is stored, the group is still returned and requireManage repairs the grant
// on the admin's next manage call.
func (f *Fabric) CreateGroup(ctx context.Context, actorID, name string, members []string, groupType string) (models.Group, error) {
	if err := f.require(ctx, actorID, ResourceGroups, models.ActionWrite); err != nil {
		return models.Group{}, err
	}
	g, err := f.Groups.CreateGroup(ctx, name, members, groupType, actorID)
	if err != nil {
		return models.Group{}, err
	}
	if err := f.grantGroupAdmin(ctx, actorID, g.ID, actorID); err != nil {
		f.log.Warn("group created without admin grant",
			zap.String("group_id", g.ID),
			zap.String("user_id", actorID),
			zap.Error(err))
	}
	return g, nil
}

// grantGroupAdmin assigns the per-group role, creating it first if it is
// missing. Safe to repeat.
func (f *Fabric) grantGroupAdmin(ctx context.Context, actorID, groupID, userID string) error {
	err := f.Directory.AssignRole(ctx, actorID, userID, GroupRoleID(groupID))
	if !errors.Is(err, directory.ErrRoleNotFound) {
		return err
	}
	_, err = f.Directory.CreateRoleWithID(ctx, actorID, models.Role{
		ID:   GroupRoleID(groupID),
		Name: "Group admin " + groupID,
		Permissions: []models.Permission{{
			Resource: models.GroupResource(groupID),
			Actions:  []models.Action{models.ActionRead, models.ActionWrite, models.ActionManage},
		}},
	})
	if err != nil && !errors.Is(err, rolestore.ErrDuplicateRoleName) {
		return fmt.Errorf("create group admin role: %w", err)
	}
	return f.Directory.AssignRole(ctx, actorID, userID, GroupRoleID(groupID))
}

// Group returns a group to its members or to holders of read on it.
func (f *Fabric) Group(ctx context.Context, actorID, groupID string) (models.Group, error) {
	g, err := f.Groups.Group(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if !g.IsMember(actorID) {
		if err := f.require(ctx, actorID, models.GroupResource(groupID), models.ActionRead); err != nil {
			return models.Group{}, err
		}
	}
	return g, nil
}

// requireManage allows holders of manage on the group. A recorded group
// admin whose role grant is missing gets it restored here.
func (f *Fabric) requireManage(ctx context.Context, actorID, groupID string) error {
	err := f.require(ctx, actorID, models.GroupResource(groupID), models.ActionManage)
	if !errors.Is(err, ErrForbidden) {
		return err
	}
	g, gerr := f.Groups.Group(ctx, groupID)
	if gerr != nil || !g.IsAdmin(actorID) {
		return err
	}
	if gerr := f.grantGroupAdmin(ctx, actorID, groupID, actorID); gerr != nil {
		f.log.Warn("group admin grant repair failed",
			zap.String("group_id", groupID),
			zap.String("user_id", actorID),
			zap.Error(gerr))
		return err
	}
	f.log.Info("group admin grant repaired",
		zap.String("group_id", groupID),
		zap.String("user_id", actorID))
	return nil
}

func (f *Fabric) AddMember(ctx context.Context, actorID, groupID, userID string) error {
	if err := f.requireManage(ctx, actorID, groupID); err != nil {
		return err
	}
	return f.Groups.AddMember(ctx, actorID, groupID, userID)
}

// RemoveMember removes a member and revokes their group admin role if they
// held it.
func (f *Fabric) RemoveMember(ctx context.Context, actorID, groupID, userID string) error {
	if err := f.requireManage(ctx, actorID, groupID); err != nil {
		return err
	}
	if err := f.Groups.RemoveMember(ctx, actorID, groupID, userID); err != nil {
		return err
	}
	return f.revokeGroupRole(ctx, actorID, groupID, userID)
}

// PromoteAdmin makes a member an admin and grants the group admin role. A
// failed grant is logged; requireManage restores it later.
func (f *Fabric) PromoteAdmin(ctx context.Context, actorID, groupID, userID string) error {
	if err := f.requireManage(ctx, actorID, groupID); err != nil {
		return err
	}
	if err := f.Groups.PromoteAdmin(ctx, actorID, groupID, userID); err != nil {
		return err
	}
	if err := f.grantGroupAdmin(ctx, actorID, groupID, userID); err != nil {
		f.log.Warn("admin promoted without role grant",
			zap.String("group_id", groupID),
			zap.String("user_id", userID),
			zap.Error(err))
	}
	return nil
}

// DemoteAdmin removes admin rights and the group admin role.
func (f *Fabric) DemoteAdmin(ctx context.Context, actorID, groupID, userID string) error {
	if err := f.requireManage(ctx, actorID, groupID); err != nil {
		return err
	}
	if err := f.Groups.DemoteAdmin(ctx, actorID, groupID, userID); err != nil {
		return err
	}
	return f.revokeGroupRole(ctx, actorID, groupID, userID)
}

func (f *Fabric) revokeGroupRole(ctx context.Context, actorID, groupID, userID string) error {
	err := f.Directory.RevokeRole(ctx, actorID, userID, GroupRoleID(groupID))
	if err == nil || errors.Is(err, directory.ErrAssignmentNotFound) {
		return nil
	}
	return err
}

// --- Collaborations ---

// CollaborateOnTask opens or extends a task collaboration and notifies the
// participants it added.
func (f *Fabric) CollaborateOnTask(ctx context.Context, actorID, taskID string, participants []string) (notify.CollaborationResult, error) {
	if err := f.require(ctx, actorID, ResourceCollaborations, models.ActionWrite); err != nil {
		return notify.CollaborationResult{}, err
	}
	return f.Notify.CollaborateOnTask(ctx, taskID, participants)
}

// Collaboration returns a collaboration to its participants or to holders
// of read on collaborations.
func (f *Fabric) Collaboration(ctx context.Context, actorID, taskID string) (models.Collaboration, error) {
	c, err := f.Groups.Collaboration(ctx, taskID)
	if err != nil {
		return models.Collaboration{}, err
	}
	if !c.HasParticipant(actorID) {
		if err := f.require(ctx, actorID, ResourceCollaborations, models.ActionRead); err != nil {
			return models.Collaboration{}, err
		}
	}
	return c, nil
}

// AttachFile records a file on a collaboration. The manager limits this to
// participants.
func (f *Fabric) AttachFile(ctx context.Context, actorID, taskID, name, url string) (models.CollaborationFile, error) {
	file, err := f.Groups.AttachFile(ctx, taskID, actorID, name, url)
	if errors.Is(err, groups.ErrNotMember) {
		return models.CollaborationFile{}, fmt.Errorf("%w: not a participant of task %s", ErrForbidden, taskID)
	}
	return file, err
}

// CloseCollaboration closes a collaboration.
func (f *Fabric) CloseCollaboration(ctx context.Context, actorID, taskID string) error {
	if err := f.require(ctx, actorID, ResourceCollaborations, models.ActionManage); err != nil {
		return err
	}
	return f.Groups.CloseCollaboration(ctx, actorID, taskID)
}

// --- Notifications ---

func (f *Fabric) Push(ctx context.Context, actorID, userID string, p models.NotificationPayload) (models.Notification, error) {
	if err := f.require(ctx, actorID, ResourceNotifications, models.ActionWrite); err != nil {
		return models.Notification{}, err
	}
	return f.Notify.Push(ctx, userID, p)
}

func (f *Fabric) Broadcast(ctx context.Context, actorID string, userIDs []string, p models.NotificationPayload) (notify.BroadcastResult, error) {
	if err := f.require(ctx, actorID, ResourceNotifications, models.ActionManage); err != nil {
		return notify.BroadcastResult{}, err
	}
	return f.Notify.Broadcast(ctx, userIDs, p)
}

// --- Directory ---

func (f *Fabric) Organization(ctx context.Context, actorID string) (models.Organization, error) {
	if err := f.require(ctx, actorID, ResourceOrg, models.ActionRead); err != nil {
		return models.Organization{}, err
	}
	return f.Directory.Organization(ctx)
}

func (f *Fabric) CreateUser(ctx context.Context, actorID string, in directory.NewUser) (models.User, error) {
	if err := f.require(ctx, actorID, ResourceOrg, models.ActionManage); err != nil {
		return models.User{}, err
	}
	return f.Directory.CreateUser(ctx, actorID, in)
}

func (f *Fabric) CreateDepartment(ctx context.Context, actorID, name, managerID, parentID string) (models.Department, error) {
	if err := f.require(ctx, actorID, ResourceOrg, models.ActionManage); err != nil {
		return models.Department{}, err
	}
	return f.Directory.CreateDepartment(ctx, actorID, name, managerID, parentID)
}

func (f *Fabric) CreateTeam(ctx context.Context, actorID, name, departmentID, leaderID string, members []string) (models.Team, error) {
	if err := f.require(ctx, actorID, ResourceOrg, models.ActionManage); err != nil {
		return models.Team{}, err
	}
	return f.Directory.CreateTeam(ctx, actorID, name, departmentID, leaderID, members)
}

func (f *Fabric) CreateRole(ctx context.Context, actorID, name string, perms []models.Permission) (models.Role, error) {
	if err := f.require(ctx, actorID, ResourceOrg, models.ActionManage); err != nil {
		return models.Role{}, err
	}
	return f.Directory.CreateRole(ctx, actorID, name, perms)
}

func (f *Fabric) AssignRole(ctx context.Context, actorID, userID, roleID string) error {
	if err := f.require(ctx, actorID, ResourceOrg, models.ActionManage); err != nil {
		return err
	}
	return f.Directory.AssignRole(ctx, actorID, userID, roleID)
}

func (f *Fabric) RevokeRole(ctx context.Context, actorID, userID, roleID string) error {
	if err := f.require(ctx, actorID, ResourceOrg, models.ActionManage); err != nil {
		return err
	}
	return f.Directory.RevokeRole(ctx, actorID, userID, roleID)
}

// EnsureAdmin makes userID an administrator holding the wildcard role,
// creating the user and the role when missing. It is idempotent and runs at
// startup so a fresh deployment has someone able to grant roles.
func (f *Fabric) EnsureAdmin(ctx context.Context, userID, fullName string) error {
	if fullName == "" {
		fullName = userID
	}
	if _, err := f.Directory.User(ctx, userID); errors.Is(err, directory.ErrUserNotFound) {
		if _, err := f.Directory.CreateUser(ctx, "system", directory.NewUser{ID: userID, FullName: fullName}); err != nil && !errors.Is(err, userstore.ErrDuplicateUser) {
			return fmt.Errorf("create admin user: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("load admin user: %w", err)
	}

	_, err := f.Directory.CreateRoleWithID(ctx, "system", models.Role{
		ID:   AdminRoleID,
		Name: AdminRoleName,
		Permissions: []models.Permission{{
			Resource: models.AnyResource,
			Actions:  []models.Action{models.ActionAny},
		}},
	})
	if err != nil && !errors.Is(err, rolestore.ErrDuplicateRoleName) {
		return fmt.Errorf("create admin role: %w", err)
	}
	if err := f.Directory.AssignRole(ctx, "system", userID, AdminRoleID); err != nil {
		return fmt.Errorf("assign admin role: %w", err)
	}
	f.log.Info("administrator ensured", zap.String("user_id", userID))
	return nil
}
