// Package groups manages groups and task collaborations: who belongs to
// what, and who administers it.
//
// The manager does not consult the permission evaluator. Callers gate
// membership changes with a "manage" check on the group's resource
// (models.GroupResource) before calling in.
package groups

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/stratacomm/internal/app/system/auditlog"
	"github.com/dalemusser/stratacomm/internal/app/system/normalize"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var (
	ErrNotFound            = errors.New("group not found")
	ErrNameRequired        = errors.New("group name is required")
	ErrInvalidType         = errors.New("invalid group type")
	ErrCreatorRequired     = errors.New("group creator is required")
	ErrUnknownMember       = errors.New("unknown member")
	ErrNotMember           = errors.New("user is not a member of the group")
	ErrLastAdmin           = errors.New("cannot remove the last admin of a group")
	ErrTaskRequired        = errors.New("task id is required")
	ErrNoParticipants      = errors.New("collaboration needs at least one participant")
	ErrCollabNotFound      = errors.New("collaboration not found")
	ErrCollaborationClosed = errors.New("collaboration is closed")
	ErrInvalidFile         = errors.New("file name and url are required")
)

// GroupStore persists groups. The membership methods report ok=false when
// their filter did not match (see the Mongo implementation for the exact
// conditions).
type GroupStore interface {
	Create(ctx context.Context, g models.Group) (models.Group, error)
	GetByID(ctx context.Context, id string) (models.Group, error)
	ListByMember(ctx context.Context, userID string) ([]models.Group, error)
	AddMember(ctx context.Context, id, userID string) (bool, error)
	RemoveMember(ctx context.Context, id, userID string) (bool, error)
	AddAdmin(ctx context.Context, id, userID string) (bool, error)
	RemoveAdmin(ctx context.Context, id, userID string) (bool, error)
}

// CollaborationStore persists collaborations keyed by task id.
type CollaborationStore interface {
	Open(ctx context.Context, taskID string, participants []string) (models.Collaboration, []string, error)
	GetByTaskID(ctx context.Context, taskID string) (models.Collaboration, error)
	AppendMessage(ctx context.Context, taskID, messageID string) (bool, error)
	AddFile(ctx context.Context, taskID string, f models.CollaborationFile) (bool, error)
	SetStatus(ctx context.Context, taskID, status string) (bool, error)
}

// Users reports whether a user id belongs to a known, active user.
type Users interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// Manager owns group and collaboration records.
type Manager struct {
	groups GroupStore
	collab CollaborationStore
	users  Users
	audit  *auditlog.Logger
	log    *zap.Logger
}

// New creates a Manager. users may be nil, in which case member ids are not
// checked against the directory.
func New(groups GroupStore, collab CollaborationStore, users Users, audit *auditlog.Logger, logger *zap.Logger) *Manager {
	return &Manager{groups: groups, collab: collab, users: users, audit: audit, log: logger}
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return sentinel
	}
	return err
}

func (m *Manager) checkUsers(ctx context.Context, ids []string) error {
	if m.users == nil {
		return nil
	}
	for _, id := range ids {
		ok, err := m.users.UserExists(ctx, id)
		if err != nil {
			return fmt.Errorf("look up member %s: %w", id, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownMember, id)
		}
	}
	return nil
}

// CreateGroup creates a group. The creator is always a member and the sole
// initial admin.
func (m *Manager) CreateGroup(ctx context.Context, name string, members []string, groupType, createdBy string) (models.Group, error) {
	name = normalize.Name(name)
	groupType = strings.ToLower(strings.TrimSpace(groupType))
	createdBy = strings.TrimSpace(createdBy)

	switch {
	case name == "":
		return models.Group{}, ErrNameRequired
	case !models.IsValidGroupType(groupType):
		return models.Group{}, fmt.Errorf("%w: %q", ErrInvalidType, groupType)
	case createdBy == "":
		return models.Group{}, ErrCreatorRequired
	}

	all := normalize.IDs(append([]string{createdBy}, members...))
	if err := m.checkUsers(ctx, all); err != nil {
		return models.Group{}, err
	}

	g, err := m.groups.Create(ctx, models.Group{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      groupType,
		Members:   all,
		Admins:    []string{createdBy},
		CreatedBy: createdBy,
	})
	if err != nil {
		return models.Group{}, fmt.Errorf("create group: %w", err)
	}

	m.audit.GroupCreated(ctx, createdBy, g.ID, g.Name, g.Type)
	m.log.Info("group created",
		zap.String("group_id", g.ID),
		zap.String("type", g.Type),
		zap.Int("members", len(g.Members)))
	return g, nil
}

// Group returns a group by id.
func (m *Manager) Group(ctx context.Context, groupID string) (models.Group, error) {
	g, err := m.groups.GetByID(ctx, groupID)
	if err != nil {
		return models.Group{}, notFound(err, ErrNotFound)
	}
	return g, nil
}

// Members returns a snapshot of the group's member ids.
func (m *Manager) Members(ctx context.Context, groupID string) ([]string, error) {
	g, err := m.Group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return g.Members, nil
}

// GroupsForUser lists the groups userID belongs to.
func (m *Manager) GroupsForUser(ctx context.Context, userID string) ([]models.Group, error) {
	return m.groups.ListByMember(ctx, userID)
}

// AddMember adds userID to the group. Adding an existing member is a no-op.
func (m *Manager) AddMember(ctx context.Context, actorID, groupID, userID string) error {
	if err := m.checkUsers(ctx, []string{userID}); err != nil {
		return err
	}
	ok, err := m.groups.AddMember(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	m.audit.MemberAddedToGroup(ctx, actorID, userID, groupID)
	return nil
}

// RemoveMember removes userID from the group, revoking admin rights too.
// Removing a non-member is a no-op. Removing the last admin fails with
// ErrLastAdmin.
func (m *Manager) RemoveMember(ctx context.Context, actorID, groupID, userID string) error {
	ok, err := m.groups.RemoveMember(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if !ok {
		return m.explainRefusal(ctx, groupID)
	}
	m.audit.MemberRemovedFromGroup(ctx, actorID, userID, groupID)
	return nil
}

// PromoteAdmin grants admin rights to an existing member.
func (m *Manager) PromoteAdmin(ctx context.Context, actorID, groupID, userID string) error {
	ok, err := m.groups.AddAdmin(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("promote admin: %w", err)
	}
	if !ok {
		if _, err := m.Group(ctx, groupID); err != nil {
			return err
		}
		return ErrNotMember
	}
	m.audit.GroupAdminPromoted(ctx, actorID, userID, groupID)
	return nil
}

// DemoteAdmin revokes admin rights. The user stays a member. Demoting the
// last admin fails with ErrLastAdmin.
func (m *Manager) DemoteAdmin(ctx context.Context, actorID, groupID, userID string) error {
	ok, err := m.groups.RemoveAdmin(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("demote admin: %w", err)
	}
	if !ok {
		return m.explainRefusal(ctx, groupID)
	}
	m.audit.GroupAdminDemoted(ctx, actorID, userID, groupID)
	return nil
}

// explainRefusal distinguishes a missing group from a last-admin refusal
// after a guarded update matched nothing.
func (m *Manager) explainRefusal(ctx context.Context, groupID string) error {
	if _, err := m.Group(ctx, groupID); err != nil {
		return err
	}
	return ErrLastAdmin
}

// OpenCollaboration creates the collaboration for taskID or merges
// participants into it. It returns the collaboration and the participants
// this call added.
func (m *Manager) OpenCollaboration(ctx context.Context, taskID string, participants []string) (models.Collaboration, []string, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return models.Collaboration{}, nil, ErrTaskRequired
	}
	participants = normalize.IDs(participants)
	if len(participants) == 0 {
		return models.Collaboration{}, nil, ErrNoParticipants
	}
	if err := m.checkUsers(ctx, participants); err != nil {
		return models.Collaboration{}, nil, err
	}

	c, added, err := m.collab.Open(ctx, taskID, participants)
	if err != nil {
		return models.Collaboration{}, nil, fmt.Errorf("open collaboration: %w", err)
	}
	m.log.Info("collaboration opened",
		zap.String("task_id", taskID),
		zap.Int("participants", len(c.Participants)),
		zap.Int("added", len(added)))
	return c, added, nil
}

// Collaboration returns the collaboration for taskID.
func (m *Manager) Collaboration(ctx context.Context, taskID string) (models.Collaboration, error) {
	c, err := m.collab.GetByTaskID(ctx, taskID)
	if err != nil {
		return models.Collaboration{}, notFound(err, ErrCollabNotFound)
	}
	return c, nil
}

// ActiveCollaboration returns the collaboration only if it is open.
func (m *Manager) ActiveCollaboration(ctx context.Context, taskID string) (models.Collaboration, error) {
	c, err := m.Collaboration(ctx, taskID)
	if err != nil {
		return models.Collaboration{}, err
	}
	if c.Status == models.CollaborationClosed {
		return models.Collaboration{}, ErrCollaborationClosed
	}
	return c, nil
}

// AppendMessage records a message sent into the collaboration.
func (m *Manager) AppendMessage(ctx context.Context, taskID, messageID string) error {
	ok, err := m.collab.AppendMessage(ctx, taskID, messageID)
	if err != nil {
		return fmt.Errorf("append collaboration message: %w", err)
	}
	if !ok {
		return ErrCollabNotFound
	}
	return nil
}

// AttachFile adds a file reference. Only participants may attach, and only
// while the collaboration is active.
func (m *Manager) AttachFile(ctx context.Context, taskID, uploadedBy, name, url string) (models.CollaborationFile, error) {
	name = strings.TrimSpace(name)
	url = strings.TrimSpace(url)
	if name == "" || url == "" {
		return models.CollaborationFile{}, ErrInvalidFile
	}
	c, err := m.ActiveCollaboration(ctx, taskID)
	if err != nil {
		return models.CollaborationFile{}, err
	}
	if !c.HasParticipant(uploadedBy) {
		return models.CollaborationFile{}, ErrNotMember
	}

	f := models.CollaborationFile{
		Name:       name,
		URL:        url,
		UploadedBy: uploadedBy,
		UploadedAt: time.Now().UTC(),
	}
	ok, err := m.collab.AddFile(ctx, taskID, f)
	if err != nil {
		return models.CollaborationFile{}, fmt.Errorf("attach file: %w", err)
	}
	if !ok {
		return models.CollaborationFile{}, ErrCollabNotFound
	}
	return f, nil
}

// CloseCollaboration marks the collaboration closed. Closing twice is a no-op.
func (m *Manager) CloseCollaboration(ctx context.Context, actorID, taskID string) error {
	ok, err := m.collab.SetStatus(ctx, taskID, models.CollaborationClosed)
	if err != nil {
		return fmt.Errorf("close collaboration: %w", err)
	}
	if !ok {
		return ErrCollabNotFound
	}
	m.audit.CollaborationClosed(ctx, actorID, taskID)
	return nil
}
