// Package directory is the identity and organization directory: users,
// departments, teams, roles and role assignments.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/stratacomm/internal/app/system/auditlog"
	"github.com/dalemusser/stratacomm/internal/app/system/inputval"
	"github.com/dalemusser/stratacomm/internal/app/system/normalize"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUnknownUser        = errors.New("unknown or inactive user")
	ErrNameRequired       = errors.New("name is required")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidStatus      = errors.New(`status must be "active" or "disabled"`)
	ErrManagerRequired    = errors.New("department manager is required")
	ErrLeaderRequired     = errors.New("team leader is required")
	ErrDepartmentNotFound = errors.New("department not found")
	ErrParentNotFound     = errors.New("parent department not found")
	ErrRoleNotFound       = errors.New("role not found")
	ErrAssignmentNotFound = errors.New("role is not assigned to user")
)

type UserStore interface {
	Create(ctx context.Context, u models.User) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	ExistsActive(ctx context.Context, id string) (bool, error)
}

type DepartmentStore interface {
	Create(ctx context.Context, d models.Department) (models.Department, error)
	GetByID(ctx context.Context, id string) (models.Department, error)
}

type TeamStore interface {
	Create(ctx context.Context, t models.Team) (models.Team, error)
}

type RoleStore interface {
	Create(ctx context.Context, r models.Role) (models.Role, error)
	GetByID(ctx context.Context, id string) (models.Role, error)
}

type AssignmentStore interface {
	Assign(ctx context.Context, a models.RoleAssignment) error
	Revoke(ctx context.Context, userID, roleID string) (bool, error)
}

// Snapshotter reads departments, teams and roles as one consistent view.
type Snapshotter interface {
	Snapshot(ctx context.Context) (models.Organization, error)
}

// RoleResolver resolves a user's roles and drops any cached copy. The
// permission evaluator satisfies it.
type RoleResolver interface {
	RolesForUser(ctx context.Context, userID string) ([]models.Role, error)
	Invalidate(ctx context.Context, userID string)
}

// Stores groups the record stores the directory writes to.
type Stores struct {
	Users       UserStore
	Departments DepartmentStore
	Teams       TeamStore
	Roles       RoleStore
	Assignments AssignmentStore
	Org         Snapshotter
}

// Directory owns the identity and org records.
type Directory struct {
	st       Stores
	resolver RoleResolver
	audit    *auditlog.Logger
	log      *zap.Logger
}

func New(st Stores, resolver RoleResolver, audit *auditlog.Logger, logger *zap.Logger) *Directory {
	return &Directory{st: st, resolver: resolver, audit: audit, log: logger}
}

// NewUser is the input to CreateUser. ID is optional; identities issued by
// an external provider keep their id.
type NewUser struct {
	ID       string
	FullName string
	Email    string
	Status   string
}

// CreateUser registers a user.
func (d *Directory) CreateUser(ctx context.Context, actorID string, in NewUser) (models.User, error) {
	u := models.User{
		ID:       strings.TrimSpace(in.ID),
		FullName: normalize.Name(in.FullName),
		Email:    normalize.Email(in.Email),
		Status:   normalize.Status(in.Status),
	}
	if u.FullName == "" {
		return models.User{}, ErrNameRequired
	}
	if u.Email != "" && !inputval.IsValidEmail(u.Email) {
		return models.User{}, ErrInvalidEmail
	}
	switch u.Status {
	case "":
		u.Status = models.UserStatusActive
	case models.UserStatusActive, models.UserStatusDisabled:
	default:
		return models.User{}, ErrInvalidStatus
	}

	created, err := d.st.Users.Create(ctx, u)
	if err != nil {
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	d.audit.UserCreated(ctx, actorID, created.ID)
	return created, nil
}

// User returns a user by id.
func (d *Directory) User(ctx context.Context, id string) (models.User, error) {
	u, err := d.st.Users.GetByID(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrUserNotFound
	}
	return u, err
}

// UserExists reports whether id names an active user.
func (d *Directory) UserExists(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, nil
	}
	return d.st.Users.ExistsActive(ctx, id)
}

func (d *Directory) requireUsers(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		ok, err := d.UserExists(ctx, id)
		if err != nil {
			return fmt.Errorf("look up user %s: %w", id, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownUser, id)
		}
	}
	return nil
}

// CreateDepartment creates a department. The manager is always a member.
// When parentID is set it must name an existing department; deeper
// hierarchy checks such as cycle detection are left to the caller.
func (d *Directory) CreateDepartment(ctx context.Context, actorID, name, managerID, parentID string) (models.Department, error) {
	name = normalize.Name(name)
	managerID = strings.TrimSpace(managerID)
	parentID = strings.TrimSpace(parentID)
	if name == "" {
		return models.Department{}, ErrNameRequired
	}
	if managerID == "" {
		return models.Department{}, ErrManagerRequired
	}
	if err := d.requireUsers(ctx, managerID); err != nil {
		return models.Department{}, err
	}
	if parentID != "" {
		if _, err := d.st.Departments.GetByID(ctx, parentID); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return models.Department{}, ErrParentNotFound
			}
			return models.Department{}, fmt.Errorf("load parent department: %w", err)
		}
	}

	dept, err := d.st.Departments.Create(ctx, models.Department{
		ID:        uuid.NewString(),
		Name:      name,
		ParentID:  parentID,
		ManagerID: managerID,
		Members:   []string{managerID},
	})
	if err != nil {
		return models.Department{}, fmt.Errorf("create department: %w", err)
	}
	d.audit.DepartmentCreated(ctx, actorID, dept.ID, dept.Name)
	return dept, nil
}

// CreateTeam creates a team inside an existing department. The leader is
// added to members and members are de-duplicated.
func (d *Directory) CreateTeam(ctx context.Context, actorID, name, departmentID, leaderID string, members []string) (models.Team, error) {
	name = normalize.Name(name)
	departmentID = strings.TrimSpace(departmentID)
	leaderID = strings.TrimSpace(leaderID)
	if name == "" {
		return models.Team{}, ErrNameRequired
	}
	if leaderID == "" {
		return models.Team{}, ErrLeaderRequired
	}
	if _, err := d.st.Departments.GetByID(ctx, departmentID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Team{}, ErrDepartmentNotFound
		}
		return models.Team{}, fmt.Errorf("load department: %w", err)
	}

	all := normalize.IDs(append([]string{leaderID}, members...))
	if err := d.requireUsers(ctx, all...); err != nil {
		return models.Team{}, err
	}

	team, err := d.st.Teams.Create(ctx, models.Team{
		ID:           uuid.NewString(),
		Name:         name,
		DepartmentID: departmentID,
		LeaderID:     leaderID,
		Members:      all,
	})
	if err != nil {
		return models.Team{}, fmt.Errorf("create team: %w", err)
	}
	d.audit.TeamCreated(ctx, actorID, team.ID, departmentID, team.Name)
	return team, nil
}

// CreateRole validates and stores a role. Roles granting a wildcard are
// allowed but logged and audited.
func (d *Directory) CreateRole(ctx context.Context, actorID, name string, perms []models.Permission) (models.Role, error) {
	return d.CreateRoleWithID(ctx, actorID, models.Role{Name: name, Permissions: perms})
}

// CreateRoleWithID is CreateRole for callers that need a stable id, such as
// the per-group admin role. An empty ID gets a new one.
func (d *Directory) CreateRoleWithID(ctx context.Context, actorID string, r models.Role) (models.Role, error) {
	if strings.TrimSpace(r.ID) == "" {
		r.ID = uuid.NewString()
	}
	r.Name = normalize.Name(r.Name)
	r = r.Canonical()
	if err := r.Validate(); err != nil {
		return models.Role{}, err
	}
	created, err := d.st.Roles.Create(ctx, r)
	if err != nil {
		return models.Role{}, fmt.Errorf("create role: %w", err)
	}
	if created.IsWildcard() {
		d.log.Warn("wildcard role created",
			zap.String("role_id", created.ID),
			zap.String("role_name", created.Name),
			zap.String("actor_id", actorID))
	}
	d.audit.RoleCreated(ctx, actorID, created.ID, created.Name, created.IsWildcard())
	return created, nil
}

// AssignRole grants roleID to userID. Assigning twice is a no-op.
func (d *Directory) AssignRole(ctx context.Context, actorID, userID, roleID string) error {
	if err := d.requireUsers(ctx, userID); err != nil {
		return err
	}
	role, err := d.st.Roles.GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("load role: %w", err)
	}
	if err := d.st.Assignments.Assign(ctx, models.RoleAssignment{
		UserID:     userID,
		RoleID:     roleID,
		AssignedBy: actorID,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	d.resolver.Invalidate(ctx, userID)

	if role.IsWildcard() {
		d.log.Warn("wildcard role assigned",
			zap.String("role_id", roleID),
			zap.String("user_id", userID),
			zap.String("actor_id", actorID))
	}
	d.audit.RoleAssigned(ctx, actorID, userID, roleID, role.IsWildcard())
	return nil
}

// RevokeRole removes an assignment.
func (d *Directory) RevokeRole(ctx context.Context, actorID, userID, roleID string) error {
	removed, err := d.st.Assignments.Revoke(ctx, userID, roleID)
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	if !removed {
		return ErrAssignmentNotFound
	}
	d.resolver.Invalidate(ctx, userID)
	d.audit.RoleRevoked(ctx, actorID, userID, roleID)
	return nil
}

// RolesForUser returns the roles currently assigned to userID.
func (d *Directory) RolesForUser(ctx context.Context, userID string) ([]models.Role, error) {
	return d.resolver.RolesForUser(ctx, userID)
}

// Organization returns departments, teams and roles read together.
func (d *Directory) Organization(ctx context.Context) (models.Organization, error) {
	return d.st.Org.Snapshot(ctx)
}
