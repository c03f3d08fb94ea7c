package memstore

import (
	"context"
	"sort"
	"time"

	departmentstore "github.com/dalemusser/stratacomm/internal/app/store/departments"
	rolestore "github.com/dalemusser/stratacomm/internal/app/store/roles"
	teamstore "github.com/dalemusser/stratacomm/internal/app/store/teams"
	userstore "github.com/dalemusser/stratacomm/internal/app/store/users"
	"github.com/dalemusser/stratacomm/internal/app/system/normalize"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// Users mirrors userstore.Store.
type Users struct{ s *Store }

func (u *Users) Create(_ context.Context, usr models.User) (models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	usr.FullName = normalize.Name(usr.FullName)
	usr.FullNameCI = text.Fold(usr.FullName)
	usr.Email = normalize.Email(usr.Email)
	usr.Status = normalize.Status(usr.Status)
	if usr.Status == "" {
		usr.Status = models.UserStatusActive
	}
	if _, dup := u.s.users[usr.ID]; dup {
		return models.User{}, userstore.ErrDuplicateUser
	}
	if usr.Email != "" {
		for _, other := range u.s.users {
			if other.Email == usr.Email {
				return models.User{}, userstore.ErrDuplicateUser
			}
		}
	}
	now := time.Now().UTC()
	usr.CreatedAt = now
	usr.UpdatedAt = now
	u.s.users[usr.ID] = usr
	return usr, nil
}

func (u *Users) GetByID(_ context.Context, id string) (models.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	usr, ok := u.s.users[id]
	if !ok {
		return models.User{}, mongo.ErrNoDocuments
	}
	return usr, nil
}

func (u *Users) ExistsActive(_ context.Context, id string) (bool, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	usr, ok := u.s.users[id]
	return ok && usr.Status == models.UserStatusActive, nil
}

// Departments mirrors departmentstore.Store.
type Departments struct{ s *Store }

func (d *Departments) Create(_ context.Context, dept models.Department) (models.Department, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	dept.NameCI = text.Fold(dept.Name)
	for _, other := range d.s.departments {
		if other.ParentID == dept.ParentID && other.NameCI == dept.NameCI {
			return models.Department{}, departmentstore.ErrDuplicateDepartmentName
		}
	}
	now := time.Now().UTC()
	dept.Members = clone(dept.Members)
	dept.CreatedAt = now
	dept.UpdatedAt = now
	d.s.departments[dept.ID] = dept
	return dept, nil
}

func (d *Departments) GetByID(_ context.Context, id string) (models.Department, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	dept, ok := d.s.departments[id]
	if !ok {
		return models.Department{}, mongo.ErrNoDocuments
	}
	return dept, nil
}

func (d *Departments) List(_ context.Context) ([]models.Department, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	return d.s.listDepartments(), nil
}

func (s *Store) listDepartments() []models.Department {
	out := make([]models.Department, 0, len(s.departments))
	for _, dept := range s.departments {
		out = append(out, dept)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NameCI != out[j].NameCI {
			return out[i].NameCI < out[j].NameCI
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Teams mirrors teamstore.Store.
type Teams struct{ s *Store }

func (t *Teams) Create(_ context.Context, team models.Team) (models.Team, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	team.NameCI = text.Fold(team.Name)
	for _, other := range t.s.teams {
		if other.DepartmentID == team.DepartmentID && other.NameCI == team.NameCI {
			return models.Team{}, teamstore.ErrDuplicateTeamName
		}
	}
	now := time.Now().UTC()
	team.Members = clone(team.Members)
	team.CreatedAt = now
	team.UpdatedAt = now
	t.s.teams[team.ID] = team
	return team, nil
}

func (t *Teams) List(_ context.Context) ([]models.Team, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.listTeams(), nil
}

func (s *Store) listTeams() []models.Team {
	out := make([]models.Team, 0, len(s.teams))
	for _, team := range s.teams {
		out = append(out, team)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DepartmentID != b.DepartmentID {
			return a.DepartmentID < b.DepartmentID
		}
		if a.NameCI != b.NameCI {
			return a.NameCI < b.NameCI
		}
		return a.ID < b.ID
	})
	return out
}

// Roles mirrors rolestore.Store.
type Roles struct{ s *Store }

func (r *Roles) Create(_ context.Context, role models.Role) (models.Role, error) {
	if err := role.Validate(); err != nil {
		return models.Role{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	role.NameCI = text.Fold(role.Name)
	if _, dup := r.s.roles[role.ID]; dup {
		return models.Role{}, rolestore.ErrDuplicateRoleName
	}
	for _, other := range r.s.roles {
		if other.NameCI == role.NameCI {
			return models.Role{}, rolestore.ErrDuplicateRoleName
		}
	}
	role.CreatedAt = time.Now().UTC()
	r.s.roles[role.ID] = role
	return role, nil
}

func (r *Roles) GetByID(_ context.Context, id string) (models.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	role, ok := r.s.roles[id]
	if !ok {
		return models.Role{}, mongo.ErrNoDocuments
	}
	return role, nil
}

func (r *Roles) GetByIDs(_ context.Context, ids []string) ([]models.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.Role
	for _, id := range ids {
		if role, ok := r.s.roles[id]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (r *Roles) List(_ context.Context) ([]models.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.listRoles(), nil
}

func (s *Store) listRoles() []models.Role {
	out := make([]models.Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NameCI != out[j].NameCI {
			return out[i].NameCI < out[j].NameCI
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Assignments mirrors roleassignstore.Store.
type Assignments struct{ s *Store }

func (a *Assignments) Assign(_ context.Context, ra models.RoleAssignment) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for _, existing := range a.s.assignments {
		if existing.UserID == ra.UserID && existing.RoleID == ra.RoleID {
			return nil
		}
	}
	if ra.CreatedAt.IsZero() {
		ra.CreatedAt = time.Now().UTC()
	}
	a.s.assignments = append(a.s.assignments, ra)
	return nil
}

func (a *Assignments) Revoke(_ context.Context, userID, roleID string) (bool, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for i, existing := range a.s.assignments {
		if existing.UserID == userID && existing.RoleID == roleID {
			a.s.assignments = append(a.s.assignments[:i], a.s.assignments[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (a *Assignments) RoleIDsByUser(_ context.Context, userID string) ([]string, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	var ids []string
	for _, ra := range a.s.assignments {
		if ra.UserID == userID {
			ids = append(ids, ra.RoleID)
		}
	}
	return ids, nil
}

// Organization mirrors organizationstore.Store.
type Organization struct{ s *Store }

func (o *Organization) Snapshot(_ context.Context) (models.Organization, error) {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()
	return models.Organization{
		Departments: o.s.listDepartments(),
		Teams:       o.s.listTeams(),
		Roles:       o.s.listRoles(),
	}, nil
}
