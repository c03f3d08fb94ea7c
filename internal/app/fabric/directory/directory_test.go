package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/dalemusser/stratacomm/internal/app/store/audit"
	"github.com/dalemusser/stratacomm/internal/app/store/memstore"
	rolestore "github.com/dalemusser/stratacomm/internal/app/store/roles"
	userstore "github.com/dalemusser/stratacomm/internal/app/store/users"
	"github.com/dalemusser/stratacomm/internal/app/system/auditlog"
	"github.com/dalemusser/stratacomm/internal/app/system/authz"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"go.uber.org/zap"
)

func newDirectory(t *testing.T) (*Directory, *authz.Evaluator, *memstore.Store) {
	t.Helper()
	ms := memstore.New()
	eval := authz.NewEvaluator(ms.RoleAssignments(), ms.Roles(), nil, zap.NewNop())
	d := New(Stores{
		Users:       ms.Users(),
		Departments: ms.Departments(),
		Teams:       ms.Teams(),
		Roles:       ms.Roles(),
		Assignments: ms.RoleAssignments(),
		Org:         ms.Organization(),
	}, eval, auditlog.New(ms.Audit(), zap.NewNop(), auditlog.Config{}), zap.NewNop())
	return d, eval, ms
}

func mustUser(t *testing.T, d *Directory, id string) {
	t.Helper()
	if _, err := d.CreateUser(context.Background(), "admin", NewUser{ID: id, FullName: id, Email: id + "@example.com"}); err != nil {
		t.Fatalf("CreateUser(%s): %v", id, err)
	}
}

func TestCreateUser(t *testing.T) {
	d, _, _ := newDirectory(t)
	ctx := context.Background()

	u, err := d.CreateUser(ctx, "admin", NewUser{FullName: "  Ada   Lovelace ", Email: "ADA@Example.com"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" || u.FullName != "Ada Lovelace" || u.Email != "ada@example.com" || u.Status != models.UserStatusActive {
		t.Errorf("unexpected user: %+v", u)
	}

	tests := []struct {
		name string
		in   NewUser
		want error
	}{
		{"missing name", NewUser{Email: "x@example.com"}, ErrNameRequired},
		{"bad email", NewUser{FullName: "X", Email: "not-an-email"}, ErrInvalidEmail},
		{"bad status", NewUser{FullName: "X", Status: "archived"}, ErrInvalidStatus},
		{"duplicate email", NewUser{FullName: "Other", Email: "ada@example.com"}, userstore.ErrDuplicateUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.CreateUser(ctx, "admin", tt.in); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	disabled, err := d.CreateUser(ctx, "admin", NewUser{FullName: "Gone", Status: "disabled"})
	if err != nil {
		t.Fatalf("CreateUser(disabled): %v", err)
	}
	if ok, _ := d.UserExists(ctx, disabled.ID); ok {
		t.Error("disabled user should not count as existing")
	}
	if _, err := d.User(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("User(missing) err = %v", err)
	}
}

func TestDepartmentsAndTeams(t *testing.T) {
	d, _, _ := newDirectory(t)
	ctx := context.Background()
	for _, id := range []string{"mgr", "lead", "dev1", "dev2"} {
		mustUser(t, d, id)
	}

	if _, err := d.CreateDepartment(ctx, "admin", "Eng", "mgr", "nope"); !errors.Is(err, ErrParentNotFound) {
		t.Errorf("missing parent err = %v", err)
	}
	if _, err := d.CreateDepartment(ctx, "admin", "Eng", "ghost", ""); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("unknown manager err = %v", err)
	}

	eng, err := d.CreateDepartment(ctx, "admin", "Eng", "mgr", "")
	if err != nil {
		t.Fatalf("CreateDepartment: %v", err)
	}
	if len(eng.Members) != 1 || eng.Members[0] != "mgr" {
		t.Errorf("department members = %v, want [mgr]", eng.Members)
	}
	if _, err := d.CreateDepartment(ctx, "admin", "Platform", "mgr", eng.ID); err != nil {
		t.Fatalf("child department: %v", err)
	}

	if _, err := d.CreateTeam(ctx, "admin", "Core", "missing", "lead", nil); !errors.Is(err, ErrDepartmentNotFound) {
		t.Errorf("missing department err = %v", err)
	}
	team, err := d.CreateTeam(ctx, "admin", "Core", eng.ID, "lead", []string{"dev1", "lead", "dev2", "dev1"})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	want := []string{"lead", "dev1", "dev2"}
	if len(team.Members) != len(want) {
		t.Fatalf("team members = %v, want %v", team.Members, want)
	}
	for i := range want {
		if team.Members[i] != want[i] {
			t.Errorf("team members = %v, want %v", team.Members, want)
			break
		}
	}

	org, err := d.Organization(ctx)
	if err != nil {
		t.Fatalf("Organization: %v", err)
	}
	if len(org.Departments) != 2 || len(org.Teams) != 1 {
		t.Errorf("organization = %d departments, %d teams", len(org.Departments), len(org.Teams))
	}
}

func TestRoles_AssignInvalidatesAndAudits(t *testing.T) {
	d, eval, ms := newDirectory(t)
	ctx := context.Background()
	mustUser(t, d, "u1")

	if _, err := d.CreateRole(ctx, "admin", "Bad", []models.Permission{{Resource: "x", Actions: []models.Action{"approve"}}}); !errors.Is(err, models.ErrUnknownAction) {
		t.Errorf("invalid action err = %v", err)
	}

	root, err := d.CreateRole(ctx, "admin", "Root", []models.Permission{{Resource: models.AnyResource, Actions: []models.Action{models.ActionAny}}})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := d.CreateRole(ctx, "admin", "root", []models.Permission{{Resource: "x", Actions: []models.Action{models.ActionRead}}}); !errors.Is(err, rolestore.ErrDuplicateRoleName) {
		t.Errorf("duplicate role err = %v", err)
	}

	if eval.Check(ctx, "u1", "anything", models.ActionDelete) {
		t.Fatal("unassigned user allowed")
	}
	if err := d.AssignRole(ctx, "admin", "u1", root.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if !eval.Check(ctx, "u1", "anything", models.ActionDelete) {
		t.Error("wildcard role did not grant access")
	}
	if err := d.AssignRole(ctx, "admin", "u1", "missing"); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("assign missing role err = %v", err)
	}

	if err := d.RevokeRole(ctx, "admin", "u1", root.ID); err != nil {
		t.Fatalf("RevokeRole: %v", err)
	}
	if err := d.RevokeRole(ctx, "admin", "u1", root.ID); !errors.Is(err, ErrAssignmentNotFound) {
		t.Errorf("second revoke err = %v", err)
	}
	if eval.Check(ctx, "u1", "anything", models.ActionDelete) {
		t.Error("revoked role still grants access")
	}

	var security int
	for _, e := range ms.Audit().Events() {
		if e.Category == audit.CategorySecurity {
			security++
		}
	}
	if security != 2 {
		t.Errorf("security audit events = %d, want 2 (wildcard created and assigned)", security)
	}
}

func TestCreateRole_CanonicalizesPermissions(t *testing.T) {
	d, eval, _ := newDirectory(t)
	ctx := context.Background()
	mustUser(t, d, "u1")

	r, err := d.CreateRole(ctx, "admin", "Readers", []models.Permission{
		{Resource: " groups ", Actions: []models.Action{"READ", " Write "}},
	})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	got := r.Permissions[0]
	if got.Resource != "groups" {
		t.Errorf("resource = %q, want %q", got.Resource, "groups")
	}
	if got.Actions[0] != models.ActionRead || got.Actions[1] != models.ActionWrite {
		t.Errorf("actions = %v, want [read write]", got.Actions)
	}

	if err := d.AssignRole(ctx, "admin", "u1", r.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	tests := []struct {
		resource string
		action   models.Action
		want     bool
	}{
		{"groups", models.ActionRead, true},
		{"groups", models.ActionWrite, true},
		{"groups", models.ActionDelete, false},
		{"users", models.ActionRead, false},
	}
	for _, tc := range tests {
		if got := eval.Check(ctx, "u1", tc.resource, tc.action); got != tc.want {
			t.Errorf("Check(%s, %s) = %v, want %v", tc.resource, tc.action, got, tc.want)
		}
	}
}
