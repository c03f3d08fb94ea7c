package fabric

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/stratacomm/internal/app/fabric/directory"
	"github.com/dalemusser/stratacomm/internal/app/fabric/groups"
	"github.com/dalemusser/stratacomm/internal/app/fabric/notify"
	"github.com/dalemusser/stratacomm/internal/app/store/memstore"
	"github.com/dalemusser/stratacomm/internal/app/system/livepush"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"go.uber.org/zap"
)

func newTestFabric(t *testing.T) (*Fabric, *memstore.Store) {
	t.Helper()
	return newTestFabricWith(t, nil)
}

// newTestFabricWith lets a test wrap the role assignment store.
func newTestFabricWith(t *testing.T, wrap func(AssignmentStore) AssignmentStore) (*Fabric, *memstore.Store) {
	t.Helper()
	log := zap.NewNop()
	ms := memstore.New()
	var assignments AssignmentStore = ms.RoleAssignments()
	if wrap != nil {
		assignments = wrap(assignments)
	}
	f := Build(Stores{
		Users:          ms.Users(),
		Departments:    ms.Departments(),
		Teams:          ms.Teams(),
		Roles:          ms.Roles(),
		Assignments:    assignments,
		Org:            ms.Organization(),
		Groups:         ms.Groups(),
		Collaborations: ms.Collaborations(),
		Messages:       ms.Messages(),
		Links:          ms.UserMessages(),
		Notifications:  ms.Notifications(),
		Audit:          ms.Audit(),
	}, Options{
		Pusher: livepush.NewPusher(livepush.Nop{}, 100*time.Millisecond, log),
		Notify: notify.Config{TaskLinkBase: "https://app.example.com/tasks"},
	}, log)

	ctx := context.Background()
	if err := f.EnsureAdmin(ctx, "root", "Root Admin"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	for _, id := range []string{"alice", "bob", "carol"} {
		if _, err := f.CreateUser(ctx, "root", directory.NewUser{ID: id, FullName: id}); err != nil {
			t.Fatalf("CreateUser(%s): %v", id, err)
		}
	}
	return f, ms
}

func grant(t *testing.T, f *Fabric, userID, resource string, actions ...models.Action) {
	t.Helper()
	ctx := context.Background()
	r, err := f.CreateRole(ctx, "root", userID+" "+resource, []models.Permission{{Resource: resource, Actions: actions}})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := f.AssignRole(ctx, "root", userID, r.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	f, _ := newTestFabric(t)
	ctx := context.Background()
	if err := f.EnsureAdmin(ctx, "root", "Root Admin"); err != nil {
		t.Fatalf("second EnsureAdmin: %v", err)
	}
	if !f.Check(ctx, "root", "anything:at-all", models.ActionDelete) {
		t.Error("administrator denied")
	}
}

func TestDenyByDefault(t *testing.T) {
	f, _ := newTestFabric(t)
	ctx := context.Background()

	resources := []string{ResourceMessages, ResourceNotifications, ResourceGroups, ResourceCollaborations, ResourceOrg, "group:x", "*"}
	for _, res := range resources {
		for _, act := range models.Actions {
			if f.Check(ctx, "alice", res, act) {
				t.Errorf("Check(alice, %s, %s) = true with no roles", res, act)
			}
		}
	}

	if _, err := f.SendDirect(ctx, "alice", []string{"bob"}, models.MessagePayload{Content: "hi"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("SendDirect err = %v, want ErrForbidden", err)
	}
	if _, err := f.CreateGroup(ctx, "alice", "g", nil, "custom"); !errors.Is(err, ErrForbidden) {
		t.Errorf("CreateGroup err = %v, want ErrForbidden", err)
	}
	if _, err := f.Organization(ctx, "alice"); !errors.Is(err, ErrForbidden) {
		t.Errorf("Organization err = %v, want ErrForbidden", err)
	}
}

func TestGroupGrantsFollowAdmins(t *testing.T) {
	f, _ := newTestFabric(t)
	ctx := context.Background()
	grant(t, f, "alice", ResourceGroups, models.ActionWrite)

	g, err := f.CreateGroup(ctx, "alice", "eng", nil, "custom")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if len(g.Members) != 1 || g.Members[0] != "alice" || len(g.Admins) != 1 || g.Admins[0] != "alice" {
		t.Errorf("group = %+v, want creator as sole member and admin", g)
	}
	if !f.Check(ctx, "alice", models.GroupResource(g.ID), models.ActionManage) {
		t.Fatal("creator lacks manage on the group")
	}

	if err := f.AddMember(ctx, "bob", g.ID, "carol"); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-admin AddMember err = %v", err)
	}
	if err := f.AddMember(ctx, "alice", g.ID, "bob"); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	// Members post without any role.
	res, err := f.SendToGroup(ctx, "bob", g.ID, models.MessagePayload{Content: "hello team"})
	if err != nil || !res.Success {
		t.Fatalf("member SendToGroup = %+v, %v", res, err)
	}
	if _, err := f.SendToGroup(ctx, "carol", g.ID, models.MessagePayload{Content: "let me in"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-member SendToGroup err = %v", err)
	}

	if err := f.PromoteAdmin(ctx, "alice", g.ID, "bob"); err != nil {
		t.Fatalf("PromoteAdmin: %v", err)
	}
	if !f.Check(ctx, "bob", models.GroupResource(g.ID), models.ActionManage) {
		t.Error("promoted admin lacks manage")
	}
	if err := f.DemoteAdmin(ctx, "alice", g.ID, "bob"); err != nil {
		t.Fatalf("DemoteAdmin: %v", err)
	}
	if f.Check(ctx, "bob", models.GroupResource(g.ID), models.ActionManage) {
		t.Error("demoted admin still has manage")
	}
	if err := f.RemoveMember(ctx, "alice", g.ID, "alice"); !errors.Is(err, groups.ErrLastAdmin) {
		t.Errorf("removing last admin err = %v", err)
	}
}

func TestCollaborationAccess(t *testing.T) {
	f, ms := newTestFabric(t)
	ctx := context.Background()

	if _, err := f.CollaborateOnTask(ctx, "alice", "t1", []string{"bob"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("unprivileged CollaborateOnTask err = %v", err)
	}
	res, err := f.CollaborateOnTask(ctx, "root", "t1", []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("CollaborateOnTask: %v", err)
	}
	if len(res.NotifiedTo) != 2 {
		t.Errorf("NotifiedTo = %v", res.NotifiedTo)
	}
	for _, u := range []string{"alice", "bob"} {
		notes, _ := ms.Notifications().ListByUser(ctx, u, 0, false)
		if len(notes) != 1 || notes[0].Type != models.NotificationTypeTask {
			t.Errorf("%s notifications = %+v", u, notes)
		}
	}

	if _, err := f.SendToCollaboration(ctx, "carol", "t1", models.MessagePayload{Content: "hi"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-participant send err = %v", err)
	}
	if _, err := f.SendToCollaboration(ctx, "alice", "t1", models.MessagePayload{Content: "on it"}); err != nil {
		t.Errorf("participant send: %v", err)
	}
	if _, err := f.AttachFile(ctx, "carol", "t1", "x.pdf", "https://files.example.com/x.pdf"); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-participant attach err = %v", err)
	}
	if err := f.CloseCollaboration(ctx, "alice", "t1"); !errors.Is(err, ErrForbidden) {
		t.Errorf("participant close without manage err = %v", err)
	}
	if err := f.CloseCollaboration(ctx, "root", "t1"); err != nil {
		t.Errorf("admin close: %v", err)
	}
}

// flakyAssignments fails Assign while failures is positive.
type flakyAssignments struct {
	AssignmentStore
	failures atomic.Int32
}

func (a *flakyAssignments) Assign(ctx context.Context, ra models.RoleAssignment) error {
	if a.failures.Add(-1) >= 0 {
		return errors.New("assignment store unavailable")
	}
	return a.AssignmentStore.Assign(ctx, ra)
}

func TestGroupAdminGrant_RepairedAfterFailure(t *testing.T) {
	flaky := &flakyAssignments{}
	f, ms := newTestFabricWith(t, func(s AssignmentStore) AssignmentStore {
		flaky.AssignmentStore = s
		return flaky
	})
	ctx := context.Background()
	grant(t, f, "alice", ResourceGroups, models.ActionWrite)

	flaky.failures.Store(1)
	g, err := f.CreateGroup(ctx, "alice", "eng", nil, "custom")
	if err != nil {
		t.Fatalf("CreateGroup with failing grant: %v", err)
	}
	if f.Check(ctx, "alice", models.GroupResource(g.ID), models.ActionManage) {
		t.Fatal("grant unexpectedly present after failed assignment")
	}
	all, err := ms.Groups().ListByMember(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByMember: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("groups for creator = %d, want 1", len(all))
	}

	// The recorded admin can still manage; the grant is restored on the way.
	if err := f.AddMember(ctx, "alice", g.ID, "bob"); err != nil {
		t.Fatalf("AddMember by recorded admin: %v", err)
	}
	if !f.Check(ctx, "alice", models.GroupResource(g.ID), models.ActionManage) {
		t.Error("grant not repaired")
	}

	flaky.failures.Store(1)
	if err := f.PromoteAdmin(ctx, "alice", g.ID, "bob"); err != nil {
		t.Fatalf("PromoteAdmin with failing grant: %v", err)
	}
	if err := f.AddMember(ctx, "bob", g.ID, "carol"); err != nil {
		t.Fatalf("AddMember by promoted admin: %v", err)
	}
	if !f.Check(ctx, "bob", models.GroupResource(g.ID), models.ActionManage) {
		t.Error("promoted admin grant not repaired")
	}

	// Non-admins are still refused.
	if err := f.RemoveMember(ctx, "carol", g.ID, "bob"); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-admin RemoveMember err = %v", err)
	}
}
