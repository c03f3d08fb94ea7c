// Package fabrictest builds an in-memory fabric for handler tests.
package fabrictest

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/stratacomm/internal/app/fabric"
	"github.com/dalemusser/stratacomm/internal/app/fabric/directory"
	"github.com/dalemusser/stratacomm/internal/app/fabric/notify"
	"github.com/dalemusser/stratacomm/internal/app/store/memstore"
	"github.com/dalemusser/stratacomm/internal/app/system/livepush"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"go.uber.org/zap"
)

// AdminID is the seeded administrator. Alice, Bob and Carol are seeded as
// active users with no roles.
const AdminID = "root"

// TaskLinkBase is the link prefix used for task notifications.
const TaskLinkBase = "https://app.example.com/tasks"

// Env is a memstore-backed fabric and the store underneath it.
type Env struct {
	Fabric *fabric.Fabric
	Store  *memstore.Store
	t      *testing.T
}

// Stores maps a memstore onto the fabric's store set.
func Stores(ms *memstore.Store) fabric.Stores {
	return fabric.Stores{
		Users:          ms.Users(),
		Departments:    ms.Departments(),
		Teams:          ms.Teams(),
		Roles:          ms.Roles(),
		Assignments:    ms.RoleAssignments(),
		Org:            ms.Organization(),
		Groups:         ms.Groups(),
		Collaborations: ms.Collaborations(),
		Messages:       ms.Messages(),
		Links:          ms.UserMessages(),
		Notifications:  ms.Notifications(),
		Audit:          ms.Audit(),
	}
}

// New returns a seeded environment. adapter may be nil.
func New(t *testing.T, adapter livepush.Adapter) *Env {
	t.Helper()
	if adapter == nil {
		adapter = livepush.Nop{}
	}
	log := zap.NewNop()
	ms := memstore.New()
	pusher := livepush.NewPusher(adapter, 100*time.Millisecond, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pusher.Drain(ctx)
	})

	f := fabric.Build(Stores(ms), fabric.Options{
		Pusher: pusher,
		Notify: notify.Config{TaskLinkBase: TaskLinkBase},
	}, log)

	ctx := context.Background()
	if err := f.EnsureAdmin(ctx, AdminID, "Root Admin"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	for _, id := range []string{"alice", "bob", "carol"} {
		if _, err := f.CreateUser(ctx, AdminID, directory.NewUser{ID: id, FullName: id}); err != nil {
			t.Fatalf("CreateUser(%s): %v", id, err)
		}
	}
	return &Env{Fabric: f, Store: ms, t: t}
}

// Grant gives userID a fresh role with actions on resource.
func (e *Env) Grant(userID, resource string, actions ...models.Action) models.Role {
	e.t.Helper()
	ctx := context.Background()
	r, err := e.Fabric.CreateRole(ctx, AdminID, userID+" on "+resource, []models.Permission{{Resource: resource, Actions: actions}})
	if err != nil {
		e.t.Fatalf("CreateRole: %v", err)
	}
	if err := e.Fabric.AssignRole(ctx, AdminID, userID, r.ID); err != nil {
		e.t.Fatalf("AssignRole: %v", err)
	}
	return r
}

// Group creates a group owned by creator, granting creator groups/write
// first.
func (e *Env) Group(creator, name string, members ...string) models.Group {
	e.t.Helper()
	ctx := context.Background()
	if !e.Fabric.Check(ctx, creator, fabric.ResourceGroups, models.ActionWrite) {
		e.Grant(creator, fabric.ResourceGroups, models.ActionWrite)
	}
	g, err := e.Fabric.CreateGroup(ctx, creator, name, members, models.GroupTypeProject)
	if err != nil {
		e.t.Fatalf("CreateGroup: %v", err)
	}
	return g
}
