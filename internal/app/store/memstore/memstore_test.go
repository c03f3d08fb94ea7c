package memstore

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	usermessagestore "github.com/dalemusser/stratacomm/internal/app/store/usermessages"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestGroups_LastAdminGuard(t *testing.T) {
	ctx := context.Background()
	g := New().Groups()

	if _, err := g.Create(ctx, models.Group{ID: "g1", Name: "Ops", Members: []string{"a", "b"}, Admins: []string{"a"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	tests := []struct {
		name   string
		op     func() (bool, error)
		wantOK bool
	}{
		{"remove last admin refused", func() (bool, error) { return g.RemoveMember(ctx, "g1", "a") }, false},
		{"demote last admin refused", func() (bool, error) { return g.RemoveAdmin(ctx, "g1", "a") }, false},
		{"promote non-member refused", func() (bool, error) { return g.AddAdmin(ctx, "g1", "zed") }, false},
		{"promote member", func() (bool, error) { return g.AddAdmin(ctx, "g1", "b") }, true},
		{"demote once another admin exists", func() (bool, error) { return g.RemoveAdmin(ctx, "g1", "a") }, true},
		{"missing group", func() (bool, error) { return g.AddMember(ctx, "nope", "a") }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := tt.op()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
		})
	}

	got, err := g.GetByID(ctx, "g1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.Admins) != 1 || got.Admins[0] != "b" {
		t.Errorf("admins = %v, want [b]", got.Admins)
	}
}

func TestGroups_RemoveMemberStripsAdmin(t *testing.T) {
	ctx := context.Background()
	g := New().Groups()
	_, _ = g.Create(ctx, models.Group{ID: "g1", Name: "Ops", Members: []string{"a", "b"}, Admins: []string{"a", "b"}})

	ok, err := g.RemoveMember(ctx, "g1", "b")
	if err != nil || !ok {
		t.Fatalf("RemoveMember = %v, %v", ok, err)
	}
	got, _ := g.GetByID(ctx, "g1")
	if got.IsMember("b") || got.IsAdmin("b") {
		t.Errorf("b still present: members=%v admins=%v", got.Members, got.Admins)
	}
}

func TestCollabs_OpenReportsAdded(t *testing.T) {
	ctx := context.Background()
	c := New().Collaborations()

	col, added, err := c.Open(ctx, "t1", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(added) != 2 || col.Status != models.CollaborationActive {
		t.Fatalf("first open: added=%v status=%q", added, col.Status)
	}

	col, added, err = c.Open(ctx, "t1", []string{"b", "c"})
	if err != nil {
		t.Fatalf("Open again: %v", err)
	}
	if len(added) != 1 || added[0] != "c" {
		t.Errorf("added = %v, want [c]", added)
	}
	if len(col.Participants) != 3 {
		t.Errorf("participants = %v, want 3", col.Participants)
	}

	if ok, _ := c.SetStatus(ctx, "t1", models.CollaborationClosed); !ok {
		t.Fatal("SetStatus reported no match")
	}
	col, _, _ = c.Open(ctx, "t1", []string{"a"})
	if col.Status != models.CollaborationActive {
		t.Errorf("reopen status = %q, want active", col.Status)
	}

	if _, err := c.GetByTaskID(ctx, "missing"); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("GetByTaskID(missing) err = %v, want ErrNoDocuments", err)
	}
}

func TestUserMessages_DuplicateAndOrdering(t *testing.T) {
	ctx := context.Background()
	um := New().UserMessages()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"m1", "m2", "m3"} {
		if err := um.Create(ctx, models.UserMessage{UserID: "u", MessageID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	if err := um.Create(ctx, models.UserMessage{UserID: "u", MessageID: "m1"}); !errors.Is(err, usermessagestore.ErrDuplicateLink) {
		t.Errorf("duplicate err = %v, want ErrDuplicateLink", err)
	}

	got, _ := um.ListByUser(ctx, "u", 2)
	if len(got) != 2 || got[0].MessageID != "m3" || got[1].MessageID != "m2" {
		t.Errorf("ListByUser = %+v, want m3, m2", got)
	}

	if found, _ := um.MarkRead(ctx, "u", "m2", base); !found {
		t.Fatal("MarkRead found = false")
	}
	if found, _ := um.MarkRead(ctx, "other", "m2", base); found {
		t.Error("MarkRead for a non-recipient should not match")
	}
	if n, _ := um.CountUnread(ctx, "u"); n != 2 {
		t.Errorf("CountUnread = %d, want 2", n)
	}
}

func TestNotifications_ReadAndPushed(t *testing.T) {
	ctx := context.Background()
	n := New().Notifications()
	now := time.Now().UTC()

	_ = n.Insert(ctx, models.Notification{ID: "n1", UserID: "u", CreatedAt: now})
	_ = n.Insert(ctx, models.Notification{ID: "n2", UserID: "u", CreatedAt: now.Add(time.Second)})
	_ = n.Insert(ctx, models.Notification{ID: "n3", UserID: "v", CreatedAt: now})

	if found, _ := n.MarkRead(ctx, "v", "n1", now); found {
		t.Error("MarkRead matched another user's notification")
	}
	if changed, _ := n.MarkAllRead(ctx, "u", now); changed != 2 {
		t.Errorf("MarkAllRead changed %d, want 2", changed)
	}
	if unread, _ := n.ListByUser(ctx, "u", 0, true); len(unread) != 0 {
		t.Errorf("unread after MarkAllRead = %d", len(unread))
	}

	_ = n.SetPushed(ctx, "n1")
	pending, _ := n.ListUnpushed(ctx, now.Add(-time.Minute), now.Add(time.Minute), 10)
	if len(pending) != 2 {
		t.Errorf("ListUnpushed = %d, want 2", len(pending))
	}
}

func TestNotifications_ListUnpushedRotatesAttempts(t *testing.T) {
	ctx := context.Background()
	n := New().Notifications()
	now := time.Now().UTC()

	for i, id := range []string{"a", "b", "c", "d"} {
		_ = n.Insert(ctx, models.Notification{ID: id, UserID: "u", CreatedAt: now.Add(time.Duration(i) * time.Second)})
	}
	_ = n.SetPushAttempt(ctx, "d", now)
	_ = n.SetPushAttempt(ctx, "c", now.Add(time.Second))

	tests := []struct {
		name  string
		to    time.Time
		limit int
		want  []string
	}{
		{"untried newest first then oldest attempt", now.Add(time.Minute), 0, []string{"b", "a", "d", "c"}},
		{"limit keeps untried", now.Add(time.Minute), 2, []string{"b", "a"}},
		{"upper bound", now.Add(time.Second), 0, []string{"b", "a"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := n.ListUnpushed(ctx, now.Add(-time.Minute), tc.to, tc.limit)
			if err != nil {
				t.Fatalf("ListUnpushed: %v", err)
			}
			var ids []string
			for _, note := range got {
				ids = append(ids, note.ID)
			}
			if !reflect.DeepEqual(ids, tc.want) {
				t.Errorf("ids = %v, want %v", ids, tc.want)
			}
		})
	}
}
