package groups

import (
	"context"
	"errors"
	"testing"

	"github.com/dalemusser/stratacomm/internal/app/store/memstore"
	"github.com/dalemusser/stratacomm/internal/app/system/auditlog"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"go.uber.org/zap"
)

type knownUsers map[string]bool

func (k knownUsers) UserExists(_ context.Context, id string) (bool, error) {
	return k[id], nil
}

func newManager(t *testing.T) (*Manager, *memstore.Store) {
	t.Helper()
	ms := memstore.New()
	users := knownUsers{"alice": true, "bob": true, "carol": true}
	audit := auditlog.New(ms.Audit(), zap.NewNop(), auditlog.Config{})
	return New(ms.Groups(), ms.Collaborations(), users, audit, zap.NewNop()), ms
}

func TestCreateGroup_CreatorIsMemberAndAdmin(t *testing.T) {
	m, ms := newManager(t)
	ctx := context.Background()

	g, err := m.CreateGroup(ctx, "  Platform   Team ", []string{"bob", "bob", ""}, "Team", "alice")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if g.Name != "Platform Team" {
		t.Errorf("Name = %q", g.Name)
	}
	if !g.IsMember("alice") || !g.IsAdmin("alice") {
		t.Errorf("creator not member/admin: %+v", g)
	}
	if len(g.Members) != 2 {
		t.Errorf("Members = %v, want [alice bob]", g.Members)
	}
	if len(g.Admins) != 1 {
		t.Errorf("Admins = %v, want [alice]", g.Admins)
	}
	if len(ms.Audit().Events()) != 1 {
		t.Errorf("audit events = %d, want 1", len(ms.Audit().Events()))
	}
}

func TestCreateGroup_Validation(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		groupName string
		members   []string
		groupType string
		creator   string
		want      error
	}{
		{"empty name", " ", nil, "team", "alice", ErrNameRequired},
		{"bad type", "x", nil, "guild", "alice", ErrInvalidType},
		{"no creator", "x", nil, "team", "", ErrCreatorRequired},
		{"unknown member", "x", []string{"mallory"}, "team", "alice", ErrUnknownMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CreateGroup(ctx, tt.groupName, tt.members, tt.groupType, tt.creator)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMembership(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	g, err := m.CreateGroup(ctx, "Ops", []string{"bob"}, "department", "alice")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	if err := m.RemoveMember(ctx, "alice", g.ID, "alice"); !errors.Is(err, ErrLastAdmin) {
		t.Errorf("removing last admin err = %v, want ErrLastAdmin", err)
	}
	if err := m.DemoteAdmin(ctx, "alice", g.ID, "alice"); !errors.Is(err, ErrLastAdmin) {
		t.Errorf("demoting last admin err = %v, want ErrLastAdmin", err)
	}
	if err := m.PromoteAdmin(ctx, "alice", g.ID, "carol"); !errors.Is(err, ErrNotMember) {
		t.Errorf("promoting non-member err = %v, want ErrNotMember", err)
	}
	if err := m.AddMember(ctx, "alice", g.ID, "mallory"); !errors.Is(err, ErrUnknownMember) {
		t.Errorf("adding unknown user err = %v, want ErrUnknownMember", err)
	}
	if err := m.AddMember(ctx, "alice", "missing", "carol"); !errors.Is(err, ErrNotFound) {
		t.Errorf("adding to missing group err = %v, want ErrNotFound", err)
	}

	if err := m.PromoteAdmin(ctx, "alice", g.ID, "bob"); err != nil {
		t.Fatalf("PromoteAdmin: %v", err)
	}
	if err := m.RemoveMember(ctx, "bob", g.ID, "alice"); err != nil {
		t.Fatalf("RemoveMember(alice) once bob is admin: %v", err)
	}

	got, err := m.Group(ctx, g.ID)
	if err != nil {
		t.Fatalf("Group: %v", err)
	}
	if got.IsMember("alice") || got.IsAdmin("alice") {
		t.Errorf("alice still present after removal: %+v", got)
	}
	if !got.IsAdmin("bob") {
		t.Errorf("bob should be admin: %+v", got)
	}

	groups, _ := m.GroupsForUser(ctx, "alice")
	if len(groups) != 0 {
		t.Errorf("GroupsForUser(alice) = %d, want 0", len(groups))
	}
}

func TestCollaborationLifecycle(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	if _, _, err := m.OpenCollaboration(ctx, " ", []string{"alice"}); !errors.Is(err, ErrTaskRequired) {
		t.Errorf("blank task err = %v", err)
	}
	if _, _, err := m.OpenCollaboration(ctx, "t1", []string{" "}); !errors.Is(err, ErrNoParticipants) {
		t.Errorf("no participants err = %v", err)
	}

	_, added, err := m.OpenCollaboration(ctx, "t1", []string{"alice", "bob"})
	if err != nil || len(added) != 2 {
		t.Fatalf("OpenCollaboration = %v, %v", added, err)
	}
	_, added, err = m.OpenCollaboration(ctx, "t1", []string{"bob", "carol"})
	if err != nil || len(added) != 1 || added[0] != "carol" {
		t.Fatalf("second OpenCollaboration added = %v, err = %v", added, err)
	}

	if _, err := m.AttachFile(ctx, "t1", "mallory", "brief.pdf", "https://files/x"); !errors.Is(err, ErrNotMember) {
		t.Errorf("non-participant attach err = %v", err)
	}
	if _, err := m.AttachFile(ctx, "t1", "bob", "", "https://files/x"); !errors.Is(err, ErrInvalidFile) {
		t.Errorf("blank file name err = %v", err)
	}
	if _, err := m.AttachFile(ctx, "t1", "bob", "plan.pdf", "https://files/plan"); err != nil {
		t.Fatalf("AttachFile: %v", err)
	}
	if err := m.AppendMessage(ctx, "t1", "m1"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	c, err := m.Collaboration(ctx, "t1")
	if err != nil {
		t.Fatalf("Collaboration: %v", err)
	}
	if len(c.Files) != 1 || len(c.Messages) != 1 || len(c.Participants) != 3 {
		t.Errorf("collaboration = %+v", c)
	}

	if err := m.CloseCollaboration(ctx, "alice", "t1"); err != nil {
		t.Fatalf("CloseCollaboration: %v", err)
	}
	if _, err := m.ActiveCollaboration(ctx, "t1"); !errors.Is(err, ErrCollaborationClosed) {
		t.Errorf("ActiveCollaboration after close err = %v", err)
	}
	if _, err := m.AttachFile(ctx, "t1", "bob", "late.pdf", "https://files/late"); !errors.Is(err, ErrCollaborationClosed) {
		t.Errorf("attach after close err = %v", err)
	}
	if err := m.CloseCollaboration(ctx, "alice", "missing"); !errors.Is(err, ErrCollabNotFound) {
		t.Errorf("close missing err = %v", err)
	}

	c, _, _ = m.OpenCollaboration(ctx, "t1", []string{"alice"})
	if c.Status != models.CollaborationActive {
		t.Errorf("reopened status = %q", c.Status)
	}
}
