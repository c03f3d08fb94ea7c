package messaging

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratacomm/internal/app/fabric/groups"
	"github.com/dalemusser/stratacomm/internal/app/store/memstore"
	"github.com/dalemusser/stratacomm/internal/app/system/livepush"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"go.uber.org/zap"
)

type activeUsers struct{ ms *memstore.Store }

func (a activeUsers) UserExists(ctx context.Context, id string) (bool, error) {
	return a.ms.Users().ExistsActive(ctx, id)
}

type recorder struct {
	mu    sync.Mutex
	users []string
}

func (r *recorder) Notify(_ context.Context, userID string, _ livepush.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// failingLinks fails link creation for one recipient and can block for
// another until the context ends.
type failingLinks struct {
	LinkStore
	failFor  string
	blockFor string
}

func (f failingLinks) Create(ctx context.Context, l models.UserMessage) error {
	switch l.UserID {
	case f.failFor:
		return errors.New("store unavailable")
	case f.blockFor:
		<-ctx.Done()
		return ctx.Err()
	}
	return f.LinkStore.Create(ctx, l)
}

type failingMessages struct{ MessageStore }

func (failingMessages) Insert(context.Context, models.Message) error {
	return errors.New("write failed")
}

type fixture struct {
	ms     *memstore.Store
	gm     *groups.Manager
	push   *recorder
	pusher *livepush.Pusher
	router *Router
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ms := memstore.New()
	for _, id := range []string{"s", "r1", "r2", "r3"} {
		if _, err := ms.Users().Create(context.Background(), models.User{ID: id, FullName: id}); err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}
	users := activeUsers{ms}
	gm := groups.New(ms.Groups(), ms.Collaborations(), users, nil, zap.NewNop())
	rec := &recorder{}
	pusher := livepush.NewPusher(rec, 100*time.Millisecond, zap.NewNop())
	return &fixture{
		ms:     ms,
		gm:     gm,
		push:   rec,
		pusher: pusher,
		router: New(ms.Messages(), ms.UserMessages(), users, gm, pusher, cfg, zap.NewNop()),
	}
}

func text(s string) models.MessagePayload {
	return models.MessagePayload{Content: s, Type: models.MessageTypeText}
}

func TestSend_DeliversToEveryRecipient(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	res, err := f.router.Send(ctx, SendRequest{From: "s", To: []string{"r1", "r2", "r1", " "}, Payload: text("hi")})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Success || !reflect.DeepEqual(res.DeliveredTo, []string{"r1", "r2"}) || len(res.FailedTo) != 0 {
		t.Errorf("result = %+v", res)
	}

	if err := f.pusher.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if f.push.count() != 2 {
		t.Errorf("live pushes = %d, want 2", f.push.count())
	}
}

func TestSend_DuplicateCallsCreateDistinctMessages(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	req := SendRequest{From: "s", To: []string{"r1"}, Payload: text("same")}

	a, err := f.router.Send(ctx, req)
	if err != nil {
		t.Fatalf("first Send: %v", err)
	}
	b, err := f.router.Send(ctx, req)
	if err != nil {
		t.Fatalf("second Send: %v", err)
	}
	if a.MessageID == b.MessageID {
		t.Errorf("both sends returned message %s", a.MessageID)
	}
	if n := f.ms.Messages().Count(); n != 2 {
		t.Errorf("stored messages = %d, want 2", n)
	}
}

func TestSend_PartialFailureIsolated(t *testing.T) {
	f := newFixture(t, Config{})
	f.router.links = failingLinks{LinkStore: f.ms.UserMessages(), failFor: "r2"}
	ctx := context.Background()

	res, err := f.router.Send(ctx, SendRequest{From: "s", To: []string{"r1", "r2", "r3"}, Payload: text("hello")})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Success {
		t.Error("Success = true with a failed recipient")
	}
	if !reflect.DeepEqual(res.DeliveredTo, []string{"r1", "r3"}) {
		t.Errorf("DeliveredTo = %v, want [r1 r3]", res.DeliveredTo)
	}
	if !reflect.DeepEqual(res.FailedTo, []string{"r2"}) {
		t.Errorf("FailedTo = %v, want [r2]", res.FailedTo)
	}
	if n := f.ms.Messages().Count(); n != 1 {
		t.Errorf("stored messages = %d, want exactly 1", n)
	}
	links, _ := f.ms.UserMessages().ListByMessage(ctx, res.MessageID)
	if len(links) != 2 {
		t.Errorf("links = %d, want 2", len(links))
	}
}

func TestSend_SlowRecipientCountsFailedAtDeadline(t *testing.T) {
	f := newFixture(t, Config{FanOutTimeout: 50 * time.Millisecond, Parallelism: 2})
	f.router.links = failingLinks{LinkStore: f.ms.UserMessages(), blockFor: "r1"}

	start := time.Now()
	res, err := f.router.Send(context.Background(), SendRequest{From: "s", To: []string{"r1", "r2", "r3"}, Payload: text("x")})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Send took %v, deadline not enforced", elapsed)
	}
	if !reflect.DeepEqual(res.FailedTo, []string{"r1"}) || !reflect.DeepEqual(res.DeliveredTo, []string{"r2", "r3"}) {
		t.Errorf("result = %+v", res)
	}
}

func TestSend_MessageWriteFailureIsTotal(t *testing.T) {
	f := newFixture(t, Config{})
	f.router.messages = failingMessages{f.ms.Messages()}

	res, err := f.router.Send(context.Background(), SendRequest{From: "s", To: []string{"r1", "r2"}, Payload: text("x")})
	if err != nil {
		t.Fatalf("Send returned error %v; want a total-failure result", err)
	}
	if res.Success || len(res.DeliveredTo) != 0 || !reflect.DeepEqual(res.FailedTo, []string{"r1", "r2"}) {
		t.Errorf("result = %+v", res)
	}
	if n, _ := f.ms.UserMessages().CountUnread(context.Background(), "r1"); n != 0 {
		t.Errorf("links written after failed message write: %d", n)
	}
}

func TestSend_ValidationWritesNothing(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name string
		req  SendRequest
		want error
	}{
		{"unknown sender", SendRequest{From: "ghost", To: []string{"r1"}, Payload: text("x")}, ErrUnknownSender},
		{"blank sender", SendRequest{From: " ", To: []string{"r1"}, Payload: text("x")}, ErrUnknownSender},
		{"no recipients", SendRequest{From: "s", To: []string{" ", ""}, Payload: text("x")}, ErrNoRecipients},
		{"unknown type", SendRequest{From: "s", To: []string{"r1"}, Payload: models.MessagePayload{Content: "x", Type: "fax"}}, ErrInvalidPayload},
		{"empty body", SendRequest{From: "s", To: []string{"r1"}, Payload: text("  ")}, ErrInvalidPayload},
		{"file without url", SendRequest{From: "s", To: []string{"r1"}, Payload: models.MessagePayload{Content: "see", Type: "file"}}, ErrInvalidPayload},
		{"bad file url", SendRequest{From: "s", To: []string{"r1"}, Payload: models.MessagePayload{Type: "image", FileURL: "ftp://x/y.png"}}, ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.router.Send(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if n := f.ms.Messages().Count(); n != 0 {
		t.Errorf("stored messages = %d, want 0", n)
	}
}

func TestMarkAsRead_IsPerRecipient(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	res, err := f.router.Send(ctx, SendRequest{From: "s", To: []string{"r1", "r2"}, Payload: text("read me")})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := f.router.MarkAsRead(ctx, "r1", res.MessageID); err != nil {
		t.Fatalf("MarkAsRead: %v", err)
	}
	if err := f.router.MarkAsRead(ctx, "r1", res.MessageID); err != nil {
		t.Fatalf("second MarkAsRead: %v", err)
	}
	if err := f.router.MarkAsRead(ctx, "r3", res.MessageID); !errors.Is(err, ErrNotRecipient) {
		t.Errorf("non-recipient err = %v", err)
	}

	r1, _ := f.router.UserMessages(ctx, "r1", 0)
	r2, _ := f.router.UserMessages(ctx, "r2", 0)
	if len(r1) != 1 || !r1[0].Read || r1[0].ReadAt == nil {
		t.Errorf("r1 messages = %+v", r1)
	}
	if len(r2) != 1 || r2[0].Read {
		t.Errorf("r2 messages = %+v, want unread", r2)
	}
	if n, _ := f.router.UnreadCount(ctx, "r2"); n != 1 {
		t.Errorf("UnreadCount(r2) = %d", n)
	}
}

func TestUserMessages_NewestFirstAndClamped(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	var ids []string
	for _, body := range []string{"one", "two", "three"} {
		res, err := f.router.Send(ctx, SendRequest{From: "s", To: []string{"r1"}, Payload: text(body)})
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		ids = append(ids, res.MessageID)
		time.Sleep(2 * time.Millisecond)
	}

	got, err := f.router.UserMessages(ctx, "r1", 2)
	if err != nil {
		t.Fatalf("UserMessages: %v", err)
	}
	if len(got) != 2 || got[0].ID != ids[2] || got[1].ID != ids[1] {
		t.Errorf("UserMessages order = %v", got)
	}
	all, _ := f.router.UserMessages(ctx, "r1", 10_000)
	if len(all) != 3 {
		t.Errorf("UserMessages with large limit = %d, want 3", len(all))
	}
}

func TestSendToGroup(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	g, err := f.gm.CreateGroup(ctx, "eng", []string{"r1", "r2"}, models.GroupTypeTeam, "s")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	res, err := f.router.SendToGroup(ctx, "s", g.ID, text("standup"))
	if err != nil {
		t.Fatalf("SendToGroup: %v", err)
	}
	if !reflect.DeepEqual(res.DeliveredTo, []string{"r1", "r2"}) {
		t.Errorf("DeliveredTo = %v, want members minus sender", res.DeliveredTo)
	}

	// Members added after the send do not receive it.
	if err := f.gm.AddMember(ctx, "s", g.ID, "r3"); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if msgs, _ := f.router.UserMessages(ctx, "r3", 0); len(msgs) != 0 {
		t.Errorf("late member sees %d messages", len(msgs))
	}
	msgs, _ := f.router.UserMessages(ctx, "r1", 0)
	if len(msgs) != 1 || msgs[0].GroupID != g.ID {
		t.Errorf("group message not stamped: %+v", msgs)
	}

	solo, _ := f.gm.CreateGroup(ctx, "solo", nil, models.GroupTypeCustom, "s")
	if _, err := f.router.SendToGroup(ctx, "s", solo.ID, text("echo")); !errors.Is(err, ErrNoRecipients) {
		t.Errorf("sender-only group err = %v", err)
	}
	if _, err := f.router.SendToGroup(ctx, "s", "missing", text("x")); !errors.Is(err, groups.ErrNotFound) {
		t.Errorf("missing group err = %v", err)
	}
}

func TestSendToCollaboration(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if _, _, err := f.gm.OpenCollaboration(ctx, "t1", []string{"s", "r1"}); err != nil {
		t.Fatalf("OpenCollaboration: %v", err)
	}
	res, err := f.router.SendToCollaboration(ctx, "s", "t1", text("status?"))
	if err != nil {
		t.Fatalf("SendToCollaboration: %v", err)
	}
	c, _ := f.gm.Collaboration(ctx, "t1")
	if !reflect.DeepEqual(c.Messages, []string{res.MessageID}) {
		t.Errorf("collaboration messages = %v", c.Messages)
	}

	if err := f.gm.CloseCollaboration(ctx, "s", "t1"); err != nil {
		t.Fatalf("CloseCollaboration: %v", err)
	}
	if _, err := f.router.SendToCollaboration(ctx, "s", "t1", text("late")); !errors.Is(err, groups.ErrCollaborationClosed) {
		t.Errorf("closed collaboration err = %v", err)
	}
}

func TestCollectOutcomes_TakesBufferedAfterDeadline(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name     string
		buffered []outcome
		n        int
		wantDone []bool
	}{
		{"all buffered", []outcome{{0, nil}, {1, boom}, {2, nil}}, 3, []bool{true, true, true}},
		{"some missing", []outcome{{1, nil}}, 3, []bool{false, true, false}},
		{"duplicate ignored", []outcome{{0, nil}, {0, boom}}, 2, []bool{true, false}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			ch := make(chan outcome, len(tc.buffered))
			for _, o := range tc.buffered {
				ch <- o
			}
			// Repeat so a random select choice cannot hide a dropped outcome.
			for i := 0; i < 50; i++ {
				errs, done := collectOutcomes(ctx, ch, tc.n)
				if !reflect.DeepEqual(done, tc.wantDone) {
					t.Fatalf("run %d: done = %v, want %v", i, done, tc.wantDone)
				}
				first := map[int]bool{}
				for _, o := range tc.buffered {
					if first[o.idx] {
						continue
					}
					first[o.idx] = true
					if errs[o.idx] != o.err {
						t.Fatalf("run %d: errs[%d] = %v, want %v", i, o.idx, errs[o.idx], o.err)
					}
				}
				for _, o := range tc.buffered {
					ch <- o
				}
			}
		})
	}
}
