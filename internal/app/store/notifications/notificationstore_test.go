package notificationstore_test

import (
	"testing"
	"time"

	notificationstore "github.com/dalemusser/stratacomm/internal/app/store/notifications"
	"github.com/dalemusser/stratacomm/internal/testutil"
)

func TestStore_ReadState(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := notificationstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now().UTC()
	older := fixtures.CreateNotification(ctx, "u1", "older", now.Add(-time.Minute))
	newer := fixtures.CreateNotification(ctx, "u1", "newer", now)
	other := fixtures.CreateNotification(ctx, "u2", "theirs", now)

	list, err := store.ListByUser(ctx, "u1", 10, false)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Fatalf("expected [newer older], got %+v", list)
	}

	if found, err := store.MarkRead(ctx, "u1", other.ID, now); err != nil || found {
		t.Errorf("MarkRead on someone else's notification = %v, %v; want false, nil", found, err)
	}
	if found, err := store.MarkRead(ctx, "u1", older.ID, now); err != nil || !found {
		t.Fatalf("MarkRead = %v, %v", found, err)
	}

	unread, err := store.ListByUser(ctx, "u1", 10, true)
	if err != nil {
		t.Fatalf("ListByUser(unread) failed: %v", err)
	}
	if len(unread) != 1 || unread[0].ID != newer.ID {
		t.Errorf("unread = %+v, want only newer", unread)
	}

	n, err := store.MarkAllRead(ctx, "u1", now)
	if err != nil {
		t.Fatalf("MarkAllRead failed: %v", err)
	}
	if n != 1 {
		t.Errorf("MarkAllRead changed %d, want 1", n)
	}
}

func TestStore_ListUnpushed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := notificationstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now().UTC()
	fixtures.CreateNotification(ctx, "u1", "ancient", now.Add(-2*time.Hour))
	a := fixtures.CreateNotification(ctx, "u1", "a", now.Add(-2*time.Minute))
	b := fixtures.CreateNotification(ctx, "u2", "b", now.Add(-time.Minute))

	if err := store.SetPushed(ctx, a.ID); err != nil {
		t.Fatalf("SetPushed failed: %v", err)
	}

	got, err := store.ListUnpushed(ctx, now.Add(-time.Hour), now, 10)
	if err != nil {
		t.Fatalf("ListUnpushed failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != b.ID {
		t.Errorf("expected only b inside the window, got %+v", got)
	}
}

func TestStore_ListUnpushedPrefersUntried(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := notificationstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	offline := fixtures.CreateNotification(ctx, "offline", "old", now.Add(-3*time.Minute))
	older := fixtures.CreateNotification(ctx, "u1", "older", now.Add(-2*time.Minute))
	newer := fixtures.CreateNotification(ctx, "u2", "newer", now.Add(-time.Minute))

	if err := store.SetPushAttempt(ctx, offline.ID, now); err != nil {
		t.Fatalf("SetPushAttempt failed: %v", err)
	}

	got, err := store.ListUnpushed(ctx, now.Add(-time.Hour), now, 2)
	if err != nil {
		t.Fatalf("ListUnpushed failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != newer.ID || got[1].ID != older.ID {
		t.Errorf("expected untried newest first, got %+v", got)
	}
}
