package livepush

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	s := miniredis.RunT(t)
	opts, err := redis.ParseURL("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisPublisher_NoSubscribers(t *testing.T) {
	p := NewRedisPublisher(newRedis(t))
	err := p.Notify(context.Background(), "u1", Event{Kind: KindMessage})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestRedisRelay_ForwardsToLocalAdapter(t *testing.T) {
	rdb := newRedis(t)
	local := &recordingAdapter{}
	relay := NewRedisRelay(rdb, local, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)

	pub := NewRedisPublisher(rdb)
	n := models.Notification{ID: "n1", UserID: "u1", Title: "hello"}

	// The relay subscribes asynchronously; retry until it is listening.
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := pub.Notify(ctx, "u1", NotificationEvent(n))
		if err == nil {
			break
		}
		if !errors.Is(err, ErrNotConnected) || time.Now().After(deadline) {
			t.Fatalf("Notify: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	for {
		local.mu.Lock()
		calls := append([]string(nil), local.calls...)
		local.mu.Unlock()
		if len(calls) > 0 {
			if calls[0] != "u1" {
				t.Errorf("relayed to %q, want u1", calls[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("event was not relayed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
