package livepush

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNATSRelay_RoundTrip(t *testing.T) {
	url := os.Getenv("STRATACOMM_TEST_NATS_URL")
	if url == "" {
		t.Skip("STRATACOMM_TEST_NATS_URL not set")
	}
	nc, err := ConnectNATS(NATSConfig{URL: url, Name: "stratacomm-test"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	local := &recordingAdapter{}
	relay := NewNATSRelay(nc, local, zap.NewNop())
	if err := relay.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer relay.Stop()
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if err := NewNATSPublisher(nc).Notify(context.Background(), "u9", Event{Kind: KindMessage}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		local.mu.Lock()
		n := len(local.calls)
		local.mu.Unlock()
		if n == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("event was not relayed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
