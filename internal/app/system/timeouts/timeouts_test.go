package timeouts

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestConfigure_IgnoresZeroValues(t *testing.T) {
	defer Reset()

	Configure(Config{FanOut: 2 * time.Second})
	if got := FanOut(); got != 2*time.Second {
		t.Errorf("FanOut = %v, want 2s", got)
	}
	if got := PushBudget(); got != DefaultPushBudget {
		t.Errorf("PushBudget = %v, want default %v", got, DefaultPushBudget)
	}
	if got := Short(); got != DefaultShort {
		t.Errorf("Short = %v, want default %v", got, DefaultShort)
	}
}

func TestReset(t *testing.T) {
	Configure(Config{Ping: time.Minute, PushBudget: time.Minute})
	Reset()

	cur := Current()
	if cur.Ping != DefaultPing || cur.PushBudget != DefaultPushBudget {
		t.Errorf("Reset did not restore defaults: %+v", cur)
	}
}

func TestWithTimeout_LogsOnDeadline(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	ctx, cancel := WithTimeout(context.Background(), time.Millisecond, zap.New(core), "fan-out")
	<-ctx.Done()
	cancel()

	if logs.FilterMessage("operation timed out").Len() != 1 {
		t.Error("expected a timeout warning")
	}
}
