// internal/app/system/livepush/nats.go
package livepush

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSSubjectPrefix is prepended to the user id to form the subject.
const NATSSubjectPrefix = "stratacomm.push."

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// ConnectNATS dials NATS with reconnects enabled.
func ConnectNATS(cfg NATSConfig) (*nats.Conn, error) {
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "stratacomm"
	}
	return nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	)
}

// NATSPublisher publishes events on a per-user core NATS subject. Core NATS
// does not report subscriber counts, so a successful publish means the
// server accepted the event.
type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

func (p *NATSPublisher) Notify(ctx context.Context, userID string, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := ev.encode()
	if err != nil {
		return err
	}
	return p.nc.Publish(NATSSubjectPrefix+userID, data)
}

// NATSRelay subscribes to every per-user subject and forwards events to a
// local adapter.
type NATSRelay struct {
	nc    *nats.Conn
	local Adapter
	log   *zap.Logger
	sub   *nats.Subscription
}

func NewNATSRelay(nc *nats.Conn, local Adapter, logger *zap.Logger) *NATSRelay {
	return &NATSRelay{nc: nc, local: local, log: logger}
}

// Start subscribes. Callbacks run on the NATS client's goroutine.
func (r *NATSRelay) Start() error {
	sub, err := r.nc.Subscribe(NATSSubjectPrefix+"*", func(m *nats.Msg) {
		userID := strings.TrimPrefix(m.Subject, NATSSubjectPrefix)
		var ev Event
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			r.log.Warn("dropping malformed push event", zap.Error(err), zap.String("user_id", userID))
			return
		}
		if err := r.local.Notify(context.Background(), userID, ev); err != nil && err != ErrNotConnected {
			r.log.Debug("relay push failed", zap.Error(err), zap.String("user_id", userID))
		}
	})
	if err != nil {
		return err
	}
	r.sub = sub
	return nil
}

// Stop unsubscribes.
func (r *NATSRelay) Stop() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Unsubscribe()
}
