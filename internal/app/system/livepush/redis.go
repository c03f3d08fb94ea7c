// internal/app/system/livepush/redis.go
package livepush

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisChannelPrefix is prepended to the user id to form the pub/sub channel.
const RedisChannelPrefix = "stratacomm:push:"

// RedisPublisher publishes events on a per-user Redis channel so that any
// instance holding the user's websocket can forward it.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// Notify publishes ev. It reports ErrNotConnected when no instance is
// subscribed to the channel.
func (p *RedisPublisher) Notify(ctx context.Context, userID string, ev Event) error {
	data, err := ev.encode()
	if err != nil {
		return err
	}
	n, err := p.rdb.Publish(ctx, RedisChannelPrefix+userID, data).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotConnected
	}
	return nil
}

// RedisRelay subscribes to every per-user channel and hands events to a
// local adapter, normally the instance's Hub.
type RedisRelay struct {
	rdb   *redis.Client
	local Adapter
	log   *zap.Logger
}

func NewRedisRelay(rdb *redis.Client, local Adapter, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{rdb: rdb, local: local, log: logger}
}

// Run blocks until ctx is done, forwarding every published event.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.rdb.PSubscribe(ctx, RedisChannelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.forward(ctx, strings.TrimPrefix(msg.Channel, RedisChannelPrefix), []byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) forward(ctx context.Context, userID string, data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		r.log.Warn("dropping malformed push event", zap.Error(err), zap.String("user_id", userID))
		return
	}
	if err := r.local.Notify(ctx, userID, ev); err != nil && err != ErrNotConnected {
		r.log.Debug("relay push failed", zap.Error(err), zap.String("user_id", userID))
	}
}
