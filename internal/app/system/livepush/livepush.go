// Package livepush delivers best-effort real-time events to connected users.
//
// Durable state lives in the stores; a push only tells an online client that
// something new exists. Every Adapter must be safe for concurrent use.
package livepush

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dalemusser/stratacomm/internal/domain/models"
)

// Event kinds.
const (
	KindMessage      = "message"
	KindNotification = "notification"
)

// Event is the payload pushed to a user.
type Event struct {
	Kind         string               `json:"kind"`
	Message      *models.Message      `json:"message,omitempty"`
	Notification *models.Notification `json:"notification,omitempty"`
}

// MessageEvent wraps a message for push.
func MessageEvent(m models.Message) Event {
	return Event{Kind: KindMessage, Message: &m}
}

// NotificationEvent wraps a notification for push.
func NotificationEvent(n models.Notification) Event {
	return Event{Kind: KindNotification, Notification: &n}
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

// Adapter pushes an event to every live session of a user.
type Adapter interface {
	Notify(ctx context.Context, userID string, ev Event) error
}

var (
	// ErrNotConnected means the user has no live session reachable by the adapter.
	ErrNotConnected = errors.New("user has no live connection")
	// ErrSlowConsumer means every session of the user had a full send queue.
	ErrSlowConsumer = errors.New("user connection send queue is full")
)

// Nop discards every event. It is used when no transport is configured.
type Nop struct{}

func (Nop) Notify(context.Context, string, Event) error { return nil }
