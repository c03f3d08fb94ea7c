// internal/domain/models/notification.go
package models

import "time"

// Notification types.
const (
	NotificationTypeSystem       = "system"
	NotificationTypeTask         = "task"
	NotificationTypeApproval     = "approval"
	NotificationTypeAnnouncement = "announcement"
)

// NotificationTypes is the full set of allowed notification types.
var NotificationTypes = []string{
	NotificationTypeSystem,
	NotificationTypeTask,
	NotificationTypeApproval,
	NotificationTypeAnnouncement,
}

// Notification is always single-recipient and unread by default.
// Pushed records whether a live push reached the user; the push-retry worker
// picks up notifications where it is false. PushAttemptAt is the last failed
// retry, so the worker can rotate through users who stay offline.
type Notification struct {
	ID        string     `bson:"_id" json:"id"`
	Type      string     `bson:"type" json:"type"`
	Title     string     `bson:"title" json:"title"`
	Content   string     `bson:"content" json:"content"`
	UserID    string     `bson:"user_id" json:"user_id"`
	Read      bool       `bson:"read" json:"read"`
	ReadAt    *time.Time `bson:"read_at,omitempty" json:"read_at,omitempty"`
	Link      string     `bson:"link,omitempty" json:"link,omitempty"`
	Pushed    bool       `bson:"pushed" json:"-"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`

	PushAttemptAt *time.Time `bson:"push_attempt_at,omitempty" json:"-"`
}

// NotificationPayload is the caller-supplied body of a push.
type NotificationPayload struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Link    string `json:"link,omitempty"`
}

// IsValidNotificationType reports whether t is a known notification type.
func IsValidNotificationType(t string) bool {
	return contains(NotificationTypes, t)
}
