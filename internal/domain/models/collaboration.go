// internal/domain/models/collaboration.go
package models

import "time"

// Collaboration statuses.
const (
	CollaborationActive = "active"
	CollaborationClosed = "closed"
)

// Collaboration is a task-scoped membership and messaging context.
// There is exactly one per task; TaskID is the document key.
type Collaboration struct {
	TaskID       string              `bson:"_id" json:"task_id"`
	Participants []string            `bson:"participants" json:"participants"`
	Messages     []string            `bson:"messages" json:"messages"`
	Files        []CollaborationFile `bson:"files" json:"files"`
	Status       string              `bson:"status" json:"status"`
	CreatedAt    time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `bson:"updated_at" json:"updated_at"`
}

// CollaborationFile is a reference to a file shared inside a collaboration.
// The fabric stores the URL only; file bytes live elsewhere.
type CollaborationFile struct {
	Name       string    `bson:"name" json:"name"`
	URL        string    `bson:"url" json:"url"`
	UploadedBy string    `bson:"uploaded_by" json:"uploaded_by"`
	UploadedAt time.Time `bson:"uploaded_at" json:"uploaded_at"`
}

// HasParticipant reports whether userID takes part in the collaboration.
func (c Collaboration) HasParticipant(userID string) bool {
	return contains(c.Participants, userID)
}
