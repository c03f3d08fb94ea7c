// internal/domain/models/user.go
package models

import "time"

// User is the identity record that makes a sender or recipient "known".
//
// NOTE:
//   - Role grants are not embedded on User.
//     Use the role_assignments collection to discover a user's roles.
type User struct {
	ID         string    `bson:"_id" json:"id"`
	FullName   string    `bson:"full_name" json:"full_name"`
	FullNameCI string    `bson:"full_name_ci" json:"-"` // lowercase, diacritics-stripped
	Email      string    `bson:"email,omitempty" json:"email,omitempty"`
	Status     string    `bson:"status" json:"status"` // active | disabled
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}

// User statuses.
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// Active reports whether the user may send or receive.
func (u User) Active() bool {
	return u.Status == "" || u.Status == UserStatusActive
}
