// internal/domain/models/group.go
package models

import "time"

// Group types.
const (
	GroupTypeDepartment = "department"
	GroupTypeTeam       = "team"
	GroupTypeProject    = "project"
	GroupTypeCustom     = "custom"
)

// GroupTypes is the full set of allowed group types. It is the source for
// validation and for the groups collection schema enum.
var GroupTypes = []string{
	GroupTypeDepartment,
	GroupTypeTeam,
	GroupTypeProject,
	GroupTypeCustom,
}

// Group is a named membership container that the messaging layer addresses.
//
// Invariants: CreatedBy is in Admins at creation, and Admins is always a
// subset of Members.
type Group struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	NameCI    string    `bson:"name_ci" json:"-"`
	Type      string    `bson:"type" json:"type"`
	Members   []string  `bson:"members" json:"members"`
	Admins    []string  `bson:"admins" json:"admins"`
	CreatedBy string    `bson:"created_by" json:"created_by"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsMember reports whether userID is in the group's member set.
func (g Group) IsMember(userID string) bool {
	return contains(g.Members, userID)
}

// IsAdmin reports whether userID is in the group's admin set.
func (g Group) IsAdmin(userID string) bool {
	return contains(g.Admins, userID)
}

// IsValidGroupType reports whether t is a known group type.
func IsValidGroupType(t string) bool {
	return contains(GroupTypes, t)
}

// GroupResource returns the permission resource name that guards a group.
func GroupResource(groupID string) string {
	return "group:" + groupID
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
