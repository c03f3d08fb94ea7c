// internal/domain/models/organization.go
package models

import "time"

// Department is a node in the organization tree. ParentID is empty for a
// root department. The manager is always a member.
type Department struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	NameCI    string    `bson:"name_ci" json:"-"`
	ParentID  string    `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	ManagerID string    `bson:"manager_id" json:"manager_id"`
	Members   []string  `bson:"members" json:"members"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Team belongs to exactly one Department. The leader is always a member.
type Team struct {
	ID           string    `bson:"_id" json:"id"`
	Name         string    `bson:"name" json:"name"`
	NameCI       string    `bson:"name_ci" json:"-"`
	DepartmentID string    `bson:"department_id" json:"department_id"`
	LeaderID     string    `bson:"leader_id" json:"leader_id"`
	Members      []string  `bson:"members" json:"members"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// Organization is a consistent read of the whole directory.
type Organization struct {
	Departments []Department `json:"departments"`
	Teams       []Team       `json:"teams"`
	Roles       []Role       `json:"roles"`
}
