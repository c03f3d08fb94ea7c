// Package memstore is an in-memory implementation of every record store. It
// backs store_type=memory (local development) and the service tests.
//
// All sub-stores share one lock, so Organization.Snapshot is trivially
// consistent. Not-found lookups return mongo.ErrNoDocuments and duplicate
// inserts return the same sentinel errors as the Mongo stores, so callers
// cannot tell the two apart.
package memstore

import (
	"sync"

	"github.com/dalemusser/stratacomm/internal/app/store/audit"
	"github.com/dalemusser/stratacomm/internal/domain/models"
)

// Store holds every collection.
type Store struct {
	mu sync.RWMutex

	users         map[string]models.User
	messages      map[string]models.Message
	links         []models.UserMessage
	groups        map[string]models.Group
	collabs       map[string]models.Collaboration
	notifications []models.Notification
	departments   map[string]models.Department
	teams         map[string]models.Team
	roles         map[string]models.Role
	assignments   []models.RoleAssignment
	audit         []audit.Event
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:       make(map[string]models.User),
		messages:    make(map[string]models.Message),
		groups:      make(map[string]models.Group),
		collabs:     make(map[string]models.Collaboration),
		departments: make(map[string]models.Department),
		teams:       make(map[string]models.Team),
		roles:       make(map[string]models.Role),
	}
}

func (s *Store) Users() *Users                 { return &Users{s} }
func (s *Store) Messages() *Messages           { return &Messages{s} }
func (s *Store) UserMessages() *UserMessages   { return &UserMessages{s} }
func (s *Store) Groups() *Groups               { return &Groups{s} }
func (s *Store) Collaborations() *Collabs      { return &Collabs{s} }
func (s *Store) Notifications() *Notifications { return &Notifications{s} }
func (s *Store) Departments() *Departments     { return &Departments{s} }
func (s *Store) Teams() *Teams                 { return &Teams{s} }
func (s *Store) Roles() *Roles                 { return &Roles{s} }
func (s *Store) RoleAssignments() *Assignments { return &Assignments{s} }
func (s *Store) Audit() *Audit                 { return &Audit{s} }
func (s *Store) Organization() *Organization   { return &Organization{s} }

func clone(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return append([]string(nil), ids...)
}

func contains(ids []string, v string) bool {
	for _, id := range ids {
		if id == v {
			return true
		}
	}
	return false
}

func without(ids []string, v string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != v {
			out = append(out, id)
		}
	}
	return out
}
