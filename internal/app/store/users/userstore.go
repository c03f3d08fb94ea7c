// internal/app/store/users/userstore.go
package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratacomm/internal/app/system/normalize"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

var (
	// ErrDuplicateUser is returned when the user id or email is already taken.
	ErrDuplicateUser = errors.New("a user with this id or email already exists")
	errBadStatus     = errors.New(`status must be "active"|"disabled"`)
)

// Create inserts a new user after normalizing fields. A caller-supplied ID is
// kept (identities are usually issued elsewhere); otherwise one is generated.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.FullName = normalize.Name(u.FullName)
	u.FullNameCI = text.Fold(u.FullName)
	u.Email = normalize.Email(u.Email)
	u.Status = normalize.Status(u.Status)
	if u.Status == "" {
		u.Status = models.UserStatusActive
	}
	if u.Status != models.UserStatusActive && u.Status != models.UserStatusDisabled {
		return models.User{}, errBadStatus
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateUser
		}
		return models.User{}, err
	}
	return u, nil
}

// GetByID loads a user. Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByID(ctx context.Context, id string) (models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// ExistsActive reports whether an active user with this id exists.
func (s *Store) ExistsActive(ctx context.Context, id string) (bool, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{"_id": id, "status": models.UserStatusActive})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
