// internal/app/store/roles/rolestore.go
package rolestore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratacomm/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrDuplicateRoleName = errors.New("a role with this name already exists")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("roles")}
}

// Create validates and inserts r.
func (s *Store) Create(ctx context.Context, r models.Role) (models.Role, error) {
	if err := r.Validate(); err != nil {
		return models.Role{}, err
	}
	r.NameCI = text.Fold(r.Name)
	r.CreatedAt = time.Now().UTC()
	if _, err := s.c.InsertOne(ctx, r); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Role{}, ErrDuplicateRoleName
		}
		return models.Role{}, err
	}
	return r, nil
}

// GetByID returns mongo.ErrNoDocuments if the role does not exist.
func (s *Store) GetByID(ctx context.Context, id string) (models.Role, error) {
	var r models.Role
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		return models.Role{}, err
	}
	return r, nil
}

// GetByIDs returns the roles that exist among ids.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]models.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

// List returns all roles sorted by name.
func (s *Store) List(ctx context.Context) ([]models.Role, error) {
	return s.find(ctx, bson.M{})
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Role, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Role
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
