// internal/app/store/departments/departmentstore.go
package departmentstore

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

var ErrDuplicateDepartmentName = errors.New("a department with this name already exists under the same parent")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("departments")}
}

func (s *Store) Create(ctx context.Context, d models.Department) (models.Department, error) {
	now := time.Now().UTC()
	d.NameCI = text.Fold(d.Name)
	d.CreatedAt = now
	d.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, d); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Department{}, ErrDuplicateDepartmentName
		}
		return models.Department{}, err
	}
	return d, nil
}

// GetByID returns mongo.ErrNoDocuments if the department does not exist.
func (s *Store) GetByID(ctx context.Context, id string) (models.Department, error) {
	var d models.Department
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		return models.Department{}, err
	}
	return d, nil
}

// List returns all departments sorted by name.
func (s *Store) List(ctx context.Context) ([]models.Department, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Department
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
