// internal/app/store/messages/messagestore.go
package messagestore

import (
	"context"

	"github.com/dalemusser/stratacomm/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store persists message bodies. Messages are written once and never updated.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("messages")}
}

// Insert writes m as-is. The caller assigns the id and timestamp.
func (s *Store) Insert(ctx context.Context, m models.Message) error {
	_, err := s.c.InsertOne(ctx, m)
	return err
}

// GetByID returns mongo.ErrNoDocuments if the message does not exist.
func (s *Store) GetByID(ctx context.Context, id string) (models.Message, error) {
	var m models.Message
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

// GetByIDs returns the messages that exist among ids, in no particular order.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]models.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
