// internal/app/store/roleassign/roleassignstore.go
package roleassignstore

import (
	"context"
	"time"

	"github.com/dalemusser/stratacomm/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists user-role assignments. A unique index on (user_id, role_id)
// keeps one document per pair.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("role_assignments")}
}

// Assign records the assignment. Assigning an existing pair is a no-op and
// keeps the original assigned_by and created_at.
func (s *Store) Assign(ctx context.Context, a models.RoleAssignment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.UpdateOne(ctx,
		bson.M{"user_id": a.UserID, "role_id": a.RoleID},
		bson.M{"$setOnInsert": a},
		options.Update().SetUpsert(true),
	)
	return err
}

// Revoke removes the assignment. removed is false when it did not exist.
func (s *Store) Revoke(ctx context.Context, userID, roleID string) (removed bool, err error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"user_id": userID, "role_id": roleID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// RoleIDsByUser returns the ids of every role assigned to userID.
func (s *Store) RoleIDsByUser(ctx context.Context, userID string) ([]string, error) {
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []models.RoleAssignment
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.RoleID)
	}
	return ids, nil
}
