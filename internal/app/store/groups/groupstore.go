// internal/app/store/groups/groupstore.go
package groupstore

import (
	"context"
	"time"

	"github.com/dalemusser/stratacomm/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("groups")}
}

// Create inserts g. The caller has already assigned the id and made sure the
// creator is in both Members and Admins.
func (s *Store) Create(ctx context.Context, g models.Group) (models.Group, error) {
	now := time.Now().UTC()
	g.NameCI = text.Fold(g.Name)
	g.CreatedAt = now
	g.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, g); err != nil {
		return models.Group{}, err
	}
	return g, nil
}

// GetByID returns mongo.ErrNoDocuments if the group does not exist.
func (s *Store) GetByID(ctx context.Context, id string) (models.Group, error) {
	var g models.Group
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		return models.Group{}, err
	}
	return g, nil
}

// ListByMember returns the groups userID belongs to, sorted by name.
func (s *Store) ListByMember(ctx context.Context, userID string) ([]models.Group, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"members": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Group
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddMember adds userID to the member set. ok is false when the group does
// not exist.
func (s *Store) AddMember(ctx context.Context, id, userID string) (ok bool, err error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$addToSet": bson.M{"members": userID},
			"$set":      bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// notLastAdmin matches groups where removing userID from admins would still
// leave at least one admin.
func notLastAdmin(id, userID string) bson.M {
	return bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"admins": bson.M{"$ne": userID}},
			bson.M{"admins.1": bson.M{"$exists": true}},
		},
	}
}

// RemoveMember pulls userID from both members and admins in one update. The
// filter refuses to remove the last admin, so ok is false when the group does
// not exist or userID is its only admin.
func (s *Store) RemoveMember(ctx context.Context, id, userID string) (ok bool, err error) {
	res, err := s.c.UpdateOne(ctx,
		notLastAdmin(id, userID),
		bson.M{
			"$pull": bson.M{"members": userID, "admins": userID},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// AddAdmin grants admin rights to an existing member. ok is false when the
// group does not exist or userID is not a member.
func (s *Store) AddAdmin(ctx context.Context, id, userID string) (ok bool, err error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "members": userID},
		bson.M{
			"$addToSet": bson.M{"admins": userID},
			"$set":      bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// RemoveAdmin revokes admin rights, refusing to remove the last admin.
func (s *Store) RemoveAdmin(ctx context.Context, id, userID string) (ok bool, err error) {
	res, err := s.c.UpdateOne(ctx,
		notLastAdmin(id, userID),
		bson.M{
			"$pull": bson.M{"admins": userID},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}
