// internal/app/store/collaborations/collabstore.go
package collabstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratacomm/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists collaborations keyed by task id.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("collaborations")}
}

// Open creates the collaboration for taskID or merges participants into the
// existing one, reactivating it if it was closed. It returns the document as
// it is after the merge and the participants that were not present before.
//
// The merge is a single upsert that returns the pre-image, so two concurrent
// calls never both report the same participant as added.
func (s *Store) Open(ctx context.Context, taskID string, participants []string) (models.Collaboration, []string, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$addToSet": bson.M{"participants": bson.M{"$each": participants}},
		"$set":      bson.M{"status": models.CollaborationActive, "updated_at": now},
		"$setOnInsert": bson.M{
			"messages":   bson.A{},
			"files":      bson.A{},
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)

	var before models.Collaboration
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": taskID}, update, opts).Decode(&before)
	created := errors.Is(err, mongo.ErrNoDocuments)
	if err != nil && !created {
		return models.Collaboration{}, nil, err
	}

	var added []string
	for _, p := range participants {
		if created || !before.HasParticipant(p) {
			added = append(added, p)
		}
	}

	after, err := s.GetByTaskID(ctx, taskID)
	if err != nil {
		return models.Collaboration{}, nil, err
	}
	return after, added, nil
}

// GetByTaskID returns mongo.ErrNoDocuments if no collaboration exists.
func (s *Store) GetByTaskID(ctx context.Context, taskID string) (models.Collaboration, error) {
	var c models.Collaboration
	if err := s.c.FindOne(ctx, bson.M{"_id": taskID}).Decode(&c); err != nil {
		return models.Collaboration{}, err
	}
	return c, nil
}

// AppendMessage records messageID in the collaboration's message list.
func (s *Store) AppendMessage(ctx context.Context, taskID, messageID string) (ok bool, err error) {
	return s.update(ctx, taskID, bson.M{
		"$push": bson.M{"messages": messageID},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
}

// AddFile appends a file reference.
func (s *Store) AddFile(ctx context.Context, taskID string, f models.CollaborationFile) (ok bool, err error) {
	return s.update(ctx, taskID, bson.M{
		"$push": bson.M{"files": f},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
}

// SetStatus changes the collaboration status.
func (s *Store) SetStatus(ctx context.Context, taskID, status string) (ok bool, err error) {
	return s.update(ctx, taskID, bson.M{
		"$set": bson.M{"status": status, "updated_at": time.Now().UTC()},
	})
}

func (s *Store) update(ctx context.Context, taskID string, update bson.M) (bool, error) {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": taskID}, update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}
