// internal/app/store/usermessages/usermessagestore.go
package usermessagestore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratacomm/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrDuplicateLink is returned when a (message, user) link already exists.
var ErrDuplicateLink = errors.New("message already linked to this user")

// Store persists per-recipient delivery links (collection "user_messages").
// A unique index on (message_id, user_id) keeps one link per pair.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("user_messages")}
}

func (s *Store) Create(ctx context.Context, l models.UserMessage) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	if _, err := s.c.InsertOne(ctx, l); err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateLink
		}
		return err
	}
	return nil
}

// ListByUser returns the user's links newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]models.UserMessage, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "message_id", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.UserMessage
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByMessage returns every recipient link for a message.
func (s *Store) ListByMessage(ctx context.Context, messageID string) ([]models.UserMessage, error) {
	cur, err := s.c.Find(ctx, bson.M{"message_id": messageID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.UserMessage
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead flips the link to read. Already-read links keep their original
// read_at. found is false when no link exists for the pair.
func (s *Store) MarkRead(ctx context.Context, userID, messageID string, at time.Time) (found bool, err error) {
	filter := bson.M{"user_id": userID, "message_id": messageID}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"user_id": userID, "message_id": messageID, "read": false},
		bson.M{"$set": bson.M{"read": true, "read_at": at}},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	n, err := s.c.CountDocuments(ctx, filter)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountUnread returns how many of the user's links are unread.
func (s *Store) CountUnread(ctx context.Context, userID string) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"user_id": userID, "read": false})
}
