// internal/app/store/notifications/notificationstore.go
package notificationstore

import (
	"context"
	"time"

	"github.com/dalemusser/stratacomm/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("notifications")}
}

// Insert writes n as-is. The caller assigns the id and created_at.
func (s *Store) Insert(ctx context.Context, n models.Notification) error {
	_, err := s.c.InsertOne(ctx, n)
	return err
}

// ListByUser returns the user's notifications newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int, unreadOnly bool) ([]models.Notification, error) {
	filter := bson.M{"user_id": userID}
	if unreadOnly {
		filter["read"] = false
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	return s.find(ctx, filter, opts)
}

// MarkRead marks one notification read. found is false when the notification
// does not exist or belongs to someone else. Already-read notifications keep
// their original read_at.
func (s *Store) MarkRead(ctx context.Context, userID, id string, at time.Time) (found bool, err error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "user_id": userID, "read": false},
		bson.M{"$set": bson.M{"read": true, "read_at": at}},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	n, err := s.c.CountDocuments(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkAllRead marks every unread notification for the user and returns how
// many changed.
func (s *Store) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"user_id": userID, "read": false},
		bson.M{"$set": bson.M{"read": true, "read_at": at}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// SetPushed records that a live push for the notification succeeded.
func (s *Store) SetPushed(ctx context.Context, id string) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"pushed": true}})
	return err
}

// SetPushAttempt records a failed retry of the live push.
func (s *Store) SetPushAttempt(ctx context.Context, id string, at time.Time) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"push_attempt_at": at}})
	return err
}

// ListUnpushed returns unpushed notifications created in [from, to]. Those
// never retried come first, then the least recently retried; ties go newest
// first.
func (s *Store) ListUnpushed(ctx context.Context, from, to time.Time, limit int) ([]models.Notification, error) {
	opts := options.Find().
		SetSort(bson.D{
			{Key: "push_attempt_at", Value: 1},
			{Key: "created_at", Value: -1},
			{Key: "_id", Value: 1},
		}).
		SetLimit(int64(limit))
	return s.find(ctx, bson.M{"pushed": false, "created_at": bson.M{"$gte": from, "$lte": to}}, opts)
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Notification, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Notification
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
