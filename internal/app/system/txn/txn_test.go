package txn

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dalemusser/stratacomm/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestIsNotSupported(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unrelated", errors.New("connection reset"), false},
		{"code 20", mongo.CommandError{Code: 20, Message: "Transaction numbers are only allowed on a replica set member or mongos"}, true},
		{"code 263", mongo.CommandError{Code: 263}, true},
		{"other code", mongo.CommandError{Code: 11000, Message: "duplicate key"}, false},
		{"wrapped", fmt.Errorf("snapshot: %w", mongo.CommandError{Code: 51}), true},
		{"message only", errors.New("Sessions are NOT SUPPORTED by this server"), true},
		{"transaction without replica set", errors.New("transactions need a replica set"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotSupported(tt.err); got != tt.want {
				t.Errorf("IsNotSupported(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// ReadSnapshot must run fn exactly once whether or not the test server
// supports transactions.
func TestReadSnapshot(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := db.Collection("departments").InsertOne(ctx, bson.M{"_id": "d1", "name": "Ops"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	calls := 0
	var n int64
	err := ReadSnapshot(ctx, db, nil, func(ctx context.Context) error {
		calls++
		var err error
		n, err = db.Collection("departments").CountDocuments(ctx, bson.M{})
		return err
	})
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if calls != 1 || n != 1 {
		t.Errorf("calls = %d, count = %d; want 1, 1", calls, n)
	}

	boom := errors.New("boom")
	if err := ReadSnapshot(ctx, db, nil, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("expected fn error to surface, got %v", err)
	}
}
