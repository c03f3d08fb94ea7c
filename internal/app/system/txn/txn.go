// internal/app/system/txn/txn.go
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ReadSnapshot runs fn as a read-only transaction with snapshot read concern
// so every read inside fn observes the same point in time. Standalone servers
// reject transactions; there fn runs once as plain reads and the fallback is
// logged at debug level.
func ReadSnapshot(ctx context.Context, db *mongo.Database, logger *zap.Logger, fn func(ctx context.Context) error) error {
	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetReadPreference(readpref.Primary())

	if logger == nil {
		logger = zap.NewNop()
	}

	sess, err := db.Client().StartSession()
	if err != nil {
		if IsNotSupported(err) {
			logger.Debug("sessions not supported; running without transaction", zap.Error(err))
			return fn(ctx)
		}
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, opts)
	if err != nil && IsNotSupported(err) {
		logger.Debug("transactions not supported; running without transaction", zap.Error(err))
		return fn(ctx)
	}
	return err
}

// IsNotSupported reports whether err indicates the server cannot run
// transactions (standalone mongod, or a session/transaction misuse that the
// server rejects outright).
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, 51, 263:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	hasTxn := strings.Contains(msg, "transaction")
	switch {
	case hasTxn && strings.Contains(msg, "replica set"):
		return true
	case hasTxn && strings.Contains(msg, "session"):
		return true
	case strings.Contains(msg, "session") && strings.Contains(msg, "not supported"):
		return true
	case strings.Contains(msg, "illegal operation"):
		return true
	}
	return false
}
